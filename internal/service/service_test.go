package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trustcareconnect/cds-core/internal/assignment"
	"github.com/trustcareconnect/cds-core/internal/audit"
	"github.com/trustcareconnect/cds-core/internal/bridge"
	cerr "github.com/trustcareconnect/cds-core/internal/clinicalerrors"
	"github.com/trustcareconnect/cds-core/internal/config"
	"github.com/trustcareconnect/cds-core/internal/models"
	"github.com/trustcareconnect/cds-core/internal/service"
	"github.com/trustcareconnect/cds-core/internal/store"
)

type fakeCaller struct {
	draft string
}

func (f *fakeCaller) Call(ctx context.Context, systemPrompt, userPrompt string) (bridge.AIResponse, error) {
	return bridge.AIResponse{DraftText: f.draft, ModelID: "fake-1", Source: "live"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		AIRateLimitWindowSeconds:   60,
		AIRateLimitMax:             10,
		CacheTTLSeconds:            300,
		CacheMaxEntries:            100,
		RetryMaxAttempts:           3,
		BridgeTimeoutSeconds:       5,
		PerPatientQueueSize:        10,
		GlobalAIConcurrency:        5,
		MaxOpenQueriesPerClinician: 15,
	}
}

func newTestService(t *testing.T, draft string) (*service.Service, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	b := bridge.New(testConfig(), st, &fakeCaller{draft: draft}, nil, nil)
	auditLog := audit.NewLog(st, nil)
	return service.New(testConfig(), st, b, auditLog), st
}

func grantedConsents() service.ConsentInput {
	return service.ConsentInput{Treatment: true, PrivacyAcknowledged: true, DataProcessing: true}
}

func mustRegisterPatient(t *testing.T, svc *service.Service, consents service.ConsentInput) string {
	t.Helper()
	id, err := svc.RegisterPatient(service.PatientDemographics{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		Gender:      "female",
	}, consents)
	require.NoError(t, err)
	return id
}

func TestSubmitQuery_SevereHypoglycemia(t *testing.T) {
	svc, st := newTestService(t, "Please monitor your glucose closely.")
	patientID := mustRegisterPatient(t, svc, grantedConsents())

	glucose := 52.0
	queryID, err := svc.SubmitQuery(context.Background(), service.SubmitQueryInput{
		PatientID:   patientID,
		Title:       "Feeling shaky",
		Description: "I feel shaky and dizzy",
		Vitals:      &service.VitalsInput{GlucoseMgDL: &glucose},
	})
	require.NoError(t, err)

	q, err := st.GetQuery(queryID)
	require.NoError(t, err)
	score, ok := q.SafetyScore.Get()
	require.True(t, ok)
	require.Equal(t, 25, score)
	urgency, ok := q.Urgency.Get()
	require.True(t, ok)
	require.Equal(t, models.UrgencyHigh, urgency)
	require.True(t, q.HumanReviewRequired)
	require.Equal(t, models.StatusPending, q.Status)
}

func TestSubmitQuery_RoutineFollowUp(t *testing.T) {
	svc, st := newTestService(t, "See you at your next appointment.")
	patientID := mustRegisterPatient(t, svc, grantedConsents())

	queryID, err := svc.SubmitQuery(context.Background(), service.SubmitQueryInput{
		PatientID:   patientID,
		Title:       "Next check-up",
		Description: "Scheduling my next check-up",
	})
	require.NoError(t, err)

	q, err := st.GetQuery(queryID)
	require.NoError(t, err)
	score, _ := q.SafetyScore.Get()
	require.Equal(t, 100, score)
	urgency, _ := q.Urgency.Get()
	require.Equal(t, models.UrgencyLow, urgency)
	require.False(t, q.HumanReviewRequired)
	require.Equal(t, models.StatusPending, q.Status)
}

func TestSubmitQuery_HyperglycemiaMedicationAmbiguity(t *testing.T) {
	svc, st := newTestService(t, "Do not change your dose without guidance.")
	patientID := mustRegisterPatient(t, svc, grantedConsents())

	glucose := 310.0
	queryID, err := svc.SubmitQuery(context.Background(), service.SubmitQueryInput{
		PatientID:   patientID,
		Title:       "Morning glucose",
		Description: "Morning glucose is 310, should I double my metformin?",
		Vitals:      &service.VitalsInput{GlucoseMgDL: &glucose},
	})
	require.NoError(t, err)

	q, err := st.GetQuery(queryID)
	require.NoError(t, err)
	score, _ := q.SafetyScore.Get()
	require.Equal(t, 30, score)
	urgency, _ := q.Urgency.Get()
	require.Equal(t, models.UrgencyHigh, urgency)
	require.True(t, q.HumanReviewRequired)
}

func TestSubmitQuery_RejectsWithoutConsent(t *testing.T) {
	svc, _ := newTestService(t, "draft")
	patientID := mustRegisterPatient(t, svc, service.ConsentInput{Treatment: true})

	_, err := svc.SubmitQuery(context.Background(), service.SubmitQueryInput{
		PatientID:   patientID,
		Title:       "question",
		Description: "a routine question",
	})
	require.Error(t, err)
	require.True(t, cerr.Is(err, cerr.PolicyViolation))
}

func TestRespondToQuery_RejectsBypassWhenHumanReviewRequired(t *testing.T) {
	svc, st := newTestService(t, "seek emergency care")
	patientID := mustRegisterPatient(t, svc, grantedConsents())

	glucose := 40.0
	queryID, err := svc.SubmitQuery(context.Background(), service.SubmitQueryInput{
		PatientID:   patientID,
		Title:       "Severe hypoglycemia",
		Description: "I feel unconscious and shaky",
		Vitals:      &service.VitalsInput{GlucoseMgDL: &glucose},
	})
	require.NoError(t, err)

	q, err := st.GetQuery(queryID)
	require.NoError(t, err)
	require.True(t, q.HumanReviewRequired)

	clinician, err := st.CreateClinician(models.Clinician{Name: "Dr. Rivera", Active: true})
	require.NoError(t, err)
	require.NoError(t, svc.TakeQuery(queryID, clinician.ID))

	err = svc.RespondToQuery(queryID, "someone-else", "you are fine")
	require.Error(t, err)
	require.True(t, cerr.Is(err, cerr.PolicyViolation))

	unchanged, err := st.GetQuery(queryID)
	require.NoError(t, err)
	require.Equal(t, models.StatusInReview, unchanged.Status)
}

func TestTakeQuery_AssignsAndOpensReview(t *testing.T) {
	svc, st := newTestService(t, "routine reply")
	patientID := mustRegisterPatient(t, svc, grantedConsents())

	queryID, err := svc.SubmitQuery(context.Background(), service.SubmitQueryInput{
		PatientID:   patientID,
		Title:       "question",
		Description: "Scheduling my next check-up",
	})
	require.NoError(t, err)

	clinician, err := st.CreateClinician(models.Clinician{Name: "Dr. Rivera", Active: true})
	require.NoError(t, err)
	require.NoError(t, svc.TakeQuery(queryID, clinician.ID))

	q, err := st.GetQuery(queryID)
	require.NoError(t, err)
	require.Equal(t, models.StatusInReview, q.Status)
	assigned, ok := q.AssignedClinicianID.Get()
	require.True(t, ok)
	require.Equal(t, clinician.ID, assigned)
}

func TestReviewQuery_RejectEscalates(t *testing.T) {
	svc, st := newTestService(t, "routine reply")
	patientID := mustRegisterPatient(t, svc, grantedConsents())

	queryID, err := svc.SubmitQuery(context.Background(), service.SubmitQueryInput{
		PatientID:   patientID,
		Title:       "question",
		Description: "Scheduling my next check-up",
	})
	require.NoError(t, err)

	clinician, err := st.CreateClinician(models.Clinician{Name: "Dr. Rivera", Active: true})
	require.NoError(t, err)
	require.NoError(t, svc.TakeQuery(queryID, clinician.ID))

	err = svc.ReviewQuery(queryID, clinician.ID, assignment.Review{Decision: assignment.DecisionReject, Note: "needs specialist"})
	require.NoError(t, err)

	q, err := st.GetQuery(queryID)
	require.NoError(t, err)
	require.Equal(t, models.StatusEscalated, q.Status)
}

func TestProcessMedicalQuery_ReturnsShape(t *testing.T) {
	svc, _ := newTestService(t, "Here is some guidance.")
	patientID := mustRegisterPatient(t, svc, grantedConsents())

	result, err := svc.ProcessMedicalQuery(context.Background(), patientID, "Scheduling my next check-up", nil)
	require.NoError(t, err)
	require.Equal(t, "Here is some guidance.", result.Content)
	require.Equal(t, 100, result.SafetyScore)
	require.Equal(t, "low", result.Urgency)
	require.False(t, result.RequiresReview)
	require.NotEmpty(t, result.QueryID)
}

func TestAssignPendingQuery_NoEligibleClinicianLeavesPending(t *testing.T) {
	svc, st := newTestService(t, "routine reply")
	patientID := mustRegisterPatient(t, svc, grantedConsents())

	queryID, err := svc.SubmitQuery(context.Background(), service.SubmitQueryInput{
		PatientID:   patientID,
		Title:       "question",
		Description: "Scheduling my next check-up",
	})
	require.NoError(t, err)

	clinicianID, err := svc.AssignPendingQuery(queryID)
	require.NoError(t, err)
	require.Empty(t, clinicianID)

	q, err := st.GetQuery(queryID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, q.Status)
}
