package statemachine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	cerr "github.com/trustcareconnect/cds-core/internal/clinicalerrors"
	"github.com/trustcareconnect/cds-core/internal/models"
	"github.com/trustcareconnect/cds-core/internal/statemachine"
)

func baseQuery(status models.QueryStatus) models.Query {
	return models.Query{ID: "q1", Status: status}
}

func TestApply_AICompletedRequiresDraftAndScore(t *testing.T) {
	q := baseQuery(models.StatusSubmitted)
	_, err := statemachine.Apply(q, statemachine.Event{Type: statemachine.EventAICompleted})
	require.Error(t, err)
	require.True(t, cerr.Is(err, cerr.Invalid))

	q.AIDraftResponse = models.Known("draft")
	q.SafetyScore = models.Known(90)
	next, err := statemachine.Apply(q, statemachine.Event{Type: statemachine.EventAICompleted})
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, next.Status)
}

func TestApply_AssignRequiresActiveNotAtCapacity(t *testing.T) {
	q := baseQuery(models.StatusPending)

	_, err := statemachine.Apply(q, statemachine.Event{Type: statemachine.EventAssign, ClinicianID: "c1"})
	require.Error(t, err)

	_, err = statemachine.Apply(q, statemachine.Event{Type: statemachine.EventAssign, ClinicianID: "c1", ClinicianActive: true, ClinicianAtCapacity: true})
	require.Error(t, err)

	next, err := statemachine.Apply(q, statemachine.Event{Type: statemachine.EventAssign, ClinicianID: "c1", ClinicianActive: true})
	require.NoError(t, err)
	require.Equal(t, models.StatusAssigned, next.Status)
	id, ok := next.AssignedClinicianID.Get()
	require.True(t, ok)
	require.Equal(t, "c1", id)
}

func TestApply_OpenReviewRequiresAssignedCaller(t *testing.T) {
	q := baseQuery(models.StatusAssigned)
	q.AssignedClinicianID = models.Known("c1")

	_, err := statemachine.Apply(q, statemachine.Event{Type: statemachine.EventOpenReview, CallerID: "c2"})
	require.Error(t, err)
	require.True(t, cerr.Is(err, cerr.Unauthorized))

	next, err := statemachine.Apply(q, statemachine.Event{Type: statemachine.EventOpenReview, CallerID: "c1"})
	require.NoError(t, err)
	require.Equal(t, models.StatusInReview, next.Status)
}

func TestApply_RespondRejectsBypassOfHumanReviewGate(t *testing.T) {
	q := baseQuery(models.StatusInReview)
	q.AssignedClinicianID = models.Known("c1")
	q.HumanReviewRequired = true

	_, err := statemachine.Apply(q, statemachine.Event{Type: statemachine.EventRespond, CallerID: "c2", ResponseText: "ok"})
	require.Error(t, err)
	require.True(t, cerr.Is(err, cerr.PolicyViolation))

	next, err := statemachine.Apply(q, statemachine.Event{Type: statemachine.EventRespond, CallerID: "c1", ResponseText: "ok"})
	require.NoError(t, err)
	require.Equal(t, models.StatusResolved, next.Status)
}

func TestApply_RespondAllowsAnyCallerWhenReviewNotRequired(t *testing.T) {
	q := baseQuery(models.StatusInReview)
	q.AssignedClinicianID = models.Known("c1")
	q.HumanReviewRequired = false

	next, err := statemachine.Apply(q, statemachine.Event{Type: statemachine.EventRespond, CallerID: "anyone", ResponseText: "ok"})
	require.NoError(t, err)
	require.Equal(t, models.StatusResolved, next.Status)
}

func TestApply_EscalateFromAnyOfThreeStates(t *testing.T) {
	for _, s := range []models.QueryStatus{models.StatusPending, models.StatusAssigned, models.StatusInReview} {
		next, err := statemachine.Apply(baseQuery(s), statemachine.Event{Type: statemachine.EventEscalate})
		require.NoError(t, err)
		require.Equal(t, models.StatusEscalated, next.Status)
	}

	_, err := statemachine.Apply(baseQuery(models.StatusResolved), statemachine.Event{Type: statemachine.EventEscalate})
	require.Error(t, err)
	require.True(t, cerr.Is(err, cerr.Conflict))
}

func TestApply_PatientInfoRoundTrip(t *testing.T) {
	q := baseQuery(models.StatusInReview)
	next, err := statemachine.Apply(q, statemachine.Event{Type: statemachine.EventRequestPatientInfo})
	require.NoError(t, err)
	require.Equal(t, models.StatusAwaitingPatientResponse, next.Status)

	next, err = statemachine.Apply(next, statemachine.Event{Type: statemachine.EventPatientReplied})
	require.NoError(t, err)
	require.Equal(t, models.StatusInReview, next.Status)
}

func TestApply_ReassignAndClose(t *testing.T) {
	q := baseQuery(models.StatusEscalated)
	next, err := statemachine.Apply(q, statemachine.Event{Type: statemachine.EventReassign, ClinicianID: "c2", ClinicianActive: true})
	require.NoError(t, err)
	require.Equal(t, models.StatusAssigned, next.Status)

	resolved := baseQuery(models.StatusResolved)
	closed, err := statemachine.Apply(resolved, statemachine.Event{Type: statemachine.EventClose})
	require.NoError(t, err)
	require.Equal(t, models.StatusClosed, closed.Status)

	_, err = statemachine.Apply(baseQuery(models.StatusPending), statemachine.Event{Type: statemachine.EventClose})
	require.Error(t, err)
}

func TestApply_RejectsEventFromWrongState(t *testing.T) {
	_, err := statemachine.Apply(baseQuery(models.StatusSubmitted), statemachine.Event{Type: statemachine.EventRespond, ResponseText: "x"})
	require.Error(t, err)
	require.True(t, cerr.Is(err, cerr.Conflict))
}
