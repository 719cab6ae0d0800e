package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trustcareconnect/cds-core/internal/audit"
	"github.com/trustcareconnect/cds-core/internal/bridge"
	"github.com/trustcareconnect/cds-core/internal/config"
	"github.com/trustcareconnect/cds-core/internal/models"
	"github.com/trustcareconnect/cds-core/internal/store"
)

type benignCaller struct{}

func (benignCaller) Call(ctx context.Context, systemPrompt, userPrompt string) (bridge.AIResponse, error) {
	return bridge.AIResponse{DraftText: "Nothing concerning here.", ModelID: "fake-1", Source: "live"}, nil
}

// TestRunPipeline_UnknownPatientForcesHumanReview exercises spec.md's
// requirement that a Context Assembler miss (the patient record is gone
// by the time the pipeline assembles context, even though the query
// itself is benign) always forces human review, regardless of what the
// Safety Scorer concludes from the query text alone.
func TestRunPipeline_UnknownPatientForcesHumanReview(t *testing.T) {
	cfg := &config.Config{
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
	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	br := bridge.New(cfg, st, benignCaller{}, nil, nil)
	svc := New(cfg, st, br, audit.NewLog(st, nil))

	ghostPatient := models.Patient{ID: "patient-does-not-exist"}
	q := models.Query{
		ID:          "query-1",
		PatientID:   ghostPatient.ID,
		Title:       "question",
		Description: "a routine question",
		Status:      models.StatusSubmitted,
	}
	created, err := st.CreateQuery(q, "patient:"+ghostPatient.ID)
	require.NoError(t, err)

	err = svc.runPipeline(context.Background(), &created, ghostPatient)
	require.NoError(t, err)

	require.True(t, created.HumanReviewRequired)
	score, ok := created.SafetyScore.Get()
	require.True(t, ok)
	require.Equal(t, 100, score)
}
