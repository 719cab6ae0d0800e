package reconciler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/trustcareconnect/cds-core/internal/config"
	"github.com/trustcareconnect/cds-core/internal/models"
	"github.com/trustcareconnect/cds-core/internal/reconciler"
	"github.com/trustcareconnect/cds-core/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		BridgeSharedSecret:      "s3cret",
		BridgeSweepIntervalSecs: 300,
		BridgeStaleThresholdHrs: 24,
	}
}

func setup(t *testing.T) (*fiber.App, *store.Store, *reconciler.Reconciler) {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	r := reconciler.New(testConfig(), st)
	app := fiber.New()
	r.RegisterRoutes(app)
	return app, st, r
}

func postWebhook(t *testing.T, app *fiber.App, payload map[string]interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/bridge/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestWebhook_RejectsInvalidSecret(t *testing.T) {
	app, st, _ := setup(t)
	q, err := st.CreateQuery(models.Query{PatientID: "p1", Status: models.StatusSubmitted}, "tester")
	require.NoError(t, err)
	bq, err := st.CreateBridgeQuery(q.ID)
	require.NoError(t, err)

	resp := postWebhook(t, app, map[string]interface{}{
		"queryId": bq.ID, "status": "completed", "secret": "wrong",
	})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWebhook_AppliesValidTransition(t *testing.T) {
	app, st, _ := setup(t)
	q, err := st.CreateQuery(models.Query{PatientID: "p1", Status: models.StatusSubmitted}, "tester")
	require.NoError(t, err)
	bq, err := st.CreateBridgeQuery(q.ID)
	require.NoError(t, err)
	_, err = st.TransitionBridgeQuery(bq.ID, models.BridgeProcessing, nil)
	require.NoError(t, err)

	resp := postWebhook(t, app, map[string]interface{}{
		"queryId": bq.ID, "status": "completed", "response": "draft text", "secret": "s3cret",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	updated, err := st.GetBridgeQuery(bq.ID)
	require.NoError(t, err)
	require.Equal(t, models.BridgeCompleted, updated.Status)
	text, ok := updated.ResponseText.Get()
	require.True(t, ok)
	require.Equal(t, "draft text", text)
}

func TestWebhook_RejectsRegression(t *testing.T) {
	app, st, _ := setup(t)
	q, err := st.CreateQuery(models.Query{PatientID: "p1", Status: models.StatusSubmitted}, "tester")
	require.NoError(t, err)
	bq, err := st.CreateBridgeQuery(q.ID)
	require.NoError(t, err)
	_, err = st.TransitionBridgeQuery(bq.ID, models.BridgeProcessing, nil)
	require.NoError(t, err)
	_, err = st.TransitionBridgeQuery(bq.ID, models.BridgeCompleted, nil)
	require.NoError(t, err)

	resp := postWebhook(t, app, map[string]interface{}{
		"queryId": bq.ID, "status": "processing", "secret": "s3cret",
	})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestWebhook_ReplayIsIdempotent(t *testing.T) {
	app, st, _ := setup(t)
	q, err := st.CreateQuery(models.Query{PatientID: "p1", Status: models.StatusSubmitted}, "tester")
	require.NoError(t, err)
	bq, err := st.CreateBridgeQuery(q.ID)
	require.NoError(t, err)
	_, err = st.TransitionBridgeQuery(bq.ID, models.BridgeProcessing, nil)
	require.NoError(t, err)

	first := postWebhook(t, app, map[string]interface{}{
		"queryId": bq.ID, "status": "completed", "response": "draft text", "secret": "s3cret",
	})
	require.Equal(t, fiber.StatusOK, first.StatusCode)

	// A replayed delivery of the same terminal status must not be treated
	// as a regression (it isn't one — it's the same status) and must
	// succeed a second time rather than surfacing InvalidTransition.
	second := postWebhook(t, app, map[string]interface{}{
		"queryId": bq.ID, "status": "completed", "response": "draft text", "secret": "s3cret",
	})
	require.Equal(t, fiber.StatusOK, second.StatusCode)

	updated, err := st.GetBridgeQuery(bq.ID)
	require.NoError(t, err)
	require.Equal(t, models.BridgeCompleted, updated.Status)
	text, ok := updated.ResponseText.Get()
	require.True(t, ok)
	require.Equal(t, "draft text", text)
}

func TestApplyUpdate_DirectCallbackPath(t *testing.T) {
	_, st, r := setup(t)
	q, err := st.CreateQuery(models.Query{PatientID: "p1", Status: models.StatusSubmitted}, "tester")
	require.NoError(t, err)
	bq, err := st.CreateBridgeQuery(q.ID)
	require.NoError(t, err)

	updated, err := r.ApplyUpdate(bq.ID, models.BridgeProcessing, nil)
	require.NoError(t, err)
	require.Equal(t, models.BridgeProcessing, updated.Status)
}

func TestSweep_EscalatesStaleBridgeQueries(t *testing.T) {
	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	q, err := st.CreateQuery(models.Query{PatientID: "p1", Status: models.StatusPending}, "tester")
	require.NoError(t, err)
	bq, err := st.CreateBridgeQuery(q.ID)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.BridgeStaleThresholdHrs = 0

	r := reconciler.New(cfg, st)
	r.Sweep()

	updatedBQ, err := st.GetBridgeQuery(bq.ID)
	require.NoError(t, err)
	require.Equal(t, models.BridgeFailed, updatedBQ.Status)

	updatedQuery, err := st.GetQuery(q.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusEscalated, updatedQuery.Status)
}
