// Package reconciler implements C7, the Bridge Reconciler: the webhook
// contract and periodic stale-entry sweep of spec.md §4.7. Grounded on
// the teacher's fiber wiring in cmd/server/main.go for the one in-scope
// HTTP surface (the webhook, spec.md §6), and on other_examples'
// `robfig/cron` usage for scheduled sweeps (the teacher repo has no
// periodic job of its own). Libraries: github.com/gofiber/fiber/v2,
// github.com/robfig/cron/v3.
package reconciler

import (
	"crypto/subtle"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/robfig/cron/v3"

	cerr "github.com/trustcareconnect/cds-core/internal/clinicalerrors"
	"github.com/trustcareconnect/cds-core/internal/config"
	"github.com/trustcareconnect/cds-core/internal/models"
	"github.com/trustcareconnect/cds-core/internal/statemachine"
	"github.com/trustcareconnect/cds-core/internal/store"
)

// validWebhookStatuses is the enumerated set spec.md §4.7 requires the
// webhook to enforce, expressed in the caller's wire vocabulary rather
// than the store's internal BridgeQueryStatus values.
var validWebhookStatuses = map[string]models.BridgeQueryStatus{
	"processing": models.BridgeProcessing,
	"completed":  models.BridgeCompleted,
	"failed":     models.BridgeFailed,
}

// WebhookPayload is the wire shape of a POST /bridge/webhook body
// (spec.md §4.7's contract).
type WebhookPayload struct {
	QueryID      string  `json:"queryId"`
	Status       string  `json:"status"`
	Response     *string `json:"response,omitempty"`
	SafetyScore  *int    `json:"safetyScore,omitempty"`
	Urgency      *string `json:"urgency,omitempty"`
	ErrorMessage *string `json:"errorMessage,omitempty"`
	Secret       string  `json:"secret"`
}

// Reconciler owns the BridgeQuery tracking surface: the webhook handler,
// a direct-callback helper any in-process caller can use instead of a
// round trip through HTTP, and the periodic sweeper.
type Reconciler struct {
	cfg   *config.Config
	store *store.Store
	cron  *cron.Cron
}

// New builds a Reconciler. Call Start to begin the periodic sweep;
// RegisterRoutes to mount the webhook on a fiber app.
func New(cfg *config.Config, st *store.Store) *Reconciler {
	return &Reconciler{cfg: cfg, store: st, cron: cron.New()}
}

// RegisterRoutes mounts the one HTTP contract this component owns.
func (r *Reconciler) RegisterRoutes(app *fiber.App) {
	app.Post("/bridge/webhook", r.handleWebhook)
}

func (r *Reconciler) handleWebhook(c *fiber.Ctx) error {
	var payload WebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid"})
	}

	if subtle.ConstantTimeCompare([]byte(payload.Secret), []byte(r.cfg.BridgeSharedSecret)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	newStatus, ok := validWebhookStatuses[payload.Status]
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid", "detail": "unrecognized status"})
	}

	_, err := r.ApplyUpdate(payload.QueryID, newStatus, func(bq *models.BridgeQuery) {
		if payload.Response != nil {
			bq.ResponseText = models.Known(*payload.Response)
		}
		if payload.SafetyScore != nil {
			bq.SafetyScore = models.Known(*payload.SafetyScore)
		}
		if payload.Urgency != nil {
			bq.Urgency = models.Known(models.Urgency(*payload.Urgency))
		}
		if payload.ErrorMessage != nil {
			bq.ErrorMessage = models.Known(*payload.ErrorMessage)
		}
	})
	if err != nil {
		if cerr.Is(err, cerr.NotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "NotFound"})
		}
		if cerr.Is(err, cerr.PolicyViolation) || cerr.Is(err, cerr.Conflict) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "InvalidTransition"})
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Unavailable"})
	}
	return c.SendStatus(fiber.StatusOK)
}

// ApplyUpdate is the shared BridgeQuery-transition path used by both the
// webhook and any direct in-process caller (spec.md §4.7's "direct
// completion callbacks from the bridge"): it defers entirely to
// store.TransitionBridgeQuery, which already enforces the monotonic
// pending -> processing -> {completed, failed} rule and replay
// idempotence (spec.md §8 "Idempotence of webhook replay").
func (r *Reconciler) ApplyUpdate(bridgeQueryID string, newStatus models.BridgeQueryStatus, mutate func(*models.BridgeQuery)) (models.BridgeQuery, error) {
	return r.store.TransitionBridgeQuery(bridgeQueryID, newStatus, mutate)
}

// Start begins the periodic sweep at cfg.BridgeSweepIntervalSecs. Call
// once; Stop to halt it (e.g. during graceful shutdown).
func (r *Reconciler) Start() {
	spec := cronEverySeconds(r.cfg.BridgeSweepIntervalSecs)
	if _, err := r.cron.AddFunc(spec, r.sweep); err != nil {
		log.Printf("❌ reconciler: failed to schedule sweep: %v", err)
		return
	}
	r.cron.Start()
}

func (r *Reconciler) Stop() {
	r.cron.Stop()
}

// Sweep runs one pass of the stale-entry sweep synchronously. Start
// schedules this on a timer; tests and operational tooling can also
// invoke it directly.
func (r *Reconciler) Sweep() {
	r.sweep()
}

func cronEverySeconds(n int) string {
	if n <= 0 {
		n = 300
	}
	return "@every " + strconv.Itoa(n) + "s"
}

// sweep implements spec.md §4.7's periodic sweeper: entries older than
// BridgeStaleThresholdHrs in non-terminal state are marked failed with
// error TimedOut, and the associated Query is escalated with an audit
// entry (spec.md §8 scenario 6).
func (r *Reconciler) sweep() {
	threshold := time.Duration(r.cfg.BridgeStaleThresholdHrs) * time.Hour
	stale, err := r.store.ListStaleBridgeQueries(threshold)
	if err != nil {
		log.Printf("❌ reconciler sweep: failed to list stale bridge queries: %v", err)
		return
	}
	for _, bq := range stale {
		if _, err := r.store.TransitionBridgeQuery(bq.ID, models.BridgeFailed, func(b *models.BridgeQuery) {
			b.ErrorMessage = models.Known("TimedOut")
		}); err != nil {
			log.Printf("⚠️ reconciler sweep: bridge query %s: %v", bq.ID, err)
			continue
		}
		if err := r.escalateQuery(bq.QueryID); err != nil {
			log.Printf("⚠️ reconciler sweep: query %s: %v", bq.QueryID, err)
		}
	}
}

func (r *Reconciler) escalateQuery(queryID string) error {
	q, err := r.store.GetQuery(queryID)
	if err != nil {
		return err
	}
	next, err := statemachine.Apply(q, statemachine.Event{Type: statemachine.EventEscalate})
	if err != nil {
		return err
	}
	next.AppendAudit("escalated: stale bridge query timed out")
	_, err = r.store.UpdateQuery(next, "QUERY_ESCALATED_STALE_BRIDGE", "system:reconciler")
	return err
}
