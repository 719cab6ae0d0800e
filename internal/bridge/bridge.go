// Package bridge implements C4, the AI Bridge: a rate-limited, cached,
// retried client to an external LLM, with circuit breaking, a structured
// fallback, and BridgeQuery tracking for the reconciler (C7). Grounded on
// the teacher's pkg/services/prediction_service.go (cache → circuit
// breaker → rule-based fallback shape) and pkg/resilience/circuit_breaker.go,
// with state moved from package globals to fields owned by one Bridge
// value per spec.md §9.
package bridge

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	cerr "github.com/trustcareconnect/cds-core/internal/clinicalerrors"
	"github.com/trustcareconnect/cds-core/internal/config"
	"github.com/trustcareconnect/cds-core/internal/models"
	"github.com/trustcareconnect/cds-core/internal/store"
)

// Bridge is the AI Bridge. One value per process; every field is owned
// exclusively by Bridge's own methods (spec.md §5 "resource policy: the
// rate limiter and cache are single-writer structures owned by the Bridge
// task").
type Bridge struct {
	cfg     *config.Config
	store   *store.Store
	caller  LLMCaller
	limiter *slidingWindowLimiter
	cache   *responseCache
	breaker *gobreaker.CircuitBreaker
	js      nats.JetStreamContext

	globalSem chan struct{}

	patientQueueMu sync.Mutex
	patientQueues  map[string]chan struct{}
}

// New builds a Bridge. redisClient and js may be nil (degrade to no-cache,
// no async publish); caller must not be nil.
func New(cfg *config.Config, st *store.Store, caller LLMCaller, redisClient *redis.Client, js nats.JetStreamContext) *Bridge {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ai-bridge",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("🔌 Circuit Breaker [%s]: %s -> %s", name, from, to)
		},
	})

	return &Bridge{
		cfg:           cfg,
		store:         st,
		caller:        caller,
		limiter:       newSlidingWindowLimiter(time.Duration(cfg.AIRateLimitWindowSeconds)*time.Second, cfg.AIRateLimitMax),
		cache:         newResponseCache(redisClient, time.Duration(cfg.CacheTTLSeconds)*time.Second, cfg.CacheMaxEntries),
		breaker:       breaker,
		js:            js,
		globalSem:     make(chan struct{}, cfg.GlobalAIConcurrency),
		patientQueues: make(map[string]chan struct{}),
	}
}

func (b *Bridge) queueFor(patientID string) chan struct{} {
	b.patientQueueMu.Lock()
	defer b.patientQueueMu.Unlock()
	q, ok := b.patientQueues[patientID]
	if !ok {
		q = make(chan struct{}, b.cfg.PerPatientQueueSize)
		b.patientQueues[patientID] = q
	}
	return q
}

// Request obtains an AI draft for queryID/patientID (spec.md §4.4
// `request(context, query_text) → Result<AIResponse, BridgeError>`).
// diabetesType and glucose feed the cache key and the forced-fallback
// rule; both may be the zero value / Unknown when not available.
func (b *Bridge) Request(ctx context.Context, queryID, patientID, systemPrompt, userPrompt, diabetesType string, glucose models.Optional[float64]) (AIResponse, error) {
	if !b.limiter.Allow(time.Now()) {
		return AIResponse{}, cerr.New(cerr.RateLimited, "AI rate limit exceeded")
	}

	queue := b.queueFor(patientID)
	select {
	case queue <- struct{}{}:
		defer func() { <-queue }()
	default:
		return AIResponse{}, cerr.New(cerr.QueueFull, "per-patient AI request queue full for patient %s", patientID)
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(b.cfg.BridgeTimeoutSeconds)*time.Second)
	defer cancel()

	select {
	case b.globalSem <- struct{}{}:
		defer func() { <-b.globalSem }()
	case <-reqCtx.Done():
		return AIResponse{}, cerr.New(cerr.Timeout, "timed out waiting for AI concurrency slot")
	}

	bq, err := b.store.CreateBridgeQuery(queryID)
	if err != nil {
		return AIResponse{}, err
	}
	b.publishJob(queryID, patientID)

	if _, err := b.store.TransitionBridgeQuery(bq.ID, models.BridgeProcessing, nil); err != nil {
		return AIResponse{}, err
	}

	g, haveGlucose := glucose.Get()
	if haveGlucose && (g < 70 || g > 300) {
		resp := cannedFallback()
		b.completeBridgeQuery(bq.ID, resp)
		return resp, nil
	}

	key := CacheKey(normalize(userPrompt), diabetesType, glucoseBucket(g, haveGlucose))
	if cached, ok := b.cache.Get(reqCtx, key); ok {
		resp := AIResponse{DraftText: cached, ModelID: "cached", Timestamp: time.Now().UTC(), Source: "cache"}
		b.completeBridgeQuery(bq.ID, resp)
		return resp, nil
	}

	resp, err := b.callWithRetry(reqCtx, systemPrompt, userPrompt)
	if err != nil {
		if cerr.Is(err, cerr.Timeout) {
			b.failBridgeQuery(bq.ID, "Timeout")
			return AIResponse{}, err
		}
		resp = cannedFallback()
		b.completeBridgeQuery(bq.ID, resp)
		return resp, nil
	}

	b.cache.Set(reqCtx, key, resp.DraftText)
	b.completeBridgeQuery(bq.ID, resp)
	return resp, nil
}

func (b *Bridge) completeBridgeQuery(id string, resp AIResponse) {
	_, err := b.store.TransitionBridgeQuery(id, models.BridgeCompleted, func(bq *models.BridgeQuery) {
		bq.ResponseText = models.Known(resp.DraftText)
	})
	if err != nil {
		log.Printf("❌ bridge query %s: failed to record completion: %v", id, err)
	}
}

func (b *Bridge) failBridgeQuery(id, reason string) {
	_, err := b.store.TransitionBridgeQuery(id, models.BridgeFailed, func(bq *models.BridgeQuery) {
		bq.ErrorMessage = models.Known(reason)
	})
	if err != nil {
		log.Printf("❌ bridge query %s: failed to record failure: %v", id, err)
	}
}

// callWithRetry executes caller.Call behind the circuit breaker, making at
// most cfg.RetryMaxAttempts attempts in total with exponential backoff
// (2^(attempt-1) seconds), retrying only on transport/5xx/429 errors
// (spec.md §4.4).
func (b *Bridge) callWithRetry(ctx context.Context, systemPrompt, userPrompt string) (AIResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= b.cfg.RetryMaxAttempts; attempt++ {
		result, err := b.breaker.Execute(func() (interface{}, error) {
			return b.caller.Call(ctx, systemPrompt, userPrompt)
		})
		if err == nil {
			return result.(AIResponse), nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return AIResponse{}, cerr.Wrap(cerr.Timeout, ctx.Err(), "AI bridge call deadline exceeded")
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			break
		}
		if !isRetryable(err) {
			break
		}
		if attempt == b.cfg.RetryMaxAttempts {
			break
		}
		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return AIResponse{}, cerr.Wrap(cerr.Timeout, ctx.Err(), "AI bridge call deadline exceeded during backoff")
		}
	}
	return AIResponse{}, cerr.Wrap(cerr.Upstream, lastErr, "AI bridge call exhausted retries")
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// publishJob fire-and-forgets a tracking message to NATS JetStream so an
// async worker (grounded on teacher internal/workers/llm_worker.go) can
// observe outbound AI jobs for metrics/audit parity; the synchronous
// Result from Request does not depend on this succeeding.
func (b *Bridge) publishJob(queryID, patientID string) {
	if b.js == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{"queryId": queryID, "patientId": patientID})
	if err != nil {
		return
	}
	if _, err := b.js.Publish("ai.bridge.requests", payload); err != nil {
		log.Printf("⚠️ NATS publish failed: %v", err)
	}
}
