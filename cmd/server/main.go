// Command server wires the Record Store, Context Assembler, Safety
// Scorer, AI Bridge, State Machine, Assignment, Reconciler and Audit Log
// together and exposes the one HTTP surface spec.md §1 keeps in scope:
// the bridge webhook and a couple of health probes. Grounded on the
// teacher's cmd/server/main.go dependency-wiring order and graceful
// shutdown.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/trustcareconnect/cds-core/internal/audit"
	"github.com/trustcareconnect/cds-core/internal/bridge"
	"github.com/trustcareconnect/cds-core/internal/config"
	"github.com/trustcareconnect/cds-core/internal/reconciler"
	"github.com/trustcareconnect/cds-core/internal/service"
	"github.com/trustcareconnect/cds-core/internal/store"
)

func main() {
	cfg := config.Load()

	// cfg is shared by pointer with every collaborator constructed below;
	// the watcher mutates it in place on each .env write, so bridge's and
	// reconciler's per-use knob reads (timeout, retry count, shared
	// secret, stale threshold) pick up a reload without those components
	// needing to know a watcher exists. Values copied at construction
	// (rate limiter window and max, cache TTL and capacity, concurrency
	// semaphore, sweep schedule, LLM client timeout) keep their startup
	// values until restart.
	watcher := config.NewWatcher(".env", cfg, func(reloaded *config.Config) {
		log.Printf("⚙️ config hot-reloaded: rate_limit_max=%d cache_ttl_s=%d bridge_timeout_s=%d",
			reloaded.AIRateLimitMax, reloaded.CacheTTLSeconds, reloaded.BridgeTimeoutSeconds)
	})
	defer watcher.Close()

	signer := audit.NewSigner([]byte(cfg.BridgeSharedSecret))

	st, err := store.Open(cfg.DBPath, signer)
	if err != nil {
		log.Fatalf("record store: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	if err := redisClient.Ping(redisClient.Context()).Err(); err != nil {
		log.Printf("⚠️ redis unavailable at %s, AI Bridge cache disabled: %v", cfg.RedisURL, err)
		redisClient = nil
	}

	caller := bridge.NewHTTPLLMCaller(
		os.Getenv("LLM_ENDPOINT"),
		os.Getenv("LLM_MODEL"),
		time.Duration(cfg.BridgeTimeoutSeconds)*time.Second,
	)
	br := bridge.New(cfg, st, caller, redisClient, nil)

	auditLog := audit.NewLog(st, signer)
	svc := service.New(cfg, st, br, auditLog)
	_ = svc // constructed and held; no route in this binary calls it

	rec := reconciler.New(cfg, st)
	rec.Start()
	defer rec.Stop()

	app := fiber.New(fiber.Config{
		AppName: "cds-core",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"success": false, "error": err.Error()})
		},
	})

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "live"})
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		ready := true
		deps := fiber.Map{}
		if redisClient == nil {
			deps["redis"] = "unavailable"
		} else if err := redisClient.Ping(redisClient.Context()).Err(); err != nil {
			ready = false
			deps["redis"] = "unhealthy"
		} else {
			deps["redis"] = "healthy"
		}
		status := fiber.StatusOK
		if !ready {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{"ready": ready, "dependencies": deps})
	})

	rec.RegisterRoutes(app)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		log.Println("🛑 graceful shutdown initiated")
		_ = app.Shutdown()
	}()

	log.Printf("🚀 cds-core listening on port %s", cfg.ServerPort)
	log.Fatal(app.Listen(":" + cfg.ServerPort))
}
