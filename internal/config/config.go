// Package config loads and hot-reloads the operational knobs of the
// query-processing pipeline, following the teacher's pkg/config idiom
// (env-var driven, .env optional) extended with a file watcher for the
// mutable subset named in spec.md §6 ("Configuration: recognized options").
package config

import (
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// Config holds every recognized option from spec.md §6.
type Config struct {
	ServerPort string

	DBPath string

	RedisURL string
	NatsURL  string

	BridgeSharedSecret string

	AIRateLimitWindowSeconds int
	AIRateLimitMax           int
	CacheTTLSeconds          int
	CacheMaxEntries          int
	RetryMaxAttempts         int
	BridgeTimeoutSeconds     int
	PerPatientQueueSize      int
	GlobalAIConcurrency      int
	BridgeSweepIntervalSecs  int
	BridgeStaleThresholdHrs  int

	MaxOpenQueriesPerClinician int
}

// Load reads configuration from the environment (after optionally loading
// a .env file), mirroring teacher pkg/config.Load.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),

		DBPath: getEnv("DB_PATH", "cds.db"),

		RedisURL: getEnv("REDIS_URL", "localhost:6379"),
		NatsURL:  getEnv("NATS_URL", "nats://localhost:4222"),

		BridgeSharedSecret: getEnv("BRIDGE_SHARED_SECRET", "change-me-in-production"),

		AIRateLimitWindowSeconds: getEnvInt("AI_RATE_LIMIT_WINDOW_S", 60),
		AIRateLimitMax:           getEnvInt("AI_RATE_LIMIT_MAX", 10),
		CacheTTLSeconds:          getEnvInt("CACHE_TTL_S", 300),
		CacheMaxEntries:          getEnvInt("CACHE_MAX_ENTRIES", 100),
		RetryMaxAttempts:         getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		BridgeTimeoutSeconds:     getEnvInt("BRIDGE_TIMEOUT_S", 60),
		PerPatientQueueSize:      getEnvInt("PER_PATIENT_QUEUE_SIZE", 10),
		GlobalAIConcurrency:      getEnvInt("GLOBAL_AI_CONCURRENCY", 5),
		BridgeSweepIntervalSecs:  getEnvInt("BRIDGE_SWEEP_INTERVAL_S", 300),
		BridgeStaleThresholdHrs:  getEnvInt("BRIDGE_STALE_THRESHOLD_H", 24),

		MaxOpenQueriesPerClinician: getEnvInt("MAX_OPEN_QUERIES_PER_CLINICIAN", 15),
	}

	log.Printf("⚙️ Config loaded: Port=%s DB=%s Redis=%s NATS=%s",
		cfg.ServerPort, cfg.DBPath, cfg.RedisURL, cfg.NatsURL)

	return cfg
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

// Watcher reloads the whole Config in place whenever the given env file
// changes on disk, the way AleutianFOSS and jupiter watch their config
// files with fsnotify. A reload reaches only the fields collaborators read
// off *Config on each use (bridge timeout, retry attempts, per-patient
// queue size for new queues, bridge secret, stale threshold, clinician
// capacity); values copied at construction (rate limiter window and max,
// cache TTL and capacity, global concurrency, sweep interval, the LLM
// client's HTTP timeout) keep their startup values.
type Watcher struct {
	mu       sync.RWMutex
	current  *Config
	watcher  *fsnotify.Watcher
	onChange func(*Config)
}

// NewWatcher starts watching envFilePath for writes and reloads Config on
// each change. Call Close when done. If the watcher cannot be established
// (e.g. missing directory) it logs and degrades to a static snapshot of
// initial — hot reload is a convenience, not a hard dependency.
func NewWatcher(envFilePath string, initial *Config, onChange func(*Config)) *Watcher {
	w := &Watcher{current: initial, onChange: onChange}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️ config watcher unavailable: %v", err)
		return w
	}
	w.watcher = fw

	if err := fw.Add(envFilePath); err != nil {
		log.Printf("⚠️ config watcher: cannot watch %s: %v", envFilePath, err)
		return w
	}

	go w.loop()
	return w
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				reloaded := Load()
				w.mu.Lock()
				// Mutate the existing Config in place, rather than
				// swapping in a new pointer, so every collaborator that
				// was constructed with the original *Config (bridge.New,
				// reconciler.New) observes the reload on its next field
				// read without re-wiring.
				*w.current = *reloaded
				w.mu.Unlock()
				log.Printf("♻️ config reloaded from %s", event.Name)
				if w.onChange != nil {
					w.onChange(w.current)
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ config watcher error: %v", err)
		}
	}
}

// Current returns the most recently loaded Config snapshot.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops the underlying filesystem watcher, if any.
func (w *Watcher) Close() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
