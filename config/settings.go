package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreBackendMemory = "memory"
	StoreBackendMySQL  = "mysql"
	StoreBackendRedis  = "redis"

	DispatchModeLog   = "log"
	DispatchModeSMTP  = "smtp"
	DispatchModeRedis = "redis"
	DispatchModeAsynq = "asynq"
)

// Settings is the process configuration, read once from the environment.
type Settings struct {
	Port  string
	GoEnv string

	StoreBackend   string
	CacheEnabled   bool
	PersistTimeout time.Duration

	TickInterval    time.Duration
	WindowTolerance time.Duration
	CatchUpMissed   bool
	AutoSendEnabled bool
	DistributedLock bool

	DispatchMode        string
	DispatchMaxAttempts int
	DispatchTimeout     time.Duration
	SmtpHost            string
	SmtpPort            int
	SmtpUsername        string
	SmtpPassword        string
	SmtpFromAddress     string

	PubSubTopic        string
	RedisEventsChannel string
	ArchiveBucket      string

	DefaultPhoneRegion string
	CORSAllowedOrigins []string

	RateLimitEnabled     bool
	RateLimitMaxRequests int64
	RateLimitWindow      time.Duration

	SkipMigrations      bool
	DeliveryConcurrency int
}

func init() {
	// Load env from .env
	godotenv.Load()
}

func LoadSettings() Settings {
	port := os.Getenv("API_PORT_2")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = "8080"
	}
	return Settings{
		Port:  port,
		GoEnv: strings.TrimSpace(os.Getenv("GO_ENV")),

		StoreBackend:   strings.ToLower(stringFromEnv("STORE_BACKEND", StoreBackendMemory)),
		CacheEnabled:   boolFromEnv("CACHE_ENABLED", false),
		PersistTimeout: durationFromEnv("PERSIST_TIMEOUT", 10*time.Second),

		TickInterval:    durationFromEnv("RECURRING_TICK_INTERVAL", time.Minute),
		WindowTolerance: durationFromEnv("RECURRING_WINDOW_TOLERANCE", time.Minute),
		CatchUpMissed:   boolFromEnv("RECURRING_CATCH_UP_MISSED", false),
		AutoSendEnabled: boolFromEnv("RECURRING_AUTO_SEND", true),
		DistributedLock: boolFromEnv("RECURRING_DISTRIBUTED_LOCK", false),

		DispatchMode:        strings.ToLower(stringFromEnv("DISPATCH_MODE", DispatchModeLog)),
		DispatchMaxAttempts: intFromEnv("DISPATCH_MAX_ATTEMPTS", 3),
		DispatchTimeout:     durationFromEnv("DISPATCH_TIMEOUT", 30*time.Second),
		SmtpHost:            os.Getenv("SMTP_HOST"),
		SmtpPort:            intFromEnv("SMTP_PORT", 587),
		SmtpUsername:        os.Getenv("SMTP_USERNAME"),
		SmtpPassword:        os.Getenv("SMTP_PASSWORD"),
		SmtpFromAddress:     stringFromEnv("SMTP_FROM_ADDRESS", "billing@localhost"),

		PubSubTopic:        strings.TrimSpace(os.Getenv("PUBSUB_TOPIC")),
		RedisEventsChannel: strings.TrimSpace(os.Getenv("REDIS_EVENTS_CHANNEL")),
		ArchiveBucket:      strings.TrimSpace(os.Getenv("GCS_BUCKET")),

		DefaultPhoneRegion: strings.ToUpper(stringFromEnv("DEFAULT_PHONE_REGION", "MM")),
		CORSAllowedOrigins: splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),

		RateLimitEnabled:     boolFromEnv("RATE_LIMIT_ENABLED", false),
		RateLimitMaxRequests: int64(intFromEnv("RATE_LIMIT_MAX_REQUESTS", 600)),
		RateLimitWindow:      durationFromEnv("RATE_LIMIT_WINDOW_SECONDS", time.Minute),

		SkipMigrations:      boolFromEnv("SKIP_MIGRATIONS", false),
		DeliveryConcurrency: intFromEnv("DELIVERY_CONCURRENCY", 5),
	}
}

func (s Settings) IsProduction() bool {
	return strings.EqualFold(s.GoEnv, "production")
}

func stringFromEnv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return def
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// durationFromEnv accepts Go durations ("90s") or plain seconds ("90").
func durationFromEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func splitCSV(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func backoff(attempt int) time.Duration {
	sleep := time.Second * time.Duration(1<<min(attempt, 5))
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	return sleep
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
