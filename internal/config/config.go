// Package config provides environment-aware configuration for the kernel.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment selects environment-specific defaults.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds every tunable named in spec.md plus ambient server settings.
type Config struct {
	Env Environment

	// HTTP server
	ListenAddr string
	APITokens  []string

	// Logging
	LogLevel  string
	LogFormat string

	// Process manager
	MaxConcurrent  int
	MaxProcesses   int
	MailboxCap     int
	ReapDelay      time.Duration
	ShutdownGrace  time.Duration

	// Resource governor defaults
	DefaultMaxTokensPerSession int64
	DefaultMaxTokensPerDay     int64
	DefaultMaxSteps            int
	DefaultMaxWallClockMs      int64
	RunawayThresholdPct        float64

	// Subprocess supervisor
	SubprocessBufferCap int

	// Scheduler
	CronTickInterval time.Duration

	// Webhook engine
	WebhookRetryBase    time.Duration
	WebhookRetryMax     time.Duration
	WebhookTimeout      time.Duration
	WebhookLogBodyCap   int

	// Audit log
	AuditRetention time.Duration

	// WS fan-out
	WSFlushInterval    time.Duration
	WSBatchMaxSize     int
	WSMaxQueuedEvents  int
	WSMaxBufferBytes   int

	// VFS
	VFSRoot     string
	VFSReadOnly bool
}

// Load reads configuration from the environment, applying spec.md defaults.
func Load() *Config {
	env := Environment(getEnv("AETHER_ENV", string(Development)))

	return &Config{
		Env: env,

		ListenAddr: getEnv("AETHER_LISTEN_ADDR", ":8080"),
		APITokens:  splitCSV(getEnv("AETHER_API_TOKENS", "")),

		LogLevel:  getEnv("AETHER_LOG_LEVEL", "info"),
		LogFormat: getEnv("AETHER_LOG_FORMAT", "text"),

		MaxConcurrent: getIntEnv("AETHER_MAX_CONCURRENT", 10),
		MaxProcesses:  getIntEnv("AETHER_MAX_PROCESSES", 4096),
		MailboxCap:    getIntEnv("AETHER_MAILBOX_CAP", 256),
		ReapDelay:     getDurationEnv("AETHER_REAP_DELAY", 1500*time.Millisecond),
		ShutdownGrace: getDurationEnv("AETHER_SHUTDOWN_GRACE", 5*time.Second),

		DefaultMaxTokensPerSession: int64(getIntEnv("AETHER_DEFAULT_MAX_TOKENS_SESSION", 500000)),
		DefaultMaxTokensPerDay:     int64(getIntEnv("AETHER_DEFAULT_MAX_TOKENS_DAY", 2000000)),
		DefaultMaxSteps:            getIntEnv("AETHER_DEFAULT_MAX_STEPS", 200),
		DefaultMaxWallClockMs:      int64(getIntEnv("AETHER_DEFAULT_MAX_WALLCLOCK_MS", 3600000)),
		RunawayThresholdPct:        0.20,

		SubprocessBufferCap: getIntEnv("AETHER_SUBPROCESS_BUFFER_CAP", 100000),

		CronTickInterval: getDurationEnv("AETHER_CRON_TICK_INTERVAL", 30*time.Second),

		WebhookRetryBase:  getDurationEnv("AETHER_WEBHOOK_RETRY_BASE", 1*time.Second),
		WebhookRetryMax:   getDurationEnv("AETHER_WEBHOOK_RETRY_MAX", 16*time.Second),
		WebhookTimeout:    getDurationEnv("AETHER_WEBHOOK_TIMEOUT", 10*time.Second),
		WebhookLogBodyCap: 4096,

		AuditRetention: getDurationEnv("AETHER_AUDIT_RETENTION", 30*24*time.Hour),

		WSFlushInterval:   getDurationEnv("AETHER_WS_FLUSH_INTERVAL", 50*time.Millisecond),
		WSBatchMaxSize:    getIntEnv("AETHER_WS_BATCH_MAX", 20),
		WSMaxQueuedEvents: getIntEnv("AETHER_WS_MAX_QUEUED", 500),
		WSMaxBufferBytes:  getIntEnv("AETHER_WS_MAX_BUFFER_BYTES", 1<<20),

		VFSRoot:     getEnv("AETHER_VFS_ROOT", "./data/vfs"),
		VFSReadOnly: getBoolEnv("AETHER_VFS_READONLY", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
