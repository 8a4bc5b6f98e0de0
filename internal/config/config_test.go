package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_STATEMENT_TIMEOUT_MS", "")
	t.Setenv("REDIS_POOL_SIZE", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg := Load()

	if cfg.DBStatementTimeout != 5*time.Second {
		t.Errorf("DBStatementTimeout = %v, want 5s", cfg.DBStatementTimeout)
	}
	if cfg.RedisPoolSize != 0 {
		t.Errorf("RedisPoolSize = %d, want 0 (driver default)", cfg.RedisPoolSize)
	}
	if cfg.AllowedOrigins != nil {
		t.Errorf("AllowedOrigins = %v, want nil (allow-all)", cfg.AllowedOrigins)
	}
}

func TestLoadReadsEngineKnobs(t *testing.T) {
	t.Setenv("DB_STATEMENT_TIMEOUT_MS", "250")
	t.Setenv("REDIS_POOL_SIZE", "32")
	t.Setenv("SWEEP_INTERVAL_SECONDS", "5")
	t.Setenv("ALLOWED_ORIGINS", "https://exam.school.test, https://admin.school.test")

	cfg := Load()

	if cfg.DBStatementTimeout != 250*time.Millisecond {
		t.Errorf("DBStatementTimeout = %v, want 250ms", cfg.DBStatementTimeout)
	}
	if cfg.RedisPoolSize != 32 {
		t.Errorf("RedisPoolSize = %d, want 32", cfg.RedisPoolSize)
	}
	if cfg.SweepInterval != 5*time.Second {
		t.Errorf("SweepInterval = %v, want 5s", cfg.SweepInterval)
	}
	want := []string{"https://exam.school.test", "https://admin.school.test"}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != want[0] || cfg.AllowedOrigins[1] != want[1] {
		t.Errorf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, want)
	}
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("MAX_VIOLATION_COUNT", "not-a-number")

	cfg := Load()
	if cfg.MaxViolationCount != 10 {
		t.Errorf("MaxViolationCount = %d, want fallback 10", cfg.MaxViolationCount)
	}
}
