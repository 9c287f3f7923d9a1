package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Postgres.Host = %q, want localhost", cfg.Database.Postgres.Host)
	}
	if cfg.Custobar.PageLimit != 10000 {
		t.Errorf("Custobar.PageLimit = %d, want 10000", cfg.Custobar.PageLimit)
	}
	if cfg.Custobar.PageDelay != time.Second {
		t.Errorf("Custobar.PageDelay = %v, want 1s", cfg.Custobar.PageDelay)
	}
	if cfg.Metrics.LookbackDays != 3000 {
		t.Errorf("Metrics.LookbackDays = %d, want 3000", cfg.Metrics.LookbackDays)
	}
	if cfg.Worker.SyncInterval != 24*time.Hour {
		t.Errorf("Worker.SyncInterval = %v, want 24h", cfg.Worker.SyncInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_DB", "insights_test")
	t.Setenv("CUSTOBAR_PAGE_LIMIT", "500")
	t.Setenv("CUSTOBAR_PAGE_DELAY", "250ms")
	t.Setenv("METRICS_LOOKBACK_DAYS", "90")
	t.Setenv("WORKER_LOCK_TTL", "30m")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Postgres.Database != "insights_test" {
		t.Errorf("Postgres.Database = %q, want insights_test", cfg.Database.Postgres.Database)
	}
	if cfg.Custobar.PageLimit != 500 {
		t.Errorf("Custobar.PageLimit = %d, want 500", cfg.Custobar.PageLimit)
	}
	if cfg.Custobar.PageDelay != 250*time.Millisecond {
		t.Errorf("Custobar.PageDelay = %v, want 250ms", cfg.Custobar.PageDelay)
	}
	if cfg.Metrics.LookbackDays != 90 {
		t.Errorf("Metrics.LookbackDays = %d, want 90", cfg.Metrics.LookbackDays)
	}
	if cfg.Worker.LockTTL != 30*time.Minute {
		t.Errorf("Worker.LockTTL = %v, want 30m", cfg.Worker.LockTTL)
	}
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	t.Setenv("CUSTOBAR_PAGE_LIMIT", "not-a-number")
	t.Setenv("WORKER_SYNC_INTERVAL", "soon")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}

	if cfg.Custobar.PageLimit != 10000 {
		t.Errorf("Custobar.PageLimit = %d, want default 10000", cfg.Custobar.PageLimit)
	}
	if cfg.Worker.SyncInterval != 24*time.Hour {
		t.Errorf("Worker.SyncInterval = %v, want default 24h", cfg.Worker.SyncInterval)
	}
}

func TestLoadConfigRejectsNonPositiveLookback(t *testing.T) {
	t.Setenv("METRICS_LOOKBACK_DAYS", "-7")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for negative METRICS_LOOKBACK_DAYS")
	}
}

func TestLoadConfigRejectsNonPositivePageLimit(t *testing.T) {
	t.Setenv("CUSTOBAR_PAGE_LIMIT", "-1")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for negative CUSTOBAR_PAGE_LIMIT")
	}
}
