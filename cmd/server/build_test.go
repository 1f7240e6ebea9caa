package main

import (
	"context"
	"testing"
	"time"

	"bursary/cmd/server/config"
	"bursary/internal/payments"
	"bursary/internal/ratelimit"
)

func loadTestHTTPConfig(t *testing.T) (config.HTTPConfig, error) {
	t.Helper()
	t.Setenv("HTTP_ADDR", ":0")
	return config.LoadHTTP()
}

func TestBuildStores_NoDSNFallsBackToMemory(t *testing.T) {
	orderStore, appStore, dbConfigured, cleanup, err := buildStores(context.Background(), "", func(format string, args ...any) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if dbConfigured {
		t.Fatalf("expected in-memory fallback")
	}
	if _, ok := orderStore.(*payments.InMemoryOrderStore); !ok {
		t.Fatalf("expected in-memory order store, got %T", orderStore)
	}
	if appStore == nil {
		t.Fatalf("expected application store")
	}
}

func TestBuildNotifier_NoSMTPIsNoop(t *testing.T) {
	t.Setenv("SMTP_HOST", "")

	notifier, configured, err := buildNotifier(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if configured {
		t.Fatalf("expected mail unconfigured")
	}
	if _, ok := notifier.(payments.NoopNotifier); !ok {
		t.Fatalf("expected noop notifier, got %T", notifier)
	}
}

func TestBuildLimiters_NoRedisUsesMemory(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	httpCfg, err := loadTestHTTPConfig(t)
	if err != nil {
		t.Fatalf("load http config: %v", err)
	}

	general, payment, cleanup, err := buildLimiters(httpCfg, func(format string, args ...any) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if _, ok := general.(*ratelimit.MemoryLimiter); !ok {
		t.Fatalf("expected memory limiter, got %T", general)
	}
	if _, ok := payment.(*ratelimit.MemoryLimiter); !ok {
		t.Fatalf("expected memory limiter, got %T", payment)
	}
}

func TestBuildLimiters_BadRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "://bad")

	httpCfg, err := loadTestHTTPConfig(t)
	if err != nil {
		t.Fatalf("load http config: %v", err)
	}

	if _, _, _, err := buildLimiters(httpCfg, func(format string, args ...any) {}); err == nil {
		t.Fatalf("expected error for bad redis url")
	}
}

func TestRefillInterval(t *testing.T) {
	if got := refillInterval(time.Minute, 60); got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
	if got := refillInterval(time.Minute, 0); got != 0 {
		t.Fatalf("expected 0 for disabled limiter, got %v", got)
	}
}
