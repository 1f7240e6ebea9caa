package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"bursary/cmd/server/config"
	"bursary/internal/applications"
	applicationsdb "bursary/internal/db/applications"
	paymentsdb "bursary/internal/db/payments"
	"bursary/internal/notify"
	"bursary/internal/payments"
	"bursary/internal/ratelimit"
)

// buildStores wires the Postgres order and application stores when a DSN is
// configured, falling back to the in-memory implementations otherwise.
func buildStores(ctx context.Context, dsn string, logf func(format string, args ...any)) (payments.OrderStore, applications.Store, bool, func(), error) {
	cleanup := func() {}
	var orderStore payments.OrderStore = payments.NewInMemoryOrderStore()
	var appStore applications.Store = applications.NewInMemoryStore()

	if dsn == "" {
		logf("DATABASE_URL not set, using in-memory stores")
		return orderStore, appStore, false, cleanup, nil
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		logf("postgres open failed, falling back to in-memory stores: %v", err)
		return orderStore, appStore, false, cleanup, nil
	}

	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pgOrders, err := paymentsdb.NewOrderStoreWithSchema(setupCtx, sqlDB)
	if err != nil {
		logf("postgres init failed, falling back to in-memory stores: %v", err)
		_ = sqlDB.Close()
		return orderStore, appStore, false, cleanup, nil
	}
	pgApps, err := applicationsdb.NewStoreWithSchema(setupCtx, sqlDB)
	if err != nil {
		logf("postgres init failed, falling back to in-memory stores: %v", err)
		_ = sqlDB.Close()
		return orderStore, appStore, false, cleanup, nil
	}

	logf("postgres stores enabled")
	cleanup = func() {
		if err := sqlDB.Close(); err != nil {
			logf("close postgres: %v", err)
		}
	}
	return pgOrders, pgApps, true, cleanup, nil
}

// buildNotifier wires the SMTP confirmation mailer when mail is configured,
// falling back to the no-op notifier otherwise.
func buildNotifier(apps applications.Store) (payments.Notifier, bool, error) {
	cfg, ok, err := config.LoadSMTP()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return payments.NoopNotifier{}, false, nil
	}
	return notify.NewMailer(notify.MailerConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}, apps), true, nil
}

// buildLimiters wires the per-route rate limiters: Redis-backed fixed windows
// when Redis is configured so the limits hold across instances, in-process
// token buckets otherwise.
func buildLimiters(cfg config.HTTPConfig, logf func(format string, args ...any)) (ratelimit.Limiter, ratelimit.Limiter, func(), error) {
	redisCfg, ok, err := config.LoadRedis()
	if err != nil {
		return nil, nil, nil, err
	}

	if !ok {
		general := ratelimit.NewMemoryLimiter(refillInterval(cfg.RateLimitWindow, cfg.RateLimitMax), int(cfg.RateLimitMax))
		payment := ratelimit.NewMemoryLimiter(refillInterval(cfg.PaymentRateLimitWindow, cfg.PaymentRateLimitMax), int(cfg.PaymentRateLimitMax))
		return general, payment, func() {}, nil
	}

	opts, err := redis.ParseURL(redisCfg.URL)
	if err != nil {
		return nil, nil, nil, err
	}
	if redisCfg.DialTimeout != nil {
		opts.DialTimeout = *redisCfg.DialTimeout
	}
	if redisCfg.ReadTimeout != nil {
		opts.ReadTimeout = *redisCfg.ReadTimeout
	}
	if redisCfg.WriteTimeout != nil {
		opts.WriteTimeout = *redisCfg.WriteTimeout
	}
	if redisCfg.PoolSize != nil {
		opts.PoolSize = *redisCfg.PoolSize
	}

	client := redis.NewClient(opts)
	logf("redis rate limiting enabled")

	general := ratelimit.NewRedisLimiter(client, "rl:general", cfg.RateLimitWindow, cfg.RateLimitMax)
	payment := ratelimit.NewRedisLimiter(client, "rl:payment", cfg.PaymentRateLimitWindow, cfg.PaymentRateLimitMax)
	cleanup := func() {
		if err := client.Close(); err != nil {
			logf("close redis: %v", err)
		}
	}
	return general, payment, cleanup, nil
}

func refillInterval(window time.Duration, max int64) time.Duration {
	if max <= 0 {
		return 0
	}
	return window / time.Duration(max)
}
