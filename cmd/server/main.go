package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bursary/cmd/server/config"
	"bursary/internal/adapters/rest"
	"bursary/internal/applications"
	"bursary/internal/gateway"
	"bursary/internal/observability"
	"bursary/internal/payments"
	"bursary/internal/realtime"

	"github.com/joho/godotenv"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(ctx context.Context) error {
	if err := godotenv.Load(); err == nil {
		log.Println(".env loaded")
	}

	gwCfg, err := config.LoadGateway()
	if err != nil {
		return err
	}
	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}

	client, err := buildGatewayClient(gwCfg)
	if err != nil {
		return err
	}

	orderStore, appStore, dbConfigured, cleanupStores, err := buildStores(ctx, config.GetDatabaseURL(), log.Printf)
	if err != nil {
		return err
	}
	defer cleanupStores()

	notifier, mailConfigured, err := buildNotifier(appStore)
	if err != nil {
		return err
	}

	appService := applications.NewService(appStore, log.Printf)
	payService := payments.NewService(orderStore, client, notifier, payments.ServiceConfig{
		DuplicateWindow: deref(gwCfg.DuplicateWindow),
		OrderExpiry:     deref(gwCfg.OrderExpiry),
		CheckoutMessage: "Scholarship application fee",
		Logf:            log.Printf,
	})

	hub := realtime.NewHub(log.Printf)
	go hub.Run(ctx)

	general, payment, cleanupLimiters, err := buildLimiters(httpCfg, log.Printf)
	if err != nil {
		return err
	}
	defer cleanupLimiters()

	metrics := observability.NewMetrics()
	server := rest.NewServer(rest.Deps{
		Applications:   appService,
		Payments:       payService,
		Hub:            hub,
		GeneralLimiter: general,
		PaymentLimiter: payment,
		Metrics:        metrics,
	}, rest.Config{
		FeeAmountMinor:     gwCfg.FeeAmountMinor,
		AllowedOrigins:     httpCfg.AllowedOrigins,
		Logf:               log.Printf,
		DatabaseConfigured: dbConfigured,
		MailConfigured:     mailConfigured,
		GatewayEnv:         gwCfg.Env,
	})

	httpSrv := &http.Server{
		Addr:              httpCfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	obsSrv := startObservabilityServer(metrics)

	log.Printf("Server running on %s...", httpCfg.Addr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		metrics.MarkShutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		if obsSrv != nil {
			obsCtx, obsCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer obsCancel()
			_ = obsSrv.Shutdown(obsCtx)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func startObservabilityServer(metrics *observability.Metrics) *http.Server {
	cfg := config.LoadObservability()
	if cfg.Addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(metrics))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("observability server error: %v", err)
		}
	}()

	return srv
}

func buildGatewayClient(cfg config.GatewayConfig) (*gateway.Client, error) {
	endpoints, err := gateway.EndpointsFor(cfg.Env)
	if err != nil {
		return nil, err
	}
	if cfg.TokenURL != "" {
		endpoints.Token = cfg.TokenURL
	}
	if cfg.PayURL != "" {
		endpoints.Pay = cfg.PayURL
	}
	if cfg.StatusURL != "" {
		endpoints.Status = cfg.StatusURL
	}

	tokens := gateway.NewTokenSource(gateway.TokenConfig{
		Endpoint:      endpoints.Token,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		ClientVersion: cfg.ClientVersion,
		ExpiryMargin:  deref(cfg.TokenMargin),
	})

	return gateway.NewClient(gateway.Config{
		Endpoints:       endpoints,
		Timeout:         deref(cfg.Timeout),
		RedirectBaseURL: cfg.RedirectBaseURL,
	}, tokens), nil
}

func deref(d *time.Duration) time.Duration {
	if d == nil {
		return 0
	}
	return *d
}
