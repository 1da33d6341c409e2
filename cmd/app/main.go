// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backlify-payments/internal/config"
	pg "backlify-payments/internal/infra/db/postgres"
	"backlify-payments/internal/infra/api"
	"backlify-payments/internal/infra/logging"
	"backlify-payments/internal/infra/metrics"
	"backlify-payments/internal/infra/payment"
	red "backlify-payments/internal/infra/redis"
	"backlify-payments/internal/infra/sched"
	"backlify-payments/internal/infra/security"
	"backlify-payments/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, int32(cfg.Database.MaxConns))
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	orderRepo := pg.NewOrderRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	userRepo := pg.NewUserRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Gateway ----
	gateway, err := payment.NewEpointGateway(cfg.Gateway.PublicKey, cfg.Gateway.PrivateKey, cfg.Gateway.APIBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("payment gateway")
	}
	logger.Info().Str("gateway", gateway.Name()).Str("key", logging.Redact(cfg.Gateway.PublicKey, cfg.Runtime.Dev)).Msg("gateway configured")

	// ---- Use cases ----
	ledger := usecase.NewOrderUseCase(orderRepo, logger)
	activation := usecase.NewActivationUseCase(ledger, subRepo, userRepo, tm, locker, cfg.PlanPeriod, logger)

	// ---- HTTP ----
	metrics.MustRegister()
	tokens := security.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	server := api.NewServer(cfg, gateway, ledger, activation, tokens, logger)

	// ---- Workers ----
	expiry := sched.NewExpiryWorker(cfg.Scheduler.ExpiryInterval, subRepo, logger)
	reconciler := sched.NewOrderReconciler(ledger, orderRepo, cfg.Scheduler.ReconcileInterval, cfg.Scheduler.PendingOrderTTL, logger)
	go func() { _ = expiry.Run(ctx) }()
	go func() { _ = reconciler.Run(ctx) }()

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
