// Command expiry-worker periodically flips overdue ACTIVE join tokens to EXPIRED.
//
// Token validation flags stragglers on its own; the worker keeps the table
// honest for links nobody ever presents.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/televisit/carelink/internal/cache"
	"github.com/televisit/carelink/internal/config"
	"github.com/televisit/carelink/internal/migrate"
	"github.com/televisit/carelink/internal/repository/postgres"
	"github.com/televisit/carelink/internal/service"
	"github.com/televisit/carelink/internal/signing"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load", zap.Error(err))
	}
	logger.Info("expiry-worker starting",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.SweepInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.PostgresDSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connect", zap.Error(err))
	}
	defer db.Close()

	signer, err := loadSigner(cfg)
	if err != nil {
		logger.Fatal("signer init", zap.Error(err))
	}

	var codes cache.ShortCodeCache = cache.Noop{}
	if cfg.RedisURL != "" {
		codes, err = cache.NewRedisCache(cfg.RedisURL, "")
		if err != nil {
			logger.Fatal("redis connect", zap.Error(err))
		}
		defer codes.Close()
	}

	tokenSvc := service.NewTokenService(
		postgres.NewTokenRepo(db),
		postgres.NewAuditRepo(db),
		signer,
		codes,
		logger,
		service.TokenConfig{
			Issuer:     cfg.Issuer,
			Audience:   cfg.Audience,
			DefaultTTL: cfg.TokenTTL,
			Skew:       cfg.ClockSkew,
		},
	)

	runOnce(ctx, tokenSvc, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, tokenSvc, logger)
		}
	}
}

func loadSigner(cfg config.Config) (signing.Signer, error) {
	if cfg.SigningKeyPath != "" {
		return signing.LoadLocalSigner(cfg.SigningKeyPath)
	}
	return signing.NewEphemeralSigner()
}

func runOnce(ctx context.Context, svc *service.TokenService, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.ExpireDue(runCtx)
	if err != nil {
		logger.Error("sweep failed", zap.Error(err))
		return
	}
	logger.Info("sweep complete", zap.Int64("expired", n), zap.Duration("took", time.Since(start)))
}
