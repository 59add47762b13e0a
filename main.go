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

	"go.uber.org/zap"

	apihttp "fleet-risk-engine/internal/api/http"
	"fleet-risk-engine/internal/app"
	"fleet-risk-engine/internal/auth"
	"fleet-risk-engine/internal/platform/config"
	"fleet-risk-engine/internal/platform/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.New("fleet-risk-engine", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.BuildContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("engine wiring error", zap.Error(err))
	}
	defer container.Close()

	fleetHandler, err := apihttp.NewFleetHandler(container.Store, container.Health, container.Risk, container.Audit, logger)
	if err != nil {
		logger.Fatal("fleet handler error", zap.Error(err))
	}
	schedulingHandler, err := apihttp.NewSchedulingHandler(container.Scheduling, container.Store, container.Audit, logger)
	if err != nil {
		logger.Fatal("scheduling handler error", zap.Error(err))
	}
	qualityHandler, err := apihttp.NewQualityHandler(container.Quality, container.Store, container.Audit, logger)
	if err != nil {
		logger.Fatal("quality handler error", zap.Error(err))
	}
	assistantHandler, err := apihttp.NewAssistantHandler(container.Assistant, logger)
	if err != nil {
		logger.Fatal("assistant handler error", zap.Error(err))
	}

	var authMiddleware *auth.Middleware
	if cfg.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		authMiddleware = auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	} else {
		logger.Warn("AUTH_JWT_SECRET not set; api is unauthenticated")
	}

	if cfg.Scheduler.SweepInterval > 0 {
		go runSweeps(ctx, container, cfg.Scheduler.SweepInterval)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apihttp.NewRouter(authMiddleware, logger, fleetHandler, schedulingHandler, qualityHandler, assistantHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server error", zap.Error(err))
	}
}

func runSweeps(ctx context.Context, container *app.Container, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := container.Scheduling.AutoScheduleSweep(ctx); err != nil {
				container.Logger.Error("scheduled sweep failed", zap.Error(err))
			}
		}
	}
}
