package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"imagebatch/internal/bridge"
	"imagebatch/internal/http/gateway"
	"imagebatch/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg := infra.LoadConfig()
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := infra.InitTracing(ctx, cfg, "imagebatch-gateway")
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway: tracing setup failed")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	client := bridge.NewClient(cfg.OrchestratorURL, cfg.BridgeTimeout, logger)
	opts := gateway.Options{
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	}
	server := infra.NewHTTPServer(cfg, gateway.NewRouter(gateway.New(client, opts), opts))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Str("orchestrator", cfg.OrchestratorURL).Msg("gateway: listening")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("gateway: stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("gateway: stopped")
}
