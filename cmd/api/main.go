package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"imagebatch/internal/adapter/repo"
	"imagebatch/internal/artifact"
	"imagebatch/internal/auth"
	"imagebatch/internal/bridge"
	"imagebatch/internal/catalog"
	"imagebatch/internal/db"
	"imagebatch/internal/dispatch"
	"imagebatch/internal/http/handlers"
	"imagebatch/internal/http/httpapi"
	"imagebatch/internal/infra"
	"imagebatch/internal/infra/geoip"
	"imagebatch/internal/orchestrator"
	"imagebatch/internal/registry"
	"imagebatch/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadAPIConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := infra.InitTracing(ctx, cfg, "imagebatch-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("api: tracing setup failed")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	if err := db.Migrate(ctx, runner, logger); err != nil {
		logger.Fatal().Err(err).Msg("api: migrations failed")
	}

	transformations := repo.NewTransformationRepository(runner)
	entries, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: load transformation catalog")
	}
	if _, err := catalog.Seed(ctx, transformations, entries, logger); err != nil {
		logger.Fatal().Err(err).Msg("api: seed transformation catalog")
	}

	regOpts := registry.Options{LivenessWindow: cfg.LivenessWindow, Logger: logger}
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		regOpts.Geo = geoip.NewCached(resolver)
	}
	nodes := registry.New(repo.NewNodeRepository(runner), regOpts)

	selector, err := dispatch.NewSelector(cfg.NodeSelector)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: node selector")
	}
	store, err := storage.NewArtifactStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: artifact storage")
	}

	results := repo.NewResultRepository(runner)
	batches := orchestrator.NewService(orchestrator.Repositories{
		Batches:         repo.NewBatchRepository(runner),
		Images:          repo.NewImageRepository(runner),
		Results:         results,
		Transformations: transformations,
	}, orchestrator.NewJournal(repo.NewLogRepository(runner), logger), logger)
	submitter := orchestrator.NewSubmitter(batches, nodes, selector, dispatch.NewHTTPNodeClient(cfg.DispatchTimeout), store, logger, orchestrator.SubmitterOptions{
		Concurrency:   cfg.DispatchConcurrency,
		Attempts:      cfg.DispatchAttempts,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	authn, err := auth.New(repo.NewUserRepository(runner), repo.NewSessionRepository(runner), auth.Options{
		Secret:     cfg.JWTSecret,
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: authenticator")
	}

	envelope := bridge.NewEndpoint(&bridge.Services{
		Auth:      authn,
		Batches:   batches,
		Submitter: submitter,
		Registry:  nodes,
	}, logger)

	app := &handlers.App{
		Batches:   batches,
		Submitter: submitter,
		Registry:  nodes,
		Artifacts: artifact.NewAssembler(results, store, logger),
		Logger:    logger,
		Ping:      pool.Ping,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Sessions:        authn,
		Envelope:        envelope,
	})
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		nodes.RunReaper(gctx, cfg.ReaperInterval)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Str("storage", cfg.StorageBackend).Msg("api: listening")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("api: stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("api: stopped")
}
