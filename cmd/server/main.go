// Package main is the entry point for the pestctl API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pestctl/internal/app"
	"pestctl/internal/config"
	"pestctl/internal/domain/auth"
	"pestctl/internal/infrastructure/cache"
	v1 "pestctl/internal/infrastructure/http/v1"
	"pestctl/internal/infrastructure/storage/postgres"
	"pestctl/internal/infrastructure/storage/postgres/catalog_repo"
	"pestctl/internal/infrastructure/storage/postgres/document_repo"
	"pestctl/internal/infrastructure/storage/postgres/register_repo"
	"pestctl/pkg/logger"
	"pestctl/pkg/numerator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Fatalw("server failed", "error", err)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting pestctl server", "env", cfg.AppEnv)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Item cache ---
	items := catalog_repo.NewItemRepo(txManager)
	itemCache := cache.NewItemCache(items, pool.Pool)
	if err := itemCache.Start(ctx); err != nil {
		return fmt.Errorf("start item cache: %w", err)
	}
	defer itemCache.Stop()

	// --- Audit ---
	auditor, err := postgres.NewAuditService(txManager)
	if err != nil {
		return fmt.Errorf("create audit service: %w", err)
	}
	defer auditor.Close()

	// --- Domain ---
	engine := app.NewEngine(app.Deps{
		Items:      items,
		ItemReader: itemCache,
		Batches:    register_repo.NewBatchRepo(txManager),
		Ledger:     register_repo.NewLedgerRepo(txManager),
		Movements:  document_repo.NewMovementRepo(txManager),
		Approvals:  document_repo.NewApprovalRepo(txManager),
		Directory:  catalog_repo.NewDirectoryRepo(txManager),
		Numerator: numerator.NewWithResolver(func(ctx context.Context) numerator.Querier {
			return txManager.GetQuerier(ctx)
		}),
		Publisher: postgres.NewOutboxPublisher(txManager),
		Auditor:   auditor,
		TxManager: txManager,
	})

	// --- JWT ---
	jwtConfig := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtConfig.Issuer = cfg.JWTIssuer
	jwtConfig.AccessTokenTTL = cfg.JWTTTL
	jwtService := auth.NewJWTService(jwtConfig)

	// --- Router ---
	routerCfg := v1.RouterConfig{
		Engine:       engine,
		Health:       pool,
		Logger:       log,
		JWTValidator: jwtService,
		Production:   cfg.IsProduction(),
	}
	if cfg.IdempotencyEnabled {
		routerCfg.Idempotency = postgres.NewIdempotencyStore(txManager, 24*time.Hour)
	}
	router := v1.NewRouter(routerCfg)

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("server starting", "port", cfg.AppPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				pool.LogStats(gctx)
				stats := itemCache.GetStats()
				log.Infow("item cache stats", "items", stats.Items, "hits", stats.Hits, "misses", stats.Misses)
			}
		}
	})

	return g.Wait()
}
