package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prediction-ledger-api/config"
	"prediction-ledger-api/handlers"
	"prediction-ledger-api/ledger"
	"prediction-ledger-api/logging"
	"prediction-ledger-api/schema"
	"prediction-ledger-api/scoring"
	"prediction-ledger-api/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := schema.Load(cfg.Model.SchemaPath)
	if err != nil {
		return err
	}
	model, err := scoring.Load(cfg.Model.ArtifactPath)
	if err != nil {
		return err
	}
	if err := model.Validate(s); err != nil {
		return err
	}
	log.Info("model loaded",
		zap.String("model_version", model.Version),
		zap.String("schema_version", s.Version),
		zap.Int("columns", len(s.Columns)),
	)

	db, err := ledger.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	l := ledger.New(db,
		ledger.WithLogger(log.Named("ledger")),
		ledger.WithOutcomeOverwrite(cfg.Ledger.AllowOutcomeOverwrite),
	)
	if err := l.Migrate(ctx); err != nil {
		return err
	}

	cache, err := services.NewCacheService(cfg.Redis, log)
	if err != nil {
		log.Warn("redis unavailable, caching and live feed disabled", zap.Error(err))
	}
	defer cache.Close()

	var auth *services.AuthService
	if cfg.JWT.Enabled() {
		auth = services.NewAuthService(cfg.JWT)
	} else {
		log.Warn("JWT_SECRET not set, read routes are open")
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.RouterDeps{
		DB:           db,
		Predictions:  services.NewPredictionService(s, model, l, cache, log.Named("predictions"),
			services.WithOutcomeOverwrite(cfg.Ledger.AllowOutcomeOverwrite),
		),
		Cache:        cache,
		Auth:         auth,
		CORS:         cfg.CORS,
		ModelVersion: model.Version,
		Log:          log.Named("http"),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
