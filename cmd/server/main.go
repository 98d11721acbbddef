package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sublatesublate-design/legal-database/app"
	"github.com/sublatesublate-design/legal-database/config"
	"github.com/sublatesublate-design/legal-database/handlers"
	"github.com/sublatesublate-design/legal-database/logger"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load .env file from project root (relative to cmd/server/)
	envFound := config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Level: "info"}).Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.New(cfg.Log)
	if !envFound {
		log.Warn().Msg("No .env file found, using environment variables")
	}
	if !cfg.Log.Pretty {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	router := handlers.NewRouter(handlers.Routes{
		Laws:    handlers.NewLawHandler(a.Laws),
		Tools:   handlers.NewToolHandler(a.Laws, a.Ingest),
		Ingest:  handlers.NewIngestHandler(a.Ingest),
		Metrics: a.Metrics.Handler(),
		Log:     log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.LogServerStart(cfg.Port, a.StoreName())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.LogServerShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
