package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/avitale/postura/internal/config"
	"github.com/avitale/postura/internal/httpapi"
	"github.com/avitale/postura/internal/observability"
	"github.com/avitale/postura/internal/recorder"
	"github.com/avitale/postura/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	frameStore, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer frameStore.Close()

	storeMode := "in-memory"
	if cfg.DatabaseURL != "" {
		storeMode = "postgres"
	}
	log.Printf("frame store: %s", storeMode)

	rec := recorder.New(frameStore, metrics, recorder.Config{
		BatchSize:            cfg.BatchSize,
		MaxConcurrentUploads: int64(cfg.MaxConcurrentUploads),
		UploadTimeout:        cfg.UploadTimeout,
	})

	api := httpapi.New(cfg, rec, metrics, storeMode)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Persist and finalize any in-flight session before the listener
	// goes away, so a camera session is never left dangling active.
	if err := rec.Shutdown(shutdownCtx); err != nil {
		log.Printf("session shutdown failed: %v", err)
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
