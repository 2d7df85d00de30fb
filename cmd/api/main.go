package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"assetblock.org/internal/config"
	"assetblock.org/internal/httpapi"
	"assetblock.org/internal/obs"
	"assetblock.org/internal/registry"
	"assetblock.org/internal/store/pg"
	"assetblock.org/internal/stream"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Postgres when a DSN is configured, in-memory otherwise. The
	// in-memory registry is for local development and demos only.
	var (
		svc registry.Service
		db  *sql.DB
	)
	if cfg.PGDSN != "" {
		store, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		svc = store
		db = store.DB()
	} else {
		log.Println("ASSETBLOCK_PG_DSN not set, using in-memory registry")
		svc = registry.NewInMemory()
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc, stream.New(), httpapi.Options{
		RateBurst:      cfg.RateBurst,
		RatePerSec:     cfg.RatePerSec,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TokenTTL:       cfg.TokenTTL,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // /v1/stream holds long-lived SSE responses
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting assetblock-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
