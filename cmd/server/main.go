package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nicktill/tinyquery/internal/config"
	"github.com/nicktill/tinyquery/internal/diskusage"
	"github.com/nicktill/tinyquery/internal/index"
	"github.com/nicktill/tinyquery/internal/ingest"
	"github.com/nicktill/tinyquery/internal/retention"
	"github.com/nicktill/tinyquery/internal/server"
	"github.com/nicktill/tinyquery/internal/storage/badgerstore"
)

func main() {
	log.Println("🚀 Starting TinyQuery Server...")

	cfg := config.Load()
	maxStorageBytes := cfg.MaxStorageGB * 1024 * 1024 * 1024
	log.Printf("⚙️  Configuration: storage limit = %d GB, memory limit = %d MB", cfg.MaxStorageGB, cfg.MaxMemoryMB)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("❌ Failed to create data directory: %v", err)
	}
	log.Printf("📁 Data directory: %s", cfg.DataDir)

	pages := index.NewPageCache()
	idx := index.NewIndex(pages)

	log.Println("💾 Initializing BadgerDB storage with Snappy compression...")
	store, err := badgerstore.New(badgerstore.Config{
		Path:        cfg.DataDir,
		MaxMemoryMB: cfg.MaxMemoryMB,
	}, idx)
	if err != nil {
		log.Fatalf("❌ Failed to initialize storage: %v", err)
	}
	defer store.Close()
	log.Println("✅ BadgerDB storage initialized successfully")

	ingestHandler := ingest.NewHandler(store, idx)

	hub := ingest.NewHub()
	ingestHandler.SetHub(hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	log.Println("📡 WebSocket hub started for ingest telemetry")

	retentionJob := retention.New(store, config.DefaultRetentionWindow, config.RetentionInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		retentionJob.Run(ctx)
	}()
	log.Printf("⚙️  Retention job started (window=%s, interval=%s)", config.DefaultRetentionWindow, config.RetentionInterval)

	diskMonitor := diskusage.NewMonitor(cfg.DataDir, maxStorageBytes, config.BadgerGCInterval)

	srv := server.New(store, idx, ingestHandler, hub, retentionJob, diskMonitor)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	go func() {
		log.Printf("🌐 Server starting on http://localhost:%s", cfg.Port)
		log.Println("📊 API endpoints:")
		log.Println("  POST /v1/ingest          - ingest a sample")
		log.Println("  POST /v1/query/execute   - range/instant query with explicit bounds")
		log.Println("  GET  /v1/query/instant   - prometheus-style instant query")
		log.Println("  GET  /v1/query_range     - prometheus-style range query")
		log.Println("  GET  /v1/label_values    - label value enumeration")
		log.Println("  GET  /v1/cardinality     - cardinality stats")
		log.Println("  GET  /v1/storage         - disk usage stats")
		log.Println("  GET  /v1/health          - health check")
		log.Println("  GET  /v1/ws              - live ingest telemetry")
		log.Println("✅ Server ready to accept requests")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutdown signal received...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()

	log.Println("⏳ Gracefully shutting down server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server shutdown warning: %v", err)
	}

	log.Println("⏳ Waiting for background tasks to complete...")
	wg.Wait()
	log.Println("✅ Shutdown complete")
}
