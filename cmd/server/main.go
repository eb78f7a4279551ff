// Package main is the entry point for the hostel listings server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hostel-listings/backend/internal/api"
	"github.com/hostel-listings/backend/internal/api/middleware"
	"github.com/hostel-listings/backend/internal/config"
	"github.com/hostel-listings/backend/internal/lifecycle"
	"github.com/hostel-listings/backend/internal/listing"
	"github.com/hostel-listings/backend/internal/sheets"
	"github.com/hostel-listings/backend/internal/storage"
	"github.com/hostel-listings/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	addr := flag.String("addr", "", "HTTP server address (overrides HOSTELS_ADDR)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Addr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}
	log.Printf("Starting hostel listings server (version: %s)...", version)

	// Initialize database
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory %q: %v", cfg.DataDir, err)
	}
	db, err := storage.NewDB(filepath.Join(cfg.DataDir, "hostels.db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	applied, err := storage.RunMigrations(db)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Printf("Database migrations complete (%d applied)", applied)

	rowStore, err := openRowStore(context.Background(), cfg, db)
	if err != nil {
		log.Fatalf("Failed to open %s row store: %v", cfg.StoreBackend, err)
	}

	hub := websocket.NewHub()
	go hub.Run()

	deletions := storage.NewDeletionLogRepository(db)
	adapter := listing.NewAdapter(rowStore, cfg.RemoteTimeout(), cfg.MediaBaseURL)
	listings := listing.NewService(adapter, deletions)

	controller := lifecycle.NewController(listings, hub, cfg.DeletionWindowSeconds)
	if err := controller.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start lifecycle controller: %v", err)
	}

	router := api.NewRouter(api.Services{
		DB:             db,
		StoreBackend:   cfg.StoreBackend,
		Hub:            hub,
		Listings:       listings,
		Lifecycle:      controller,
		Deletions:      deletions,
		Auth:           middleware.NewAuthenticator(cfg.AdminSecret, 12*time.Hour),
		Submissions:    middleware.NewRateLimiter(cfg.SubmissionsPerMinute),
		AllowedOrigins: cfg.AllowedOrigins(),
		StaticDir:      cfg.StaticDir,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RemoteTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	controller.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}
	hub.Stop()

	log.Println("Server stopped")
}

// headedStore is a row store that can write its own header row.
type headedStore interface {
	listing.RowStore
	EnsureHeader(ctx context.Context, header []string) error
}

// openRowStore returns the configured row store backend with its header
// row in place.
func openRowStore(ctx context.Context, cfg *config.Config, db *storage.DB) (listing.RowStore, error) {
	var store headedStore
	switch cfg.StoreBackend {
	case config.BackendSheets:
		client, err := sheets.NewClient(ctx, cfg.SpreadsheetID, cfg.SheetName, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		store = client
	default:
		log.Printf("Using local SQLite row store, sheet %q", cfg.SheetName)
		store = storage.NewSheetStore(db, cfg.SheetName)
	}

	if err := store.EnsureHeader(ctx, listing.Header); err != nil {
		return nil, err
	}
	return store, nil
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
