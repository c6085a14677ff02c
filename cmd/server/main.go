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

	"github.com/aurumlab/gsr-backend/internal/api"
	"github.com/aurumlab/gsr-backend/internal/config"
	"github.com/aurumlab/gsr-backend/internal/db"
	"github.com/aurumlab/gsr-backend/internal/external"
	"github.com/aurumlab/gsr-backend/internal/history"
	"github.com/aurumlab/gsr-backend/internal/notifications"
	"github.com/aurumlab/gsr-backend/internal/repository"
	"github.com/aurumlab/gsr-backend/internal/scheduler"
	"github.com/aurumlab/gsr-backend/internal/series"
)

const banner = `
╔══════════════════════════════════════╗
║        AURUM GSR Backend v0.1        ║
║    gold/silver history & strategy    ║
╚══════════════════════════════════════╝
`

// seriesStore is what both storage backends provide: the keyed blob
// contract for the cache plus health-check plumbing for the API.
type seriesStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, payload []byte) error
	Name() string
	Ping(ctx context.Context) error
}

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	// Storage backend
	var store seriesStore
	if cfg.UsePostgres() {
		fmt.Printf("\n[DB] Connecting to %s:%d/%s ...\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
		pool, err := db.Connect(cfg.DSN())
		if err != nil {
			fmt.Fprintf(os.Stderr, "[DB] Connection failed: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			pool.Close()
			fmt.Println("[DB] Connection pool closed")
		}()

		if err := db.TestConnection(pool); err != nil {
			fmt.Fprintf(os.Stderr, "[DB] Test query failed: %v\n", err)
			os.Exit(1)
		}

		pg, err := repository.NewPostgresStore(context.Background(), pool)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[DB] Store setup failed: %v\n", err)
			os.Exit(1)
		}
		store = pg
	} else {
		fmt.Printf("\n[DB] Opening local store %s ...\n", cfg.SQLitePath)
		sq, err := repository.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[DB] Open failed: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			sq.Close()
			fmt.Println("[DB] Local store closed")
		}()
		store = sq
	}

	// Price sources, in precedence order: seed file first, remote API last.
	var sources []history.Source
	if cfg.SeedSource != "" {
		sources = append(sources, history.Source{
			Provider:       external.NewSeedSource(cfg.SeedSource),
			OncePerSession: true,
		})
		fmt.Printf("[FETCH] Seed source: %s\n", cfg.SeedSource)
	}

	var throttle *external.Throttle
	if cfg.MetalsAPIKey != "" {
		metals := external.NewMetalsClient(cfg.MetalsAPIKey, external.MetalsOptions{
			BaseURL: cfg.MetalsBaseURL,
		})
		// The assembler paces chunked fetches with the same throttle the
		// client feeds its backoff observations into.
		throttle = metals.Throttle()
		sources = append(sources, history.Source{Provider: metals})
	} else {
		fmt.Println("[FETCH] No METALS_API_KEY configured, missing dates will stay missing")
	}

	asm := history.NewAssembler(series.NewCache(store), throttle, sources)

	// Notifications
	notify := notifications.NewSender(cfg.WebhookURL, cfg.BotName)

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. API server
	srv := api.NewServer(asm, store, cfg.APIPort, cfg.APIKey, cfg.CORSAllowOrigin)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "[API] Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	// 2. Daily refresh scheduler
	var refresher *scheduler.RefreshScheduler
	if cfg.RefreshEnabled {
		var watchUp, watchDown *float64
		if cfg.WatchUpThreshold > 0 {
			watchUp = &cfg.WatchUpThreshold
		}
		if cfg.WatchDownThreshold > 0 {
			watchDown = &cfg.WatchDownThreshold
		}
		refresher = scheduler.NewRefreshScheduler(asm, notify, scheduler.RefreshConfig{
			CronSpec:     cfg.RefreshCron,
			LookbackDays: cfg.RefreshLookbackDays,
			WatchUp:      watchUp,
			WatchDown:    watchDown,
		})
		if err := refresher.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "[REFRESH] Start failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println("[REFRESH] Skipped - disabled by config")
	}

	fmt.Println("\nAll services started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")

	if refresher != nil {
		refresher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "[API] Shutdown error: %v\n", err)
	}
	fmt.Println("[API] Server closed")
	fmt.Println("Shutdown complete")
}
