// The janitor runs the periodic maintenance the core never blocks on:
// purging wearable samples past the retention window and refreshing the
// weekly training summary view.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/irsyadputra-jpg/shuttletrack/internal/config"
	persistence "github.com/irsyadputra-jpg/shuttletrack/internal/persistence/postgres"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		log.Printf("janitor metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	purgeTicker := time.NewTicker(cfg.PurgeInterval)
	defer purgeTicker.Stop()
	refreshTicker := time.NewTicker(cfg.RefreshInterval)
	defer refreshTicker.Stop()

	log.Printf("janitor started (retention=%dd, purge every %s, refresh every %s)",
		cfg.WearableRetentionDays, cfg.PurgeInterval, cfg.RefreshInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-purgeTicker.C:
			purged, err := repo.PurgeWearableSamples(ctx, cfg.WearableRetentionDays, cfg.PurgeBatchSize)
			if err != nil {
				log.Printf("wearable purge error: %v", err)
			} else if purged > 0 {
				log.Printf("purged %d wearable samples", purged)
			}
		case <-refreshTicker.C:
			if err := repo.RefreshWeeklySummary(ctx); err != nil {
				log.Printf("weekly summary refresh error: %v", err)
			}
		case <-stop:
			log.Println("janitor shutdown requested")
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				log.Printf("metrics server shutdown error: %v", err)
			}
			return
		}
	}
}
