// The worker drives streak recalculation. It reacts to new-session
// notifications as they arrive and periodically reconciles users whose
// snapshot fell behind, since the notification channel is best effort.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/irsyadputra-jpg/shuttletrack/internal/bridge"
	"github.com/irsyadputra-jpg/shuttletrack/internal/config"
	"github.com/irsyadputra-jpg/shuttletrack/internal/domain"
	"github.com/irsyadputra-jpg/shuttletrack/internal/notify"
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
	service := domain.NewService(repo)

	producer := bridge.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	broker := notify.NewBroker()
	listener := notify.NewListener(pool, broker)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		log.Printf("worker metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("listener stopped with error: %v", err)
		}
	}()

	signals, unsubscribe := broker.Subscribe(64)
	defer unsubscribe()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for userID := range signals {
			refreshUser(ctx, cfg, service, producer, userID)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reconcile(ctx, cfg, repo, service, producer)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("worker shutdown requested")

	cancel()
	unsubscribe()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	wg.Wait()
}

func refreshUser(ctx context.Context, cfg config.Config, service *domain.Service, producer *bridge.Producer, userID string) {
	snapshot, err := service.RecalcStreak(ctx, userID)
	if err != nil {
		log.Printf("recalc failed for user %s: %v", userID, err)
		return
	}

	if err := producer.PublishSessionRecorded(ctx, cfg.BridgeTopic, userID); err != nil {
		log.Printf("bridge publish failed for user %s: %v", userID, err)
		return
	}
	log.Printf("streak refreshed for user %s (current=%d, longest=%d)", userID, snapshot.CurrentStreak, snapshot.LongestStreak)
}

// reconcile recalculates users the notification channel may have missed.
func reconcile(ctx context.Context, cfg config.Config, repo *persistence.Repository, service *domain.Service, producer *bridge.Producer) {
	users, err := repo.StaleStreakUsers(ctx, cfg.ReconcileBatch)
	if err != nil {
		log.Printf("reconciliation scan failed: %v", err)
		return
	}

	for _, userID := range users {
		refreshUser(ctx, cfg, service, producer, userID)
	}
	if len(users) > 0 {
		log.Printf("reconciled %d stale streaks", len(users))
	}
}
