//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/irsyadputra-jpg/shuttletrack/internal/audit"
	"github.com/irsyadputra-jpg/shuttletrack/internal/domain"
	"github.com/irsyadputra-jpg/shuttletrack/internal/notify"
)

func startDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("training"),
		postgrescontainer.WithUsername("shuttle"),
		postgrescontainer.WithPassword("shuttle"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))
	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func createUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool) string {
	t.Helper()
	userID := uuid.NewString()
	_, err := pool.Exec(ctx,
		`INSERT INTO users (user_id, email, display_name) VALUES ($1, $2, $3)`,
		userID, userID+"@example.com", "Integration Tester")
	require.NoError(t, err)
	return userID
}

func newSession(userID string, date time.Time) domain.Session {
	now := time.Now().UTC()
	return domain.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		SessionDate: date,
		SessionType: "drill",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestSessionInsertWritesAuditAndNotifies(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)
	userID := createUser(t, ctx, pool)

	broker := notify.NewBroker()
	listener := notify.NewListener(pool, broker)
	listenerCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()
	go listener.Run(listenerCtx)

	signals, unsubscribe := broker.Subscribe(4)
	defer unsubscribe()

	// Give the listener time to attach before the insert commits.
	time.Sleep(500 * time.Millisecond)

	session := newSession(userID, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.CreateSession(ctx, session, nil))

	select {
	case got := <-signals:
		require.Equal(t, userID, got)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a new-session signal")
	}

	entries, err := repo.Trail(ctx, "sessions", session.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, audit.ActionInsert, entries[0].Action)
	require.Nil(t, entries[0].ChangedBy)
	require.JSONEq(t, mustJSON(t, session), string(entries[0].Payload))
}

func TestDeleteSessionCapturesBeforeImage(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)
	userID := createUser(t, ctx, pool)

	session := newSession(userID, time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.CreateSession(ctx, session, nil))

	actor := userID
	require.NoError(t, repo.DeleteSession(ctx, session.ID, &actor))

	entries, err := repo.Trail(ctx, "sessions", session.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, audit.ActionInsert, entries[0].Action)
	require.Equal(t, audit.ActionDelete, entries[1].Action)
	require.Less(t, entries[0].ID, entries[1].ID)
	require.Equal(t, &actor, entries[1].ChangedBy)

	dates, err := repo.DistinctSessionDates(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, dates)
}

func TestDuplicateHydrationLogRejected(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)
	userID := createUser(t, ctx, pool)

	logDate := time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC)
	first := domain.HydrationLog{ID: uuid.NewString(), UserID: userID, LogDate: logDate, VolumeML: 1500}
	require.NoError(t, repo.CreateHydrationLog(ctx, first, nil))

	duplicate := domain.HydrationLog{ID: uuid.NewString(), UserID: userID, LogDate: logDate, VolumeML: 9000}
	err := repo.CreateHydrationLog(ctx, duplicate, nil)
	require.ErrorIs(t, err, domain.ErrConstraintViolation)

	// The original row is untouched and no orphan audit entry exists for
	// the rejected write.
	var volume int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT volume_ml FROM hydration_logs WHERE user_id=$1 AND log_date=$2`,
		userID, logDate).Scan(&volume))
	require.Equal(t, 1500, volume)

	entries, err := repo.Trail(ctx, "hydration_logs", duplicate.ID)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestUpsertStreakMergeIsMonotonic(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)
	userID := createUser(t, ctx, pool)

	long := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	merged, err := repo.UpsertStreak(ctx, domain.StreakSnapshot{
		UserID: userID, CurrentStreak: 5, LongestStreak: 5, LastActiveDate: &long, UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, 5, merged.LongestStreak)

	short := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	merged, err = repo.UpsertStreak(ctx, domain.StreakSnapshot{
		UserID: userID, CurrentStreak: 1, LongestStreak: 1, LastActiveDate: &short, UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, merged.CurrentStreak)
	require.Equal(t, 5, merged.LongestStreak)
	require.Equal(t, short, merged.LastActiveDate.UTC())
}

func TestRecalcFlowIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)
	service := domain.NewService(repo)
	userID := createUser(t, ctx, pool)

	for _, d := range []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	} {
		require.NoError(t, repo.CreateSession(ctx, newSession(userID, d), nil))
	}

	first, err := service.RecalcStreak(ctx, userID)
	require.NoError(t, err)
	second, err := service.RecalcStreak(ctx, userID)
	require.NoError(t, err)

	require.Equal(t, 1, first.CurrentStreak)
	require.Equal(t, first.CurrentStreak, second.CurrentStreak)
	require.Equal(t, first.LongestStreak, second.LongestStreak)
	require.Equal(t, first.LastActiveDate.UTC(), second.LastActiveDate.UTC())
}

func TestStaleStreakUsers(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)
	service := domain.NewService(repo)

	stale := createUser(t, ctx, pool)
	fresh := createUser(t, ctx, pool)

	date := time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateSession(ctx, newSession(stale, date), nil))
	require.NoError(t, repo.CreateSession(ctx, newSession(fresh, date), nil))

	_, err := service.RecalcStreak(ctx, fresh)
	require.NoError(t, err)

	users, err := repo.StaleStreakUsers(ctx, 10)
	require.NoError(t, err)
	require.Contains(t, users, stale)
	require.NotContains(t, users, fresh)
}

func TestPurgeWearableSamples(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool)
	userID := createUser(t, ctx, pool)

	_, err := pool.Exec(ctx,
		`INSERT INTO wearable_samples (user_id, sampled_at, heart_rate) VALUES
            ($1, NOW() - INTERVAL '120 days', 70),
            ($1, NOW() - INTERVAL '100 days', 72),
            ($1, NOW() - INTERVAL '1 day', 65)`, userID)
	require.NoError(t, err)

	purged, err := repo.PurgeWearableSamples(ctx, 90, 1000)
	require.NoError(t, err)
	require.EqualValues(t, 2, purged)

	var remaining int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM wearable_samples`).Scan(&remaining))
	require.Equal(t, 1, remaining)
}

func mustJSON(t *testing.T, session domain.Session) string {
	t.Helper()
	data, err := session.AuditSnapshot()
	require.NoError(t, err)
	return string(data)
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
