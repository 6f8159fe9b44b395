// Package postgres provides pgx-backed persistence for sessions, daily
// logs, streak snapshots, and the audit trail.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/irsyadputra-jpg/shuttletrack/internal/audit"
	"github.com/irsyadputra-jpg/shuttletrack/internal/domain"
	"github.com/irsyadputra-jpg/shuttletrack/internal/notify"
	"github.com/irsyadputra-jpg/shuttletrack/internal/observability"
)

// Repository persists training data. Every mutation on a monitored table
// writes its audit entry in the same transaction; a session insert also
// raises the new-session notification inside that transaction, so the
// signal reaches listeners only on commit.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateSession inserts a session, its audit entry, and the new-session
// notification atomically.
func (r *Repository) CreateSession(ctx context.Context, session domain.Session, actor *string) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		const stmt = `INSERT INTO sessions (session_id, user_id, session_date, started_at, ended_at, session_type, duration_minutes, intensity, notes, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

		if _, err := tx.Exec(ctx, stmt,
			session.ID,
			session.UserID,
			session.SessionDate,
			session.StartedAt,
			session.EndedAt,
			session.SessionType,
			session.DurationMinutes,
			session.Intensity,
			nullIfEmpty(session.Notes),
			session.CreatedAt,
			session.UpdatedAt,
		); err != nil {
			return err
		}

		recorder := audit.NewRecorder(txSink{tx})
		if err := recorder.Record(ctx, audit.ActionInsert, actor, session); err != nil {
			return auditFailure(err)
		}

		// Delivered to listeners only when this transaction commits.
		if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", notify.ChannelNewSession, session.UserID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	observability.RecordSessionPersisted()
	observability.RecordAuditEntry(session.AuditTable())
	return nil
}

// DeleteSession removes a session, capturing its before-image in the audit
// trail within the same transaction.
func (r *Repository) DeleteSession(ctx context.Context, sessionID string, actor *string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		const query = `SELECT session_id, user_id, session_date, started_at, ended_at, session_type, duration_minutes, intensity, COALESCE(notes, ''), created_at, updated_at
            FROM sessions WHERE session_id=$1 FOR UPDATE`

		var session domain.Session
		row := tx.QueryRow(ctx, query, sessionID)
		if err := row.Scan(&session.ID, &session.UserID, &session.SessionDate, &session.StartedAt, &session.EndedAt, &session.SessionType, &session.DurationMinutes, &session.Intensity, &session.Notes, &session.CreatedAt, &session.UpdatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
			}
			return err
		}

		recorder := audit.NewRecorder(txSink{tx})
		if err := recorder.Record(ctx, audit.ActionDelete, actor, session); err != nil {
			return auditFailure(err)
		}

		_, err := tx.Exec(ctx, `DELETE FROM sessions WHERE session_id=$1`, sessionID)
		return err
	})
}

// DistinctSessionDates returns the distinct calendar dates with at least
// one session for the user, most recent first.
func (r *Repository) DistinctSessionDates(ctx context.Context, userID string) ([]time.Time, error) {
	const query = `SELECT DISTINCT session_date FROM sessions WHERE user_id=$1 ORDER BY session_date DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, mapError(err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return dates, nil
}

// UserExists reports whether the user row exists.
func (r *Repository) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id=$1)`, userID).Scan(&exists)
	if err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

// UpsertStreak writes the snapshot atomically. current_streak and
// last_active_date are last-writer-wins; longest_streak merges with
// GREATEST so it never regresses under concurrent recalculations.
func (r *Repository) UpsertStreak(ctx context.Context, snapshot domain.StreakSnapshot) (domain.StreakSnapshot, error) {
	const stmt = `INSERT INTO streak_snapshots (user_id, current_streak, longest_streak, last_active_date, updated_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (user_id) DO UPDATE SET
            current_streak   = EXCLUDED.current_streak,
            longest_streak   = GREATEST(streak_snapshots.longest_streak, EXCLUDED.longest_streak),
            last_active_date = EXCLUDED.last_active_date,
            updated_at       = EXCLUDED.updated_at
        RETURNING user_id, current_streak, longest_streak, last_active_date, updated_at`

	var merged domain.StreakSnapshot
	row := r.pool.QueryRow(ctx, stmt,
		snapshot.UserID,
		snapshot.CurrentStreak,
		snapshot.LongestStreak,
		snapshot.LastActiveDate,
		snapshot.UpdatedAt,
	)
	if err := row.Scan(&merged.UserID, &merged.CurrentStreak, &merged.LongestStreak, &merged.LastActiveDate, &merged.UpdatedAt); err != nil {
		return domain.StreakSnapshot{}, mapError(err)
	}

	observability.RecordStreakRecalc()
	return merged, nil
}

// GetStreak fetches the snapshot for a user, nil when absent.
func (r *Repository) GetStreak(ctx context.Context, userID string) (*domain.StreakSnapshot, error) {
	const query = `SELECT user_id, current_streak, longest_streak, last_active_date, updated_at
        FROM streak_snapshots WHERE user_id=$1`

	var snapshot domain.StreakSnapshot
	row := r.pool.QueryRow(ctx, query, userID)
	if err := row.Scan(&snapshot.UserID, &snapshot.CurrentStreak, &snapshot.LongestStreak, &snapshot.LastActiveDate, &snapshot.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return &snapshot, nil
}

// CreateHydrationLog inserts a daily hydration log with its audit entry.
func (r *Repository) CreateHydrationLog(ctx context.Context, log domain.HydrationLog, actor *string) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		const stmt = `INSERT INTO hydration_logs (hydration_log_id, user_id, log_date, volume_ml) VALUES ($1,$2,$3,$4)`
		if _, err := tx.Exec(ctx, stmt, log.ID, log.UserID, log.LogDate, log.VolumeML); err != nil {
			return err
		}
		recorder := audit.NewRecorder(txSink{tx})
		if err := recorder.Record(ctx, audit.ActionInsert, actor, log); err != nil {
			return auditFailure(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	observability.RecordAuditEntry(log.AuditTable())
	return nil
}

// CreateNutritionLog inserts a daily nutrition log with its audit entry.
func (r *Repository) CreateNutritionLog(ctx context.Context, log domain.NutritionLog, actor *string) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		const stmt = `INSERT INTO nutrition_logs (nutrition_log_id, user_id, log_date, calories, protein_g, quality) VALUES ($1,$2,$3,$4,$5,$6)`
		if _, err := tx.Exec(ctx, stmt, log.ID, log.UserID, log.LogDate, log.Calories, log.ProteinG, log.Quality); err != nil {
			return err
		}
		recorder := audit.NewRecorder(txSink{tx})
		if err := recorder.Record(ctx, audit.ActionInsert, actor, log); err != nil {
			return auditFailure(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	observability.RecordAuditEntry(log.AuditTable())
	return nil
}

// CreateWeeklyMetric inserts a weekly body-metric row with its audit entry.
func (r *Repository) CreateWeeklyMetric(ctx context.Context, metric domain.WeeklyMetric, actor *string) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		const stmt = `INSERT INTO weekly_metrics (weekly_metric_id, user_id, week_start, weight_kg, resting_hr, mood, energy) VALUES ($1,$2,$3,$4,$5,$6,$7)`
		if _, err := tx.Exec(ctx, stmt, metric.ID, metric.UserID, metric.WeekStart, metric.WeightKG, metric.RestingHR, metric.Mood, metric.Energy); err != nil {
			return err
		}
		recorder := audit.NewRecorder(txSink{tx})
		if err := recorder.Record(ctx, audit.ActionInsert, actor, metric); err != nil {
			return auditFailure(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	observability.RecordAuditEntry(metric.AuditTable())
	return nil
}

// AppendAudit appends a standalone entry outside any business transaction.
// Write paths that own their mutation use the in-transaction recorder
// instead; this is the generic hook for external collaborators.
func (r *Repository) AppendAudit(ctx context.Context, entry audit.Entry) error {
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}

	const stmt = `INSERT INTO audit_log (table_name, record_id, action, changed_by, changed_at, payload) VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := r.pool.Exec(ctx, stmt, entry.TableName, entry.RecordID, string(entry.Action), entry.ChangedBy, entry.ChangedAt, entry.Payload); err != nil {
		return auditFailure(mapError(err))
	}
	observability.RecordAuditEntry(entry.TableName)
	return nil
}

// Trail returns the ordered audit history for a record.
func (r *Repository) Trail(ctx context.Context, table, recordID string) ([]audit.Entry, error) {
	const query = `SELECT audit_id, table_name, record_id, action, changed_by, changed_at, payload
        FROM audit_log WHERE table_name=$1 AND record_id=$2 ORDER BY audit_id`

	rows, err := r.pool.Query(ctx, query, table, recordID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var entry audit.Entry
		var action string
		if err := rows.Scan(&entry.ID, &entry.TableName, &entry.RecordID, &action, &entry.ChangedBy, &entry.ChangedAt, &entry.Payload); err != nil {
			return nil, mapError(err)
		}
		entry.Action = audit.Action(action)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return entries, nil
}

// StaleStreakUsers lists users whose latest session postdates their
// snapshot (or who have no snapshot yet). Used by the reconciliation
// sweep that backstops the best-effort notification channel.
func (r *Repository) StaleStreakUsers(ctx context.Context, limit int) ([]string, error) {
	const query = `SELECT s.user_id
        FROM sessions s
        LEFT JOIN streak_snapshots ss ON ss.user_id = s.user_id
        GROUP BY s.user_id, ss.last_active_date
        HAVING MAX(s.session_date) > COALESCE(ss.last_active_date, DATE '0001-01-01')
        LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return users, nil
}

// AwardAchievement records a milestone at most once per (user, code).
// Returns true when a new row was written.
func (r *Repository) AwardAchievement(ctx context.Context, achievement domain.Achievement) (bool, error) {
	const stmt = `INSERT INTO achievements (achievement_id, user_id, code, awarded_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, code) DO NOTHING`

	tag, err := r.pool.Exec(ctx, stmt, achievement.ID, achievement.UserID, achievement.Code, achievement.AwardedAt)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// PurgeWearableSamples deletes samples older than the retention window in
// bounded batches and returns the number of rows removed.
func (r *Repository) PurgeWearableSamples(ctx context.Context, retentionDays, batchSize int) (int64, error) {
	const stmt = `DELETE FROM wearable_samples
        WHERE sample_id IN (
            SELECT sample_id FROM wearable_samples
            WHERE sampled_at < NOW() - ($1 * INTERVAL '1 day')
            ORDER BY sampled_at
            LIMIT $2
        )`

	tag, err := r.pool.Exec(ctx, stmt, retentionDays, batchSize)
	if err != nil {
		return 0, mapError(err)
	}

	purged := tag.RowsAffected()
	observability.RecordSamplesPurged(purged)
	return purged, nil
}

// RefreshWeeklySummary rebuilds the pre-aggregated weekly view without
// blocking concurrent readers.
func (r *Repository) RefreshWeeklySummary(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY weekly_training_summary`)
	return mapError(err)
}

func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return mapError(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// txSink appends audit entries inside the transaction of the audited write.
type txSink struct {
	tx pgx.Tx
}

func (s txSink) Append(ctx context.Context, entry audit.Entry) error {
	const stmt = `INSERT INTO audit_log (table_name, record_id, action, changed_by, changed_at, payload)
        VALUES ($1,$2,$3,$4,$5,$6)`

	_, err := s.tx.Exec(ctx, stmt, entry.TableName, entry.RecordID, string(entry.Action), entry.ChangedBy, entry.ChangedAt, entry.Payload)
	return err
}

func auditFailure(cause error) error {
	if errors.Is(cause, domain.ErrAuditWrite) {
		return cause
	}
	return fmt.Errorf("%w: %v", domain.ErrAuditWrite, cause)
}

// mapError translates pgx failures into the domain taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConstraintViolation) ||
		errors.Is(err, domain.ErrTransientStore) || errors.Is(err, domain.ErrAuditWrite) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" || pgErr.Code == "23514":
			return fmt.Errorf("%w: %s", domain.ErrConstraintViolation, pgErr.Message)
		case pgErr.Code == "23503":
			return fmt.Errorf("%w: %s", domain.ErrNotFound, pgErr.Message)
		case pgErr.Code == "57014" || strings.HasPrefix(pgErr.Code, "08"):
			return fmt.Errorf("%w: %s", domain.ErrTransientStore, pgErr.Message)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", domain.ErrTransientStore, err)
	}
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
