package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository captures the persistence operations the service depends on.
// Each mutating call is a single transaction: the business row, its audit
// entry, and the new-session notification commit or abort as a unit.
type Repository interface {
	CreateSession(ctx context.Context, session Session, actor *string) error
	DeleteSession(ctx context.Context, sessionID string, actor *string) error
	DistinctSessionDates(ctx context.Context, userID string) ([]time.Time, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	UpsertStreak(ctx context.Context, snapshot StreakSnapshot) (StreakSnapshot, error)
	GetStreak(ctx context.Context, userID string) (*StreakSnapshot, error)
	CreateHydrationLog(ctx context.Context, log HydrationLog, actor *string) error
	CreateNutritionLog(ctx context.Context, log NutritionLog, actor *string) error
	CreateWeeklyMetric(ctx context.Context, metric WeeklyMetric, actor *string) error
}

// Service orchestrates training-log workflows.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecordSessionInput captures the payload from the API layer. Actor is nil
// for system-initiated writes.
type RecordSessionInput struct {
	UserID          string
	SessionDate     time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
	SessionType     string
	DurationMinutes *int
	Intensity       *int
	Notes           string
	Actor           *string
}

// RecordSession commits a training session. The audit entry and the
// new-session notification ride in the same transaction as the insert.
func (s *Service) RecordSession(ctx context.Context, input RecordSessionInput) (*Session, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, fmt.Errorf("user_id is required: %w", ErrConstraintViolation)
	}
	if strings.TrimSpace(input.SessionType) == "" {
		return nil, fmt.Errorf("session_type is required: %w", ErrConstraintViolation)
	}
	if input.SessionDate.IsZero() {
		return nil, fmt.Errorf("session_date is required: %w", ErrConstraintViolation)
	}
	if input.DurationMinutes != nil && *input.DurationMinutes <= 0 {
		return nil, fmt.Errorf("duration_minutes must be > 0: %w", ErrConstraintViolation)
	}
	if input.Intensity != nil && (*input.Intensity < 1 || *input.Intensity > 10) {
		return nil, fmt.Errorf("intensity must be between 1 and 10: %w", ErrConstraintViolation)
	}

	now := time.Now().UTC()
	session := Session{
		ID:              uuid.NewString(),
		UserID:          input.UserID,
		SessionDate:     truncateToDay(input.SessionDate),
		StartedAt:       input.StartedAt,
		EndedAt:         input.EndedAt,
		SessionType:     input.SessionType,
		DurationMinutes: input.DurationMinutes,
		Intensity:       input.Intensity,
		Notes:           input.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.CreateSession(ctx, session, input.Actor); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session. The audit trail captures the row state
// before removal, in the same transaction as the delete.
func (s *Service) DeleteSession(ctx context.Context, sessionID string, actor *string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required: %w", ErrConstraintViolation)
	}
	return s.repo.DeleteSession(ctx, sessionID, actor)
}

// RecalcStreak recomputes the consecutive-day streak for a user from the
// distinct set of session dates and merges the result into the streak
// snapshot. Repeated calls over an unchanged activity set are idempotent;
// the stored longest streak never decreases.
func (s *Service) RecalcStreak(ctx context.Context, userID string) (*StreakSnapshot, error) {
	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	dates, err := s.repo.DistinctSessionDates(ctx, userID)
	if err != nil {
		return nil, err
	}

	run := ComputeRun(dates)
	snapshot := StreakSnapshot{
		UserID:        userID,
		CurrentStreak: run.Length,
		LongestStreak: run.Length,
		UpdatedAt:     time.Now().UTC(),
	}
	if run.Length > 0 {
		last := run.LastActive
		snapshot.LastActiveDate = &last
	}

	merged, err := s.repo.UpsertStreak(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

// GetStreak returns the current streak snapshot for a user.
func (s *Service) GetStreak(ctx context.Context, userID string) (*StreakSnapshot, error) {
	snapshot, err := s.repo.GetStreak(ctx, userID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("streak for user %s: %w", userID, ErrNotFound)
	}
	return snapshot, nil
}

// RecordHydration commits a daily hydration log. One row per user per day.
func (s *Service) RecordHydration(ctx context.Context, userID string, logDate time.Time, volumeML int, actor *string) (*HydrationLog, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user_id is required: %w", ErrConstraintViolation)
	}
	if volumeML < 0 {
		return nil, fmt.Errorf("volume_ml must be >= 0: %w", ErrConstraintViolation)
	}
	log := HydrationLog{
		ID:       uuid.NewString(),
		UserID:   userID,
		LogDate:  truncateToDay(logDate),
		VolumeML: volumeML,
	}
	if err := s.repo.CreateHydrationLog(ctx, log, actor); err != nil {
		return nil, err
	}
	return &log, nil
}

// RecordNutrition commits a daily nutrition log. One row per user per day.
func (s *Service) RecordNutrition(ctx context.Context, input NutritionLog, actor *string) (*NutritionLog, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, fmt.Errorf("user_id is required: %w", ErrConstraintViolation)
	}
	if input.Calories < 0 || input.ProteinG < 0 {
		return nil, fmt.Errorf("calories and protein_g must be >= 0: %w", ErrConstraintViolation)
	}
	if input.Quality < 1 || input.Quality > 5 {
		return nil, fmt.Errorf("quality must be between 1 and 5: %w", ErrConstraintViolation)
	}

	log := input
	log.ID = uuid.NewString()
	log.LogDate = truncateToDay(input.LogDate)
	if err := s.repo.CreateNutritionLog(ctx, log, actor); err != nil {
		return nil, err
	}
	return &log, nil
}

// RecordWeeklyMetric commits a weekly body-metric entry.
func (s *Service) RecordWeeklyMetric(ctx context.Context, input WeeklyMetric, actor *string) (*WeeklyMetric, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, fmt.Errorf("user_id is required: %w", ErrConstraintViolation)
	}
	if input.Mood != nil && (*input.Mood < 1 || *input.Mood > 5) {
		return nil, fmt.Errorf("mood must be between 1 and 5: %w", ErrConstraintViolation)
	}
	if input.Energy != nil && (*input.Energy < 1 || *input.Energy > 5) {
		return nil, fmt.Errorf("energy must be between 1 and 5: %w", ErrConstraintViolation)
	}

	metric := input
	metric.ID = uuid.NewString()
	metric.WeekStart = truncateToDay(input.WeekStart)
	if err := s.repo.CreateWeeklyMetric(ctx, metric, actor); err != nil {
		return nil, err
	}
	return &metric, nil
}
