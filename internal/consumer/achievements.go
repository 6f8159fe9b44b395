package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/irsyadputra-jpg/shuttletrack/internal/bridge"
	"github.com/irsyadputra-jpg/shuttletrack/internal/domain"
)

// StreakReader looks up the current streak snapshot for a user.
type StreakReader interface {
	GetStreak(ctx context.Context, userID string) (*domain.StreakSnapshot, error)
}

// AchievementStore awards milestones idempotently.
type AchievementStore interface {
	AwardAchievement(ctx context.Context, achievement domain.Achievement) (bool, error)
}

// milestones are the streak lengths that earn an award, shortest first.
var milestones = []struct {
	days int
	code string
}{
	{3, "streak_3_days"},
	{7, "streak_7_days"},
	{30, "streak_30_days"},
	{100, "streak_100_days"},
}

// AchievementHandler awards streak-milestone achievements for bridged
// session events. Awards are keyed on (user, code), so replayed events
// are harmless.
type AchievementHandler struct {
	streaks StreakReader
	awards  AchievementStore
	logger  *log.Logger
}

// NewAchievementHandler constructs an AchievementHandler.
func NewAchievementHandler(streaks StreakReader, awards AchievementStore) *AchievementHandler {
	return &AchievementHandler{
		streaks: streaks,
		awards:  awards,
		logger:  log.New(log.Writer(), "[achievements] ", log.LstdFlags),
	}
}

// Handle evaluates milestones for the user named by the event.
func (h *AchievementHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != bridge.EventSessionRecorded {
		return nil
	}

	var event bridge.SessionRecorded
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("decode %s: %w", msg.EventType, err)
	}

	snapshot, err := h.streaks.GetStreak(ctx, event.UserID)
	if err != nil {
		return err
	}
	if snapshot == nil {
		// Recalculation has not caught up yet; the next event or the
		// reconciliation sweep will revisit this user.
		return nil
	}

	for _, milestone := range milestones {
		if snapshot.CurrentStreak < milestone.days {
			break
		}
		awarded, err := h.awards.AwardAchievement(ctx, domain.Achievement{
			ID:        uuid.NewString(),
			UserID:    event.UserID,
			Code:      milestone.code,
			AwardedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if awarded {
			h.logger.Printf("awarded %s to user %s", milestone.code, event.UserID)
		}
	}
	return nil
}
