// Package domain defines the business logic for the shuttletrack training log.
package domain

import (
	"encoding/json"
	"time"
)

// Session is the canonical training-session record stored in PostgreSQL.
// Several sessions may share a SessionDate for one user; streak computation
// counts distinct dates, not rows.
type Session struct {
	ID              string     `json:"session_id"`
	UserID          string     `json:"user_id"`
	SessionDate     time.Time  `json:"session_date"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	SessionType     string     `json:"session_type"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Intensity       *int       `json:"intensity,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AuditTable names the monitored table backing sessions.
func (s Session) AuditTable() string { return "sessions" }

// AuditRecordID identifies the row inside the audit trail.
func (s Session) AuditRecordID() string { return s.ID }

// AuditSnapshot serializes the row state captured by the audit trail.
func (s Session) AuditSnapshot() ([]byte, error) { return json.Marshal(s) }

// HydrationLog records daily fluid intake. One row per user per day.
type HydrationLog struct {
	ID       string    `json:"hydration_log_id"`
	UserID   string    `json:"user_id"`
	LogDate  time.Time `json:"log_date"`
	VolumeML int       `json:"volume_ml"`
}

func (l HydrationLog) AuditTable() string             { return "hydration_logs" }
func (l HydrationLog) AuditRecordID() string          { return l.ID }
func (l HydrationLog) AuditSnapshot() ([]byte, error) { return json.Marshal(l) }

// NutritionLog records daily nutrition. One row per user per day.
type NutritionLog struct {
	ID       string    `json:"nutrition_log_id"`
	UserID   string    `json:"user_id"`
	LogDate  time.Time `json:"log_date"`
	Calories int       `json:"calories"`
	ProteinG int       `json:"protein_g"`
	Quality  int       `json:"quality"`
}

func (l NutritionLog) AuditTable() string             { return "nutrition_logs" }
func (l NutritionLog) AuditRecordID() string          { return l.ID }
func (l NutritionLog) AuditSnapshot() ([]byte, error) { return json.Marshal(l) }

// WeeklyMetric captures self-reported weekly body metrics.
type WeeklyMetric struct {
	ID        string    `json:"weekly_metric_id"`
	UserID    string    `json:"user_id"`
	WeekStart time.Time `json:"week_start"`
	WeightKG  *float64  `json:"weight_kg,omitempty"`
	RestingHR *int      `json:"resting_hr,omitempty"`
	Mood      *int      `json:"mood,omitempty"`
	Energy    *int      `json:"energy,omitempty"`
}

func (m WeeklyMetric) AuditTable() string             { return "weekly_metrics" }
func (m WeeklyMetric) AuditRecordID() string          { return m.ID }
func (m WeeklyMetric) AuditSnapshot() ([]byte, error) { return json.Marshal(m) }

// StreakSnapshot is the single current streak row per user, owned by the
// streak recalculation path. LongestStreak never regresses.
type StreakSnapshot struct {
	UserID         string     `json:"user_id"`
	CurrentStreak  int        `json:"current_streak"`
	LongestStreak  int        `json:"longest_streak"`
	LastActiveDate *time.Time `json:"last_active_date,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Achievement marks a milestone awarded to a user, at most once per code.
type Achievement struct {
	ID        string    `json:"achievement_id"`
	UserID    string    `json:"user_id"`
	Code      string    `json:"code"`
	AwardedAt time.Time `json:"awarded_at"`
}
