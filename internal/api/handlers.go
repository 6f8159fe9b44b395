// Package api exposes HTTP handlers for the shuttletrack service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/irsyadputra-jpg/shuttletrack/internal/audit"
	"github.com/irsyadputra-jpg/shuttletrack/internal/domain"
)

// AuditLog combines trail reads with the generic append hook exposed to
// external write paths.
type AuditLog interface {
	audit.Trail
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	audits  AuditLog
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, audits AuditLog) *Handler {
	return &Handler{service: service, audits: audits}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sessions", h.sessions)
	mux.HandleFunc("/v1/sessions/", h.sessionByID)
	mux.HandleFunc("/v1/users/", h.userSubresource)
	mux.HandleFunc("/v1/hydration-logs", h.hydrationLogs)
	mux.HandleFunc("/v1/nutrition-logs", h.nutritionLogs)
	mux.HandleFunc("/v1/weekly-metrics", h.weeklyMetrics)
	mux.HandleFunc("/v1/audit", h.auditEndpoint)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.recordSession(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) sessionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing session id")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := h.service.DeleteSession(r.Context(), id, actorFrom(r)); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// userSubresource routes /v1/users/{id}/streak and /v1/users/{id}/streak/recalc.
func (h *Handler) userSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing user id")
		return
	}
	userID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "streak" && r.Method == http.MethodGet:
		h.getStreak(w, r, userID)
	case len(parts) == 3 && parts[1] == "streak" && parts[2] == "recalc" && r.Method == http.MethodPost:
		h.recalcStreak(w, r, userID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) recordSession(w http.ResponseWriter, r *http.Request) {
	var req RecordSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	session, err := h.service.RecordSession(r.Context(), domain.RecordSessionInput{
		UserID:          req.UserID,
		SessionDate:     req.SessionDate,
		StartedAt:       req.StartedAt,
		EndedAt:         req.EndedAt,
		SessionType:     req.SessionType,
		DurationMinutes: req.DurationMinutes,
		Intensity:       req.Intensity,
		Notes:           req.Notes,
		Actor:           actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, RecordSessionResponse{SessionID: session.ID})
}

func (h *Handler) getStreak(w http.ResponseWriter, r *http.Request, userID string) {
	snapshot, err := h.service.GetStreak(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStreakView(*snapshot))
}

func (h *Handler) recalcStreak(w http.ResponseWriter, r *http.Request, userID string) {
	snapshot, err := h.service.RecalcStreak(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStreakView(*snapshot))
}

func (h *Handler) hydrationLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req HydrationLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	logEntry, err := h.service.RecordHydration(r.Context(), req.UserID, req.LogDate, req.VolumeML, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"hydration_log_id": logEntry.ID})
}

func (h *Handler) nutritionLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req NutritionLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	logEntry, err := h.service.RecordNutrition(r.Context(), domain.NutritionLog{
		UserID:   req.UserID,
		LogDate:  req.LogDate,
		Calories: req.Calories,
		ProteinG: req.ProteinG,
		Quality:  req.Quality,
	}, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"nutrition_log_id": logEntry.ID})
}

func (h *Handler) weeklyMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req WeeklyMetricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	metric, err := h.service.RecordWeeklyMetric(r.Context(), domain.WeeklyMetric{
		UserID:    req.UserID,
		WeekStart: req.WeekStart,
		WeightKG:  req.WeightKG,
		RestingHR: req.RestingHR,
		Mood:      req.Mood,
		Energy:    req.Energy,
	}, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"weekly_metric_id": metric.ID})
}

func (h *Handler) auditEndpoint(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.auditTrail(w, r)
	case http.MethodPost:
		h.appendAudit(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	recordID := r.URL.Query().Get("record_id")
	if table == "" || recordID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "table and record_id are required")
		return
	}

	entries, err := h.audits.Trail(r.Context(), table, recordID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, AuditTrailResponse{Entries: entries})
}

func (h *Handler) appendAudit(w http.ResponseWriter, r *http.Request) {
	var req AppendAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	err := h.audits.AppendAudit(r.Context(), audit.Entry{
		TableName: req.Table,
		RecordID:  req.RecordID,
		Action:    audit.Action(req.Action),
		ChangedBy: req.Actor,
		Payload:   req.Snapshot,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// actorFrom extracts the optional acting user; nil marks a system change.
func actorFrom(r *http.Request) *string {
	actor := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
	if actor == "" {
		return nil
	}
	return &actor
}

// RecordSessionRequest is the payload for POST /v1/sessions.
type RecordSessionRequest struct {
	UserID          string     `json:"user_id"`
	SessionDate     time.Time  `json:"session_date"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	SessionType     string     `json:"session_type"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Intensity       *int       `json:"intensity,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// RecordSessionResponse describes the response body for create.
type RecordSessionResponse struct {
	SessionID string `json:"session_id"`
}

// HydrationLogRequest is the payload for POST /v1/hydration-logs.
type HydrationLogRequest struct {
	UserID   string    `json:"user_id"`
	LogDate  time.Time `json:"log_date"`
	VolumeML int       `json:"volume_ml"`
}

// NutritionLogRequest is the payload for POST /v1/nutrition-logs.
type NutritionLogRequest struct {
	UserID   string    `json:"user_id"`
	LogDate  time.Time `json:"log_date"`
	Calories int       `json:"calories"`
	ProteinG int       `json:"protein_g"`
	Quality  int       `json:"quality"`
}

// WeeklyMetricRequest is the payload for POST /v1/weekly-metrics.
type WeeklyMetricRequest struct {
	UserID    string    `json:"user_id"`
	WeekStart time.Time `json:"week_start"`
	WeightKG  *float64  `json:"weight_kg,omitempty"`
	RestingHR *int      `json:"resting_hr,omitempty"`
	Mood      *int      `json:"mood,omitempty"`
	Energy    *int      `json:"energy,omitempty"`
}

// AppendAuditRequest is the payload for POST /v1/audit.
type AppendAuditRequest struct {
	Table    string          `json:"table"`
	RecordID string          `json:"record_id"`
	Action   string          `json:"action"`
	Actor    *string         `json:"actor,omitempty"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// Validate ensures request correctness.
func (r AppendAuditRequest) Validate() error {
	if strings.TrimSpace(r.Table) == "" {
		return errors.New("table is required")
	}
	if strings.TrimSpace(r.RecordID) == "" {
		return errors.New("record_id is required")
	}
	switch audit.Action(r.Action) {
	case audit.ActionInsert, audit.ActionUpdate, audit.ActionDelete:
	default:
		return errors.New("action must be INSERT, UPDATE, or DELETE")
	}
	if len(r.Snapshot) == 0 {
		return errors.New("snapshot is required")
	}
	if !audit.Monitored(r.Table) {
		return errors.New("table is not monitored")
	}
	return nil
}

// StreakView exposes the streak snapshot over HTTP.
type StreakView struct {
	UserID         string    `json:"user_id"`
	CurrentStreak  int       `json:"current_streak"`
	LongestStreak  int       `json:"longest_streak"`
	LastActiveDate *string   `json:"last_active_date,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AuditTrailResponse packages trail entries.
type AuditTrailResponse struct {
	Entries []audit.Entry `json:"entries"`
}

func toStreakView(snapshot domain.StreakSnapshot) StreakView {
	view := StreakView{
		UserID:        snapshot.UserID,
		CurrentStreak: snapshot.CurrentStreak,
		LongestStreak: snapshot.LongestStreak,
		UpdatedAt:     snapshot.UpdatedAt,
	}
	if snapshot.LastActiveDate != nil {
		formatted := snapshot.LastActiveDate.Format("2006-01-02")
		view.LastActiveDate = &formatted
	}
	return view
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrConstraintViolation):
		writeError(w, http.StatusConflict, "constraint_violation", err.Error())
	case errors.Is(err, domain.ErrTransientStore):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
	case errors.Is(err, domain.ErrAuditWrite):
		writeError(w, http.StatusInternalServerError, "audit_write_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
