// Package audit captures before/after snapshots of monitored records into an
// append-only trail. Each monitored entity serializes its own snapshot; the
// recorder dispatches uniformly over that closed set instead of reflecting
// on arbitrary rows.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Action identifies the kind of mutation captured by an entry.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Snapshotter is implemented by every entity enrolled in audit capture.
// For DELETE the caller passes the record state before removal; for
// INSERT/UPDATE the state after the write.
type Snapshotter interface {
	AuditTable() string
	AuditRecordID() string
	AuditSnapshot() ([]byte, error)
}

// monitored is the fixed allow-list of audited tables. Tables not listed
// here never produce entries.
var monitored = map[string]struct{}{
	"sessions":       {},
	"hydration_logs": {},
	"nutrition_logs": {},
	"weekly_metrics": {},
}

// Monitored reports whether a table is enrolled in audit capture.
func Monitored(table string) bool {
	_, ok := monitored[table]
	return ok
}

// Entry is one append-only audit record. Entries for a given record are
// totally ordered by ID, so a record's history can be rebuilt by replay.
type Entry struct {
	ID        int64           `json:"audit_id"`
	TableName string          `json:"table_name"`
	RecordID  string          `json:"record_id"`
	Action    Action          `json:"action"`
	ChangedBy *string         `json:"changed_by,omitempty"`
	ChangedAt time.Time       `json:"changed_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Sink appends an entry. Implementations run inside the same transaction
// as the mutation being audited; a failed append aborts that transaction.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// Trail reads back the ordered history of a record.
type Trail interface {
	Trail(ctx context.Context, table, recordID string) ([]Entry, error)
}

// Recorder writes entries for monitored records through a Sink.
type Recorder struct {
	sink Sink
}

// NewRecorder constructs a Recorder.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record captures a snapshot of the mutated record. Records whose table is
// not on the allow-list are skipped without error. ChangedBy is nil for
// system-initiated changes.
func (r *Recorder) Record(ctx context.Context, action Action, changedBy *string, record Snapshotter) error {
	table := record.AuditTable()
	if !Monitored(table) {
		return nil
	}

	payload, err := record.AuditSnapshot()
	if err != nil {
		return fmt.Errorf("snapshot %s/%s: %w", table, record.AuditRecordID(), err)
	}

	entry := Entry{
		TableName: table,
		RecordID:  record.AuditRecordID(),
		Action:    action,
		ChangedBy: changedBy,
		ChangedAt: time.Now().UTC(),
		Payload:   payload,
	}
	return r.sink.Append(ctx, entry)
}
