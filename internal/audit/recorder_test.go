package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type memorySink struct {
	entries []Entry
	err     error
}

func (s *memorySink) Append(_ context.Context, entry Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

type fakeRecord struct {
	table string
	id    string
	body  map[string]interface{}
	err   error
}

func (f fakeRecord) AuditTable() string    { return f.table }
func (f fakeRecord) AuditRecordID() string { return f.id }
func (f fakeRecord) AuditSnapshot() ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.Marshal(f.body)
}

func TestRecordCapturesSnapshot(t *testing.T) {
	sink := &memorySink{}
	recorder := NewRecorder(sink)

	actor := "user-9"
	record := fakeRecord{
		table: "sessions",
		id:    "sess-1",
		body:  map[string]interface{}{"session_id": "sess-1", "session_type": "match"},
	}

	err := recorder.Record(context.Background(), ActionInsert, &actor, record)
	require.NoError(t, err)
	require.Len(t, sink.entries, 1)

	entry := sink.entries[0]
	require.Equal(t, "sessions", entry.TableName)
	require.Equal(t, "sess-1", entry.RecordID)
	require.Equal(t, ActionInsert, entry.Action)
	require.Equal(t, &actor, entry.ChangedBy)
	require.False(t, entry.ChangedAt.IsZero())
	require.JSONEq(t, `{"session_id":"sess-1","session_type":"match"}`, string(entry.Payload))
}

func TestRecordSkipsUnmonitoredTable(t *testing.T) {
	sink := &memorySink{}
	recorder := NewRecorder(sink)

	err := recorder.Record(context.Background(), ActionUpdate, nil, fakeRecord{table: "reminders", id: "rem-1"})
	require.NoError(t, err)
	require.Empty(t, sink.entries)
}

func TestRecordNilActorForSystemChanges(t *testing.T) {
	sink := &memorySink{}
	recorder := NewRecorder(sink)

	err := recorder.Record(context.Background(), ActionDelete, nil, fakeRecord{
		table: "hydration_logs",
		id:    "log-1",
		body:  map[string]interface{}{"volume_ml": 1200},
	})
	require.NoError(t, err)
	require.Len(t, sink.entries, 1)
	require.Nil(t, sink.entries[0].ChangedBy)
	require.Equal(t, ActionDelete, sink.entries[0].Action)
}

func TestRecordPropagatesSinkFailure(t *testing.T) {
	boom := errors.New("disk full")
	recorder := NewRecorder(&memorySink{err: boom})

	err := recorder.Record(context.Background(), ActionInsert, nil, fakeRecord{
		table: "sessions",
		id:    "sess-2",
		body:  map[string]interface{}{},
	})
	require.ErrorIs(t, err, boom)
}

func TestRecordPropagatesSnapshotFailure(t *testing.T) {
	sink := &memorySink{}
	recorder := NewRecorder(sink)

	err := recorder.Record(context.Background(), ActionInsert, nil, fakeRecord{
		table: "sessions",
		id:    "sess-3",
		err:   errors.New("unserializable"),
	})
	require.Error(t, err)
	require.Empty(t, sink.entries)
}

func TestMonitoredAllowList(t *testing.T) {
	require.True(t, Monitored("sessions"))
	require.True(t, Monitored("hydration_logs"))
	require.True(t, Monitored("nutrition_logs"))
	require.True(t, Monitored("weekly_metrics"))
	require.False(t, Monitored("wearable_samples"))
	require.False(t, Monitored("audit_log"))
}
