// Package observability registers Prometheus collectors shared by the
// shuttletrack binaries.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttletrack",
		Subsystem: "sessions",
		Name:      "recorded_total",
		Help:      "Number of training sessions durably committed.",
	})

	auditEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shuttletrack",
		Subsystem: "audit",
		Name:      "entries_total",
		Help:      "Number of audit entries appended, labeled by table.",
	}, []string{"table"})

	streakRecalcs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttletrack",
		Subsystem: "streaks",
		Name:      "recalculations_total",
		Help:      "Number of streak recalculations performed.",
	})

	notificationsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttletrack",
		Subsystem: "notify",
		Name:      "delivered_total",
		Help:      "Number of new-session signals delivered to subscribers.",
	})

	notificationsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttletrack",
		Subsystem: "notify",
		Name:      "dropped_total",
		Help:      "Number of new-session signals dropped by slow subscribers.",
	})

	samplesPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttletrack",
		Subsystem: "janitor",
		Name:      "wearable_samples_purged_total",
		Help:      "Number of wearable samples removed by the retention purge.",
	})

	bridgePublished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttletrack",
		Subsystem: "bridge",
		Name:      "events_published_total",
		Help:      "Number of session events bridged to Kafka.",
	})
)

func init() {
	prometheus.MustRegister(
		sessionsRecorded,
		auditEntries,
		streakRecalcs,
		notificationsDelivered,
		notificationsDropped,
		samplesPurged,
		bridgePublished,
	)
}

// RecordSessionPersisted increments the committed-session counter.
func RecordSessionPersisted() { sessionsRecorded.Inc() }

// RecordAuditEntry increments the audit counter for a table.
func RecordAuditEntry(table string) { auditEntries.WithLabelValues(table).Inc() }

// RecordStreakRecalc increments the recalculation counter.
func RecordStreakRecalc() { streakRecalcs.Inc() }

// RecordNotificationDelivered increments the delivered-signal counter.
func RecordNotificationDelivered() { notificationsDelivered.Inc() }

// RecordNotificationDropped increments the dropped-signal counter.
func RecordNotificationDropped() { notificationsDropped.Inc() }

// RecordSamplesPurged adds to the purge counter.
func RecordSamplesPurged(n int64) { samplesPurged.Add(float64(n)) }

// RecordBridgePublished increments the bridged-event counter.
func RecordBridgePublished() { bridgePublished.Inc() }
