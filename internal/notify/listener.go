// Package notify delivers new-session signals over Postgres LISTEN/NOTIFY.
// A NOTIFY issued inside the session-insert transaction is delivered only
// when that transaction commits, so no subscriber can observe uncommitted
// activity. The channel is at-most-once and non-durable: nothing is
// delivered to subscribers attached after the fact.
package notify

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/irsyadputra-jpg/shuttletrack/internal/observability"
)

// ChannelNewSession carries the owning user's id for every committed
// training-session insert.
const ChannelNewSession = "new_session"

// Broker fans a stream of user ids out to in-process subscribers. Sends
// never block: a subscriber that falls behind drops signals rather than
// stalling the listener. Consumers that need every event reconcile against
// the session store instead.
type Broker struct {
	mu   sync.Mutex
	subs map[int]chan string
	next int
}

// NewBroker constructs an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan string)}
}

// Subscribe registers a subscriber and returns its channel plus a cancel
// function. The channel is closed on cancel.
func (b *Broker) Subscribe(buffer int) (<-chan string, func()) {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan string, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Dispatch delivers a user id to every current subscriber, best effort.
func (b *Broker) Dispatch(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- userID:
			observability.RecordNotificationDelivered()
		default:
			observability.RecordNotificationDropped()
		}
	}
}

// Listener holds a dedicated connection on the new-session channel and
// feeds the Broker.
type Listener struct {
	pool   *pgxpool.Pool
	broker *Broker
}

// NewListener constructs a Listener over the given pool.
func NewListener(pool *pgxpool.Pool, broker *Broker) *Listener {
	return &Listener{pool: pool, broker: broker}
}

// Run blocks waiting for notifications until the context is cancelled.
// The dedicated connection is re-acquired after transient failures;
// signals raised while no connection is held are lost, which the channel
// contract permits.
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.listenOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Printf("notify listener error, reconnecting: %v", err)
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	// The connection has LISTEN state; do not return it to the pool for reuse.
	defer conn.Hijack().Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+ChannelNewSession); err != nil {
		return err
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if notification.Channel != ChannelNewSession {
			continue
		}
		l.broker.Dispatch(notification.Payload)
	}
}
