package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotifyChannel is the Postgres channel the notify_job_change trigger emits on.
const NotifyChannel = "geoscan_job_events"

// JobEvent is a row-change notification produced by the database trigger on
// the jobs and results tables. It carries identifiers and status only; the
// subscriber re-reads the row for anything else.
type JobEvent struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
	Table  string    `json:"table"`
}

// Listener holds a dedicated connection in LISTEN mode and fans incoming
// notifications out to per-job subscribers. This is the push half of the
// job tracker; polling covers anything the listener misses.
type Listener struct {
	pool *pgxpool.Pool

	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan JobEvent]struct{}
}

// NewListener creates a Listener on the given pool. Call Run to start it.
func NewListener(pool *pgxpool.Pool) *Listener {
	return &Listener{
		pool: pool,
		subs: make(map[uuid.UUID]map[chan JobEvent]struct{}),
	}
}

// Run blocks, receiving notifications until ctx is cancelled. On connection
// loss it backs off and re-acquires; subscribers stay registered across
// reconnects.
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("job event listener disconnected, retrying", "error", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return err
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var event JobEvent
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			slog.Warn("malformed job event payload", "payload", notification.Payload)
			continue
		}
		l.dispatch(event)
	}
}

func (l *Listener) dispatch(event JobEvent) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for ch := range l.subs[event.JobID] {
		select {
		case ch <- event:
		default:
			// Slow subscriber; the poll fallback will catch it up.
		}
	}
}

// Subscribe registers interest in change events for one job id. The returned
// cancel func must be called to release the subscription.
func (l *Listener) Subscribe(jobID uuid.UUID) (<-chan JobEvent, func()) {
	ch := make(chan JobEvent, 8)

	l.mu.Lock()
	if l.subs[jobID] == nil {
		l.subs[jobID] = make(map[chan JobEvent]struct{})
	}
	l.subs[jobID][ch] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs[jobID], ch)
			if len(l.subs[jobID]) == 0 {
				delete(l.subs, jobID)
			}
			l.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
