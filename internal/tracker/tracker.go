// Package tracker bridges asynchronously-mutated job rows to a finite,
// renderable lifecycle. It combines push notifications with safety-net
// polling because the engine's write can race subscription setup, and it
// converges to the same terminal state no matter which channel observes the
// status first.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhinao/geoscan/internal/store"
	"github.com/zhinao/geoscan/pkg/models"
)

// State is the tracker's client-facing lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateChecking   State = "checking"
	StateProcessing State = "processing"
	StateResult     State = "result"
	StateError      State = "error"
)

// Update is one observed transition, delivered over the Watch channel.
type Update struct {
	State   State            `json:"state"`
	Job     *models.Job      `json:"job,omitempty"`
	Results []*models.Result `json:"results,omitempty"`
	Slow    bool             `json:"slow,omitempty"` // processing beyond the slow threshold
}

// JobReader is the subset of the store the tracker reads.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error)
	ListResultsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Result, error)
}

// Subscriber delivers row-change events for one job id.
type Subscriber interface {
	Subscribe(jobID uuid.UUID) (<-chan store.JobEvent, func())
}

// Options tune the tracker's timing. Zero values fall back to defaults.
type Options struct {
	PollInterval time.Duration // safety-net re-read cadence
	SlowAfter    time.Duration // when to flag a still-processing job as slow
	DedupSweep   time.Duration // how often the notified-set is cleared
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 3 * time.Second
	}
	if o.SlowAfter <= 0 {
		o.SlowAfter = 60 * time.Second
	}
	if o.DedupSweep <= 0 {
		o.DedupSweep = 60 * time.Second
	}
	return o
}

// Tracker watches jobs until they reach a terminal status.
type Tracker struct {
	store  JobReader
	events Subscriber
	opts   Options
}

// New creates a Tracker.
func New(st JobReader, events Subscriber, opts Options) *Tracker {
	return &Tracker{store: st, events: events, opts: opts.withDefaults()}
}

// Watch emits lifecycle updates for one job until a terminal state is
// delivered or ctx is cancelled, then closes the channel. The subscription
// is torn down on cancellation; the job itself runs to completion or failure
// regardless.
func (t *Tracker) Watch(ctx context.Context, userID, jobID uuid.UUID) (<-chan Update, error) {
	job, err := t.store.GetJob(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}

	out := make(chan Update, 4)
	w := &watch{
		tracker:  t,
		userID:   userID,
		jobID:    jobID,
		out:      out,
		notified: make(map[string]time.Time),
	}

	if job.Terminal() {
		// The result may already exist before anyone subscribes.
		w.emitTerminal(ctx, job)
		close(out)
		return out, nil
	}

	out <- Update{State: StateProcessing, Job: job}
	go w.run(ctx)
	return out, nil
}

// watch is the per-client state of one Watch call. The dedup set is scoped
// here: overlapping push and poll deliveries must never produce a second
// terminal notification on the same stream.
type watch struct {
	tracker *Tracker
	userID  uuid.UUID
	jobID   uuid.UUID
	out     chan Update

	mu       sync.Mutex
	notified map[string]time.Time
}

func (w *watch) run(ctx context.Context) {
	defer close(w.out)

	events, unsubscribe := w.tracker.events.Subscribe(w.jobID)
	defer unsubscribe()

	opts := w.tracker.opts
	poll := time.NewTicker(opts.PollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(opts.DedupSweep)
	defer sweep.Stop()
	slow := time.NewTimer(opts.SlowAfter)
	defer slow.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case _, ok := <-events:
			if !ok {
				return
			}
			if w.check(ctx) {
				return
			}

		case <-poll.C:
			if w.check(ctx) {
				return
			}

		case <-slow.C:
			w.emit(ctx, Update{State: StateProcessing, Slow: true})

		case <-sweep.C:
			w.mu.Lock()
			w.notified = make(map[string]time.Time)
			w.mu.Unlock()
		}
	}
}

// check re-reads the job and emits a terminal update when one is reached.
// Returns true when the watch is finished. Status-preserving row updates are
// ignored.
func (w *watch) check(ctx context.Context) bool {
	job, err := w.tracker.store.GetJob(ctx, w.jobID, w.userID)
	if err != nil {
		// Transient read failures are absorbed; the next poll retries.
		// A deleted row ends the watch.
		if errors.Is(err, store.ErrNotFound) {
			return true
		}
		return false
	}
	if !job.Terminal() {
		return false
	}
	w.emitTerminal(ctx, job)
	return true
}

func (w *watch) emitTerminal(ctx context.Context, job *models.Job) {
	if !w.markNotified(job.ID, job.Status) {
		return
	}

	update := Update{Job: job}
	if job.Status == models.JobStatusCompleted {
		update.State = StateResult
		results, err := w.tracker.store.ListResultsByJob(ctx, job.ID)
		if err == nil {
			update.Results = results
		}
	} else {
		update.State = StateError
	}
	w.emit(ctx, update)
}

func (w *watch) emit(ctx context.Context, update Update) {
	select {
	case w.out <- update:
	case <-ctx.Done():
	}
}

// markNotified records a (job id, terminal status) pair and reports whether
// it was new. Duplicated deliveries across push and poll collapse here.
func (w *watch) markNotified(id uuid.UUID, status string) bool {
	key := id.String() + ":" + status
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, seen := w.notified[key]; seen {
		return false
	}
	w.notified[key] = time.Now()
	return true
}
