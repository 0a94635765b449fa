package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"studio/internal/domain"
	"studio/internal/gateway"
)

const defaultInterval = time.Second

// Store is the subset of job store operations the engine reconciles into.
type Store interface {
	Complete(id, resultURL string) error
	Fail(id, detail string) error
}

// Gateway answers status queries for in-flight jobs.
type Gateway interface {
	Status(ctx context.Context, jobID string) (gateway.StatusResult, error)
}

// Engine tracks the working set of in-flight job ids and reconciles backend
// status into the store. A recurring ticker runs only while the working set is
// non-empty; it is torn down when the last job settles and recreated when a
// new one is tracked. The engine never reports errors to its caller: every
// fault is either retried next tick or recorded on the job itself.
type Engine struct {
	store    Store
	gateway  Gateway
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
}

// New constructs an idle engine. The ticker starts with the first tracked id.
func New(store Store, gw Gateway, interval time.Duration, logger zerolog.Logger) *Engine {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Engine{
		store:    store,
		gateway:  gw,
		interval: interval,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Track adds a job id to the working set and starts the ticker if it was
// idle. Malformed ids are dropped without ever being queried; their records
// are left as-is.
func (e *Engine) Track(id string) {
	if !domain.ValidJobID(id) {
		e.logger.Warn().Str("job_id", id).Msg("poller: dropping malformed job id")
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.inflight[id] = struct{}{}
	if e.cancel == nil {
		e.start()
	}
}

// TrackAll seeds the working set, typically with the pending ids restored
// from a snapshot at startup.
func (e *Engine) TrackAll(ids []string) {
	for _, id := range ids {
		e.Track(id)
	}
}

// Untrack drops a job id from the working set. Called on user deletion so a
// deleted job is not polled again; the ticker winds down on its own once the
// set drains.
func (e *Engine) Untrack(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, id)
}

// Active reports whether the recurring ticker is currently running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// Close cancels the ticker and waits for the current round to finish. The
// engine accepts no new ids afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// start launches the polling loop. Callers must hold e.mu and have verified
// that no loop is running: there is never more than one live ticker.
func (e *Engine) start() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	go e.run(ctx, done)
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		e.pollRound(ctx)
		e.mu.Lock()
		if len(e.inflight) == 0 {
			// Working set drained: tear the ticker down until the next Track.
			if !e.closed {
				e.cancel = nil
			}
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()
	}
}

// pollRound issues one status query per in-flight id. Queries within a round
// run concurrently; their reconciliations touch distinct ids and commute.
// Settled ids are removed from the working set only after the whole round, so
// the set is never mutated while it is being walked.
func (e *Engine) pollRound(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.inflight))
	for id := range e.inflight {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	if len(ids) == 0 {
		return
	}

	var settledMu sync.Mutex
	settled := make([]string, 0, len(ids))
	g := new(errgroup.Group)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if e.pollOne(ctx, id) {
				settledMu.Lock()
				settled = append(settled, id)
				settledMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	e.mu.Lock()
	for _, id := range settled {
		delete(e.inflight, id)
	}
	e.mu.Unlock()
}

// pollOne queries a single job and reconciles the answer. It reports whether
// the id has settled and should leave the working set. Transient transport
// faults keep the job in-flight indefinitely: a single failed query never
// terminates a job.
func (e *Engine) pollOne(ctx context.Context, id string) bool {
	res, err := e.gateway.Status(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		e.logger.Warn().Err(err).Str("job_id", id).Msg("poller: status query failed, retrying next tick")
		return false
	}
	switch res.State {
	case gateway.StateSuccess:
		e.reconcile(id, func() error { return e.store.Complete(id, res.URL) })
		return true
	case gateway.StateError:
		e.reconcile(id, func() error { return e.store.Fail(id, res.Message) })
		return true
	default:
		return false
	}
}

// reconcile applies a terminal transition. A record deleted mid-poll or one
// that already settled is left alone; both are expected races, not faults.
func (e *Engine) reconcile(id string, apply func() error) {
	err := apply()
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		e.logger.Debug().Str("job_id", id).Msg("poller: job deleted before reconciliation")
	case errors.Is(err, domain.ErrTerminalJob):
		e.logger.Debug().Str("job_id", id).Msg("poller: stale response for settled job")
	default:
		e.logger.Error().Err(err).Str("job_id", id).Msg("poller: reconciliation failed")
	}
}
