package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/capability"
	"github.com/ausweis-dev/ausweis/pkg/capability/invoker"
	"github.com/ausweis-dev/ausweis/pkg/observability"
	"github.com/ausweis-dev/ausweis/pkg/oracle"
	"github.com/ausweis-dev/ausweis/pkg/storage"
)

// Engine runs the orchestration loop for every session. It is the only
// writer of a session's turns and status while the session is active.
type Engine struct {
	store    storage.SessionStore
	registry *capability.Registry
	invoker  invoker.Invoker
	oracle   oracle.Oracle
	cfg      Config
	logger   *slog.Logger

	mu      sync.Mutex
	running map[string]*running

	// sem bounds concurrently running sessions; nil means unlimited.
	// Waiters are served in start order, so queued sessions admit FIFO.
	sem chan struct{}
}

// running is the in-process state of one live session.
type running struct {
	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}
}

func (r *running) cancel() {
	r.cancelOnce.Do(func() { close(r.cancelCh) })
}

func (r *running) isCanceled() bool {
	select {
	case <-r.cancelCh:
		return true
	default:
		return false
	}
}

// New creates an Engine. Store, registry, invoker, and oracle must all be
// non-nil.
func New(store storage.SessionStore, registry *capability.Registry, inv invoker.Invoker, orc oracle.Oracle, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: store must not be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("engine: registry must not be nil")
	}
	if inv == nil {
		return nil, fmt.Errorf("engine: invoker must not be nil")
	}
	if orc == nil {
		return nil, fmt.Errorf("engine: oracle must not be nil")
	}

	e := &Engine{
		store:    store,
		registry: registry,
		invoker:  inv,
		oracle:   orc,
		cfg:      cfg,
		logger:   slog.Default(),
		running:  make(map[string]*running),
	}
	if cfg.MaxActiveSessions > 0 {
		e.sem = make(chan struct{}, cfg.MaxActiveSessions)
	}
	return e, nil
}

// Start creates a session for the goal and launches its loop. The
// returned session ID is immediately queryable; sessions beyond the
// admission cap queue but are never rejected.
func (e *Engine) Start(ctx context.Context, goal string) (string, error) {
	if goal == "" {
		return "", api.NewValidationError("goal", "goal must not be empty")
	}

	sess := api.NewSession(goal)
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return "", err
	}
	if _, err := e.store.AppendTurn(ctx, sess.ID, api.NewTurn(api.RoleIntent, api.IntentPayload{Goal: goal})); err != nil {
		return "", err
	}

	r := &running{
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.mu.Lock()
	e.running[sess.ID] = r
	e.mu.Unlock()

	observability.SessionsActive.Inc()

	// The loop outlives the Start call but keeps the caller's context
	// values (tenant scoping in particular).
	go e.run(context.WithoutCancel(ctx), sess.ID, goal, r)

	return sess.ID, nil
}

// Status returns the session's current state, including its terminal
// status and reason once the loop has finished.
func (e *Engine) Status(ctx context.Context, id string) (*api.Session, error) {
	return e.store.GetSession(ctx, id)
}

// Cancel requests cooperative cancellation. A running session aborts at
// its next phase boundary; an in-flight invocation is not interrupted but
// its result is discarded. Canceling a terminal session returns
// storage.ErrTerminal.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	e.mu.Lock()
	r, ok := e.running[id]
	e.mu.Unlock()

	if ok {
		r.cancel()
		return nil
	}

	sess, err := e.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return storage.ErrTerminal
	}
	// Not running in this process (e.g. orphaned after a restart): mark
	// it aborted directly.
	return e.store.SetStatus(ctx, id, api.SessionStatusAborted, reasonCanceled)
}

// Wait blocks until the session's loop finishes or the context expires,
// then returns the session. Sessions not running in this process return
// immediately with their stored state.
func (e *Engine) Wait(ctx context.Context, id string) (*api.Session, error) {
	e.mu.Lock()
	r, ok := e.running[id]
	e.mu.Unlock()

	if ok {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.store.GetSession(ctx, id)
}

// Close releases the oracle. Running sessions are not interrupted.
func (e *Engine) Close() error {
	return e.oracle.Close()
}
