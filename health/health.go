// Package health implements the process health plumbing.
//
// Components register three kinds of hooks with a Registry: verify
// functions run once at startup and halt the process on failure,
// heartbeat functions run periodically and report errors into a shared
// State, and lifer functions report whether the component still has
// work to do during shutdown.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pithecene-io/fissure/log"
)

// DefaultHeartbeatInterval is how often heartbeat hooks run.
const DefaultHeartbeatInterval = 10 * time.Second

// State collects the results of one heartbeat sweep.
type State struct {
	// Errors holds the problems found; empty means healthy.
	Errors []string `json:"errors"`
	// Info holds free-form diagnostic values keyed by component.
	Info map[string]any `json:"info"`
}

// NewState returns an empty healthy state.
func NewState() *State {
	return &State{
		Errors: []string{},
		Info:   map[string]any{},
	}
}

// AddError records a problem.
func (s *State) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// AddInfo records a diagnostic value under the given key.
func (s *State) AddInfo(key string, value any) {
	s.Info[key] = value
}

// Healthy reports whether the sweep found no problems.
func (s *State) Healthy() bool {
	return len(s.Errors) == 0
}

// VerifyFunc proves a component is usable at startup.
type VerifyFunc func(ctx context.Context) error

// HeartbeatFunc checks a component and reports into state.
type HeartbeatFunc func(ctx context.Context, state *State)

// LiferFunc reports whether a component still has work to do.
type LiferFunc func() bool

// Registry holds the health hooks for the process.
//
// Registration happens during startup wiring, before Run; the hook
// slices are not locked. The published state is.
type Registry struct {
	interval   time.Duration
	logger     *log.Logger
	verifies   []namedVerify
	heartbeats []namedHeartbeat
	lifers     []LiferFunc

	mu    sync.RWMutex
	state *State
}

type namedVerify struct {
	name string
	fn   VerifyFunc
}

type namedHeartbeat struct {
	name string
	fn   HeartbeatFunc
}

// NewRegistry creates a Registry sweeping at the given interval.
// A non-positive interval falls back to DefaultHeartbeatInterval.
func NewRegistry(interval time.Duration, logger *log.Logger) *Registry {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Registry{
		interval: interval,
		logger:   logger,
		state:    NewState(),
	}
}

// RegisterVerify adds a startup verification hook.
func (r *Registry) RegisterVerify(name string, fn VerifyFunc) {
	r.verifies = append(r.verifies, namedVerify{name: name, fn: fn})
}

// RegisterHeartbeat adds a periodic health check hook.
func (r *Registry) RegisterHeartbeat(name string, fn HeartbeatFunc) {
	r.heartbeats = append(r.heartbeats, namedHeartbeat{name: name, fn: fn})
}

// RegisterLifer adds a has-work-to-do hook consulted during shutdown.
func (r *Registry) RegisterLifer(fn LiferFunc) {
	r.lifers = append(r.lifers, fn)
}

// Verify runs every registered verify hook and returns the first
// failure. Call once at startup; a failure should halt the process.
func (r *Registry) Verify(ctx context.Context) error {
	for _, v := range r.verifies {
		r.logger.Info("verifying component", zap.String("component", v.name))
		if err := v.fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Sweep runs every heartbeat hook once and publishes the result.
func (r *Registry) Sweep(ctx context.Context) *State {
	state := NewState()
	for _, h := range r.heartbeats {
		h.fn(ctx, state)
	}
	if !state.Healthy() {
		r.logger.Warn("heartbeat found problems",
			zap.Strings("errors", state.Errors))
	}

	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
	return state
}

// State returns the most recently published heartbeat state.
func (r *Registry) State() *State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// HasWorkToDo reports whether any lifer hook still has work pending.
func (r *Registry) HasWorkToDo() bool {
	for _, fn := range r.lifers {
		if fn() {
			return true
		}
	}
	return false
}

// Run sweeps heartbeats on the registry interval until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}
