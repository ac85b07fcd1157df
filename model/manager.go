// Package model owns the lifecycle of the feature network: it loads the
// network at most once at a time, remembers the result and lets every
// caller share it.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lostboard/vismatch/convnet"
)

// State is the lifecycle state of a Manager.
type State int32

const (
	Unloaded State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Loader produces a ready network. It is called with a context that is not
// canceled when the caller that triggered the load goes away.
type Loader func(ctx context.Context) (*convnet.Network, error)

// ErrLoadPending is wrapped in the *LoadError returned to a caller that gave
// up waiting for a load that is still running.
var ErrLoadPending = errors.New("model: load still in progress")

// LoadError reports a failed load. The next EnsureReady call retries.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return "model: load failed: " + e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

// Manager gates access to a lazily loaded network.
//
// The zero value is not usable; create one with NewManager.
type Manager struct {
	load   Loader
	logger *slog.Logger
	onLoad func(d time.Duration, err error)

	group singleflight.Group
	loads atomic.Int64

	mu      sync.RWMutex
	state   State
	net     *convnet.Network
	lastErr error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for load events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithLoadHook registers fn to run after every load attempt.
func WithLoadHook(fn func(d time.Duration, err error)) Option {
	return func(m *Manager) { m.onLoad = fn }
}

// NewManager returns a Manager in state Unloaded.
func NewManager(load Loader, optFns ...Option) *Manager {
	m := &Manager{
		load:   load,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(m)
		}
	}
	return m
}

// EnsureReady returns nil once the network is loaded. While a load is in
// flight every caller waits for that same load; no second load starts.
//
// The load itself is detached from ctx: if ctx ends first, EnsureReady
// returns ctx.Err() and the load keeps going for the remaining callers.
// A failed load returns a *LoadError and leaves the manager in Failed; the
// next call starts a new load.
func (m *Manager) EnsureReady(ctx context.Context) error {
	if m.Current() != nil {
		return nil
	}

	ch := m.group.DoChan("load", func() (any, error) {
		return nil, m.doLoad(context.WithoutCancel(ctx))
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) doLoad(ctx context.Context) (err error) {
	m.mu.Lock()
	if m.state == Ready {
		// A load finished between the fast-path check and joining the group.
		m.mu.Unlock()
		return nil
	}
	m.state = Loading
	m.mu.Unlock()

	attempt := m.loads.Add(1)
	start := time.Now()
	m.logger.InfoContext(ctx, "model load started", slog.Int64("attempt", attempt))

	var net *convnet.Network
	defer func() {
		if r := recover(); r != nil {
			err = &LoadError{Err: fmt.Errorf("panic: %v", r)}
		}
		m.finish(ctx, net, err, time.Since(start))
	}()

	net, err = m.load(ctx)
	if err == nil && net == nil {
		err = errors.New("loader returned no network")
	}
	if err != nil {
		err = &LoadError{Err: err}
	}
	return err
}

func (m *Manager) finish(ctx context.Context, net *convnet.Network, err error, d time.Duration) {
	m.mu.Lock()
	if err != nil {
		m.state, m.net, m.lastErr = Failed, nil, err
	} else {
		m.state, m.net, m.lastErr = Ready, net, nil
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.ErrorContext(ctx, "model load failed", slog.Duration("duration", d), slog.Any("error", err))
	} else {
		m.logger.InfoContext(ctx, "model ready",
			slog.String("arch", net.Name()),
			slog.Int("dim", net.Dim()),
			slog.Int("params", net.Params()),
			slog.Duration("duration", d),
		)
	}
	if m.onLoad != nil {
		m.onLoad(d, err)
	}
}

// Network ensures the model is ready and returns it.
func (m *Manager) Network(ctx context.Context) (*convnet.Network, error) {
	if err := m.EnsureReady(ctx); err != nil {
		return nil, err
	}
	if net := m.Current(); net != nil {
		return net, nil
	}
	// Only reachable if a concurrent load failed right after ours succeeded.
	return nil, m.Err()
}

// Current returns the loaded network, or nil when not Ready.
func (m *Manager) Current() *convnet.Network {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.net
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Err returns the error of the last failed load, or nil.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Loads returns the number of load attempts started so far.
func (m *Manager) Loads() int64 { return m.loads.Load() }
