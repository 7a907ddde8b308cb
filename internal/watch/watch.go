// Package watch keeps the registry honest about server liveness.
//
// Every running server gets a watcher that pings it periodically over
// the already-open session. A failed ping is confirmed with
// exponential-backoff retries before the server is declared dead; a
// dead server is stopped through the registry so its tools drop out of
// the aggregated catalog instead of lingering as a stale entry.
// Restarting a stopped server is an explicit operation (API or CLI);
// the watcher never respawns processes on its own.
package watch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ProbeFunc checks whether a server is responsive. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// BackoffConfig controls failure confirmation timing.
type BackoffConfig struct {
	// InitialDelay is the delay before the first retry (default: 2s).
	InitialDelay time.Duration

	// MaxDelay is the ceiling for backoff growth (default: 60s).
	MaxDelay time.Duration

	// Multiplier scales the delay after each retry (default: 2.0).
	Multiplier float64

	// MaxRetries is how many consecutive failed probes it takes to
	// declare a server dead (default: 10).
	MaxRetries int

	// PollInterval is the healthy-state check interval (default: 60s).
	PollInterval time.Duration

	// ProbeTimeout limits each individual probe call (default: 10s).
	ProbeTimeout time.Duration
}

// DefaultBackoffConfig returns the standard schedule: 2s, 4s, 8s, 16s,
// 32s, 60s (capped), 10 retries, 60-second healthy polling.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   10,
		PollInterval: 60 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

// Registry is the slice of the server registry the watch manager
// needs: the running set, a liveness probe per name, and the stop
// action for dead servers. *registry.Manager satisfies it.
type Registry interface {
	RunningNames() []string
	PingServer(ctx context.Context, name string) error
	StopServer(name string) bool
}

// ServerHealth is one watched server's health, suitable for JSON
// serialization in the health endpoint.
type ServerHealth struct {
	Server    string    `json:"server"`
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher monitors a single running server. It begins in the healthy
// state (the server had just completed its handshake when watching
// started) and exits after declaring the server dead.
type Watcher struct {
	server  string
	probe   ProbeFunc
	onDown  func(err error)
	backoff BackoffConfig
	logger  *slog.Logger

	healthy atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	mu        sync.Mutex
	lastErr   error
	lastCheck time.Time
}

// Healthy reports whether the server is considered alive. It stays
// true while a failed probe is still being confirmed.
func (w *Watcher) Healthy() bool {
	return w.healthy.Load()
}

// Status returns the current health snapshot.
func (w *Watcher) Status() ServerHealth {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := ServerHealth{
		Server:    w.server,
		Healthy:   w.healthy.Load(),
		LastCheck: w.lastCheck,
	}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// stop cancels the watcher and waits for its goroutine to exit.
func (w *Watcher) stop() {
	w.cancel()
	<-w.done
}

// run polls the server at PollInterval. A failed probe moves into the
// confirmation loop; if the server never answers within MaxRetries the
// watcher fires onDown and exits. onDown runs on the watcher goroutine
// as its final act.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	w.healthy.Store(true)

	for {
		if !sleepCtx(ctx, w.backoff.PollInterval) {
			return
		}

		err := w.probeOnce(ctx)
		w.recordResult(err)
		if err == nil {
			continue
		}

		w.logger.Debug("ping failed, confirming",
			"server", w.server,
			"error", err,
		)

		if w.confirmDown(ctx) {
			w.logger.Info("server recovered", "server", w.server)
			continue
		}
		if ctx.Err() != nil {
			return
		}

		w.healthy.Store(false)
		w.mu.Lock()
		lastErr := w.lastErr
		w.mu.Unlock()

		w.logger.Warn("server unresponsive, stopping it",
			"server", w.server,
			"retries", w.backoff.MaxRetries,
			"error", lastErr,
		)
		if w.onDown != nil {
			w.onDown(lastErr)
		}
		return
	}
}

// confirmDown re-probes with exponential backoff. True means the
// server answered again; false means retries were exhausted or the
// context ended.
func (w *Watcher) confirmDown(ctx context.Context) bool {
	delay := w.backoff.InitialDelay

	for attempt := 1; attempt <= w.backoff.MaxRetries; attempt++ {
		if !sleepCtx(ctx, delay) {
			return false
		}

		err := w.probeOnce(ctx)
		w.recordResult(err)
		if err == nil {
			return true
		}

		w.logger.Debug("ping retry failed",
			"server", w.server,
			"attempt", attempt,
			"max_retries", w.backoff.MaxRetries,
			"next_delay", delay.String(),
			"error", err,
		)

		delay = time.Duration(float64(delay) * w.backoff.Multiplier)
		if delay > w.backoff.MaxDelay {
			delay = w.backoff.MaxDelay
		}
	}

	return false
}

// probeOnce calls the probe with the configured timeout.
func (w *Watcher) probeOnce(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, w.backoff.ProbeTimeout)
	defer cancel()
	return w.probe(probeCtx)
}

// recordResult stores the probe outcome under the mutex.
func (w *Watcher) recordResult(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.lastCheck = time.Now()
	w.mu.Unlock()
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// DefaultSyncInterval is how often the manager reconciles its watcher
// set against the registry's running servers.
const DefaultSyncInterval = 15 * time.Second

// ManagerConfig configures the watch manager.
type ManagerConfig struct {
	// Registry supplies the running set and the probe/stop operations.
	Registry Registry

	// Backoff controls per-server failure confirmation. Zero-value
	// fields are replaced with defaults.
	Backoff BackoffConfig

	// SyncInterval is the reconcile cadence (default: DefaultSyncInterval).
	SyncInterval time.Duration

	// Logger for structured logging. Uses slog.Default() if nil.
	Logger *slog.Logger
}

// Manager runs one watcher per running server, reconciling the watcher
// set against the registry on a fixed cadence: servers started through
// the API gain a watcher on the next sync, stopped servers lose theirs.
type Manager struct {
	registry     Registry
	backoff      BackoffConfig
	syncInterval time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	watchers map[string]*Watcher

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a watch manager over the given registry.
// Panics if cfg.Registry is nil.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Registry == nil {
		panic("watch: ManagerConfig.Registry must not be nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultBackoffConfig()
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff.InitialDelay = defaults.InitialDelay
	}
	if cfg.Backoff.MaxDelay <= 0 {
		cfg.Backoff.MaxDelay = defaults.MaxDelay
	}
	if cfg.Backoff.Multiplier <= 0 {
		cfg.Backoff.Multiplier = defaults.Multiplier
	}
	if cfg.Backoff.MaxRetries <= 0 {
		cfg.Backoff.MaxRetries = defaults.MaxRetries
	}
	if cfg.Backoff.PollInterval <= 0 {
		cfg.Backoff.PollInterval = defaults.PollInterval
	}
	if cfg.Backoff.ProbeTimeout <= 0 {
		cfg.Backoff.ProbeTimeout = defaults.ProbeTimeout
	}

	syncInterval := cfg.SyncInterval
	if syncInterval <= 0 {
		syncInterval = DefaultSyncInterval
	}

	return &Manager{
		registry:     cfg.Registry,
		backoff:      cfg.Backoff,
		syncInterval: syncInterval,
		logger:       logger,
		watchers:     make(map[string]*Watcher),
	}
}

// Start launches the reconcile loop in a background goroutine. It runs
// until ctx is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	for {
		m.sync(ctx)
		if !sleepCtx(ctx, m.syncInterval) {
			return
		}
	}
}

// sync reconciles the watcher set with the registry's running servers.
func (m *Manager) sync(ctx context.Context) {
	running := make(map[string]bool)
	for _, name := range m.registry.RunningNames() {
		running[name] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for name, w := range m.watchers {
		select {
		case <-w.done:
			// Watcher already declared its server dead and exited.
			delete(m.watchers, name)
			continue
		default:
		}
		if !running[name] {
			w.stop()
			delete(m.watchers, name)
			m.logger.Debug("stopped watching server", "server", name)
		}
	}

	for name := range running {
		if _, ok := m.watchers[name]; !ok {
			m.watchers[name] = m.watch(ctx, name)
			m.logger.Debug("watching server", "server", name)
		}
	}
}

// watch spawns the watcher goroutine for one server.
func (m *Manager) watch(ctx context.Context, name string) *Watcher {
	watchCtx, cancel := context.WithCancel(ctx)

	w := &Watcher{
		server: name,
		probe: func(ctx context.Context) error {
			return m.registry.PingServer(ctx, name)
		},
		onDown: func(err error) {
			m.registry.StopServer(name)
		},
		backoff: m.backoff,
		logger:  m.logger,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go w.run(watchCtx)
	return w
}

// Status returns the health of every currently watched server.
func (m *Manager) Status() map[string]ServerHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := make(map[string]ServerHealth, len(m.watchers))
	for name, w := range m.watchers {
		status[name] = w.Status()
	}
	return status
}

// Healthy reports whether every watched server passed its last probe.
// An empty watcher set is healthy.
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.watchers {
		if !w.healthy.Load() {
			return false
		}
	}
	return true
}

// Stop shuts down the reconcile loop and every watcher, waiting for
// all goroutines to exit. Safe to call when Start was never called.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done

	m.mu.Lock()
	watchers := make([]*Watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.watchers = make(map[string]*Watcher)
	m.mu.Unlock()

	for _, w := range watchers {
		<-w.done
	}
}
