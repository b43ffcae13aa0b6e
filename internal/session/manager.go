package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kulsmauinformatics/sumatin/internal/apiclient"
	"github.com/kulsmauinformatics/sumatin/internal/tokenstore"
	"github.com/kulsmauinformatics/sumatin/pkg/logger"
)

var sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "sumatin_portal_sessions_active",
	Help: "Number of portal sessions with a live controller",
})

// ManagerConfig holds the dependencies shared by every session.
type ManagerConfig struct {
	Provider tokenstore.Provider
	Executor *apiclient.Executor
	Events   EventPublisher
	Logger   *slog.Logger
	// IdleTTL is how long a controller may go unused before it is evicted.
	IdleTTL time.Duration
	// CleanupInterval defaults to IdleTTL.
	CleanupInterval time.Duration
}

type entry struct {
	ctl      *Controller
	lastSeen time.Time
}

// Manager maps portal session ids to controllers, creating them on first
// use and evicting idle ones. Eviction only drops the in-process
// controller: tokens stay in the store and the session is restored on its
// next request.
type Manager struct {
	cfg     ManagerConfig
	mu      sync.Mutex
	entries map[string]*entry
	nowFunc func() time.Time // injectable clock for testing

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a Manager and starts its cleanup loop.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = cfg.IdleTTL
	}
	m := &Manager{
		cfg:     cfg,
		entries: make(map[string]*entry),
		nowFunc: time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go m.cleanupLoop()
	} else {
		close(m.done)
	}
	return m
}

// Get returns the controller of sid, creating it and starting its restore
// in the background on first use. Concurrent first requests share one
// controller.
func (m *Manager) Get(ctx context.Context, sid string) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[sid]; ok {
		e.lastSeen = m.nowFunc()
		return e.ctl
	}

	store := m.cfg.Provider.ForSession(sid)
	client := apiclient.NewClient(store, m.cfg.Executor, m.cfg.Logger)
	ctl := NewController(sid, apiclient.NewAPI(client), m.cfg.Events, m.cfg.Logger)
	m.entries[sid] = &entry{ctl: ctl, lastSeen: m.nowFunc()}
	sessionsActive.Set(float64(len(m.entries)))

	// Restore is not tied to the request that happened to create the session.
	initCtx := logger.WithSessionID(context.WithoutCancel(ctx), sid)
	go ctl.Initialize(initCtx)

	return ctl
}

// Active reports the number of live controllers.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Forget drops the controller of sid immediately.
func (m *Manager) Forget(sid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(sid, m.entries[sid])
}

func (m *Manager) cleanupLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

// cleanup evicts every controller not used within IdleTTL.
func (m *Manager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	for sid, e := range m.entries {
		if now.Sub(e.lastSeen) > m.cfg.IdleTTL {
			m.remove(sid, e)
		}
	}
}

// remove must be called with m.mu held.
func (m *Manager) remove(sid string, e *entry) {
	if e == nil {
		return
	}
	delete(m.entries, sid)
	sessionsActive.Set(float64(len(m.entries)))

	// A process-local store is the only copy of the tokens: keep it while the
	// session is signed in so it can be restored, drop it otherwise.
	if r, ok := m.cfg.Provider.(tokenstore.Releaser); ok && !e.ctl.Snapshot().LoggedIn() {
		r.Release(sid)
	}
	m.cfg.Logger.Debug("session controller evicted", slog.String("session_id", sid))
}

// Close stops the cleanup loop and waits for the background work of every
// live controller, so pending session events reach the publisher before it
// is closed.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.stop) })
	<-m.done

	m.mu.Lock()
	ctls := make([]*Controller, 0, len(m.entries))
	for _, e := range m.entries {
		ctls = append(ctls, e.ctl)
	}
	m.mu.Unlock()
	for _, c := range ctls {
		c.Wait()
	}
}
