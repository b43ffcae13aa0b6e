package tokenstore

import (
	"context"
	"sync"

	"github.com/kulsmauinformatics/sumatin/internal/domain"
)

// Memory is a process-local Store. It never returns an error.
type Memory struct {
	mu      sync.RWMutex
	access  string
	refresh string
	user    *domain.User
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Access(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access, nil
}

func (m *Memory) Refresh(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refresh, nil
}

func (m *Memory) SetTokens(_ context.Context, access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access, m.refresh = access, refresh
	return nil
}

func (m *Memory) SwapTokens(_ context.Context, prev, access, refresh string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev == "" || m.refresh != prev {
		return false, nil
	}
	m.access, m.refresh = access, refresh
	return true, nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access, m.refresh = "", ""
	return nil
}

// CachedUser returns a copy so callers cannot mutate the stored record.
func (m *Memory) CachedUser(context.Context) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil, nil
	}
	u := *m.user
	return &u, nil
}

func (m *Memory) SetCachedUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = &u
	return nil
}

func (m *Memory) ClearCachedUser(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	return nil
}

// MemoryProvider keeps one Memory store per session id.
type MemoryProvider struct {
	mu     sync.Mutex
	stores map[string]*Memory
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{stores: make(map[string]*Memory)}
}

// ForSession returns the store for sid, creating it on first use.
func (p *MemoryProvider) ForSession(sid string) Store {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stores[sid]
	if !ok {
		s = NewMemory()
		p.stores[sid] = s
	}
	return s
}

// Release forgets the store for sid.
func (p *MemoryProvider) Release(sid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.stores, sid)
}

// Len reports how many sessions currently hold a store.
func (p *MemoryProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stores)
}
