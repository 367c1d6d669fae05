package feature

import (
	"context"
	"maps"
	"sync"
)

// MemoryProvider is a process local Provider.
type MemoryProvider struct {
	mu     sync.RWMutex
	flags  map[string]map[string]bool
	closed bool
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{flags: make(map[string]map[string]bool)}
}

func (m *MemoryProvider) IsEnabled(_ context.Context, tenantID, flag string) (bool, error) {
	if err := validate(tenantID, flag); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, ErrProviderClosed
	}
	if v, ok := m.flags[tenantID][flag]; ok {
		return v, nil
	}
	if v, ok := m.flags[GlobalTenant][flag]; ok {
		return v, nil
	}
	return false, ErrFlagNotFound
}

func (m *MemoryProvider) SetFlag(_ context.Context, tenantID, flag string, enabled bool) error {
	if err := validate(tenantID, flag); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrProviderClosed
	}
	tenant, ok := m.flags[tenantID]
	if !ok {
		tenant = make(map[string]bool)
		m.flags[tenantID] = tenant
	}
	tenant[flag] = enabled
	return nil
}

func (m *MemoryProvider) ListFlags(_ context.Context, tenantID string) (map[string]bool, error) {
	if tenantID == "" {
		return nil, ErrInvalidFlag
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrProviderClosed
	}
	out := maps.Clone(m.flags[GlobalTenant])
	if out == nil {
		out = make(map[string]bool)
	}
	maps.Copy(out, m.flags[tenantID])
	return out, nil
}

func (m *MemoryProvider) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
