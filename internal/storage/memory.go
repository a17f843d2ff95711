package storage

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	records map[string][]byte
	audit   []AuditEntry
}

func NewMemory() *Memory { return &Memory{records: map[string][]byte{}} }

func (m *Memory) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.records[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Put(_ context.Context, name string, data []byte) error {
	if !validName(name) {
		return fmt.Errorf("storage: invalid record name %q", name)
	}
	m.mu.Lock()
	m.records[name] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) AppendAudit(_ context.Context, e AuditEntry) error {
	m.mu.Lock()
	m.audit = append(m.audit, e)
	m.mu.Unlock()
	return nil
}

// Audit returns a copy of appended entries.
func (m *Memory) Audit() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.audit...)
}

func (m *Memory) Close() error { return nil }
