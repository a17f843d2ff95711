package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("storage: record not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": one JSON file per record under Path (a directory)
//   - "sqlite": SQLite database file at Path
//   - "memory": process-local, for tests and dry runs
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store persists named records as opaque bytes, plus an append-only audit log.
type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// AuditEntry records an operator mutation.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time `json:"at"`
	ActorID string    `json:"actor_id"`
	ChatID  string    `json:"chat_id"`
	Action  string    `json:"action"`
	Target  string    `json:"target,omitempty"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
}
