// Package journal keeps an append-only log of completed voice interactions
// for caregiver review. The journal is written after dispatch and never read
// on the voice path, so a slow or unavailable store cannot delay a response.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one completed interaction.
type Entry struct {
	ID             uuid.UUID
	SessionID      string
	RawText        string
	NormalizedText string
	IntentKind     string
	TargetIntent   string
	Confidence     float64
	ResultKind     string
	ResponseText   string
	At             time.Time
}

// Store persists interaction entries. Implementations must be safe for
// concurrent use.
type Store interface {
	// Record appends one entry.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Close releases the store's resources.
	Close()
}

// Memory is an in-process Store for tests and DSN-less deployments. It keeps
// a bounded window of recent entries.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
}

var _ Store = (*Memory)(nil)

// NewMemory creates a Memory store holding at most capacity entries; older
// entries are evicted.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Memory{cap: capacity}
}

// Record implements Store.
func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if len(m.entries) > m.cap {
		m.entries = m.entries[len(m.entries)-m.cap:]
	}
	return nil
}

// Recent implements Store.
func (m *Memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := min(limit, len(m.entries))
	out := make([]Entry, 0, n)
	for i := len(m.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// Close implements Store.
func (m *Memory) Close() {}
