// Package history records the outcome of every engine invocation so operators
// can see what ran, on which file, and how it ended.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status summarizes how an invocation ended.
type Status string

const (
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"      // engine ran and exited non-zero
	StatusUnavailable Status = "unavailable" // no engine candidate found
	StatusError       Status = "error"       // launch or internal failure
)

// Run is one recorded engine invocation.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	FileName   string    `json:"file_name"`
	Artifact   string    `json:"artifact,omitempty"`
	ExitCode   int       `json:"exit_code"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 50

// Recorder stores runs and lists the most recent ones, newest first.
type Recorder interface {
	Record(ctx context.Context, run Run) error
	Recent(ctx context.Context, limit int) ([]Run, error)
}

// stamp fills the ID and creation time when the caller left them empty.
func stamp(run Run) Run {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	return run
}

// Memory is a bounded in-process Recorder used when no database is configured.
type Memory struct {
	mu   sync.Mutex
	runs []Run // ring buffer
	next int
	full bool
}

// DefaultMemoryCapacity bounds the in-memory history.
const DefaultMemoryCapacity = 500

// NewMemory creates a recorder keeping at most capacity runs.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{runs: make([]Run, capacity)}
}

func (m *Memory) Record(_ context.Context, run Run) error {
	run = stamp(run)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[m.next] = run
	m.next = (m.next + 1) % len(m.runs)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.next
	if m.full {
		count = len(m.runs)
	}
	if limit > count {
		limit = count
	}

	out := make([]Run, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (m.next - 1 - i + len(m.runs)) % len(m.runs)
		out = append(out, m.runs[idx])
	}
	return out, nil
}
