package store

import (
    "context"
    "sync"
    "time"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu      sync.Mutex
    records map[string]Record // problemId -> latest record
    now     func() time.Time
}

func NewMemory() *Memory {
    return &Memory{records: map[string]Record{}, now: time.Now}
}

func (m *Memory) Save(_ context.Context, rec Record) error {
    if rec.UpdatedAt.IsZero() {
        rec.UpdatedAt = m.now().UTC()
    }
    m.mu.Lock(); defer m.mu.Unlock()
    m.records[rec.ProblemID] = rec
    return nil
}

func (m *Memory) Get(_ context.Context, problemID string) (Record, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    rec, ok := m.records[problemID]
    if !ok {
        return Record{}, ErrNotFound
    }
    return rec, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
