package storage

import (
	"context"
	"strings"
	"sync"

	"psurops/internal/record"
)

// MemoryBackend keeps rows in process. It is used by tests and by the
// "memory" storage driver.
type MemoryBackend struct {
	mu     sync.RWMutex
	rows   []*record.Record
	nextID int64
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{nextID: 1}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryBackend) Insert(ctx context.Context, r *record.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(r), nil
}

func (m *MemoryBackend) InsertNext(ctx context.Context, r *record.Record, next func([]string) string) (int64, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.rows))
	for i, row := range m.rows {
		ids[i] = row.Identifier
	}
	c := r.Clone()
	c.Identifier = next(ids)
	return m.insertLocked(c), c.Identifier, nil
}

func (m *MemoryBackend) insertLocked(r *record.Record) int64 {
	c := r.Clone()
	c.RowID = m.nextID
	m.nextID++
	m.rows = append(m.rows, c)
	return c.RowID
}

func (m *MemoryBackend) Get(ctx context.Context, rowID int64) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexLocked(rowID); i >= 0 {
		return m.rows[i].Clone(), nil
	}
	return nil, ErrRowNotFound
}

func (m *MemoryBackend) List(ctx context.Context) ([]*record.Record, error) {
	return m.collect(ctx, func(*record.Record) bool { return true })
}

func (m *MemoryBackend) ListByIdentifier(ctx context.Context, identifier string) ([]*record.Record, error) {
	return m.collect(ctx, func(r *record.Record) bool { return r.Identifier == identifier })
}

func (m *MemoryBackend) FindBySecondaryKey(ctx context.Context, key string) (*record.Record, error) {
	rs, err := m.collect(ctx, func(r *record.Record) bool { return strings.EqualFold(r.ReportNumber, key) })
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, ErrRowNotFound
	}
	return rs[0], nil
}

func (m *MemoryBackend) Replace(ctx context.Context, r *record.Record, prevVersion int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(r.RowID)
	if i < 0 || m.rows[i].Version != prevVersion {
		return false, nil
	}
	m.rows[i] = r.Clone()
	return true, nil
}

func (m *MemoryBackend) DeleteByIdentifier(ctx context.Context, identifier string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	removed := 0
	for _, r := range m.rows {
		if r.Identifier == identifier {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return removed, nil
}

func (m *MemoryBackend) DeleteRow(ctx context.Context, rowID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(rowID)
	if i < 0 {
		return false, nil
	}
	m.rows = append(m.rows[:i], m.rows[i+1:]...)
	return true, nil
}

func (m *MemoryBackend) Reload(ctx context.Context, rs []*record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = nil
	for _, r := range rs {
		m.insertLocked(r)
	}
	return nil
}

func (m *MemoryBackend) collect(ctx context.Context, keep func(*record.Record) bool) ([]*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*record.Record
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *MemoryBackend) indexLocked(rowID int64) int {
	for i, r := range m.rows {
		if r.RowID == rowID {
			return i
		}
	}
	return -1
}
