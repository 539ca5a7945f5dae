package pattern

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tareqmamari/execintel/internal/model"
)

// MemoryStore keeps patterns in memory. It backs single-run analyses when
// persistence is disabled, and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	patterns map[string]*model.Pattern
}

// NewMemoryStore creates an empty in-memory pattern store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{patterns: make(map[string]*model.Pattern)}
}

// UpsertIncrement inserts or bumps the pattern and returns a copy.
func (m *MemoryStore) UpsertIncrement(_ context.Context, hash string, fields UpsertFields) (*model.Pattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patterns[hash]
	if !ok {
		p = &model.Pattern{
			PatternHash:       hash,
			NormalizedMessage: fields.NormalizedMessage,
			SignalType:        fields.SignalType,
			FirstSeen:         fields.SeenAt.UTC(),
			LastSeen:          fields.SeenAt.UTC(),
			OccurrenceCount:   1,
			Status:            model.PatternOpen,
		}
		m.patterns[hash] = p
	} else {
		p.OccurrenceCount++
		p.LastSeen = fields.SeenAt.UTC()
	}
	cp := *p
	return &cp, nil
}

// Get returns a copy of the pattern for a hash, or nil when unknown.
func (m *MemoryStore) Get(_ context.Context, hash string) (*model.Pattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.patterns[hash]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// List returns patterns filtered by status, most recently seen first.
func (m *MemoryStore) List(_ context.Context, status model.PatternStatus, limit int) ([]*model.Pattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var patterns []*model.Pattern
	for _, p := range m.patterns {
		if status != "" && p.Status != status {
			continue
		}
		cp := *p
		patterns = append(patterns, &cp)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if !patterns[i].LastSeen.Equal(patterns[j].LastSeen) {
			return patterns[i].LastSeen.After(patterns[j].LastSeen)
		}
		return patterns[i].PatternHash < patterns[j].PatternHash
	})
	if limit > 0 && len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns, nil
}

// SetStatus moves a pattern through its triage lifecycle.
func (m *MemoryStore) SetStatus(_ context.Context, hash string, status model.PatternStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patterns[hash]
	if !ok {
		return fmt.Errorf("pattern %s not found", hash)
	}
	p.Status = status
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
