package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"st-telemetry/gateway/internal/domain"
)

// MemoryStore is an in-memory Store with the same ordering semantics as the
// Postgres implementation. It backs tests and `--store memory` runs where no
// database is available.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	order    []string // session ids in creation order
	readings map[string][]domain.Reading
	history  []domain.AlertEvent
	rules    []domain.AlertRule
	nextRule int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]domain.Session),
		readings: make(map[string][]domain.Reading),
		nextRule: 1,
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		m.order = append(m.order, s.ID)
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) EndSession(ctx context.Context, sessionID string, endTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.EndTime == nil {
		t := endTime
		s.EndTime = &t
		m.sessions[sessionID] = s
	}
	return nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Session, 0, len(m.order))
	// newest first, matching the SQL ORDER BY start_time DESC
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.sessions[m.order[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) InsertReading(ctx context.Context, r domain.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings[r.SessionID] = append(m.readings[r.SessionID], r)
	return nil
}

func (m *MemoryStore) InsertReadings(ctx context.Context, rs []domain.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rs {
		m.readings[r.SessionID] = append(m.readings[r.SessionID], r)
	}
	return nil
}

func (m *MemoryStore) QueryRange(ctx context.Context, sessionID string, start, end *time.Time) ([]domain.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Reading
	for _, r := range m.readings[sessionID] {
		if start != nil && r.Timestamp.Before(*start) {
			continue
		}
		if end != nil && r.Timestamp.After(*end) {
			continue
		}
		out = append(out, r)
	}
	// stable sort keeps insertion order for equal timestamps, so
	// out-of-order arrival never reorders same-instant samples
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *MemoryStore) QueryRecent(ctx context.Context, sessionID string, window time.Duration) ([]domain.Reading, error) {
	cutoff := time.Now().Add(-window)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Reading
	for _, r := range m.readings[sessionID] {
		if r.Timestamp.After(cutoff) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (m *MemoryStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for sid, rs := range m.readings {
		kept := rs[:0]
		for _, r := range rs {
			if r.Timestamp.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, r)
		}
		m.readings[sid] = kept
	}
	return deleted, nil
}

func (m *MemoryStore) LogAlert(ctx context.Context, e domain.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, e)
	return nil
}

func (m *MemoryStore) ListAlertHistory(ctx context.Context, sessionID string, limit int) ([]domain.AlertEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.AlertEvent
	for i := len(m.history) - 1; i >= 0; i-- {
		if sessionID != "" && m.history[i].SessionID != sessionID {
			continue
		}
		out = append(out, m.history[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateRule(ctx context.Context, r domain.AlertRule) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.nextRule
	m.nextRule++
	m.rules = append(m.rules, r)
	return r.ID, nil
}

func (m *MemoryStore) ListRules(ctx context.Context, enabledOnly bool) ([]domain.AlertRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.AlertRule, 0, len(m.rules))
	for _, r := range m.rules {
		if enabledOnly && !r.Enabled {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryStore) SetRuleEnabled(ctx context.Context, ruleID int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == ruleID {
			m.rules[i].Enabled = enabled
			return nil
		}
	}
	return ErrRuleNotFound
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() {}
