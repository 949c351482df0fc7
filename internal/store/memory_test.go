package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"st-telemetry/gateway/internal/domain"
)

func newReading(session, pid string, value float64, ts time.Time) domain.Reading {
	return domain.Reading{
		SessionID: session,
		PID:       pid,
		Value:     value,
		Unit:      "PSI",
		Timestamp: ts,
	}
}

func TestMemoryStore_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	start := time.Now()
	require.NoError(t, m.CreateSession(ctx, domain.Session{
		ID: "s1", StartTime: start, VehicleInfo: "Focus ST",
	}))

	end := start.Add(time.Minute)
	require.NoError(t, m.EndSession(ctx, "s1", end))

	sessions, err := m.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].EndTime)
	assert.True(t, sessions[0].EndTime.Equal(end))

	// a second end keeps the original end time
	require.NoError(t, m.EndSession(ctx, "s1", end.Add(time.Hour)))
	sessions, _ = m.ListSessions(ctx, 10)
	assert.True(t, sessions[0].EndTime.Equal(end))

	assert.ErrorIs(t, m.EndSession(ctx, "missing", end), ErrSessionNotFound)
}

func TestMemoryStore_ListSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.CreateSession(ctx, domain.Session{
			ID: id, StartTime: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	sessions, err := m.ListSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "c", sessions[0].ID)
	assert.Equal(t, "b", sessions[1].ID)
}

func TestMemoryStore_QueryRangeAscending(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	base := time.Now()
	// inserted out of order; range queries sort by timestamp
	require.NoError(t, m.InsertReadings(ctx, []domain.Reading{
		newReading("s1", "BOOST", 2, base.Add(2*time.Second)),
		newReading("s1", "BOOST", 0, base),
		newReading("s1", "BOOST", 1, base.Add(time.Second)),
		newReading("other", "BOOST", 9, base),
	}))

	all, err := m.QueryRange(ctx, "s1", nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, want := range []float64{0, 1, 2} {
		assert.Equal(t, want, all[i].Value)
	}

	// bounds are inclusive on both ends
	start := base.Add(time.Second)
	end := base.Add(2 * time.Second)
	bounded, err := m.QueryRange(ctx, "s1", &start, &end)
	require.NoError(t, err)
	require.Len(t, bounded, 2)
	assert.Equal(t, float64(1), bounded[0].Value)
	assert.Equal(t, float64(2), bounded[1].Value)
}

func TestMemoryStore_QueryRecentDescendingWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	now := time.Now()
	require.NoError(t, m.InsertReadings(ctx, []domain.Reading{
		newReading("s1", "RPM", 1, now.Add(-90*time.Second)), // outside window
		newReading("s1", "RPM", 2, now.Add(-30*time.Second)),
		newReading("s1", "RPM", 3, now.Add(-5*time.Second)),
	}))

	recent, err := m.QueryRecent(ctx, "s1", time.Minute)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, float64(3), recent[0].Value, "newest first")
	assert.Equal(t, float64(2), recent[1].Value)
}

func TestMemoryStore_Prune(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	now := time.Now()
	require.NoError(t, m.InsertReadings(ctx, []domain.Reading{
		newReading("s1", "RPM", 1, now.Add(-48*time.Hour)),
		newReading("s1", "RPM", 2, now.Add(-36*time.Hour)),
		newReading("s1", "RPM", 3, now.Add(-time.Minute)),
		newReading("s2", "RPM", 4, now.Add(-72*time.Hour)),
	}))

	deleted, err := m.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	kept, err := m.QueryRange(ctx, "s1", nil, nil)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, float64(3), kept[0].Value)
}

func TestMemoryStore_Rules(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	id1, err := m.CreateRule(ctx, domain.AlertRule{
		Name: "Overboost", PID: "BOOST", Condition: domain.ConditionGT,
		Threshold: 20, Enabled: true, Notify: true,
	})
	require.NoError(t, err)
	id2, err := m.CreateRule(ctx, domain.AlertRule{
		Name: "Low fuel", PID: "FUEL_LEVEL", Condition: domain.ConditionLT,
		Threshold: 10, Enabled: true,
	})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	require.NoError(t, m.SetRuleEnabled(ctx, id2, false))

	enabled, err := m.ListRules(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "Overboost", enabled[0].Name)

	all, err := m.ListRules(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, m.SetRuleEnabled(ctx, 999, true), ErrRuleNotFound)
}

func TestMemoryStore_AlertHistory(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.LogAlert(ctx, domain.AlertEvent{
			RuleID: int64(i + 1), SessionID: "s1", PID: "BOOST", Value: 21,
		}))
	}
	require.NoError(t, m.LogAlert(ctx, domain.AlertEvent{
		RuleID: 9, SessionID: "other", PID: "RPM", Value: 7000,
	}))

	events, err := m.ListAlertHistory(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// newest first
	assert.Equal(t, int64(3), events[0].RuleID)
	assert.Equal(t, int64(2), events[1].RuleID)

	all, err := m.ListAlertHistory(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
