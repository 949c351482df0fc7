package store

import (
	"context"
	"errors"
	"time"

	"st-telemetry/gateway/internal/domain"
)

// ErrSessionNotFound is returned by session operations targeting an unknown
// session id.
var ErrSessionNotFound = errors.New("session not found")

// ErrRuleNotFound is returned when mutating a rule id that does not exist.
var ErrRuleNotFound = errors.New("alert rule not found")

// Store is the rolling, session-scoped history of readings plus the alert
// configuration and alert history tables.
//
// Implementations must be safe for concurrent use. Prune runs concurrently
// with inserts without exposing a half-deleted range to readers. Timestamps
// supplied by callers are stored as-is and never reinterpreted; recency is
// computed against the store's own clock at query time.
type Store interface {
	// Sessions. EndSession sets end_time once; it is never cleared.
	CreateSession(ctx context.Context, s domain.Session) error
	EndSession(ctx context.Context, sessionID string, endTime time.Time) error
	ListSessions(ctx context.Context, limit int) ([]domain.Session, error)

	// Readings. InsertReading appends one record; the record is not
	// guaranteed visible to concurrent readers until the call returns.
	InsertReading(ctx context.Context, r domain.Reading) error
	InsertReadings(ctx context.Context, rs []domain.Reading) error

	// QueryRange returns readings with start <= t <= end in ascending
	// timestamp order. A nil bound is open on that side.
	QueryRange(ctx context.Context, sessionID string, start, end *time.Time) ([]domain.Reading, error)

	// QueryRecent returns readings with t > now-window in descending
	// timestamp order, most recent first.
	QueryRecent(ctx context.Context, sessionID string, window time.Duration) ([]domain.Reading, error)

	// Prune deletes readings older than the cutoff. Sessions and alert
	// history are retained. Returns the number of deleted readings.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)

	// Alert history. Append-only; existing rows are never updated.
	LogAlert(ctx context.Context, e domain.AlertEvent) error
	ListAlertHistory(ctx context.Context, sessionID string, limit int) ([]domain.AlertEvent, error)

	// Alert configuration. Mutations do not touch a running engine; the
	// caller reloads the engine explicitly.
	CreateRule(ctx context.Context, r domain.AlertRule) (int64, error)
	ListRules(ctx context.Context, enabledOnly bool) ([]domain.AlertRule, error)
	SetRuleEnabled(ctx context.Context, ruleID int64, enabled bool) error

	Ping(ctx context.Context) error
	Close()
}
