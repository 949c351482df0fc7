package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"st-telemetry/gateway/internal/config"
	"st-telemetry/gateway/internal/domain"
)

// PostgresStore persists telemetry in Postgres (TimescaleDB-compatible).
// All statements are single-statement and therefore atomic, so Prune never
// exposes a half-deleted range to a concurrent range query.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess domain.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO telemetry_sessions (session_id, start_time, vehicle_info)
		VALUES ($1, $2, $3)
	`, sess.ID, sess.StartTime, sess.VehicleInfo)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *PostgresStore) EndSession(ctx context.Context, sessionID string, endTime time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE telemetry_sessions
		SET end_time = $1
		WHERE session_id = $2 AND end_time IS NULL
	`, endTime, sessionID)
	if err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM telemetry_sessions WHERE session_id = $1)`,
			sessionID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("end session %s: %w", sessionID, err)
		}
		if !exists {
			return ErrSessionNotFound
		}
		// already ended; end_time is never cleared or rewritten
	}
	return nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, start_time, end_time, COALESCE(vehicle_info, '')
		FROM telemetry_sessions
		ORDER BY start_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var sess domain.Session
		if err := rows.Scan(&sess.ID, &sess.StartTime, &sess.EndTime, &sess.VehicleInfo); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertReading(ctx context.Context, r domain.Reading) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO telemetry_data (session_id, timestamp, pid, value, unit)
		VALUES ($1, $2, $3, $4, $5)
	`, r.SessionID, r.Timestamp, r.PID, r.Value, r.Unit)
	if err != nil {
		return fmt.Errorf("insert reading %s: %w", r.PID, err)
	}
	return nil
}

var readingColumns = []string{"session_id", "timestamp", "pid", "value", "unit"}

func (s *PostgresStore) InsertReadings(ctx context.Context, rs []domain.Reading) error {
	if len(rs) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(rs))
	for i, r := range rs {
		rows[i] = []interface{}{r.SessionID, r.Timestamp, r.PID, r.Value, r.Unit}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"telemetry_data"},
		readingColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(rs), err)
	}
	return nil
}

func (s *PostgresStore) QueryRange(ctx context.Context, sessionID string, start, end *time.Time) ([]domain.Reading, error) {
	query := `SELECT session_id, timestamp, pid, value, unit
	          FROM telemetry_data
	          WHERE session_id = $1`
	args := []interface{}{sessionID}

	if start != nil {
		args = append(args, *start)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}
	query += " ORDER BY timestamp ASC"

	return s.queryReadings(ctx, query, args...)
}

func (s *PostgresStore) QueryRecent(ctx context.Context, sessionID string, window time.Duration) ([]domain.Reading, error) {
	cutoff := time.Now().Add(-window)
	return s.queryReadings(ctx, `
		SELECT session_id, timestamp, pid, value, unit
		FROM telemetry_data
		WHERE session_id = $1 AND timestamp > $2
		ORDER BY timestamp DESC
	`, sessionID, cutoff)
}

func (s *PostgresStore) queryReadings(ctx context.Context, query string, args ...interface{}) ([]domain.Reading, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []domain.Reading
	for rows.Next() {
		var r domain.Reading
		if err := rows.Scan(&r.SessionID, &r.Timestamp, &r.PID, &r.Value, &r.Unit); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM telemetry_data WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune readings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) LogAlert(ctx context.Context, e domain.AlertEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_history
			(alert_config_id, session_id, timestamp, pid, value, message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.RuleID, e.SessionID, e.Timestamp, e.PID, e.Value, e.Message)
	if err != nil {
		return fmt.Errorf("log alert for rule %d: %w", e.RuleID, err)
	}
	return nil
}

func (s *PostgresStore) ListAlertHistory(ctx context.Context, sessionID string, limit int) ([]domain.AlertEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT h.alert_config_id, COALESCE(c.name, ''), h.session_id, h.pid,
	                 h.value, COALESCE(c.condition, ''), COALESCE(c.threshold, 0),
	                 h.message, h.timestamp
	          FROM alert_history h
	          LEFT JOIN alert_configs c ON c.id = h.alert_config_id`
	args := []interface{}{}
	if sessionID != "" {
		args = append(args, sessionID)
		query += " WHERE h.session_id = $1"
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY h.timestamp DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alert history: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertEvent
	for rows.Next() {
		var e domain.AlertEvent
		var cond string
		if err := rows.Scan(&e.RuleID, &e.RuleName, &e.SessionID, &e.PID,
			&e.Value, &cond, &e.Threshold, &e.Message, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan alert event: %w", err)
		}
		e.Condition = domain.Condition(cond)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateRule(ctx context.Context, r domain.AlertRule) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO alert_configs (name, pid, condition, threshold, enabled, notify)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, r.Name, r.PID, string(r.Condition), r.Threshold, r.Enabled, r.Notify).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create rule %q: %w", r.Name, err)
	}
	return id, nil
}

func (s *PostgresStore) ListRules(ctx context.Context, enabledOnly bool) ([]domain.AlertRule, error) {
	query := `SELECT id, name, pid, condition, threshold, enabled, notify FROM alert_configs`
	if enabledOnly {
		query += " WHERE enabled"
	}
	query += " ORDER BY id ASC"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertRule
	for rows.Next() {
		var r domain.AlertRule
		var cond string
		if err := rows.Scan(&r.ID, &r.Name, &r.PID, &cond, &r.Threshold, &r.Enabled, &r.Notify); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Condition = domain.Condition(cond)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetRuleEnabled(ctx context.Context, ruleID int64, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alert_configs SET enabled = $1 WHERE id = $2`, enabled, ruleID)
	if err != nil {
		return fmt.Errorf("set rule %d enabled=%t: %w", ruleID, enabled, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}
