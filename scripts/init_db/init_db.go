package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "telemetry_user"),
		dbGetEnv("DB_PASSWORD", "telemetry_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "st_telemetry"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	// Run all steps in order
	step1_extensions(ctx, conn)
	step2_sessions_table(ctx, conn)
	step3_telemetry_table(ctx, conn)
	step4_alert_tables(ctx, conn)
	step5_indexes(ctx, conn)
	step6_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run scripts/seed_redis/seed_redis.go")
}

// ─────────────────────────────────────────────────────────────
// Step 1 — Extensions
// ─────────────────────────────────────────────────────────────
func step1_extensions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Extensions ──────────────────────────")

	// TimescaleDB — required for hypertable
	execOrFatal(ctx, conn,
		"CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;",
		"timescaledb extension",
	)
}

// ─────────────────────────────────────────────────────────────
// Step 2 — telemetry_sessions table
// ─────────────────────────────────────────────────────────────
func step2_sessions_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: telemetry_sessions table ────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS telemetry_sessions (

			-- Session id is generated by the gateway (UUID string)
			session_id    TEXT         PRIMARY KEY,

			start_time    TIMESTAMPTZ  NOT NULL,

			-- NULL while the session is still running
			end_time      TIMESTAMPTZ,

			vehicle_info  TEXT
		);
	`, "telemetry_sessions table created")
}

// ─────────────────────────────────────────────────────────────
// Step 3 — telemetry_data table
// ─────────────────────────────────────────────────────────────
func step3_telemetry_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: telemetry_data table ────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS telemetry_data (

			-- Time column — TimescaleDB partitions data by this
			-- TIMESTAMPTZ always stores in UTC
			timestamp   TIMESTAMPTZ      NOT NULL,

			session_id  TEXT             NOT NULL,

			-- PID name, e.g. RPM, BOOST_PRESSURE, COOLANT_TEMP
			pid         TEXT             NOT NULL,

			value       DOUBLE PRECISION NOT NULL,
			unit        TEXT             NOT NULL DEFAULT ''
		);
	`, "telemetry_data table created")

	// Convert to TimescaleDB hypertable
	// This partitions data automatically into 7-day chunks
	// Queries on recent data only touch the latest chunk — very fast
	execOrFatal(ctx, conn, `
		SELECT create_hypertable(
			'telemetry_data',
			'timestamp',
			if_not_exists => TRUE
		);
	`, "telemetry_data converted to hypertable")
}

// ─────────────────────────────────────────────────────────────
// Step 4 — alert_configs and alert_history tables
// ─────────────────────────────────────────────────────────────
func step4_alert_tables(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: alert tables ────────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS alert_configs (

			id         BIGSERIAL        PRIMARY KEY,

			name       TEXT             NOT NULL,
			pid        TEXT             NOT NULL,

			-- Must exactly match domain.Condition values
			condition  TEXT             NOT NULL,

			threshold  DOUBLE PRECISION NOT NULL,
			enabled    BOOLEAN          NOT NULL DEFAULT true,

			-- Whether a trigger is dispatched to notification channels
			notify     BOOLEAN          NOT NULL DEFAULT false,

			created_at TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			-- Constraint: condition must be one of the 6 valid values
			-- Prevents garbage data entering the table
			CONSTRAINT chk_condition CHECK (
				condition IN ('gt', 'gte', 'lt', 'lte', 'eq', 'neq')
			)
		);
	`, "alert_configs table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS alert_history (

			id               BIGSERIAL        PRIMARY KEY,

			-- Not a foreign key: history outlives deleted rules
			alert_config_id  BIGINT           NOT NULL,

			session_id       TEXT             NOT NULL,
			timestamp        TIMESTAMPTZ      NOT NULL,

			pid              TEXT             NOT NULL,

			-- The sensor value that triggered this alert
			value            DOUBLE PRECISION NOT NULL,

			message          TEXT             NOT NULL
		);
	`, "alert_history table created")
}

// ─────────────────────────────────────────────────────────────
// Step 5 — Indexes
// ─────────────────────────────────────────────────────────────
func step5_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_data_session_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_data_session_time
				  ON telemetry_data (session_id, timestamp DESC);`,
			why: "query: readings for one session",
		},
		{
			name: "idx_data_session_pid_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_data_session_pid_time
				  ON telemetry_data (session_id, pid, timestamp DESC);`,
			why: "query: one PID within a session",
		},
		{
			name: "idx_sessions_start",
			sql: `CREATE INDEX IF NOT EXISTS idx_sessions_start
				  ON telemetry_sessions (start_time DESC);`,
			why: "query: session list, newest first",
		},
		{
			name: "idx_history_session_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_history_session_time
				  ON alert_history (session_id, timestamp DESC);`,
			why: "query: alert history for one session",
		},
		{
			name: "idx_configs_enabled",
			sql: `CREATE INDEX IF NOT EXISTS idx_configs_enabled
				  ON alert_configs (id)
				  WHERE enabled;`,
			why: "query: enabled rules only (partial index)",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-40s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 6 — Verify everything was created
// ─────────────────────────────────────────────────────────────
func step6_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 6: Verification ────────────────────────")

	// Check tables exist
	tables := []string{"telemetry_sessions", "telemetry_data", "alert_configs", "alert_history"}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	// Check hypertable
	var hypertableName string
	err := conn.QueryRow(ctx, `
		SELECT hypertable_name
		FROM timescaledb_information.hypertables
		WHERE hypertable_name = 'telemetry_data'
	`).Scan(&hypertableName)
	if err != nil {
		log.Fatalf("telemetry_data is not a hypertable: %v", err)
	}
	fmt.Printf("  ✓ hypertable: %s (time partitioned)\n", hypertableName)

	// Check indexes
	var indexCount int
	err = conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename IN ('telemetry_sessions', 'telemetry_data', 'alert_configs', 'alert_history')
		AND indexname LIKE 'idx_%'
	`).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
