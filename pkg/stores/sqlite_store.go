// Package stores implements durable persistence for stack, resource, and
// event records over SQLite.
package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/cumulo-io/cumulo/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists engine state in a SQLite database. It implements
// engine.StateSink for transition recording plus the query surface the CLI
// reads from.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database, enables WAL mode, and configures the pool.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveStack upserts the durable stack record. Part of engine.StateSink.
func (s *SQLiteStore) SaveStack(record *engine.StackRecord) error {
	query := `
		INSERT INTO stacks (name, action, status, status_reason, disable_rollback, graph_version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			action = excluded.action,
			status = excluded.status,
			status_reason = excluded.status_reason,
			disable_rollback = excluded.disable_rollback,
			graph_version = excluded.graph_version,
			updated_at = excluded.updated_at
	`
	_, err := s.db.Exec(query,
		record.Name,
		string(record.Action),
		string(record.Status),
		record.StatusReason,
		boolToInt(record.DisableRollback),
		record.GraphVersion,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save stack %s: %w", record.Name, err)
	}
	return nil
}

// SaveResource upserts the durable resource record. Part of engine.StateSink.
func (s *SQLiteStore) SaveResource(record *engine.ResourceRecord) error {
	props, err := json.Marshal(record.Properties)
	if err != nil {
		return fmt.Errorf("failed to encode properties for %s: %w", record.Name, err)
	}
	dependsOn, err := json.Marshal(record.DependsOn)
	if err != nil {
		return fmt.Errorf("failed to encode dependencies for %s: %w", record.Name, err)
	}
	hooks, err := json.Marshal(record.Hooks)
	if err != nil {
		return fmt.Errorf("failed to encode hooks for %s: %w", record.Name, err)
	}

	query := `
		INSERT INTO resources (stack_name, name, type, physical_id, action, status, status_reason, properties, depends_on, hooks, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(stack_name, name) DO UPDATE SET
			type = excluded.type,
			physical_id = excluded.physical_id,
			action = excluded.action,
			status = excluded.status,
			status_reason = excluded.status_reason,
			properties = excluded.properties,
			depends_on = excluded.depends_on,
			hooks = excluded.hooks,
			updated_at = excluded.updated_at
	`
	_, err = s.db.Exec(query,
		record.StackName,
		record.Name,
		record.Type,
		record.PhysicalID,
		string(record.Action),
		string(record.Status),
		record.StatusReason,
		string(props),
		string(dependsOn),
		string(hooks),
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save resource %s: %w", record.Name, err)
	}
	return nil
}

// AppendEvent appends one timeline event. Part of engine.StateSink.
func (s *SQLiteStore) AppendEvent(event *engine.Event) error {
	query := `
		INSERT INTO events (id, stack_name, resource_name, action, status, reason, physical_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		event.ID,
		event.StackName,
		event.ResourceName,
		string(event.Action),
		string(event.Status),
		event.Reason,
		event.PhysicalID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// DeleteResource drops the durable record of a resource removed from the
// stack. Part of engine.StateSink.
func (s *SQLiteStore) DeleteResource(stackName, resourceName string) error {
	_, err := s.db.Exec(`DELETE FROM resources WHERE stack_name = ? AND name = ?`, stackName, resourceName)
	if err != nil {
		return fmt.Errorf("failed to delete resource %s: %w", resourceName, err)
	}
	return nil
}

// GetStack retrieves one stack record by name.
func (s *SQLiteStore) GetStack(ctx context.Context, name string) (*engine.StackRecord, error) {
	query := `
		SELECT name, action, status, status_reason, disable_rollback, graph_version, updated_at
		FROM stacks WHERE name = ?
	`
	record := &engine.StackRecord{}
	var action, status string
	var disableRollback int
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&record.Name,
		&action,
		&status,
		&record.StatusReason,
		&disableRollback,
		&record.GraphVersion,
		&record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stack not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stack: %w", err)
	}
	record.Action = engine.Action(action)
	record.Status = engine.Status(status)
	record.DisableRollback = disableRollback != 0
	return record, nil
}

// ListStacks returns all stack records, most recently updated first.
func (s *SQLiteStore) ListStacks(ctx context.Context) ([]*engine.StackRecord, error) {
	query := `
		SELECT name, action, status, status_reason, disable_rollback, graph_version, updated_at
		FROM stacks ORDER BY updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list stacks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*engine.StackRecord
	for rows.Next() {
		record := &engine.StackRecord{}
		var action, status string
		var disableRollback int
		if err := rows.Scan(&record.Name, &action, &status, &record.StatusReason,
			&disableRollback, &record.GraphVersion, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stack: %w", err)
		}
		record.Action = engine.Action(action)
		record.Status = engine.Status(status)
		record.DisableRollback = disableRollback != 0
		records = append(records, record)
	}
	return records, rows.Err()
}

// ListResources returns the resource records of one stack, sorted by name.
func (s *SQLiteStore) ListResources(ctx context.Context, stackName string) ([]*engine.ResourceRecord, error) {
	query := `
		SELECT stack_name, name, type, physical_id, action, status, status_reason, properties, depends_on, hooks, updated_at
		FROM resources WHERE stack_name = ? ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query, stackName)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*engine.ResourceRecord
	for rows.Next() {
		record := &engine.ResourceRecord{}
		var action, status, props, dependsOn, hooks string
		if err := rows.Scan(&record.StackName, &record.Name, &record.Type, &record.PhysicalID,
			&action, &status, &record.StatusReason, &props, &dependsOn, &hooks, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		record.Action = engine.Action(action)
		record.Status = engine.Status(status)
		if err := json.Unmarshal([]byte(props), &record.Properties); err != nil {
			return nil, fmt.Errorf("failed to decode properties for %s: %w", record.Name, err)
		}
		if err := json.Unmarshal([]byte(dependsOn), &record.DependsOn); err != nil {
			return nil, fmt.Errorf("failed to decode dependencies for %s: %w", record.Name, err)
		}
		if err := json.Unmarshal([]byte(hooks), &record.Hooks); err != nil {
			return nil, fmt.Errorf("failed to decode hooks for %s: %w", record.Name, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ListEvents returns up to limit events for a stack, oldest first. A zero
// limit returns everything.
func (s *SQLiteStore) ListEvents(ctx context.Context, stackName string, limit int) ([]*engine.Event, error) {
	query := `
		SELECT id, stack_name, resource_name, action, status, reason, physical_id, timestamp
		FROM events WHERE stack_name = ? ORDER BY timestamp
	`
	args := []any{stackName}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*engine.Event
	for rows.Next() {
		event := &engine.Event{}
		var action, status string
		if err := rows.Scan(&event.ID, &event.StackName, &event.ResourceName,
			&action, &status, &event.Reason, &event.PhysicalID, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Action = engine.Action(action)
		event.Status = engine.Status(status)
		events = append(events, event)
	}
	return events, rows.Err()
}

// DeleteStack removes a stack and, via cascade, its resources.
func (s *SQLiteStore) DeleteStack(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM stacks WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete stack %s: %w", name, err)
	}
	return nil
}

// HealthCheck verifies database connectivity.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
