package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCheckpointNotFound is returned when a checkpoint ID does not exist.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// SQLiteStore implements StateStore, CheckpointStore and AuditLog over a
// single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
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

	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

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

// Migrate runs database migrations from the embedded SQL files.
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

// Put inserts or replaces a resource record.
func (s *SQLiteStore) Put(ctx context.Context, record *ResourceState) error {
	query := `
		INSERT INTO resource_states (project, resource_name, resource_type, phase, status, restored, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project, resource_name) DO UPDATE SET
			resource_type = excluded.resource_type,
			phase = excluded.phase,
			status = excluded.status,
			restored = excluded.restored,
			timestamp = excluded.timestamp
	`

	_, err := s.db.ExecContext(ctx, query,
		record.Project,
		record.ResourceName,
		record.ResourceType,
		record.Phase,
		record.Status,
		record.Restored,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to put resource state: %w", err)
	}

	return nil
}

// Scan returns all resource records for a project, ordered by name.
func (s *SQLiteStore) Scan(ctx context.Context, project string) ([]ResourceState, error) {
	query := `
		SELECT project, resource_name, resource_type, phase, status, restored, timestamp
		FROM resource_states
		WHERE project = ?
		ORDER BY resource_name
	`

	rows, err := s.db.QueryContext(ctx, query, project)
	if err != nil {
		return nil, fmt.Errorf("failed to scan resource states: %w", err)
	}
	defer rows.Close()

	states := []ResourceState{}
	for rows.Next() {
		var rec ResourceState
		if err := rows.Scan(
			&rec.Project,
			&rec.ResourceName,
			&rec.ResourceType,
			&rec.Phase,
			&rec.Status,
			&rec.Restored,
			&rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan resource state row: %w", err)
		}
		states = append(states, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resource states: %w", err)
	}

	return states, nil
}

// Delete removes one resource record.
func (s *SQLiteStore) Delete(ctx context.Context, project, resourceName string) error {
	query := `DELETE FROM resource_states WHERE project = ? AND resource_name = ?`

	if _, err := s.db.ExecContext(ctx, query, project, resourceName); err != nil {
		return fmt.Errorf("failed to delete resource state: %w", err)
	}

	return nil
}

// CreateCheckpoint appends a new checkpoint row.
func (s *SQLiteStore) CreateCheckpoint(ctx context.Context, record *CheckpointRecord) error {
	query := `
		INSERT INTO checkpoints (id, project, created_at, description, vcs_revision, vcs_branch, snapshot, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Project,
		record.CreatedAt,
		record.Description,
		record.VCSRevision,
		record.VCSBranch,
		record.Snapshot,
		record.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}

	return nil
}

// GetCheckpoint retrieves a checkpoint by ID regardless of status.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, id string) (*CheckpointRecord, error) {
	query := `
		SELECT id, project, created_at, description, vcs_revision, vcs_branch, snapshot, status
		FROM checkpoints
		WHERE id = ?
	`

	record := &CheckpointRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.Project,
		&record.CreatedAt,
		&record.Description,
		&record.VCSRevision,
		&record.VCSBranch,
		&record.Snapshot,
		&record.Status,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return record, nil
}

// ListActiveCheckpoints returns active checkpoints for a project, most
// recent first.
func (s *SQLiteStore) ListActiveCheckpoints(ctx context.Context, project string) ([]*CheckpointRecord, error) {
	query := `
		SELECT id, project, created_at, description, vcs_revision, vcs_branch, snapshot, status
		FROM checkpoints
		WHERE project = ? AND status = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, project, CheckpointStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := []*CheckpointRecord{}
	for rows.Next() {
		record := &CheckpointRecord{}
		if err := rows.Scan(
			&record.ID,
			&record.Project,
			&record.CreatedAt,
			&record.Description,
			&record.VCSRevision,
			&record.VCSBranch,
			&record.Snapshot,
			&record.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		checkpoints = append(checkpoints, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}

	return checkpoints, nil
}

// SetCheckpointStatus updates one checkpoint's status.
func (s *SQLiteStore) SetCheckpointStatus(ctx context.Context, id string, status CheckpointStatus) error {
	query := `UPDATE checkpoints SET status = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update checkpoint status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}

	return nil
}

// Append writes one audit entry.
func (s *SQLiteStore) Append(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO audit_entries (phase, actor, action, rationale, status, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.Phase,
		entry.Actor,
		entry.Action,
		entry.Rationale,
		entry.Status,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// ListRecent returns the newest audit entries, most recent first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*AuditEntry, error) {
	query := `
		SELECT id, phase, actor, action, rationale, status, timestamp
		FROM audit_entries
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		if err := rows.Scan(
			&entry.ID,
			&entry.Phase,
			&entry.Actor,
			&entry.Action,
			&entry.Rationale,
			&entry.Status,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry row: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}

	return entries, nil
}

// HealthCheck verifies the database connection is alive.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
