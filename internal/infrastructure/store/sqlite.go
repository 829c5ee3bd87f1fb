package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

const timeLayout = time.RFC3339Nano

// SQLiteStore persists connections and backup jobs in one SQLite file.
// Writes go through mu so each status transition is a single statement
// that readers see either before or after.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS connections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		db_type TEXT NOT NULL,
		host TEXT,
		port INTEGER,
		username TEXT,
		password TEXT,
		database TEXT,
		auth_database TEXT,
		ssl_mode TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS backups (
		id TEXT PRIMARY KEY,
		connection_id TEXT NOT NULL,
		name TEXT NOT NULL,
		backup_type TEXT NOT NULL,
		tables TEXT NOT NULL DEFAULT '[]',
		file_path TEXT NOT NULL UNIQUE,
		compressed INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		file_size INTEGER,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_backups_connection ON backups(connection_id);
	CREATE INDEX IF NOT EXISTS idx_backups_created_at ON backups(created_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping is used by the health endpoint.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) AddBackup(ctx context.Context, b domain.NewBackup) (*domain.BackupJob, error) {
	tables := b.Tables
	if tables == nil {
		tables = []string{}
	}
	tablesJSON, err := json.Marshal(tables)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tables: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.BackupJob{
		ID:           uuid.NewString(),
		ConnectionID: b.ConnectionID,
		Name:         b.Name,
		BackupType:   b.BackupType,
		Tables:       tables,
		FilePath:     b.FilePath,
		Compressed:   b.Compressed,
		Status:       domain.BackupStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backups (id, connection_id, name, backup_type, tables, file_path, compressed, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ConnectionID, job.Name, string(job.BackupType), string(tablesJSON),
		job.FilePath, job.Compressed, string(job.Status),
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert backup: %w", err)
	}
	return job, nil
}

// UpdateBackup applies u only when the current status may legally move to
// u.Status. A rejected transition returns domain.ErrInvalidTransition.
func (s *SQLiteStore) UpdateBackup(ctx context.Context, id string, u domain.BackupUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}

	sources := domain.TransitionSources(u.Status)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sources)), ",")

	var fileSize, completedAt any
	if u.FileSize != nil {
		fileSize = *u.FileSize
	}
	if u.CompletedAt != nil {
		completedAt = u.CompletedAt.UTC().Format(timeLayout)
	}

	args := []any{string(u.Status), fileSize, u.ErrorMessage, completedAt, time.Now().UTC().Format(timeLayout), id}
	for _, src := range sources {
		args = append(args, string(src))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE backups
		SET status = ?, file_size = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to update backup: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update backup: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM backups WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("backup %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read backup status: %w", err)
	}
	return fmt.Errorf("backup %s: %s -> %s: %w", id, current, u.Status, domain.ErrInvalidTransition)
}

const backupColumns = `id, connection_id, name, backup_type, tables, file_path, compressed, status, file_size, error_message, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBackup(row rowScanner) (*domain.BackupJob, error) {
	var (
		job         domain.BackupJob
		backupType  string
		status      string
		tablesJSON  string
		fileSize    sql.NullInt64
		createdAt   string
		updatedAt   string
		completedAt sql.NullString
	)
	err := row.Scan(&job.ID, &job.ConnectionID, &job.Name, &backupType, &tablesJSON,
		&job.FilePath, &job.Compressed, &status, &fileSize, &job.ErrorMessage,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	job.BackupType = domain.BackupType(backupType)
	job.Status = domain.BackupStatus(status)
	if err := json.Unmarshal([]byte(tablesJSON), &job.Tables); err != nil {
		return nil, fmt.Errorf("failed to decode tables: %w", err)
	}
	if fileSize.Valid {
		size := fileSize.Int64
		job.FileSize = &size
	}
	job.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	job.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	if completedAt.Valid {
		t, err := time.Parse(timeLayout, completedAt.String)
		if err == nil {
			job.CompletedAt = &t
		}
	}
	return &job, nil
}

func (s *SQLiteStore) GetBackup(ctx context.Context, id string) (*domain.BackupJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+backupColumns+` FROM backups WHERE id = ?`, id)
	job, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("backup %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backup: %w", err)
	}
	return job, nil
}

// ListBackups returns newest first. An empty connectionID lists everything.
func (s *SQLiteStore) ListBackups(ctx context.Context, connectionID string) ([]*domain.BackupJob, error) {
	query := `SELECT ` + backupColumns + ` FROM backups`
	var args []any
	if connectionID != "" {
		query += ` WHERE connection_id = ?`
		args = append(args, connectionID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	jobs := []*domain.BackupJob{}
	for rows.Next() {
		job, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) DeleteBackup(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete backup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete backup: %w", err)
	}
	return n > 0, nil
}

// BackupPathExists reports whether any record claims one of paths.
func (s *SQLiteStore) BackupPathExists(ctx context.Context, paths ...string) (bool, error) {
	if len(paths) == 0 {
		return false, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(paths)), ",")
	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
	}

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM backups WHERE file_path IN (`+placeholders+`)`, args...).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check backup path: %w", err)
	}
	return n > 0, nil
}
