package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

// AddConnection assigns an ID and creation time when missing.
func (s *SQLiteStore) AddConnection(ctx context.Context, c *domain.Connection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (id, name, db_type, host, port, username, password, database, auth_database, ssl_mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, string(c.DBType), c.Host, c.Port, c.Username, c.Password,
		c.Database, c.AuthDatabase, c.SSLMode, c.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert connection: %w", err)
	}
	return nil
}

const connectionColumns = `id, name, db_type, host, port, username, password, database, auth_database, ssl_mode, created_at`

func scanConnection(row rowScanner) (*domain.Connection, error) {
	var (
		c         domain.Connection
		dbType    string
		createdAt string
	)
	err := row.Scan(&c.ID, &c.Name, &dbType, &c.Host, &c.Port, &c.Username, &c.Password,
		&c.Database, &c.AuthDatabase, &c.SSLMode, &createdAt)
	if err != nil {
		return nil, err
	}
	c.DBType = domain.DBType(dbType)
	c.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &c, nil
}

func (s *SQLiteStore) GetConnection(ctx context.Context, id string) (*domain.Connection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("connection %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListConnections(ctx context.Context) ([]*domain.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	conns := []*domain.Connection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (s *SQLiteStore) DeleteConnection(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete connection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete connection: %w", err)
	}
	return n > 0, nil
}
