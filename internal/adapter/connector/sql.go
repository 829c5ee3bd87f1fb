package connector

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

// SQLConnector runs statements over database/sql for the relational kinds.
type SQLConnector struct {
	dbType domain.DBType
	db     *sql.DB
}

func NewSQL(dbType domain.DBType) *SQLConnector {
	return &SQLConnector{dbType: dbType}
}

func driverName(dbType domain.DBType) (string, error) {
	switch dbType {
	case domain.DBTypePostgreSQL:
		return "pgx", nil
	case domain.DBTypeMySQL:
		return "mysql", nil
	case domain.DBTypeSQLite:
		return "sqlite", nil
	}
	return "", fmt.Errorf("%w: no sql driver for %q", domain.ErrUnsupported, dbType)
}

// DSN renders the driver-specific data source name for conn.
func DSN(conn *domain.Connection) (string, error) {
	switch conn.DBType {
	case domain.DBTypePostgreSQL:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(conn.Username, conn.Password),
			Host:   net.JoinHostPort(conn.Host, strconv.Itoa(conn.PortOrDefault())),
			Path:   "/" + conn.Database,
		}
		sslMode := conn.SSLMode
		if sslMode == "" {
			sslMode = "prefer"
		}
		u.RawQuery = url.Values{"sslmode": {sslMode}}.Encode()
		return u.String(), nil

	case domain.DBTypeMySQL:
		cfg := mysql.NewConfig()
		cfg.User = conn.Username
		cfg.Passwd = conn.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(conn.Host, strconv.Itoa(conn.PortOrDefault()))
		cfg.DBName = conn.Database
		cfg.ParseTime = true
		cfg.Timeout = 10 * time.Second
		return cfg.FormatDSN(), nil

	case domain.DBTypeSQLite:
		if conn.Database == "" {
			return "", fmt.Errorf("%w: sqlite connection has no database file", domain.ErrValidation)
		}
		return "file:" + conn.Database + "?_pragma=busy_timeout(5000)", nil
	}
	return "", fmt.Errorf("%w: database type %q", domain.ErrUnsupported, conn.DBType)
}

func (c *SQLConnector) Connect(ctx context.Context, conn *domain.Connection) error {
	driver, err := driverName(c.dbType)
	if err != nil {
		return err
	}
	dsn, err := DSN(conn)
	if err != nil {
		return err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s connection: %w", c.dbType, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to %s: %w", c.dbType, err)
	}

	c.db = db
	return nil
}

// returnsRows guesses whether a statement yields a result set. Anything else
// goes through Exec and reports the affected row count.
func returnsRows(query string) bool {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(strings.TrimLeft(fields[0], "(")) {
	case "SELECT", "WITH", "SHOW", "EXPLAIN", "DESCRIBE", "DESC", "PRAGMA", "VALUES", "TABLE":
		return true
	}
	return strings.Contains(strings.ToUpper(query), "RETURNING")
}

func (c *SQLConnector) ExecuteQuery(ctx context.Context, query string, _ domain.Page) (*domain.ConnectorResult, error) {
	if c.db == nil {
		return nil, fmt.Errorf("not connected")
	}

	if !returnsRows(query) {
		res, err := c.db.ExecContext(ctx, query)
		if err != nil {
			return nil, err
		}
		affected, _ := res.RowsAffected()
		return &domain.ConnectorResult{
			Columns:  []string{"rows_affected"},
			Rows:     [][]any{{affected}},
			RowCount: 1,
		}, nil
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := &domain.ConnectorResult{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	}
	return v
}

func (c *SQLConnector) Disconnect(_ context.Context) error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
