package domain

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

type DBType string

const (
	DBTypePostgreSQL DBType = "postgresql"
	DBTypeMySQL      DBType = "mysql"
	DBTypeMongoDB    DBType = "mongodb"
	DBTypeSQLite     DBType = "sqlite"
)

func (t DBType) Valid() bool {
	switch t {
	case DBTypePostgreSQL, DBTypeMySQL, DBTypeMongoDB, DBTypeSQLite:
		return true
	}
	return false
}

// DefaultPort is the vendor port used when a connection leaves it unset.
func (t DBType) DefaultPort() int {
	switch t {
	case DBTypePostgreSQL:
		return 5432
	case DBTypeMySQL:
		return 3306
	case DBTypeMongoDB:
		return 27017
	}
	return 0
}

// Connection describes a database the toolkit can reach. For SQLite,
// Database holds the file path.
type Connection struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DBType       DBType    `json:"db_type"`
	Host         string    `json:"host,omitempty"`
	Port         int       `json:"port,omitempty"`
	Username     string    `json:"username,omitempty"`
	Password     string    `json:"-"`
	Database     string    `json:"database"`
	AuthDatabase string    `json:"auth_database,omitempty"`
	SSLMode      string    `json:"ssl_mode,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c *Connection) PortOrDefault() int {
	if c.Port > 0 {
		return c.Port
	}
	return c.DBType.DefaultPort()
}

// DisplayName is used in artifact filenames: the connection name, or the
// database file stem when the connection is unnamed.
func (c *Connection) DisplayName() string {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		base := filepath.Base(c.Database)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = string(c.DBType)
	}
	return sanitizeFilename(name)
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}

type ConnectionStore interface {
	AddConnection(ctx context.Context, c *Connection) error
	GetConnection(ctx context.Context, id string) (*Connection, error)
	ListConnections(ctx context.Context) ([]*Connection, error)
	DeleteConnection(ctx context.Context, id string) (bool, error)
}

// DumpRequest is what a dump strategy needs to produce one artifact.
type DumpRequest struct {
	Connection *Connection
	BackupType BackupType
	Tables     []string
	OutputPath string
}

// Dumper produces and loads backup artifacts for one database kind,
// usually by shelling out to the vendor tool.
type Dumper interface {
	Dump(ctx context.Context, req DumpRequest) error
	Restore(ctx context.Context, conn *Connection, inputPath string, tables []string) error
	Type() DBType
}
