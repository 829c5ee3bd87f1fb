package database

import (
	"context"
	"fmt"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

type Warner interface {
	Warnf(template string, args ...interface{})
}

// SQLiteDumper copies the database file byte for byte. Only full backups are
// possible this way.
type SQLiteDumper struct {
	log Warner
}

func NewSQLite(log Warner) *SQLiteDumper {
	return &SQLiteDumper{log: log}
}

func (s *SQLiteDumper) Type() domain.DBType {
	return domain.DBTypeSQLite
}

func (s *SQLiteDumper) Dump(ctx context.Context, req domain.DumpRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.Connection.Database == "" {
		return fmt.Errorf("%w: sqlite connection has no database file", domain.ErrValidation)
	}
	if req.BackupType != domain.BackupTypeFull && s.log != nil {
		s.log.Warnf("[%s] sqlite backups are file copies; %s treated as full", req.Connection.DisplayName(), req.BackupType)
	}
	return copyFile(ctx, req.Connection.Database, req.OutputPath)
}

func (s *SQLiteDumper) Restore(ctx context.Context, conn *domain.Connection, inputPath string, _ []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if conn.Database == "" {
		return fmt.Errorf("%w: sqlite connection has no database file", domain.ErrValidation)
	}
	return copyFile(ctx, inputPath, conn.Database)
}
