package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

type PostgreSQLDumper struct {
	dumpBin    string
	restoreBin string
}

func NewPostgreSQL(dumpBin, restoreBin string) *PostgreSQLDumper {
	return &PostgreSQLDumper{dumpBin: dumpBin, restoreBin: restoreBin}
}

func (p *PostgreSQLDumper) Type() domain.DBType {
	return domain.DBTypePostgreSQL
}

func pgConnArgs(conn *domain.Connection) []string {
	return []string{
		"-h", conn.Host,
		"-p", strconv.Itoa(conn.PortOrDefault()),
		"-U", conn.Username,
		"-d", conn.Database,
	}
}

func pgEnv(conn *domain.Connection) []string {
	env := []string{fmt.Sprintf("PGPASSWORD=%s", conn.Password)}
	if conn.SSLMode != "" {
		env = append(env, fmt.Sprintf("PGSSLMODE=%s", conn.SSLMode))
	}
	return env
}

func pgDumpArgs(req domain.DumpRequest) []string {
	args := append(pgConnArgs(req.Connection), "-F", "p")

	switch req.BackupType {
	case domain.BackupTypeSchemaOnly:
		args = append(args, "--schema-only")
	case domain.BackupTypeDataOnly:
		args = append(args, "--data-only")
	case domain.BackupTypeTables:
		for _, t := range req.Tables {
			args = append(args, "-t", t)
		}
	}

	return append(args, "-f", req.OutputPath)
}

func (p *PostgreSQLDumper) Dump(ctx context.Context, req domain.DumpRequest) error {
	return toolRun{
		name:   "pg_dump",
		binary: p.dumpBin,
		args:   pgDumpArgs(req),
		env:    pgEnv(req.Connection),
	}.run(ctx)
}

func (p *PostgreSQLDumper) Restore(ctx context.Context, conn *domain.Connection, inputPath string, _ []string) error {
	args := append(pgConnArgs(conn), "-v", "ON_ERROR_STOP=1", "-f", inputPath)
	return toolRun{
		name:   "psql",
		binary: p.restoreBin,
		args:   args,
		env:    pgEnv(conn),
	}.run(ctx)
}
