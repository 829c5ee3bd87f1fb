package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

type MySQLDumper struct {
	dumpBin    string
	restoreBin string
}

func NewMySQL(dumpBin, restoreBin string) *MySQLDumper {
	return &MySQLDumper{dumpBin: dumpBin, restoreBin: restoreBin}
}

func (m *MySQLDumper) Type() domain.DBType {
	return domain.DBTypeMySQL
}

func mysqlConnArgs(conn *domain.Connection) []string {
	args := []string{
		"-h", conn.Host,
		"-P", strconv.Itoa(conn.PortOrDefault()),
		"-u", conn.Username,
	}
	if conn.Password != "" {
		args = append(args, fmt.Sprintf("--password=%s", conn.Password))
	}
	return args
}

func mysqlDumpArgs(req domain.DumpRequest) []string {
	args := append(mysqlConnArgs(req.Connection), "--single-transaction", "--routines", "--triggers")

	switch req.BackupType {
	case domain.BackupTypeSchemaOnly:
		args = append(args, "--no-data")
	case domain.BackupTypeDataOnly:
		args = append(args, "--no-create-info")
	}

	args = append(args, req.Connection.Database)
	if req.BackupType == domain.BackupTypeTables {
		args = append(args, req.Tables...)
	}
	return args
}

func (m *MySQLDumper) Dump(ctx context.Context, req domain.DumpRequest) error {
	return toolRun{
		name:   "mysqldump",
		binary: m.dumpBin,
		args:   mysqlDumpArgs(req),
		stdout: req.OutputPath,
	}.run(ctx)
}

func (m *MySQLDumper) Restore(ctx context.Context, conn *domain.Connection, inputPath string, _ []string) error {
	args := append(mysqlConnArgs(conn), conn.Database)
	return toolRun{
		name:   "mysql",
		binary: m.restoreBin,
		args:   args,
		stdin:  inputPath,
	}.run(ctx)
}
