package database

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

type MongoDBDumper struct {
	dumpBin    string
	restoreBin string
}

func NewMongoDB(dumpBin, restoreBin string) *MongoDBDumper {
	return &MongoDBDumper{dumpBin: dumpBin, restoreBin: restoreBin}
}

func (m *MongoDBDumper) Type() domain.DBType {
	return domain.DBTypeMongoDB
}

// MongoURI builds a mongodb:// URI with credentials escaped.
func MongoURI(conn *domain.Connection) string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   conn.Host + ":" + strconv.Itoa(conn.PortOrDefault()),
		Path:   "/" + conn.Database,
	}
	if conn.Username != "" {
		u.User = url.UserPassword(conn.Username, conn.Password)
	}
	if conn.AuthDatabase != "" {
		q := url.Values{}
		q.Set("authSource", conn.AuthDatabase)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func mongoDumpArgs(req domain.DumpRequest) []string {
	args := []string{
		fmt.Sprintf("--uri=%s", MongoURI(req.Connection)),
		fmt.Sprintf("--archive=%s", req.OutputPath),
	}

	if req.BackupType != domain.BackupTypeTables || len(req.Tables) == 0 {
		return args
	}

	// mongodump accepts --collection only once.
	if len(req.Tables) == 1 {
		return append(args, fmt.Sprintf("--collection=%s", req.Tables[0]))
	}
	for _, t := range req.Tables {
		args = append(args, fmt.Sprintf("--nsInclude=%s.%s", req.Connection.Database, t))
	}
	return args
}

func mongoRestoreArgs(conn *domain.Connection, inputPath string, tables []string) []string {
	args := []string{
		fmt.Sprintf("--uri=%s", MongoURI(conn)),
		fmt.Sprintf("--archive=%s", inputPath),
	}
	for _, t := range tables {
		args = append(args, fmt.Sprintf("--nsInclude=%s.%s", conn.Database, t))
	}
	return args
}

func (m *MongoDBDumper) Dump(ctx context.Context, req domain.DumpRequest) error {
	return toolRun{
		name:   "mongodump",
		binary: m.dumpBin,
		args:   mongoDumpArgs(req),
	}.run(ctx)
}

func (m *MongoDBDumper) Restore(ctx context.Context, conn *domain.Connection, inputPath string, tables []string) error {
	return toolRun{
		name:   "mongorestore",
		binary: m.restoreBin,
		args:   mongoRestoreArgs(conn, inputPath, tables),
	}.run(ctx)
}
