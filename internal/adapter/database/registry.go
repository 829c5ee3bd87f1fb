package database

import (
	"fmt"

	"github.com/semmidev/dbtoolkit/internal/config"
	"github.com/semmidev/dbtoolkit/internal/domain"
)

// Registry dispatches dump and restore work by database kind.
type Registry struct {
	dumpers map[domain.DBType]domain.Dumper
}

func NewRegistry(dumpers ...domain.Dumper) *Registry {
	r := &Registry{dumpers: make(map[domain.DBType]domain.Dumper, len(dumpers))}
	for _, d := range dumpers {
		r.dumpers[d.Type()] = d
	}
	return r
}

// NewDefaultRegistry registers all four strategies with tool paths from config.
func NewDefaultRegistry(tools config.ToolsConfig, log Warner) *Registry {
	return NewRegistry(
		NewPostgreSQL(tools.PgDump, tools.Psql),
		NewMySQL(tools.MySQLDump, tools.MySQL),
		NewMongoDB(tools.MongoDump, tools.MongoRestore),
		NewSQLite(log),
	)
}

func (r *Registry) Get(dbType domain.DBType) (domain.Dumper, error) {
	d, ok := r.dumpers[dbType]
	if !ok {
		return nil, fmt.Errorf("%w: database type %q", domain.ErrUnsupported, dbType)
	}
	return d, nil
}
