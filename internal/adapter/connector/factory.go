package connector

import (
	"fmt"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

// New returns a fresh, unconnected connector for dbType. It satisfies
// domain.ConnectorFactory.
func New(dbType domain.DBType) (domain.Connector, error) {
	switch dbType {
	case domain.DBTypePostgreSQL, domain.DBTypeMySQL, domain.DBTypeSQLite:
		return NewSQL(dbType), nil
	case domain.DBTypeMongoDB:
		return NewMongo(), nil
	}
	return nil, fmt.Errorf("%w: database type %q", domain.ErrUnsupported, dbType)
}
