package domain

import "context"

// Page carries pagination to connectors that cannot take it inline in the
// query text (MongoDB).
type Page struct {
	Limit  int
	Offset int
}

// ConnectorResult is the raw outcome of one statement.
type ConnectorResult struct {
	Columns  []string
	Rows     [][]any
	RowCount int
}

// Connector is a short-lived session against one database.
type Connector interface {
	Connect(ctx context.Context, conn *Connection) error
	ExecuteQuery(ctx context.Context, query string, page Page) (*ConnectorResult, error)
	Disconnect(ctx context.Context) error
}

type ConnectorFactory func(dbType DBType) (Connector, error)

// QueryResult is what callers of the executor see. Failures are reported
// in-band with Success=false.
type QueryResult struct {
	Success       bool     `json:"success"`
	Columns       []string `json:"columns"`
	Rows          [][]any  `json:"rows"`
	TotalRows     int      `json:"total_rows"`
	ExecutionTime float64  `json:"execution_time"`
	HasMore       bool     `json:"has_more"`
	Error         string   `json:"error,omitempty"`
}
