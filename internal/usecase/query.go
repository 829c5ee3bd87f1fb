package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/semmidev/dbtoolkit/internal/config"
	"github.com/semmidev/dbtoolkit/internal/domain"
)

// QueryRequest is one ad-hoc query. Zero Limit and Timeout take the
// configured defaults.
type QueryRequest struct {
	Query   string `json:"query"`
	Limit   int    `json:"limit" binding:"omitempty,min=1,max=10000"`
	Offset  int    `json:"offset" binding:"omitempty,min=0"`
	Timeout int    `json:"timeout" binding:"omitempty,min=1,max=300"`
}

type QueryExecutor struct {
	connectors domain.ConnectorFactory
	cfg        config.QueryConfig
	logger     Logger
	observer   Observer
}

func NewQueryExecutor(connectors domain.ConnectorFactory, cfg config.QueryConfig, logger Logger, observer Observer) *QueryExecutor {
	if observer == nil {
		observer = nopObserver{}
	}
	return &QueryExecutor{connectors: connectors, cfg: cfg, logger: logger, observer: observer}
}

func failedResult(msg string, elapsed float64) domain.QueryResult {
	return domain.QueryResult{
		Success:       false,
		Columns:       []string{},
		Rows:          [][]any{},
		ExecutionTime: elapsed,
		Error:         msg,
	}
}

func roundMillis(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

func (e *QueryExecutor) Execute(ctx context.Context, conn *domain.Connection, req QueryRequest) domain.QueryResult {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return failedResult("Query cannot be empty", 0)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if e.cfg.MaxLimit > 0 && limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	timeout := e.cfg.DefaultTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	if v := ValidateQuery(query, conn.DBType); !v.Safe {
		return failedResult(v.Reason, 0)
	}

	start := time.Now()
	result, err := e.run(ctx, conn, query, limit, offset, timeout)
	elapsed := roundMillis(time.Since(start))

	if err != nil {
		e.observer.ObserveQuery(string(conn.DBType), false, elapsed)
		e.logger.Warnf("[%s] query failed after %.3fs: %v", conn.DisplayName(), elapsed, err)
		return failedResult(err.Error(), elapsed)
	}

	e.observer.ObserveQuery(string(conn.DBType), true, elapsed)
	e.logger.Debugf("[%s] query returned %d row(s) in %.3fs", conn.DisplayName(), result.RowCount, elapsed)

	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}

	return domain.QueryResult{
		Success:       true,
		Columns:       columns,
		Rows:          rows,
		TotalRows:     result.RowCount,
		ExecutionTime: elapsed,
		HasMore:       result.RowCount >= limit,
	}
}

// run holds a connector for the duration of one statement and always
// disconnects it.
func (e *QueryExecutor) run(ctx context.Context, conn *domain.Connection, query string, limit, offset int, timeout time.Duration) (res *domain.ConnectorResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if errors.Is(err, context.DeadlineExceeded) || (err != nil && ctx.Err() == context.DeadlineExceeded) {
			err = fmt.Errorf("Query timed out after %ds", int(timeout.Seconds()))
		}
	}()

	connector, err := e.connectors(conn.DBType)
	if err != nil {
		return nil, err
	}

	if err := connector.Connect(ctx, conn); err != nil {
		return nil, err
	}
	defer func() {
		// Disconnect gets its own short deadline so a timed-out query still releases.
		dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer dcancel()
		if derr := connector.Disconnect(dctx); derr != nil && err == nil {
			err = derr
		}
	}()

	return connector.ExecuteQuery(ctx, Paginate(query, conn.DBType, limit, offset), domain.Page{Limit: limit, Offset: offset})
}

// ValidateOnly exposes the validator for the /query/validate endpoint.
func (e *QueryExecutor) ValidateOnly(query string, dialect domain.DBType) Validation {
	if strings.TrimSpace(query) == "" {
		return Validation{Reason: "Query cannot be empty"}
	}
	return ValidateQuery(query, dialect)
}
