package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

type testLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *testLogger) Debugf(string, ...interface{}) {}
func (l *testLogger) Infof(string, ...interface{})  {}
func (l *testLogger) Errorf(t string, _ ...interface{}) {
	l.mu.Lock()
	l.errors = append(l.errors, t)
	l.mu.Unlock()
}
func (l *testLogger) Warnf(t string, _ ...interface{}) {
	l.mu.Lock()
	l.warns = append(l.warns, t)
	l.mu.Unlock()
}

// fakeConnector records its lifecycle and answers with a canned result.
type fakeConnector struct {
	result       *domain.ConnectorResult
	connectErr   error
	execErr      error
	block        bool
	connected    bool
	disconnected bool
	lastQuery    string
	lastPage     domain.Page
}

func (f *fakeConnector) Connect(ctx context.Context, _ *domain.Connection) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeConnector) ExecuteQuery(ctx context.Context, query string, page domain.Page) (*domain.ConnectorResult, error) {
	f.lastQuery = query
	f.lastPage = page
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	return f.result, nil
}

func (f *fakeConnector) Disconnect(context.Context) error {
	f.disconnected = true
	return nil
}

func factoryFor(c *fakeConnector) domain.ConnectorFactory {
	return func(dbType domain.DBType) (domain.Connector, error) {
		if dbType == "oracle" {
			return nil, errors.New("unsupported database type: oracle")
		}
		return c, nil
	}
}
