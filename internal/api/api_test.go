package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbtoolkit/internal/adapter/compressor"
	"github.com/semmidev/dbtoolkit/internal/adapter/connector"
	"github.com/semmidev/dbtoolkit/internal/adapter/database"
	"github.com/semmidev/dbtoolkit/internal/config"
	"github.com/semmidev/dbtoolkit/internal/domain"
	"github.com/semmidev/dbtoolkit/internal/infrastructure/logger"
	"github.com/semmidev/dbtoolkit/internal/infrastructure/metrics"
	"github.com/semmidev/dbtoolkit/internal/infrastructure/store"
	"github.com/semmidev/dbtoolkit/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const fakeMigrator = `#!/bin/sh
case "$1" in
  --version) echo "migrator 0.9.0" ;;
  *) echo "applied $*"; echo "warning" >&2 ;;
esac
`

type inlineQueue struct{}

func (inlineQueue) TrySubmit(_ string, task func(ctx context.Context) error) error {
	return task(context.Background())
}

type fullQueue struct{}

func (fullQueue) TrySubmit(string, func(ctx context.Context) error) error {
	return domain.ErrQueueFull
}

type staticSampler struct{}

func (staticSampler) Sample(context.Context) (*domain.SystemStats, error) {
	return &domain.SystemStats{CPUUsage: 5, MemoryUsage: 50, DiskUsage: 25}, nil
}

type testServer struct {
	router http.Handler
	dir    string
}

func newTestServer(t *testing.T, queue usecase.Submitter) *testServer {
	t.Helper()
	dir := t.TempDir()
	log := logger.Nop()

	s, err := store.NewSQLite(filepath.Join(dir, "store.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	bin := filepath.Join(dir, "migrator")
	if err := os.WriteFile(bin, []byte(fakeMigrator), 0755); err != nil {
		t.Fatalf("write migrator: %v", err)
	}

	queryCfg := config.QueryConfig{DefaultLimit: 100, MaxLimit: 1000, DefaultTimeout: 5 * time.Second}
	collector := metrics.New()

	router := NewRouter(Deps{
		Connections: s,
		Connectors:  connector.New,
		Queries:     usecase.NewQueryExecutor(connector.New, queryCfg, log, collector),
		Backups: usecase.NewBackupManager(usecase.BackupManagerDeps{
			Store:      s,
			Conns:      s,
			Dumpers:    database.NewRegistry(database.NewSQLite(log)),
			Compressor: compressor.NewGzip(),
			Queue:      queue,
			BackupDir:  filepath.Join(dir, "backups"),
			Logger:     log,
			Observer:   collector,
		}),
		Migrator: usecase.NewMigratorExecutor(config.MigratorConfig{Binary: bin, DefaultTimeout: 5 * time.Second}, log),
		Monitor:  usecase.NewMonitor(staticSampler{}, usecase.NewMetricsHistory(time.Hour, 10), log),
		Issues:   usecase.NewIssueStore(10, log),
		Metrics:  collector,
		Health:   s.Ping,
		Logger:   log,
	})
	return &testServer{router: router, dir: dir}
}

func (ts *testServer) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var decoded map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

// sqliteConnection registers a connection over a file holding content.
func (ts *testServer) sqliteConnection(name, content string) string {
	path := filepath.Join(ts.dir, name+".db")
	if content != "" {
		_ = os.WriteFile(path, []byte(content), 0644)
	}
	_, body := ts.do("POST", "/api/connections", map[string]any{
		"name": name, "db_type": "sqlite", "database": path,
	})
	return body["connection"].(map[string]any)["id"].(string)
}

func TestHealthAndRouting(t *testing.T) {
	Convey("Given the API", t, func() {
		ts := newTestServer(t, inlineQueue{})

		Convey("/health reports healthy", func() {
			rec, body := ts.do("GET", "/health", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "healthy")
		})

		Convey("Unknown routes answer the uniform error body", func() {
			rec, body := ts.do("GET", "/api/nowhere", nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(body["success"], ShouldEqual, false)
		})

		Convey("/metrics exposes request counters", func() {
			ts.do("GET", "/health", nil)
			rec, _ := ts.do("GET", "/metrics", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `dbtoolkit_http_requests_total{method="GET",route="/health",status="200"} 1`)
		})
	})
}

func TestConnectionsAndQueries(t *testing.T) {
	Convey("Given the API", t, func() {
		ts := newTestServer(t, inlineQueue{})

		Convey("A connection can be created, read, listed and deleted", func() {
			rec, body := ts.do("POST", "/api/connections", map[string]any{
				"name": "pg", "db_type": "postgresql", "host": "db.internal", "database": "app", "password": "secret",
			})
			So(rec.Code, ShouldEqual, http.StatusCreated)
			conn := body["connection"].(map[string]any)
			id := conn["id"].(string)
			So(conn, ShouldNotContainKey, "password")

			rec, body = ts.do("GET", "/api/connections/"+id, nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(body["connection"].(map[string]any)["host"], ShouldEqual, "db.internal")

			_, body = ts.do("GET", "/api/connections", nil)
			So(len(body["connections"].([]any)), ShouldEqual, 1)

			rec, _ = ts.do("DELETE", "/api/connections/"+id, nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			rec, _ = ts.do("DELETE", "/api/connections/"+id, nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("An unknown database type is a bad request", func() {
			rec, body := ts.do("POST", "/api/connections", map[string]any{
				"name": "x", "db_type": "oracle", "host": "h", "database": "d",
			})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(body["success"], ShouldEqual, false)
			So(body["error"], ShouldContainSubstring, "dbtype")
		})

		Convey("A networked connection needs a host", func() {
			rec, _ := ts.do("POST", "/api/connections", map[string]any{
				"name": "x", "db_type": "mysql", "database": "d",
			})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A missing connection is 404", func() {
			rec, body := ts.do("GET", "/api/connections/missing", nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(body["success"], ShouldEqual, false)
			So(body["error"], ShouldNotBeEmpty)
		})

		Convey("Queries run against SQLite with pagination", func() {
			id := ts.sqliteConnection("live", "")

			rec, body := ts.do("POST", "/api/connections/"+id+"/query", map[string]any{"query": "SELECT 1 AS one"})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(body["success"], ShouldEqual, true)
			So(body["columns"], ShouldResemble, []any{"one"})
			So(body["rows"], ShouldResemble, []any{[]any{float64(1)}})
			So(body["has_more"], ShouldEqual, false)
		})

		Convey("Dangerous queries are refused in-band", func() {
			id := ts.sqliteConnection("live", "")

			rec, body := ts.do("POST", "/api/connections/"+id+"/query", map[string]any{"query": "DELETE FROM users"})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(body["success"], ShouldEqual, false)
			So(body["error"], ShouldEqual, "Dangerous operation detected: DELETE FROM. Use with caution.")
		})

		Convey("An empty query is reported in-band", func() {
			id := ts.sqliteConnection("live", "")
			_, body := ts.do("POST", "/api/connections/"+id+"/query", map[string]any{"query": "  "})
			So(body["error"], ShouldEqual, "Query cannot be empty")
		})

		Convey("Out of range limits are rejected by binding", func() {
			id := ts.sqliteConnection("live", "")
			rec, _ := ts.do("POST", "/api/connections/"+id+"/query", map[string]any{"query": "SELECT 1", "limit": 20000})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Testing a SQLite connection succeeds", func() {
			id := ts.sqliteConnection("live", "")
			rec, body := ts.do("POST", "/api/connections/"+id+"/test", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(body["success"], ShouldEqual, true)
		})

		Convey("The validator endpoint reports unsafe statements", func() {
			_, body := ts.do("POST", "/api/query/validate", map[string]any{"query": "drop database prod", "db_type": "postgresql"})
			So(body["safe"], ShouldEqual, false)
			So(body["error"], ShouldContainSubstring, "DROP DATABASE")

			_, body = ts.do("POST", "/api/query/validate", map[string]any{"query": "find()", "db_type": "mongodb"})
			So(body["safe"], ShouldEqual, false)

			_, body = ts.do("POST", "/api/query/validate", map[string]any{"query": "SELECT 1", "db_type": "mysql"})
			So(body["safe"], ShouldEqual, true)
		})
	})
}

func TestBackupEndpoints(t *testing.T) {
	Convey("Given a completed backup", t, func() {
		ts := newTestServer(t, inlineQueue{})
		connID := ts.sqliteConnection("shop", "sqlite-bytes")

		rec, body := ts.do("POST", "/api/backups", map[string]any{"connection_id": connID, "compress": true})
		So(rec.Code, ShouldEqual, http.StatusAccepted)
		backup := body["backup"].(map[string]any)
		id := backup["id"].(string)
		So(backup["file_path"], ShouldEndWith, ".sql.gz")

		Convey("It is listed and completed", func() {
			_, body := ts.do("GET", "/api/backups/"+id, nil)
			So(body["backup"].(map[string]any)["status"], ShouldEqual, "completed")

			_, body = ts.do("GET", "/api/backups?connection_id="+connID, nil)
			So(len(body["backups"].([]any)), ShouldEqual, 1)
			_, body = ts.do("GET", "/api/backups?connection_id=other", nil)
			So(len(body["backups"].([]any)), ShouldEqual, 0)
		})

		Convey("It can be downloaded as an attachment", func() {
			rec, _ := ts.do("GET", "/api/backups/"+id+"/download", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Disposition"), ShouldContainSubstring, "shop_")
			So(rec.Body.Len(), ShouldBeGreaterThan, 0)
		})

		Convey("It restores into its source by default", func() {
			So(os.WriteFile(filepath.Join(ts.dir, "shop.db"), []byte("changed"), 0644), ShouldBeNil)

			rec, body := ts.do("POST", "/api/backups/"+id+"/restore", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(body["success"], ShouldEqual, true)

			data, _ := os.ReadFile(filepath.Join(ts.dir, "shop.db"))
			So(string(data), ShouldEqual, "sqlite-bytes")
		})

		Convey("Cancelling a finished backup is a bad request", func() {
			rec, body := ts.do("POST", "/api/backups/"+id+"/cancel", nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(body["success"], ShouldEqual, false)
		})

		Convey("Deleting twice answers 404 the second time", func() {
			rec, _ := ts.do("DELETE", "/api/backups/"+id, nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			rec, _ = ts.do("DELETE", "/api/backups/"+id, nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Unknown backups are 404", func() {
			rec, _ := ts.do("GET", "/api/backups/nope", nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			rec, _ = ts.do("POST", "/api/backups/nope/restore", nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Invalid requests are rejected", func() {
			rec, _ := ts.do("POST", "/api/backups", map[string]any{"connection_id": connID, "backup_type": "incremental"})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			rec, _ = ts.do("POST", "/api/backups", map[string]any{"connection_id": connID, "backup_type": "tables"})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			rec, _ = ts.do("POST", "/api/backups", map[string]any{"connection_id": "missing"})
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given a full backup queue", t, func() {
		ts := newTestServer(t, fullQueue{})
		connID := ts.sqliteConnection("shop", "x")

		rec, body := ts.do("POST", "/api/backups", map[string]any{"connection_id": connID})

		Convey("Creation answers 503 with the failed record", func() {
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(body["error"], ShouldEqual, "backup queue is full")
			So(body["backup"].(map[string]any)["status"], ShouldEqual, "failed")
		})

		Convey("Downloading the failed backup is a bad request", func() {
			id := body["backup"].(map[string]any)["id"].(string)
			rec, _ := ts.do("GET", "/api/backups/"+id+"/download", nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestMigratorEndpoints(t *testing.T) {
	Convey("Given the API with a migrator binary", t, func() {
		ts := newTestServer(t, inlineQueue{})

		Convey("Commands execute and return their output", func() {
			rec, body := ts.do("POST", "/api/migrator/execute", map[string]any{"command": "up 2"})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(body["success"], ShouldEqual, true)
			So(body["output"], ShouldEqual, "applied up 2\n")
			So(body["error"], ShouldEqual, "warning\n")
			So(body["exit_code"], ShouldEqual, float64(0))
		})

		Convey("A command is required", func() {
			rec, _ := ts.do("POST", "/api/migrator/execute", map[string]any{})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("The version is reported", func() {
			_, body := ts.do("GET", "/api/migrator/version", nil)
			So(body["installed"], ShouldEqual, true)
			So(body["version"], ShouldEqual, "migrator 0.9.0")
		})

		Convey("Output streams over a websocket", func() {
			server := httptest.NewServer(ts.router)
			defer server.Close()

			url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/migrator/stream"
			ws, _, err := websocket.DefaultDialer.Dial(url, nil)
			So(err, ShouldBeNil)
			defer ws.Close()

			So(ws.WriteJSON(map[string]string{"command": "status"}), ShouldBeNil)

			var events []usecase.StreamEvent
			_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
			for {
				var ev usecase.StreamEvent
				if err := ws.ReadJSON(&ev); err != nil {
					break
				}
				events = append(events, ev)
				if ev.Type == "exit" {
					break
				}
			}

			So(len(events), ShouldEqual, 3)
			last := events[len(events)-1]
			So(last.Type, ShouldEqual, "exit")
			So(*last.Success, ShouldBeTrue)

			var stdout, stderr []string
			for _, ev := range events[:2] {
				if ev.Type == "stdout" {
					stdout = append(stdout, ev.Data)
				} else {
					stderr = append(stderr, ev.Data)
				}
			}
			So(stdout, ShouldResemble, []string{"applied status"})
			So(stderr, ShouldResemble, []string{"warning"})
		})
	})
}

func TestSystemAndIssueEndpoints(t *testing.T) {
	Convey("Given the API", t, func() {
		ts := newTestServer(t, inlineQueue{})

		Convey("System stats come from the sampler", func() {
			_, body := ts.do("GET", "/api/system/stats", nil)
			So(body["stats"].(map[string]any)["cpu_usage"], ShouldEqual, float64(5))
		})

		Convey("History validates its range", func() {
			rec, body := ts.do("GET", "/api/system/history?hours=2", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(body["history"], ShouldBeEmpty)

			rec, _ = ts.do("GET", "/api/system/history?hours=abc", nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Issues can be filed, read and deleted", func() {
			rec, body := ts.do("POST", "/api/issues", map[string]any{
				"title": "Crash", "description": "on save", "issue_type": "bug",
			})
			So(rec.Code, ShouldEqual, http.StatusCreated)
			id := body["issue"].(map[string]any)["id"].(string)

			_, body = ts.do("GET", "/api/issues/"+id, nil)
			So(body["issue"].(map[string]any)["status"], ShouldEqual, "open")

			_, body = ts.do("GET", "/api/issues", nil)
			So(len(body["issues"].([]any)), ShouldEqual, 1)

			rec, _ = ts.do("DELETE", "/api/issues/"+id, nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			rec, _ = ts.do("GET", "/api/issues/"+id, nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("An issue needs a known type", func() {
			rec, _ := ts.do("POST", "/api/issues", map[string]any{
				"title": "x", "description": "y", "issue_type": "rant",
			})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}
