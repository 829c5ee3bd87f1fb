package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "store", "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBackupRecords(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		s := newTestStore(t)

		job, err := s.AddBackup(ctx, domain.NewBackup{
			ConnectionID: "conn-1",
			Name:         "nightly",
			BackupType:   domain.BackupTypeTables,
			Tables:       []string{"b", "a"},
			FilePath:     "/backups/a_20240101_000000.sql.gz",
			Compressed:   true,
		})
		So(err, ShouldBeNil)

		Convey("A new record is pending with a fresh id", func() {
			So(job.ID, ShouldNotBeEmpty)
			So(job.Status, ShouldEqual, domain.BackupStatusPending)

			got, err := s.GetBackup(ctx, job.ID)
			So(err, ShouldBeNil)
			So(got.Tables, ShouldResemble, []string{"b", "a"})
			So(got.Compressed, ShouldBeTrue)
			So(got.FileSize, ShouldBeNil)
		})

		Convey("Ids are never reused", func() {
			other, err := s.AddBackup(ctx, domain.NewBackup{ConnectionID: "conn-1", Name: "n", BackupType: domain.BackupTypeFull, FilePath: "/backups/other.sql"})
			So(err, ShouldBeNil)
			So(other.ID, ShouldNotEqual, job.ID)
		})

		Convey("The lifecycle runs pending -> in_progress -> completed", func() {
			So(s.UpdateBackup(ctx, job.ID, domain.BackupUpdate{Status: domain.BackupStatusInProgress}), ShouldBeNil)

			size := int64(1234)
			now := time.Now()
			So(s.UpdateBackup(ctx, job.ID, domain.BackupUpdate{Status: domain.BackupStatusCompleted, FileSize: &size, CompletedAt: &now}), ShouldBeNil)

			got, err := s.GetBackup(ctx, job.ID)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, domain.BackupStatusCompleted)
			So(*got.FileSize, ShouldEqual, int64(1234))
			So(got.CompletedAt, ShouldNotBeNil)
			So(got.FilePath, ShouldEqual, job.FilePath)

			Convey("And no transition leaves the terminal state", func() {
				err := s.UpdateBackup(ctx, job.ID, domain.BackupUpdate{Status: domain.BackupStatusFailed, ErrorMessage: "late"})
				So(errors.Is(err, domain.ErrInvalidTransition), ShouldBeTrue)

				got, _ := s.GetBackup(ctx, job.ID)
				So(got.Status, ShouldEqual, domain.BackupStatusCompleted)
				So(got.ErrorMessage, ShouldBeEmpty)
			})
		})

		Convey("Pending cannot jump to completed", func() {
			size := int64(1)
			now := time.Now()
			err := s.UpdateBackup(ctx, job.ID, domain.BackupUpdate{Status: domain.BackupStatusCompleted, FileSize: &size, CompletedAt: &now})
			So(errors.Is(err, domain.ErrInvalidTransition), ShouldBeTrue)
		})

		Convey("Pending may fail directly on admission", func() {
			So(s.UpdateBackup(ctx, job.ID, domain.BackupUpdate{Status: domain.BackupStatusFailed, ErrorMessage: "backup queue is full"}), ShouldBeNil)
			got, _ := s.GetBackup(ctx, job.ID)
			So(got.ErrorMessage, ShouldEqual, "backup queue is full")
		})

		Convey("Updating an unknown id is not found", func() {
			err := s.UpdateBackup(ctx, "missing", domain.BackupUpdate{Status: domain.BackupStatusInProgress})
			So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
		})

		Convey("Concurrent transitions let exactly one writer win", func() {
			So(s.UpdateBackup(ctx, job.ID, domain.BackupUpdate{Status: domain.BackupStatusInProgress}), ShouldBeNil)

			var wg sync.WaitGroup
			results := make([]error, 8)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i] = s.UpdateBackup(ctx, job.ID, domain.BackupUpdate{Status: domain.BackupStatusCancelled, ErrorMessage: "cancelled"})
				}(i)
			}
			wg.Wait()

			wins := 0
			for _, err := range results {
				if err == nil {
					wins++
				}
			}
			So(wins, ShouldEqual, 1)
		})

		Convey("Listing filters by connection", func() {
			_, err := s.AddBackup(ctx, domain.NewBackup{ConnectionID: "conn-2", Name: "x", BackupType: domain.BackupTypeFull, FilePath: "/backups/x.sql"})
			So(err, ShouldBeNil)

			all, err := s.ListBackups(ctx, "")
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 2)

			mine, err := s.ListBackups(ctx, "conn-1")
			So(err, ShouldBeNil)
			So(mine, ShouldHaveLength, 1)
			So(mine[0].ID, ShouldEqual, job.ID)
		})

		Convey("Paths are tracked for collision checks", func() {
			exists, err := s.BackupPathExists(ctx, job.FilePath)
			So(err, ShouldBeNil)
			So(exists, ShouldBeTrue)

			exists, err = s.BackupPathExists(ctx, "/backups/none.sql")
			So(err, ShouldBeNil)
			So(exists, ShouldBeFalse)

			exists, err = s.BackupPathExists(ctx, "/backups/none.sql", job.FilePath)
			So(err, ShouldBeNil)
			So(exists, ShouldBeTrue)

			exists, err = s.BackupPathExists(ctx)
			So(err, ShouldBeNil)
			So(exists, ShouldBeFalse)
		})

		Convey("Delete reports whether a record was removed", func() {
			ok, err := s.DeleteBackup(ctx, job.ID)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			ok, err = s.DeleteBackup(ctx, job.ID)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)

			_, err = s.GetBackup(ctx, job.ID)
			So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestConnectionRecords(t *testing.T) {
	Convey("Given a store", t, func() {
		ctx := context.Background()
		s := newTestStore(t)

		conn := &domain.Connection{Name: "local", DBType: domain.DBTypeSQLite, Database: "/tmp/a.db", Password: "pw"}
		So(s.AddConnection(ctx, conn), ShouldBeNil)

		Convey("The connection gets an id and round-trips", func() {
			So(conn.ID, ShouldNotBeEmpty)
			got, err := s.GetConnection(ctx, conn.ID)
			So(err, ShouldBeNil)
			So(got.Database, ShouldEqual, "/tmp/a.db")
			So(got.Password, ShouldEqual, "pw")
			So(got.DBType, ShouldEqual, domain.DBTypeSQLite)
		})

		Convey("It is listed and can be deleted", func() {
			list, err := s.ListConnections(ctx)
			So(err, ShouldBeNil)
			So(list, ShouldHaveLength, 1)

			ok, err := s.DeleteConnection(ctx, conn.ID)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			_, err = s.GetConnection(ctx, conn.ID)
			So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
		})
	})
}
