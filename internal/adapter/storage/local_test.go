package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbtoolkit/internal/config"
	"github.com/semmidev/dbtoolkit/internal/domain"
)

func TestLocalStorage(t *testing.T) {
	Convey("Given a local mirror target", t, func() {
		root := t.TempDir()
		mirrorDir := filepath.Join(root, "mirror", "nested")
		ctx := context.Background()

		storage, err := NewLocal(mirrorDir)
		So(err, ShouldBeNil)

		info, err := os.Stat(mirrorDir)
		So(err, ShouldBeNil)
		So(info.IsDir(), ShouldBeTrue)

		source := filepath.Join(root, "orders_20240101_120000.sql.gz")
		So(os.WriteFile(source, []byte("payload"), 0644), ShouldBeNil)

		Convey("Upload copies the artifact under its remote name", func() {
			So(storage.Upload(ctx, source, "orders_20240101_120000.sql.gz"), ShouldBeNil)

			data, err := os.ReadFile(filepath.Join(mirrorDir, "orders_20240101_120000.sql.gz"))
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "payload")

			entries, _ := os.ReadDir(mirrorDir)
			So(len(entries), ShouldEqual, 1)
		})

		Convey("Upload refuses to escape the mirror directory", func() {
			So(storage.Upload(ctx, source, "../escaped.sql"), ShouldBeNil)
			_, err := os.Stat(filepath.Join(mirrorDir, "escaped.sql"))
			So(err, ShouldBeNil)
			_, err = os.Stat(filepath.Join(root, "mirror", "escaped.sql"))
			So(os.IsNotExist(err), ShouldBeTrue)
		})

		Convey("Upload of a missing source fails", func() {
			err := storage.Upload(ctx, filepath.Join(root, "missing.sql"), "missing.sql")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to open source")
		})

		Convey("Upload honours a cancelled context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			err := storage.Upload(cctx, source, "x.sql")
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})

		Convey("List returns only backup artifacts", func() {
			So(os.WriteFile(filepath.Join(mirrorDir, "a_20240101_000000.sql"), nil, 0644), ShouldBeNil)
			So(os.WriteFile(filepath.Join(mirrorDir, "b_20240101_000000.sql.gz"), nil, 0644), ShouldBeNil)
			So(os.WriteFile(filepath.Join(mirrorDir, "notes.txt"), nil, 0644), ShouldBeNil)
			So(os.Mkdir(filepath.Join(mirrorDir, "sub.sql"), 0755), ShouldBeNil)

			files, err := storage.List(ctx)
			So(err, ShouldBeNil)
			So(files, ShouldResemble, []string{"a_20240101_000000.sql", "b_20240101_000000.sql.gz"})
		})

		Convey("GetOldFiles selects by modification time", func() {
			oldFile := filepath.Join(mirrorDir, "old_20200101_000000.sql")
			newFile := filepath.Join(mirrorDir, "new_20240101_000000.sql")
			So(os.WriteFile(oldFile, nil, 0644), ShouldBeNil)
			So(os.WriteFile(newFile, nil, 0644), ShouldBeNil)
			past := time.Now().Add(-72 * time.Hour)
			So(os.Chtimes(oldFile, past, past), ShouldBeNil)

			files, err := storage.GetOldFiles(ctx, time.Now().Add(-24*time.Hour))
			So(err, ShouldBeNil)
			So(files, ShouldResemble, []string{"old_20200101_000000.sql"})
		})

		Convey("Delete removes the file and reports missing ones", func() {
			So(storage.Upload(ctx, source, "gone.sql"), ShouldBeNil)
			So(storage.Delete(ctx, "gone.sql"), ShouldBeNil)
			So(storage.Delete(ctx, "gone.sql"), ShouldNotBeNil)
		})
	})

	Convey("NewLocal requires a path", t, func() {
		_, err := NewLocal("")
		So(err, ShouldNotBeNil)
	})
}

func TestNewTarget(t *testing.T) {
	Convey("NewTarget dispatches on the configured type", t, func() {
		ctx := context.Background()

		Convey("local builds a mirror", func() {
			s, err := NewTarget(ctx, config.UploadTarget{Type: "local", Path: t.TempDir()})
			So(err, ShouldBeNil)
			_, ok := s.(*LocalStorage)
			So(ok, ShouldBeTrue)
		})

		Convey("unknown types are unsupported", func() {
			_, err := NewTarget(ctx, config.UploadTarget{Type: "ftp"})
			So(errors.Is(err, domain.ErrUnsupported), ShouldBeTrue)
		})

		Convey("s3 without a bucket is rejected before any network call", func() {
			_, err := NewTarget(ctx, config.UploadTarget{Type: "s3"})
			So(err, ShouldNotBeNil)
		})

		Convey("telegram with a bad chat id is rejected", func() {
			_, err := NewTarget(ctx, config.UploadTarget{Type: "telegram", ChatID: "abc"})
			So(err.Error(), ShouldContainSubstring, "invalid telegram chat_id")
		})
	})

	Convey("TargetName prefers the configured name", t, func() {
		So(TargetName(config.UploadTarget{Type: "s3"}), ShouldEqual, "s3")
		So(TargetName(config.UploadTarget{Type: "s3", Name: "offsite"}), ShouldEqual, "offsite")
	})

	Convey("isArtifact recognises plain and compressed dumps", t, func() {
		So(isArtifact("a.sql"), ShouldBeTrue)
		So(isArtifact("a.sql.gz"), ShouldBeTrue)
		So(isArtifact("a.txt"), ShouldBeFalse)
	})
}
