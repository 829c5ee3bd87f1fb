package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbtoolkit/internal/config"
	"github.com/semmidev/dbtoolkit/internal/infrastructure/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	cfg.Store.Path = filepath.Join(dir, "store.db")
	cfg.Backup.LocalPath = filepath.Join(dir, "backups")
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.App.LogLevel = "error"
	return cfg
}

func TestApp(t *testing.T) {
	Convey("Given a default configuration", t, func() {
		cfg := testConfig(t)

		Convey("Scheduled jobs cover cleanup, sampling and configured backups", func() {
			cfg.Schedules = []config.ScheduleConfig{{ConnectionID: "abc", Cron: "0 0 1 * * *", Compress: true}}
			a, err := New(context.Background(), cfg)
			So(err, ShouldBeNil)
			defer a.Shutdown()

			So(a.schedule(), ShouldBeNil)
			So(a.scheduler.Len(), ShouldEqual, 3)
		})

		Convey("Disabled retention and sampling register nothing", func() {
			cfg.Backup.RetentionDays = 0
			cfg.Monitor.SampleSchedule = ""
			a, err := New(context.Background(), cfg)
			So(err, ShouldBeNil)
			defer a.Shutdown()

			So(a.schedule(), ShouldBeNil)
			So(a.scheduler.Len(), ShouldEqual, 0)
		})

		Convey("A malformed cron spec fails Run", func() {
			cfg.Schedules = []config.ScheduleConfig{{ConnectionID: "abc", Cron: "not a cron"}}
			a, err := New(context.Background(), cfg)
			So(err, ShouldBeNil)
			defer a.Shutdown()

			So(a.Run(context.Background()), ShouldNotBeNil)
		})

		Convey("Run returns once the context is cancelled", func() {
			a, err := New(context.Background(), cfg)
			So(err, ShouldBeNil)

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			So(a.Run(ctx), ShouldBeNil)
			a.Shutdown()
		})
	})
}

func TestInitializeUploadTargets(t *testing.T) {
	Convey("Only targets that initialize are kept", t, func() {
		cfg := testConfig(t)
		cfg.Backup.UploadTargets = []config.UploadTarget{
			{Type: "local", Name: "mirror", Enabled: true, Path: t.TempDir()},
			{Type: "local", Enabled: true},
			{Type: "ftp", Enabled: true},
			{Type: "local", Enabled: false, Path: t.TempDir()},
		}

		targets := initializeUploadTargets(context.Background(), cfg, logger.Nop())

		So(targets, ShouldHaveLength, 1)
		So(targets[0].Name, ShouldEqual, "mirror")
	})
}
