package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbtoolkit/internal/infrastructure/logger"
)

func TestScheduler(t *testing.T) {
	Convey("Given a Scheduler", t, func() {
		s := New(logger.Nop())

		Convey("When adding a job with a valid cron spec", func() {
			var runs int32
			id, err := s.AddJob("cleanup", "* * * * * *", func(ctx context.Context) error {
				atomic.AddInt32(&runs, 1)
				return nil
			})
			So(err, ShouldBeNil)
			So(int(id), ShouldBeGreaterThan, 0)
			So(s.Len(), ShouldEqual, 1)

			Convey("It runs once started and stops cleanly", func() {
				s.Start()
				time.Sleep(2 * time.Second)
				s.Stop()

				seen := atomic.LoadInt32(&runs)
				So(seen, ShouldBeGreaterThanOrEqualTo, 1)

				time.Sleep(1500 * time.Millisecond)
				So(atomic.LoadInt32(&runs), ShouldEqual, seen)
			})

			Convey("It can be removed", func() {
				s.Remove(id)
				So(s.Len(), ShouldEqual, 0)
			})
		})

		Convey("When a job fails or panics", func() {
			var runs int32
			_, err := s.AddJob("flaky", "* * * * * *", func(ctx context.Context) error {
				if atomic.AddInt32(&runs, 1) == 1 {
					panic("boom")
				}
				return errors.New("still failing")
			})
			So(err, ShouldBeNil)

			Convey("The schedule keeps firing", func() {
				s.Start()
				time.Sleep(2500 * time.Millisecond)
				s.Stop()
				So(atomic.LoadInt32(&runs), ShouldBeGreaterThanOrEqualTo, 2)
			})
		})

		Convey("When the job context is observed", func() {
			done := make(chan struct{})
			_, err := s.AddJob("long", "* * * * * *", func(ctx context.Context) error {
				select {
				case <-ctx.Done():
					close(done)
				case <-time.After(10 * time.Second):
				}
				return ctx.Err()
			})
			So(err, ShouldBeNil)

			Convey("Stop cancels it", func() {
				s.Start()
				time.Sleep(1200 * time.Millisecond)
				s.Stop()
				select {
				case <-done:
				case <-time.After(time.Second):
					So("job context was not cancelled", ShouldBeEmpty)
				}
			})
		})

		Convey("When adding a job with an invalid cron spec", func() {
			_, err := s.AddJob("bad", "invalid spec", func(ctx context.Context) error { return nil })
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "expected exactly 6 fields")
		})
	})
}
