package logger

import (
	"context"
	"log/slog"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	ctx := context.Background()

	Convey("Given the global logger", t, func() {
		So(Init(), ShouldBeNil)

		Convey("Get returns a usable logger", func() {
			lg := Get()
			So(lg, ShouldNotBeNil)
			So(func() {
				lg.Info(ctx, "hello", String("k", "v"), Int("n", 1))
			}, ShouldNotPanic)
		})

		Convey("Named derives a grouped logger", func() {
			So(Named("solver"), ShouldNotBeNil)
		})
	})

	Convey("Given level parsing", t, func() {
		So(Init(), ShouldBeNil)

		Convey("Known names set the level", func() {
			So(SetLevelString("debug"), ShouldBeNil)
			So(levelVar.Level(), ShouldEqual, slog.LevelDebug)
			So(SetLevelString("WARN"), ShouldBeNil)
			So(levelVar.Level(), ShouldEqual, slog.LevelWarn)
			So(SetLevelString(""), ShouldBeNil)
			So(levelVar.Level(), ShouldEqual, slog.LevelInfo)
		})

		Convey("Unknown names fail", func() {
			So(SetLevelString("loud"), ShouldNotBeNil)
		})
	})

	Convey("Given the nop logger", t, func() {
		lg := Nop()

		Convey("All levels are safe no-ops", func() {
			So(func() {
				lg.Debug(ctx, "a")
				lg.Info(ctx, "b", Float64("f", 1.5))
				lg.Warn(ctx, "c", Any("x", struct{}{}))
				lg.Error(ctx, "d", Error(context.Canceled))
			}, ShouldNotPanic)
		})
	})
}
