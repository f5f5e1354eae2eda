package main

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"frozenlake/grid_world"
	"frozenlake/reinforcement"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoadConfig(t *testing.T) {
	Convey("When loading the checked-in config", t, func() {
		cfg, err := loadConfig("./config.yaml", false)
		So(err, ShouldBeNil)
		So(cfg.Grid.Rows, ShouldEqual, 8)
		So(cfg.Grid.Layout, ShouldBeEmpty)

		Convey("Debug mode pins the debug lake", func() {
			cfg, err := loadConfig("./config.yaml", true)
			So(err, ShouldBeNil)
			So(cfg.Grid.Layout, ShouldResemble, grid_world.DebugLake)
		})
	})

	Convey("When the config holds invalid values", t, func() {
		path := filepath.Join(t.TempDir(), "config.yaml")
		contents := "kind: training\ndef:\n  grid:\n    rows: 1\n    cols: 1\n"
		So(os.WriteFile(path, []byte(contents), 0o600), ShouldBeNil)

		_, err := loadConfig(path, false)
		So(errors.Is(err, grid_world.ErrInvalidConfig), ShouldBeTrue)
	})
}

func TestEnvOrDefault(t *testing.T) {
	Convey("When the variable is unset or empty the default is used", t, func() {
		t.Setenv("FROZENLAKE_TEST_PORT", "")
		So(envOrDefault("FROZENLAKE_TEST_PORT", "8080"), ShouldEqual, "8080")
		t.Setenv("FROZENLAKE_TEST_PORT", "9090")
		So(envOrDefault("FROZENLAKE_TEST_PORT", "8080"), ShouldEqual, "9090")
	})
}

func TestRunHeadless(t *testing.T) {
	Convey("When running the debug lake headless", t, func() {
		cfg := reinforcement.DefaultTrainingConfig()
		cfg.Grid.Layout = grid_world.DebugLake
		buf := &bytes.Buffer{}

		err := runHeadless(context.Background(), cfg, rand.New(rand.NewSource(1)), buf)
		So(err, ShouldBeNil)

		out := buf.String()
		So(out, ShouldStartWith, "Lake:\nS F F F \n")
		So(strings.Contains(out, "Values:"), ShouldBeTrue)
		So(strings.Contains(out, "Episode won: score 100 in 6 steps"), ShouldBeTrue)
		So(strings.Contains(out, "(0,0) -> (1,0)"), ShouldBeTrue)
		So(strings.Contains(out, "warning"), ShouldBeFalse)
	})
}
