package grid_world

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func countNatures(grid *Grid) map[Nature]int {
	counts := map[Nature]int{}
	grid.Visit(func(tile *Tile) { counts[tile.Nature]++ })
	return counts
}

func TestGenerate(t *testing.T) {
	Convey("When lakes are generated", t, func() {
		cfg := DefaultConfig()

		Convey("Every lake has exactly one start and one goal, on different tiles", func() {
			for seed := int64(0); seed < 200; seed++ {
				grid, err := Generate(cfg, rand.New(rand.NewSource(seed)))
				So(err, ShouldBeNil)
				counts := countNatures(grid)
				So(counts[START], ShouldEqual, 1)
				So(counts[GOAL], ShouldEqual, 1)
				So(grid.StartId, ShouldNotEqual, grid.GoalId)
				So(grid.Start().Nature, ShouldEqual, START)
				So(grid.Goal().Nature, ShouldEqual, GOAL)
			}
		})

		Convey("Terminal tiles have no actions and all others follow the boundary rule", func() {
			for seed := int64(0); seed < 100; seed++ {
				grid, err := Generate(cfg, rand.New(rand.NewSource(seed)))
				So(err, ShouldBeNil)
				So(grid.NumTiles(), ShouldEqual, cfg.Rows*cfg.Cols)
				grid.Visit(func(tile *Tile) {
					So(tile.Id, ShouldEqual, tile.Row*cfg.Cols+tile.Col)
					if tile.Nature == HEAT || tile.Nature == GOAL {
						So(tile.Actions, ShouldBeEmpty)
					} else {
						So(tile.Actions, ShouldResemble, BoundaryActions(tile.Row, tile.Col, cfg.Rows, cfg.Cols))
					}
				})
			}
		})

		Convey("Rewards follow the tile nature", func() {
			grid, err := Generate(cfg, rand.New(rand.NewSource(7)))
			So(err, ShouldBeNil)
			grid.Visit(func(tile *Tile) {
				switch tile.Nature {
				case HEAT:
					So(tile.Reward, ShouldEqual, cfg.HeatReward)
				case GOAL:
					So(tile.Reward, ShouldEqual, cfg.GoalReward)
				default:
					So(tile.Reward, ShouldEqual, cfg.FreezeReward)
				}
			})
		})

		Convey("The same seed yields the same lake", func() {
			g1, _ := Generate(cfg, rand.New(rand.NewSource(42)))
			g2, _ := Generate(cfg, rand.New(rand.NewSource(42)))
			So(g1, ShouldResemble, g2)
		})

		Convey("A heat probability of one still leaves start and goal", func() {
			cfg.HeatProb = 1
			grid, err := Generate(cfg, rand.New(rand.NewSource(3)))
			So(err, ShouldBeNil)
			counts := countNatures(grid)
			So(counts[HEAT], ShouldEqual, cfg.Rows*cfg.Cols-2)
			So(grid.Start().Actions, ShouldNotBeEmpty)
		})

		Convey("A two tile lake terminates the goal redraw", func() {
			cfg.Rows, cfg.Cols = 1, 2
			grid, err := Generate(cfg, rand.New(rand.NewSource(11)))
			So(err, ShouldBeNil)
			So(grid.StartId+grid.GoalId, ShouldEqual, 1)
		})

		Convey("Positions are laid out on the tile pitch", func() {
			grid, _ := Generate(cfg, rand.New(rand.NewSource(1)))
			tile := grid.Tile(1*cfg.Cols + 2)
			So(tile.Position, ShouldResemble, Position{X: 160, Y: 270})
		})
	})

	Convey("When the config is invalid", t, func() {
		cases := []func(*Config){
			func(c *Config) { c.Rows = 0 },
			func(c *Config) { c.Cols = -2 },
			func(c *Config) { c.Rows, c.Cols = 1, 1 },
			func(c *Config) { c.HeatProb = 1.5 },
			func(c *Config) { c.HeatProb = -0.1 },
		}
		for _, mutate := range cases {
			cfg := DefaultConfig()
			mutate(&cfg)
			grid, err := Generate(cfg, rand.New(rand.NewSource(1)))
			So(grid, ShouldBeNil)
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		}
	})
}

func TestBoundaryActions(t *testing.T) {
	Convey("When computing boundary actions", t, func() {
		rows, cols := 4, 5
		Convey("Corners get the two inward directions", func() {
			So(BoundaryActions(0, 0, rows, cols), ShouldResemble, []Direction{DOWN, RIGHT})
			So(BoundaryActions(0, cols-1, rows, cols), ShouldResemble, []Direction{DOWN, LEFT})
			So(BoundaryActions(rows-1, 0, rows, cols), ShouldResemble, []Direction{UP, RIGHT})
			So(BoundaryActions(rows-1, cols-1, rows, cols), ShouldResemble, []Direction{UP, LEFT})
		})

		Convey("Tiles have 2, 3, or 4 actions by position", func() {
			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					onRowEdge := i == 0 || i == rows-1
					onColEdge := j == 0 || j == cols-1
					expected := 4
					if onRowEdge && onColEdge {
						expected = 2
					} else if onRowEdge || onColEdge {
						expected = 3
					}
					So(len(BoundaryActions(i, j, rows, cols)), ShouldEqual, expected)
				}
			}
		})

		Convey("Single row lakes only move sideways", func() {
			So(BoundaryActions(0, 1, 1, 3), ShouldResemble, []Direction{LEFT, RIGHT})
		})
	})
}

func TestStep(t *testing.T) {
	Convey("When stepping on a non-square lake", t, func() {
		cfg := DefaultConfig()
		cfg.Rows, cfg.Cols = 3, 5
		cfg.HeatProb = 0
		grid, err := Generate(cfg, rand.New(rand.NewSource(5)))
		So(err, ShouldBeNil)

		Convey("Vertical moves use the column stride and stay in the same column", func() {
			So(grid.Step(7, UP), ShouldEqual, 2)
			So(grid.Step(7, DOWN), ShouldEqual, 12)
			So(grid.Tile(grid.Step(7, DOWN)).Col, ShouldEqual, grid.Tile(7).Col)
		})

		Convey("Opposite directions undo each other for every in-grid move", func() {
			grid.Visit(func(tile *Tile) {
				for _, dir := range BoundaryActions(tile.Row, tile.Col, cfg.Rows, cfg.Cols) {
					next := grid.Step(tile.Id, dir)
					So(grid.Step(next, dir.Opposite()), ShouldEqual, tile.Id)
				}
			})
		})

		Convey("Leaving the grid panics", func() {
			So(func() { grid.Step(0, UP) }, ShouldPanic)
			So(func() { grid.Step(14, DOWN) }, ShouldPanic)
			So(func() { grid.Step(3, NONE) }, ShouldPanic)
		})

		Convey("Moving across a row edge panics rather than wrapping", func() {
			So(func() { grid.Step(4, RIGHT) }, ShouldPanic)
			So(func() { grid.Step(5, LEFT) }, ShouldPanic)
			So(func() { grid.Step(0, LEFT) }, ShouldPanic)
			So(func() { grid.Step(14, RIGHT) }, ShouldPanic)
		})
	})
}

func TestConvert(t *testing.T) {
	Convey("When converting a layout", t, func() {
		cfg := DefaultConfig()

		Convey("The debug lake converts with its start and goal", func() {
			grid, err := Convert(DebugLake, cfg)
			So(err, ShouldBeNil)
			So(grid.Rows, ShouldEqual, 4)
			So(grid.Cols, ShouldEqual, 4)
			So(grid.StartId, ShouldEqual, 0)
			So(grid.GoalId, ShouldEqual, 15)
			So(grid.Tile(5).Nature, ShouldEqual, HEAT)
			So(grid.Tile(5).Actions, ShouldBeEmpty)
			So(grid.Tile(5).Reward, ShouldEqual, cfg.HeatReward)
			So(grid.Start().Actions, ShouldResemble, []Direction{DOWN, RIGHT})
		})

		Convey("Malformed layouts are rejected", func() {
			bad := [][]string{
				{},
				{"SFG", "FF"},
				{"SFX"},
				{"SFF", "FFF"},
				{"SGS"},
				{"SG", "GF"},
			}
			for _, layout := range bad {
				_, err := Convert(layout, cfg)
				So(errors.Is(err, ErrInvalidLayout), ShouldBeTrue)
			}
		})

		Convey("ShowGrid prints the natures", func() {
			grid, _ := Convert([]string{"SH", "FG"}, cfg)
			buf := &bytes.Buffer{}
			ShowGrid(buf, grid)
			So(buf.String(), ShouldEqual, "S H \nF G \n")
		})
	})
}
