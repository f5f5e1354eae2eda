package grid_world

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
)

// Nature is the tile category. It determines the tile's reward, color, and whether
// the tile is terminal (no outgoing actions).
type Nature rune

// Tile natures, also used as the runes of a layout.
const (
	START  Nature = 'S'
	GOAL   Nature = 'G'
	FREEZE Nature = 'F'
	HEAT   Nature = 'H'
)

// Color is an RGB triple for the rendering collaborator.
type Color struct {
	R, G, B uint8
}

var natureColors = map[Nature]Color{
	START:  {105, 105, 105},
	GOAL:   {0, 255, 0},
	FREEZE: {0, 0, 255},
	HEAT:   {255, 0, 0},
}

// Color returns the display color of the nature.
func (n Nature) Color() Color {
	return natureColors[n]
}

// IsTerminal reports whether an episode ends upon entering a tile of this nature.
func (n Nature) IsTerminal() bool {
	return n == GOAL || n == HEAT
}

func (n Nature) String() string {
	switch n {
	case START:
		return "start"
	case GOAL:
		return "goal"
	case FREEZE:
		return "freeze"
	case HEAT:
		return "heat"
	}
	return fmt.Sprintf("nature(%q)", rune(n))
}

func isNature(r rune) bool {
	_, ok := natureColors[Nature(r)]
	return ok
}

// Direction is a move between orthogonally adjacent tiles. NONE is the zero value
// and is used as the policy of terminal tiles.
type Direction int

const (
	NONE Direction = iota
	UP
	DOWN
	LEFT
	RIGHT
)

// Directions lists the movable directions in enumeration order. Action sets preserve this order.
var Directions = []Direction{UP, DOWN, LEFT, RIGHT}

// Row/column offsets per direction.
var directionDeltas = map[Direction][2]int{
	UP:    {-1, 0},
	DOWN:  {1, 0},
	LEFT:  {0, -1},
	RIGHT: {0, 1},
}

func (d Direction) String() string {
	switch d {
	case UP:
		return "up"
	case DOWN:
		return "down"
	case LEFT:
		return "left"
	case RIGHT:
		return "right"
	}
	return "none"
}

// Arrow returns a printable rune for console views.
func (d Direction) Arrow() rune {
	switch d {
	case UP:
		return '^'
	case DOWN:
		return 'v'
	case LEFT:
		return '<'
	case RIGHT:
		return '>'
	}
	return '-'
}

// Opposite returns the direction that undoes d.
func (d Direction) Opposite() Direction {
	switch d {
	case UP:
		return DOWN
	case DOWN:
		return UP
	case LEFT:
		return RIGHT
	case RIGHT:
		return LEFT
	}
	return NONE
}

// Position is a tile's coordinate in display space.
type Position struct {
	X, Y float64
}

// Distance returns the euclidean distance between two positions.
func Distance(p1, p2 Position) float64 {
	return math.Hypot(p1.X-p2.X, p1.Y-p2.Y)
}

// Tile is one cell of the lake. Id is the row-major index of the tile.
type Tile struct {
	Id       int
	Row, Col int
	Position Position
	Nature   Nature
	Reward   float64
	// Actions is empty iff the tile is terminal.
	Actions []Direction
}

// IsTerminal reports whether the tile ends an episode.
func (t *Tile) IsTerminal() bool {
	return len(t.Actions) == 0
}

// Grid is a rows x cols lake of tiles in row-major order.
// It is immutable once returned by Generate or Convert.
type Grid struct {
	Rows, Cols int
	Tiles      []Tile
	StartId    int
	GoalId     int
}

// Config describes how a grid is generated and where its tiles are placed.
type Config struct {
	Rows int `yaml:"rows" mapstructure:"rows"`
	Cols int `yaml:"cols" mapstructure:"cols"`
	// TileSize is the side of a tile in display units; Spacing is the tile pitch as a multiple of TileSize.
	TileSize float64 `yaml:"tilesize" mapstructure:"tilesize"`
	Spacing  float64 `yaml:"spacing" mapstructure:"spacing"`
	// Origin is the position of tile 0; rows grow downward (decreasing y).
	OriginX float64 `yaml:"originx" mapstructure:"originx"`
	OriginY float64 `yaml:"originy" mapstructure:"originy"`
	// HeatProb is the probability that a generated tile is a heat tile.
	HeatProb     float64 `yaml:"heatprob" mapstructure:"heatprob"`
	HeatReward   float64 `yaml:"heatreward" mapstructure:"heatreward"`
	FreezeReward float64 `yaml:"freezereward" mapstructure:"freezereward"`
	GoalReward   float64 `yaml:"goalreward" mapstructure:"goalreward"`
	// Layout optionally pins the lake to fixed rune rows instead of generating one.
	Layout []string `yaml:"layout" mapstructure:"layout"`
}

// DefaultConfig returns the 8x8 lake of the original game.
func DefaultConfig() Config {
	return Config{
		Rows:         8,
		Cols:         8,
		TileSize:     20,
		Spacing:      1.5,
		OriginX:      100,
		OriginY:      300,
		HeatProb:     1.0 / 6.0,
		HeatReward:   -10,
		FreezeReward: -1,
		GoalReward:   10,
	}
}

var (
	// ErrInvalidConfig is returned when a grid config cannot produce a valid lake.
	ErrInvalidConfig = errors.New("invalid grid config")
	// ErrInvalidLayout is returned by Convert for malformed layouts.
	ErrInvalidLayout = errors.New("invalid grid layout")
)

// Validate checks the generation parameters.
func (cfg *Config) Validate() error {
	if cfg.Rows <= 0 || cfg.Cols <= 0 {
		return fmt.Errorf("%w: rows and cols must be positive, got %dx%d", ErrInvalidConfig, cfg.Rows, cfg.Cols)
	}
	if cfg.Rows*cfg.Cols < 2 {
		return fmt.Errorf("%w: need at least two tiles for distinct start and goal", ErrInvalidConfig)
	}
	if math.IsNaN(cfg.HeatProb) || cfg.HeatProb < 0 || cfg.HeatProb > 1 {
		return fmt.Errorf("%w: heat probability %v outside [0,1]", ErrInvalidConfig, cfg.HeatProb)
	}
	if cfg.TileSize < 0 || cfg.Spacing < 0 {
		return fmt.Errorf("%w: tile size and spacing must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// BoundaryActions returns the directions that stay inside a rows x cols grid from row i, column j,
// in enumeration order: corners get two, edges three, interior tiles four.
func BoundaryActions(i, j, rows, cols int) (actions []Direction) {
	for _, dir := range Directions {
		delta := directionDeltas[dir]
		ni, nj := i+delta[0], j+delta[1]
		if ni >= 0 && ni < rows && nj >= 0 && nj < cols {
			actions = append(actions, dir)
		}
	}
	return
}

// Generate builds a random lake. Each tile is heat with probability cfg.HeatProb, else freeze;
// then a uniformly random tile is promoted to start and a different one to goal.
func Generate(cfg Config, rng *rand.Rand) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	grid := newGrid(cfg.Rows, cfg.Cols)
	for i := 0; i < cfg.Rows; i++ {
		for j := 0; j < cfg.Cols; j++ {
			nature := FREEZE
			if rng.Float64() < cfg.HeatProb {
				nature = HEAT
			}
			grid.Tiles = append(grid.Tiles, makeTile(&cfg, i, j, nature))
		}
	}

	numTiles := len(grid.Tiles)
	grid.StartId = rng.Intn(numTiles)
	grid.promote(&cfg, grid.StartId, START)

	// Terminates with probability one; expected redraws are n/(n-1).
	grid.GoalId = grid.StartId
	for grid.GoalId == grid.StartId {
		grid.GoalId = rng.Intn(numTiles)
	}
	grid.promote(&cfg, grid.GoalId, GOAL)

	return grid, nil
}

// DebugLake is the classic 4x4 frozen lake, for development.
var DebugLake = []string{
	"SFFF",
	"FHFH",
	"FFFH",
	"HFFG",
}

// Convert builds a grid from a layout of rune rows, one rune per tile: S(tart), G(oal),
// F(reeze), H(eat). The layout dimensions override cfg.Rows and cfg.Cols.
func Convert(layout []string, cfg Config) (*Grid, error) {
	if len(layout) == 0 || len(layout[0]) == 0 {
		return nil, fmt.Errorf("%w: empty layout", ErrInvalidLayout)
	}
	cfg.Rows = len(layout)
	cfg.Cols = len([]rune(layout[0]))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	grid := newGrid(cfg.Rows, cfg.Cols)
	starts, goals := 0, 0
	for i, row := range layout {
		runes := []rune(row)
		if len(runes) != cfg.Cols {
			return nil, fmt.Errorf("%w: row %d has %d tiles, expected %d", ErrInvalidLayout, i, len(runes), cfg.Cols)
		}
		for j, r := range runes {
			if !isNature(r) {
				return nil, fmt.Errorf("%w: unknown tile %q at row %d col %d", ErrInvalidLayout, r, i, j)
			}
			tile := makeTile(&cfg, i, j, Nature(r))
			switch tile.Nature {
			case START:
				grid.StartId = tile.Id
				starts++
			case GOAL:
				grid.GoalId = tile.Id
				goals++
			}
			grid.Tiles = append(grid.Tiles, tile)
		}
	}

	if starts != 1 || goals != 1 {
		return nil, fmt.Errorf("%w: need exactly one start and one goal, got %d and %d", ErrInvalidLayout, starts, goals)
	}
	return grid, nil
}

func newGrid(rows, cols int) *Grid {
	return &Grid{
		Rows:  rows,
		Cols:  cols,
		Tiles: make([]Tile, 0, rows*cols),
	}
}

// makeTile builds a consistent (nature, reward, actions) triple for row i, column j.
func makeTile(cfg *Config, i, j int, nature Nature) Tile {
	tile := Tile{
		Id:  i*cfg.Cols + j,
		Row: i,
		Col: j,
		Position: Position{
			X: cfg.OriginX + float64(j)*cfg.Spacing*cfg.TileSize,
			Y: cfg.OriginY - float64(i)*cfg.Spacing*cfg.TileSize,
		},
		Nature: nature,
	}

	switch nature {
	case HEAT:
		tile.Reward = cfg.HeatReward
	case GOAL:
		tile.Reward = cfg.GoalReward
	case START, FREEZE:
		tile.Reward = cfg.FreezeReward
	}
	if !nature.IsTerminal() {
		tile.Actions = BoundaryActions(i, j, cfg.Rows, cfg.Cols)
	}
	return tile
}

// promote rewrites the tile at id with a new nature, recomputing reward and actions.
func (grid *Grid) promote(cfg *Config, id int, nature Nature) {
	tile := &grid.Tiles[id]
	grid.Tiles[id] = makeTile(cfg, tile.Row, tile.Col, nature)
}

// Step returns the id of the tile reached by moving from id in direction dir.
// The vertical stride is the column count. Callers must only pass actions from the
// tile's own action set; anything leaving the grid is a programming error and panics.
func (grid *Grid) Step(id int, dir Direction) int {
	delta, ok := directionDeltas[dir]
	if !ok {
		panic(fmt.Sprintf("step from tile %d with no direction", id))
	}

	i, j := id/grid.Cols+delta[0], id%grid.Cols+delta[1]
	if id < 0 || id >= len(grid.Tiles) || i < 0 || i >= grid.Rows || j < 0 || j >= grid.Cols {
		panic(fmt.Sprintf("step from tile %d %s leaves the grid", id, dir))
	}
	return i*grid.Cols + j
}

// Tile returns the tile with the given id.
func (grid *Grid) Tile(id int) *Tile {
	return &grid.Tiles[id]
}

// Start returns the start tile.
func (grid *Grid) Start() *Tile {
	return &grid.Tiles[grid.StartId]
}

// Goal returns the goal tile.
func (grid *Grid) Goal() *Tile {
	return &grid.Tiles[grid.GoalId]
}

// NumTiles returns rows*cols.
func (grid *Grid) NumTiles() int {
	return len(grid.Tiles)
}

// Visit calls fn on every tile in id order.
func (grid *Grid) Visit(fn func(tile *Tile)) {
	for id := range grid.Tiles {
		fn(&grid.Tiles[id])
	}
}

// ShowGrid prints the lake's natures row by row, for visual reference.
func ShowGrid(w io.Writer, grid *Grid) {
	for i := 0; i < grid.Rows; i++ {
		for j := 0; j < grid.Cols; j++ {
			fmt.Fprintf(w, "%c ", grid.Tiles[i*grid.Cols+j].Nature)
		}
		fmt.Fprintln(w)
	}
}
