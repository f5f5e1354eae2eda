package reinforcement

import (
	"fmt"

	. "frozenlake/grid_world"
)

// Status is the outcome of an episode so far.
type Status int

const (
	RUNNING Status = iota
	WON
	LOST
)

func (s Status) String() string {
	switch s {
	case RUNNING:
		return "running"
	case WON:
		return "won"
	case LOST:
		return "lost"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsTerminal reports whether the episode is over.
func (s Status) IsTerminal() bool {
	return s != RUNNING
}

// EpisodeConfig holds the scores assigned when an episode ends.
type EpisodeConfig struct {
	WinScore  float64 `yaml:"winscore" mapstructure:"winscore"`
	LoseScore float64 `yaml:"losescore" mapstructure:"losescore"`
}

func DefaultEpisodeConfig() EpisodeConfig {
	return EpisodeConfig{
		WinScore:  100,
		LoseScore: -100,
	}
}

// EpisodeState is the replay state exposed to views.
type EpisodeState struct {
	TileId int
	Score  float64
	Status Status
	Steps  int
}

// EpisodeRunner replays a policy from the start tile, one transition per Advance.
// It is not safe for concurrent use; callers hold at most one Advance in flight.
type EpisodeRunner struct {
	grid   *Grid
	policy PolicyTable
	cfg    EpisodeConfig
	state  EpisodeState
	trace  []int
}

func NewEpisodeRunner(grid *Grid, policy PolicyTable, cfg EpisodeConfig) *EpisodeRunner {
	return &EpisodeRunner{
		grid:   grid,
		policy: policy,
		cfg:    cfg,
		state: EpisodeState{
			TileId: grid.StartId,
			Status: RUNNING,
		},
		trace: []int{grid.StartId},
	}
}

// Advance takes the policy action from the current tile. Entering the goal wins and
// entering heat loses, with the configured scores; the agent always moves onto the
// successor, terminal or not. Once terminal, Advance is a no-op.
func (runner *EpisodeRunner) Advance() EpisodeState {
	if runner.state.Status.IsTerminal() {
		return runner.state
	}

	action := runner.policy[runner.state.TileId]
	if action == NONE {
		panic(fmt.Sprintf("no policy action for non-terminal tile %d", runner.state.TileId))
	}

	next := runner.grid.Tile(runner.grid.Step(runner.state.TileId, action))
	switch next.Nature {
	case GOAL:
		runner.state.Score = runner.cfg.WinScore
		runner.state.Status = WON
	case HEAT:
		runner.state.Score = runner.cfg.LoseScore
		runner.state.Status = LOST
	}

	runner.state.TileId = next.Id
	runner.state.Steps++
	runner.trace = append(runner.trace, next.Id)
	return runner.state
}

// Run advances until the episode ends or maxSteps transitions have been taken.
func (runner *EpisodeRunner) Run(maxSteps int) EpisodeState {
	for runner.state.Steps < maxSteps && !runner.state.Status.IsTerminal() {
		runner.Advance()
	}
	return runner.state
}

// State returns the current episode state.
func (runner *EpisodeRunner) State() EpisodeState {
	return runner.state
}

// Position returns the display position of the agent's tile.
func (runner *EpisodeRunner) Position() Position {
	return runner.grid.Tile(runner.state.TileId).Position
}

// Trace returns the tile ids visited so far, beginning with the start tile.
func (runner *EpisodeRunner) Trace() []int {
	trace := make([]int, len(runner.trace))
	copy(trace, runner.trace)
	return trace
}
