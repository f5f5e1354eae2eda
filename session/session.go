// session ties one lake to its solution and replay, and drives replays on a tick.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"frozenlake/grid_world"
	"frozenlake/reinforcement"

	"github.com/google/uuid"
	channerics "github.com/niceyeti/channerics/channels"
)

// Session is one game: a lake, its solution, and a replay of the policy.
// Every reset builds a new Session rather than mutating an old one.
type Session struct {
	Id       string
	Grid     *grid_world.Grid
	Solution *reinforcement.Solution
	Runner   *reinforcement.EpisodeRunner
	// SolveErr is the recoverable solver failure, if any; the replay then uses best-effort tables.
	SolveErr error
}

// NewSession builds a lake per cfg (the fixed layout if one is configured, else a random
// lake from rng), solves it within the configured training deadline, and places the agent
// on the start tile. Non-convergence is recorded on the session rather than returned.
func NewSession(
	ctx context.Context,
	cfg *reinforcement.TrainingConfig,
	rng *rand.Rand,
	progressFn reinforcement.ProgressFunc,
) (*Session, error) {
	var grid *grid_world.Grid
	var err error
	if len(cfg.Grid.Layout) > 0 {
		grid, err = grid_world.Convert(cfg.Grid.Layout, cfg.Grid)
	} else {
		grid, err = grid_world.Generate(cfg.Grid, rng)
	}
	if err != nil {
		return nil, fmt.Errorf("build lake: %w", err)
	}

	solveCtx, cancel, err := cfg.WithTrainingDeadline(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	sol, err := reinforcement.Solve(solveCtx, grid, cfg.SolverConfig(), progressFn)
	if err != nil && (!errors.Is(err, reinforcement.ErrNotConverged) || sol.Sweeps == 0) {
		// Without a single sweep there is no policy to replay.
		return nil, fmt.Errorf("solve lake: %w", err)
	}

	return &Session{
		Id:       uuid.New().String(),
		Grid:     grid,
		Solution: sol,
		Runner:   reinforcement.NewEpisodeRunner(grid, sol.Policy, cfg.Episode),
		SolveErr: err,
	}, nil
}

// TileSnapshot is the read-only view of a tile.
type TileSnapshot struct {
	Id       int
	Row, Col int
	Position grid_world.Position
	Nature   grid_world.Nature
	Value    float64
	Policy   grid_world.Direction
}

// Snapshot is everything the rendering collaborator reads once per tick.
type Snapshot struct {
	SessionId  string
	Rows, Cols int
	StartId    int
	GoalId     int
	Tiles      []TileSnapshot
	Agent      reinforcement.EpisodeState
	Position   grid_world.Position
	Sweeps     int
	Converged  bool
}

// Snapshot copies the session's current state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		SessionId: s.Id,
		Rows:      s.Grid.Rows,
		Cols:      s.Grid.Cols,
		StartId:   s.Grid.StartId,
		GoalId:    s.Grid.GoalId,
		Tiles:     make([]TileSnapshot, 0, s.Grid.NumTiles()),
		Agent:     s.Runner.State(),
		Position:  s.Runner.Position(),
		Sweeps:    s.Solution.Sweeps,
		Converged: s.Solution.Converged,
	}
	s.Grid.Visit(func(tile *grid_world.Tile) {
		snap.Tiles = append(snap.Tiles, TileSnapshot{
			Id:       tile.Id,
			Row:      tile.Row,
			Col:      tile.Col,
			Position: tile.Position,
			Nature:   tile.Nature,
			Value:    s.Solution.Values.Get(tile.Id),
			Policy:   s.Solution.Policy[tile.Id],
		})
	})
	return snap
}

// PublishFunc receives a snapshot after every tick. It is called synchronously.
type PublishFunc func(ctx context.Context, snap Snapshot)

// Play runs games until ctx is done: each tick advances the current episode by one step
// and publishes a snapshot. A finished episode stays on display for the configured reset
// delay; an episode hitting the step cap, or a finished one, is followed by a fresh lake.
func Play(
	ctx context.Context,
	cfg *reinforcement.TrainingConfig,
	rng *rand.Rand,
	publish PublishFunc,
) error {
	sess, err := newLoggedSession(ctx, cfg, rng)
	if err != nil {
		return ignoreDone(ctx, err)
	}
	publish(ctx, sess.Snapshot())

	maxSteps := cfg.MaxSteps(sess.Grid.NumTiles())
	idleTicks := 0
	for range channerics.NewTicker(ctx.Done(), cfg.Playback.TickPeriod) {
		state := sess.Runner.State()
		capped := !state.Status.IsTerminal() && state.Steps >= maxSteps
		if state.Status.IsTerminal() {
			idleTicks++
		}

		if capped || idleTicks > cfg.Playback.ResetDelay {
			if capped {
				slog.Info("episode step cap reached", "session", sess.Id, "steps", state.Steps)
			}
			if sess, err = newLoggedSession(ctx, cfg, rng); err != nil {
				return ignoreDone(ctx, err)
			}
			maxSteps = cfg.MaxSteps(sess.Grid.NumTiles())
			idleTicks = 0
		} else if !state.Status.IsTerminal() {
			state = sess.Runner.Advance()
			if state.Status.IsTerminal() {
				slog.Info("episode finished",
					"session", sess.Id,
					"status", state.Status.String(),
					"score", state.Score,
					"steps", state.Steps)
			}
		}

		publish(ctx, sess.Snapshot())
	}
	return nil
}

// ignoreDone drops errors caused by shutdown.
func ignoreDone(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func maxValue(values *reinforcement.ValueTable) float64 {
	best := math.Inf(-1)
	for id := 0; id < values.Len(); id++ {
		best = math.Max(best, values.Get(id))
	}
	return best
}

func newLoggedSession(
	ctx context.Context,
	cfg *reinforcement.TrainingConfig,
	rng *rand.Rand,
) (*Session, error) {
	progress := func(_ context.Context, sweep int, residual float64, values *reinforcement.ValueTable) {
		slog.Debug("sweep", "sweep", sweep, "residual", residual, "maxValue", maxValue(values))
	}

	sess, err := NewSession(ctx, cfg, rng, progress)
	if err != nil {
		return nil, err
	}

	if sess.SolveErr != nil {
		slog.Warn("solver did not converge, replaying best-effort policy",
			"session", sess.Id,
			"sweeps", sess.Solution.Sweeps,
			"residual", sess.Solution.Residual,
			"err", sess.SolveErr)
	} else {
		slog.Info("lake solved",
			"session", sess.Id,
			"rows", sess.Grid.Rows,
			"cols", sess.Grid.Cols,
			"sweeps", sess.Solution.Sweeps,
			"residual", sess.Solution.Residual)
	}
	return sess, nil
}
