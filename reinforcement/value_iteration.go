package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"math"

	"frozenlake/atomic_float"
	. "frozenlake/grid_world"
)

// SweepMode selects how a sweep reads the value table.
type SweepMode string

const (
	// IN_PLACE (Gauss-Seidel) writes each tile's new value immediately, so later tiles
	// in the same sweep back up from it.
	IN_PLACE SweepMode = "in-place"
	// SYNCHRONOUS (Jacobi) backs up every tile from the previous sweep's values. It reaches
	// the same fixed point but typically needs more sweeps, since information moves one
	// tile per sweep regardless of id order.
	SYNCHRONOUS SweepMode = "synchronous"
)

// SolverConfig parameterizes value iteration.
type SolverConfig struct {
	// Gamma is the discount applied to successor values, in [0,1).
	Gamma float64
	// Epsilon is the convergence threshold on the max per-sweep value change.
	Epsilon float64
	// MaxIterations caps the number of sweeps.
	MaxIterations int
	Mode          SweepMode
}

var (
	// ErrInvalidSolverConfig is returned before any sweep runs.
	ErrInvalidSolverConfig = errors.New("invalid solver config")
	// ErrNotConverged is returned, alongside the best-effort tables, when the sweep cap or
	// the context deadline is hit before the residual falls to epsilon. It is recoverable.
	ErrNotConverged = errors.New("value iteration did not converge")
)

func (cfg *SolverConfig) Validate() error {
	if math.IsNaN(cfg.Gamma) || cfg.Gamma < 0 || cfg.Gamma >= 1 {
		return fmt.Errorf("%w: gamma %v outside [0,1)", ErrInvalidSolverConfig, cfg.Gamma)
	}
	if math.IsNaN(cfg.Epsilon) || cfg.Epsilon < 0 {
		return fmt.Errorf("%w: epsilon %v must be non-negative", ErrInvalidSolverConfig, cfg.Epsilon)
	}
	if cfg.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations %d must be positive", ErrInvalidSolverConfig, cfg.MaxIterations)
	}
	if cfg.Mode != IN_PLACE && cfg.Mode != SYNCHRONOUS {
		return fmt.Errorf("%w: unknown sweep mode %q", ErrInvalidSolverConfig, cfg.Mode)
	}
	return nil
}

// ValueTable holds one value estimate per tile id. Only the solver writes it. The table
// passed to a ProgressFunc may be handed to other goroutines and read while sweeps continue.
type ValueTable struct {
	values []*atomic_float.AtomicFloat64
}

func NewValueTable(numTiles int) *ValueTable {
	vt := &ValueTable{values: make([]*atomic_float.AtomicFloat64, numTiles)}
	for id := range vt.values {
		vt.values[id] = atomic_float.NewAtomicFloat64(0)
	}
	return vt
}

// Get returns the current value estimate of tile id.
func (vt *ValueTable) Get(id int) float64 {
	return vt.values[id].AtomicRead()
}

func (vt *ValueTable) set(id int, val float64) (old float64) {
	return vt.values[id].AtomicSwap(val)
}

func (vt *ValueTable) Len() int {
	return len(vt.values)
}

// Snapshot copies the current values.
func (vt *ValueTable) Snapshot() []float64 {
	vals := make([]float64, len(vt.values))
	for id := range vt.values {
		vals[id] = vt.values[id].AtomicRead()
	}
	return vals
}

// PolicyTable holds the greedy action per tile id; NONE for terminal tiles.
type PolicyTable []Direction

// Solution is the output of Solve.
type Solution struct {
	Values *ValueTable
	Policy PolicyTable
	// Sweeps is the number of completed sweeps; Residual is the max value change of the last one.
	Sweeps    int
	Residual  float64
	Converged bool
}

// ProgressFunc is called synchronously after every sweep and should complete quickly.
// values is the live table being solved.
type ProgressFunc func(ctx context.Context, sweep int, residual float64, values *ValueTable)

// Solve runs value iteration over the grid until the max per-sweep change is at most
// cfg.Epsilon. Sweeps visit tiles in increasing id order. If the sweep cap is reached or
// ctx is done first, the best-effort solution is returned with an error wrapping ErrNotConverged.
func Solve(
	ctx context.Context,
	grid *Grid,
	cfg SolverConfig,
	progressFn ProgressFunc,
) (*Solution, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sol := &Solution{
		Values: NewValueTable(grid.NumTiles()),
		Policy: make(PolicyTable, grid.NumTiles()),
	}

	for sweep := 1; sweep <= cfg.MaxIterations; sweep++ {
		if err := ctx.Err(); err != nil {
			return sol, fmt.Errorf("%w after %d sweeps: %w", ErrNotConverged, sol.Sweeps, err)
		}

		sol.Residual = sweepOnce(grid, sol, cfg)
		sol.Sweeps = sweep
		if progressFn != nil {
			progressFn(ctx, sweep, sol.Residual, sol.Values)
		}

		if sol.Residual <= cfg.Epsilon {
			sol.Converged = true
			return sol, nil
		}
	}

	return sol, fmt.Errorf(
		"%w: residual %g above epsilon %g after %d sweeps",
		ErrNotConverged, sol.Residual, cfg.Epsilon, sol.Sweeps)
}

// sweepOnce performs one Bellman backup of every tile and returns the max absolute change.
func sweepOnce(grid *Grid, sol *Solution, cfg SolverConfig) (residual float64) {
	read := sol.Values.Get
	if cfg.Mode == SYNCHRONOUS {
		prev := sol.Values.Snapshot()
		read = func(id int) float64 { return prev[id] }
	}

	goal := grid.Goal().Position
	for id := range grid.Tiles {
		tile := &grid.Tiles[id]

		var val float64
		if tile.IsTerminal() {
			val = tile.Reward
			sol.Policy[id] = NONE
		} else {
			sol.Policy[id], val = GreedyAction(grid, tile, goal, cfg.Gamma, read)
		}

		old := sol.Values.set(id, val)
		residual = math.Max(residual, math.Abs(old-val))
	}
	return
}

// GreedyAction returns the action from tile with the max backed-up value
// reward(next) + gamma*V(next), and that value. Equal values go to the action whose
// successor is closest to goal; equal distances keep the first action in enumeration order.
func GreedyAction(
	grid *Grid,
	tile *Tile,
	goal Position,
	gamma float64,
	valueOf func(id int) float64,
) (best Direction, bestVal float64) {
	best = NONE
	bestDist := math.MaxFloat64
	for _, action := range tile.Actions {
		next := grid.Tile(grid.Step(tile.Id, action))
		val := next.Reward + gamma*valueOf(next.Id)
		dist := Distance(next.Position, goal)

		if best == NONE || val > bestVal || (val == bestVal && dist < bestDist) {
			best, bestVal, bestDist = action, val, dist
		}
	}
	return
}
