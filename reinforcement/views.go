package reinforcement

import (
	"fmt"
	"io"

	. "frozenlake/grid_world"
)

// ShowPolicy prints the policy as one arrow per tile; terminal tiles print their nature rune.
func ShowPolicy(w io.Writer, grid *Grid, policy PolicyTable) {
	for i := 0; i < grid.Rows; i++ {
		fmt.Fprint(w, " ")
		for j := 0; j < grid.Cols; j++ {
			tile := grid.Tile(i*grid.Cols + j)
			if tile.IsTerminal() {
				fmt.Fprintf(w, "%c ", tile.Nature)
			} else {
				fmt.Fprintf(w, "%c ", policy[tile.Id].Arrow())
			}
		}
		fmt.Fprintln(w)
	}
}

// ShowValues prints the value estimate of each tile and their total.
func ShowValues(w io.Writer, grid *Grid, values *ValueTable) {
	fmt.Fprintln(w, "Values:")
	total := 0.0
	for i := 0; i < grid.Rows; i++ {
		fmt.Fprint(w, " ")
		for j := 0; j < grid.Cols; j++ {
			val := values.Get(i*grid.Cols + j)
			fmt.Fprintf(w, "%6.2f ", val)
			total += val
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total: %.2f\n", total)
}

// ShowTrace prints the (row,col) path of an episode.
func ShowTrace(w io.Writer, grid *Grid, trace []int) {
	for i, id := range trace {
		if i > 0 {
			fmt.Fprint(w, " -> ")
		}
		tile := grid.Tile(id)
		fmt.Fprintf(w, "(%d,%d)", tile.Row, tile.Col)
	}
	fmt.Fprintln(w)
}
