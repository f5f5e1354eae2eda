// cell_views contains the view-model derived from session snapshots.
package cell_views

import (
	"fmt"

	"frozenlake/grid_world"
	"frozenlake/session"
)

// Cell is a tile flattened into fields that are immediately usable as view parameters:
// display coordinates, a css fill, the value label, and the policy arrow's rotation.
type Cell struct {
	Id                  int     `json:"id"`
	Row                 int     `json:"row"`
	Col                 int     `json:"col"`
	X                   float64 `json:"x"`
	Y                   float64 `json:"y"`
	Nature              string  `json:"nature"`
	Fill                string  `json:"fill"`
	Value               float64 `json:"value"`
	PolicyArrowRotation int     `json:"policyArrowRotation"`
	Terminal            bool    `json:"terminal"`
}

// Agent is the replay marker.
type Agent struct {
	TileId int     `json:"tileId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Score  float64 `json:"score"`
	Status string  `json:"status"`
	Steps  int     `json:"steps"`
}

// Frame is one tick's complete view-model. Frames are idempotent: the latest one fully
// specifies the view, so intervening frames may be dropped.
type Frame struct {
	SessionId string `json:"sessionId"`
	Rows      int    `json:"rows"`
	Cols      int    `json:"cols"`
	StartId   int    `json:"startId"`
	GoalId    int    `json:"goalId"`
	Sweeps    int    `json:"sweeps"`
	Converged bool   `json:"converged"`
	Cells     []Cell `json:"cells"`
	Agent     Agent  `json:"agent"`
}

// Convert transforms a session snapshot into a Frame.
func Convert(snap session.Snapshot) Frame {
	frame := Frame{
		SessionId: snap.SessionId,
		Rows:      snap.Rows,
		Cols:      snap.Cols,
		StartId:   snap.StartId,
		GoalId:    snap.GoalId,
		Sweeps:    snap.Sweeps,
		Converged: snap.Converged,
		Cells:     make([]Cell, len(snap.Tiles)),
		Agent: Agent{
			TileId: snap.Agent.TileId,
			X:      snap.Position.X,
			Y:      snap.Position.Y,
			Score:  snap.Agent.Score,
			Status: snap.Agent.Status.String(),
			Steps:  snap.Agent.Steps,
		},
	}

	for i, tile := range snap.Tiles {
		frame.Cells[i] = Cell{
			Id:                  tile.Id,
			Row:                 tile.Row,
			Col:                 tile.Col,
			X:                   tile.Position.X,
			Y:                   tile.Position.Y,
			Nature:              tile.Nature.String(),
			Fill:                getFill(tile.Nature),
			Value:               tile.Value,
			PolicyArrowRotation: getDegrees(tile.Policy),
			Terminal:            tile.Nature.IsTerminal(),
		}
	}
	return frame
}

func getFill(nature grid_world.Nature) string {
	c := nature.Color()
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}

// getDegrees returns the clockwise rotation, from vertical, of an upward arrow rune
// pointing in the policy direction.
func getDegrees(dir grid_world.Direction) (deg int) {
	switch dir {
	case grid_world.RIGHT:
		deg = 90
	case grid_world.DOWN:
		deg = 180
	case grid_world.LEFT:
		deg = 270
	}
	return
}
