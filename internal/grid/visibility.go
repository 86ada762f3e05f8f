package grid

import (
	"fmt"
	"math"
	"strings"
)

// NeighbourMode controls whether a selected square needs selected
// neighbours to stay selected.
type NeighbourMode int

const (
	// NeighbourFree keeps isolated squares.
	NeighbourFree NeighbourMode = iota
	// NeighbourRelaxed requires a selected square among the 8 surrounding cells.
	NeighbourRelaxed
	// NeighbourStrict requires a selected square directly above, below, left or right.
	NeighbourStrict
)

var neighbourOffsets = map[NeighbourMode][][2]int{
	NeighbourRelaxed: {{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}},
	NeighbourStrict:  {{-1, 0}, {1, 0}, {0, -1}, {0, 1}},
}

// ParseNeighbourMode parses "Free", "Relaxed" or "Strict" (case-insensitive).
func ParseNeighbourMode(s string) (NeighbourMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return NeighbourFree, nil
	case "relaxed":
		return NeighbourRelaxed, nil
	case "strict":
		return NeighbourStrict, nil
	}
	return NeighbourFree, fmt.Errorf("unknown neighbour mode %q", s)
}

func (m NeighbourMode) String() string {
	switch m {
	case NeighbourRelaxed:
		return "Relaxed"
	case NeighbourStrict:
		return "Strict"
	default:
		return "Free"
	}
}

// Adjacent reports whether b is a neighbour of a under this mode. A cell is
// never its own neighbour, and in Free mode nothing is adjacent.
func (m NeighbourMode) Adjacent(a, b Cell) bool {
	dr, dc := b.Row-a.Row, b.Col-a.Col
	for _, off := range neighbourOffsets[m] {
		if off[0] == dr && off[1] == dc {
			return true
		}
	}
	return false
}

// VisibilityParams are the thresholds a square must meet to be selected.
type VisibilityParams struct {
	MinDensityRatio float64
	MaxVariability  float64
	MinRSquared     float64
	NeighbourMode   NeighbourMode
}

// ApplyVisibility recomputes the Selected flag of every square.
//
// Pass one selects squares meeting the density-ratio, variability and R²
// thresholds (a NaN R² never qualifies). Unless the mode is Free, pass two
// deselects any square with no adjacent square selected in pass one. The
// second pass looks only at the pass-one state, so the result does not
// depend on square order and repeated calls give the same flags.
func ApplyVisibility(squares []*Square, p VisibilityParams) {
	for _, sq := range squares {
		sq.Selected = sq.DensityRatio >= p.MinDensityRatio &&
			sq.Variability <= p.MaxVariability &&
			!math.IsNaN(sq.RSquared) &&
			sq.RSquared >= p.MinRSquared
	}
	if p.NeighbourMode == NeighbourFree {
		return
	}

	selected := make(map[[2]int]bool, len(squares))
	for _, sq := range squares {
		if sq.Selected {
			selected[[2]int{sq.Row, sq.Col}] = true
		}
	}

	var isolated []*Square
	for _, sq := range squares {
		if sq.Selected && !hasSelectedNeighbour(sq.Cell, selected, p.NeighbourMode) {
			isolated = append(isolated, sq)
		}
	}
	for _, sq := range isolated {
		sq.Selected = false
	}
}

func hasSelectedNeighbour(c Cell, selected map[[2]int]bool, mode NeighbourMode) bool {
	for _, off := range neighbourOffsets[mode] {
		if selected[[2]int{c.Row + off[0], c.Col + off[1]}] {
			return true
		}
	}
	return false
}
