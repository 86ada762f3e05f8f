package grid

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// ErrInvalidArgument reports a non-positive divisor or malformed grid size.
var ErrInvalidArgument = errors.New("invalid argument")

// Density returns tracks per unit area, per second, per unit concentration.
func Density(trackCount int, area, durationSeconds, concentration float64) (float64, error) {
	switch {
	case !(area > 0):
		return 0, fmt.Errorf("%w: area must be positive, got %v", ErrInvalidArgument, area)
	case !(durationSeconds > 0):
		return 0, fmt.Errorf("%w: duration must be positive, got %v", ErrInvalidArgument, durationSeconds)
	case !(concentration > 0):
		return 0, fmt.Errorf("%w: concentration must be positive, got %v", ErrInvalidArgument, concentration)
	}
	return float64(trackCount) / area / durationSeconds / concentration, nil
}

// Variability returns the coefficient of variation of track counts over a
// granularity × granularity sub-grid of cell. Points outside the cell are
// ignored; an empty cell has zero variability.
func Variability(xs, ys []float64, cell Cell, granularity int) float64 {
	if granularity <= 0 {
		granularity = 10
	}
	counts := make([]float64, granularity*granularity)
	w := (cell.X1 - cell.X0) / float64(granularity)
	h := (cell.Y1 - cell.Y0) / float64(granularity)

	n := 0
	for i := range xs {
		x, y := xs[i], ys[i]
		if x < cell.X0 || x > cell.X1 || y < cell.Y0 || y > cell.Y1 {
			continue
		}
		c := min(int((x-cell.X0)/w), granularity-1)
		r := min(int((y-cell.Y0)/h), granularity-1)
		counts[r*granularity+c]++
		n++
	}
	if n == 0 {
		return 0
	}
	mean, std := stat.PopMeanStdDev(counts, nil)
	return std / mean
}
