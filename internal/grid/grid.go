package grid

import (
	"fmt"
	"math"
)

// DefaultImageSize is the physical edge length (µm) of the square field of
// view imaged by the microscope.
const DefaultImageSize = 82.0864

// Descriptor is the immutable description of a square grid laid over the
// image plane: SquaresPerRow × SquaresPerRow cells of equal size.
type Descriptor struct {
	SquaresPerRow int
	ImageSize     float64
}

// NewDescriptor builds a descriptor for nrSquares squares. nrSquares must be
// a perfect square; imageSize <= 0 selects DefaultImageSize.
func NewDescriptor(nrSquares int, imageSize float64) (Descriptor, error) {
	if nrSquares <= 0 {
		return Descriptor{}, fmt.Errorf("%w: number of squares must be positive, got %d", ErrInvalidArgument, nrSquares)
	}
	perRow := int(math.Round(math.Sqrt(float64(nrSquares))))
	if perRow*perRow != nrSquares {
		return Descriptor{}, fmt.Errorf("%w: number of squares %d is not a perfect square", ErrInvalidArgument, nrSquares)
	}
	if imageSize <= 0 {
		imageSize = DefaultImageSize
	}
	return Descriptor{SquaresPerRow: perRow, ImageSize: imageSize}, nil
}

// NrSquares returns the total number of squares in the grid.
func (d Descriptor) NrSquares() int { return d.SquaresPerRow * d.SquaresPerRow }

// SquareSize returns the edge length of one square.
func (d Descriptor) SquareSize() float64 { return d.ImageSize / float64(d.SquaresPerRow) }

// SquareArea returns the area of one square.
func (d Descriptor) SquareArea() float64 {
	s := d.SquareSize()
	return s * s
}

// Cell is the position of one square: its sequential index, grid
// coordinates and bounds in image units.
type Cell struct {
	Index int
	Row   int
	Col   int
	X0    float64
	Y0    float64
	X1    float64
	Y1    float64
}

// Cell maps a sequential square index to its row, column and bounds.
// Indices run row-major from the top-left corner.
func (d Descriptor) Cell(index int) Cell {
	row := index / d.SquaresPerRow
	col := index % d.SquaresPerRow
	size := d.SquareSize()
	return Cell{
		Index: index,
		Row:   row,
		Col:   col,
		X0:    float64(col) * size,
		Y0:    float64(row) * size,
		X1:    float64(col+1) * size,
		Y1:    float64(row+1) * size,
	}
}

// Cells returns every cell of the grid in index order.
func (d Descriptor) Cells() []Cell {
	cells := make([]Cell, d.NrSquares())
	for i := range cells {
		cells[i] = d.Cell(i)
	}
	return cells
}

// Locate returns the index of the square containing (x, y). Points on the
// far image edge belong to the last row/column; points outside the image
// are rejected.
func (d Descriptor) Locate(x, y float64) (int, bool) {
	if math.IsNaN(x) || math.IsNaN(y) || x < 0 || y < 0 || x > d.ImageSize || y > d.ImageSize {
		return -1, false
	}
	size := d.SquareSize()
	col := min(int(x/size), d.SquaresPerRow-1)
	row := min(int(y/size), d.SquaresPerRow-1)
	return row*d.SquaresPerRow + col, true
}

// Square is one grid cell annotated with the statistics derived from the
// tracks that fall inside it.
type Square struct {
	Cell

	NrTracks     int
	Variability  float64
	Density      float64
	DensityRatio float64
	Tau          float64
	RSquared     float64

	Selected         bool
	ManuallyExcluded bool
	ImageExcluded    bool
}

// NewSquares returns one empty square per grid cell, with NaN fit results.
func (d Descriptor) NewSquares() []*Square {
	squares := make([]*Square, d.NrSquares())
	for i := range squares {
		squares[i] = &Square{Cell: d.Cell(i), Tau: math.NaN(), RSquared: math.NaN()}
	}
	return squares
}
