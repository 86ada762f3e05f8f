package model

import (
	"fmt"

	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/grid"
	"github.com/banshee-data/spt.report/internal/tabular"
)

// SquareMetrics are the track-derived summaries of one square.
type SquareMetrics struct {
	MedianDiffusionCoefficient    float64
	MedianDiffusionCoefficientExt float64
	MedianLongTrackDuration       float64
	MedianShortTrackDuration      float64
	MedianDisplacement            float64
	MaxDisplacement               float64
	TotalDisplacement             float64
	MedianMaxSpeed                float64
	MaxMaxSpeed                   float64
	MedianMeanSpeed               float64
	MaxMeanSpeed                  float64
	MaxTrackDuration              float64
	TotalTrackDuration            float64
	MedianTrackDuration           float64
	MedianConfinementRatio        float64
}

// Square is a grid square of one recording as stored in the square table.
type Square struct {
	grid.Square
	SquareMetrics

	UniqueKey     string
	RecordingName string
	LabelNr       int
}

// SquareKey builds the unique key of a square within a project.
func SquareKey(recording string, squareNr int) string {
	return fmt.Sprintf("%s-%d", recording, squareNr)
}

// Row renders s in SquareSchema column order.
func (s Square) Row() []string {
	f := tabular.FormatFloat
	return []string{
		s.UniqueKey,
		s.RecordingName,
		formatInt(s.Index),
		formatInt(s.Cell.Row),
		formatInt(s.Col),
		formatInt(s.LabelNr),
		f(s.X0),
		f(s.Y0),
		f(s.X1),
		f(s.Y1),
		tabular.FormatBool(s.Selected),
		tabular.FormatBool(s.ManuallyExcluded),
		tabular.FormatBool(s.ImageExcluded),
		formatInt(s.NrTracks),
		f(s.Variability),
		f(s.Density),
		f(s.DensityRatio),
		f(s.Tau),
		f(s.RSquared),
		f(s.MedianDiffusionCoefficient),
		f(s.MedianDiffusionCoefficientExt),
		f(s.MedianLongTrackDuration),
		f(s.MedianShortTrackDuration),
		f(s.MedianDisplacement),
		f(s.MaxDisplacement),
		f(s.TotalDisplacement),
		f(s.MedianMaxSpeed),
		f(s.MaxMaxSpeed),
		f(s.MedianMeanSpeed),
		f(s.MaxMeanSpeed),
		f(s.MaxTrackDuration),
		f(s.TotalTrackDuration),
		f(s.MedianTrackDuration),
		f(s.MedianConfinementRatio),
	}
}

func squareFromRow(r *rowReader) Square {
	var s Square
	s.UniqueKey = r.str("Unique Key")
	s.RecordingName = r.str("Recording Name")
	s.Index = r.int("Square Nr")
	s.Cell.Row = r.int("Row Nr")
	s.Col = r.int("Col Nr")
	s.LabelNr = r.int("Label Nr")
	s.X0 = r.float("X0")
	s.Y0 = r.float("Y0")
	s.X1 = r.float("X1")
	s.Y1 = r.float("Y1")
	s.Selected = r.bool("Selected")
	s.ManuallyExcluded = r.bool("Manually Excluded")
	s.ImageExcluded = r.bool("Image Excluded")
	s.NrTracks = r.int("Nr Tracks")
	s.Variability = r.float("Variability")
	s.Density = r.float("Density")
	s.DensityRatio = r.float("Density Ratio")
	s.Tau = r.float("Tau")
	s.RSquared = r.float("R Squared")
	s.MedianDiffusionCoefficient = r.float("Median Diffusion Coefficient")
	s.MedianDiffusionCoefficientExt = r.float("Median Diffusion Coefficient Ext")
	s.MedianLongTrackDuration = r.float("Median Long Track Duration")
	s.MedianShortTrackDuration = r.float("Median Short Track Duration")
	s.MedianDisplacement = r.float("Median Displacement")
	s.MaxDisplacement = r.float("Max Displacement")
	s.TotalDisplacement = r.float("Total Displacement")
	s.MedianMaxSpeed = r.float("Median Max Speed")
	s.MaxMaxSpeed = r.float("Max Max Speed")
	s.MedianMeanSpeed = r.float("Median Mean Speed")
	s.MaxMeanSpeed = r.float("Max Mean Speed")
	s.MaxTrackDuration = r.float("Max Track Duration")
	s.TotalTrackDuration = r.float("Total Track Duration")
	s.MedianTrackDuration = r.float("Median Track Duration")
	s.MedianConfinementRatio = r.float("Median Confinement Ratio")
	return s
}

// ReadSquares reads a square table.
func ReadSquares(fsys fsutil.FileSystem, path string) ([]Square, error) {
	return readAll(fsys, path, SquareSchema, squareFromRow)
}

// WriteSquares writes squares as a square table.
func WriteSquares(fsys fsutil.FileSystem, path string, squares []Square) error {
	return writeAll(fsys, path, SquareSchema, squares)
}
