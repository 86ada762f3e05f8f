package model

import (
	"fmt"

	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/tabular"
)

// Unassigned marks a track that has not been placed in a square.
const Unassigned = -1

// Track is one reconstructed trajectory. Only SquareNr changes after
// creation, when tracks are partitioned into squares.
type Track struct {
	UniqueKey               string
	RecordingName           string
	TrackID                 int
	NrSpots                 int
	NrGaps                  int
	LongestGap              int
	Duration                float64
	X                       float64
	Y                       float64
	Displacement            float64
	MaxSpeed                float64
	MedianSpeed             float64
	MeanSpeed               float64
	DiffusionCoefficient    float64
	DiffusionCoefficientExt float64
	TotalDistance           float64
	ConfinementRatio        float64
	SquareNr                int
	LabelNr                 int
}

// TrackKey builds the unique key of a track within a project.
func TrackKey(recording string, trackID int) string {
	return fmt.Sprintf("%s-%d", recording, trackID)
}

// Row renders t in TrackSchema column order.
func (t Track) Row() []string {
	return []string{
		t.UniqueKey,
		t.RecordingName,
		formatInt(t.TrackID),
		formatInt(t.NrSpots),
		formatInt(t.NrGaps),
		formatInt(t.LongestGap),
		tabular.FormatFloat(t.Duration),
		tabular.FormatFloat(t.X),
		tabular.FormatFloat(t.Y),
		tabular.FormatFloat(t.Displacement),
		tabular.FormatFloat(t.MaxSpeed),
		tabular.FormatFloat(t.MedianSpeed),
		tabular.FormatFloat(t.MeanSpeed),
		tabular.FormatFloat(t.DiffusionCoefficient),
		tabular.FormatFloat(t.DiffusionCoefficientExt),
		tabular.FormatFloat(t.TotalDistance),
		tabular.FormatFloat(t.ConfinementRatio),
		formatInt(t.SquareNr),
		formatInt(t.LabelNr),
	}
}

func trackFromRow(r *rowReader) Track {
	t := Track{
		UniqueKey:               r.str("Unique Key"),
		RecordingName:           r.str("Recording Name"),
		TrackID:                 r.int("Track Id"),
		NrSpots:                 r.int("Nr Spots"),
		NrGaps:                  r.int("Nr Gaps"),
		LongestGap:              r.int("Longest Gap"),
		Duration:                r.float("Track Duration"),
		X:                       r.float("Track X Location"),
		Y:                       r.float("Track Y Location"),
		Displacement:            r.float("Track Displacement"),
		MaxSpeed:                r.float("Track Max Speed"),
		MedianSpeed:             r.float("Track Median Speed"),
		MeanSpeed:               r.float("Track Mean Speed"),
		DiffusionCoefficient:    r.float("Diffusion Coefficient"),
		DiffusionCoefficientExt: r.float("Diffusion Coefficient Ext"),
		TotalDistance:           r.float("Total Distance"),
		ConfinementRatio:        r.float("Confinement Ratio"),
		SquareNr:                Unassigned,
		LabelNr:                 r.int("Label Nr"),
	}
	if r.str("Square Nr") != "" {
		t.SquareNr = r.int("Square Nr")
	}
	return t
}

// ReadTracks reads a track table.
func ReadTracks(fsys fsutil.FileSystem, path string) ([]Track, error) {
	return readAll(fsys, path, TrackSchema, trackFromRow)
}

// WriteTracks writes tracks as a track table.
func WriteTracks(fsys fsutil.FileSystem, path string, tracks []Track) error {
	return writeAll(fsys, path, TrackSchema, tracks)
}
