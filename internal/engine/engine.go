// Package engine adapts external particle detection and tracking engines.
//
// An engine takes one image file and a detection parameter bundle and
// returns spot, track and frame counts plus per-track kinematic features.
// Engines must honour ctx: the pipeline cancels it on timeout or operator
// cancellation.
package engine

import (
	"context"
	"errors"

	"github.com/banshee-data/spt.report/internal/config"
	"github.com/banshee-data/spt.report/internal/model"
)

// ErrEngine wraps every failure reported by an engine adapter.
var ErrEngine = errors.New("detection engine failed")

// Engine detects and links particles in one recording.
type Engine interface {
	Detect(ctx context.Context, req Request) (*Result, error)
}

// Request is the input of one detection run.
type Request struct {
	ImagePath string                 `json:"image_path"`
	Recording string                 `json:"recording"`
	Params    config.DetectionParams `json:"params"`
}

// Result is the output of one detection run.
type Result struct {
	NrSpots          int     `json:"nr_spots"`
	NrTracksRaw      int     `json:"nr_tracks_raw"`
	NrTracksFiltered int     `json:"nr_tracks_filtered"`
	NrFrames         int     `json:"nr_frames"`
	Tracks           []Track `json:"tracks"`
}

// Track holds the kinematic features of one trajectory as reported by the
// engine.
type Track struct {
	TrackID                 int     `json:"track_id"`
	NrSpots                 int     `json:"nr_spots"`
	NrGaps                  int     `json:"nr_gaps"`
	LongestGap              int     `json:"longest_gap"`
	Duration                float64 `json:"duration"`
	X                       float64 `json:"x"`
	Y                       float64 `json:"y"`
	Displacement            float64 `json:"displacement"`
	MaxSpeed                float64 `json:"max_speed"`
	MedianSpeed             float64 `json:"median_speed"`
	MeanSpeed               float64 `json:"mean_speed"`
	DiffusionCoefficient    float64 `json:"diffusion_coefficient"`
	DiffusionCoefficientExt float64 `json:"diffusion_coefficient_ext"`
	TotalDistance           float64 `json:"total_distance"`
	ConfinementRatio        float64 `json:"confinement_ratio"`
}

// Model converts the engine track into a track row of recording.
func (t Track) Model(recording string) model.Track {
	return model.Track{
		UniqueKey:               model.TrackKey(recording, t.TrackID),
		RecordingName:           recording,
		TrackID:                 t.TrackID,
		NrSpots:                 t.NrSpots,
		NrGaps:                  t.NrGaps,
		LongestGap:              t.LongestGap,
		Duration:                t.Duration,
		X:                       t.X,
		Y:                       t.Y,
		Displacement:            t.Displacement,
		MaxSpeed:                t.MaxSpeed,
		MedianSpeed:             t.MedianSpeed,
		MeanSpeed:               t.MeanSpeed,
		DiffusionCoefficient:    t.DiffusionCoefficient,
		DiffusionCoefficientExt: t.DiffusionCoefficientExt,
		TotalDistance:           t.TotalDistance,
		ConfinementRatio:        t.ConfinementRatio,
		SquareNr:                model.Unassigned,
	}
}

// ModelTracks converts all tracks of r.
func (r *Result) ModelTracks(recording string) []model.Track {
	out := make([]model.Track, len(r.Tracks))
	for i, t := range r.Tracks {
		out[i] = t.Model(recording)
	}
	return out
}
