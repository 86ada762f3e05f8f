// Package model defines the recording, track and square records exchanged
// between pipeline stages and their fixed tabular schemas.
package model

import "github.com/banshee-data/spt.report/internal/tabular"

// Well-known file names inside an experiment directory.
const (
	ExperimentInfoFile = "Experiment Info.csv"
	RecordingsFile     = "All Recordings.csv"
	TracksFile         = "All Tracks.csv"
	SquaresFile        = "All Squares.csv"

	// CaseColumn labels rows produced by a sweep case after flattening.
	CaseColumn = "Case"
)

// TracksFileFor names the per-recording track table written by the pipeline.
func TracksFileFor(recording string) string {
	return recording + "-tracks.csv"
}

var recordingMetadataColumns = []string{
	"Recording Name",
	"Experiment Name",
	"Condition Nr",
	"Replicate Nr",
	"Probe",
	"Cell Type",
	"Adjuvant",
	"Concentration",
	"Process Flag",
	"Threshold",
}

var recordingDerivedColumns = []string{
	"Nr Spots",
	"Nr Tracks",
	"Nr Frames",
	"Run Time",
	"Time Stamp",
	"Exclude",
	"Background",
	"Tau",
	"R Squared",
	"Density",
}

// ExperimentInfoSchema is the input metadata table: the leading recording columns.
var ExperimentInfoSchema = tabular.Schema{
	Name:    "experiment info",
	Columns: recordingMetadataColumns,
}

// RecordingSchema is the 20-column per-experiment recording table.
var RecordingSchema = tabular.Schema{
	Name:    "recordings",
	Columns: append(append([]string(nil), recordingMetadataColumns...), recordingDerivedColumns...),
}

// TrackSchema is the 19-column track table.
var TrackSchema = tabular.Schema{
	Name: "tracks",
	Columns: []string{
		"Unique Key",
		"Recording Name",
		"Track Id",
		"Nr Spots",
		"Nr Gaps",
		"Longest Gap",
		"Track Duration",
		"Track X Location",
		"Track Y Location",
		"Track Displacement",
		"Track Max Speed",
		"Track Median Speed",
		"Track Mean Speed",
		"Diffusion Coefficient",
		"Diffusion Coefficient Ext",
		"Total Distance",
		"Confinement Ratio",
		"Square Nr",
		"Label Nr",
	},
}

// SquareSchema is the 34-column square table.
var SquareSchema = tabular.Schema{
	Name: "squares",
	Columns: []string{
		"Unique Key",
		"Recording Name",
		"Square Nr",
		"Row Nr",
		"Col Nr",
		"Label Nr",
		"X0",
		"Y0",
		"X1",
		"Y1",
		"Selected",
		"Manually Excluded",
		"Image Excluded",
		"Nr Tracks",
		"Variability",
		"Density",
		"Density Ratio",
		"Tau",
		"R Squared",
		"Median Diffusion Coefficient",
		"Median Diffusion Coefficient Ext",
		"Median Long Track Duration",
		"Median Short Track Duration",
		"Median Displacement",
		"Max Displacement",
		"Total Displacement",
		"Median Max Speed",
		"Max Max Speed",
		"Median Mean Speed",
		"Max Mean Speed",
		"Max Track Duration",
		"Total Track Duration",
		"Median Track Duration",
		"Median Confinement Ratio",
	},
}
