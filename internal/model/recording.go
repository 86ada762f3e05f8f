package model

import (
	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/tabular"
)

// Recording is one imaging acquisition. The metadata fields come from the
// experiment info table; the pointer fields are derived and nil while pending.
type Recording struct {
	RecordingName  string
	ExperimentName string
	ConditionNr    int
	ReplicateNr    int
	Probe          string
	CellType       string
	Adjuvant       string
	Concentration  float64
	Process        bool
	Threshold      float64

	NrSpots    *int
	NrTracks   *int
	NrFrames   *int
	RunTime    *float64 // seconds
	TimeStamp  string
	Exclude    bool
	Background *float64
	Tau        *float64
	RSquared   *float64
	Density    *float64
}

// Metadata returns a copy of r with every derived column cleared.
func (r Recording) Metadata() Recording {
	return Recording{
		RecordingName:  r.RecordingName,
		ExperimentName: r.ExperimentName,
		ConditionNr:    r.ConditionNr,
		ReplicateNr:    r.ReplicateNr,
		Probe:          r.Probe,
		CellType:       r.CellType,
		Adjuvant:       r.Adjuvant,
		Concentration:  r.Concentration,
		Process:        r.Process,
		Threshold:      r.Threshold,
	}
}

// Failed returns the metadata with zeroed counts, the row written when the
// engine fails or times out.
func (r Recording) Failed() Recording {
	out := r.Metadata()
	out.NrSpots, out.NrTracks, out.NrFrames = Int(0), Int(0), Int(0)
	out.RunTime = Float(0)
	return out
}

// Row renders r in RecordingSchema column order.
func (r Recording) Row() []string {
	return []string{
		r.RecordingName,
		r.ExperimentName,
		formatInt(r.ConditionNr),
		formatInt(r.ReplicateNr),
		r.Probe,
		r.CellType,
		r.Adjuvant,
		tabular.FormatFloat(r.Concentration),
		tabular.FormatBool(r.Process),
		tabular.FormatFloat(r.Threshold),
		formatOptionalInt(r.NrSpots),
		formatOptionalInt(r.NrTracks),
		formatOptionalInt(r.NrFrames),
		tabular.FormatOptional(r.RunTime),
		r.TimeStamp,
		tabular.FormatBool(r.Exclude),
		tabular.FormatOptional(r.Background),
		tabular.FormatOptional(r.Tau),
		tabular.FormatOptional(r.RSquared),
		tabular.FormatOptional(r.Density),
	}
}

func recordingFromRow(r *rowReader) Recording {
	return Recording{
		RecordingName:  r.str("Recording Name"),
		ExperimentName: r.str("Experiment Name"),
		ConditionNr:    r.int("Condition Nr"),
		ReplicateNr:    r.int("Replicate Nr"),
		Probe:          r.str("Probe"),
		CellType:       r.str("Cell Type"),
		Adjuvant:       r.str("Adjuvant"),
		Concentration:  r.float("Concentration"),
		Process:        r.bool("Process Flag"),
		Threshold:      r.float("Threshold"),
		NrSpots:        r.optionalInt("Nr Spots"),
		NrTracks:       r.optionalInt("Nr Tracks"),
		NrFrames:       r.optionalInt("Nr Frames"),
		RunTime:        r.optional("Run Time"),
		TimeStamp:      r.str("Time Stamp"),
		Exclude:        r.bool("Exclude"),
		Background:     r.optional("Background"),
		Tau:            r.optional("Tau"),
		RSquared:       r.optional("R Squared"),
		Density:        r.optional("Density"),
	}
}

// ReadExperimentInfo reads the metadata table of an experiment.
func ReadExperimentInfo(fsys fsutil.FileSystem, path string) ([]Recording, error) {
	return readAll(fsys, path, ExperimentInfoSchema, recordingFromRow)
}

// ReadRecordings reads a full recording table.
func ReadRecordings(fsys fsutil.FileSystem, path string) ([]Recording, error) {
	return readAll(fsys, path, RecordingSchema, recordingFromRow)
}

// WriteRecordings writes recs as a recording table.
func WriteRecordings(fsys fsutil.FileSystem, path string, recs []Recording) error {
	return writeAll(fsys, path, RecordingSchema, recs)
}
