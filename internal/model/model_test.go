package model

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/grid"
	"github.com/banshee-data/spt.report/internal/tabular"
)

func TestSchemaWidths(t *testing.T) {
	t.Parallel()

	assert.Len(t, RecordingSchema.Columns, 20)
	assert.Len(t, TrackSchema.Columns, 19)
	assert.Len(t, SquareSchema.Columns, 34)
	assert.Len(t, ExperimentInfoSchema.Columns, 10)
	assert.Equal(t, ExperimentInfoSchema.Columns, RecordingSchema.Columns[:10])
}

func TestRecordingRowWidthAndFormat(t *testing.T) {
	t.Parallel()

	r := Recording{
		RecordingName:  "R1",
		ExperimentName: "E1",
		ConditionNr:    2,
		ReplicateNr:    1,
		Concentration:  0.1,
		Process:        true,
		Threshold:      5,
		NrSpots:        Int(1200),
		RunTime:        Float(12.34567),
	}
	row := r.Row()
	require.Len(t, row, 20)
	assert.Equal(t, "0.100", row[7])
	assert.Equal(t, "True", row[8])
	assert.Equal(t, "1200", row[10])
	assert.Equal(t, "", row[11], "pending counts render empty")
	assert.Equal(t, "12.346", row[13])
	assert.Equal(t, "False", row[15])
	assert.Equal(t, "", row[17])
}

func TestRecordingFailedAndMetadata(t *testing.T) {
	t.Parallel()

	r := Recording{RecordingName: "R1", Process: true, NrSpots: Int(5), Tau: Float(3)}
	m := r.Metadata()
	assert.Nil(t, m.NrSpots)
	assert.Nil(t, m.Tau)
	assert.True(t, m.Process)

	f := r.Failed()
	require.NotNil(t, f.NrSpots)
	assert.Equal(t, 0, *f.NrSpots)
	assert.Nil(t, f.Tau)
}

func TestRecordingsRoundTrip(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	in := []Recording{
		{RecordingName: "R1", ExperimentName: "E", ConditionNr: 1, ReplicateNr: 2, Probe: "P",
			CellType: "C", Adjuvant: "A", Concentration: 10, Process: true, Threshold: 3,
			NrSpots: Int(10), NrTracks: Int(4), NrFrames: Int(2000), RunTime: Float(1.5),
			TimeStamp: "2024-01-02T03:04:05", Tau: Float(120.5)},
		{RecordingName: "R2", ExperimentName: "E", Concentration: 1},
	}
	require.NoError(t, WriteRecordings(fsys, "/p/E/"+RecordingsFile, in))

	got, err := ReadRecordings(fsys, "/p/E/"+RecordingsFile)
	require.NoError(t, err)
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("recordings mismatch (-want +got):\n%s", diff)
	}
}

func TestReadExperimentInfoAcceptsMetadataOnly(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	tbl := tabular.NewTable(ExperimentInfoSchema)
	tbl.Rows = [][]string{{"R1", "E", "1", "1", "p", "c", "a", "0.1", "yes", "4"}}
	require.NoError(t, tabular.Write(fsys, "/e/"+ExperimentInfoFile, tbl))

	recs, err := ReadExperimentInfo(fsys, "/e/"+ExperimentInfoFile)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Process)
	assert.Nil(t, recs[0].NrSpots)
	assert.Equal(t, 4.0, recs[0].Threshold)
}

func TestReadRecordingsBadCell(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	tbl := tabular.NewTable(ExperimentInfoSchema)
	tbl.Rows = [][]string{{"R1", "E", "one", "1", "p", "c", "a", "0.1", "true", "4"}}
	require.NoError(t, tabular.Write(fsys, "/e/info.csv", tbl))

	_, err := ReadExperimentInfo(fsys, "/e/info.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Condition Nr")
}

func TestTracksRoundTrip(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	in := []Track{
		{UniqueKey: TrackKey("R1", 0), RecordingName: "R1", TrackID: 0, NrSpots: 12, Duration: 0.25,
			X: 10.5, Y: 20.25, SquareNr: Unassigned},
		{UniqueKey: TrackKey("R1", 1), RecordingName: "R1", TrackID: 1, NrSpots: 4, Duration: 1.125,
			X: 1, Y: 2, SquareNr: 17, LabelNr: 3},
	}
	require.NoError(t, WriteTracks(fsys, "/t.csv", in))

	got, err := ReadTracks(fsys, "/t.csv")
	require.NoError(t, err)
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("tracks mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "R1-1", got[1].UniqueKey)
}

func TestSquareRow(t *testing.T) {
	t.Parallel()

	d, err := grid.NewDescriptor(4, 10)
	require.NoError(t, err)
	gs := d.NewSquares()[3]
	gs.NrTracks = 9
	gs.Selected = true

	s := Square{Square: *gs, UniqueKey: SquareKey("R1", 3), RecordingName: "R1"}
	row := s.Row()
	require.Len(t, row, 34)
	assert.Equal(t, "R1-3", row[0])
	assert.Equal(t, "3", row[2])
	assert.Equal(t, "1", row[3])
	assert.Equal(t, "1", row[4])
	assert.Equal(t, "5.000", row[6])
	assert.Equal(t, "True", row[10])
	assert.Equal(t, "", row[17], "NaN tau renders empty")

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, WriteSquares(fsys, "/s.csv", []Square{s}))
	got, err := ReadSquares(fsys, "/s.csv")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 9, got[0].NrTracks)
	assert.True(t, math.IsNaN(got[0].Tau))
	assert.Equal(t, s.Cell, got[0].Cell)
}
