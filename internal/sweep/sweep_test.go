package sweep

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/spt.report/internal/config"
	"github.com/banshee-data/spt.report/internal/engine"
	"github.com/banshee-data/spt.report/internal/model"
	"github.com/banshee-data/spt.report/internal/pipeline"
	"github.com/banshee-data/spt.report/internal/task"
	"github.com/banshee-data/spt.report/internal/testutil"
)

func TestParseSpecification(t *testing.T) {
	t.Parallel()

	spec, err := ParseSpecification(`
[sweep]
Threshold = { enabled = true }
"Min Required R Squared" = { enabled = false }
"Nr of Squares in Row" = true

[Threshold]
"Value 0" = 5
"Value 2" = 7.5
"Value 1" = "6"
"Value 10" = 9

["Min Required R Squared"]

["Nr of Squares in Row"]
range = "10:30:10"
`)
	require.NoError(t, err)

	want := []Parameter{
		{Name: "Threshold", Enabled: true, Values: []float64{5, 6, 7.5, 9}},
		{Name: "Min Required R Squared", Enabled: false, Values: []float64{}},
		{Name: "Nr of Squares in Row", Enabled: true, Values: []float64{10, 20, 30}},
	}
	if diff := cmp.Diff(want, spec.Parameters); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, spec.Enabled(), 2)
	assert.Equal(t, 7, spec.Runs())
}

func TestParseSpecificationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"no sweep table", `[Threshold]` + "\n" + `"Value 0" = 1`},
		{"enabled without values", "[sweep]\nThreshold = { enabled = true }\n"},
		{"enabled not bool", "[sweep]\nThreshold = { enabled = \"yes\" }\n[Threshold]\n\"Value 0\" = 1\n"},
		{"bad key", "[sweep]\nThreshold = true\n[Threshold]\nfirst = 1\n"},
		{"bad range", "[sweep]\nThreshold = true\n[Threshold]\nrange = \"1:2\"\n"},
		{"not toml", "[sweep"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSpecification(tt.doc)
			assert.Error(t, err)
		})
	}
}

func TestGenerateRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		start, end, step float64
		want             []float64
	}{
		{1, 3, 1, []float64{1, 2, 3}},
		{0.1, 0.3, 0.1, []float64{0.1, 0.2, 0.3}},
		{0, 1, 0.4, []float64{0, 0.4, 0.8}},
		{3, 1, 1, nil},
		{1, 3, 0, nil},
		{0, 1e9, 1, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GenerateRange(tt.start, tt.end, tt.step), "%v:%v:%v", tt.start, tt.end, tt.step)
	}
}

func TestCaseLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Threshold-5", CaseLabel("Threshold", 5))
	assert.Equal(t, "Min Required R Squared-0.95", CaseLabel("Min Required R Squared", 0.95))
}

// recordingRunner records the value each sandbox saw and fails on demand.
type recordingRunner struct {
	seen   []float64
	images []string
	fail   func(v float64) bool
}

func (r *recordingRunner) RunProject(_ context.Context, _ string, cfg *config.Handle, _ []string) error {
	v := cfg.Float(config.Threshold)
	r.seen = append(r.seen, v)
	r.images = append(r.images, cfg.String(config.ImagesRoot))
	if r.fail != nil && r.fail(v) {
		return errors.New("engine crashed")
	}
	return nil
}

func thresholdSpec(values ...float64) Specification {
	return Specification{Parameters: []Parameter{{Name: config.Threshold, Enabled: true, Values: values}}}
}

func TestRunRestoresBaselineAfterFailure(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, "/proj")
	recs := testutil.Recordings("E1", 2)
	recs[1].Threshold = 12
	p.AddExperiment(t, "E1", recs)

	cfg := p.Config(t)
	runner := &recordingRunner{fail: func(v float64) bool { return v == 6 }}
	o := &Orchestrator{Config: cfg, Runner: runner, FS: p.FS}

	summary, err := o.Run(context.Background(), p.Root, thresholdSpec(5, 6, 7), []string{"E1"})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6, 7}, runner.seen)
	assert.Equal(t, []string{"/proj", "/proj", "/proj"}, runner.images, "sandboxes read images from the project")

	require.Len(t, summary.Runs, 3)
	statuses := []string{summary.Runs[0].Status, summary.Runs[1].Status, summary.Runs[2].Status}
	assert.Equal(t, []string{OutcomeOK, OutcomeFailed, OutcomeOK}, statuses)
	assert.Equal(t, "/proj/Sweep/Threshold-6", summary.Runs[1].Sandbox)
	assert.Contains(t, summary.Runs[1].Error, "engine crashed")
	assert.False(t, summary.Flattened)
	assert.False(t, p.FS.Exists(CaseDir(p.Root, "E1", "Threshold-5")))

	raw, ok := cfg.Raw(config.Threshold)
	require.True(t, ok)
	assert.Equal(t, "3", raw)
	assert.Equal(t, "", cfg.String(config.ImagesRoot))
	assert.Equal(t, 3.0, p.Config(t).Float(config.Threshold), "saved configuration holds the baseline")

	sandboxCfg, err := config.Load(p.FS, "/proj/Sweep/Threshold-7/"+config.FileName)
	require.NoError(t, err)
	assert.Equal(t, 7.0, sandboxCfg.Float(config.Threshold))

	meta, err := model.ReadExperimentInfo(p.FS, "/proj/Sweep/Threshold-7/E1/"+model.ExperimentInfoFile)
	require.NoError(t, err)
	require.Len(t, meta, 2)
	assert.False(t, meta[1].Threshold > 0, "recording threshold cleared so the swept value applies")

	tbl := p.ReadTable(t, "Sweep/Sweep Summary.csv")
	assert.Equal(t, summarySchema.Columns, tbl.Header)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, "Threshold-6", tbl.Rows[1][3])
	assert.Equal(t, OutcomeFailed, tbl.Rows[1][5])
	assert.True(t, p.FS.Exists("/proj/Sweep/Sweep Summary.html"))

	state := o.GetSweepState()
	assert.Equal(t, StatusComplete, state.Status)
	assert.Equal(t, 3, state.Completed)
	assert.Equal(t, 3, state.TotalRuns)
	assert.Equal(t, summary.SweepID, state.SweepID)
}

func TestRunSubstitutesMissingBaseline(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, "/proj")
	p.AddExperiment(t, "E1", testutil.Recordings("E1", 1))
	require.NoError(t, p.FS.WriteFile(p.ConfigPath(), []byte(`{"TrackMate":{"RADIUS":0.5}}`), 0o644))
	cfg := p.Config(t)

	o := &Orchestrator{Config: cfg, Runner: &recordingRunner{}, FS: p.FS}
	summary, err := o.Run(context.Background(), p.Root, thresholdSpec(5), []string{"E1"})
	require.NoError(t, err)
	require.Len(t, summary.Runs, 1)
	assert.True(t, summary.Runs[0].OK())

	raw, ok := p.Config(t).Raw(config.Threshold)
	require.True(t, ok)
	assert.Equal(t, "3", raw, "default baseline saved back")
}

func TestRunRejectsValuesOfWrongType(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, "/proj")
	p.AddExperiment(t, "E1", testutil.Recordings("E1", 1))
	runner := &recordingRunner{}
	o := &Orchestrator{Config: p.Config(t), Runner: runner, FS: p.FS}

	spec := Specification{Parameters: []Parameter{
		{Name: config.MaxFrameGap, Enabled: true, Values: []float64{1, 2.5, 5}},
	}}
	_, err := o.Run(context.Background(), p.Root, spec, []string{"E1"})
	require.ErrorIs(t, err, config.ErrInvalidValue)
	assert.Contains(t, err.Error(), "2.5")
	assert.Empty(t, runner.seen)
	assert.False(t, p.FS.Exists("/proj/"+Dir), "no sandbox is built")
	assert.Equal(t, StatusIdle, o.GetSweepState().Status)
}

func TestRunCopiesMetadataVerbatim(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, "/proj")
	recs := testutil.Recordings("E1", 1)
	recs[0].Threshold = 12
	p.AddExperiment(t, "E1", recs)
	o := &Orchestrator{Config: p.Config(t), Runner: &recordingRunner{}, FS: p.FS}

	spec := Specification{Parameters: []Parameter{
		{Name: config.MaxFrameGap, Enabled: true, Values: []float64{4}},
	}}
	_, err := o.Run(context.Background(), p.Root, spec, []string{"E1"})
	require.NoError(t, err)

	want, err := p.FS.ReadFile("/proj/E1/" + model.ExperimentInfoFile)
	require.NoError(t, err)
	// The run succeeded, so the sandbox experiment has been flattened.
	got, err := p.FS.ReadFile(filepath.Join(CaseDir(p.Root, "E1", "MAX_FRAME_GAP-4"), model.ExperimentInfoFile))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestRunFlattensOnSuccess(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, "/proj")
	p.AddExperiment(t, "E1", testutil.Recordings("E1", 2))
	cfg := p.Config(t)

	e := engine.NewSyntheticEngine()
	e.BaseTracks = 200
	o := &Orchestrator{
		Config: cfg,
		Runner: InvokerRunner{Base: pipeline.Invoker{
			Engine: e,
			Runner: &task.Runner{PollInterval: 10 * time.Millisecond},
			FS:     p.FS,
		}},
		Analyzer: SquaresAnalyzer{FS: p.FS},
		FS:       p.FS,
	}
	spec := Specification{Parameters: []Parameter{
		{Name: config.Threshold, Enabled: true, Values: []float64{2, 4}},
		{Name: config.NrSquaresInRow, Enabled: true, Values: []float64{5}},
	}}

	summary, err := o.Run(context.Background(), p.Root, spec, []string{"E1"})
	require.NoError(t, err)
	require.True(t, summary.AllOK())
	assert.True(t, summary.Flattened)

	for _, label := range []string{"Threshold-2", "Threshold-4", "Nr of Squares in Row-5"} {
		dir := CaseDir(p.Root, "E1", label)
		tbl := p.ReadTable(t, filepath.Join("E1", Dir, label, model.SquaresFile))
		require.NotEmpty(t, tbl.Rows, dir)
		for _, row := range tbl.Rows {
			assert.Equal(t, label, row[tbl.Column(model.CaseColumn)])
		}
		recs := p.ReadTable(t, filepath.Join("E1", Dir, label, model.RecordingsFile))
		assert.Equal(t, label, recs.Get(0, model.CaseColumn))
		assert.False(t, p.FS.Exists(filepath.Join(p.Root, Dir, label, "E1")), "sandbox experiment moved")
	}

	sq := p.ReadTable(t, filepath.Join(Dir, model.SquaresFile))
	assert.Len(t, sq.Rows, 2*400+2*400+2*25)
	recs := p.ReadTable(t, filepath.Join(Dir, model.RecordingsFile))
	assert.Len(t, recs.Rows, 6)

	assert.Equal(t, 20, cfg.Int(config.NrSquaresInRow))
	assert.Equal(t, 3.0, cfg.Float(config.Threshold))
}

func TestRunRejectsBadSpecifications(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, "/proj")
	o := &Orchestrator{Config: p.Config(t), Runner: &recordingRunner{}, FS: p.FS}

	_, err := o.Run(context.Background(), p.Root, Specification{}, nil)
	assert.ErrorIs(t, err, ErrNoEnabledParameters)

	spec := Specification{Parameters: []Parameter{{Name: "Bogus", Enabled: true, Values: []float64{1}}}}
	_, err = o.Run(context.Background(), p.Root, spec, nil)
	assert.ErrorIs(t, err, config.ErrUnknownParameter)

	spec = thresholdSpec(5)
	_, err = o.Run(context.Background(), p.Root, spec, []string{"../outside"})
	assert.ErrorContains(t, err, "path separator")
	assert.Equal(t, StatusIdle, o.GetSweepState().Status)
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	p := testutil.NewProject(t, "/proj")
	p.AddExperiment(t, "E1", testutil.Recordings("E1", 1))
	cfg := p.Config(t)
	runner := &recordingRunner{}
	o := &Orchestrator{Config: cfg, Runner: runner, FS: p.FS}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := o.Run(ctx, p.Root, thresholdSpec(5, 6), []string{"E1"})
	require.ErrorIs(t, err, pipeline.ErrCancelled)
	assert.Empty(t, summary.Runs)
	assert.Empty(t, runner.seen)
	assert.False(t, summary.Flattened)
	assert.Equal(t, 3.0, cfg.Float(config.Threshold))

	state := o.GetState().(State)
	assert.Equal(t, StatusError, state.Status)
	assert.NotEmpty(t, state.Error)
}
