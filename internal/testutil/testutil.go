// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files: small assertion helpers for HTTP handlers and an
// in-memory project builder for pipeline, squares and sweep tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/spt.report/internal/config"
	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/model"
	"github.com/banshee-data/spt.report/internal/tabular"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// Project is an in-memory project directory.
type Project struct {
	FS   *fsutil.MemoryFileSystem
	Root string
}

// NewProject creates an empty project at root with a default configuration
// document.
func NewProject(t testing.TB, root string) *Project {
	t.Helper()
	p := &Project{FS: fsutil.NewMemoryFileSystem(), Root: root}
	AssertNoError(t, p.FS.MkdirAll(root, 0o755))
	AssertNoError(t, config.Default(p.FS, p.ConfigPath()).Save())
	return p
}

// ConfigPath is the project's configuration document.
func (p *Project) ConfigPath() string {
	return filepath.Join(p.Root, config.FileName)
}

// Config loads the project's configuration document.
func (p *Project) Config(t testing.TB) *config.Handle {
	t.Helper()
	h, err := config.Load(p.FS, p.ConfigPath())
	AssertNoError(t, err)
	return h
}

// Recordings returns n processable recordings of experiment named
// "<experiment>-R<i>" with consecutive condition numbers.
func Recordings(experiment string, n int) []model.Recording {
	recs := make([]model.Recording, n)
	for i := range recs {
		recs[i] = model.Recording{
			RecordingName:  fmt.Sprintf("%s-R%d", experiment, i+1),
			ExperimentName: experiment,
			ConditionNr:    i + 1,
			ReplicateNr:    1,
			Probe:          "1 Mono",
			CellType:       "BMDC",
			Adjuvant:       "CytD",
			Concentration:  1,
			Process:        true,
		}
	}
	return recs
}

// AddExperiment writes the experiment info table for recs and returns the
// experiment directory.
func (p *Project) AddExperiment(t testing.TB, name string, recs []model.Recording) string {
	t.Helper()
	dir := filepath.Join(p.Root, name)
	tbl := tabular.NewTable(model.ExperimentInfoSchema)
	for _, r := range recs {
		tbl.Rows = append(tbl.Rows, r.Row()[:len(model.ExperimentInfoSchema.Columns)])
	}
	AssertNoError(t, tabular.Write(p.FS, filepath.Join(dir, model.ExperimentInfoFile), tbl))
	return dir
}

// ReadTable reads any table under the project, failing the test on error.
func (p *Project) ReadTable(t testing.TB, rel string) *tabular.Table {
	t.Helper()
	tbl, err := tabular.Read(p.FS, filepath.Join(p.Root, rel), tabular.Schema{})
	AssertNoError(t, err)
	return tbl
}
