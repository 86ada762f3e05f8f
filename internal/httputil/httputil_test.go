package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/spt.report/internal/testutil"
)

// loopbackRequest sets RemoteAddr to loopback so tsweb allows debug access.
func loopbackRequest(method, target string) *http.Request {
	req := testutil.NewTestRequest(method, target)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

type fakeState struct {
	Status    string `json:"status"`
	Completed int    `json:"completed_runs"`
}

func TestDebugMuxServesSweepState(t *testing.T) {
	t.Parallel()

	mux := NewDebugMux(func() any { return fakeState{Status: "running", Completed: 2} })
	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, loopbackRequest(http.MethodGet, SweepStatePath))

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var got fakeState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, fakeState{Status: "running", Completed: 2}, got)
}

func TestDebugMuxRoutes(t *testing.T) {
	t.Parallel()

	mux := NewDebugMux(nil)
	tests := []struct {
		name   string
		method string
		path   string
		remote string
		want   int
	}{
		{"no state", http.MethodGet, SweepStatePath, "127.0.0.1:1", http.StatusNotFound},
		{"wrong method", http.MethodPost, SweepStatePath, "127.0.0.1:1", http.StatusMethodNotAllowed},
		{"metrics", http.MethodGet, MetricsPath, "203.0.113.9:1", http.StatusOK},
		{"index", http.MethodGet, "/debug/", "127.0.0.1:1", http.StatusOK},
		{"remote caller", http.MethodGet, SweepStatePath, "203.0.113.9:1", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := testutil.NewTestRequest(tt.method, tt.path)
			req.RemoteAddr = tt.remote
			rec := testutil.NewTestRecorder()
			mux.ServeHTTP(rec, req)
			testutil.AssertStatusCode(t, rec.Code, tt.want)
		})
	}
}

func TestDebugMuxErrorBody(t *testing.T) {
	t.Parallel()

	rec := testutil.NewTestRecorder()
	NewDebugMux(nil).ServeHTTP(rec, loopbackRequest(http.MethodGet, SweepStatePath))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "no sweep attached", body.Error)
}

func TestStateClient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != SweepStatePath {
			writeJSON(w, http.StatusNotFound, errorBody{"nothing here"})
			return
		}
		writeJSON(w, http.StatusOK, fakeState{Status: "complete", Completed: 3})
	}))
	defer srv.Close()

	c := NewStateClient(srv.Client(), strings.TrimPrefix(srv.URL, "http://"))
	var got fakeState
	require.NoError(t, c.SweepState(context.Background(), &got))
	assert.Equal(t, 3, got.Completed)

	c.BaseURL = srv.URL + "/elsewhere"
	err := c.SweepState(context.Background(), &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing here")
}
