package engine

import (
	"context"
	"errors"
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/banshee-data/spt.report/internal/config"
)

func testRequest(threshold float64) Request {
	return Request{
		ImagePath: "/images/E1/R1.nd2",
		Recording: "R1",
		Params: config.DetectionParams{
			Threshold:         threshold,
			AllowGapClosing:   true,
			MaxFrameGap:       3,
			MinNrSpotsInTrack: 3,
		},
	}
}

func TestSyntheticEngineDeterministic(t *testing.T) {
	t.Parallel()

	e := NewSyntheticEngine()
	a, err := e.Detect(context.Background(), testRequest(3))
	require.NoError(t, err)
	b, err := e.Detect(context.Background(), testRequest(3))
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same request gave different results (-a +b):\n%s", diff)
	}
	assert.Equal(t, 2000, a.NrFrames)
	assert.Equal(t, len(a.Tracks), a.NrTracksFiltered)
	assert.LessOrEqual(t, a.NrTracksFiltered, a.NrTracksRaw)
	assert.Greater(t, a.NrSpots, a.NrTracksFiltered)

	for _, tr := range a.Tracks {
		assert.GreaterOrEqual(t, tr.NrSpots, 3)
		assert.GreaterOrEqual(t, tr.X, 0.0)
		assert.LessOrEqual(t, tr.X, e.ImageSize)
		assert.Greater(t, tr.Duration, 0.0)
	}
}

func TestSyntheticEngineThresholdReducesTracks(t *testing.T) {
	t.Parallel()

	e := NewSyntheticEngine()
	low, err := e.Detect(context.Background(), testRequest(1))
	require.NoError(t, err)
	high, err := e.Detect(context.Background(), testRequest(10))
	require.NoError(t, err)
	assert.Greater(t, low.NrTracksRaw, high.NrTracksRaw)
}

func TestSyntheticEngineFailAndCancel(t *testing.T) {
	t.Parallel()

	e := NewSyntheticEngine()
	e.Fail = func(r Request) error {
		if r.Params.Threshold == 6 {
			return errors.New("no spots found")
		}
		return nil
	}
	_, err := e.Detect(context.Background(), testRequest(6))
	assert.ErrorIs(t, err, ErrEngine)

	e.Delay = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Detect(ctx, testRequest(3))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResultModelTracks(t *testing.T) {
	t.Parallel()

	r := &Result{Tracks: []Track{{TrackID: 4, Duration: 1.5, X: 2, Y: 3}}}
	tracks := r.ModelTracks("R9")
	require.Len(t, tracks, 1)
	assert.Equal(t, "R9-4", tracks[0].UniqueKey)
	assert.Equal(t, "R9", tracks[0].RecordingName)
	assert.Equal(t, -1, tracks[0].SquareNr)
}

func TestExecEngine(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	t.Parallel()

	ok := &ExecEngine{Command: "sh", Args: []string{"-c",
		`cat >/dev/null; echo '{"nr_spots":10,"nr_tracks_raw":3,"nr_tracks_filtered":2,"nr_frames":100,"tracks":[{"track_id":1,"duration":0.25}]}'`}}
	res, err := ok.Detect(context.Background(), testRequest(3))
	require.NoError(t, err)
	assert.Equal(t, 10, res.NrSpots)
	assert.Equal(t, 100, res.NrFrames)
	require.Len(t, res.Tracks, 1)
	assert.Equal(t, 0.25, res.Tracks[0].Duration)

	failing := &ExecEngine{Command: "sh", Args: []string{"-c", "echo 'image unreadable' >&2; exit 3"}}
	_, err = failing.Detect(context.Background(), testRequest(3))
	require.ErrorIs(t, err, ErrEngine)
	assert.Contains(t, err.Error(), "image unreadable")

	garbage := &ExecEngine{Command: "sh", Args: []string{"-c", "echo not-json"}}
	_, err = garbage.Detect(context.Background(), testRequest(3))
	assert.ErrorIs(t, err, ErrEngine)

	slow := &ExecEngine{Command: "sh", Args: []string{"-c", "sleep 30"}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = slow.Detect(ctx, testRequest(3))
	assert.ErrorIs(t, err, ErrEngine)
	assert.Less(t, time.Since(start), 10*time.Second, "process should be killed on cancel")
}

func TestNewExecEngine(t *testing.T) {
	t.Parallel()

	e, err := NewExecEngine("python3 detect.py --fast")
	require.NoError(t, err)
	assert.Equal(t, "python3", e.Command)
	assert.Equal(t, []string{"detect.py", "--fast"}, e.Args)

	_, err = NewExecEngine("   ")
	assert.ErrorIs(t, err, ErrEngine)
}

func TestGRPCEngineRoundTrip(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	synthetic := NewSyntheticEngine()
	synthetic.BaseTracks = 200
	synthetic.Fail = func(r Request) error {
		if r.Recording == "broken" {
			return errors.New("corrupt stack")
		}
		return nil
	}
	srv := grpc.NewServer()
	RegisterDetectionService(srv, synthetic)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := DialGRPC(lis.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	want, err := synthetic.Detect(ctx, testRequest(3))
	require.NoError(t, err)
	got, err := client.Detect(ctx, testRequest(3))
	require.NoError(t, err)

	assert.Equal(t, want.NrSpots, got.NrSpots)
	assert.Equal(t, want.NrTracksFiltered, got.NrTracksFiltered)
	require.Len(t, got.Tracks, len(want.Tracks))
	for i := range want.Tracks {
		assert.Equal(t, want.Tracks[i].TrackID, got.Tracks[i].TrackID)
		assert.InDelta(t, want.Tracks[i].X, got.Tracks[i].X, 1e-9)
		assert.InDelta(t, want.Tracks[i].Duration, got.Tracks[i].Duration, 1e-9)
	}

	broken := testRequest(3)
	broken.Recording = "broken"
	_, err = client.Detect(ctx, broken)
	require.ErrorIs(t, err, ErrEngine)
	assert.Contains(t, err.Error(), "corrupt stack")
}
