package httputil

import (
	"encoding/json"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/spt.report/internal/monitoring"
)

// StateFunc returns a JSON-encodable snapshot of a long-running operation.
type StateFunc func() any

// SweepStatePath is where NewDebugMux serves the sweep state.
const SweepStatePath = "/debug/sweep"

// MetricsPath is where NewDebugMux serves prometheus metrics.
const MetricsPath = "/metrics"

// NewDebugMux returns a mux with the tsweb debug index under /debug/, the
// sweep state at /debug/sweep and prometheus metrics at /metrics.
// tsweb limits /debug/ to loopback and tailnet callers.
func NewDebugMux(state StateFunc) *http.ServeMux {
	mux := http.NewServeMux()
	AttachDebugRoutes(mux, state)
	return mux
}

// AttachDebugRoutes mounts the debug handlers on mux.
func AttachDebugRoutes(mux *http.ServeMux, state StateFunc) {
	debug := tsweb.Debugger(mux)
	debug.Handle("sweep", "Current sweep progress (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method != http.MethodGet:
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{"method not allowed"})
		case state == nil:
			writeJSON(w, http.StatusNotFound, errorBody{"no sweep attached"})
		default:
			writeJSON(w, http.StatusOK, state())
		}
	}))
	mux.Handle(MetricsPath, monitoring.MetricsHandler())
	debug.URL(MetricsPath, "Prometheus metrics")
}

// errorBody is the JSON shape of every error response, read back by
// StateClient.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Component("http").Error().Err(err).Int("status", status).Msg("encode json response")
	}
}
