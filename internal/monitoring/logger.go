// Package monitoring holds the process-wide logger and metrics registry.
package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = newConsoleLogger(os.Stderr)
)

func newConsoleLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
}

// SetOutput replaces the structured logger. json selects raw JSON lines instead of
// the human-readable console format.
func SetOutput(w io.Writer, json bool) {
	mu.Lock()
	defer mu.Unlock()
	if json {
		logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	logger = newConsoleLogger(w)
}

// Logger returns the process-wide structured logger.
func Logger() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}

// Component returns a child logger tagged with the given component name.
func Component(name string) *zerolog.Logger {
	l := Logger().With().Str("component", name).Logger()
	return &l
}

// SetLevel sets the global log level from a name such as "debug" or "warn".
func SetLevel(name string) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "", "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		return fmt.Errorf("unknown log level %q", name)
	}
	return nil
}
