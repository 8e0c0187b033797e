package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ocx/avscan/internal/state"
)

// Logger is the process-wide log sink: console + logs/server.log, level
// filtered against a shared state.LevelFlag, with a bounded ring of
// recent lines for GET_LOGS.
type Logger struct {
	slog  *slog.Logger
	level *state.LevelFlag
	ring  *Ring
	file  *os.File
}

// New opens logs/server.log (creating the logs directory if needed) and
// returns a ready-to-use Logger. Failure to create the directory or open
// the file is an initialization failure — the caller should treat it as
// fatal, per the spec's exit-code-1-on-init-failure rule.
func New(logsDir string, level *state.LevelFlag, ringCapacity int) (*Logger, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create logs dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logsDir, "server.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}

	ring := NewRing(ringCapacity)
	h := newHandler(level, os.Stdout, f, ring)
	return &Logger{slog: slog.New(h), level: level, ring: ring, file: f}, nil
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	return l.file.Close()
}

// Lines returns the buffered recent log lines, oldest first, for
// GET_LOGS.
func (l *Logger) Lines() []string {
	return l.ring.Snapshot()
}

func (l *Logger) Debug(msg string, args ...any)   { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)    { l.slog.Info(msg, args...) }
func (l *Logger) Warning(msg string, args ...any) { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any)   { l.slog.Error(msg, args...) }
