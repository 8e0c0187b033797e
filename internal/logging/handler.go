// Package logging implements the level-filtered, timestamped, serialized
// log sink described by the spec: console + append-only file, formatted
// as "[YYYY-MM-DD HH:MM:SS] [LEVEL] message", with a bounded in-memory
// ring backing the admin GET_LOGS command. It is built as a custom
// log/slog.Handler (the teacher codebase logs exclusively through
// log/slog) so every package in this module can log through the
// standard slog API while still producing the exact wire format the
// spec requires.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ocx/avscan/internal/state"
)

const timeLayout = "2006-01-02 15:04:05"

// handler is the slog.Handler backing a Logger. The log mutex is held
// across both the console and file writes for the duration of one
// record, per the design's "serialized log output" invariant — no
// activity ever observes an interleaved line from another.
type handler struct {
	mu     *sync.Mutex
	level  *state.LevelFlag
	out    io.Writer // console, always written
	file   io.Writer // best-effort; write failures are swallowed
	ring   *Ring
	attrs  []slog.Attr
	groups []string
}

func newHandler(level *state.LevelFlag, out, file io.Writer, ring *Ring) *handler {
	return &handler{mu: &sync.Mutex{}, level: level, out: out, file: file, ring: ring}
}

func toLogLevel(l slog.Level) state.LogLevel {
	switch {
	case l < slog.LevelInfo:
		return state.LevelDebug
	case l < slog.LevelWarn:
		return state.LevelInfo
	case l < slog.LevelError:
		return state.LevelWarning
	default:
		return state.LevelError
	}
}

func levelName(l slog.Level) string {
	return toLogLevel(l).String()
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return toLogLevel(level) >= h.level.Load()
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	line := fmt.Sprintf("[%s] [%s] %s", r.Time.Format(timeLayout), levelName(r.Level), r.Message)
	for _, a := range h.attrs {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	h.ring.Push(line)
	_, err := io.WriteString(h.out, line+"\n")
	if h.file != nil {
		_, _ = io.WriteString(h.file, line+"\n") // silent on failure, per spec
	}
	return err
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *handler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

var _ slog.Handler = (*handler)(nil)
