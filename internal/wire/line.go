// Package wire implements the line-framed command/response dialect shared
// by the client and admin protocols: newline-terminated "VERB [ARGS...]"
// request lines, a status-token response line, and raw sized payloads for
// file transfer.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ocx/avscan/internal/state"
)

// Status tokens used to open a response line.
const (
	StatusOK       = "OK"
	StatusError    = "ERROR"
	StatusInfected = "INFECTED"
	StatusClean    = "CLEAN"
	StatusPending  = "PENDING"
	StatusNotFound = "NOT_FOUND"
)

// Line is one parsed request line: the verb and everything after the
// first single space, verbatim (so that extra whitespace within the
// argument portion is preserved for dialect handlers that care).
type Line struct {
	Verb string
	Rest string
}

// ReadLine reads one newline-terminated line from r, stripping a trailing
// "\r\n" or "\n". Any read failure (including EOF) is a transport error:
// the caller must terminate the session, not retry.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if len(line) == 0 {
			return "", fmt.Errorf("wire: read line: %w: %w", state.ErrTransport, err)
		}
		// Partial final line with no trailing newline; treat what we
		// have as the line and surface the transport error on the next read.
	}
	line = strings.TrimRight(line, "\r\n")
	return line, nil
}

// ParseLine splits a raw line into its verb and argument remainder. A
// space is required between verb and args when args are present; a bare
// verb with no arguments is valid. An empty line is malformed.
func ParseLine(raw string) (Line, error) {
	if raw == "" {
		return Line{}, fmt.Errorf("wire: empty line: %w", state.ErrProtocol)
	}
	if idx := strings.IndexByte(raw, ' '); idx >= 0 {
		return Line{Verb: raw[:idx], Rest: raw[idx+1:]}, nil
	}
	return Line{Verb: raw}, nil
}

// Fields splits the Rest portion on runs of whitespace — used by dialect
// handlers whose arguments are simple space-separated tokens.
func (l Line) Fields() []string {
	return strings.Fields(l.Rest)
}

// ReadExactly reads exactly n raw bytes from r. A short read (EOF before
// n bytes arrive) is reported as io.ErrUnexpectedEOF, with the returned
// slice truncated to however many bytes actually arrived, so callers can
// distinguish "fewer bytes than advertised" from a transport-level error.
func ReadExactly(r io.Reader, n int64) ([]byte, error) {
	buf := make([]byte, n)
	got, err := io.ReadFull(r, buf)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return buf[:got], io.ErrUnexpectedEOF
		}
		return buf[:got], fmt.Errorf("wire: read payload: %w: %v", state.ErrTransport, err)
	}
	return buf, nil
}
