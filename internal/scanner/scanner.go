// Package scanner adapts an external malware-scanner binary into the
// (infected?, verdict) pair the job processor needs. It shells out via
// os/exec — there is no ecosystem library for "run an arbitrary external
// scanner binary and read its stdout" more idiomatic than the standard
// library's process-invocation primitives, so this is the one component
// that intentionally does not reach for a third-party dependency.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ocx/avscan/internal/state"
)

// Result is the normalized outcome of one scan.
type Result struct {
	Infected bool
	Verdict  string
}

// Adapter invokes a configured scanner binary against on-disk paths.
type Adapter struct {
	BinaryPath string
	Args       []string
	Timeout    time.Duration
}

// New returns an Adapter for the given binary, extra args, and timeout.
func New(binaryPath string, args []string, timeout time.Duration) *Adapter {
	return &Adapter{BinaryPath: binaryPath, Args: args, Timeout: timeout}
}

// Scan runs the scanner against path and returns its normalized verdict.
// A line in stdout containing "FOUND" marks the file infected and
// becomes the verdict line; its absence yields "OK" as the verdict. If
// the external process fails to start at all, Scan returns a wrapped
// state.ErrScan — the caller (the job processor) treats this as a scan
// error for the job, not a process-level fault that should crash the
// worker.
func (a *Adapter) Scan(ctx context.Context, path string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	args := append(append([]string{}, a.Args...), path)
	cmd := exec.CommandContext(ctx, a.BinaryPath, args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("scanner: start %s: %w: %v", a.BinaryPath, state.ErrScan, err)
	}

	runErr := cmd.Wait()
	out := stdout.String()

	found, verdictLine := classify(out)
	if runErr != nil && !found {
		// A nonzero exit code from most scanners (clamscan included)
		// signals "infected" rather than "failed to run" — only treat
		// the run as a scan error when we couldn't extract any verdict.
		if verdictLine == "" {
			return Result{Verdict: fmt.Sprintf("scanner exited with error: %v", runErr)}, fmt.Errorf("scanner: run: %w: %v", state.ErrScan, runErr)
		}
	}

	if verdictLine == "" {
		verdictLine = "OK"
	}
	return Result{Infected: found, Verdict: verdictLine}, nil
}

// classify scans scanner output line by line for a FOUND marker.
func classify(output string) (infected bool, verdict string) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "FOUND") {
			return true, line
		}
	}
	if strings.TrimSpace(output) == "" {
		return false, ""
	}
	return false, "OK"
}
