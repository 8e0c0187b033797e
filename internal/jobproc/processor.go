// Package jobproc implements the scan-job worker: a single long-lived
// activity that claims the oldest PENDING job, runs the scanner adapter
// against its payload, and writes back the terminal verdict. The design
// admits 1..N workers without any protocol change because the
// PENDING->PROCESSING transition is serialized by the job registry's own
// mutex (state.JobRegistry.ClaimOldestPending).
package jobproc

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ocx/avscan/internal/codec"
	"github.com/ocx/avscan/internal/logging"
	"github.com/ocx/avscan/internal/scanner"
	"github.com/ocx/avscan/internal/state"
)

// Processor runs the job loop described in spec.md §4.6.
type Processor struct {
	st          *state.State
	scanner     *scanner.Adapter
	log         *logging.Logger
	outgoingDir string
}

// New returns a Processor wired to the shared state and scanner adapter.
// outgoingDir is where a completed job's ciphertext artifact is copied so
// DOWNLOAD_FILE can later serve it.
func New(st *state.State, scan *scanner.Adapter, log *logging.Logger, outgoingDir string) *Processor {
	return &Processor{st: st, scanner: scan, log: log, outgoingDir: outgoingDir}
}

// Run blocks until the shutdown flag is set, waking on every job-enqueue
// signal and on a 1s fallback timer so shutdown latency stays bounded
// even with no jobs pending.
func (p *Processor) Run(ctx context.Context) {
	for !p.st.Shutdown.IsSet() {
		select {
		case <-p.st.JobSignal:
		case <-time.After(time.Second):
		case <-ctx.Done():
			return
		}
		p.drain(ctx)
	}
}

// drain processes every currently PENDING job, oldest id first, before
// returning to wait for the next wake-up.
func (p *Processor) drain(ctx context.Context) {
	for !p.st.Shutdown.IsSet() {
		job, ok := p.st.Jobs.ClaimOldestPending()
		if !ok {
			return
		}
		p.processOne(ctx, job)
	}
}

func (p *Processor) processOne(ctx context.Context, job state.Job) {
	plainPath, cleanup, err := p.decryptPayload(job)
	if err != nil {
		p.st.Jobs.CompleteWithStats(job.ID, err.Error(), true, false, p.st.Stats)
		p.log.Error("payload decrypt failed", "job_id", job.ID, "filename", job.Filename, "error", err)
		return
	}
	defer cleanup()

	result, err := p.scanner.Scan(ctx, plainPath)

	isError := err != nil
	verdict := result.Verdict
	if isError && verdict == "" {
		verdict = err.Error()
	}

	p.st.Jobs.CompleteWithStats(job.ID, verdict, isError, result.Infected, p.st.Stats)

	switch {
	case isError:
		p.log.Error("scan failed", "job_id", job.ID, "filename", job.Filename, "error", err)
	case result.Infected:
		p.log.Warning("scan found infected file", "job_id", job.ID, "filename", job.Filename, "verdict", verdict)
	default:
		p.log.Info("scan completed clean", "job_id", job.ID, "filename", job.Filename)
	}

	if !isError && p.outgoingDir != "" {
		p.publishArtifact(job)
	}
}

// decryptPayload reads the on-disk ciphertext for job, decrypts it with
// the session key reference it was enqueued with, and writes the
// plaintext to a sibling temp file the scanner adapter can read. If the
// job carries no session key reference the payload is scanned as-is.
func (p *Processor) decryptPayload(job state.Job) (path string, cleanup func(), err error) {
	if job.SessionKey == "" {
		return job.PayloadPath, func() {}, nil
	}

	sk, err := codec.ParseReference(job.SessionKey)
	if err != nil {
		return "", nil, err
	}

	raw, err := os.ReadFile(job.PayloadPath)
	if err != nil {
		return "", nil, err
	}
	plain, err := sk.OpenFile(raw)
	if err != nil {
		return "", nil, err
	}

	dst := job.PayloadPath + ".plain"
	if err := os.WriteFile(dst, plain, 0o600); err != nil {
		return "", nil, err
	}
	return dst, func() { _ = os.Remove(dst) }, nil
}

// publishArtifact copies the job's stored ciphertext into the outgoing
// directory under its original filename so DOWNLOAD_FILE can serve it.
func (p *Processor) publishArtifact(job state.Job) {
	data, err := os.ReadFile(job.PayloadPath)
	if err != nil {
		p.log.Warning("could not read artifact for publishing", "job_id", job.ID, "error", err)
		return
	}
	dst := filepath.Join(p.outgoingDir, job.Filename)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		p.log.Warning("could not publish artifact", "job_id", job.ID, "error", err)
	}
}
