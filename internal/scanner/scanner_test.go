package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ocx/avscan/internal/state"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scanner.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestScanCleanFile(t *testing.T) {
	script := writeScript(t, "echo OK\nexit 0\n")
	a := New(script, nil, time.Second)

	target := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o644))

	res, err := a.Scan(context.Background(), target)
	require.NoError(t, err)
	require.False(t, res.Infected)
	require.Equal(t, "OK", res.Verdict)
}

func TestScanInfectedFile(t *testing.T) {
	script := writeScript(t, "echo 'payload.bin: Eicar-Test-Signature FOUND'\nexit 1\n")
	a := New(script, nil, time.Second)

	target := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	res, err := a.Scan(context.Background(), target)
	require.NoError(t, err)
	require.True(t, res.Infected)
	require.Contains(t, res.Verdict, "FOUND")
}

func TestScanAdapterStartFailureIsScanError(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "does-not-exist"), nil, time.Second)

	_, err := a.Scan(context.Background(), "/tmp/whatever")
	require.ErrorIs(t, err, state.ErrScan)
}

func TestScanRunFailureWithNoVerdictIsScanError(t *testing.T) {
	script := writeScript(t, "exit 2\n")
	a := New(script, nil, time.Second)

	target := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	_, err := a.Scan(context.Background(), target)
	require.ErrorIs(t, err, state.ErrScan)
}
