package logging

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/ocx/avscan/internal/state"
	"github.com/stretchr/testify/require"
)

func TestLevelFilteringDropsBelowCurrentLevel(t *testing.T) {
	dir := t.TempDir()
	level := state.NewLevelFlag(state.LevelWarning)
	l, err := New(dir, level, 10)
	require.NoError(t, err)
	defer l.Close()

	l.Debug("should be dropped")
	l.Info("should be dropped too")
	l.Warning("kept")

	lines := l.Lines()
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "kept")
	require.Contains(t, lines[0], "[WARNING]")
}

func TestLogLineFormat(t *testing.T) {
	dir := t.TempDir()
	level := state.NewLevelFlag(state.LevelDebug)
	l, err := New(dir, level, 10)
	require.NoError(t, err)
	defer l.Close()

	l.Info("server started")

	lines := l.Lines()
	require.Len(t, lines, 1)
	re := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[INFO\] server started$`)
	require.Regexp(t, re, lines[0])
}

func TestLogFileIsAppendOnlyOnDisk(t *testing.T) {
	dir := t.TempDir()
	level := state.NewLevelFlag(state.LevelDebug)
	l, err := New(dir, level, 10)
	require.NoError(t, err)

	l.Info("one")
	l.Info("two")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, "server.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "one")
	require.Contains(t, string(data), "two")
}

func TestRingIsBoundedAndOrdered(t *testing.T) {
	r := NewRing(3)
	r.Push("a")
	r.Push("b")
	r.Push("c")
	r.Push("d")
	require.Equal(t, []string{"b", "c", "d"}, r.Snapshot())
}
