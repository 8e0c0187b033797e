package fswatch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ocx/avscan/internal/logging"
	"github.com/ocx/avscan/internal/state"
	"github.com/stretchr/testify/require"
)

func TestMonitorLogsCreateEvents(t *testing.T) {
	dir := t.TempDir()
	st := state.New(state.LevelDebug)
	log, err := logging.New(t.TempDir(), state.NewLevelFlag(state.LevelDebug), 50)
	require.NoError(t, err)
	defer log.Close()

	m, err := New(dir, log, st)
	require.NoError(t, err)
	defer m.Close()

	go m.Run()
	defer st.Shutdown.Set()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.bin"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		for _, line := range log.Lines() {
			if strings.Contains(line, "filesystem event observed") {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}
