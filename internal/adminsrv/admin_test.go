package adminsrv

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ocx/avscan/internal/logging"
	"github.com/ocx/avscan/internal/state"
	"github.com/ocx/avscan/internal/wire"
	"github.com/stretchr/testify/require"
)

func newHarness(t *testing.T, authToken string) (*Server, *state.State) {
	t.Helper()
	st := state.New(state.LevelInfo)
	log, err := logging.New(t.TempDir(), state.NewLevelFlag(state.LevelInfo), 100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	sock := filepath.Join(t.TempDir(), "admin.sock")
	srv, err := New(sock, 300*time.Second, authToken, st, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	go srv.Run()
	return srv, st
}

func dial(t *testing.T, srv *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("unix", srv.socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func TestSecondAdminConnectionIsRejectedWhileFirstIsConnected(t *testing.T) {
	srv, _ := newHarness(t, "")

	first, firstReader := dial(t, srv)
	_, err := first.Write([]byte("GET_STATS\n"))
	require.NoError(t, err)
	resp, err := wire.ReadLine(firstReader)
	require.NoError(t, err)
	require.True(t, len(resp) > 0)

	second, secondReader := dial(t, srv)
	_, err = second.Write([]byte("GET_STATS\n"))
	require.NoError(t, err)
	resp2, err := wire.ReadLine(secondReader)
	require.NoError(t, err)
	require.Equal(t, "ERROR Admin already connected", resp2)

	first.Close()

	require.Eventually(t, func() bool {
		third, err := net.Dial("unix", srv.socketPath)
		if err != nil {
			return false
		}
		defer third.Close()
		if _, err := third.Write([]byte("GET_STATS\n")); err != nil {
			return false
		}
		reader := bufio.NewReader(third)
		resp, err := wire.ReadLine(reader)
		return err == nil && resp != "ERROR Admin already connected"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestAdminAuthGatesCommandsUntilAuthenticated(t *testing.T) {
	srv, _ := newHarness(t, "s3cret")
	conn, reader := dial(t, srv)

	_, err := conn.Write([]byte("GET_STATS\n"))
	require.NoError(t, err)
	resp, err := wire.ReadLine(reader)
	require.NoError(t, err)
	require.Equal(t, "ERROR Unauthorized", resp)
}

func TestAdminAuthSucceedsWithCorrectToken(t *testing.T) {
	srv, _ := newHarness(t, "s3cret")
	conn, reader := dial(t, srv)

	_, err := conn.Write([]byte("ADMIN_AUTH s3cret\n"))
	require.NoError(t, err)
	resp, err := wire.ReadLine(reader)
	require.NoError(t, err)
	require.Equal(t, "OK Authenticated", resp)

	_, err = conn.Write([]byte("GET_STATS\n"))
	require.NoError(t, err)
	resp2, err := wire.ReadLine(reader)
	require.NoError(t, err)
	require.True(t, len(resp2) > 0)
	require.NotEqual(t, "ERROR Unauthorized", resp2)
}

func TestShutdownServerSetsShutdownFlag(t *testing.T) {
	srv, st := newHarness(t, "")
	conn, reader := dial(t, srv)

	_, err := conn.Write([]byte("SHUTDOWN_SERVER\n"))
	require.NoError(t, err)
	resp, err := wire.ReadLine(reader)
	require.NoError(t, err)
	require.Equal(t, "OK Server shutting down", resp)

	require.Eventually(t, func() bool {
		return st.Shutdown.IsSet()
	}, time.Second, 10*time.Millisecond)
}
