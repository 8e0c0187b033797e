// Package adminsrv implements the privileged administrative channel: a
// single concurrent admin connected over a local Unix-domain socket,
// executing the SET_LOG_LEVEL / GET_LOGS / GET_STATS / DISCONNECT_CLIENT
// / SHUTDOWN_SERVER dialect described by spec.md §4.2 and §4.4.
package adminsrv

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ocx/avscan/internal/logging"
	"github.com/ocx/avscan/internal/state"
	"github.com/ocx/avscan/internal/wire"
)

// Server is the admin listener state machine: LISTENING -> CONNECTED ->
// CLOSED per connection.
type Server struct {
	st          *state.State
	log         *logging.Logger
	socketPath  string
	idleTimeout time.Duration
	authToken   string

	listener *net.UnixListener
}

// New binds the admin Unix-domain socket, unlinking any stale path left
// behind by a prior run.
func New(socketPath string, idleTimeout time.Duration, authToken string, st *state.State, log *logging.Logger) (*Server, error) {
	_ = os.Remove(socketPath)

	addr, err := net.ResolveUnixAddr("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("adminsrv: resolve socket path: %w", err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("adminsrv: listen: %w", err)
	}

	return &Server{
		st:          st,
		log:         log,
		socketPath:  socketPath,
		idleTimeout: idleTimeout,
		authToken:   authToken,
		listener:    ln,
	}, nil
}

// Close closes the listener and unlinks the socket path.
func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.socketPath)
	return err
}

// Run accepts admin connections, polling the shutdown flag at ≤1s cadence
// between accepts. Every connection is handled on its own goroutine so a
// second concurrent admin is rejected immediately by handle's
// already-connected check instead of queuing behind the first in the
// accept backlog.
func (s *Server) Run() {
	for !s.st.Shutdown.IsSet() {
		_ = s.listener.SetDeadline(time.Now().Add(time.Second))
		conn, err := s.listener.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if s.st.Shutdown.IsSet() {
				return
			}
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	s.st.AdminMu.Lock()
	if s.st.AdminConn != nil {
		s.st.AdminMu.Unlock()
		_ = wire.WriteResponse(conn, wire.StatusError, "Admin already connected")
		conn.Close()
		return
	}
	s.st.AdminConn = conn
	s.st.AdminMu.Unlock()

	defer func() {
		s.st.AdminMu.Lock()
		if s.st.AdminConn == conn {
			s.st.AdminConn = nil
		}
		s.st.AdminMu.Unlock()
		conn.Close()
	}()

	reader := bufio.NewReader(conn)
	authenticated := s.authToken == ""
	var idle time.Duration

	for !s.st.Shutdown.IsSet() {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		raw, err := wire.ReadLine(reader)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				idle += time.Second
				if idle >= s.idleTimeout {
					s.log.Info("admin session idle timeout")
					return
				}
				continue
			}
			return
		}
		idle = 0

		line, err := wire.ParseLine(raw)
		if err != nil {
			_ = wire.WriteResponse(conn, wire.StatusError, "Invalid command format")
			continue
		}

		if !authenticated {
			if line.Verb != "ADMIN_AUTH" || line.Rest != s.authToken {
				_ = wire.WriteResponse(conn, wire.StatusError, "Unauthorized")
				return
			}
			authenticated = true
			_ = wire.WriteResponse(conn, wire.StatusOK, "Authenticated")
			continue
		}

		shuttingDown := s.dispatch(conn, line)
		if shuttingDown {
			return
		}
	}
}

// dispatch executes one admin command and writes its response. It
// returns true if the session should end (SHUTDOWN_SERVER).
func (s *Server) dispatch(conn net.Conn, line wire.Line) bool {
	switch line.Verb {
	case "ADMIN_AUTH":
		_ = wire.WriteResponse(conn, wire.StatusOK, "Already authenticated")
		return false

	case "SET_LOG_LEVEL":
		lvl, ok := state.ParseLogLevel(line.Rest)
		if !ok {
			_ = wire.WriteResponse(conn, wire.StatusError, "Unknown log level")
			return false
		}
		s.st.LogLevel.Store(lvl)
		_ = wire.WriteResponse(conn, wire.StatusOK, fmt.Sprintf("Log level set to %s", lvl))
		return false

	case "GET_LOGS":
		lines := s.log.Lines()
		msg := ""
		for i, l := range lines {
			if i > 0 {
				msg += "\\n"
			}
			msg += l
		}
		_ = wire.WriteResponse(conn, wire.StatusOK, msg)
		return false

	case "GET_STATS":
		snap := s.st.Stats.Snapshot()
		_ = wire.WriteResponse(conn, wire.StatusOK, fmt.Sprintf(
			"Connections: %d, Active: %d, Scans: %d, Clean: %d, Infected: %d",
			snap.TotalConnections, snap.ActiveConnections, snap.TotalScans, snap.CleanFiles, snap.InfectedFiles,
		))
		return false

	case "DISCONNECT_CLIENT":
		// Only close the transport here. The owning client goroutine's
		// own deferred cleanup (clientsrv.Server.handle) is what calls
		// Clients.Release and Stats.ConnectionClosed once the close
		// unblocks its read. Doing that here too would decrement the
		// active-connection count twice for one disconnect.
		ip := line.Rest
		refs := s.st.Clients.MatchingAddr(ip)
		for _, ref := range refs {
			if rec, ok := s.st.Clients.Lookup(ref); ok && rec.Conn != nil {
				rec.Conn.Close()
			}
		}
		_ = wire.WriteResponse(conn, wire.StatusOK, fmt.Sprintf("%d", len(refs)))
		return false

	case "SHUTDOWN_SERVER":
		_ = wire.WriteResponse(conn, wire.StatusOK, "Server shutting down")
		s.st.Shutdown.Set()
		return true

	default:
		_ = wire.WriteResponse(conn, wire.StatusError, "Unknown command")
		return false
	}
}
