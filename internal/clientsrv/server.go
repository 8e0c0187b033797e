// Package clientsrv implements the client-facing TCP endpoint: accepts
// many concurrent connections, negotiates an encrypted session per
// connection, and dispatches the REGISTER_CLIENT / UPLOAD_FILE /
// GET_SCAN_STATUS / GET_SCAN_RESULT / DOWNLOAD_FILE dialect described by
// spec.md §4.5. Each accepted connection runs its own goroutine; command
// processing within one connection is strictly FIFO, which is what the
// spec's ordering guarantee actually requires — the poll-set variant it
// also allows is one of two satisfying designs, not the only one.
package clientsrv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ocx/avscan/internal/codec"
	"github.com/ocx/avscan/internal/logging"
	"github.com/ocx/avscan/internal/state"
	"github.com/ocx/avscan/internal/wire"
)

// Server is the client listener.
type Server struct {
	st            *state.State
	log           *logging.Logger
	processingDir string
	outgoingDir   string

	listener *net.TCPListener
}

// New binds the client TCP endpoint with SO_REUSEADDR set, matching the
// spec's AF_INET + SO_REUSEADDR requirement; the OS default backlog is
// used since Go's net package does not expose listen(2)'s backlog
// argument directly.
func New(listenAddr, processingDir, outgoingDir string, st *state.State, log *logging.Logger) (*Server, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	ln, err := lc.Listen(context.Background(), "tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("clientsrv: listen: %w", err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("clientsrv: listener is not a TCP listener")
	}
	return &Server{st: st, log: log, processingDir: processingDir, outgoingDir: outgoingDir, listener: tcpLn}, nil
}

// Close closes the listening socket. It does not close active sessions;
// the supervisor does that separately via state.Clients.Each.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Run accepts client connections until the shutdown flag is set, polling
// at ≤1s cadence between accepts.
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
	ref, err := s.st.Clients.Admit(conn)
	if err != nil {
		s.log.Warning("Maximum clients reached")
		conn.Close()
		return
	}
	s.st.Stats.ConnectionOpened()

	defer func() {
		conn.Close()
		s.st.Clients.Release(ref)
		s.st.Jobs.ClearOwner(ref)
		s.st.Stats.ConnectionClosed()
	}()

	sk, err := codec.ServerHandshake(conn)
	if err != nil {
		return
	}

	session := &clientSession{
		srv:  s,
		conn: conn,
		ref:  ref,
		key:  sk,
	}
	session.run()
}

// clientSession holds the per-connection dispatch state.
type clientSession struct {
	srv  *Server
	conn net.Conn
	ref  state.ClientRef
	key  codec.SessionKey
}

func (c *clientSession) run() {
	reader := bufio.NewReader(c.conn)
	for {
		raw, err := wire.ReadLine(reader)
		if err != nil {
			return
		}
		c.srv.st.Clients.Touch(c.ref)

		line, err := wire.ParseLine(raw)
		if err != nil {
			_ = wire.WriteResponse(c.conn, wire.StatusError, "Invalid command format")
			continue
		}

		if !c.dispatch(reader, line) {
			return
		}
	}
}

// dispatch executes one client command. It returns false if the
// connection must be terminated (transport failure mid-command).
func (c *clientSession) dispatch(reader *bufio.Reader, line wire.Line) bool {
	switch line.Verb {
	case "REGISTER_CLIENT":
		_ = wire.WriteResponse(c.conn, wire.StatusOK, "Client registered")
		return true

	case "UPLOAD_FILE":
		return c.handleUpload(reader, line)

	case "GET_SCAN_STATUS":
		c.handleStatus(line)
		return true

	case "GET_SCAN_RESULT":
		c.handleResult(line)
		return true

	case "DOWNLOAD_FILE":
		c.handleDownload(line)
		return true

	default:
		_ = wire.WriteResponse(c.conn, wire.StatusError, "Unknown command")
		return true
	}
}

func (c *clientSession) handleUpload(reader *bufio.Reader, line wire.Line) bool {
	fields := line.Fields()
	if len(fields) != 2 {
		_ = wire.WriteResponse(c.conn, wire.StatusError, "Invalid command format")
		return true
	}
	filename := fields[0]
	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || size < 0 {
		_ = wire.WriteResponse(c.conn, wire.StatusError, "Invalid command format")
		return true
	}

	if err := wire.WriteResponse(c.conn, wire.StatusOK, "Ready to receive file"); err != nil {
		return false
	}

	path := filepath.Join(c.srv.processingDir, uuid.NewString()+"_"+sanitizeFilename(filename))
	f, err := os.Create(path)
	if err != nil {
		_ = wire.WriteResponse(c.conn, wire.StatusError, "Storage failure")
		return true
	}

	_, copyErr := io.CopyN(f, reader, size)
	f.Close()

	if copyErr != nil {
		os.Remove(path)
		_ = wire.WriteResponse(c.conn, wire.StatusError, "Incomplete upload")
		return false
	}

	job, err := c.srv.st.Jobs.Enqueue(c.ref, true, filename, path, size, c.key.Reference())
	if err != nil {
		os.Remove(path)
		_ = wire.WriteResponse(c.conn, wire.StatusError, "Job table full")
		return true
	}
	c.srv.st.SignalJob()

	_ = wire.WriteResponse(c.conn, wire.StatusOK, fmt.Sprintf("Job ID: %d", job.ID))
	return true
}

func (c *clientSession) handleStatus(line wire.Line) {
	id, err := strconv.ParseInt(strings.TrimSpace(line.Rest), 10, 64)
	if err != nil {
		_ = wire.WriteResponse(c.conn, wire.StatusError, "Invalid job id")
		return
	}
	job, ok := c.srv.st.Jobs.Get(id)
	if !ok {
		_ = wire.WriteResponse(c.conn, wire.StatusNotFound, "")
		return
	}
	_ = wire.WriteResponse(c.conn, wire.StatusOK, job.Status.String())
}

func (c *clientSession) handleResult(line wire.Line) {
	id, err := strconv.ParseInt(strings.TrimSpace(line.Rest), 10, 64)
	if err != nil {
		_ = wire.WriteResponse(c.conn, wire.StatusError, "Invalid job id")
		return
	}
	job, ok := c.srv.st.Jobs.Get(id)
	if !ok {
		_ = wire.WriteResponse(c.conn, wire.StatusNotFound, "")
		return
	}
	switch job.Status {
	case state.JobPending, state.JobProcessing:
		_ = wire.WriteResponse(c.conn, wire.StatusPending, "")
	case state.JobError:
		_ = wire.WriteResponse(c.conn, wire.StatusError, job.Verdict)
	default:
		if strings.Contains(job.Verdict, "FOUND") {
			_ = wire.WriteResponse(c.conn, wire.StatusInfected, job.Verdict)
		} else {
			_ = wire.WriteResponse(c.conn, wire.StatusClean, job.Verdict)
		}
	}
}

func (c *clientSession) handleDownload(line wire.Line) {
	filename := strings.TrimSpace(line.Rest)
	if filename == "" || strings.Contains(filename, "..") {
		_ = wire.WriteResponse(c.conn, wire.StatusNotFound, "")
		return
	}
	data, err := os.ReadFile(filepath.Join(c.srv.outgoingDir, filename))
	if err != nil {
		_ = wire.WriteResponse(c.conn, wire.StatusNotFound, "")
		return
	}
	if err := wire.WriteSize(c.conn, int64(len(data))); err != nil {
		return
	}
	_ = wire.WritePayload(c.conn, data)
}

// sanitizeFilename strips any path separators a malicious client might
// smuggle into the UPLOAD_FILE filename argument, since it becomes part
// of an on-disk path.
func sanitizeFilename(name string) string {
	return filepath.Base(name)
}
