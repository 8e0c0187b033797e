// Package supervisor wires the four long-lived activities (admin
// listener, client listener, job processor, filesystem monitor) plus the
// optional metrics endpoint together: it builds the shared state,
// installs signal handlers, spawns every activity, and joins them all on
// a clean shutdown. See spec.md §4.8.
package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ocx/avscan/internal/adminsrv"
	"github.com/ocx/avscan/internal/clientsrv"
	"github.com/ocx/avscan/internal/config"
	"github.com/ocx/avscan/internal/fswatch"
	"github.com/ocx/avscan/internal/jobproc"
	"github.com/ocx/avscan/internal/logging"
	"github.com/ocx/avscan/internal/metricsx"
	"github.com/ocx/avscan/internal/scanner"
	"github.com/ocx/avscan/internal/state"
)

// Supervisor owns every long-lived activity and the state they share.
type Supervisor struct {
	cfg *config.Config
	log *logging.Logger
	st  *state.State

	admin   *adminsrv.Server
	clients *clientsrv.Server
	monitor *fswatch.Monitor
	metrics *metricsx.Server
	proc    *jobproc.Processor
}

// New creates required directories, opens the listening endpoints, and
// returns a Supervisor ready to Run. Any failure here is an
// initialization failure per spec.md §6's exit-code rule.
func New(cfg *config.Config) (*Supervisor, error) {
	for _, dir := range []string{cfg.Dirs.Logs, cfg.Dirs.Processing, cfg.Dirs.Outgoing} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("supervisor: create directory %s: %w", dir, err)
		}
	}

	level, ok := state.ParseLogLevel(cfg.Logging.Level)
	if !ok {
		level = state.LevelInfo
	}
	st := state.New(level)

	log, err := logging.New(cfg.Dirs.Logs, st.LogLevel, cfg.Logging.RingCapacity)
	if err != nil {
		return nil, fmt.Errorf("supervisor: init logger: %w", err)
	}

	admin, err := adminsrv.New(cfg.Admin.SocketPath, time.Duration(cfg.Admin.IdleTimeoutSec)*time.Second, cfg.Admin.AuthToken, st, log)
	if err != nil {
		return nil, fmt.Errorf("supervisor: init admin listener: %w", err)
	}

	clients, err := clientsrv.New(cfg.Server.ListenAddr, cfg.Dirs.Processing, cfg.Dirs.Outgoing, st, log)
	if err != nil {
		return nil, fmt.Errorf("supervisor: init client listener: %w", err)
	}

	monitor, err := fswatch.New(cfg.Dirs.Processing, log, st)
	if err != nil {
		return nil, fmt.Errorf("supervisor: init filesystem monitor: %w", err)
	}

	metrics, err := metricsx.New(cfg.Metrics.ListenAddr, st, log)
	if err != nil {
		return nil, fmt.Errorf("supervisor: init metrics endpoint: %w", err)
	}

	scan := scanner.New(cfg.Scanner.BinaryPath, cfg.Scanner.Args, time.Duration(cfg.Scanner.TimeoutSec)*time.Second)
	proc := jobproc.New(st, scan, log, cfg.Dirs.Outgoing)

	return &Supervisor{
		cfg:     cfg,
		log:     log,
		st:      st,
		admin:   admin,
		clients: clients,
		monitor: monitor,
		metrics: metrics,
		proc:    proc,
	}, nil
}

// Run installs signal handlers, spawns every activity, and blocks until
// the shutdown flag is set (by a signal or by SHUTDOWN_SERVER), then
// tears everything down in order.
func (s *Supervisor) Run() error {
	signal.Ignore(syscall.SIGPIPE)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		s.st.Shutdown.Set()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	spawn := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
		s.log.Info("activity started", "activity", name)
	}

	spawn("admin", s.admin.Run)
	spawn("client", s.clients.Run)
	spawn("jobproc", func() { s.proc.Run(ctx) })
	spawn("fswatch", s.monitor.Run)
	if s.metrics != nil {
		spawn("metrics", s.metrics.Run)
	}

	for !s.st.Shutdown.IsSet() {
		time.Sleep(time.Second)
	}

	s.log.Info("Shutting down server...")
	s.shutdown()

	cancel()
	wg.Wait()

	_ = s.log.Close()
	return nil
}

func (s *Supervisor) shutdown() {
	_ = s.admin.Close()
	_ = s.clients.Close()

	s.st.AdminMu.Lock()
	if conn, ok := s.st.AdminConn.(net.Conn); ok {
		conn.Close()
	}
	s.st.AdminMu.Unlock()

	s.st.Clients.Each(func(ref state.ClientRef, rec state.ClientRecord) {
		if rec.Conn != nil {
			rec.Conn.Close()
		}
	})

	_ = s.monitor.Close()
}
