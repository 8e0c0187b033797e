// Package metricsx exposes the Statistics aggregate as Prometheus gauges
// on a loopback-only scrape endpoint, routed through
// gorilla/mux the way the rest of this codebase's HTTP surfaces are
// routed. It is purely observational: nothing here mutates state.
package metricsx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/avscan/internal/logging"
	"github.com/ocx/avscan/internal/state"
)

// Server serves /metrics and /healthz on a dedicated HTTP listener.
type Server struct {
	st     *state.State
	log    *logging.Logger
	srv    *http.Server
	addr   string
	gauges gaugeSet
}

type gaugeSet struct {
	totalConnections  prometheus.Gauge
	activeConnections prometheus.Gauge
	totalScans        prometheus.Gauge
	cleanFiles        prometheus.Gauge
	infectedFiles     prometheus.Gauge
	errors            prometheus.Gauge
	uptimeSeconds     prometheus.Gauge
}

// New builds a metrics server bound to addr. An empty addr, or one whose
// port is 0, disables the endpoint entirely — New returns (nil, nil) in
// that case and the caller should skip starting it.
func New(addr string, st *state.State, log *logging.Logger) (*Server, error) {
	if addr == "" {
		return nil, nil
	}
	if _, port, err := net.SplitHostPort(addr); err == nil && port == "0" {
		return nil, nil
	}

	reg := prometheus.NewRegistry()
	gs := gaugeSet{
		totalConnections:  newGauge(reg, "avscan_connections_total", "Total client connections accepted since start."),
		activeConnections: newGauge(reg, "avscan_connections_active", "Currently active client connections."),
		totalScans:        newGauge(reg, "avscan_scans_total", "Total scan jobs completed."),
		cleanFiles:        newGauge(reg, "avscan_scans_clean", "Scan jobs that completed clean."),
		infectedFiles:     newGauge(reg, "avscan_scans_infected", "Scan jobs that completed infected."),
		errors:            newGauge(reg, "avscan_scans_errors", "Scan jobs that completed with an error."),
		uptimeSeconds:     newGauge(reg, "avscan_uptime_seconds", "Seconds since server start."),
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		st:     st,
		log:    log,
		addr:   addr,
		gauges: gs,
		srv:    &http.Server{Addr: addr, Handler: router},
	}, nil
}

// Run refreshes the gauges from state.Statistics every second and serves
// until the shutdown flag is observed, then shuts the HTTP server down.
func (s *Server) Run() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for !s.st.Shutdown.IsSet() {
			s.refresh()
			<-ticker.C
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(ctx)
	}()

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warning("metrics server stopped unexpectedly", "error", err)
	}
}

func (s *Server) refresh() {
	snap := s.st.Stats.Snapshot()
	s.gauges.totalConnections.Set(float64(snap.TotalConnections))
	s.gauges.activeConnections.Set(float64(snap.ActiveConnections))
	s.gauges.totalScans.Set(float64(snap.TotalScans))
	s.gauges.cleanFiles.Set(float64(snap.CleanFiles))
	s.gauges.infectedFiles.Set(float64(snap.InfectedFiles))
	s.gauges.errors.Set(float64(snap.Errors))
	s.gauges.uptimeSeconds.Set(time.Since(snap.StartedAt).Seconds())
}

func newGauge(reg *prometheus.Registry, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	reg.MustRegister(g)
	return g
}
