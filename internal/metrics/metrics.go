// Package metrics exposes the daemon's operability surface: counters,
// a latency histogram, and a dispatcher-state gauge served over
// /metrics for Prometheus to scrape. None of this is reachable from the
// BLE surface -- it exists purely for the operator running the daemon.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/op/go-logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muneale/hps-ble/internal/dispatcher"
	"github.com/muneale/hps-ble/internal/hps"
)

// Recorder implements dispatcher.Recorder. The import runs one way: this
// package imports internal/dispatcher for its State type, and the
// dispatcher depends only on its own Recorder interface, never on
// internal/metrics.
type Recorder struct {
	dispatches *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	state      prometheus.Gauge
}

// New registers the daemon's metrics against reg and returns a Recorder.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hps_dispatches_total",
			Help: "HTTP executions dispatched by the Control Point, by opcode and outcome.",
		}, []string{"opcode", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hps_dispatch_duration_seconds",
			Help:    "Wall-clock duration of a single dispatched HTTP exchange.",
			Buckets: prometheus.DefBuckets,
		}, []string{"opcode"}),
		state: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hps_dispatcher_state",
			Help: "Current Control Point Dispatcher state: 0=idle, 1=running, 2=completed.",
		}),
	}
}

// ObserveDispatch satisfies dispatcher.Recorder.
func (r *Recorder) ObserveDispatch(op hps.Opcode, outcome string, duration time.Duration) {
	opcodeLabel := opcodeName(op)
	r.dispatches.WithLabelValues(opcodeLabel, outcome).Inc()
	r.latency.WithLabelValues(opcodeLabel).Observe(duration.Seconds())
}

// SetState satisfies dispatcher.Recorder.
func (r *Recorder) SetState(s dispatcher.State) {
	switch s {
	case dispatcher.Idle:
		r.state.Set(0)
	case dispatcher.Running:
		r.state.Set(1)
	case dispatcher.Completed:
		r.state.Set(2)
	}
}

func opcodeName(op hps.Opcode) string {
	if method, ok := op.Method(); ok {
		scheme, _ := op.Scheme()
		return scheme + "_" + method
	}
	if op == hps.OpCancel {
		return "cancel"
	}
	return "unknown"
}

// Server wraps promhttp.Handler in a long-lived http.Server so the daemon
// can start and stop it alongside the GATT listener.
type Server struct {
	httpServer *http.Server
	log        *logging.Logger
}

// NewServer builds (but does not start) a metrics HTTP server bound to
// addr, serving reg's registry at /metrics.
func NewServer(addr string, reg *prometheus.Registry, log *logging.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		log:        log,
	}
}

// Start runs the server until Shutdown is called. It is meant to be
// invoked with `go`.
func (s *Server) Start() {
	s.log.Infof("hps: metrics listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Errorf("hps: metrics server stopped: %v", err)
	}
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
