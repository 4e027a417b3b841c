// Package metrics exposes translation counters to Prometheus.
package metrics

import (
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	eventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "binlog2sql_events_total",
			Help: "The number of binlog events read from the stream",
		},
	)
	statementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binlog2sql_statements_total",
			Help: "The number of statements emitted, by statement kind",
		}, []string{"kind"},
	)
	logPosition = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "binlog2sql_log_position",
			Help: "The end offset of the last event read in the current binlog file",
		},
	)
	tailing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "binlog2sql_tailing",
			Help: "The run state: 0=bounded window, 1=stop-never tailing",
		},
	)
)

// ObserveEvent records one event read from the stream
func ObserveEvent(pos uint32) {
	eventsTotal.Inc()
	if pos > 0 {
		logPosition.Set(float64(pos))
	}
}

// ObserveStatement records one emitted statement
func ObserveStatement(kind string) {
	statementsTotal.WithLabelValues(kind).Inc()
}

// SetTailing records whether the run stops on its own
func SetTailing(on bool) {
	if on {
		tailing.Set(1)
	} else {
		tailing.Set(0)
	}
}

// Server serves /metrics over HTTP
type Server struct {
	l      net.Listener
	srv    *http.Server
	logger *logrus.Logger
}

// Serve starts listening on addr and serves in the background
func Serve(addr, path string, logger *logrus.Logger) (*Server, error) {
	if path == "" {
		path = "/metrics"
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	s := &Server{
		l: l,
		srv: &http.Server{
			Handler:      mux,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		logger: logger,
	}

	go func() {
		logger.Infof("metrics listen : http://%s%s", l.Addr(), path)
		if err := s.srv.Serve(l); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics listen err : %v", err)
		}
	}()
	return s, nil
}

// Addr is the bound listen address
func (s *Server) Addr() string {
	return s.l.Addr().String()
}

// Close stops the listener
func (s *Server) Close() error {
	return s.srv.Close()
}
