package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsShutdownTimeout = 5 * time.Second

// NewMetricsHandler serves the registry on /metrics and a liveness probe
// on /healthz.
func NewMetricsHandler(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}).ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok\n"))
	})
	return r
}

// metricsServer serves the metrics endpoint while a diff session runs.
type metricsServer struct {
	srv    *http.Server
	errs   chan error
	logger *slog.Logger
}

// startMetricsServer listens on addr before returning, so a bad address
// fails the command up front.
func startMetricsServer(addr string, reg *prometheus.Registry, logger *slog.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	m := &metricsServer{
		srv:    &http.Server{Handler: NewMetricsHandler(reg), ReadHeaderTimeout: 5 * time.Second},
		errs:   make(chan error, 1),
		logger: logger,
	}
	logger.Info("serving metrics", "addr", ln.Addr().String())
	go func() {
		m.errs <- m.srv.Serve(ln)
	}()
	return m, nil
}

// Stop shuts the server down, closing it if requests do not drain in time.
func (m *metricsServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Warn("metrics shutdown did not complete", "error", err)
		m.srv.Close()
	}
	if err := <-m.errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Warn("metrics server failed", "error", err)
	}
}
