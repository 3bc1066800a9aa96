package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/redoraai/redora-cli/pkg/buildinfo"
	"github.com/redoraai/redora-cli/pkg/logging"
)

// MetricsServer exposes /metrics, /version and /healthz while a long-running
// command such as triage is active.
type MetricsServer struct {
	srv    *http.Server
	ln     net.Listener
	logger logging.Logger
	done   chan error
}

// NewRouter builds the metrics router for gatherer.
func NewRouter(gatherer prometheus.Gatherer, serviceName string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/version", buildinfo.Handler(serviceName))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// StartMetricsServer listens on addr and serves NewRouter in the background.
func StartMetricsServer(addr string, gatherer prometheus.Gatherer, serviceName string, logger logging.Logger) (*MetricsServer, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &MetricsServer{
		srv: &http.Server{
			Handler:           NewRouter(gatherer, serviceName),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger.With(logging.F("addr", ln.Addr().String())),
		done:   make(chan error, 1),
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	s.logger.Debug("Metrics server listening")
	return s, nil
}

// Addr returns the bound address.
func (s *MetricsServer) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server and waits for Serve to return.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	err := <-s.done
	s.logger.Debug("Metrics server stopped")
	return err
}
