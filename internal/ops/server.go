// Package ops serves the operational HTTP surface: prometheus metrics
// and a liveness endpoint. The product API that manages monitors lives
// elsewhere; this listener only exists so the daemon can be scraped and
// probed itself.
package ops

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server wraps the http.Server to provide graceful shutdown.
type Server struct {
	httpServer *http.Server
	log        *logrus.Logger
}

// NewServer creates the ops server on the given listen address.
func NewServer(addr string, log *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		log:        log,
	}
}

// Start runs the HTTP server in a new goroutine. The returned channel
// receives at most one error when the listener fails to serve.
func (s *Server) Start() <-chan error {
	s.log.WithField("addr", s.httpServer.Addr).Info("starting ops server")
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down ops server")
	return s.httpServer.Shutdown(ctx)
}
