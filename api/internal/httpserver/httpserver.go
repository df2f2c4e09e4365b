// Package httpserver runs the shared HTTP server: health, metrics and the
// routes mounted by each binary.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"parimal/api/internal/logger"
)

// HealthCheck reports whether a dependency (session store, ...) is usable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	Mux  *http.ServeMux
	srv  *http.Server
	log  *zap.Logger
	name string
}

func New(addr, name string, log *zap.Logger, check HealthCheck) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz(check))
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		Mux:  mux,
		name: name,
		log:  logger.OrNop(log),
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func healthz(check HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("not ok\n" + err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("service", s.name), zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.log.Info("shutting down", zap.String("service", s.name))
	return s.srv.Shutdown(shutdownCtx)
}
