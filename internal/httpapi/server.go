package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
)

// Server wraps the gin engine in a net/http.Server so the caller can shut
// it down gracefully alongside the rest of the process.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

func NewServer(cfg RouterConfig, addr string, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	engine := NewRouter(cfg, log)
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.With("component", "httpapi.Server"),
	}
}

// Run blocks serving HTTP until ctx is cancelled, then shuts down
// gracefully within 5 seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("introspection server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("introspection server shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
