package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultAddr is the daemon's default bind address per §4.G.
const DefaultAddr = "127.0.0.1:7777"

// Server wraps the REST HTTP surface. Start/Stop follow the same
// ListenAndServe-in-a-goroutine / Shutdown(ctx) shape the teacher uses
// for its WebSocket listener, swapped from a gorilla upgrade handler to
// a plain net/http.ServeMux of REST routes.
type Server struct {
	httpServer *http.Server
	addr       string
}

// NewServer builds the REST server bound to addr, wiring every route in
// §6's HTTP surface table against sc.
func NewServer(addr string, sc *ServerContext) *Server {
	mux := http.NewServeMux()
	registerRoutes(mux, sc)

	return &Server{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start begins serving in a background goroutine. It returns once the
// listener is likely bound; ListenAndServe errors other than a clean
// shutdown are logged to the context's logger.
func (s *Server) Start(sc *ServerContext) error {
	ln, err := newListener(s.addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.addr, err)
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sc.Logger.Error("http server error", "err", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, waiting up to 5s for in-flight
// requests to complete.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// Addr returns the address the server is bound to.
func (s *Server) Addr() string { return s.addr }
