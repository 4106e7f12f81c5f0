package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dgellow/authgate/internal/log"
)

// HTTPServer owns the gateway's listener and http.Server
type HTTPServer struct {
	srv      *http.Server
	addr     string
	listener net.Listener
	ready    chan struct{}
}

// NewHTTPServer prepares a server for handler on addr. Nothing is bound
// until Start.
func NewHTTPServer(handler http.Handler, addr string) *HTTPServer {
	return &HTTPServer{
		addr:  addr,
		ready: make(chan struct{}),
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Start binds the address and serves until Stop. A clean shutdown returns nil.
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.addr, err)
	}
	h.listener = ln
	close(h.ready)

	log.LogInfoWithFields("http", "Listening", map[string]any{
		"addr": ln.Addr().String(),
	})

	err = h.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr blocks until Start has bound the listener and returns its address,
// which resolves ":0" to the chosen port. It returns "" if ctx ends first.
func (h *HTTPServer) Addr(ctx context.Context) string {
	select {
	case <-h.ready:
		return h.listener.Addr().String()
	case <-ctx.Done():
		return ""
	}
}

// Stop drains in-flight requests until ctx expires
func (h *HTTPServer) Stop(ctx context.Context) error {
	if err := h.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.LogInfoWithFields("http", "Stopped", map[string]any{
		"addr": h.addr,
	})
	return nil
}
