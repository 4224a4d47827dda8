// server.go exposes the metrics registry over HTTP when an address is
// configured.
package metrics

import (
	"fmt"
	"net"
	"net/http"
)

// Server serves /metrics and /health on a configured address.
type Server struct {
	listener net.Listener
	server   *http.Server
}

// NewServer creates a metrics server bound to addr.
func NewServer(addr string, m *Metrics) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: binding listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", handleHealth)

	return &Server{
		listener: ln,
		server:   &http.Server{Handler: mux},
	}, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start begins serving HTTP requests. Call in a goroutine.
func (s *Server) Start() error {
	err := s.server.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	return s.server.Close()
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
