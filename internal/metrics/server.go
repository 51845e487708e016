package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server exposes /metrics on a local address.
type Server struct {
	server *http.Server
	log    zerolog.Logger
	addr   string
}

func NewServer(addr string, m *Metrics, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logger,
	}
}

// Start binds the listener and serves in the background. Bind errors are
// returned directly.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("Metrics server listening")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return nil
}

// Addr is the bound address, valid after Start.
func (s *Server) Addr() string { return s.addr }

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
