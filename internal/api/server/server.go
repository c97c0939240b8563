package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/caremesh/medledger/internal/logger"
	"github.com/caremesh/medledger/internal/model"
)

const shutdownTimeout = 5 * time.Second

// StatusProvider exposes the ledger connector state to the HTTP surface.
type StatusProvider interface {
	GetBlockchainInfo(ctx context.Context) model.LedgerStatus
}

// Server is the operational HTTP surface: anchoring status and health probes.
// Domain operations do not go through it.
type Server struct {
	status StatusProvider
	logger *logger.Logger
	srv    *http.Server
}

// New creates the HTTP server listening on the given port.
func New(status StatusProvider, port string, l *logger.Logger) *Server {
	s := &Server{
		status: status,
		logger: l,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health/liveness", s.handleLiveness)
	mux.HandleFunc("/health/readiness", s.handleReadiness)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: mux,
	}
	return s
}

// Run blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status.GetBlockchainInfo(r.Context()))
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"alive": true})
}

// handleReadiness reports ready in both modes: simulation is a degraded but
// fully functional state, not an outage.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status := s.status.GetBlockchainInfo(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]bool{
		"ready":          true,
		"ledgerConnected": status.Connected,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
