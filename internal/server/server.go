// Package server is the reference collector: it receives detection payloads
// at the endpoint the relay posts to and journals them to SQLite.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cartsignal/checkout-agent/internal/database"
	"github.com/cartsignal/checkout-agent/internal/models"
)

type Server struct {
	log     *zap.Logger
	db      *database.Database
	address string
	server  *http.Server
}

func NewServer(log *zap.Logger, db *database.Database, address string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		log:     log,
		db:      db,
		address: address,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) handleTrigger(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var payload models.Payload
	if err := json.NewDecoder(request.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if err := s.db.ValidatePayload(payload); err != nil {
		s.log.Warn("rejected payload", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.db.InsertDetection(payload); err != nil {
		s.log.Error("failed to store detection", zap.Error(err))
		http.Error(w, "Failed to store detection", http.StatusInternalServerError)
		return
	}
	s.log.Info("detection stored",
		zap.String("url", payload.URL),
		zap.String("detected_at", payload.DetectedAt))
	w.WriteHeader(http.StatusNoContent) // success, no body
}

func (s *Server) handleDetections(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	detections, err := s.db.RecentDetections(50)
	if err != nil {
		s.log.Error("failed to query detections", zap.Error(err))
		http.Error(w, "Failed to query detections", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	payloads := make([]models.Payload, 0, len(detections))
	for _, det := range detections {
		payloads = append(payloads, det.Payload)
	}
	_ = json.NewEncoder(w).Encode(payloads)
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/checkout-trigger", s.handleTrigger)
	mux.HandleFunc("/api/detections", s.handleDetections)
	return mux
}

// Serve runs the collector until ctx is cancelled, then drains with a 30s
// shutdown budget.
func (s *Server) Serve(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.address,
		Handler:      s.setupRoutes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("collector listening", zap.String("address", s.address))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down collector")
	shutdownContext, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownContext); err != nil {
		return err
	}
	return <-errCh
}
