package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/coordinator"
	"github.com/zen-systems/taskgate/pkg/flags"
	"github.com/zen-systems/taskgate/pkg/health"
	"github.com/zen-systems/taskgate/pkg/schema"
)

// Server exposes the coordinator over HTTP.
type Server struct {
	coord  *coordinator.Coordinator
	cfg    *config.Store
	flags  *flags.Registry
	health *health.Aggregator
	logger *zap.Logger
}

// New creates the HTTP surface around an already-constructed coordinator.
func New(coord *coordinator.Coordinator, cfg *config.Store, reg *flags.Registry, agg *health.Aggregator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{coord: coord, cfg: cfg, flags: reg, health: agg, logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /route", s.handleRoute)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/quick", s.handleQuick)
	mux.HandleFunc("GET /health/live", s.handleQuick)
	mux.HandleFunc("GET /health/ready", s.handleReady)
	mux.HandleFunc("GET /flags", s.handleFlags)
	mux.HandleFunc("PUT /flags/{name}", s.handleSetFlag)
	mux.HandleFunc("GET /config", s.handleConfig)
	mux.HandleFunc("GET /stats", s.handleStats)
	return mux
}

// ListenAndServe runs the server until the context is canceled, then shuts
// down the HTTP listener and drains the coordinator.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("server listening", zap.String("addr", addr))

	if mon := s.cfg.Get().Monitoring; mon.Enabled && mon.MetricsIntervalMs > 0 && s.flags.IsEnabled(flags.FlagMonitoring) {
		go s.reportStats(ctx, time.Duration(mon.MetricsIntervalMs)*time.Millisecond)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown error", zap.Error(err))
	}
	return s.coord.Shutdown(shutdownCtx)
}

// reportStats periodically logs the routing distribution.
func (s *Server) reportStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.coord.Stats()
			s.logger.Info("routing stats",
				zap.Int64("total_requests", stats.TotalRequests),
				zap.Int("active_requests", stats.ActiveRequests),
				zap.Int64("legacy_decisions", stats.LegacyDecisions),
				zap.Int64("alternative_decisions", stats.AlternativeDecisions),
				zap.Float64("error_rate", stats.ErrorRate),
			)
		}
	}
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req schema.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.coord.RouteRequest(r.Context(), &req)
	if err != nil {
		var validationErr *schema.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.health.Check(r.Context())
	writeJSON(w, httpStatusFor(status.Status), status)
}

func (s *Server) handleQuick(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Quick())
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.health.Ready(r.Context())
	writeJSON(w, httpStatusFor(status.Status), status)
}

func (s *Server) handleFlags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.flags.Summary())
}

func (s *Server) handleSetFlag(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "flag name is required")
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.flags.SetFlag(name, body.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"flag": name, "enabled": body.Enabled})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Sanitized())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Stats())
}

func httpStatusFor(status schema.Status) int {
	if status == schema.StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
