package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/voice-sentinel/internal/cache"
	"github.com/raaihank/voice-sentinel/internal/config"
	"github.com/raaihank/voice-sentinel/internal/logger"
	"github.com/raaihank/voice-sentinel/internal/notify"
	"github.com/raaihank/voice-sentinel/internal/store"
)

// StatsProvider is implemented by repositories that can summarize their
// contents. The in-memory repository does not; the endpoint degrades.
type StatsProvider interface {
	GetStats(ctx context.Context) (*store.Stats, error)
}

// Server is the operational HTTP surface: health, info, and the WebSocket
// notification endpoint. Authentication decisions are not exposed over HTTP.
type Server struct {
	config *config.Config
	logger *logger.Logger
	hub    *notify.Hub
	repo   store.SampleRepository
	cache  *cache.AnalysisCache
	queue  *cache.EventQueue
	router *mux.Router
	server *http.Server
}

// New creates the ops server. cache and queue may be nil when Redis is
// disabled; the info endpoint omits their sections.
func New(cfg *config.Config, log *logger.Logger, hub *notify.Hub,
	repo store.SampleRepository, analysisCache *cache.AnalysisCache, queue *cache.EventQueue) *Server {

	router := mux.NewRouter()

	s := &Server{
		config: cfg,
		logger: log.WithComponent("server"),
		hub:    hub,
		repo:   repo,
		cache:  analysisCache,
		queue:  queue,
		router: router,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Handle("/health", s.loggingMiddleware(http.HandlerFunc(s.handleHealth))).Methods("GET")
	s.router.Handle("/info", s.loggingMiddleware(http.HandlerFunc(s.handleInfo))).Methods("GET")

	// The upgrade needs the raw ResponseWriter, so no logging wrapper here.
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting voice-sentinel ops server",
		zap.Int("port", s.config.Server.Port))
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping voice-sentinel ops server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo reports build identity, enrollment criteria, and the stats each
// wired backend can provide.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	info := map[string]interface{}{
		"name":    "voice-sentinel",
		"version": "0.1.0",
		"enrollment": map[string]interface{}{
			"required_samples":     s.config.Completion.RequiredSamples,
			"min_quality_score":    s.config.Completion.MinQualityScore,
			"min_average_quality":  s.config.Completion.MinAverageQuality,
			"confidence_threshold": s.config.Completion.CompletionConfidenceThreshold,
		},
		"websocket": s.hub.GetStats(),
	}

	if provider, ok := s.repo.(StatsProvider); ok {
		if stats, err := provider.GetStats(ctx); err == nil {
			info["repository"] = stats
		} else {
			s.logger.Warn("Repository stats unavailable", zap.Error(err))
		}
	}

	if s.cache != nil {
		if stats, err := s.cache.GetStats(ctx); err == nil {
			info["cache"] = stats
		} else {
			s.logger.Warn("Cache stats unavailable", zap.Error(err))
		}
	}

	if s.queue != nil {
		if depth, err := s.queue.Depth(ctx); err == nil {
			info["queue_depth"] = depth
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(info); err != nil {
		s.logger.Error("Failed to encode info response", zap.Error(err))
	}
}

// handleWebSocket handles WebSocket connections for enrollment events
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r)
}
