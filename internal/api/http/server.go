package apihttp

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/storage/paths"
)

// StreamService is the coordinator surface the HTTP layer needs.
type StreamService interface {
	NewStream(magnetURI string) (domain.Stream, error)
	Cleanup(id domain.StreamID)
}

type Server struct {
	streams  StreamService
	registry ports.StreamRegistry
	paths    *paths.Service
	logger   *slog.Logger
	handler  http.Handler
	wsHub    *wsHub

	rateLimitRPS   float64
	rateLimitBurst int
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithRegistry(registry ports.StreamRegistry) ServerOption {
	return func(s *Server) {
		s.registry = registry
	}
}

func WithPaths(svc *paths.Service) ServerOption {
	return func(s *Server) {
		s.paths = svc
	}
}

// WithRateLimit overrides the global token-bucket limits.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateLimitRPS = rps
		s.rateLimitBurst = burst
	}
}

func NewServer(streams StreamService, opts ...ServerOption) *Server {
	s := &Server{
		streams:        streams,
		rateLimitRPS:   100,
		rateLimitBurst: 200,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	r := chi.NewRouter()
	r.Post("/stream", s.handleCreateStream)
	r.Get("/stream/{id}/status", s.handleStreamStatus)
	r.Get("/stream/{id}", s.handlePlaylist)
	r.Delete("/stream/{id}", s.handleForceCleanup)
	r.Get("/hls/{id}/{file}", s.handleHLSFile)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, r), "stream-gateway",
		otelhttp.WithFilter(func(req *http.Request) bool {
			p := req.URL.Path
			return p != "/metrics" && p != "/health" && !strings.HasPrefix(p, "/hls/")
		}),
	)
	s.handler = recoveryMiddleware(s.logger,
		rateLimitMiddleware(s.rateLimitRPS, s.rateLimitBurst,
			metricsMiddleware(corsMiddleware(traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// BroadcastStreams pushes current stream summaries to WebSocket clients.
func (s *Server) BroadcastStreams(streams []domain.Stream) {
	if s.wsHub != nil {
		s.wsHub.BroadcastStreams(streams)
	}
}

// Close disconnects all WebSocket clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
