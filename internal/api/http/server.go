package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"moviefinder/internal/domain"
	"moviefinder/internal/telemetry"
)

type SearchService interface {
	Search(ctx context.Context, query string) (domain.SearchResult, error)
	Trending(ctx context.Context, limit int) []domain.SearchCounter
}

// HealthChecker probes the counter store for /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type MovieSource interface {
	Enabled() bool
}

const (
	maxQueryLength        = 500
	defaultDebounce       = 500 * time.Millisecond
	defaultRateLimitRPS   = 50
	defaultRateLimitBurst = 100
	healthProbeTimeout    = 2 * time.Second
)

type Server struct {
	search         SearchService
	health         HealthChecker
	movies         MovieSource
	logger         *slog.Logger
	debounce       time.Duration
	allowedOrigins []string
	rateLimitRPS   float64
	rateLimitBurst int
	hub            *wsHub
	handler        http.Handler
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithHealthChecker(checker HealthChecker) ServerOption {
	return func(s *Server) {
		s.health = checker
	}
}

func WithMovieSource(movies MovieSource) ServerOption {
	return func(s *Server) {
		s.movies = movies
	}
}

// WithDebounce sets the quiet interval for live search over the websocket.
func WithDebounce(delay time.Duration) ServerOption {
	return func(s *Server) {
		if delay >= 0 {
			s.debounce = delay
		}
	}
}

// WithCORS takes a comma separated origin list; "*" allows any origin.
func WithCORS(origins string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = parseCSV(origins)
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.rateLimitRPS = rps
			s.rateLimitBurst = burst
		}
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	s := &Server{
		search:         searchService,
		logger:         slog.Default(),
		debounce:       defaultDebounce,
		rateLimitRPS:   defaultRateLimitRPS,
		rateLimitBurst: defaultRateLimitBurst,
	}
	for _, option := range options {
		if option != nil {
			option(s)
		}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.hub = newWSHub(s.logger)
	go s.hub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/movies", s.handleMovies)
	mux.HandleFunc("/trending", s.handleTrending)
	mux.HandleFunc("/ws/search", s.handleWSSearch)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "moviefinder",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	s.handler = recoveryMiddleware(s.logger,
		rateLimitMiddleware(s.rateLimitRPS, s.rateLimitBurst,
			metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close disconnects all live search clients.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	store := "ok"
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Warn("counter store health check failed", slog.String("error", err.Error()))
			store = "unavailable"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"store":     store,
		"tmdb":      s.movies != nil && s.movies.Enabled(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleMovies(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/movies" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	// The query goes upstream exactly as typed.
	query := r.URL.Query().Get("query")
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}

	result, err := s.search.Search(r.Context(), query)
	if err != nil {
		s.logger.Warn("movie search failed",
			slog.String("query", telemetry.Truncate(query, 80)),
			slog.String("error", err.Error()),
		)
		writeSearchError(w, err)
		return
	}
	s.logger.Debug("movie search completed",
		slog.String("query", telemetry.Truncate(query, 80)),
		slog.String("state", string(result.State)),
		slog.Int("items", len(result.Items)),
	)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/trending" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit, err := parsePositiveInt(r, "limit", domain.DefaultTrendingLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	items := []domain.SearchCounter{}
	if s.search != nil {
		items = s.search.Trending(r.Context(), limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func writeSearchError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrFetchFailure) {
		writeError(w, http.StatusBadGateway, "fetch_failed", domain.FetchFailureMessage)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			out = append(out, value)
		}
	}
	return out
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
