// Package api exposes the neteqd stats/debug HTTP surface: session
// listing, snapshot history, and the prometheus scrape endpoint, all
// behind a lightweight bearer-token auth scheme.
package api

import (
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/flowpbx/neteq/internal/api/middleware"
	"github.com/flowpbx/neteq/internal/config"
	neteqmetrics "github.com/flowpbx/neteq/internal/metrics"
	"github.com/flowpbx/neteq/internal/statsdb"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router    *chi.Mux
	cfg       *config.Config
	sessions  neteqmetrics.SessionLister
	snapshots statsdb.SnapshotRepository
	jwtSecret []byte
	limiter   *middleware.IPRateLimiter
}

// NewServer creates the stats/debug HTTP handler with all routes mounted.
// sessions lists the live decoder sessions; snapshots serves their
// persisted history. jwtSecret authenticates both token issuance and
// bearer validation for the protected routes.
func NewServer(cfg *config.Config, sessions neteqmetrics.SessionLister, snapshots statsdb.SnapshotRepository, jwtSecret []byte) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		cfg:       cfg,
		sessions:  sessions,
		snapshots: snapshots,
		jwtSecret: jwtSecret,
		limiter:   middleware.NewIPRateLimiter(middleware.AuthRateLimitConfig()),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.cfg.CORSOrigins)))
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders(false))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.limiter))
			r.Post("/auth/token", s.handleAuthToken)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireDebugAuth(s.jwtSecret))
			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{label}/snapshots", s.handleSessionSnapshots)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	slog.Info("stats api routes mounted")
}

// handleHealth reports liveness; unauthenticated so orchestrators and
// load balancers can probe it without a token.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleAuthToken exchanges the configured JWT secret for a short-lived
// bearer token. The secret itself never becomes a standing credential in
// client hands beyond this one exchange.
func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operator string `json:"operator"`
		Secret   string `json:"secret"`
	}
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Operator == "" {
		writeError(w, http.StatusBadRequest, "operator is required")
		return
	}

	given, err := hex.DecodeString(req.Secret)
	if err != nil || subtle.ConstantTimeCompare(given, s.jwtSecret) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid secret")
		return
	}

	token, expiresAt, err := middleware.GenerateDebugToken(s.jwtSecret, req.Operator)
	if err != nil {
		slog.Error("auth: failed to generate token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt,
	})
}

// handleListSessions returns a live snapshot of every active decoder
// session's jitter-buffer and arrival statistics.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions()

	out := make([]map[string]any, 0, len(sessions))
	for _, sess := range sessions {
		entry := map[string]any{
			"label":            sess.Label,
			"session_id":       sess.ID,
			"packets_buffered": sess.Provider.NumPacketsBuffered(),
		}
		bufStats := sess.Provider.BufferStats()
		entry["discarded_duplicate"] = bufStats.DiscardedDuplicate
		entry["discarded_overflow"] = bufStats.DiscardedOverflow

		if arr := sess.Provider.ArrivalStats(); arr != nil {
			entry["cumulative_lost"] = arr.CumulativeLost()
			entry["fraction_lost"] = arr.FractionLost()
			entry["jitter_samples"] = arr.JitterSamples()
			entry["optimal_level_q8"] = arr.OptimalBufferLevelQ8()
		}
		out = append(out, entry)
	}

	writeJSON(w, http.StatusOK, out)
}

// handleSessionSnapshots returns persisted stats history for one session
// label, newest first.
func (s *Server) handleSessionSnapshots(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")

	pagination, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	snaps, err := s.snapshots.ListBySession(r.Context(), label, pagination.Limit)
	if err != nil {
		slog.Error("snapshots: query failed", "session", label, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, snaps)
}
