// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/opsboard/pulse/internal/app"
	"github.com/opsboard/pulse/internal/domain/types"
	"github.com/opsboard/pulse/internal/domain/workflow"
	"github.com/opsboard/pulse/pkg/logger"
	"github.com/opsboard/pulse/pkg/metrics"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Each handler depends only on its
// slice of this bundle.
type Dependencies interface {
	SessionDependencies
	ScoreDependencies
	LeaderboardDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxLeaderboardLimit caps GET /leaderboard/{period}?limit.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithRateLimit limits each client to rps requests per second with the given
// burst. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.limiter = NewRateLimiter(rps, burst)
		} else {
			s.limiter = nil
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	maxLimit int
	limiter  *RateLimiter
	log      logger.Logger

	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	sessionsHandler    *SessionsHandler
	scoresHandler      *ScoresHandler
	leaderboardHandler *LeaderboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{maxLimit: defaultMaxLimit}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrGet(s.log, "api")
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.sessionsHandler = NewSessionsHandler(deps, s.log)
	s.scoresHandler = NewScoresHandler(deps, s.log)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit, s.log)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	sh := s.sessionsHandler
	s.route(mux, "POST /sessions", "sessions", sh.HandleOpen)
	s.route(mux, "GET /sessions/{id}", "session", sh.HandleGet)
	s.route(mux, "DELETE /sessions/{id}", "session", sh.HandleClose)
	s.route(mux, "PATCH /sessions/{id}/fields", "session_fields", sh.HandleUpdateFields)
	s.route(mux, "POST /sessions/{id}/attendance/{day}", "session_attendance", sh.HandleCycleAttendance)
	s.route(mux, "POST /sessions/{id}/save", "session_save", sh.HandleSave)
	s.route(mux, "POST /sessions/{id}/resume", "session_resume", sh.HandleResume)
	s.route(mux, "POST /sessions/{id}/discard", "session_discard", sh.HandleDiscard)
	s.route(mux, "POST /sessions/{id}/submit", "session_submit", sh.HandleSubmit)

	sc := s.scoresHandler
	s.route(mux, "GET /months/{subject}", "months", sc.HandleMonths)
	s.route(mux, "PUT /metrics/{subject}/{period}", "metrics", sc.HandlePutMetrics)
	s.route(mux, "GET /scores/{subject}/{period}", "scores", sc.HandleGetScore)
	s.route(mux, "GET /trends/{subject}/{period}", "trends", sc.HandleGetTrends)
	s.route(mux, "GET /history/{subject}/{period}", "history", sc.HandleGetHistory)

	s.route(mux, "GET /leaderboard/{period}", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
}

// route registers a rate-limited, instrumented handler.
func (s *Server) route(mux *http.ServeMux, pattern, endpoint string, h http.HandlerFunc) {
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	resp := errorResponse{Code: code, Message: http.StatusText(status)}
	if err != nil {
		resp.Message = err.Error()
		var verr *workflow.ValidationError
		if errors.As(err, &verr) {
			resp.Fields = verr.Messages
		}
	}
	writeJSON(w, status, resp)
}

// respondError maps err to a status, logs server-side failures and writes
// the error body.
func respondError(ctx context.Context, w http.ResponseWriter, log logger.Logger, endpoint string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.String("endpoint", endpoint), logger.Error(err))
	}
	metrics.RecordHTTPError(endpoint, code)
	writeError(w, status, code, err)
}

// decodeBody reads a JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return nil
}

// Compile-time check that the service satisfies the handler dependencies.
var _ Dependencies = (*service.Service)(nil)
