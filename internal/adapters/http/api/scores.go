package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	service "github.com/opsboard/pulse/internal/app"
	"github.com/opsboard/pulse/internal/domain/workflow"
	"github.com/opsboard/pulse/pkg/logger"
)

// ScoreDependencies defines metric, score and progress operations.
type ScoreDependencies interface {
	PutMetrics(ctx context.Context, subject, period string, values map[string]float64) (service.PutAck, error)
	Score(ctx context.Context, subject, period, kind string) (service.ScoreReport, error)
	Trends(ctx context.Context, subject, period string) (service.TrendReport, error)
	History(ctx context.Context, subject, period, kind string, months int) (service.HistoryReport, error)
	MonthStatuses(ctx context.Context, subject string, year int) ([]workflow.MonthStatus, error)
}

// metricsRequest mirrors the OpenAPI schema for PUT /metrics/{subject}/{period}.
type metricsRequest struct {
	Values map[string]float64 `json:"values"`
}

type monthsResponse struct {
	Subject string                 `json:"subject"`
	Year    int                    `json:"year"`
	Months  []workflow.MonthStatus `json:"months"`
}

// ScoresHandler handles metric, score, trend and month status requests.
type ScoresHandler struct {
	deps ScoreDependencies
	log  logger.Logger
	now  func() time.Time
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies, log logger.Logger) *ScoresHandler {
	return &ScoresHandler{deps: deps, log: logger.OrGet(log, "api"), now: time.Now}
}

// HandlePutMetrics handles PUT /metrics/{subject}/{period}.
func (h *ScoresHandler) HandlePutMetrics(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_metrics"
	var req metricsRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, "metrics", WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Values) == 0 {
		h.fail(w, r, "metrics", WrapKind(op, ErrBadRequest, errors.New("missing values")))
		return
	}
	ack, err := h.deps.PutMetrics(r.Context(), r.PathValue("subject"), r.PathValue("period"), req.Values)
	if err != nil {
		h.fail(w, r, "metrics", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

// HandleGetScore handles GET /scores/{subject}/{period}?kind=.
func (h *ScoresHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Score(r.Context(), r.PathValue("subject"), r.PathValue("period"), r.URL.Query().Get("kind"))
	if err != nil {
		h.fail(w, r, "scores", Wrap("api.get_score", err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleGetTrends handles GET /trends/{subject}/{period}.
func (h *ScoresHandler) HandleGetTrends(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Trends(r.Context(), r.PathValue("subject"), r.PathValue("period"))
	if err != nil {
		h.fail(w, r, "trends", Wrap("api.get_trends", err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleGetHistory handles GET /history/{subject}/{period}?kind=&months=.
func (h *ScoresHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	months := 0
	if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(w, r, "history", WrapKind(op, ErrBadRequest, err))
			return
		}
		months = n
	}
	report, err := h.deps.History(r.Context(), r.PathValue("subject"), r.PathValue("period"), r.URL.Query().Get("kind"), months)
	if err != nil {
		h.fail(w, r, "history", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleMonths handles GET /months/{subject}?year=YYYY. The year defaults to
// the current one.
func (h *ScoresHandler) HandleMonths(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_months"
	year := h.now().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(w, r, "months", WrapKind(op, ErrBadRequest, err))
			return
		}
		year = y
	}
	subject := r.PathValue("subject")
	months, err := h.deps.MonthStatuses(r.Context(), subject, year)
	if err != nil {
		h.fail(w, r, "months", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, monthsResponse{Subject: subject, Year: year, Months: months})
}

func (h *ScoresHandler) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	respondError(r.Context(), w, h.log, endpoint, err)
}
