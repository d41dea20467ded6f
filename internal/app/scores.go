package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/opsboard/pulse/internal/adapters/mq/queue"
	workerpool "github.com/opsboard/pulse/internal/adapters/mq/worker"
	"github.com/opsboard/pulse/internal/adapters/repository"
	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
	"github.com/opsboard/pulse/internal/domain/scoring"
	"github.com/opsboard/pulse/internal/domain/trend"
	"github.com/opsboard/pulse/internal/domain/types"
	"github.com/opsboard/pulse/internal/domain/workflow"
	"github.com/opsboard/pulse/pkg/logger"
	"github.com/opsboard/pulse/pkg/metrics"
)

// DefaultKind is used when a score request names no kind.
const DefaultKind = scoring.KindPerformance

// History window bounds, in months.
const (
	DefaultHistoryMonths = 6
	MaxHistoryMonths     = 24
)

// ScoreReport is a composite score with its month-over-month trend.
type ScoreReport struct {
	Score    scoring.CompositeScore  `json:"score"`
	Display  int                     `json:"display"`
	Grade    string                  `json:"grade"`
	Previous *scoring.CompositeScore `json:"previous,omitempty"`
	Trend    trend.Result            `json:"trend"`
	Rank     *types.Entry            `json:"rank,omitempty"`
	Penalty  *scoring.Penalty        `json:"late_penalty,omitempty"`
}

// TrendReport lists per-metric changes against the previous period.
type TrendReport struct {
	SubjectID string                  `json:"subject_id"`
	Period    period.Key              `json:"period"`
	Previous  period.Key              `json:"previous"`
	Metrics   map[string]trend.Result `json:"metrics"`
}

// HistoryPoint is one month of a score history.
type HistoryPoint struct {
	Period  period.Key             `json:"period"`
	Label   string                 `json:"label"`
	Score   scoring.CompositeScore `json:"score"`
	Display int                    `json:"display"`
	Grade   string                 `json:"grade"`
	// Change against the previous point; nil on the first point.
	Change *trend.Result `json:"change,omitempty"`
}

// HistoryReport is a subject's composite score month by month, oldest first.
// Months without a record, or whose record has no component of the kind, are
// left out.
type HistoryReport struct {
	SubjectID string         `json:"subject_id"`
	Kind      scoring.Kind   `json:"kind"`
	From      period.Key     `json:"from"`
	To        period.Key     `json:"to"`
	Points    []HistoryPoint `json:"points"`
}

// PutAck reports whether a metric update queued a recompute or was coalesced
// into one already pending.
type PutAck struct {
	Record    model.MetricRecord `json:"record"`
	Coalesced bool               `json:"coalesced"`
}

// PutMetrics upserts subject's record for the period and requests a score
// recompute.
func (s *Service) PutMetrics(ctx context.Context, subject, rawPeriod string, values map[string]float64) (PutAck, error) {
	if err := s.running(); err != nil {
		return PutAck{}, err
	}
	p, err := period.Parse(rawPeriod)
	if err != nil {
		return PutAck{}, err
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return PutAck{}, fmt.Errorf("%w: empty subject", model.ErrInvalidIdentity)
	}

	rec := model.MetricRecord{SubjectID: subject, Period: p, Values: values, UpdatedAt: s.clock.Now()}
	s.metricMu.Lock()
	err = s.metricStore.Upsert(ctx, rec)
	s.metricMu.Unlock()
	if err != nil {
		return PutAck{}, fmt.Errorf("upsert metrics %s %s: %w", subject, p, err)
	}
	coalesced, err := s.requestRecompute(ctx, subject, p)
	if err != nil {
		return PutAck{Record: rec}, err
	}
	return PutAck{Record: rec, Coalesced: coalesced}, nil
}

// mergeMetrics overlays values onto the stored record for the identity,
// keeping metrics the values do not name, and requests a recompute.
func (s *Service) mergeMetrics(ctx context.Context, id model.Identity, values map[string]float64) (model.MetricRecord, error) {
	s.metricMu.Lock()
	stored, found, err := s.metricStore.Record(ctx, id.SubjectKey, id.Period)
	if err != nil {
		s.metricMu.Unlock()
		return model.MetricRecord{}, fmt.Errorf("load metrics %s: %w", id, err)
	}
	merged := make(map[string]float64, len(stored.Values)+len(values))
	if found {
		maps.Copy(merged, stored.Values)
	}
	maps.Copy(merged, values)
	rec := model.MetricRecord{SubjectID: id.SubjectKey, Period: id.Period, Values: merged, UpdatedAt: s.clock.Now()}
	err = s.metricStore.Upsert(ctx, rec)
	s.metricMu.Unlock()
	if err != nil {
		return model.MetricRecord{}, fmt.Errorf("upsert metrics %s: %w", id, err)
	}
	if _, err := s.requestRecompute(ctx, id.SubjectKey, id.Period); err != nil {
		return rec, err
	}
	return rec, nil
}

// requestRecompute enqueues a ScoreEvent unless one for the same subject and
// period is still pending.
func (s *Service) requestRecompute(ctx context.Context, subject string, p period.Key) (bool, error) {
	ev := model.NewScoreEvent(subject, p, s.clock.Now())
	key := workerpool.DedupeKey(ev)
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordEventDuplicate()
		return true, nil
	}
	if err := s.queue.Enqueue(ctx, ev); err != nil {
		s.deduper.Unrecord(ctx, key)
		if errors.Is(err, queue.ErrFull) {
			return false, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return false, fmt.Errorf("enqueue recompute: %w", err)
	}
	metrics.UpdateQueueSize(s.queue.Len(ctx))
	s.logger.Debug(ctx, "recompute queued", logger.String("key", key), logger.String("eventID", ev.EventID))
	return false, nil
}

// Score computes subject's composite score of kind for the period, with the
// trend against the previous period. A missing previous record compares
// against zero.
func (s *Service) Score(ctx context.Context, subject, rawPeriod, rawKind string) (ScoreReport, error) {
	if err := s.running(); err != nil {
		return ScoreReport{}, err
	}
	p, err := period.Parse(rawPeriod)
	if err != nil {
		return ScoreReport{}, err
	}
	kind := DefaultKind
	if rawKind != "" {
		if kind, err = scoring.ParseKind(rawKind); err != nil {
			return ScoreReport{}, err
		}
	}

	var (
		cur, prev       model.MetricRecord
		hasCur, hasPrev bool
		sub             model.Submission
		hasSub          bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cur, hasCur, err = s.metricStore.Record(gctx, subject, p)
		return err
	})
	if prevP := p.Previous(); prevP != p {
		g.Go(func() error {
			var err error
			prev, hasPrev, err = s.metricStore.Record(gctx, subject, prevP)
			return err
		})
	}
	g.Go(func() error {
		var err error
		sub, hasSub, err = s.submissions.Fetch(gctx, model.Identity{SubjectKey: subject, Period: p})
		return err
	})
	if err := g.Wait(); err != nil {
		return ScoreReport{}, fmt.Errorf("load history %s %s: %w", subject, p, err)
	}
	if !hasCur {
		return ScoreReport{}, fmt.Errorf("%w: %s %s", ErrNoRecord, subject, p)
	}

	score, err := s.scorer.Score(ctx, scoring.Input{Kind: kind, Record: cur})
	if err != nil {
		return ScoreReport{}, err
	}
	report := ScoreReport{
		Score:   score,
		Display: score.Rounded(),
		Grade:   scoring.Grade(score.Total),
	}

	prevTotal := 0.0
	if hasPrev {
		prevScore, err := s.scorer.Score(ctx, scoring.Input{Kind: kind, Record: prev})
		if err != nil {
			return ScoreReport{}, err
		}
		report.Previous = &prevScore
		prevTotal = prevScore.Total
	}
	report.Trend = trend.Compute(score.Total, prevTotal)

	if len(score.Breakdown) > 0 {
		if entry, err := s.board.Rank(ctx, p, kind, subject); err == nil {
			report.Rank = &entry
		}
	}
	if hasSub {
		penalty := scoring.LatePenalty(p, sub.SubmittedAt, s.graceDays)
		report.Penalty = &penalty
	}
	return report, nil
}

// Trends compares every metric of subject's record for the period with the
// previous period's record.
func (s *Service) Trends(ctx context.Context, subject, rawPeriod string) (TrendReport, error) {
	if err := s.running(); err != nil {
		return TrendReport{}, err
	}
	p, err := period.Parse(rawPeriod)
	if err != nil {
		return TrendReport{}, err
	}

	var (
		cur, prev model.MetricRecord
		hasCur    bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cur, hasCur, err = s.metricStore.Record(gctx, subject, p)
		return err
	})
	g.Go(func() error {
		var err error
		prev, _, err = s.metricStore.Record(gctx, subject, p.Previous())
		return err
	})
	if err := g.Wait(); err != nil {
		return TrendReport{}, fmt.Errorf("load history %s %s: %w", subject, p, err)
	}
	if !hasCur {
		return TrendReport{}, fmt.Errorf("%w: %s %s", ErrNoRecord, subject, p)
	}
	return TrendReport{
		SubjectID: subject,
		Period:    p,
		Previous:  p.Previous(),
		Metrics:   trend.Between(cur, prev),
	}, nil
}

// History scores subject's records for the months-long window ending at the
// period and chains the month-over-month changes. months 0 selects
// DefaultHistoryMonths.
func (s *Service) History(ctx context.Context, subject, rawPeriod, rawKind string, months int) (HistoryReport, error) {
	if err := s.running(); err != nil {
		return HistoryReport{}, err
	}
	p, err := period.Parse(rawPeriod)
	if err != nil {
		return HistoryReport{}, err
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return HistoryReport{}, fmt.Errorf("%w: empty subject", model.ErrInvalidIdentity)
	}
	kind := DefaultKind
	if rawKind != "" {
		if kind, err = scoring.ParseKind(rawKind); err != nil {
			return HistoryReport{}, err
		}
	}
	if months == 0 {
		months = DefaultHistoryMonths
	}
	if months < 1 || months > MaxHistoryMonths {
		return HistoryReport{}, fmt.Errorf("%w: months %d", ErrInvalidLimit, months)
	}

	window := slices.Collect(period.Range(p, months))
	slices.Reverse(window)
	report := HistoryReport{SubjectID: subject, Kind: kind, From: window[0], To: p, Points: []HistoryPoint{}}

	recs, err := s.metricStore.Records(ctx, subject, report.From, report.To)
	if err != nil {
		return HistoryReport{}, fmt.Errorf("load history %s %s..%s: %w", subject, report.From, report.To, err)
	}
	totals := make([]float64, 0, len(recs))
	for _, rec := range recs {
		score, err := s.scorer.Score(ctx, scoring.Input{Kind: kind, Record: rec})
		if err != nil {
			return HistoryReport{}, err
		}
		if len(score.Breakdown) == 0 {
			continue
		}
		report.Points = append(report.Points, HistoryPoint{
			Period:  rec.Period,
			Label:   rec.Period.ShortLabel(),
			Score:   score,
			Display: score.Rounded(),
			Grade:   scoring.Grade(score.Total),
		})
		totals = append(totals, score.Total)
	}
	for i, change := range trend.Series(totals) {
		report.Points[i+1].Change = &change
	}
	return report, nil
}

// Leaderboard returns up to limit ranked entries for the period and kind.
func (s *Service) Leaderboard(ctx context.Context, rawPeriod, rawKind string, limit int) ([]types.Entry, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	p, err := period.Parse(rawPeriod)
	if err != nil {
		return nil, err
	}
	kind := DefaultKind
	if rawKind != "" {
		if kind, err = scoring.ParseKind(rawKind); err != nil {
			return nil, err
		}
	}
	entries, err := s.board.TopN(ctx, p, kind, limit)
	if errors.Is(err, repository.ErrInvalidLimit) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	return entries, err
}

// MonthStatuses reports the submission state of each month of year.
func (s *Service) MonthStatuses(ctx context.Context, subject string, year int) ([]workflow.MonthStatus, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: empty subject", model.ErrInvalidIdentity)
	}
	if year < 1 || year > 9999 {
		return nil, fmt.Errorf("%w: year %d", period.ErrInvalidPeriod, year)
	}
	return workflow.MonthStatuses(ctx, s.submissions, s.drafts, subject, period.Year(year))
}
