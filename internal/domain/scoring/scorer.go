package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
	"github.com/opsboard/pulse/pkg/metrics"
)

// HistorySource reads period-keyed metric records.
type HistorySource interface {
	// Record returns the subject's record for p; found is false when absent.
	Record(ctx context.Context, subjectID string, p period.Key) (rec model.MetricRecord, found bool, err error)
	// Records returns the subject's records in [from, to], ordered by period.
	Records(ctx context.Context, subjectID string, from, to period.Key) ([]model.MetricRecord, error)
}

// MetricStore is a HistorySource that also accepts writes.
type MetricStore interface {
	HistorySource
	Upsert(ctx context.Context, rec model.MetricRecord) error
}

// Input names the kind to compute and the record to compute it from.
type Input struct {
	Kind   Kind
	Record model.MetricRecord
}

// Scorer computes a composite score from an input.
type Scorer interface {
	// Score computes a score, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (CompositeScore, error)
}

// Option applies a configuration option to the TableScorer.
type Option func(*TableScorer)

// WithTables replaces the weight tables.
func WithTables(t Tables) Option {
	return func(s *TableScorer) {
		if t != nil {
			s.tables = t
		}
	}
}

// WithAggregator replaces the aggregator, for a custom clamp range.
func WithAggregator(a *Aggregator) Option {
	return func(s *TableScorer) {
		if a != nil {
			s.agg = a
		}
	}
}

// WithDisciplineTargets changes the counts that earn full discipline marks.
func WithDisciplineTargets(t DisciplineTargets) Option {
	return func(s *TableScorer) {
		s.extractors = DefaultExtractors(t)
	}
}

// TableScorer resolves a kind's weight table and component builder, then
// aggregates the record.
type TableScorer struct {
	tables     Tables
	extractors map[Kind]Extractor
	agg        *Aggregator
}

// NewTableScorer creates a scorer with the default tables and targets.
func NewTableScorer(opts ...Option) *TableScorer {
	s := &TableScorer{
		tables:     DefaultTables(),
		extractors: DefaultExtractors(DefaultDisciplineTargets()),
		agg:        NewAggregator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kinds lists the kinds this scorer can compute, sorted.
func (s *TableScorer) Kinds() []Kind {
	out := make([]Kind, 0, len(s.tables))
	for k := range s.tables {
		if _, ok := s.extractors[k]; ok {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Score computes the composite score of in.Kind for in.Record.
func (s *TableScorer) Score(ctx context.Context, in Input) (CompositeScore, error) {
	if err := ctx.Err(); err != nil {
		return CompositeScore{}, fmt.Errorf("context cancelled: %w", err)
	}
	weights, ok := s.tables.For(in.Kind)
	extract, hasExtractor := s.extractors[in.Kind]
	if !ok || !hasExtractor {
		metrics.RecordScoringError()
		return CompositeScore{}, fmt.Errorf("%w: %q", ErrUnknownKind, in.Kind)
	}

	start := time.Now()
	components := extract(in.Record.Values)
	if len(weights) == 0 {
		names := make([]string, 0, len(components))
		for name := range components {
			names = append(names, name)
		}
		weights = EqualWeights(names...)
	}

	score := s.agg.Aggregate(components, weights)
	score.SubjectID = in.Record.SubjectID
	score.Period = in.Record.Period
	score.Kind = in.Kind

	metrics.RecordScoreComputation(string(in.Kind), float64(time.Since(start).Microseconds())/1000)
	return score, nil
}
