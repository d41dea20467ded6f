// Package scoring computes 0-100 composite scores from named sub-scores and
// weight tables, and the per-kind component builders that feed it.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/opsboard/pulse/internal/domain/period"
)

// Default clamp range applied to every component before weighting.
const (
	DefaultClampMin = 0
	DefaultClampMax = 100
)

// WeightTable maps a component name to its weight. Weights need not sum to 1;
// Aggregate normalizes by the weights of the components that participate.
type WeightTable map[string]float64

// Validate rejects negative or non-finite weights.
func (w WeightTable) Validate() error {
	for name, weight := range w {
		if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidWeights, name, weight)
		}
	}
	return nil
}

// Sum returns the total of all positive weights.
func (w WeightTable) Sum() float64 {
	var total float64
	for _, weight := range w {
		if weight > 0 && !math.IsInf(weight, 0) {
			total += weight
		}
	}
	return total
}

// Clone returns a copy of the table.
func (w WeightTable) Clone() WeightTable {
	out := make(WeightTable, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// EqualWeights gives every name weight 1.
func EqualWeights(names ...string) WeightTable {
	w := make(WeightTable, len(names))
	for _, n := range names {
		w[n] = 1
	}
	return w
}

// CompositeScore is a derived, never-persisted aggregate.
type CompositeScore struct {
	SubjectID string             `json:"subject_id"`
	Period    period.Key         `json:"period"`
	Kind      Kind               `json:"kind"`
	Total     float64            `json:"total"`
	Breakdown map[string]float64 `json:"breakdown"`
}

// Rounded is the display value of Total, rounded half away from zero.
func (c CompositeScore) Rounded() int {
	return int(math.Round(c.Total))
}

// AggregatorOption applies a configuration option to the Aggregator.
type AggregatorOption func(*Aggregator)

// WithClampRange sets the range each component is clamped into. Ranges that
// are empty or not finite are ignored.
func WithClampRange(minValue, maxValue float64) AggregatorOption {
	return func(a *Aggregator) {
		if math.IsNaN(minValue) || math.IsNaN(maxValue) || math.IsInf(minValue, 0) || math.IsInf(maxValue, 0) {
			return
		}
		if minValue < maxValue {
			a.minValue = minValue
			a.maxValue = maxValue
		}
	}
}

// Aggregator computes weighted means of clamped components. It holds only
// immutable configuration, so one instance can serve concurrent callers.
type Aggregator struct {
	minValue float64
	maxValue float64
}

// NewAggregator creates an aggregator clamping into [0,100] unless overridden.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{minValue: DefaultClampMin, maxValue: DefaultClampMax}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ClampRange returns the configured clamp bounds.
func (a *Aggregator) ClampRange() (float64, float64) {
	return a.minValue, a.maxValue
}

// Aggregate clamps each component into the clamp range and returns the
// weighted mean over components present in both maps with a positive weight.
// A component missing from components is excluded, not zero-filled, so the
// remaining weights are renormalized. NaN values count as missing.
func (a *Aggregator) Aggregate(components map[string]float64, weights WeightTable) CompositeScore {
	names := make([]string, 0, len(components))
	for name, value := range components {
		w, ok := weights[name]
		if !ok || !(w > 0) || math.IsInf(w, 0) || math.IsNaN(value) {
			continue
		}
		names = append(names, name)
	}
	// Fixed summation order keeps results bit-for-bit reproducible.
	sort.Strings(names)

	breakdown := make(map[string]float64, len(names))
	var weighted, denom float64
	for _, name := range names {
		v := a.clamp(components[name])
		w := weights[name]
		breakdown[name] = v
		weighted += v * w
		denom += w
	}
	if denom == 0 {
		return CompositeScore{Breakdown: map[string]float64{}}
	}
	return CompositeScore{
		Total:     a.clamp(weighted / denom),
		Breakdown: breakdown,
	}
}

func (a *Aggregator) clamp(v float64) float64 {
	return math.Max(a.minValue, math.Min(a.maxValue, v))
}
