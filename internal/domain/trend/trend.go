// Package trend computes month-over-month change for any metric.
package trend

import (
	"math"
	"sort"

	"github.com/opsboard/pulse/internal/domain/model"
)

// Direction of a change.
type Direction string

// Directions.
const (
	Up   Direction = "up"
	Down Direction = "down"
	Flat Direction = "flat"
)

// Result describes the change from previous to current.
type Result struct {
	Current       float64   `json:"current"`
	Previous      float64   `json:"previous"`
	Delta         float64   `json:"delta"`
	PercentChange float64   `json:"percent_change"`
	Direction     Direction `json:"direction"`
}

// Compute returns the change from previous to current. A zero previous value
// yields a 0% change rather than an infinite one. Non-finite inputs are read
// as 0 and the percent change is always finite, so the function never fails.
func Compute(current, previous float64) Result {
	current = finite(current)
	previous = finite(previous)
	delta := current - previous

	pct := 0.0
	if previous != 0 {
		pct = finite(delta / previous * 100)
	}

	dir := Flat
	switch {
	case delta > 0:
		dir = Up
	case delta < 0:
		dir = Down
	}

	return Result{
		Current:       current,
		Previous:      previous,
		Delta:         delta,
		PercentChange: pct,
		Direction:     dir,
	}
}

// Between computes a Result for every metric named in either record. A metric
// missing from one side counts as 0 there.
func Between(current, previous model.MetricRecord) map[string]Result {
	names := make(map[string]struct{}, len(current.Values)+len(previous.Values))
	for n := range current.Values {
		names[n] = struct{}{}
	}
	for n := range previous.Values {
		names[n] = struct{}{}
	}
	out := make(map[string]Result, len(names))
	for n := range names {
		out[n] = Compute(current.Values[n], previous.Values[n])
	}
	return out
}

// Series returns the consecutive changes of a chronological series; the
// result has one element fewer than values.
func Series(values []float64) []Result {
	if len(values) < 2 {
		return nil
	}
	out := make([]Result, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		out = append(out, Compute(values[i], values[i-1]))
	}
	return out
}

// Names returns the metric names of a Between result in sorted order.
func Names(results map[string]Result) []string {
	out := make([]string, 0, len(results))
	for n := range results {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
