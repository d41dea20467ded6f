package scoring_test

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	scoring "github.com/opsboard/pulse/internal/domain/scoring"
)

var componentNames = []interface{}{"attendance", "communication", "meetings", "submissions", "kpi"}

// TestAggregateTotalInRange verifies the total never leaves the clamp range.
// Property: 0 <= Aggregate(C, W).Total <= 100 for any C, W
func TestAggregateTotalInRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)
	agg := scoring.NewAggregator()

	properties.Property("total is within [0,100]", prop.ForAll(
		func(components map[string]float64, weights map[string]float64) bool {
			total := agg.Aggregate(components, weights).Total
			return total >= 0 && total <= 100 && !math.IsNaN(total)
		},
		gen.MapOf(gen.OneConstOf(componentNames...).Map(toString), gen.Float64Range(-1e6, 1e6)),
		gen.MapOf(gen.OneConstOf(componentNames...).Map(toString), gen.Float64Range(-2, 10)),
	))

	properties.TestingRun(t)
}

// TestAggregateRenormalizes verifies a missing component is excluded rather
// than counted as zero.
// Property: Aggregate({a: v}, {a: wa, b: wb}).Total == clamp(v)
func TestAggregateRenormalizes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)
	agg := scoring.NewAggregator()

	properties.Property("single present component equals its clamped value", prop.ForAll(
		func(v, wa, wb float64) bool {
			got := agg.Aggregate(map[string]float64{"a": v}, scoring.WeightTable{"a": wa, "b": wb}).Total
			want := math.Max(0, math.Min(100, v))
			return math.Abs(got-want) < 1e-9
		},
		gen.Float64Range(-500, 500),
		gen.Float64Range(0.01, 10),
		gen.Float64Range(0.01, 10),
	))

	properties.TestingRun(t)
}

// TestAggregateScaleInvariant verifies weights are normalized by their sum.
// Property: Aggregate(C, W) == Aggregate(C, k*W) for k > 0
func TestAggregateScaleInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)
	agg := scoring.NewAggregator()

	properties.Property("scaling every weight leaves the total unchanged", prop.ForAll(
		func(a, b, wa, wb, k float64) bool {
			c := map[string]float64{"a": a, "b": b}
			base := agg.Aggregate(c, scoring.WeightTable{"a": wa, "b": wb}).Total
			scaled := agg.Aggregate(c, scoring.WeightTable{"a": wa * k, "b": wb * k}).Total
			return math.Abs(base-scaled) < 1e-9
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.Float64Range(0.01, 5),
		gen.Float64Range(0.01, 5),
		gen.Float64Range(0.1, 1000),
	))

	properties.TestingRun(t)
}

func toString(v interface{}) string { return v.(string) }
