package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	model "github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
)

func TestIdentity(t *testing.T) {
	convey.Convey("Given identities", t, func() {
		a := model.Identity{SubjectKey: "E1", Period: period.MustParse("2024-03")}
		b := model.Identity{SubjectKey: "E1", Period: period.MustParse("2024-03")}

		convey.Convey("Then equal fields mean equal identities", func() {
			convey.So(a == b, convey.ShouldBeTrue)
			m := map[model.Identity]int{a: 1}
			convey.So(m[b], convey.ShouldEqual, 1)
			convey.So(a.String(), convey.ShouldEqual, "E1/2024-03")
		})

		convey.Convey("Then validation rejects blank parts", func() {
			convey.So(a.Validate(), convey.ShouldBeNil)
			err := model.Identity{SubjectKey: "  ", Period: a.Period}.Validate()
			convey.So(errors.Is(err, model.ErrInvalidIdentity), convey.ShouldBeTrue)
			err = model.Identity{SubjectKey: "E1"}.Validate()
			convey.So(errors.Is(err, model.ErrInvalidIdentity), convey.ShouldBeTrue)
		})
	})
}

func TestFieldsClone(t *testing.T) {
	convey.Convey("Given fields with nested values", t, func() {
		f := model.Fields{
			"fieldA": 1.0,
			"clients": []any{
				map[string]any{"name": "acme", "ops": []any{"seo"}},
			},
			"tags": []string{"a"},
		}

		convey.Convey("When the clone is mutated", func() {
			c := f.Clone()
			c["fieldA"] = 2.0
			c["clients"].([]any)[0].(map[string]any)["name"] = "other"
			c["tags"].([]string)[0] = "z"

			convey.Convey("Then the original is untouched", func() {
				convey.So(f["fieldA"], convey.ShouldEqual, 1.0)
				convey.So(f["clients"].([]any)[0].(map[string]any)["name"], convey.ShouldEqual, "acme")
				convey.So(f["tags"].([]string)[0], convey.ShouldEqual, "a")
			})
		})

		convey.Convey("When a nil map is cloned", func() {
			var nilFields model.Fields
			convey.So(nilFields.Clone(), convey.ShouldNotBeNil)
		})
	})
}

func TestFieldsNumbers(t *testing.T) {
	convey.Convey("Given loosely typed form values", t, func() {
		f := model.Fields{
			"float":   2.5,
			"int":     3,
			"jsonnum": json.Number("4"),
			"text":    " 5 ",
			"word":    "five",
			"flag":    true,
			"nothing": nil,
		}

		convey.Convey("Then Number reads numeric shapes", func() {
			n, ok := f.Number("float")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(n, convey.ShouldEqual, 2.5)

			n, ok = f.Number("text")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(n, convey.ShouldEqual, 5)

			_, ok = f.Number("word")
			convey.So(ok, convey.ShouldBeFalse)
			_, ok = f.Number("missing")
			convey.So(ok, convey.ShouldBeFalse)
			_, ok = f.Number("nothing")
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("Then Numbers skips text and non-numeric values", func() {
			convey.So(f.Numbers(), convey.ShouldResemble, map[string]float64{
				"float": 2.5, "int": 3, "jsonnum": 4,
			})
		})

		convey.Convey("Then Text trims strings", func() {
			convey.So(f.Text("text"), convey.ShouldEqual, "5")
			convey.So(f.Text("float"), convey.ShouldEqual, "")
		})
	})
}

func TestScoreEvent(t *testing.T) {
	convey.Convey("Given two score events for the same record", t, func() {
		ts := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
		a := model.NewScoreEvent("E1", period.MustParse("2024-03"), ts)
		b := model.NewScoreEvent("E1", period.MustParse("2024-03"), ts)

		convey.Convey("Then each gets its own id", func() {
			convey.So(a.EventID, convey.ShouldNotBeBlank)
			convey.So(a.EventID, convey.ShouldNotEqual, b.EventID)
			convey.So(a.SubjectID, convey.ShouldEqual, "E1")
		})
	})

	convey.Convey("Given a metric record", t, func() {
		r := model.MetricRecord{Values: map[string]float64{"kpi": 80}}
		convey.So(r.Value("kpi"), convey.ShouldEqual, 80)
		convey.So(r.Value("missing"), convey.ShouldEqual, 0)
	})
}
