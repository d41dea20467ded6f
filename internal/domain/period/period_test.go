package period

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/opsboard/pulse/pkg/clock"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParse(t *testing.T) {
	Convey("Given period strings", t, func() {
		Convey("When the input is well formed", func() {
			k, err := Parse("2024-03")

			Convey("Then the year and month are read", func() {
				So(err, ShouldBeNil)
				So(k.Year(), ShouldEqual, 2024)
				So(k.Month(), ShouldEqual, time.March)
				So(k.String(), ShouldEqual, "2024-03")
			})
		})

		Convey("When the input is malformed", func() {
			for _, in := range []string{"", "2024-3", "2024-13", "2024-00", "24-03", "2024/03", "abcd-ef", "2024-03-01", "0000-01", " 2024-03"} {
				_, err := Parse(in)
				So(errors.Is(err, ErrInvalidPeriod), ShouldBeTrue)
			}
		})

		Convey("When MustParse gets bad input it panics", func() {
			So(func() { MustParse("nope") }, ShouldPanic)
		})
	})
}

func TestArithmetic(t *testing.T) {
	Convey("Given month arithmetic", t, func() {
		Convey("Then previous and next roll over the year", func() {
			So(MustParse("2024-01").Previous(), ShouldResemble, MustParse("2023-12"))
			So(MustParse("2023-12").Next(), ShouldResemble, MustParse("2024-01"))
			So(MustParse("2024-03").AddMonths(-14), ShouldResemble, MustParse("2023-01"))
			So(MustParse("2024-03").AddMonths(22), ShouldResemble, MustParse("2026-01"))
		})

		Convey("Then results stay inside 0001-01 and 9999-12", func() {
			So(MustParse("0001-02").AddMonths(-3), ShouldResemble, MustParse("0001-01"))
			So(MustParse("9999-11").Next().Next(), ShouldResemble, MustParse("9999-12"))
			_, err := Parse(MustParse("0001-01").Previous().String())
			So(err, ShouldBeNil)
		})

		Convey("Then ordering follows the calendar", func() {
			a, b := MustParse("2023-12"), MustParse("2024-01")
			So(a.Before(b), ShouldBeTrue)
			So(b.After(a), ShouldBeTrue)
			So(a.Compare(a), ShouldEqual, 0)
		})

		Convey("Then the zero key stays zero", func() {
			var z Key
			So(z.IsZero(), ShouldBeTrue)
			So(z.Next().IsZero(), ShouldBeTrue)
			So(z.String(), ShouldEqual, "")
		})
	})
}

func TestCurrent(t *testing.T) {
	Convey("Given a clock", t, func() {
		loc := time.FixedZone("IST", 5*3600+1800)
		ts := time.Date(2024, 3, 31, 23, 30, 0, 0, loc)

		Convey("Then Current uses the time's own calendar fields", func() {
			So(Current(ts), ShouldResemble, MustParse("2024-03"))
			So(Current(ts.UTC()), ShouldResemble, MustParse("2024-03"))
		})

		Convey("Then Now reads the injected clock", func() {
			c := clock.NewFake(time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local))
			So(Now(c), ShouldResemble, MustParse("2024-06"))
		})
	})
}

func TestLabels(t *testing.T) {
	Convey("Given a period", t, func() {
		k := MustParse("2024-03")

		Convey("Then labels are English and locale stable", func() {
			So(k.Label(), ShouldEqual, "March 2024")
			So(k.ShortLabel(), ShouldEqual, "Mar 2024")
		})
	})
}

func TestRange(t *testing.T) {
	Convey("Given a range ending at 2024-02", t, func() {
		seq := Range(MustParse("2024-02"), 4)

		Convey("Then keys come newest first", func() {
			got := slices.Collect(seq)
			So(got, ShouldResemble, []Key{
				MustParse("2024-02"), MustParse("2024-01"), MustParse("2023-12"), MustParse("2023-11"),
			})
		})

		Convey("Then the sequence can be restarted", func() {
			first := slices.Collect(seq)
			second := slices.Collect(seq)
			So(second, ShouldResemble, first)
		})

		Convey("Then early exit stops the sequence", func() {
			n := 0
			for range seq {
				n++
				if n == 2 {
					break
				}
			}
			So(n, ShouldEqual, 2)
		})

		Convey("Then a non-positive length is empty", func() {
			So(slices.Collect(Range(MustParse("2024-02"), 0)), ShouldBeEmpty)
		})

		Convey("Then a range reaching past year 1 stops at 0001-01", func() {
			got := slices.Collect(Range(MustParse("0001-02"), 4))
			So(got, ShouldResemble, []Key{MustParse("0001-02"), MustParse("0001-01")})
			for _, k := range got {
				_, err := Parse(k.String())
				So(err, ShouldBeNil)
			}
		})

		Convey("Then the zero key yields nothing", func() {
			So(slices.Collect(Range(Key{}, 3)), ShouldBeEmpty)
		})
	})

	Convey("Given a calendar year", t, func() {
		keys := Year(2024)
		So(len(keys), ShouldEqual, 12)
		So(keys[0], ShouldResemble, MustParse("2024-01"))
		So(keys[11], ShouldResemble, MustParse("2024-12"))
	})
}

func TestDays(t *testing.T) {
	Convey("Given calendar helpers", t, func() {
		Convey("Then Days handles leap years", func() {
			So(MustParse("2024-02").Days(), ShouldEqual, 29)
			So(MustParse("2023-02").Days(), ShouldEqual, 28)
		})

		Convey("Then first and last day bracket the month", func() {
			k := MustParse("2024-04")
			So(k.FirstDay(time.UTC), ShouldEqual, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
			So(k.LastDay(time.UTC), ShouldEqual, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC))
		})

		Convey("Then working days skip Sundays, alternate Saturdays and holidays", func() {
			cal := DefaultCalendar()
			So(MustParse("2024-03").WorkingDays(cal), ShouldEqual, 23)
			So(MustParse("2024-01").WorkingDays(cal), ShouldEqual, 24)
			So(MustParse("2024-03").WorkingDays(Calendar{AlternateSaturdays: true}), ShouldEqual, 24)
			So(Key{}.WorkingDays(cal), ShouldEqual, 0)
		})
	})
}

func TestTextMarshalling(t *testing.T) {
	Convey("Given a struct holding a period", t, func() {
		type doc struct {
			Period Key `json:"period"`
		}

		Convey("Then it encodes as YYYY-MM", func() {
			b, err := json.Marshal(doc{Period: MustParse("2024-03")})
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `{"period":"2024-03"}`)
		})

		Convey("Then decoding validates the value", func() {
			var d doc
			So(json.Unmarshal([]byte(`{"period":"2024-11"}`), &d), ShouldBeNil)
			So(d.Period, ShouldResemble, MustParse("2024-11"))

			err := json.Unmarshal([]byte(`{"period":"2024-99"}`), &d)
			So(errors.Is(err, ErrInvalidPeriod), ShouldBeTrue)
		})
	})
}
