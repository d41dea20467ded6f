package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/opsboard/pulse/internal/adapters/repository"
	"github.com/opsboard/pulse/internal/domain/draft"
	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
	"github.com/opsboard/pulse/internal/domain/scoring"
)

func TestLeaderboards(t *testing.T) {
	Convey("Given leaderboards for March 2024", t, func() {
		ctx := context.Background()
		lb := repository.NewLeaderboards()
		mar := period.MustParse("2024-03")
		kind := scoring.KindDiscipline

		So(lb.Set(ctx, mar, kind, "E1", 64), ShouldBeNil)
		So(lb.Set(ctx, mar, kind, "E2", 91), ShouldBeNil)
		So(lb.Set(ctx, mar, kind, "E3", 64), ShouldBeNil)
		So(lb.Set(ctx, mar, kind, "E4", 40.4), ShouldBeNil)

		Convey("When reading the top entries", func() {
			top, err := lb.TopN(ctx, mar, kind, 3)

			Convey("Then they are ordered with shared ranks for ties", func() {
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 3)
				So(top[0].SubjectID, ShouldEqual, "E2")
				So(top[0].Rank, ShouldEqual, 1)
				So(top[0].Grade, ShouldEqual, scoring.GradeExcellent)
				So(top[1].SubjectID, ShouldEqual, "E1")
				So(top[2].SubjectID, ShouldEqual, "E3")
				So(top[1].Rank, ShouldEqual, 2)
				So(top[2].Rank, ShouldEqual, 2)
			})
		})

		Convey("When a score is recomputed lower", func() {
			So(lb.Set(ctx, mar, kind, "E2", 10), ShouldBeNil)

			Convey("Then the latest score replaces the old one", func() {
				e, err := lb.Rank(ctx, mar, kind, "E2")
				So(err, ShouldBeNil)
				So(e.Score, ShouldEqual, 10)
				So(e.Rank, ShouldEqual, 3)
				So(lb.Count(ctx, mar, kind), ShouldEqual, 4)
			})
		})

		Convey("When a subject is removed", func() {
			So(lb.Remove(ctx, mar, kind, "E2"), ShouldBeNil)
			So(lb.Remove(ctx, mar, kind, "E2"), ShouldBeNil)
			So(lb.Remove(ctx, mar, scoring.KindGrowth, "E2"), ShouldBeNil)

			Convey("Then it leaves the board and the others move up", func() {
				_, err := lb.Rank(ctx, mar, kind, "E2")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(lb.Count(ctx, mar, kind), ShouldEqual, 3)
				top, err := lb.TopN(ctx, mar, kind, 1)
				So(err, ShouldBeNil)
				So(top[0].SubjectID, ShouldEqual, "E1")
				So(top[0].Rank, ShouldEqual, 1)
			})
		})

		Convey("When looking up unknown subjects or boards", func() {
			_, err1 := lb.Rank(ctx, mar, kind, "nobody")
			_, err2 := lb.Rank(ctx, mar.Next(), kind, "E1")
			top, err3 := lb.TopN(ctx, mar, scoring.KindKPI, 5)

			Convey("Then not found and empty results come back", func() {
				So(errors.Is(err1, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(err2, repository.ErrNotFound), ShouldBeTrue)
				So(err3, ShouldBeNil)
				So(top, ShouldBeEmpty)
			})
		})

		Convey("When the limit is invalid", func() {
			_, err := lb.TopN(ctx, mar, kind, 0)

			Convey("Then ErrInvalidLimit is returned", func() {
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})

		Convey("When many subjects are inserted", func() {
			for i := 0; i < 500; i++ {
				So(lb.Set(ctx, mar, kind, fmt.Sprintf("S%03d", i), float64(i%100)), ShouldBeNil)
			}
			top, err := lb.TopN(ctx, mar, kind, 504)

			Convey("Then the in-order walk stays sorted", func() {
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 504)
				for i := 1; i < len(top); i++ {
					So(top[i-1].Less(top[i]), ShouldBeTrue)
				}
			})
		})
	})
}

func TestMemoryStores(t *testing.T) {
	Convey("Given the in-memory collaborators", t, func() {
		ctx := context.Background()
		id := model.Identity{SubjectKey: "E1", Period: period.MustParse("2024-03")}

		Convey("When a draft is stored and the caller mutates its fields", func() {
			d := repository.NewMemoryDrafts()
			f := model.Fields{"a": 1.0}
			So(d.Upsert(ctx, draft.Payload{Identity: id, Fields: f, IsDraft: true}), ShouldBeNil)
			f["a"] = 2.0

			Convey("Then the stored copy is unaffected and delete is idempotent", func() {
				p, ok, err := d.Fetch(ctx, id)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(p.Fields["a"], ShouldEqual, 1.0)
				So(d.Delete(ctx, id), ShouldBeNil)
				So(d.Delete(ctx, id), ShouldBeNil)
				_, ok, _ = d.Fetch(ctx, id)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a submission is stored", func() {
			s := repository.NewMemorySubmissions()
			So(s.Upsert(ctx, model.Submission{Identity: id, Fields: model.Fields{"a": 1.0}}), ShouldBeNil)

			Convey("Then it exists and can be fetched", func() {
				ok, err := s.Exists(ctx, id)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				got, found, _ := s.Fetch(ctx, id)
				So(found, ShouldBeTrue)
				So(got.Fields["a"], ShouldEqual, 1.0)
			})
		})

		Convey("When metric records span several periods", func() {
			m := repository.NewMemoryMetrics()
			for _, p := range []string{"2024-04", "2024-01", "2024-03", "2023-12"} {
				So(m.Upsert(ctx, model.MetricRecord{SubjectID: "E1", Period: period.MustParse(p), Values: map[string]float64{"x": 1}}), ShouldBeNil)
			}
			So(m.Upsert(ctx, model.MetricRecord{SubjectID: "E2", Period: period.MustParse("2024-02")}), ShouldBeNil)

			Convey("Then Records returns the range in period order", func() {
				recs, err := m.Records(ctx, "E1", period.MustParse("2024-01"), period.MustParse("2024-03"))
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 2)
				So(recs[0].Period.String(), ShouldEqual, "2024-01")
				So(recs[1].Period.String(), ShouldEqual, "2024-03")
			})

			Convey("Then Record finds exact periods only", func() {
				_, ok, _ := m.Record(ctx, "E1", period.MustParse("2024-02"))
				So(ok, ShouldBeFalse)
				rec, ok, _ := m.Record(ctx, "E1", period.MustParse("2024-04"))
				So(ok, ShouldBeTrue)
				So(rec.Value("x"), ShouldEqual, 1)
			})
		})
	})
}
