package types_test

import (
	"sort"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	types "github.com/opsboard/pulse/internal/domain/types"
)

func TestEntryOrdering(t *testing.T) {
	Convey("Given unordered leaderboard entries", t, func() {
		entries := []types.Entry{
			{SubjectID: "E3", Score: 70},
			{SubjectID: "E2", Score: 88.5},
			{SubjectID: "E1", Score: 88.5},
			{SubjectID: "E4", Score: 95},
		}

		Convey("When sorted with Less", func() {
			sort.Slice(entries, func(i, j int) bool { return entries[i].Less(entries[j]) })

			Convey("Then higher scores come first and ties break by subject", func() {
				ids := make([]string, len(entries))
				for i, e := range entries {
					ids[i] = e.SubjectID
				}
				So(ids, ShouldResemble, []string{"E4", "E1", "E2", "E3"})
			})
		})

		Convey("When comparing an entry with itself", func() {
			Convey("Then it is not less than itself", func() {
				So(entries[0].Less(entries[0]), ShouldBeFalse)
			})
		})
	})
}
