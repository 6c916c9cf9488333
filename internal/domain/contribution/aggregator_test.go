package contribution_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	contribution "github.com/teamforge/merit/internal/domain/contribution"
	"github.com/teamforge/merit/internal/domain/model"
)

func rec(workItem, contributor string, score, weight string) model.ContributionRecord {
	return model.ContributionRecord{
		WorkItemID:    workItem,
		ContributorID: contributor,
		Type:          model.ContributionTask,
		RawScore:      decimal.RequireFromString(score),
		Weight:        decimal.RequireFromString(weight),
	}
}

func TestValidate(t *testing.T) {
	Convey("Given contribution record validation", t, func() {
		Convey("When the record is within bounds", func() {
			So(contribution.Validate(rec("wi-1", "alice", "100", "1")), ShouldBeNil)
			So(contribution.Validate(rec("wi-1", "alice", "0", "0")), ShouldBeNil)
			So(contribution.Validate(rec("wi-1", "alice", "73.25", "0.4")), ShouldBeNil)
		})

		Convey("When the raw score is out of range", func() {
			Convey("Then a negative score is rejected, not clamped", func() {
				err := contribution.Validate(rec("wi-1", "alice", "-1", "0.5"))
				So(errors.Is(err, contribution.ErrInvalidValue), ShouldBeTrue)
			})
			Convey("And a score above 100 is rejected", func() {
				err := contribution.Validate(rec("wi-1", "alice", "100.01", "0.5"))
				So(errors.Is(err, contribution.ErrInvalidValue), ShouldBeTrue)
			})
		})

		Convey("When the weight is out of range", func() {
			So(errors.Is(contribution.Validate(rec("wi-1", "alice", "50", "-0.1")), contribution.ErrInvalidValue), ShouldBeTrue)
			So(errors.Is(contribution.Validate(rec("wi-1", "alice", "50", "1.1")), contribution.ErrInvalidValue), ShouldBeTrue)
		})

		Convey("When the contribution type is unknown", func() {
			bad := rec("wi-1", "alice", "50", "0.5")
			bad.Type = model.ContributionType("clickops")
			So(errors.Is(contribution.Validate(bad), contribution.ErrInvalidValue), ShouldBeTrue)
		})
	})
}

func TestAggregate(t *testing.T) {
	Convey("Given a set of contribution records", t, func() {
		records := []model.ContributionRecord{
			rec("wi-1", "alice", "80", "0.5"),
			rec("wi-1", "alice", "60", "0.25"),
			rec("wi-1", "bob", "90", "1"),
			rec("wi-2", "carol", "100", "1"), // different work item, ignored
		}

		Convey("When aggregating for a work item", func() {
			totals, err := contribution.Aggregate("wi-1", records)
			So(err, ShouldBeNil)

			Convey("Then totals are exact weighted sums per participant", func() {
				So(totals, ShouldHaveLength, 2)
				// 80*0.5 + 60*0.25 = 55
				So(totals["alice"].Equal(decimal.RequireFromString("55")), ShouldBeTrue)
				So(totals["bob"].Equal(decimal.RequireFromString("90")), ShouldBeTrue)
			})

			Convey("And records for other work items are not included", func() {
				_, ok := totals["carol"]
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When aggregating exact decimal fractions", func() {
			// 0.1*0.3 would drift under float64; decimal keeps 0.03 exact.
			totals, err := contribution.Aggregate("wi-3", []model.ContributionRecord{
				rec("wi-3", "dave", "0.1", "0.3"),
				rec("wi-3", "dave", "0.2", "0.3"),
			})
			So(err, ShouldBeNil)
			So(totals["dave"].Equal(decimal.RequireFromString("0.09")), ShouldBeTrue)
		})

		Convey("When a record is out of range", func() {
			bad := []model.ContributionRecord{rec("wi-1", "alice", "120", "0.5")}
			_, err := contribution.Aggregate("wi-1", bad)
			So(errors.Is(err, contribution.ErrInvalidValue), ShouldBeTrue)
		})

		Convey("When there are no records", func() {
			totals, err := contribution.Aggregate("wi-9", nil)
			So(err, ShouldBeNil)
			So(totals, ShouldBeEmpty)
		})
	})
}

func TestTotals(t *testing.T) {
	Convey("Given an aggregation map", t, func() {
		totals := map[string]decimal.Decimal{
			"bob":   decimal.NewFromInt(90),
			"alice": decimal.NewFromInt(55),
		}

		Convey("When converting to derived rows", func() {
			rows := contribution.Totals("wi-1", totals)

			Convey("Then rows are ordered by participant id", func() {
				So(rows, ShouldHaveLength, 2)
				So(rows[0].ParticipantID, ShouldEqual, "alice")
				So(rows[1].ParticipantID, ShouldEqual, "bob")
				So(rows[0].WorkItemID, ShouldEqual, "wi-1")
			})
		})
	})
}
