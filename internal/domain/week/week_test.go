package week_test

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/okian/ladder/internal/domain/week"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKey(t *testing.T) {
	bangkok := time.FixedZone("ICT", 7*60*60)

	Convey("Given instants in a fixed zone", t, func() {
		Convey("When the instant is a Wednesday afternoon", func() {
			at := time.Date(2026, time.October, 21, 15, 30, 0, 0, bangkok)

			Convey("Then the key is that week's Monday", func() {
				So(week.Key(at, bangkok), ShouldEqual, "2026-10-19")
			})
		})

		Convey("When the instant is Sunday 23:59:59.999", func() {
			sunday := time.Date(2026, time.October, 25, 23, 59, 59, 999_000_000, bangkok)
			monday := sunday.Add(time.Millisecond)

			Convey("Then Sunday maps back and the next Monday starts a new week", func() {
				So(week.Key(sunday, bangkok), ShouldEqual, "2026-10-19")
				So(week.Key(monday, bangkok), ShouldEqual, "2026-10-26")

				a, _ := week.ParseKey(week.Key(sunday, bangkok), bangkok)
				b, _ := week.ParseKey(week.Key(monday, bangkok), bangkok)
				So(b.Sub(a), ShouldEqual, 7*24*time.Hour)
			})
		})

		Convey("When the week straddles a month and year boundary", func() {
			at := time.Date(2027, time.January, 2, 9, 0, 0, 0, bangkok)

			Convey("Then the Monday is in the previous year", func() {
				So(week.Key(at, bangkok), ShouldEqual, "2026-12-28")
			})
		})

		Convey("When the same UTC instant is viewed from another zone", func() {
			// Monday 02:00 in Bangkok is still Sunday evening in UTC.
			at := time.Date(2026, time.October, 26, 2, 0, 0, 0, bangkok)

			Convey("Then the key follows the configured location", func() {
				So(week.Key(at, bangkok), ShouldEqual, "2026-10-26")
				So(week.Key(at, time.UTC), ShouldEqual, "2026-10-19")
			})
		})
	})
}

func TestBounds(t *testing.T) {
	Convey("Given a zone with daylight saving", t, func() {
		ny, err := time.LoadLocation("America/New_York")
		So(err, ShouldBeNil)

		Convey("When the week contains the November fall-back", func() {
			at := time.Date(2026, time.November, 1, 12, 0, 0, 0, ny)
			start, end := week.Bounds(at, ny)

			Convey("Then both bounds are local midnights on Mondays", func() {
				So(start.Weekday(), ShouldEqual, time.Monday)
				So(end.Weekday(), ShouldEqual, time.Monday)
				So(start.Hour(), ShouldEqual, 0)
				So(end.Hour(), ShouldEqual, 0)
				So(week.Key(start, ny), ShouldEqual, "2026-10-26")
				So(end.Sub(start), ShouldEqual, 7*24*time.Hour+time.Hour)
				So(week.Contains(start, at), ShouldBeTrue)
				So(week.Contains(start, end), ShouldBeFalse)
				So(week.Contains(start, end.Add(-time.Nanosecond)), ShouldBeTrue)
			})
		})
	})
}

func TestParseKey(t *testing.T) {
	Convey("Given week key strings", t, func() {
		Convey("When the key is a Monday", func() {
			d, err := week.ParseKey("2026-10-19", time.UTC)

			Convey("Then it parses to local midnight", func() {
				So(err, ShouldBeNil)
				So(d, ShouldEqual, time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC))
			})
		})

		Convey("When the key is malformed or not a Monday", func() {
			for _, k := range []string{"", "2026-10-20", "19/10/2026", "2026-13-01"} {
				_, err := week.ParseKey(k, time.UTC)
				So(errors.Is(err, week.ErrInvalidKey), ShouldBeTrue)
			}
		})
	})
}
