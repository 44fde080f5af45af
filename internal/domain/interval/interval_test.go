package interval_test

import (
	"errors"
	"testing"

	"github.com/okian/spectre/internal/domain/interval"
	"github.com/okian/spectre/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNew(t *testing.T) {
	Convey("Given member intervals", t, func() {
		Convey("When they are disjoint and out of order", func() {
			set, err := interval.New(
				model.Interval{Start: 10, Stop: 20},
				model.Interval{Start: -10, Stop: 0},
			)

			Convey("Then they are stored in time order", func() {
				So(err, ShouldBeNil)
				So(set.Intervals(), ShouldResemble, []model.Interval{{Start: -10, Stop: 0}, {Start: 10, Stop: 20}})
				So(set.Duration(), ShouldEqual, 20.0)
				lo, hi := set.Bounds()
				So(lo, ShouldEqual, -10.0)
				So(hi, ShouldEqual, 20.0)
			})
		})

		Convey("When two members touch", func() {
			set, err := interval.New(model.Interval{Start: 0, Stop: 5}, model.Interval{Start: 5, Stop: 8})

			Convey("Then adjacency is permitted", func() {
				So(err, ShouldBeNil)
				So(set.Len(), ShouldEqual, 2)
				So(set.Contains(5), ShouldBeTrue)
			})
		})

		Convey("When two members overlap", func() {
			_, err := interval.New(model.Interval{Start: 0, Stop: 10}, model.Interval{Start: 5, Stop: 15})

			Convey("Then the set is rejected", func() {
				So(errors.Is(err, interval.ErrOverlappingInterval), ShouldBeTrue)
			})
		})

		Convey("When a member has zero length", func() {
			_, err := interval.Single(3, 3)

			Convey("Then it is invalid", func() {
				So(errors.Is(err, interval.ErrInvalidInterval), ShouldBeTrue)
			})
		})

		Convey("When no member is given", func() {
			_, err := interval.New()
			So(errors.Is(err, interval.ErrInvalidInterval), ShouldBeTrue)
		})
	})
}

func TestContains(t *testing.T) {
	Convey("Given the set [-10,0) and [10,20)", t, func() {
		set := interval.MustParse("-10-0,10-20")

		Convey("Then membership is half-open", func() {
			So(set.Contains(-10), ShouldBeTrue)
			So(set.Contains(-0.5), ShouldBeTrue)
			So(set.Contains(0), ShouldBeFalse)
			So(set.Contains(5), ShouldBeFalse)
			So(set.Contains(10), ShouldBeTrue)
			So(set.Contains(19.999), ShouldBeTrue)
			So(set.Contains(20), ShouldBeFalse)
			So(set.Contains(-11), ShouldBeFalse)
		})
	})
}

func TestEqualAndString(t *testing.T) {
	Convey("Given sets parsed from equivalent specs", t, func() {
		a := interval.MustParse("10-20,-10-0")
		b := interval.MustParse("-10-0", "10-20")
		c := interval.MustParse("-10-0")

		Convey("Then equality ignores input order", func() {
			So(a.Equal(b), ShouldBeTrue)
			So(a.Equal(c), ShouldBeFalse)
			So(a.Equal(nil), ShouldBeFalse)
		})

		Convey("Then String round-trips through Parse", func() {
			So(a.String(), ShouldEqual, "-10-0,10-20")
			So(interval.MustParse(a.String()).Equal(a), ShouldBeTrue)
		})
	})
}
