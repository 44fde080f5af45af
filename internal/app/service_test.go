package service_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/okian/spectre/internal/adapters/repository"
	service "github.com/okian/spectre/internal/app"
	"github.com/okian/spectre/internal/domain/interval"
	"github.com/okian/spectre/internal/domain/polyfit"
	"github.com/okian/spectre/internal/domain/selection"
	"github.com/okian/spectre/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

var scenarioTimes = []float64{-5, -3, -1, 1, 3, 5, 12, 14, 16}

func scenarioStore() *repository.EventStore {
	store, err := repository.FromArrays(scenarioTimes, make([]int, len(scenarioTimes)), make([]float64, len(scenarioTimes)), 1)
	if err != nil {
		panic(err)
	}
	return store
}

func startedAnalysis(ctx context.Context, opts ...service.Option) *service.Analysis {
	a := service.New(scenarioStore(), opts...)
	So(a.Start(ctx), ShouldBeNil)
	return a
}

func TestAnalysis_New(t *testing.T) {
	Convey("Given a new analysis", t, func() {
		a := service.New(scenarioStore())

		Convey("Then it has an identity and no selections", func() {
			So(a.ID(), ShouldNotBeEmpty)
			So(a.SourceInterval(), ShouldBeNil)
			So(a.BackgroundIntervals(), ShouldBeNil)
			So(a.Models(), ShouldBeNil)
			So(a.Trials(), ShouldBeNil)
			So(a.BackgroundOrder(), ShouldEqual, selection.Auto)
		})

		Convey("Then spectra are unavailable", func() {
			_, err := a.Observed()
			So(errors.Is(err, service.ErrNoSourceInterval), ShouldBeTrue)
			_, err = a.Background()
			So(errors.Is(err, service.ErrNoSourceInterval), ShouldBeTrue)
		})

		Convey("Then selections are refused until it is started", func() {
			err := a.SetSourceInterval(context.Background(), "0-5")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(a.SourceInterval(), ShouldBeNil)
		})
	})

	Convey("Given an analysis with options", t, func() {
		a := service.New(scenarioStore(),
			service.WithWorkerCount(2),
			service.WithBinWidth(0.5),
			service.WithMaxOrder(2),
			service.WithSignificance(0.01),
			service.WithOrder(selection.Order(1)),
			service.WithReference(1234.5, false),
			service.WithLogger(logger.Get()),
		)

		Convey("Then the initial order and reference are reported", func() {
			So(a.BackgroundOrder(), ShouldEqual, selection.Order(1))
			sum := a.Summary()
			So(sum.Reference, ShouldEqual, 1234.5)
			So(sum.RefDefaulted, ShouldBeFalse)
			So(sum.OrderSetting, ShouldEqual, "1")
		})
	})
}

func TestAnalysis_Scenario(t *testing.T) {
	ctx := context.Background()

	Convey("Given the nine-event scenario with a pinned constant background", t, func() {
		a := startedAnalysis(ctx)
		defer a.Stop(ctx)

		So(a.SetBackgroundOrder(ctx, "0"), ShouldBeNil)
		So(a.SetBackgroundIntervals(ctx, "-10-0"), ShouldBeNil)

		Convey("Then the background model is a constant 0.3 counts/s", func() {
			models := a.Models()
			So(len(models), ShouldEqual, 1)
			So(models[0].Order, ShouldEqual, 0)
			So(models[0].Rate(-5), ShouldAlmostEqual, 0.3, 1e-9)
		})

		Convey("Then the background spectrum waits for a source interval", func() {
			_, err := a.Background()
			So(errors.Is(err, service.ErrNoSourceInterval), ShouldBeTrue)
		})

		Convey("When the source interval is selected", func() {
			So(a.SetSourceInterval(ctx, "0-5"), ShouldBeNil)

			Convey("Then the observed spectrum holds two counts over 5 s", func() {
				obs, err := a.Observed()
				So(err, ShouldBeNil)
				So(obs.Counts, ShouldResemble, []float64{2})
				So(obs.Exposure, ShouldEqual, 5.0)
			})

			Convey("Then the background predicts 1.5 counts over the same exposure", func() {
				bkg, err := a.Background()
				So(err, ShouldBeNil)
				So(bkg.Counts[0], ShouldAlmostEqual, 1.5, 1e-9)
				So(bkg.Exposure, ShouldEqual, 5.0)
			})

			Convey("Then selecting it again yields identical spectra", func() {
				obs1, _ := a.Observed()
				bkg1, _ := a.Background()
				So(a.SetSourceInterval(ctx, "0-5"), ShouldBeNil)
				obs2, _ := a.Observed()
				bkg2, _ := a.Background()
				So(obs2, ShouldResemble, obs1)
				So(bkg2, ShouldResemble, bkg1)
			})

			Convey("Then returned spectra are copies", func() {
				obs, _ := a.Observed()
				obs.Counts[0] = 99
				again, _ := a.Observed()
				So(again.Counts[0], ShouldEqual, 2.0)
			})
		})
	})

	Convey("Given a source selection without a background", t, func() {
		a := startedAnalysis(ctx)
		defer a.Stop(ctx)
		So(a.SetSourceInterval(ctx, "0-5"), ShouldBeNil)

		Convey("Then only the observed spectrum exists", func() {
			_, err := a.Observed()
			So(err, ShouldBeNil)
			_, err = a.Background()
			So(errors.Is(err, service.ErrNoBackgroundInterval), ShouldBeTrue)
		})
	})
}

func TestAnalysis_Rejections(t *testing.T) {
	ctx := context.Background()

	Convey("Given an analysis with valid selections", t, func() {
		a := startedAnalysis(ctx, service.WithOrder(selection.Order(0)))
		defer a.Stop(ctx)
		So(a.Init(ctx, "0-5", "-10-0,10-20"), ShouldBeNil)

		models := a.Models()
		obs, _ := a.Observed()
		bkg, _ := a.Background()

		assertUnchanged := func() {
			So(a.SourceInterval().String(), ShouldEqual, "0-5")
			So(a.BackgroundIntervals().String(), ShouldEqual, "-10-0,10-20")
			So(a.BackgroundOrder(), ShouldEqual, selection.Order(0))
			So(a.Models()[0], ShouldPointTo, models[0])
			gotObs, _ := a.Observed()
			gotBkg, _ := a.Background()
			So(gotObs, ShouldResemble, obs)
			So(gotBkg, ShouldResemble, bkg)
		}

		Convey("When an overlapping background is selected", func() {
			err := a.SetBackgroundIntervals(ctx, "0-10,5-15")

			Convey("Then it is rejected and the previous state stays active", func() {
				So(errors.Is(err, interval.ErrOverlappingInterval), ShouldBeTrue)
				assertUnchanged()
			})
		})

		Convey("When a zero-length background is selected", func() {
			err := a.SetBackgroundIntervals(ctx, "3-3")

			Convey("Then it is rejected as invalid", func() {
				So(errors.Is(err, interval.ErrInvalidInterval), ShouldBeTrue)
				assertUnchanged()
			})
		})

		Convey("When several source intervals are selected", func() {
			err := a.SetSourceInterval(ctx, "0-1,2-3")

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrMultipleSourceIntervals), ShouldBeTrue)
				assertUnchanged()
			})
		})

		Convey("When an unsupported order is requested", func() {
			err := a.SetBackgroundOrder(ctx, "7")

			Convey("Then it is rejected", func() {
				So(errors.Is(err, selection.ErrInvalidOrder), ShouldBeTrue)
				assertUnchanged()
			})
		})

		Convey("When a pinned order the background cannot support is requested", func() {
			So(a.SetBackgroundOrder(ctx, "2"), ShouldBeNil)
			models = a.Models()
			err := a.SetBackgroundIntervals(ctx, "-3-0")

			Convey("Then the refit fails and nothing changes", func() {
				So(errors.Is(err, polyfit.ErrInsufficientData), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "channel 0")
				So(a.BackgroundIntervals().String(), ShouldEqual, "-10-0,10-20")
				So(a.Models()[0], ShouldPointTo, models[0])
			})
		})

		Convey("When Init is called with a bad background", func() {
			err := a.Init(ctx, "1-2", "5-1")

			Convey("Then neither selection changes", func() {
				So(errors.Is(err, interval.ErrInvalidInterval), ShouldBeTrue)
				assertUnchanged()
			})
		})
	})
}

func TestAnalysis_OrderChange(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fitted analysis", t, func() {
		a := startedAnalysis(ctx, service.WithOrder(selection.Order(0)))
		defer a.Stop(ctx)
		So(a.Init(ctx, "0-5", "-10-0,10-20"), ShouldBeNil)
		before, _ := a.Background()

		Convey("When the order is changed", func() {
			So(a.SetBackgroundOrder(ctx, "1"), ShouldBeNil)

			Convey("Then every channel is refitted at the new order", func() {
				So(a.BackgroundOrder(), ShouldEqual, selection.Order(1))
				So(a.Models()[0].Order, ShouldEqual, 1)
				So(a.Summary().SelectedOrders, ShouldResemble, []int{1})
			})

			Convey("Then the background spectrum is rebuilt", func() {
				after, err := a.Background()
				So(err, ShouldBeNil)
				So(after.Exposure, ShouldEqual, before.Exposure)
				So(len(after.CountErrors), ShouldEqual, 1)
			})
		})

		Convey("When switched to automatic selection", func() {
			So(a.SetBackgroundOrder(ctx, "auto"), ShouldBeNil)

			Convey("Then the order search is recorded per channel", func() {
				trials := a.Trials()
				So(len(trials), ShouldEqual, 1)
				So(len(trials[0]), ShouldBeGreaterThanOrEqualTo, 1)
				So(trials[0][0].Order, ShouldEqual, 0)
				So(a.Summary().OrderSetting, ShouldEqual, "auto")
			})
		})
	})
}

func TestAnalysis_LightCurveAndSummary(t *testing.T) {
	ctx := context.Background()

	Convey("Given the scenario with a constant background", t, func() {
		a := startedAnalysis(ctx, service.WithOrder(selection.Order(0)))
		defer a.Stop(ctx)

		Convey("When the light curve is requested before any fit", func() {
			lc, err := a.LightCurve(-10, 20, 5)

			Convey("Then it bins all channels without a background rate", func() {
				So(err, ShouldBeNil)
				So(len(lc.Bins), ShouldEqual, 6)
				counts := make([]int, len(lc.Bins))
				for i, b := range lc.Bins {
					counts[i] = b.Counts
					So(b.BackgroundRate, ShouldEqual, 0.0)
				}
				So(counts, ShouldResemble, []int{0, 3, 2, 1, 2, 1})
				So(lc.Bins[1].Rate, ShouldAlmostEqual, 0.6, 1e-12)
				So(lc.Source, ShouldBeNil)
			})
		})

		Convey("When the light curve is requested after a fit", func() {
			So(a.Init(ctx, "0-5", "-10-0,10-20"), ShouldBeNil)
			lc, err := a.LightCurve(-10, 20, 5)

			Convey("Then every bin carries the model rate and the selections", func() {
				So(err, ShouldBeNil)
				for _, b := range lc.Bins {
					So(b.BackgroundRate, ShouldAlmostEqual, 0.3, 1e-9)
				}
				So(len(lc.Source), ShouldEqual, 1)
				So(len(lc.Background), ShouldEqual, 2)
			})
		})

		Convey("When the light curve bin width is invalid", func() {
			_, err := a.LightCurve(-10, 20, 0)
			So(err, ShouldNotBeNil)
		})

		Convey("When the summary is requested", func() {
			So(a.Init(ctx, "0-5", "-10-0,10-20"), ShouldBeNil)
			sum := a.Summary()

			Convey("Then it describes the data and selections", func() {
				So(sum.Events, ShouldEqual, 9)
				So(sum.Channels, ShouldEqual, 1)
				So(sum.FirstEvent, ShouldEqual, -5.0)
				So(sum.LastEvent, ShouldEqual, 16.0)
				So(sum.TotalDeadTime, ShouldEqual, 0.0)
				So(sum.SelectedOrders, ShouldResemble, []int{0})
				So(len(sum.Background), ShouldEqual, 2)
			})
		})
	})
}

func TestAnalysis_StartStop(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started analysis", t, func() {
		a := startedAnalysis(ctx)

		Convey("Then starting again is harmless", func() {
			So(a.Start(ctx), ShouldBeNil)
			a.Stop(ctx)
		})

		Convey("When it is stopped", func() {
			So(a.SetSourceInterval(ctx, "0-5"), ShouldBeNil)
			a.Stop(ctx)

			Convey("Then derived results stay readable and new selections are refused", func() {
				_, err := a.Observed()
				So(err, ShouldBeNil)
				err = a.SetSourceInterval(ctx, "1-2")
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(a.SourceInterval().String(), ShouldEqual, "0-5")
			})
		})
	})
}

func TestAnalysis_StartContext(t *testing.T) {
	Convey("Given an analysis whose start context is cancelled", t, func() {
		startCtx, cancel := context.WithCancel(context.Background())
		a := startedAnalysis(startCtx, service.WithOrder(selection.Order(0)))
		defer a.Stop(context.Background())
		cancel()

		Convey("When the background is selected with a live context", func() {
			errCh := make(chan error, 1)
			go func() { errCh <- a.SetBackgroundIntervals(context.Background(), "-10-0") }()

			Convey("Then the workers still fit it", func() {
				select {
				case err := <-errCh:
					So(err, ShouldBeNil)
					So(a.Models()[0].Rate(-5), ShouldAlmostEqual, 0.3, 1e-9)
				case <-time.After(5 * time.Second):
					t.Fatal("SetBackgroundIntervals blocked after the start context was cancelled")
				}
			})
		})
	})
}

func TestAnalysis_LogFields(t *testing.T) {
	Convey("Given an analysis logging JSON", t, func() {
		var buf bytes.Buffer
		So(logger.Init(logger.WithWriter(&buf), logger.WithFormat("json")), ShouldBeNil)
		defer func() { _ = logger.Init() }()

		ctx := context.Background()
		a := startedAnalysis(ctx)
		defer a.Stop(ctx)

		Convey("When a source interval is applied", func() {
			So(a.SetSourceInterval(ctx, "0-5"), ShouldBeNil)

			var line string
			for _, l := range strings.Split(buf.String(), "\n") {
				if strings.Contains(l, "selection applied") {
					line = l
				}
			}

			Convey("Then the selection does not clash with the caller field", func() {
				So(line, ShouldContainSubstring, `"source_interval":"0-5"`)
				So(strings.Count(line, `"source":`), ShouldEqual, 1)
			})
		})
	})
}
