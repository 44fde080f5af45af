// Package synth generates synthetic time-tagged event lists with known
// per-channel background rates, for tests and for exercising the pipeline
// without detector data.
package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/spectre/internal/domain/model"
	"github.com/okian/spectre/pkg/logger"
)

// Result is a generated event list.
type Result struct {
	RunID    string
	Events   []model.Event // sorted by arrival time
	Expected []float64     // per-channel expected counts over the window
}

// Generate samples an event list from cfg. The output depends only on cfg:
// every channel draws from its own stream seeded by (Seed, channel), so the
// worker count does not change the result.
func Generate(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	runID := uuid.New().String()
	log := logger.Get().Named("synth").With(logger.String("run_id", runID))
	log.Info(ctx, "generating events",
		logger.Int("channels", len(cfg.Background)),
		logger.Float64("start", cfg.Start),
		logger.Float64("stop", cfg.Stop),
		logger.Int("workers", cfg.Workers))

	type channelResult struct {
		channel  int
		events   []model.Event
		expected float64
		err      error
	}

	nChannels := len(cfg.Background)
	resultChan := make(chan channelResult, nChannels)
	jobs := make(chan int, nChannels)
	for c := 0; c < nChannels; c++ {
		jobs <- c
	}
	close(jobs)

	workerCount := min(cfg.Workers, nChannels)
	for w := 0; w < workerCount; w++ {
		go func() {
			for c := range jobs {
				if err := ctx.Err(); err != nil {
					resultChan <- channelResult{channel: c, err: err}
					continue
				}
				events, expected := generateChannel(&cfg, c)
				resultChan <- channelResult{channel: c, events: events, expected: expected}
			}
		}()
	}

	perChannel := make([][]model.Event, nChannels)
	expected := make([]float64, nChannels)
	for i := 0; i < nChannels; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during event generation: %w", ctx.Err())
		case r := <-resultChan:
			if r.err != nil {
				return nil, fmt.Errorf("failed to generate channel %d: %w", r.channel, r.err)
			}
			perChannel[r.channel] = r.events
			expected[r.channel] = r.expected
		}
	}

	var events []model.Event
	for _, ch := range perChannel {
		events = append(events, ch...)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time < events[j].Time })

	log.Info(ctx, "generated events successfully",
		logger.Int("count", len(events)),
		logger.Float64("expected", floats.Sum(expected)))

	return &Result{RunID: runID, Events: events, Expected: expected}, nil
}

func generateChannel(cfg *Config, channel int) ([]model.Event, float64) {
	src := rand.NewPCG(cfg.Seed, uint64(channel))
	rng := rand.New(src)

	dead := cfg.DeadTimeNormal
	if channel == len(cfg.Background)-1 {
		dead = cfg.DeadTimeOverflow
	}

	var (
		events   []model.Event
		expected float64
	)
	coef := cfg.Background[channel]
	steps := int(math.Ceil((cfg.Stop - cfg.Start) / cfg.Step))
	for k := 0; k < steps; k++ {
		lo := cfg.Start + float64(k)*cfg.Step
		hi := math.Min(lo+cfg.Step, cfg.Stop)
		if !(lo < hi) {
			break
		}

		lambda := math.Max(0, PolyIntegral(coef, lo, hi))
		if p := cfg.Pulse; p != nil {
			overlap := math.Min(hi, p.Stop) - math.Max(lo, p.Start)
			if overlap > 0 {
				lambda += p.Rates[channel] * overlap
			}
		}
		if lambda <= 0 {
			continue
		}
		expected += lambda

		n := int(distuv.Poisson{Lambda: lambda, Src: src}.Rand())
		for i := 0; i < n; i++ {
			events = append(events, model.Event{
				Time:     lo + (hi-lo)*rng.Float64(),
				Channel:  channel,
				DeadTime: dead,
			})
		}
	}
	return events, expected
}

// PolyIntegral integrates Σ coef[k] t^k over [a, b].
func PolyIntegral(coef []float64, a, b float64) float64 {
	var sum float64
	pa, pb := a, b
	for k, c := range coef {
		sum += c * (pb - pa) / float64(k+1)
		pa *= a
		pb *= b
	}
	return sum
}
