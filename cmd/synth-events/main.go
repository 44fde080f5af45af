package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/okian/spectre/internal/adapters/ingest"
	"github.com/okian/spectre/internal/domain/model"
	"github.com/okian/spectre/internal/synth"
	"github.com/okian/spectre/pkg/logger"
)

// Default generator flags.
const (
	defaultChannels = 8
	defaultRate     = 20.0
	defaultStart    = -100.0
	defaultStop     = 100.0
)

func main() {
	var (
		start      = flag.Float64("start", defaultStart, "Window start in seconds relative to the trigger")
		stop       = flag.Float64("stop", defaultStop, "Window stop in seconds relative to the trigger")
		channels   = flag.Int("channels", defaultChannels, "Number of energy channels")
		rate       = flag.Float64("rate", defaultRate, "Background rate per channel in counts/s")
		slope      = flag.Float64("slope", 0, "Background rate slope per channel in counts/s^2")
		pulseStart = flag.Float64("pulse-start", 0, "Pulse start in seconds")
		pulseStop  = flag.Float64("pulse-stop", 0, "Pulse stop in seconds; equal to pulse-start disables the pulse")
		pulseRate  = flag.Float64("pulse-rate", 0, "Pulse rate per channel in counts/s")
		trigger    = flag.Float64("trigger", 0, "Trigger time added to every event time")
		seed       = flag.Uint64("seed", 1, "Random seed")
		workers    = flag.Int("workers", runtime.NumCPU(), "Number of generator workers")
		output     = flag.String("output", "", "Output CSV file (default: stdout)")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := synth.Config{
		Start:      *start,
		Stop:       *stop,
		Background: make([][]float64, *channels),
		Seed:       *seed,
		Workers:    *workers,
	}
	for c := range cfg.Background {
		cfg.Background[c] = []float64{*rate, *slope}
	}
	if *pulseStop > *pulseStart {
		rates := make([]float64, *channels)
		for c := range rates {
			rates[c] = *pulseRate
		}
		cfg.Pulse = &synth.Pulse{Start: *pulseStart, Stop: *pulseStop, Rates: rates}
	}

	if err := generate(ctx, cfg, *trigger, *output, os.Stdout); err != nil {
		logger.Get().Error(ctx, "generation failed", logger.Error(err))
		cancel()
		os.Exit(1)
	}
}

func generate(ctx context.Context, cfg synth.Config, trigger float64, output string, stdout io.Writer) error {
	res, err := synth.Generate(ctx, cfg)
	if err != nil {
		return err
	}

	events := make([]model.Event, len(res.Events))
	for i, e := range res.Events {
		events[i] = e
		events[i].Time += trigger
	}
	start, stop := cfg.Start+trigger, cfg.Stop+trigger
	header := ingest.Header{TriggerTime: &trigger, Start: &start, Stop: &stop}

	w := stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := ingest.WriteCSV(w, header, events); err != nil {
		return err
	}

	logger.Get().Info(ctx, "events generated",
		logger.String("run_id", res.RunID),
		logger.Int("events", len(events)),
		logger.Int("channels", len(cfg.Background)),
	)
	return nil
}
