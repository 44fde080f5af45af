package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/spectre/internal/adapters/ingest"
	app "github.com/okian/spectre/internal/app"
	"github.com/okian/spectre/internal/config"
	"github.com/okian/spectre/internal/domain/selection"
	"github.com/okian/spectre/internal/domain/types"
	"github.com/okian/spectre/pkg/logger"
	"github.com/okian/spectre/pkg/metrics"
)

// Run timeout constants.
const (
	runTimeout      = 10 * time.Minute
	shutdownTimeout = 30 * time.Second
)

var errNoEventsFile = errors.New("events_file is not set")

func main() {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load()
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(2)
	}

	// Initialize logging on stderr; stdout carries the report
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to sync logger: " + err.Error() + "\n")
		}
	}()

	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(context.Background(), "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		loggerInstance.Error(ctx, "analysis failed", logger.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
}

// run ingests the configured event list, applies the selections and writes
// the JSON report.
func run(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	log := logger.Get()

	if cfg.EventsFile == "" {
		return errNoEventsFile
	}
	f, err := os.Open(cfg.EventsFile)
	if err != nil {
		return fmt.Errorf("open events: %w", err)
	}
	defer f.Close()

	opts := []ingest.Option{
		ingest.WithChannels(cfg.NChannels),
		ingest.WithDeadTimes(cfg.DeadTimeNormal, cfg.DeadTimeOverflow),
	}
	if cfg.TriggerTime != nil {
		opts = append(opts, ingest.WithTriggerTime(*cfg.TriggerTime))
	}
	ds, err := ingest.ReadCSV(f, opts...)
	if err != nil {
		return fmt.Errorf("read %s: %w", cfg.EventsFile, err)
	}
	if ds.Reference.Defaulted {
		log.Warn(ctx, "no trigger time in input or config; event times are used as given",
			logger.String("events_file", cfg.EventsFile))
	}

	store, err := ds.Store()
	if err != nil {
		return fmt.Errorf("build event store: %w", err)
	}

	orderSetting := cfg.PolyOrder
	if strings.TrimSpace(orderSetting) == "" {
		orderSetting = "auto"
	}
	order, err := selection.ParseOrder(orderSetting)
	if err != nil {
		return err
	}

	analysis := app.New(store,
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithBinWidth(cfg.BinWidth),
		app.WithMaxOrder(cfg.MaxOrder),
		app.WithSignificance(cfg.Significance),
		app.WithOrder(order),
		app.WithReference(ds.Reference.Time, ds.Reference.Defaulted),
	)
	if err := analysis.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		analysis.Stop(shutdownCtx)
	}()

	if err := applySelections(ctx, analysis, cfg.Source, cfg.Background); err != nil {
		return err
	}

	report := buildReport(ctx, analysis, cfg.LightCurveBin)
	if err := writeReport(stdout, cfg.Output, report); err != nil {
		return err
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn(ctx, "failed to write metrics", logger.String("metrics_file", cfg.MetricsFile), logger.Error(err))
		}
	}
	return nil
}

func applySelections(ctx context.Context, a *app.Analysis, source, background string) error {
	switch {
	case source != "" && background != "":
		return a.Init(ctx, source, background)
	case source != "":
		return a.SetSourceInterval(ctx, source)
	case background != "":
		return a.SetBackgroundIntervals(ctx, background)
	}
	return nil
}

func buildReport(ctx context.Context, a *app.Analysis, lcBin float64) types.Report {
	report := types.FromSummary(a.ID(), a.Summary())

	if obs, err := a.Observed(); err == nil {
		report.Observed = types.FromPHA(obs)
	}
	if bkg, err := a.Background(); err == nil {
		report.BackgroundPHA = types.FromPHA(bkg)
	}

	trials := a.Trials()
	for c, m := range a.Models() {
		report.Models = append(report.Models, types.FromModel(m, trials[c]))
	}

	sum := a.Summary()
	lc, err := a.LightCurve(sum.WindowStart, sum.WindowStop, lcBin)
	if err != nil {
		logger.Get().Warn(ctx, "light curve skipped", logger.Error(err))
		return report
	}
	report.LightCurve = types.FromLightCurve(lc)
	return report
}

func writeReport(stdout io.Writer, output string, report types.Report) error {
	w := stdout
	if output != "" && output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
