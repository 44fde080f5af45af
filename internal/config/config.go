// Package config defines process configuration and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Failures are wrapped with this package's sentinel errors.
package config

import (
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// WorkerCount sets the number of per-channel fit workers.
	WorkerCount int `koanf:"worker_count"`

	// NChannels is the number of energy channels of the detector.
	NChannels int `koanf:"n_channels"`

	// BinWidth is the time bin width in seconds used for background fits.
	BinWidth float64 `koanf:"bin_width"`

	// MaxOrder caps the automatically selected polynomial order (0..4).
	MaxOrder int `koanf:"max_order"`

	// Significance is the LRT test size used by automatic order selection.
	Significance float64 `koanf:"significance"`

	// PolyOrder is "auto" or an explicit order 0..4.
	PolyOrder string `koanf:"poly_order"`

	// DeadTimeNormal and DeadTimeOverflow are the per-event dead time in
	// seconds assigned to regular and overflow-channel events.
	DeadTimeNormal   float64 `koanf:"dead_time_normal"`
	DeadTimeOverflow float64 `koanf:"dead_time_overflow"`

	// TriggerTime, when set, is subtracted from all arrival times.
	TriggerTime *float64 `koanf:"trigger_time"`

	// EventsFile is the CSV event list to analyse.
	EventsFile string `koanf:"events_file"`

	// Source and Background are interval specs such as "0-5" and "-10-0,10-20".
	Source     string `koanf:"source"`
	Background string `koanf:"background"`

	// LightCurveBin is the light curve bin width in seconds.
	LightCurveBin float64 `koanf:"light_curve_bin"`

	// Output is the report destination; empty or "-" means stdout.
	Output string `koanf:"output"`

	// MetricsFile, when set, receives a Prometheus textfile dump.
	MetricsFile string `koanf:"metrics_file"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		WorkerCount:      runtime.NumCPU(),
		NChannels:        128,
		BinWidth:         1.0,
		MaxOrder:         4,
		Significance:     0.05,
		PolyOrder:        "auto",
		DeadTimeNormal:   2e-6,
		DeadTimeOverflow: 10e-6,
		LightCurveBin:    1.0,
		Output:           "-",
	}
}
