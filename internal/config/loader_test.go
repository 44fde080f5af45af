package config_test

import (
	"errors"
	"os"
	"testing"

	"github.com/okian/spectre/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.NChannels, convey.ShouldEqual, 128)
				convey.So(cfg.PolyOrder, convey.ShouldEqual, "auto")
				convey.So(cfg.TriggerTime, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SPECTRE_N_CHANNELS", "8")
			_ = os.Setenv("SPECTRE_BIN_WIDTH", "0.5")
			_ = os.Setenv("SPECTRE_SIGNIFICANCE", "0.01")
			_ = os.Setenv("SPECTRE_POLY_ORDER", "1")
			_ = os.Setenv("SPECTRE_SOURCE", "0-5")
			_ = os.Setenv("SPECTRE_BACKGROUND", "-10-0,10-20")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.NChannels, convey.ShouldEqual, 8)
				convey.So(cfg.BinWidth, convey.ShouldEqual, 0.5)
				convey.So(cfg.Significance, convey.ShouldEqual, 0.01)
				convey.So(cfg.PolyOrder, convey.ShouldEqual, "1")
				convey.So(cfg.Source, convey.ShouldEqual, "0-5")
				convey.So(cfg.Background, convey.ShouldEqual, "-10-0,10-20")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
n_channels: 16
bin_width: 2.0
max_order: 3
trigger_time: 243216766.6
events_file: "events.csv"
background: "-20-0,30-50"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SPECTRE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.NChannels, convey.ShouldEqual, 16)
				convey.So(cfg.BinWidth, convey.ShouldEqual, 2.0)
				convey.So(cfg.MaxOrder, convey.ShouldEqual, 3)
				convey.So(cfg.TriggerTime, convey.ShouldNotBeNil)
				convey.So(*cfg.TriggerTime, convey.ShouldEqual, 243216766.6)
				convey.So(cfg.EventsFile, convey.ShouldEqual, "events.csv")
				convey.So(cfg.Background, convey.ShouldEqual, "-20-0,30-50")
				convey.So(cfg.Significance, convey.ShouldEqual, 0.05)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile("n_channels: 16\nbin_width: 2.0\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SPECTRE_CONFIG", tmpFile)
			_ = os.Setenv("SPECTRE_N_CHANNELS", "32")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.NChannels, convey.ShouldEqual, 32)
				convey.So(cfg.BinWidth, convey.ShouldEqual, 2.0)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SPECTRE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("SPECTRE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("SPECTRE_N_CHANNELS", "many")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an out-of-range significance", func() {
			_ = os.Setenv("SPECTRE_SIGNIFICANCE", "1.5")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "significance")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"SPECTRE_CONFIG",
		"SPECTRE_N_CHANNELS",
		"SPECTRE_BIN_WIDTH",
		"SPECTRE_SIGNIFICANCE",
		"SPECTRE_POLY_ORDER",
		"SPECTRE_SOURCE",
		"SPECTRE_BACKGROUND",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "spectre-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
