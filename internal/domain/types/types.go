// Package types contains the JSON shapes of an analysis report
package types

import (
	"github.com/okian/spectre/internal/domain/model"
	"github.com/okian/spectre/internal/domain/polyfit"
	"github.com/okian/spectre/internal/domain/selection"
)

// Spectrum is a per-channel count spectrum
type Spectrum struct {
	Counts      []float64 `json:"counts"`
	CountErrors []float64 `json:"count_errors,omitempty"`
	Exposure    float64   `json:"exposure"`
	Channels    int       `json:"channels"`
	Poisson     bool      `json:"poisson"`
}

// Trial is one step of the order search
type Trial struct {
	Order         int     `json:"order"`
	LogLikelihood float64 `json:"log_likelihood"`
	Statistic     float64 `json:"statistic,omitempty"`
	PValue        float64 `json:"p_value,omitempty"`
	Accepted      bool    `json:"accepted"`
}

// ChannelModel is the background polynomial of one channel
type ChannelModel struct {
	Channel       int       `json:"channel"`
	Order         int       `json:"order"`
	Coefficients  []float64 `json:"coefficients"`
	Errors        []float64 `json:"coefficient_errors"`
	Center        float64   `json:"center"`
	Scale         float64   `json:"scale"`
	DOF           int       `json:"dof"`
	LogLikelihood float64   `json:"log_likelihood"`
	Trials        []Trial   `json:"trials,omitempty"`
}

// Interval is a half-open time range
type Interval struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
}

// LightCurveBin is one light curve bin summed over channels
type LightCurveBin struct {
	Start          float64 `json:"start"`
	Stop           float64 `json:"stop"`
	Counts         int     `json:"counts"`
	Rate           float64 `json:"rate"`
	BackgroundRate float64 `json:"background_rate"`
}

// Report is the document written by the command line tool
type Report struct {
	AnalysisID    string          `json:"analysis_id"`
	Reference     float64         `json:"reference"`
	RefDefaulted  bool            `json:"reference_defaulted"`
	Events        int             `json:"events"`
	Channels      int             `json:"channels"`
	TotalDeadTime float64         `json:"total_dead_time"`
	Source        []Interval      `json:"source"`
	Background    []Interval      `json:"background"`
	OrderSetting  string          `json:"order_setting"`
	Observed      *Spectrum       `json:"observed,omitempty"`
	BackgroundPHA *Spectrum       `json:"background_spectrum,omitempty"`
	Models        []ChannelModel  `json:"models,omitempty"`
	LightCurve    []LightCurveBin `json:"light_curve,omitempty"`
}

// FromPHA converts a spectrum container.
func FromPHA(p model.PHA) *Spectrum {
	return &Spectrum{
		Counts:      p.Counts,
		CountErrors: p.CountErrors,
		Exposure:    p.Exposure,
		Channels:    p.ChannelCount,
		Poisson:     p.IsPoisson,
	}
}

// FromModel converts a fitted model and its order search.
func FromModel(m *polyfit.Model, trials []selection.Trial) ChannelModel {
	cm := ChannelModel{
		Channel:       m.Channel,
		Order:         m.Order,
		Coefficients:  m.Coefficients,
		Errors:        m.CoefficientErrors(),
		Center:        m.Center,
		Scale:         m.Scale,
		DOF:           m.DOF,
		LogLikelihood: m.LogLikelihood,
	}
	for _, t := range trials {
		cm.Trials = append(cm.Trials, Trial(t))
	}
	return cm
}

// FromIntervals converts interval bounds.
func FromIntervals(ivs []model.Interval) []Interval {
	out := make([]Interval, len(ivs))
	for i, iv := range ivs {
		out[i] = Interval(iv)
	}
	return out
}

// FromLightCurve converts light curve bins.
func FromLightCurve(lc model.LightCurve) []LightCurveBin {
	out := make([]LightCurveBin, len(lc.Bins))
	for i, b := range lc.Bins {
		out[i] = LightCurveBin(b)
	}
	return out
}

// FromSummary fills the descriptive fields of a report.
func FromSummary(id string, s model.Summary) Report {
	return Report{
		AnalysisID:    id,
		Reference:     s.Reference,
		RefDefaulted:  s.RefDefaulted,
		Events:        s.Events,
		Channels:      s.Channels,
		TotalDeadTime: s.TotalDeadTime,
		Source:        FromIntervals(s.Source),
		Background:    FromIntervals(s.Background),
		OrderSetting:  s.OrderSetting,
	}
}
