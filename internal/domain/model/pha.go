package model

// PHA is a per-channel count spectrum over a time selection.
//
// The observed container holds raw Poisson counts. The background container
// holds model-predicted counts and their 1-sigma uncertainties.
type PHA struct {
	Counts       []float64
	CountErrors  []float64 // nil for Poisson containers
	Exposure     float64   // live time in seconds
	ChannelCount int
	IsPoisson    bool
}

// TotalCounts sums the counts over all channels.
func (p PHA) TotalCounts() float64 {
	var sum float64
	for _, c := range p.Counts {
		sum += c
	}
	return sum
}

// Rates returns counts divided by exposure per channel.
func (p PHA) Rates() []float64 {
	out := make([]float64, len(p.Counts))
	if p.Exposure <= 0 {
		return out
	}
	for i, c := range p.Counts {
		out[i] = c / p.Exposure
	}
	return out
}

// LightCurveBin is one time bin of a light curve summed over all channels.
type LightCurveBin struct {
	Start          float64
	Stop           float64
	Counts         int
	Rate           float64 // counts per second
	BackgroundRate float64 // fitted background, counts per second; 0 without models
}

// LightCurve is the time series handed to an external plotter together with
// the active selections.
type LightCurve struct {
	Bins       []LightCurveBin
	Source     []Interval
	Background []Interval
}

// Summary is a quick-look description of an analysis.
type Summary struct {
	Events         int
	Channels       int
	FirstEvent     float64
	LastEvent      float64
	WindowStart    float64
	WindowStop     float64
	Reference      float64 // trigger time the event times are relative to
	RefDefaulted   bool    // no trigger time was available and zero was used
	TotalDeadTime  float64
	Source         []Interval
	Background     []Interval
	OrderSetting   string
	SelectedOrders []int // per channel; nil before the first background fit
}
