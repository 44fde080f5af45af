package polyfit

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/okian/spectre/internal/domain/interval"
)

// Model is a fitted background rate polynomial for one channel.
//
// Coefficients are in the normalised variable u = (t - Center) / Scale and
// the rate is in counts per second of live time.
type Model struct {
	Channel       int
	Order         int
	Coefficients  []float64
	Covariance    *mat.SymDense
	DOF           int
	LogLikelihood float64
	NumBins       int
	Iterations    int
	FitSet        *interval.Set
	Center        float64
	Scale         float64
}

// Rate evaluates the polynomial at t.
func (m *Model) Rate(t float64) float64 {
	u := (t - m.Center) / m.Scale
	var r float64
	for k := len(m.Coefficients) - 1; k >= 0; k-- {
		r = r*u + m.Coefficients[k]
	}
	return r
}

// Integral returns the expected counts over [t0, t1] with full live time.
func (m *Model) Integral(t0, t1 float64) float64 {
	return floats.Dot(m.gradient(t0, t1), m.Coefficients)
}

// IntegralError returns the 1-sigma uncertainty of Integral from the
// coefficient covariance.
func (m *Model) IntegralError(t0, t1 float64) float64 {
	return m.sigma(m.gradient(t0, t1))
}

// IntegralOver sums the integral over every member of set and returns it with
// its uncertainty. Members share coefficients, so their errors are combined
// coherently rather than in quadrature.
func (m *Model) IntegralOver(set *interval.Set) (float64, float64) {
	g := make([]float64, len(m.Coefficients))
	for _, iv := range set.Intervals() {
		floats.Add(g, m.gradient(iv.Start, iv.Stop))
	}
	return floats.Dot(g, m.Coefficients), m.sigma(g)
}

// CoefficientErrors returns the square roots of the covariance diagonal.
func (m *Model) CoefficientErrors() []float64 {
	out := make([]float64, len(m.Coefficients))
	for k := range out {
		out[k] = math.Sqrt(math.Max(0, m.Covariance.At(k, k)))
	}
	return out
}

func (m *Model) gradient(t0, t1 float64) []float64 {
	return basis(t0, t1, m.Center, m.Scale, len(m.Coefficients))
}

func (m *Model) sigma(g []float64) float64 {
	v := mat.NewVecDense(len(g), g)
	return math.Sqrt(math.Max(0, mat.Inner(v, m.Covariance, v)))
}
