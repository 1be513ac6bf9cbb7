package sim

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// RatioNudge keeps oversample ratios strictly above one, so every
// approximation has samples beyond those it shares with its parent.
const RatioNudge = 1e-4

// RatioVars are oversample ratios r_i = N_i / N_H with the truth count held
// fixed elsewhere.
type RatioVars struct {
	Ratios []float64
}

// WithTruth attaches a truth sample count.
func (r RatioVars) WithTruth(nH float64) RatioNVars {
	return RatioNVars{Ratios: append([]float64(nil), r.Ratios...), NH: nH}
}

// RatioNVars are oversample ratios together with the truth sample count.
type RatioNVars struct {
	Ratios []float64
	NH     float64
}

// SampleVars converts ratios to absolute counts.
func (r RatioNVars) SampleVars() SampleVars {
	n := make([]float64, len(r.Ratios)+1)
	floats.ScaleTo(n[:len(r.Ratios)], r.NH, r.Ratios)
	n[len(r.Ratios)] = r.NH
	return SampleVars{N: n}
}

// SampleVars are absolute sample counts in sample order, truth last.
type SampleVars struct {
	N []float64
}

// NumApprox is the number of approximation counts.
func (s SampleVars) NumApprox() int { return len(s.N) - 1 }

// Truth returns the truth sample count.
func (s SampleVars) Truth() float64 { return s.N[len(s.N)-1] }

// RatioNVars converts absolute counts back to ratios and truth count.
func (s SampleVars) RatioNVars() RatioNVars {
	nH := s.Truth()
	r := make([]float64, s.NumApprox())
	floats.ScaleTo(r, 1/nH, s.N[:len(r)])
	return RatioNVars{Ratios: r, NH: nH}
}

// EquivalentCost is the cost of the counts in truth-evaluation units:
// N_H + sum N_i c_i / c_H.
func (s SampleVars) EquivalentCost(costs []float64) float64 {
	n := s.NumApprox()
	return s.Truth() + floats.Dot(s.N[:n], costs[:n])/costs[len(costs)-1]
}

// Clone returns an independent copy.
func (s SampleVars) Clone() SampleVars {
	return SampleVars{N: append([]float64(nil), s.N...)}
}

// decode maps a decision vector of formulation f to sample counts. The
// ratios-only form takes its truth count from fixedNH.
func (f Formulation) decode(x []float64, fixedNH float64) SampleVars {
	switch f {
	case FormulationRatios:
		return RatioVars{Ratios: x}.WithTruth(fixedNH).SampleVars()
	case FormulationRatiosAndTruth:
		n := len(x) - 1
		return RatioNVars{Ratios: x[:n], NH: x[n]}.SampleVars()
	default:
		return SampleVars{N: append([]float64(nil), x...)}
	}
}

// encode maps sample counts to a decision vector of formulation f.
func (f Formulation) encode(s SampleVars) []float64 {
	switch f {
	case FormulationRatios:
		return s.RatioNVars().Ratios
	case FormulationRatiosAndTruth:
		r := s.RatioNVars()
		return append(r.Ratios, r.NH)
	default:
		return append([]float64(nil), s.N...)
	}
}

// checkLen verifies a decision vector length for numApprox approximations.
func (f Formulation) checkLen(x []float64, numApprox int) error {
	if want := f.NumVariables(numApprox); len(x) != want {
		return fmt.Errorf("formulation %s expects %d variables, got %d", f, want, len(x))
	}
	return nil
}
