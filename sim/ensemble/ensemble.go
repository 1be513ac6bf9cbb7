// Package ensemble provides a deterministic synthetic model ensemble: a truth
// model and approximations whose responses are correlated Gaussians with
// known covariance, each with its own evaluation cost.
package ensemble

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/inference-sim/genacv/sim"
)

// ModelSpec describes one model. Correlation is with the truth and is
// ignored for the truth itself.
type ModelSpec struct {
	Cost        float64 `yaml:"cost"`
	Correlation float64 `yaml:"correlation"`
	Scale       float64 `yaml:"scale"`
	Offset      float64 `yaml:"offset"`
}

// Config describes a synthetic ensemble. Models are in sample order:
// approximations low to high fidelity, truth last.
type Config struct {
	Models []ModelSpec `yaml:"models"`
	NumQoI int         `yaml:"num_qoi"`
	Seed   int64       `yaml:"seed"`
	// FailureRate is the probability that a single model response is NaN.
	FailureRate float64 `yaml:"failure_rate"`
}

// Validate checks model parameters.
func (c Config) Validate() error {
	if len(c.Models) < 2 {
		return fmt.Errorf("ensemble needs at least one approximation and a truth model, got %d models", len(c.Models))
	}
	if c.NumQoI < 1 {
		return fmt.Errorf("num_qoi must be positive, got %d", c.NumQoI)
	}
	if c.FailureRate < 0 || c.FailureRate >= 1 {
		return fmt.Errorf("failure_rate must be in [0, 1), got %v", c.FailureRate)
	}
	for i, m := range c.Models {
		if !(m.Cost > 0) || !(m.Scale > 0) {
			return fmt.Errorf("model %d: cost and scale must be positive, got cost=%v scale=%v", i, m.Cost, m.Scale)
		}
		if i < len(c.Models)-1 && (m.Correlation <= -1 || m.Correlation >= 1) {
			return fmt.Errorf("model %d: correlation must be in (-1, 1), got %v", i, m.Correlation)
		}
	}
	return nil
}

// Synthetic is a sim.Ensemble. Each shared sample point draws one standard
// normal input per QoI; the truth is an affine map of it and each
// approximation mixes it with independent model noise.
type Synthetic struct {
	cfg Config
	rng *streams
}

// New builds an ensemble from a validated configuration.
func New(cfg Config) (*Synthetic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Synthetic{cfg: cfg, rng: newStreams(cfg.Seed)}, nil
}

// NumApprox implements sim.Ensemble.
func (s *Synthetic) NumApprox() int { return len(s.cfg.Models) - 1 }

// NumQoI implements sim.Ensemble.
func (s *Synthetic) NumQoI() int { return s.cfg.NumQoI }

// Costs implements sim.Ensemble.
func (s *Synthetic) Costs() []float64 {
	costs := make([]float64, len(s.cfg.Models))
	for i, m := range s.cfg.Models {
		costs[i] = m.Cost
	}
	return costs
}

// EvaluateShared implements sim.Ensemble. Not safe for concurrent use.
func (s *Synthetic) EvaluateShared(ctx context.Context, n int) ([]sim.SampleResponses, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative sample count %d", n)
	}
	inputs := s.rng.inputs()
	truth := len(s.cfg.Models) - 1
	out := make([]sim.SampleResponses, n)
	for k := 0; k < n; k++ {
		if k%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		z := make([]float64, s.cfg.NumQoI)
		for q := range z {
			z[q] = inputs.NormFloat64()
		}
		resp := make(sim.SampleResponses, len(s.cfg.Models))
		for m, spec := range s.cfg.Models {
			noise := s.rng.model(m)
			resp[m] = make([]float64, s.cfg.NumQoI)
			for q := range z {
				v := z[q]
				if m != truth {
					rho := spec.Correlation
					v = rho*z[q] + math.Sqrt(1-rho*rho)*noise.NormFloat64()
				}
				resp[m][q] = spec.Offset + spec.Scale*v
				if s.cfg.FailureRate > 0 && noise.Float64() < s.cfg.FailureRate {
					resp[m][q] = math.NaN()
				}
			}
		}
		out[k] = resp
	}
	return out, nil
}

// Statistics returns the exact covariances of the ensemble, as if estimated
// from numShared shared samples.
func (s *Synthetic) Statistics(numShared float64) (*sim.PilotStatistics, error) {
	n := s.NumApprox()
	h := s.cfg.Models[n]
	varH := make([]float64, s.cfg.NumQoI)
	covLL := make([]*mat.SymDense, s.cfg.NumQoI)
	covLH := make([][]float64, s.cfg.NumQoI)
	counts := make([]float64, s.cfg.NumQoI)
	for q := range varH {
		varH[q] = h.Scale * h.Scale
		covLL[q] = mat.NewSymDense(n, nil)
		covLH[q] = make([]float64, n)
		for i := 0; i < n; i++ {
			mi := s.cfg.Models[i]
			covLH[q][i] = mi.Scale * h.Scale * mi.Correlation
			for j := 0; j <= i; j++ {
				mj := s.cfg.Models[j]
				c := mi.Scale * mj.Scale * mi.Correlation * mj.Correlation
				if i == j {
					c = mi.Scale * mi.Scale
				}
				covLL[q].SetSym(i, j, c)
			}
		}
		counts[q] = numShared
	}
	return sim.NewPilotStatistics(varH, covLL, covLH, counts)
}
