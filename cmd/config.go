package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/genacv/sim"
	"github.com/inference-sim/genacv/sim/ensemble"
)

// RunConfig is the YAML run configuration.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type RunConfig struct {
	// Costs per model: approximations low to high fidelity, truth last.
	Costs             []float64         `yaml:"costs"`
	Budget            float64           `yaml:"budget"`
	ConvergenceTol    float64           `yaml:"convergence_tol"`
	TruthFixedByPilot bool              `yaml:"truth_fixed_by_pilot"`
	Recursion         string            `yaml:"recursion"`
	SubMethod         string            `yaml:"sub_method"`
	Formulation       string            `yaml:"formulation"`
	Solver            string            `yaml:"solver"`
	SolverFallback    *bool             `yaml:"solver_fallback"`
	MultiStart        *bool             `yaml:"multi_start"`
	Parallelism       int               `yaml:"parallelism"`
	Optimizer         *OptimizerSection `yaml:"optimizer"`
	Pilot             PilotSection      `yaml:"pilot"`
}

// OptimizerSection overrides solver limits; zero fields keep defaults.
type OptimizerSection struct {
	MaxIterations   int     `yaml:"max_iterations"`
	MaxEvaluations  int     `yaml:"max_evaluations"`
	OuterIterations int     `yaml:"outer_iterations"`
	FeasibilityTol  float64 `yaml:"feasibility_tol"`
}

// PilotSection names exactly one pilot source.
type PilotSection struct {
	Statistics *StatisticsSection `yaml:"statistics"`
	Samples    [][][]float64      `yaml:"samples"` // [sample][model][qoi]
	Synthetic  *SyntheticSection  `yaml:"synthetic"`
}

// StatisticsSection supplies offline pilot moments per QoI.
type StatisticsSection struct {
	NumShared []float64     `yaml:"n_shared"`
	VarH      []float64     `yaml:"var_h"`
	CovLH     [][]float64   `yaml:"cov_lh"` // [qoi][approx]
	CovLL     [][][]float64 `yaml:"cov_ll"` // [qoi][approx][approx]
}

// SyntheticSection describes a synthetic ensemble to sample the pilot from.
type SyntheticSection struct {
	Ensemble      ensemble.Config `yaml:"ensemble"`
	PilotSamples  int             `yaml:"pilot_samples"`
	MaxIterations int             `yaml:"max_iterations"`
}

// LoadRunConfig reads and strictly parses a YAML run configuration.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run config: %w", err)
	}
	var cfg RunConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing run config: %w", err)
	}
	if err := cfg.Pilot.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p PilotSection) validate() error {
	sources := 0
	if p.Statistics != nil {
		sources++
	}
	if len(p.Samples) > 0 {
		sources++
	}
	if p.Synthetic != nil {
		sources++
	}
	if sources != 1 {
		return fmt.Errorf("pilot must name exactly one of statistics, samples or synthetic; got %d", sources)
	}
	return nil
}

// AllocationConfig converts the file settings to engine settings. Costs
// default to the synthetic ensemble's costs when the file omits them.
func (c *RunConfig) AllocationConfig() (sim.AllocationConfig, error) {
	costs := c.Costs
	if len(costs) == 0 && c.Pilot.Synthetic != nil {
		for _, m := range c.Pilot.Synthetic.Ensemble.Models {
			costs = append(costs, m.Cost)
		}
	}
	ac := sim.DefaultAllocationConfig(costs)
	ac.Budget = c.Budget
	if c.ConvergenceTol != 0 {
		ac.ConvergenceTol = c.ConvergenceTol
	}
	ac.TruthFixedByPilot = c.TruthFixedByPilot
	if c.Recursion != "" {
		ac.Recursion = sim.Recursion(c.Recursion)
	}
	if c.SubMethod != "" {
		sub, err := sim.ParseSubMethod(c.SubMethod)
		if err != nil {
			return ac, err
		}
		ac.SubMethod = sub
	}
	ac.Formulation = sim.Formulation(c.Formulation)
	if c.Solver != "" {
		ac.Solver = sim.SolverName(c.Solver)
	}
	if c.SolverFallback != nil {
		ac.SolverFallback = *c.SolverFallback
	}
	if c.MultiStart != nil {
		ac.MultiStart = *c.MultiStart
	}
	ac.Parallelism = c.Parallelism
	if o := c.Optimizer; o != nil {
		if o.MaxIterations > 0 {
			ac.Optimizer.MaxIterations = o.MaxIterations
		}
		if o.MaxEvaluations > 0 {
			ac.Optimizer.MaxEvaluations = o.MaxEvaluations
		}
		if o.OuterIterations > 0 {
			ac.Optimizer.OuterIterations = o.OuterIterations
		}
		if o.FeasibilityTol > 0 {
			ac.Optimizer.FeasibilityTol = o.FeasibilityTol
		}
	}
	return ac, nil
}

// PilotStatistics resolves the configured pilot source into statistics.
// A synthetic source is sampled once with pilot_samples shared points.
func (c *RunConfig) PilotStatistics(ctx context.Context) (*sim.PilotStatistics, error) {
	switch {
	case c.Pilot.Statistics != nil:
		s := c.Pilot.Statistics
		covLL := make([]*mat.SymDense, len(s.CovLL))
		for q, rows := range s.CovLL {
			n := len(rows)
			if n == 0 {
				return nil, fmt.Errorf("cov_ll[%d] is empty", q)
			}
			m := mat.NewSymDense(n, nil)
			for i := range rows {
				if len(rows[i]) != n {
					return nil, fmt.Errorf("cov_ll[%d] row %d has %d entries, expected %d", q, i, len(rows[i]), n)
				}
				for j := 0; j <= i; j++ {
					m.SetSym(i, j, rows[i][j])
				}
			}
			covLL[q] = m
		}
		return sim.NewPilotStatistics(s.VarH, covLL, s.CovLH, s.NumShared)
	case len(c.Pilot.Samples) > 0:
		samples := make([]sim.SampleResponses, len(c.Pilot.Samples))
		for i, s := range c.Pilot.Samples {
			samples[i] = s
		}
		return sim.PilotStatisticsFromSamples(samples)
	default:
		ens, err := ensemble.New(c.Pilot.Synthetic.Ensemble)
		if err != nil {
			return nil, err
		}
		samples, err := ens.EvaluateShared(ctx, c.Pilot.Synthetic.PilotSamples)
		if err != nil {
			return nil, err
		}
		acc := sim.NewPilotAccumulator(ens.NumApprox(), ens.NumQoI())
		if err := acc.Add(samples); err != nil {
			return nil, err
		}
		return acc.Statistics()
	}
}
