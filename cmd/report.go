package cmd

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/genacv/sim"
	"github.com/inference-sim/genacv/sim/trace"
)

// AllocationReport is the YAML document printed by allocate and online.
type AllocationReport struct {
	Formulation    string       `yaml:"formulation"`
	SubMethod      string       `yaml:"sub_method"`
	DAGs           int          `yaml:"dags"`
	Candidates     int          `yaml:"candidates"`
	Failed         int          `yaml:"failed"`
	Solved         bool         `yaml:"solved"`
	BestDAG        []int        `yaml:"best_dag"`
	Start          string       `yaml:"start"`
	Samples        []float64    `yaml:"samples"`
	Ratios         []float64    `yaml:"ratios"`
	AvgEstVar      float64      `yaml:"avg_est_var"`
	AvgEstVarRatio float64      `yaml:"avg_est_var_ratio"`
	MCEstVar       float64      `yaml:"mc_est_var_equal_cost"`
	EquivHFAlloc   float64      `yaml:"equiv_hf_alloc"`
	Increments     []int        `yaml:"increments"`
	ApproxOrder    []int        `yaml:"approx_order"`
	DeltaEquivHF   float64      `yaml:"delta_equiv_hf"`
	Online         *OnlineStats `yaml:"online,omitempty"`
	Trace          *TraceReport `yaml:"trace,omitempty"`
}

// OnlineStats summarizes the adaptive pilot loop.
type OnlineStats struct {
	Iterations   int     `yaml:"iterations"`
	Shared       int     `yaml:"shared_samples"`
	EquivHFEvals float64 `yaml:"equiv_hf_evals"`
}

// TraceReport lists per-DAG outcomes and their summary.
type TraceReport struct {
	Summary *trace.TraceSummary `yaml:"summary"`
	DAGs    []trace.DAGRecord   `yaml:"dags"`
}

func newAllocationReport(res *sim.AllocationResult, plan *sim.AllocationPlan) *AllocationReport {
	best := res.Best
	r := &AllocationReport{
		Formulation:    string(res.Formulation),
		SubMethod:      string(res.SubMethod),
		DAGs:           res.DAGs,
		Candidates:     res.Candidates,
		Failed:         res.Failed,
		Solved:         res.Solved,
		BestDAG:        best.DAG,
		Start:          best.Start,
		Samples:        best.Samples.N,
		Ratios:         best.Ratios(),
		AvgEstVar:      best.AvgEstVar,
		AvgEstVarRatio: best.AvgEstVarRatio(),
		MCEstVar:       res.MCEstVar,
		EquivHFAlloc:   best.EquivHFAlloc,
	}
	if plan != nil {
		r.Increments, r.ApproxOrder, r.DeltaEquivHF = plan.Increments, plan.ApproxOrder, plan.DeltaEquivHF
	}
	if res.Trace.Enabled() {
		r.Trace = &TraceReport{Summary: trace.Summarize(res.Trace), DAGs: res.Trace.Records()}
	}
	return r
}

func writeReport(w io.Writer, r *AllocationReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
