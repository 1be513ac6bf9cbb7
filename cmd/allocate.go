package cmd

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/genacv/sim"
	"github.com/inference-sim/genacv/sim/trace"
)

var (
	configPath     string  // YAML run configuration
	budgetFlag     float64 // Budget override in equivalent truth evaluations
	subMethodFlag  string  // Sub-method override
	recursionFlag  string  // Recursion policy override
	solverFlag     string  // Solver override
	parallelismArg int     // Concurrent DAG solves
	traceFlag      bool    // Print the per-DAG search trace
)

// allocateCmd computes the best sample allocation from a pilot.
var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Compute a sample allocation from offline pilot statistics or samples",
	Run: func(cmd *cobra.Command, args []string) {
		if configPath == "" {
			logrus.Fatalf("--config is required")
		}
		rc, err := LoadRunConfig(configPath)
		if err != nil {
			logrus.Fatalf("Failed to load run config: %v", err)
		}
		cfg, err := allocationConfigWithFlags(cmd, rc)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		ctx := context.Background()
		stats, err := rc.PilotStatistics(ctx)
		if err != nil {
			logrus.Fatalf("Failed to build pilot statistics: %v", err)
		}
		eng, err := sim.NewEngine(cfg, stats)
		if err != nil {
			logrus.Fatalf("Failed to configure engine: %v", err)
		}
		if traceFlag {
			eng.WithTrace(trace.NewSearchTrace(trace.TraceLevelDAGs))
		}
		res, err := eng.Allocate(ctx)
		if err != nil {
			logrus.Fatalf("Allocation failed: %v", err)
		}

		current := make([]int, stats.NumApprox+1)
		for i := range current {
			current[i] = int(stats.TruthSamples())
		}
		plan, err := sim.TranslateSolution(res.Best, current, cfg.Costs)
		if err != nil {
			logrus.Fatalf("Failed to translate allocation: %v", err)
		}
		if err := writeReport(os.Stdout, newAllocationReport(res, plan)); err != nil {
			logrus.Fatalf("Failed to write report: %v", err)
		}
	},
}

// allocationConfigWithFlags applies CLI overrides on top of the file
// settings. Only flags the user actually set take effect.
func allocationConfigWithFlags(cmd *cobra.Command, rc *RunConfig) (sim.AllocationConfig, error) {
	if cmd.Flags().Changed("sub-method") {
		rc.SubMethod = subMethodFlag
	}
	cfg, err := rc.AllocationConfig()
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("budget") {
		cfg.Budget = budgetFlag
	}
	if cmd.Flags().Changed("recursion") {
		cfg.Recursion = sim.Recursion(recursionFlag)
	}
	if cmd.Flags().Changed("solver") {
		cfg.Solver = sim.SolverName(solverFlag)
	}
	if cmd.Flags().Changed("parallelism") {
		cfg.Parallelism = parallelismArg
	}
	return cfg, nil
}

func addAllocationFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML run configuration")
	cmd.Flags().Float64Var(&budgetFlag, "budget", 0, "Budget in equivalent truth evaluations (0 = accuracy-constrained)")
	cmd.Flags().StringVar(&subMethodFlag, "sub-method", "mf", "Sample-set overlap: is, mf, rd")
	cmd.Flags().StringVar(&recursionFlag, "recursion", "kl", "DAG recursion policy: kl, single, multi")
	cmd.Flags().StringVar(&solverFlag, "solver", "auto", "Optimizer: auto, bfgs, lbfgs, nelder-mead")
	cmd.Flags().IntVar(&parallelismArg, "parallelism", 0, "Concurrent DAG solves (0 = one per CPU)")
	cmd.Flags().BoolVar(&traceFlag, "trace", false, "Include the per-DAG search trace in the report")
}

func init() {
	addAllocationFlags(allocateCmd)
	rootCmd.AddCommand(allocateCmd)
}
