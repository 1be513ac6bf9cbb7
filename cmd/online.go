package cmd

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/genacv/sim"
	"github.com/inference-sim/genacv/sim/ensemble"
	"github.com/inference-sim/genacv/sim/trace"
)

// onlineCmd runs the adaptive pilot loop against a synthetic ensemble.
var onlineCmd = &cobra.Command{
	Use:   "online",
	Short: "Iterate pilot increments against a synthetic ensemble until the truth allocation settles",
	Run: func(cmd *cobra.Command, args []string) {
		if configPath == "" {
			logrus.Fatalf("--config is required")
		}
		rc, err := LoadRunConfig(configPath)
		if err != nil {
			logrus.Fatalf("Failed to load run config: %v", err)
		}
		syn := rc.Pilot.Synthetic
		if syn == nil {
			logrus.Fatalf("online mode needs a pilot.synthetic section")
		}
		cfg, err := allocationConfigWithFlags(cmd, rc)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		ens, err := ensemble.New(syn.Ensemble)
		if err != nil {
			logrus.Fatalf("Invalid ensemble: %v", err)
		}
		maxIter := syn.MaxIterations
		if maxIter == 0 {
			maxIter = 10
		}
		level := trace.TraceLevelNone
		if traceFlag {
			level = trace.TraceLevelDAGs
		}
		out, err := sim.RunOnline(context.Background(), ens, cfg, sim.OnlineConfig{
			PilotSamples:  syn.PilotSamples,
			MaxIterations: maxIter,
			TraceLevel:    level,
		})
		if err != nil {
			logrus.Fatalf("Online allocation failed: %v", err)
		}
		report := newAllocationReport(out.Allocation, out.Plan)
		report.Online = &OnlineStats{Iterations: out.Iterations, Shared: out.Shared, EquivHFEvals: out.EquivHFEvals}
		if err := writeReport(os.Stdout, report); err != nil {
			logrus.Fatalf("Failed to write report: %v", err)
		}
	},
}

func init() {
	addAllocationFlags(onlineCmd)
	rootCmd.AddCommand(onlineCmd)
}
