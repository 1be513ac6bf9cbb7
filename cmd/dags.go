package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/genacv/sim"
)

var (
	numApproxArg int    // Number of approximations
	dagRecursion string // Recursion policy
)

// dagsCmd lists the candidate DAGs for a recursion policy.
var dagsCmd = &cobra.Command{
	Use:   "dags",
	Short: "List the candidate control-variate DAGs",
	Run: func(cmd *cobra.Command, args []string) {
		if err := listDAGs(os.Stdout, numApproxArg, sim.Recursion(dagRecursion)); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func listDAGs(w io.Writer, numApprox int, policy sim.Recursion) error {
	set, err := sim.GenerateDAGs(numApprox, policy)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %d DAGs from %d candidates (recursion %s)\n", set.Len(), set.Candidates(), policy)
	for _, d := range set.Sorted() {
		fmt.Fprintln(w, d)
	}
	return nil
}

func init() {
	dagsCmd.Flags().IntVar(&numApproxArg, "num-approx", 2, "Number of approximation models")
	dagsCmd.Flags().StringVar(&dagRecursion, "recursion", "kl", "DAG recursion policy: kl, single, multi")
	rootCmd.AddCommand(dagsCmd)
}
