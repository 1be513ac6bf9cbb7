// register.go wires the gonum backends into the sim package's solver
// registry. This init() runs when any package imports sim/optimizer,
// breaking the import cycle between sim/ (interface owner) and
// sim/optimizer/ (implementation). Production code imports sim/optimizer
// directly; test code in package sim uses optimizer_import_test.go for the
// blank import.
package optimizer

import "github.com/inference-sim/genacv/sim"

func init() {
	sim.RegisterMinimizer(sim.SolverBFGS, NewBFGS)
	sim.RegisterMinimizer(sim.SolverLBFGS, NewLBFGS)
	sim.RegisterMinimizer(sim.SolverNelderMead, NewNelderMead)
}
