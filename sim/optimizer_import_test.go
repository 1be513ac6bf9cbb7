package sim_test

// Blank import triggers sim/optimizer's init(), which registers the gonum
// backends. This allows package sim's internal test files to run numerical
// solves without directly importing sim/optimizer (which would create an
// import cycle).
import _ "github.com/inference-sim/genacv/sim/optimizer"
