// Package trace provides per-DAG search-trace recording for allocation runs.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// DAGRecord captures the outcome of one DAG's numerical solve.
type DAGRecord struct {
	DAG          string
	State        string
	Start        string // initial guess the accepted solution came from
	AvgEstVar    float64
	EquivHFAlloc float64
	Iterations   int
	Evaluations  int
	Err          string // empty unless State is "failed"
}

// Failed reports whether the DAG produced no allocation.
func (r DAGRecord) Failed() bool {
	return r.Err != ""
}
