package trace

import "math"

// TraceSummary aggregates statistics from a SearchTrace.
type TraceSummary struct {
	TotalDAGs       int
	ConvergedCount  int
	FailedCount     int
	BestDAG         string
	MinAvgEstVar    float64
	MaxAvgEstVar    float64
	TotalIterations int
	StartWins       map[string]int // initial guess name → number of DAGs it won
}

// Summarize computes aggregate statistics from a SearchTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SearchTrace) *TraceSummary {
	summary := &TraceSummary{
		StartWins: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	records := st.Records()
	summary.TotalDAGs = len(records)
	summary.MinAvgEstVar = math.Inf(1)
	for _, r := range records {
		summary.TotalIterations += r.Iterations
		if r.Failed() {
			summary.FailedCount++
			continue
		}
		summary.ConvergedCount++
		summary.StartWins[r.Start]++
		summary.MinAvgEstVar = math.Min(summary.MinAvgEstVar, r.AvgEstVar)
		summary.MaxAvgEstVar = math.Max(summary.MaxAvgEstVar, r.AvgEstVar)
	}
	if summary.ConvergedCount == 0 {
		summary.MinAvgEstVar = 0
	}

	st.mu.Lock()
	summary.BestDAG = st.best
	st.mu.Unlock()

	return summary
}
