package trace

import "sync"

// TraceLevel controls the verbosity of search tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDAGs captures one record per evaluated DAG.
	TraceLevelDAGs TraceLevel = "dags"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone: true,
	TraceLevelDAGs: true,
	"":             true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// SearchTrace collects per-DAG records during an allocation run. DAG solves
// run concurrently, so recording is guarded by a mutex.
type SearchTrace struct {
	Level TraceLevel

	mu      sync.Mutex
	records []DAGRecord
	best    string
}

// NewSearchTrace creates a SearchTrace ready for recording.
func NewSearchTrace(level TraceLevel) *SearchTrace {
	return &SearchTrace{Level: level, records: make([]DAGRecord, 0)}
}

// Enabled reports whether records are kept. Safe on a nil trace.
func (st *SearchTrace) Enabled() bool {
	return st != nil && st.Level == TraceLevelDAGs
}

// RecordDAG appends a DAG record. No-op when tracing is disabled.
func (st *SearchTrace) RecordDAG(record DAGRecord) {
	if !st.Enabled() {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.records = append(st.records, record)
}

// MarkBest records which DAG won the search.
func (st *SearchTrace) MarkBest(dag string) {
	if !st.Enabled() {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.best = dag
}

// Records returns a copy of the recorded DAG outcomes in recording order.
func (st *SearchTrace) Records() []DAGRecord {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]DAGRecord(nil), st.records...)
}
