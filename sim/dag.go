package sim

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// DAG assigns each approximation the model it serves as a control variate
// for. Both axes are numbered root-first: model 0 is the truth, model 1 the
// highest-fidelity approximation and model numApprox the lowest. DAG[i] is
// the parent of model i+1.
type DAG []int

// Validate checks parent ranges and that every approximation reaches the
// truth without revisiting a node.
func (d DAG) Validate() error {
	n := len(d)
	for i, p := range d {
		if p < 0 || p > n {
			return fmt.Errorf("%w: DAG %v: parent %d of model %d out of range [0,%d]", ErrConfig, d, p, i+1, n)
		}
		if p == i+1 {
			return fmt.Errorf("%w: DAG %v: model %d is its own parent", ErrConfig, d, i+1)
		}
	}
	for i := range d {
		node, steps := i+1, 0
		for node != 0 {
			node = d[node-1]
			if steps++; steps > n {
				return fmt.Errorf("%w: DAG %v: cycle through model %d", ErrConfig, d, i+1)
			}
		}
	}
	return nil
}

// Key is a stable string form used for deduplication and ordering.
func (d DAG) Key() string {
	parts := make([]string, len(d))
	for i, p := range d {
		parts[i] = strconv.Itoa(p)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// String implements fmt.Stringer.
func (d DAG) String() string { return d.Key() }

// sampleIndex maps a root-first model number to its position in sample-ordered
// vectors, where approximations run low to high fidelity and the truth is last.
func sampleIndex(numApprox, model int) int {
	return numApprox - model
}

// SampleParents re-expresses the DAG in sample order: entry s is the sample
// index of the parent of the approximation stored at sample index s. The
// truth has sample index len(d).
func (d DAG) SampleParents() []int {
	n := len(d)
	parents := make([]int, n)
	for s := 0; s < n; s++ {
		model := n - s
		parents[s] = sampleIndex(n, d[model-1])
	}
	return parents
}

// DAGSet is a deduplicated collection of candidate DAGs.
type DAGSet struct {
	dags       map[string]DAG
	candidates int
}

// NewDAGSet returns an empty set.
func NewDAGSet() *DAGSet {
	return &DAGSet{dags: make(map[string]DAG)}
}

// Insert adds d unless an identical DAG is present. It reports whether the
// set grew. Every call counts as one enumerated candidate.
func (s *DAGSet) Insert(d DAG) bool {
	s.candidates++
	key := d.Key()
	if _, ok := s.dags[key]; ok {
		return false
	}
	s.dags[key] = append(DAG(nil), d...)
	return true
}

// Len is the number of distinct DAGs.
func (s *DAGSet) Len() int { return len(s.dags) }

// Candidates is the number of DAGs enumerated before deduplication.
func (s *DAGSet) Candidates() int { return s.candidates }

// Sorted returns the DAGs in lexicographic parent order, so repeated runs
// visit them identically.
func (s *DAGSet) Sorted() []DAG {
	out := make([]DAG, 0, len(s.dags))
	for _, d := range s.dags {
		out = append(out, d)
	}
	sort.Slice(out, func(a, b int) bool {
		da, db := out[a], out[b]
		for i := range da {
			if da[i] != db[i] {
				return da[i] < db[i]
			}
		}
		return false
	})
	return out
}

// GenerateDAGs enumerates candidate DAGs for numApprox approximations.
func GenerateDAGs(numApprox int, policy Recursion) (*DAGSet, error) {
	if numApprox < 1 {
		return nil, fmt.Errorf("%w: need at least one approximation, got %d", ErrConfig, numApprox)
	}
	set := NewDAGSet()
	switch policy {
	case RecursionKL, "":
		// Models 1..K point at the truth, the rest at model L <= K.
		for k := 0; k <= numApprox; k++ {
			for l := 0; l <= k; l++ {
				set.Insert(klDAG(numApprox, k, l))
			}
		}
	case RecursionSingle:
		// Unordered: any L, keeping only DAGs with a root edge. A model
		// named as its own parent makes the DAG invalid, so it is dropped.
		for k := 0; k <= numApprox; k++ {
			for l := 0; l <= numApprox; l++ {
				d := klDAG(numApprox, k, l)
				if !d.contains(0) || d.Validate() != nil {
					continue
				}
				set.Insert(d)
			}
		}
	case RecursionMulti:
		logrus.Warnf("recursion policy %q is not implemented; no DAGs generated", policy)
	default:
		return nil, fmt.Errorf("%w: unknown recursion policy %q", ErrConfig, policy)
	}
	return set, nil
}

func (d DAG) contains(parent int) bool {
	for _, p := range d {
		if p == parent {
			return true
		}
	}
	return false
}

func klDAG(numApprox, k, l int) DAG {
	d := make(DAG, numApprox)
	for i := k; i < numApprox; i++ {
		d[i] = l
	}
	return d
}
