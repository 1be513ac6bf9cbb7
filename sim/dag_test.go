package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dagKeys(dags []DAG) []string {
	keys := make([]string, len(dags))
	for i, d := range dags {
		keys[i] = d.Key()
	}
	return keys
}

func TestGenerateDAGs_KL_Counts(t *testing.T) {
	for n := 1; n <= 6; n++ {
		set, err := GenerateDAGs(n, RecursionKL)
		require.NoError(t, err)

		// THEN (n+1)(n+2)/2 candidates collapse to 1 + n(n-1)/2 distinct DAGs
		assert.Equal(t, (n+1)*(n+2)/2, set.Candidates(), "n=%d candidates", n)
		assert.Equal(t, 1+n*(n-1)/2, set.Len(), "n=%d distinct", n)
		for _, d := range set.Sorted() {
			assert.NoError(t, d.Validate(), "n=%d DAG %v", n, d)
			assert.Len(t, d, n)
		}
	}
}

func TestGenerateDAGs_KL_ThreeApprox(t *testing.T) {
	set, err := GenerateDAGs(3, RecursionKL)
	require.NoError(t, err)
	assert.Equal(t, []string{"[0 0 0]", "[0 0 1]", "[0 0 2]", "[0 1 1]"}, dagKeys(set.Sorted()))
}

func TestGenerateDAGs_Single(t *testing.T) {
	two, err := GenerateDAGs(2, RecursionSingle)
	require.NoError(t, err)
	assert.Equal(t, []string{"[0 0]", "[0 1]"}, dagKeys(two.Sorted()))
	assert.Equal(t, 5, two.Candidates())

	three, err := GenerateDAGs(3, RecursionSingle)
	require.NoError(t, err)
	assert.Equal(t, []string{"[0 0 0]", "[0 0 1]", "[0 0 2]", "[0 1 1]"}, dagKeys(three.Sorted()))
	for _, d := range three.Sorted() {
		assert.NoError(t, d.Validate())
	}
}

func TestGenerateDAGs_Single_DropsSelfParents(t *testing.T) {
	// GIVEN K=1, L=2 with two approximations, model 2 would name itself
	assert.Error(t, klDAG(2, 1, 2).Validate())

	for n := 1; n <= 5; n++ {
		single, err := GenerateDAGs(n, RecursionSingle)
		require.NoError(t, err)
		kl, err := GenerateDAGs(n, RecursionKL)
		require.NoError(t, err)

		// THEN no rewritten parent appears and only ordered DAGs survive
		assert.Equal(t, dagKeys(kl.Sorted()), dagKeys(single.Sorted()), "n=%d", n)
		for _, d := range single.Sorted() {
			assert.True(t, d.contains(0), "n=%d DAG %v", n, d)
		}
	}
}

func TestGenerateDAGs_MultiIsEmpty(t *testing.T) {
	set, err := GenerateDAGs(3, RecursionMulti)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestGenerateDAGs_Errors(t *testing.T) {
	_, err := GenerateDAGs(0, RecursionKL)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = GenerateDAGs(2, Recursion("bogus"))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestDAGSet_SortedIsDeterministic(t *testing.T) {
	a, err := GenerateDAGs(5, RecursionSingle)
	require.NoError(t, err)
	b, err := GenerateDAGs(5, RecursionSingle)
	require.NoError(t, err)
	assert.Equal(t, dagKeys(a.Sorted()), dagKeys(b.Sorted()))

	keys := dagKeys(a.Sorted())
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}
}

func TestDAGSet_InsertDeduplicates(t *testing.T) {
	set := NewDAGSet()
	assert.True(t, set.Insert(DAG{0, 1}))
	assert.False(t, set.Insert(DAG{0, 1}))
	assert.True(t, set.Insert(DAG{0, 0}))
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, 3, set.Candidates())
}

func TestDAG_Validate(t *testing.T) {
	tests := []struct {
		name  string
		dag   DAG
		valid bool
	}{
		{"all root", DAG{0, 0, 0}, true},
		{"chain", DAG{0, 1, 2}, true},
		{"hub", DAG{2, 0, 2}, true},
		{"self loop", DAG{0, 2}, false},
		{"cycle", DAG{2, 1}, false},
		{"out of range", DAG{0, 3}, false},
		{"negative", DAG{-1}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.dag.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConfig)
			}
		})
	}
}

func TestDAG_SampleParents(t *testing.T) {
	// GIVEN model 1 under the truth and models 2, 3 under model 1
	d := DAG{0, 1, 1}

	// THEN in sample order (model 3, model 2, model 1, truth) the parents are
	// model 1 at index 2 twice and the truth at index 3
	assert.Equal(t, []int{2, 2, 3}, d.SampleParents())
	assert.Equal(t, 3, sampleIndex(3, 0))
	assert.Equal(t, 0, sampleIndex(3, 3))

	// AND the all-root DAG points every approximation at the truth
	assert.Equal(t, []int{2, 2}, DAG{0, 0}.SampleParents())
}
