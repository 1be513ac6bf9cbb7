package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/inference-sim/genacv/sim/internal/testutil"
)

// sampleSets lays out explicit sample indices for one DAG. own[s] is the
// size of approximation s's independent set; the truth owns indices
// [0, nH). It returns the counts per model and, per approximation, the
// parent-shared set A and independent set B.
func sampleSets(parents []int, own []int, nH int) (nVec []float64, a, b [][]int) {
	n := len(parents)
	ownSet := make([][]int, n+1)
	next := 0
	take := func(k int) []int {
		s := make([]int, k)
		for i := range s {
			s[i] = next
			next++
		}
		return s
	}
	ownSet[n] = take(nH)
	for s := 0; s < n; s++ {
		ownSet[s] = take(own[s])
	}
	nVec = make([]float64, n+1)
	a = make([][]int, n)
	b = make([][]int, n)
	for s := 0; s < n; s++ {
		a[s] = ownSet[parents[s]]
		b[s] = ownSet[s]
		nVec[s] = float64(len(a[s]) + len(b[s]))
	}
	nVec[n] = float64(nH)
	return nVec, a, b
}

func indicator(size int, sets ...[]int) []float64 {
	v := make([]float64, size)
	for _, set := range sets {
		for _, idx := range set {
			v[idx] = 1
		}
	}
	return v
}

func prefix(size, k int) []float64 {
	v := make([]float64, size)
	for i := 0; i < k; i++ {
		v[i] = 1
	}
	return v
}

// bruteForceOverlap computes G and g as inner products of the sample weight
// vectors of each control-variate difference.
func bruteForceOverlap(sub SubMethod, parents []int, nVec []float64, a, b [][]int) (gram [][]float64, g []float64) {
	n := len(parents)
	size := 0
	for _, v := range nVec {
		size += int(v)
	}
	phi := make([][]float64, n)
	for s := 0; s < n; s++ {
		var first, second []float64
		switch sub {
		case SubMethodIS:
			first = indicator(size, a[s])
			floats.Scale(1/float64(len(a[s])), first)
			second = indicator(size, a[s], b[s])
			floats.Scale(1/nVec[s], second)
		case SubMethodRD:
			first = indicator(size, a[s])
			floats.Scale(1/float64(len(a[s])), first)
			second = indicator(size, b[s])
			floats.Scale(1/float64(len(b[s])), second)
		case SubMethodMF:
			z1, z2 := nVec[parents[s]], nVec[s]
			first = prefix(size, int(z1))
			floats.Scale(1/z1, first)
			second = prefix(size, int(z2))
			floats.Scale(1/z2, second)
		}
		phi[s] = make([]float64, size)
		floats.SubTo(phi[s], first, second)
	}
	truth := prefix(size, int(nVec[n]))
	floats.Scale(1/nVec[n], truth)

	gram = make([][]float64, n)
	g = make([]float64, n)
	for i := 0; i < n; i++ {
		gram[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			gram[i][j] = floats.Dot(phi[i], phi[j])
		}
		g[i] = floats.Dot(phi[i], truth)
	}
	return gram, g
}

func TestBuildOverlap_MatchesSampleSetInnerProducts(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, sub := range []SubMethod{SubMethodIS, SubMethodMF, SubMethodRD} {
		for _, policy := range []Recursion{RecursionKL, RecursionSingle} {
			set, err := GenerateDAGs(3, policy)
			require.NoError(t, err)
			for _, dag := range set.Sorted() {
				parents := dag.SampleParents()
				// Disjoint ranges keep every MF parent and child count distinct.
				own := []int{15 + rng.Intn(5), 21 + rng.Intn(20), 41 + rng.Intn(20)}
				nVec, a, b := sampleSets(parents, own, 5+rng.Intn(10))

				// WHEN G and g are computed from counts
				ov, err := buildOverlap(sub, nVec, parents)
				require.NoError(t, err, "%s %v", sub, dag)

				// THEN they equal the inner products of explicit sample weights
				gram, g := bruteForceOverlap(sub, parents, nVec, a, b)
				for i := range g {
					assert.True(t, ov.active[i], "%s %v node %d active", sub, dag, i)
					assert.InDelta(t, g[i], ov.g[i], 1e-12, "%s %v g[%d]", sub, dag, i)
					for j := range g {
						assert.InDelta(t, gram[i][j], ov.G.At(i, j), 1e-12, "%s %v G[%d][%d]", sub, dag, i, j)
					}
				}
				testutil.AssertPSD(t, string(sub)+" "+dag.Key(), ov.G)
			}
		}
	}
}

func TestBuildOverlap_DegenerateNodesInactive(t *testing.T) {
	// GIVEN every approximation with exactly the truth's samples
	parents := DAG{0, 0}.SampleParents()
	nVec := []float64{10, 10, 10}

	for _, sub := range []SubMethod{SubMethodIS, SubMethodMF, SubMethodRD} {
		ov, err := buildOverlap(sub, nVec, parents)
		require.NoError(t, err)

		// THEN no control variate carries information
		assert.Equal(t, []bool{false, false}, ov.active, string(sub))
	}
}

func TestBuildOverlap_Errors(t *testing.T) {
	chain := DAG{0, 1}.SampleParents()

	// GIVEN model 2 with fewer samples than it must share with model 1
	_, err := buildOverlap(SubMethodIS, []float64{3, 15, 10}, chain)
	assert.ErrorIs(t, err, ErrInfeasiblePoint)
	_, err = buildOverlap(SubMethodRD, []float64{3, 15, 10}, chain)
	assert.ErrorIs(t, err, ErrInfeasiblePoint)

	_, err = buildOverlap(SubMethodMF, []float64{0, 15, 10}, chain)
	assert.ErrorIs(t, err, ErrInfeasiblePoint)

	_, err = buildOverlap(SubMethod("acv_xyz"), []float64{20, 15, 10}, chain)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = buildOverlap(SubMethodMF, []float64{20, 10}, chain)
	assert.Error(t, err)
}
