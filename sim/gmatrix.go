package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// sharedCountTol is the relative size below which a control variate's own
// sample set is treated as empty.
const sharedCountTol = 1e-10

// overlap holds the G matrix and g vector for one DAG at one sample
// allocation. G is the covariance structure between control-variate
// differences; g couples each difference to the truth estimate. Inactive
// control variates have no samples beyond the set they share with their
// parent and carry no information.
type overlap struct {
	G      *mat.SymDense
	g      []float64
	active []bool
}

// buildOverlap computes G and g for the given sub-method. nVec holds sample
// counts in sample order with the truth last; parents comes from
// DAG.SampleParents.
func buildOverlap(sub SubMethod, nVec []float64, parents []int) (*overlap, error) {
	n := len(parents)
	if len(nVec) != n+1 {
		return nil, fmt.Errorf("sample vector has %d entries, expected %d", len(nVec), n+1)
	}
	for i, v := range nVec {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: sample count %d is %v", ErrInfeasiblePoint, i, v)
		}
	}
	switch sub {
	case SubMethodIS:
		return isOverlap(nVec, parents)
	case SubMethodMF:
		return mfOverlap(nVec, parents), nil
	case SubMethodRD:
		return rdOverlap(nVec, parents)
	default:
		return nil, fmt.Errorf("%w: unsupported sub-method %q", ErrConfig, sub)
	}
}

// independentCounts splits every approximation's samples into the set it
// shares with its parent (the parent's independent set; all truth samples
// for the root) and its own independent remainder.
func independentCounts(nVec []float64, parents []int) (shared, own []float64, err error) {
	n := len(parents)
	shared = make([]float64, n)
	own = make([]float64, n+1)
	done := make([]bool, n+1)
	own[n], done[n] = nVec[n], true

	var resolve func(s, depth int) error
	resolve = func(s, depth int) error {
		if done[s] {
			return nil
		}
		if depth > n {
			return fmt.Errorf("%w: cyclic parent structure", ErrConfig)
		}
		p := parents[s]
		if err := resolve(p, depth+1); err != nil {
			return err
		}
		shared[s] = own[p]
		own[s] = nVec[s] - shared[s]
		if own[s] < -sharedCountTol*nVec[s] {
			return fmt.Errorf("%w: approximation %d has %v samples but shares %v with its parent",
				ErrInfeasiblePoint, s, nVec[s], shared[s])
		}
		done[s] = true
		return nil
	}
	for s := 0; s < n; s++ {
		if err := resolve(s, 0); err != nil {
			return nil, nil, err
		}
	}
	return shared, own, nil
}

// degenerate reports whether an independent set is empty at the tolerance.
func degenerate(own, total float64) bool {
	return own <= sharedCountTol*total
}

func newOverlap(n int) *overlap {
	return &overlap{G: mat.NewSymDense(n, nil), g: make([]float64, n), active: make([]bool, n)}
}

func isOverlap(nVec []float64, parents []int) (*overlap, error) {
	n := len(parents)
	a, b, err := independentCounts(nVec, parents)
	if err != nil {
		return nil, err
	}
	o := newOverlap(n)
	for i := 0; i < n; i++ {
		o.active[i] = !degenerate(b[i], nVec[i]) && !degenerate(a[i], nVec[i])
	}
	for i := 0; i < n; i++ {
		ni, pi := nVec[i], parents[i]
		if pi == n {
			o.g[i] = 1/a[i] - 1/ni
		}
		for j := 0; j <= i; j++ {
			nj, pj := nVec[j], parents[j]
			var gij float64
			if pi == pj {
				gij += 1/a[i] - 1/ni - 1/nj + a[i]/(ni*nj)
			}
			if pi == j {
				gij += a[i]/(ni*nj) - 1/nj
			}
			if pj == i {
				gij += b[i]/(ni*nj) - 1/ni
			}
			if i == j {
				gij += b[i] / (ni * nj)
			}
			o.G.SetSym(i, j, gij)
		}
	}
	return o, nil
}

func mfOverlap(nVec []float64, parents []int) *overlap {
	n := len(parents)
	zH := nVec[n]
	z1 := make([]float64, n)
	z2 := make([]float64, n)
	for i := 0; i < n; i++ {
		z1[i] = nVec[parents[i]]
		z2[i] = nVec[i]
	}
	o := newOverlap(n)
	for i := 0; i < n; i++ {
		o.active[i] = math.Abs(z2[i]-z1[i]) > sharedCountTol*z2[i]
		o.g[i] = (math.Min(z1[i], zH)/z1[i] - math.Min(z2[i], zH)/z2[i]) / zH
		for j := 0; j <= i; j++ {
			gij := (math.Min(z1[i], z1[j])/z1[j]-math.Min(z1[i], z2[j])/z2[j])/z1[i] +
				(math.Min(z2[i], z2[j])/z2[j]-math.Min(z2[i], z1[j])/z1[j])/z2[i]
			o.G.SetSym(i, j, gij)
		}
	}
	return o
}

func rdOverlap(nVec []float64, parents []int) (*overlap, error) {
	n := len(parents)
	a, b, err := independentCounts(nVec, parents)
	if err != nil {
		return nil, err
	}
	o := newOverlap(n)
	for i := 0; i < n; i++ {
		o.active[i] = !degenerate(b[i], nVec[i]) && !degenerate(a[i], nVec[i])
	}
	for i := 0; i < n; i++ {
		pi := parents[i]
		if pi == n {
			o.g[i] = 1 / a[i]
		}
		for j := 0; j <= i; j++ {
			pj := parents[j]
			var gij float64
			if pi == pj {
				gij += 1 / a[i]
			}
			if pi == j {
				gij -= 1 / a[i]
			}
			if pj == i {
				gij -= 1 / b[i]
			}
			if i == j {
				gij += 1 / b[i]
			}
			o.G.SetSym(i, j, gij)
		}
	}
	return o, nil
}
