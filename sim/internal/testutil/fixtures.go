// Package testutil provides shared test infrastructure for the allocation
// engine: covariance fixtures with known structure and matrix assertions
// used across sim/ and its sub-package tests.
package testutil

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// CorrelatedCovariance builds approximation covariances for models that are
// conditionally independent given the truth: Cov(L_i, H) = s_i s_H rho_i and
// Cov(L_i, L_j) = s_i s_j rho_i rho_j for i != j. The result is always a
// valid (positive semi-definite) joint covariance.
func CorrelatedCovariance(scales []float64, scaleH float64, rho []float64) (*mat.SymDense, []float64) {
	n := len(rho)
	covLL := mat.NewSymDense(n, nil)
	covLH := make([]float64, n)
	for i := 0; i < n; i++ {
		covLH[i] = scales[i] * scaleH * rho[i]
		for j := 0; j <= i; j++ {
			c := scales[i] * scales[j] * rho[i] * rho[j]
			if i == j {
				c = scales[i] * scales[i]
			}
			covLL.SetSym(i, j, c)
		}
	}
	return covLL, covLH
}

// MinEigenvalue returns the smallest eigenvalue of a symmetric matrix.
func MinEigenvalue(t *testing.T, m mat.Symmetric) float64 {
	t.Helper()
	var eig mat.EigenSym
	if ok := eig.Factorize(m, false); !ok {
		t.Fatalf("eigendecomposition failed")
	}
	vals := eig.Values(nil)
	lowest := math.Inf(1)
	for _, v := range vals {
		lowest = math.Min(lowest, v)
	}
	return lowest
}

// AssertPSD fails unless m is positive semi-definite up to a tolerance
// relative to its largest diagonal entry.
func AssertPSD(t *testing.T, name string, m mat.Symmetric) {
	t.Helper()
	var scale float64
	for i := 0; i < m.SymmetricDim(); i++ {
		scale = math.Max(scale, math.Abs(m.At(i, i)))
	}
	if lowest := MinEigenvalue(t, m); lowest < -1e-9*math.Max(scale, 1e-300) {
		t.Errorf("%s: not positive semi-definite, min eigenvalue %v (scale %v)", name, lowest, scale)
	}
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
