package optimizer

import "math"

// boxEdge keeps interior points away from the bounds, where the logistic
// map is flat.
const boxEdge = 1e-9

// boundTransform maps unconstrained y to x in [lower, upper] through a
// logistic curve: x = lower + (upper-lower) * sigmoid(y).
type boundTransform struct {
	lower []float64
	width []float64
}

func newBoundTransform(lower, upper []float64) *boundTransform {
	width := make([]float64, len(lower))
	for i := range lower {
		width[i] = upper[i] - lower[i]
	}
	return &boundTransform{lower: lower, width: width}
}

func (b *boundTransform) toBounded(y []float64) []float64 {
	x := make([]float64, len(y))
	for i, v := range y {
		x[i] = b.lower[i] + b.width[i]*sigmoid(v)
	}
	return x
}

func (b *boundTransform) toUnbounded(x []float64) []float64 {
	y := make([]float64, len(x))
	for i, v := range x {
		t := (v - b.lower[i]) / b.width[i]
		t = math.Min(math.Max(t, boxEdge), 1-boxEdge)
		y[i] = math.Log(t / (1 - t))
	}
	return y
}

// chain turns a gradient with respect to x into one with respect to y.
func (b *boundTransform) chain(grad, y []float64) {
	for i, v := range y {
		s := sigmoid(v)
		grad[i] *= b.width[i] * s * (1 - s)
	}
}

func sigmoid(y float64) float64 {
	if y >= 0 {
		return 1 / (1 + math.Exp(-y))
	}
	e := math.Exp(y)
	return e / (1 + e)
}
