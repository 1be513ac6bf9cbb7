package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// SampleResponses holds one shared sample point evaluated on every model:
// SampleResponses[model][qoi], models in sample order with the truth last.
type SampleResponses [][]float64

// PilotStatistics are the covariance estimates that drive the allocation.
// All per-QoI slices are indexed [qoi] and per-approximation slices [qoi][approx].
type PilotStatistics struct {
	NumApprox int
	NumQoI    int
	// NumShared is the number of shared truth samples behind each QoI's
	// estimates.
	NumShared []float64
	VarH      []float64
	CovLL     []*mat.SymDense
	CovLH     [][]float64
}

// NewPilotStatistics builds statistics from externally supplied moments
// (offline pilot). covLL holds one numApprox x numApprox matrix per QoI.
func NewPilotStatistics(varH []float64, covLL []*mat.SymDense, covLH [][]float64, numShared []float64) (*PilotStatistics, error) {
	numQoI := len(varH)
	if numQoI == 0 {
		return nil, fmt.Errorf("%w: no QoI statistics supplied", ErrInsufficientPilot)
	}
	if len(covLL) != numQoI || len(covLH) != numQoI || len(numShared) != numQoI {
		return nil, fmt.Errorf("%w: statistics cover %d QoI but covLL=%d covLH=%d counts=%d",
			ErrConfig, numQoI, len(covLL), len(covLH), len(numShared))
	}
	numApprox := len(covLH[0])
	for q := 0; q < numQoI; q++ {
		if numShared[q] < 2 {
			return nil, fmt.Errorf("%w: QoI %d has %v shared samples, need at least 2", ErrInsufficientPilot, q, numShared[q])
		}
		if !(varH[q] > 0) {
			return nil, fmt.Errorf("%w: truth variance for QoI %d must be positive, got %v", ErrInsufficientPilot, q, varH[q])
		}
		if covLL[q] == nil || covLL[q].SymmetricDim() != numApprox || len(covLH[q]) != numApprox {
			return nil, fmt.Errorf("%w: QoI %d covariance dimensions do not match %d approximations", ErrConfig, q, numApprox)
		}
		for i := 0; i < numApprox; i++ {
			if !(covLL[q].At(i, i) > 0) {
				return nil, fmt.Errorf("%w: approximation %d variance for QoI %d must be positive", ErrInsufficientPilot, i, q)
			}
		}
	}
	return &PilotStatistics{
		NumApprox: numApprox,
		NumQoI:    numQoI,
		NumShared: numShared,
		VarH:      varH,
		CovLL:     covLL,
		CovLH:     covLH,
	}, nil
}

// PilotStatisticsFromSamples estimates statistics from a complete pilot
// matrix. Samples with a non-finite response for a QoI are dropped from that
// QoI's estimates.
func PilotStatisticsFromSamples(samples []SampleResponses) (*PilotStatistics, error) {
	if len(samples) == 0 || len(samples[0]) < 2 {
		return nil, fmt.Errorf("%w: need samples for at least one approximation and the truth", ErrInsufficientPilot)
	}
	numModels := len(samples[0])
	numApprox := numModels - 1
	numQoI := len(samples[0][0])
	if numQoI == 0 {
		return nil, fmt.Errorf("%w: sample 0 model 0 has no QoI", ErrConfig)
	}
	for n, s := range samples {
		if len(s) != numModels {
			return nil, fmt.Errorf("%w: sample %d has %d models, expected %d", ErrConfig, n, len(s), numModels)
		}
		for m := range s {
			if len(s[m]) != numQoI {
				return nil, fmt.Errorf("%w: sample %d model %d has %d QoI, expected %d", ErrConfig, n, m, len(s[m]), numQoI)
			}
		}
	}

	varH := make([]float64, numQoI)
	covLL := make([]*mat.SymDense, numQoI)
	covLH := make([][]float64, numQoI)
	counts := make([]float64, numQoI)
	for q := 0; q < numQoI; q++ {
		data := make([]float64, 0, len(samples)*numModels)
		rows := 0
		for _, s := range samples {
			if !sharedFinite(s, q) {
				continue
			}
			for m := 0; m < numModels; m++ {
				data = append(data, s[m][q])
			}
			rows++
		}
		if rows < 2 {
			return nil, fmt.Errorf("%w: QoI %d has %d usable shared samples, need at least 2", ErrInsufficientPilot, q, rows)
		}
		var full mat.SymDense
		stat.CovarianceMatrix(&full, mat.NewDense(rows, numModels, data), nil)

		ll := mat.NewSymDense(numApprox, nil)
		lh := make([]float64, numApprox)
		for i := 0; i < numApprox; i++ {
			for j := i; j < numApprox; j++ {
				ll.SetSym(i, j, full.At(i, j))
			}
			lh[i] = full.At(i, numApprox)
		}
		varH[q] = full.At(numApprox, numApprox)
		covLL[q] = ll
		covLH[q] = lh
		counts[q] = float64(rows)
	}
	return NewPilotStatistics(varH, covLL, covLH, counts)
}

// VarL returns the approximation variances for one QoI.
func (s *PilotStatistics) VarL(qoi int) []float64 {
	v := make([]float64, s.NumApprox)
	for i := range v {
		v[i] = s.CovLL[qoi].At(i, i)
	}
	return v
}

// Rho2LH returns squared correlations between each approximation and the
// truth, indexed [qoi][approx].
func (s *PilotStatistics) Rho2LH() [][]float64 {
	rho2 := make([][]float64, s.NumQoI)
	for q := 0; q < s.NumQoI; q++ {
		rho2[q] = make([]float64, s.NumApprox)
		for i := 0; i < s.NumApprox; i++ {
			c := s.CovLH[q][i]
			rho2[q][i] = c * c / (s.CovLL[q].At(i, i) * s.VarH[q])
		}
	}
	return rho2
}

// AverageRho2LH averages the squared correlations over QoI.
func (s *PilotStatistics) AverageRho2LH() []float64 {
	avg := make([]float64, s.NumApprox)
	for _, row := range s.Rho2LH() {
		for i, r := range row {
			avg[i] += r / float64(s.NumQoI)
		}
	}
	return avg
}

// TruthSamples is the truth sample count already acquired, averaged over QoI.
func (s *PilotStatistics) TruthSamples() float64 {
	return stat.Mean(s.NumShared, nil)
}

// MCEstimatorVariance is the plain Monte Carlo estimator variance of the
// pilot for each QoI.
func (s *PilotStatistics) MCEstimatorVariance() []float64 {
	v := make([]float64, s.NumQoI)
	for q := range v {
		v[q] = s.VarH[q] / s.NumShared[q]
	}
	return v
}

// PilotAccumulator keeps the running sums of an online pilot. Sums are
// tracked per QoI so that a non-finite response only drops its own QoI.
type PilotAccumulator struct {
	numApprox int
	numQoI    int
	count     []float64
	sumL      [][]float64
	sumH      []float64
	sumLL     [][][]float64
	sumLH     [][]float64
	sumHH     []float64
}

// NewPilotAccumulator returns an empty accumulator.
func NewPilotAccumulator(numApprox, numQoI int) *PilotAccumulator {
	a := &PilotAccumulator{
		numApprox: numApprox,
		numQoI:    numQoI,
		count:     make([]float64, numQoI),
		sumL:      make([][]float64, numQoI),
		sumH:      make([]float64, numQoI),
		sumLL:     make([][][]float64, numQoI),
		sumLH:     make([][]float64, numQoI),
		sumHH:     make([]float64, numQoI),
	}
	for q := 0; q < numQoI; q++ {
		a.sumL[q] = make([]float64, numApprox)
		a.sumLH[q] = make([]float64, numApprox)
		a.sumLL[q] = make([][]float64, numApprox)
		for i := range a.sumLL[q] {
			a.sumLL[q][i] = make([]float64, numApprox)
		}
	}
	return a
}

// Add folds a batch of shared samples into the running sums.
func (a *PilotAccumulator) Add(samples []SampleResponses) error {
	for n, s := range samples {
		if len(s) != a.numApprox+1 {
			return fmt.Errorf("%w: sample %d: got %d models, expected %d", ErrConfig, n, len(s), a.numApprox+1)
		}
		for m := range s {
			if len(s[m]) != a.numQoI {
				return fmt.Errorf("%w: sample %d model %d: got %d QoI, expected %d", ErrConfig, n, m, len(s[m]), a.numQoI)
			}
		}
		for q := 0; q < a.numQoI; q++ {
			if !sharedFinite(s, q) {
				continue
			}
			h := s[a.numApprox][q]
			a.count[q]++
			a.sumH[q] += h
			a.sumHH[q] += h * h
			for i := 0; i < a.numApprox; i++ {
				li := s[i][q]
				a.sumL[q][i] += li
				a.sumLH[q][i] += li * h
				for j := 0; j <= i; j++ {
					a.sumLL[q][i][j] += li * s[j][q]
				}
			}
		}
	}
	return nil
}

// Counts returns the number of accumulated shared samples per QoI.
func (a *PilotAccumulator) Counts() []float64 {
	return append([]float64(nil), a.count...)
}

// Statistics converts the running sums into Bessel-corrected covariances.
func (a *PilotAccumulator) Statistics() (*PilotStatistics, error) {
	varH := make([]float64, a.numQoI)
	covLL := make([]*mat.SymDense, a.numQoI)
	covLH := make([][]float64, a.numQoI)
	for q := 0; q < a.numQoI; q++ {
		n := a.count[q]
		if n < 2 {
			return nil, fmt.Errorf("%w: QoI %d has %v shared samples, need at least 2", ErrInsufficientPilot, q, n)
		}
		muH := a.sumH[q] / n
		varH[q] = besselCovariance(a.sumHH[q], muH, muH, n)
		covLH[q] = make([]float64, a.numApprox)
		covLL[q] = mat.NewSymDense(a.numApprox, nil)
		for i := 0; i < a.numApprox; i++ {
			muI := a.sumL[q][i] / n
			covLH[q][i] = besselCovariance(a.sumLH[q][i], muI, muH, n)
			for j := 0; j <= i; j++ {
				muJ := a.sumL[q][j] / n
				covLL[q].SetSym(i, j, besselCovariance(a.sumLL[q][i][j], muI, muJ, n))
			}
		}
	}
	return NewPilotStatistics(varH, covLL, covLH, a.Counts())
}

// besselCovariance turns a raw cross-moment sum into an unbiased covariance.
func besselCovariance(sumXY, muX, muY, n float64) float64 {
	return (sumXY/n - muX*muY) * n / (n - 1)
}

func sharedFinite(s SampleResponses, qoi int) bool {
	for m := range s {
		v := s[m][qoi]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
