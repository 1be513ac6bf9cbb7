package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleVars_RatioConversions(t *testing.T) {
	s := RatioVars{Ratios: []float64{8, 2.5}}.WithTruth(12).SampleVars()
	assert.Equal(t, []float64{96, 30, 12}, s.N)
	assert.Equal(t, 2, s.NumApprox())
	assert.Equal(t, 12.0, s.Truth())

	back := s.RatioNVars()
	assert.InDeltaSlice(t, []float64{8, 2.5}, back.Ratios, 1e-12)
	assert.Equal(t, 12.0, back.NH)
}

func TestSampleVars_EquivalentCost(t *testing.T) {
	// GIVEN costs 1 and 2 for the approximations and 10 for the truth
	s := SampleVars{N: []float64{50, 20, 4}}

	// THEN cost is N_H + sum N_i c_i / c_H
	assert.InDelta(t, 4+50*0.1+20*0.2, s.EquivalentCost([]float64{1, 2, 10}), 1e-12)
}

func TestSampleVars_CloneIsIndependent(t *testing.T) {
	s := SampleVars{N: []float64{3, 2, 1}}
	c := s.Clone()
	c.N[0] = 99
	assert.Equal(t, 3.0, s.N[0])
}

func TestFormulation_EncodeDecode(t *testing.T) {
	s := SampleVars{N: []float64{120, 40, 10}}
	tests := []struct {
		form Formulation
		want []float64
	}{
		{FormulationRatios, []float64{12, 4}},
		{FormulationRatiosAndTruth, []float64{12, 4, 10}},
		{FormulationSamples, []float64{120, 40, 10}},
		{FormulationSamplesCost, []float64{120, 40, 10}},
	}
	for _, tc := range tests {
		t.Run(string(tc.form), func(t *testing.T) {
			x := tc.form.encode(s)
			assert.InDeltaSlice(t, tc.want, x, 1e-12)
			require.NoError(t, tc.form.checkLen(x, 2))
			assert.InDeltaSlice(t, s.N, tc.form.decode(x, 10).N, 1e-12)
		})
	}
	assert.Error(t, FormulationSamples.checkLen([]float64{1, 2}, 2))
}
