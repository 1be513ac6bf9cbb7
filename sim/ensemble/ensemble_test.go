package ensemble

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/genacv/sim"
)

func testConfig() Config {
	return Config{
		Models: []ModelSpec{
			{Cost: 0.1, Correlation: 0.6, Scale: 2},
			{Cost: 1, Correlation: 0.9, Scale: 0.5, Offset: 3},
			{Cost: 10, Scale: 1.5},
		},
		NumQoI: 2,
		Seed:   99,
	}
}

func TestSynthetic_SameSeedSameSamples(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	b, err := New(testConfig())
	require.NoError(t, err)

	sa, err := a.EvaluateShared(context.Background(), 50)
	require.NoError(t, err)
	sb, err := b.EvaluateShared(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)

	// AND successive batches continue the stream rather than repeating it
	next, err := a.EvaluateShared(context.Background(), 1)
	require.NoError(t, err)
	assert.NotEqual(t, sa[0], next[0])
}

func TestSynthetic_SampleCovarianceMatchesExact(t *testing.T) {
	// GIVEN 50000 shared samples
	ens, err := New(testConfig())
	require.NoError(t, err)
	samples, err := ens.EvaluateShared(context.Background(), 50000)
	require.NoError(t, err)

	acc := sim.NewPilotAccumulator(ens.NumApprox(), ens.NumQoI())
	require.NoError(t, acc.Add(samples))
	got, err := acc.Statistics()
	require.NoError(t, err)
	want, err := ens.Statistics(50000)
	require.NoError(t, err)

	// THEN the estimated moments agree with the exact ones to sampling error
	for q := 0; q < 2; q++ {
		assert.InDelta(t, want.VarH[q], got.VarH[q], 0.05*want.VarH[q])
		for i := 0; i < 2; i++ {
			assert.InDelta(t, want.CovLH[q][i], got.CovLH[q][i], 0.1)
			for j := 0; j < 2; j++ {
				assert.InDelta(t, want.CovLL[q].At(i, j), got.CovLL[q].At(i, j), 0.1)
			}
		}
		rho2 := got.Rho2LH()[q]
		assert.InDelta(t, 0.36, rho2[0], 0.03)
		assert.InDelta(t, 0.81, rho2[1], 0.03)
	}
}

func TestSynthetic_FailuresAreNaN(t *testing.T) {
	cfg := testConfig()
	cfg.FailureRate = 0.1
	ens, err := New(cfg)
	require.NoError(t, err)
	samples, err := ens.EvaluateShared(context.Background(), 500)
	require.NoError(t, err)

	failed := 0
	for _, s := range samples {
		for _, model := range s {
			for _, v := range model {
				if math.IsNaN(v) {
					failed++
				}
			}
		}
	}
	// 500 samples x 3 models x 2 QoI at a 10% failure rate
	assert.InDelta(t, 300, failed, 60)

	// AND the accumulator drops failed samples per QoI
	acc := sim.NewPilotAccumulator(2, 2)
	require.NoError(t, acc.Add(samples))
	for _, c := range acc.Counts() {
		assert.Less(t, c, 500.0)
		assert.Greater(t, c, 250.0)
	}
}

func TestSynthetic_Accessors(t *testing.T) {
	ens, err := New(testConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, ens.NumApprox())
	assert.Equal(t, 2, ens.NumQoI())
	assert.Equal(t, []float64{0.1, 1, 10}, ens.Costs())

	var _ sim.Ensemble = ens
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"single model", func(c *Config) { c.Models = c.Models[:1] }},
		{"no QoI", func(c *Config) { c.NumQoI = 0 }},
		{"failure rate of one", func(c *Config) { c.FailureRate = 1 }},
		{"zero cost", func(c *Config) { c.Models[0].Cost = 0 }},
		{"zero scale", func(c *Config) { c.Models[2].Scale = 0 }},
		{"perfect correlation", func(c *Config) { c.Models[1].Correlation = 1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}

	_, err := New(testConfig())
	assert.NoError(t, err)
}

func TestSynthetic_NegativeCount(t *testing.T) {
	ens, err := New(testConfig())
	require.NoError(t, err)
	_, err = ens.EvaluateShared(context.Background(), -1)
	assert.Error(t, err)
}
