package supply

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imp-sim/imp-sim/sim/internal/testutil"
	"github.com/imp-sim/imp-sim/sim/scenario"
)

func TestPoissonSampler_MeanIAT_MatchesConfig(t *testing.T) {
	// GIVEN a Poisson sampler with a 2-day mean at 24 ticks/day
	rng := rand.New(rand.NewSource(42))
	sampler := NewArrivalSampler(scenario.EnrollmentSpec{Process: "poisson", MeanInterarrivalDays: 2}, 24)

	// WHEN 10000 IATs are sampled
	n := 10000
	sum := int64(0)
	for i := 0; i < n; i++ {
		sum += sampler.SampleIAT(rng)
	}
	meanIAT := float64(sum) / float64(n)

	// THEN mean IAT ≈ 48 ticks (within 5%; truncation biases slightly low)
	testutil.AssertFloat64Equal(t, "mean IAT", 48, meanIAT, 0.05)
}

func TestGammaSampler_HighCV_ProducesBurstierArrivals(t *testing.T) {
	rng1 := rand.New(rand.NewSource(42))
	rng2 := rand.New(rand.NewSource(42))
	cv := 3.0
	gamma := NewArrivalSampler(scenario.EnrollmentSpec{Process: "gamma", MeanInterarrivalDays: 10, CV: &cv}, 24)
	poisson := NewArrivalSampler(scenario.EnrollmentSpec{Process: "poisson", MeanInterarrivalDays: 10}, 24)

	n := 10000
	gammaIATs := make([]float64, n)
	poissonIATs := make([]float64, n)
	for i := 0; i < n; i++ {
		gammaIATs[i] = float64(gamma.SampleIAT(rng1))
		poissonIATs[i] = float64(poisson.SampleIAT(rng2))
	}

	if got := coefficientOfVariation(gammaIATs); got < 2.0 {
		t.Errorf("gamma CV = %.2f, want > 2.0", got)
	}
	if got := coefficientOfVariation(poissonIATs); got < 0.8 || got > 1.2 {
		t.Errorf("poisson CV = %.2f, want ≈ 1.0", got)
	}
}

func TestArrivalSamplers_AlwaysAtLeastOneTick(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cv := 0.5
	samplers := []ArrivalSampler{
		NewArrivalSampler(scenario.EnrollmentSpec{Process: "poisson", MeanInterarrivalDays: 0.001}, 24),
		NewArrivalSampler(scenario.EnrollmentSpec{Process: "constant", MeanInterarrivalDays: 0.001}, 24),
		NewArrivalSampler(scenario.EnrollmentSpec{Process: "gamma", MeanInterarrivalDays: 0.001, CV: &cv}, 24),
	}
	for _, s := range samplers {
		for i := 0; i < 1000; i++ {
			require.GreaterOrEqual(t, s.SampleIAT(rng), int64(1))
		}
	}
}

func TestConstantSampler_RoundsToTicks(t *testing.T) {
	s := NewArrivalSampler(scenario.EnrollmentSpec{Process: "constant", MeanInterarrivalDays: 1.5}, 24)
	assert.Equal(t, int64(36), s.SampleIAT(nil))
}

func TestDelaySamplers(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	tests := []struct {
		name     string
		spec     scenario.DelaySpec
		min, max int64
	}{
		{"constant", scenario.DelaySpec{Type: "constant", Params: map[string]float64{"days": 2}}, 48, 48},
		{"uniform", scenario.DelaySpec{Type: "uniform", Params: map[string]float64{"min_days": 1, "max_days": 3}}, 24, 72},
		{"exponential", scenario.DelaySpec{Type: "exponential", Params: map[string]float64{"mean_days": 1}}, 0, math.MaxInt64},
		{"normal clamped at zero", scenario.DelaySpec{Type: "normal", Params: map[string]float64{"mean_days": 0.1, "stddev_days": 2}}, 0, math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDelaySampler(tt.spec, 24)
			require.NoError(t, err)
			for i := 0; i < 2000; i++ {
				v := d.SampleDelay(rng)
				if v < tt.min || v > tt.max {
					t.Fatalf("delay %d outside [%d, %d]", v, tt.min, tt.max)
				}
			}
		})
	}
}

func TestNormalDelay_ClampsNegativeDraws(t *testing.T) {
	// GIVEN a normal delay centred below zero
	d := &NormalDelay{mean: -100, stdDev: 1}
	rng := rand.New(rand.NewSource(1))

	// THEN every draw is clamped to zero
	for i := 0; i < 100; i++ {
		assert.Equal(t, int64(0), d.SampleDelay(rng))
	}
}

func TestSamplers_HugeDraws_ClampToMaxTicks(t *testing.T) {
	// GIVEN means far beyond the representable tick range
	rng := rand.New(rand.NewSource(3))
	delay := &ExponentialDelay{mean: 1e30}
	arrivals := NewArrivalSampler(scenario.EnrollmentSpec{Process: "poisson", MeanInterarrivalDays: 1e30}, 24)
	constant := NewArrivalSampler(scenario.EnrollmentSpec{Process: "constant", MeanInterarrivalDays: 1e30}, 24)

	// THEN every draw clamps instead of wrapping negative
	for i := 0; i < 100; i++ {
		assert.Equal(t, scenario.MaxTicks, delay.SampleDelay(rng))
		assert.Equal(t, scenario.MaxTicks, arrivals.SampleIAT(rng))
	}
	assert.Equal(t, scenario.MaxTicks, constant.SampleIAT(nil))
	assert.Equal(t, scenario.MaxTicks, nonNegativeTicks(math.Inf(1)))
}

func TestNewDelaySampler_MissingParamOrUnknownType(t *testing.T) {
	_, err := NewDelaySampler(scenario.DelaySpec{Type: "uniform", Params: map[string]float64{"min_days": 1}}, 24)
	assert.Error(t, err)
	_, err = NewDelaySampler(scenario.DelaySpec{Type: "weibull"}, 24)
	assert.Error(t, err)
}

func coefficientOfVariation(xs []float64) float64 {
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	variance := 0.0
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance) / mean
}
