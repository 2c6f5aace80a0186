package supply

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/imp-sim/imp-sim/sim/scenario"
)

// ArrivalSampler generates patient inter-arrival times for a site.
type ArrivalSampler interface {
	// SampleIAT returns the next inter-arrival time in ticks.
	// Always returns a positive value (>= 1).
	SampleIAT(rng *rand.Rand) int64
}

// PoissonSampler generates exponentially-distributed inter-arrival times (CV=1).
type PoissonSampler struct {
	meanTicks float64
}

func (s *PoissonSampler) SampleIAT(rng *rand.Rand) int64 {
	return atLeastOneTick(rng.ExpFloat64() * s.meanTicks)
}

// ConstantSampler spaces arrivals evenly.
type ConstantSampler struct {
	ticks int64
}

func (s *ConstantSampler) SampleIAT(_ *rand.Rand) int64 {
	if s.ticks < 1 {
		return 1
	}
	return s.ticks
}

// GammaSampler generates Gamma-distributed inter-arrival times.
// CV > 1 produces bursty recruitment, CV < 1 steadier than Poisson.
// Implemented using Marsaglia-Tsang's method for shape >= 1,
// with transformation for shape < 1.
type GammaSampler struct {
	shape float64 // 1/CV² (alpha parameter)
	scale float64 // mean * CV² in ticks (beta parameter)
}

func (s *GammaSampler) SampleIAT(rng *rand.Rand) int64 {
	return atLeastOneTick(gammaRand(rng, s.shape, s.scale))
}

func atLeastOneTick(sample float64) int64 {
	if sample >= float64(scenario.MaxTicks) {
		return scenario.MaxTicks
	}
	iat := int64(sample)
	if iat < 1 {
		return 1
	}
	return iat
}

// gammaRand samples from Gamma(shape, scale) using Marsaglia-Tsang's method.
// For shape >= 1: direct method.
// For shape < 1: Gamma(shape) = Gamma(shape+1) * U^(1/shape).
func gammaRand(rng *rand.Rand, shape, scale float64) float64 {
	if shape < 1.0 {
		u := rng.Float64()
		return gammaRand(rng, shape+1.0, scale) * math.Pow(u, 1.0/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)

	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()

		// Squeeze test
		if u < 1.0-0.0331*(x*x)*(x*x) {
			return d * v * scale
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

// NewArrivalSampler creates an ArrivalSampler from an enrollment spec.
// ticksPerDay converts the configured mean interval into ticks.
func NewArrivalSampler(spec scenario.EnrollmentSpec, ticksPerDay int64) ArrivalSampler {
	mean := spec.MeanInterarrivalDays * float64(ticksPerDay)
	switch spec.Process {
	case "constant":
		return &ConstantSampler{ticks: atLeastOneTick(math.Round(mean))}

	case "gamma":
		cv := 1.0
		if spec.CV != nil {
			cv = *spec.CV
		}
		if cv <= 0 {
			cv = 1.0
		}
		shape := 1.0 / (cv * cv)
		if shape < 0.01 {
			logrus.Warnf("Gamma shape %.4f (CV=%.1f) is very small; falling back to Poisson", shape, cv)
			return &PoissonSampler{meanTicks: mean}
		}
		return &GammaSampler{shape: shape, scale: mean * cv * cv}

	default:
		// Validated before reaching here; "poisson" and fallback
		return &PoissonSampler{meanTicks: mean}
	}
}
