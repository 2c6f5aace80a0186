package supply

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/imp-sim/imp-sim/sim/scenario"
)

// DelaySampler generates transit delays for one route.
type DelaySampler interface {
	// SampleDelay returns a non-negative delay in ticks.
	SampleDelay(rng *rand.Rand) int64
}

// ConstantDelay always returns the same delay and never draws from the RNG.
type ConstantDelay struct {
	ticks int64
}

func (d *ConstantDelay) SampleDelay(_ *rand.Rand) int64 {
	return d.ticks
}

// UniformDelay draws uniformly from [min, max] ticks.
type UniformDelay struct {
	min, max float64
}

func (d *UniformDelay) SampleDelay(rng *rand.Rand) int64 {
	return nonNegativeTicks(d.min + rng.Float64()*(d.max-d.min))
}

// ExponentialDelay draws exponentially-distributed delays.
type ExponentialDelay struct {
	mean float64
}

func (d *ExponentialDelay) SampleDelay(rng *rand.Rand) int64 {
	return nonNegativeTicks(rng.ExpFloat64() * d.mean)
}

// NormalDelay draws Gaussian delays clamped at zero.
type NormalDelay struct {
	mean, stdDev float64
}

func (d *NormalDelay) SampleDelay(rng *rand.Rand) int64 {
	return nonNegativeTicks(rng.NormFloat64()*d.stdDev + d.mean)
}

func nonNegativeTicks(val float64) int64 {
	if math.IsNaN(val) || val <= 0 {
		return 0
	}
	if val >= float64(scenario.MaxTicks) {
		return scenario.MaxTicks
	}
	return int64(math.Round(val))
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("delay distribution requires parameter %q", k)
		}
	}
	return nil
}

// NewDelaySampler creates a DelaySampler from a DelaySpec expressed in days.
func NewDelaySampler(spec scenario.DelaySpec, ticksPerDay int64) (DelaySampler, error) {
	tpd := float64(ticksPerDay)
	switch spec.Type {
	case "constant":
		if err := requireParam(spec.Params, "days"); err != nil {
			return nil, err
		}
		return &ConstantDelay{ticks: nonNegativeTicks(spec.Params["days"] * tpd)}, nil

	case "uniform":
		if err := requireParam(spec.Params, "min_days", "max_days"); err != nil {
			return nil, err
		}
		return &UniformDelay{min: spec.Params["min_days"] * tpd, max: spec.Params["max_days"] * tpd}, nil

	case "exponential":
		if err := requireParam(spec.Params, "mean_days"); err != nil {
			return nil, err
		}
		return &ExponentialDelay{mean: spec.Params["mean_days"] * tpd}, nil

	case "normal":
		if err := requireParam(spec.Params, "mean_days", "stddev_days"); err != nil {
			return nil, err
		}
		return &NormalDelay{mean: spec.Params["mean_days"] * tpd, stdDev: spec.Params["stddev_days"] * tpd}, nil

	default:
		return nil, fmt.Errorf("unknown delay type %q", spec.Type)
	}
}
