package supply

import "fmt"

// Forecaster predicts next-period demand from observed demand.
type Forecaster interface {
	// Observe adds one period's demand.
	Observe(demand int64)
	// Forecast returns the predicted demand for the next period.
	Forecast() int64
}

// LastValue predicts that the next period repeats the last one.
type LastValue struct {
	last int64
}

func (f *LastValue) Observe(demand int64) { f.last = demand }

func (f *LastValue) Forecast() int64 { return f.last }

// MovingAverage averages the last Window periods, rounding up so that a
// fractional unit is still stocked.
type MovingAverage struct {
	window  int
	history []int64
	sum     int64
}

// NewMovingAverage creates a MovingAverage over window periods (>= 1).
func NewMovingAverage(window int) *MovingAverage {
	if window < 1 {
		window = 1
	}
	return &MovingAverage{window: window}
}

func (f *MovingAverage) Observe(demand int64) {
	f.history = append(f.history, demand)
	f.sum += demand
	if len(f.history) > f.window {
		f.sum -= f.history[0]
		f.history = f.history[1:]
	}
}

func (f *MovingAverage) Forecast() int64 {
	n := int64(len(f.history))
	if n == 0 {
		return 0
	}
	return (f.sum + n - 1) / n
}

// NewForecaster creates a Forecaster by policy name.
// Valid names: "last" (default), "moving-average".
func NewForecaster(policy string, window int) (Forecaster, error) {
	switch policy {
	case "", "last":
		return &LastValue{}, nil
	case "moving-average":
		return NewMovingAverage(window), nil
	default:
		return nil, fmt.Errorf("unknown forecast policy %q", policy)
	}
}
