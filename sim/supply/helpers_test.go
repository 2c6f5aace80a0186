package supply

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imp-sim/imp-sim/sim/scenario"
	"github.com/imp-sim/imp-sim/sim/trace"
)

func int64Ptr(v int64) *int64 { return &v }

func float64Ptr(v float64) *float64 { return &v }

// ampleScenario is one region with one site, 1000 units everywhere and
// 10 patients enrolled within the first day at 1 unit/patient/day.
func ampleScenario() *scenario.Scenario {
	reorder := scenario.ReorderSpec{Threshold: 100, Quantity: 500}
	sc := &scenario.Scenario{
		Name:        "ample",
		Seed:        42,
		HorizonDays: 30.5,
		Trial:       scenario.TrialSpec{TreatmentDays: 1000},
		Manufacturing: scenario.ManufacturingSpec{
			BatchIntervalDays: 1,
			CapacityPerBatch:  -1,
		},
		Central: scenario.TierSpec{Name: "central", InitialStock: 1000, Reorder: reorder},
		Regions: []scenario.RegionSpec{{
			TierSpec: scenario.TierSpec{Name: "region-eu", InitialStock: 1000, Reorder: reorder},
			Sites: []scenario.SiteSpec{{
				TierSpec: scenario.TierSpec{Name: "site-berlin", InitialStock: 1000, Reorder: reorder},
				Enrollment: scenario.EnrollmentSpec{
					Process:              "constant",
					MeanInterarrivalDays: 0.01,
					Target:               10,
				},
				Dosage: scenario.DosageSpec{UnitsPerPatient: 1, PeriodDays: 1},
			}},
		}},
		Transit: scenario.TransitSpec{Default: scenario.DelaySpec{Type: "constant", Params: map[string]float64{"days": 0}}},
	}
	sc.ApplyDefaults()
	return sc
}

// busyScenario exercises every component: stochastic enrollment with
// dropouts, bounded tiers, random transit and limited manufacturing.
func busyScenario() *scenario.Scenario {
	sc := &scenario.Scenario{
		Name:        "busy",
		Seed:        7,
		HorizonDays: 120,
		Trial:       scenario.TrialSpec{TreatmentDays: 60, CloseDay: float64Ptr(80)},
		Manufacturing: scenario.ManufacturingSpec{
			BatchIntervalDays: 7,
			CapacityPerBatch:  400,
			BaseBatch:         50,
		},
		Central: scenario.TierSpec{
			Name: "central", InitialStock: 300, Capacity: int64Ptr(600),
			Reorder: scenario.ReorderSpec{Threshold: 200, Quantity: 300, ReviewPeriodDays: 2},
		},
		Regions: []scenario.RegionSpec{
			{
				TierSpec: scenario.TierSpec{
					Name: "region-eu", InitialStock: 100, Capacity: int64Ptr(150),
					Reorder: scenario.ReorderSpec{Threshold: 60, Quantity: 120, MaxOutstanding: 2},
				},
				Sites: []scenario.SiteSpec{
					busySite("site-berlin", 2),
					busySite("site-madrid", 3),
				},
			},
			{
				TierSpec: scenario.TierSpec{
					Name: "region-us", InitialStock: 80,
					Reorder: scenario.ReorderSpec{Threshold: 50, Quantity: 100},
				},
				Sites: []scenario.SiteSpec{busySite("site-boston", 1.5)},
			},
		},
		Transit: scenario.TransitSpec{
			Default: scenario.DelaySpec{Type: "uniform", Params: map[string]float64{"min_days": 1, "max_days": 3}},
			Routes: []scenario.RouteSpec{
				{From: "manufacturer", To: "central", DelaySpec: scenario.DelaySpec{Type: "constant", Params: map[string]float64{"days": 2}}},
				{From: "central", To: "region-us", DelaySpec: scenario.DelaySpec{Type: "normal", Params: map[string]float64{"mean_days": 4, "stddev_days": 2}}},
			},
		},
	}
	sc.ApplyDefaults()
	return sc
}

func busySite(name string, interarrival float64) scenario.SiteSpec {
	return scenario.SiteSpec{
		TierSpec: scenario.TierSpec{
			Name: name, InitialStock: 20, Capacity: int64Ptr(40),
			Reorder: scenario.ReorderSpec{Threshold: 10, Quantity: 30, LookaheadPeriods: 2},
		},
		Enrollment: scenario.EnrollmentSpec{
			Process:              "poisson",
			MeanInterarrivalDays: interarrival,
			Target:               25,
			ScreenFailureRate:    0.2,
			DropoutHazardPerDay:  0.01,
		},
		Dosage: scenario.DosageSpec{
			UnitsPerPatient: 1,
			PeriodDays:      1,
			Forecast:        scenario.ForecastSpec{Policy: "moving-average", Window: 5},
		},
	}
}

func mustRun(t *testing.T, sc *scenario.Scenario, opts Options) (*Simulation, *Result) {
	t.Helper()
	s, err := New(sc, opts)
	require.NoError(t, err)
	res, err := s.Run()
	require.NoError(t, err)
	return s, res
}

func recordsOfKind(records []trace.Record, kind trace.Kind) []trace.Record {
	var out []trace.Record
	for _, r := range records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}
