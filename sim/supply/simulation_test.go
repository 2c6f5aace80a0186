package supply

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imp-sim/imp-sim/sim"
	"github.com/imp-sim/imp-sim/sim/internal/testutil"
	"github.com/imp-sim/imp-sim/sim/scenario"
	"github.com/imp-sim/imp-sim/sim/trace"
)

func TestSimulation_AmpleStock_NoReorderNoUnmetDemand(t *testing.T) {
	// GIVEN zero transit delay, no dropout, unlimited manufacturing and
	// thresholds below the 1000-unit starting stock
	sc := ampleScenario()

	// WHEN 30 dosing periods run with 10 patients at 1 unit/patient/period
	s, res := mustRun(t, sc, Options{})

	// THEN no reorder is issued and every dose is served on time
	assert.Equal(t, 0, res.Summary.Reorders)
	assert.Equal(t, 0, res.Summary.UnmetDemand)
	assert.Equal(t, 10, res.Summary.Enrolled)
	assert.Equal(t, 30, res.Summary.DosesOnTime)
	assert.Equal(t, int64(300), res.Summary.UnitsConsumed)
	assert.Equal(t, int64(700), s.Tier("site-berlin").Level())
	assert.True(t, res.Balance.Conserved(), res.Balance.String())
}

func TestSimulation_NoProduction_FirstDoseUnmetAndQueued(t *testing.T) {
	// GIVEN manufacturing capacity 0 and no stock anywhere
	sc := ampleScenario()
	sc.Manufacturing.CapacityPerBatch = 0
	sc.Central.InitialStock = 0
	sc.Regions[0].InitialStock = 0
	sc.Regions[0].Sites[0].InitialStock = 0
	sc.HorizonDays = 1.05 // just past the first dosing period

	// WHEN the run stops after period 1
	s, res := mustRun(t, sc, Options{})

	// THEN exactly one unmet demand is recorded at period 1 for the full demand
	unmet := recordsOfKind(res.Records, trace.KindUnmetDemand)
	require.Len(t, unmet, 1)
	assert.Equal(t, int64(24), unmet[0].Time)
	assert.Equal(t, "site-berlin", unmet[0].Location)
	assert.Equal(t, int64(10), unmet[0].Quantity)
	assert.Equal(t, int64(10), unmet[0].Shortfall)

	// AND the request is still queued, not dropped
	site := s.Tier("site-berlin")
	assert.Equal(t, 1, site.Pool.Waiting())
	assert.Equal(t, int64(10), site.Pool.Outstanding()[0].Amount)
	assert.Len(t, recordsOfKind(res.Records, trace.KindUnfulfilledAtEnd), 1)
	assert.Empty(t, recordsOfKind(res.Records, trace.KindDoseAdministered))
}

func TestSimulation_UnmetDemand_ShortfallNetOfQueuedRequests(t *testing.T) {
	for _, policy := range []string{"strict-fifo", "first-fit"} {
		t.Run(policy, func(t *testing.T) {
			// GIVEN 15 units at the site, 10 units of demand per period and no resupply
			sc := ampleScenario()
			sc.WaitPolicy = policy
			sc.Manufacturing.CapacityPerBatch = 0
			sc.Central.InitialStock = 0
			sc.Regions[0].InitialStock = 0
			sc.Regions[0].Sites[0].InitialStock = 15
			sc.HorizonDays = 3.5

			// WHEN three periods run
			_, res := mustRun(t, sc, Options{})

			// THEN period 2 is short by 5 and period 3, behind the queued
			// request, is short by its full demand
			unmet := recordsOfKind(res.Records, trace.KindUnmetDemand)
			require.Len(t, unmet, 2)
			assert.Equal(t, int64(5), unmet[0].Shortfall)
			assert.Equal(t, int64(10), unmet[1].Shortfall)
		})
	}
}

func TestSimulation_NoProduction_BackorderFilledWhenStockArrives(t *testing.T) {
	// GIVEN an empty site whose region holds stock and ships in 2 days
	sc := ampleScenario()
	sc.Manufacturing.CapacityPerBatch = 0
	sc.Regions[0].Sites[0].InitialStock = 0
	sc.Regions[0].Sites[0].Reorder.Quantity = 100
	sc.Transit.Default.Params["days"] = 2
	sc.HorizonDays = 5

	// WHEN the run proceeds past the delivery
	_, res := mustRun(t, sc, Options{})

	// THEN period 1 is unmet and filled once the reorder lands at day 2
	unmet := recordsOfKind(res.Records, trace.KindUnmetDemand)
	require.NotEmpty(t, unmet)
	assert.Equal(t, int64(24), unmet[0].Time)
	filled := recordsOfKind(res.Records, trace.KindBackorderFilled)
	require.NotEmpty(t, filled)
	assert.Equal(t, int64(48), filled[0].Time)
	assert.Empty(t, recordsOfKind(res.Records, trace.KindUnfulfilledAtEnd))
	assert.True(t, res.Balance.Conserved(), res.Balance.String())
}

func TestSimulation_SameSeed_ByteIdenticalEventLog(t *testing.T) {
	// GIVEN a stochastic scenario
	encode := func() []byte {
		_, res := mustRun(t, busyScenario(), Options{RunID: "fixed"})
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, r := range res.Records {
			require.NoError(t, enc.Encode(r))
		}
		return buf.Bytes()
	}

	// WHEN it runs twice with the same seed
	first := encode()
	second := encode()

	// THEN the logs are byte-identical
	require.NotEmpty(t, first)
	assert.True(t, bytes.Equal(first, second), "event logs differ between identical runs")
}

func TestSimulation_DifferentSeed_DifferentArrivals(t *testing.T) {
	seedA, seedB := int64(1), int64(2)
	_, a := mustRun(t, busyScenario(), Options{Seed: &seedA})
	_, b := mustRun(t, busyScenario(), Options{Seed: &seedB})

	enrollTimes := func(res *Result) []int64 {
		var ts []int64
		for _, r := range recordsOfKind(res.Records, trace.KindEnrollment) {
			ts = append(ts, r.Time)
		}
		return ts
	}
	assert.NotEqual(t, enrollTimes(a), enrollTimes(b))
}

func TestSimulation_Conservation_HoldsAtEveryDispatch(t *testing.T) {
	// GIVEN a scenario with overflow, backorders, dropouts and random transit
	s, err := New(busyScenario(), Options{})
	require.NoError(t, err)

	// WHEN the ledger is checked before every dispatch
	checks := 0
	s.Scheduler().OnDispatch(func(now int64) {
		checks++
		b := s.Balance()
		if !b.Conserved() {
			t.Fatalf("tick %d: balance does not close: %s", now, b)
		}
	})
	res, err := s.Run()
	require.NoError(t, err)

	// THEN it balances throughout and at the end
	assert.Greater(t, checks, 100)
	assert.True(t, res.Balance.Conserved(), res.Balance.String())
	assert.Greater(t, res.Balance.Produced, int64(0))
	assert.Greater(t, res.Balance.Consumed, int64(0))
}

func TestSimulation_LevelsStayWithinBounds(t *testing.T) {
	s, err := New(busyScenario(), Options{})
	require.NoError(t, err)

	s.Scheduler().OnDispatch(func(now int64) {
		for _, tier := range s.Tiers() {
			level, capacity := tier.Level(), tier.Pool.Capacity()
			if level < 0 || (capacity != sim.Unbounded && level > capacity) {
				t.Fatalf("tick %d: %s level %d outside [0, %d]", now, tier.Name, level, capacity)
			}
		}
	})
	_, err = s.Run()
	require.NoError(t, err)
}

func TestSimulation_RecordsOrderedByTimeAndSeq(t *testing.T) {
	_, res := mustRun(t, busyScenario(), Options{})

	require.NotEmpty(t, res.Records)
	for i := 1; i < len(res.Records); i++ {
		prev, cur := res.Records[i-1], res.Records[i]
		if cur.Time < prev.Time {
			t.Fatalf("record %d at t=%d precedes record %d at t=%d", cur.Seq, cur.Time, prev.Seq, prev.Time)
		}
		if cur.Seq <= prev.Seq {
			t.Fatalf("seq not increasing: %d after %d", cur.Seq, prev.Seq)
		}
	}
}

func TestSimulation_EventsTraceLevel_DropsPeriodicRecords(t *testing.T) {
	// GIVEN an observer that counts every record
	var observed int
	counter := trace.ObserverFunc(func(trace.Record) { observed++ })

	// WHEN the run keeps state-changing events only
	_, res := mustRun(t, busyScenario(), Options{TraceLevel: trace.LevelEvents, Observers: []trace.Observer{counter}})

	// THEN snapshots and forecasts reach observers but not the log
	assert.Empty(t, recordsOfKind(res.Records, trace.KindStockSnapshot))
	assert.Empty(t, recordsOfKind(res.Records, trace.KindDemandForecast))
	assert.Greater(t, observed, len(res.Records))
}

func TestSimulation_InvariantViolation_AbortsWithTierDump(t *testing.T) {
	// GIVEN a process that schedules into the past at day 1
	s, err := New(ampleScenario(), Options{})
	require.NoError(t, err)
	sched := s.Scheduler()
	sched.Schedule(24, sim.ProcessFunc(func(now int64) {
		sched.ScheduleAt(now-1, sim.ProcessFunc(func(int64) {}))
	}))

	// WHEN the run reaches it
	_, err = s.Run()

	// THEN the run aborts with the scheduler and tier state attached
	require.Error(t, err)
	var v *sim.InvariantViolation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, int64(24), v.Clock)
	assert.NotEmpty(t, v.Pending)
	assert.Contains(t, v.Dump(), "site-berlin(site)")
	assert.Contains(t, v.Dump(), "balance:")
}

func TestSimulation_RunTwice_Errors(t *testing.T) {
	s, _ := mustRun(t, ampleScenario(), Options{})
	_, err := s.Run()
	assert.Error(t, err)
}

func TestSimulation_InvalidScenario_ConfigError(t *testing.T) {
	sc := ampleScenario()
	sc.Regions = nil
	_, err := New(sc, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regions")
}

func TestSimulation_OutOfRangeDurations_ConfigErrorBeforeClockStarts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*scenario.Scenario)
		field  string
	}{
		{"horizon", func(sc *scenario.Scenario) { sc.HorizonDays = 1e18 }, "horizon_days"},
		{"treatment", func(sc *scenario.Scenario) { sc.Trial.TreatmentDays = 1e18 }, "trial.treatment_days"},
		{"transit", func(sc *scenario.Scenario) {
			sc.Transit.Default = scenario.DelaySpec{Type: "exponential", Params: map[string]float64{"mean_days": 1e18}}
		}, "transit.default.params.mean_days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a duration whose tick count does not fit the clock
			sc := ampleScenario()
			tt.mutate(sc)

			// WHEN the simulation is built
			s, err := New(sc, Options{})

			// THEN it is rejected as a configuration error, not a scheduling violation
			assert.Nil(t, s)
			var cfgErr *scenario.ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
			var v *sim.InvariantViolation
			assert.False(t, errors.As(err, &v))
		})
	}
}

func TestSimulation_HorizonOverride(t *testing.T) {
	_, res := mustRun(t, ampleScenario(), Options{Horizon: 24*5 + 1})
	assert.Equal(t, int64(24*5+1), res.Horizon)
	assert.Equal(t, 5, res.Summary.DosesOnTime)
}

func TestSimulation_ExampleScenario_ConservedAcrossSeeds(t *testing.T) {
	// GIVEN the bundled two-region example
	sc := testutil.LoadExample(t, "trial_a.yaml")

	for _, seed := range []int64{1, 2, 3} {
		// WHEN it runs to its full horizon
		_, res := mustRun(t, sc, Options{Seed: &seed})

		// THEN units balance and enrollment respects the site targets
		assert.True(t, res.Balance.Conserved(), "seed %d: %s", seed, res.Balance)
		perSite := make(map[string]int)
		for _, r := range recordsOfKind(res.Records, trace.KindEnrollment) {
			perSite[r.Location]++
		}
		assert.LessOrEqual(t, perSite["site-berlin"], 40, "seed %d", seed)
		assert.LessOrEqual(t, perSite["site-madrid"], 30, "seed %d", seed)
		assert.Greater(t, res.Summary.Batches, 0, "seed %d", seed)
		for _, tier := range res.Tiers {
			assert.GreaterOrEqual(t, tier.Level, int64(0), "seed %d: %s", seed, tier.Name)
		}
	}
}
