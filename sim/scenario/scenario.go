// Package scenario loads and validates trial supply scenario files.
// A Scenario is read once before the run starts and treated as immutable
// afterwards.
package scenario

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ManufacturerName is the reserved node name of the manufacturing facility
// in transit routes.
const ManufacturerName = "manufacturer"

// Scenario is the top-level scenario configuration.
// Loaded from YAML via Load(path).
type Scenario struct {
	Version       string            `yaml:"version"`
	Name          string            `yaml:"name"`
	Seed          int64             `yaml:"seed"`
	HorizonDays   float64           `yaml:"horizon_days"`
	TicksPerDay   int64             `yaml:"ticks_per_day,omitempty"` // default 24
	TraceLevel    string            `yaml:"trace_level,omitempty"`   // "full" (default) or "events"
	WaitPolicy    string            `yaml:"wait_policy,omitempty"`   // "strict-fifo" (default) or "first-fit"
	Trial         TrialSpec         `yaml:"trial"`
	Manufacturing ManufacturingSpec `yaml:"manufacturing"`
	Central       TierSpec          `yaml:"central"`
	Regions       []RegionSpec      `yaml:"regions"`
	Transit       TransitSpec       `yaml:"transit"`
}

// TrialSpec holds protocol-level timing.
type TrialSpec struct {
	TreatmentDays float64  `yaml:"treatment_days"`      // per-patient time from enrollment to completion
	CloseDay      *float64 `yaml:"close_day,omitempty"` // enrollment close; nil = open until the horizon
}

// ManufacturingSpec configures batch production.
type ManufacturingSpec struct {
	BatchIntervalDays float64 `yaml:"batch_interval_days"`
	CapacityPerBatch  int64   `yaml:"capacity_per_batch"`        // -1 = unlimited, 0 = no production
	BaseBatch         int64   `yaml:"base_batch,omitempty"`      // make-to-stock units added to every batch
	FirstBatchDay     float64 `yaml:"first_batch_day,omitempty"` // default: one batch interval
}

// TierSpec configures one storage location.
type TierSpec struct {
	Name         string      `yaml:"name"`
	InitialStock int64       `yaml:"initial_stock"`
	Capacity     *int64      `yaml:"capacity,omitempty"` // nil = unbounded
	Reorder      ReorderSpec `yaml:"reorder"`
}

// ReorderSpec is a tier's replenishment policy. Quantity 0 disables reordering.
type ReorderSpec struct {
	Threshold        int64   `yaml:"threshold"`
	Quantity         int64   `yaml:"quantity"`
	ReviewPeriodDays float64 `yaml:"review_period_days,omitempty"` // default 1
	MaxOutstanding   int     `yaml:"max_outstanding,omitempty"`    // open orders allowed at once; default 1
	LookaheadPeriods float64 `yaml:"lookahead_periods,omitempty"`  // forecast periods subtracted from the level
}

// RegionSpec is a regional depot and the sites it supplies.
type RegionSpec struct {
	TierSpec `yaml:",inline"`
	Sites    []SiteSpec `yaml:"sites"`
}

// SiteSpec is a trial site with its own patients and dosing.
type SiteSpec struct {
	TierSpec   `yaml:",inline"`
	Enrollment EnrollmentSpec `yaml:"enrollment"`
	Dosage     DosageSpec     `yaml:"dosage"`
}

// EnrollmentSpec configures patient arrivals at a site.
type EnrollmentSpec struct {
	Process              string   `yaml:"process"` // "poisson" (default), "constant", "gamma"
	MeanInterarrivalDays float64  `yaml:"mean_interarrival_days"`
	CV                   *float64 `yaml:"cv,omitempty"` // gamma only
	Target               int      `yaml:"target"`       // 0 = no cap
	ScreenFailureRate    float64  `yaml:"screen_failure_rate,omitempty"`
	DropoutHazardPerDay  float64  `yaml:"dropout_hazard_per_day,omitempty"`
}

// DosageSpec configures per-patient consumption at a site.
type DosageSpec struct {
	UnitsPerPatient int64        `yaml:"units_per_patient"`
	PeriodDays      float64      `yaml:"period_days,omitempty"` // default 1
	Forecast        ForecastSpec `yaml:"forecast"`
}

// ForecastSpec selects the demand forecast policy.
type ForecastSpec struct {
	Policy string `yaml:"policy"`           // "last" (default) or "moving-average"
	Window int    `yaml:"window,omitempty"` // moving-average window; default 7
}

// TransitSpec configures shipment delays. Routes override Default.
type TransitSpec struct {
	Default DelaySpec   `yaml:"default"`
	Routes  []RouteSpec `yaml:"routes,omitempty"`
}

// RouteSpec is the delay for one origin -> destination pair.
type RouteSpec struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	DelaySpec `yaml:",inline"`
}

// DelaySpec parameterizes a transit delay distribution in days.
//
//	constant:    days
//	uniform:     min_days, max_days
//	exponential: mean_days
//	normal:      mean_days, stddev_days (clamped at 0)
type DelaySpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// Load reads and parses a YAML scenario file, applies defaults and validates it.
// Every failure is returned as a *ConfigError.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Reason: "reading scenario", Err: err}
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Parse decodes a scenario and applies defaults without validating it.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, &ConfigError{Reason: "parsing scenario", Err: err}
	}
	sc.ApplyDefaults()
	return &sc, nil
}

// ApplyDefaults fills zero-valued optional fields. Idempotent.
func (s *Scenario) ApplyDefaults() {
	if s.Version == "" {
		s.Version = "1"
	}
	if s.TicksPerDay == 0 {
		s.TicksPerDay = 24
	}
	if s.Transit.Default.Type == "" {
		s.Transit.Default = DelaySpec{Type: "constant", Params: map[string]float64{"days": 0}}
	}
	s.Central.Reorder.applyDefaults()
	for i := range s.Regions {
		r := &s.Regions[i]
		r.Reorder.applyDefaults()
		for j := range r.Sites {
			site := &r.Sites[j]
			site.Reorder.applyDefaults()
			if site.Enrollment.Process == "" {
				site.Enrollment.Process = "poisson"
			}
			if site.Dosage.PeriodDays == 0 {
				site.Dosage.PeriodDays = 1
			}
			if site.Dosage.Forecast.Policy == "" {
				site.Dosage.Forecast.Policy = "last"
			}
			if site.Dosage.Forecast.Policy == "moving-average" && site.Dosage.Forecast.Window == 0 {
				site.Dosage.Forecast.Window = 7
			}
		}
	}
}

func (r *ReorderSpec) applyDefaults() {
	if r.ReviewPeriodDays == 0 {
		r.ReviewPeriodDays = 1
	}
	if r.MaxOutstanding == 0 {
		r.MaxOutstanding = 1
	}
}

// MaxTicks bounds every duration a scenario can express. A clock at MaxTicks
// plus a delay of MaxTicks still fits in an int64.
const MaxTicks int64 = math.MaxInt64 / 4

// Ticks converts a duration in days to simulation ticks, rounding to the
// nearest tick. Durations beyond MaxTicks are clamped; Validate rejects them.
func (s *Scenario) Ticks(days float64) int64 {
	t := math.Round(days * float64(s.TicksPerDay))
	if t >= float64(MaxTicks) {
		return MaxTicks
	}
	return int64(t)
}

// Horizon returns the run horizon in ticks.
func (s *Scenario) Horizon() int64 {
	return s.Ticks(s.HorizonDays)
}

// Sites returns every site in declaration order.
func (s *Scenario) Sites() []SiteSpec {
	var sites []SiteSpec
	for _, r := range s.Regions {
		sites = append(sites, r.Sites...)
	}
	return sites
}

// Param returns the named parameter or def when absent.
func (d DelaySpec) Param(name string, def float64) float64 {
	if v, ok := d.Params[name]; ok {
		return v
	}
	return def
}

// String renders the scenario identity for logs.
func (s *Scenario) String() string {
	return fmt.Sprintf("%s (v%s, seed=%d, horizon=%gd)", s.Name, s.Version, s.Seed, s.HorizonDays)
}
