package scenario

import (
	"fmt"
	"math"
)

// ConfigError reports a malformed or missing scenario parameter. It is raised
// before the simulation clock starts.
type ConfigError struct {
	Field  string // dotted path, e.g. "regions[0].sites[1].dosage.period_days"
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "invalid scenario"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func fieldErr(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Valid value registries.
var (
	validVersions         = map[string]bool{"1": true}
	validArrivalProcesses = map[string]bool{"poisson": true, "constant": true, "gamma": true}
	validDelayTypes       = map[string][]string{
		"constant":    {"days"},
		"uniform":     {"min_days", "max_days"},
		"exponential": {"mean_days"},
		"normal":      {"mean_days", "stddev_days"},
	}
	validForecastPolicies = map[string]bool{"last": true, "moving-average": true}
	validTraceLevels      = map[string]bool{"": true, "full": true, "events": true}
	validWaitPolicies     = map[string]bool{"": true, "strict-fifo": true, "first-fit": true}
)

// Validate checks that all fields in the scenario are valid. Call after
// ApplyDefaults. Returns a *ConfigError describing the first problem found.
func (s *Scenario) Validate() error {
	if !validVersions[s.Version] {
		return fieldErr("version", "unsupported version %q", s.Version)
	}
	if s.TicksPerDay <= 0 {
		return fieldErr("ticks_per_day", "must be positive, got %d", s.TicksPerDay)
	}
	if err := s.validatePositiveSpan("horizon_days", s.HorizonDays); err != nil {
		return err
	}
	if !validTraceLevels[s.TraceLevel] {
		return fieldErr("trace_level", "unknown level %q; valid: full, events", s.TraceLevel)
	}
	if !validWaitPolicies[s.WaitPolicy] {
		return fieldErr("wait_policy", "unknown policy %q; valid: strict-fifo, first-fit", s.WaitPolicy)
	}
	if err := s.validatePositiveSpan("trial.treatment_days", s.Trial.TreatmentDays); err != nil {
		return err
	}
	if s.Trial.CloseDay != nil {
		if err := s.validateSpan("trial.close_day", *s.Trial.CloseDay); err != nil {
			return err
		}
	}
	if err := s.validateManufacturing(); err != nil {
		return err
	}

	names := map[string]bool{ManufacturerName: true}
	if err := s.validateTier("central", &s.Central, names); err != nil {
		return err
	}
	if len(s.Regions) == 0 {
		return fieldErr("regions", "at least one region is required")
	}
	for i := range s.Regions {
		r := &s.Regions[i]
		prefix := fmt.Sprintf("regions[%d]", i)
		if err := s.validateTier(prefix, &r.TierSpec, names); err != nil {
			return err
		}
		if len(r.Sites) == 0 {
			return fieldErr(prefix+".sites", "at least one site is required")
		}
		for j := range r.Sites {
			site := &r.Sites[j]
			sp := fmt.Sprintf("%s.sites[%d]", prefix, j)
			if err := s.validateTier(sp, &site.TierSpec, names); err != nil {
				return err
			}
			if err := s.validateEnrollment(sp+".enrollment", &site.Enrollment); err != nil {
				return err
			}
			if err := s.validateDosage(sp+".dosage", &site.Dosage); err != nil {
				return err
			}
		}
	}
	return s.validateTransit(names)
}

func (s *Scenario) validateManufacturing() error {
	m := &s.Manufacturing
	if err := s.validatePositiveSpan("manufacturing.batch_interval_days", m.BatchIntervalDays); err != nil {
		return err
	}
	if s.Ticks(m.BatchIntervalDays) < 1 {
		return fieldErr("manufacturing.batch_interval_days", "shorter than one tick")
	}
	if m.CapacityPerBatch < -1 {
		return fieldErr("manufacturing.capacity_per_batch", "must be -1 (unlimited) or non-negative, got %d", m.CapacityPerBatch)
	}
	if m.BaseBatch < 0 {
		return fieldErr("manufacturing.base_batch", "must be non-negative, got %d", m.BaseBatch)
	}
	return s.validateSpan("manufacturing.first_batch_day", m.FirstBatchDay)
}

func (s *Scenario) validateTier(prefix string, t *TierSpec, names map[string]bool) error {
	if t.Name == "" {
		return fieldErr(prefix+".name", "required")
	}
	if names[t.Name] {
		return fieldErr(prefix+".name", "duplicate or reserved name %q", t.Name)
	}
	names[t.Name] = true
	if t.InitialStock < 0 {
		return fieldErr(prefix+".initial_stock", "must be non-negative, got %d", t.InitialStock)
	}
	if t.Capacity != nil {
		if *t.Capacity < 0 {
			return fieldErr(prefix+".capacity", "must be non-negative, got %d", *t.Capacity)
		}
		if t.InitialStock > *t.Capacity {
			return fieldErr(prefix+".initial_stock", "%d exceeds capacity %d", t.InitialStock, *t.Capacity)
		}
	}
	r := &t.Reorder
	if r.Threshold < 0 {
		return fieldErr(prefix+".reorder.threshold", "must be non-negative, got %d", r.Threshold)
	}
	if r.Quantity < 0 {
		return fieldErr(prefix+".reorder.quantity", "must be non-negative, got %d", r.Quantity)
	}
	if err := s.validatePositiveSpan(prefix+".reorder.review_period_days", r.ReviewPeriodDays); err != nil {
		return err
	}
	if r.MaxOutstanding < 1 {
		return fieldErr(prefix+".reorder.max_outstanding", "must be at least 1, got %d", r.MaxOutstanding)
	}
	return validateFiniteNonNegative(prefix+".reorder.lookahead_periods", r.LookaheadPeriods)
}

func (s *Scenario) validateEnrollment(prefix string, e *EnrollmentSpec) error {
	if !validArrivalProcesses[e.Process] {
		return fieldErr(prefix+".process", "unknown arrival process %q; valid: poisson, constant, gamma", e.Process)
	}
	if err := s.validatePositiveSpan(prefix+".mean_interarrival_days", e.MeanInterarrivalDays); err != nil {
		return err
	}
	if e.CV != nil {
		if err := validateFinitePositive(prefix+".cv", *e.CV); err != nil {
			return err
		}
	}
	if e.Target < 0 {
		return fieldErr(prefix+".target", "must be non-negative, got %d", e.Target)
	}
	if e.ScreenFailureRate < 0 || e.ScreenFailureRate > 1 || math.IsNaN(e.ScreenFailureRate) {
		return fieldErr(prefix+".screen_failure_rate", "must be in [0, 1], got %f", e.ScreenFailureRate)
	}
	return validateFiniteNonNegative(prefix+".dropout_hazard_per_day", e.DropoutHazardPerDay)
}

func (s *Scenario) validateDosage(prefix string, d *DosageSpec) error {
	if d.UnitsPerPatient < 0 {
		return fieldErr(prefix+".units_per_patient", "must be non-negative, got %d", d.UnitsPerPatient)
	}
	if err := s.validatePositiveSpan(prefix+".period_days", d.PeriodDays); err != nil {
		return err
	}
	if s.Ticks(d.PeriodDays) < 1 {
		return fieldErr(prefix+".period_days", "shorter than one tick")
	}
	if !validForecastPolicies[d.Forecast.Policy] {
		return fieldErr(prefix+".forecast.policy", "unknown policy %q; valid: last, moving-average", d.Forecast.Policy)
	}
	if d.Forecast.Window < 0 {
		return fieldErr(prefix+".forecast.window", "must be non-negative, got %d", d.Forecast.Window)
	}
	return nil
}

func (s *Scenario) validateTransit(names map[string]bool) error {
	if err := s.validateDelay("transit.default", &s.Transit.Default); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for i := range s.Transit.Routes {
		r := &s.Transit.Routes[i]
		prefix := fmt.Sprintf("transit.routes[%d]", i)
		if !names[r.From] {
			return fieldErr(prefix+".from", "unknown node %q", r.From)
		}
		if !names[r.To] {
			return fieldErr(prefix+".to", "unknown node %q", r.To)
		}
		key := r.From + "->" + r.To
		if seen[key] {
			return fieldErr(prefix, "duplicate route %s", key)
		}
		seen[key] = true
		if err := s.validateDelay(prefix, &r.DelaySpec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scenario) validateDelay(prefix string, d *DelaySpec) error {
	required, ok := validDelayTypes[d.Type]
	if !ok {
		return fieldErr(prefix+".type", "unknown delay type %q; valid: constant, uniform, exponential, normal", d.Type)
	}
	for _, name := range required {
		if _, ok := d.Params[name]; !ok {
			return fieldErr(prefix+".params."+name, "required for %s delays", d.Type)
		}
	}
	for name, val := range d.Params {
		if err := s.validateSpan(prefix+".params."+name, val); err != nil {
			return err
		}
	}
	if d.Type == "uniform" && d.Params["min_days"] > d.Params["max_days"] {
		return fieldErr(prefix+".params", "min_days %g exceeds max_days %g", d.Params["min_days"], d.Params["max_days"])
	}
	return nil
}

// CheckSpan reports a *ConfigError when days, at the scenario's tick
// resolution, exceeds MaxTicks.
func (s *Scenario) CheckSpan(field string, days float64) error {
	if days*float64(s.TicksPerDay) > float64(MaxTicks) {
		return fieldErr(field, "%g days exceeds the longest representable duration (%d ticks)", days, MaxTicks)
	}
	return nil
}

func (s *Scenario) validateSpan(name string, days float64) error {
	if err := validateFiniteNonNegative(name, days); err != nil {
		return err
	}
	return s.CheckSpan(name, days)
}

func (s *Scenario) validatePositiveSpan(name string, days float64) error {
	if err := validateFinitePositive(name, days); err != nil {
		return err
	}
	return s.CheckSpan(name, days)
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fieldErr(name, "must be a finite number, got %f", val)
	}
	if val <= 0 {
		return fieldErr(name, "must be positive, got %g", val)
	}
	return nil
}

func validateFiniteNonNegative(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fieldErr(name, "must be a finite number, got %f", val)
	}
	if val < 0 {
		return fieldErr(name, "must be non-negative, got %g", val)
	}
	return nil
}
