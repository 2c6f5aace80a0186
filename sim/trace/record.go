// Package trace provides the chronological domain event log of a simulation run.
// This package has no dependencies on sim/ or its sub-packages; it stores pure data types.
package trace

// Kind names a domain event.
type Kind string

const (
	KindEnrollment       Kind = "enrollment"
	KindScreenFailure    Kind = "screen_failure"
	KindDropout          Kind = "dropout"
	KindCompletion       Kind = "completion"
	KindEnrollmentClosed Kind = "enrollment_closed"
	KindDemandForecast   Kind = "demand_forecast"
	KindDoseAdministered Kind = "dose_administered"
	KindUnmetDemand      Kind = "unmet_demand"
	KindBackorderFilled  Kind = "backorder_filled"
	KindUnfulfilledAtEnd Kind = "unfulfilled_at_end"
	KindProductionBatch  Kind = "production_batch"
	KindReorderIssued    Kind = "reorder_issued"
	KindShipmentBlocked  Kind = "shipment_blocked"
	KindShipmentDeparted Kind = "shipment_departed"
	KindShipmentArrived  Kind = "shipment_arrived"
	KindStockSnapshot    Kind = "stock_snapshot"
	KindOverflow         Kind = "overflow"
)

// periodicKinds are emitted on every review or dosing period rather than on a
// state change. They are dropped at LevelEvents.
var periodicKinds = map[Kind]bool{
	KindStockSnapshot:  true,
	KindDemandForecast: true,
}

// Record captures a single domain event. Field meaning depends on Kind:
// Location is where the event happened (site, tier, route origin), Target the
// destination of a shipment or reorder, Quantity the units involved and Level
// the stock level after the event when it is relevant. Shortfall is set on
// unmet_demand records: the units the site could not supply at request time.
type Record struct {
	Seq       int64  `json:"seq"`
	Time      int64  `json:"time"`
	Kind      Kind   `json:"kind"`
	Location  string `json:"location,omitempty"`
	Target    string `json:"target,omitempty"`
	Patient   string `json:"patient,omitempty"`
	Quantity  int64  `json:"quantity,omitempty"`
	Shortfall int64  `json:"shortfall,omitempty"`
	Level     *int64 `json:"level,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// patientKinds carry the site's active patient count in Level rather than a
// stock level.
var patientKinds = map[Kind]bool{
	KindEnrollment: true,
	KindDropout:    true,
	KindCompletion: true,
}

// IsPatientKind reports whether records of kind k carry a patient count in
// Level.
func IsPatientKind(k Kind) bool {
	return patientKinds[k]
}

// Int returns a pointer to v, for Record.Level.
func Int(v int64) *int64 {
	return &v
}

// LevelOr returns the record's level, or def when it carries none.
func (r Record) LevelOr(def int64) int64 {
	if r.Level == nil {
		return def
	}
	return *r.Level
}
