package supply

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/imp-sim/imp-sim/sim"
	"github.com/imp-sim/imp-sim/sim/trace"
)

// DoseRequest is one period's withdrawal of doses from a site. It is resumed
// by the site pool when a queued request is finally granted.
type DoseRequest struct {
	Period      int
	Units       int64
	RequestedAt int64

	w      *sim.Withdrawal
	dosage *Dosage
}

// Filled reports whether the site has handed over the units.
func (r *DoseRequest) Filled() bool { return r.w != nil && r.w.Granted }

// Advance records a late fill.
func (r *DoseRequest) Advance(now int64) {
	d := r.dosage
	d.consumed += r.Units
	d.record(trace.Record{
		Kind:     trace.KindBackorderFilled,
		Location: d.site.Name,
		Quantity: r.Units,
		Level:    trace.Int(d.site.Level()),
		Detail:   fmt.Sprintf("period=%d waited=%d", r.Period, now-r.RequestedAt),
	})
}

// Dosage administers doses to active patients at one site. Every period it
// computes demand from the active patient count, updates the site's forecast
// and issues a DoseRequest against the site pool.
type Dosage struct {
	sched      *sim.Scheduler
	rec        trace.Recorder
	site       *Tier
	patients   *Enrollment
	units      int64 // per patient per period
	period     int64 // ticks
	forecaster Forecaster

	periods  int
	consumed int64
	pending  []*DoseRequest
}

// NewDosage creates the dosing process for site. units is the dose per
// patient per period of period ticks.
func NewDosage(sched *sim.Scheduler, rec trace.Recorder, site *Tier, patients *Enrollment, units, period int64, f Forecaster) *Dosage {
	return &Dosage{
		sched:      sched,
		rec:        rec,
		site:       site,
		patients:   patients,
		units:      units,
		period:     period,
		forecaster: f,
	}
}

// Start schedules the first dosing period one period after the current time.
func (d *Dosage) Start() {
	d.sched.Schedule(d.period, d)
}

// Forecast returns the predicted demand for the next period.
func (d *Dosage) Forecast() int64 { return d.forecaster.Forecast() }

// Consumed returns the units administered so far.
func (d *Dosage) Consumed() int64 { return d.consumed }

// Periods returns the number of dosing periods elapsed.
func (d *Dosage) Periods() int { return d.periods }

// Outstanding returns the requests still waiting for stock.
func (d *Dosage) Outstanding() []*DoseRequest {
	var out []*DoseRequest
	for _, r := range d.pending {
		if !r.Filled() {
			out = append(out, r)
		}
	}
	return out
}

// Advance runs one dosing period.
func (d *Dosage) Advance(now int64) {
	d.periods++
	demand := int64(d.patients.Active()) * d.units
	d.forecaster.Observe(demand)
	d.record(trace.Record{
		Kind:     trace.KindDemandForecast,
		Location: d.site.Name,
		Quantity: d.forecaster.Forecast(),
		Detail:   fmt.Sprintf("period=%d demand=%d", d.periods, demand),
	})
	if demand > 0 {
		d.request(now, demand)
	}
	d.sched.Schedule(d.period, d)
}

func (d *Dosage) request(now, demand int64) {
	// Units already promised to earlier requests are not available to this one.
	var ahead int64
	for _, w := range d.site.Pool.Outstanding() {
		ahead += w.Amount
	}
	r := &DoseRequest{Period: d.periods, Units: demand, RequestedAt: now, dosage: d}
	w, ok := d.site.Pool.TryWithdraw(demand, r)
	r.w = w
	if ok {
		d.consumed += demand
		d.record(trace.Record{
			Kind:     trace.KindDoseAdministered,
			Location: d.site.Name,
			Quantity: demand,
			Level:    trace.Int(d.site.Level()),
			Detail:   fmt.Sprintf("period=%d", d.periods),
		})
		return
	}
	d.pending = append(d.pending, r)
	// Deposits grant every waiter that fits, so a queued request always
	// faces a level below what is already promised ahead of it plus its own
	// demand: shortfall is positive.
	available := max(d.site.Level()-ahead, 0)
	shortfall := demand - available
	logrus.Warnf("[tick %07d] %s unmet demand: %d units requested, %d short", now, d.site.Name, demand, shortfall)
	d.record(trace.Record{
		Kind:      trace.KindUnmetDemand,
		Location:  d.site.Name,
		Quantity:  demand,
		Shortfall: shortfall,
		Level:     trace.Int(d.site.Level()),
		Detail:    fmt.Sprintf("period=%d queued=%d", d.periods, d.site.Pool.Waiting()),
	})
}

// Finish records every request still queued as unfulfilled. Called once
// after the run stops.
func (d *Dosage) Finish() {
	for _, r := range d.Outstanding() {
		d.record(trace.Record{
			Kind:     trace.KindUnfulfilledAtEnd,
			Location: d.site.Name,
			Quantity: r.Units,
			Level:    trace.Int(d.site.Level()),
			Detail:   fmt.Sprintf("period=%d requested_at=%d", r.Period, r.RequestedAt),
		})
	}
}

func (d *Dosage) record(r trace.Record) {
	if d.rec == nil {
		return
	}
	r.Time = d.sched.Now()
	d.rec.Record(r)
}
