package supply

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/imp-sim/imp-sim/sim"
	"github.com/imp-sim/imp-sim/sim/trace"
)

// Unlimited marks a manufacturing facility without a per-batch capacity.
const Unlimited = int64(-1)

type productionOrder struct {
	remaining int64
}

// ManufacturingConfig groups batch production parameters, in ticks.
type ManufacturingConfig struct {
	Interval   int64 // ticks between batches
	FirstBatch int64 // ticks until the first batch
	Capacity   int64 // units per batch; Unlimited or >= 0
	BaseBatch  int64 // make-to-stock units added to every batch
}

// Manufacturing produces IMP in batches. Each batch covers the order backlog
// plus the base batch, bounded by capacity; what cannot be made carries over.
// Finished units enter the facility's output pool and are shipped to central
// through the network.
type Manufacturing struct {
	cfg     ManufacturingConfig
	sched   *sim.Scheduler
	rec     trace.Recorder
	output  *Tier
	central *Tier
	network *Network

	orders   []*productionOrder
	backlog  int64
	produced int64
	batches  int
}

// NewManufacturing creates the production process. output is the
// manufacturer's own tier; batches ship from there to central.
func NewManufacturing(sched *sim.Scheduler, rec trace.Recorder, output, central *Tier, network *Network, cfg ManufacturingConfig) *Manufacturing {
	return &Manufacturing{
		cfg:     cfg,
		sched:   sched,
		rec:     rec,
		output:  output,
		central: central,
		network: network,
	}
}

// Start schedules the first batch.
func (m *Manufacturing) Start() {
	m.sched.Schedule(m.cfg.FirstBatch, m)
}

// Order adds qty units to the backlog on behalf of tier.
func (m *Manufacturing) Order(_ *Tier, qty int64) {
	m.orders = append(m.orders, &productionOrder{remaining: qty})
	m.backlog += qty
}

// Backlog returns the ordered units not yet produced.
func (m *Manufacturing) Backlog() int64 { return m.backlog }

// Produced returns the units produced so far.
func (m *Manufacturing) Produced() int64 { return m.produced }

// Advance produces one batch.
func (m *Manufacturing) Advance(now int64) {
	m.sched.Schedule(m.cfg.Interval, m)
	batch := m.backlog + m.cfg.BaseBatch
	if m.cfg.Capacity != Unlimited && batch > m.cfg.Capacity {
		batch = m.cfg.Capacity
	}
	if batch <= 0 {
		return
	}
	m.batches++
	m.produced += batch
	closed, ordered := m.allocate(batch)
	logrus.Debugf("[tick %07d] batch %d: %d units (backlog %d)", now, m.batches, batch, m.backlog)
	m.record(trace.Record{
		Kind:     trace.KindProductionBatch,
		Location: m.output.Name,
		Target:   m.central.Name,
		Quantity: batch,
		Detail:   fmt.Sprintf("batch=%d backlog=%d", m.batches, m.backlog),
	})
	m.output.Pool.Deposit(batch)
	m.network.shipOrder(m.output, m.central, batch, closed, ordered)
}

// allocate applies batch to the oldest orders first and returns how many
// orders it completes and how many ordered units it carries.
func (m *Manufacturing) allocate(batch int64) (closed int, ordered int64) {
	left := batch
	for len(m.orders) > 0 && left > 0 {
		o := m.orders[0]
		take := o.remaining
		if take > left {
			take = left
		}
		o.remaining -= take
		left -= take
		ordered += take
		if o.remaining == 0 {
			closed++
			m.orders = m.orders[1:]
		}
	}
	m.backlog -= ordered
	return closed, ordered
}

func (m *Manufacturing) record(r trace.Record) {
	if m.rec == nil {
		return
	}
	r.Time = m.sched.Now()
	m.rec.Record(r)
}
