package supply

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/imp-sim/imp-sim/sim"
	"github.com/imp-sim/imp-sim/sim/trace"
)

// Orderer places a replenishment order for a tier.
type Orderer interface {
	Order(tier *Tier, qty int64)
}

// OrdererFunc adapts a function to the Orderer interface.
type OrdererFunc func(tier *Tier, qty int64)

// Order calls f(tier, qty).
func (f OrdererFunc) Order(tier *Tier, qty int64) { f(tier, qty) }

// InventoryControl reviews one tier every review period. It snapshots the
// level and reorders from upstream when the projected level falls to the
// threshold, unless max_outstanding orders are already open.
type InventoryControl struct {
	sched    *sim.Scheduler
	rec      trace.Recorder
	tier     *Tier
	period   int64
	forecast func() int64 // downstream demand per dosing period
	orderer  Orderer

	reviews  int
	reorders int
}

// NewInventoryControl creates the review process for tier. forecast may be nil
// when no lookahead is configured.
func NewInventoryControl(sched *sim.Scheduler, rec trace.Recorder, tier *Tier, period int64, forecast func() int64, orderer Orderer) *InventoryControl {
	if forecast == nil {
		forecast = func() int64 { return 0 }
	}
	return &InventoryControl{
		sched:    sched,
		rec:      rec,
		tier:     tier,
		period:   period,
		forecast: forecast,
		orderer:  orderer,
	}
}

// Start schedules the first review at the current time.
func (c *InventoryControl) Start() {
	c.sched.Schedule(0, c)
}

// Reorders returns the number of reorders issued.
func (c *InventoryControl) Reorders() int { return c.reorders }

// Projected returns the level net of the forecast lookahead.
func (c *InventoryControl) Projected() int64 {
	lookahead := int64(math.Ceil(c.tier.Reorder.LookaheadPeriods * float64(c.forecast())))
	return c.tier.Level() - lookahead
}

// Advance runs one review.
func (c *InventoryControl) Advance(now int64) {
	c.reviews++
	t := c.tier
	c.record(trace.Record{
		Kind:     trace.KindStockSnapshot,
		Location: t.Name,
		Quantity: t.OnOrder(),
		Level:    trace.Int(t.Level()),
		Detail:   fmt.Sprintf("waiting=%d open_orders=%d", t.Pool.Waiting(), t.OpenOrders()),
	})
	policy := t.Reorder
	projected := c.Projected()
	if policy.Quantity > 0 && projected <= policy.Threshold && t.OpenOrders() < policy.MaxOutstanding {
		c.reorders++
		t.orderIssued(policy.Quantity)
		logrus.Debugf("[tick %07d] %s reorder %d from %s (projected %d <= %d)", now, t.Name, policy.Quantity, t.Upstream.Name, projected, policy.Threshold)
		c.record(trace.Record{
			Kind:     trace.KindReorderIssued,
			Location: t.Name,
			Target:   t.Upstream.Name,
			Quantity: policy.Quantity,
			Level:    trace.Int(t.Level()),
			Detail:   fmt.Sprintf("projected=%d threshold=%d open_orders=%d", projected, policy.Threshold, t.OpenOrders()),
		})
		c.orderer.Order(t, policy.Quantity)
	}
	c.sched.Schedule(c.period, c)
}

func (c *InventoryControl) record(r trace.Record) {
	if c.rec == nil {
		return
	}
	r.Time = c.sched.Now()
	c.rec.Record(r)
}
