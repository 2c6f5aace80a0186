// Package supply assembles the clinical trial supply chain on top of the sim
// kernel: storage tiers, patient enrollment, dosing, inventory control,
// manufacturing and the distribution network.
//
// Every component is a sim.Process. Components never call into each other's
// process logic; they interact through sim.Resource operations, read-only
// queries (active patients, forecasts, open orders) and scheduled events.
package supply

import (
	"fmt"

	"github.com/imp-sim/imp-sim/sim"
	"github.com/imp-sim/imp-sim/sim/scenario"
)

// Role identifies a tier's position in the supply chain.
type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleCentral      Role = "central"
	RoleRegional     Role = "regional"
	RoleSite         Role = "site"
)

// Tier is a storage location: a stock pool with an owner, an upstream
// supplier and a reorder policy.
type Tier struct {
	Name     string
	Role     Role
	Pool     *sim.Resource
	Upstream *Tier // nil for the manufacturer
	Reorder  scenario.ReorderSpec
	Initial  int64

	openOrders int
	onOrder    int64
}

// Level returns the units currently held.
func (t *Tier) Level() int64 { return t.Pool.Level() }

// OpenOrders returns the number of reorders not yet delivered.
func (t *Tier) OpenOrders() int { return t.openOrders }

// OnOrder returns the units requested by open reorders.
func (t *Tier) OnOrder() int64 { return t.onOrder }

func (t *Tier) String() string {
	return fmt.Sprintf("%s(%s) level=%d waiting=%d open_orders=%d on_order=%d wasted=%d",
		t.Name, t.Role, t.Pool.Level(), t.Pool.Waiting(), t.openOrders, t.onOrder, t.Pool.Wasted())
}

func (t *Tier) orderIssued(qty int64) {
	t.openOrders++
	t.onOrder += qty
}

func (t *Tier) orderDelivered(orders int, qty int64) {
	t.openOrders -= orders
	if t.openOrders < 0 {
		t.openOrders = 0
	}
	t.onOrder -= qty
	if t.onOrder < 0 {
		t.onOrder = 0
	}
}

func capacityOf(spec scenario.TierSpec) int64 {
	if spec.Capacity == nil {
		return sim.Unbounded
	}
	return *spec.Capacity
}
