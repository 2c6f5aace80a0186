package supply

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/imp-sim/imp-sim/sim"
	"github.com/imp-sim/imp-sim/sim/trace"
)

// ShipmentState is the lifecycle stage of a Shipment.
type ShipmentState int

const (
	ShipmentWaiting   ShipmentState = iota // waiting for stock at the origin
	ShipmentInTransit                      // units withdrawn, arrival scheduled
	ShipmentDelivered                      // units deposited at the destination
)

func (s ShipmentState) String() string {
	switch s {
	case ShipmentWaiting:
		return "waiting"
	case ShipmentInTransit:
		return "in_transit"
	case ShipmentDelivered:
		return "delivered"
	default:
		return fmt.Sprintf("ShipmentState(%d)", int(s))
	}
}

// Shipment moves units from one tier to another. It is a sim.Process: it is
// resumed once when the origin grants a blocked withdrawal and once on arrival.
type Shipment struct {
	ID          int
	Origin      *Tier
	Destination *Tier
	Quantity    int64
	RequestedAt int64
	DepartTime  int64
	ArrivalTime int64
	State       ShipmentState

	w       *sim.Withdrawal
	orders  int   // reorders at the destination closed by this delivery
	ordered int64 // units of those reorders carried by this delivery
	network *Network
}

// Advance departs a shipment whose withdrawal was granted from the origin
// queue, or delivers one that has reached its arrival time.
func (s *Shipment) Advance(now int64) {
	switch s.State {
	case ShipmentWaiting:
		s.network.depart(s, now)
	case ShipmentInTransit:
		s.network.arrive(s, now)
	default:
		panic(fmt.Sprintf("shipment %d resumed after delivery", s.ID))
	}
}

func (s *Shipment) String() string {
	return fmt.Sprintf("shipment %d %s->%s qty=%d %s", s.ID, s.Origin.Name, s.Destination.Name, s.Quantity, s.State)
}

type route struct {
	from, to string
}

// Network moves stock between tiers with sampled transit delays. Arrivals are
// never serialized: a later shipment with a shorter delay arrives first.
type Network struct {
	sched  *sim.Scheduler
	rec    trace.Recorder
	rng    *rand.Rand
	def    DelaySampler
	routes map[route]DelaySampler

	nextID    int
	shipments []*Shipment
}

// NewNetwork creates a Network. def applies to routes without an override.
func NewNetwork(sched *sim.Scheduler, rec trace.Recorder, rng *rand.Rand, def DelaySampler) *Network {
	return &Network{
		sched:  sched,
		rec:    rec,
		rng:    rng,
		def:    def,
		routes: make(map[route]DelaySampler),
	}
}

// SetRoute overrides the delay for shipments from -> to.
func (n *Network) SetRoute(from, to string, d DelaySampler) {
	n.routes[route{from, to}] = d
}

// InTransit returns the units withdrawn from an origin but not yet delivered,
// including shipments granted from a queue that have not departed yet.
func (n *Network) InTransit() int64 {
	var units int64
	for _, s := range n.shipments {
		if s.w.Granted && s.State != ShipmentDelivered {
			units += s.Quantity
		}
	}
	return units
}

// Shipments returns every shipment created so far, in creation order.
// The returned slice MUST NOT be modified.
func (n *Network) Shipments() []*Shipment { return n.shipments }

// Ship withdraws qty from origin and delivers it to destination after the
// route's transit delay. When the origin cannot supply the units the shipment
// waits in the origin's queue and departs once granted.
func (n *Network) Ship(origin, destination *Tier, qty int64) *Shipment {
	return n.ship(origin, destination, qty, 0, 0)
}

// shipOrder ships qty against open reorders of destination. Delivery closes
// that many orders and releases ordered units from the destination's on-order.
func (n *Network) shipOrder(origin, destination *Tier, qty int64, orders int, ordered int64) *Shipment {
	return n.ship(origin, destination, qty, orders, ordered)
}

func (n *Network) ship(origin, destination *Tier, qty int64, orders int, ordered int64) *Shipment {
	n.nextID++
	s := &Shipment{
		ID:          n.nextID,
		Origin:      origin,
		Destination: destination,
		Quantity:    qty,
		RequestedAt: n.sched.Now(),
		State:       ShipmentWaiting,
		orders:      orders,
		ordered:     ordered,
		network:     n,
	}
	n.shipments = append(n.shipments, s)
	w, ok := origin.Pool.TryWithdraw(qty, s)
	s.w = w
	if ok {
		n.depart(s, n.sched.Now())
		return s
	}
	logrus.Debugf("[tick %07d] %s blocked at %s (level %d)", n.sched.Now(), s, origin.Name, origin.Level())
	n.record(trace.Record{
		Kind:     trace.KindShipmentBlocked,
		Location: origin.Name,
		Target:   destination.Name,
		Quantity: qty,
		Level:    trace.Int(origin.Level()),
		Detail:   shipmentDetail(s),
	})
	return s
}

func (n *Network) depart(s *Shipment, now int64) {
	delay := n.delayFor(s.Origin.Name, s.Destination.Name).SampleDelay(n.rng)
	s.State = ShipmentInTransit
	s.DepartTime = now
	s.ArrivalTime = now + delay
	n.record(trace.Record{
		Kind:     trace.KindShipmentDeparted,
		Location: s.Origin.Name,
		Target:   s.Destination.Name,
		Quantity: s.Quantity,
		Level:    trace.Int(s.Origin.Level()),
		Detail:   fmt.Sprintf("%s eta=%d", shipmentDetail(s), s.ArrivalTime),
	})
	n.sched.Schedule(delay, s)
}

func (n *Network) arrive(s *Shipment, now int64) {
	s.State = ShipmentDelivered
	s.Destination.orderDelivered(s.orders, s.ordered)
	s.Destination.Pool.Deposit(s.Quantity)
	n.record(trace.Record{
		Kind:     trace.KindShipmentArrived,
		Location: s.Destination.Name,
		Target:   s.Origin.Name,
		Quantity: s.Quantity,
		Level:    trace.Int(s.Destination.Level()),
		Detail:   fmt.Sprintf("%s transit=%d", shipmentDetail(s), now-s.DepartTime),
	})
}

func (n *Network) delayFor(from, to string) DelaySampler {
	if d, ok := n.routes[route{from, to}]; ok {
		return d
	}
	return n.def
}

func (n *Network) record(r trace.Record) {
	if n.rec == nil {
		return
	}
	r.Time = n.sched.Now()
	n.rec.Record(r)
}

func shipmentDetail(s *Shipment) string {
	return fmt.Sprintf("shipment=%d", s.ID)
}
