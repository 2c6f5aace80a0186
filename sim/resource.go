package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/imp-sim/imp-sim/sim/trace"
)

// Unbounded marks a Resource without a capacity limit.
const Unbounded = int64(-1)

// ResourceConfig groups the parameters of a stock pool.
type ResourceConfig struct {
	Name     string
	Initial  int64      // starting level (must be >= 0 and <= Capacity when bounded)
	Capacity int64      // Unbounded or a non-negative limit
	Policy   WaitPolicy // nil = StrictFIFO
}

// Resource is a stock pool of IMP units.
//
// The level never goes negative and, when bounded, never exceeds Capacity.
// Mutation happens only through Deposit and TryWithdraw; both run inside a
// single dispatch, so no locking is involved. Waiters are granted in the
// order chosen by the WaitPolicy and resumed through the Scheduler.
type Resource struct {
	name     string
	sched    *Scheduler
	rec      trace.Recorder
	policy   WaitPolicy
	level    int64
	capacity int64
	waiters  WaitQueue

	deposited int64 // units accepted by Deposit
	withdrawn int64 // units handed out by TryWithdraw or grants
	wasted    int64 // units clipped by capacity
}

// NewResource creates a stock pool attached to sched. rec may be nil.
// Panics on a negative initial level or an initial level above capacity.
func NewResource(sched *Scheduler, rec trace.Recorder, cfg ResourceConfig) *Resource {
	if sched == nil {
		panic("NewResource: scheduler must not be nil")
	}
	if cfg.Initial < 0 {
		panic(fmt.Sprintf("NewResource(%s): negative initial level %d", cfg.Name, cfg.Initial))
	}
	if cfg.Capacity < Unbounded {
		panic(fmt.Sprintf("NewResource(%s): invalid capacity %d", cfg.Name, cfg.Capacity))
	}
	if cfg.Capacity != Unbounded && cfg.Initial > cfg.Capacity {
		panic(fmt.Sprintf("NewResource(%s): initial level %d exceeds capacity %d", cfg.Name, cfg.Initial, cfg.Capacity))
	}
	policy := cfg.Policy
	if policy == nil {
		policy = StrictFIFO{}
	}
	return &Resource{
		name:     cfg.Name,
		sched:    sched,
		rec:      rec,
		policy:   policy,
		level:    cfg.Initial,
		capacity: cfg.Capacity,
	}
}

// Name returns the pool name.
func (r *Resource) Name() string { return r.name }

// Level returns the units currently held. Non-blocking.
func (r *Resource) Level() int64 { return r.level }

// Capacity returns the capacity limit, or Unbounded.
func (r *Resource) Capacity() int64 { return r.capacity }

// Waiting returns the number of queued withdrawals.
func (r *Resource) Waiting() int { return r.waiters.Len() }

// Outstanding returns the queued withdrawals in queue order.
// The returned slice MUST NOT be modified.
func (r *Resource) Outstanding() []*Withdrawal { return r.waiters.Items() }

// Wasted returns the total units clipped by capacity.
func (r *Resource) Wasted() int64 { return r.wasted }

// Deposited returns the total units accepted into the pool.
func (r *Resource) Deposited() int64 { return r.deposited }

// Withdrawn returns the total units removed from the pool.
func (r *Resource) Withdrawn() int64 { return r.withdrawn }

// Deposit adds amount units, clipped to capacity, and grants any waiters the
// policy allows. The clipped remainder is recorded as an overflow. Returns the
// number of units accepted. Panics if amount is not positive.
func (r *Resource) Deposit(amount int64) int64 {
	if amount <= 0 {
		panic(fmt.Sprintf("Resource(%s).Deposit: amount must be positive, got %d", r.name, amount))
	}
	accepted := amount
	if r.capacity != Unbounded && r.level+amount > r.capacity {
		accepted = r.capacity - r.level
		overflow := amount - accepted
		r.wasted += overflow
		logrus.Warnf("[tick %07d] %s overflow: %d units wasted (capacity %d)", r.sched.Now(), r.name, overflow, r.capacity)
		r.record(trace.Record{
			Kind:     trace.KindOverflow,
			Location: r.name,
			Quantity: overflow,
			Level:    trace.Int(r.capacity),
		})
	}
	r.level += accepted
	r.deposited += accepted
	r.grantWaiters()
	return accepted
}

// TryWithdraw removes amount units immediately when the policy admits it and
// returns true with a granted Withdrawal. Otherwise the request is queued,
// target will be resumed once the units are granted, and false is returned.
// Granted units are removed from the pool at grant time.
func (r *Resource) TryWithdraw(amount int64, target Process) (*Withdrawal, bool) {
	if amount <= 0 {
		panic(fmt.Sprintf("Resource(%s).TryWithdraw: amount must be positive, got %d", r.name, amount))
	}
	now := r.sched.Now()
	w := &Withdrawal{Amount: amount, RequestedAt: now, target: target}
	if r.policy.Admit(r.waiters.Len(), amount, r.level) {
		r.take(w, now)
		return w, true
	}
	if target == nil {
		panic(fmt.Sprintf("Resource(%s).TryWithdraw: blocked request needs a resumption target", r.name))
	}
	r.waiters.Enqueue(w)
	return w, false
}

func (r *Resource) take(w *Withdrawal, now int64) {
	r.level -= w.Amount
	r.withdrawn += w.Amount
	w.Granted = true
	w.GrantedAt = now
}

func (r *Resource) grantWaiters() {
	now := r.sched.Now()
	for {
		i := r.policy.Next(r.waiters.Items(), r.level)
		if i < 0 {
			return
		}
		w := r.waiters.RemoveAt(i)
		r.take(w, now)
		r.sched.Schedule(0, w.target)
	}
}

func (r *Resource) record(rec trace.Record) {
	if r.rec == nil {
		return
	}
	rec.Time = r.sched.Now()
	r.rec.Record(rec)
}
