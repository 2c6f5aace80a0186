package sim

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Forever is a run horizon that never stops the dispatch loop on its own.
const Forever = int64(math.MaxInt64)

// Scheduler owns the simulated clock and the queue of pending resumptions.
// Entries are dispatched in (time, insertion sequence) order, so events
// scheduled for the same tick run first-in first-out.
//
// Thread-safety: NOT thread-safe. A Scheduler and every process attached to it
// must be driven from a single goroutine.
type Scheduler struct {
	clock      int64
	queue      eventQueue
	nextSeq    uint64
	dispatched uint64
	running    bool
	onDispatch []func(now int64)
}

// NewScheduler creates a Scheduler with its clock at zero.
func NewScheduler() *Scheduler {
	return &Scheduler{
		queue: make(eventQueue, 0),
	}
}

// Now returns the current simulated time in ticks.
func (s *Scheduler) Now() int64 {
	return s.clock
}

// Pending returns the number of resumptions waiting in the queue.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// Dispatched returns how many resumptions have been executed so far.
func (s *Scheduler) Dispatched() uint64 {
	return s.dispatched
}

// PeekTime returns the timestamp of the next pending resumption.
func (s *Scheduler) PeekTime() (int64, bool) {
	if len(s.queue) == 0 {
		return 0, false
	}
	return s.queue[0].time, true
}

// OnDispatch registers fn to be called after the clock advances and before
// the resumption executes. Used for progress reporting and trace checks.
func (s *Scheduler) OnDispatch(fn func(now int64)) {
	s.onDispatch = append(s.onDispatch, fn)
}

// Schedule resumes target after delay ticks. Panics with *InvariantViolation
// if delay is negative or target is nil.
func (s *Scheduler) Schedule(delay int64, target Process) *Handle {
	if delay < 0 {
		s.violate(fmt.Sprintf("negative delay %d for %T", delay, target))
	}
	if delay > Forever-s.clock {
		s.violate(fmt.Sprintf("delay %d overflows the clock for %T", delay, target))
	}
	return s.ScheduleAt(s.clock+delay, target)
}

// ScheduleAt resumes target at absolute time t. Panics with *InvariantViolation
// if t is earlier than the current clock or target is nil.
func (s *Scheduler) ScheduleAt(t int64, target Process) *Handle {
	if target == nil {
		s.violate("nil resumption target")
	}
	if t < s.clock {
		s.violate(fmt.Sprintf("event for %T at %d is earlier than clock %d", target, t, s.clock))
	}
	s.nextSeq++
	e := &entry{time: t, seq: s.nextSeq, target: target}
	heap.Push(&s.queue, e)
	return &Handle{e: e}
}

// Cancel removes a still-pending resumption from the queue. It returns false
// when the resumption already fired or was cancelled before.
func (s *Scheduler) Cancel(h *Handle) bool {
	if !h.Pending() {
		return false
	}
	heap.Remove(&s.queue, h.e.index)
	return true
}

// Run dispatches pending resumptions in order until the queue is empty or the
// next resumption is at or beyond until. When resumptions remain, the clock is
// left at until so that a later Run continues from there.
//
// A scheduling invariant violation raised by any process aborts the run and
// is returned as an *InvariantViolation.
func (s *Scheduler) Run(until int64) (err error) {
	if s.running {
		panic("Scheduler.Run called re-entrantly")
	}
	if until < s.clock {
		return s.newViolation(fmt.Sprintf("run horizon %d is earlier than clock %d", until, s.clock))
	}
	s.running = true
	defer func() {
		s.running = false
		if r := recover(); r != nil {
			v, ok := r.(*InvariantViolation)
			if !ok {
				panic(r)
			}
			err = v
		}
	}()

	for len(s.queue) > 0 {
		if s.queue[0].time >= until {
			break
		}
		e := heap.Pop(&s.queue).(*entry)
		if e.time < s.clock {
			s.violate(fmt.Sprintf("clock went backwards: %d < %d", e.time, s.clock))
		}
		s.clock = e.time
		s.dispatched++
		for _, fn := range s.onDispatch {
			fn(s.clock)
		}
		logrus.Tracef("[tick %07d] Executing %T", s.clock, e.target)
		e.target.Advance(s.clock)
	}
	if len(s.queue) > 0 && until != Forever {
		s.clock = until
	}
	logrus.Debugf("[tick %07d] Run stopped with %d pending events", s.clock, len(s.queue))
	return nil
}

func (s *Scheduler) violate(reason string) {
	panic(s.newViolation(reason))
}

func (s *Scheduler) newViolation(reason string) *InvariantViolation {
	v := &InvariantViolation{
		Reason:     reason,
		Clock:      s.clock,
		Dispatched: s.dispatched,
	}
	// Dump in dispatch order without disturbing the live heap.
	snapshot := make(eventQueue, len(s.queue))
	for i, e := range s.queue {
		snapshot[i] = &entry{time: e.time, seq: e.seq, target: e.target, index: i}
	}
	for snapshot.Len() > 0 {
		e := heap.Pop(&snapshot).(*entry)
		v.Pending = append(v.Pending, PendingEvent{
			Time:   e.time,
			Seq:    e.seq,
			Target: fmt.Sprintf("%T", e.target),
		})
	}
	return v
}
