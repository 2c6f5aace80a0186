package sim

import "fmt"

// WaitPolicy decides which queued withdrawals a Resource may grant.
type WaitPolicy interface {
	// Next returns the index of the next grantable withdrawal given the
	// current level, or -1 if none may be granted.
	Next(waiters []*Withdrawal, level int64) int
	// Admit reports whether a new request may bypass the queue.
	Admit(waiting int, amount, level int64) bool
}

// StrictFIFO grants withdrawals only from the head of the queue. A large
// blocked request blocks every request behind it.
type StrictFIFO struct{}

func (StrictFIFO) Next(waiters []*Withdrawal, level int64) int {
	if len(waiters) > 0 && waiters[0].Amount <= level {
		return 0
	}
	return -1
}

func (StrictFIFO) Admit(waiting int, amount, level int64) bool {
	return waiting == 0 && amount <= level
}

// FirstFit grants the earliest queued withdrawal that fits the current level,
// letting small requests overtake a blocked large one.
type FirstFit struct{}

func (FirstFit) Next(waiters []*Withdrawal, level int64) int {
	for i, w := range waiters {
		if w.Amount <= level {
			return i
		}
	}
	return -1
}

func (FirstFit) Admit(_ int, amount, level int64) bool {
	return amount <= level
}

// ValidWaitPolicies is the set of recognized wait policy names.
var ValidWaitPolicies = map[string]bool{"": true, "strict-fifo": true, "first-fit": true}

// NewWaitPolicy creates a WaitPolicy by name.
// Valid names: "strict-fifo" (default), "first-fit".
// Panics on unrecognized names.
func NewWaitPolicy(name string) WaitPolicy {
	switch name {
	case "", "strict-fifo":
		return StrictFIFO{}
	case "first-fit":
		return FirstFit{}
	default:
		panic(fmt.Sprintf("unknown wait policy %q", name))
	}
}
