// Implements the WaitQueue, which holds withdrawals waiting for stock.
// Withdrawals are enqueued when a Resource cannot satisfy them immediately.

package sim

import (
	"fmt"
	"strings"
)

// Withdrawal is a request for units from a Resource.
type Withdrawal struct {
	Amount      int64   // units requested
	RequestedAt int64   // tick the request was made
	GrantedAt   int64   // tick the units were handed over; valid once Granted
	Granted     bool    // true once the units have been removed from the pool
	target      Process // resumed when the request is granted from the queue
}

func (w *Withdrawal) String() string {
	return fmt.Sprintf("%d@%d", w.Amount, w.RequestedAt)
}

// WaitQueue is a FIFO queue of withdrawals blocked on a Resource.
type WaitQueue struct {
	queue []*Withdrawal
}

// Enqueue adds a withdrawal to the back of the queue.
func (wq *WaitQueue) Enqueue(w *Withdrawal) {
	wq.queue = append(wq.queue, w)
}

func (wq *WaitQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, w := range wq.queue {
		sb.WriteString(w.String())
		if i < len(wq.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// Len returns the number of waiting withdrawals.
func (wq *WaitQueue) Len() int {
	return len(wq.queue)
}

// Peek returns the withdrawal at the front of the queue without removing it.
// Returns nil if the queue is empty.
func (wq *WaitQueue) Peek() *Withdrawal {
	if len(wq.queue) == 0 {
		return nil
	}
	return wq.queue[0]
}

// Items returns the queue contents in arrival order.
// The returned slice is the queue's internal storage; callers MUST NOT modify it.
func (wq *WaitQueue) Items() []*Withdrawal {
	return wq.queue
}

// RemoveAt removes and returns the withdrawal at position i.
func (wq *WaitQueue) RemoveAt(i int) *Withdrawal {
	if i < 0 || i >= len(wq.queue) {
		panic(fmt.Sprintf("RemoveAt: index %d out of range [0,%d)", i, len(wq.queue)))
	}
	w := wq.queue[i]
	wq.queue = append(wq.queue[:i], wq.queue[i+1:]...)
	return w
}

// Dequeue removes the withdrawal at the front of the queue.
func (wq *WaitQueue) Dequeue() *Withdrawal {
	if len(wq.queue) == 0 {
		return nil
	}
	w := wq.queue[0]
	wq.queue = wq.queue[1:]
	return w
}
