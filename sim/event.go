package sim

// Process is a simulation entity that the Scheduler resumes.
// Advance is called once per dispatch with the current clock. Implementations
// keep their own resumption state and must return promptly: waiting is
// expressed by scheduling a future resumption, never by blocking.
type Process interface {
	Advance(now int64)
}

// ProcessFunc adapts an ordinary function to the Process interface.
type ProcessFunc func(now int64)

// Advance calls f(now).
func (f ProcessFunc) Advance(now int64) { f(now) }

// entry is a pending resumption in the scheduler queue.
type entry struct {
	time   int64
	seq    uint64
	target Process
	index  int // heap position; -1 once popped or cancelled
}

// Handle identifies a scheduled resumption so that it can be cancelled.
type Handle struct {
	e *entry
}

// Time returns the timestamp the resumption is scheduled for.
func (h *Handle) Time() int64 { return h.e.time }

// Pending reports whether the resumption is still waiting in the queue.
func (h *Handle) Pending() bool { return h != nil && h.e.index >= 0 }

// eventQueue implements heap.Interface and orders entries by (time, seq).
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-PriorityQueue
type eventQueue []*entry

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
