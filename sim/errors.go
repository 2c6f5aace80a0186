package sim

import (
	"fmt"
	"strings"
)

// PendingEvent describes a queued resumption in an InvariantViolation dump.
type PendingEvent struct {
	Time   int64
	Seq    uint64
	Target string
}

// InvariantViolation reports a defect in the simulation itself, such as an
// attempt to schedule into the past. It is fatal: the run stops and the
// kernel state at the time of the violation is attached for diagnosis.
type InvariantViolation struct {
	Reason     string
	Clock      int64
	Dispatched uint64
	Pending    []PendingEvent
	// State holds extra diagnostic lines appended by the owner of the run,
	// e.g. resource levels.
	State []string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("scheduling invariant violated at tick %d: %s", v.Clock, v.Reason)
}

// Dump renders the full diagnostic state as multi-line text.
func (v *InvariantViolation) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", v.Error())
	fmt.Fprintf(&sb, "dispatched: %d\n", v.Dispatched)
	fmt.Fprintf(&sb, "pending (%d):\n", len(v.Pending))
	for _, p := range v.Pending {
		fmt.Fprintf(&sb, "  t=%d seq=%d %s\n", p.Time, p.Seq, p.Target)
	}
	for _, line := range v.State {
		fmt.Fprintf(&sb, "%s\n", line)
	}
	return sb.String()
}
