// Package sim provides the discrete-event simulation kernel for imp-sim.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - event.go: Process values and the pending-event heap
//   - scheduler.go: the simulated clock and the dispatch loop
//   - resource.go: stock pools with blocking withdrawals and FIFO waiters
//
// # Architecture
//
// The kernel knows nothing about clinical trials. Domain processes live in
// sub-packages:
//   - sim/supply/: enrollment, dosage, inventory control, manufacturing, distribution
//   - sim/scenario/: scenario file loading and validation
//   - sim/trace/: the chronological domain event log
//   - sim/metrics/: Prometheus metrics derived from the event log
//   - sim/report/: JSONL, SQLite and XLSX sinks for finished runs
//
// # Execution Model
//
// A simulation is single-threaded and cooperative. Every process is a value
// implementing Process; the Scheduler calls Advance exactly once per dispatch.
// A process suspends by scheduling itself (a timed delay) or by queueing on a
// Resource (a conditional wait); it never blocks the scheduler. Events with the
// same timestamp are dispatched in the order they were scheduled.
//
// The Scheduler and the PartitionedRNG are explicit values handed to each
// process at construction. Nothing in this package keeps package-level mutable
// state, so independent simulations can run side by side.
package sim
