package supply

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/imp-sim/imp-sim/sim"
	"github.com/imp-sim/imp-sim/sim/trace"
)

// PatientStatus is the lifecycle state of a Patient.
type PatientStatus int

const (
	StatusEnrolled PatientStatus = iota
	StatusActive
	StatusDroppedOut
	StatusCompleted
)

func (s PatientStatus) String() string {
	switch s {
	case StatusEnrolled:
		return "enrolled"
	case StatusActive:
		return "active"
	case StatusDroppedOut:
		return "dropped_out"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("PatientStatus(%d)", int(s))
	}
}

// Patient is an enrolled trial participant. Status only moves forward:
// enrolled -> active -> dropped_out | completed.
type Patient struct {
	ID         string
	Site       string
	EnrolledAt int64
	LeftAt     int64 // valid once dropped out or completed
	Status     PatientStatus

	completion *sim.Handle
	dropout    *sim.Handle
}

// EnrollmentConfig groups the per-site enrollment parameters, in ticks.
type EnrollmentConfig struct {
	Site              string
	Arrivals          ArrivalSampler
	Target            int     // 0 = no cap
	CloseAt           int64   // sim.Forever = open for the whole run
	Treatment         int64   // ticks from enrollment to completion
	ScreenFailureRate float64 // probability a candidate never becomes a patient
	DropoutHazard     float64 // per tick
}

// Enrollment recruits patients at one site. Each arrival is screened; those
// who pass become active and leave either by dropout or on completing
// treatment, whichever comes first.
type Enrollment struct {
	cfg     EnrollmentConfig
	sched   *sim.Scheduler
	rec     trace.Recorder
	rng     *rand.Rand // arrivals and screening
	dropRNG *rand.Rand

	candidates int
	patients   []*Patient
	active     int
	closed     bool
}

// NewEnrollment creates the enrollment process for a site. rng drives arrivals
// and screening, dropRNG the dropout hazard.
func NewEnrollment(sched *sim.Scheduler, rec trace.Recorder, rng, dropRNG *rand.Rand, cfg EnrollmentConfig) *Enrollment {
	return &Enrollment{cfg: cfg, sched: sched, rec: rec, rng: rng, dropRNG: dropRNG}
}

// Start schedules the close date, if any, and the first arrival.
func (e *Enrollment) Start() {
	if e.cfg.CloseAt != sim.Forever {
		e.sched.ScheduleAt(e.cfg.CloseAt, sim.ProcessFunc(func(int64) {
			if !e.closed {
				e.close("close date")
			}
		}))
	}
	e.sched.Schedule(e.cfg.Arrivals.SampleIAT(e.rng), e)
}

// Active returns the number of patients currently on treatment.
func (e *Enrollment) Active() int { return e.active }

// Enrolled returns the number of patients enrolled so far.
func (e *Enrollment) Enrolled() int { return len(e.patients) }

// Closed reports whether recruitment has stopped.
func (e *Enrollment) Closed() bool { return e.closed }

// Patients returns every patient enrolled at the site, in enrollment order.
// The returned slice MUST NOT be modified.
func (e *Enrollment) Patients() []*Patient { return e.patients }

// Advance handles one candidate arrival.
func (e *Enrollment) Advance(now int64) {
	if e.closed {
		return
	}
	e.candidates++
	if e.cfg.ScreenFailureRate > 0 && e.rng.Float64() < e.cfg.ScreenFailureRate {
		e.record(trace.Record{
			Kind:     trace.KindScreenFailure,
			Location: e.cfg.Site,
			Detail:   fmt.Sprintf("candidate=%d", e.candidates),
		})
	} else {
		e.enroll(now)
	}
	if e.cfg.Target > 0 && len(e.patients) >= e.cfg.Target {
		e.close("target reached")
		return
	}
	e.sched.Schedule(e.cfg.Arrivals.SampleIAT(e.rng), e)
}

func (e *Enrollment) enroll(now int64) {
	p := &Patient{
		ID:         fmt.Sprintf("%s-%04d", e.cfg.Site, len(e.patients)+1),
		Site:       e.cfg.Site,
		EnrolledAt: now,
		Status:     StatusEnrolled,
	}
	e.patients = append(e.patients, p)
	p.Status = StatusActive
	e.active++
	e.record(trace.Record{
		Kind:     trace.KindEnrollment,
		Location: e.cfg.Site,
		Patient:  p.ID,
		Level:    trace.Int(int64(e.active)),
	})

	p.completion = e.sched.Schedule(e.cfg.Treatment, sim.ProcessFunc(func(int64) {
		e.leave(p, StatusCompleted)
	}))
	if e.cfg.DropoutHazard > 0 {
		p.dropout = e.sched.Schedule(e.dropoutDelay(), sim.ProcessFunc(func(int64) {
			e.leave(p, StatusDroppedOut)
		}))
	}
}

// dropoutDelay draws the time to dropout from an exponential hazard.
func (e *Enrollment) dropoutDelay() int64 {
	d := e.dropRNG.ExpFloat64() / e.cfg.DropoutHazard
	if d > math.MaxInt32 {
		return math.MaxInt32
	}
	return int64(d)
}

func (e *Enrollment) leave(p *Patient, status PatientStatus) {
	if p.Status != StatusActive {
		panic(fmt.Sprintf("patient %s leaving twice (%s -> %s)", p.ID, p.Status, status))
	}
	// Whichever exit fires first cancels the other.
	e.sched.Cancel(p.completion)
	e.sched.Cancel(p.dropout)
	p.Status = status
	p.LeftAt = e.sched.Now()
	e.active--
	kind := trace.KindCompletion
	if status == StatusDroppedOut {
		kind = trace.KindDropout
	}
	e.record(trace.Record{
		Kind:     kind,
		Location: e.cfg.Site,
		Patient:  p.ID,
		Level:    trace.Int(int64(e.active)),
		Detail:   fmt.Sprintf("ticks_on_treatment=%d", p.LeftAt-p.EnrolledAt),
	})
}

func (e *Enrollment) close(reason string) {
	e.closed = true
	logrus.Debugf("[tick %07d] %s enrollment closed (%s): %d enrolled, %d screened", e.sched.Now(), e.cfg.Site, reason, len(e.patients), e.candidates)
	e.record(trace.Record{
		Kind:     trace.KindEnrollmentClosed,
		Location: e.cfg.Site,
		Quantity: int64(len(e.patients)),
		Detail:   reason,
	})
}

func (e *Enrollment) record(r trace.Record) {
	if e.rec == nil {
		return
	}
	r.Time = e.sched.Now()
	e.rec.Record(r)
}
