package supply

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/imp-sim/imp-sim/sim"
	"github.com/imp-sim/imp-sim/sim/scenario"
	"github.com/imp-sim/imp-sim/sim/trace"
)

// Options override scenario settings for one run.
type Options struct {
	Horizon    int64       // ticks; 0 = scenario horizon
	Seed       *int64      // nil = scenario seed
	TraceLevel trace.Level // "" = scenario trace level
	RunID      string      // "" = a fresh UUID
	Observers  []trace.Observer
}

// Balance is the unit ledger of a run. Units are never created or destroyed
// unaccounted: Initial + Produced == Held + Consumed + Wasted + InTransit.
type Balance struct {
	Initial   int64 `json:"initial"`
	Produced  int64 `json:"produced"`
	Held      int64 `json:"held"`
	Consumed  int64 `json:"consumed"`
	Wasted    int64 `json:"wasted"`
	InTransit int64 `json:"in_transit"`
}

// Conserved reports whether the ledger balances.
func (b Balance) Conserved() bool {
	return b.Initial+b.Produced == b.Held+b.Consumed+b.Wasted+b.InTransit
}

func (b Balance) String() string {
	return fmt.Sprintf("initial=%d produced=%d held=%d consumed=%d wasted=%d in_transit=%d",
		b.Initial, b.Produced, b.Held, b.Consumed, b.Wasted, b.InTransit)
}

// TierState is a tier's state at the end of a run.
type TierState struct {
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	Initial    int64  `json:"initial"`
	Level      int64  `json:"level"`
	Capacity   int64  `json:"capacity"`
	Wasted     int64  `json:"wasted"`
	Waiting    int    `json:"waiting"`
	OpenOrders int    `json:"open_orders"`
}

// Result is the outcome of a completed run.
type Result struct {
	RunID       string
	Scenario    string
	Seed        int64
	Horizon     int64
	TicksPerDay int64
	Records     []trace.Record
	Summary     *trace.Summary
	Balance     Balance
	Tiers       []TierState
}

// Simulation is one assembled supply chain run. It owns its Scheduler and
// PartitionedRNG, so independent simulations share no state.
type Simulation struct {
	sc      *scenario.Scenario
	runID   string
	seed    int64
	horizon int64
	sched   *sim.Scheduler
	rng     *sim.PartitionedRNG
	log     *trace.Log

	network       *Network
	manufacturing *Manufacturing
	manufacturer  *Tier
	tiers         []*Tier // central, regions, sites in declaration order
	byName        map[string]*Tier
	enrollments   map[string]*Enrollment
	dosages       []*Dosage
	controls      []*InventoryControl
	ran           bool
}

// New validates sc and assembles a simulation. The scenario must not be
// modified afterwards.
func New(sc *scenario.Scenario, opts Options) (*Simulation, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	s := &Simulation{
		sc:          sc,
		runID:       opts.RunID,
		seed:        sc.Seed,
		horizon:     sc.Horizon(),
		sched:       sim.NewScheduler(),
		byName:      make(map[string]*Tier),
		enrollments: make(map[string]*Enrollment),
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	if opts.Seed != nil {
		s.seed = *opts.Seed
	}
	if opts.Horizon > 0 {
		s.horizon = opts.Horizon
	}
	level := opts.TraceLevel
	if level == "" {
		level = trace.Level(sc.TraceLevel)
	}
	if !trace.IsValidLevel(string(level)) {
		return nil, &scenario.ConfigError{Field: "trace_level", Reason: fmt.Sprintf("unknown level %q", level)}
	}
	s.rng = sim.NewPartitionedRNG(sim.NewSimulationKey(s.seed))
	s.log = trace.NewLog(level)
	for _, o := range opts.Observers {
		s.log.Subscribe(o)
	}

	if err := s.buildNetwork(); err != nil {
		return nil, err
	}
	s.buildTiers()
	s.buildProcesses()
	return s, nil
}

func (s *Simulation) buildNetwork() error {
	def, err := NewDelaySampler(s.sc.Transit.Default, s.sc.TicksPerDay)
	if err != nil {
		return &scenario.ConfigError{Field: "transit.default", Err: err}
	}
	s.network = NewNetwork(s.sched, s.log, s.rng.ForSubsystem(sim.SubsystemTransit), def)
	for i, r := range s.sc.Transit.Routes {
		d, err := NewDelaySampler(r.DelaySpec, s.sc.TicksPerDay)
		if err != nil {
			return &scenario.ConfigError{Field: fmt.Sprintf("transit.routes[%d]", i), Err: err}
		}
		s.network.SetRoute(r.From, r.To, d)
	}
	return nil
}

func (s *Simulation) buildTiers() {
	policy := sim.NewWaitPolicy(s.sc.WaitPolicy)
	s.manufacturer = &Tier{
		Name: scenario.ManufacturerName,
		Role: RoleManufacturer,
		Pool: sim.NewResource(s.sched, s.log, sim.ResourceConfig{
			Name:     scenario.ManufacturerName,
			Capacity: sim.Unbounded,
			Policy:   policy,
		}),
	}
	central := s.addTier(s.sc.Central, RoleCentral, s.manufacturer, policy)
	for _, r := range s.sc.Regions {
		region := s.addTier(r.TierSpec, RoleRegional, central, policy)
		for _, site := range r.Sites {
			s.addTier(site.TierSpec, RoleSite, region, policy)
		}
	}
}

func (s *Simulation) addTier(spec scenario.TierSpec, role Role, upstream *Tier, policy sim.WaitPolicy) *Tier {
	t := &Tier{
		Name:     spec.Name,
		Role:     role,
		Upstream: upstream,
		Reorder:  spec.Reorder,
		Initial:  spec.InitialStock,
		Pool: sim.NewResource(s.sched, s.log, sim.ResourceConfig{
			Name:     spec.Name,
			Initial:  spec.InitialStock,
			Capacity: capacityOf(spec),
			Policy:   policy,
		}),
	}
	s.tiers = append(s.tiers, t)
	s.byName[t.Name] = t
	return t
}

func (s *Simulation) buildProcesses() {
	sc := s.sc
	m := sc.Manufacturing
	interval := sc.Ticks(m.BatchIntervalDays)
	first := interval
	if m.FirstBatchDay > 0 {
		first = sc.Ticks(m.FirstBatchDay)
	}
	s.manufacturing = NewManufacturing(s.sched, s.log, s.manufacturer, s.byName[sc.Central.Name], s.network, ManufacturingConfig{
		Interval:   interval,
		FirstBatch: first,
		Capacity:   m.CapacityPerBatch,
		BaseBatch:  m.BaseBatch,
	})

	closeAt := sim.Forever
	if sc.Trial.CloseDay != nil {
		closeAt = sc.Ticks(*sc.Trial.CloseDay)
	}
	siteForecasts := make(map[string]func() int64)
	for _, site := range sc.Sites() {
		tier := s.byName[site.Name]
		enrollment := NewEnrollment(s.sched, s.log,
			s.rng.ForSubsystem(sim.SubsystemEnrollment(site.Name)),
			s.rng.ForSubsystem(sim.SubsystemDropout(site.Name)),
			EnrollmentConfig{
				Site:              site.Name,
				Arrivals:          NewArrivalSampler(site.Enrollment, sc.TicksPerDay),
				Target:            site.Enrollment.Target,
				CloseAt:           closeAt,
				Treatment:         sc.Ticks(sc.Trial.TreatmentDays),
				ScreenFailureRate: site.Enrollment.ScreenFailureRate,
				DropoutHazard:     site.Enrollment.DropoutHazardPerDay / float64(sc.TicksPerDay),
			})
		s.enrollments[site.Name] = enrollment
		f, err := NewForecaster(site.Dosage.Forecast.Policy, site.Dosage.Forecast.Window)
		if err != nil {
			// Validate rejects unknown policies.
			panic(err)
		}
		dosage := NewDosage(s.sched, s.log, tier, enrollment, site.Dosage.UnitsPerPatient, sc.Ticks(site.Dosage.PeriodDays), f)
		s.dosages = append(s.dosages, dosage)
		siteForecasts[site.Name] = dosage.Forecast
	}

	orderer := OrdererFunc(func(t *Tier, qty int64) {
		if t.Upstream == s.manufacturer {
			s.manufacturing.Order(t, qty)
			return
		}
		s.network.shipOrder(t.Upstream, t, qty, 1, qty)
	})
	s.addControl(sc.Central, sumForecasts(siteForecasts), orderer)
	for _, r := range sc.Regions {
		regional := make(map[string]func() int64)
		for _, site := range r.Sites {
			regional[site.Name] = siteForecasts[site.Name]
			s.addControl(site.TierSpec, siteForecasts[site.Name], orderer)
		}
		s.addControl(r.TierSpec, sumForecasts(regional), orderer)
	}
}

func (s *Simulation) addControl(spec scenario.TierSpec, forecast func() int64, orderer Orderer) {
	period := s.sc.Ticks(spec.Reorder.ReviewPeriodDays)
	if period < 1 {
		period = 1
	}
	c := NewInventoryControl(s.sched, s.log, s.byName[spec.Name], period, forecast, orderer)
	s.controls = append(s.controls, c)
}

// sumForecasts adds site forecasts in sorted-name order.
func sumForecasts(fs map[string]func() int64) func() int64 {
	names := make([]string, 0, len(fs))
	for name := range fs {
		names = append(names, name)
	}
	sort.Strings(names)
	return func() int64 {
		var total int64
		for _, name := range names {
			total += fs[name]()
		}
		return total
	}
}

// RunID returns the run identifier.
func (s *Simulation) RunID() string { return s.runID }

// Seed returns the effective seed.
func (s *Simulation) Seed() int64 { return s.seed }

// Horizon returns the run horizon in ticks.
func (s *Simulation) Horizon() int64 { return s.horizon }

// Scheduler returns the simulation's scheduler.
func (s *Simulation) Scheduler() *sim.Scheduler { return s.sched }

// Log returns the event log.
func (s *Simulation) Log() *trace.Log { return s.log }

// Network returns the distribution network.
func (s *Simulation) Network() *Network { return s.network }

// Manufacturing returns the manufacturing facility.
func (s *Simulation) Manufacturing() *Manufacturing { return s.manufacturing }

// Tier returns the named tier, including the manufacturer, or nil.
func (s *Simulation) Tier(name string) *Tier {
	if name == scenario.ManufacturerName {
		return s.manufacturer
	}
	return s.byName[name]
}

// Tiers returns the storage tiers in declaration order, manufacturer excluded.
func (s *Simulation) Tiers() []*Tier { return s.tiers }

// Enrollment returns the enrollment process of the named site, or nil.
func (s *Simulation) Enrollment(site string) *Enrollment { return s.enrollments[site] }

// Balance returns the current unit ledger.
func (s *Simulation) Balance() Balance {
	b := Balance{
		Produced:  s.manufacturing.Produced(),
		Held:      s.manufacturer.Level(),
		Wasted:    s.manufacturer.Pool.Wasted(),
		InTransit: s.network.InTransit(),
	}
	for _, t := range s.tiers {
		b.Initial += t.Initial
		b.Held += t.Level()
		b.Wasted += t.Pool.Wasted()
		if t.Role == RoleSite {
			b.Consumed += t.Pool.Withdrawn()
		}
	}
	return b
}

// Run starts every process and advances the clock to the horizon. It may be
// called once. Requests still waiting for stock at the horizon are recorded
// as unfulfilled. A scheduling invariant violation aborts the run and is
// returned with the tier state attached.
func (s *Simulation) Run() (*Result, error) {
	if s.ran {
		return nil, errors.New("simulation already ran")
	}
	s.ran = true
	logrus.Infof("Starting run %s: %s, horizon=%dticks", s.runID, s.sc, s.horizon)

	s.manufacturing.Start()
	for _, c := range s.controls {
		c.Start()
	}
	for _, site := range s.sc.Sites() {
		s.enrollments[site.Name].Start()
	}
	for _, d := range s.dosages {
		d.Start()
	}

	if err := s.sched.Run(s.horizon); err != nil {
		var v *sim.InvariantViolation
		if errors.As(err, &v) {
			v.State = append(v.State, s.stateDump()...)
			logrus.Errorf("run %s aborted:\n%s", s.runID, v.Dump())
		}
		return nil, fmt.Errorf("run %s: %w", s.runID, err)
	}
	for _, d := range s.dosages {
		d.Finish()
	}

	res := &Result{
		RunID:       s.runID,
		Scenario:    s.sc.Name,
		Seed:        s.seed,
		Horizon:     s.horizon,
		TicksPerDay: s.sc.TicksPerDay,
		Records:     s.log.Records(),
		Summary:     trace.Summarize(s.log.Records()),
		Balance:     s.Balance(),
	}
	for _, t := range s.tiers {
		res.Tiers = append(res.Tiers, TierState{
			Name:       t.Name,
			Role:       t.Role,
			Initial:    t.Initial,
			Level:      t.Level(),
			Capacity:   t.Pool.Capacity(),
			Wasted:     t.Pool.Wasted(),
			Waiting:    t.Pool.Waiting(),
			OpenOrders: t.OpenOrders(),
		})
	}
	if !res.Balance.Conserved() {
		logrus.Errorf("run %s: unit balance does not close: %s", s.runID, res.Balance)
	}
	logrus.Infof("[tick %07d] Run %s complete: %d records, %d dispatches", s.sched.Now(), s.runID, s.log.Len(), s.sched.Dispatched())
	return res, nil
}

func (s *Simulation) stateDump() []string {
	lines := []string{"tiers:"}
	lines = append(lines, "  "+s.manufacturer.String())
	for _, t := range s.tiers {
		lines = append(lines, "  "+t.String())
	}
	lines = append(lines, fmt.Sprintf("in_transit: %d", s.network.InTransit()))
	lines = append(lines, "balance: "+s.Balance().String())
	return lines
}
