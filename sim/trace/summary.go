package trace

// Summary aggregates statistics from a run's event log.
type Summary struct {
	Enrolled         int
	ScreenFailures   int
	DroppedOut       int
	Completed        int
	DosesOnTime      int
	UnitsConsumed    int64
	UnmetDemand      int   // unmet_demand events
	UnitsShort       int64 // shortfall summed over unmet_demand events
	Backorders       int   // backorders filled late
	UnfulfilledAtEnd int
	UnitsUnfulfilled int64
	Batches          int
	UnitsProduced    int64
	Reorders         int
	ShipmentsArrived int
	UnitsWasted      int64
	FirstStockout    int64          // tick of the first unmet_demand; -1 if none
	StockoutsBySite  map[string]int // site -> unmet_demand events
	KindCounts       map[Kind]int
}

// Summarize computes aggregate statistics from records.
// Safe for nil or empty input (returns zero-value fields, FirstStockout -1).
func Summarize(records []Record) *Summary {
	s := &Summary{
		FirstStockout:   -1,
		StockoutsBySite: make(map[string]int),
		KindCounts:      make(map[Kind]int),
	}
	for _, r := range records {
		s.KindCounts[r.Kind]++
		switch r.Kind {
		case KindEnrollment:
			s.Enrolled++
		case KindScreenFailure:
			s.ScreenFailures++
		case KindDropout:
			s.DroppedOut++
		case KindCompletion:
			s.Completed++
		case KindDoseAdministered:
			s.DosesOnTime++
			s.UnitsConsumed += r.Quantity
		case KindBackorderFilled:
			s.Backorders++
			s.UnitsConsumed += r.Quantity
		case KindUnmetDemand:
			s.UnmetDemand++
			s.UnitsShort += r.Shortfall
			s.StockoutsBySite[r.Location]++
			if s.FirstStockout < 0 {
				s.FirstStockout = r.Time
			}
		case KindUnfulfilledAtEnd:
			s.UnfulfilledAtEnd++
			s.UnitsUnfulfilled += r.Quantity
		case KindProductionBatch:
			s.Batches++
			s.UnitsProduced += r.Quantity
		case KindReorderIssued:
			s.Reorders++
		case KindShipmentArrived:
			s.ShipmentsArrived++
		case KindOverflow:
			s.UnitsWasted += r.Quantity
		}
	}
	return s
}

// StockedOut reports whether any demand went unmet during the run.
func (s *Summary) StockedOut() bool {
	return s.UnmetDemand > 0
}
