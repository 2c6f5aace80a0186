package report

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/imp-sim/imp-sim/sim/supply"
	"github.com/imp-sim/imp-sim/sim/trace"
)

// Row is a labelled summary value.
type Row struct {
	Label string
	Value string
}

// SummaryRows describes a run for the CLI table and the workbook.
func SummaryRows(res *supply.Result) []Row {
	s := res.Summary
	firstStockout := "none"
	if s.FirstStockout >= 0 {
		firstStockout = days(s.FirstStockout, res.TicksPerDay)
	}
	rows := []Row{
		{"Run", res.RunID},
		{"Scenario", res.Scenario},
		{"Seed", strconv.FormatInt(res.Seed, 10)},
		{"Horizon (days)", days(res.Horizon, res.TicksPerDay)},
		{"Patients enrolled", strconv.Itoa(s.Enrolled)},
		{"Screen failures", strconv.Itoa(s.ScreenFailures)},
		{"Dropouts", strconv.Itoa(s.DroppedOut)},
		{"Completions", strconv.Itoa(s.Completed)},
		{"Units produced", strconv.FormatInt(s.UnitsProduced, 10)},
		{"Units consumed", strconv.FormatInt(s.UnitsConsumed, 10)},
		{"Units wasted", strconv.FormatInt(s.UnitsWasted, 10)},
		{"Reorders", strconv.Itoa(s.Reorders)},
		{"Shipments delivered", strconv.Itoa(s.ShipmentsArrived)},
		{"Unmet demand events", strconv.Itoa(s.UnmetDemand)},
		{"Units short", strconv.FormatInt(s.UnitsShort, 10)},
		{"Backorders filled", strconv.Itoa(s.Backorders)},
		{"Unfulfilled at end", fmt.Sprintf("%d (%d units)", s.UnfulfilledAtEnd, s.UnitsUnfulfilled)},
		{"First stockout (day)", firstStockout},
		{"Balance", res.Balance.String()},
	}
	sites := make([]string, 0, len(s.StockoutsBySite))
	for site := range s.StockoutsBySite {
		sites = append(sites, site)
	}
	sort.Strings(sites)
	for _, site := range sites {
		rows = append(rows, Row{"Stockouts at " + site, strconv.Itoa(s.StockoutsBySite[site])})
	}
	return rows
}

// TierHeader is the column header of TierRows.
var TierHeader = []string{"Tier", "Role", "Initial", "Level", "Capacity", "Wasted", "Waiting", "Open orders"}

// TierRows describes the end state of every tier.
func TierRows(res *supply.Result) [][]string {
	rows := make([][]string, 0, len(res.Tiers))
	for _, t := range res.Tiers {
		capacity := "unbounded"
		if t.Capacity >= 0 {
			capacity = strconv.FormatInt(t.Capacity, 10)
		}
		rows = append(rows, []string{
			t.Name,
			string(t.Role),
			strconv.FormatInt(t.Initial, 10),
			strconv.FormatInt(t.Level, 10),
			capacity,
			strconv.FormatInt(t.Wasted, 10),
			strconv.Itoa(t.Waiting),
			strconv.Itoa(t.OpenOrders),
		})
	}
	return rows
}

// SweepHeader is the column header of SweepRow.
var SweepHeader = []string{"Seed", "Enrolled", "Consumed", "Unmet", "Units short", "Unfulfilled", "First stockout (day)", "Wasted"}

// SweepRow condenses one run of a seed sweep.
func SweepRow(res *supply.Result) []string {
	s := res.Summary
	first := "-"
	if s.FirstStockout >= 0 {
		first = days(s.FirstStockout, res.TicksPerDay)
	}
	return []string{
		strconv.FormatInt(res.Seed, 10),
		strconv.Itoa(s.Enrolled),
		strconv.FormatInt(s.UnitsConsumed, 10),
		strconv.Itoa(s.UnmetDemand),
		strconv.FormatInt(s.UnitsShort, 10),
		strconv.Itoa(s.UnfulfilledAtEnd),
		first,
		strconv.FormatInt(s.UnitsWasted, 10),
	}
}

// Series is the stock level of every tier and the active patient count of
// every site over time.
type Series struct {
	Locations []string
	Sites     []string
	Times     []int64   // ticks, strictly increasing
	Levels    [][]int64 // Levels[i][j] = level of Locations[j] after all events at Times[i]
	Active    [][]int64 // Active[i][k] = active patients at Sites[k] after all events at Times[i]
}

// InventorySeries rebuilds per-tier stock levels and per-site patient counts
// from the records that carry one, starting from the initial stock and no
// patients at tick 0.
func InventorySeries(res *supply.Result) *Series {
	s := &Series{}
	index := make(map[string]int, len(res.Tiers))
	siteIndex := make(map[string]int)
	current := make([]int64, len(res.Tiers))
	for i, t := range res.Tiers {
		s.Locations = append(s.Locations, t.Name)
		index[t.Name] = i
		current[i] = t.Initial
		if t.Role == supply.RoleSite {
			siteIndex[t.Name] = len(s.Sites)
			s.Sites = append(s.Sites, t.Name)
		}
	}
	active := make([]int64, len(s.Sites))
	emit := func(time int64) {
		levels := append([]int64(nil), current...)
		patients := append([]int64(nil), active...)
		if n := len(s.Times); n > 0 && s.Times[n-1] == time {
			s.Levels[n-1] = levels
			s.Active[n-1] = patients
			return
		}
		s.Times = append(s.Times, time)
		s.Levels = append(s.Levels, levels)
		s.Active = append(s.Active, patients)
	}
	emit(0)
	for _, r := range res.Records {
		if r.Level == nil {
			continue
		}
		if trace.IsPatientKind(r.Kind) {
			k, ok := siteIndex[r.Location]
			if !ok {
				continue
			}
			active[k] = *r.Level
		} else {
			i, ok := index[r.Location]
			if !ok {
				continue
			}
			current[i] = *r.Level
		}
		emit(r.Time)
	}
	return s
}

func days(ticks, ticksPerDay int64) string {
	if ticksPerDay <= 0 {
		return strconv.FormatInt(ticks, 10)
	}
	return strconv.FormatFloat(float64(ticks)/float64(ticksPerDay), 'f', 2, 64)
}
