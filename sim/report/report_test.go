package report

import (
	"archive/zip"
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/imp-sim/imp-sim/sim/internal/testutil"
	"github.com/imp-sim/imp-sim/sim/supply"
	"github.com/imp-sim/imp-sim/sim/trace"
)

// runExample runs the bundled example scenario for 60 days.
func runExample(t *testing.T, seed int64) *supply.Result {
	t.Helper()
	sc := testutil.LoadExample(t, "trial_a.yaml")
	s, err := supply.New(sc, supply.Options{Seed: &seed, Horizon: sc.Ticks(60)})
	require.NoError(t, err)
	res, err := s.Run()
	require.NoError(t, err)
	return res
}

// fixedResult is a small hand-built result with known levels.
func fixedResult() *supply.Result {
	records := []trace.Record{
		{Seq: 1, Time: 0, Kind: trace.KindStockSnapshot, Location: "central", Level: trace.Int(100)},
		{Seq: 2, Time: 0, Kind: trace.KindStockSnapshot, Location: "site", Level: trace.Int(10)},
		{Seq: 3, Time: 5, Kind: trace.KindEnrollment, Location: "site", Patient: "site-0001", Level: trace.Int(1)},
		{Seq: 4, Time: 24, Kind: trace.KindDoseAdministered, Location: "site", Quantity: 4, Level: trace.Int(6)},
		{Seq: 5, Time: 24, Kind: trace.KindShipmentDeparted, Location: "central", Target: "site", Quantity: 20, Level: trace.Int(80)},
		{Seq: 6, Time: 48, Kind: trace.KindUnmetDemand, Location: "site", Quantity: 8, Shortfall: 2, Level: trace.Int(6)},
	}
	return &supply.Result{
		RunID:       "run-fixed",
		Scenario:    "fixed",
		Seed:        3,
		Horizon:     72,
		TicksPerDay: 24,
		Records:     records,
		Summary:     trace.Summarize(records),
		Balance:     supply.Balance{Initial: 110, Held: 86, Consumed: 4, InTransit: 20},
		Tiers: []supply.TierState{
			{Name: "central", Role: supply.RoleCentral, Initial: 100, Level: 80, Capacity: -1},
			{Name: "site", Role: supply.RoleSite, Initial: 10, Level: 6, Capacity: 50, Waiting: 1},
		},
	}
}

func TestJSONL_RoundTrip(t *testing.T) {
	res := fixedResult()
	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, res.Records))

	got, err := ReadJSONL(&buf)

	require.NoError(t, err)
	assert.Equal(t, res.Records, got)
}

func TestJSONL_FieldNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, []trace.Record{
		{Seq: 1, Time: 48, Kind: trace.KindUnmetDemand, Location: "site", Quantity: 8, Shortfall: 2, Level: trace.Int(0)},
	}))
	assert.Equal(t,
		`{"seq":1,"time":48,"kind":"unmet_demand","location":"site","quantity":8,"shortfall":2,"level":0}`+"\n",
		buf.String())
}

func TestJSONL_SameSeed_ByteIdentical(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, WriteJSONL(&a, runExample(t, 11).Records))
	require.NoError(t, WriteJSONL(&b, runExample(t, 11).Records))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestWriteJSONLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, WriteJSONLFile(path, fixedResult().Records))
	assert.FileExists(t, path)
}

func TestSQLite_RoundTrip(t *testing.T) {
	// GIVEN two runs exported to one database
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "out", "runs.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	first := runExample(t, 1)
	second := fixedResult()
	require.NoError(t, store.WriteRun(ctx, first))
	require.NoError(t, store.WriteRun(ctx, second))

	// WHEN the events are read back
	got, err := store.Events(ctx, first.RunID)
	require.NoError(t, err)

	// THEN they match the run's log, including absent levels
	assert.Equal(t, first.Records, got)
	ids, err := store.RunIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{first.RunID, second.RunID}, ids)
	b, err := store.Balance(ctx, second.RunID)
	require.NoError(t, err)
	assert.Equal(t, second.Balance, b)
}

func TestSQLite_DuplicateRun_RollsBack(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	res := fixedResult()
	require.NoError(t, store.WriteRun(ctx, res))

	err = store.WriteRun(ctx, res)

	assert.Error(t, err)
	got, err := store.Events(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, got, len(res.Records))
}

func TestInventorySeries(t *testing.T) {
	s := InventorySeries(fixedResult())

	assert.Equal(t, []string{"central", "site"}, s.Locations)
	assert.Equal(t, []string{"site"}, s.Sites)
	assert.Equal(t, []int64{0, 5, 24, 48}, s.Times)
	assert.Equal(t, [][]int64{{100, 10}, {100, 10}, {80, 6}, {80, 6}}, s.Levels, "patient counts are not stock levels")
	assert.Equal(t, [][]int64{{0}, {1}, {1}, {1}}, s.Active)
}

func TestInventorySeries_PatientCountFollowsEnrollmentAndExits(t *testing.T) {
	// GIVEN two enrollments, a dropout and a completion at one site
	res := fixedResult()
	res.Records = []trace.Record{
		{Seq: 1, Time: 2, Kind: trace.KindEnrollment, Location: "site", Patient: "site-0001", Level: trace.Int(1)},
		{Seq: 2, Time: 3, Kind: trace.KindEnrollment, Location: "site", Patient: "site-0002", Level: trace.Int(2)},
		{Seq: 3, Time: 9, Kind: trace.KindDropout, Location: "site", Patient: "site-0001", Level: trace.Int(1)},
		{Seq: 4, Time: 12, Kind: trace.KindCompletion, Location: "site", Patient: "site-0002", Level: trace.Int(0)},
	}

	// WHEN the series is rebuilt
	s := InventorySeries(res)

	// THEN the site's patient column tracks the active count while stock stays put
	assert.Equal(t, []int64{0, 2, 3, 9, 12}, s.Times)
	assert.Equal(t, [][]int64{{0}, {1}, {2}, {1}, {0}}, s.Active)
	for _, levels := range s.Levels {
		assert.Equal(t, []int64{100, 10}, levels)
	}
}

func TestSummaryRows(t *testing.T) {
	rows := SummaryRows(fixedResult())
	values := make(map[string]string)
	for _, r := range rows {
		values[r.Label] = r.Value
	}
	assert.Equal(t, "run-fixed", values["Run"])
	assert.Equal(t, "3.00", values["Horizon (days)"])
	assert.Equal(t, "1", values["Unmet demand events"])
	assert.Equal(t, "2.00", values["First stockout (day)"])
	assert.Equal(t, "1", values["Stockouts at site"])
}

func TestTierAndSweepRows(t *testing.T) {
	res := fixedResult()
	tiers := TierRows(res)
	require.Len(t, tiers, 2)
	assert.Equal(t, "unbounded", tiers[0][4])
	assert.Equal(t, "50", tiers[1][4])
	assert.Len(t, tiers[0], len(TierHeader))

	row := SweepRow(res)
	assert.Len(t, row, len(SweepHeader))
	assert.Equal(t, "3", row[0])
	assert.Equal(t, "2.00", row[6])
}

func TestWriteWorkbook(t *testing.T) {
	for _, layout := range []ChartLayout{ChartCombined, ChartSeparate} {
		t.Run(string(layout), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "run.xlsx")
			res := fixedResult()

			require.NoError(t, WriteWorkbook(path, res, layout))

			f, err := excelize.OpenFile(path)
			require.NoError(t, err)
			defer func() { _ = f.Close() }()
			assert.Equal(t, []string{sheetSummary, sheetInventory, sheetEvents}, f.GetSheetList())
			inv, err := f.GetRows(sheetInventory)
			require.NoError(t, err)
			require.Len(t, inv, 5)
			assert.Equal(t, []string{"day", "central", "site", "site patients"}, inv[0])
			assert.Equal(t, []string{"1", "80", "6", "1"}, inv[3])
			charts := 1
			if layout == ChartSeparate {
				charts = 3
			}
			assert.Len(t, chartParts(t, path), charts)
			events, err := f.GetRows(sheetEvents)
			require.NoError(t, err)
			assert.Len(t, events, len(res.Records)+1)
		})
	}
}

func TestWriteWorkbook_UnknownLayout(t *testing.T) {
	err := WriteWorkbook(filepath.Join(t.TempDir(), "x.xlsx"), fixedResult(), "stacked")
	assert.Error(t, err)
}

// chartParts lists the chart parts packaged in an XLSX file.
func chartParts(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()
	var charts []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "xl/charts/chart") {
			charts = append(charts, f.Name)
		}
	}
	return charts
}
