package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/imp-sim/imp-sim/sim/supply"
)

const (
	sheetSummary   = "Summary"
	sheetInventory = "Inventory"
	sheetEvents    = "Events"

	chartRowStride = 18
)

// ChartLayout selects how inventory charts are laid out in the workbook.
type ChartLayout string

const (
	// ChartCombined draws every tier on one chart.
	ChartCombined ChartLayout = "combined"
	// ChartSeparate draws one chart per tier.
	ChartSeparate ChartLayout = "separate"
)

// IsValidChartLayout reports whether layout is a recognized chart layout.
func IsValidChartLayout(layout string) bool {
	return layout == string(ChartCombined) || layout == string(ChartSeparate)
}

var eventHeader = []any{"seq", "time", "day", "kind", "location", "target", "patient", "quantity", "shortfall", "level", "detail"}

// WriteWorkbook writes a run to an XLSX workbook with a summary sheet, the
// inventory series with line charts and the full event log.
func WriteWorkbook(path string, res *supply.Result, layout ChartLayout) (retErr error) {
	if !IsValidChartLayout(string(layout)) {
		return fmt.Errorf("unknown chart layout %q", layout)
	}
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("close workbook: %w", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeSummarySheet(f, res); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetInventory); err != nil {
		return fmt.Errorf("add inventory sheet: %w", err)
	}
	series := InventorySeries(res)
	if err := writeInventorySheet(f, series, res.TicksPerDay); err != nil {
		return err
	}
	if err := addInventoryCharts(f, series, layout); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetEvents); err != nil {
		return fmt.Errorf("add events sheet: %w", err)
	}
	if err := writeEventsSheet(f, res); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, res *supply.Result) error {
	rows := [][]any{{"Metric", "Value"}}
	for _, r := range SummaryRows(res) {
		rows = append(rows, []any{r.Label, r.Value})
	}
	rows = append(rows, []any{})
	header := make([]any, len(TierHeader))
	for i, h := range TierHeader {
		header[i] = h
	}
	rows = append(rows, header)
	for _, tr := range TierRows(res) {
		row := make([]any, len(tr))
		for i, v := range tr {
			row[i] = v
		}
		rows = append(rows, row)
	}
	return setRows(f, sheetSummary, rows)
}

func writeInventorySheet(f *excelize.File, s *Series, ticksPerDay int64) error {
	rows := make([][]any, 0, len(s.Times)+1)
	header := []any{"day"}
	for _, loc := range s.Locations {
		header = append(header, loc)
	}
	for _, site := range s.Sites {
		header = append(header, site+" patients")
	}
	rows = append(rows, header)
	for i, t := range s.Times {
		row := []any{float64(t) / float64(ticksPerDay)}
		for _, level := range s.Levels[i] {
			row = append(row, level)
		}
		for _, n := range s.Active[i] {
			row = append(row, n)
		}
		rows = append(rows, row)
	}
	return setRows(f, sheetInventory, rows)
}

// addInventoryCharts draws the inventory sheet. The combined layout puts every
// tier and every site's patient count on one chart; the separate layout draws
// one chart per tier and one for the patient counts.
func addInventoryCharts(f *excelize.File, s *Series, layout ChartLayout) error {
	if len(s.Locations) == 0 {
		return nil
	}
	last := len(s.Times) + 1
	categories := fmt.Sprintf("%s!$A$2:$A$%d", sheetInventory, last)
	// Column j+2 holds Locations[j]; patient columns follow the tiers.
	seriesFor := func(j int) (excelize.ChartSeries, error) {
		col, err := excelize.ColumnNumberToName(j + 2)
		if err != nil {
			return excelize.ChartSeries{}, err
		}
		return excelize.ChartSeries{
			Name:       fmt.Sprintf("%s!$%s$1", sheetInventory, col),
			Categories: categories,
			Values:     fmt.Sprintf("%s!$%s$2:$%s$%d", sheetInventory, col, col, last),
		}, nil
	}
	seriesRange := func(from, to int) ([]excelize.ChartSeries, error) {
		var out []excelize.ChartSeries
		for j := from; j < to; j++ {
			cs, err := seriesFor(j)
			if err != nil {
				return nil, err
			}
			out = append(out, cs)
		}
		return out, nil
	}
	tiers := len(s.Locations)
	columns := tiers + len(s.Sites)
	anchorCol, err := excelize.ColumnNumberToName(columns + 3)
	if err != nil {
		return err
	}

	if layout == ChartCombined {
		all, err := seriesRange(0, columns)
		if err != nil {
			return err
		}
		if err := f.AddChart(sheetInventory, anchorCol+"2", &excelize.Chart{Type: excelize.Line, Series: all}); err != nil {
			return fmt.Errorf("add chart: %w", err)
		}
		return nil
	}
	for j, loc := range s.Locations {
		cs, err := seriesFor(j)
		if err != nil {
			return err
		}
		anchor := fmt.Sprintf("%s%d", anchorCol, 2+j*chartRowStride)
		if err := f.AddChart(sheetInventory, anchor, &excelize.Chart{Type: excelize.Line, Series: []excelize.ChartSeries{cs}}); err != nil {
			return fmt.Errorf("add chart for %s: %w", loc, err)
		}
	}
	if len(s.Sites) == 0 {
		return nil
	}
	patients, err := seriesRange(tiers, columns)
	if err != nil {
		return err
	}
	anchor := fmt.Sprintf("%s%d", anchorCol, 2+tiers*chartRowStride)
	if err := f.AddChart(sheetInventory, anchor, &excelize.Chart{Type: excelize.Line, Series: patients}); err != nil {
		return fmt.Errorf("add patients chart: %w", err)
	}
	return nil
}

func writeEventsSheet(f *excelize.File, res *supply.Result) error {
	rows := make([][]any, 0, len(res.Records)+1)
	rows = append(rows, eventHeader)
	for _, r := range res.Records {
		var level any
		if r.Level != nil {
			level = *r.Level
		}
		rows = append(rows, []any{
			r.Seq, r.Time, float64(r.Time) / float64(res.TicksPerDay),
			string(r.Kind), r.Location, r.Target, r.Patient,
			r.Quantity, r.Shortfall, level, r.Detail,
		})
	}
	return setRows(f, sheetEvents, rows)
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
