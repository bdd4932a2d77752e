package httpapi

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"greenlife-monitor/internal/models"
)

const trendSheet = "Trend"

// TrendExportHeader trend workbook columns
var TrendExportHeader = []string{"Time", "Pulse (bpm)", "Temperature (°C)", "Humidity (%)"}

// GenerateTrendExport renders the trend window as an xlsx workbook. A
// second sheet carries the patient name and the latest reading status.
func GenerateTrendExport(v models.View) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(trendSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range TrendExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(trendSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(trendSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}
	if err := f.SetColWidth(trendSheet, "A", "D", 16); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, p := range v.Trend {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		row := []interface{}{p.Time, p.Pulse, p.Temp, p.Humidity}
		if err := f.SetSheetRow(trendSheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := writeSummarySheet(f, v); err != nil {
		f.Close()
		return nil, err
	}

	if err := f.SetPanes(trendSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummarySheet(f *excelize.File, v models.View) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	rows := [][]interface{}{{"Last updated", v.LastUpdated}}
	if p, ok := v.Patient.Get(); ok {
		rows = append(rows,
			[]interface{}{"Patient", p.PatientName},
			[]interface{}{"Condition", p.Disease},
		)
	}
	if r, ok := v.Latest.Get(); ok && v.Status != nil {
		rows = append(rows,
			[]interface{}{"Pulse", r.PulseBPM, string(v.Status.Pulse)},
			[]interface{}{"Temperature", r.TempC, string(v.Status.Temp)},
			[]interface{}{"Humidity", r.HumidityPct, string(v.Status.Humidity)},
			[]interface{}{"Fan", onOffLabel(r.FanOn)},
			[]interface{}{"Alert", onOffLabel(v.Alert.Active)},
		)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}
	return nil
}

func onOffLabel(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
