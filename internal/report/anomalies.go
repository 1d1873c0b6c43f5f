package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
)

const anomalySheet = "Anomalies"

var anomalyHeader = []string{"Detected At", "Batch", "Kind", "Severity", "Listing", "Description", "Details"}

// AnomalyWorkbook lays out anomaly records one per row under a frozen header.
func AnomalyWorkbook(rows []*types.AnomalyRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", anomalySheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	for col, h := range anomalyHeader {
		if err := setCell(f, col+1, 1, h); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	r := 2
	for _, a := range rows {
		if a == nil {
			continue
		}
		values := []any{
			a.DetectedAt.UTC().Format(time.RFC3339),
			a.BatchID,
			a.Kind,
			a.Severity,
			a.ListingKey,
			a.Description,
			string(a.Details),
		}
		for col, v := range values {
			if err := setCell(f, col+1, r, v); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
		r++
	}
	if err := f.SetPanes(anomalySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// WriteAnomalies writes the workbook to w and returns the number of data rows.
func WriteAnomalies(w io.Writer, rows []*types.AnomalyRecord) (int, error) {
	f, err := AnomalyWorkbook(rows)
	if err != nil {
		return 0, fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	n := 0
	for _, a := range rows {
		if a != nil {
			n++
		}
	}
	return n, nil
}

func setCell(f *excelize.File, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(anomalySheet, cell, v)
}
