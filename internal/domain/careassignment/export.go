package careassignment

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const rosterSheet = "Patients"

var rosterHeaders = []string{"Name", "Age", "Email", "Assigned At"}
var rosterWidths = []float64{28, 8, 32, 22}

// ExportRoster writes the doctor's roster to w as an XLSX workbook.
func (s *Service) ExportRoster(ctx context.Context, doctorEmail string, w io.Writer) error {
	items, err := s.ListForDoctor(ctx, doctorEmail)
	if err != nil {
		return err
	}
	f, err := buildRoster(items)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	return nil
}

func buildRoster(items []*Assignment) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(rosterSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, header := range rosterHeaders {
		if err := setCell(f, i+1, 1, header); err != nil {
			f.Close()
			return nil, err
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(rosterSheet, col, col, rosterWidths[i]); err != nil {
			f.Close()
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(rosterHeaders), 1)
	if err := f.SetCellStyle(rosterSheet, "A1", last, headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("set header style: %w", err)
	}

	for i, a := range items {
		row := i + 2
		values := []interface{}{a.Name, a.Age, a.PatientEmail, a.AssignedAt.UTC().Format("2006-01-02 15:04")}
		for col, v := range values {
			if err := setCell(f, col+1, row, v); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	if err := f.SetPanes(rosterSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freeze header: %w", err)
	}
	return f, nil
}

func setCell(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(rosterSheet, cell, value); err != nil {
		return fmt.Errorf("set cell %s: %w", cell, err)
	}
	return nil
}
