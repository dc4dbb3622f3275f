package warehouse

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// WriteCSV writes one report as <dir>/<name>.csv.
func WriteCSV(dir string, r Result) (string, error) {
	path := filepath.Join(dir, r.Name+".csv")
	if err := writeCSVFile(path, r.Columns, r.Rows); err != nil {
		return "", err
	}
	return path, nil
}

// WriteWorkbook writes every report as one sheet of an XLSX workbook.
func WriteWorkbook(path string, results []Result) error {
	f := excelize.NewFile()
	defer f.Close()
	const defaultSheet = "Sheet1"
	for i, r := range results {
		sheet := sheetName(r.Name)
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("new sheet %s: %w", sheet, err)
		}
		header := make([]any, len(r.Columns))
		for j, c := range r.Columns {
			header[j] = c
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return fmt.Errorf("sheet %s header: %w", sheet, err)
		}
		for j, row := range r.Rows {
			cell, err := excelize.CoordinatesToCellName(1, j+2)
			if err != nil {
				return err
			}
			vals := make([]any, len(row))
			for k, v := range row {
				vals[k] = cellValue(v)
			}
			if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
				return fmt.Errorf("sheet %s row %d: %w", sheet, j, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// Performance summarizes one report pass.
type Performance struct {
	ExecutedAt      time.Time
	Elapsed         time.Duration
	QueriesExecuted int
}

// WritePerformance writes <dir>/query_performance_<YYYYMMDD_HHMMSS>.csv.
func WritePerformance(dir string, p Performance) (string, error) {
	path := filepath.Join(dir, "query_performance_"+p.ExecutedAt.Format("20060102_150405")+".csv")
	err := writeCSVFile(path,
		[]string{"execution_timestamp", "execution_time_seconds", "queries_executed"},
		[][]string{{
			p.ExecutedAt.Format(time.RFC3339),
			strconv.FormatFloat(p.Elapsed.Seconds(), 'f', 6, 64),
			strconv.Itoa(p.QueriesExecuted),
		}})
	if err != nil {
		return "", err
	}
	return path, nil
}

func writeCSVFile(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return f.Close()
}

func sheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}

func cellValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
