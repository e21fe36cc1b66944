// Package importer loads question banks from spreadsheets. The first row
// names the columns; only id is required.
package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/xuri/excelize/v2"

	"github.com/ibpractice/backend/internal/models"
	"github.com/ibpractice/backend/internal/questions"
)

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath  string // Path to the .xlsx file
	SheetName string // Sheet to import; empty means the first sheet
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Imported       int
	Skipped        int
	Errors         []string
}

var knownColumns = map[string]bool{
	"id":                   true,
	"html":                 true,
	"paper":                true,
	"reference_code":       true,
	"syllabus_link":        true,
	"maximum_marks":        true,
	"level":                true,
	"markscheme_html":      true,
	"examiner_report_html": true,
}

// Import reads cfg.FilePath and writes its questions into bank in one
// transaction, creating the questions table when missing.
func Import(ctx context.Context, cfg ImportConfig, bank *sqlx.DB) (*ImportResult, error) {
	f, err := excelize.OpenFile(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	qs, result, err := ReadSheet(f, cfg.SheetName)
	if err != nil {
		return nil, err
	}

	if err := questions.EnsureSchema(ctx, bank); err != nil {
		return nil, err
	}
	if err := questions.InsertQuestions(ctx, bank, qs); err != nil {
		return nil, err
	}
	result.Imported = len(qs)
	return result, nil
}

// ReadSheet parses the rows of sheet into questions. Rows that cannot be
// parsed are skipped and reported in the result.
func ReadSheet(f *excelize.File, sheet string) ([]models.Question, *ImportResult, error) {
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	header := make(map[string]int)
	for i, name := range rows[0] {
		name = strings.ToLower(strings.TrimSpace(name))
		if knownColumns[name] {
			header[name] = i
		}
	}
	if _, ok := header["id"]; !ok {
		return nil, nil, fmt.Errorf("sheet %q has no id column", sheet)
	}

	result := &ImportResult{Errors: make([]string, 0)}
	seen := make(map[int64]int)
	var qs []models.Question

	for i, row := range rows[1:] {
		rowNum := i + 2
		if isBlank(row) {
			continue
		}
		result.TotalProcessed++

		q, err := parseRow(row, header)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
			continue
		}
		if prev, dup := seen[q.ID]; dup {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: duplicate id %d (first seen on row %d)", rowNum, q.ID, prev))
			continue
		}
		seen[q.ID] = rowNum
		qs = append(qs, q)
	}
	return qs, result, nil
}

func parseRow(row []string, header map[string]int) (models.Question, error) {
	cell := func(name string) string {
		i, ok := header[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	id, err := strconv.ParseInt(cell("id"), 10, 64)
	if err != nil || id <= 0 {
		return models.Question{}, fmt.Errorf("invalid id %q", cell("id"))
	}

	q := models.Question{
		ID:                 id,
		HTML:               cell("html"),
		Paper:              cell("paper"),
		ReferenceCode:      cell("reference_code"),
		SyllabusLink:       cell("syllabus_link"),
		Level:              cell("level"),
		MarkschemeHTML:     cell("markscheme_html"),
		ExaminerReportHTML: cell("examiner_report_html"),
	}
	if v := cell("maximum_marks"); v != "" {
		marks, err := strconv.Atoi(v)
		if err != nil {
			return models.Question{}, fmt.Errorf("invalid maximum_marks %q", v)
		}
		q.MaximumMarks = marks
	}
	return q, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
