// Package checklist reads the daily habit checklist kept in a Google Sheet.
//
// The sheet layout is one habit per row (label in column B) and one date per
// column (from column C). A cell containing "eof" ends the table, both
// downwards and, in the header row, to the right. Section rows such as "1."
// are skipped.
package checklist

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const DefaultRange = "A:ZZ"

var sectionRow = regexp.MustCompile(`^\d+\.$`)

// Day is one date column of the checklist.
type Day struct {
	Date   string            `json:"date"`
	Habits map[string]string `json:"habits"`
}

// ValueReader returns the raw cell grid.
type ValueReader interface {
	Values(ctx context.Context) ([][]string, error)
}

// SheetsReader reads a range of a spreadsheet with a service account.
type SheetsReader struct {
	Service       *sheets.Service
	SpreadsheetID string
	Range         string
}

// NewSheetsReader builds a read-only Sheets client from a service account
// key file.
func NewSheetsReader(ctx context.Context, credentialsFile, spreadsheetID, rng string) (*SheetsReader, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("checklist: spreadsheet id is required")
	}
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsReadonlyScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("checklist: sheets client: %w", err)
	}
	if rng == "" {
		rng = DefaultRange
	}
	return &SheetsReader{Service: srv, SpreadsheetID: spreadsheetID, Range: rng}, nil
}

func (r *SheetsReader) Values(ctx context.Context) ([][]string, error) {
	resp, err := r.Service.Spreadsheets.Values.Get(r.SpreadsheetID, r.Range).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("checklist: read %s: %w", r.Range, err)
	}
	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			rows[i][j] = fmt.Sprint(cell)
		}
	}
	return rows, nil
}

// Checklist serves the last n days of habits.
type Checklist struct {
	Reader ValueReader
}

func New(reader ValueReader) *Checklist {
	return &Checklist{Reader: reader}
}

// Days returns the last n date columns, oldest first.
func (c *Checklist) Days(ctx context.Context, n int) (any, error) {
	rows, err := c.Reader.Values(ctx)
	if err != nil {
		return nil, err
	}
	days := Pivot(Trim(rows))
	if n > 0 && len(days) > n {
		days = days[len(days)-n:]
	}
	return days, nil
}

// Trim cuts the grid at the first "eof" row and header column and drops
// section rows. An "eof" in the header row only marks the column end.
func Trim(rows [][]string) [][]string {
	for i := 1; i < len(rows); i++ {
		if containsEOF(rows[i]) {
			rows = rows[:i]
			break
		}
	}

	kept := make([][]string, 0, len(rows))
	for _, row := range rows {
		if !isSectionRow(row) {
			kept = append(kept, row)
		}
	}
	if len(kept) == 0 {
		return kept
	}

	end := len(kept[0])
	for j, cell := range kept[0] {
		if strings.Contains(strings.ToLower(cell), "eof") {
			end = j
			break
		}
	}
	for i, row := range kept {
		if len(row) > end {
			kept[i] = row[:end]
		}
	}
	return kept
}

// Pivot turns habit rows into one Day per non-empty date column.
func Pivot(rows [][]string) []Day {
	if len(rows) == 0 || len(rows[0]) <= 2 {
		return nil
	}
	header := rows[0]
	var days []Day
	for col := 2; col < len(header); col++ {
		date := strings.TrimSpace(header[col])
		if date == "" {
			continue
		}
		day := Day{Date: date, Habits: map[string]string{}}
		for _, row := range rows[1:] {
			if len(row) < 2 {
				continue
			}
			label := strings.TrimSpace(row[1])
			if label == "" {
				continue
			}
			value := ""
			if col < len(row) {
				value = strings.TrimSpace(row[col])
			}
			day.Habits[label] = value
		}
		days = append(days, day)
	}
	return days
}

func containsEOF(row []string) bool {
	for _, cell := range row {
		if strings.Contains(strings.ToLower(cell), "eof") {
			return true
		}
	}
	return false
}

func isSectionRow(row []string) bool {
	for _, cell := range row {
		if sectionRow.MatchString(strings.TrimSpace(cell)) {
			return true
		}
	}
	return false
}
