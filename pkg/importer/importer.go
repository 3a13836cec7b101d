package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported import format")

// ErrNoHeader is returned when the first row carries no column names.
var ErrNoHeader = errors.New("import file has no header row")

// Row is one data line keyed by normalized header. Line is 1-based and
// counts the header.
type Row struct {
	Line   int
	Fields map[string]string
}

// headerAliases folds common spreadsheet column titles onto field names.
var headerAliases = map[string]string{
	"full_name":      "name",
	"student_name":   "name",
	"phone":          "contact",
	"phone_number":   "contact",
	"mobile":         "contact",
	"email_address":  "email",
	"source":         "sources",
	"lead_source":    "sources",
	"next_follow_up": "next_follow_up",
	"follow_up":      "next_follow_up",
	"next_followup":  "next_follow_up",
	"program":        "course",
}

// Parse reads rows from a CSV or XLSX upload, selected by file extension.
func Parse(r io.Reader, filename string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return ParseCSV(r)
	case ".xlsx", ".xlsm":
		return ParseXLSX(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
}

// ParseCSV reads a comma separated file with a header row.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return toRows(records)
}

// ParseXLSX reads the first sheet of a workbook.
func ParseXLSX(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("open xlsx: workbook has no sheets")
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	return toRows(records)
}

func toRows(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, ErrNoHeader
	}
	headers := make([]string, len(records[0]))
	named := 0
	for i, h := range records[0] {
		headers[i] = NormalizeHeader(h)
		if headers[i] != "" {
			named++
		}
	}
	if named == 0 {
		return nil, ErrNoHeader
	}

	rows := make([]Row, 0, len(records)-1)
	for idx, record := range records[1:] {
		fields := make(map[string]string, len(headers))
		for col, value := range record {
			if col >= len(headers) || headers[col] == "" {
				continue
			}
			if v := strings.TrimSpace(value); v != "" {
				fields[headers[col]] = v
			}
		}
		if len(fields) == 0 {
			continue
		}
		rows = append(rows, Row{Line: idx + 2, Fields: fields})
	}
	return rows, nil
}

// NormalizeHeader turns a column title like "Next Follow-Up" into
// next_follow_up and applies known aliases.
func NormalizeHeader(raw string) string {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "\ufeff")
	var b strings.Builder
	lastUnderscore := true
	for i, r := range raw {
		switch {
		case unicode.IsUpper(r):
			if !lastUnderscore && i > 0 && isLowerBefore(raw, i) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if alias, ok := headerAliases[name]; ok {
		return alias
	}
	return name
}

func isLowerBefore(s string, i int) bool {
	prev := rune(s[i-1])
	return unicode.IsLower(prev) || unicode.IsDigit(prev)
}
