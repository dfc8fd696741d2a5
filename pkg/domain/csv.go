package domain

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// RowIssue records a non-fatal problem with one uploaded or stored row.
type RowIssue struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// EncodeCSV writes the records as CSV in storage column order. Records are
// normalized on the way out so the file on disk is always canonical.
func EncodeCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		n := Normalize(r)
		row := make([]string, len(Columns))
		for i, col := range Columns {
			row[i] = n.Field(col)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// TemplateCSV returns a header-only CSV suitable as an upload template.
func TemplateCSV() []byte {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write(Columns)
	cw.Flush()
	return buf.Bytes()
}

// MapHeader resolves a raw header row onto known column names. Matching is
// case-insensitive and ignores surrounding whitespace. Unknown columns map to
// "" and are skipped by DecodeRows. Blank and duplicate headers are rejected.
func MapHeader(header []string) ([]string, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("empty header")
	}
	known := make(map[string]string, len(Columns))
	for _, c := range Columns {
		known[c] = c
	}
	seen := make(map[string]bool, len(header))
	mapped := make([]string, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" {
			return nil, fmt.Errorf("blank header at column %d", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate header %q", h)
		}
		seen[name] = true
		mapped[i] = known[name]
	}
	return mapped, nil
}

// DecodeRows converts raw string rows into normalized records using a mapped
// header. Short rows decode with the missing trailing fields empty (XLSX
// readers trim trailing blank cells); rows with surplus cells are reported as
// issues. Line numbers are 1-based and count the header as line 1.
func DecodeRows(mapped []string, rows [][]string) ([]Record, []RowIssue) {
	records := make([]Record, 0, len(rows))
	var issues []RowIssue
	for i, row := range rows {
		line := i + 2
		if len(row) > len(mapped) {
			issues = append(issues, RowIssue{
				Line:   line,
				Reason: fmt.Sprintf("expected %d cells, got %d", len(mapped), len(row)),
			})
		}
		var rec Record
		for j, cell := range row {
			if j >= len(mapped) || mapped[j] == "" {
				continue
			}
			rec.SetField(mapped[j], cell)
		}
		records = append(records, Normalize(rec))
	}
	return records, issues
}

// DecodeCSV reads records from CSV data. The first row must be a header;
// columns may appear in any order and unknown columns are ignored.
func DecodeCSV(r io.Reader) ([]Record, []RowIssue, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	mapped, err := MapHeader(rows[0])
	if err != nil {
		return nil, nil, err
	}
	records, issues := DecodeRows(mapped, rows[1:])
	return records, issues, nil
}
