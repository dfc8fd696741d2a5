// Package importer decodes uploaded spreadsheets (CSV or XLSX) into
// normalized inventory records ready for merge reconciliation.
package importer

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"labstock/pkg/domain"
)

// Upload is one file handed to Decode.
type Upload struct {
	Name   string
	Reader io.Reader
}

// Result carries the decoded rows of one or more uploads plus any non-fatal
// per-row issues, tagged with the file they came from.
type Result struct {
	Records []domain.Record
	Issues  []FileIssue
}

// FileIssue is a RowIssue attributed to a named upload.
type FileIssue struct {
	File string `json:"file"`
	domain.RowIssue
}

// Decode parses every upload and concatenates the rows in argument order,
// matching how multi-file uploads stack in the entry form. A file that fails
// to parse outright fails the whole decode.
func Decode(uploads ...Upload) (Result, error) {
	var res Result
	for _, u := range uploads {
		records, issues, err := decodeOne(u)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", u.Name, err)
		}
		res.Records = append(res.Records, records...)
		for _, issue := range issues {
			res.Issues = append(res.Issues, FileIssue{File: u.Name, RowIssue: issue})
		}
	}
	return res, nil
}

func decodeOne(u Upload) ([]domain.Record, []domain.RowIssue, error) {
	switch strings.ToLower(filepath.Ext(u.Name)) {
	case ".xlsx":
		return decodeXLSX(u.Reader)
	case ".csv", "":
		return domain.DecodeCSV(u.Reader)
	default:
		return nil, nil, fmt.Errorf("unsupported file type %q", filepath.Ext(u.Name))
	}
}

// decodeXLSX reads the first sheet of a workbook; the first row is the
// header.
func decodeXLSX(r io.Reader) ([]domain.Record, []domain.RowIssue, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	mapped, err := domain.MapHeader(rows[0])
	if err != nil {
		return nil, nil, err
	}
	records, issues := domain.DecodeRows(mapped, rows[1:])
	return records, issues, nil
}
