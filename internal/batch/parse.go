package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/model"
)

// MaxRows bounds a single upload.
const MaxRows = 5000

// Recognized column headers. Anything else in the header is ignored.
const (
	ColParticipantName     = "participant_name"
	ColDocumentID          = "document_id"
	ColCertifierName       = "certifier_name"
	ColRepresentativeName  = "representative_name"
	ColRepresentativeName2 = "representative_name_2"
	ColRepresentativeName3 = "representative_name_3"
)

var columns = []string{
	ColParticipantName,
	ColDocumentID,
	ColCertifierName,
	ColRepresentativeName,
	ColRepresentativeName2,
	ColRepresentativeName3,
}

// Row is one participant read from the input. Index is 1-based.
type Row struct {
	Index       int
	Participant model.Participant
}

// Parse reads a .csv or .xlsx upload. The first row is the header.
func Parse(r io.Reader, filename string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return ParseCSV(r)
	case ".xlsx":
		return ParseXLSX(r)
	default:
		return nil, apperr.ErrInvalidInput.WithMessage("unsupported batch file %q: use .csv or .xlsx", filename)
	}
}

func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, apperr.ErrInvalidInput.WithMessage("csv line %d: %v", pe.Line, pe.Err)
		}
		return nil, apperr.ErrInvalidInput.Wrap(fmt.Errorf("read csv: %w", err))
	}
	if len(records) == 0 {
		return nil, apperr.ErrInvalidInput.WithMessage("file has no header row")
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return ParseTable(header, records[1:])
}

// ParseXLSX reads the first sheet of a workbook.
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.ErrInvalidInput.WithMessage("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.ErrInvalidInput.WithMessage("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.ErrInvalidInput.WithMessage("read sheet %q: %v", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, apperr.ErrInvalidInput.WithMessage("file has no header row")
	}
	return ParseTable(records[0], records[1:])
}

// ParseTable maps records onto participants by header name. Header names are
// trimmed and matched case-sensitively; the first occurrence of a duplicate
// header wins. Fully blank records are skipped and do not consume an index.
func ParseTable(header []string, records [][]string) ([]Row, error) {
	pos := make(map[string]int)
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, seen := pos[h]; !seen {
			pos[h] = i
		}
	}
	known := false
	for _, c := range columns {
		if _, ok := pos[c]; ok {
			known = true
			break
		}
	}
	if !known {
		return nil, apperr.ErrInvalidInput.WithMessage("header has none of the columns %s", strings.Join(columns, ", "))
	}

	cell := func(rec []string, col string) string {
		i, ok := pos[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []Row
	for _, rec := range records {
		if blank(rec) {
			continue
		}
		if len(rows) == MaxRows {
			return nil, apperr.ErrInvalidInput.WithMessage("batch exceeds %d rows", MaxRows)
		}
		rows = append(rows, Row{
			Index: len(rows) + 1,
			Participant: model.Participant{
				Name:                cell(rec, ColParticipantName),
				DocumentID:          cell(rec, ColDocumentID),
				CertifierName:       cell(rec, ColCertifierName),
				RepresentativeName:  cell(rec, ColRepresentativeName),
				RepresentativeName2: cell(rec, ColRepresentativeName2),
				RepresentativeName3: cell(rec, ColRepresentativeName3),
			},
		})
	}
	if len(rows) == 0 {
		return nil, apperr.ErrInvalidInput.WithMessage("file has no data rows")
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
