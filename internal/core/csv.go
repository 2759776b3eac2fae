package core

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ParseCSVRows reads an uploaded spreadsheet export into loose rows.
//
// The first non-empty record is the header. Invalid UTF-8 is replaced rather
// than rejected, a leading BOM is ignored, and files exported with ';' as
// the separator (common for Spanish-locale Excel) are detected from the
// header line. Blank lines are skipped. When two columns share a header the
// first one wins.
func ParseCSVRows(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = sanitizeUTF8(data)
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	records, err := parseCSV(data, detectDelimiter(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}

	headerAt := -1
	for i, rec := range records {
		if !isEmptyRow(rec) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return []Row{}, nil
	}

	header := make([]string, len(records[headerAt]))
	for i, h := range records[headerAt] {
		header[i] = CleanCell(h)
	}

	rows := make([]Row, 0, len(records)-headerAt-1)
	for _, rec := range records[headerAt+1:] {
		if isEmptyRow(rec) {
			continue
		}
		row := make(Row, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if _, dup := row[h]; dup {
				continue
			}
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func sanitizeUTF8(data []byte) []byte {
	return bytes.ToValidUTF8(data, []byte("\uFFFD"))
}

func parseCSV(data []byte, comma rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// detectDelimiter picks ';' when the first line has more semicolons than commas.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
