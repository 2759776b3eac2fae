package core

// normalizer.go maps spreadsheet rows onto Records for bulk import.
//
// Only the CURP is mandatory. Every other field is copied when the row
// supplies it and it passes its syntactic check. A row is rejected on the
// first failing rule, in this order:
//
//  1. CURP present
//  2. CURP exactly 18 characters
//  3. average, if present, a finite number in [0, 10]
//  4. personal email, if present, matches the minimal pattern
//  5. institutional email, if present, matches the minimal pattern
//  6. status, if present, one of Statuses
//
// Rejections are reported per row and never abort the rest of the batch.

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Row is one loosely typed input row keyed by its original header.
type Row map[string]any

// Normalizer resolves headers through a HeaderIndex and validates rows.
type Normalizer struct {
	index HeaderIndex
	types map[Field]FieldType
}

// NewNormalizer creates a normalizer for the given field specs.
func NewNormalizer(specs []FieldSpec) *Normalizer {
	types := make(map[Field]FieldType, len(specs))
	for _, spec := range specs {
		types[spec.Name] = spec.Type
	}
	return &Normalizer{
		index: MakeHeaderIndex(specs),
		types: types,
	}
}

// DefaultNormalizer returns a normalizer using FormulationFields.
func DefaultNormalizer() *Normalizer {
	return NewNormalizer(FormulationFields)
}

// Normalize validates every row and returns the accepted records together
// with one RowError per rejected row. Row numbers are 1-based.
func (n *Normalizer) Normalize(rows []Row) ([]Record, []RowError) {
	records := make([]Record, 0, len(rows))
	var rowErrs []RowError

	for i, row := range rows {
		rec, err := n.NormalizeRow(row)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: i + 1, Reason: err.Message})
			continue
		}
		records = append(records, rec)
	}

	return records, rowErrs
}

// NormalizeRow converts a single row, returning the first rule it breaks.
func (n *Normalizer) NormalizeRow(row Row) (Record, *ValidationError) {
	cells := n.resolve(row)

	curp, ok := cellText(cells[FieldCURP])
	if !ok {
		return Record{}, invalid(FieldCURP, "", MsgMissingCURP)
	}
	curp = strings.ToUpper(curp)
	if utf8.RuneCountInString(curp) != CURPLength {
		return Record{}, invalid(FieldCURP, curp, MsgCURPLength)
	}

	rec := Record{CURP: curp}

	if raw, ok := cellText(cells[FieldAverage]); ok {
		avg, err := ParseAverage(raw)
		if err != nil {
			return Record{}, invalid(FieldAverage, raw, MsgAverageRange)
		}
		rec.Average = &avg
	}

	if raw, ok := cellText(cells[FieldPersonalEmail]); ok {
		if !IsEmail(raw) {
			return Record{}, invalid(FieldPersonalEmail, raw, MsgPersonalEmail)
		}
		rec.PersonalEmail = strings.ToLower(raw)
	}

	if raw, ok := cellText(cells[FieldInstitutionalEmail]); ok {
		if !IsEmail(raw) {
			return Record{}, invalid(FieldInstitutionalEmail, raw, MsgInstitutionalEmail)
		}
		rec.InstitutionalEmail = strings.ToLower(raw)
	}

	if raw, ok := cellText(cells[FieldStatus]); ok {
		status := Status(strings.ToLower(raw))
		if !status.Valid() {
			return Record{}, invalid(FieldStatus, raw, MsgStatus)
		}
		rec.Status = status
	}

	if v, ok := cells[FieldFulfilled]; ok && cellPresent(v) {
		rec.Fulfilled = cellList(v)
	}

	for field, v := range cells {
		if n.types[field] != FieldText {
			continue
		}
		if s, ok := cellText(v); ok {
			setText(&rec, field, s)
		}
	}

	return rec, nil
}

// resolve picks, for each field, the first column whose header maps to it.
// Columns are visited in sorted header order so the choice is deterministic.
func (n *Normalizer) resolve(row Row) map[Field]any {
	headers := make([]string, 0, len(row))
	for h := range row {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	cells := make(map[Field]any, len(headers))
	for _, h := range headers {
		field, ok := n.index.Lookup(h)
		if !ok {
			continue
		}
		if _, taken := cells[field]; taken {
			continue
		}
		cells[field] = row[h]
	}
	return cells
}

// setText assigns a plain text field.
func setText(rec *Record, field Field, s string) {
	switch field {
	case FieldFirstName:
		rec.FirstName = s
	case FieldPaternalSurname:
		rec.PaternalSurname = s
	case FieldMaternalSurname:
		rec.MaternalSurname = s
	case FieldHomePhone:
		rec.HomePhone = s
	case FieldMobilePhone:
		rec.MobilePhone = s
	case FieldInstitution:
		rec.Institution = s
	case FieldProgram:
		rec.Program = s
	case FieldGroup:
		rec.Group = s
	case FieldPDFURL:
		rec.PDFURL = s
	}
}
