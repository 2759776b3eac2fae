package core

// convert.go turns loosely typed spreadsheet cells into record values.
//
// Rows reach the importer either as JSON objects (values may be strings,
// numbers, booleans or arrays) or as CSV records (always strings). Both are
// reduced to trimmed strings here, after removing the artifacts Excel and
// Google Sheets leave behind when exporting (="..." formulas, stray quotes).

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// emailPattern is the minimal local@domain.tld check applied to every email field.
var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// IsEmail reports whether s passes the minimal email pattern.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// NormalizeHeader lower-cases s, strips diacritics and drops every
// character outside [a-z0-9], so "Correo Personal", "correo-personal"
// and "CORREO_PERSONAL" compare equal.
func NormalizeHeader(s string) string {
	s = strings.ToLower(s)

	// A fresh chain per call: transformers carry state and are not safe to share.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
// - Removes a leading UTF-8 byte order mark
func CleanCell(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// cellText converts a raw cell to a cleaned string.
// The second result is false when the cell is absent, null or blank.
func cellText(v any) (string, bool) {
	var s string
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		s = val
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	case bool:
		s = strconv.FormatBool(val)
	case fmt.Stringer:
		s = val.String()
	default:
		s = fmt.Sprint(val)
	}
	s = CleanCell(s)
	return s, s != ""
}

// cellList coerces a cell to a list of strings.
// Anything that is not already a list becomes an empty, non-nil slice.
func cellList(v any) []string {
	var items []any
	switch val := v.(type) {
	case []string:
		out := make([]string, 0, len(val))
		for _, s := range val {
			if s = CleanCell(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		items = val
	default:
		return []string{}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := cellText(item); ok {
			out = append(out, s)
		}
	}
	return out
}

// cellPresent mirrors cellText's presence rule for cells of any type.
func cellPresent(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case []any, []string:
		return true
	default:
		_, ok := cellText(val)
		return ok
	}
}

var errAverageRange = errors.New("average out of range")

// ParseAverage parses an academic average and checks it lies in [0, 10].
func ParseAverage(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse average %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > 10 {
		return 0, fmt.Errorf("%w: %v", errAverageRange, f)
	}
	return f, nil
}
