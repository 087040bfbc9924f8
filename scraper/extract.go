package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldSpec pairs an output field name with the label pattern that precedes
// its value in the rendered page text.
type FieldSpec struct {
	Name    string
	Pattern *regexp.Regexp
}

// Field compiles a case-insensitive label pattern. It panics on an invalid
// pattern, so it is meant for package-level spec tables.
func Field(name, pattern string) FieldSpec {
	return FieldSpec{Name: name, Pattern: regexp.MustCompile(`(?i)` + pattern)}
}

// Fields maps field names to extracted values. A field whose label was not
// found is absent from the map.
type Fields map[string]string

// Ptr returns the value for name, or nil when the field was not found.
func (f Fields) Ptr(name string) *string {
	v, ok := f[name]
	if !ok {
		return nil
	}
	return &v
}

// Lines splits page text into trimmed, non-empty lines.
func Lines(pageText string) []string {
	raw := strings.Split(pageText, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Extract runs every spec against the page text. Each spec scans from the
// first line; the first matching line wins and the value is the line after
// it, or the matching line itself when it is the last one. Extract never
// fails: unmatched fields are simply absent.
func Extract(pageText string, specs []FieldSpec) Fields {
	lines := Lines(pageText)
	out := make(Fields, len(specs))
	for _, spec := range specs {
		if spec.Pattern == nil {
			continue
		}
		for i, line := range lines {
			if !spec.Pattern.MatchString(line) {
				continue
			}
			if i+1 < len(lines) {
				out[spec.Name] = lines[i+1]
			} else {
				out[spec.Name] = line
			}
			break
		}
	}
	return out
}

// ============================================================================
// COERCION
// ============================================================================

var (
	numberToken = regexp.MustCompile(`-?[$\s]*\d[\d.,]*`)
	digitRun    = regexp.MustCompile(`\d+`)
)

// CoerceNumber parses the first number in s. Thousands separators are
// dropped; when both '.' and ',' appear the last one is the decimal mark, and
// a lone ',' followed by exactly three digits is read as a thousands
// separator. Returns nil when s holds no number.
func CoerceNumber(s string) *decimal.Decimal {
	tok := numberToken.FindString(s)
	if tok == "" {
		return nil
	}
	negative := strings.HasPrefix(tok, "-")
	tok = strings.Map(func(r rune) rune {
		if r == '$' || r == '-' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, tok)
	tok = strings.TrimRight(tok, ".,")

	dots, commas := strings.Count(tok, "."), strings.Count(tok, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(tok, ".") > strings.LastIndex(tok, ",") {
			tok = strings.ReplaceAll(tok, ",", "")
		} else {
			tok = strings.ReplaceAll(tok, ".", "")
			tok = strings.Replace(tok, ",", ".", 1)
		}
	case commas > 1:
		tok = strings.ReplaceAll(tok, ",", "")
	case commas == 1:
		if len(tok)-strings.Index(tok, ",")-1 == 3 {
			tok = strings.ReplaceAll(tok, ",", "")
		} else {
			tok = strings.Replace(tok, ",", ".", 1)
		}
	case dots > 1:
		tok = strings.ReplaceAll(tok, ".", "")
	}

	d, err := decimal.NewFromString(tok)
	if err != nil {
		return nil
	}
	if negative {
		d = d.Neg()
	}
	return &d
}

// CoerceInt returns the first contiguous run of digits in s, or nil.
func CoerceInt(s string) *int {
	run := digitRun.FindString(s)
	if run == "" {
		return nil
	}
	n, err := strconv.Atoi(run)
	if err != nil {
		return nil
	}
	return &n
}

var (
	isoDate     = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	numericDate = regexp.MustCompile(`(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4}|\d{2})\b`)
	wordDate    = regexp.MustCompile(`(?i)(\d{1,2})[\s\-/]*(?:de\s+)?([a-záéíóú]{3,})\.?[\s\-/]*(?:del?\s+)?(\d{4})`)
)

var monthPrefixes = map[string]time.Month{
	"ene": time.January, "jan": time.January,
	"feb": time.February,
	"mar": time.March,
	"abr": time.April, "apr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"ago": time.August, "aug": time.August,
	"sep": time.September, "set": time.September,
	"oct": time.October,
	"nov": time.November,
	"dic": time.December, "dec": time.December,
}

// CoerceDate finds a calendar date in s: ISO (2025-11-15), day-first numeric
// (15/11/2025, 15-11-25) or Spanish/English month names (15 de noviembre de
// 2025, 15-nov-2025). The date is returned at midnight in loc, nil if none.
func CoerceDate(s string, loc *time.Location) *time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if m := isoDate.FindStringSubmatch(s); m != nil {
		if t, ok := makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), loc); ok {
			return &t
		}
	}
	if m := numericDate.FindStringSubmatch(s); m != nil {
		year := atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
		if t, ok := makeDate(year, atoi(m[2]), atoi(m[1]), loc); ok {
			return &t
		}
	}
	if m := wordDate.FindStringSubmatch(s); m != nil {
		name := strings.ToLower(m[2])
		if month, ok := monthPrefixes[string([]rune(name)[:3])]; ok {
			if t, ok := makeDate(atoi(m[3]), int(month), atoi(m[1]), loc); ok {
				return &t
			}
		}
	}
	return nil
}

func makeDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
