package cellnorm

import (
	"strconv"
	"strings"
	"time"

	"github.com/docforge/invoice-extract/internal/config"
)

var dateSeparators = []string{"-", "/", "."}

// dateParts splits a date string on the first separator found in it. All
// parts must be numeric for the split to count.
func dateParts(s string) (parts []string, sep string, ok bool) {
	for _, cand := range dateSeparators {
		if strings.Contains(s, cand) {
			sep = cand
			break
		}
	}
	if sep == "" {
		return nil, "", false
	}
	parts = strings.Split(s, sep)
	if len(parts) != 3 {
		return nil, "", false
	}
	for _, p := range parts {
		if p == "" {
			return nil, "", false
		}
		if _, err := strconv.Atoi(p); err != nil {
			return nil, "", false
		}
	}
	return parts, sep, true
}

// MonthFirst is the ambiguous-order heuristic, kept as its own function so
// the inference is testable in isolation: slash-separated dates read
// month-first (US convention), dash- and dot-separated dates day-first.
func MonthFirst(sep string) bool {
	return sep == "/"
}

// expandYear century-corrects a two-digit year: below the cutoff maps into
// the 2000s, at or above into the 1900s.
func expandYear(y, cutoff int) int {
	if y >= 100 {
		return y
	}
	if y < cutoff {
		return 2000 + y
	}
	return 1900 + y
}

// NormalizeDate tries the configured input patterns in order against a date
// string and renders the first hit in the output format. When no pattern
// matches, a generic pass resolves the field order with the separator
// heuristic. Failure returns the input unchanged with ok=false.
func NormalizeDate(s string, df config.DateFormats) (string, bool) {
	trimmed := strings.TrimSpace(s)
	parts, sep, ok := dateParts(trimmed)
	if !ok {
		return s, false
	}

	for _, pattern := range df.InputPatterns {
		if d, matched := tryPattern(parts, sep, pattern, df.CenturyCutoff); matched {
			return render(d, df.OutputFormat), true
		}
	}
	if d, matched := genericDate(parts, sep, df.CenturyCutoff); matched {
		return render(d, df.OutputFormat), true
	}
	return s, false
}

// tryPattern matches the split value against one token pattern such as
// "DD-MM-YYYY" or "YYYY/MM/DD". The pattern's separator and field count
// must agree with the value's, and each field's width must not exceed its
// token's.
func tryPattern(parts []string, sep, pattern string, cutoff int) (time.Time, bool) {
	pparts, psep, ok := splitPattern(pattern)
	if !ok || psep != sep || len(pparts) != len(parts) {
		return time.Time{}, false
	}
	var day, month, year int
	for i, tok := range pparts {
		if len(parts[i]) > len(tok) {
			return time.Time{}, false
		}
		v, _ := strconv.Atoi(parts[i])
		switch tok {
		case "DD", "D":
			day = v
		case "MM", "M":
			month = v
		case "YYYY":
			if len(parts[i]) != 4 {
				return time.Time{}, false
			}
			year = v
		case "YY":
			year = expandYear(v, cutoff)
		default:
			return time.Time{}, false
		}
	}
	return makeDate(year, month, day)
}

func splitPattern(pattern string) (parts []string, sep string, ok bool) {
	for _, cand := range dateSeparators {
		if strings.Contains(pattern, cand) {
			sep = cand
			break
		}
	}
	if sep == "" {
		return nil, "", false
	}
	parts = strings.Split(pattern, sep)
	if len(parts) != 3 {
		return nil, "", false
	}
	return parts, sep, true
}

// genericDate handles values no pattern claimed. A four-digit field pins the
// year to either end; the remaining two fields are day and month in the
// order the separator implies, unless one of them is over 12 and forces the
// assignment.
func genericDate(parts []string, sep string, cutoff int) (time.Time, bool) {
	nums := make([]int, 3)
	for i, p := range parts {
		nums[i], _ = strconv.Atoi(p)
	}

	var year, a, b int
	switch {
	case len(parts[0]) == 4:
		year, a, b = nums[0], nums[1], nums[2]
		// ISO-style values are year month day regardless of separator.
		return makeDate(year, a, b)
	case len(parts[2]) == 4:
		year, a, b = nums[2], nums[0], nums[1]
	case len(parts[2]) <= 2:
		year, a, b = expandYear(nums[2], cutoff), nums[0], nums[1]
	default:
		return time.Time{}, false
	}

	day, month := a, b
	if MonthFirst(sep) {
		day, month = b, a
	}
	if month > 12 && day <= 12 {
		day, month = month, day
	}
	return makeDate(year, month, day)
}

func makeDate(year, month, day int) (time.Time, bool) {
	if year < 1000 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, false
	}
	return d, true
}

func render(d time.Time, format string) string {
	if format == "" {
		format = "2006-01-02"
	}
	return d.Format(format)
}
