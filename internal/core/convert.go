package core

// convert.go provides tolerant conversion of extracted cell text to typed values.
//
// Table text transcribed from papers carries typesetting artifacts:
//   - Unicode minus signs and thin-space digit grouping
//   - Thousands separators ("1,234.5")
//   - Leading plus signs
//   - Excel formula prefixes (="value") and stray surrounding quotes
//
// Parse* functions report ok=false for empty or malformed input instead of
// returning errors, so validators can attach their own messages.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// groupedRegex matches digits grouped in thousands with commas.
var groupedRegex = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d*)?$`)

var numberReplacer = strings.NewReplacer(
	"−", "-", // minus sign
	"–", "-", // en dash used as minus
	" ", "", // thin space
	" ", "", // narrow no-break space
	" ", "", // no-break space
)

// ParseNumber converts cell text to a float64.
func ParseNumber(s string) (float64, bool) {
	s = numberReplacer.Replace(CleanCell(s))
	if s == "" {
		return 0, false
	}
	if groupedRegex.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ParseInteger converts cell text to an int64. Values with a fractional part
// are rejected; "12.0" is accepted.
func ParseInteger(s string) (int64, bool) {
	f, ok := ParseNumber(s)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// ParseBool accepts various representations: true/false, yes/no, t/f, y/n, 1/0.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(CleanCell(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// formatNumber renders a bound without trailing zeros ("90", "0.5").
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ptr returns a pointer to v.
func ptr[T any](v T) *T {
	return &v
}

// deref returns *p or the zero value.
func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
