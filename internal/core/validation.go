package core

// validation.go checks parsed tables against a canonical TableMapping.
//
// Validation happens at two levels:
//  1. Header validation: every required field must appear under its canonical
//     name or one of its aliases; a miss is reported once at row 0.
//  2. Cell validation: each mapped column is checked against its FieldMapping
//     (type, bounds, pattern). Unmapped columns produce warnings.
//
// Validation never stops at the first problem. The full report is returned so
// a reviewer can correct rows one by one. Data rows are numbered as they
// appear in the file: the first record is row 2, after the header.

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError is a row/field scoped problem that makes a table invalid.
type ValidationError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d, %s: %s", e.Row, e.Field, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// ValidationWarning is a non-fatal finding.
type ValidationWarning struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult is the aggregate outcome of validating one table.
type ValidationResult struct {
	Valid       bool                `json:"valid"`
	Errors      []ValidationError   `json:"errors"`
	Warnings    []ValidationWarning `json:"warnings"`
	RowCount    int                 `json:"rowCount"`
	ColumnCount int                 `json:"columnCount"`
}

// Summary renders up to limit errors as one message, for stage logs.
func (r ValidationResult) Summary(limit int) string {
	if len(r.Errors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("field validation failed:")
	for i, e := range r.Errors {
		if i == limit {
			fmt.Fprintf(&b, "\n  ... and %d more errors", len(r.Errors)-limit)
			break
		}
		b.WriteString("\n  ")
		b.WriteString(e.Error())
	}
	return b.String()
}

// ValidateCSV validates every header and cell of t against m.
func ValidateCSV(t *CSVTable, m TableMapping) ValidationResult {
	result := ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	if t == nil || len(t.Records) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Row:     0,
			Message: "CSV contains no data rows",
		})
		return result
	}

	result.RowCount = len(t.Records)
	result.ColumnCount = len(t.Headers)

	if missing := MissingRequired(t.Headers, m); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = f.Name
		}
		result.Errors = append(result.Errors, ValidationError{
			Row:     0,
			Field:   strings.Join(names, ", "),
			Message: fmt.Sprintf("missing required column(s): %s", strings.Join(names, ", ")),
		})
	}

	// Resolve each header once.
	fields := make([]*FieldMapping, len(t.Headers))
	for col, h := range t.Headers {
		if f, ok := m.FindField(h); ok {
			fields[col] = &f
		}
	}

	for i, rec := range t.Records {
		row := i + 2
		for col, h := range t.Headers {
			f := fields[col]
			if f == nil {
				result.Warnings = append(result.Warnings, ValidationWarning{
					Row:     row,
					Field:   h,
					Message: fmt.Sprintf("Column %q is not in the %s field mapping", h, m.Key),
				})
				continue
			}
			if msg := ValidateFieldValue(rec[col], *f); msg != "" {
				result.Errors = append(result.Errors, ValidationError{
					Row:     row,
					Field:   h,
					Value:   rec[col],
					Message: msg,
				})
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// MissingRequired returns the required fields of m not present in headers
// under their canonical name or an alias.
func MissingRequired(headers []string, m TableMapping) []FieldMapping {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		if f, ok := m.FindField(h); ok {
			present[f.Name] = true
		}
	}
	var missing []FieldMapping
	for _, f := range m.RequiredFields() {
		if !present[f.Name] {
			missing = append(missing, f)
		}
	}
	return missing
}

// ValidateFieldValue checks one cell against a field definition.
// Returns "" when valid, otherwise a human-readable message.
func ValidateFieldValue(value string, f FieldMapping) string {
	value = strings.TrimSpace(value)
	if value == "" {
		if f.Required {
			return fmt.Sprintf("%s is required", f.Name)
		}
		return ""
	}

	var num float64
	hasNum := false
	switch f.Type {
	case FieldNumber:
		v, ok := ParseNumber(value)
		if !ok {
			return "must be a number"
		}
		num, hasNum = v, true
	case FieldInteger:
		v, ok := ParseNumber(value)
		if !ok {
			return "must be a number"
		}
		if _, ok := ParseInteger(value); !ok {
			return "must be an integer"
		}
		num, hasNum = v, true
	case FieldBoolean:
		if _, ok := ParseBool(value); !ok {
			return "must be true or false"
		}
	}

	if f.Rule == nil {
		return ""
	}
	if hasNum {
		if f.Rule.Min != nil && num < *f.Rule.Min {
			return "must be >= " + formatNumber(*f.Rule.Min)
		}
		if f.Rule.Max != nil && num > *f.Rule.Max {
			return "must be <= " + formatNumber(*f.Rule.Max)
		}
	}
	if f.Rule.Pattern != "" && (f.Type == FieldString || f.Type == "") {
		re := f.Rule.re
		if re == nil {
			var err error
			if re, err = regexp.Compile(f.Rule.Pattern); err != nil {
				return "format is invalid"
			}
		}
		if !re.MatchString(value) {
			return "format is invalid"
		}
	}
	return ""
}
