package core

// quality.go holds the structural checks applied to every extracted table
// before field validation. A table that fails them is re-requested from the
// analysis service with instructions aimed at the failed check.

import (
	"errors"
	"fmt"
	"strings"
)

// Quality thresholds.
const (
	DefaultEstimatedColumns = 5
	MinColumnCoverage       = 90.0 // percent of the estimated column count
	MaxEmptyColumnPct       = 10.0 // percent of columns with no values
	MinCompleteness         = 50.0 // percent of non-empty cells
)

// QualityCheck names a structural check.
type QualityCheck string

const (
	CheckParse        QualityCheck = "parse"
	CheckColumnCount  QualityCheck = "column_count"
	CheckEmptyColumns QualityCheck = "empty_columns"
	CheckCompleteness QualityCheck = "completeness"
)

// QualityError reports an extracted table that failed a structural check.
type QualityError struct {
	Check   QualityCheck
	Message string
}

func (e *QualityError) Error() string {
	return e.Message
}

// IsQualityError reports whether err is a QualityError.
func IsQualityError(err error) bool {
	var q *QualityError
	return errors.As(err, &q)
}

// CheckExtractionQuality applies the column-count, empty-column and
// completeness checks. estimatedColumns <= 0 uses DefaultEstimatedColumns.
func CheckExtractionQuality(stats CSVStats, estimatedColumns int) error {
	if estimatedColumns <= 0 {
		estimatedColumns = DefaultEstimatedColumns
	}

	coverage := float64(stats.TotalColumns) / float64(estimatedColumns) * 100
	if coverage < MinColumnCoverage {
		return &QualityError{
			Check: CheckColumnCount,
			Message: fmt.Sprintf("column count validation failed: expected %d columns, found %d (%.1f%%, threshold %.0f%%)",
				estimatedColumns, stats.TotalColumns, coverage, MinColumnCoverage),
		}
	}

	if stats.TotalColumns > 0 {
		var empty []string
		for _, f := range stats.Fields {
			if f.Filled == 0 {
				empty = append(empty, f.Field)
			}
		}
		pct := float64(len(empty)) / float64(stats.TotalColumns) * 100
		if pct > MaxEmptyColumnPct {
			return &QualityError{
				Check: CheckEmptyColumns,
				Message: fmt.Sprintf("empty column validation failed: %d/%d columns empty (%.1f%%, threshold %.0f%%): %s",
					len(empty), stats.TotalColumns, pct, MaxEmptyColumnPct, strings.Join(empty, ", ")),
			}
		}
	}

	if stats.Completeness < MinCompleteness {
		return &QualityError{
			Check: CheckCompleteness,
			Message: fmt.Sprintf("data completeness validation failed: %.1f%% complete (threshold %.0f%%)",
				stats.Completeness, MinCompleteness),
		}
	}
	return nil
}

// RetryInstructions builds the guidance sent with the next extraction attempt
// after err. Returns "" when err gives nothing to act on.
func RetryInstructions(err error, estimatedColumns int) string {
	if err == nil {
		return ""
	}
	var q *QualityError
	if !errors.As(err, &q) {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Previous attempt failed with: %s\n", q.Message)
	switch q.Check {
	case CheckColumnCount:
		if estimatedColumns > 0 {
			fmt.Fprintf(&b, "This table should have %d columns. ", estimatedColumns)
		}
		b.WriteString("Pay careful attention to column boundaries and merged header cells.")
	case CheckEmptyColumns:
		b.WriteString("Focus only on data rows. Skip header rows, footer rows, footnotes and captions.")
	case CheckCompleteness:
		b.WriteString("Extract the complete table. Do not skip any rows.")
	case CheckParse:
		b.WriteString("Output valid CSV. Quote all values that contain commas. Use consistent comma delimiters.")
	}
	return b.String()
}
