package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCheckExtractionQuality(t *testing.T) {
	tests := []struct {
		name      string
		csv       string
		estimated int
		wantCheck QualityCheck // "" means pass
	}{
		{"clean table", "a,b,c\n1,2,3\n4,5,6", 3, ""},
		{"exactly ninety percent", "a,b,c,d,e,f,g,h,i\n1,2,3,4,5,6,7,8,9", 10, ""},
		{"too few columns", "a,b\n1,2", 5, CheckColumnCount},
		{"default estimate applies", "a,b,c\n1,2,3", 0, CheckColumnCount},
		{"empty column", "a,b,c\n1,,3\n4,,6", 3, CheckEmptyColumns},
		{"sparse rows", "a,b,c,d\n1,,,\n,2,,\n,,3,4", 4, CheckCompleteness},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckExtractionQuality(ComputeStats(mustParse(t, tt.csv)), tt.estimated)
			if tt.wantCheck == "" {
				if err != nil {
					t.Errorf("CheckExtractionQuality() error = %v, want nil", err)
				}
				return
			}
			var q *QualityError
			if !errors.As(err, &q) {
				t.Fatalf("CheckExtractionQuality() error = %v, want QualityError", err)
			}
			if q.Check != tt.wantCheck {
				t.Errorf("Check = %s, want %s (%s)", q.Check, tt.wantCheck, q.Message)
			}
		})
	}
}

func TestCheckExtractionQuality_Messages(t *testing.T) {
	err := CheckExtractionQuality(ComputeStats(mustParse(t, "a,b\n1,2")), 5)
	want := "column count validation failed: expected 5 columns, found 2 (40.0%, threshold 90%)"
	if err == nil || err.Error() != want {
		t.Errorf("error = %v, want %q", err, want)
	}

	err = CheckExtractionQuality(ComputeStats(mustParse(t, "a,b,c\n1,,3")), 3)
	if err == nil || !strings.HasSuffix(err.Error(), ": b") {
		t.Errorf("error = %v, want empty column names listed", err)
	}
}

func TestIsQualityError(t *testing.T) {
	wrapped := fmt.Errorf("table 2: %w", &QualityError{Check: CheckParse, Message: "bad"})
	if !IsQualityError(wrapped) {
		t.Error("IsQualityError(wrapped) = false")
	}
	if IsQualityError(errBoom) {
		t.Error("IsQualityError(other) = true")
	}
}

func TestRetryInstructions(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		estimated int
		want      string
	}{
		{"nil", nil, 5, ""},
		{"not a quality error", errBoom, 5, ""},
		{"column count names estimate", &QualityError{Check: CheckColumnCount, Message: "m"}, 7, "This table should have 7 columns."},
		{"empty columns", &QualityError{Check: CheckEmptyColumns, Message: "m"}, 0, "Focus only on data rows."},
		{"completeness", &QualityError{Check: CheckCompleteness, Message: "m"}, 0, "Do not skip any rows."},
		{"parse", &QualityError{Check: CheckParse, Message: "m"}, 0, "Quote all values that contain commas."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RetryInstructions(tt.err, tt.estimated)
			if tt.want == "" {
				if got != "" {
					t.Errorf("RetryInstructions() = %q, want empty", got)
				}
				return
			}
			if !strings.HasPrefix(got, "Previous attempt failed with: m\n") || !strings.Contains(got, tt.want) {
				t.Errorf("RetryInstructions() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
