package tables

import (
	"testing"

	"github.com/JonMunkholm/thermoextract/internal/core"
)

// =============================================================================
// Registration
// =============================================================================

func TestMappingsRegistered(t *testing.T) {
	keys := []string{
		core.MappingSamples,
		core.MappingFTDatapoints,
		core.MappingHeDatapoints,
		core.MappingFTTrackLengths,
		core.MappingHeWholeGrain,
	}
	for _, key := range keys {
		m, ok := core.Get(key)
		if !ok {
			t.Errorf("Get(%q) not registered", key)
			continue
		}
		if len(m.RequiredFields()) == 0 {
			t.Errorf("%s has no required fields", key)
		}
	}
	if got := core.MappingCount(); got != len(keys) {
		t.Errorf("MappingCount() = %d, want %d", got, len(keys))
	}
}

func TestForDataType(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"Sample metadata", core.MappingSamples},
		{"AFT ages", core.MappingFTDatapoints},
		{"fission-track  ages", core.MappingFTDatapoints},
		{"(U-Th)/He ages", core.MappingHeDatapoints},
		{"Track lengths", core.MappingFTTrackLengths},
		{"He grain data", core.MappingHeWholeGrain},
		{core.MappingHeWholeGrain, core.MappingHeWholeGrain},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			m, ok := core.ForDataType(tt.tag)
			if !ok {
				t.Fatalf("ForDataType(%q) not found", tt.tag)
			}
			if m.Key != tt.want {
				t.Errorf("ForDataType(%q) = %s, want %s", tt.tag, m.Key, tt.want)
			}
		})
	}

	if _, ok := core.ForDataType("Geochemistry"); ok {
		t.Error("ForDataType(Geochemistry) should not resolve")
	}
}

func TestFindField_Aliases(t *testing.T) {
	samples, _ := core.Get(core.MappingSamples)

	tests := []struct {
		header string
		want   string
		found  bool
	}{
		{"Lat", "latitude", true},
		{"  latitude (°n) ", "latitude", true},
		{"LONG.", "longitude", true},
		{"Sample No.", "sampleID", true},
		{"sampleid", "sampleID", true},
		{"Age (Ma)", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			f, ok := samples.FindField(tt.header)
			if ok != tt.found {
				t.Fatalf("FindField(%q) found = %v, want %v", tt.header, ok, tt.found)
			}
			if ok && f.Name != tt.want {
				t.Errorf("FindField(%q) = %s, want %s", tt.header, f.Name, tt.want)
			}
		})
	}
}

// =============================================================================
// Validation against the registered schemas
// =============================================================================

func TestValidateCSV_Samples(t *testing.T) {
	samples, _ := core.Get(core.MappingSamples)

	table, err := core.ParseCSV("Sample,Lat\nS1,45.2\nS2,abc")
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	res := core.ValidateCSV(table, samples)

	if res.Valid {
		t.Error("Valid = true, want false")
	}
	if res.RowCount != 2 || res.ColumnCount != 2 {
		t.Errorf("RowCount, ColumnCount = %d, %d, want 2, 2", res.RowCount, res.ColumnCount)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1: %v", len(res.Errors), res.Errors)
	}
	e := res.Errors[0]
	if e.Row != 3 || e.Field != "Lat" || e.Message != "must be a number" {
		t.Errorf("Errors[0] = %+v, want row 3, field Lat, must be a number", e)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("len(Warnings) = %d, want 0", len(res.Warnings))
	}
}

func TestValidateCSV_MissingRequired(t *testing.T) {
	tracks, _ := core.Get(core.MappingFTTrackLengths)

	table, err := core.ParseCSV("Sample,Angle\nS1,45\nS1,60\n")
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	res := core.ValidateCSV(table, tracks)

	var headerErrs int
	for _, e := range res.Errors {
		if e.Row == 0 {
			headerErrs++
			if e.Field != "trackLengthMicrons" {
				t.Errorf("row 0 error field = %q, want trackLengthMicrons", e.Field)
			}
		}
	}
	if headerErrs != 1 {
		t.Errorf("row 0 errors = %d, want 1", headerErrs)
	}
}

func TestValidateCSV_Ranges(t *testing.T) {
	grains, _ := core.Get(core.MappingHeWholeGrain)

	table, err := core.ParseCSV("Datapoint,Grain,Ft,U (ppm),Corrected Age\nD1,a1,1.2,-3,5000\nD1,a2,0.7,12,45.1\n")
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	res := core.ValidateCSV(table, grains)

	want := map[string]string{
		"Ft":            "must be <= 1",
		"U (ppm)":       "must be >= 0",
		"Corrected Age": "must be <= 4500",
	}
	if len(res.Errors) != len(want) {
		t.Fatalf("len(Errors) = %d, want %d: %v", len(res.Errors), len(want), res.Errors)
	}
	for _, e := range res.Errors {
		if e.Row != 2 {
			t.Errorf("error row = %d, want 2", e.Row)
		}
		if want[e.Field] != e.Message {
			t.Errorf("%s message = %q, want %q", e.Field, e.Message, want[e.Field])
		}
	}
}

func TestValidateCSV_IntegerField(t *testing.T) {
	ft, _ := core.Get(core.MappingFTDatapoints)

	table, err := core.ParseCSV("Datapoint,Sample,N\nD1,S1,20\nD2,S1,20.5\n")
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	res := core.ValidateCSV(table, ft)

	if len(res.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1: %v", len(res.Errors), res.Errors)
	}
	if res.Errors[0].Message != "must be an integer" {
		t.Errorf("message = %q, want must be an integer", res.Errors[0].Message)
	}
}

// =============================================================================
// Header detection
// =============================================================================

func TestDetectMapping(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    string
		found   bool
	}{
		{"sample table", []string{"Sample", "Lat", "Long", "Elevation (m)"}, core.MappingSamples, true},
		{"ft ages", []string{"Datapoint", "Sample", "Central Age (Ma)", "±", "N", "Dpar"}, core.MappingFTDatapoints, true},
		{"track lengths", []string{"Datapoint", "Length (µm)", "Angle"}, core.MappingFTTrackLengths, true},
		{"he grains", []string{"Datapoint", "Grain", "Raw Age", "Ft", "U", "Th"}, core.MappingHeWholeGrain, true},
		{"nothing matches", []string{"Foo", "Bar"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := core.DetectMapping(tt.headers)
			if ok != tt.found {
				t.Fatalf("DetectMapping() found = %v, want %v", ok, tt.found)
			}
			if ok && m.Key != tt.want {
				t.Errorf("DetectMapping() = %s, want %s", m.Key, tt.want)
			}
		})
	}
}
