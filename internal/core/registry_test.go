package core

import (
	"errors"
	"strings"
	"testing"
)

func TestRegister_Panics(t *testing.T) {
	useFixtureMappings(t)

	tests := []struct {
		name    string
		mapping TableMapping
	}{
		{"duplicate key", TableMapping{Key: MappingSamples}},
		{"duplicate tag", TableMapping{Key: "other", Tags: []string{"  sample   METADATA "}}},
		{"bad pattern", TableMapping{Key: "bad", Fields: []FieldMapping{{Name: "x", Rule: &Rule{Pattern: "("}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Register() did not panic")
				}
			}()
			Register(tt.mapping)
		})
	}
}

func TestForDataType(t *testing.T) {
	useFixtureMappings(t)

	tests := []struct {
		tag    string
		want   string
		wantOK bool
	}{
		{"AFT ages", MappingFTDatapoints, true},
		{"  aft   AGES ", MappingFTDatapoints, true},
		{"Sample metadata", MappingSamples, true},
		{MappingSamples, MappingSamples, true},
		{"Unknown ages", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		m, ok := ForDataType(tt.tag)
		if ok != tt.wantOK || m.Key != tt.want {
			t.Errorf("ForDataType(%q) = %q, %v, want %q, %v", tt.tag, m.Key, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFindField(t *testing.T) {
	useFixtureMappings(t)
	ft, _ := Get(MappingFTDatapoints)

	tests := []struct {
		header string
		want   string
	}{
		{"sampleID", "sampleID"},
		{"SAMPLEID", "sampleID"},
		{"Sample", "sampleID"},
		{" age (ma) ", "centralAgeMa"},
		{"N", "numGrains"},
		{"Elevation", ""},
		{"", ""},
	}
	for _, tt := range tests {
		f, _ := ft.FindField(tt.header)
		if f.Name != tt.want {
			t.Errorf("FindField(%q) = %q, want %q", tt.header, f.Name, tt.want)
		}
	}
}

func TestAll_SortedByKey(t *testing.T) {
	useFixtureMappings(t)

	all := All()
	if len(all) != 2 || MappingCount() != 2 {
		t.Fatalf("All() = %d mappings, MappingCount() = %d, want 2", len(all), MappingCount())
	}
	if all[0].Key != MappingFTDatapoints || all[1].Key != MappingSamples {
		t.Errorf("All() order = %s, %s", all[0].Key, all[1].Key)
	}
}

func TestReplace(t *testing.T) {
	useFixtureMappings(t)

	m, _ := Get(MappingSamples)
	m.Tags = []string{"Sample locations"}
	if err := Replace(m); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if _, ok := ForDataType("Sample metadata"); ok {
		t.Error("old tag still resolves after Replace()")
	}
	if got, _ := ForDataType("sample locations"); got.Key != MappingSamples {
		t.Errorf("ForDataType(new tag) = %q", got.Key)
	}

	t.Run("unknown key", func(t *testing.T) {
		err := Replace(TableMapping{Key: "nope"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Replace() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("tag conflict leaves registry unchanged", func(t *testing.T) {
		m, _ := Get(MappingSamples)
		m.Tags = []string{"Sample locations", "AFT ages"}
		if err := Replace(m); err == nil {
			t.Fatal("Replace() error = nil, want conflict")
		}
		if got, _ := ForDataType("Sample locations"); got.Key != MappingSamples {
			t.Error("failed Replace() dropped existing tag")
		}
		if got, _ := ForDataType("AFT ages"); got.Key != MappingFTDatapoints {
			t.Error("failed Replace() stole another mapping's tag")
		}
	})

	t.Run("bad pattern", func(t *testing.T) {
		m, _ := Get(MappingSamples)
		m.Fields = []FieldMapping{{Name: "x", Rule: &Rule{Pattern: "["}}}
		if err := Replace(m); err == nil || !strings.Contains(err.Error(), "invalid pattern") {
			t.Errorf("Replace() error = %v, want invalid pattern", err)
		}
	})
}

func TestDetectMapping(t *testing.T) {
	useFixtureMappings(t)

	tests := []struct {
		name    string
		headers []string
		want    string
		wantOK  bool
	}{
		{"samples", []string{"Sample", "Lat", "Long"}, MappingSamples, true},
		{"ft ages beat samples", []string{"Datapoint", "Sample", "Age (Ma)", "N"}, MappingFTDatapoints, true},
		{"required field missing everywhere", []string{"Lat", "Long"}, "", false},
		{"nothing recognized", []string{"foo"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := DetectMapping(tt.headers)
			if ok != tt.wantOK || m.Key != tt.want {
				t.Errorf("DetectMapping() = %q, %v, want %q, %v", m.Key, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMappingDescription(t *testing.T) {
	useFixtureMappings(t)
	m, _ := Get(MappingSamples)

	got := MappingDescription(m)
	for _, want := range []string{
		"**Table: earthbank_samples** - Sample metadata",
		"- **sampleID** (REQUIRED)",
		"  - Common aliases: Sample, Sample ID",
		"  - Validation: min: -90, max: 90",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("MappingDescription() missing %q", want)
		}
	}
}
