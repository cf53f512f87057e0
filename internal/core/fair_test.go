package core

import (
	"strings"
	"testing"
	"time"
)

var assessedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func completeMetadata() PaperMetadata {
	return PaperMetadata{
		Title:         ptr("Thermal history of the Malawi rift"),
		Authors:       []string{"McMillan, M."},
		Journal:       ptr("Tectonics"),
		Year:          ptr(2024),
		DOI:           ptr("10.1016/j.jsg.2024.105196"),
		PDFURL:        ptr("https://example.org/paper.pdf"),
		Laboratory:    ptr("University of Melbourne"),
		StudyLocation: ptr("Malawi"),
	}
}

func evidence(t *testing.T, key, text string) TableEvidence {
	t.Helper()
	table := mustParse(t, text)
	m, _ := Get(key)
	return TableEvidence{
		Name:       key + ".csv",
		Mapping:    key,
		Headers:    table.Headers,
		Validation: ValidateCSV(table, m),
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		total int
		want  string
	}{
		{100, "A"}, {90, "A"}, {89, "B"}, {80, "B"}, {79, "C"},
		{70, "C"}, {69, "D"}, {60, "D"}, {59, "F"}, {45, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		if got := Grade(tt.total); got != tt.want {
			t.Errorf("Grade(%d) = %q, want %q", tt.total, got, tt.want)
		}
	}
}

func TestScoreFAIR(t *testing.T) {
	useFixtureMappings(t)

	samples := evidence(t, MappingSamples, "Sample,Lat,Long\nS1,45.2,-120.5")
	ages := evidence(t, MappingFTDatapoints, "Datapoint,Sample,Age (Ma),N\nD1,S1,12.5,20")
	badAges := evidence(t, MappingFTDatapoints, "Datapoint,Sample,Age (Ma),N\nD1,S1,-5,20")
	csvFiles := []UploadedFile{{Name: "paper.pdf", Type: FileTypePDF}, {Name: "table-1.csv", Type: FileTypeCSV}}
	tagged := []TableInfo{{TableNumber: "1", DataType: "Sample metadata"}, {TableNumber: "2", DataType: "AFT ages"}}

	tests := []struct {
		name      string
		in        FairInput
		wantFAIR  [4]int
		wantTotal int
		wantGrade string
	}{
		{
			name:      "everything present",
			in:        FairInput{Metadata: completeMetadata(), Files: csvFiles, Tables: tagged, CSVs: []TableEvidence{samples, ages}},
			wantFAIR:  [4]int{25, 25, 25, 25},
			wantTotal: 100,
			wantGrade: "A",
		},
		{
			name:      "no metadata and no data",
			in:        FairInput{Files: []UploadedFile{{Name: "paper.pdf", Type: FileTypePDF}}},
			wantFAIR:  [4]int{10, 0, 0, 15},
			wantTotal: 25,
			wantGrade: "F",
		},
		{
			name:      "half of expected kinds valid rounds up",
			in:        FairInput{Metadata: completeMetadata(), Files: csvFiles, Tables: tagged, CSVs: []TableEvidence{samples, badAges}},
			wantFAIR:  [4]int{25, 25, 13, 25},
			wantTotal: 88,
			wantGrade: "B",
		},
		{
			name:      "untagged tables expect samples only",
			in:        FairInput{Metadata: completeMetadata(), Files: csvFiles, Tables: []TableInfo{{TableNumber: "1"}}, CSVs: []TableEvidence{samples}},
			wantFAIR:  [4]int{25, 25, 25, 25},
			wantTotal: 100,
			wantGrade: "A",
		},
		{
			name: "citation text counts without parts",
			in: FairInput{
				Metadata: PaperMetadata{FullCitation: ptr("Smith (2019). Title. Journal.")},
				Files:    csvFiles,
				CSVs:     []TableEvidence{samples},
			},
			wantFAIR:  [4]int{15, 15, 25, 15},
			wantTotal: 70,
			wantGrade: "C",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ScoreFAIR(tt.in, assessedAt)
			got := [4]int{a.Findable.Score, a.Accessible.Score, a.Interoperable.Score, a.Reusable.Score}
			if got != tt.wantFAIR {
				t.Errorf("F/A/I/R = %v, want %v", got, tt.wantFAIR)
			}
			if a.TotalScore != tt.wantTotal || a.Grade != tt.wantGrade {
				t.Errorf("TotalScore = %d (%s), want %d (%s)", a.TotalScore, a.Grade, tt.wantTotal, tt.wantGrade)
			}
			if !a.AssessedAt.Equal(assessedAt) {
				t.Errorf("AssessedAt = %v", a.AssessedAt)
			}
		})
	}
}

func TestScoreFAIR_Reasoning(t *testing.T) {
	useFixtureMappings(t)

	a := ScoreFAIR(FairInput{}, assessedAt)
	if a.Findable.Reasoning != "Missing DOI (-5); Missing authors (-5); Missing citation (-5)" {
		t.Errorf("Findable.Reasoning = %q", a.Findable.Reasoning)
	}
	if a.Accessible.Reasoning != "No PDF URL (-10); No data files (-15)" {
		t.Errorf("Accessible.Reasoning = %q", a.Accessible.Reasoning)
	}
	if a.Interoperable.Reasoning != "No EarthBank-compatible CSV files" {
		t.Errorf("Interoperable.Reasoning = %q", a.Interoperable.Reasoning)
	}

	samples := evidence(t, MappingSamples, "Sample\nS1")
	a = ScoreFAIR(FairInput{
		Tables: []TableInfo{{DataType: "AFT ages"}, {DataType: "Sample metadata"}},
		CSVs:   []TableEvidence{samples},
	}, assessedAt)
	want := "1 of 2 expected EarthBank tables present and schema-conformant; missing " + MappingFTDatapoints
	if a.Interoperable.Reasoning != want {
		t.Errorf("Interoperable.Reasoning = %q, want %q", a.Interoperable.Reasoning, want)
	}
}

func TestScoreFAIR_Standards(t *testing.T) {
	useFixtureMappings(t)

	samples := evidence(t, MappingSamples, "Sample,Lat,Long\nS1,45.2,-120.5")
	partial := evidence(t, MappingFTDatapoints, "Datapoint,Sample\nD1,S1")

	a := ScoreFAIR(FairInput{CSVs: []TableEvidence{samples, partial}}, assessedAt)
	if len(a.Standards) != 4 {
		t.Fatalf("Standards = %d, want 4", len(a.Standards))
	}

	want := map[string]int{
		"Table 4":  15, // all sample fields
		"Table 5":  8,  // 2 of 4 fields
		"Table 6":  0,  // no track length mapping registered
		"Table 10": 5,
	}
	for _, s := range a.Standards {
		if s.Score != want[s.Table] {
			t.Errorf("%s score = %d, want %d (%s)", s.Table, s.Score, want[s.Table], s.Reasoning)
		}
	}

	total := a.Findable.Score + a.Accessible.Score + a.Interoperable.Score + a.Reusable.Score
	if a.TotalScore != total {
		t.Errorf("TotalScore = %d, want sum of categories %d", a.TotalScore, total)
	}
}

func TestScoreFAIR_SampleCountFallback(t *testing.T) {
	useFixtureMappings(t)

	a := ScoreFAIR(FairInput{Metadata: PaperMetadata{SampleCount: ptr(34)}}, assessedAt)
	s := a.Standards[0]
	if s.Table != "Table 4" || s.Score != 5 || !strings.Contains(s.Reasoning, "34") {
		t.Errorf("Standards[0] = %+v", s)
	}
}

func TestExpectedMappings(t *testing.T) {
	useFixtureMappings(t)

	got := ExpectedMappings([]TableInfo{{DataType: "AFT ages"}, {DataType: "aft ages"}, {DataType: "Figures"}})
	if len(got) != 1 || got[0] != MappingFTDatapoints {
		t.Errorf("ExpectedMappings() = %v", got)
	}
	if got := ExpectedMappings(nil); len(got) != 1 || got[0] != MappingSamples {
		t.Errorf("ExpectedMappings(nil) = %v", got)
	}
}
