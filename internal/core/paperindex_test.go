package core

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestRenderPaperIndex_ParsesBack(t *testing.T) {
	useFixtureMappings(t)

	want := PaperMetadata{
		Title:         ptr("Thermal history of the Malawi rift"),
		Authors:       []string{"McMillan, M.", "Boone, S. C."},
		Journal:       ptr("Journal of Structural Geology"),
		Year:          ptr(2024),
		DOI:           ptr("10.1016/j.jsg.2024.105196"),
		PDFURL:        ptr("https://example.org/paper.pdf"),
		StudyLocation: ptr("Malawi rift"),
		Mineral:       ptr("Apatite"),
		SampleCount:   ptr(34),
		Laboratory:    ptr("University of Melbourne"),
		AgeMinMa:      ptr(12.5),
		AgeMaxMa:      ptr(320.0),
		Abstract:      ptr("Rifting along the margin."),
	}
	res := AnalysisResult{
		PaperMetadata: want,
		Tables:        []TableInfo{{TableNumber: "1", Caption: "Sample locations", DataType: "Sample metadata", PageNumber: 4}},
	}

	text := RenderPaperIndex(res, "mcmillan_2024.pdf", assessedAt)
	got := ParsePaperIndex(text)

	checks := []struct {
		name      string
		got, want any
	}{
		{"title", valueOf(got.Title), valueOf(want.Title)},
		{"journal", valueOf(got.Journal), valueOf(want.Journal)},
		{"year", valueOf(got.Year), valueOf(want.Year)},
		{"doi", valueOf(got.DOI), valueOf(want.DOI)},
		{"pdf url", valueOf(got.PDFURL), valueOf(want.PDFURL)},
		{"location", valueOf(got.StudyLocation), valueOf(want.StudyLocation)},
		{"mineral", valueOf(got.Mineral), valueOf(want.Mineral)},
		{"sample count", valueOf(got.SampleCount), valueOf(want.SampleCount)},
		{"laboratory", valueOf(got.Laboratory), valueOf(want.Laboratory)},
		{"age min", valueOf(got.AgeMinMa), valueOf(want.AgeMinMa)},
		{"age max", valueOf(got.AgeMaxMa), valueOf(want.AgeMaxMa)},
		{"abstract", valueOf(got.Abstract), valueOf(want.Abstract)},
		{"supplementary", valueOf(got.Supplementary), nil},
		{"affiliations", got.Affiliations, []string(nil)},
		{"authors", got.Authors, want.Authors},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if !strings.Contains(text, "### Table 1\n**Caption:** Sample locations\n**Location:** Page 4") {
		t.Errorf("table section missing:\n%s", text)
	}
	if !strings.Contains(text, "No figures detected.") {
		t.Error("empty figure list not rendered")
	}
}

func TestRenderPaperIndex_Unknowns(t *testing.T) {
	text := RenderPaperIndex(AnalysisResult{}, "x.pdf", assessedAt)
	got := ParsePaperIndex(text)
	if got.Title != nil || got.Authors != nil || got.DOI != nil || got.StudyLocation != nil || got.Abstract != nil {
		t.Errorf("placeholders parsed as values: %+v", got)
	}
}

func TestRenderTableIndex(t *testing.T) {
	useFixtureMappings(t)

	data, err := RenderTableIndex(AnalysisResult{Tables: []TableInfo{
		{TableNumber: "1", DataType: "AFT ages", PageNumber: 7},
		{TableNumber: "2"},
	}}, assessedAt)
	if err != nil {
		t.Fatalf("RenderTableIndex() error = %v", err)
	}

	var idx struct {
		Tables []struct {
			TableNumber string `json:"tableNumber"`
			Mapping     string `json:"mapping"`
			PDFPages    []int  `json:"pdfPages"`
		} `json:"tables"`
		Figures []any `json:"figures"`
	}
	if err := json.Unmarshal(data, &idx); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(idx.Tables) != 2 || idx.Figures == nil {
		t.Fatalf("index = %+v", idx)
	}
	if idx.Tables[0].Mapping != MappingFTDatapoints || !reflect.DeepEqual(idx.Tables[0].PDFPages, []int{7}) {
		t.Errorf("Tables[0] = %+v", idx.Tables[0])
	}
	if idx.Tables[1].Mapping != "" || len(idx.Tables[1].PDFPages) != 0 {
		t.Errorf("Tables[1] = %+v", idx.Tables[1])
	}
}

func TestRenderTablesMarkdown(t *testing.T) {
	useFixtureMappings(t)

	got := RenderTablesMarkdown([]TableInfo{{TableNumber: "2", DataType: "AFT ages"}})
	for _, want := range []string{"## Table 2", "- Target schema: earthbank_ftDatapoints", "- CSV: `extracted/table_2.csv`"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderTablesMarkdown() missing %q", want)
		}
	}
	if got := RenderTablesMarkdown(nil); !strings.Contains(got, "No tables were detected") {
		t.Errorf("RenderTablesMarkdown(nil) = %q", got)
	}
}

func TestTableCSVName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1", "extracted/table_1.csv"},
		{"S2", "extracted/table_s2.csv"},
		{"A-1.b", "extracted/table_a_1_b.csv"},
		{"../../etc", "extracted/table_____etc.csv"},
		{"  ", "extracted/table_unnumbered.csv"},
	}
	for _, tt := range tests {
		if got := TableCSVName(tt.input); got != tt.want {
			t.Errorf("TableCSVName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
