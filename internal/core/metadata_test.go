package core

import (
	"reflect"
	"testing"
)

func valueOf[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

const paperIndexFixture = `# Paper Index

**Title:** Thermal history of the Malawi rift
**Authors:**
- McMillan, M.
- Boone, S. C.
- Kohn, B. P.

**Journal:** Journal of Structural Geology
**Year:** 2024
**Volume:** Volume 179, Article 105196
**DOI:** https://doi.org/10.1016/j.jsg.2024.105196.
**PDF URL:** https://example.org/paper.pdf
**Study Area:** Unknown
- Method: Fission-track (apatite)
**Sample Count:** 34 samples
**Age Range:** ~ 12.5 - 320 Ma

## Abstract

Rifting along the margin...

---

## Tables
`

func TestParsePaperIndex(t *testing.T) {
	m := ParsePaperIndex(paperIndexFixture)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"title", valueOf(m.Title), "Thermal history of the Malawi rift"},
		{"journal", valueOf(m.Journal), "Journal of Structural Geology"},
		{"year", valueOf(m.Year), 2024},
		{"volume", valueOf(m.Volume), "Volume 179, Article 105196"},
		{"doi", valueOf(m.DOI), "10.1016/j.jsg.2024.105196"},
		{"pdf url", valueOf(m.PDFURL), "https://example.org/paper.pdf"},
		{"placeholder location", valueOf(m.StudyLocation), nil},
		{"mineral from method", valueOf(m.Mineral), "Apatite"},
		{"sample count", valueOf(m.SampleCount), 34},
		{"age min", valueOf(m.AgeMinMa), 12.5},
		{"age max", valueOf(m.AgeMaxMa), 320.0},
		{"abstract", valueOf(m.Abstract), "Rifting along the margin..."},
		{"laboratory", valueOf(m.Laboratory), nil},
		{
			"built citation",
			valueOf(m.FullCitation),
			"McMillan, M., Boone, S. C., Kohn, B. P. (2024). Thermal history of the Malawi rift. Journal of Structural Geology, Volume 179, Article 105196.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	wantAuthors := []string{"McMillan, M.", "Boone, S. C.", "Kohn, B. P."}
	if !reflect.DeepEqual(m.Authors, wantAuthors) {
		t.Errorf("Authors = %q, want %q", m.Authors, wantAuthors)
	}
}

func TestParsePaperIndex_Empty(t *testing.T) {
	m := ParsePaperIndex("")
	if m.Title != nil || m.DOI != nil || m.Authors != nil || m.FullCitation != nil {
		t.Errorf("ParsePaperIndex(\"\") = %+v, want all nil", m)
	}
}

func TestParsePaperIndex_LaboratoryFromAffiliation(t *testing.T) {
	m := ParsePaperIndex("- Affiliations: University of Melbourne; Monash University\n")
	if valueOf(m.Laboratory) != "University of Melbourne" {
		t.Errorf("Laboratory = %v, want first affiliation", valueOf(m.Laboratory))
	}
	if len(m.Affiliations) != 2 {
		t.Errorf("Affiliations = %q", m.Affiliations)
	}
}

func TestSplitAuthors(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"A. Smith, B. Jones", []string{"A. Smith", "B. Jones"}},
		{"Smith, J., Jones, K. L.", []string{"Smith, J.", "Jones, K. L."}},
		{"Smith, J.; Jones, K.", []string{"Smith, J.", "Jones, K."}},
		{"A. Smith and B. Jones", []string{"A. Smith", "B. Jones"}},
		{"A. Smith, B. Jones & C. Brown", []string{"A. Smith", "B. Jones", "C. Brown"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := SplitAuthors(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitAuthors(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		input string
		want  any
	}{
		{"10.1016/j.jsg.2024.105196", "10.1016/j.jsg.2024.105196"},
		{"https://doi.org/10.1016/j.jsg.2024.105196", "10.1016/j.jsg.2024.105196"},
		{"http://dx.doi.org/10.1130/B36869.1.", "10.1130/B36869.1"},
		{"doi: 10.1029/2019TC005831;", "10.1029/2019TC005831"},
		{"Not available", nil},
	}
	for _, tt := range tests {
		if got := valueOf(NormalizeDOI(tt.input)); got != tt.want {
			t.Errorf("NormalizeDOI(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestExtractPaperTitle(t *testing.T) {
	tests := []struct {
		name     string
		citation string
		want     any
	}{
		{
			name:     "period style",
			citation: "McMillan, M., Boone, S.C., et al. (2024). 4D fault evolution revealed by footwall exhumation modelling. Journal of Structural Geology, 179, 105196.",
			want:     "4D fault evolution revealed by footwall exhumation modelling",
		},
		{
			name:     "comma style",
			citation: "Smith, J. (2019), Exhumation of the Red Sea margin, Tectonics, 38, 1-20.",
			want:     "Exhumation of the Red Sea margin",
		},
		{
			name:     "subtitle after colon",
			citation: "McMillan, M., Boone, S.C. (2024). 4D fault evolution revealed by footwall exhumation modelling: A natural experiment in the Malawi rift. Journal of Structural Geology, 187, 105196.",
			want:     "4D fault evolution revealed by footwall exhumation modelling: A natural experiment in the Malawi rift",
		},
		{
			name:     "loose match on a journal name",
			citation: "Smith, J. (2020). Tectonics. Some other text",
			want:     nil,
		},
		{
			name:     "abbreviated journal without title",
			citation: "Smith (2020). Earth Planet Sci Lett. 12",
			want:     nil,
		},
		{
			name:     "short lowercase title passes the loose match",
			citation: "Smith (2020). Rifting in east africa. Some text",
			want:     "Rifting in east africa",
		},
		{
			name:     "no year",
			citation: "Smith, J. Some title. Some Journal.",
			want:     nil,
		},
		{
			name:     "empty",
			citation: "   ",
			want:     nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := valueOf(ExtractPaperTitle(tt.citation)); got != tt.want {
				t.Errorf("ExtractPaperTitle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLooksLikeJournal(t *testing.T) {
	tests := []struct {
		phrase string
		want   bool
	}{
		{"Tectonics", true},
		{"Earth Planet Sci Lett", true},
		{"Journal of Structural Geology", true},
		{"Rifting of the Malawi margin", false},
		{"Geological Society Of America Bulletin", false},
		{"Rifting in east africa", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := looksLikeJournal(tt.phrase); got != tt.want {
			t.Errorf("looksLikeJournal(%q) = %v, want %v", tt.phrase, got, tt.want)
		}
	}
}

func TestDatasetName(t *testing.T) {
	tests := []struct {
		name     string
		meta     PaperMetadata
		fallback string
		want     string
	}{
		{
			name: "title wins",
			meta: PaperMetadata{Title: ptr(" Rift history "), Authors: []string{"Smith, J."}, Year: ptr(2020)},
			want: "Rift history",
		},
		{
			name: "title from citation",
			meta: PaperMetadata{FullCitation: ptr("Smith, J. (2019), Exhumation of the Red Sea margin, Tectonics, 38, 1-20.")},
			want: "Exhumation of the Red Sea margin",
		},
		{
			name: "surname and year",
			meta: PaperMetadata{Authors: []string{"Smith, J.", "Jones, K."}, Year: ptr(2019)},
			want: "Smith 2019",
		},
		{
			name: "given name first",
			meta: PaperMetadata{Authors: []string{"Jane Smith"}, Year: ptr(2019)},
			want: "Smith 2019",
		},
		{
			name:     "file name fallback",
			fallback: "paper_2019.pdf",
			want:     "paper_2019",
		},
		{
			name: "nothing known",
			want: "Unknown Dataset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DatasetName(tt.meta, tt.fallback); got != tt.want {
				t.Errorf("DatasetName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMergeMetadata(t *testing.T) {
	base := PaperMetadata{Title: ptr("From index"), Authors: []string{"Smith, J."}}
	extra := PaperMetadata{
		Title:      ptr("From analysis"),
		Journal:    ptr("Tectonics"),
		Year:       ptr(2019),
		Laboratory: ptr("Melbourne"),
		Authors:    []string{"Other, A."},
	}
	got := MergeMetadata(base, extra)

	if *got.Title != "From index" {
		t.Errorf("Title = %q, want base value kept", *got.Title)
	}
	if !reflect.DeepEqual(got.Authors, []string{"Smith, J."}) {
		t.Errorf("Authors = %q, want base value kept", got.Authors)
	}
	if valueOf(got.Journal) != "Tectonics" || valueOf(got.Laboratory) != "Melbourne" {
		t.Errorf("missing fields not filled: %+v", got)
	}
	if valueOf(got.FullCitation) != "Smith, J. (2019). From index. Tectonics." {
		t.Errorf("FullCitation = %v", valueOf(got.FullCitation))
	}
}

func TestNormalizeAnalysis(t *testing.T) {
	raw := &AnalysisResult{
		PaperMetadata: PaperMetadata{Title: ptr("  Unknown "), Journal: ptr(" Basin   Research ")},
		Tables: []TableInfo{
			{TableNumber: "Table 1.", DataType: " AFT ages ", EstimatedRows: -1},
			{TableNumber: "1", Caption: "duplicate"},
			{TableNumber: "", DataType: "N/A"},
		},
		Figures: []FigureInfo{{FigureNumber: " 3 "}},
	}
	got := NormalizeAnalysis(raw)

	if got.PaperMetadata.Title != nil {
		t.Errorf("Title = %q, want nil for placeholder", *got.PaperMetadata.Title)
	}
	if valueOf(got.PaperMetadata.Journal) != "Basin Research" {
		t.Errorf("Journal = %v", valueOf(got.PaperMetadata.Journal))
	}
	if got.TablesFound != 2 || len(got.Tables) != 2 {
		t.Fatalf("TablesFound = %d, Tables = %+v", got.TablesFound, got.Tables)
	}
	if got.Tables[0].TableNumber != "1" || got.Tables[0].DataType != "AFT ages" || got.Tables[0].EstimatedRows != 0 {
		t.Errorf("Tables[0] = %+v", got.Tables[0])
	}
	if got.Tables[1].TableNumber != "3" || got.Tables[1].DataType != "" {
		t.Errorf("Tables[1] = %+v", got.Tables[1])
	}
	if got.FiguresFound != 1 {
		t.Errorf("FiguresFound = %d, want 1", got.FiguresFound)
	}

	if empty := NormalizeAnalysis(nil); empty.TablesFound != 0 {
		t.Errorf("NormalizeAnalysis(nil) = %+v", empty)
	}
}
