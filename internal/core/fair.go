package core

// fair.go scores a dataset for FAIR compliance.
//
// Each category starts at 25 points and loses named deductions:
//
//	Findable       -5 no DOI, -5 no authors, -5 no full citation
//	Accessible     -10 no PDF URL, -15 no CSV data files
//	Interoperable  25 x (expected table kinds with a valid CSV / expected kinds)
//	Reusable       -5 no laboratory, -5 no study location
//
// Four Kohn et al. (2024) reporting-table sub-scores are computed alongside
// the total and are not summed into it.

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// CategoryMax is the maximum score of one FAIR category.
const CategoryMax = 25

// CategoryScore is the score of one FAIR category.
type CategoryScore struct {
	Score     int    `json:"score"`
	Max       int    `json:"maxScore"`
	Reasoning string `json:"reasoning"`
}

// Percentage returns the score as a percent of Max.
func (c CategoryScore) Percentage() float64 {
	if c.Max == 0 {
		return 0
	}
	return float64(c.Score) / float64(c.Max) * 100
}

// StandardScore is a named reporting-standard sub-score.
type StandardScore struct {
	Name      string `json:"name"`
	Table     string `json:"table"`
	Score     int    `json:"score"`
	Max       int    `json:"maxScore"`
	Reasoning string `json:"reasoning"`
}

// FairAssessment is the immutable result of scoring one dataset.
type FairAssessment struct {
	DatasetID     string          `json:"datasetId,omitempty"`
	Findable      CategoryScore   `json:"findable"`
	Accessible    CategoryScore   `json:"accessible"`
	Interoperable CategoryScore   `json:"interoperable"`
	Reusable      CategoryScore   `json:"reusable"`
	Standards     []StandardScore `json:"standards"`
	TotalScore    int             `json:"totalScore"`
	Grade         string          `json:"grade"`
	AssessedAt    time.Time       `json:"assessedAt"`
}

// NamedCategory pairs a category score with its display name.
type NamedCategory struct {
	Name string
	CategoryScore
}

// Categories returns the four categories in F, A, I, R order.
func (a FairAssessment) Categories() []NamedCategory {
	return []NamedCategory{
		{"Findable", a.Findable},
		{"Accessible", a.Accessible},
		{"Interoperable", a.Interoperable},
		{"Reusable", a.Reusable},
	}
}

// TableEvidence describes one extracted CSV offered to the scorer.
type TableEvidence struct {
	Name       string
	Mapping    string // canonical mapping key, "" if unclassified
	Headers    []string
	Validation ValidationResult
}

// FairInput is everything the scorer reads.
type FairInput struct {
	Metadata PaperMetadata
	Files    []UploadedFile
	// Detected tables from the analyze stage; their data-type tags define the
	// expected table set.
	Tables []TableInfo
	CSVs   []TableEvidence
}

// Grade maps a 0-100 total to a letter: >=90 A, >=80 B, >=70 C, >=60 D, else F.
func Grade(total int) string {
	switch {
	case total >= 90:
		return "A"
	case total >= 80:
		return "B"
	case total >= 70:
		return "C"
	case total >= 60:
		return "D"
	default:
		return "F"
	}
}

// ScoreFAIR computes the assessment. It is a pure function of its input.
func ScoreFAIR(in FairInput, assessedAt time.Time) FairAssessment {
	a := FairAssessment{
		Findable:      scoreFindable(in.Metadata),
		Accessible:    scoreAccessible(in.Metadata, in.Files),
		Interoperable: scoreInteroperable(in),
		Reusable:      scoreReusable(in.Metadata),
		Standards:     scoreStandards(in),
		AssessedAt:    assessedAt.UTC(),
	}
	a.TotalScore = a.Findable.Score + a.Accessible.Score + a.Interoperable.Score + a.Reusable.Score
	a.Grade = Grade(a.TotalScore)
	return a
}

// deductions accumulates named point losses for one category.
type deductions struct {
	score   int
	reasons []string
}

func (d *deductions) apply(missing bool, points int, reason string) {
	if missing {
		d.score -= points
		d.reasons = append(d.reasons, fmt.Sprintf("%s (-%d)", reason, points))
	}
}

func (d *deductions) result(complete string) CategoryScore {
	c := CategoryScore{Score: max(d.score, 0), Max: CategoryMax, Reasoning: complete}
	if len(d.reasons) > 0 {
		c.Reasoning = strings.Join(d.reasons, "; ")
	}
	return c
}

func scoreFindable(m PaperMetadata) CategoryScore {
	d := deductions{score: CategoryMax}
	d.apply(m.DOI == nil, 5, "Missing DOI")
	d.apply(len(m.Authors) == 0, 5, "Missing authors")
	d.apply(m.FullCitation == nil && BuildCitation(m) == nil, 5, "Missing citation")
	return d.result("Complete metadata present")
}

func scoreAccessible(m PaperMetadata, files []UploadedFile) CategoryScore {
	d := deductions{score: CategoryMax}
	d.apply(m.PDFURL == nil, 10, "No PDF URL")
	d.apply(countFiles(files, FileTypeCSV) == 0, 15, "No data files")
	return d.result("Data fully accessible")
}

func scoreReusable(m PaperMetadata) CategoryScore {
	d := deductions{score: CategoryMax}
	d.apply(m.Laboratory == nil, 5, "Missing laboratory")
	d.apply(m.StudyLocation == nil, 5, "Missing study location")
	return d.result("Complete provenance metadata")
}

// ExpectedMappings returns the canonical table kinds a dataset should provide:
// the registered mappings of the detected tables' data-type tags, or the
// sample table alone when no detected table is tagged.
func ExpectedMappings(tables []TableInfo) []string {
	set := make(map[string]bool)
	for _, t := range tables {
		if m, ok := ForDataType(t.DataType); ok {
			set[m.Key] = true
		}
	}
	if len(set) == 0 {
		return []string{MappingSamples}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scoreInteroperable(in FairInput) CategoryScore {
	c := CategoryScore{Max: CategoryMax}
	if len(in.CSVs) == 0 {
		c.Reasoning = "No EarthBank-compatible CSV files"
		return c
	}

	expected := ExpectedMappings(in.Tables)
	valid := make(map[string]bool)
	for _, csv := range in.CSVs {
		if csv.Mapping != "" && csv.Validation.Valid {
			valid[csv.Mapping] = true
		}
	}

	var matched, missing []string
	for _, k := range expected {
		if valid[k] {
			matched = append(matched, k)
		} else {
			missing = append(missing, k)
		}
	}

	c.Score = int(math.Round(float64(CategoryMax) * float64(len(matched)) / float64(len(expected))))
	c.Reasoning = fmt.Sprintf("%d of %d expected EarthBank tables present and schema-conformant",
		len(matched), len(expected))
	if len(missing) > 0 {
		c.Reasoning += "; missing " + strings.Join(missing, ", ")
	}
	return c
}

// kohnTable is one Kohn et al. (2024) reporting table and the mappings whose
// fields evidence it.
type kohnTable struct {
	table    string
	name     string
	max      int
	mappings []string
}

var kohnTables = []kohnTable{
	{"Table 4", "Sample metadata", 15, []string{MappingSamples}},
	{"Table 5", "Fission-track count data", 15, []string{MappingFTDatapoints}},
	{"Table 6", "Fission-track length data", 10, []string{MappingFTTrackLengths}},
	{"Table 10", "Summary ages", 10, []string{MappingFTDatapoints, MappingHeDatapoints}},
}

func scoreStandards(in FairInput) []StandardScore {
	out := make([]StandardScore, 0, len(kohnTables))
	for _, kt := range kohnTables {
		s := StandardScore{Name: kt.name, Table: kt.table, Max: kt.max}

		best, bestKey := 0.0, ""
		for _, key := range kt.mappings {
			if cov := fieldCoverage(key, in.CSVs); cov > best {
				best, bestKey = cov, key
			}
		}

		switch {
		case bestKey != "":
			s.Score = int(math.Round(float64(kt.max) * best))
			s.Reasoning = fmt.Sprintf("%s covers %.0f%% of %s fields", kt.name, best*100, bestKey)
		case kt.table == "Table 4" && in.Metadata.SampleCount != nil:
			s.Score = min(5, kt.max)
			s.Reasoning = fmt.Sprintf("Sample count (%d) reported in paper metadata only", *in.Metadata.SampleCount)
		default:
			s.Reasoning = "No " + strings.ToLower(kt.name) + " table extracted"
		}
		out = append(out, s)
	}
	return out
}

// fieldCoverage returns the fraction of the mapping's fields present among
// the headers of valid CSVs classified to it, weighted so that required
// fields missing caps coverage at one half.
func fieldCoverage(key string, csvs []TableEvidence) float64 {
	m, ok := Get(key)
	if !ok || len(m.Fields) == 0 {
		return 0
	}
	present := make(map[string]bool)
	for _, csv := range csvs {
		if csv.Mapping != key || !csv.Validation.Valid {
			continue
		}
		for _, h := range csv.Headers {
			if f, ok := m.FindField(h); ok {
				present[f.Name] = true
			}
		}
	}
	if len(present) == 0 {
		return 0
	}
	cov := float64(len(present)) / float64(len(m.Fields))
	for _, f := range m.RequiredFields() {
		if !present[f.Name] {
			return math.Min(cov, 0.5)
		}
	}
	return cov
}

func countFiles(files []UploadedFile, t FileType) int {
	n := 0
	for _, f := range files {
		if f.Type == t {
			n++
		}
	}
	return n
}
