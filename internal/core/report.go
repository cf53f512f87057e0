package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Report artifact names written under a dataset prefix by the load stage.
const (
	ReportJSONName     = "fair-compliance.json"
	ReportMarkdownName = "extraction-report.md"
)

// ReportInput is everything the report generator reads.
type ReportInput struct {
	DatasetID   string
	DatasetName string
	Assessment  FairAssessment
	Metadata    PaperMetadata
	Files       []UploadedFile
	TotalBytes  int64
}

// Report holds the rendered machine- and human-readable reports.
type Report struct {
	JSON     []byte
	Markdown string
}

// reportDocument is the JSON shape of fair-compliance.json.
type reportDocument struct {
	DatasetID   string `json:"datasetId"`
	DatasetName string `json:"datasetName"`
	FairAssessment
	AssessedAt time.Time `json:"assessedAt"`
	Strengths  []string  `json:"strengths"`
	Gaps       []string  `json:"gaps"`
}

// GenerateReport renders the FAIR assessment as JSON and Markdown.
// It is a pure function of its input.
func GenerateReport(in ReportInput) (Report, error) {
	strengths := Strengths(in.Assessment, in.Files)
	gaps := Gaps(in.Metadata, in.Files)

	doc := reportDocument{
		DatasetID:      in.DatasetID,
		DatasetName:    in.DatasetName,
		FairAssessment: in.Assessment,
		AssessedAt:     in.Assessment.AssessedAt,
		Strengths:      strengths,
		Gaps:           gaps,
	}
	doc.FairAssessment.DatasetID = in.DatasetID
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Report{}, fmt.Errorf("marshal fair report: %w", err)
	}

	return Report{JSON: data, Markdown: renderMarkdown(in, strengths, gaps)}, nil
}

// Strengths lists one bullet per category at its maximum, plus overall notes.
func Strengths(a FairAssessment, files []UploadedFile) []string {
	out := []string{}
	if a.TotalScore >= 90 {
		out = append(out, "Excellent FAIR compliance across all categories")
	}
	if a.Findable.Score == a.Findable.Max {
		out = append(out, "Complete findability metadata (DOI, authors, citation)")
	}
	if a.Accessible.Score == a.Accessible.Max {
		out = append(out, "Data fully accessible with PDF and data files")
	}
	if a.Interoperable.Score == a.Interoperable.Max {
		out = append(out, "All expected EarthBank tables present and schema-conformant")
	}
	if a.Reusable.Score == a.Reusable.Max {
		out = append(out, "Complete provenance metadata (laboratory, study location)")
	}
	if n := countFiles(files, FileTypeCSV); n > 5 {
		out = append(out, fmt.Sprintf("Rich dataset with %d data tables", n))
	}
	return out
}

// Gaps lists one bullet per missing metadata field or artifact that costs points.
func Gaps(m PaperMetadata, files []UploadedFile) []string {
	out := []string{}
	if m.DOI == nil {
		out = append(out, "Add DOI for persistent identification")
	}
	if len(m.Authors) == 0 {
		out = append(out, "List the paper authors")
	}
	if m.FullCitation == nil && BuildCitation(m) == nil {
		out = append(out, "Provide a full citation (authors, year, title, journal)")
	}
	if m.PDFURL == nil {
		out = append(out, "Provide PDF URL for paper access")
	}
	if countFiles(files, FileTypeCSV) == 0 {
		out = append(out, "Extract at least one data table as CSV")
	}
	if m.Laboratory == nil {
		out = append(out, "Record the analyzing laboratory")
	}
	if m.StudyLocation == nil {
		out = append(out, "Add study location for spatial context")
	}
	return out
}

func renderMarkdown(in ReportInput, strengths, gaps []string) string {
	a := in.Assessment
	var b strings.Builder

	fmt.Fprintf(&b, "# FAIR Assessment Report: %s\n\n", in.DatasetName)
	fmt.Fprintf(&b, "**Generated:** %s\n\n---\n\n", a.AssessedAt.UTC().Format(time.RFC1123))

	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "**FAIR Score:** %d/100 (Grade %s)\n\n", a.TotalScore, a.Grade)
	fmt.Fprintf(&b, "**Dataset:** %s\n\n", in.DatasetName)
	citation := "Not available"
	if in.Metadata.FullCitation != nil {
		citation = *in.Metadata.FullCitation
	}
	fmt.Fprintf(&b, "**Citation:** %s\n\n", citation)

	b.WriteString("## FAIR Assessment\n\n")
	b.WriteString("| Category | Score | Percentage | Reasoning |\n")
	b.WriteString("|----------|-------|------------|-----------|\n")
	for _, c := range a.Categories() {
		fmt.Fprintf(&b, "| %s | %d/%d | %.0f%% | %s |\n", c.Name, c.Score, c.Max, c.Percentage(), escapeCell(c.Reasoning))
	}
	fmt.Fprintf(&b, "| **TOTAL** | **%d/100** | **%d%%** | |\n\n", a.TotalScore, a.TotalScore)

	if len(a.Standards) > 0 {
		b.WriteString("## Reporting Standards (Kohn et al. 2024)\n\n")
		b.WriteString("| Table | Requirement | Score | Reasoning |\n")
		b.WriteString("|-------|-------------|-------|-----------|\n")
		for _, s := range a.Standards {
			fmt.Fprintf(&b, "| %s | %s | %d/%d | %s |\n", s.Table, s.Name, s.Score, s.Max, escapeCell(s.Reasoning))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Data Inventory\n\n")
	samples := "Unknown"
	if in.Metadata.SampleCount != nil {
		samples = fmt.Sprint(*in.Metadata.SampleCount)
	}
	fmt.Fprintf(&b, "- **Samples:** %s\n", samples)
	fmt.Fprintf(&b, "- **PDF Files:** %d\n", countFiles(in.Files, FileTypePDF))
	fmt.Fprintf(&b, "- **CSV Files:** %d\n", countFiles(in.Files, FileTypeCSV))
	fmt.Fprintf(&b, "- **Images:** %d\n", countFiles(in.Files, FileTypePNG)+countFiles(in.Files, FileTypeJPEG))
	fmt.Fprintf(&b, "- **Metadata Files:** %d\n",
		countFiles(in.Files, FileTypeMarkdown)+countFiles(in.Files, FileTypeJSON)+countFiles(in.Files, FileTypeText))
	fmt.Fprintf(&b, "- **Total File Size:** %.2f MB\n\n", float64(in.TotalBytes)/1024/1024)

	if len(strengths) > 0 {
		b.WriteString("## Strengths\n\n")
		for _, s := range strengths {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}

	if len(gaps) > 0 {
		b.WriteString("## Areas for Improvement\n\n")
		for _, g := range gaps {
			fmt.Fprintf(&b, "- %s\n", g)
		}
		b.WriteString("\n")
	}

	b.WriteString("## References\n\n")
	b.WriteString("- **Kohn et al. (2024)** - Reporting standards for thermochronology data. GSA Bulletin.\n")
	b.WriteString("- **Nixon et al. (2025)** - EarthBank: A FAIR platform for geological data. Chemical Geology.\n")
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}
