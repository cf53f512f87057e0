package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Artifact names written under a session prefix by the analyze stage.
const (
	ArtifactPlainText  = "text/plain-text.txt"
	ArtifactTableIndex = "table-index.json"
	ArtifactPaperIndex = "paper-index.md"
	ArtifactTablesMD   = "tables.md"
	ArtifactOriginal   = "original.pdf"
)

// RenderPaperIndex writes the quick-reference document for an analyzed paper.
// Its labeled lines are the input format of ParsePaperIndex.
func RenderPaperIndex(res AnalysisResult, filename string, generatedAt time.Time) string {
	m := res.PaperMetadata
	or := func(p *string, def string) string {
		if p == nil {
			return def
		}
		return *p
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Paper Index: %s\n\n", or(m.Title, "Unknown Title"))
	fmt.Fprintf(&b, "**Generated:** %s\n", generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "**Filename:** %s\n\n---\n\n## Citation\n\n", filename)

	authors := "Unknown"
	if len(m.Authors) > 0 {
		authors = strings.Join(m.Authors, ", ")
	}
	affiliations := "Not specified"
	if len(m.Affiliations) > 0 {
		affiliations = strings.Join(m.Affiliations, "; ")
	}
	year := "Unknown"
	if m.Year != nil {
		year = strconv.Itoa(*m.Year)
	}

	fmt.Fprintf(&b, "**Title:** %s\n", or(m.Title, "Unknown"))
	fmt.Fprintf(&b, "**Authors:** %s\n", authors)
	fmt.Fprintf(&b, "**Affiliations:** %s\n", affiliations)
	fmt.Fprintf(&b, "**Journal:** %s\n", or(m.Journal, "Unknown"))
	fmt.Fprintf(&b, "**Year:** %s\n", year)
	if m.Volume != nil {
		fmt.Fprintf(&b, "**Volume:** %s\n", *m.Volume)
	}
	fmt.Fprintf(&b, "**DOI:** %s\n", or(m.DOI, "Not specified"))
	if m.PDFURL != nil {
		fmt.Fprintf(&b, "**PDF URL:** %s\n", *m.PDFURL)
	}
	fmt.Fprintf(&b, "**Supplementary Files URL:** %s\n", or(m.Supplementary, "None"))

	b.WriteString("\n## Study\n\n")
	fmt.Fprintf(&b, "**Study Area:** %s\n", or(m.StudyLocation, "Not specified"))
	fmt.Fprintf(&b, "**Mineral:** %s\n", or(m.Mineral, "Not specified"))
	if m.Laboratory != nil {
		fmt.Fprintf(&b, "**Laboratory:** %s\n", *m.Laboratory)
	}
	if m.SampleCount != nil {
		fmt.Fprintf(&b, "**Sample Count:** %d\n", *m.SampleCount)
	}
	if m.AgeMinMa != nil && m.AgeMaxMa != nil {
		fmt.Fprintf(&b, "**Age Range:** ~%s-%s Ma\n", formatNumber(*m.AgeMinMa), formatNumber(*m.AgeMaxMa))
	}

	fmt.Fprintf(&b, "\n## Abstract\n\n%s\n\n---\n\n", or(m.Abstract, "No abstract available."))

	fmt.Fprintf(&b, "## Tables Found (%d)\n\n", len(res.Tables))
	if len(res.Tables) == 0 {
		b.WriteString("No tables detected.\n")
	}
	for _, t := range res.Tables {
		fmt.Fprintf(&b, "### Table %s\n", t.TableNumber)
		fmt.Fprintf(&b, "**Caption:** %s\n", orText(t.Caption, "No caption"))
		fmt.Fprintf(&b, "**Location:** %s\n", pageLabel(t.PageNumber))
		fmt.Fprintf(&b, "**Estimated size:** %s\n", dimensions(t))
		fmt.Fprintf(&b, "**Data type:** %s\n\n", orText(t.DataType, "Unknown"))
	}

	fmt.Fprintf(&b, "---\n\n## Figures Found (%d)\n\n", len(res.Figures))
	if len(res.Figures) == 0 {
		b.WriteString("No figures detected.\n")
	}
	for _, f := range res.Figures {
		fmt.Fprintf(&b, "### Figure %s\n", f.FigureNumber)
		fmt.Fprintf(&b, "**Caption:** %s\n", orText(f.Caption, "No caption"))
		fmt.Fprintf(&b, "**Location:** %s\n\n", pageLabel(f.PageNumber))
	}
	return b.String()
}

// RenderTablesMarkdown writes the per-table reference document.
func RenderTablesMarkdown(tables []TableInfo) string {
	var b strings.Builder
	b.WriteString("# Tables Reference\n\n")
	if len(tables) == 0 {
		b.WriteString("No tables were detected in this paper.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "**Total tables detected:** %d\n\n---\n\n", len(tables))
	for _, t := range tables {
		fmt.Fprintf(&b, "## Table %s\n\n", t.TableNumber)
		fmt.Fprintf(&b, "**Caption:** %s\n\n", orText(t.Caption, "No caption"))
		b.WriteString("**Metadata:**\n")
		fmt.Fprintf(&b, "- Page: %s\n", pageLabel(t.PageNumber))
		fmt.Fprintf(&b, "- Estimated size: %s\n", dimensions(t))
		fmt.Fprintf(&b, "- Data type: %s\n", orText(t.DataType, "Unknown"))
		if m, ok := ForDataType(t.DataType); ok {
			fmt.Fprintf(&b, "- Target schema: %s\n", m.Key)
		}
		fmt.Fprintf(&b, "\n**Locations:**\n- Text file: `%s`\n- CSV: `%s`\n\n---\n\n", ArtifactPlainText, TableCSVName(t.TableNumber))
	}
	return b.String()
}

// tableIndex is the JSON shape of table-index.json.
type tableIndex struct {
	PaperMetadata PaperMetadata     `json:"paperMetadata"`
	Tables        []tableIndexEntry `json:"tables"`
	Figures       []FigureInfo      `json:"figures"`
	GeneratedAt   time.Time         `json:"generatedAt"`
}

type tableIndexEntry struct {
	TableInfo
	Mapping  string `json:"mapping,omitempty"`
	TextFile string `json:"textFile"`
	PDFPages []int  `json:"pdfPages"`
}

// RenderTableIndex writes the structured table metadata document.
func RenderTableIndex(res AnalysisResult, generatedAt time.Time) ([]byte, error) {
	idx := tableIndex{
		PaperMetadata: res.PaperMetadata,
		Tables:        make([]tableIndexEntry, 0, len(res.Tables)),
		Figures:       res.Figures,
		GeneratedAt:   generatedAt.UTC(),
	}
	if idx.Figures == nil {
		idx.Figures = []FigureInfo{}
	}
	for _, t := range res.Tables {
		e := tableIndexEntry{TableInfo: t, TextFile: ArtifactPlainText, PDFPages: []int{}}
		if t.PageNumber > 0 {
			e.PDFPages = []int{t.PageNumber}
		}
		if m, ok := ForDataType(t.DataType); ok {
			e.Mapping = m.Key
		}
		idx.Tables = append(idx.Tables, e)
	}
	return json.MarshalIndent(idx, "", "  ")
}

// TableCSVName is the artifact name of an extracted table, relative to the
// session prefix.
func TableCSVName(tableNumber string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(tableNumber)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" {
		name = "unnumbered"
	}
	return "extracted/table_" + name + ".csv"
}

func orText(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func pageLabel(page int) string {
	if page <= 0 {
		return "Page unknown"
	}
	return "Page " + strconv.Itoa(page)
}

func dimensions(t TableInfo) string {
	if t.EstimatedRows <= 0 || t.EstimatedColumns <= 0 {
		return "Dimensions unknown"
	}
	return fmt.Sprintf("%d×%d", t.EstimatedRows, t.EstimatedColumns)
}
