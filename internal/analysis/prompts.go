package analysis

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/thermoextract/internal/core"
)

const analysisSystemPrompt = `You are a research paper analysis assistant. Analyze the text of a thermochronology paper and return a JSON object with this structure:

{
  "paper_metadata": {
    "title": "Full paper title",
    "authors": ["Author 1", "Author 2"],
    "affiliations": ["Institution 1"],
    "journal": "Journal name",
    "year": 2024,
    "volume": "12",
    "doi": "10.xxxx/xxxxx",
    "abstract": "Two or three sentence summary",
    "supplementary_data_url": "URL or null",
    "study_location": "Region, country",
    "mineral": "apatite",
    "sample_count": 12,
    "laboratory": "Laboratory name",
    "age_range_min_ma": 10.5,
    "age_range_max_ma": 120.0
  },
  "tables": [
    {
      "table_number": 1,
      "caption": "Table caption text",
      "page_number": 5,
      "data_type": "AFT ages",
      "estimated_rows": 20,
      "estimated_columns": 8
    }
  ],
  "figures": [
    {"figure_number": 1, "caption": "Figure caption text", "page_number": 3}
  ]
}

Guidelines:
- Use null for anything the paper does not state.
- Include appendix and supplementary tables (A1, S1).
- Copy captions exactly as written.
- data_type names the kind of data held, such as "Sample metadata", "AFT ages", "AHe ages", "Track lengths".

Return ONLY valid JSON. No markdown code blocks, no explanations.`

const extractionSystemPrompt = `You are a data extraction assistant. Extract one data table from a research paper and convert it to CSV.

Rules:
- Use the EXACT column headers from the paper, keeping units and symbols such as "Age (Ma)" and "±1σ".
- Extract ALL rows. Keep partially complete rows.
- Preserve numeric precision. Do not round.
- Leave missing values empty, not "N/A" or "-".
- Remove footnote markers such as a, b, * and †.
- Quote values containing commas.

Return ONLY the CSV: header row first, then data rows. No markdown code blocks, no explanations.`

func analysisUserMessage(req core.AnalysisRequest) string {
	var b strings.Builder
	b.WriteString("Analyze this research paper and extract metadata.\n\n")
	fmt.Fprintf(&b, "**Filename:** %s\n", req.Filename)
	if req.PageCount > 0 {
		fmt.Fprintf(&b, "**Pages:** %d\n", req.PageCount)
	}
	b.WriteString("\n**Full Paper Text:**\n\n")
	b.WriteString(req.Text)
	b.WriteString("\n\nReturn a JSON object with paper_metadata, tables, and figures as specified.")
	return b.String()
}

func extractionUserMessage(req core.TableExtractionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract Table %s from this research paper.\n\n", req.Table.TableNumber)
	b.WriteString("**Table Information:**\n")
	fmt.Fprintf(&b, "- Table Number: %s\n", req.Table.TableNumber)
	fmt.Fprintf(&b, "- Caption: %s\n", req.Table.Caption)
	if req.Table.DataType != "" {
		fmt.Fprintf(&b, "- Data Type: %s\n", req.Table.DataType)
	}
	if req.Table.EstimatedColumns > 0 {
		fmt.Fprintf(&b, "- Expected Columns: about %d\n", req.Table.EstimatedColumns)
	}
	if req.SchemaHint != "" {
		b.WriteString("\n**Target Schema (for reference, keep the paper's own headers):**\n\n")
		b.WriteString(req.SchemaHint)
	}
	if req.Attempt > 1 && req.PriorFailure != "" {
		fmt.Fprintf(&b, "\n**Attempt %d.** The previous extraction was rejected:\n%s\n", req.Attempt, req.PriorFailure)
	}
	b.WriteString("\n**Full Paper Text:**\n\n")
	b.WriteString(req.Text)
	b.WriteString("\n\nExtract this table as CSV with the exact column headers as they appear in the paper.")
	return b.String()
}
