package core

// csv.go implements the tolerant delimited-text reader used for extracted tables.
//
// The analysis service returns tables as loosely formatted CSV: wrapped in
// markdown fences, with ragged rows and stray blank lines. ParseCSV accepts
// all of that; SerializeCSV writes text that ParseCSV reads back unchanged.

import (
	"bytes"
	"encoding/json"
	"strings"
)

// CSVTable is a parsed table. Every record has len(Headers) cells.
type CSVTable struct {
	Headers []string
	Records [][]string
}

// ParsedRow maps header names to raw cell values, preserving header order.
type ParsedRow struct {
	Headers []string
	Values  []string
}

// Get returns the value under header, or "" if absent.
func (r ParsedRow) Get(header string) string {
	for i, h := range r.Headers {
		if h == header && i < len(r.Values) {
			return r.Values[i]
		}
	}
	return ""
}

// MarshalJSON writes the row as an object whose keys follow header order.
func (r ParsedRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, h := range r.Headers {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(h)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Rows returns the records as ParsedRows sharing the header slice.
func (t *CSVTable) Rows() []ParsedRow {
	rows := make([]ParsedRow, len(t.Records))
	for i, rec := range t.Records {
		rows[i] = ParsedRow{Headers: t.Headers, Values: rec}
	}
	return rows
}

// Preview returns a copy of the table limited to the first n records.
func (t *CSVTable) Preview(n int) *CSVTable {
	if n < 0 || n > len(t.Records) {
		n = len(t.Records)
	}
	return &CSVTable{Headers: t.Headers, Records: t.Records[:n]}
}

// ParseCSV splits delimited text into a header row and records.
//
// Quoted fields may contain commas, doubled quotes and line breaks. Unquoted
// fields are trimmed. Lines that are entirely blank are skipped. Short records
// are padded with empty strings; cells beyond the header width are dropped.
// A surrounding ```csv fence is removed.
func ParseCSV(text string) (*CSVTable, error) {
	lines := parseRecords(stripFences(text))
	if len(lines) == 0 || len(lines[0]) == 0 {
		return nil, ErrEmptyCSV
	}

	t := &CSVTable{Headers: lines[0]}
	width := len(t.Headers)
	for _, rec := range lines[1:] {
		switch {
		case len(rec) < width:
			padded := make([]string, width)
			copy(padded, rec)
			rec = padded
		case len(rec) > width:
			rec = rec[:width]
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// stripFences removes a markdown code fence around the whole text.
func stripFences(text string) string {
	s := strings.TrimLeft(text, " \t\r\n")
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = ""
		}
		trimmed := strings.TrimRight(s, " \t\r\n")
		if strings.HasSuffix(trimmed, "```") {
			s = strings.TrimSuffix(trimmed, "```")
		}
		return s
	}
	return text
}

// parseRecords is a single-pass reader over the whole text.
func parseRecords(text string) [][]string {
	var (
		records  [][]string
		record   []string
		field    strings.Builder
		inQuotes bool
		quoted   bool // field contained a quoted section
		quoteEnd int  // field length when the last quoted section closed
	)

	endField := func() {
		v := field.String()
		if quoted {
			v = v[:quoteEnd] + strings.TrimRight(v[quoteEnd:], " \t")
		} else {
			v = strings.TrimSpace(v)
		}
		record = append(record, v)
		field.Reset()
		quoted = false
		quoteEnd = 0
	}
	endRecord := func() {
		blank := len(record) == 0 && !quoted && strings.TrimSpace(field.String()) == ""
		endField()
		if !blank {
			records = append(records, record)
		}
		record = nil
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case inQuotes:
			if c == '"' {
				if i+1 < len(text) && text[i+1] == '"' {
					field.WriteByte('"')
					i++
					continue
				}
				inQuotes = false
				quoteEnd = field.Len()
				continue
			}
			field.WriteByte(c)
		case c == '"':
			if !quoted && strings.TrimSpace(field.String()) == "" {
				field.Reset()
			}
			inQuotes = true
			quoted = true
		case c == ',':
			endField()
		case c == '\r' && i+1 < len(text) && text[i+1] == '\n':
			// handled by the following '\n'
		case c == '\n':
			endRecord()
		default:
			field.WriteByte(c)
		}
	}
	if field.Len() > 0 || len(record) > 0 || quoted {
		endRecord()
	}
	return records
}

// SerializeCSV writes the table as comma-separated text without a trailing newline.
// Cells are quoted when they contain a delimiter, quote, line break, or
// leading/trailing whitespace, and when a single-column record is empty.
func SerializeCSV(t *CSVTable) string {
	var b strings.Builder
	writeRecord(&b, t.Headers)
	for _, rec := range t.Records {
		b.WriteByte('\n')
		writeRecord(&b, rec)
	}
	return b.String()
}

func writeRecord(b *strings.Builder, rec []string) {
	if len(rec) == 1 && rec[0] == "" {
		b.WriteString(`""`)
		return
	}
	for i, v := range rec {
		if i > 0 {
			b.WriteByte(',')
		}
		if needsQuotes(v) {
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(v, `"`, `""`))
			b.WriteByte('"')
			continue
		}
		b.WriteString(v)
	}
}

func needsQuotes(v string) bool {
	if v == "" {
		return false
	}
	if strings.ContainsAny(v, ",\"\r\n") {
		return true
	}
	return strings.TrimSpace(v) != v || strings.HasPrefix(v, "```")
}

// CSVStats summarizes fill rates of a parsed table.
type CSVStats struct {
	TotalRows    int          `json:"totalRows"`
	TotalColumns int          `json:"totalColumns"`
	Completeness float64      `json:"completeness"` // percent of non-empty cells
	Fields       []FieldStats `json:"fieldStats,omitempty"`
}

// FieldStats is the fill rate of a single column.
type FieldStats struct {
	Field    string  `json:"field"`
	Filled   int     `json:"filled"`
	Empty    int     `json:"empty"`
	FillRate float64 `json:"fillRate"` // percent
}

// ComputeStats returns row/column counts and cell completeness.
func ComputeStats(t *CSVTable) CSVStats {
	if t == nil || len(t.Records) == 0 {
		return CSVStats{}
	}
	stats := CSVStats{
		TotalRows:    len(t.Records),
		TotalColumns: len(t.Headers),
		Fields:       make([]FieldStats, len(t.Headers)),
	}
	filledCells := 0
	for col, h := range t.Headers {
		fs := FieldStats{Field: h}
		for _, rec := range t.Records {
			if strings.TrimSpace(rec[col]) != "" {
				fs.Filled++
			} else {
				fs.Empty++
			}
		}
		fs.FillRate = float64(fs.Filled) / float64(stats.TotalRows) * 100
		filledCells += fs.Filled
		stats.Fields[col] = fs
	}
	if cells := stats.TotalRows * stats.TotalColumns; cells > 0 {
		stats.Completeness = float64(filledCells) / float64(cells) * 100
	}
	return stats
}
