package core

// metadata.go turns semi-structured paper descriptions into PaperMetadata.
//
// Every extractor is independent and order-insensitive. A field that cannot be
// found, or carries a placeholder such as "Unknown", becomes nil. Parsing never
// fails: partially present input always yields a typed structure.

import (
	"path"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	doiRegex       = regexp.MustCompile(`(?i)(?:https?://(?:dx\.)?doi\.org/|doi:\s*)?(10\.\d{4,9}/[\w.()/:;-]+)`)
	yearRegex      = regexp.MustCompile(`\b(\d{4})\b`)
	countRegex     = regexp.MustCompile(`\b(\d+)\b`)
	volumeRegex    = regexp.MustCompile(`Volume\s+(\d+)[,\s]+(?:Article\s+)?(\S+)`)
	ageRangeRegex  = regexp.MustCompile(`~?\s*(\d+(?:\.\d+)?)\s*[-–]\s*(\d+(?:\.\d+)?)\s*Ma\b`)
	urlRegex       = regexp.MustCompile(`https?://[^\s)>\]]+`)
	bulletRegex    = regexp.MustCompile(`^\s*[-*+]\s+(.+?)\s*$`)
	initialsRegex  = regexp.MustCompile(`^(?:[A-Z]\.\s*-?)+$`)
	parentheticals = regexp.MustCompile(`\(([^)]+)\)`)
)

// placeholders are values the analysis service writes for unknown fields.
var placeholders = map[string]bool{
	"": true, "unknown": true, "unknown title": true, "not specified": true,
	"not available": true, "none": true, "n/a": true, "na": true, "null": true,
	"no abstract available.": true,
}

func isPlaceholder(s string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(s))]
}

// labelRegex matches a "Label: value" line in any of the forms the analysis
// service writes: "**Label:** v", "**Label**: v", "- Label: v", "Label: v".
func labelRegex(names ...string) *regexp.Regexp {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return regexp.MustCompile(`(?mi)^[ \t]*(?:[-*+][ \t]+)?\*{0,2}(?:` +
		strings.Join(quoted, "|") + `)[ \t]*(?:\*\*:|:\*\*|:)[ \t]*(.*)$`)
}

var (
	labelTitle        = labelRegex("Title")
	labelAuthors      = labelRegex("Authors", "Author")
	labelAffiliations = labelRegex("Affiliations", "Affiliation")
	labelJournal      = labelRegex("Journal")
	labelYear         = labelRegex("Year", "Publication Year")
	labelVolume       = labelRegex("Volume")
	labelDOI          = labelRegex("DOI")
	labelPDFURL       = labelRegex("PDF URL")
	labelSupp         = labelRegex("Supplementary Files URL", "Supplementary Data URL", "Supplementary URL")
	labelLocation     = labelRegex("Study Area", "Study Location")
	labelMineral      = labelRegex("Mineral", "Mineral Analyzed")
	labelMethod       = labelRegex("Method", "Methods")
	labelSampleCount  = labelRegex("Sample Count")
	labelAgeRange     = labelRegex("Age Range")
	labelLaboratory   = labelRegex("Laboratory", "Lab")
	labelCitation     = labelRegex("Citation", "Full Citation")
)

// labelValue returns the trimmed value of the first matching label line.
func labelValue(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatchIndex(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(strings.Trim(text[m[2]:m[3]], "*")), true
}

func optionalLabel(re *regexp.Regexp, text string) *string {
	v, ok := labelValue(re, text)
	if !ok || isPlaceholder(v) {
		return nil
	}
	return &v
}

// ParsePaperIndex extracts PaperMetadata from a paper-index document.
func ParsePaperIndex(text string) PaperMetadata {
	var m PaperMetadata

	m.Title = optionalLabel(labelTitle, text)
	m.Authors = parseAuthors(text)
	m.Affiliations = parseAffiliations(text)
	m.Journal = optionalLabel(labelJournal, text)
	m.Year = parseYear(text)
	m.Volume = parseVolume(text)
	m.DOI = parseDOI(text)
	m.Abstract = parseAbstract(text)
	m.PDFURL = parseURL(labelPDFURL, text)
	m.Supplementary = parseURL(labelSupp, text)
	m.StudyLocation = optionalLabel(labelLocation, text)
	m.Mineral = parseMineral(text)
	m.SampleCount = parseCount(labelSampleCount, text)
	m.AgeMinMa, m.AgeMaxMa = parseAgeRange(text)

	if lab := optionalLabel(labelLaboratory, text); lab != nil {
		m.Laboratory = lab
	} else if len(m.Affiliations) > 0 {
		m.Laboratory = ptr(m.Affiliations[0])
	}

	if c := optionalLabel(labelCitation, text); c != nil {
		m.FullCitation = c
	} else {
		m.FullCitation = BuildCitation(m)
	}
	return m
}

// parseAuthors reads an inline "Authors: a, b" list, or a bulleted list
// following an empty Authors label.
func parseAuthors(text string) []string {
	loc := labelAuthors.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil
	}
	inline := strings.TrimSpace(text[loc[2]:loc[3]])
	if inline != "" {
		if isPlaceholder(inline) {
			return nil
		}
		return SplitAuthors(inline)
	}

	var authors []string
	rest := text[loc[1]:]
	for _, line := range strings.Split(rest, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(authors) > 0 {
				break
			}
			continue
		}
		bm := bulletRegex.FindStringSubmatch(line)
		if bm == nil {
			break
		}
		if name := strings.TrimSpace(bm[1]); !isPlaceholder(name) {
			authors = append(authors, name)
		}
	}
	return authors
}

// SplitAuthors splits an author list on semicolons, or on commas when no
// semicolon is present. Initials split off by a comma ("Smith, J.") are
// joined back onto the preceding surname.
func SplitAuthors(s string) []string {
	sep := ","
	if strings.Contains(s, ";") {
		sep = ";"
	}
	s = strings.ReplaceAll(s, " and ", sep+" ")
	s = strings.ReplaceAll(s, " & ", sep+" ")

	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if sep == "," && initialsRegex.MatchString(part) && len(out) > 0 {
			out[len(out)-1] += ", " + part
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseAffiliations(text string) []string {
	v, ok := labelValue(labelAffiliations, text)
	if !ok || isPlaceholder(v) {
		return nil
	}
	var out []string
	for _, a := range strings.Split(v, ";") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func parseYear(text string) *int {
	v, ok := labelValue(labelYear, text)
	if !ok {
		return nil
	}
	m := yearRegex.FindStringSubmatch(v)
	if m == nil {
		return nil
	}
	y, _ := strconv.Atoi(m[1])
	if y < 1800 || y > 2200 {
		return nil
	}
	return &y
}

func parseVolume(text string) *string {
	if v := optionalLabel(labelVolume, text); v != nil {
		return v
	}
	if m := volumeRegex.FindStringSubmatch(text); m != nil {
		return ptr("Volume " + m[1] + ", " + strings.TrimRight(m[2], ".,;"))
	}
	return nil
}

func parseDOI(text string) *string {
	v, ok := labelValue(labelDOI, text)
	if !ok {
		return nil
	}
	return NormalizeDOI(v)
}

// NormalizeDOI strips resolver prefixes and trailing punctuation.
// Returns nil when s holds no DOI.
func NormalizeDOI(s string) *string {
	m := doiRegex.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	doi := strings.TrimRight(m[1], ".,;:)")
	return &doi
}

func parseAbstract(text string) *string {
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "#") && strings.EqualFold(strings.TrimSpace(strings.TrimLeft(t, "#")), "abstract") {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}
	var body []string
	for _, line := range lines[start:] {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "---") || strings.HasPrefix(t, "#") {
			break
		}
		body = append(body, line)
	}
	abstract := strings.TrimSpace(strings.Join(body, "\n"))
	if isPlaceholder(abstract) {
		return nil
	}
	return &abstract
}

func parseURL(re *regexp.Regexp, text string) *string {
	v, ok := labelValue(re, text)
	if !ok {
		return nil
	}
	u := urlRegex.FindString(v)
	if u == "" || strings.Contains(u, "None") {
		return nil
	}
	u = strings.TrimRight(u, ".,;")
	return &u
}

func parseMineral(text string) *string {
	if v := optionalLabel(labelMineral, text); v != nil {
		return ptr(canonicalMineral(*v))
	}
	v, ok := labelValue(labelMethod, text)
	if !ok {
		return nil
	}
	if m := parentheticals.FindStringSubmatch(v); m != nil {
		return ptr(canonicalMineral(m[1]))
	}
	return nil
}

func canonicalMineral(s string) string {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "apatite"):
		return "Apatite"
	case strings.Contains(lower, "zircon"):
		return "Zircon"
	case strings.Contains(lower, "titanite"):
		return "Titanite"
	}
	return strings.TrimSpace(s)
}

func parseCount(re *regexp.Regexp, text string) *int {
	v, ok := labelValue(re, text)
	if !ok {
		return nil
	}
	m := countRegex.FindStringSubmatch(v)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

func parseAgeRange(text string) (*float64, *float64) {
	v, ok := labelValue(labelAgeRange, text)
	if !ok {
		return nil, nil
	}
	m := ageRangeRegex.FindStringSubmatch(v)
	if m == nil {
		return nil, nil
	}
	lo, err1 := strconv.ParseFloat(m[1], 64)
	hi, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return &lo, &hi
}

// BuildCitation renders "authors (year). title. journal[, volume]." or nil
// when any of authors, year, title or journal is missing.
func BuildCitation(m PaperMetadata) *string {
	if len(m.Authors) == 0 || m.Year == nil || m.Title == nil || m.Journal == nil {
		return nil
	}
	var b strings.Builder
	b.WriteString(strings.Join(m.Authors, ", "))
	b.WriteString(" (")
	b.WriteString(strconv.Itoa(*m.Year))
	b.WriteString("). ")
	b.WriteString(strings.TrimRight(*m.Title, "."))
	b.WriteString(". ")
	b.WriteString(*m.Journal)
	if m.Volume != nil {
		b.WriteString(", ")
		b.WriteString(*m.Volume)
	}
	b.WriteString(".")
	return ptr(b.String())
}

// Title extraction patterns. The strict forms require a journal-looking token
// after the title; the loose forms only require a following capital letter.
var (
	periodTitleRegex      = regexp.MustCompile(`\)\.\s+([^.]+(?:\.[^.]*?)*?)\.\s+(?:[A-Z][^,]*,|[A-Z][^,]*\d)`)
	periodTitleLooseRegex = regexp.MustCompile(`\(\d{4}[a-z]?\)\.\s+(.+?)\.\s+[A-Z]`)
	commaTitleRegex       = regexp.MustCompile(`\(\d{4}[a-z]?\),\s*(.+?),\s*[A-Z][^,]*,\s*\d`)
	commaTitleLooseRegex  = regexp.MustCompile(`\(\d{4}[a-z]?\),\s*(.+?),\s*[A-Z]`)
)

// ExtractPaperTitle isolates the title between the publication year and the
// journal name of a citation. Both "Author (YEAR). Title. Journal" and
// "Author (YEAR), Title, Journal" are recognized. Returns nil when no title
// can be found with confidence.
func ExtractPaperTitle(citation string) *string {
	citation = strings.Join(strings.Fields(citation), " ")
	if citation == "" {
		return nil
	}

	for _, re := range []*regexp.Regexp{periodTitleRegex, commaTitleRegex} {
		if m := re.FindStringSubmatch(citation); m != nil {
			if t := strings.TrimSpace(m[1]); t != "" {
				return &t
			}
		}
	}

	for _, re := range []*regexp.Regexp{periodTitleLooseRegex, commaTitleLooseRegex} {
		m := re.FindStringSubmatch(citation)
		if m == nil {
			continue
		}
		t := strings.TrimSpace(m[1])
		if t == "" || looksLikeJournal(t) {
			return nil
		}
		return &t
	}
	return nil
}

// looksLikeJournal reports whether a short capture is mostly capitalized
// words, the shape of a journal name matched in place of a title.
func looksLikeJournal(phrase string) bool {
	words := strings.Fields(phrase)
	if len(words) == 0 || len(words) >= 5 {
		return false
	}
	capitalized := 0
	for _, w := range words {
		r := []rune(w)
		if unicode.IsUpper(r[0]) {
			capitalized++
		}
	}
	return float64(capitalized)/float64(len(words)) > 0.7
}

// DatasetName picks a display name: the title, a title recovered from the
// citation, "Surname Year", or fallback with its extension removed.
func DatasetName(m PaperMetadata, fallback string) string {
	if m.Title != nil && strings.TrimSpace(*m.Title) != "" {
		return strings.TrimSpace(*m.Title)
	}
	if m.FullCitation != nil {
		if t := ExtractPaperTitle(*m.FullCitation); t != nil {
			return *t
		}
	}
	if len(m.Authors) > 0 && m.Year != nil {
		surname := strings.TrimSpace(strings.SplitN(m.Authors[0], ",", 2)[0])
		if f := strings.Fields(surname); len(f) > 1 && !strings.Contains(m.Authors[0], ",") {
			surname = f[len(f)-1]
		}
		return surname + " " + strconv.Itoa(*m.Year)
	}
	name := strings.TrimSuffix(fallback, path.Ext(fallback))
	if name == "" {
		return "Unknown Dataset"
	}
	return name
}

// MergeMetadata returns base with every nil or empty field filled from extra.
func MergeMetadata(base, extra PaperMetadata) PaperMetadata {
	out := base
	fill := func(dst **string, src *string) {
		if *dst == nil && src != nil {
			*dst = src
		}
	}
	fill(&out.Title, extra.Title)
	fill(&out.Abstract, extra.Abstract)
	fill(&out.Journal, extra.Journal)
	fill(&out.Volume, extra.Volume)
	fill(&out.DOI, extra.DOI)
	fill(&out.PDFURL, extra.PDFURL)
	fill(&out.Supplementary, extra.Supplementary)
	fill(&out.StudyLocation, extra.StudyLocation)
	fill(&out.Mineral, extra.Mineral)
	fill(&out.Laboratory, extra.Laboratory)
	fill(&out.FullCitation, extra.FullCitation)
	if len(out.Authors) == 0 {
		out.Authors = extra.Authors
	}
	if len(out.Affiliations) == 0 {
		out.Affiliations = extra.Affiliations
	}
	if out.Year == nil {
		out.Year = extra.Year
	}
	if out.SampleCount == nil {
		out.SampleCount = extra.SampleCount
	}
	if out.AgeMinMa == nil && out.AgeMaxMa == nil {
		out.AgeMinMa, out.AgeMaxMa = extra.AgeMinMa, extra.AgeMaxMa
	}
	if out.FullCitation == nil {
		out.FullCitation = BuildCitation(out)
	}
	return out
}

// NormalizeAnalysis cleans an untrusted analysis response: strings are
// trimmed, placeholders become nil, empty authors are dropped and table
// numbers lose any "Table" prefix.
func NormalizeAnalysis(raw *AnalysisResult) AnalysisResult {
	if raw == nil {
		return AnalysisResult{}
	}
	out := AnalysisResult{
		PaperMetadata: normalizeMetadata(raw.PaperMetadata),
		FiguresFound:  max(raw.FiguresFound, len(raw.Figures)),
	}

	seen := make(map[string]bool)
	for i, t := range raw.Tables {
		t.TableNumber = normalizeTableNumber(t.TableNumber)
		if t.TableNumber == "" {
			t.TableNumber = strconv.Itoa(i + 1)
		}
		if seen[t.TableNumber] {
			continue
		}
		seen[t.TableNumber] = true
		t.Caption = strings.TrimSpace(t.Caption)
		t.DataType = strings.TrimSpace(t.DataType)
		if isPlaceholder(t.DataType) {
			t.DataType = ""
		}
		t.PageNumber = max(t.PageNumber, 0)
		t.EstimatedRows = max(t.EstimatedRows, 0)
		t.EstimatedColumns = max(t.EstimatedColumns, 0)
		out.Tables = append(out.Tables, t)
	}
	for _, f := range raw.Figures {
		f.FigureNumber = strings.TrimSpace(f.FigureNumber)
		f.Caption = strings.TrimSpace(f.Caption)
		out.Figures = append(out.Figures, f)
	}

	out.TablesFound = len(out.Tables)
	return out
}

func normalizeTableNumber(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"table", "tab."} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = strings.TrimSpace(s[len(prefix):])
		}
	}
	return strings.TrimRight(s, ".:")
}

func normalizeMetadata(m PaperMetadata) PaperMetadata {
	clean := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := strings.Join(strings.Fields(*p), " ")
		if isPlaceholder(v) {
			return nil
		}
		return &v
	}

	out := PaperMetadata{
		Title:         clean(m.Title),
		Abstract:      clean(m.Abstract),
		Journal:       clean(m.Journal),
		Volume:        clean(m.Volume),
		PDFURL:        clean(m.PDFURL),
		Supplementary: clean(m.Supplementary),
		StudyLocation: clean(m.StudyLocation),
		Laboratory:    clean(m.Laboratory),
		FullCitation:  clean(m.FullCitation),
		Year:          m.Year,
		SampleCount:   m.SampleCount,
		AgeMinMa:      m.AgeMinMa,
		AgeMaxMa:      m.AgeMaxMa,
	}
	if m.DOI != nil {
		out.DOI = NormalizeDOI(*m.DOI)
	}
	if v := clean(m.Mineral); v != nil {
		out.Mineral = ptr(canonicalMineral(*v))
	}
	for _, a := range m.Authors {
		if a = strings.TrimSpace(a); a != "" && !isPlaceholder(a) {
			out.Authors = append(out.Authors, a)
		}
	}
	for _, a := range m.Affiliations {
		if a = strings.TrimSpace(a); a != "" {
			out.Affiliations = append(out.Affiliations, a)
		}
	}
	if out.Laboratory == nil && len(out.Affiliations) > 0 {
		out.Laboratory = ptr(out.Affiliations[0])
	}
	if out.Year != nil && (*out.Year < 1800 || *out.Year > 2200) {
		out.Year = nil
	}
	if out.SampleCount != nil && *out.SampleCount < 0 {
		out.SampleCount = nil
	}
	return out
}
