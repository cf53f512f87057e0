package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/JonMunkholm/thermoextract/internal/core"
)

var (
	fencePattern         = regexp.MustCompile("```[a-zA-Z]*\\n?")
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
)

// ErrNoJSON is returned when a reply holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ExtractJSON recovers a JSON object from free-form model output: code fences
// are dropped, the outermost braces are kept and trailing commas removed.
func ExtractJSON(text string) ([]byte, error) {
	s := strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first < 0 || last <= first {
		return nil, ErrNoJSON
	}
	s = trailingCommaPattern.ReplaceAllString(s[first:last+1], "$1")
	return []byte(s), nil
}

// DecodeAnalysis parses an analysis reply. Keys may be snake_case or
// camelCase, and numbers may arrive as strings.
func DecodeAnalysis(text string) (*core.AnalysisResult, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var w wireAnalysis
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return w.result(), nil
}

// wireAnalysis mirrors the reply. Both key spellings are declared since the
// service does not always follow the requested one.
type wireAnalysis struct {
	PaperMetadata      *wireMetadata `json:"paper_metadata"`
	PaperMetadataCamel *wireMetadata `json:"paperMetadata"`
	Tables             []wireTable   `json:"tables"`
	Figures            []wireFigure  `json:"figures"`
}

type wireMetadata struct {
	Title            flexString `json:"title"`
	Authors          flexList   `json:"authors"`
	Affiliations     flexList   `json:"affiliations"`
	Abstract         flexString `json:"abstract"`
	Journal          flexString `json:"journal"`
	Year             flexNumber `json:"year"`
	Volume           flexString `json:"volume"`
	DOI              flexString `json:"doi"`
	PDFURL           flexString `json:"pdf_url"`
	Supplementary    flexString `json:"supplementary_data_url"`
	SupplementaryAlt flexString `json:"supplementaryDataUrl"`
	StudyLocation    flexString `json:"study_location"`
	StudyLocationAlt flexString `json:"studyLocation"`
	Mineral          flexString `json:"mineral"`
	SampleCount      flexNumber `json:"sample_count"`
	SampleCountAlt   flexNumber `json:"sampleCount"`
	Laboratory       flexString `json:"laboratory"`
	AgeMin           flexNumber `json:"age_range_min_ma"`
	AgeMinAlt        flexNumber `json:"ageRangeMinMa"`
	AgeMax           flexNumber `json:"age_range_max_ma"`
	AgeMaxAlt        flexNumber `json:"ageRangeMaxMa"`
	FullCitation     flexString `json:"full_citation"`
	FullCitationAlt  flexString `json:"fullCitation"`
}

type wireTable struct {
	TableNumber      flexString `json:"table_number"`
	TableNumberAlt   flexString `json:"tableNumber"`
	Caption          flexString `json:"caption"`
	PageNumber       flexNumber `json:"page_number"`
	PageNumberAlt    flexNumber `json:"pageNumber"`
	DataType         flexString `json:"data_type"`
	DataTypeAlt      flexString `json:"dataType"`
	EstimatedRows    flexNumber `json:"estimated_rows"`
	EstimatedRowsAlt flexNumber `json:"estimatedRows"`
	EstimatedCols    flexNumber `json:"estimated_columns"`
	EstimatedColsAlt flexNumber `json:"estimatedColumns"`
}

type wireFigure struct {
	FigureNumber    flexString `json:"figure_number"`
	FigureNumberAlt flexString `json:"figureNumber"`
	Caption         flexString `json:"caption"`
	PageNumber      flexNumber `json:"page_number"`
	PageNumberAlt   flexNumber `json:"pageNumber"`
}

func (w wireAnalysis) result() *core.AnalysisResult {
	res := &core.AnalysisResult{}

	m := w.PaperMetadata
	if m == nil {
		m = w.PaperMetadataCamel
	}
	if m != nil {
		res.PaperMetadata = m.metadata()
	}

	for _, t := range w.Tables {
		res.Tables = append(res.Tables, core.TableInfo{
			TableNumber:      t.TableNumber.or(t.TableNumberAlt),
			Caption:          string(t.Caption),
			PageNumber:       t.PageNumber.or(t.PageNumberAlt).toInt(),
			DataType:         t.DataType.or(t.DataTypeAlt),
			EstimatedRows:    t.EstimatedRows.or(t.EstimatedRowsAlt).toInt(),
			EstimatedColumns: t.EstimatedCols.or(t.EstimatedColsAlt).toInt(),
		})
	}
	for _, f := range w.Figures {
		res.Figures = append(res.Figures, core.FigureInfo{
			FigureNumber: f.FigureNumber.or(f.FigureNumberAlt),
			Caption:      string(f.Caption),
			PageNumber:   f.PageNumber.or(f.PageNumberAlt).toInt(),
		})
	}
	res.TablesFound = len(res.Tables)
	res.FiguresFound = len(res.Figures)
	return res
}

func (m wireMetadata) metadata() core.PaperMetadata {
	return core.PaperMetadata{
		Title:         m.Title.ptr(),
		Authors:       m.Authors,
		Affiliations:  m.Affiliations,
		Abstract:      m.Abstract.ptr(),
		Journal:       m.Journal.ptr(),
		Year:          m.Year.intPtr(),
		Volume:        m.Volume.ptr(),
		DOI:           m.DOI.ptr(),
		PDFURL:        m.PDFURL.ptr(),
		Supplementary: flexString(m.Supplementary.or(m.SupplementaryAlt)).ptr(),
		StudyLocation: flexString(m.StudyLocation.or(m.StudyLocationAlt)).ptr(),
		Mineral:       m.Mineral.ptr(),
		SampleCount:   m.SampleCount.or(m.SampleCountAlt).intPtr(),
		Laboratory:    m.Laboratory.ptr(),
		AgeMinMa:      m.AgeMin.or(m.AgeMinAlt).floatPtr(),
		AgeMaxMa:      m.AgeMax.or(m.AgeMaxAlt).floatPtr(),
		FullCitation:  flexString(m.FullCitation.or(m.FullCitationAlt)).ptr(),
	}
}

// flexList accepts an array of strings or a single delimited string such as
// "Smith, J.; Jones, K.".
type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []flexString
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		var out []string
		for _, s := range items {
			if v := strings.TrimSpace(string(s)); v != "" {
				out = append(out, v)
			}
		}
		*f = out
		return nil
	}

	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	*f = core.SplitAuthors(string(s))
	return nil
}

// flexString accepts a JSON string, number or boolean; null decodes as "".
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(data)
	}
	return nil
}

func (f flexString) or(alt flexString) string {
	if strings.TrimSpace(string(f)) != "" {
		return string(f)
	}
	return string(alt)
}

func (f flexString) ptr() *string {
	s := strings.TrimSpace(string(f))
	if s == "" {
		return nil
	}
	return &s
}

// flexNumber accepts a JSON number or a numeric string. Anything else, null
// included, decodes as unset.
type flexNumber struct {
	v   float64
	set bool
}

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	var s string
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*f = flexNumber{}
		return nil
	}
	*f = flexNumber{v: v, set: true}
	return nil
}

func (f flexNumber) or(alt flexNumber) flexNumber {
	if f.set {
		return f
	}
	return alt
}

func (f flexNumber) toInt() int {
	if !f.set {
		return 0
	}
	return int(f.v)
}

func (f flexNumber) intPtr() *int {
	if !f.set {
		return nil
	}
	v := int(f.v)
	return &v
}

func (f flexNumber) floatPtr() *float64 {
	if !f.set {
		return nil
	}
	v := f.v
	return &v
}
