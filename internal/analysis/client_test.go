package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/thermoextract/internal/core"
)

// =============================================================================
// Decoding
// =============================================================================

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "plain object",
			input: `{"a":1}`,
			want:  `{"a":1}`,
		},
		{
			name:  "fenced object",
			input: "```json\n{\"a\":1}\n```",
			want:  `{"a":1}`,
		},
		{
			name:  "surrounding prose",
			input: "Here is the result:\n{\"a\":{\"b\":2}}\nLet me know.",
			want:  `{"a":{"b":2}}`,
		},
		{
			name:  "trailing commas",
			input: `{"a":[1,2,],"b":3,}`,
			want:  `{"a":[1,2],"b":3}`,
		},
		{
			name:    "no object",
			input:   "I could not find any tables.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrNoJSON) {
					t.Errorf("ExtractJSON() error = %v, want ErrNoJSON", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ExtractJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeAnalysis(t *testing.T) {
	reply := "```json\n" + `{
  "paper_metadata": {
    "title": " Thermal history of the Gawler Craton ",
    "authors": "Smith, J.; Jones, K.",
    "journal": "Tectonics",
    "year": "2021",
    "doi": "10.1029/2020TC006000",
    "supplementary_data_url": null,
    "sampleCount": 14,
    "age_range_min_ma": "120.5"
  },
  "tables": [
    {"table_number": 1, "caption": "AFT ages", "page_number": "5", "estimated_columns": 8,},
    {"tableNumber": "A1", "caption": "Sample locations", "dataType": "Sample metadata"}
  ],
  "figures": [{"figure_number": 2, "caption": "Map"}]
}` + "\n```"

	got, err := DecodeAnalysis(reply)
	if err != nil {
		t.Fatalf("DecodeAnalysis() error = %v", err)
	}

	m := got.PaperMetadata
	if m.Title == nil || *m.Title != "Thermal history of the Gawler Craton" {
		t.Errorf("Title = %v", m.Title)
	}
	if len(m.Authors) != 2 || m.Authors[1] != "Jones, K." {
		t.Errorf("Authors = %v, want [Smith, J. Jones, K.]", m.Authors)
	}
	if m.Year == nil || *m.Year != 2021 {
		t.Errorf("Year = %v, want 2021", m.Year)
	}
	if m.Supplementary != nil {
		t.Errorf("Supplementary = %v, want nil", *m.Supplementary)
	}
	if m.SampleCount == nil || *m.SampleCount != 14 {
		t.Errorf("SampleCount = %v, want 14", m.SampleCount)
	}
	if m.AgeMinMa == nil || *m.AgeMinMa != 120.5 {
		t.Errorf("AgeMinMa = %v, want 120.5", m.AgeMinMa)
	}

	if got.TablesFound != 2 || len(got.Tables) != 2 {
		t.Fatalf("TablesFound = %d, want 2", got.TablesFound)
	}
	first := got.Tables[0]
	if first.TableNumber != "1" || first.PageNumber != 5 || first.EstimatedColumns != 8 {
		t.Errorf("Tables[0] = %+v", first)
	}
	second := got.Tables[1]
	if second.TableNumber != "A1" || second.DataType != "Sample metadata" {
		t.Errorf("Tables[1] = %+v", second)
	}
	if got.FiguresFound != 1 || got.Figures[0].FigureNumber != "2" {
		t.Errorf("Figures = %+v", got.Figures)
	}
}

func TestDecodeAnalysis_Invalid(t *testing.T) {
	if _, err := DecodeAnalysis(`{"tables": [}`); err == nil {
		t.Error("DecodeAnalysis() error = nil, want decode error")
	}
}

// =============================================================================
// HTTP
// =============================================================================

// fakeService answers /v1/messages with reply and records the last request.
type fakeService struct {
	status int
	reply  string
	delay  time.Duration
	last   messageRequest
	header http.Header
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/messages" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	f.header = r.Header.Clone()
	_ = json.NewDecoder(r.Body).Decode(&f.last)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}
	if f.status != 0 && f.status != http.StatusOK {
		http.Error(w, "upstream overloaded", f.status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"content":     []map[string]string{{"type": "text", "text": f.reply}},
		"stop_reason": "end_turn",
		"usage":       map[string]int{"input_tokens": 10, "output_tokens": 5},
	})
}

func newTestClient(t *testing.T, f *fakeService) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", APIKey: "test-key"})
}

func TestClient_Analyze(t *testing.T) {
	f := &fakeService{reply: `{"paper_metadata": {"title": "T"}, "tables": [{"table_number": 1, "caption": "c"}]}`}
	c := newTestClient(t, f)

	res, err := c.Analyze(context.Background(), core.AnalysisRequest{
		SessionID: "s1",
		Filename:  "paper.pdf",
		Text:      "full text here",
		PageCount: 9,
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.TablesFound != 1 || res.PaperMetadata.Title == nil {
		t.Errorf("Analyze() = %+v", res)
	}

	if f.header.Get("x-api-key") != "test-key" {
		t.Errorf("x-api-key = %q, want test-key", f.header.Get("x-api-key"))
	}
	if f.header.Get("anthropic-version") != DefaultAPIVersion {
		t.Errorf("anthropic-version = %q", f.header.Get("anthropic-version"))
	}
	if f.last.Model != DefaultModel || f.last.MaxTokens != analyzeMaxTokens {
		t.Errorf("request model/max_tokens = %s/%d", f.last.Model, f.last.MaxTokens)
	}
	if len(f.last.Messages) != 1 || !strings.Contains(f.last.Messages[0].Content, "**Pages:** 9") {
		t.Errorf("user message missing page count: %+v", f.last.Messages)
	}
}

func TestClient_Analyze_UnparseableReply(t *testing.T) {
	c := newTestClient(t, &fakeService{reply: "Sorry, I cannot help with that."})

	_, err := c.Analyze(context.Background(), core.AnalysisRequest{Filename: "p.pdf"})
	var ext *core.ExternalServiceError
	if !errors.As(err, &ext) || ext.Op != "analyze" {
		t.Fatalf("Analyze() error = %v, want ExternalServiceError", err)
	}
	if !errors.Is(err, ErrNoJSON) {
		t.Errorf("Analyze() error = %v, want wrapping ErrNoJSON", err)
	}
}

func TestClient_ExtractTable(t *testing.T) {
	f := &fakeService{reply: "```\nSample,Age (Ma)\nA1,45.2\n```"}
	c := newTestClient(t, f)

	csv, err := c.ExtractTable(context.Background(), core.TableExtractionRequest{
		Table:        core.TableInfo{TableNumber: "2", Caption: "AFT ages", EstimatedColumns: 2},
		Text:         "text",
		Attempt:      2,
		PriorFailure: "Expected about 2 columns",
		SchemaHint:   "**Table: earthbank_ftDatapoints**",
	})
	if err != nil {
		t.Fatalf("ExtractTable() error = %v", err)
	}
	if !strings.Contains(csv, "A1,45.2") {
		t.Errorf("ExtractTable() = %q", csv)
	}

	msg := f.last.Messages[0].Content
	for _, want := range []string{"Extract Table 2", "**Attempt 2.**", "Expected about 2 columns", "earthbank_ftDatapoints"} {
		if !strings.Contains(msg, want) {
			t.Errorf("user message missing %q", want)
		}
	}
	if f.last.MaxTokens != DefaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", f.last.MaxTokens, DefaultMaxTokens)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name        string
		svc         *fakeService
		timeout     time.Duration
		wantTimeout bool
	}{
		{
			name: "server error",
			svc:  &fakeService{status: http.StatusInternalServerError},
		},
		{
			name:        "gateway timeout status",
			svc:         &fakeService{status: http.StatusGatewayTimeout},
			wantTimeout: true,
		},
		{
			name:        "context deadline",
			svc:         &fakeService{delay: time.Second},
			timeout:     20 * time.Millisecond,
			wantTimeout: true,
		},
		{
			name: "empty reply",
			svc:  &fakeService{reply: "  "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.svc)

			ctx := context.Background()
			if tt.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.timeout)
				defer cancel()
			}

			_, err := c.ExtractTable(ctx, core.TableExtractionRequest{Table: core.TableInfo{TableNumber: "1"}})
			var ext *core.ExternalServiceError
			if !errors.As(err, &ext) {
				t.Fatalf("ExtractTable() error = %v, want ExternalServiceError", err)
			}
			if ext.Service != "analysis" || ext.Op != "extract_table" {
				t.Errorf("error = %s/%s, want analysis/extract_table", ext.Service, ext.Op)
			}
			if errors.Is(err, core.ErrTimeout) != tt.wantTimeout {
				t.Errorf("errors.Is(err, ErrTimeout) = %v, want %v", !tt.wantTimeout, tt.wantTimeout)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{BaseURL: "http://analysis.test/"})
	if c.baseURL != "http://analysis.test" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if c.model != DefaultModel || c.apiVersion != DefaultAPIVersion || c.maxTokens != DefaultMaxTokens {
		t.Errorf("defaults = %s/%s/%d", c.model, c.apiVersion, c.maxTokens)
	}
}
