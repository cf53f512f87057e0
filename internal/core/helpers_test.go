package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// =============================================================================
// Fixture mappings
// =============================================================================

func fptr(v float64) *float64 { return &v }

// useFixtureMappings replaces the registry with a small sample and FT schema
// for the duration of the test.
func useFixtureMappings(t *testing.T) {
	t.Helper()
	Clear()
	t.Cleanup(Clear)

	Register(TableMapping{
		Key:         MappingSamples,
		Label:       "Samples",
		Description: "Sample metadata",
		Tags:        []string{"Sample metadata"},
		Fields: []FieldMapping{
			{Name: "sampleID", Type: FieldString, Required: true, Aliases: []string{"Sample", "Sample ID"}},
			{Name: "latitude", Type: FieldNumber, Aliases: []string{"Lat"}, Rule: &Rule{Min: fptr(-90), Max: fptr(90)}},
			{Name: "longitude", Type: FieldNumber, Aliases: []string{"Long", "Lon"}, Rule: &Rule{Min: fptr(-180), Max: fptr(180)}},
		},
	})
	Register(TableMapping{
		Key:         MappingFTDatapoints,
		Label:       "FT Datapoints",
		Description: "Fission-track ages",
		Tags:        []string{"AFT ages"},
		Fields: []FieldMapping{
			{Name: "datapointName", Type: FieldString, Required: true, Aliases: []string{"Datapoint"}},
			{Name: "sampleID", Type: FieldString, Required: true, Aliases: []string{"Sample"}},
			{Name: "centralAgeMa", Type: FieldNumber, Aliases: []string{"Age (Ma)", "Central Age"}, Rule: &Rule{Min: fptr(0), Max: fptr(4500)}},
			{Name: "numGrains", Type: FieldInteger, Aliases: []string{"N"}, Rule: &Rule{Min: fptr(1), Max: fptr(1000)}},
		},
	})
}

// =============================================================================
// Fakes
// =============================================================================

type fakePDF struct {
	info *PDFInfo
	err  error
}

func (f *fakePDF) Inspect(_ context.Context, data []byte) (*PDFInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.info != nil {
		return f.info, nil
	}
	return &PDFInfo{PageCount: 12, Text: "Thermochronology of the Malawi rift."}, nil
}

// fakeAnalyzer returns a fixed analysis and per-table CSV responses.
// tables maps a table number to the responses of successive attempts; the
// last response repeats.
type fakeAnalyzer struct {
	mu         sync.Mutex
	result     *AnalysisResult
	analyzeErr error
	tables     map[string][]string
	tableErr   map[string]error
	calls      map[string]int
	requests   []TableExtractionRequest

	// onExtract runs at the start of every ExtractTable call.
	onExtract func(table string)
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ AnalysisRequest) (*AnalysisResult, error) {
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	r := *f.result
	return &r, nil
}

func (f *fakeAnalyzer) ExtractTable(_ context.Context, req TableExtractionRequest) (string, error) {
	if f.onExtract != nil {
		f.onExtract(req.Table.TableNumber)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[req.Table.TableNumber]++
	f.requests = append(f.requests, req)

	if err := f.tableErr[req.Table.TableNumber]; err != nil {
		return "", err
	}
	responses := f.tables[req.Table.TableNumber]
	if len(responses) == 0 {
		return "", fmt.Errorf("no response for table %s", req.Table.TableNumber)
	}
	i := min(req.Attempt, len(responses)) - 1
	return responses[i], nil
}

func (f *fakeAnalyzer) callCount(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[table]
}

// Sample analysis used across the service tests.
const (
	samplesCSV = "Sample,Lat,Long\nS1,45.2,10.1\nS2,46.0,11.3\nS3,-12.5,34.0"
	ftCSV      = "Datapoint,Sample,Age (Ma),N\nD1,S1,45.3,20\nD2,S2,52.1,25"
	sparseCSV  = "Datapoint,Sample,Age (Ma),N\nD1,,,\nD2,,,"
)

func sampleAnalysis() *AnalysisResult {
	return &AnalysisResult{
		PaperMetadata: PaperMetadata{
			Title:         ptr("4D fault evolution revealed by footwall exhumation modelling"),
			Authors:       []string{"McMillan, M.", "Boone, S.C."},
			Journal:       ptr("Journal of Structural Geology"),
			Year:          ptr(2024),
			DOI:           ptr("10.1016/j.jsg.2024.105196"),
			StudyLocation: ptr("Malawi rift"),
			Laboratory:    ptr("University of Melbourne"),
			Mineral:       ptr("Apatite"),
		},
		TablesFound: 2,
		Tables: []TableInfo{
			{TableNumber: "Table 1", Caption: "Sample locations", PageNumber: 4, DataType: "Sample metadata", EstimatedColumns: 3},
			{TableNumber: "2", Caption: "AFT results", PageNumber: 6, DataType: "AFT ages", EstimatedColumns: 4},
		},
	}
}

// =============================================================================
// Service harness
// =============================================================================

type testHarness struct {
	svc      *Service
	store    *MemoryStore
	objects  *MemoryObjectStore
	analyzer *fakeAnalyzer
	pdf      *fakePDF
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	useFixtureMappings(t)

	h := &testHarness{
		store:   NewMemoryStore(),
		objects: NewMemoryObjectStore("https://files.example.org"),
		analyzer: &fakeAnalyzer{
			result: sampleAnalysis(),
			tables: map[string][]string{"1": {samplesCSV}, "2": {ftCSV}},
		},
		pdf: &fakePDF{},
	}

	retry := instantRetries(DefaultRetryPolicy)

	svc, err := NewService(Deps{
		Store:    h.store,
		Objects:  h.objects,
		Analyzer: h.analyzer,
		PDF:      h.pdf,
	}, ServiceConfig{Retry: retry, MaxPDFBytes: 1 << 20})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	h.svc = svc
	return h
}

// serviceWith builds a second service over the harness collaborators, with
// store and objects replaced when non-nil.
func (h *testHarness) serviceWith(t *testing.T, store Store, objects ObjectStore, cfg ServiceConfig) *Service {
	t.Helper()
	if store == nil {
		store = h.store
	}
	if objects == nil {
		objects = h.objects
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = instantRetries(DefaultRetryPolicy)
	}
	svc, err := NewService(Deps{Store: store, Objects: objects, Analyzer: h.analyzer, PDF: h.pdf}, cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func pdfBytes() []byte {
	return []byte("%PDF-1.7\n1 0 obj << /Type /Catalog >> endobj\n%%EOF\n")
}

// upload creates a session in the uploaded state.
func (h *testHarness) upload(t *testing.T) *ExtractionSession {
	t.Helper()
	sess, err := h.svc.CreateSession(context.Background(), "mcmillan_2024.pdf", strings.NewReader(string(pdfBytes())))
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return sess
}

// analyzed creates a session and runs the analyze stage.
func (h *testHarness) analyzed(t *testing.T) *ExtractionSession {
	t.Helper()
	sess := h.upload(t)
	res, err := h.svc.Analyze(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	return res.Session
}

// extracted creates a session and runs analyze and extract.
func (h *testHarness) extracted(t *testing.T) *ExtractionSession {
	t.Helper()
	sess := h.analyzed(t)
	batch, err := h.svc.ExtractTables(context.Background(), sess.ID, nil)
	if err != nil {
		t.Fatalf("ExtractTables() error = %v", err)
	}
	return batch.Session
}

// stagingKeys returns every object left under the staging root.
func (h *testHarness) stagingKeys(t *testing.T) []string {
	t.Helper()
	objs, err := h.objects.List(context.Background(), StagingRoot)
	if err != nil {
		t.Fatalf("List(staging) error = %v", err)
	}
	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key
	}
	return keys
}

func (h *testHarness) auditActions(t *testing.T, sessionID string) []AuditAction {
	t.Helper()
	entries, err := h.svc.AuditTrail(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("AuditTrail() error = %v", err)
	}
	out := make([]AuditAction, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func containsAction(actions []AuditAction, want AuditAction) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}

var errBoom = errors.New("boom")
