package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/thermoextract/internal/core"
)

// =============================================================================
// Helpers
// =============================================================================

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("duplicate key"),
			want: false,
		},
		{
			name: "unique violation any constraint",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "datasets_pkey"},
			want: true,
		},
		{
			name:       "unique violation on named index",
			err:        fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "datasets_doi_key"}),
			constraint: "datasets_doi_key",
			want:       true,
		},
		{
			name:       "unique violation on other index",
			err:        &pgconn.PgError{Code: "23505", ConstraintName: "datasets_pkey"},
			constraint: "datasets_doi_key",
			want:       false,
		},
		{
			name: "foreign key violation",
			err:  &pgconn.PgError{Code: "23503"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNullText(t *testing.T) {
	if got := nullText(""); got.Valid {
		t.Errorf("nullText(\"\").Valid = true, want false")
	}
	if got := nullText("x"); !got.Valid || got.String != "x" {
		t.Errorf("nullText(\"x\") = %+v, want valid x", got)
	}
}

func TestNonNil(t *testing.T) {
	if got := nonNil(nil); got == nil || len(got) != 0 {
		t.Errorf("nonNil(nil) = %#v, want empty slice", got)
	}
	if got := nonNilTables(nil); got == nil || len(got) != 0 {
		t.Errorf("nonNilTables(nil) = %#v, want empty slice", got)
	}
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"extraction_sessions", "datasets", "data_files", "fair_assessments", "audit_log", "datasets_doi_key"} {
		if !strings.Contains(schemaSQL, table) {
			t.Errorf("schema missing %s", table)
		}
	}
}

// =============================================================================
// Integration
// =============================================================================

// openTestStore connects to TEST_DATABASE_URL or skips.
func openTestStore(t *testing.T) *Postgres {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := Connect(ctx, PoolConfig{URL: url, MaxConns: 4})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(pool.Close)

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return s
}

func newSession(t *testing.T, s *Postgres) *core.ExtractionSession {
	t.Helper()

	id := uuid.NewString()
	sess := &core.ExtractionSession{
		ID:          id,
		SessionID:   "sess-" + id[:8],
		PDFFilename: "paper.pdf",
		PDFPath:     "sessions/" + id + "/original.pdf",
		State:       core.StateUploaded,
		CurrentStep: core.StepUploaded,
	}
	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return sess
}

func TestPostgres_SessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := newSession(t, s)

	got, err := s.GetSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("GetSession(handle) error = %v", err)
	}
	if got.ID != sess.ID || got.Version != 1 {
		t.Errorf("GetSession() = %s v%d, want %s v1", got.ID, got.Version, sess.ID)
	}

	if _, err := s.CompareAndSwapState(ctx, sess.ID, core.StateAnalyzed, core.StateExtracting); !errors.Is(err, core.ErrConflict) {
		t.Errorf("CompareAndSwapState(stale) error = %v, want ErrConflict", err)
	}

	if _, err := s.CompareAndSwapState(ctx, sess.ID, core.StateUploaded, core.StateAnalyzing); err != nil {
		t.Fatalf("CompareAndSwapState() error = %v", err)
	}

	title := "Exhumation of the Rio Grande rift"
	done, err := s.CompleteStage(ctx, sess.ID, core.StageAnalyze, core.StateAnalyzed, core.StepAnalyzed, core.CompletionResult{
		PaperMetadata: &core.PaperMetadata{Title: &title},
		TablesFound:   2,
		Tables:        []core.TableInfo{{TableNumber: "1", Caption: "AFT ages"}},
		DataTypes:     []string{"AFT ages"},
		PageCount:     12,
	})
	if err != nil {
		t.Fatalf("CompleteStage() error = %v", err)
	}
	if done.State != core.StateAnalyzed || done.TablesFound != 2 || done.PageCount != 12 {
		t.Errorf("CompleteStage() = %s tables=%d pages=%d", done.State, done.TablesFound, done.PageCount)
	}
	if done.PaperMetadata == nil || *done.PaperMetadata.Title != title {
		t.Errorf("PaperMetadata.Title not persisted")
	}

	if _, err := s.FailStage(ctx, sess.ID, core.StageAnalyze, "late"); !errors.Is(err, core.ErrConflict) {
		t.Errorf("FailStage(completed stage) error = %v, want ErrConflict", err)
	}

	if _, err := s.CompareAndSwapState(ctx, sess.ID, core.StateAnalyzed, core.StateExtracting); err != nil {
		t.Fatalf("CompareAndSwapState() error = %v", err)
	}
	if err := s.TouchStage(ctx, sess.ID, core.StageExtract); err != nil {
		t.Errorf("TouchStage() error = %v", err)
	}
	if err := s.TouchStage(ctx, sess.ID, core.StageLoad); !errors.Is(err, core.ErrConflict) {
		t.Errorf("TouchStage(other stage) error = %v, want ErrConflict", err)
	}
	failed, err := s.FailStage(ctx, sess.ID, core.StageExtract, "boom")
	if err != nil {
		t.Fatalf("FailStage() error = %v", err)
	}
	if failed.State != core.StateFailed || failed.ErrorStage != core.StageExtract {
		t.Errorf("FailStage() = %s/%s, want failed/extract", failed.State, failed.ErrorStage)
	}
	if _, err := s.FailStage(ctx, sess.ID, core.StageExtract, "again"); !core.IsInvalidTransition(err) {
		t.Errorf("FailStage(failed) error = %v, want invalid transition", err)
	}

	reset, err := s.ResetSession(ctx, sess.ID, core.StateAnalyzed, core.StepAnalyzed)
	if err != nil {
		t.Fatalf("ResetSession() error = %v", err)
	}
	if reset.State != core.StateAnalyzed || reset.ErrorMessage != "" {
		t.Errorf("ResetSession() = %s %q", reset.State, reset.ErrorMessage)
	}
	if _, err := s.ResetSession(ctx, sess.ID, core.StateAnalyzed, core.StepAnalyzed); !errors.Is(err, core.ErrConflict) {
		t.Errorf("ResetSession(not failed) error = %v, want ErrConflict", err)
	}

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetSession(missing) error = %v, want ErrNotFound", err)
	}
}

func TestPostgres_CommitLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	load := func(sess *core.ExtractionSession) {
		t.Helper()
		for _, step := range [][2]core.State{
			{core.StateUploaded, core.StateAnalyzing},
			{core.StateAnalyzing, core.StateAnalyzed},
			{core.StateAnalyzed, core.StateLoading},
		} {
			if _, err := s.CompareAndSwapState(ctx, sess.ID, step[0], step[1]); err != nil {
				t.Fatalf("CompareAndSwapState(%s->%s) error = %v", step[0], step[1], err)
			}
		}
	}

	doi := "10.1000/" + uuid.NewString()
	rows := 3
	first := newSession(t, s)
	load(first)

	commit := core.LoadCommit{
		Dataset: core.Dataset{ID: uuid.NewString(), Name: "Test dataset", DOI: &doi, SessionID: first.ID},
		Files: []core.UploadedFile{
			{Type: core.FileTypePDF, Name: "paper.pdf", Path: "datasets/x/paper.pdf", SizeBytes: 10},
			{Type: core.FileTypeCSV, Name: "table_1.csv", Path: "datasets/x/table_1.csv", SizeBytes: 20, RowCount: &rows},
		},
		Assessment:      core.FairAssessment{TotalScore: 88, Grade: "B", AssessedAt: time.Now().UTC()},
		RecordsImported: rows,
	}
	loaded, err := s.CommitLoad(ctx, first.SessionID, commit)
	if err != nil {
		t.Fatalf("CommitLoad() error = %v", err)
	}
	if loaded.State != core.StateLoaded || loaded.CompletedAt == nil || *loaded.FairScore != 88 {
		t.Errorf("CommitLoad() = %s completed=%v", loaded.State, loaded.CompletedAt)
	}

	files, err := s.ListDatasetFiles(ctx, commit.Dataset.ID)
	if err != nil {
		t.Fatalf("ListDatasetFiles() error = %v", err)
	}
	if len(files) != 2 || files[1].RowCount == nil || *files[1].RowCount != 3 {
		t.Errorf("ListDatasetFiles() = %+v", files)
	}

	a, err := s.GetAssessment(ctx, commit.Dataset.ID)
	if err != nil {
		t.Fatalf("GetAssessment() error = %v", err)
	}
	if a.DatasetID != commit.Dataset.ID || a.Grade != "B" {
		t.Errorf("GetAssessment() = %+v", a)
	}

	found, err := s.FindDatasetByDOI(ctx, strings.ToUpper(doi))
	if err != nil || found.ID != commit.Dataset.ID {
		t.Errorf("FindDatasetByDOI() = %v, %v", found, err)
	}

	second := newSession(t, s)
	load(second)
	dup := commit
	dup.Dataset.ID = uuid.NewString()
	if _, err := s.CommitLoad(ctx, second.ID, dup); !errors.Is(err, core.ErrDuplicateDOI) {
		t.Errorf("CommitLoad(duplicate doi) error = %v, want ErrDuplicateDOI", err)
	}

	reuse := commit
	reuse.ReuseExisting = true
	if _, err := s.CommitLoad(ctx, second.ID, reuse); err != nil {
		t.Errorf("CommitLoad(reuse) error = %v", err)
	}
	if _, err := s.CommitLoad(ctx, second.ID, reuse); !errors.Is(err, core.ErrConflict) {
		t.Errorf("CommitLoad(loaded) error = %v, want ErrConflict", err)
	}
}

func TestPostgres_Audit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := newSession(t, s)

	now := time.Now().UTC()
	for i, action := range []core.AuditAction{core.ActionSessionCreate, core.ActionStageFail} {
		e := core.AuditEntry{
			ID:        uuid.NewString(),
			SessionID: sess.ID,
			Action:    action,
			Severity:  core.SeverityMedium,
			Stage:     core.StageAnalyze,
			Detail:    "entry",
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendAudit(ctx, e); err != nil {
			t.Fatalf("AppendAudit() error = %v", err)
		}
	}

	entries, err := s.ListAudit(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListAudit() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Action != core.ActionSessionCreate {
		t.Errorf("ListAudit() = %+v", entries)
	}
	if entries[0].FromState != "" || entries[0].Stage != core.StageAnalyze {
		t.Errorf("ListAudit()[0] nullable fields = %q/%q", entries[0].FromState, entries[0].Stage)
	}
}
