// Package store implements core.Store on PostgreSQL.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/thermoextract/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Postgres is a core.Store backed by a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// New returns a store over pool.
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates missing tables and indexes.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return &core.PersistenceError{Op: "migrate", Err: err}
	}
	return nil
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// ----------------------------------------------------------------------------
// Sessions
// ----------------------------------------------------------------------------

const sessionColumns = `id, session_id, pdf_filename, pdf_path, pdf_size_bytes, page_count,
	state, current_step, paper_metadata, tables_found, tables, data_types,
	csvs_extracted, extraction_quality_score, failed_tables, dataset_id, fair_score,
	records_imported, error_message, error_stage, version, created_at, updated_at, completed_at`

// sessionMatch matches a session by its ID or its handle.
const sessionMatch = `(id = $1 OR session_id = $1)`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*core.ExtractionSession, error) {
	var (
		s            core.ExtractionSession
		state        string
		metadata     []byte
		tables       []byte
		quality      pgtype.Float8
		datasetID    pgtype.Text
		fairScore    pgtype.Int4
		errorMessage pgtype.Text
		errorStage   pgtype.Text
		completedAt  pgtype.Timestamptz
	)

	err := row.Scan(
		&s.ID, &s.SessionID, &s.PDFFilename, &s.PDFPath, &s.PDFSizeBytes, &s.PageCount,
		&state, &s.CurrentStep, &metadata, &s.TablesFound, &tables, &s.DataTypes,
		&s.CSVsExtracted, &quality, &s.FailedTables, &datasetID, &fairScore,
		&s.RecordsImported, &errorMessage, &errorStage, &s.Version,
		&s.CreatedAt, &s.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	s.State = core.State(state)
	if len(metadata) > 0 && string(metadata) != "null" {
		var m core.PaperMetadata
		if err := json.Unmarshal(metadata, &m); err != nil {
			return nil, fmt.Errorf("decode paper_metadata: %w", err)
		}
		s.PaperMetadata = &m
	}
	if len(tables) > 0 {
		if err := json.Unmarshal(tables, &s.Tables); err != nil {
			return nil, fmt.Errorf("decode tables: %w", err)
		}
	}
	if quality.Valid {
		s.ExtractionQualityScore = &quality.Float64
	}
	if datasetID.Valid {
		s.DatasetID = &datasetID.String
	}
	if fairScore.Valid {
		v := int(fairScore.Int32)
		s.FairScore = &v
	}
	if errorMessage.Valid {
		s.ErrorMessage = errorMessage.String
	}
	if errorStage.Valid {
		s.ErrorStage = core.Stage(errorStage.String)
	}
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}
	return &s, nil
}

func (p *Postgres) CreateSession(ctx context.Context, s *core.ExtractionSession) error {
	tables, err := json.Marshal(nonNilTables(s.Tables))
	if err != nil {
		return fmt.Errorf("encode tables: %w", err)
	}

	row := p.pool.QueryRow(ctx, `
		INSERT INTO extraction_sessions
			(id, session_id, pdf_filename, pdf_path, pdf_size_bytes, page_count,
			 state, current_step, tables, data_types, failed_tables)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+sessionColumns,
		s.ID, s.SessionID, s.PDFFilename, s.PDFPath, s.PDFSizeBytes, s.PageCount,
		string(s.State), s.CurrentStep, tables, nonNil(s.DataTypes), nonNil(s.FailedTables),
	)
	created, err := scanSession(row)
	if err != nil {
		return &core.PersistenceError{Op: "create session", Err: err}
	}
	*s = *created
	return nil
}

func (p *Postgres) GetSession(ctx context.Context, id string) (*core.ExtractionSession, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM extraction_sessions WHERE `+sessionMatch, id)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, &core.PersistenceError{Op: "get session", Err: err}
	}
	return s, nil
}

func (p *Postgres) ListSessions(ctx context.Context, state core.State, limit int) ([]*core.ExtractionSession, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM extraction_sessions
		WHERE ($1 = '' OR state = $1)
		ORDER BY created_at DESC, id
		LIMIT NULLIF($2::int, 0)`,
		string(state), limit,
	)
	if err != nil {
		return nil, &core.PersistenceError{Op: "list sessions", Err: err}
	}
	return collectSessions(rows, "list sessions")
}

func collectSessions(rows pgx.Rows, op string) ([]*core.ExtractionSession, error) {
	defer rows.Close()

	out := []*core.ExtractionSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, &core.PersistenceError{Op: op, Err: err}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: op, Err: err}
	}
	return out, nil
}

func (p *Postgres) CountByState(ctx context.Context) (map[core.State]int, error) {
	rows, err := p.pool.Query(ctx, `SELECT state, COUNT(*) FROM extraction_sessions GROUP BY state`)
	if err != nil {
		return nil, &core.PersistenceError{Op: "count sessions", Err: err}
	}
	defer rows.Close()

	counts := make(map[core.State]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, &core.PersistenceError{Op: "count sessions", Err: err}
		}
		counts[core.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "count sessions", Err: err}
	}
	return counts, nil
}

func (p *Postgres) CompareAndSwapState(ctx context.Context, id string, expected, next core.State) (*core.ExtractionSession, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE extraction_sessions
		SET state = $3, version = version + 1, updated_at = now()
		WHERE `+sessionMatch+` AND state = $2
		RETURNING `+sessionColumns,
		id, string(expected), string(next),
	)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, p.missOrConflict(ctx, id, fmt.Sprintf("not %s", expected))
	}
	if err != nil {
		return nil, &core.PersistenceError{Op: "compare and swap state", Err: err}
	}
	return s, nil
}

// missOrConflict explains a conditional update that matched no row.
func (p *Postgres) missOrConflict(ctx context.Context, id, want string) error {
	cur, err := p.GetSession(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("session %s is %s, %s: %w", id, cur.State, want, core.ErrConflict)
}

func (p *Postgres) CompleteStage(ctx context.Context, id string, stage core.Stage, next core.State, step int, res core.CompletionResult) (*core.ExtractionSession, error) {
	var (
		set  string
		args = []any{id, string(core.RunningState(stage)), string(next), step}
	)

	switch stage {
	case core.StageAnalyze:
		metadata, err := json.Marshal(res.PaperMetadata)
		if err != nil {
			return nil, fmt.Errorf("encode paper metadata: %w", err)
		}
		tables, err := json.Marshal(nonNilTables(res.Tables))
		if err != nil {
			return nil, fmt.Errorf("encode tables: %w", err)
		}
		set = `paper_metadata = $5, tables_found = $6, tables = $7, data_types = $8,
			page_count = CASE WHEN $9::int > 0 THEN $9::int ELSE page_count END`
		args = append(args, metadata, res.TablesFound, tables, nonNil(res.DataTypes), res.PageCount)
	case core.StageExtract:
		set = `csvs_extracted = csvs_extracted + $5, records_imported = records_imported + $6,
			failed_tables = $7, extraction_quality_score = $8`
		args = append(args, res.CSVsAdded, res.RecordsAdded, nonNil(res.FailedTables), res.QualityScore)
	case core.StageLoad:
		set = `dataset_id = COALESCE(NULLIF($5, ''), dataset_id), fair_score = $6`
		args = append(args, res.DatasetID, res.FairScore)
	default:
		return nil, fmt.Errorf("complete stage: unknown stage %q", stage)
	}

	row := p.pool.QueryRow(ctx, `
		UPDATE extraction_sessions
		SET `+set+`,
			state = $3, current_step = $4, error_message = NULL, error_stage = NULL,
			completed_at = CASE WHEN $3 = 'loaded' THEN now() ELSE completed_at END,
			version = version + 1, updated_at = now()
		WHERE `+sessionMatch+` AND state = $2
		RETURNING `+sessionColumns,
		args...,
	)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, p.missOrConflict(ctx, id, fmt.Sprintf("cannot complete %s", stage))
	}
	if err != nil {
		return nil, &core.PersistenceError{Op: "complete stage", Err: err}
	}
	return s, nil
}

func (p *Postgres) FailStage(ctx context.Context, id string, stage core.Stage, message string) (*core.ExtractionSession, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE extraction_sessions
		SET state = 'failed', error_stage = $2, error_message = $3,
			version = version + 1, updated_at = now()
		WHERE `+sessionMatch+` AND state = $4
		RETURNING `+sessionColumns,
		id, string(stage), message, string(core.RunningState(stage)),
	)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		cur, gerr := p.GetSession(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		if _, terr := core.Transition(cur.State, core.EventFail); terr != nil {
			return nil, terr
		}
		return nil, fmt.Errorf("session %s is %s, fail needs %s: %w", id, cur.State, core.RunningState(stage), core.ErrConflict)
	}
	if err != nil {
		return nil, &core.PersistenceError{Op: "fail stage", Err: err}
	}
	return s, nil
}

func (p *Postgres) TouchStage(ctx context.Context, id string, stage core.Stage) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE extraction_sessions SET updated_at = now()
		WHERE `+sessionMatch+` AND state = $2`,
		id, string(core.RunningState(stage)),
	)
	if err != nil {
		return &core.PersistenceError{Op: "touch stage", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return p.missOrConflict(ctx, id, "touch needs "+string(core.RunningState(stage)))
	}
	return nil
}

func (p *Postgres) ResetSession(ctx context.Context, id string, target core.State, step int) (*core.ExtractionSession, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE extraction_sessions
		SET state = $2, current_step = $3, error_message = NULL, error_stage = NULL,
			version = version + 1, updated_at = now()
		WHERE `+sessionMatch+` AND state = 'failed'
		RETURNING `+sessionColumns,
		id, string(target), step,
	)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, p.missOrConflict(ctx, id, "reset needs failed")
	}
	if err != nil {
		return nil, &core.PersistenceError{Op: "reset session", Err: err}
	}
	return s, nil
}

func (p *Postgres) StuckSessions(ctx context.Context, before time.Time) ([]*core.ExtractionSession, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM extraction_sessions
		WHERE state IN ('analyzing', 'extracting', 'loading') AND updated_at < $1
		ORDER BY updated_at`,
		before,
	)
	if err != nil {
		return nil, &core.PersistenceError{Op: "stuck sessions", Err: err}
	}
	return collectSessions(rows, "stuck sessions")
}

// ----------------------------------------------------------------------------
// Load
// ----------------------------------------------------------------------------

// CommitLoad writes the dataset, its files and assessment, and completes the
// session in one transaction. The session row is locked first so a concurrent
// fail or reset cannot interleave.
func (p *Postgres) CommitLoad(ctx context.Context, sessionID string, c core.LoadCommit) (*core.ExtractionSession, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, &core.PersistenceError{Op: "begin load", Err: err}
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var (
		realID string
		state  string
	)
	err = tx.QueryRow(ctx,
		`SELECT id, state FROM extraction_sessions WHERE `+sessionMatch+` FOR UPDATE`,
		sessionID,
	).Scan(&realID, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	if err != nil {
		return nil, &core.PersistenceError{Op: "lock session", Err: err}
	}
	if core.State(state) != core.StateLoading {
		return nil, fmt.Errorf("commit load: session %s is %s: %w", sessionID, state, core.ErrConflict)
	}

	if c.ReuseExisting {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM datasets WHERE id = $1)`, c.Dataset.ID).Scan(&exists); err != nil {
			return nil, &core.PersistenceError{Op: "find dataset", Err: err}
		}
		if !exists {
			return nil, fmt.Errorf("dataset %s: %w", c.Dataset.ID, core.ErrNotFound)
		}
	} else if err := insertDataset(ctx, tx, realID, c); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE extraction_sessions
		SET dataset_id = $2, fair_score = $3,
			records_imported = CASE WHEN $4::int > 0 THEN $4::int ELSE records_imported END,
			state = 'loaded', current_step = $5, error_message = NULL, error_stage = NULL,
			completed_at = now(), version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING `+sessionColumns,
		realID, c.Dataset.ID, c.Assessment.TotalScore, c.RecordsImported, core.StepComplete,
	)
	s, err := scanSession(row)
	if err != nil {
		return nil, &core.PersistenceError{Op: "complete load", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &core.PersistenceError{Op: "commit load", Err: err}
	}
	return s, nil
}

func insertDataset(ctx context.Context, tx pgx.Tx, sessionID string, c core.LoadCommit) error {
	d := c.Dataset
	var metadata []byte
	if d.PaperMetadata != nil {
		var err error
		if metadata, err = json.Marshal(d.PaperMetadata); err != nil {
			return fmt.Errorf("encode paper metadata: %w", err)
		}
	}
	if d.SessionID == "" {
		d.SessionID = sessionID
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO datasets (id, name, doi, full_citation, paper_metadata, session_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.Name, d.DOI, d.FullCitation, metadata, d.SessionID,
	)
	if isUniqueViolation(err, "datasets_doi_key") {
		return fmt.Errorf("doi %s: %w", deref(d.DOI), core.ErrDuplicateDOI)
	}
	if err != nil {
		return &core.PersistenceError{Op: "insert dataset", Err: err}
	}

	rows := make([][]any, len(c.Files))
	for i, f := range c.Files {
		var rowCount *int32
		if f.RowCount != nil {
			v := int32(*f.RowCount)
			rowCount = &v
		}
		rows[i] = []any{d.ID, int32(i), string(f.Type), f.Name, f.Path, f.SizeBytes, rowCount, f.Description}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"data_files"},
		[]string{"dataset_id", "position", "file_type", "name", "path", "size_bytes", "row_count", "description"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return &core.PersistenceError{Op: "insert data files", Err: err}
	}

	a := c.Assessment
	a.DatasetID = d.ID
	assessment, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO fair_assessments (dataset_id, total_score, grade, assessment, assessed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		d.ID, a.TotalScore, a.Grade, assessment, a.AssessedAt,
	); err != nil {
		return &core.PersistenceError{Op: "insert fair assessment", Err: err}
	}
	return nil
}

// isUniqueViolation reports whether err is a unique violation (SQLSTATE
// 23505), optionally on the named constraint or index.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// ----------------------------------------------------------------------------
// Datasets
// ----------------------------------------------------------------------------

const datasetColumns = `id, name, doi, full_citation, paper_metadata, session_id, created_at`

func scanDataset(row scanner) (*core.Dataset, error) {
	var (
		d        core.Dataset
		doi      pgtype.Text
		citation pgtype.Text
		metadata []byte
	)
	if err := row.Scan(&d.ID, &d.Name, &doi, &citation, &metadata, &d.SessionID, &d.CreatedAt); err != nil {
		return nil, err
	}
	if doi.Valid {
		d.DOI = &doi.String
	}
	if citation.Valid {
		d.FullCitation = &citation.String
	}
	if len(metadata) > 0 && string(metadata) != "null" {
		var m core.PaperMetadata
		if err := json.Unmarshal(metadata, &m); err != nil {
			return nil, fmt.Errorf("decode paper_metadata: %w", err)
		}
		d.PaperMetadata = &m
	}
	return &d, nil
}

func (p *Postgres) GetDataset(ctx context.Context, id string) (*core.Dataset, error) {
	d, err := scanDataset(p.pool.QueryRow(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("dataset %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, &core.PersistenceError{Op: "get dataset", Err: err}
	}
	return d, nil
}

func (p *Postgres) FindDatasetByDOI(ctx context.Context, doi string) (*core.Dataset, error) {
	d, err := scanDataset(p.pool.QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE lower(doi) = lower($1)`,
		strings.TrimSpace(doi),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("dataset with doi %s: %w", doi, core.ErrNotFound)
	}
	if err != nil {
		return nil, &core.PersistenceError{Op: "find dataset by doi", Err: err}
	}
	return d, nil
}

func (p *Postgres) ListDatasetFiles(ctx context.Context, datasetID string) ([]core.UploadedFile, error) {
	if _, err := p.GetDataset(ctx, datasetID); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT file_type, name, path, size_bytes, row_count, description
		FROM data_files WHERE dataset_id = $1 ORDER BY position`,
		datasetID,
	)
	if err != nil {
		return nil, &core.PersistenceError{Op: "list data files", Err: err}
	}
	defer rows.Close()

	files := []core.UploadedFile{}
	for rows.Next() {
		var (
			f        core.UploadedFile
			fileType string
			rowCount pgtype.Int4
		)
		if err := rows.Scan(&fileType, &f.Name, &f.Path, &f.SizeBytes, &rowCount, &f.Description); err != nil {
			return nil, &core.PersistenceError{Op: "list data files", Err: err}
		}
		f.Type = core.FileType(fileType)
		if rowCount.Valid {
			v := int(rowCount.Int32)
			f.RowCount = &v
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "list data files", Err: err}
	}
	return files, nil
}

func (p *Postgres) GetAssessment(ctx context.Context, datasetID string) (*core.FairAssessment, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT assessment FROM fair_assessments WHERE dataset_id = $1`, datasetID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("assessment for dataset %s: %w", datasetID, core.ErrNotFound)
	}
	if err != nil {
		return nil, &core.PersistenceError{Op: "get assessment", Err: err}
	}

	var a core.FairAssessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, &core.PersistenceError{Op: "decode assessment", Err: err}
	}
	return &a, nil
}

// ----------------------------------------------------------------------------
// Audit
// ----------------------------------------------------------------------------

func (p *Postgres) AppendAudit(ctx context.Context, e core.AuditEntry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO audit_log
			(id, session_id, action, severity, stage, from_state, to_state,
			 detail, actor, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.SessionID, string(e.Action), string(e.Severity),
		nullText(string(e.Stage)), nullText(string(e.FromState)), nullText(string(e.ToState)),
		nullText(e.Detail), nullText(e.Actor), nullText(e.IPAddress), nullText(e.UserAgent),
		e.CreatedAt,
	)
	if err != nil {
		return &core.PersistenceError{Op: "append audit", Err: err}
	}
	return nil
}

func (p *Postgres) ListAudit(ctx context.Context, sessionID string) ([]core.AuditEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, action, severity, stage, from_state, to_state,
			detail, actor, ip_address, user_agent, created_at
		FROM audit_log WHERE session_id = $1
		ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, &core.PersistenceError{Op: "list audit", Err: err}
	}
	defer rows.Close()

	entries := []core.AuditEntry{}
	for rows.Next() {
		var (
			e                                   core.AuditEntry
			action, severity                    string
			stage, from, to                     pgtype.Text
			detail, actor, ipAddress, userAgent pgtype.Text
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &action, &severity, &stage, &from, &to,
			&detail, &actor, &ipAddress, &userAgent, &e.CreatedAt); err != nil {
			return nil, &core.PersistenceError{Op: "list audit", Err: err}
		}
		e.Action = core.AuditAction(action)
		e.Severity = core.AuditSeverity(severity)
		e.Stage = core.Stage(stage.String)
		e.FromState = core.State(from.String)
		e.ToState = core.State(to.String)
		e.Detail = detail.String
		e.Actor = actor.String
		e.IPAddress = ipAddress.String
		e.UserAgent = userAgent.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "list audit", Err: err}
	}
	return entries, nil
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilTables(t []core.TableInfo) []core.TableInfo {
	if t == nil {
		return []core.TableInfo{}
	}
	return t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ core.Store = (*Postgres)(nil)
