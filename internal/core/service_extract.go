package core

import (
	"context"
	"fmt"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ExtractResult is the outcome of extracting one table.
type ExtractResult struct {
	TableNumber string           `json:"tableNumber"`
	Mapping     string           `json:"mapping,omitempty"`
	Headers     []string         `json:"headers,omitempty"`
	Rows        []ParsedRow      `json:"rows,omitempty"`
	Stats       CSVStats         `json:"stats"`
	Validation  ValidationResult `json:"validation"`
	CSVPath     string           `json:"csvPath,omitempty"`
	Attempts    int              `json:"attempts"`

	// Failed is set when every attempt failed the quality checks; the table
	// is recorded in the session's FailedTables and no CSV is stored.
	Failed       bool   `json:"failed"`
	QualityError string `json:"qualityError,omitempty"`

	replaced bool // a CSV for this table already existed
}

// ExtractBatch is the outcome of one extract stage run.
type ExtractBatch struct {
	Session *ExtractionSession `json:"session"`
	Results []*ExtractResult   `json:"results"`
}

// ExtractTable runs the extract stage for a single detected table.
func (s *Service) ExtractTable(ctx context.Context, id, tableNumber string) (*ExtractResult, error) {
	batch, err := s.ExtractTables(ctx, id, []string{tableNumber})
	if err != nil {
		return nil, err
	}
	return batch.Results[0], nil
}

// ExtractTables runs the extract stage for the given detected tables, or for
// all of them when tableNumbers is empty. Tables are extracted in parallel
// inside one begin/complete pair. Tables that keep failing the quality checks
// are recorded as failed without failing the stage; an analysis service or
// storage error fails the stage.
func (s *Service) ExtractTables(ctx context.Context, id string, tableNumbers []string) (*ExtractBatch, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := CheckBegin(sess, StageExtract); err != nil {
		return nil, err
	}
	if _, err := selectTables(sess.Tables, tableNumbers); err != nil {
		return nil, err
	}

	var out *ExtractBatch
	err = s.runStage(ctx, sess.ID, StageExtract, func(ctx context.Context, sess *ExtractionSession) error {
		tables, err := selectTables(sess.Tables, tableNumbers)
		if err != nil {
			return err
		}

		text, err := s.objects.Get(ctx, sessionKey(sess, ArtifactPlainText))
		if err != nil {
			return fmt.Errorf("read %s: %w", ArtifactPlainText, err)
		}

		staging := s.beginStaging(sess.ID, StageExtract)
		committed := false
		defer func() {
			if !committed {
				staging.Discard(context.WithoutCancel(ctx))
			}
		}()

		results := make([]*ExtractResult, len(tables))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.ExtractParallelism)
		for i, table := range tables {
			g.Go(func() error {
				r, err := s.extractOne(gctx, sess, table, string(text), staging)
				if err != nil {
					return fmt.Errorf("table %s: %w", table.TableNumber, err)
				}
				results[i] = r
				if err := s.store.TouchStage(gctx, sess.ID, StageExtract); err != nil {
					s.sessionLogger(gctx, sess.ID, StageExtract).Warn("refresh session heartbeat failed", "error", err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		updated, err := s.CompleteStage(ctx, sess, StageExtract, extractCompletion(sess, results))
		if err != nil {
			return err
		}
		committed = true

		log := s.sessionLogger(ctx, sess.ID, StageExtract)
		if err := staging.Publish(ctx); err != nil {
			log.Error("publish extracted tables failed", "error", err, "staging", staging.Prefix())
		}
		out = &ExtractBatch{Session: updated, Results: results}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// selectTables resolves requested table numbers against the detected tables.
// An empty request selects every detected table.
func selectTables(detected []TableInfo, numbers []string) ([]TableInfo, error) {
	if len(numbers) == 0 {
		if len(detected) == 0 {
			return nil, fmt.Errorf("no detected tables to extract: %w", ErrNotFound)
		}
		return detected, nil
	}

	out := make([]TableInfo, 0, len(numbers))
	seen := make(map[string]bool)
	for _, n := range numbers {
		want := normalizeTableNumber(n)
		if seen[want] {
			continue
		}
		found := false
		for _, t := range detected {
			if strings.EqualFold(t.TableNumber, want) {
				out = append(out, t)
				seen[want] = true
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("table %q: %w", n, ErrNotFound)
		}
	}
	return out, nil
}

// extractOne transcribes, checks, validates and stages one table.
func (s *Service) extractOne(ctx context.Context, sess *ExtractionSession, table TableInfo, text string, staging *Staging) (*ExtractResult, error) {
	log := s.sessionLogger(ctx, sess.ID, StageExtract).With("table", table.TableNumber)

	mapping, hasMapping := ForDataType(table.DataType)
	hint := ""
	if hasMapping {
		hint = MappingDescription(mapping)
	}

	var (
		parsed *CSVTable
		stats  CSVStats
	)
	attempts, err := Retry(ctx, s.cfg.Retry, func(ctx context.Context, attempt int, prior error) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.TableTimeout)
		defer cancel()

		raw, err := s.analyzer.ExtractTable(callCtx, TableExtractionRequest{
			SessionID:    sess.ID,
			Table:        table,
			Text:         text,
			Attempt:      attempt,
			PriorFailure: RetryInstructions(prior, table.EstimatedColumns),
			SchemaHint:   hint,
		})
		if err != nil {
			return wrapCallError(callCtx, "extract_table", err)
		}

		t, err := ParseCSV(raw)
		if err != nil {
			return &QualityError{Check: CheckParse, Message: "csv parse failed: " + err.Error()}
		}
		st := ComputeStats(t)
		if err := CheckExtractionQuality(st, table.EstimatedColumns); err != nil {
			log.Warn("extraction quality check failed", "attempt", attempt, "error", err)
			return err
		}
		parsed, stats = t, st
		return nil
	})

	res := &ExtractResult{TableNumber: table.TableNumber, Attempts: attempts}
	if err != nil {
		if IsQualityError(err) {
			res.Failed = true
			res.QualityError = err.Error()
			log.Warn("table failed quality checks", "attempts", attempts, "error", err)
			return res, nil
		}
		return nil, err
	}

	if !hasMapping {
		mapping, hasMapping = DetectMapping(parsed.Headers)
	}
	if hasMapping {
		res.Mapping = mapping.Key
		res.Validation = ValidateCSV(parsed, mapping)
		s.recorder.ValidationIssues(mapping.Key, len(res.Validation.Errors), len(res.Validation.Warnings))
	} else {
		res.Validation = ValidationResult{
			Valid:       true,
			RowCount:    len(parsed.Records),
			ColumnCount: len(parsed.Headers),
			Warnings: []ValidationWarning{{
				Row:     0,
				Message: "No field mapping matches this table",
			}},
			Errors: []ValidationError{},
		}
	}

	res.Headers = parsed.Headers
	res.Rows = parsed.Rows()
	res.Stats = stats
	res.CSVPath = sessionKey(sess, TableCSVName(table.TableNumber))

	replaced, err := s.exists(ctx, res.CSVPath)
	if err != nil {
		return nil, &PersistenceError{Op: "storage list", Err: err}
	}
	res.replaced = replaced

	if err := staging.Put(ctx, res.CSVPath, []byte(SerializeCSV(parsed)), "text/csv; charset=utf-8"); err != nil {
		return nil, err
	}

	log.Info("table extracted",
		"attempts", attempts,
		"rows", stats.TotalRows,
		"columns", stats.TotalColumns,
		"mapping", res.Mapping,
		"validation_errors", len(res.Validation.Errors),
	)
	return res, nil
}

// extractCompletion folds table results into the session update. CSV and
// record counts are deltas for tables extracted for the first time;
// FailedTables and the quality score are recomputed.
func extractCompletion(sess *ExtractionSession, results []*ExtractResult) CompletionResult {
	var res CompletionResult

	failed := make(map[string]bool)
	for _, t := range sess.FailedTables {
		failed[t] = true
	}

	var quality float64
	for _, r := range results {
		if r.Failed {
			failed[r.TableNumber] = true
			continue
		}
		delete(failed, r.TableNumber)
		quality += r.Stats.Completeness
		if !r.replaced {
			res.CSVsAdded++
			res.RecordsAdded += r.Stats.TotalRows
		}
	}

	res.FailedTables = []string{}
	for _, t := range sess.Tables {
		if failed[t.TableNumber] {
			res.FailedTables = append(res.FailedTables, t.TableNumber)
		}
	}

	if len(results) > 0 {
		score := math.Round(quality/float64(len(results))*10) / 10
		res.QualityScore = &score
	}
	return res
}
