package core

import (
	"context"
	"fmt"
	"sort"
)

// AnalyzeResult is the outcome of a successful analyze stage.
type AnalyzeResult struct {
	Session     *ExtractionSession `json:"session"`
	Metadata    PaperMetadata      `json:"paperMetadata"`
	TablesFound int                `json:"tablesFound"`
	Tables      []TableInfo        `json:"tables"`
	Figures     []FigureInfo       `json:"figures"`
	DataTypes   []string           `json:"dataTypes"`
	Artifacts   []string           `json:"artifacts"`
}

// Analyze runs the analyze stage: the PDF text is sent to the analysis
// service, the normalized response is rendered into the session's reference
// artifacts and the metadata and detected tables are written to the session.
func (s *Service) Analyze(ctx context.Context, id string) (*AnalyzeResult, error) {
	var out *AnalyzeResult

	err := s.runStage(ctx, id, StageAnalyze, func(ctx context.Context, sess *ExtractionSession) error {
		log := s.sessionLogger(ctx, sess.ID, StageAnalyze)

		data, err := s.objects.Get(ctx, sess.PDFPath)
		if err != nil {
			return fmt.Errorf("read pdf %s: %w", sess.PDFPath, err)
		}
		info, err := s.pdf.Inspect(ctx, data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.AnalysisTimeout)
		raw, err := s.analyzer.Analyze(callCtx, AnalysisRequest{
			SessionID: sess.ID,
			Filename:  sess.PDFFilename,
			Text:      info.Text,
			PageCount: info.PageCount,
		})
		err = wrapCallError(callCtx, "analyze", err)
		cancel()
		if err != nil {
			return err
		}

		res := NormalizeAnalysis(raw)
		now := s.now()

		staging := s.beginStaging(sess.ID, StageAnalyze)
		committed := false
		defer func() {
			if !committed {
				staging.Discard(context.WithoutCancel(ctx))
			}
		}()

		tableIndex, err := RenderTableIndex(res, now)
		if err != nil {
			return err
		}
		artifacts := []struct {
			name, contentType string
			data              []byte
		}{
			{ArtifactPlainText, "text/plain; charset=utf-8", []byte(info.Text)},
			{ArtifactTableIndex, "application/json", tableIndex},
			{ArtifactPaperIndex, "text/markdown; charset=utf-8", []byte(RenderPaperIndex(res, sess.PDFFilename, now))},
			{ArtifactTablesMD, "text/markdown; charset=utf-8", []byte(RenderTablesMarkdown(res.Tables))},
		}
		keys := make([]string, 0, len(artifacts))
		for _, a := range artifacts {
			key := sessionKey(sess, a.name)
			if err := staging.Put(ctx, key, a.data, a.contentType); err != nil {
				return err
			}
			keys = append(keys, key)
		}

		metadata := res.PaperMetadata
		dataTypes := distinctDataTypes(res.Tables)
		updated, err := s.CompleteStage(ctx, sess, StageAnalyze, CompletionResult{
			PaperMetadata: &metadata,
			TablesFound:   res.TablesFound,
			Tables:        res.Tables,
			DataTypes:     dataTypes,
			PageCount:     info.PageCount,
		})
		if err != nil {
			return err
		}
		committed = true

		if err := staging.Publish(ctx); err != nil {
			log.Error("publish analyze artifacts failed", "error", err, "staging", staging.Prefix())
		}

		log.Info("paper analyzed",
			"tables_found", res.TablesFound,
			"figures_found", res.FiguresFound,
			"has_doi", metadata.DOI != nil,
		)
		out = &AnalyzeResult{
			Session:     updated,
			Metadata:    metadata,
			TablesFound: res.TablesFound,
			Tables:      res.Tables,
			Figures:     res.Figures,
			DataTypes:   dataTypes,
			Artifacts:   keys,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// wrapCallError classifies an analysis service error, marking it as a
// timeout when the call's own deadline expired. nil stays nil.
func wrapCallError(callCtx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	return classifyTimeout(callCtx, "analysis", op, err)
}

// distinctDataTypes lists the detected tables' data-type tags, deduplicated
// and sorted.
func distinctDataTypes(tables []TableInfo) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tables {
		if t.DataType == "" {
			continue
		}
		key := normalizeTag(t.DataType)
		if !seen[key] {
			seen[key] = true
			out = append(out, t.DataType)
		}
	}
	sort.Strings(out)
	return out
}
