package core

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// DatasetPrefix is the key prefix of published datasets.
const DatasetPrefix = "datasets/"

// LoadResult is the outcome of the load stage.
type LoadResult struct {
	Session        *ExtractionSession `json:"session"`
	DatasetID      string             `json:"datasetId"`
	DatasetName    string             `json:"datasetName"`
	FairScore      int                `json:"fairScore"`
	FairGrade      string             `json:"fairGrade"`
	Assessment     *FairAssessment    `json:"assessment,omitempty"`
	FilesUploaded  int                `json:"filesUploaded"`
	TotalSizeBytes int64              `json:"totalSizeBytes"`
	AlreadyExists  bool               `json:"alreadyExists"`
}

// inventoryItem is one session artifact bound for the dataset.
type inventoryItem struct {
	file   UploadedFile
	srcKey string
}

// Load runs the load stage: the session's artifacts become a dataset, scored
// for FAIR compliance and reported on, persisted in one store transaction.
// Load is idempotent: a loaded session returns its dataset, and a paper whose
// DOI already has a dataset is linked to it with AlreadyExists set.
func (s *Service) Load(ctx context.Context, id string) (*LoadResult, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State == StateLoaded && sess.DatasetID != nil {
		return s.existingLoad(ctx, sess)
	}

	var out *LoadResult
	err = s.runStage(ctx, sess.ID, StageLoad, func(ctx context.Context, sess *ExtractionSession) error {
		r, err := s.load(ctx, sess)
		out = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// existingLoad reports the dataset an already loaded session produced.
func (s *Service) existingLoad(ctx context.Context, sess *ExtractionSession) (*LoadResult, error) {
	d, err := s.store.GetDataset(ctx, *sess.DatasetID)
	if err != nil {
		return nil, err
	}
	r, err := s.datasetResult(ctx, d)
	if err != nil {
		return nil, err
	}
	r.Session = sess
	r.AlreadyExists = true
	return r, nil
}

func (s *Service) datasetResult(ctx context.Context, d *Dataset) (*LoadResult, error) {
	a, err := s.store.GetAssessment(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListDatasetFiles(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, f := range files {
		total += f.SizeBytes
	}
	return &LoadResult{
		DatasetID:      d.ID,
		DatasetName:    d.Name,
		FairScore:      a.TotalScore,
		FairGrade:      a.Grade,
		Assessment:     a,
		FilesUploaded:  len(files),
		TotalSizeBytes: total,
	}, nil
}

func (s *Service) load(ctx context.Context, sess *ExtractionSession) (*LoadResult, error) {
	log := s.sessionLogger(ctx, sess.ID, StageLoad)

	meta := s.loadMetadata(ctx, sess)
	if meta.DOI != nil {
		existing, err := s.store.FindDatasetByDOI(ctx, *meta.DOI)
		switch {
		case err == nil:
			return s.reuseDataset(ctx, sess, existing)
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	items, err := s.inventory(ctx, sess)
	if err != nil {
		return nil, err
	}

	datasetID := uuid.NewString()
	prefix := DatasetPrefix + datasetID + "/"
	files := make([]UploadedFile, 0, len(items)+2)
	var (
		evidence []TableEvidence
		records  int
		total    int64
	)
	for _, it := range items {
		f := it.file
		if f.Type == FileTypeCSV {
			ev, rows, err := s.csvEvidence(ctx, sess, it.srcKey, f.Name)
			if err != nil {
				return nil, err
			}
			evidence = append(evidence, ev)
			f.RowCount = ptr(rows)
			records += rows
		}
		f.Path = prefix + f.Name
		total += f.SizeBytes
		files = append(files, f)
	}

	now := s.now()
	assessment := ScoreFAIR(FairInput{
		Metadata: meta,
		Files:    files,
		Tables:   sess.Tables,
		CSVs:     evidence,
	}, now)
	assessment.DatasetID = datasetID
	s.recorder.FairScored(assessment.TotalScore, assessment.Grade)

	name := DatasetName(meta, sess.PDFFilename)
	report, err := GenerateReport(ReportInput{
		DatasetID:   datasetID,
		DatasetName: name,
		Assessment:  assessment,
		Metadata:    meta,
		Files:       files,
		TotalBytes:  total,
	})
	if err != nil {
		return nil, err
	}

	staging := s.beginStaging(sess.ID, StageLoad)
	committed := false
	defer func() {
		if !committed {
			staging.Discard(context.WithoutCancel(ctx))
		}
	}()

	for i, it := range items {
		if err := staging.CopyIn(ctx, it.srcKey, files[i].Path, contentTypeFor(files[i].Type), files[i].SizeBytes); err != nil {
			return nil, err
		}
	}
	reports := []struct {
		name, contentType, desc string
		ft                      FileType
		data                    []byte
	}{
		{ReportJSONName, "application/json", "FAIR compliance assessment", FileTypeJSON, report.JSON},
		{ReportMarkdownName, "text/markdown; charset=utf-8", "Extraction and FAIR report", FileTypeMarkdown, []byte(report.Markdown)},
	}
	for _, r := range reports {
		key := prefix + r.name
		if err := staging.Put(ctx, key, r.data, r.contentType); err != nil {
			return nil, err
		}
		size := int64(len(r.data))
		total += size
		files = append(files, UploadedFile{Type: r.ft, Name: r.name, Path: key, SizeBytes: size, Description: r.desc})
	}

	dataset := Dataset{
		ID:            datasetID,
		Name:          name,
		DOI:           meta.DOI,
		FullCitation:  meta.FullCitation,
		PaperMetadata: &meta,
		SessionID:     sess.ID,
		CreatedAt:     now.UTC(),
	}
	updated, err := s.store.CommitLoad(ctx, sess.ID, LoadCommit{
		Dataset:         dataset,
		Files:           files,
		Assessment:      assessment,
		RecordsImported: records,
	})
	if errors.Is(err, ErrDuplicateDOI) && meta.DOI != nil {
		// Another session loaded the same paper first.
		staging.Discard(ctx)
		existing, ferr := s.store.FindDatasetByDOI(ctx, *meta.DOI)
		if ferr != nil {
			return nil, ferr
		}
		return s.reuseDataset(ctx, sess, existing)
	}
	if err != nil {
		return nil, err
	}
	committed = true

	if err := staging.Publish(ctx); err != nil {
		log.Error("publish dataset files failed", "error", err, "staging", staging.Prefix())
	}

	s.LogAudit(ctx, AuditLogParams{
		Action:    ActionDatasetCreate,
		SessionID: sess.ID,
		Stage:     StageLoad,
		From:      StateLoading,
		To:        StateLoaded,
		Detail:    fmt.Sprintf("dataset %s: %d files, FAIR %d (%s)", datasetID, len(files), assessment.TotalScore, assessment.Grade),
	})
	log.Info("dataset loaded",
		"dataset_id", datasetID,
		"files", len(files),
		"records", records,
		"fair_score", assessment.TotalScore,
		"fair_grade", assessment.Grade,
	)

	return &LoadResult{
		Session:        updated,
		DatasetID:      datasetID,
		DatasetName:    name,
		FairScore:      assessment.TotalScore,
		FairGrade:      assessment.Grade,
		Assessment:     &assessment,
		FilesUploaded:  len(files),
		TotalSizeBytes: total,
	}, nil
}

// reuseDataset links the session to a dataset that already holds its paper.
func (s *Service) reuseDataset(ctx context.Context, sess *ExtractionSession, d *Dataset) (*LoadResult, error) {
	r, err := s.datasetResult(ctx, d)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.CommitLoad(ctx, sess.ID, LoadCommit{
		Dataset:       *d,
		Assessment:    *r.Assessment,
		ReuseExisting: true,
	})
	if err != nil {
		return nil, err
	}

	s.LogAudit(ctx, AuditLogParams{
		Action:    ActionDatasetReuse,
		SessionID: sess.ID,
		Stage:     StageLoad,
		From:      StateLoading,
		To:        StateLoaded,
		Detail:    "dataset " + d.ID,
	})
	s.sessionLogger(ctx, sess.ID, StageLoad).Info("dataset already exists", "dataset_id", d.ID)

	r.Session = updated
	r.AlreadyExists = true
	return r, nil
}

// loadMetadata reads the session's paper index, filling anything it lacks
// from the metadata stored at analysis time.
func (s *Service) loadMetadata(ctx context.Context, sess *ExtractionSession) PaperMetadata {
	stored := deref(sess.PaperMetadata)
	data, err := s.objects.Get(ctx, sessionKey(sess, ArtifactPaperIndex))
	if err != nil {
		s.sessionLogger(ctx, sess.ID, StageLoad).Warn("paper index unavailable, using stored metadata", "error", err)
		return stored
	}
	return MergeMetadata(ParsePaperIndex(string(data)), stored)
}

// inventory lists the session artifacts that become dataset files.
func (s *Service) inventory(ctx context.Context, sess *ExtractionSession) ([]inventoryItem, error) {
	prefix := sess.SessionID + "/"
	objs, err := s.objects.List(ctx, prefix)
	if err != nil {
		return nil, &PersistenceError{Op: "storage list " + prefix, Err: err}
	}

	items := make([]inventoryItem, 0, len(objs))
	for _, o := range objs {
		rel := strings.TrimPrefix(o.Key, prefix)
		ft, desc, ok := classifyArtifact(rel)
		if !ok {
			continue
		}
		items = append(items, inventoryItem{
			srcKey: o.Key,
			file:   UploadedFile{Type: ft, Name: rel, SizeBytes: o.Size, Description: desc},
		})
	}
	return items, nil
}

// classifyArtifact maps a session-relative artifact name to its file type.
func classifyArtifact(rel string) (FileType, string, bool) {
	switch ext := strings.ToLower(path.Ext(rel)); {
	case rel == ArtifactOriginal:
		return FileTypePDF, "Source paper", true
	case ext == ".pdf":
		return FileTypePDF, "Supplementary document", true
	case ext == ".csv":
		return FileTypeCSV, "Extracted table", true
	case ext == ".png":
		return FileTypePNG, "Figure image", true
	case ext == ".jpg" || ext == ".jpeg":
		return FileTypeJPEG, "Figure image", true
	case ext == ".md":
		return FileTypeMarkdown, "Paper reference document", true
	case ext == ".json":
		return FileTypeJSON, "Table index", true
	case ext == ".txt":
		return FileTypeText, "Extracted paper text", true
	default:
		return "", "", false
	}
}

func contentTypeFor(ft FileType) string {
	switch ft {
	case FileTypePDF:
		return "application/pdf"
	case FileTypeCSV:
		return "text/csv; charset=utf-8"
	case FileTypeMarkdown:
		return "text/markdown; charset=utf-8"
	case FileTypeText:
		return "text/plain; charset=utf-8"
	default:
		return string(ft)
	}
}

// csvEvidence reads one extracted CSV and validates it against the mapping
// of the detected table it came from, or the best header match.
func (s *Service) csvEvidence(ctx context.Context, sess *ExtractionSession, key, name string) (TableEvidence, int, error) {
	data, err := s.objects.Get(ctx, key)
	if err != nil {
		return TableEvidence{}, 0, fmt.Errorf("read %s: %w", key, err)
	}

	ev := TableEvidence{Name: name}
	t, err := ParseCSV(string(data))
	if err != nil {
		ev.Validation = ValidationResult{
			Errors:   []ValidationError{{Row: 0, Message: err.Error()}},
			Warnings: []ValidationWarning{},
		}
		return ev, 0, nil
	}
	ev.Headers = t.Headers

	mapping, ok := TableMapping{}, false
	for _, tbl := range sess.Tables {
		if TableCSVName(tbl.TableNumber) == name {
			mapping, ok = ForDataType(tbl.DataType)
			break
		}
	}
	if !ok {
		mapping, ok = DetectMapping(t.Headers)
	}
	if ok {
		ev.Mapping = mapping.Key
		ev.Validation = ValidateCSV(t, mapping)
		s.recorder.ValidationIssues(mapping.Key, len(ev.Validation.Errors), len(ev.Validation.Warnings))
	}
	return ev, len(t.Records), nil
}
