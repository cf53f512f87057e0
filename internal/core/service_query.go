package core

import (
	"context"
	"fmt"
)

// DefaultListLimit bounds ListSessions when no limit is given.
const DefaultListLimit = 50

// GetSession returns a session by ID or SessionID handle.
func (s *Service) GetSession(ctx context.Context, id string) (*ExtractionSession, error) {
	return s.store.GetSession(ctx, id)
}

// ListSessions returns the newest sessions, optionally filtered by state.
func (s *Service) ListSessions(ctx context.Context, state State, limit int) ([]*ExtractionSession, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.store.ListSessions(ctx, state, limit)
}

// CountByState returns the number of sessions in each state.
func (s *Service) CountByState(ctx context.Context) (map[State]int, error) {
	return s.store.CountByState(ctx)
}

// DatasetView is a dataset with its files and assessment.
type DatasetView struct {
	Dataset    *Dataset        `json:"dataset"`
	Files      []UploadedFile  `json:"files"`
	Assessment *FairAssessment `json:"assessment"`
}

// GetDataset returns a dataset with its files and FAIR assessment.
func (s *Service) GetDataset(ctx context.Context, id string) (*DatasetView, error) {
	d, err := s.store.GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListDatasetFiles(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	a, err := s.store.GetAssessment(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	return &DatasetView{Dataset: d, Files: files, Assessment: a}, nil
}

// GetAssessment returns the FAIR assessment of a dataset.
func (s *Service) GetAssessment(ctx context.Context, datasetID string) (*FairAssessment, error) {
	return s.store.GetAssessment(ctx, datasetID)
}

// GetReport returns the stored JSON and Markdown reports of a dataset.
func (s *Service) GetReport(ctx context.Context, datasetID string) (*Report, error) {
	d, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	prefix := DatasetPrefix + d.ID + "/"

	js, err := s.objects.Get(ctx, prefix+ReportJSONName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ReportJSONName, err)
	}
	md, err := s.objects.Get(ctx, prefix+ReportMarkdownName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ReportMarkdownName, err)
	}
	return &Report{JSON: js, Markdown: string(md)}, nil
}

// Mappings returns every registered table mapping.
func (s *Service) Mappings() []TableMapping {
	return All()
}

// LimiterStatus reports stage concurrency.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// ArtifactURL returns the public URL of a stored artifact.
func (s *Service) ArtifactURL(key string) string {
	return s.objects.URL(key)
}
