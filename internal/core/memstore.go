package core

// memstore.go is an in-process Store. It backs STORE_DRIVER=memory and the
// service tests; a single mutex gives the same atomicity the Postgres store
// gets from conditional updates and transactions.

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*ExtractionSession
	handles     map[string]string // SessionID handle -> ID
	datasets    map[string]*Dataset
	byDOI       map[string]string // normalized DOI -> dataset ID
	files       map[string][]UploadedFile
	assessments map[string]FairAssessment
	audit       []AuditEntry
	now         func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*ExtractionSession),
		handles:     make(map[string]string),
		datasets:    make(map[string]*Dataset),
		byDOI:       make(map[string]string),
		files:       make(map[string][]UploadedFile),
		assessments: make(map[string]FairAssessment),
		now:         time.Now,
	}
}

func cloneSession(s *ExtractionSession) *ExtractionSession {
	c := *s
	c.Tables = append([]TableInfo(nil), s.Tables...)
	c.DataTypes = append([]string(nil), s.DataTypes...)
	c.FailedTables = append([]string(nil), s.FailedTables...)
	if s.PaperMetadata != nil {
		m := *s.PaperMetadata
		m.Authors = append([]string(nil), s.PaperMetadata.Authors...)
		m.Affiliations = append([]string(nil), s.PaperMetadata.Affiliations...)
		c.PaperMetadata = &m
	}
	return &c
}

// lookup resolves an ID or a SessionID handle. Caller holds mu.
func (m *MemoryStore) lookup(id string) (*ExtractionSession, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	if real, ok := m.handles[id]; ok {
		return m.sessions[real], nil
	}
	return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
}

// touch bumps the version and update time. Caller holds mu.
func (m *MemoryStore) touch(s *ExtractionSession) {
	s.Version++
	s.UpdatedAt = m.now().UTC()
}

func (m *MemoryStore) CreateSession(_ context.Context, s *ExtractionSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return &PersistenceError{Op: "create session", Err: fmt.Errorf("duplicate key: session %s", s.ID)}
	}
	if _, ok := m.handles[s.SessionID]; ok {
		return &PersistenceError{Op: "create session", Err: fmt.Errorf("duplicate key: session handle %s", s.SessionID)}
	}
	c := cloneSession(s)
	now := m.now().UTC()
	c.CreatedAt, c.UpdatedAt, c.Version = now, now, 1
	m.sessions[c.ID] = c
	m.handles[c.SessionID] = c.ID
	*s = *cloneSession(c)
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*ExtractionSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) ListSessions(_ context.Context, state State, limit int) ([]*ExtractionSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ExtractionSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		if state == "" || s.State == state {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountByState(_ context.Context) (map[State]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[State]int)
	for _, s := range m.sessions {
		counts[s.State]++
	}
	return counts, nil
}

func (m *MemoryStore) CompareAndSwapState(_ context.Context, id string, expected, next State) (*ExtractionSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if s.State != expected {
		return nil, fmt.Errorf("session %s is %s, not %s: %w", id, s.State, expected, ErrConflict)
	}
	s.State = next
	m.touch(s)
	return cloneSession(s), nil
}

func (m *MemoryStore) CompleteStage(_ context.Context, id string, stage Stage, next State, step int, res CompletionResult) (*ExtractionSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if s.State != RunningState(stage) {
		return nil, fmt.Errorf("complete %s: session %s is %s: %w", stage, id, s.State, ErrConflict)
	}

	applyCompletion(s, stage, res)
	s.State = next
	s.CurrentStep = step
	s.ErrorMessage, s.ErrorStage = "", ""
	if next == StateLoaded {
		now := m.now().UTC()
		s.CompletedAt = &now
	}
	m.touch(s)
	return cloneSession(s), nil
}

// applyCompletion copies the stage's result fields onto s.
func applyCompletion(s *ExtractionSession, stage Stage, res CompletionResult) {
	switch stage {
	case StageAnalyze:
		s.PaperMetadata = res.PaperMetadata
		s.TablesFound = res.TablesFound
		s.Tables = res.Tables
		s.DataTypes = res.DataTypes
		if res.PageCount > 0 {
			s.PageCount = res.PageCount
		}
	case StageExtract:
		s.CSVsExtracted += res.CSVsAdded
		s.RecordsImported += res.RecordsAdded
		s.FailedTables = res.FailedTables
		s.ExtractionQualityScore = res.QualityScore
	case StageLoad:
		if res.DatasetID != "" {
			s.DatasetID = ptr(res.DatasetID)
		}
		s.FairScore = ptr(res.FairScore)
	}
}

func (m *MemoryStore) FailStage(_ context.Context, id string, stage Stage, message string) (*ExtractionSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(s.State, EventFail); err != nil {
		return nil, err
	}
	if s.State != RunningState(stage) {
		return nil, fmt.Errorf("fail %s: session %s is %s: %w", stage, id, s.State, ErrConflict)
	}
	s.State = StateFailed
	s.ErrorStage = stage
	s.ErrorMessage = message
	m.touch(s)
	return cloneSession(s), nil
}

func (m *MemoryStore) TouchStage(_ context.Context, id string, stage Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	if s.State != RunningState(stage) {
		return fmt.Errorf("touch %s: session %s is %s: %w", stage, id, s.State, ErrConflict)
	}
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) ResetSession(_ context.Context, id string, target State, step int) (*ExtractionSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if s.State != StateFailed {
		return nil, fmt.Errorf("reset: session %s is %s: %w", id, s.State, ErrConflict)
	}
	s.State = target
	s.CurrentStep = step
	s.ErrorMessage, s.ErrorStage = "", ""
	m.touch(s)
	return cloneSession(s), nil
}

func (m *MemoryStore) CommitLoad(_ context.Context, sessionID string, c LoadCommit) (*ExtractionSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if s.State != StateLoading {
		return nil, fmt.Errorf("commit load: session %s is %s: %w", sessionID, s.State, ErrConflict)
	}

	if c.ReuseExisting {
		if _, ok := m.datasets[c.Dataset.ID]; !ok {
			return nil, fmt.Errorf("dataset %s: %w", c.Dataset.ID, ErrNotFound)
		}
	} else {
		if _, ok := m.datasets[c.Dataset.ID]; ok {
			return nil, &PersistenceError{Op: "insert dataset", Err: fmt.Errorf("duplicate key: dataset %s", c.Dataset.ID)}
		}
		if c.Dataset.DOI != nil {
			if _, ok := m.byDOI[doiKey(*c.Dataset.DOI)]; ok {
				return nil, fmt.Errorf("doi %s: %w", *c.Dataset.DOI, ErrDuplicateDOI)
			}
		}
		d := c.Dataset
		if d.CreatedAt.IsZero() {
			d.CreatedAt = m.now().UTC()
		}
		m.datasets[d.ID] = &d
		if d.DOI != nil {
			m.byDOI[doiKey(*d.DOI)] = d.ID
		}
		m.files[d.ID] = append([]UploadedFile(nil), c.Files...)
		a := c.Assessment
		a.DatasetID = d.ID
		m.assessments[d.ID] = a
	}

	s.DatasetID = ptr(c.Dataset.ID)
	s.FairScore = ptr(c.Assessment.TotalScore)
	if c.RecordsImported > 0 {
		s.RecordsImported = c.RecordsImported
	}
	s.State = StateLoaded
	s.CurrentStep = StepComplete
	s.ErrorMessage, s.ErrorStage = "", ""
	now := m.now().UTC()
	s.CompletedAt = &now
	m.touch(s)
	return cloneSession(s), nil
}

func doiKey(doi string) string {
	return strings.ToLower(strings.TrimSpace(doi))
}

func (m *MemoryStore) GetDataset(_ context.Context, id string) (*Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.datasets[id]
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	c := *d
	return &c, nil
}

func (m *MemoryStore) FindDatasetByDOI(ctx context.Context, doi string) (*Dataset, error) {
	m.mu.RLock()
	id, ok := m.byDOI[doiKey(doi)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dataset with doi %s: %w", doi, ErrNotFound)
	}
	return m.GetDataset(ctx, id)
}

func (m *MemoryStore) ListDatasetFiles(_ context.Context, datasetID string) ([]UploadedFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.datasets[datasetID]; !ok {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, ErrNotFound)
	}
	return append([]UploadedFile(nil), m.files[datasetID]...), nil
}

func (m *MemoryStore) GetAssessment(_ context.Context, datasetID string) (*FairAssessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.assessments[datasetID]
	if !ok {
		return nil, fmt.Errorf("assessment for dataset %s: %w", datasetID, ErrNotFound)
	}
	return &a, nil
}

func (m *MemoryStore) AppendAudit(_ context.Context, e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func (m *MemoryStore) ListAudit(_ context.Context, sessionID string) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []AuditEntry
	for _, e := range m.audit {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) StuckSessions(_ context.Context, before time.Time) ([]*ExtractionSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ExtractionSession
	for _, s := range m.sessions {
		if s.State.InProgress() && s.UpdatedAt.Before(before) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
