package core

import (
	"context"
	"time"
)

// State is the lifecycle position of an extraction session.
type State string

const (
	StateUploaded   State = "uploaded"
	StateAnalyzing  State = "analyzing"
	StateAnalyzed   State = "analyzed"
	StateExtracting State = "extracting"
	StateExtracted  State = "extracted"
	StateLoading    State = "loading"
	StateLoaded     State = "loaded"
	StateFailed     State = "failed"
)

// AllStates lists every state in pipeline order, failed last.
var AllStates = []State{
	StateUploaded, StateAnalyzing, StateAnalyzed, StateExtracting,
	StateExtracted, StateLoading, StateLoaded, StateFailed,
}

// Terminal reports whether no further transition is possible without a reset.
func (s State) Terminal() bool {
	return s == StateLoaded || s == StateFailed
}

// InProgress reports whether a stage currently owns the session.
func (s State) InProgress() bool {
	return s == StateAnalyzing || s == StateExtracting || s == StateLoading
}

// Stage is one of the three pipeline steps.
type Stage string

const (
	StageAnalyze Stage = "analyze"
	StageExtract Stage = "extract"
	StageLoad    Stage = "load"
)

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool {
	return s == StageAnalyze || s == StageExtract || s == StageLoad
}

// Step values recorded in ExtractionSession.CurrentStep.
const (
	StepUploaded  = 1
	StepAnalyzed  = 2
	StepExtracted = 3
	StepComplete  = 4
)

// ExtractionSession is the unit of mutable pipeline state.
type ExtractionSession struct {
	ID           string `json:"id"`
	SessionID    string `json:"sessionId"`
	PDFFilename  string `json:"pdfFilename"`
	PDFPath      string `json:"pdfPath"`
	PDFSizeBytes int64  `json:"pdfSizeBytes"`
	PageCount    int    `json:"pageCount"`

	State       State `json:"state"`
	CurrentStep int   `json:"currentStep"`

	PaperMetadata *PaperMetadata `json:"paperMetadata,omitempty"`
	TablesFound   int            `json:"tablesFound"`
	Tables        []TableInfo    `json:"tables,omitempty"`
	DataTypes     []string       `json:"dataTypes,omitempty"`

	CSVsExtracted          int      `json:"csvsExtracted"`
	ExtractionQualityScore *float64 `json:"extractionQualityScore,omitempty"`
	FailedTables           []string `json:"failedTables,omitempty"`

	DatasetID       *string `json:"datasetId,omitempty"`
	FairScore       *int    `json:"fairScore,omitempty"`
	RecordsImported int     `json:"recordsImported"`

	ErrorMessage string `json:"errorMessage,omitempty"`
	ErrorStage   Stage  `json:"errorStage,omitempty"`

	// Version increments on every persisted change.
	Version int64 `json:"version"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// PaperMetadata holds bibliographic and study fields for a paper.
// Every field is optional; nil means the value was not found.
type PaperMetadata struct {
	Title         *string  `json:"title"`
	Authors       []string `json:"authors"`
	Affiliations  []string `json:"affiliations,omitempty"`
	Abstract      *string  `json:"abstract,omitempty"`
	Journal       *string  `json:"journal"`
	Year          *int     `json:"year"`
	Volume        *string  `json:"volume,omitempty"`
	DOI           *string  `json:"doi"`
	PDFURL        *string  `json:"pdfUrl,omitempty"`
	Supplementary *string  `json:"supplementaryDataUrl"`
	StudyLocation *string  `json:"studyLocation"`
	Mineral       *string  `json:"mineral"`
	SampleCount   *int     `json:"sampleCount"`
	Laboratory    *string  `json:"laboratory,omitempty"`
	AgeMinMa      *float64 `json:"ageRangeMinMa,omitempty"`
	AgeMaxMa      *float64 `json:"ageRangeMaxMa,omitempty"`
	FullCitation  *string  `json:"fullCitation,omitempty"`
}

// TableInfo describes a table located in the source document by the
// analysis service. Read-only to the extract stage.
type TableInfo struct {
	TableNumber      string `json:"tableNumber"`
	Caption          string `json:"caption"`
	PageNumber       int    `json:"pageNumber,omitempty"`
	DataType         string `json:"dataType,omitempty"`
	EstimatedRows    int    `json:"estimatedRows,omitempty"`
	EstimatedColumns int    `json:"estimatedColumns,omitempty"`
}

// FigureInfo describes a figure located in the source document.
type FigureInfo struct {
	FigureNumber string `json:"figureNumber"`
	Caption      string `json:"caption"`
	PageNumber   int    `json:"pageNumber,omitempty"`
}

// FileType tags an uploaded artifact.
type FileType string

const (
	FileTypePDF      FileType = "pdf"
	FileTypeCSV      FileType = "csv"
	FileTypePNG      FileType = "image/png"
	FileTypeJPEG     FileType = "image/jpeg"
	FileTypeMarkdown FileType = "text/markdown"
	FileTypeJSON     FileType = "application/json"
	FileTypeText     FileType = "text/plain"
)

// UploadedFile is one artifact attached to a dataset by the load stage.
type UploadedFile struct {
	Type        FileType `json:"type"`
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	SizeBytes   int64    `json:"sizeBytes"`
	RowCount    *int     `json:"rowCount,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Dataset is the persisted result of a successful load.
type Dataset struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	DOI           *string        `json:"doi,omitempty"`
	FullCitation  *string        `json:"fullCitation,omitempty"`
	PaperMetadata *PaperMetadata `json:"paperMetadata,omitempty"`
	SessionID     string         `json:"sessionId"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// CompletionResult carries the stage-specific fields written by CompleteStage.
// Only the fields relevant to the completed stage are read.
type CompletionResult struct {
	// analyze
	PaperMetadata *PaperMetadata
	TablesFound   int
	Tables        []TableInfo
	DataTypes     []string
	PageCount     int

	// extract; CSVsAdded and RecordsAdded are deltas, the rest replace
	CSVsAdded    int
	RecordsAdded int
	FailedTables []string
	QualityScore *float64

	// load
	DatasetID string
	FairScore int
}

// LoadCommit is everything the load stage persists in one transaction.
type LoadCommit struct {
	Dataset    Dataset
	Files      []UploadedFile
	Assessment FairAssessment

	// RecordsImported is the total data rows across the dataset's CSVs.
	RecordsImported int

	// ReuseExisting is set when the dataset already existed (same DOI);
	// only the session link and completion are written.
	ReuseExisting bool
}

// Store is the persistence contract consumed by the pipeline.
// Implementations must make CompareAndSwapState, CompleteStage, FailStage and
// CommitLoad atomic with respect to each other.
type Store interface {
	CreateSession(ctx context.Context, s *ExtractionSession) error
	GetSession(ctx context.Context, id string) (*ExtractionSession, error)
	ListSessions(ctx context.Context, state State, limit int) ([]*ExtractionSession, error)
	CountByState(ctx context.Context) (map[State]int, error)

	// CompareAndSwapState moves the session from expected to next only if the
	// stored state still equals expected. Returns ErrConflict otherwise.
	CompareAndSwapState(ctx context.Context, id string, expected, next State) (*ExtractionSession, error)

	// CompleteStage writes result fields and the next state/step, conditioned on
	// the session still being in the stage's in-progress state.
	CompleteStage(ctx context.Context, id string, stage Stage, next State, step int, res CompletionResult) (*ExtractionSession, error)

	// FailStage marks the session failed, conditioned on the session still
	// being in the stage's in-progress state. Returns ErrConflict when the
	// stage has already moved on. Terminal until ResetSession.
	FailStage(ctx context.Context, id string, stage Stage, message string) (*ExtractionSession, error)

	// TouchStage refreshes the update time of a session still running stage,
	// so a long stage is not taken for a stuck one.
	TouchStage(ctx context.Context, id string, stage Stage) error

	// ResetSession clears error fields and moves a failed session to target.
	ResetSession(ctx context.Context, id string, target State, step int) (*ExtractionSession, error)

	// CommitLoad persists dataset, files and FAIR assessment and completes the
	// load stage, all or nothing.
	CommitLoad(ctx context.Context, sessionID string, c LoadCommit) (*ExtractionSession, error)

	GetDataset(ctx context.Context, id string) (*Dataset, error)
	FindDatasetByDOI(ctx context.Context, doi string) (*Dataset, error)
	ListDatasetFiles(ctx context.Context, datasetID string) ([]UploadedFile, error)
	GetAssessment(ctx context.Context, datasetID string) (*FairAssessment, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, sessionID string) ([]AuditEntry, error)

	// StuckSessions returns sessions in an in-progress state not updated since before.
	StuckSessions(ctx context.Context, before time.Time) ([]*ExtractionSession, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the object storage contract consumed by the pipeline.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Copy(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	URL(key string) string
}

// AnalysisRequest is sent to the external analysis service.
type AnalysisRequest struct {
	SessionID string
	Filename  string
	Text      string
	PageCount int
}

// AnalysisResult is the untrusted response of the analysis service.
type AnalysisResult struct {
	PaperMetadata PaperMetadata `json:"paperMetadata"`
	TablesFound   int           `json:"tablesFound"`
	Tables        []TableInfo   `json:"tables"`
	FiguresFound  int           `json:"figuresFound"`
	Figures       []FigureInfo  `json:"figures,omitempty"`
}

// TableExtractionRequest asks the analysis service to transcribe one table.
type TableExtractionRequest struct {
	SessionID    string
	Table        TableInfo
	Text         string
	Attempt      int
	PriorFailure string
	// SchemaHint describes the canonical target schema, if the table's data
	// type resolves to a registered mapping.
	SchemaHint string
}

// Analyzer is the external analysis service contract.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
	ExtractTable(ctx context.Context, req TableExtractionRequest) (string, error)
}

// PDFInfo summarizes an inspected PDF.
type PDFInfo struct {
	PageCount int
	HasImages bool
	Text      string
}

// PDFInspector reads structure and text from a PDF document.
type PDFInspector interface {
	Inspect(ctx context.Context, data []byte) (*PDFInfo, error)
}

// Recorder receives pipeline measurements. A nil Recorder is valid.
type Recorder interface {
	StageFinished(stage Stage, outcome string, d time.Duration)
	TransitionRejected(stage Stage, reason string)
	ValidationIssues(mapping string, errors, warnings int)
	FairScored(total int, grade string)
}
