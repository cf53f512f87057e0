package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/thermoextract/internal/logging"
)

// Defaults applied by NewService to zero ServiceConfig fields.
const (
	DefaultAnalysisTimeout    = 5 * time.Minute
	DefaultTableTimeout       = 2 * time.Minute
	DefaultMaxPDFBytes        = 50 << 20
	DefaultExtractParallelism = 3
)

// ServiceConfig tunes the pipeline.
type ServiceConfig struct {
	AnalysisTimeout    time.Duration // bound on one Analyze call
	TableTimeout       time.Duration // bound on one ExtractTable call
	MaxPDFBytes        int64
	ExtractParallelism int
	Retry              RetryPolicy
	StagingTTL         time.Duration // age after which orphaned staging is swept
	StuckAfter         time.Duration // age after which an in-progress session is failed
}

// Deps are the collaborators of the service.
type Deps struct {
	Store    Store
	Objects  ObjectStore
	Analyzer Analyzer
	PDF      PDFInspector
	Recorder Recorder      // optional
	Limiter  *StageLimiter // optional
}

// Service runs the analyze, extract and load stages over a session.
type Service struct {
	store    Store
	objects  ObjectStore
	analyzer Analyzer
	pdf      PDFInspector
	recorder Recorder
	limiter  *StageLimiter
	cfg      ServiceConfig
	now      func() time.Time
}

// NewService creates a Service. Store, Objects, Analyzer and PDF are required.
func NewService(deps Deps, cfg ServiceConfig) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("core: store is required")
	case deps.Objects == nil:
		return nil, errors.New("core: object store is required")
	case deps.Analyzer == nil:
		return nil, errors.New("core: analyzer is required")
	case deps.PDF == nil:
		return nil, errors.New("core: pdf inspector is required")
	}

	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = DefaultAnalysisTimeout
	}
	if cfg.TableTimeout <= 0 {
		cfg.TableTimeout = DefaultTableTimeout
	}
	if cfg.MaxPDFBytes <= 0 {
		cfg.MaxPDFBytes = DefaultMaxPDFBytes
	}
	if cfg.ExtractParallelism <= 0 {
		cfg.ExtractParallelism = DefaultExtractParallelism
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = DefaultRetryPolicy
	}

	rec := deps.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	lim := deps.Limiter
	if lim == nil {
		lim = NewStageLimiter(DefaultMaxConcurrentStages, DefaultMaxWaitTime)
	}

	return &Service{
		store:    deps.Store,
		objects:  deps.Objects,
		analyzer: deps.Analyzer,
		pdf:      deps.PDF,
		recorder: rec,
		limiter:  lim,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// Limiter returns the stage limiter, for status reporting and shutdown drain.
func (s *Service) Limiter() *StageLimiter {
	return s.limiter
}

type nopRecorder struct{}

func (nopRecorder) StageFinished(Stage, string, time.Duration) {}
func (nopRecorder) TransitionRejected(Stage, string)           {}
func (nopRecorder) ValidationIssues(string, int, int)          {}
func (nopRecorder) FairScored(int, string)                     {}

func (s *Service) sessionLogger(ctx context.Context, sessionID string, stage Stage) *slog.Logger {
	return logging.WithSession(ctx, sessionID, string(stage))
}

// sessionKey is the object key of an artifact under a session prefix.
func sessionKey(sess *ExtractionSession, name string) string {
	return sess.SessionID + "/" + name
}

// ----------------------------------------------------------------------------
// State transitions
// ----------------------------------------------------------------------------

// BeginStage moves a session into the stage's in-progress state. The move is
// a compare-and-swap on the state observed here, so of two concurrent callers
// exactly one succeeds and the other gets ErrConflict.
func (s *Service) BeginStage(ctx context.Context, id string, stage Stage) (*ExtractionSession, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := CheckBegin(sess, stage)
	if err != nil {
		s.recorder.TransitionRejected(stage, "invalid_transition")
		return nil, err
	}

	updated, err := s.store.CompareAndSwapState(ctx, sess.ID, sess.State, next)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.recorder.TransitionRejected(stage, "conflict")
		}
		return nil, err
	}

	s.LogAudit(ctx, AuditLogParams{
		Action:    ActionStageBegin,
		SessionID: sess.ID,
		Stage:     stage,
		From:      sess.State,
		To:        next,
	})
	s.sessionLogger(ctx, sess.ID, stage).Info("stage started", "from", sess.State, "to", next)
	return updated, nil
}

// CompleteStage writes the stage's result and moves the session to the
// stage's completed state.
func (s *Service) CompleteStage(ctx context.Context, sess *ExtractionSession, stage Stage, res CompletionResult) (*ExtractionSession, error) {
	next, err := Transition(RunningState(stage), CompleteEvent(stage))
	if err != nil {
		return nil, err
	}

	updated, err := s.store.CompleteStage(ctx, sess.ID, stage, next, StepFor(next, sess.CurrentStep), res)
	if err != nil {
		return nil, err
	}

	s.LogAudit(ctx, AuditLogParams{
		Action:    ActionStageComplete,
		SessionID: sess.ID,
		Stage:     stage,
		From:      RunningState(stage),
		To:        next,
	})
	return updated, nil
}

// FailStage marks the session failed with cause. It runs detached from ctx
// cancellation so a cancelled request still records the failure.
func (s *Service) FailStage(ctx context.Context, id string, stage Stage, cause error) (*ExtractionSession, error) {
	ctx = context.WithoutCancel(ctx)

	updated, err := s.store.FailStage(ctx, id, stage, cause.Error())
	if err != nil {
		return nil, err
	}

	s.LogAudit(ctx, AuditLogParams{
		Action:    ActionStageFail,
		SessionID: id,
		Stage:     stage,
		From:      RunningState(stage),
		To:        StateFailed,
		Detail:    cause.Error(),
	})
	s.sessionLogger(ctx, id, stage).Error("stage failed", "error", cause, "code", MapError(cause).Code)
	return updated, nil
}

// Reset returns a failed session to the last good state implied by the stage
// that failed, clearing the error.
func (s *Service) Reset(ctx context.Context, id string) (*ExtractionSession, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	target, step, err := ResetTarget(sess)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.ResetSession(ctx, sess.ID, target, step)
	if err != nil {
		return nil, err
	}

	s.LogAudit(ctx, AuditLogParams{
		Action:    ActionSessionReset,
		SessionID: sess.ID,
		Stage:     sess.ErrorStage,
		From:      StateFailed,
		To:        target,
		Detail:    sess.ErrorMessage,
	})
	s.sessionLogger(ctx, sess.ID, sess.ErrorStage).Info("session reset", "to", target)
	return updated, nil
}

// runStage acquires a limiter slot, begins the stage and runs fn with the
// in-progress session. Begin errors are returned as-is and leave the session
// untouched; an error from fn fails the session and is returned as a
// *StageError.
func (s *Service) runStage(ctx context.Context, id string, stage Stage, fn func(ctx context.Context, sess *ExtractionSession) error) error {
	if err := s.limiter.Acquire(ctx, stage); err != nil {
		s.recorder.TransitionRejected(stage, "busy")
		return err
	}
	defer s.limiter.Release(stage)

	sess, err := s.BeginStage(ctx, id, stage)
	if err != nil {
		return err
	}

	start := time.Now()
	log := s.sessionLogger(ctx, sess.ID, stage)

	if err := fn(ctx, sess); err != nil {
		s.recorder.StageFinished(stage, "failed", time.Since(start))
		if _, ferr := s.FailStage(ctx, sess.ID, stage, err); ferr != nil {
			log.Error("recording stage failure failed", "error", ferr, "cause", err)
		}
		return &StageError{SessionID: sess.ID, Stage: stage, Err: err}
	}

	s.recorder.StageFinished(stage, "ok", time.Since(start))
	log.Info("stage completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// classifyTimeout marks err as a timeout when the call's own deadline expired.
func classifyTimeout(callCtx context.Context, service, op string, err error) error {
	if errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &ExternalServiceError{Service: service, Op: op, Timeout: true, Err: err}
	}
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return err
	}
	return &ExternalServiceError{Service: service, Op: op, Err: err}
}

// exists reports whether an object is stored at key.
func (s *Service) exists(ctx context.Context, key string) (bool, error) {
	objs, err := s.objects.List(ctx, key)
	if err != nil {
		return false, fmt.Errorf("list %s: %w", key, err)
	}
	for _, o := range objs {
		if o.Key == key {
			return true, nil
		}
	}
	return false, nil
}
