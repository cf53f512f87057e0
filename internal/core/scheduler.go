package core

// scheduler.go runs periodic maintenance:
//  1. Finish publishing staging prefixes whose stage committed but whose
//     publish failed, and delete the rest of the staging objects older than
//     StagingTTL (left by crashed or failed stages)
//  2. Fail sessions stuck in an in-progress state longer than StuckAfter
//
// A failed sweep is logged and retried on the next tick; it never stops the
// scheduler.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Maintenance defaults.
const (
	DefaultSweepSchedule = "@every 15m"
	DefaultStagingTTL    = 24 * time.Hour
	DefaultStuckAfter    = 30 * time.Minute
)

// SweepResult counts what one maintenance sweep did.
type SweepResult struct {
	StagingDeleted   int
	StagingPublished int
	SessionsFailed   int
	DurationMs       int64
}

// StartScheduler runs Sweep immediately and then on schedule (cron syntax or
// a descriptor such as "@every 15m") until ctx is cancelled.
func (s *Service) StartScheduler(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { s.runSweep(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}

	slog.Info("maintenance scheduler started",
		"schedule", schedule,
		"staging_ttl", s.stagingTTL(),
		"stuck_after", s.stuckAfter(),
	)

	s.runSweep(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("maintenance scheduler stopped")
	return nil
}

func (s *Service) runSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.Sweep(ctx)
	if err != nil {
		slog.Error("maintenance sweep failed", "error", err)
		return
	}
	slog.Info("maintenance sweep completed",
		"staging_deleted", res.StagingDeleted,
		"staging_published", res.StagingPublished,
		"sessions_failed", res.SessionsFailed,
		"duration_ms", res.DurationMs,
	)
}

// Sweep performs one maintenance cycle.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var res SweepResult

	deleted, published, err := s.sweepStaging(ctx)
	res.StagingDeleted, res.StagingPublished = deleted, published
	if err != nil {
		return res, err
	}

	failed, err := s.failStuckSessions(ctx)
	res.SessionsFailed = failed
	res.DurationMs = time.Since(start).Milliseconds()
	return res, err
}

func (s *Service) stagingTTL() time.Duration {
	if s.cfg.StagingTTL > 0 {
		return s.cfg.StagingTTL
	}
	return DefaultStagingTTL
}

func (s *Service) stuckAfter() time.Duration {
	if s.cfg.StuckAfter > 0 {
		return s.cfg.StuckAfter
	}
	return DefaultStuckAfter
}

// stagedTxn is the expired part of one staging transaction.
type stagedTxn struct {
	sessionID string
	prefix    string
	keys      []string
}

// sweepStaging handles staging objects older than the TTL. A transaction
// whose stage committed is published to its final keys; any other is an
// orphan and is deleted.
func (s *Service) sweepStaging(ctx context.Context) (deleted, published int, err error) {
	objs, err := s.objects.List(ctx, StagingRoot)
	if err != nil {
		return 0, 0, &PersistenceError{Op: "storage list " + StagingRoot, Err: err}
	}

	cutoff := s.now().Add(-s.stagingTTL())
	var txns []*stagedTxn
	byPrefix := make(map[string]*stagedTxn)
	for _, o := range objs {
		if !o.LastModified.Before(cutoff) {
			continue
		}
		// staging/<session>/<txn>/...
		parts := strings.SplitN(strings.TrimPrefix(o.Key, StagingRoot), "/", 3)
		var sessionID, prefix string
		if len(parts) == 3 {
			sessionID, prefix = parts[0], stagingPrefix(parts[0], parts[1])
		}
		txn, ok := byPrefix[prefix]
		if !ok {
			txn = &stagedTxn{sessionID: sessionID, prefix: prefix}
			byPrefix[prefix] = txn
			txns = append(txns, txn)
		}
		txn.keys = append(txn.keys, o.Key)
	}

	trails := make(map[string][]AuditEntry)
	perSession := make(map[string]int)
	for _, txn := range txns {
		if txn.prefix != "" && s.stagingCommitted(ctx, trails, txn) {
			if s.republish(ctx, txn) {
				published += len(txn.keys)
			}
			continue
		}
		for _, key := range txn.keys {
			if err := s.objects.Delete(ctx, key); err != nil {
				slog.Warn("delete stale staging object failed", "key", key, "error", err)
				continue
			}
			deleted++
			if txn.sessionID != "" {
				perSession[txn.sessionID]++
			}
		}
	}

	for sessionID, n := range perSession {
		s.LogAudit(ctx, AuditLogParams{
			Action:    ActionStagingSweep,
			SessionID: sessionID,
			Detail:    fmt.Sprintf("deleted %d stale staging objects", n),
		})
	}
	return deleted, published, nil
}

// stagingCommitted reports whether the audit trail records a commit for the
// transaction. If the trail cannot be read the transaction is treated as
// committed, so nothing is deleted that may still be needed.
func (s *Service) stagingCommitted(ctx context.Context, trails map[string][]AuditEntry, txn *stagedTxn) bool {
	trail, ok := trails[txn.sessionID]
	if !ok {
		var err error
		trail, err = s.store.ListAudit(ctx, txn.sessionID)
		if err != nil {
			slog.Warn("read audit trail for staging sweep failed", "session_id", txn.sessionID, "error", err)
			return true
		}
		trails[txn.sessionID] = trail
	}
	for _, e := range trail {
		if e.Action == ActionArtifactCommit && e.Detail == txn.prefix {
			return true
		}
	}
	return false
}

// republish copies a committed transaction's objects to their final keys and
// deletes them from staging. On a copy failure the objects stay for the next
// sweep.
func (s *Service) republish(ctx context.Context, txn *stagedTxn) bool {
	for _, key := range txn.keys {
		final := strings.TrimPrefix(key, txn.prefix)
		if err := s.objects.Copy(ctx, key, final); err != nil {
			slog.Warn("republish staged artifact failed", "key", key, "error", err)
			return false
		}
	}
	for _, key := range txn.keys {
		if err := s.objects.Delete(ctx, key); err != nil {
			slog.Warn("delete republished staging object failed", "key", key, "error", err)
		}
	}
	s.LogAudit(ctx, AuditLogParams{
		Action:    ActionArtifactPublish,
		SessionID: txn.sessionID,
		Detail:    fmt.Sprintf("%d artifacts from %s by sweep", len(txn.keys), txn.prefix),
	})
	return true
}

// failStuckSessions fails sessions whose stage has not progressed in time,
// so a crashed process cannot leave a session locked forever.
func (s *Service) failStuckSessions(ctx context.Context) (int, error) {
	after := s.stuckAfter()
	stuck, err := s.store.StuckSessions(ctx, s.now().Add(-after))
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, sess := range stuck {
		stage := stageOf(sess.State)
		cause := &ExternalServiceError{
			Service: "pipeline",
			Op:      string(stage),
			Timeout: true,
			Err:     fmt.Errorf("no progress for %s", after),
		}
		if _, err := s.FailStage(ctx, sess.ID, stage, cause); err != nil {
			if errors.Is(err, ErrConflict) {
				slog.Info("stuck session progressed before sweep", "session_id", sess.ID, "stage", stage)
			} else {
				slog.Warn("fail stuck session failed", "session_id", sess.ID, "error", err)
			}
			continue
		}
		failed++
	}
	return failed, nil
}

// stageOf returns the stage that owns an in-progress state.
func stageOf(st State) Stage {
	for _, stage := range []Stage{StageAnalyze, StageExtract, StageLoad} {
		if RunningState(stage) == st {
			return stage
		}
	}
	return ""
}
