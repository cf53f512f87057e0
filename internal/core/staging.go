package core

// staging.go implements the staged-commit protocol for stage artifacts.
//
// Artifacts are written under staging/<session>/<txn>/ while a stage runs.
// After the store commit succeeds a commit entry naming the prefix is audited,
// the artifacts are copied to their final keys and the staging prefix is
// deleted; on failure the prefix is discarded. The sweep publishes expired
// prefixes that have a commit entry and deletes the others as orphans.

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// StagingRoot is the key prefix of all staged artifacts.
const StagingRoot = "staging/"

// StagedObject is one artifact written to staging.
type StagedObject struct {
	StagingKey  string
	FinalKey    string
	ContentType string
	Size        int64
}

// Staging is one stage's set of staged artifacts.
// It is safe for concurrent Put calls.
type Staging struct {
	svc       *Service
	sessionID string
	stage     Stage
	txn       string

	mu      sync.Mutex
	objects []StagedObject
	done    bool
}

// stagingPrefix is the staging prefix for one session transaction.
func stagingPrefix(sessionID, txn string) string {
	return StagingRoot + sessionID + "/" + txn + "/"
}

// beginStaging opens a staging transaction for a session stage.
func (s *Service) beginStaging(sessionID string, stage Stage) *Staging {
	return &Staging{
		svc:       s,
		sessionID: sessionID,
		stage:     stage,
		txn:       uuid.NewString(),
	}
}

// Prefix returns the staging prefix of this transaction.
func (st *Staging) Prefix() string {
	return stagingPrefix(st.sessionID, st.txn)
}

// Put writes data to staging; finalKey is where Publish will copy it.
func (st *Staging) Put(ctx context.Context, finalKey string, data []byte, contentType string) error {
	key := st.Prefix() + strings.TrimPrefix(path.Clean("/"+finalKey), "/")
	if _, err := st.svc.objects.Put(ctx, key, data, contentType); err != nil {
		return &PersistenceError{Op: "storage put " + finalKey, Err: err}
	}

	st.mu.Lock()
	st.objects = append(st.objects, StagedObject{
		StagingKey:  key,
		FinalKey:    finalKey,
		ContentType: contentType,
		Size:        int64(len(data)),
	})
	st.mu.Unlock()

	st.svc.LogAudit(ctx, AuditLogParams{
		Action:    ActionArtifactStage,
		SessionID: st.sessionID,
		Stage:     st.stage,
		Detail:    key,
	})
	return nil
}

// CopyIn stages an existing object; finalKey is where Publish will copy it.
func (st *Staging) CopyIn(ctx context.Context, srcKey, finalKey, contentType string, size int64) error {
	key := st.Prefix() + strings.TrimPrefix(path.Clean("/"+finalKey), "/")
	if err := st.svc.objects.Copy(ctx, srcKey, key); err != nil {
		return &PersistenceError{Op: "storage copy " + srcKey, Err: err}
	}

	st.mu.Lock()
	st.objects = append(st.objects, StagedObject{
		StagingKey:  key,
		FinalKey:    finalKey,
		ContentType: contentType,
		Size:        size,
	})
	st.mu.Unlock()

	st.svc.LogAudit(ctx, AuditLogParams{
		Action:    ActionArtifactStage,
		SessionID: st.sessionID,
		Stage:     st.stage,
		Detail:    srcKey + " -> " + key,
	})
	return nil
}

// Objects returns the staged artifacts in write order.
func (st *Staging) Objects() []StagedObject {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]StagedObject(nil), st.objects...)
}

// Exists reports whether finalKey was staged in this transaction.
func (st *Staging) Exists(finalKey string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, o := range st.objects {
		if o.FinalKey == finalKey {
			return true
		}
	}
	return false
}

// Publish records the commit, copies every staged artifact to its final key,
// then deletes the staging prefix. It must only be called after the store
// commit. A copy failure leaves staging in place for the sweep to publish and
// returns a PersistenceError, which the caller logs rather than failing the
// stage.
func (st *Staging) Publish(ctx context.Context) error {
	objects := st.Objects()
	st.svc.LogAudit(ctx, AuditLogParams{
		Action:    ActionArtifactCommit,
		SessionID: st.sessionID,
		Stage:     st.stage,
		Detail:    st.Prefix(),
	})
	for _, o := range objects {
		if err := st.svc.objects.Copy(ctx, o.StagingKey, o.FinalKey); err != nil {
			return &PersistenceError{Op: "storage publish " + o.FinalKey, Err: err}
		}
	}
	st.svc.LogAudit(ctx, AuditLogParams{
		Action:    ActionArtifactPublish,
		SessionID: st.sessionID,
		Stage:     st.stage,
		Detail:    fmt.Sprintf("%d artifacts from %s", len(objects), st.Prefix()),
	})
	st.cleanup(ctx, objects)
	return nil
}

// Discard deletes every staged artifact. Safe to call after Publish.
func (st *Staging) Discard(ctx context.Context) {
	st.mu.Lock()
	if st.done {
		st.mu.Unlock()
		return
	}
	st.mu.Unlock()

	objects := st.Objects()
	st.cleanup(ctx, objects)
	if len(objects) > 0 {
		st.svc.LogAudit(ctx, AuditLogParams{
			Action:    ActionArtifactDiscard,
			SessionID: st.sessionID,
			Stage:     st.stage,
			Detail:    fmt.Sprintf("%d artifacts under %s", len(objects), st.Prefix()),
		})
	}
}

func (st *Staging) cleanup(ctx context.Context, objects []StagedObject) {
	st.mu.Lock()
	st.done = true
	st.mu.Unlock()

	for _, o := range objects {
		if err := st.svc.objects.Delete(ctx, o.StagingKey); err != nil {
			st.svc.sessionLogger(ctx, st.sessionID, st.stage).
				Warn("staging delete failed", "key", o.StagingKey, "error", err)
		}
	}
}
