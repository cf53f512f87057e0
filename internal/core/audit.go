package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/thermoextract/internal/logging"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionSessionCreate   AuditAction = "session_create"
	ActionStageBegin      AuditAction = "stage_begin"
	ActionStageComplete   AuditAction = "stage_complete"
	ActionStageFail       AuditAction = "stage_fail"
	ActionSessionReset    AuditAction = "session_reset"
	ActionArtifactStage   AuditAction = "artifact_stage"
	ActionArtifactCommit  AuditAction = "artifact_commit"
	ActionArtifactPublish AuditAction = "artifact_publish"
	ActionArtifactDiscard AuditAction = "artifact_discard"
	ActionStagingSweep    AuditAction = "staging_sweep"
	ActionDatasetCreate   AuditAction = "dataset_create"
	ActionDatasetReuse    AuditAction = "dataset_reuse"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEntry is one append-only record of a session transition or artifact
// operation. Artifact entries double as the reconciliation log for staged
// writes: a commit entry names a staging prefix the sweep must publish rather
// than delete.
type AuditEntry struct {
	ID        string        `json:"id"`
	SessionID string        `json:"sessionId"`
	Action    AuditAction   `json:"action"`
	Severity  AuditSeverity `json:"severity"`
	Stage     Stage         `json:"stage,omitempty"`
	FromState State         `json:"fromState,omitempty"`
	ToState   State         `json:"toState,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Actor     string        `json:"actor,omitempty"`
	IPAddress string        `json:"ipAddress,omitempty"`
	UserAgent string        `json:"userAgent,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// AuditLogParams contains parameters for creating an audit log entry.
type AuditLogParams struct {
	Action    AuditAction
	SessionID string
	Stage     Stage
	From      State
	To        State
	Detail    string
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionStageFail, ActionArtifactDiscard, ActionStagingSweep:
		return SeverityHigh
	case ActionSessionReset:
		return SeverityCritical
	case ActionArtifactStage, ActionArtifactCommit, ActionArtifactPublish:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// newAuditEntry builds an entry from params and the request info in ctx.
func newAuditEntry(ctx context.Context, p AuditLogParams, now time.Time) AuditEntry {
	return AuditEntry{
		ID:        uuid.NewString(),
		SessionID: p.SessionID,
		Action:    p.Action,
		Severity:  determineSeverity(p.Action),
		Stage:     p.Stage,
		FromState: p.From,
		ToState:   p.To,
		Detail:    p.Detail,
		Actor:     ActorFromContext(ctx),
		IPAddress: IPAddressFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
		CreatedAt: now.UTC(),
	}
}

// LogAudit appends an audit entry. A failed append is logged and does not
// fail the operation being audited.
func (s *Service) LogAudit(ctx context.Context, p AuditLogParams) {
	e := newAuditEntry(ctx, p, s.now())
	if err := s.store.AppendAudit(ctx, e); err != nil {
		logging.WithFields(ctx, "session_id", p.SessionID, "action", p.Action).
			Warn("audit append failed", "error", err)
	}
}

// AuditTrail returns the audit entries of a session, oldest first.
func (s *Service) AuditTrail(ctx context.Context, sessionID string) ([]AuditEntry, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.store.ListAudit(ctx, sess.ID)
}
