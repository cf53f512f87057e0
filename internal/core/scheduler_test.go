package core

import (
	"context"
	"testing"
	"time"
)

func TestSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	h.objects.now = func() time.Time { return old }
	for _, key := range []string{"staging/sess-1/txn-a/x/table_1.csv", "staging/sess-1/txn-a/x/table_2.csv"} {
		if _, err := h.objects.Put(ctx, key, []byte("a"), "text/csv"); err != nil {
			t.Fatal(err)
		}
	}
	h.objects.now = time.Now
	if _, err := h.objects.Put(ctx, "staging/sess-2/txn-b/x/table_1.csv", []byte("a"), "text/csv"); err != nil {
		t.Fatal(err)
	}

	sess := h.upload(t)
	h.store.now = func() time.Time { return old }
	if _, err := h.store.CompareAndSwapState(ctx, sess.ID, StateUploaded, StateAnalyzing); err != nil {
		t.Fatal(err)
	}
	h.store.now = time.Now

	res, err := h.svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.StagingDeleted != 2 || res.SessionsFailed != 1 {
		t.Errorf("Sweep() = %+v, want 2 staging deleted and 1 session failed", res)
	}

	keys := h.stagingKeys(t)
	if len(keys) != 1 || keys[0] != "staging/sess-2/txn-b/x/table_1.csv" {
		t.Errorf("remaining staging = %v", keys)
	}

	got, _ := h.svc.GetSession(ctx, sess.ID)
	if got.State != StateFailed || got.ErrorStage != StageAnalyze {
		t.Errorf("stuck session = %s/%s, want failed/analyze", got.State, got.ErrorStage)
	}

	entries, _ := h.store.ListAudit(ctx, "sess-1")
	if len(entries) != 1 || entries[0].Action != ActionStagingSweep || entries[0].Severity != SeverityHigh {
		t.Errorf("sweep audit = %+v", entries)
	}

	// A second sweep finds nothing.
	res, err = h.svc.Sweep(ctx)
	if err != nil || res.StagingDeleted != 0 || res.SessionsFailed != 0 {
		t.Errorf("second Sweep() = %+v, %v", res, err)
	}
}

// completingStore finishes the analyze stage of every stuck session right
// after the sweep reads them, as a stage that completes mid-sweep would.
type completingStore struct {
	*MemoryStore
}

func (c completingStore) StuckSessions(ctx context.Context, before time.Time) ([]*ExtractionSession, error) {
	stuck, err := c.MemoryStore.StuckSessions(ctx, before)
	for _, s := range stuck {
		if _, err := c.MemoryStore.CompleteStage(ctx, s.ID, StageAnalyze, StateAnalyzed, StepAnalyzed, CompletionResult{}); err != nil {
			return nil, err
		}
	}
	return stuck, err
}

func TestSweep_SessionCompletedDuringSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.serviceWith(t, completingStore{h.store}, nil, ServiceConfig{})

	sess := h.upload(t)
	h.store.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	if _, err := h.store.CompareAndSwapState(ctx, sess.ID, StateUploaded, StateAnalyzing); err != nil {
		t.Fatal(err)
	}
	h.store.now = time.Now

	res, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.SessionsFailed != 0 {
		t.Errorf("SessionsFailed = %d, want 0", res.SessionsFailed)
	}

	got, _ := h.svc.GetSession(ctx, sess.ID)
	if got.State != StateAnalyzed || got.ErrorStage != "" {
		t.Errorf("session = %s/%q, want analyzed with no error", got.State, got.ErrorStage)
	}
}

func TestStartScheduler(t *testing.T) {
	h := newHarness(t)

	t.Run("invalid schedule", func(t *testing.T) {
		if err := h.svc.StartScheduler(context.Background(), "not a schedule"); err == nil {
			t.Error("StartScheduler() error = nil, want parse error")
		}
	})

	t.Run("stops on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- h.svc.StartScheduler(ctx, "@every 1h") }()

		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("StartScheduler() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("StartScheduler() did not return after cancel")
		}
	})
}

func TestStageOf(t *testing.T) {
	tests := []struct {
		state State
		want  Stage
	}{
		{StateAnalyzing, StageAnalyze},
		{StateExtracting, StageExtract},
		{StateLoading, StageLoad},
		{StateAnalyzed, ""},
	}
	for _, tt := range tests {
		if got := stageOf(tt.state); got != tt.want {
			t.Errorf("stageOf(%s) = %q, want %q", tt.state, got, tt.want)
		}
	}
}
