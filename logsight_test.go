//go:build cgo

package logsight

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/logsight/store"
)

func newTestEngine(t *testing.T) Engine {
	t.Helper()
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "test.db")
	cfg.StorageDir = dir
	cfg.JWTSecret = "test-secret"
	cfg.Chat.Provider = "" // no LLM in tests

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// seedIngestion builds the org -> project -> ingestion chain.
func seedIngestion(t *testing.T, e Engine) store.Ingestion {
	t.Helper()
	ctx := context.Background()

	org, err := e.Store().CreateOrganization(ctx, "Acme")
	if err != nil {
		t.Fatalf("creating org: %v", err)
	}
	project, err := e.Store().CreateProject(ctx, org.ID, "api")
	if err != nil {
		t.Fatalf("creating project: %v", err)
	}
	ing, err := e.CreateIngestion(ctx, project.ID, "paste", "")
	if err != nil {
		t.Fatalf("creating ingestion: %v", err)
	}
	return ing
}

// sampleLogs mixes text logs, a JSON line, and a multi-line stack trace.
func sampleLogs() string {
	var b strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "2024-01-01 10:00:%02d ERROR db: password authentication failed for user u%05d\n", i, 10000+i)
	}
	b.WriteString(`{"ts":"2024-01-01T10:01:00Z","level":"error","service":"api","message":"connection refused 10.0.0.1"}` + "\n")
	b.WriteString("2024-01-01 10:02:00 ERROR svc-a: boom\n")
	b.WriteString("  at com.example.A.m(A.java:1)\n")
	b.WriteString("Caused by: java.lang.NullPointerException\n")
	return b.String()
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	ing := seedIngestion(t, e)

	if err := e.SubmitText(ctx, ing.ID, sampleLogs()); err != nil {
		t.Fatalf("submitting text: %v", err)
	}
	if err := e.ProcessIngestion(ctx, ing.ID); err != nil {
		t.Fatalf("processing: %v", err)
	}

	got, err := e.Store().GetIngestion(ctx, ing.ID)
	if err != nil {
		t.Fatalf("loading ingestion: %v", err)
	}
	if got.Status != store.StatusDone {
		t.Fatalf("status = %q, want done", got.Status)
	}

	events, err := e.Store().ListEvents(ctx, ing.ID, store.EventFilter{Limit: 100})
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	if len(events) != 7 {
		t.Fatalf("got %d events, want 7", len(events))
	}
	for i, ev := range events {
		if ev.Seq != int64(i+1) {
			t.Errorf("event %d: seq = %d, want %d", i, ev.Seq, i+1)
		}
		if ev.Fingerprint == "" {
			t.Errorf("event %d: empty fingerprint", i)
		}
	}

	// The five auth failures differ only in long numbers, so they share
	// one fingerprint.
	fp := events[0].Fingerprint
	for i := 1; i < 5; i++ {
		if events[i].Fingerprint != fp {
			t.Errorf("event %d: fingerprint %s, want %s", i, events[i].Fingerprint, fp)
		}
	}

	if err := e.AnalyzeFindings(ctx, ing.ID); err != nil {
		t.Fatalf("analyzing: %v", err)
	}
	got, err = e.Store().GetIngestion(ctx, ing.ID)
	if err != nil {
		t.Fatalf("reloading ingestion: %v", err)
	}
	if got.FindingStatus != store.StatusDone {
		t.Fatalf("finding_status = %q, want done", got.FindingStatus)
	}

	list, err := e.Store().ListFindings(ctx, ing.ID)
	if err != nil {
		t.Fatalf("listing findings: %v", err)
	}
	var authFinding *store.Finding
	for i := range list {
		if list[i].RuleID == "db_auth_failure" {
			authFinding = &list[i]
		}
	}
	if authFinding == nil {
		t.Fatalf("no db_auth_failure finding, got %+v", list)
	}
	if authFinding.TotalOccurrences < 5 {
		t.Errorf("db_auth_failure occurrences = %d, want >= 5", authFinding.TotalOccurrences)
	}
}

func TestAnalyzeFindingsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	ing := seedIngestion(t, e)

	if err := e.SubmitText(ctx, ing.ID, sampleLogs()); err != nil {
		t.Fatalf("submitting text: %v", err)
	}
	if err := e.ProcessIngestion(ctx, ing.ID); err != nil {
		t.Fatalf("processing: %v", err)
	}

	if err := e.AnalyzeFindings(ctx, ing.ID); err != nil {
		t.Fatalf("first analysis: %v", err)
	}
	first, err := e.Store().ListFindings(ctx, ing.ID)
	if err != nil {
		t.Fatalf("listing findings: %v", err)
	}

	if err := e.AnalyzeFindings(ctx, ing.ID); err != nil {
		t.Fatalf("second analysis: %v", err)
	}
	second, err := e.Store().ListFindings(ctx, ing.ID)
	if err != nil {
		t.Fatalf("relisting findings: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("finding count changed across runs: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i].RuleID != second[i].RuleID {
			t.Errorf("finding %d: rule %s -> %s", i, first[i].RuleID, second[i].RuleID)
		}
		if first[i].TotalOccurrences != second[i].TotalOccurrences {
			t.Errorf("finding %d: occurrences %d -> %d",
				i, first[i].TotalOccurrences, second[i].TotalOccurrences)
		}
	}
}

func TestProcessIngestionRefusesRerun(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	ing := seedIngestion(t, e)

	if err := e.SubmitText(ctx, ing.ID, "INFO hello\n"); err != nil {
		t.Fatalf("submitting text: %v", err)
	}
	if err := e.ProcessIngestion(ctx, ing.ID); err != nil {
		t.Fatalf("processing: %v", err)
	}

	if err := e.ProcessIngestion(ctx, ing.ID); !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("rerun: err = %v, want ErrAlreadyProcessed", err)
	}
	if err := e.SubmitText(ctx, ing.ID, "more text"); !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("resubmit: err = %v, want ErrAlreadyProcessed", err)
	}
}

func TestProcessIngestionMissingBlob(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	ing := seedIngestion(t, e)

	err := e.ProcessIngestion(ctx, ing.ID)
	if !errors.Is(err, ErrBlobMissing) {
		t.Fatalf("err = %v, want ErrBlobMissing", err)
	}

	got, err := e.Store().GetIngestion(ctx, ing.ID)
	if err != nil {
		t.Fatalf("loading ingestion: %v", err)
	}
	if got.Status != store.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.Error == "" {
		t.Error("error detail not recorded")
	}
}

func TestProcessIngestionRetriesFromFailed(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	ing := seedIngestion(t, e)

	if err := e.ProcessIngestion(ctx, ing.ID); err == nil {
		t.Fatal("expected failure without a payload")
	}
	if err := e.SubmitText(ctx, ing.ID, "ERROR it broke\n"); err != nil {
		t.Fatalf("submitting after failure: %v", err)
	}
	if err := e.ProcessIngestion(ctx, ing.ID); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}

	got, err := e.Store().GetIngestion(ctx, ing.ID)
	if err != nil {
		t.Fatalf("loading ingestion: %v", err)
	}
	if got.Status != store.StatusDone {
		t.Errorf("status = %q, want done", got.Status)
	}
}

func TestProcessIngestionUnknown(t *testing.T) {
	e := newTestEngine(t)
	err := e.ProcessIngestion(context.Background(), "no-such-id")
	if !errors.Is(err, ErrIngestionNotFound) {
		t.Errorf("err = %v, want ErrIngestionNotFound", err)
	}
}

func TestSubmitTextEnqueuesJob(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	ing := seedIngestion(t, e)

	if err := e.SubmitText(ctx, ing.ID, "INFO hello\n"); err != nil {
		t.Fatalf("submitting text: %v", err)
	}
	pending, err := e.Store().PendingJobs(ctx)
	if err != nil {
		t.Fatalf("counting jobs: %v", err)
	}
	if pending != 1 {
		t.Errorf("pending jobs = %d, want 1", pending)
	}
}

func TestOverview(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	ing := seedIngestion(t, e)

	if err := e.SubmitText(ctx, ing.ID, sampleLogs()); err != nil {
		t.Fatalf("submitting text: %v", err)
	}
	if err := e.ProcessIngestion(ctx, ing.ID); err != nil {
		t.Fatalf("processing: %v", err)
	}
	if err := e.AnalyzeFindings(ctx, ing.ID); err != nil {
		t.Fatalf("analyzing: %v", err)
	}

	ov, err := e.Overview(ctx, ing.ID)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.Stats.TotalEvents != 7 {
		t.Errorf("total events = %d, want 7", ov.Stats.TotalEvents)
	}
	if len(ov.TopGroups) == 0 {
		t.Error("no top groups")
	}
	if len(ov.Findings) == 0 {
		t.Error("no findings")
	}
	if ov.TopGroups[0].Count != 5 {
		t.Errorf("top group count = %d, want 5", ov.TopGroups[0].Count)
	}
}

func TestDeleteIngestion(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	ing := seedIngestion(t, e)

	if err := e.SubmitText(ctx, ing.ID, "INFO hello\n"); err != nil {
		t.Fatalf("submitting text: %v", err)
	}
	if err := e.ProcessIngestion(ctx, ing.ID); err != nil {
		t.Fatalf("processing: %v", err)
	}

	if err := e.DeleteIngestion(ctx, ing.ID); err != nil {
		t.Fatalf("deleting: %v", err)
	}
	if _, err := e.Store().GetIngestion(ctx, ing.ID); err == nil {
		t.Error("ingestion still present after delete")
	}
	if err := e.DeleteIngestion(ctx, ing.ID); !errors.Is(err, ErrIngestionNotFound) {
		t.Errorf("double delete: err = %v, want ErrIngestionNotFound", err)
	}
}

func TestGenerateInsightWithoutProvider(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	ing := seedIngestion(t, e)

	_, err := e.GenerateInsight(ctx, ing.ID, store.ScopeGroup, "deadbeef")
	if !errors.Is(err, ErrLLMUnavailable) {
		t.Errorf("err = %v, want ErrLLMUnavailable", err)
	}
}

func TestCreateIngestionValidatesSourceType(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	org, err := e.Store().CreateOrganization(ctx, "Acme")
	if err != nil {
		t.Fatalf("creating org: %v", err)
	}
	project, err := e.Store().CreateProject(ctx, org.ID, "api")
	if err != nil {
		t.Fatalf("creating project: %v", err)
	}

	for _, src := range []string{"paste", "upload", "bundle"} {
		if _, err := e.CreateIngestion(ctx, project.ID, src, ""); err != nil {
			t.Errorf("source_type %q rejected: %v", src, err)
		}
	}
	if _, err := e.CreateIngestion(ctx, project.ID, "stream", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("source_type stream: err = %v, want ErrValidation", err)
	}
}
