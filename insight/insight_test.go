//go:build cgo

package insight

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/logsight/llm"
	"github.com/brunobiangulo/logsight/store"
)

type stubChat struct {
	resp string
	err  error
	last llm.ChatRequest
}

func (s *stubChat) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResponse{Content: s.resp, Model: "stub", TotalTokens: 42}, nil
}

func newTestEngine(t *testing.T) (*Engine, *stubChat, *store.Store, string) {
	t.Helper()
	ctx := context.Background()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	org, err := s.CreateOrganization(ctx, "Acme")
	if err != nil {
		t.Fatalf("creating org: %v", err)
	}
	p, err := s.CreateProject(ctx, org.ID, "api")
	if err != nil {
		t.Fatalf("creating project: %v", err)
	}
	ing, err := s.CreateIngestion(ctx, p.ID, "paste", "")
	if err != nil {
		t.Fatalf("creating ingestion: %v", err)
	}

	chat := &stubChat{resp: "## Summary\nAll good."}
	return New(s, chat), chat, s, ing.ID
}

func seedGroup(t *testing.T, s *store.Store, ingestionID, fp string, n int) {
	t.Helper()
	events := make([]store.LogEvent, n)
	for i := range events {
		events[i] = store.LogEvent{
			IngestionID: ingestionID,
			Seq:         int64(i + 1),
			Level:       "ERROR",
			Service:     "api",
			Message:     fmt.Sprintf("connection refused from 10.0.0.%d", i+1),
			Raw:         "raw",
			Fingerprint: fp,
		}
	}
	if err := s.InsertEvents(context.Background(), events); err != nil {
		t.Fatalf("inserting events: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Prompt assembly
// ---------------------------------------------------------------------------

func TestGroupMessages(t *testing.T) {
	e, _, s, ingID := newTestEngine(t)
	seedGroup(t, s, ingID, "fp-group", 4)

	messages, err := e.groupMessages(context.Background(), ingID, "fp-group")
	if err != nil {
		t.Fatalf("group messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" || messages[1].Role != "user" {
		t.Errorf("roles: got %q/%q", messages[0].Role, messages[1].Role)
	}
	if !strings.Contains(messages[0].Content, "production incident analysis assistant") {
		t.Errorf("system prompt missing role statement: %q", messages[0].Content)
	}

	user := messages[1].Content
	for _, heading := range []string{
		"## Summary",
		"## What we know from evidence",
		"## Likely causes",
		"## Next checks",
		"## Mitigations",
		"## Longer-term fixes",
		"## Evidence cited",
	} {
		if !strings.Contains(user, heading) {
			t.Errorf("user prompt missing heading %q", heading)
		}
	}
	if !strings.Contains(user, `"type":"group"`) {
		t.Errorf("context missing type discriminator: %s", user)
	}
	if !strings.Contains(user, `"fingerprint":"fp-group"`) {
		t.Errorf("context missing fingerprint")
	}
	if !strings.Contains(user, `"total_events":4`) {
		t.Errorf("context missing total_events")
	}

	// The type discriminator leads and the events trail the context object.
	if strings.Index(user, `"type"`) > strings.Index(user, `"events"`) {
		t.Error("expected type key before events key")
	}
}

func TestGroupMessagesRedactMessages(t *testing.T) {
	e, _, s, ingID := newTestEngine(t)
	seedGroup(t, s, ingID, "fp-red", 2)

	messages, err := e.groupMessages(context.Background(), ingID, "fp-red")
	if err != nil {
		t.Fatalf("group messages: %v", err)
	}
	user := messages[1].Content

	if strings.Contains(user, "10.0.0.1") {
		t.Error("raw ip leaked into prompt")
	}
	if !strings.Contains(user, "<ip>") {
		t.Error("expected <ip> placeholder in samples")
	}
}

func TestGroupMessagesSampleCap(t *testing.T) {
	e, _, s, ingID := newTestEngine(t)
	seedGroup(t, s, ingID, "fp-big", 40)

	messages, err := e.groupMessages(context.Background(), ingID, "fp-big")
	if err != nil {
		t.Fatalf("group messages: %v", err)
	}
	if n := strings.Count(messages[1].Content, `"seq":`); n > maxSampleEvents {
		t.Errorf("expected at most %d samples, found %d", maxSampleEvents, n)
	}
}

func TestGroupMessagesMissingGroup(t *testing.T) {
	e, _, _, ingID := newTestEngine(t)

	_, err := e.groupMessages(context.Background(), ingID, "no-such-fp")
	if !errors.Is(err, ErrScopeNotFound) {
		t.Fatalf("expected ErrScopeNotFound, got %v", err)
	}
}

func TestFindingMessages(t *testing.T) {
	e, _, s, ingID := newTestEngine(t)
	ctx := context.Background()
	seedGroup(t, s, ingID, "fp-f", 3)

	events, err := s.ListEvents(ctx, ingID, store.EventFilter{Limit: 10})
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	err = s.ReplaceFindings(ctx, ingID, []store.Finding{{
		RuleID:              "db_connection_failure",
		Title:               "Database connection failures",
		Severity:            "HIGH",
		Confidence:          0.85,
		TotalOccurrences:    3,
		MatchedFingerprints: []store.FingerprintCount{{Fingerprint: "fp-f", Count: 3}},
		EvidenceEventIDs:    []string{events[0].ID, events[2].ID},
	}})
	if err != nil {
		t.Fatalf("storing finding: %v", err)
	}
	stored, err := s.ListFindings(ctx, ingID)
	if err != nil {
		t.Fatalf("listing findings: %v", err)
	}

	messages, err := e.findingMessages(ctx, ingID, stored[0].ID)
	if err != nil {
		t.Fatalf("finding messages: %v", err)
	}
	user := messages[1].Content

	for _, heading := range []string{
		"## What this finding means",
		"## Why it was flagged",
		"## Severity and impact",
		"## Debugging steps",
		"## Fix suggestions",
		"## Evidence cited",
	} {
		if !strings.Contains(user, heading) {
			t.Errorf("user prompt missing heading %q", heading)
		}
	}
	if !strings.Contains(user, `"type":"finding"`) {
		t.Errorf("context missing type discriminator")
	}
	if !strings.Contains(user, `"rule_id":"db_connection_failure"`) {
		t.Errorf("context missing rule id")
	}
	// Both evidence events are sampled.
	if n := strings.Count(user, `"seq":`); n != 2 {
		t.Errorf("expected 2 samples, found %d", n)
	}
}

func TestFindingMessagesMissingFinding(t *testing.T) {
	e, _, _, ingID := newTestEngine(t)

	_, err := e.findingMessages(context.Background(), ingID, "no-such-finding")
	if !errors.Is(err, ErrScopeNotFound) {
		t.Fatalf("expected ErrScopeNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Generation and storage
// ---------------------------------------------------------------------------

func TestGenerateStoresResult(t *testing.T) {
	e, chat, s, ingID := newTestEngine(t)
	ctx := context.Background()
	seedGroup(t, s, ingID, "fp-gen", 3)

	got, err := e.Generate(ctx, ingID, store.ScopeGroup, "fp-gen")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "## Summary\nAll good." {
		t.Errorf("result: got %q", got)
	}
	if chat.last.Temperature != chatTemperature {
		t.Errorf("temperature: got %v, want %v", chat.last.Temperature, chatTemperature)
	}

	stored, err := e.Find(ctx, ingID, store.ScopeGroup, "fp-gen")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored != got {
		t.Errorf("stored insight %q differs from returned %q", stored, got)
	}
}

func TestGenerateReplacesPrevious(t *testing.T) {
	e, chat, s, ingID := newTestEngine(t)
	ctx := context.Background()
	seedGroup(t, s, ingID, "fp-re", 3)

	if _, err := e.Generate(ctx, ingID, store.ScopeGroup, "fp-re"); err != nil {
		t.Fatalf("first generate: %v", err)
	}
	chat.resp = "## Summary\nSecond opinion."
	if _, err := e.Generate(ctx, ingID, store.ScopeGroup, "fp-re"); err != nil {
		t.Fatalf("second generate: %v", err)
	}

	stored, err := e.Find(ctx, ingID, store.ScopeGroup, "fp-re")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored != "## Summary\nSecond opinion." {
		t.Errorf("stored insight not replaced: %q", stored)
	}
}

func TestGenerateChatFailureLeavesNothing(t *testing.T) {
	e, chat, s, ingID := newTestEngine(t)
	ctx := context.Background()
	seedGroup(t, s, ingID, "fp-err", 3)
	chat.err = errors.New("model unavailable")

	if _, err := e.Generate(ctx, ingID, store.ScopeGroup, "fp-err"); err == nil {
		t.Fatal("expected error from chat failure")
	}
	stored, err := e.Find(ctx, ingID, store.ScopeGroup, "fp-err")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored != "" {
		t.Errorf("expected no stored insight, got %q", stored)
	}
}

func TestGenerateUnknownScope(t *testing.T) {
	e, _, _, ingID := newTestEngine(t)

	if _, err := e.Generate(context.Background(), ingID, "bogus", "x"); err == nil {
		t.Fatal("expected error for unknown scope type")
	}
}
