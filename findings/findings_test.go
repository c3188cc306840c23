//go:build cgo

package findings

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/logsight/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store, string) {
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
	return New(s), s, ing.ID
}

func insert(t *testing.T, s *store.Store, ingestionID string, events []store.LogEvent) {
	t.Helper()
	for i := range events {
		events[i].IngestionID = ingestionID
		if events[i].Raw == "" {
			events[i].Raw = events[i].Message
		}
	}
	if err := s.InsertEvents(context.Background(), events); err != nil {
		t.Fatalf("inserting events: %v", err)
	}
}

// repeated builds n events sharing a message, fingerprint and level, with
// sequential seq values starting at startSeq.
func repeated(n int, startSeq int64, message, fingerprint, level string) []store.LogEvent {
	events := make([]store.LogEvent, n)
	for i := range events {
		events[i] = store.LogEvent{
			Seq:         startSeq + int64(i),
			Message:     message,
			Fingerprint: fingerprint,
			Level:       level,
		}
	}
	return events
}

// ---------------------------------------------------------------------------
// Rule matching across the two passes
// ---------------------------------------------------------------------------

func TestAnalyzeGroupOnlyVolume(t *testing.T) {
	e, s, ingID := newTestEngine(t)
	ctx := context.Background()

	// WARN events are only seen by the group pass, so the total is exactly
	// the group count.
	insert(t, s, ingID, repeated(50, 1, "password authentication failed for user X", "fp-auth", "WARN"))

	findings, err := e.Analyze(ctx, ingID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}

	f := findings[0]
	if f.RuleID != "db_auth_failure" {
		t.Errorf("rule_id: got %q, want db_auth_failure", f.RuleID)
	}
	if f.TotalOccurrences != 50 {
		t.Errorf("total_occurrences: got %d, want 50", f.TotalOccurrences)
	}
	if len(f.MatchedFingerprints) != 1 || f.MatchedFingerprints[0].Fingerprint != "fp-auth" || f.MatchedFingerprints[0].Count != 50 {
		t.Errorf("matched_fingerprints: got %v", f.MatchedFingerprints)
	}
	// Head 5 + tail 5 of the group.
	if len(f.EvidenceEventIDs) != 10 {
		t.Errorf("evidence: got %d ids, want 10", len(f.EvidenceEventIDs))
	}
}

func TestAnalyzeErrorEventsCountedByBothPasses(t *testing.T) {
	e, s, ingID := newTestEngine(t)
	ctx := context.Background()

	// ERROR events are credited once by the group pass (as a group of 50)
	// and once more per event by the error pass.
	insert(t, s, ingID, repeated(50, 1, "password authentication failed for user X", "fp-auth", "ERROR"))

	findings, err := e.Analyze(ctx, ingID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}

	f := findings[0]
	if f.TotalOccurrences != 100 {
		t.Errorf("total_occurrences: got %d, want 100", f.TotalOccurrences)
	}
	// The error pass must not duplicate the fingerprint summary entry.
	if len(f.MatchedFingerprints) != 1 || f.MatchedFingerprints[0].Count != 50 {
		t.Errorf("matched_fingerprints: got %v", f.MatchedFingerprints)
	}
	// 10 group ids plus 2 more from the error pass before the cap.
	if len(f.EvidenceEventIDs) != MaxEvidencePerRule {
		t.Errorf("evidence: got %d ids, want %d", len(f.EvidenceEventIDs), MaxEvidencePerRule)
	}

	var sum int64
	for _, fp := range f.MatchedFingerprints {
		sum += fp.Count
	}
	if sum > f.TotalOccurrences {
		t.Errorf("fingerprint counts %d exceed total %d", sum, f.TotalOccurrences)
	}
}

func TestAnalyzeGenericFallback(t *testing.T) {
	e, s, ingID := newTestEngine(t)
	ctx := context.Background()

	insert(t, s, ingID, []store.LogEvent{
		{Seq: 1, Message: "something went terribly wrong, panic!", Fingerprint: "fp-g", Level: "ERROR"},
	})

	findings, err := e.Analyze(ctx, ingID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}

	f := findings[0]
	if f.RuleID != "generic_error" {
		t.Errorf("rule_id: got %q, want generic_error", f.RuleID)
	}
	if f.Title != "Generic error pattern match" {
		t.Errorf("title: got %q", f.Title)
	}
	if f.Severity != "HIGH" {
		t.Errorf("severity: got %q, want HIGH", f.Severity)
	}
	if f.Confidence != 0.5 {
		t.Errorf("confidence: got %v, want 0.5", f.Confidence)
	}
	if f.TotalOccurrences != 1 {
		t.Errorf("total_occurrences: got %d, want 1", f.TotalOccurrences)
	}
}

func TestAnalyzeGenericSeverityForFatal(t *testing.T) {
	e, s, ingID := newTestEngine(t)
	ctx := context.Background()

	insert(t, s, ingID, []store.LogEvent{
		{Seq: 1, Message: "unexpected shutdown in worker", Fingerprint: "fp-f", Level: "FATAL"},
		{Seq: 2, Message: "unexpected shutdown in worker", Fingerprint: "fp-f", Level: "CRITICAL"},
	})

	findings, err := e.Analyze(ctx, ingID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].Severity != "CRIT" {
		t.Errorf("severity: got %q, want CRIT", findings[0].Severity)
	}
}

func TestAnalyzeSpecificRuleSuppressesGeneric(t *testing.T) {
	e, s, ingID := newTestEngine(t)
	ctx := context.Background()

	// "connection refused" matches a specific rule, so the generic fallback
	// must not fire even though "refused" is error-ish language.
	insert(t, s, ingID, []store.LogEvent{
		{Seq: 1, Message: "connection refused by db-primary", Fingerprint: "fp-c", Level: "ERROR"},
	})

	findings, err := e.Analyze(ctx, ingID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].RuleID != "db_connection_failure" {
		t.Errorf("rule_id: got %q, want db_connection_failure", findings[0].RuleID)
	}
}

func TestAnalyzeMessageMatchingTwoRules(t *testing.T) {
	e, s, ingID := newTestEngine(t)
	ctx := context.Background()

	insert(t, s, ingID, repeated(3, 1, "connection refused after request timeout", "fp-two", "WARN"))

	findings, err := e.Analyze(ctx, ingID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(findings))
	}

	got := map[string]int64{}
	for _, f := range findings {
		got[f.RuleID] = f.TotalOccurrences
	}
	if got["db_connection_failure"] != 3 || got["upstream_timeout"] != 3 {
		t.Errorf("totals by rule: got %v", got)
	}
}

// ---------------------------------------------------------------------------
// Ordering and caps
// ---------------------------------------------------------------------------

func TestAnalyzeSortsBySeverityThenVolume(t *testing.T) {
	e, s, ingID := newTestEngine(t)
	ctx := context.Background()

	var events []store.LogEvent
	// High-volume but MED severity.
	events = append(events, repeated(40, 1, "upstream returned 429 too many requests", "fp-rate", "WARN")...)
	// Low-volume but CRIT severity.
	events = append(events, repeated(2, 41, "java.lang.OutOfMemoryError: heap space", "fp-oom", "WARN")...)
	// HIGH severity in between.
	events = append(events, repeated(10, 43, "no space left on device", "fp-disk", "WARN")...)
	insert(t, s, ingID, events)

	findings, err := e.Analyze(ctx, ingID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(findings) != 3 {
		t.Fatalf("expected 3 findings, got %d", len(findings))
	}

	wantOrder := []string{"oom_memory", "disk_full", "http_rate_limited"}
	for i, want := range wantOrder {
		if findings[i].RuleID != want {
			t.Fatalf("position %d: got %q, want %q (full order %v)", i, findings[i].RuleID, want, ruleIDs(findings))
		}
	}

	// Stored order must match the returned order.
	stored, err := s.ListFindings(ctx, ingID)
	if err != nil {
		t.Fatalf("list findings: %v", err)
	}
	for i := range stored {
		if stored[i].RuleID != findings[i].RuleID {
			t.Fatalf("stored order %v differs from returned %v", ruleIDs(stored), ruleIDs(findings))
		}
	}
}

func TestAnalyzeFingerprintSummaryCap(t *testing.T) {
	e, s, ingID := newTestEngine(t)
	ctx := context.Background()

	// 15 distinct fingerprints all matching the same rule. The summary
	// keeps only the top 10.
	var events []store.LogEvent
	for i := 0; i < 15; i++ {
		events = append(events, store.LogEvent{
			Seq:         int64(i + 1),
			Message:     "connection refused by backend",
			Fingerprint: fmt.Sprintf("fp-%02d", i),
			Level:       "WARN",
		})
	}
	insert(t, s, ingID, events)

	findings, err := e.Analyze(ctx, ingID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}

	f := findings[0]
	if len(f.MatchedFingerprints) != MaxFingerprintsPerRule {
		t.Fatalf("fingerprints: got %d, want %d", len(f.MatchedFingerprints), MaxFingerprintsPerRule)
	}
	if f.TotalOccurrences != 15 {
		t.Errorf("total_occurrences: got %d, want 15", f.TotalOccurrences)
	}

	var sum int64
	for _, fp := range f.MatchedFingerprints {
		sum += fp.Count
	}
	if sum > f.TotalOccurrences {
		t.Errorf("fingerprint counts %d exceed total %d", sum, f.TotalOccurrences)
	}
}

func TestAnalyzeEvidenceCapAcrossGroups(t *testing.T) {
	e, s, ingID := newTestEngine(t)
	ctx := context.Background()

	var events []store.LogEvent
	events = append(events, repeated(12, 1, "tls handshake failed with peer", "fp-a", "WARN")...)
	events = append(events, repeated(12, 13, "tls handshake failed with peer", "fp-b", "WARN")...)
	insert(t, s, ingID, events)

	findings, err := e.Analyze(ctx, ingID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}

	f := findings[0]
	if len(f.EvidenceEventIDs) != MaxEvidencePerRule {
		t.Errorf("evidence: got %d ids, want %d", len(f.EvidenceEventIDs), MaxEvidencePerRule)
	}

	seen := map[string]bool{}
	for _, id := range f.EvidenceEventIDs {
		if seen[id] {
			t.Fatalf("duplicate evidence id %s", id)
		}
		seen[id] = true
	}
}

func TestAnalyzeEvidenceReferencesOwnEvents(t *testing.T) {
	e, s, ingID := newTestEngine(t)
	ctx := context.Background()

	insert(t, s, ingID, repeated(8, 1, "card declined by issuer", "fp-pay", "ERROR"))

	findings, err := e.Analyze(ctx, ingID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}

	events, err := s.EventsByIDs(ctx, ingID, findings[0].EvidenceEventIDs)
	if err != nil {
		t.Fatalf("resolving evidence: %v", err)
	}
	if len(events) != len(findings[0].EvidenceEventIDs) {
		t.Errorf("resolved %d of %d evidence ids", len(events), len(findings[0].EvidenceEventIDs))
	}
}

// ---------------------------------------------------------------------------
// Reruns
// ---------------------------------------------------------------------------

func TestAnalyzeRerunIsIdempotent(t *testing.T) {
	e, s, ingID := newTestEngine(t)
	ctx := context.Background()

	var events []store.LogEvent
	events = append(events, repeated(20, 1, "connection refused by db", "fp-db", "ERROR")...)
	events = append(events, repeated(5, 21, "jwt expired for session", "fp-jwt", "WARN")...)
	insert(t, s, ingID, events)

	first, err := e.Analyze(ctx, ingID)
	if err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	second, err := e.Analyze(ctx, ingID)
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("finding count changed: %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].RuleID != second[i].RuleID ||
			first[i].TotalOccurrences != second[i].TotalOccurrences ||
			len(first[i].EvidenceEventIDs) != len(second[i].EvidenceEventIDs) {
			t.Errorf("finding %d changed between runs: %+v vs %+v", i, first[i], second[i])
		}
	}

	// The old rows must be gone, not appended to.
	stored, err := s.ListFindings(ctx, ingID)
	if err != nil {
		t.Fatalf("list findings: %v", err)
	}
	if len(stored) != len(second) {
		t.Errorf("stored %d findings after rerun, want %d", len(stored), len(second))
	}
}

func TestAnalyzeNoMatchesStoresNothing(t *testing.T) {
	e, s, ingID := newTestEngine(t)
	ctx := context.Background()

	insert(t, s, ingID, repeated(5, 1, "user logged in", "fp-ok", "INFO"))

	findings, err := e.Analyze(ctx, ingID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("expected no findings, got %v", ruleIDs(findings))
	}
}

func ruleIDs(findings []store.Finding) []string {
	ids := make([]string, len(findings))
	for i, f := range findings {
		ids[i] = f.RuleID
	}
	return ids
}
