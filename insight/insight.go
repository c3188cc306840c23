// Package insight generates LLM-backed explanations for fingerprint groups
// and findings.
//
// For each scope it assembles a JSON context object with up to 12 sample
// events, re-applies the fingerprint normalizer to every sampled message so
// volatile tokens never reach the model, and sends a fixed system prompt
// plus a scope-specific user prompt. The model's Markdown answer is stored
// keyed by (ingestion, scope_type, scope_id), replacing any previous one.
package insight

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/logsight/fingerprint"
	"github.com/brunobiangulo/logsight/llm"
	"github.com/brunobiangulo/logsight/metrics"
	"github.com/brunobiangulo/logsight/store"
)

// ErrScopeNotFound is returned when the requested group or finding does not
// exist in the ingestion.
var ErrScopeNotFound = errors.New("insight: scope not found")

// maxSampleEvents caps how many redacted events the context carries.
const maxSampleEvents = 12

const (
	sampleHead = 6
	sampleTail = 6
)

// chatTemperature keeps answers close to the evidence.
const chatTemperature = 0.2

// Engine builds prompts and persists generated insights.
type Engine struct {
	store *store.Store
	chat  llm.Provider
}

// New creates an insight engine backed by st and chat.
func New(st *store.Store, chat llm.Provider) *Engine {
	return &Engine{store: st, chat: chat}
}

// Generate produces the insight for a scope and stores it, replacing any
// previous insight for the same scope. scopeID is the fingerprint for group
// scopes and the finding id for finding scopes.
func (e *Engine) Generate(ctx context.Context, ingestionID, scopeType, scopeID string) (string, error) {
	var messages []llm.Message
	var err error
	switch scopeType {
	case store.ScopeGroup:
		messages, err = e.groupMessages(ctx, ingestionID, scopeID)
	case store.ScopeFinding:
		messages, err = e.findingMessages(ctx, ingestionID, scopeID)
	default:
		return "", fmt.Errorf("unknown insight scope %q", scopeType)
	}
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		Temperature: chatTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("generating insight: %w", err)
	}
	metrics.InsightTokens.Add(float64(resp.TotalTokens))
	result := strings.TrimSpace(resp.Content)

	if _, err := e.store.ReplaceAnalysis(ctx, ingestionID, scopeType, scopeID, result); err != nil {
		return "", fmt.Errorf("storing insight: %w", err)
	}

	slog.Info("insight: generated",
		"ingestion_id", ingestionID,
		"scope_type", scopeType,
		"scope_id", scopeID,
		"tokens", resp.TotalTokens,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return result, nil
}

// Find returns the stored insight for a scope, or empty when none exists.
func (e *Engine) Find(ctx context.Context, ingestionID, scopeType, scopeID string) (string, error) {
	a, err := e.store.FindAnalysis(ctx, ingestionID, scopeType, scopeID)
	if err != nil {
		return "", err
	}
	if a == nil {
		return "", nil
	}
	return a.Result, nil
}

// sampleEvent is one redacted event inside the prompt context. Field order
// matters: it fixes the JSON key order the model sees.
type sampleEvent struct {
	Seq     int64      `json:"seq"`
	TS      *time.Time `json:"ts"`
	Level   string     `json:"level,omitempty"`
	Service string     `json:"service,omitempty"`
	Message string     `json:"message"`
}

// groupContext is the JSON context for group-scoped insights. The type
// discriminator comes first and events last.
type groupContext struct {
	Type        string           `json:"type"`
	Fingerprint string           `json:"fingerprint"`
	TotalEvents int64            `json:"total_events"`
	FirstSeen   *time.Time       `json:"first_seen"`
	LastSeen    *time.Time       `json:"last_seen"`
	Levels      map[string]int64 `json:"levels"`
	Services    map[string]int64 `json:"services"`
	Events      []sampleEvent    `json:"events"`
}

// findingContext is the JSON context for finding-scoped insights.
type findingContext struct {
	Type                string                   `json:"type"`
	RuleID              string                   `json:"rule_id"`
	Title               string                   `json:"title"`
	Severity            string                   `json:"severity"`
	Confidence          float64                  `json:"confidence"`
	TotalOccurrences    int64                    `json:"total_occurrences"`
	MatchedFingerprints []store.FingerprintCount `json:"matched_fingerprints"`
	Events              []sampleEvent            `json:"events"`
}

func (e *Engine) groupMessages(ctx context.Context, ingestionID, fp string) ([]llm.Message, error) {
	g, err := e.store.GroupOverview(ctx, ingestionID, fp)
	if err != nil {
		return nil, fmt.Errorf("loading group: %w", err)
	}
	if g == nil {
		return nil, fmt.Errorf("%w: group %s", ErrScopeNotFound, fp)
	}

	ids, err := e.store.EvidenceEventIDs(ctx, ingestionID, fp, sampleHead, sampleTail)
	if err != nil {
		return nil, fmt.Errorf("selecting samples: %w", err)
	}
	events, err := e.store.EventsByIDs(ctx, ingestionID, ids)
	if err != nil {
		return nil, fmt.Errorf("loading samples: %w", err)
	}

	payload, err := marshalContext(groupContext{
		Type:        "group",
		Fingerprint: fp,
		TotalEvents: g.Count,
		FirstSeen:   g.FirstSeen,
		LastSeen:    g.LastSeen,
		Levels:      g.LevelCounts,
		Services:    g.ServiceCounts,
		Events:      redactedSamples(events),
	})
	if err != nil {
		return nil, err
	}

	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(groupPromptFormat, payload)},
	}, nil
}

func (e *Engine) findingMessages(ctx context.Context, ingestionID, findingID string) ([]llm.Message, error) {
	f, err := e.store.GetFinding(ctx, ingestionID, findingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: finding %s", ErrScopeNotFound, findingID)
		}
		return nil, fmt.Errorf("loading finding: %w", err)
	}

	events, err := e.store.EventsByIDs(ctx, ingestionID, f.EvidenceEventIDs)
	if err != nil {
		return nil, fmt.Errorf("loading evidence: %w", err)
	}

	payload, err := marshalContext(findingContext{
		Type:                "finding",
		RuleID:              f.RuleID,
		Title:               f.Title,
		Severity:            f.Severity,
		Confidence:          f.Confidence,
		TotalOccurrences:    f.TotalOccurrences,
		MatchedFingerprints: f.MatchedFingerprints,
		Events:              redactedSamples(events),
	})
	if err != nil {
		return nil, err
	}

	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(findingPromptFormat, payload)},
	}, nil
}

// redactedSamples converts events to prompt samples, re-normalizing each
// message so ids, addresses and tokens become placeholders.
func redactedSamples(events []store.LogEvent) []sampleEvent {
	if len(events) > maxSampleEvents {
		events = events[:maxSampleEvents]
	}
	samples := make([]sampleEvent, len(events))
	for i, ev := range events {
		samples[i] = sampleEvent{
			Seq:     ev.Seq,
			TS:      ev.TS,
			Level:   ev.Level,
			Service: ev.Service,
			Message: fingerprint.Normalize(ev.Message),
		}
	}
	return samples
}

// marshalContext renders the context object without HTML escaping so the
// redaction placeholders stay readable in the prompt.
func marshalContext(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encoding context: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

const systemPrompt = `You are a production incident analysis assistant.

Hard rules:
- Use ONLY the provided context. Do not assume details not in the context.
- If something is uncertain or missing, say "Unknown" or "Not enough data".
- Never invent stack traces, metrics, code, or service behavior.
- Do not reveal secrets. If the context contains tokens/credentials, treat them as redacted placeholders.
- Keep output concise and actionable.

Output format:
- Return Markdown only.
- Use the exact headings requested.
- When referencing evidence, cite event sequence numbers like: (evidence: seq 12, seq 18).
`

const groupPromptFormat = `You will explain a log GROUP (same fingerprint). Produce an incident-style explanation.

Context (JSON, redacted):
%s

Tasks:
1) Summarize what this group represents in 2-4 sentences using ONLY the context.
2) Identify the strongest signals (level/service/time-range/message pattern).
3) Provide up to 3 likely root causes with confidence scores (0-100) and justification tied to evidence.
4) Provide a "Next checks" list of 5-8 concrete debugging steps.
5) Provide "Immediate mitigations" (safe actions) and "Longer-term fixes" (engineering actions).

Constraints:
- If timestamps are missing, do not infer timing. Use seq ordering only.
- If service is missing/unknown, do not guess; propose how to find it.
- If the message is generic, say so and focus on what can be confirmed.
- Do not mention other groups unless explicitly present in context.

Return Markdown with exactly these headings:

## Summary
## What we know from evidence
## Likely causes
## Next checks
## Mitigations
## Longer-term fixes
## Evidence cited

Evidence citing rules:
- In each section, cite evidence as: (evidence: seq X, seq Y)
- In "Evidence cited", list the seq numbers you referenced grouped by why they matter.`

const findingPromptFormat = `You will explain a RULE-BASED FINDING detected from logs.

Context (JSON, redacted):
%s

Tasks:
1) Explain what this finding means in plain language (1 paragraph).
2) Explain why the system flagged it: what patterns matched, and what evidence supports it.
3) Assess severity and impact using ONLY the context (if impact is unknown, say unknown).
4) Provide 5-8 targeted debugging steps.
5) Provide "Fix suggestions" split into quick fixes vs durable fixes.
6) If multiple fingerprints are involved, compare them briefly (what's common vs different).

Constraints:
- Do not claim the exact root cause unless it is explicitly shown in evidence.
- If rule_id is "generic_error", explain that it is broad and requires triage.
- Keep advice technology-agnostic unless evidence clearly indicates a stack (e.g., Java traceback).
- Cite evidence by seq numbers only.

Return Markdown with exactly these headings:

## What this finding means
## Why it was flagged
## Severity and impact
## Debugging steps
## Fix suggestions
## Evidence cited

Evidence citing rules:
- Every claim must be backed by evidence citations where possible: (evidence: seq X, seq Y)
- "Evidence cited" should list the key seq numbers and what each shows.`
