// Package findings derives incident findings for an ingestion by applying
// the rule catalogue to its parsed events.
//
// Analysis runs in two passes. The first pass scans the highest-volume
// fingerprint groups and matches rules against each group's latest message,
// crediting the whole group count to every matching rule. The second pass
// scans recent error-level events individually so that low-volume but
// severe problems still surface, falling back to a generic error rule when
// nothing specific matches.
package findings

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/brunobiangulo/logsight/rules"
	"github.com/brunobiangulo/logsight/store"
)

const (
	// MaxEvidencePerRule caps how many evidence event ids one finding keeps.
	MaxEvidencePerRule = 12
	// MaxFingerprintsPerRule caps the fingerprint summary of one finding.
	MaxFingerprintsPerRule = 10

	// groupScanLimit bounds pass one to the top fingerprint groups so that
	// huge ingestions stay cheap to analyze.
	groupScanLimit = 200
	// errorScanLimit bounds pass two to the most recent error-level events.
	errorScanLimit = 5000

	evidenceHead = 5
	evidenceTail = 5
)

// errorLevels are the levels pass two scans individually.
var errorLevels = []string{"ERROR", "CRITICAL", "FATAL"}

// Engine computes and stores findings for one ingestion at a time.
type Engine struct {
	store *store.Store
}

// New creates a findings engine backed by st.
func New(st *store.Store) *Engine {
	return &Engine{store: st}
}

// Analyze recomputes the findings of an ingestion and atomically replaces
// whatever was stored before. It does not touch the ingestion's
// finding_status; the caller owns that lifecycle.
func (e *Engine) Analyze(ctx context.Context, ingestionID string) ([]store.Finding, error) {
	start := time.Now()

	acc := newAccumulator(ingestionID)
	if err := e.scanGroups(ctx, ingestionID, acc); err != nil {
		return nil, err
	}
	if err := e.scanErrors(ctx, ingestionID, acc); err != nil {
		return nil, err
	}

	findings := acc.finalize()
	if err := e.store.ReplaceFindings(ctx, ingestionID, findings); err != nil {
		return nil, fmt.Errorf("storing findings: %w", err)
	}

	slog.Info("findings: analysis complete",
		"ingestion_id", ingestionID,
		"findings", len(findings),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return findings, nil
}

// scanGroups is pass one: match rules against the latest message of each
// top fingerprint group and credit the group's full count.
func (e *Engine) scanGroups(ctx context.Context, ingestionID string, acc *accumulator) error {
	groups, err := e.store.TopFingerprints(ctx, ingestionID, 0, groupScanLimit)
	if err != nil {
		return fmt.Errorf("loading fingerprint groups: %w", err)
	}

	for _, g := range groups {
		if g.Latest == nil {
			continue
		}
		matches := rules.Apply(g.Latest.Message)
		if len(matches) == 0 {
			continue
		}

		// Evidence is fetched once per fingerprint even when several rules
		// match the same message.
		evidence, err := e.store.EvidenceEventIDs(ctx, ingestionID, g.Fingerprint, evidenceHead, evidenceTail)
		if err != nil {
			return fmt.Errorf("loading evidence for %s: %w", g.Fingerprint, err)
		}

		for _, m := range matches {
			d, _ := acc.get(m)
			d.finding.TotalOccurrences += g.Count
			// The summary cap is enforced at finalize time, after
			// fingerprints are re-sorted by count.
			d.finding.MatchedFingerprints = append(d.finding.MatchedFingerprints,
				store.FingerprintCount{Fingerprint: g.Fingerprint, Count: g.Count})
			d.fpSeen[g.Fingerprint] = true
			d.addEvidence(evidence)
		}
	}
	return nil
}

// scanErrors is pass two: match rules against recent error-level events one
// by one, so problems too rare to make the top groups still get reported.
func (e *Engine) scanErrors(ctx context.Context, ingestionID string, acc *accumulator) error {
	events, err := e.store.RecentEventsByLevel(ctx, ingestionID, errorLevels, errorScanLimit)
	if err != nil {
		return fmt.Errorf("loading error events: %w", err)
	}

	for _, ev := range events {
		matches := rules.Apply(ev.Message)
		if len(matches) == 0 {
			if !rules.ApplyGeneric(ev.Message) {
				continue
			}
			matches = []rules.Match{genericMatch(ev.Level)}
		}

		for _, m := range matches {
			d, _ := acc.get(m)
			if len(d.finding.MatchedFingerprints) < MaxFingerprintsPerRule && !d.fpSeen[ev.Fingerprint] {
				d.finding.MatchedFingerprints = append(d.finding.MatchedFingerprints,
					store.FingerprintCount{Fingerprint: ev.Fingerprint, Count: 1})
				d.fpSeen[ev.Fingerprint] = true
			}
			d.addEvidence([]string{ev.ID})
			d.finding.TotalOccurrences++
		}
	}
	return nil
}

// genericMatch is the fallback pseudo-rule for error-level events that no
// catalogue rule claimed.
func genericMatch(level string) rules.Match {
	severity := "HIGH"
	if level == "CRITICAL" || level == "FATAL" {
		severity = "CRIT"
	}
	return rules.Match{
		RuleID:     "generic_error",
		Title:      "Generic error pattern match",
		Severity:   severity,
		Confidence: 0.5,
	}
}

// draft accumulates one finding while the passes run.
type draft struct {
	finding      store.Finding
	evidenceSeen map[string]bool
	fpSeen       map[string]bool
}

// addEvidence merges ids into the draft's evidence, deduplicating and
// stopping at the cap.
func (d *draft) addEvidence(ids []string) {
	for _, id := range ids {
		if len(d.finding.EvidenceEventIDs) >= MaxEvidencePerRule {
			return
		}
		if d.evidenceSeen[id] {
			continue
		}
		d.evidenceSeen[id] = true
		d.finding.EvidenceEventIDs = append(d.finding.EvidenceEventIDs, id)
	}
}

// accumulator keys drafts by rule id and remembers first-match order so
// findings with equal severity and volume keep a deterministic position.
type accumulator struct {
	ingestionID string
	byRule      map[string]*draft
	order       []string
}

func newAccumulator(ingestionID string) *accumulator {
	return &accumulator{
		ingestionID: ingestionID,
		byRule:      make(map[string]*draft),
	}
}

// get returns the draft for a matched rule, creating an empty one on first
// sight. The second return reports whether the draft already existed.
func (a *accumulator) get(m rules.Match) (*draft, bool) {
	if d, ok := a.byRule[m.RuleID]; ok {
		return d, true
	}
	d := &draft{
		finding: store.Finding{
			IngestionID: a.ingestionID,
			RuleID:      m.RuleID,
			Title:       m.Title,
			Severity:    m.Severity,
			Confidence:  m.Confidence,
		},
		evidenceSeen: make(map[string]bool),
		fpSeen:       make(map[string]bool),
	}
	a.byRule[m.RuleID] = d
	a.order = append(a.order, m.RuleID)
	return d, false
}

// finalize sorts each finding's fingerprints by count, truncates them to the
// summary cap, and orders findings by severity rank then total occurrences.
// Both sorts are stable so ties keep first-match order.
func (a *accumulator) finalize() []store.Finding {
	findings := make([]store.Finding, 0, len(a.order))
	for _, rid := range a.order {
		d := a.byRule[rid]
		fps := d.finding.MatchedFingerprints
		sort.SliceStable(fps, func(i, j int) bool { return fps[i].Count > fps[j].Count })
		if len(fps) > MaxFingerprintsPerRule {
			fps = fps[:MaxFingerprintsPerRule]
		}
		d.finding.MatchedFingerprints = fps
		findings = append(findings, d.finding)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		ri, rj := rules.SeverityRank(findings[i].Severity), rules.SeverityRank(findings[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return findings[i].TotalOccurrences > findings[j].TotalOccurrences
	})
	return findings
}
