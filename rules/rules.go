// Package rules holds the static incident-rule catalogue applied to log
// messages.  The catalogue is compiled once at package init and is
// read-only afterwards, so it is safe to share across goroutines.
package rules

import "regexp"

// Severity ranks order findings; higher is worse.
var severityRank = map[string]int{
	"CRIT": 4,
	"HIGH": 3,
	"MED":  2,
	"LOW":  1,
}

// SeverityRank returns the sort rank of a severity, 0 for unknown values.
func SeverityRank(severity string) int {
	return severityRank[severity]
}

// Rule is one entry of the catalogue.
type Rule struct {
	ID         string
	Title      string
	Severity   string // LOW, MED, HIGH or CRIT
	Confidence float64
	patterns   []*regexp.Regexp
}

// Match is a rule that fired for a message.
type Match struct {
	RuleID     string
	Title      string
	Severity   string
	Confidence float64
}

// Apply returns every catalogue rule with at least one pattern matching
// message.
func Apply(message string) []Match {
	var matches []Match
	for _, r := range catalog {
		for _, p := range r.patterns {
			if p.MatchString(message) {
				matches = append(matches, Match{
					RuleID:     r.ID,
					Title:      r.Title,
					Severity:   r.Severity,
					Confidence: r.Confidence,
				})
				break
			}
		}
	}
	return matches
}

// ApplyGeneric reports whether message matches any of the broad error
// patterns.  Used only as a fallback for error-level events that no
// specific rule claimed.
func ApplyGeneric(message string) bool {
	for _, p := range genericPatterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}

func compile(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}
