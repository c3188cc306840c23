// Package logparse turns free-form log text into an ordered list of
// structured records.  It handles mixed formats in one dump: JSON lines,
// prefixed text logs, and multi-line stack traces.  Parsing is pure and
// deterministic; malformed input degrades to low-confidence text records
// instead of failing.
package logparse

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Record is one parsed log record.
type Record struct {
	Raw        string         // original record text, lines joined with \n
	Message    string         // extracted message, truncated to 300 chars
	TS         *time.Time     // parsed timestamp, nil when absent or unparseable
	TSRaw      string         // original timestamp string
	Service    string         // emitting service, empty when unknown
	Level      string         // normalized level (WARN, ERROR, ...), empty when unknown
	Attrs      map[string]any // full object for JSON records, nil otherwise
	Kind       string         // "json" or "text"
	Confidence float64        // parse confidence in [0,1]
	Matched    []string       // extraction cues that fired, e.g. "ts:prefix"
	Signature  string         // canonical string fed to the fingerprinter
}

// Parse splits text into records and extracts fields from each.
// It never fails: every input line ends up in exactly one record's Raw.
func Parse(text string) []Record {
	lines := splitLines(text)
	grouped := groupLines(lines)
	records := make([]Record, 0, len(grouped))
	for _, rec := range grouped {
		records = append(records, parseRecord(rec))
	}
	return records
}

// splitLines splits on \n and drops a single trailing empty line so that
// "a\nb\n" yields ["a","b"], matching the usual splitlines behaviour.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// groupLines partitions lines into records.  A line starts a new record
// only when it carries a new-record signal and is not a continuation;
// everything else (including blank lines) sticks to the current record.
func groupLines(lines []string) [][]string {
	var records [][]string
	var current []string
	for _, line := range lines {
		if isNewRecord(line) {
			if len(current) > 0 {
				records = append(records, current)
			}
			current = []string{line}
		} else {
			current = append(current, line)
		}
	}
	if len(current) > 0 {
		records = append(records, current)
	}
	return records
}

// isContinuation reports whether line glues onto the previous record.
// Indentation and stack-trace shapes are strong glue signals.
func isContinuation(line string) bool {
	s := strings.TrimRight(line, "\n")
	if s != "" {
		r, _ := utf8.DecodeRuneInString(s)
		if unicode.IsSpace(r) {
			return true
		}
	}
	if strings.HasPrefix(s, "at ") { // Java stack frame
		return true
	}
	if strings.Contains(s, "Caused by:") {
		return true
	}
	if strings.HasPrefix(s, "Traceback") { // Python
		return true
	}
	if strings.HasPrefix(s, `File "`) { // Python traceback frame
		return true
	}
	if strings.HasPrefix(s, "...") {
		return true
	}
	return false
}

// isNewRecord reports whether line starts a fresh record.  The signals are
// kept broad; false positives are mitigated by the continuation override.
func isNewRecord(line string) bool {
	if isContinuation(line) {
		return false
	}
	s := strings.TrimLeft(line, " \t")
	if tsBracketRe.MatchString(s) {
		return true
	}
	if tsPrefixRe.MatchString(s) {
		return true
	}
	if levelPrefixRe.MatchString(s) {
		return true
	}
	if looksLikeJSONLine(s) {
		return true
	}
	return false
}

// looksLikeJSONLine is a cheap shape check, not a full parse.
func looksLikeJSONLine(line string) bool {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "{") {
		return false
	}
	return strings.HasSuffix(t, "}") || strings.HasSuffix(t, "},") ||
		strings.HasSuffix(t, "}]") || strings.HasSuffix(t, "}]},")
}

func firstNonEmpty(lines []string) string {
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

// normalizeLevel upper-cases a level and folds WARNING into WARN.
func normalizeLevel(level string) string {
	lvl := strings.ToUpper(level)
	if lvl == "WARNING" {
		return "WARN"
	}
	return lvl
}

// truncateMessage caps a message at 300 runes, appending an ellipsis when
// anything was cut.
func truncateMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) > 300 {
		return string(runes[:300]) + "…"
	}
	return msg
}
