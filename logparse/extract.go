package logparse

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Regex building blocks
// ---------------------------------------------------------------------------

var (
	// Leading ISO-like timestamps:
	//   2026-02-05T12:34:56.123Z
	//   2026-02-05T12:34:56+03:00
	//   2026-02-05 12:34:56,123
	//   2026-02-05
	tsPrefixRe = regexp.MustCompile(`^\s*(\d{4}-\d{2}-\d{2}(?:[ T]\d{2}:\d{2}(?::\d{2})?)?(?:[.,]\d{1,6})?(?:Z|[+-]\d{2}:\d{2})?)(?:\s+|$)`)

	// [2026-02-05 ...] style.
	tsBracketRe = regexp.MustCompile(`^\s*\[\s*(\d{4}-\d{2}-\d{2}[^\]]*)\]\s*`)

	// Levels at the start: INFO ... or [ERROR] ...
	levelPrefixRe = regexp.MustCompile(`(?i)^\s*\[?(INFO|WARN|WARNING|ERROR|DEBUG|TRACE|CRITICAL|FATAL)\]?\b[:\-]?\s*`)

	// level=warn / severity=error / lvl=info anywhere in the line.
	levelKVRe = regexp.MustCompile(`(?i)\b(?:level|severity|lvl)\s*=\s*(info|warn|warning|error|debug|trace|critical|fatal)\b`)

	// service=foo / svc=foo / app=foo / component=foo ...
	serviceKVRe = regexp.MustCompile(`(?i)\b(?:service|svc|app|component|source|logger)\s*=\s*([A-Za-z0-9_.\-]+)\b`)

	// Early service tag: [payments] ...  (must not be [ERROR] or [2026-...]).
	bracketTagRe = regexp.MustCompile(`^\s*\[([A-Za-z0-9_.\-]{2,})\]\s*`)

	// Prefix form "auth-service: message".
	prefixColonRe = regexp.MustCompile(`^\s*([A-Za-z0-9_.\-]{2,})\s*:\s+(.+)$`)

	serviceTokenRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{1,63}$`)

	datePrefixRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

	// "FooError: message" or a bare "FooError" at line end.
	exceptionishRe = regexp.MustCompile(`\b\w+(?:Error|Exception)\b.*:|\b\w+(?:Error|Exception)\b$`)
)

// Tokens never promoted to a service name by the next-token heuristic.
var nonServiceTokens = map[string]bool{
	"INFO": true, "WARN": true, "WARNING": true, "ERROR": true,
	"DEBUG": true, "TRACE": true, "CRITICAL": true, "FATAL": true,
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true,
	"HEAD": true, "OPTIONS": true, "CONNECT": true,
}

// ---------------------------------------------------------------------------
// Per-record parsing
// ---------------------------------------------------------------------------

// parseRecord extracts fields from one record's lines.  The JSON path is
// tried first; otherwise fields are peeled from the header in the order
// timestamp -> level -> service -> message.
func parseRecord(lines []string) Record {
	raw := strings.Join(lines, "\n")
	header := firstNonEmpty(lines)

	if obj := parseJSONHeader(raw); obj != nil {
		return parseJSONRecord(raw, header, obj)
	}

	rec := Record{Raw: raw, Kind: "text"}

	ts, rest, tsConf, tsTags := extractTimestamp(header)
	lvl, rest2, lvlConf, lvlTags := extractLevel(rest)

	var svc string
	var svcConf float64
	var svcTags []string
	rest3 := rest2

	// docker-like heuristic: confident ts + level means the next token is
	// usually the service name.
	if tsConf >= 0.85 && lvlConf >= 0.85 {
		svc, rest3, svcConf, svcTags = peelServiceToken(rest2)
	}
	if svc == "" {
		svc, rest3, svcConf, svcTags = extractService(rest2)
	}

	rec.TSRaw = ts
	rec.TS = parseTime(ts)
	rec.Level = lvl
	rec.Service = svc
	rec.Message = buildMessage(rest3, header)
	rec.Matched = concatTags(tsTags, lvlTags, svcTags)
	conf := tsConf*0.45 + lvlConf*0.35 + svcConf*0.20
	rec.Confidence = math.Round(conf*1000) / 1000
	rec.Signature = signature(rec.Raw, rec.Message)
	return rec
}

// parseJSONHeader decodes the record's first non-empty line as a JSON
// object, returning nil when the line is not JSON-shaped or fails to decode.
func parseJSONHeader(raw string) map[string]any {
	header := strings.TrimSpace(firstNonEmpty(strings.Split(raw, "\n")))
	if !looksLikeJSONLine(header) {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(header), &obj); err != nil {
		return nil
	}
	return obj
}

func parseJSONRecord(raw, header string, obj map[string]any) Record {
	rec := Record{
		Raw:        raw,
		Attrs:      obj,
		Kind:       "json",
		Confidence: 0.95,
		Matched:    []string{"json:object"},
	}

	if v := firstAttr(obj, "ts", "time", "timestamp", "@timestamp", "datetime"); v != nil {
		rec.TSRaw = attrString(v)
		rec.TS = parseTime(rec.TSRaw)
	}
	if v := firstAttr(obj, "level", "severity", "log.level"); v != nil {
		rec.Level = normalizeLevel(attrString(v))
	}
	if v := firstAttr(obj, "service", "service_name", "svc", "app", "component", "logger", "source"); v != nil {
		rec.Service = attrString(v)
	}
	msg := header
	if v := firstAttr(obj, "message", "msg", "event"); v != nil {
		msg = attrString(v)
	}
	rec.Message = truncateMessage(strings.TrimSpace(msg))
	rec.Signature = signature(rec.Raw, rec.Message)
	return rec
}

// firstAttr returns the first present, non-empty value among keys.
func firstAttr(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return v
	}
	return nil
}

func attrString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// ---------------------------------------------------------------------------
// Header field extractors
// ---------------------------------------------------------------------------

// extractTimestamp peels a leading timestamp off the header.
// The timestamp is kept as a string to stay format-agnostic; a bracketed
// form is a stronger signal than a bare prefix, and a date without a
// time-of-day is weaker still.
func extractTimestamp(header string) (ts, rest string, conf float64, tags []string) {
	if m := tsBracketRe.FindStringSubmatchIndex(header); m != nil {
		ts = strings.TrimSpace(header[m[2]:m[3]])
		rest = strings.TrimLeft(header[m[1]:], " \t")
		return ts, rest, 0.95, []string{"ts:bracket"}
	}
	if m := tsPrefixRe.FindStringSubmatchIndex(header); m != nil {
		ts = strings.TrimSpace(header[m[2]:m[3]])
		rest = strings.TrimLeft(header[m[1]:], " \t")
		conf = 0.60
		if hasClockRe.MatchString(ts) {
			conf = 0.90
		}
		return ts, rest, conf, []string{"ts:prefix"}
	}
	return "", strings.TrimSpace(header), 0, nil
}

var hasClockRe = regexp.MustCompile(`\d{2}:\d{2}`)

// extractLevel peels a leading level token, falling back to a mid-line
// level=... pair.  The key-value form is not removed from the text since it
// can sit anywhere in the message.
func extractLevel(text string) (lvl, rest string, conf float64, tags []string) {
	if m := levelPrefixRe.FindStringSubmatchIndex(text); m != nil {
		lvl = normalizeLevel(text[m[2]:m[3]])
		rest = strings.TrimLeft(text[m[1]:], " \t")
		return lvl, rest, 0.90, []string{"level:prefix"}
	}
	if m := levelKVRe.FindStringSubmatch(text); m != nil {
		return normalizeLevel(m[1]), strings.TrimSpace(text), 0.70, []string{"level:kv"}
	}
	return "", strings.TrimSpace(text), 0, nil
}

// extractService promotes a service name only on strong cues: an explicit
// key-value pair, a bracketed tag that is neither a level nor a date, or a
// "name: message" prefix.
func extractService(text string) (svc, rest string, conf float64, tags []string) {
	if m := serviceKVRe.FindStringSubmatch(text); m != nil {
		return m[1], strings.TrimSpace(text), 0.85, []string{"service:kv"}
	}
	if m := bracketTagRe.FindStringSubmatchIndex(text); m != nil {
		tag := text[m[2]:m[3]]
		if !levelPrefixRe.MatchString("["+tag+"]") && !datePrefixRe.MatchString(tag) {
			rest = strings.TrimLeft(text[m[1]:], " \t")
			return tag, rest, 0.60, []string{"service:bracket_tag"}
		}
	}
	if m := prefixColonRe.FindStringSubmatch(text); m != nil {
		return m[1], strings.TrimSpace(m[2]), 0.65, []string{"service:prefix_colon"}
	}
	return "", strings.TrimSpace(text), 0, nil
}

// peelServiceToken consumes the leading token when it looks like a service
// name, rejecting obvious non-services (levels, HTTP verbs, dates).
func peelServiceToken(text string) (svc, rest string, conf float64, tags []string) {
	s := strings.TrimLeft(text, " \t")
	if s == "" {
		return "", strings.TrimSpace(text), 0, nil
	}
	token := s
	rest = ""
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		token = s[:i]
		rest = strings.TrimSpace(s[i:])
	}
	if !serviceTokenRe.MatchString(token) {
		return "", strings.TrimSpace(text), 0, nil
	}
	if nonServiceTokens[strings.ToUpper(token)] {
		return "", strings.TrimSpace(text), 0, nil
	}
	if datePrefixRe.MatchString(token) {
		return "", strings.TrimSpace(text), 0, nil
	}
	return token, rest, 0.70, []string{"service:next_token"}
}

func buildMessage(headerRest, fallbackHeader string) string {
	msg := strings.TrimSpace(headerRest)
	if msg == "" {
		msg = strings.TrimSpace(fallbackHeader)
	}
	return truncateMessage(msg)
}

func concatTags(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// ---------------------------------------------------------------------------
// Timestamp parsing
// ---------------------------------------------------------------------------

var tsLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime parses a timestamp string against the known layouts.
// Comma decimal separators are normalised first.  Returns nil on failure;
// an unparseable timestamp is never fatal.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = strings.Replace(s, ",", ".", 1)
	for _, layout := range tsLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
