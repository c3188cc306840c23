package logparse

import "strings"

// signature picks the canonical string for fingerprinting a record.
// The goal is that semantically equivalent logs collapse to one group: for
// stack traces the root-cause lines matter more than the frames, and for
// generic one-line messages the message itself is the signature.
func signature(raw, message string) string {
	var lines []string
	for _, ln := range strings.Split(raw, "\n") {
		lines = append(lines, strings.TrimRight(ln, " \t\r"))
	}
	var nonEmpty []string
	for _, ln := range lines {
		if s := strings.TrimSpace(ln); s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) == 0 {
		return strings.TrimSpace(message)
	}
	if len(nonEmpty) == 1 {
		if m := strings.TrimSpace(message); m != "" {
			return m
		}
		return nonEmpty[0]
	}

	// Exception/stack-trace path.
	var picked []string
	for _, ln := range nonEmpty {
		if strings.Contains(ln, "Caused by:") {
			picked = append(picked, ln)
			break
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if exceptionishRe.MatchString(strings.TrimSpace(lines[i])) {
			picked = append(picked, lines[i])
			break
		}
	}
	for _, ln := range nonEmpty {
		if strings.HasPrefix(ln, "Traceback") {
			// Python tracebacks put the most relevant info on the last line.
			if last := nonEmpty[len(nonEmpty)-1]; !contains(picked, last) {
				picked = append(picked, last)
			}
			break
		}
	}
	if len(picked) > 0 {
		if top := strings.TrimSpace(message); top != "" && !contains(picked, top) {
			picked = append([]string{top}, picked...)
		}
		return strings.Join(picked, " | ")
	}

	// Non-exception multiline: a generic top message gets up to two indented
	// continuation lines as a hint.
	msg := strings.TrimSpace(message)
	if strings.HasSuffix(msg, ":") || len([]rune(msg)) < 18 {
		var cont []string
		for _, ln := range lines[1:] {
			if strings.TrimSpace(ln) != "" && (strings.HasPrefix(ln, " ") || strings.HasPrefix(ln, "\t")) {
				cont = append(cont, strings.TrimSpace(ln))
			}
			if len(cont) >= 2 {
				break
			}
		}
		if len(cont) > 0 {
			return msg + " | " + strings.Join(cont, " | ")
		}
	}
	if msg != "" {
		return msg
	}
	return nonEmpty[0]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
