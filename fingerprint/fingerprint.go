// Package fingerprint reduces a log signature to a stable content hash.
// Volatile tokens (ids, addresses, timestamps, numbers) are replaced with
// placeholders so that semantically identical events collapse to the same
// fingerprint.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	uuidRe      = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	ipRe        = regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)
	hexRe       = regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`)
	timestampRe = regexp.MustCompile(`(?i)\b\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?\b`)
	emailRe     = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	urlRe       = regexp.MustCompile(`\bhttps?://[^\s]+\b`)
	tokenRe     = regexp.MustCompile(`\b[a-zA-Z0-9]{20,}\b`)
	numberRe    = regexp.MustCompile(`\b\d{4,}\b`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// New returns the 40-hex-char SHA-1 digest of the normalized text.
func New(text string) string {
	sum := sha1.Sum([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Normalize lowercases text and replaces volatile tokens with placeholders.
// The replacement order matters: specific patterns (uuid, ip, url) must run
// before the catch-all token and number rules subsume them.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = uuidRe.ReplaceAllString(text, "<uuid>")
	text = ipRe.ReplaceAllString(text, "<ip>")
	text = hexRe.ReplaceAllString(text, "<hex>")
	text = emailRe.ReplaceAllString(text, "<email>")
	text = urlRe.ReplaceAllString(text, "<url>")
	text = tokenRe.ReplaceAllString(text, "<token>")
	text = timestampRe.ReplaceAllString(text, "<timestamp>")
	text = numberRe.ReplaceAllString(text, "<number>")
	text = spaceRe.ReplaceAllString(text, " ")
	return text
}
