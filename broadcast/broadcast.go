package broadcast

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxTags bounds the number of tags kept from a single input.
	MaxTags = 10
	// MaxTagLength bounds the length of a single tag, in runes.
	MaxTagLength = 50
)

var (
	idPattern        = regexp.MustCompile(`/i/broadcasts/([A-Za-z0-9_-]+)`)
	parenHandle      = regexp.MustCompile(`\(@([a-zA-Z0-9_]+)\)`)
	leadingHandle    = regexp.MustCompile(`^@([a-zA-Z0-9_]+)`)
	bareTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// ExtractID pulls the broadcast identifier out of a submitted URL. It
// matches the /i/broadcasts/<token> path segment and returns the token, or
// the empty string when the URL has no such segment. Pure, no network.
func ExtractID(rawURL string) string {
	m := idPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// CanonicalURL builds the canonical broadcast URL for an identifier.
func CanonicalURL(broadcastID string) string {
	return "https://x.com/i/broadcasts/" + broadcastID
}

// NormalizeUsername trims, strips a leading @, and lowercases a username.
// Returns the empty string when nothing usable remains.
func NormalizeUsername(input string) string {
	trimmed := strings.TrimSpace(norm.NFC.String(input))
	if trimmed == "" {
		return ""
	}
	trimmed = strings.TrimPrefix(trimmed, "@")
	return strings.ToLower(trimmed)
}

// UsernameFromText tries to recover a username from free text such as a
// preview title. It checks, in order: a "(@handle)" parenthetical (the
// common OpenGraph title shape), a leading "@handle", then a bare
// alphanumeric token. First match wins; returns the empty string when none
// apply.
func UsernameFromText(text string) string {
	if text == "" {
		return ""
	}

	if m := parenHandle.FindStringSubmatch(text); m != nil {
		return NormalizeUsername(m[1])
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "@") {
		if m := leadingHandle.FindStringSubmatch(trimmed); m != nil {
			return NormalizeUsername(m[1])
		}
	}

	if bareTokenPattern.MatchString(trimmed) {
		return NormalizeUsername(trimmed)
	}

	return ""
}

// ParseTags splits a comma-separated tag string into normalized tags:
// trimmed, lowercased, empties dropped, duplicates removed preserving
// first-seen order, each tag capped at MaxTagLength runes, at most MaxTags
// entries.
func ParseTags(input string) []string {
	if input == "" {
		return []string{}
	}

	seen := make(map[string]bool)
	tags := []string{}
	for _, raw := range strings.Split(input, ",") {
		tag := strings.ToLower(strings.TrimSpace(norm.NFC.String(raw)))
		if tag == "" {
			continue
		}
		if runes := []rune(tag); len(runes) > MaxTagLength {
			tag = string(runes[:MaxTagLength])
		}
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) == MaxTags {
			break
		}
	}

	return tags
}
