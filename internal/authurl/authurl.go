// Package authurl finds authorization links and authorization-related wording
// in free-form agent output.
//
// Agents embed connect/OAuth links at unpredictable depth inside text or JSON,
// so detection runs over the serialized whole response rather than a known
// field. Missing a real link is worse than opening an unrelated one, which is
// why Find falls back to a looser second pass.
package authurl

import (
	"regexp"
	"strings"
)

// minGenericLength is the minimum length of the part after "://" for a URL to
// be considered by the second pass.
const minGenericLength = 20

// urlPattern matches absolute http(s) URLs. URL characters stop at whitespace,
// quotes, angle brackets and backslashes (escaped quotes in serialized JSON).
var urlPattern = regexp.MustCompile(`(?i)https?://[^\s"'<>\\]+`)

// PrimaryTokens mark a URL as an authorization link in the first pass.
var PrimaryTokens = []string{
	"composio",
	"accounts.google.com",
	"oauth",
	"auth",
	"connect",
	"redirect",
}

// FallbackTokens are checked against the first long URL in the second pass.
var FallbackTokens = []string{
	"auth",
	"oauth",
	"connect",
	"composio",
	"google.com",
}

// AuthorizationPhrases indicate that an agent reply is asking for account
// authorization even though the call itself succeeded.
var AuthorizationPhrases = []string{
	"authenticate",
	"authorize",
	"permission",
	"connect your",
	"not connected",
}

// ErrorTokens indicate that a failed call's error text is about
// authorization rather than a hard failure.
var ErrorTokens = []string{
	"auth",
	"connect",
	"permission",
}

// Find returns the first authorization URL in text, or "" when there is none.
func Find(text string) string {
	if text == "" {
		return ""
	}

	matches := urlPattern.FindAllString(text, -1)
	for _, u := range matches {
		if containsAny(afterScheme(u), PrimaryTokens) {
			return u
		}
	}

	for _, u := range matches {
		if len(afterScheme(u)) < minGenericLength {
			continue
		}
		// Only the first long URL is considered.
		if containsAny(afterScheme(u), FallbackTokens) {
			return u
		}
		return ""
	}
	return ""
}

// NeedsAuthorization reports whether an agent message says the mail account
// still has to be authorized or connected.
func NeedsAuthorization(message string) bool {
	return containsAny(message, AuthorizationPhrases)
}

// ErrorSuggestsAuthorization reports whether an error string from a failed
// agent call points at missing authorization.
func ErrorSuggestsAuthorization(errText string) bool {
	return containsAny(errText, ErrorTokens)
}

func afterScheme(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		return u[i+3:]
	}
	return u
}

func containsAny(s string, tokens []string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
