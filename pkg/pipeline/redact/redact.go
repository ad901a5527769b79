package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b((openai|gemini)[_-]?)?api[_-]?key\b\s*[:=]\s*[^\s"'&]+`)

	// Query-string keys, e.g. "?key=AIza...".
	queryKeyRe = regexp.MustCompile(`([?&]key=)[^\s"'&]+`)

	// OpenAI-style secret keys ("sk-...", "sk-proj-...").
	openAIKeyRe = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{8,}`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = queryKeyRe.ReplaceAllString(out, "${1}<redacted>")
	out = openAIKeyRe.ReplaceAllString(out, "sk-<redacted>")
	return strings.TrimSpace(out)
}
