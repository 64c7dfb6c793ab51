// Package redaction scans code chunks and diff hunks for secrets
// before they reach the knowledge store, the LLM provider, or any log
// line. Nothing derived from a chunk is persisted or transmitted until
// it has passed through an Engine.
package redaction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// SecretType identifies the category of secret a pattern matched.
type SecretType string

const (
	SecretAPIKey        SecretType = "api_key"
	SecretAWSAccessKey  SecretType = "aws_access_key"
	SecretAWSSecretKey  SecretType = "aws_secret_key"
	SecretPrivateKey    SecretType = "private_key"
	SecretPassword      SecretType = "password"
	SecretToken         SecretType = "token"
	SecretCertificate   SecretType = "certificate"
	SecretDatabaseURL   SecretType = "database_url"
	SecretJWT           SecretType = "jwt"
	SecretBearerToken   SecretType = "bearer_token"
	SecretBasicAuth     SecretType = "basic_auth"
	SecretGenericSecret SecretType = "generic_secret"
)

// Match describes one detected secret occurrence.
type Match struct {
	SecretType         SecretType
	PatternID          string
	LineNumber         int
	RedactedSubstring  string
}

type pattern struct {
	id     string
	typ    SecretType
	regexp *regexp.Regexp
}

// Engine performs regex-based secret detection and redaction.
type Engine struct {
	patterns []pattern
}

// NewEngine creates a new redaction engine with the default secret
// pattern set covering all twelve recognized secret types.
func NewEngine() *Engine {
	return &Engine{patterns: defaultPatterns()}
}

// Redact scans input for secrets, replaces every occurrence with a
// stable hash-derived placeholder, and returns the matches it found so
// callers can log or count them without ever logging the secret value
// itself.
func (e *Engine) Redact(input string) (string, []Match, error) {
	result := input
	seen := make(map[string]string) // secret -> placeholder
	var matches []Match

	lines := strings.Split(input, "\n")

	for _, p := range e.patterns {
		locs := p.regexp.FindAllStringIndex(input, -1)
		for _, loc := range locs {
			secret := input[loc[0]:loc[1]]
			placeholder, ok := seen[secret]
			if !ok {
				placeholder = e.generatePlaceholder(secret)
				seen[secret] = placeholder
			}
			matches = append(matches, Match{
				SecretType:        p.typ,
				PatternID:         p.id,
				LineNumber:        lineNumberAt(lines, loc[0], input),
				RedactedSubstring: placeholder,
			})
		}
	}

	for secret, placeholder := range seen {
		result = strings.ReplaceAll(result, secret, placeholder)
	}

	return result, matches, nil
}

// lineNumberAt returns the 1-based line number containing byte offset
// off within input.
func lineNumberAt(lines []string, off int, input string) int {
	consumed := 0
	for i, line := range lines {
		consumed += len(line) + 1 // +1 for the stripped newline
		if off < consumed {
			return i + 1
		}
	}
	return len(lines)
}

// HasSecrets reports whether Redact would find anything, without
// building placeholders — used by the indexer to decide whether a
// chunk needs the slower redaction pass at all.
func (e *Engine) HasSecrets(input string) bool {
	for _, p := range e.patterns {
		if p.regexp.MatchString(input) {
			return true
		}
	}
	return false
}

// IsRedacted checks if the content contains redaction placeholders.
func (e *Engine) IsRedacted(content string) bool {
	return strings.Contains(content, "<REDACTED:")
}

// generatePlaceholder creates a stable, unique placeholder for a secret.
func (e *Engine) generatePlaceholder(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	hashStr := hex.EncodeToString(hash[:])[:8]
	return fmt.Sprintf("<REDACTED:%s>", hashStr)
}

// defaultPatterns returns the default set of regex patterns for secret
// detection, one or more per SecretType.
func defaultPatterns() []pattern {
	specs := []struct {
		id  string
		typ SecretType
		re  string
	}{
		{"openai-key", SecretAPIKey, `sk-[a-zA-Z0-9]{20,}`},
		{"google-api-key", SecretAPIKey, `AIza[0-9A-Za-z\-_]{35}`},
		{"anthropic-key", SecretToken, `sk-ant-[a-zA-Z0-9\-]{20,}`},
		{"aws-access-key", SecretAWSAccessKey, `AKIA[0-9A-Z]{16}`},
		{"aws-secret-key", SecretAWSSecretKey, `aws.{0,20}?['\"][0-9a-zA-Z/+]{40}['\"]`},
		{"github-token", SecretToken, `gh[posr]_[a-zA-Z0-9]{20,}`},
		{"slack-token", SecretToken, `xox[baprs]-[a-zA-Z0-9\-]{10,}`},
		{"jwt", SecretJWT, `eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`},
		{"pem-private-key", SecretPrivateKey, `-----BEGIN\s+(?:RSA|EC|OPENSSH|DSA|ENCRYPTED)\s+PRIVATE\s+KEY-----[\s\S]*?-----END\s+(?:RSA|EC|OPENSSH|DSA|ENCRYPTED)\s+PRIVATE\s+KEY-----`},
		{"pem-certificate", SecretCertificate, `-----BEGIN\s+CERTIFICATE-----[\s\S]*?-----END\s+CERTIFICATE-----`},
		{"bearer-token", SecretBearerToken, `Bearer\s+[a-zA-Z0-9_\-\.]+`},
		{"basic-auth-header", SecretBasicAuth, `Basic\s+[a-zA-Z0-9+/=]{16,}`},
		{"database-url", SecretDatabaseURL, `(?:postgres|postgresql|mysql|mongodb(?:\+srv)?)://[^\s'"]+:[^\s'"@]+@[^\s'"]+`},
		{"inline-password-assignment", SecretPassword, `(?i)password\s*[:=]\s*['"][^'"\s]{6,}['"]`},
		{"generic-secret-assignment", SecretGenericSecret, `(?i)(?:secret|api[_-]?token)\s*[:=]\s*['"][^'"\s]{12,}['"]`},
	}

	patterns := make([]pattern, 0, len(specs))
	for _, s := range specs {
		patterns = append(patterns, pattern{id: s.id, typ: s.typ, regexp: regexp.MustCompile(s.re)})
	}
	return patterns
}
