// Package redact scrubs sensitive material from strings before they reach
// logs or error responses: connection strings, API keys, bearer tokens, and
// filesystem paths that tend to ride along in wrapped errors.
package redact

import "regexp"

// Redaction placeholders
const (
	Placeholder           = "[REDACTED]"
	PathPlaceholder       = "[REDACTED_PATH]"
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
)

var (
	dbConnRegex   = regexp.MustCompile(`(?i)(postgres|postgresql|redis|mysql)://[^@\s]+@`)
	apiKeyRegex   = regexp.MustCompile(`(?i)(api[_-]?key|token|secret|bearer|auth)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`)
	jwtTokenRegex = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)
	unixPathRegex = regexp.MustCompile(`(/[\w.-]+){3,}`)
)

// String returns the input with sensitive fragments replaced by placeholders.
func String(s string) string {
	s = dbConnRegex.ReplaceAllString(s, "$1://"+CredentialPlaceholder+"@")
	s = jwtTokenRegex.ReplaceAllString(s, CredentialPlaceholder)
	s = apiKeyRegex.ReplaceAllString(s, "$1$2"+CredentialPlaceholder)
	s = unixPathRegex.ReplaceAllString(s, PathPlaceholder)
	return s
}

// Error returns the redacted message of err, or "" for a nil error.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
