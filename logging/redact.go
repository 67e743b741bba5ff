package logging

import (
	"net/url"
	"regexp"

	"github.com/sirupsen/logrus"
)

// RedactionPlaceholder replaces sensitive values in logs.
const RedactionPlaceholder = "[REDACTED]"

var redactions = []struct {
	pattern *regexp.Regexp
	replace string
}{
	// GitHub classic and fine-grained tokens, app installation tokens
	{regexp.MustCompile(`\b(ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]+`), RedactionPlaceholder},
	{regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]+`), RedactionPlaceholder},
	// GitLab PAT format: glpat-xxxxxxxxxxxxx
	{regexp.MustCompile(`glpat-[a-zA-Z0-9_-]+`), RedactionPlaceholder},
	{regexp.MustCompile(`gitlab-ci-token:\s*[a-zA-Z0-9_-]+`), "gitlab-ci-token: " + RedactionPlaceholder},
	// Anthropic keys
	{regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]+`), RedactionPlaceholder},
	// Authorization header values
	{regexp.MustCompile(`(Bearer|Basic)\s+[A-Za-z0-9._~+/=-]+`), "$1 " + RedactionPlaceholder},
	// Credentials embedded in URLs
	{regexp.MustCompile(`(oauth2|x-access-token):[^@\s]+@`), "$1:" + RedactionPlaceholder + "@"},
	{regexp.MustCompile(`://[^/:@\s]+:[^@\s]+@`), "://" + RedactionPlaceholder + ":" + RedactionPlaceholder + "@"},
	// token=... in query strings
	{regexp.MustCompile(`(?i)(token|access_token|private_token)=[^&\s]+`), "$1=" + RedactionPlaceholder},
}

// Redact removes token material from s.
func Redact(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replace)
	}
	return s
}

// RedactURL strips user info from a URL, falling back to pattern redaction.
func RedactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Redact(raw)
	}
	if parsed.User != nil {
		parsed.User = url.User(RedactionPlaceholder)
	}
	return Redact(parsed.String())
}

// SanitizeError returns err's message with tokens removed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return Redact(err.Error())
}

// RedactingFormatter scrubs the message and string fields before delegating.
type RedactingFormatter struct {
	Inner logrus.Formatter
}

// Format implements logrus.Formatter.
func (f *RedactingFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	clean := entry.Dup()
	clean.Level = entry.Level
	clean.Time = entry.Time
	clean.Caller = entry.Caller
	clean.Message = Redact(entry.Message)
	for k, v := range clean.Data {
		switch val := v.(type) {
		case string:
			clean.Data[k] = Redact(val)
		case error:
			clean.Data[k] = Redact(val.Error())
		}
	}
	return f.Inner.Format(clean)
}
