package logging

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"mercator-hq/nettrace/pkg/config"
)

// Redactor removes credentials and personal data from log fields.
// A nil *Redactor is valid and redacts nothing.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternBearerToken = "bearer_token"
	PatternBasicAuth   = "basic_auth"
	PatternURLUserInfo = "url_userinfo"
	PatternQuerySecret = "query_secret"
	PatternEmail       = "email"
	PatternPassword    = "password"
)

// NewRedactor creates a new Redactor with the built-in patterns followed by
// any custom patterns. Custom patterns that fail to compile are skipped.
func NewRedactor(customPatterns []config.RedactPattern) *Redactor {
	r := &Redactor{}
	r.addDefaultPatterns()

	for _, p := range customPatterns {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		})
	}

	return r
}

// addDefaultPatterns adds built-in redaction patterns in a fixed order.
func (r *Redactor) addDefaultPatterns() {
	patterns := map[string]struct {
		regex       string
		replacement string
	}{
		PatternBearerToken: {
			regex:       `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`,
			replacement: "Bearer ***",
		},
		PatternBasicAuth: {
			regex:       `Basic\s+[a-zA-Z0-9+/]+=*`,
			replacement: "Basic ***",
		},
		PatternURLUserInfo: {
			regex:       `(https?://)[^/\s:@]+(:[^/\s@]*)?@`,
			replacement: "${1}***@",
		},
		PatternQuerySecret: {
			regex:       `(?i)([?&](?:access_token|api_key|apikey|token|signature|sig|password|key)=)[^&\s#]*`,
			replacement: "${1}***",
		},
		PatternEmail: {
			regex:       `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`,
			replacement: "***@***",
		},
		PatternPassword: {
			regex:       `(?i)(password|passwd|pwd)[:=]\s*[^\s&]+`,
			replacement: "$1=***",
		},
	}

	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	// userinfo must run before email so "user:pw@host" is not half-matched.
	sort.Slice(names, func(i, j int) bool {
		if names[i] == PatternURLUserInfo {
			return true
		}
		if names[j] == PatternURLUserInfo {
			return false
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		p := patterns[name]
		r.patterns = append(r.patterns, &redactPattern{
			name:        name,
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		})
	}
}

// RedactString redacts sensitive substrings from a string value.
func (r *Redactor) RedactString(value string) string {
	if r == nil || value == "" {
		return value
	}

	redacted := value
	for _, pattern := range r.patterns {
		redacted = pattern.regex.ReplaceAllString(redacted, pattern.replacement)
	}
	return redacted
}

// RedactArgs redacts sensitive values from variadic log arguments of the
// form key1, value1, key2, value2.
func (r *Redactor) RedactArgs(args ...any) []any {
	if r == nil || len(args) == 0 {
		return args
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 1; i < len(redacted); i += 2 {
		if key, ok := redacted[i-1].(string); ok && isSensitiveKey(key) {
			redacted[i] = redactValue(redacted[i])
			continue
		}
		if str, ok := redacted[i].(string); ok {
			redacted[i] = r.RedactString(str)
		}
	}

	return redacted
}

// RedactAttr redacts a single slog attribute, descending into groups.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if r == nil {
		return a
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		out := make([]any, len(group))
		for i, ga := range group {
			out[i] = r.RedactAttr(ga)
		}
		return slog.Group(a.Key, out...)
	case slog.KindString:
		if isSensitiveKey(a.Key) {
			return slog.Any(a.Key, redactValue(a.Value.String()))
		}
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	case slog.KindAny:
		if isSensitiveKey(a.Key) {
			return slog.String(a.Key, "***")
		}
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
		return a
	default:
		return a
	}
}

// isSensitiveKey checks if a key name indicates sensitive data.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)

	sensitiveKeys := []string{
		"password", "passwd", "pwd",
		"secret", "token", "api_key", "apikey",
		"authorization", "cookie",
		"private_key", "privatekey",
	}

	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// redactValue redacts a sensitive value completely, keeping a short prefix
// of longer strings for correlation.
func redactValue(value any) any {
	v, ok := value.(string)
	if !ok {
		return "***"
	}
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "***"
	}
	return v[:4] + "***"
}
