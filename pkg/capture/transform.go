package capture

import (
	"net/url"
	"strings"
)

// Transform rewrites a snapshot before attributes are extracted from it.
// The returned snapshot is the one recorded.
type Transform interface {
	Modify(Snapshot) Snapshot
}

// TransformFunc adapts a function to Transform.
type TransformFunc func(Snapshot) Snapshot

// Modify implements Transform.
func (f TransformFunc) Modify(s Snapshot) Snapshot { return f(s) }

// ChainTransforms applies transforms in order. Nil entries are skipped.
func ChainTransforms(transforms ...Transform) Transform {
	return TransformFunc(func(s Snapshot) Snapshot {
		for _, t := range transforms {
			if t != nil {
				s = t.Modify(s)
			}
		}
		return s
	})
}

// RedactedValue replaces redacted query parameter values.
const RedactedValue = "REDACTED"

// RedactTransform returns a Transform that replaces the values of the named
// query parameters (matched case-insensitively) and, when stripUserInfo is
// set, removes credentials from the URL. The snapshot URL is copied; the
// caller's URL is never modified.
func RedactTransform(params []string, stripUserInfo bool) Transform {
	sensitive := make(map[string]struct{}, len(params))
	for _, p := range params {
		sensitive[strings.ToLower(p)] = struct{}{}
	}

	return TransformFunc(func(s Snapshot) Snapshot {
		if s.URL == nil {
			return s
		}

		u := *s.URL
		if stripUserInfo {
			u.User = nil
		}

		if len(sensitive) > 0 && u.RawQuery != "" {
			u.RawQuery = redactQuery(u.RawQuery, sensitive)
		}

		s.URL = &u
		return s
	})
}

// redactQuery rewrites raw, keeping parameter order.
func redactQuery(raw string, sensitive map[string]struct{}) string {
	parts := strings.Split(raw, "&")
	changed := false
	for i, part := range parts {
		key, _, hasValue := strings.Cut(part, "=")
		name, err := url.QueryUnescape(key)
		if err != nil {
			name = key
		}
		if _, ok := sensitive[strings.ToLower(name)]; ok && hasValue {
			parts[i] = key + "=" + RedactedValue
			changed = true
		}
	}
	if !changed {
		return raw
	}
	return strings.Join(parts, "&")
}
