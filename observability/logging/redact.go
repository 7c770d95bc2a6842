package logging

import (
	"log/slog"
	"net/url"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":  {},
	"env":      {},
	"error":    {},
	"kind":     {},
	"action":   {},
	"backend":  {},
	"listen":   {},
	"data_dir": {},
}

// IsAllowlisted reports whether key may be logged without redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactionAllowlist returns a sorted copy of the keys exempt from redaction.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns an attr that redacts value unless key is allowlisted.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// RedactDSN masks the password of a database connection string. URL and
// key=value forms are both understood; anything else is masked entirely.
func RedactDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return dsn
	}
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return RedactedValue
		}
		if u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), "xxxxx")
			}
		}
		return strings.Replace(u.String(), "xxxxx", RedactedValue, 1)
	}
	if !strings.Contains(dsn, "=") {
		// a bare path, as used for sqlite
		return dsn
	}
	fields := strings.Fields(dsn)
	for i, field := range fields {
		if k, _, ok := strings.Cut(field, "="); ok && strings.EqualFold(k, "password") {
			fields[i] = k + "=" + RedactedValue
		}
	}
	return strings.Join(fields, " ")
}
