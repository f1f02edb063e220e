package util

import "strings"

// SanitizePostgresText drops NUL bytes and invalid UTF-8, which neither
// text columns nor jsonb accept.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}
	return strings.ReplaceAll(strings.ToValidUTF8(value, ""), "\x00", "")
}

// SanitizeProperties returns a copy of extracted graph properties that
// can be stored as jsonb. Keys that end up empty are dropped; a nil map
// becomes an empty one.
func SanitizeProperties(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		key := SanitizePostgresText(k)
		if key == "" {
			continue
		}
		out[key] = SanitizePostgresText(v)
	}
	return out
}
