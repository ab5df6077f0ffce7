package engine

import "strings"

// sanitizeValue trims a caller-supplied scalar and strips characters that
// could break out of the JSON the workflow engine embeds it into. Identifier
// fields bypass this (they are server-generated UUID strings).
func sanitizeValue(s string) string {
	s = strings.TrimSpace(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r < 0x20 || r == 0x7f:
			// control characters dropped
		case r == '"', r == '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeFields applies sanitizeValue to every entry of a string map except
// keys ending in "_id". Exposed for callers forwarding loosely-typed field
// sets; the typed payloads sanitize internally.
func SanitizeFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if strings.HasSuffix(k, "_id") {
			out[k] = v
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}
