package telemetry

import "unicode/utf8"

// Truncate shortens value for log attributes, marking the cut with "...".
// The result is at most limit bytes and never splits a UTF-8 sequence.
func Truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	suffix := "..."
	if limit <= len(suffix) {
		suffix = ""
	}
	cut := limit - len(suffix)
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + suffix
}
