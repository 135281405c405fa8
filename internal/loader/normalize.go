package loader

import (
	"strings"
	"unicode"
)

// NormalizeColumnName lowercases a header cell and collapses every run of
// spaces, hyphens, dots and underscores into a single underscore.
// "ZIP CODE" becomes "zip_code" and " Crash-Date " becomes "crash_date".
func NormalizeColumnName(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")

	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsSpace(r) || r == '-' || r == '.' || r == '_' {
			pendingSep = true
			continue
		}
		if pendingSep && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSep = false
		b.WriteRune(r)
	}
	return b.String()
}
