package exporter

import (
	"strconv"
	"time"

	"zipenrich/pkg/contracts/domain"
)

// formatFloat formats an optional float for CSV output using the shortest
// representation that round-trips. Missing values become empty cells.
func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

// formatInt formats an optional int64 for CSV output
func formatInt(i *int64) string {
	if i == nil {
		return ""
	}
	return strconv.FormatInt(*i, 10)
}

// formatString dereferences an optional string
func formatString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// formatBorough dereferences an optional borough
func formatBorough(b *domain.Borough) string {
	if b == nil {
		return ""
	}
	return b.String()
}

// formatTime formats an optional timestamp as RFC 3339 in UTC
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
