package domain

import (
	"strings"
)

// ZipCodeWidth is the fixed width of a canonical postal code
const ZipCodeWidth = 5

// CanonicalZip normalizes a raw postal code to five zero-padded digits.
//
// Accepted inputs include "10003", " 10003 ", "10003.0" (a code that went
// through a float column), "10003-1234" (ZIP+4) and "1003" (leading zero lost).
// Anything else, including "00000", is rejected.
func CanonicalZip(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if strings.Trim(s[i+1:], "0") != "" {
			return "", false
		}
		s = s[:i]
	}

	if s == "" || len(s) > ZipCodeWidth {
		return "", false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return "", false
		}
	}

	s = strings.Repeat("0", ZipCodeWidth-len(s)) + s
	if s == "00000" {
		return "", false
	}
	return s, true
}
