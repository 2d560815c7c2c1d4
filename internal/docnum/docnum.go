// Package docnum renders and parses warehouse document numbers.
package docnum

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Number is the decomposed form of a document number.
type Number struct {
	Prefix   string
	DateKey  string
	Sequence int64
}

// ErrInvalidNumber indicates a string that is not a document number.
var ErrInvalidNumber = errors.New("docnum: invalid document number")

// seqWidth is the minimum zero-padded width of the sequence part.
const seqWidth = 3

var numberPattern = regexp.MustCompile(`^([A-Z][A-Z0-9]*)-(\d{8})-(\d{3,})$`)

// Format renders PREFIX-YYYYMMDD-NNN. Sequences beyond three digits keep
// their natural width so numbers stay unique past 999.
func Format(prefix, dateKey string, seq int64) string {
	return fmt.Sprintf("%s-%s-%0*d", prefix, dateKey, seqWidth, seq)
}

// Parse decomposes a document number produced by Format. It is the exact
// left inverse of Format for valid inputs and rejects everything else.
func Parse(s string) (Number, error) {
	m := numberPattern.FindStringSubmatch(s)
	if m == nil {
		return Number{}, ErrInvalidNumber
	}
	// Reject zero-padding beyond the canonical width, e.g. "0100".
	if len(m[3]) > seqWidth && strings.HasPrefix(m[3], "0") {
		return Number{}, ErrInvalidNumber
	}
	seq, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil || seq < 1 {
		return Number{}, ErrInvalidNumber
	}
	return Number{Prefix: m[1], DateKey: m[2], Sequence: seq}, nil
}

// ValidPrefix reports whether a prefix can appear in a document number.
func ValidPrefix(prefix string) bool {
	if prefix == "" {
		return false
	}
	for i, r := range prefix {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// ValidDateKey reports whether the date key has the fixed 8-digit shape.
func ValidDateKey(key string) bool {
	if len(key) != 8 {
		return false
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
