package address

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// e164Pattern is "+" followed by a non-zero country code digit and at most 15 digits total.
var e164Pattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// ParseNumber normalizes a phone number to E164.
//
// Full-width digits and plus signs (as typed on some CJK keyboards) are folded
// to ASCII. Spaces, dashes, dots and parentheses are dropped. Anything else is
// rejected, as is a number without a leading "+".
func ParseNumber(s string) (string, error) {
	narrow := width.Narrow.String(strings.TrimSpace(s))

	var b strings.Builder
	for _, r := range narrow {
		switch {
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// visual separators
		default:
			return "", fmt.Errorf("%w: %q contains %q", ErrInvalidNumber, s, r)
		}
	}

	n := b.String()
	if !e164Pattern.MatchString(n) {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return n, nil
}
