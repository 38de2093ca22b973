package address

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// usernamePattern is nickname.discriminator, e.g. "alice.42".
var usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{2,31}\.[0-9]{2,9}$`)

// NormalizeUsername returns the comparable form of a username.
// Usernames are case-insensitive, so the result is NFC normalized and case folded.
func NormalizeUsername(s string) (string, error) {
	// cases.Caser is stateful; one per call.
	folded := cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
	if !usernamePattern.MatchString(folded) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUsername, s)
	}
	return folded, nil
}
