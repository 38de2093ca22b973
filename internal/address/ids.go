package address

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// pniPrefix marks the string form of a PNI so it cannot be confused with an ACI.
const pniPrefix = "PNI:"

// ACI is an account identifier. The zero value means "absent".
type ACI uuid.UUID

// PNI is a phone number identity. The zero value means "absent".
type PNI uuid.UUID

// ParseACI parses the canonical UUID form of an ACI.
// The nil UUID is rejected since it is used to represent absence.
func ParseACI(s string) (ACI, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return ACI{}, fmt.Errorf("%w: aci %q: %v", ErrInvalidServiceID, s, err)
	}
	if u == uuid.Nil {
		return ACI{}, fmt.Errorf("%w: aci is the nil uuid", ErrInvalidServiceID)
	}
	return ACI(u), nil
}

// ParsePNI parses a PNI with or without the "PNI:" prefix.
func ParsePNI(s string) (PNI, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), pniPrefix)
	u, err := uuid.Parse(raw)
	if err != nil {
		return PNI{}, fmt.Errorf("%w: pni %q: %v", ErrInvalidServiceID, s, err)
	}
	if u == uuid.Nil {
		return PNI{}, fmt.Errorf("%w: pni is the nil uuid", ErrInvalidServiceID)
	}
	return PNI(u), nil
}

// MustParseACI is like ParseACI but panics on error. Intended for tests and fixtures.
func MustParseACI(s string) ACI {
	a, err := ParseACI(s)
	if err != nil {
		panic(err)
	}
	return a
}

// MustParsePNI is like ParsePNI but panics on error. Intended for tests and fixtures.
func MustParsePNI(s string) PNI {
	p, err := ParsePNI(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsZero reports whether the ACI is absent.
func (a ACI) IsZero() bool { return uuid.UUID(a) == uuid.Nil }

// String returns the canonical UUID form, or "" when absent.
func (a ACI) String() string {
	if a.IsZero() {
		return ""
	}
	return uuid.UUID(a).String()
}

// IsZero reports whether the PNI is absent.
func (p PNI) IsZero() bool { return uuid.UUID(p) == uuid.Nil }

// String returns the prefixed form "PNI:<uuid>", or "" when absent.
func (p PNI) String() string {
	if p.IsZero() {
		return ""
	}
	return pniPrefix + uuid.UUID(p).String()
}

// RawString returns the unprefixed UUID form, or "" when absent.
// This is the form stored in the database.
func (p PNI) RawString() string {
	if p.IsZero() {
		return ""
	}
	return uuid.UUID(p).String()
}
