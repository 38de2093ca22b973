package address

import (
	"fmt"
	"log/slog"
	"strings"
)

// Address is an immutable identifier set.
//
// The zero value is not a valid address; it is what lookups return when there
// is nothing to return. Use New or Parse to build one.
type Address struct {
	aci      ACI
	pni      PNI
	number   string
	username string
}

// Option sets one identifier on an address under construction.
type Option func(*Address)

// WithACI sets the account identifier.
func WithACI(aci ACI) Option {
	return func(a *Address) { a.aci = aci }
}

// WithPNI sets the phone number identity.
func WithPNI(pni PNI) Option {
	return func(a *Address) { a.pni = pni }
}

// WithNumber sets the phone number. It is normalized to E164 by New.
func WithNumber(number string) Option {
	return func(a *Address) { a.number = number }
}

// WithUsername sets the username. It is normalized by New.
func WithUsername(username string) Option {
	return func(a *Address) { a.username = username }
}

// New builds an address from options.
//
// Returns ErrNoIdentifier if none of ACI, PNI and number is set, and
// ErrInvalidNumber or ErrInvalidUsername if those fail normalization.
// Empty strings mean "absent".
func New(opts ...Option) (Address, error) {
	var a Address
	for _, opt := range opts {
		opt(&a)
	}

	if a.number != "" {
		n, err := ParseNumber(a.number)
		if err != nil {
			return Address{}, err
		}
		a.number = n
	}
	if a.username != "" {
		u, err := NormalizeUsername(a.username)
		if err != nil {
			return Address{}, err
		}
		a.username = u
	}

	if !a.hasIdentifier() {
		return Address{}, ErrNoIdentifier
	}
	return a, nil
}

// MustNew is like New but panics on error. Intended for tests and fixtures.
func MustNew(opts ...Option) Address {
	a, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return a
}

// Parse builds an address from string forms, as stored in the database or
// given on the command line. Empty strings mean "absent".
func Parse(aci, pni, number, username string) (Address, error) {
	var opts []Option
	if aci != "" {
		parsed, err := ParseACI(aci)
		if err != nil {
			return Address{}, err
		}
		opts = append(opts, WithACI(parsed))
	}
	if pni != "" {
		parsed, err := ParsePNI(pni)
		if err != nil {
			return Address{}, err
		}
		opts = append(opts, WithPNI(parsed))
	}
	if number != "" {
		opts = append(opts, WithNumber(number))
	}
	if username != "" {
		opts = append(opts, WithUsername(username))
	}
	return New(opts...)
}

func (a Address) hasIdentifier() bool {
	return !a.aci.IsZero() || !a.pni.IsZero() || a.number != ""
}

// IsZero reports whether this is the zero (invalid) address.
func (a Address) IsZero() bool { return !a.hasIdentifier() }

// ACI returns the account identifier, zero if absent.
func (a Address) ACI() ACI { return a.aci }

// PNI returns the phone number identity, zero if absent.
func (a Address) PNI() PNI { return a.pni }

// Number returns the E164 number, "" if absent.
func (a Address) Number() string { return a.number }

// Username returns the normalized username, "" if absent.
func (a Address) Username() string { return a.username }

func (a Address) HasACI() bool      { return !a.aci.IsZero() }
func (a Address) HasPNI() bool      { return !a.pni.IsZero() }
func (a Address) HasNumber() bool   { return a.number != "" }
func (a Address) HasUsername() bool { return a.username != "" }

// HasStrongIdentifier reports whether an ACI or PNI is present.
func (a Address) HasStrongIdentifier() bool { return a.HasACI() || a.HasPNI() }

// Equal reports whether both addresses carry exactly the same identifiers.
func (a Address) Equal(o Address) bool { return a == o }

// Matches reports whether two addresses describe the same contact.
//
// A shared ACI is decisive in both directions: two different ACIs never match.
// When either side lacks an ACI, a shared PNI or number is enough.
func (a Address) Matches(o Address) bool {
	if a.HasACI() && o.HasACI() {
		return a.aci == o.aci
	}
	return (a.HasPNI() && a.pni == o.pni) || (a.HasNumber() && a.number == o.number)
}

// HasAdditionalIdentifiersThan reports whether a carries an ACI, PNI or number
// that o does not carry. Usernames are ignored.
func (a Address) HasAdditionalIdentifiersThan(o Address) bool {
	return (a.HasACI() && a.aci != o.aci) ||
		(a.HasPNI() && a.pni != o.pni) ||
		(a.HasNumber() && a.number != o.number)
}

// HasNoAdditionalIdentifiersThan is the negation of HasAdditionalIdentifiersThan:
// folding a into o loses no identifier.
func (a Address) HasNoAdditionalIdentifiersThan(o Address) bool {
	return !a.HasAdditionalIdentifiersThan(o)
}

// HasOnlyPNIAndNumber reports the server-linked pair with no ACI.
func (a Address) HasOnlyPNIAndNumber() bool {
	return !a.HasACI() && a.HasPNI() && a.HasNumber()
}

// Contains reports whether a already carries every identifier of o,
// including o's username if it has one.
func (a Address) Contains(o Address) bool {
	if o.HasAdditionalIdentifiersThan(a) {
		return false
	}
	return !o.HasUsername() || o.username == a.username
}

// WithIdentifiersFrom returns the union of a and o.
// Where both carry a component, a's value is kept.
func (a Address) WithIdentifiersFrom(o Address) Address {
	out := a
	if out.aci.IsZero() {
		out.aci = o.aci
	}
	if out.pni.IsZero() {
		out.pni = o.pni
	}
	if out.number == "" {
		out.number = o.number
	}
	if out.username == "" {
		out.username = o.username
	}
	return out
}

// WithUsernameFrom returns a with o's username when a has none.
func (a Address) WithUsernameFrom(o Address) Address {
	out := a
	if out.username == "" {
		out.username = o.username
	}
	return out
}

// Without removes the weak identifiers (number, PNI) that a shares with o.
// The ACI and username are never removed.
//
// Returns ErrNoIdentifier if nothing would remain.
func (a Address) Without(o Address) (Address, error) {
	out := a
	if out.HasNumber() && out.number == o.number {
		out.number = ""
	}
	if out.HasPNI() && out.pni == o.pni {
		out.pni = PNI{}
	}
	if !out.hasIdentifier() {
		return Address{}, ErrNoIdentifier
	}
	return out, nil
}

// WithoutNumber removes the number.
// Returns ErrNoIdentifier if the number was the only identifier.
func (a Address) WithoutNumber() (Address, error) {
	out := a
	out.number = ""
	if !out.hasIdentifier() {
		return Address{}, ErrNoIdentifier
	}
	return out, nil
}

// StrongOnly drops the number when an ACI or PNI is present.
// Addresses with only a number are returned unchanged.
func (a Address) StrongOnly() Address {
	if !a.HasStrongIdentifier() {
		return a
	}
	out := a
	out.number = ""
	return out
}

// String renders the present identifiers, e.g. "aci=… number=+15551234567".
func (a Address) String() string {
	if a.IsZero() {
		return "<none>"
	}
	var parts []string
	if a.HasACI() {
		parts = append(parts, "aci="+a.aci.String())
	}
	if a.HasPNI() {
		parts = append(parts, "pni="+a.pni.RawString())
	}
	if a.HasNumber() {
		parts = append(parts, "number="+a.number)
	}
	if a.HasUsername() {
		parts = append(parts, "username="+a.username)
	}
	return strings.Join(parts, " ")
}

// LogValue implements slog.LogValuer.
func (a Address) LogValue() slog.Value {
	var attrs []slog.Attr
	if a.HasACI() {
		attrs = append(attrs, slog.String("aci", a.aci.String()))
	}
	if a.HasPNI() {
		attrs = append(attrs, slog.String("pni", a.pni.RawString()))
	}
	if a.HasNumber() {
		attrs = append(attrs, slog.String("number", a.number))
	}
	if a.HasUsername() {
		attrs = append(attrs, slog.String("username", a.username))
	}
	return slog.GroupValue(attrs...)
}

// GoString is used by %#v in test failure output.
func (a Address) GoString() string {
	return fmt.Sprintf("address.Address{%s}", a.String())
}
