package recipient

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/recipients/internal/address"
)

// ProfileKeyLength is the size of a profile key in bytes.
const ProfileKeyLength = 32

// Contact is the metadata the local user keeps about a recipient.
type Contact struct {
	GivenName         string        `json:"given_name,omitempty"`
	FamilyName        string        `json:"family_name,omitempty"`
	Color             string        `json:"color,omitempty"`
	MessageExpiration time.Duration `json:"-"`
	Blocked           bool          `json:"blocked,omitempty"`
	Archived          bool          `json:"archived,omitempty"`
	ProfileSharing    bool          `json:"profile_sharing,omitempty"`
	Hidden            bool          `json:"hidden,omitempty"`
}

// DisplayName returns "given family", trimmed.
func (c *Contact) DisplayName() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.GivenName + " " + c.FamilyName)
}

// UnidentifiedAccessMode describes whether sealed sender can be used.
type UnidentifiedAccessMode string

const (
	UnidentifiedAccessUnknown      UnidentifiedAccessMode = "UNKNOWN"
	UnidentifiedAccessDisabled     UnidentifiedAccessMode = "DISABLED"
	UnidentifiedAccessEnabled      UnidentifiedAccessMode = "ENABLED"
	UnidentifiedAccessUnrestricted UnidentifiedAccessMode = "UNRESTRICTED"
)

// ParseUnidentifiedAccessMode accepts the upper-case names; "" is UNKNOWN.
func ParseUnidentifiedAccessMode(s string) (UnidentifiedAccessMode, error) {
	switch m := UnidentifiedAccessMode(strings.ToUpper(s)); m {
	case "":
		return UnidentifiedAccessUnknown, nil
	case UnidentifiedAccessUnknown, UnidentifiedAccessDisabled,
		UnidentifiedAccessEnabled, UnidentifiedAccessUnrestricted:
		return m, nil
	default:
		return "", fmt.Errorf("unknown unidentified access mode %q", s)
	}
}

// IsKnown reports whether the mode was validated against the server,
// i.e. it is neither UNKNOWN nor DISABLED.
func (m UnidentifiedAccessMode) IsKnown() bool {
	return m == UnidentifiedAccessEnabled || m == UnidentifiedAccessUnrestricted
}

// Profile is what the recipient published about themself.
type Profile struct {
	LastUpdate             time.Time              `json:"-"`
	GivenName              string                 `json:"given_name,omitempty"`
	FamilyName             string                 `json:"family_name,omitempty"`
	About                  string                 `json:"about,omitempty"`
	AboutEmoji             string                 `json:"about_emoji,omitempty"`
	AvatarPath             string                 `json:"avatar_path,omitempty"`
	PaymentAddress         []byte                 `json:"payment_address,omitempty"`
	UnidentifiedAccessMode UnidentifiedAccessMode `json:"unidentified_access_mode"`
	Capabilities           []string               `json:"capabilities,omitempty"`
}

// DisplayName returns "given family", trimmed.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.GivenName + " " + p.FamilyName)
}

// HasCapability reports whether the capability set contains c.
func (p *Profile) HasCapability(c string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Capabilities, c)
}

// Normalize sorts and deduplicates capabilities and fills an empty access mode.
func (p *Profile) Normalize() {
	if p.UnidentifiedAccessMode == "" {
		p.UnidentifiedAccessMode = UnidentifiedAccessUnknown
	}
	if len(p.Capabilities) > 0 {
		caps := slices.Clone(p.Capabilities)
		slices.Sort(caps)
		p.Capabilities = slices.Compact(caps)
	}
}

// ProfileKey is the symmetric key used to decrypt a recipient's profile.
type ProfileKey []byte

// ParseProfileKey validates the key length.
func ParseProfileKey(b []byte) (ProfileKey, error) {
	if len(b) != ProfileKeyLength {
		return nil, fmt.Errorf("profile key must be %d bytes, got %d", ProfileKeyLength, len(b))
	}
	return ProfileKey(bytes.Clone(b)), nil
}

// Equal compares two keys; two nil keys are equal.
func (k ProfileKey) Equal(o ProfileKey) bool { return bytes.Equal(k, o) }

// ProfileKeyCredential is an opaque, server-issued credential derived from the profile key.
type ProfileKeyCredential []byte

// Record is a full recipient row.
type Record struct {
	ID                   int64
	Address              address.Address
	Contact              *Contact
	Profile              *Profile
	ProfileKey           ProfileKey
	ProfileKeyCredential ProfileKeyCredential
	UnregisteredAt       time.Time
}

// DisplayName prefers the contact name, then the profile name, then an identifier.
func (r *Record) DisplayName() string {
	if n := r.Contact.DisplayName(); n != "" {
		return n
	}
	if n := r.Profile.DisplayName(); n != "" {
		return n
	}
	switch {
	case r.Address.HasNumber():
		return r.Address.Number()
	case r.Address.HasUsername():
		return r.Address.Username()
	case r.Address.HasACI():
		return r.Address.ACI().String()
	default:
		return r.Address.PNI().String()
	}
}
