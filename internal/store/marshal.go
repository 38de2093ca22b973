package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/recipients/internal/recipient"
)

// contactRecord is the stored JSON form of recipient.Contact.
type contactRecord struct {
	GivenName                string `json:"given_name,omitempty"`
	FamilyName               string `json:"family_name,omitempty"`
	Color                    string `json:"color,omitempty"`
	MessageExpirationSeconds int64  `json:"message_expiration_seconds,omitempty"`
	Blocked                  bool   `json:"blocked,omitempty"`
	Archived                 bool   `json:"archived,omitempty"`
	ProfileSharing           bool   `json:"profile_sharing,omitempty"`
	Hidden                   bool   `json:"hidden,omitempty"`
}

// profileRecord is the stored JSON form of recipient.Profile.
type profileRecord struct {
	LastUpdateMillis       int64    `json:"last_update,omitempty"`
	GivenName              string   `json:"given_name,omitempty"`
	FamilyName             string   `json:"family_name,omitempty"`
	About                  string   `json:"about,omitempty"`
	AboutEmoji             string   `json:"about_emoji,omitempty"`
	AvatarPath             string   `json:"avatar_path,omitempty"`
	PaymentAddress         []byte   `json:"payment_address,omitempty"`
	UnidentifiedAccessMode string   `json:"unidentified_access_mode,omitempty"`
	Capabilities           []string `json:"capabilities,omitempty"`
}

// encodeJSON serializes v without HTML escaping so stored text stays readable.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// marshalContact converts a contact to a nullable TEXT column value.
func marshalContact(c *recipient.Contact) (sql.NullString, error) {
	if c == nil {
		return sql.NullString{}, nil
	}
	text, err := encodeJSON(contactRecord{
		GivenName:                c.GivenName,
		FamilyName:               c.FamilyName,
		Color:                    c.Color,
		MessageExpirationSeconds: int64(c.MessageExpiration / time.Second),
		Blocked:                  c.Blocked,
		Archived:                 c.Archived,
		ProfileSharing:           c.ProfileSharing,
		Hidden:                   c.Hidden,
	})
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal contact: %w", err)
	}
	return sql.NullString{String: text, Valid: true}, nil
}

// unmarshalContact parses a nullable TEXT column; NULL yields nil.
func unmarshalContact(col sql.NullString) (*recipient.Contact, error) {
	if !col.Valid {
		return nil, nil
	}
	var rec contactRecord
	if err := json.Unmarshal([]byte(col.String), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal contact: %w", err)
	}
	return &recipient.Contact{
		GivenName:         rec.GivenName,
		FamilyName:        rec.FamilyName,
		Color:             rec.Color,
		MessageExpiration: time.Duration(rec.MessageExpirationSeconds) * time.Second,
		Blocked:           rec.Blocked,
		Archived:          rec.Archived,
		ProfileSharing:    rec.ProfileSharing,
		Hidden:            rec.Hidden,
	}, nil
}

// marshalProfile converts a profile to a nullable TEXT column value.
// Capabilities are stored sorted so equal profiles produce equal text.
func marshalProfile(p *recipient.Profile) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	norm := *p
	norm.Normalize()

	var lastUpdate int64
	if !norm.LastUpdate.IsZero() {
		lastUpdate = norm.LastUpdate.UnixMilli()
	}

	text, err := encodeJSON(profileRecord{
		LastUpdateMillis:       lastUpdate,
		GivenName:              norm.GivenName,
		FamilyName:             norm.FamilyName,
		About:                  norm.About,
		AboutEmoji:             norm.AboutEmoji,
		AvatarPath:             norm.AvatarPath,
		PaymentAddress:         norm.PaymentAddress,
		UnidentifiedAccessMode: string(norm.UnidentifiedAccessMode),
		Capabilities:           norm.Capabilities,
	})
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal profile: %w", err)
	}
	return sql.NullString{String: text, Valid: true}, nil
}

// unmarshalProfile parses a nullable TEXT column; NULL yields nil.
func unmarshalProfile(col sql.NullString) (*recipient.Profile, error) {
	if !col.Valid {
		return nil, nil
	}
	var rec profileRecord
	if err := json.Unmarshal([]byte(col.String), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	mode, err := recipient.ParseUnidentifiedAccessMode(rec.UnidentifiedAccessMode)
	if err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}

	p := &recipient.Profile{
		GivenName:              rec.GivenName,
		FamilyName:             rec.FamilyName,
		About:                  rec.About,
		AboutEmoji:             rec.AboutEmoji,
		AvatarPath:             rec.AvatarPath,
		PaymentAddress:         rec.PaymentAddress,
		UnidentifiedAccessMode: mode,
		Capabilities:           rec.Capabilities,
	}
	if rec.LastUpdateMillis != 0 {
		p.LastUpdate = time.UnixMilli(rec.LastUpdateMillis)
	}
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
