package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/recipients/internal/engine"
	"github.com/roach88/recipients/internal/recipient"
)

// RecipientView is the printable form of a recipient.
type RecipientView struct {
	ID             int64              `json:"id"`
	ACI            string             `json:"aci,omitempty"`
	PNI            string             `json:"pni,omitempty"`
	Number         string             `json:"number,omitempty"`
	Username       string             `json:"username,omitempty"`
	Name           string             `json:"name,omitempty"`
	Contact        *recipient.Contact `json:"contact,omitempty"`
	Profile        *recipient.Profile `json:"profile,omitempty"`
	HasProfileKey  bool               `json:"has_profile_key"`
	UnregisteredAt string             `json:"unregistered_at,omitempty"`
}

func newRecipientView(rec *recipient.Record) RecipientView {
	v := RecipientView{
		ID:            rec.ID,
		ACI:           rec.Address.ACI().String(),
		PNI:           rec.Address.PNI().RawString(),
		Number:        rec.Address.Number(),
		Username:      rec.Address.Username(),
		Contact:       rec.Contact,
		Profile:       rec.Profile,
		HasProfileKey: len(rec.ProfileKey) > 0,
	}
	if n := rec.Contact.DisplayName(); n != "" {
		v.Name = n
	} else if n := rec.Profile.DisplayName(); n != "" {
		v.Name = n
	}
	if !rec.UnregisteredAt.IsZero() {
		v.UnregisteredAt = rec.UnregisteredAt.UTC().Format(time.RFC3339)
	}
	return v
}

// String is the one-line text form: id, identifiers, then name.
func (v RecipientView) String() string {
	parts := []string{fmt.Sprintf("%d", v.ID)}
	if v.ACI != "" {
		parts = append(parts, "aci="+v.ACI)
	}
	if v.PNI != "" {
		parts = append(parts, "pni="+v.PNI)
	}
	if v.Number != "" {
		parts = append(parts, "number="+v.Number)
	}
	if v.Username != "" {
		parts = append(parts, "username="+v.Username)
	}
	if v.Name != "" {
		parts = append(parts, fmt.Sprintf("%q", v.Name))
	}
	if v.Contact != nil && v.Contact.Blocked {
		parts = append(parts, "[blocked]")
	}
	if v.UnregisteredAt != "" {
		parts = append(parts, "[unregistered "+v.UnregisteredAt+"]")
	}
	return strings.Join(parts, " ")
}

// DetailView is the multi-line text form used by show.
type DetailView struct {
	RecipientView
}

func (v DetailView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recipient %d\n", v.ID)
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "  %-16s %s\n", name+":", value)
		}
	}
	field("ACI", v.ACI)
	field("PNI", v.PNI)
	field("Number", v.Number)
	field("Username", v.Username)
	if c := v.Contact; c != nil {
		field("Contact name", c.DisplayName())
		field("Color", c.Color)
		if c.MessageExpiration > 0 {
			field("Expiration", c.MessageExpiration.String())
		}
		field("Blocked", fmt.Sprint(c.Blocked))
		field("Profile sharing", fmt.Sprint(c.ProfileSharing))
	}
	if p := v.Profile; p != nil {
		field("Profile name", p.DisplayName())
		field("About", p.About)
		field("Sealed sender", string(p.UnidentifiedAccessMode))
		field("Capabilities", strings.Join(p.Capabilities, ","))
	}
	if v.HasProfileKey {
		field("Profile key", "known")
	} else {
		field("Profile key", "unknown")
	}
	field("Unregistered", v.UnregisteredAt)
	return strings.TrimSuffix(b.String(), "\n")
}

// ListView prints one recipient per line.
type ListView struct {
	Recipients []RecipientView `json:"recipients"`
}

func (v ListView) String() string {
	if len(v.Recipients) == 0 {
		return "No recipients."
	}
	lines := make([]string, len(v.Recipients))
	for i, r := range v.Recipients {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}

// ResolveView reports a resolution.
type ResolveView struct {
	Recipient RecipientView `json:"recipient"`
	Outcome   string        `json:"outcome"`
	Absorbed  []int64       `json:"absorbed,omitempty"`
	Stripped  []int64       `json:"stripped,omitempty"`
}

func newResolveView(res engine.Resolution, rec *recipient.Record) ResolveView {
	return ResolveView{
		Recipient: newRecipientView(rec),
		Outcome:   string(res.Outcome),
		Absorbed:  frozenInts(res.Absorbed),
		Stripped:  frozenInts(res.Stripped),
	}
}

func (v ResolveView) String() string {
	s := fmt.Sprintf("%s: %s", v.Outcome, v.Recipient)
	if len(v.Absorbed) > 0 {
		s += fmt.Sprintf("\n  merged from %v", v.Absorbed)
	}
	if len(v.Stripped) > 0 {
		s += fmt.Sprintf("\n  stripped %v", v.Stripped)
	}
	return s
}

// IDsView lists affected recipient ids with a text caption.
type IDsView struct {
	Caption    string  `json:"-"`
	Recipients []int64 `json:"recipients"`
}

func (v IDsView) String() string {
	return fmt.Sprintf("%s: %d %v", v.Caption, len(v.Recipients), v.Recipients)
}

// ProfileKeyView reports a profile key write.
type ProfileKeyView struct {
	Recipient int64 `json:"recipient"`
	Changed   bool  `json:"changed"`
}

func (v ProfileKeyView) String() string {
	if v.Changed {
		return fmt.Sprintf("profile key stored for %d", v.Recipient)
	}
	return fmt.Sprintf("profile key unchanged for %d", v.Recipient)
}

func frozenInts(ids []engine.FrozenID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = id.Int64()
	}
	return out
}

func handleInts(ids []engine.RecipientID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = id.Value().Int64()
	}
	return out
}
