package recipient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recipients/internal/address"
)

func TestUnidentifiedAccessMode_IsKnown(t *testing.T) {
	assert.False(t, UnidentifiedAccessUnknown.IsKnown())
	assert.False(t, UnidentifiedAccessDisabled.IsKnown())
	assert.True(t, UnidentifiedAccessEnabled.IsKnown())
	assert.True(t, UnidentifiedAccessUnrestricted.IsKnown())
}

func TestParseUnidentifiedAccessMode(t *testing.T) {
	m, err := ParseUnidentifiedAccessMode("enabled")
	require.NoError(t, err)
	assert.Equal(t, UnidentifiedAccessEnabled, m)

	m, err = ParseUnidentifiedAccessMode("")
	require.NoError(t, err)
	assert.Equal(t, UnidentifiedAccessUnknown, m)

	_, err = ParseUnidentifiedAccessMode("sometimes")
	require.Error(t, err)
}

func TestProfile_Normalize(t *testing.T) {
	p := &Profile{Capabilities: []string{"storage", "gv2", "storage"}}
	p.Normalize()
	assert.Equal(t, []string{"gv2", "storage"}, p.Capabilities)
	assert.Equal(t, UnidentifiedAccessUnknown, p.UnidentifiedAccessMode)
	assert.True(t, p.HasCapability("gv2"))
}

func TestParseProfileKey(t *testing.T) {
	_, err := ParseProfileKey(make([]byte, 16))
	require.Error(t, err)

	raw := make([]byte, ProfileKeyLength)
	raw[0] = 7
	k, err := ParseProfileKey(raw)
	require.NoError(t, err)
	raw[0] = 9
	assert.Equal(t, byte(7), k[0], "key must not alias the input")
}

func TestRecord_DisplayName(t *testing.T) {
	addr := address.MustNew(address.WithNumber("+15551234567"))

	r := &Record{Address: addr}
	assert.Equal(t, "+15551234567", r.DisplayName())

	r.Profile = &Profile{GivenName: "Frank"}
	assert.Equal(t, "Frank", r.DisplayName())

	r.Contact = &Contact{GivenName: "Frankie", FamilyName: "Doe"}
	assert.Equal(t, "Frankie Doe", r.DisplayName())
}
