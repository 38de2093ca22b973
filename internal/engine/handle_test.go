package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedirectCache_Transitive(t *testing.T) {
	c := NewRedirectCache()
	c.Record(1, 2)
	c.Record(2, 3)

	assert.Equal(t, FrozenID(3), c.Resolve(1))
	assert.Equal(t, FrozenID(3), c.Resolve(2))
	assert.Equal(t, FrozenID(3), c.Resolve(3))
	assert.Equal(t, FrozenID(7), c.Resolve(7))
	assert.Equal(t, 2, c.Len())
}

func TestRedirectCache_IgnoresSelfRedirect(t *testing.T) {
	c := NewRedirectCache()
	c.Record(4, 4)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, FrozenID(4), c.Resolve(4))
}

func TestRecipientID_FollowsLaterMerges(t *testing.T) {
	c := NewRedirectCache()
	h := RecipientID{id: 1, redirects: c}
	frozen := h.Frozen()

	c.Record(1, 5)

	assert.Equal(t, FrozenID(5), h.Value(), "live handle follows the redirect")
	assert.Equal(t, FrozenID(1), frozen, "frozen snapshot does not")
	assert.True(t, h.Equal(RecipientID{id: 5, redirects: c}))
	assert.Equal(t, "5", h.String())
}

func TestRecipientID_FrozenResolvesRedirects(t *testing.T) {
	c := NewRedirectCache()
	h := RecipientID{id: 1, redirects: c}
	before := h.Frozen()

	c.Record(1, 3)

	assert.Equal(t, FrozenID(1), before)
	assert.Equal(t, FrozenID(3), h.Frozen(), "taken after the merge, the snapshot is the survivor")
}

func TestTrust_Valid(t *testing.T) {
	assert.True(t, TrustHigh.Valid())
	assert.True(t, TrustLow.Valid())
	assert.False(t, Trust(7).Valid())
	assert.Equal(t, "Trust(7)", Trust(7).String())
}

func TestRecipientID_Zero(t *testing.T) {
	var h RecipientID
	assert.True(t, h.IsZero())
	assert.Equal(t, FrozenID(0), h.Value())
}

func TestParseFrozenID(t *testing.T) {
	id, err := ParseFrozenID("42")
	require.NoError(t, err)
	assert.Equal(t, FrozenID(42), id)

	for _, bad := range []string{"", "0", "-1", "abc"} {
		_, err := ParseFrozenID(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTrust(t *testing.T) {
	tr, err := ParseTrust("high")
	require.NoError(t, err)
	assert.Equal(t, TrustHigh, tr)

	tr, err = ParseTrust("low")
	require.NoError(t, err)
	assert.Equal(t, TrustLow, tr)

	_, err = ParseTrust("medium")
	assert.Error(t, err)
}
