package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+15551234567", "+15551234567"},
		{" +1 555 123 4567 ", "+15551234567"},
		{"+1 (555) 123-4567", "+15551234567"},
		{"+49.30.1234567", "+49301234567"},
		{"＋１５５５１２３４５６７", "+15551234567"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNumber(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNumber_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"15551234567",
		"+0551234567",
		"+1555",
		"+1234567890123456",
		"+1555abc4567",
		"1+5551234567",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseNumber(in)
			require.ErrorIs(t, err, ErrInvalidNumber)
		})
	}
}

func TestNormalizeUsername(t *testing.T) {
	got, err := NormalizeUsername("  Alice_B.042 ")
	require.NoError(t, err)
	assert.Equal(t, "alice_b.042", got)

	for _, in := range []string{"ab.12", "alice", "alice.1", "9lives.12", "al ice.12"} {
		_, err := NormalizeUsername(in)
		assert.ErrorIs(t, err, ErrInvalidUsername, in)
	}
}

func TestPNIString(t *testing.T) {
	assert.Equal(t, "PNI:c4ca4238-a0b9-4382-8dcc-509a6f75849b", pni1.String())
	assert.Equal(t, "c4ca4238-a0b9-4382-8dcc-509a6f75849b", pni1.RawString())
	assert.Equal(t, "", PNI{}.String())
	assert.Equal(t, "", ACI{}.String())
}
