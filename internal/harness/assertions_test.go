package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoRecipients = `
name: two
description: "Two unrelated recipients"
setup:
  - aci: 00000000-0000-4000-8000-000000000001
    number: "+15551234567"
    as: alice
  - number: "+15557654321"
    as: bob
flow:
  - store_contact:
      recipient: bob
      given_name: Bob
      expiration_seconds: 3600
assertions:
`

func TestAssertions_Pass(t *testing.T) {
	result := runYAML(t, twoRecipients+`
  - type: recipient
    recipient: alice
    aci: 00000000-0000-4000-8000-000000000001
    number: "+15551234567"
  - type: contact
    recipient: bob
    contact:
      given_name: Bob
      expiration_seconds: 3600
      blocked: false
  - type: absent
    number: "+447700900123"
  - type: count
    count: 2
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion string
		want      string
	}{
		{
			name: "recipient identifiers differ",
			assertion: `
  - type: recipient
    recipient: alice
    aci: 00000000-0000-4000-8000-000000000001`,
			want: "assertion failed: recipient",
		},
		{
			name: "contact field differs",
			assertion: `
  - type: contact
    recipient: bob
    contact:
      given_name: Robert`,
			want: "given_name=Bob want Robert",
		},
		{
			name: "contact unknown field",
			assertion: `
  - type: contact
    recipient: bob
    contact:
      nickname: B`,
			want: "unknown field nickname",
		},
		{
			name: "contact missing",
			assertion: `
  - type: contact
    recipient: alice
    contact:
      given_name: Alice`,
			want: "no contact",
		},
		{
			name: "identifier present",
			assertion: `
  - type: absent
    number: "+15557654321"`,
			want: "assertion failed: absent",
		},
		{
			name: "count differs",
			assertion: `
  - type: count
    count: 3`,
			want: "expected 3 recipients, actual 2 recipients",
		},
		{
			name: "redirect missing",
			assertion: `
  - type: redirect
    from: bob
    to: alice`,
			want: "assertion failed: redirect",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := runYAML(t, twoRecipients+tt.assertion+"\n")
			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.want)
		})
	}
}

func TestAssertionError_Message(t *testing.T) {
	err := &AssertionError{Type: AssertCount, Expected: "1 recipients", Actual: "2 recipients"}
	assert.Equal(t, "assertion failed: count: expected 1 recipients, actual 2 recipients", err.Error())
}
