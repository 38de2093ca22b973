package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"int64", int64(-100), "-100"},
		{"bool", true, "true"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"string slice", []string{"a", "b"}, `["a","b"]`},
		{"int64 slice", []int64{3, 1}, "[3,1]"},
		{"html not escaped", "<a&b>", `"<a&b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"b": 1, "a": 2},
		"beta":  []any{"x"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"beta":["x"],"zebra":1}`, string(out))
}

func TestMarshalCanonicalUTF16Order(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...) which sorts before U+FB01.
	out, err := MarshalCanonical(map[string]any{"ﬁ": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"ﬁ\":1}", string(out))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	out, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(out))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	for name, v := range map[string]any{
		"nil":    nil,
		"float":  1.5,
		"nested": map[string]any{"a": []any{nil}},
		"struct": struct{}{},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := MarshalCanonical(v)
			assert.Error(t, err)
		})
	}
}
