package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/store"
)

// Fixed identifiers shared by tests across packages.
var (
	ACI1 = address.MustParseACI("5b3a4e8a-1f0e-4d5e-9c3a-0d1b2c3d4e5f")
	ACI2 = address.MustParseACI("8f14e45f-ceea-467e-a9b0-7a2d6c1b0e91")
	ACI3 = address.MustParseACI("e4da3b7f-bbce-4345-9d77-7c3f4d5a6b2c")

	PNI1 = address.MustParsePNI("c4ca4238-a0b9-4382-8dcc-509a6f75849b")
	PNI2 = address.MustParsePNI("c81e728d-9d4c-4f63-a2b3-1e5f8a9d0c77")

	Number1 = "+15551234567"
	Number2 = "+15557654321"
	Number3 = "+447700900123"
)

// OpenStore creates a file-backed store in a temp dir, closed on cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "recipients.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Addr builds an address, failing the test on error.
func Addr(t testing.TB, opts ...address.Option) address.Address {
	t.Helper()
	a, err := address.New(opts...)
	require.NoError(t, err)
	return a
}
