package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/recipients/internal/address"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var (
	testACI1 = address.MustParseACI("5b3a4e8a-1f0e-4d5e-9c3a-0d1b2c3d4e5f")
	testACI2 = address.MustParseACI("8f14e45f-ceea-467e-a9b0-7a2d6c1b0e91")
	testPNI1 = address.MustParsePNI("c4ca4238-a0b9-4382-8dcc-509a6f75849b")

	testNumber1 = "+15551234567"
	testNumber2 = "+15557654321"
)
