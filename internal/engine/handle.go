package engine

import (
	"strconv"
)

// FrozenID is a recipient row id fixed at one point in time.
// It never follows redirects.
type FrozenID int64

// Int64 returns the row id.
func (f FrozenID) Int64() int64 { return int64(f) }

func (f FrozenID) String() string { return strconv.FormatInt(int64(f), 10) }

// RecipientID is a live recipient handle.
//
// Value resolves through the engine's RedirectCache on every call, so a
// handle obtained before a merge keeps naming the surviving recipient.
// The zero RecipientID names no recipient.
type RecipientID struct {
	id        FrozenID
	redirects *RedirectCache
}

// Value returns the current row id behind the handle.
func (r RecipientID) Value() FrozenID {
	if r.redirects == nil {
		return r.id
	}
	return r.redirects.Resolve(r.id)
}

// Frozen resolves redirects first and snapshots the row id the handle names
// now. It is not the id the handle was created with: call it before a merge
// to keep a recipient's pre-merge id. Equivalent to Value.
func (r RecipientID) Frozen() FrozenID { return r.Value() }

// IsZero reports whether the handle names no recipient.
func (r RecipientID) IsZero() bool { return r.id == 0 }

// Equal reports whether both handles currently name the same recipient.
func (r RecipientID) Equal(o RecipientID) bool { return r.Value() == o.Value() }

func (r RecipientID) String() string { return r.Value().String() }

// ParseFrozenID parses a decimal row id, e.g. from the command line.
func ParseFrozenID(s string) (FrozenID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, &InvariantError{Code: ErrCodeInvalidHandle, Message: "invalid recipient id " + strconv.Quote(s)}
	}
	return FrozenID(n), nil
}
