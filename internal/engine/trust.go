package engine

import "fmt"

// Trust says how far a claim may be believed.
type Trust int

const (
	// TrustLow is for unauthenticated sources such as envelope sender fields.
	TrustLow Trust = iota
	// TrustHigh is for server-verified sources such as directory lookups
	// and contact sync.
	TrustHigh
)

// Valid reports whether t is TrustHigh or TrustLow.
func (t Trust) Valid() bool { return t == TrustHigh || t == TrustLow }

func (t Trust) String() string {
	switch t {
	case TrustHigh:
		return "high"
	case TrustLow:
		return "low"
	default:
		return fmt.Sprintf("Trust(%d)", int(t))
	}
}

// ParseTrust accepts "high" and "low".
func ParseTrust(s string) (Trust, error) {
	switch s {
	case "high":
		return TrustHigh, nil
	case "low":
		return TrustLow, nil
	default:
		return TrustLow, fmt.Errorf("invalid trust %q: must be high or low", s)
	}
}

// Outcome describes what a resolution did to the directory.
type Outcome string

const (
	// OutcomeExisting means a recipient already carried every claimed identifier.
	OutcomeExisting Outcome = "existing"
	// OutcomeCreated means a new recipient was inserted.
	OutcomeCreated Outcome = "created"
	// OutcomeUpdated means one recipient's identifiers were rewritten.
	OutcomeUpdated Outcome = "updated"
	// OutcomeStripped means weak identifiers were taken from another recipient.
	OutcomeStripped Outcome = "stripped"
	// OutcomeMerged means at least one recipient was absorbed.
	OutcomeMerged Outcome = "merged"
)
