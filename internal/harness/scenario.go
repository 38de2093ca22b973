package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario drives the engine through a sequence of claims and checks the
// resulting directory.
type Scenario struct {
	// Name uniquely identifies this scenario; it also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Self is the local user's address, if the scenario needs one.
	Self *Identifiers `yaml:"self,omitempty"`

	// Setup resolves establish initial state and are assumed to succeed.
	Setup []ResolveStep `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final directory.
	Assertions []Assertion `yaml:"assertions"`
}

// Identifiers names an address by its string identifiers; empty means absent.
type Identifiers struct {
	ACI      string `yaml:"aci,omitempty"`
	PNI      string `yaml:"pni,omitempty"`
	Number   string `yaml:"number,omitempty"`
	Username string `yaml:"username,omitempty"`
}

// IsEmpty reports whether no identifier is set.
func (i Identifiers) IsEmpty() bool {
	return i.ACI == "" && i.PNI == "" && i.Number == "" && i.Username == ""
}

// ResolveStep is one claim handed to the engine.
type ResolveStep struct {
	Identifiers `yaml:",inline"`

	// As binds the resulting handle to an alias for later steps.
	As string `yaml:"as,omitempty"`

	// Trust is "high" (default) or "low".
	Trust string `yaml:"trust,omitempty"`

	// Self marks the claim as the local user's own address.
	Self bool `yaml:"self,omitempty"`
}

// ContactStep stores contact metadata on an aliased recipient.
type ContactStep struct {
	Recipient         string `yaml:"recipient"`
	GivenName         string `yaml:"given_name,omitempty"`
	FamilyName        string `yaml:"family_name,omitempty"`
	Color             string `yaml:"color,omitempty"`
	ExpirationSeconds int64  `yaml:"expiration_seconds,omitempty"`
	Blocked           bool   `yaml:"blocked,omitempty"`
	ProfileSharing    bool   `yaml:"profile_sharing,omitempty"`
}

// ProfileStep stores a profile on an aliased recipient.
type ProfileStep struct {
	Recipient          string   `yaml:"recipient"`
	GivenName          string   `yaml:"given_name,omitempty"`
	FamilyName         string   `yaml:"family_name,omitempty"`
	About              string   `yaml:"about,omitempty"`
	UnidentifiedAccess string   `yaml:"unidentified_access,omitempty"`
	Capabilities       []string `yaml:"capabilities,omitempty"`
}

// ProfileKeyStep stores a base64 profile key on an aliased recipient.
type ProfileKeyStep struct {
	Recipient string `yaml:"recipient"`
	Key       string `yaml:"key"`
	Full      bool   `yaml:"full,omitempty"`
}

// ConcurrentStep runs its resolves in parallel.
type ConcurrentStep struct {
	// As binds the first resolve's handle to an alias.
	As       string        `yaml:"as,omitempty"`
	Resolves []ResolveStep `yaml:"resolves"`
}

// FlowStep is exactly one operation plus an optional expectation.
type FlowStep struct {
	Resolve         *ResolveStep    `yaml:"resolve,omitempty"`
	StoreContact    *ContactStep    `yaml:"store_contact,omitempty"`
	StoreProfile    *ProfileStep    `yaml:"store_profile,omitempty"`
	StoreProfileKey *ProfileKeyStep `yaml:"store_profile_key,omitempty"`
	Concurrent      *ConcurrentStep `yaml:"concurrent,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Kind names the operation a step performs.
func (f FlowStep) Kind() string {
	switch {
	case f.Resolve != nil:
		return StepResolve
	case f.StoreContact != nil:
		return StepStoreContact
	case f.StoreProfile != nil:
		return StepStoreProfile
	case f.StoreProfileKey != nil:
		return StepStoreProfileKey
	case f.Concurrent != nil:
		return StepConcurrent
	default:
		return ""
	}
}

func (f FlowStep) operationCount() int {
	n := 0
	for _, set := range []bool{
		f.Resolve != nil,
		f.StoreContact != nil,
		f.StoreProfile != nil,
		f.StoreProfileKey != nil,
		f.Concurrent != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Step kinds.
const (
	StepResolve         = "resolve"
	StepStoreContact    = "store_contact"
	StepStoreProfile    = "store_profile"
	StepStoreProfileKey = "store_profile_key"
	StepConcurrent      = "concurrent"
)

// Expect validates a flow step's result.
type Expect struct {
	// Handle is an alias the result must refer to.
	Handle string `yaml:"handle,omitempty"`

	// Outcome is the expected resolution outcome (created, merged, ...).
	Outcome string `yaml:"outcome,omitempty"`

	// MergedFrom are aliases whose recipients must have been absorbed.
	MergedFrom []string `yaml:"merged_from,omitempty"`

	// Stripped are aliases whose recipients must have lost identifiers.
	Stripped []string `yaml:"stripped,omitempty"`

	// Same requires every resolve of a concurrent step to yield one recipient.
	Same bool `yaml:"same,omitempty"`

	// Changed is the expected store_profile_key result.
	Changed *bool `yaml:"changed,omitempty"`

	// Error is a substring the step's error must contain.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates final directory state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Recipient is the alias under test (recipient, contact).
	Recipient string `yaml:"recipient,omitempty"`

	// Identifiers are the exact expected identifiers (recipient) or the
	// identifiers no recipient may hold (absent).
	Identifiers `yaml:",inline"`

	// Contact lists expected contact fields (contact), subset match.
	Contact map[string]any `yaml:"contact,omitempty"`

	// Count is the expected number of live recipients (count).
	Count *int `yaml:"count,omitempty"`

	// From and To are aliases that must resolve to the same recipient (redirect).
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`
}

// Assertion types.
const (
	AssertRecipient = "recipient"
	AssertContact   = "contact"
	AssertAbsent    = "absent"
	AssertCount     = "count"
	AssertRedirect  = "redirect"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and alias references.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Self != nil && s.Self.IsEmpty() {
		return fmt.Errorf("self must name at least one identifier")
	}

	aliases := make(map[string]bool)
	bind := func(alias string) {
		if alias != "" {
			aliases[alias] = true
		}
	}
	known := func(where, alias string) error {
		if !aliases[alias] {
			return fmt.Errorf("%s: unknown alias %q", where, alias)
		}
		return nil
	}

	for i, step := range s.Setup {
		if err := validateResolve(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
		bind(step.As)
	}

	for i, step := range s.Flow {
		where := fmt.Sprintf("flow[%d]", i)
		if n := step.operationCount(); n != 1 {
			return fmt.Errorf("%s: exactly one operation is required, got %d", where, n)
		}
		switch step.Kind() {
		case StepResolve:
			if err := validateResolve(where, *step.Resolve); err != nil {
				return err
			}
		case StepStoreContact:
			if err := known(where, step.StoreContact.Recipient); err != nil {
				return err
			}
		case StepStoreProfile:
			if err := known(where, step.StoreProfile.Recipient); err != nil {
				return err
			}
		case StepStoreProfileKey:
			if err := known(where, step.StoreProfileKey.Recipient); err != nil {
				return err
			}
			if step.StoreProfileKey.Key == "" {
				return fmt.Errorf("%s: key is required", where)
			}
		case StepConcurrent:
			if len(step.Concurrent.Resolves) < 2 {
				return fmt.Errorf("%s: concurrent needs at least two resolves", where)
			}
			for j, r := range step.Concurrent.Resolves {
				if err := validateResolve(fmt.Sprintf("%s.resolves[%d]", where, j), r); err != nil {
					return err
				}
			}
		}

		if e := step.Expect; e != nil {
			if e.Handle != "" {
				if err := known(where+".expect.handle", e.Handle); err != nil {
					return err
				}
			}
			for _, alias := range append(append([]string{}, e.MergedFrom...), e.Stripped...) {
				if err := known(where+".expect", alias); err != nil {
					return err
				}
			}
		}

		switch {
		case step.Resolve != nil:
			bind(step.Resolve.As)
		case step.Concurrent != nil:
			bind(step.Concurrent.As)
			for _, r := range step.Concurrent.Resolves {
				bind(r.As)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, known); err != nil {
			return err
		}
	}
	return nil
}

func validateResolve(where string, step ResolveStep) error {
	if step.IsEmpty() {
		return fmt.Errorf("%s: at least one identifier is required", where)
	}
	switch step.Trust {
	case "", "high", "low":
	default:
		return fmt.Errorf("%s: trust must be high or low, got %q", where, step.Trust)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, known func(string, string) error) error {
	where := fmt.Sprintf("assertions[%d]", index)
	switch a.Type {
	case "":
		return fmt.Errorf("%s: type is required", where)
	case AssertRecipient:
		if err := known(where, a.Recipient); err != nil {
			return err
		}
		if a.IsEmpty() {
			return fmt.Errorf("%s: identifiers are required for recipient", where)
		}
	case AssertContact:
		if err := known(where, a.Recipient); err != nil {
			return err
		}
		if len(a.Contact) == 0 {
			return fmt.Errorf("%s: contact is required for contact", where)
		}
	case AssertAbsent:
		if a.IsEmpty() {
			return fmt.Errorf("%s: identifiers are required for absent", where)
		}
	case AssertCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("%s: non-negative count is required for count", where)
		}
	case AssertRedirect:
		if err := known(where, a.From); err != nil {
			return err
		}
		if err := known(where, a.To); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s: unknown assertion type %q", where, a.Type)
	}
	return nil
}
