package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, actual %s", e.Type, e.Expected, e.Actual)
}

// evaluateAssertions runs every assertion and returns the failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := h.evaluateAssertion(ctx, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) evaluateAssertion(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertRecipient:
		return h.assertRecipient(ctx, a)
	case AssertContact:
		return h.assertContact(ctx, a)
	case AssertAbsent:
		return h.assertAbsent(ctx, a)
	case AssertCount:
		return h.assertCount(ctx, a)
	case AssertRedirect:
		return h.assertRedirect(a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertRecipient checks the aliased recipient holds exactly the given identifiers.
func (h *Harness) assertRecipient(ctx context.Context, a Assertion) error {
	want, err := a.address()
	if err != nil {
		return err
	}
	id := h.handles[a.Recipient]
	got, err := h.engine.AddressOf(ctx, id)
	if err != nil {
		return &AssertionError{
			Type:     AssertRecipient,
			Expected: fmt.Sprintf("%s (%s) to hold %s", a.Recipient, id, want),
			Actual:   err.Error(),
		}
	}
	if !got.Equal(want) {
		return &AssertionError{
			Type:     AssertRecipient,
			Expected: fmt.Sprintf("%s (%s) to hold %s", a.Recipient, id, want),
			Actual:   got.String(),
		}
	}
	return nil
}

// assertContact checks the listed contact fields (subset match).
func (h *Harness) assertContact(ctx context.Context, a Assertion) error {
	id := h.handles[a.Recipient]
	c, err := h.engine.Contact(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return &AssertionError{
			Type:     AssertContact,
			Expected: fmt.Sprintf("%s (%s) to have a contact", a.Recipient, id),
			Actual:   "no contact",
		}
	}
	actual := contactFields(c)

	var mismatches []string
	for _, k := range sortedKeys(a.Contact) {
		got, ok := actual[k]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("unknown field %s", k))
			continue
		}
		if fmt.Sprint(got) != fmt.Sprint(a.Contact[k]) {
			mismatches = append(mismatches, fmt.Sprintf("%s=%v want %v", k, got, a.Contact[k]))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertContact,
			Expected: fmt.Sprintf("%s (%s) contact %v", a.Recipient, id, a.Contact),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

// assertAbsent checks no recipient holds any of the given identifiers.
func (h *Harness) assertAbsent(ctx context.Context, a Assertion) error {
	addr, err := a.address()
	if err != nil {
		return err
	}
	records, err := h.store.Directory().FindAllOverlapping(ctx, addr)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	holders := make([]string, len(records))
	for i, rec := range records {
		holders[i] = fmt.Sprintf("%d{%s}", rec.ID, rec.Address)
	}
	sort.Strings(holders)
	return &AssertionError{
		Type:     AssertAbsent,
		Expected: fmt.Sprintf("no recipient holding %s", addr),
		Actual:   strings.Join(holders, ", "),
	}
}

func (h *Harness) assertCount(ctx context.Context, a Assertion) error {
	n, err := h.store.Directory().Count(ctx)
	if err != nil {
		return err
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d recipients", *a.Count),
			Actual:   fmt.Sprintf("%d recipients", n),
		}
	}
	return nil
}

// assertRedirect checks two aliases resolve to one recipient.
func (h *Harness) assertRedirect(a Assertion) error {
	from, to := h.handles[a.From], h.handles[a.To]
	if !from.Equal(to) {
		return &AssertionError{
			Type:     AssertRedirect,
			Expected: fmt.Sprintf("%s to resolve to %s (%s)", a.From, a.To, to),
			Actual:   from.String(),
		}
	}
	return nil
}
