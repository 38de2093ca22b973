package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runYAML(t *testing.T, src string) *Result {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	return result
}

func TestRun_TestdataScenariosPass(t *testing.T) {
	files, err := DiscoverScenarios([]string{filepath.Join("testdata", "scenarios")}, "")
	require.NoError(t, err)

	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			s, err := LoadScenario(f)
			require.NoError(t, err)
			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_TraceRecordsEveryCall(t *testing.T) {
	result := runYAML(t, validScenario)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, TraceEvent{Seq: 1, Step: "setup", Alias: "bob", Recipient: 1, Outcome: "created"}, result.Trace[0])
	assert.Equal(t, TraceEvent{Seq: 2, Step: StepResolve, Alias: "bob_aci", Recipient: 1, Outcome: "updated"}, result.Trace[1])
	assert.Equal(t, TraceEvent{Seq: 3, Step: StepStoreContact, Alias: "bob", Recipient: 1}, result.Trace[2])

	require.Len(t, result.Recipients, 1)
	rec := result.Recipients[0]
	assert.Equal(t, int64(1), rec["id"])
	assert.Equal(t, "+15551234567", rec["number"])
	assert.Equal(t, map[string]any{"given_name": "Bob", "blocked": true}, rec["contact"])
	assert.Empty(t, result.Merges)
	assert.Empty(t, result.Redirects)
}

func TestRun_ExpectationMismatchFails(t *testing.T) {
	result := runYAML(t, `
name: wrong_outcome
description: "Expectations that do not hold are reported"
setup:
  - number: "+15551234567"
    as: bob
flow:
  - resolve:
      number: "+15551234567"
    expect:
      outcome: created
assertions:
  - type: count
    count: 1
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected outcome created, got existing")
}

func TestRun_ExpectedError(t *testing.T) {
	result := runYAML(t, `
name: bad_number
description: "Invalid identifiers fail the step"
flow:
  - resolve:
      number: "555-not-a-number"
    expect:
      error: invalid E164 number
assertions:
  - type: count
    count: 0
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Contains(t, result.Trace[0].Error, "invalid E164 number")
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	result := runYAML(t, `
name: bad_number
description: "Invalid identifiers fail the step"
flow:
  - resolve:
      number: "555-not-a-number"
assertions:
  - type: count
    count: 0
`)
	assert.False(t, result.Pass)
	assert.Contains(t, strings.Join(result.Errors, "\n"), "unexpected error")
}

func TestRun_MissingExpectedErrorFails(t *testing.T) {
	result := runYAML(t, `
name: no_error
description: "A step expected to fail that succeeds"
flow:
  - resolve:
      number: "+15551234567"
    expect:
      error: uniqueness
assertions:
  - type: count
    count: 1
`)
	assert.False(t, result.Pass)
	assert.Contains(t, strings.Join(result.Errors, "\n"), "got success")
}

func TestRun_SelfClaimIsDowngraded(t *testing.T) {
	result := runYAML(t, `
name: self_downgrade
description: "A high trust claim on the local address is treated as low trust"
self:
  aci: 00000000-0000-4000-8000-000000000009
  number: "+15559999999"
flow:
  - resolve:
      aci: 00000000-0000-4000-8000-000000000009
      number: "+15559999999"
      as: me
assertions:
  - type: recipient
    recipient: me
    aci: 00000000-0000-4000-8000-000000000009
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SelfVouchedClaimBindsNumber(t *testing.T) {
	result := runYAML(t, `
name: self_vouched
description: "The local user's own claim keeps its number"
self:
  aci: 00000000-0000-4000-8000-000000000009
  number: "+15559999999"
flow:
  - resolve:
      aci: 00000000-0000-4000-8000-000000000009
      number: "+15559999999"
      self: true
      as: me
assertions:
  - type: recipient
    recipient: me
    aci: 00000000-0000-4000-8000-000000000009
    number: "+15559999999"
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_MergeNotificationsCaptured(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "merge_number_into_aci.yaml"))
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	require.Len(t, result.Merges, 1)
	assert.Equal(t, MergeEvent{ID: "merge-1", Surviving: 2, Absorbed: []int64{1}}, result.Merges[0])
	assert.Equal(t, map[string]any{"1": int64(2)}, result.Redirects)
}

func TestRun_ConcurrentTraceOmitsOutcome(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "concurrent_first_contact.yaml"))
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	for _, ev := range result.Trace[:3] {
		assert.Equal(t, StepConcurrent, ev.Step)
		assert.Empty(t, ev.Outcome)
		assert.Equal(t, int64(1), ev.Recipient)
	}
	require.Len(t, result.Recipients, 1)
	assert.Equal(t, true, result.Recipients[0]["has_profile_key"])
}
