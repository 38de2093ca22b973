// Package harness runs recipient directory scenarios against a real engine.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: number_then_aci
//	description: "A number-only recipient is upgraded when its ACI arrives"
//	self:
//	  aci: 00000000-0000-4000-8000-000000000099
//	setup:
//	  - number: "+15551234567"
//	    as: bob
//	flow:
//	  - resolve:
//	      aci: 00000000-0000-4000-8000-000000000001
//	      number: "+15551234567"
//	      as: bob_aci
//	    expect:
//	      handle: bob
//	      outcome: updated
//	assertions:
//	  - type: recipient
//	    recipient: bob
//	    aci: 00000000-0000-4000-8000-000000000001
//	    number: "+15551234567"
//	  - type: count
//	    count: 1
//
// Flow steps carry exactly one of resolve, store_contact, store_profile,
// store_profile_key or concurrent. Resolves default to high trust.
//
// # Assertion Types
//
//   - recipient: the aliased recipient holds exactly the listed identifiers
//   - contact: the aliased recipient's contact has the listed fields
//   - absent: no recipient holds any of the listed identifiers
//   - count: the number of live recipients
//   - redirect: two aliases name the same recipient
//
// # Deterministic Testing
//
// Every scenario runs in a fresh in-memory SQLite database with
// testutil.DeterministicClock and sequential merge ids, so a scenario's
// snapshot (trace, merges, final directory, redirects) is byte-stable and
// can be compared against a golden file in canonical JSON.
package harness
