// Package engine resolves identifier claims to stable recipient handles.
//
// The engine is the only writer of recipient identifiers. Every claim goes
// through Resolve, which looks up all recipients overlapping the claim,
// decides an outcome and applies it in one transaction:
//
//   - create: no recipient knows any of the identifiers
//   - update: one recipient is extended with the claimed identifiers
//   - strip: weak identifiers (number, PNI) move from a stale recipient to
//     the claimant
//   - merge: recipients split across the claim's identifiers are folded into
//     one survivor, which inherits their contact, profile and keys
//
// CONCURRENCY:
//
// One mutex serializes lookup, decision and transaction. Reads of contact and
// profile data do not take the lock. After a merge commits the engine records
// loser -> survivor in the RedirectCache, notifies the MergeListener and only
// then deletes the loser rows, outside the lock. The rows are already
// invisible to lookups because their identifiers were cleared in the
// transaction.
//
// HANDLES:
//
// RecipientID is the live handle handed to callers; it follows redirects on
// every dereference. FrozenID is the raw row id used while a merge is being
// computed and in merge notifications.
//
// TRUST:
//
// High trust claims come from server-verified sources and may bind numbers
// to account identities, steal reassigned numbers and merge recipients.
// Low trust claims (unauthenticated envelope fields) never bind a number to
// an ACI or PNI and never merge.
package engine
