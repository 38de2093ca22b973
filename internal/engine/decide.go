package engine

import (
	"context"
	"errors"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/recipient"
	"github.com/roach88/recipients/internal/store"
)

// decision is what one resolution wrote, in frozen ids.
type decision struct {
	survivor FrozenID
	outcome  Outcome
	absorbed []FrozenID
	stripped []FrozenID
}

func existing(rec recipient.Record) decision {
	return decision{survivor: FrozenID(rec.ID), outcome: OutcomeExisting}
}

// decide looks up every recipient overlapping addr and applies the outcome.
// dir must be bound to the resolution's transaction.
func decide(ctx context.Context, dir *store.Directory, addr address.Address, trust Trust) (decision, error) {
	overlaps, err := dir.FindAllOverlapping(ctx, addr)
	if err != nil {
		return decision{}, err
	}

	switch {
	case len(overlaps) == 0:
		return create(ctx, dir, addr, trust)
	case trust == TrustLow && len(overlaps) == 1:
		return resolveOneLow(ctx, dir, addr, overlaps[0])
	case trust == TrustLow:
		return resolveManyLow(ctx, dir, addr, overlaps)
	case len(overlaps) == 1:
		return resolveOneHigh(ctx, dir, addr, overlaps[0])
	default:
		return resolveManyHigh(ctx, dir, addr, overlaps)
	}
}

// create inserts a recipient for a claim nobody knows.
// Low trust claims lose their number when they carry an ACI or PNI.
func create(ctx context.Context, dir *store.Directory, addr address.Address, trust Trust) (decision, error) {
	if trust == TrustLow {
		addr = addr.StrongOnly()
	}
	id, err := dir.Create(ctx, addr)
	if err != nil {
		return decision{}, err
	}
	return decision{survivor: FrozenID(id), outcome: OutcomeCreated}, nil
}

func aciConflict(a, b address.Address) bool {
	return a.HasACI() && b.HasACI() && a.ACI() != b.ACI()
}

func sharesStrong(a, b address.Address) bool {
	return (a.HasACI() && a.ACI() == b.ACI()) || (a.HasPNI() && a.PNI() == b.PNI())
}

// resolveOneLow handles a low trust claim overlapping one recipient.
//
// The stored recipient is only extended with identifiers that do not bind a
// number to an ACI or PNI. A claim whose identity is not the stored one gets
// its own number-less recipient.
func resolveOneLow(ctx context.Context, dir *store.Directory, addr address.Address, rec recipient.Record) (decision, error) {
	stored := rec.Address
	if stored.Contains(addr) {
		return existing(rec), nil
	}

	if aciConflict(stored, addr) || (addr.HasStrongIdentifier() && !sharesStrong(addr, stored)) {
		fresh, err := addr.StrongOnly().Without(stored)
		if err != nil {
			return existing(rec), nil
		}
		id, err := dir.Create(ctx, fresh)
		if err != nil {
			return decision{}, err
		}
		return decision{survivor: FrozenID(id), outcome: OutcomeCreated}, nil
	}

	updated := stored.WithUsernameFrom(addr)
	if strong, err := addr.WithoutNumber(); err == nil {
		updated = stored.WithIdentifiersFrom(strong)
	}
	if updated.Equal(stored) {
		return existing(rec), nil
	}
	if err := dir.OverwriteIdentifiers(ctx, rec.ID, updated); err != nil {
		return decision{}, err
	}
	return decision{survivor: FrozenID(rec.ID), outcome: OutcomeUpdated}, nil
}

// resolveManyLow picks among several overlapping recipients without writing
// to any of them: the ACI match, then a non-conflicting PNI match. A claim
// carrying an identity none of them holds gets its own number-less recipient.
func resolveManyLow(ctx context.Context, dir *store.Directory, addr address.Address, overlaps []recipient.Record) (decision, error) {
	if addr.HasACI() {
		for _, rec := range overlaps {
			if rec.Address.ACI() == addr.ACI() {
				return existing(rec), nil
			}
		}
	}
	if addr.HasPNI() {
		for _, rec := range overlaps {
			if rec.Address.PNI() == addr.PNI() && !aciConflict(rec.Address, addr) {
				return existing(rec), nil
			}
		}
	}

	if addr.HasStrongIdentifier() {
		fresh := addr.StrongOnly()
		var err error
		for _, rec := range overlaps {
			if fresh, err = fresh.Without(rec.Address); err != nil {
				break
			}
		}
		if err == nil {
			id, err := dir.Create(ctx, fresh)
			if err != nil {
				return decision{}, err
			}
			return decision{survivor: FrozenID(id), outcome: OutcomeCreated}, nil
		}
	}

	for _, rec := range overlaps {
		if addr.HasNumber() && rec.Address.Number() == addr.Number() {
			return existing(rec), nil
		}
	}
	return existing(overlaps[0]), nil
}

// resolveOneHigh handles a high trust claim overlapping one recipient.
//
// A recipient holding a different ACI loses the claimed number and PNI to a
// new recipient. Otherwise the claim is written over the stored identifiers.
func resolveOneHigh(ctx context.Context, dir *store.Directory, addr address.Address, rec recipient.Record) (decision, error) {
	stored := rec.Address
	if stored.Contains(addr) {
		return existing(rec), nil
	}

	if aciConflict(stored, addr) {
		stripped, err := stored.Without(addr)
		if err != nil {
			return decision{}, err
		}
		if err := dir.OverwriteIdentifiers(ctx, rec.ID, stripped); err != nil {
			return decision{}, err
		}
		id, err := dir.Create(ctx, addr)
		if err != nil {
			return decision{}, err
		}
		return decision{
			survivor: FrozenID(id),
			outcome:  OutcomeStripped,
			stripped: []FrozenID{FrozenID(rec.ID)},
		}, nil
	}

	if err := dir.OverwriteIdentifiers(ctx, rec.ID, addr.WithIdentifiersFrom(stored)); err != nil {
		return decision{}, err
	}
	return decision{survivor: FrozenID(rec.ID), outcome: OutcomeUpdated}, nil
}

// findAnchor returns the index of the recipient that survives a merge:
// the ACI match, else a PNI match whose ACI does not conflict. -1 if none.
func findAnchor(addr address.Address, overlaps []recipient.Record) int {
	if addr.HasACI() {
		for i, rec := range overlaps {
			if rec.Address.ACI() == addr.ACI() {
				return i
			}
		}
	}
	if addr.HasPNI() {
		for i, rec := range overlaps {
			if rec.Address.PNI() == addr.PNI() && !aciConflict(rec.Address, addr) {
				return i
			}
		}
	}
	return -1
}

// mergeable reports whether rec can be folded into the claim's recipient
// without losing an identity.
//
// A PNI+number pair is always mergeable: the server links them. A recipient
// with identifiers beyond the claim never is. A number-only recipient is
// merged only when the claim links that number to a PNI; otherwise the
// number was reassigned and the old recipient is kept, stripped.
func mergeable(rec, addr address.Address) bool {
	if rec.HasOnlyPNIAndNumber() {
		return true
	}
	if rec.HasAdditionalIdentifiersThan(addr) {
		return false
	}
	if !rec.HasStrongIdentifier() {
		return addr.HasPNI()
	}
	return true
}

// resolveManyHigh handles a high trust claim whose identifiers are split
// across several recipients.
//
// Write order inside the transaction:
//  1. strip the claimed weak identifiers from recipients that keep their own identity
//  2. clear the identifiers of recipients being absorbed
//  3. write the final address to the anchor, or create the survivor
//  4. copy contact, profile and keys into the survivor, first non-nil wins
func resolveManyHigh(ctx context.Context, dir *store.Directory, addr address.Address, overlaps []recipient.Record) (decision, error) {
	anchorIdx := findAnchor(addr, overlaps)

	var (
		losers []recipient.Record
		d      decision
	)
	for i, rec := range overlaps {
		if i == anchorIdx {
			continue
		}
		if mergeable(rec.Address, addr) {
			losers = append(losers, rec)
			continue
		}
		if err := strip(ctx, dir, rec, addr); err != nil {
			return decision{}, err
		}
		d.stripped = append(d.stripped, FrozenID(rec.ID))
	}

	for _, rec := range losers {
		if err := dir.ClearIdentifiers(ctx, rec.ID); err != nil {
			return decision{}, err
		}
		d.absorbed = append(d.absorbed, FrozenID(rec.ID))
	}

	var known address.Address
	survivor := recipient.Record{}
	if anchorIdx >= 0 {
		survivor = overlaps[anchorIdx]
		known = survivor.Address
	}
	for _, rec := range losers {
		known = known.WithIdentifiersFrom(rec.Address)
	}
	final := addr.WithIdentifiersFrom(known)

	if anchorIdx >= 0 {
		if !final.Equal(survivor.Address) {
			if err := dir.OverwriteIdentifiers(ctx, survivor.ID, final); err != nil {
				return decision{}, err
			}
		}
	} else {
		id, err := dir.Create(ctx, final)
		if err != nil {
			return decision{}, err
		}
		survivor.ID = id
	}

	for _, rec := range losers {
		if err := absorbData(ctx, dir, &survivor, rec); err != nil {
			return decision{}, err
		}
	}

	d.survivor = FrozenID(survivor.ID)
	switch {
	case len(d.absorbed) > 0:
		d.outcome = OutcomeMerged
	case len(d.stripped) > 0:
		d.outcome = OutcomeStripped
	case anchorIdx < 0:
		d.outcome = OutcomeCreated
	default:
		d.outcome = OutcomeUpdated
	}
	return d, nil
}

// strip removes addr's weak identifiers from rec. A recipient left with no
// identifier keeps its row and data but is no longer reachable by lookup.
// Such a row stays only as a holder of its contact, profile and keys: List
// and Count skip it, and it is reachable only through a handle to its id.
func strip(ctx context.Context, dir *store.Directory, rec recipient.Record, addr address.Address) error {
	stripped, err := rec.Address.Without(addr)
	if errors.Is(err, address.ErrNoIdentifier) {
		return dir.ClearIdentifiers(ctx, rec.ID)
	}
	if err != nil {
		return err
	}
	return dir.OverwriteIdentifiers(ctx, rec.ID, stripped)
}

// absorbData copies loser's attachments into survivor where survivor has none.
// survivor is updated to reflect what was written.
func absorbData(ctx context.Context, dir *store.Directory, survivor *recipient.Record, loser recipient.Record) error {
	if survivor.Contact == nil && loser.Contact != nil {
		if err := dir.StoreContact(ctx, survivor.ID, loser.Contact); err != nil {
			return err
		}
		survivor.Contact = loser.Contact
	}

	if survivor.Profile == nil && loser.Profile != nil {
		if err := dir.StoreProfile(ctx, survivor.ID, loser.Profile); err != nil {
			return err
		}
		survivor.Profile = loser.Profile
	}

	switch {
	case survivor.ProfileKey == nil && loser.ProfileKey != nil:
		if _, err := dir.StoreProfileKey(ctx, survivor.ID, loser.ProfileKey, false); err != nil {
			return err
		}
		survivor.ProfileKey = loser.ProfileKey
		survivor.ProfileKeyCredential = nil
		if loser.ProfileKeyCredential != nil {
			if err := dir.StoreProfileKeyCredential(ctx, survivor.ID, loser.ProfileKeyCredential); err != nil {
				return err
			}
			survivor.ProfileKeyCredential = loser.ProfileKeyCredential
		}
	case survivor.ProfileKeyCredential == nil && loser.ProfileKeyCredential != nil &&
		survivor.ProfileKey != nil && survivor.ProfileKey.Equal(loser.ProfileKey):
		// The credential is only valid for the key it was derived from.
		if err := dir.StoreProfileKeyCredential(ctx, survivor.ID, loser.ProfileKeyCredential); err != nil {
			return err
		}
		survivor.ProfileKeyCredential = loser.ProfileKeyCredential
	}
	return nil
}
