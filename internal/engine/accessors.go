package engine

import (
	"context"
	"fmt"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/recipient"
	"github.com/roach88/recipients/internal/store"
)

// Recipient returns the full row behind id.
func (e *Engine) Recipient(ctx context.Context, id RecipientID) (*recipient.Record, error) {
	return e.store.Directory().Get(ctx, id.Value().Int64())
}

// AddressOf returns the identifiers currently stored for id.
// Returns store.ErrNotFound if the recipient no longer has any.
func (e *Engine) AddressOf(ctx context.Context, id RecipientID) (address.Address, error) {
	rec, err := e.Recipient(ctx, id)
	if err != nil {
		return address.Address{}, err
	}
	if rec.Address.IsZero() {
		return address.Address{}, fmt.Errorf("address of recipient %d: %w", rec.ID, store.ErrNotFound)
	}
	return rec.Address, nil
}

// Contact returns the contact metadata, nil if never set.
func (e *Engine) Contact(ctx context.Context, id RecipientID) (*recipient.Contact, error) {
	return e.store.Directory().Contact(ctx, id.Value().Int64())
}

// Profile returns the profile, nil if never fetched.
func (e *Engine) Profile(ctx context.Context, id RecipientID) (*recipient.Profile, error) {
	return e.store.Directory().Profile(ctx, id.Value().Int64())
}

// ProfileKey returns the profile key, nil if unknown.
func (e *Engine) ProfileKey(ctx context.Context, id RecipientID) (recipient.ProfileKey, error) {
	return e.store.Directory().ProfileKey(ctx, id.Value().Int64())
}

// ProfileKeyCredential returns the profile key credential, nil if unknown.
func (e *Engine) ProfileKeyCredential(ctx context.Context, id RecipientID) (recipient.ProfileKeyCredential, error) {
	return e.store.Directory().ProfileKeyCredential(ctx, id.Value().Int64())
}

// List returns live recipients matching filter, ordered by id.
func (e *Engine) List(ctx context.Context, filter store.ListFilter) ([]recipient.Record, error) {
	return e.store.Directory().List(ctx, filter)
}

// StoreContact replaces the contact metadata. nil clears it.
func (e *Engine) StoreContact(ctx context.Context, id RecipientID, c *recipient.Contact) error {
	return e.withLock(ctx, func(dir *store.Directory) error {
		return dir.StoreContact(ctx, id.Value().Int64(), c)
	})
}

// DeleteContact clears the contact metadata, keeping identity and profile.
func (e *Engine) DeleteContact(ctx context.Context, id RecipientID) error {
	return e.withLock(ctx, func(dir *store.Directory) error {
		return dir.DeleteContact(ctx, id.Value().Int64())
	})
}

// StoreProfile replaces the profile. nil clears it.
func (e *Engine) StoreProfile(ctx context.Context, id RecipientID, p *recipient.Profile) error {
	return e.withLock(ctx, func(dir *store.Directory) error {
		return dir.StoreProfile(ctx, id.Value().Int64(), p)
	})
}

// StoreProfileKey stores a profile key and reports whether anything changed.
// fullUpdate is false only when bootstrapping the local user's own key.
// See store.Directory.StoreProfileKey for the no-op rule.
func (e *Engine) StoreProfileKey(ctx context.Context, id RecipientID, key recipient.ProfileKey, fullUpdate bool) (bool, error) {
	var changed bool
	err := e.withLock(ctx, func(dir *store.Directory) error {
		var err error
		changed, err = dir.StoreProfileKey(ctx, id.Value().Int64(), key, fullUpdate)
		return err
	})
	return changed, err
}

// StoreProfileKeyCredential replaces the credential. nil clears it.
func (e *Engine) StoreProfileKeyCredential(ctx context.Context, id RecipientID, cred recipient.ProfileKeyCredential) error {
	return e.withLock(ctx, func(dir *store.Directory) error {
		return dir.StoreProfileKeyCredential(ctx, id.Value().Int64(), cred)
	})
}

// DeleteRecipientData clears contact, profile and keys. The recipient keeps
// its identifiers and handle.
func (e *Engine) DeleteRecipientData(ctx context.Context, id RecipientID) error {
	return e.withLock(ctx, func(dir *store.Directory) error {
		return dir.DeleteRecipientData(ctx, id.Value().Int64())
	})
}

// MarkUnregistered handles the server reporting numbers as no longer
// registered.
//
// A recipient that also has an ACI or PNI loses the number, which may be
// reassigned; a number-only recipient keeps it. Both are stamped with the
// current time. Unknown numbers are skipped. Returns the affected recipients.
func (e *Engine) MarkUnregistered(ctx context.Context, numbers []string) ([]RecipientID, error) {
	parsed := make([]string, 0, len(numbers))
	for _, n := range numbers {
		num, err := address.ParseNumber(n)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, num)
	}

	at := e.clock.Now()
	var affected []FrozenID
	err := e.withLock(ctx, func(dir *store.Directory) error {
		affected = affected[:0]
		for _, num := range parsed {
			rec, err := dir.FindByNumber(ctx, num)
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			if rec.Address.HasStrongIdentifier() {
				remaining, err := rec.Address.WithoutNumber()
				if err != nil {
					return err
				}
				if err := dir.OverwriteIdentifiers(ctx, rec.ID, remaining); err != nil {
					return err
				}
			}
			if err := dir.MarkUnregistered(ctx, rec.ID, at); err != nil {
				return err
			}
			affected = append(affected, FrozenID(rec.ID))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark unregistered: %w", err)
	}

	out := make([]RecipientID, len(affected))
	for i, id := range affected {
		out[i] = e.Handle(id)
	}
	e.logger.Info("numbers marked unregistered", "count", len(out))
	return out, nil
}
