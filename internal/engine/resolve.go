package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/store"
)

// resolveAllLimit bounds the goroutines ResolveAll starts. Resolution itself
// is serialized; the limit only caps lock waiters.
const resolveAllLimit = 8

// Resolution is the full result of a Resolve call.
type Resolution struct {
	// ID is the surviving recipient.
	ID RecipientID
	// Outcome says what was written.
	Outcome Outcome
	// Absorbed are recipients merged into ID, ascending.
	Absorbed []FrozenID
	// Stripped are recipients that lost weak identifiers to ID, ascending.
	Stripped []FrozenID
}

// Resolve maps a claim to the recipient it describes, creating, updating,
// stripping or merging recipients as needed, and returns a live handle.
//
// isSelf says the caller knows addr is the local user's own address; without
// it a high trust claim matching the local address is treated as low trust.
//
// Returns address.ErrNoIdentifier for the zero Address, an *InvariantError
// for a trust other than TrustHigh or TrustLow or if the decision would break
// identifier uniqueness, and the wrapped storage error otherwise. On error nothing was written.
func (e *Engine) Resolve(ctx context.Context, addr address.Address, trust Trust, isSelf bool) (RecipientID, error) {
	res, err := e.ResolveDetailed(ctx, addr, trust, isSelf)
	if err != nil {
		return RecipientID{}, err
	}
	return res.ID, nil
}

// ResolveDetailed is Resolve returning the outcome and affected recipients.
func (e *Engine) ResolveDetailed(ctx context.Context, addr address.Address, trust Trust, isSelf bool) (Resolution, error) {
	if addr.IsZero() {
		return Resolution{}, fmt.Errorf("resolve: %w", address.ErrNoIdentifier)
	}
	if !trust.Valid() {
		return Resolution{}, &InvariantError{
			Code:    ErrCodeInvalidTrust,
			Message: "unknown trust " + trust.String(),
			Address: addr,
		}
	}

	ctx, span := e.tracer.Start(ctx, "engine.Resolve",
		trace.WithAttributes(
			attribute.String("trust", trust.String()),
			attribute.Bool("is_self", isSelf),
		),
	)
	defer span.End()
	start := time.Now()

	trust = e.effectiveTrust(addr, trust, isSelf)

	res, err := e.resolveLocked(ctx, addr, trust)
	if err != nil {
		e.metrics.IncrementFailures()
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		e.logger.Error("resolve failed",
			"address", addr,
			"trust", trust.String(),
			"error", err)
		return Resolution{}, err
	}

	e.metrics.ObserveResolution(start, trust, res)
	span.SetAttributes(
		attribute.String("outcome", string(res.Outcome)),
		attribute.Int64("recipient_id", res.ID.Value().Int64()),
		attribute.Int("absorbed", len(res.Absorbed)),
	)

	if len(res.Absorbed) > 0 {
		e.afterMerge(ctx, res)
	}
	return res, nil
}

// effectiveTrust downgrades a high trust claim on the local address unless
// the caller vouched for it with isSelf.
func (e *Engine) effectiveTrust(addr address.Address, trust Trust, isSelf bool) Trust {
	if trust != TrustHigh || isSelf || e.self == nil {
		return trust
	}
	self := e.self.SelfAddress()
	if self.IsZero() || !self.Matches(addr) {
		return trust
	}
	e.metrics.IncrementSelfDowngrades()
	e.logger.Warn("high trust claim on the local address downgraded", "address", addr)
	return TrustLow
}

// resolveLocked is the critical section: lookup, decision and transaction.
func (e *Engine) resolveLocked(ctx context.Context, addr address.Address, trust Trust) (Resolution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var d decision
	err := e.store.RunInTx(ctx, func(dir *store.Directory) error {
		var err error
		d, err = decide(ctx, dir, addr, trust)
		return err
	})
	if err != nil {
		return Resolution{}, classifyResolveError(addr, err)
	}

	for _, loser := range d.absorbed {
		e.redirects.Record(loser, d.survivor)
	}

	e.logger.Debug("resolved",
		"address", addr,
		"trust", trust.String(),
		"outcome", string(d.outcome),
		"recipient_id", d.survivor.Int64())

	return Resolution{
		ID:       e.Handle(d.survivor),
		Outcome:  d.outcome,
		Absorbed: d.absorbed,
		Stripped: d.stripped,
	}, nil
}

// afterMerge notifies the listener and deletes the absorbed rows.
// Runs outside the lock: the rows have no identifiers, so no lookup can see them.
func (e *Engine) afterMerge(ctx context.Context, res Resolution) {
	n := MergeNotification{
		ID:        e.ids.Generate(),
		Surviving: res.ID,
		Absorbed:  slices.Clone(res.Absorbed),
	}
	e.logger.Info("recipients merged",
		"merge_id", n.ID,
		"recipient_id", res.ID.Value().Int64(),
		"absorbed", res.Absorbed)

	if e.listener != nil {
		e.listener.OnMerge(ctx, n)
	}

	// The merge is committed; finish cleanup even if the caller gave up.
	cleanupCtx := context.WithoutCancel(ctx)
	dir := e.store.Directory()
	for _, loser := range res.Absorbed {
		if err := dir.Delete(cleanupCtx, loser.Int64()); err != nil {
			e.logger.Warn("delete merged recipient failed",
				"merge_id", n.ID,
				"recipient_id", loser.Int64(),
				"error", err)
		}
	}
}

// ResolveSelf resolves the local user's address at high trust.
// Returns ErrSelfUnknown if no SelfAddressProvider is set or it has no address.
func (e *Engine) ResolveSelf(ctx context.Context) (RecipientID, error) {
	if e.self == nil {
		return RecipientID{}, ErrSelfUnknown
	}
	self := e.self.SelfAddress()
	if self.IsZero() {
		return RecipientID{}, ErrSelfUnknown
	}
	return e.Resolve(ctx, self, TrustHigh, true)
}

// ResolveAll resolves many claims concurrently, e.g. the senders of a batch
// of envelopes. Results are in input order. The first error cancels the
// remaining resolutions; those already committed stay committed.
func (e *Engine) ResolveAll(ctx context.Context, addrs []address.Address, trust Trust) ([]RecipientID, error) {
	out := make([]RecipientID, len(addrs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveAllLimit)
	for i, addr := range addrs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			id, err := e.Resolve(gctx, addr, trust, false)
			if err != nil {
				return fmt.Errorf("address %d: %w", i, err)
			}
			out[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
