package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/recipient"
	"github.com/roach88/recipients/internal/store"
	"github.com/roach88/recipients/internal/testutil"
)

var (
	withACI1 = address.WithACI(testutil.ACI1)
	withACI2 = address.WithACI(testutil.ACI2)
	withACI3 = address.WithACI(testutil.ACI3)
	withPNI1 = address.WithPNI(testutil.PNI1)
	withPNI2 = address.WithPNI(testutil.PNI2)
	withNum1 = address.WithNumber(testutil.Number1)
	withNum2 = address.WithNumber(testutil.Number2)
)

func TestResolve_ZeroAddressRejected(t *testing.T) {
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)

	_, err := e.Resolve(context.Background(), address.Address{}, TrustHigh, false)
	require.ErrorIs(t, err, address.ErrNoIdentifier)
	assert.Equal(t, 0, count(t, s))
}

func TestResolve_UnknownTrustRejected(t *testing.T) {
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)

	_, err := e.Resolve(context.Background(), testutil.Addr(t, withACI1, withNum1), Trust(7), false)
	require.Error(t, err)

	var ie *InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ErrCodeInvalidTrust, ie.Code)
	assert.Equal(t, 0, count(t, s))
}

func TestResolve_Idempotent(t *testing.T) {
	for _, trust := range []Trust{TrustHigh, TrustLow} {
		t.Run(trust.String(), func(t *testing.T) {
			s := testutil.OpenStore(t)
			listener := &recordingListener{}
			e := newTestEngine(t, s, WithMergeListener(listener))

			first, err := e.ResolveDetailed(context.Background(),
				testutil.Addr(t, withACI1, withPNI1, withNum1), trust, false)
			require.NoError(t, err)
			assert.Equal(t, OutcomeCreated, first.Outcome)

			second, err := e.ResolveDetailed(context.Background(),
				testutil.Addr(t, withACI1, withPNI1, withNum1), trust, false)
			require.NoError(t, err)
			assert.Equal(t, OutcomeExisting, second.Outcome)
			assert.Equal(t, first.ID.Value(), second.ID.Value())
			assert.Empty(t, listener.notifications())
			assert.Equal(t, 1, count(t, s))
		})
	}
}

func TestResolve_NumberThenACIUpdatesInPlace(t *testing.T) {
	s := testutil.OpenStore(t)
	listener := &recordingListener{}
	e := newTestEngine(t, s, WithMergeListener(listener))

	h1 := resolve(t, e, TrustLow, withNum1)
	assert.Equal(t, testutil.Addr(t, withNum1), addressOf(t, e, h1))

	res, err := e.ResolveDetailed(context.Background(), testutil.Addr(t, withACI1, withNum1), TrustHigh, false)
	require.NoError(t, err)
	assert.Equal(t, h1.Value(), res.ID.Value())
	assert.Equal(t, OutcomeUpdated, res.Outcome)
	assert.Equal(t, testutil.Addr(t, withACI1, withNum1), addressOf(t, e, h1))
	assert.Empty(t, listener.notifications())
}

func TestResolve_MergesNumberIntoPNIHolder(t *testing.T) {
	s := testutil.OpenStore(t)
	listener := &recordingListener{}
	e := newTestEngine(t, s, WithMergeListener(listener))

	r1 := resolve(t, e, TrustHigh, withNum1)
	r2 := resolve(t, e, TrustHigh, withACI1, withPNI1)
	r1Frozen := r1.Frozen()

	res, err := e.ResolveDetailed(context.Background(),
		testutil.Addr(t, withACI1, withPNI1, withNum1), TrustHigh, false)
	require.NoError(t, err)

	assert.Equal(t, OutcomeMerged, res.Outcome)
	assert.Equal(t, r2.Value(), res.ID.Value())
	assert.Equal(t, []FrozenID{r1Frozen}, res.Absorbed)
	assert.Equal(t, testutil.Addr(t, withACI1, withPNI1, withNum1), addressOf(t, e, r2))

	calls := listener.notifications()
	require.Len(t, calls, 1)
	assert.Equal(t, "merge-1", calls[0].ID)
	assert.Equal(t, r2.Value(), calls[0].Surviving.Value())
	assert.Equal(t, []FrozenID{r1Frozen}, calls[0].Absorbed)

	// The absorbed row is gone and its handle follows the redirect.
	_, err = s.Directory().Get(context.Background(), r1Frozen.Int64())
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, r2.Value(), r1.Value())
	assert.Equal(t, 1, count(t, s))
}

func TestResolve_ACIWinsOverBareNumber(t *testing.T) {
	s := testutil.OpenStore(t)
	listener := &recordingListener{}
	e := newTestEngine(t, s, WithMergeListener(listener))

	r1 := resolve(t, e, TrustHigh, withNum1)
	r2 := resolve(t, e, TrustHigh, withACI1)

	res, err := e.ResolveDetailed(context.Background(), testutil.Addr(t, withACI1, withNum1), TrustHigh, false)
	require.NoError(t, err)

	assert.Equal(t, r2.Value(), res.ID.Value())
	assert.Equal(t, OutcomeStripped, res.Outcome)
	assert.Equal(t, []FrozenID{r1.Frozen()}, res.Stripped)
	assert.Empty(t, res.Absorbed)
	assert.Empty(t, listener.notifications())

	// R1 still exists but no longer holds the number.
	rec, err := s.Directory().Get(context.Background(), r1.Value().Int64())
	require.NoError(t, err)
	assert.False(t, rec.Address.HasNumber())
	assert.Equal(t, testutil.Addr(t, withACI1, withNum1), addressOf(t, e, r2))
}

func TestResolve_StrippedToNothingKeepsDataRow(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)

	r1 := resolve(t, e, TrustHigh, withNum1)
	require.NoError(t, e.StoreContact(ctx, r1, &recipient.Contact{GivenName: "Old owner"}))
	r2 := resolve(t, e, TrustHigh, withACI1)

	res, err := e.ResolveDetailed(ctx, testutil.Addr(t, withACI1, withNum1), TrustHigh, false)
	require.NoError(t, err)
	require.Equal(t, []FrozenID{r1.Value()}, res.Stripped)

	rec, err := e.Recipient(ctx, r1)
	require.NoError(t, err)
	assert.True(t, rec.Address.IsZero())
	require.NotNil(t, rec.Contact)
	assert.Equal(t, "Old owner", rec.Contact.GivenName)

	records, err := e.List(ctx, store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, r2.Value().Int64(), records[0].ID)
	assert.Equal(t, 1, count(t, s))

	overlapping, err := s.Directory().FindAllOverlapping(ctx, testutil.Addr(t, withNum1))
	require.NoError(t, err)
	require.Len(t, overlapping, 1)
	assert.Equal(t, r2.Value().Int64(), overlapping[0].ID)
}

func TestResolve_HighTrustStealsNumberFromDifferentACI(t *testing.T) {
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)

	old := resolve(t, e, TrustHigh, withACI1, withPNI1, withNum1)

	res, err := e.ResolveDetailed(context.Background(),
		testutil.Addr(t, withACI2, withPNI1, withNum1), TrustHigh, false)
	require.NoError(t, err)

	assert.Equal(t, OutcomeStripped, res.Outcome)
	assert.NotEqual(t, old.Value(), res.ID.Value())
	assert.Equal(t, testutil.Addr(t, withACI1), addressOf(t, e, old))
	assert.Equal(t, testutil.Addr(t, withACI2, withPNI1, withNum1), addressOf(t, e, res.ID))
	assert.Equal(t, 2, count(t, s))
}

func TestResolve_HighTrustInputWinsOnNumberChange(t *testing.T) {
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)

	h := resolve(t, e, TrustHigh, withACI1, withNum1)
	again := resolve(t, e, TrustHigh, withACI1, withNum2)

	assert.Equal(t, h.Value(), again.Value())
	assert.Equal(t, testutil.Addr(t, withACI1, withNum2), addressOf(t, e, h))

	found, err := s.Directory().FindByNumber(context.Background(), testutil.Number1)
	require.NoError(t, err)
	assert.Nil(t, found, "the old number is released")
}

func TestResolve_LowTrustDropsNumberOnCreate(t *testing.T) {
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)

	h := resolve(t, e, TrustLow, withACI1, withNum1)
	assert.Equal(t, testutil.Addr(t, withACI1), addressOf(t, e, h))

	found, err := s.Directory().FindByNumber(context.Background(), testutil.Number1)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestResolve_LowTrustNeverBindsNumber(t *testing.T) {
	t.Run("number holder gets no ACI", func(t *testing.T) {
		s := testutil.OpenStore(t)
		e := newTestEngine(t, s)

		byNumber := resolve(t, e, TrustHigh, withNum1)
		claimed := resolve(t, e, TrustLow, withACI1, withNum1)

		assert.NotEqual(t, byNumber.Value(), claimed.Value())
		assert.Equal(t, testutil.Addr(t, withNum1), addressOf(t, e, byNumber))
		assert.Equal(t, testutil.Addr(t, withACI1), addressOf(t, e, claimed))
	})

	t.Run("ACI holder gets no number", func(t *testing.T) {
		s := testutil.OpenStore(t)
		e := newTestEngine(t, s)

		byACI := resolve(t, e, TrustHigh, withACI1)
		claimed := resolve(t, e, TrustLow, withACI1, withNum1)

		assert.Equal(t, byACI.Value(), claimed.Value())
		assert.Equal(t, testutil.Addr(t, withACI1), addressOf(t, e, byACI))
	})

	t.Run("conflicting ACI steals nothing", func(t *testing.T) {
		s := testutil.OpenStore(t)
		e := newTestEngine(t, s)

		owner := resolve(t, e, TrustHigh, withACI1, withNum1)
		claimed := resolve(t, e, TrustLow, withACI2, withNum1)

		assert.NotEqual(t, owner.Value(), claimed.Value())
		assert.Equal(t, testutil.Addr(t, withACI1, withNum1), addressOf(t, e, owner))
		assert.Equal(t, testutil.Addr(t, withACI2), addressOf(t, e, claimed))
	})
}

func TestResolve_LowTrustAddsStrongIdentifiers(t *testing.T) {
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)

	h := resolve(t, e, TrustHigh, withACI1)
	again := resolve(t, e, TrustLow, withACI1, withPNI1)

	assert.Equal(t, h.Value(), again.Value())
	assert.Equal(t, testutil.Addr(t, withACI1, withPNI1), addressOf(t, e, h))
}

func TestResolve_LowTrustMultipleOverlapsWritesNothing(t *testing.T) {
	s := testutil.OpenStore(t)
	listener := &recordingListener{}
	e := newTestEngine(t, s, WithMergeListener(listener))

	byNumber := resolve(t, e, TrustHigh, withNum1)
	byACI := resolve(t, e, TrustHigh, withACI1, withPNI1)

	res, err := e.ResolveDetailed(context.Background(),
		testutil.Addr(t, withACI1, withPNI1, withNum1), TrustLow, false)
	require.NoError(t, err)

	assert.Equal(t, OutcomeExisting, res.Outcome)
	assert.Equal(t, byACI.Value(), res.ID.Value())
	assert.Equal(t, testutil.Addr(t, withNum1), addressOf(t, e, byNumber))
	assert.Equal(t, testutil.Addr(t, withACI1, withPNI1), addressOf(t, e, byACI))
	assert.Empty(t, listener.notifications())
}

func TestResolve_PNIAndNumberPairAlwaysMerges(t *testing.T) {
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)

	pair := resolve(t, e, TrustHigh, withPNI1, withNum1)
	account := resolve(t, e, TrustHigh, withACI1)

	res, err := e.ResolveDetailed(context.Background(), testutil.Addr(t, withACI1, withNum1), TrustHigh, false)
	require.NoError(t, err)

	assert.Equal(t, OutcomeMerged, res.Outcome)
	assert.Equal(t, account.Value(), res.ID.Value())
	assert.Equal(t, account.Value(), pair.Value())
	assert.Equal(t, testutil.Addr(t, withACI1, withPNI1, withNum1), addressOf(t, e, account))
}

func TestResolve_StripsRecipientWithOwnACI(t *testing.T) {
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)

	other := resolve(t, e, TrustHigh, withACI2, withNum1)
	account := resolve(t, e, TrustHigh, withACI1, withPNI1)

	res, err := e.ResolveDetailed(context.Background(),
		testutil.Addr(t, withACI1, withPNI1, withNum1), TrustHigh, false)
	require.NoError(t, err)

	assert.Equal(t, OutcomeStripped, res.Outcome)
	assert.Equal(t, account.Value(), res.ID.Value())
	assert.Equal(t, []FrozenID{other.Frozen()}, res.Stripped)
	assert.Equal(t, testutil.Addr(t, withACI2), addressOf(t, e, other))
	assert.Equal(t, testutil.Addr(t, withACI1, withPNI1, withNum1), addressOf(t, e, account))
}

func TestResolve_NoAnchorCreatesSurvivor(t *testing.T) {
	s := testutil.OpenStore(t)
	listener := &recordingListener{}
	e := newTestEngine(t, s, WithMergeListener(listener))

	byNumber := resolve(t, e, TrustHigh, withNum1)
	stale := resolve(t, e, TrustHigh, withACI2, withPNI1)
	loser := byNumber.Frozen()

	res, err := e.ResolveDetailed(context.Background(),
		testutil.Addr(t, withACI1, withPNI1, withNum1), TrustHigh, false)
	require.NoError(t, err)

	assert.Equal(t, OutcomeMerged, res.Outcome)
	assert.NotEqual(t, loser, res.ID.Value())
	assert.NotEqual(t, stale.Frozen(), res.ID.Value())
	assert.Equal(t, []FrozenID{loser}, res.Absorbed)
	assert.True(t, byNumber.Equal(res.ID), "absorbed handle follows the merge")
	require.Len(t, listener.notifications(), 1)
	assert.Equal(t, []FrozenID{stale.Frozen()}, res.Stripped)
	assert.Equal(t, testutil.Addr(t, withACI2), addressOf(t, e, stale))
	assert.Equal(t, testutil.Addr(t, withACI1, withPNI1, withNum1), addressOf(t, e, res.ID))
}

func TestResolve_NoDataLossOnMerge(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)

	a := resolve(t, e, TrustHigh, withNum1)
	b := resolve(t, e, TrustHigh, withACI1, withPNI1)

	contact := &recipient.Contact{GivenName: "Ada", Color: "crimson", Blocked: true}
	require.NoError(t, e.StoreContact(ctx, a, contact))
	key := make(recipient.ProfileKey, recipient.ProfileKeyLength)
	key[0] = 7
	_, err := e.StoreProfileKey(ctx, a, key, true)
	require.NoError(t, err)
	require.NoError(t, e.StoreProfileKeyCredential(ctx, a, recipient.ProfileKeyCredential{1, 2, 3}))

	bProfile := &recipient.Profile{GivenName: "Ada L."}
	require.NoError(t, e.StoreProfile(ctx, b, bProfile))

	resolve(t, e, TrustHigh, withACI1, withPNI1, withNum1)

	gotContact, err := e.Contact(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, contact, gotContact)

	gotKey, err := e.ProfileKey(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, key, gotKey)

	gotCred, err := e.ProfileKeyCredential(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, recipient.ProfileKeyCredential{1, 2, 3}, gotCred)

	gotProfile, err := e.Profile(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", gotProfile.GivenName)
}

func TestResolve_SurvivorDataWins(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)

	a := resolve(t, e, TrustHigh, withNum1)
	b := resolve(t, e, TrustHigh, withACI1, withPNI1)
	require.NoError(t, e.StoreContact(ctx, a, &recipient.Contact{GivenName: "Loser"}))
	require.NoError(t, e.StoreContact(ctx, b, &recipient.Contact{GivenName: "Anchor"}))

	resolve(t, e, TrustHigh, withACI1, withPNI1, withNum1)

	c, err := e.Contact(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "Anchor", c.GivenName)
}

func TestResolve_RedirectTransitivity(t *testing.T) {
	s := testutil.OpenStore(t)
	listener := &recordingListener{}
	e := newTestEngine(t, s, WithMergeListener(listener))

	h1 := resolve(t, e, TrustHigh, withNum1)
	h2 := resolve(t, e, TrustHigh, withPNI1)
	resolve(t, e, TrustHigh, withPNI1, withNum1)
	require.Equal(t, h2.Value(), h1.Value(), "h1 merged into h2")

	h3 := resolve(t, e, TrustHigh, withACI3)
	resolve(t, e, TrustHigh, withACI3, withPNI1, withNum1)

	assert.Equal(t, h3.Value(), h2.Value(), "h2 merged into h3")
	assert.Equal(t, h3.Value(), h1.Value(), "h1 follows both redirects")
	assert.Len(t, listener.notifications(), 2)

	addr, err := e.AddressOf(context.Background(), h1)
	require.NoError(t, err)
	assert.Equal(t, testutil.Addr(t, withACI3, withPNI1, withNum1), addr)
}

func TestResolve_AtomicFailure(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t)
	setup := newTestEngine(t, s)
	r1 := resolve(t, setup, TrustHigh, withNum1)
	r2 := resolve(t, setup, TrustHigh, withACI1, withPNI1)

	listener := &recordingListener{}
	metrics := NewMetrics(nil)
	e := newTestEngine(t, failingStore{s}, WithMergeListener(listener), WithMetrics(metrics))

	_, err := e.Resolve(ctx, testutil.Addr(t, withACI1, withPNI1, withNum1), TrustHigh, false)
	require.ErrorIs(t, err, errInjected)

	assert.Equal(t, testutil.Addr(t, withNum1), addressOf(t, setup, r1))
	assert.Equal(t, testutil.Addr(t, withACI1, withPNI1), addressOf(t, setup, r2))
	assert.Equal(t, 0, e.Redirects().Len())
	assert.Empty(t, listener.notifications())
	assert.Equal(t, 2, count(t, s))
}

func TestResolve_UniquenessViolationIsFatal(t *testing.T) {
	s := testutil.OpenStore(t)
	e := newTestEngine(t, conflictingStore{Store: s, number: testutil.Number1})

	_, err := e.Resolve(context.Background(), testutil.Addr(t, withACI1, withNum1), TrustHigh, false)
	require.Error(t, err)
	assert.True(t, IsUniquenessViolation(err))
	assert.ErrorIs(t, err, store.ErrUniqueness)
	assert.Equal(t, 0, count(t, s), "the transaction rolled back")
}

func TestResolve_SelfDowngrade(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t)
	self := testutil.Addr(t, withACI1, withNum1)
	e := New(s, SelfAddressFunc(func() address.Address { return self }),
		WithLogger(discardLogger()))

	me, err := e.ResolveSelf(ctx)
	require.NoError(t, err)
	assert.Equal(t, self, addressOf(t, e, me))

	// An envelope claiming our ACI with another number cannot rebind it.
	_, err = e.Resolve(ctx, testutil.Addr(t, withACI1, withNum2), TrustHigh, false)
	require.NoError(t, err)
	assert.Equal(t, self, addressOf(t, e, me))

	// The same claim vouched for as our own goes through.
	_, err = e.Resolve(ctx, testutil.Addr(t, withACI1, withNum2), TrustHigh, true)
	require.NoError(t, err)
	assert.Equal(t, testutil.Addr(t, withACI1, withNum2), addressOf(t, e, me))
}

func TestResolveSelf_Unknown(t *testing.T) {
	s := testutil.OpenStore(t)

	_, err := newTestEngine(t, s).ResolveSelf(context.Background())
	require.ErrorIs(t, err, ErrSelfUnknown)

	empty := New(s, SelfAddressFunc(func() address.Address { return address.Address{} }))
	_, err = empty.ResolveSelf(context.Background())
	require.ErrorIs(t, err, ErrSelfUnknown)
}

func TestResolve_ConcurrentSameAddress(t *testing.T) {
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)
	addr := testutil.Addr(t, withACI1, withPNI1, withNum1)

	const goroutines = 20
	ids := make([]RecipientID, goroutines)
	errs := make([]error, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], errs[i] = e.Resolve(context.Background(), addr, TrustHigh, false)
		}()
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0].Value(), ids[i].Value())
	}
	assert.Equal(t, 1, count(t, s))
}

func TestResolveAll_PreservesOrder(t *testing.T) {
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)

	var addrs []address.Address
	for i := 0; i < 12; i++ {
		addrs = append(addrs, testutil.Addr(t, address.WithNumber(fmt.Sprintf("+1555000%04d", i))))
	}
	addrs = append(addrs, addrs[3])

	ids, err := e.ResolveAll(context.Background(), addrs, TrustHigh)
	require.NoError(t, err)
	require.Len(t, ids, len(addrs))

	for i, id := range ids[:12] {
		assert.Equal(t, addrs[i], addressOf(t, e, id))
	}
	assert.Equal(t, ids[3].Value(), ids[12].Value())
	assert.Equal(t, 12, count(t, s))
}

func TestResolveAll_StopsOnError(t *testing.T) {
	s := testutil.OpenStore(t)
	e := newTestEngine(t, s)

	_, err := e.ResolveAll(context.Background(),
		[]address.Address{testutil.Addr(t, withNum1), {}}, TrustHigh)
	require.ErrorIs(t, err, address.ErrNoIdentifier)
}

func TestMergeListener_MayCallBackIntoEngine(t *testing.T) {
	s := testutil.OpenStore(t)
	var e *Engine
	var seen address.Address
	e = newTestEngine(t, s, WithMergeListener(MergeListenerFunc(func(ctx context.Context, n MergeNotification) {
		seen, _ = e.AddressOf(ctx, n.Surviving)
		// Writes take the engine lock; the listener runs outside it.
		require.NoError(t, e.StoreContact(ctx, n.Surviving, &recipient.Contact{GivenName: "merged"}))
	})))

	resolve(t, e, TrustHigh, withNum1)
	survivor := resolve(t, e, TrustHigh, withACI1, withPNI1)
	resolve(t, e, TrustHigh, withACI1, withPNI1, withNum1)

	assert.Equal(t, testutil.Addr(t, withACI1, withPNI1, withNum1), seen)
	c, err := e.Contact(context.Background(), survivor)
	require.NoError(t, err)
	assert.Equal(t, "merged", c.GivenName)
}
