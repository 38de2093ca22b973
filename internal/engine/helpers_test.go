package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/store"
	"github.com/roach88/recipients/internal/testutil"
)

var errInjected = errors.New("injected failure")

// recordingListener collects merge notifications.
type recordingListener struct {
	mu    sync.Mutex
	calls []MergeNotification
}

func (l *recordingListener) OnMerge(_ context.Context, n MergeNotification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, n)
}

func (l *recordingListener) notifications() []MergeNotification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]MergeNotification(nil), l.calls...)
}

// failingStore runs the real transaction and then fails it.
type failingStore struct {
	*store.Store
}

func (f failingStore) RunInTx(ctx context.Context, fn func(dir *store.Directory) error) error {
	return f.Store.RunInTx(ctx, func(dir *store.Directory) error {
		if err := fn(dir); err != nil {
			return err
		}
		return errInjected
	})
}

// conflictingStore inserts a row holding a number after the decision ran,
// producing a uniqueness violation inside the transaction.
type conflictingStore struct {
	*store.Store
	number string
}

func (c conflictingStore) RunInTx(ctx context.Context, fn func(dir *store.Directory) error) error {
	return c.Store.RunInTx(ctx, func(dir *store.Directory) error {
		if err := fn(dir); err != nil {
			return err
		}
		_, err := dir.Create(ctx, address.MustNew(address.WithNumber(c.number)))
		return err
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, s Store, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithLogger(discardLogger()),
		WithIDGenerator(NewSequenceGenerator("")),
		WithClock(testutil.NewDeterministicClock()),
	}
	return New(s, nil, append(base, opts...)...)
}

func resolve(t *testing.T, e *Engine, trust Trust, opts ...address.Option) RecipientID {
	t.Helper()
	id, err := e.Resolve(context.Background(), testutil.Addr(t, opts...), trust, false)
	require.NoError(t, err)
	return id
}

func addressOf(t *testing.T, e *Engine, id RecipientID) address.Address {
	t.Helper()
	rec, err := e.Recipient(context.Background(), id)
	require.NoError(t, err)
	return rec.Address
}

func count(t *testing.T, s *store.Store) int {
	t.Helper()
	n, err := s.Directory().Count(context.Background())
	require.NoError(t, err)
	return n
}
