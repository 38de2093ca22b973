package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/store"
)

// ErrSelfUnknown is returned by ResolveSelf when no local address is configured.
var ErrSelfUnknown = errors.New("local address unknown")

// Store is the transactional storage the engine writes through.
// *store.Store implements it.
//
// Only the Directory passed to fn may be used inside RunInTx: the pool has a
// single connection.
type Store interface {
	Directory() *store.Directory
	RunInTx(ctx context.Context, fn func(dir *store.Directory) error) error
}

// SelfAddressProvider returns the local user's current address, or the zero
// Address if it is not known yet.
type SelfAddressProvider interface {
	SelfAddress() address.Address
}

// SelfAddressFunc adapts a function to SelfAddressProvider.
type SelfAddressFunc func() address.Address

// SelfAddress calls f.
func (f SelfAddressFunc) SelfAddress() address.Address { return f() }

// MergeNotification is delivered after a merge commits.
// Collaborators owning data keyed by recipient (message history, sessions)
// migrate it from Absorbed to Surviving.
type MergeNotification struct {
	// ID correlates the notification with engine logs.
	ID string
	// Surviving is the recipient that absorbed the others.
	Surviving RecipientID
	// Absorbed are the merged-away recipients, in ascending id order.
	Absorbed []FrozenID
}

// MergeListener receives merge notifications synchronously, outside the
// engine lock. Implementations may call back into the engine.
type MergeListener interface {
	OnMerge(ctx context.Context, n MergeNotification)
}

// MergeListenerFunc adapts a function to MergeListener.
type MergeListenerFunc func(ctx context.Context, n MergeNotification)

// OnMerge calls f.
func (f MergeListenerFunc) OnMerge(ctx context.Context, n MergeNotification) { f(ctx, n) }

// Engine resolves identifier claims to recipient handles.
//
// Thread-safety model:
//   - Resolve and every writer: safe from any goroutine, serialized by mu
//   - Readers: safe from any goroutine, not serialized
//
// INVARIANTS:
//   - redirects is written only after the merging transaction committed
//   - a merged-away row has no identifiers from the moment its merge commits
type Engine struct {
	mu sync.Mutex

	store     Store
	self      SelfAddressProvider
	redirects *RedirectCache
	listener  MergeListener

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	clock   Clock
	ids     IDGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMergeListener registers the listener notified after each merge.
func WithMergeListener(l MergeListener) Option {
	return func(e *Engine) { e.listener = l }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer. Default: the global OpenTelemetry provider,
// which is a no-op unless one is installed.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithClock sets the wall clock. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator sets the merge notification id generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// New creates an Engine writing through s.
// self may be nil when the local address is never known.
func New(s Store, self SelfAddressProvider, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		self:      self,
		redirects: NewRedirectCache(),
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/roach88/recipients/internal/engine"),
		clock:     SystemClock{},
		ids:       UUIDv7Generator{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Handle returns a live handle for a row id, e.g. one read from storage or
// given on the command line.
func (e *Engine) Handle(id FrozenID) RecipientID {
	return RecipientID{id: id, redirects: e.redirects}
}

// Redirects exposes the redirect cache for diagnostics.
func (e *Engine) Redirects() *RedirectCache {
	return e.redirects
}

// withLock runs fn in one transaction under the engine lock.
func (e *Engine) withLock(ctx context.Context, fn func(dir *store.Directory) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.RunInTx(ctx, fn)
}
