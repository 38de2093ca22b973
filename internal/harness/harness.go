package harness

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/engine"
	"github.com/roach88/recipients/internal/recipient"
	"github.com/roach88/recipients/internal/store"
	"github.com/roach88/recipients/internal/testutil"
)

// Harness runs one scenario against a private engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger

	// handles are live handles by alias; frozen are the ids they had when bound.
	handles map[string]engine.RecipientID
	frozen  map[string]engine.FrozenID

	seq int64

	mu     sync.Mutex
	merges []MergeEvent
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a deterministic
// clock and merge ids, so identical scenarios produce identical results.
// A returned error means the scenario could not run; failed expectations
// and assertions are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	var self engine.SelfAddressProvider
	if scenario.Self != nil {
		addr, err := scenario.Self.address()
		if err != nil {
			return nil, fmt.Errorf("self: %w", err)
		}
		self = engine.SelfAddressFunc(func() address.Address { return addr })
	}

	h := &Harness{
		store:   st,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		handles: make(map[string]engine.RecipientID),
		frozen:  make(map[string]engine.FrozenID),
	}
	h.engine = engine.New(st, self,
		engine.WithLogger(h.logger),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithIDGenerator(engine.NewSequenceGenerator("")),
		engine.WithMergeListener(engine.MergeListenerFunc(h.onMerge)),
	)

	result := NewResult()

	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}

	if err := h.capture(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to capture directory: %w", err)
	}
	return result, nil
}

func (h *Harness) onMerge(_ context.Context, n engine.MergeNotification) {
	absorbed := make([]int64, len(n.Absorbed))
	for i, id := range n.Absorbed {
		absorbed[i] = id.Int64()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.merges = append(h.merges, MergeEvent{
		ID:        n.ID,
		Surviving: n.Surviving.Value().Int64(),
		Absorbed:  absorbed,
	})
}

func (h *Harness) nextSeq() int64 {
	h.seq++
	return h.seq
}

func (h *Harness) bind(alias string, id engine.RecipientID) {
	if alias == "" {
		return
	}
	h.handles[alias] = id
	h.frozen[alias] = id.Value()
}

// executeSetup runs setup resolves. Any failure aborts the scenario.
func (h *Harness) executeSetup(ctx context.Context, setup []ResolveStep, result *Result) error {
	for i, step := range setup {
		res, err := h.resolve(ctx, step)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		h.bind(step.As, res.ID)
		result.Trace = append(result.Trace, resolutionEvent(h.nextSeq(), "setup", step.As, res))
	}
	return nil
}

func (h *Harness) resolve(ctx context.Context, step ResolveStep) (engine.Resolution, error) {
	addr, err := step.address()
	if err != nil {
		return engine.Resolution{}, err
	}
	trust := engine.TrustHigh
	if step.Trust != "" {
		if trust, err = engine.ParseTrust(step.Trust); err != nil {
			return engine.Resolution{}, err
		}
	}
	return h.engine.ResolveDetailed(ctx, addr, trust, step.Self)
}

// executeStep runs one flow step and checks its expectation.
// Step errors are failures of the scenario, not of the run; only
// malformed input aborts.
func (h *Harness) executeStep(ctx context.Context, index int, step FlowStep, result *Result) error {
	where := fmt.Sprintf("flow[%d] %s", index, step.Kind())
	expect := step.Expect
	if expect == nil {
		expect = &Expect{}
	}

	var stepErr error
	switch step.Kind() {
	case StepResolve:
		res, err := h.resolve(ctx, *step.Resolve)
		ev := resolutionEvent(h.nextSeq(), StepResolve, step.Resolve.As, res)
		if err != nil {
			ev.Error = err.Error()
			stepErr = err
		} else {
			h.checkResolution(where, res, expect, result)
			h.bind(step.Resolve.As, res.ID)
		}
		result.Trace = append(result.Trace, ev)

	case StepStoreContact:
		id := h.handles[step.StoreContact.Recipient]
		stepErr = h.engine.StoreContact(ctx, id, step.StoreContact.contact())
		result.Trace = append(result.Trace, h.storeEvent(StepStoreContact, step.StoreContact.Recipient, stepErr))

	case StepStoreProfile:
		p, err := step.StoreProfile.profile()
		if err != nil {
			return err
		}
		id := h.handles[step.StoreProfile.Recipient]
		stepErr = h.engine.StoreProfile(ctx, id, p)
		result.Trace = append(result.Trace, h.storeEvent(StepStoreProfile, step.StoreProfile.Recipient, stepErr))

	case StepStoreProfileKey:
		raw, err := base64.StdEncoding.DecodeString(step.StoreProfileKey.Key)
		if err != nil {
			return fmt.Errorf("profile key: %w", err)
		}
		key, err := recipient.ParseProfileKey(raw)
		if err != nil {
			return err
		}
		id := h.handles[step.StoreProfileKey.Recipient]
		changed, err := h.engine.StoreProfileKey(ctx, id, key, step.StoreProfileKey.Full)
		stepErr = err
		result.Trace = append(result.Trace, h.storeEvent(StepStoreProfileKey, step.StoreProfileKey.Recipient, stepErr))
		if err == nil && expect.Changed != nil && *expect.Changed != changed {
			result.AddError(fmt.Sprintf("%s: expected changed=%t, got %t", where, *expect.Changed, changed))
		}

	case StepConcurrent:
		stepErr = h.executeConcurrent(ctx, where, step.Concurrent, expect, result)
	}

	switch {
	case stepErr != nil && expect.Error == "":
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", where, stepErr))
	case stepErr != nil && !strings.Contains(stepErr.Error(), expect.Error):
		result.AddError(fmt.Sprintf("%s: expected error containing %q, got %v", where, expect.Error, stepErr))
	case stepErr == nil && expect.Error != "":
		result.AddError(fmt.Sprintf("%s: expected error containing %q, got success", where, expect.Error))
	}
	return nil
}

// executeConcurrent resolves every claim of the step in parallel. Outcomes
// are left out of the trace since which caller creates is a race.
func (h *Harness) executeConcurrent(ctx context.Context, where string, step *ConcurrentStep, expect *Expect, result *Result) error {
	results := make([]engine.Resolution, len(step.Resolves))
	var g errgroup.Group
	for i, r := range step.Resolves {
		g.Go(func() error {
			res, err := h.resolve(ctx, r)
			if err != nil {
				return fmt.Errorf("resolves[%d]: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, r := range step.Resolves {
		res := results[i]
		ev := resolutionEvent(h.nextSeq(), StepConcurrent, r.As, res)
		ev.Outcome = ""
		result.Trace = append(result.Trace, ev)
		h.bind(r.As, res.ID)
		if expect.Handle != "" && !res.ID.Equal(h.handles[expect.Handle]) {
			result.AddError(fmt.Sprintf("%s: resolves[%d]: expected handle %s (%s), got %s",
				where, i, expect.Handle, h.handles[expect.Handle], res.ID))
		}
	}
	h.bind(step.As, results[0].ID)

	if expect.Same {
		for i := 1; i < len(results); i++ {
			if !results[i].ID.Equal(results[0].ID) {
				result.AddError(fmt.Sprintf("%s: expected one recipient, resolves[0]=%s resolves[%d]=%s",
					where, results[0].ID, i, results[i].ID))
			}
		}
	}
	return nil
}

func (h *Harness) checkResolution(where string, res engine.Resolution, expect *Expect, result *Result) {
	if expect.Handle != "" && !res.ID.Equal(h.handles[expect.Handle]) {
		result.AddError(fmt.Sprintf("%s: expected handle %s (%s), got %s",
			where, expect.Handle, h.handles[expect.Handle], res.ID))
	}
	if expect.Outcome != "" && string(res.Outcome) != expect.Outcome {
		result.AddError(fmt.Sprintf("%s: expected outcome %s, got %s", where, expect.Outcome, res.Outcome))
	}
	if expect.MergedFrom != nil {
		if want := h.frozenIDs(expect.MergedFrom); !slices.Equal(want, res.Absorbed) {
			result.AddError(fmt.Sprintf("%s: expected merged_from %v, got %v", where, want, res.Absorbed))
		}
	}
	if expect.Stripped != nil {
		if want := h.frozenIDs(expect.Stripped); !slices.Equal(want, res.Stripped) {
			result.AddError(fmt.Sprintf("%s: expected stripped %v, got %v", where, want, res.Stripped))
		}
	}
}

// frozenIDs returns the bound ids of aliases, ascending.
func (h *Harness) frozenIDs(aliases []string) []engine.FrozenID {
	out := make([]engine.FrozenID, 0, len(aliases))
	for _, alias := range aliases {
		out = append(out, h.frozen[alias])
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (h *Harness) storeEvent(step, alias string, err error) TraceEvent {
	ev := TraceEvent{
		Seq:       h.nextSeq(),
		Step:      step,
		Alias:     alias,
		Recipient: h.handles[alias].Value().Int64(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func resolutionEvent(seq int64, step, alias string, res engine.Resolution) TraceEvent {
	return TraceEvent{
		Seq:       seq,
		Step:      step,
		Alias:     alias,
		Recipient: res.ID.Value().Int64(),
		Outcome:   string(res.Outcome),
		Absorbed:  frozenInts(res.Absorbed),
		Stripped:  frozenInts(res.Stripped),
	}
}

func frozenInts(ids []engine.FrozenID) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = id.Int64()
	}
	return out
}

// capture copies the final directory, redirects and merges into result.
func (h *Harness) capture(ctx context.Context, result *Result) error {
	records, err := h.engine.List(ctx, store.ListFilter{})
	if err != nil {
		return err
	}
	for _, rec := range records {
		result.Recipients = append(result.Recipients, recordSnapshot(rec))
	}

	for from, to := range h.engine.Redirects().Snapshot() {
		result.Redirects[from.String()] = to.Int64()
	}

	h.mu.Lock()
	result.Merges = append(result.Merges, h.merges...)
	h.mu.Unlock()
	return nil
}

func (i Identifiers) address() (address.Address, error) {
	return address.Parse(i.ACI, i.PNI, i.Number, i.Username)
}

func (c *ContactStep) contact() *recipient.Contact {
	return &recipient.Contact{
		GivenName:         c.GivenName,
		FamilyName:        c.FamilyName,
		Color:             c.Color,
		MessageExpiration: time.Duration(c.ExpirationSeconds) * time.Second,
		Blocked:           c.Blocked,
		ProfileSharing:    c.ProfileSharing,
	}
}

func (p *ProfileStep) profile() (*recipient.Profile, error) {
	mode, err := recipient.ParseUnidentifiedAccessMode(p.UnidentifiedAccess)
	if err != nil {
		return nil, err
	}
	return &recipient.Profile{
		GivenName:              p.GivenName,
		FamilyName:             p.FamilyName,
		About:                  p.About,
		UnidentifiedAccessMode: mode,
		Capabilities:           p.Capabilities,
	}, nil
}

// recordSnapshot renders a recipient row with only the fields that are set.
func recordSnapshot(rec recipient.Record) map[string]any {
	m := map[string]any{"id": rec.ID}
	addr := rec.Address
	if addr.HasACI() {
		m["aci"] = addr.ACI().String()
	}
	if addr.HasPNI() {
		m["pni"] = addr.PNI().RawString()
	}
	if addr.HasNumber() {
		m["number"] = addr.Number()
	}
	if addr.HasUsername() {
		m["username"] = addr.Username()
	}
	if rec.Contact != nil {
		m["contact"] = sparse(contactFields(rec.Contact))
	}
	if rec.Profile != nil {
		m["profile"] = sparse(profileFields(rec.Profile))
	}
	if len(rec.ProfileKey) > 0 {
		m["has_profile_key"] = true
	}
	if len(rec.ProfileKeyCredential) > 0 {
		m["has_profile_key_credential"] = true
	}
	if !rec.UnregisteredAt.IsZero() {
		m["unregistered_at"] = rec.UnregisteredAt.UnixMilli()
	}
	return m
}

func contactFields(c *recipient.Contact) map[string]any {
	return map[string]any{
		"given_name":         c.GivenName,
		"family_name":        c.FamilyName,
		"color":              c.Color,
		"expiration_seconds": int64(c.MessageExpiration / time.Second),
		"blocked":            c.Blocked,
		"archived":           c.Archived,
		"profile_sharing":    c.ProfileSharing,
		"hidden":             c.Hidden,
	}
}

func profileFields(p *recipient.Profile) map[string]any {
	m := map[string]any{
		"given_name":          p.GivenName,
		"family_name":         p.FamilyName,
		"about":               p.About,
		"unidentified_access": string(p.UnidentifiedAccessMode),
	}
	if len(p.Capabilities) > 0 {
		m["capabilities"] = slices.Clone(p.Capabilities)
	}
	return m
}

// sparse drops zero values.
func sparse(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch v {
		case "", int64(0), false:
			continue
		}
		out[k] = v
	}
	return out
}
