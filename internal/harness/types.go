package harness

// TraceEvent records one engine call made by a scenario.
type TraceEvent struct {
	Seq       int64   `json:"seq"`
	Step      string  `json:"step"`
	Alias     string  `json:"alias,omitempty"`
	Recipient int64   `json:"recipient"`
	Outcome   string  `json:"outcome,omitempty"`
	Absorbed  []int64 `json:"absorbed,omitempty"`
	Stripped  []int64 `json:"stripped,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// MergeEvent is a merge notification observed during the run.
type MergeEvent struct {
	ID        string  `json:"id"`
	Surviving int64   `json:"surviving"`
	Absorbed  []int64 `json:"absorbed"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every flow call in order.
	Trace []TraceEvent `json:"trace"`

	// Merges are the merge notifications, in delivery order.
	Merges []MergeEvent `json:"merges"`

	// Errors contains validation error messages; empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Recipients is the final directory, ordered by id.
	Recipients []map[string]any `json:"recipients"`

	// Redirects maps absorbed recipient ids to their survivors.
	Redirects map[string]any `json:"redirects"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []TraceEvent{},
		Merges:     []MergeEvent{},
		Errors:     []string{},
		Recipients: []map[string]any{},
		Redirects:  map[string]any{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Snapshot returns the deterministic parts of the result as a canonical map.
// Errors and the pass flag are excluded; golden files pin behavior, not verdicts.
func (r *Result) Snapshot(scenarioName string) map[string]any {
	trace := make([]any, len(r.Trace))
	for i, ev := range r.Trace {
		m := map[string]any{
			"seq":       ev.Seq,
			"step":      ev.Step,
			"recipient": ev.Recipient,
		}
		if ev.Alias != "" {
			m["alias"] = ev.Alias
		}
		if ev.Outcome != "" {
			m["outcome"] = ev.Outcome
		}
		if len(ev.Absorbed) > 0 {
			m["absorbed"] = ev.Absorbed
		}
		if len(ev.Stripped) > 0 {
			m["stripped"] = ev.Stripped
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		trace[i] = m
	}

	merges := make([]any, len(r.Merges))
	for i, m := range r.Merges {
		merges[i] = map[string]any{
			"id":        m.ID,
			"surviving": m.Surviving,
			"absorbed":  m.Absorbed,
		}
	}

	recipients := make([]any, len(r.Recipients))
	for i, rec := range r.Recipients {
		recipients[i] = rec
	}

	return map[string]any{
		"scenario_name": scenarioName,
		"trace":         trace,
		"merges":        merges,
		"recipients":    recipients,
		"redirects":     r.Redirects,
	}
}

// SnapshotJSON renders Snapshot as canonical JSON.
func (r *Result) SnapshotJSON(scenarioName string) ([]byte, error) {
	return MarshalCanonical(r.Snapshot(scenarioName))
}
