package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Phase   string   `json:"phase"` // "setup" or "flow"
	Step    int      `json:"step"`
	Family  string   `json:"family"`
	Signer  string   `json:"signer,omitempty"`
	Payload string   `json:"payload,omitempty"`
	Outcome string   `json:"outcome"`
	EventID string   `json:"event_id,omitempty"`
	Changes []string `json:"changes,omitempty"` // "set <address>" or "delete <address>"
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Ledger is the final ledger state, one "address value" line per key
	// in address order.
	Ledger []string `json:"ledger"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Ledger: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcomes counts flow steps by outcome.
func (r *Result) Outcomes() map[string]int {
	counts := make(map[string]int)
	for _, ev := range r.Trace {
		if ev.Phase == "flow" {
			counts[ev.Outcome]++
		}
	}
	return counts
}
