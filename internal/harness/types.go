package harness

// TraceEvent records the outcome of one setup or flow step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Action  string `json:"action"`
	Machine string `json:"machine"`
	Peer    string `json:"peer,omitempty"`
	Mode    string `json:"mode,omitempty"`

	// Considered and Added are Machine's side of the step. For insert and
	// seal, Considered is 1 and Added is 1 when a row was written.
	Considered int `json:"considered"`
	Added      int `json:"added"`

	// PeerConsidered and PeerAdded are the responder's side of stdio_sync.
	PeerConsidered int `json:"peer_considered,omitempty"`
	PeerAdded      int `json:"peer_added,omitempty"`

	Failed bool `json:"failed,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step met its expectation and
	// every assertion held.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State maps each machine to its sorted natural keys after the flow.
	State map[string][]string `json:"state,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends ev to the trace, numbering it.
func (r *Result) AddEvent(ev TraceEvent) {
	ev.Step = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
