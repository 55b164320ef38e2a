package harness

// Trace event types.
const (
	EventCommand = "command"
	EventLine    = "line"
)

// TraceEvent is one console interaction during a scenario: a command the
// operation sent, or a log line the transcript answered with.
type TraceEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Seq  int64  `json:"seq"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when the expectation and every assertion held.
	Pass bool `json:"pass"`

	// Outcome and Status are what the operation reported.
	Outcome string `json:"outcome"`
	Status  string `json:"status"`

	// Trace holds commands and replayed lines in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(typ, text string) {
	r.Trace = append(r.Trace, TraceEvent{Type: typ, Text: text, Seq: int64(len(r.Trace) + 1)})
}

// Commands returns the command texts in the trace, in order.
func (r *Result) Commands() []string {
	var out []string
	for _, ev := range r.Trace {
		if ev.Type == EventCommand {
			out = append(out, ev.Text)
		}
	}
	return out
}
