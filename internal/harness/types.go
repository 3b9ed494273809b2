package harness

import "github.com/roach88/brewtune/internal/study"

// TraceEvent records one thing that happened during a scenario.
type TraceEvent struct {
	Seq    int    `json:"seq"`
	Type   string `json:"type"` // "seed", "run", "prefer" or "skip"
	Trials []int  `json:"trials,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool

	Trace  []TraceEvent
	Errors []string

	// Trials is the study's final trial list.
	Trials []study.TrialRecord

	// GateOpen is the gate's answer after the last step.
	GateOpen bool
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(typ string, trials []int, detail string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    len(r.Trace) + 1,
		Type:   typ,
		Trials: trials,
		Detail: detail,
	})
}

func (r *Result) trial(number int) (study.TrialRecord, bool) {
	for _, t := range r.Trials {
		if t.Number == number {
			return t, true
		}
	}
	return study.TrialRecord{}, false
}
