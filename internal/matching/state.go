package matching

// Phase is the controller's current step in the submission workflow
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// State is a serializable snapshot of the submission workflow.
//
// Result is only set while Phase is PhaseSucceeded. Err is always set in PhaseFailed and
// may also be set in other phases after a rejected (validation) submit.
type State struct {
	Phase  Phase        `json:"phase"`
	Result *MatchResult `json:"result,omitempty"`
	Err    *Error       `json:"error,omitempty"`

	// Token identifies the dispatch the state belongs to. Responses carrying any other
	// token are stale and dropped.
	Token string `json:"-"`
}

// Event drives a Transition
type Event interface {
	event()
}

// Rejected records a submit that failed local validation. No request was sent.
type Rejected struct {
	Err *Error
}

// Started records a request being dispatched under Token
type Started struct {
	Token string
}

// Resolved records a successful response for the dispatch identified by Token
type Resolved struct {
	Token  string
	Result *MatchResult
}

// Errored records a failed response for the dispatch identified by Token
type Errored struct {
	Token string
	Err   *Error
}

// Cleared records a reset
type Cleared struct{}

func (Rejected) event() {}
func (Started) event()  {}
func (Resolved) event() {}
func (Errored) event()  {}
func (Cleared) event()  {}

// Transition returns the state that follows s after e. It has no side effects.
func Transition(s State, e Event) State {
	switch e := e.(type) {
	case Rejected:
		if s.Phase == PhaseSubmitting {
			return s
		}
		s.Err = e.Err
		return s

	case Started:
		if s.Phase == PhaseSubmitting {
			return s
		}
		return State{Phase: PhaseSubmitting, Token: e.Token}

	case Resolved:
		if !s.awaiting(e.Token) {
			return s
		}
		return State{Phase: PhaseSucceeded, Result: e.Result, Token: e.Token}

	case Errored:
		if !s.awaiting(e.Token) {
			return s
		}
		return State{Phase: PhaseFailed, Err: e.Err, Token: e.Token}

	case Cleared:
		return State{Phase: PhaseIdle}
	}
	return s
}

// awaiting reports whether a response for token is still wanted
func (s State) awaiting(token string) bool {
	return s.Phase == PhaseSubmitting && token != "" && s.Token == token
}

// Current returns the result only while the state is succeeded
func (s State) Current() *MatchResult {
	if s.Phase != PhaseSucceeded {
		return nil
	}
	return s.Result
}
