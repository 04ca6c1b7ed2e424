package pipeline

import (
	"fmt"
	"time"

	"github.com/at-bus-load/pkg/atbus/models"
)

type State string

const (
	Requested State = "REQUESTED"
	Fetched   State = "FETCHED"
	Validated State = "VALIDATED"
	Staged    State = "STAGED"
	Loaded    State = "LOADED"
	Failed    State = "FAILED"
)

var next = map[State]State{
	Requested: Fetched,
	Fetched:   Validated,
	Validated: Staged,
	Staged:    Loaded,
}

// Terminal states accept no further transitions
func (s State) Terminal() bool {
	return s == Loaded || s == Failed
}

type Transition struct {
	From State
	To   State
	At   time.Time
}

// TransitionError is an attempt to move a run along an edge that does not exist
type TransitionError struct {
	Key  models.Key
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s -> %s", e.Key, e.From, e.To)
}

// Run tracks one key through the pipeline
type Run struct {
	ID      string
	Key     models.Key
	State   State
	History []Transition
	Err     error

	now func() time.Time
}

func NewRun(id string, key models.Key) *Run {
	return ResumeRun(id, key, Requested)
}

// ResumeRun starts tracking a key that an earlier invocation already took to state
func ResumeRun(id string, key models.Key, state State) *Run {
	return &Run{ID: id, Key: key, State: state, now: time.Now}
}

// Advance moves the run to the next state of the happy path
func (r *Run) Advance(to State) error {
	if r.State.Terminal() || next[r.State] != to {
		return &TransitionError{Key: r.Key, From: r.State, To: to}
	}
	r.record(to)
	return nil
}

// Fail moves the run to FAILED, keeping cause. It returns cause so callers
// can fail and return in one statement.
func (r *Run) Fail(cause error) error {
	if r.State.Terminal() {
		return &TransitionError{Key: r.Key, From: r.State, To: Failed}
	}
	r.Err = cause
	r.record(Failed)
	return cause
}

func (r *Run) record(to State) {
	r.History = append(r.History, Transition{From: r.State, To: to, At: r.now()})
	r.State = to
}

// Path lists the states the run went through, starting with its initial state
func (r *Run) Path() []State {
	if len(r.History) == 0 {
		return []State{r.State}
	}
	out := []State{r.History[0].From}
	for _, t := range r.History {
		out = append(out, t.To)
	}
	return out
}
