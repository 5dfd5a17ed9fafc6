package wizard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aldoetobex/assignment-portal/internal/marketplace"
	"github.com/aldoetobex/assignment-portal/internal/stage"
	"github.com/aldoetobex/assignment-portal/pkg/models"
)

var ErrNoSuchFile = errors.New("no file at that position")

// Submission is handed to a SubmitFunc. Draft is the audit form of the
// draft: fields and file metadata only.
type Submission struct {
	SessionID string
	Draft     []byte
	Request   *marketplace.CreateAssignmentRequest
}

// SubmitFunc performs the create request for a session.
type SubmitFunc func(ctx context.Context, sub Submission) (*marketplace.CreatedAssignment, error)

// Result is what a successful submission leaves behind once the draft is gone.
type Result struct {
	AssignmentID string       `json:"assignment_id"`
	Stage        models.Stage `json:"stage"`
	SubmittedAt  time.Time    `json:"submitted_at"`
	// Display is how the confirmation page renders Stage.
	Display stage.Descriptor `json:"stage_display"`
}

// Snapshot is a consistent copy of a session, safe to serialize.
type Snapshot struct {
	ID         string      `json:"id"`
	State      State       `json:"state"`
	Step       int         `json:"step"`
	Draft      Draft       `json:"draft"`
	Errors     FieldErrors `json:"errors,omitempty"`
	Failure    string      `json:"failure,omitempty"`
	Submitting bool        `json:"submitting"`
	Result     *Result     `json:"result,omitempty"`
}

/*
Wizard is one student's submission session.

Every mutation runs under mu. Submit is the only method that releases the
lock while work is outstanding: it snapshots the draft, marks the session
in flight, performs the request unlocked and then applies the outcome only
if the session is still alive. A discarded session swallows late answers.
*/
type Wizard struct {
	mu sync.Mutex

	id      string
	owner   string
	state   State
	draft   Draft
	errors  FieldErrors
	failure string
	result  *Result

	inFlight bool
	alive    bool
	touched  time.Time
	now      func() time.Time
}

func newWizard(id, owner string, now func() time.Time) *Wizard {
	return &Wizard{
		id:      id,
		owner:   owner,
		state:   StateSelectCategory,
		alive:   true,
		touched: now(),
		now:     now,
	}
}

func (w *Wizard) ID() string    { return w.id }
func (w *Wizard) Owner() string { return w.owner }

func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Wizard) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:         w.id,
		State:      w.state,
		Step:       w.state.Step(),
		Draft:      w.draft.clone(),
		Failure:    w.failure,
		Submitting: w.inFlight,
	}
	if s.Draft.Files == nil {
		s.Draft.Files = []FileHandle{}
	}
	if len(w.errors) > 0 {
		s.Errors = make(FieldErrors, len(w.errors))
		for k, v := range w.errors {
			s.Errors[k] = append([]string(nil), v...)
		}
	}
	if w.result != nil {
		r := *w.result
		s.Result = &r
	}
	return s
}

// editable guards every draft mutation.
func (w *Wizard) editable(in State) error {
	switch {
	case !w.alive:
		return ErrSessionClosed
	case w.inFlight:
		return ErrSubmissionInFlight
	case w.state != in:
		return ErrNotEditable
	}
	return nil
}

// SelectType sets the category. The subtype is kept even when it no longer
// fits; the details guard reports it.
func (w *Wizard) SelectType(t models.AssignmentType) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(StateSelectCategory); err != nil {
		return w.snapshotLocked(), err
	}
	w.draft.Type = t
	delete(w.errors, "type")
	w.touched = w.now()
	return w.snapshotLocked(), nil
}

func (w *Wizard) UpdateDetails(p DetailsPatch) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(StateEnterDetails); err != nil {
		return w.snapshotLocked(), err
	}
	p.apply(&w.draft)
	w.touched = w.now()
	return w.snapshotLocked(), nil
}

func (w *Wizard) SelectFiles(cands []FileCandidate) (FileSelection, Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(StateEnterDetails); err != nil {
		return FileSelection{}, w.snapshotLocked(), err
	}
	sel := w.draft.selectFiles(cands)
	if len(sel.Accepted) > 0 {
		delete(w.errors, "files")
	}
	w.touched = w.now()
	return sel, w.snapshotLocked(), nil
}

func (w *Wizard) RemoveFile(i int) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(StateEnterDetails); err != nil {
		return w.snapshotLocked(), err
	}
	if !w.draft.removeFile(i) {
		return w.snapshotLocked(), ErrNoSuchFile
	}
	w.touched = w.now()
	return w.snapshotLocked(), nil
}

// Next moves forward when the guard allows it. Field errors come back in the
// snapshot and leave the state unchanged.
func (w *Wizard) Next() (Snapshot, error) {
	return w.step(ActionNext)
}

func (w *Wizard) Back() (Snapshot, error) {
	return w.step(ActionBack)
}

func (w *Wizard) step(a Action) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.alive {
		return w.snapshotLocked(), ErrSessionClosed
	}
	if w.inFlight {
		return w.snapshotLocked(), ErrSubmissionInFlight
	}
	next, errs, err := Transition(w.state, a, &w.draft, w.now())
	if err != nil {
		return w.snapshotLocked(), err
	}
	w.state = next
	w.errors = errs
	if next != StateSubmissionFailed {
		w.failure = ""
	}
	w.touched = w.now()
	return w.snapshotLocked(), nil
}

// Submit sends the draft once. A session that already succeeded returns its
// recorded result without calling submit again. The returned error is the
// submission failure, if any; its text is also in Snapshot.Failure.
func (w *Wizard) Submit(ctx context.Context, submit SubmitFunc) (Snapshot, error) {
	w.mu.Lock()
	switch {
	case !w.alive:
		defer w.mu.Unlock()
		return w.snapshotLocked(), ErrSessionClosed
	case w.state == StateSubmitted:
		defer w.mu.Unlock()
		return w.snapshotLocked(), nil
	case w.inFlight:
		defer w.mu.Unlock()
		return w.snapshotLocked(), ErrSubmissionInFlight
	}

	now := w.now()
	next, errs, err := Transition(w.state, ActionSubmit, &w.draft, now)
	if err != nil {
		defer w.mu.Unlock()
		return w.snapshotLocked(), err
	}
	w.touched = now
	if len(errs) > 0 {
		defer w.mu.Unlock()
		w.state, w.errors = next, errs
		return w.snapshotLocked(), nil
	}
	req, err := BuildCreateRequest(&w.draft)
	if err != nil {
		defer w.mu.Unlock()
		return w.snapshotLocked(), err
	}
	w.state, w.errors, w.failure = next, nil, ""
	w.inFlight = true
	sub := Submission{SessionID: w.id, Draft: w.draft.snapshotJSON(), Request: req}
	w.mu.Unlock()

	created, subErr := submit(ctx, sub)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight = false
	if !w.alive {
		return w.snapshotLocked(), ErrSessionClosed
	}
	w.touched = w.now()

	if subErr != nil {
		w.state, _, _ = Transition(w.state, ActionFail, nil, w.touched)
		w.failure = FailureMessage(subErr)
		return w.snapshotLocked(), subErr
	}
	w.state, _, _ = Transition(w.state, ActionSucceed, nil, w.touched)
	w.result = &Result{
		AssignmentID: created.ID,
		Stage:        created.Stage,
		SubmittedAt:  created.SubmittedAt,
		Display:      stage.Render(created.Stage),
	}
	w.draft = Draft{}
	return w.snapshotLocked(), nil
}

// restore marks a session submitted from an earlier recorded success.
func (w *Wizard) restore(r Result) Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateSubmitted
	w.result = &r
	w.draft = Draft{}
	w.errors, w.failure = nil, ""
	return w.snapshotLocked()
}

// Discard abandons the session. Any response still in flight is ignored.
func (w *Wizard) Discard() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.alive = false
	w.draft = Draft{}
}

func (w *Wizard) idleSince(now time.Time) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.touched), w.inFlight
}

// FailureMessage turns a submission error into the text shown on the review
// page. Marketplace messages pass through unchanged.
func FailureMessage(err error) string {
	var apiErr *marketplace.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, marketplace.ErrTransport):
		return "Could not reach the marketplace. Check your connection and try again."
	case errors.Is(err, context.DeadlineExceeded):
		return "The marketplace took too long to answer. Please try again."
	case errors.Is(err, context.Canceled):
		return "Submission was interrupted. Please try again."
	default:
		return err.Error()
	}
}
