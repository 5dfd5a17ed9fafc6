package wizard

import (
	"errors"
	"strings"
	"time"

	"github.com/aldoetobex/assignment-portal/pkg/validation"
)

// State is the position of a wizard session.
type State string

const (
	StateSelectCategory   State = "select_category"
	StateEnterDetails     State = "enter_details"
	StateReview           State = "review"
	StateSubmitting       State = "submitting"
	StateSubmitted        State = "submitted"
	StateSubmissionFailed State = "submission_failed"
)

// Step is the page number the front end shows for s. A failed submission is
// rendered on the review page so the user can retry.
func (s State) Step() int {
	switch s {
	case StateSelectCategory:
		return 1
	case StateEnterDetails:
		return 2
	default:
		return 3
	}
}

// Action is a user or network event fed into Transition.
type Action string

const (
	ActionNext    Action = "next"
	ActionBack    Action = "back"
	ActionSubmit  Action = "submit"
	ActionSucceed Action = "succeed"
	ActionFail    Action = "fail"
)

var (
	ErrInvalidTransition  = errors.New("action not allowed in the current step")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrNotEditable        = errors.New("this field cannot be edited in the current step")
	ErrSessionNotFound    = errors.New("wizard session not found")
	ErrSessionClosed      = errors.New("wizard session was closed")
)

// FieldErrors maps a json field name to its messages.
type FieldErrors map[string][]string

func (fe FieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// Transition is the single authority on wizard state changes. It is pure:
// guards read the draft but never change it. A blocked forward move returns
// the current state together with the field errors explaining why.
func Transition(from State, a Action, d *Draft, now time.Time) (State, FieldErrors, error) {
	switch a {
	case ActionNext:
		switch from {
		case StateSelectCategory:
			if errs := validateCategory(d); len(errs) > 0 {
				return from, errs, nil
			}
			return StateEnterDetails, nil, nil
		case StateEnterDetails:
			if errs := ValidateDetails(d, now); len(errs) > 0 {
				return from, errs, nil
			}
			return StateReview, nil, nil
		}

	case ActionBack:
		switch from {
		case StateSelectCategory:
			return from, nil, nil
		case StateEnterDetails:
			return StateSelectCategory, nil, nil
		case StateReview, StateSubmissionFailed:
			return StateEnterDetails, nil, nil
		}

	case ActionSubmit:
		if from == StateReview || from == StateSubmissionFailed {
			// Time moves on while the user reads the review page.
			if errs := ValidateDetails(d, now); len(errs) > 0 {
				return StateEnterDetails, errs, nil
			}
			return StateSubmitting, nil, nil
		}

	case ActionSucceed:
		if from == StateSubmitting {
			return StateSubmitted, nil, nil
		}

	case ActionFail:
		if from == StateSubmitting {
			return StateSubmissionFailed, nil, nil
		}
	}
	return from, nil, ErrInvalidTransition
}

func validateCategory(d *Draft) FieldErrors {
	errs := FieldErrors{}
	switch {
	case d.Type == "":
		errs.add("type", "Select a category to continue")
	case !d.Type.Valid():
		errs.add("type", "Value is not allowed")
	}
	return errs
}

// detailsInput is the struct validator sees for the details step.
type detailsInput struct {
	Subtype          string `json:"subtype" validate:"required"`
	AcademicLevel    string `json:"academic_level" validate:"required,academic_level"`
	Title            string `json:"title" validate:"notblank,max=200"`
	Subject          string `json:"subject" validate:"max=120"`
	WordCount        string `json:"word_count" validate:"max=20"`
	Deadline         string `json:"deadline" validate:"notblank"`
	ReferencingStyle string `json:"referencing_style" validate:"referencing_style"`
	Instructions     string `json:"instructions" validate:"max=10000"`
}

// ValidateDetails checks everything the Step2 -> Step3 guard requires. It
// never touches the draft.
func ValidateDetails(d *Draft, now time.Time) FieldErrors {
	errs := FieldErrors{}

	in := detailsInput{
		Subtype:          d.Subtype,
		AcademicLevel:    string(d.AcademicLevel),
		Title:            d.Title,
		Subject:          d.Subject,
		WordCount:        d.WordCount,
		Deadline:         d.Deadline,
		ReferencingStyle: d.ReferencingStyle,
		Instructions:     d.Instructions,
	}
	if verrs, err := validation.Validate(in); err != nil {
		errs.add("_", err.Error())
	} else {
		for field, msgs := range verrs {
			errs[field] = append(errs[field], msgs...)
		}
	}

	if _, bad := errs["subtype"]; !bad && !d.Type.HasSubtype(d.Subtype) {
		errs.add("subtype", "Not available for the selected category")
	}

	if _, bad := errs["deadline"]; !bad {
		deadline, err := ParseDeadline(d.Deadline)
		switch {
		case errors.Is(err, ErrDeadlineNoZone):
			errs.add("deadline", "Include a time zone offset, e.g. 2026-10-20T12:00:00+05:30")
		case err != nil:
			errs.add("deadline", "Enter a valid date")
		case !deadline.After(now):
			errs.add("deadline", "Deadline must be in the future")
		}
	}

	if len(d.Files) > MaxFiles {
		errs.add("files", "At most 5 files can be attached")
	}
	return errs
}

// ErrDeadlineNoZone is returned for a date or wall-clock time without a UTC
// offset. The instant it names depends on where the student is.
var ErrDeadlineNoZone = errors.New("deadline has no time zone offset")

var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDeadline accepts RFC 3339 with an explicit offset, "Z" included.
// Browser datetime-local and date values are rejected with ErrDeadlineNoZone.
func ParseDeadline(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t.UTC(), nil
	}
	for _, layout := range zonelessLayouts {
		if _, lerr := time.Parse(layout, s); lerr == nil {
			return time.Time{}, ErrDeadlineNoZone
		}
	}
	return time.Time{}, err
}
