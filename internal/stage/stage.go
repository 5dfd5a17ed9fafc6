// Package stage is the single place that knows how an assignment stage looks
// on screen and where it sits on the progress bar. Admin, student and
// freelancer projections all read from here.
package stage

import (
	"fmt"

	"github.com/aldoetobex/assignment-portal/pkg/models"
)

// Descriptor is the display metadata of one stage.
type Descriptor struct {
	Key             models.Stage `json:"key"`
	Label           string       `json:"label"`
	TextColor       string       `json:"text_color"`
	BackgroundColor string       `json:"background_color"`
}

// ConfigurationError reports a stage key the portal does not know.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unknown stage %q", e.Key)
}

// MainSequence is the ordered happy path shown as a five-step progress bar.
var MainSequence = []models.Stage{
	models.StageSubmitted,
	models.StageAssigned,
	models.StageInProgress,
	models.StageUnderReview,
	models.StageCompleted,
}

const (
	neutralText       = "#374151"
	neutralBackground = "#F3F4F6"
)

var descriptors = map[models.Stage]Descriptor{
	models.StageSubmitted:   {models.StageSubmitted, "Submitted", "#1D4ED8", "#DBEAFE"},
	models.StageAssigned:    {models.StageAssigned, "Assigned", "#4338CA", "#E0E7FF"},
	models.StageInProgress:  {models.StageInProgress, "In Progress", "#B45309", "#FEF3C7"},
	models.StageUnderReview: {models.StageUnderReview, "Under Review", "#7E22CE", "#F3E8FF"},
	models.StageCompleted:   {models.StageCompleted, "Completed", "#15803D", "#DCFCE7"},
	models.StageRevision:    {models.StageRevision, "Revision", "#C2410C", "#FFEDD5"},
	models.StageCancelled:   {models.StageCancelled, "Cancelled", "#B91C1C", "#FEE2E2"},
}

// order in which All lists the stages
var allStages = []models.Stage{
	models.StageSubmitted,
	models.StageAssigned,
	models.StageInProgress,
	models.StageUnderReview,
	models.StageRevision,
	models.StageCompleted,
	models.StageCancelled,
}

// Known reports whether key is one of the seven stages.
func Known(key models.Stage) bool {
	_, ok := descriptors[key]
	return ok
}

// Describe returns the display metadata of key. For an unknown key it returns
// the neutral fallback (raw key, gray) together with a *ConfigurationError,
// so callers can log and still render.
func Describe(key models.Stage) (Descriptor, error) {
	if d, ok := descriptors[key]; ok {
		return d, nil
	}
	return Fallback(key), &ConfigurationError{Key: string(key)}
}

// Render is Describe for page-level code that must never fail.
func Render(key models.Stage) Descriptor {
	d, _ := Describe(key)
	return d
}

// Fallback is the neutral rendering of a stage the portal cannot describe.
func Fallback(key models.Stage) Descriptor {
	label := string(key)
	if label == "" {
		label = "Unknown"
	}
	return Descriptor{
		Key:             key,
		Label:           label,
		TextColor:       neutralText,
		BackgroundColor: neutralBackground,
	}
}

// All lists the descriptors of every stage in display order.
func All() []Descriptor {
	out := make([]Descriptor, 0, len(allStages))
	for _, s := range allStages {
		out = append(out, descriptors[s])
	}
	return out
}

// ProgressIndex maps key to its position on mainSequence. Revision sits at
// the under_review position; cancelled and anything not on the sequence
// return -1 (nothing filled).
func ProgressIndex(key models.Stage, mainSequence []models.Stage) int {
	switch key {
	case models.StageCancelled:
		return -1
	case models.StageRevision:
		key = models.StageUnderReview
	}
	for i, s := range mainSequence {
		if s == key {
			return i
		}
	}
	return -1
}

// Step is one cell of the progress bar.
type Step struct {
	Key    models.Stage `json:"key"`
	Label  string       `json:"label"`
	Filled bool         `json:"filled"`
}

// Bar is the progress projection of a stage over MainSequence.
type Bar struct {
	Index int    `json:"index"`
	Steps []Step `json:"steps"`
}

// Progress builds the progress bar for key. Steps up to and including the
// index are filled.
func Progress(key models.Stage) Bar {
	idx := ProgressIndex(key, MainSequence)
	steps := make([]Step, len(MainSequence))
	for i, s := range MainSequence {
		steps[i] = Step{Key: s, Label: descriptors[s].Label, Filled: i <= idx}
	}
	return Bar{Index: idx, Steps: steps}
}

// HistoryIsAvailable reports whether rec carries a complete, ordered history:
// non-empty, only known stages, non-decreasing timestamps, and ending in the
// record's current stage. Anything else is rendered as unavailable rather than
// as a misleading partial timeline.
func HistoryIsAvailable(rec *models.Assignment) bool {
	if rec == nil || len(rec.History) == 0 {
		return false
	}
	for i, ev := range rec.History {
		if !Known(ev.Stage) {
			return false
		}
		if i > 0 && ev.Timestamp.Before(rec.History[i-1].Timestamp) {
			return false
		}
	}
	return rec.History[len(rec.History)-1].Stage == rec.Stage
}
