// Package assignments projects marketplace records into what each role is
// allowed to see, and runs the admin's staffing changes.
package assignments

import (
	"time"

	"go.uber.org/zap"

	"github.com/aldoetobex/assignment-portal/internal/stage"
	"github.com/aldoetobex/assignment-portal/pkg/models"
	"github.com/aldoetobex/assignment-portal/pkg/sanitize"
)

const HistoryUnavailable = "Stage history is not available for this assignment"

// Contact is a person attached to an assignment. Fields a role may not see
// are left empty.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// View is an assignment as one role sees it.
type View struct {
	ID               string                `json:"id"`
	Title            string                `json:"title"`
	Type             models.AssignmentType `json:"type"`
	Subtype          string                `json:"subtype"`
	Subject          string                `json:"subject,omitempty"`
	AcademicLevel    models.AcademicLevel  `json:"academic_level"`
	WordCount        string                `json:"word_count,omitempty"`
	ReferencingStyle string                `json:"referencing_style,omitempty"`
	Instructions     string                `json:"instructions,omitempty"`
	Files            []models.FileRef      `json:"files"`

	SubmittedAt time.Time `json:"submitted_at"`
	Deadline    time.Time `json:"deadline"`

	Stage    stage.Descriptor `json:"stage"`
	Progress stage.Bar        `json:"progress"`

	// History is nil when HistoryAvailable is false.
	History          []models.HistoryEvent `json:"history"`
	HistoryAvailable bool                  `json:"history_available"`
	HistoryMessage   string                `json:"history_message,omitempty"`

	TotalAmount      *models.Money `json:"total_amount,omitempty"`
	FreelancerAmount *models.Money `json:"freelancer_amount,omitempty"`
	// MarksObtained is nil until graded.
	MarksObtained *int `json:"marks_obtained"`

	Student    *Contact `json:"student,omitempty"`
	PM         *Contact `json:"pm,omitempty"`
	Freelancer *Contact `json:"freelancer,omitempty"`

	// StaffPending is set while a staffing change waits for the marketplace.
	StaffPending bool `json:"staff_pending"`
}

type Projector struct {
	log *zap.Logger
}

func NewProjector(log *zap.Logger) Projector {
	if log == nil {
		log = zap.NewNop()
	}
	return Projector{log: log}
}

// Project never fails: bad data degrades to a neutral rendering and a log line.
func (p Projector) Project(a *models.Assignment, role models.Role) View {
	desc, err := stage.Describe(a.Stage)
	if err != nil {
		p.log.Warn("assignment has unknown stage", zap.String("assignment", a.ID), zap.Error(err))
	}

	v := View{
		ID:               a.ID,
		Title:            a.Title,
		Type:             a.Type,
		Subtype:          a.Subtype,
		Subject:          a.Subject,
		AcademicLevel:    a.AcademicLevel,
		WordCount:        a.WordCount,
		ReferencingStyle: a.ReferencingStyle,
		Instructions:     a.Instructions,
		Files:            a.Files,
		SubmittedAt:      a.SubmittedAt,
		Deadline:         a.Deadline,
		Stage:            desc,
		Progress:         stage.Progress(a.Stage),
		MarksObtained:    p.marks(a),
		PM:               contact(a.PMName, a.PMPhone),
	}
	if v.Files == nil {
		v.Files = []models.FileRef{}
	}

	if stage.HistoryIsAvailable(a) {
		v.History = a.History
		v.HistoryAvailable = true
	} else {
		v.HistoryMessage = HistoryUnavailable
	}

	student := &Contact{Name: a.StudentName, Email: a.StudentEmail, Phone: a.StudentPhone}
	freelancer := contact(a.FreelancerName, a.FreelancerPhone)
	total, payout := a.TotalAmount, a.FreelancerAmount

	switch role {
	case models.RoleAdmin:
		v.TotalAmount, v.FreelancerAmount = &total, &payout
		v.Student, v.Freelancer = student, freelancer
	case models.RoleStudent:
		v.TotalAmount = &total
		v.Student = student
		if freelancer != nil {
			v.Freelancer = &Contact{Name: freelancer.Name}
		}
	case models.RoleFreelancer:
		v.FreelancerAmount = &payout
		v.Freelancer = freelancer
		v.Instructions = sanitize.RedactPII(a.Instructions)
	default:
		// unknown roles get the descriptive fields only
		v.PM = nil
	}
	return v
}

func (p Projector) marks(a *models.Assignment) *int {
	if a.MarksObtained == nil {
		return nil
	}
	m := *a.MarksObtained
	if m < 0 || m > 100 {
		p.log.Warn("assignment marks out of range", zap.String("assignment", a.ID), zap.Int("marks", m))
		return nil
	}
	return &m
}

func contact(name, phone *string) *Contact {
	if name == nil || *name == "" {
		return nil
	}
	c := &Contact{Name: *name}
	if phone != nil {
		c.Phone = *phone
	}
	return c
}
