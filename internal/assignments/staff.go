package assignments

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/aldoetobex/assignment-portal/internal/marketplace"
	"github.com/aldoetobex/assignment-portal/pkg/models"
)

var ErrStaffPending = errors.New("staff change already pending")

// Marketplace is the part of the marketplace client this package reads and writes.
type Marketplace interface {
	GetAssignment(ctx context.Context, token, id string) (*models.Assignment, error)
	ListAssignments(ctx context.Context, token string, p marketplace.ListParams) (*marketplace.AssignmentPage, error)
	UpdateStaff(ctx context.Context, token, id string, in marketplace.StaffUpdate) (*models.Assignment, error)
}

// StaffOutcome is the end of a staffing change. Assignment is the record as
// it now stands: the updated one when committed, the previous one when the
// change was rolled back.
type StaffOutcome struct {
	Committed  bool
	Assignment *models.Assignment
	Err        error
}

// Staffing runs PM and freelancer assignment in two phases. The change is
// visible as pending to every reader while the marketplace call runs, then
// either committed or dropped.
type Staffing struct {
	mp  Marketplace
	log *zap.Logger

	mu      sync.Mutex
	pending map[string]marketplace.StaffUpdate
}

func NewStaffing(mp Marketplace, log *zap.Logger) *Staffing {
	if log == nil {
		log = zap.NewNop()
	}
	return &Staffing{mp: mp, log: log, pending: map[string]marketplace.StaffUpdate{}}
}

// Assign returns an error only when the change could not start: the record
// could not be read or another change is pending. A rejected change comes
// back as an outcome with Committed false.
func (s *Staffing) Assign(ctx context.Context, token, id string, u marketplace.StaffUpdate) (*StaffOutcome, error) {
	before, err := s.mp.GetAssignment(ctx, token, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, busy := s.pending[id]; busy {
		s.mu.Unlock()
		return nil, ErrStaffPending
	}
	s.pending[id] = u
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	after, err := s.mp.UpdateStaff(ctx, token, id, u)
	if err != nil {
		s.log.Info("staff change rolled back", zap.String("assignment", id), zap.Error(err))
		return &StaffOutcome{Assignment: before, Err: err}, nil
	}
	return &StaffOutcome{Committed: true, Assignment: after}, nil
}

// Overlay applies a pending change to a copy of a, reporting whether one was
// pending.
func (s *Staffing) Overlay(a *models.Assignment) (*models.Assignment, bool) {
	s.mu.Lock()
	u, ok := s.pending[a.ID]
	s.mu.Unlock()
	if !ok {
		return a, false
	}
	cp := *a
	applyStaff(&cp, u)
	return &cp, true
}

func applyStaff(a *models.Assignment, u marketplace.StaffUpdate) {
	if u.PMName != nil {
		a.PMName = u.PMName
	}
	if u.PMPhone != nil {
		a.PMPhone = u.PMPhone
	}
	if u.FreelancerName != nil {
		a.FreelancerName = u.FreelancerName
	}
	if u.FreelancerPhone != nil {
		a.FreelancerPhone = u.FreelancerPhone
	}
}
