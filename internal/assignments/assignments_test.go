package assignments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/assignment-portal/internal/auth"
	"github.com/aldoetobex/assignment-portal/internal/marketplace"
	"github.com/aldoetobex/assignment-portal/internal/query"
	"github.com/aldoetobex/assignment-portal/pkg/models"
)

var t0 = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func record() *models.Assignment {
	return &models.Assignment{
		ID:               "a-1",
		Title:            "Contract law essay",
		Type:             models.TypeCoursework,
		Subtype:          "essay",
		AcademicLevel:    models.LevelUndergraduate,
		Instructions:     "Email me at sam@example.com or call +44 7700 900123.",
		FreelancerAmount: models.Major(300),
		TotalAmount:      models.Major(500),
		MarksObtained:    ptr(72),
		SubmittedAt:      t0.Add(-48 * time.Hour),
		Deadline:         t0.Add(72 * time.Hour),
		StudentName:      "Sam",
		StudentEmail:     "sam@example.com",
		StudentPhone:     "+44 7700 900123",
		PMName:           ptr("Priya"),
		PMPhone:          ptr("+91 98765 43210"),
		FreelancerName:   ptr("Fiona"),
		FreelancerPhone:  ptr("+44 7700 900456"),
		Stage:            models.StageInProgress,
		History: []models.HistoryEvent{
			{Stage: models.StageSubmitted, Timestamp: t0.Add(-48 * time.Hour)},
			{Stage: models.StageAssigned, Timestamp: t0.Add(-24 * time.Hour)},
			{Stage: models.StageInProgress, Timestamp: t0.Add(-1 * time.Hour)},
		},
	}
}

/* ============================================================================
   Projection
   ============================================================================ */

func TestProject_Admin(t *testing.T) {
	v := NewProjector(nil).Project(record(), models.RoleAdmin)

	require.NotNil(t, v.TotalAmount)
	require.NotNil(t, v.FreelancerAmount)
	assert.Equal(t, models.Major(300), *v.FreelancerAmount)
	require.NotNil(t, v.Freelancer)
	assert.Equal(t, "+44 7700 900456", v.Freelancer.Phone)
	require.NotNil(t, v.Student)
	assert.Equal(t, "sam@example.com", v.Student.Email)
	assert.Equal(t, "In Progress", v.Stage.Label)
	assert.Equal(t, 2, v.Progress.Index)
	assert.True(t, v.HistoryAvailable)
	assert.Len(t, v.History, 3)
}

func TestProject_StudentHidesFreelancerPayoutAndPhone(t *testing.T) {
	v := NewProjector(nil).Project(record(), models.RoleStudent)

	assert.Nil(t, v.FreelancerAmount)
	require.NotNil(t, v.TotalAmount)
	require.NotNil(t, v.Freelancer)
	assert.Equal(t, "Fiona", v.Freelancer.Name)
	assert.Empty(t, v.Freelancer.Phone)

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "freelancer_amount")
	assert.NotContains(t, string(raw), "900456")
}

func TestProject_FreelancerHidesStudentContact(t *testing.T) {
	v := NewProjector(nil).Project(record(), models.RoleFreelancer)

	assert.Nil(t, v.Student)
	assert.Nil(t, v.TotalAmount)
	require.NotNil(t, v.FreelancerAmount)
	assert.NotContains(t, v.Instructions, "sam@example.com")
	assert.NotContains(t, v.Instructions, "900123")
	assert.Contains(t, v.Instructions, "[redacted email]")
}

func TestProject_MarksOutOfRangeAreNotGraded(t *testing.T) {
	p := NewProjector(nil)
	for _, m := range []int{-1, 101, 250} {
		a := record()
		a.MarksObtained = ptr(m)
		assert.Nil(t, p.Project(a, models.RoleAdmin).MarksObtained, m)
	}
	for _, m := range []int{0, 100} {
		a := record()
		a.MarksObtained = ptr(m)
		require.NotNil(t, p.Project(a, models.RoleAdmin).MarksObtained)
	}
}

func TestProject_HistoryUnavailable(t *testing.T) {
	p := NewProjector(nil)

	a := record()
	a.History = nil
	v := p.Project(a, models.RoleStudent)
	assert.False(t, v.HistoryAvailable)
	assert.Nil(t, v.History)
	assert.Equal(t, HistoryUnavailable, v.HistoryMessage)

	// a log that does not end in the current stage is not shown partially
	a = record()
	a.Stage = models.StageUnderReview
	assert.False(t, p.Project(a, models.RoleStudent).HistoryAvailable)
}

func TestProject_UnknownStageFallsBack(t *testing.T) {
	a := record()
	a.Stage = "archived"
	v := NewProjector(nil).Project(a, models.RoleAdmin)
	assert.Equal(t, "archived", v.Stage.Label)
	assert.Equal(t, -1, v.Progress.Index)
	assert.False(t, v.HistoryAvailable)
}

func TestProject_UnassignedStaff(t *testing.T) {
	a := record()
	a.PMName, a.PMPhone, a.FreelancerName, a.FreelancerPhone = nil, nil, nil, nil
	v := NewProjector(nil).Project(a, models.RoleAdmin)
	assert.Nil(t, v.PM)
	assert.Nil(t, v.Freelancer)
}

/* ============================================================================
   Fake marketplace
   ============================================================================ */

type fakeMarketplace struct {
	mu        sync.Mutex
	rec       *models.Assignment
	updateErr error
	// block, when set, holds UpdateStaff until it is closed
	block   chan struct{}
	entered chan struct{}
	lists   []marketplace.ListParams
}

func (f *fakeMarketplace) GetAssignment(_ context.Context, _, id string) (*models.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rec == nil || f.rec.ID != id {
		return nil, &marketplace.APIError{Status: 404, Message: "Assignment not found"}
	}
	cp := *f.rec
	return &cp, nil
}

func (f *fakeMarketplace) ListAssignments(_ context.Context, _ string, p marketplace.ListParams) (*marketplace.AssignmentPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, p)
	return &marketplace.AssignmentPage{Page: p.Page, PageSize: p.PageSize, Total: 1, Pages: 1, Items: []models.Assignment{*f.rec}}, nil
}

func (f *fakeMarketplace) UpdateStaff(_ context.Context, _, _ string, in marketplace.StaffUpdate) (*models.Assignment, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	applyStaff(f.rec, in)
	cp := *f.rec
	return &cp, nil
}

/* ============================================================================
   Staffing
   ============================================================================ */

func TestStaffing_PendingThenCommitted(t *testing.T) {
	mp := &fakeMarketplace{rec: record(), block: make(chan struct{}), entered: make(chan struct{})}
	s := NewStaffing(mp, nil)
	ctx := context.Background()

	done := make(chan *StaffOutcome, 1)
	go func() {
		out, err := s.Assign(ctx, "tok", "a-1", marketplace.StaffUpdate{FreelancerName: ptr("Femi")})
		assert.NoError(t, err)
		done <- out
	}()
	<-mp.entered

	cur, _ := mp.GetAssignment(ctx, "tok", "a-1")
	shown, pending := s.Overlay(cur)
	assert.True(t, pending)
	assert.Equal(t, "Femi", *shown.FreelancerName)
	assert.Equal(t, "Fiona", *cur.FreelancerName, "overlay must not touch the source record")

	_, err := s.Assign(ctx, "tok", "a-1", marketplace.StaffUpdate{PMName: ptr("Other")})
	assert.ErrorIs(t, err, ErrStaffPending)

	close(mp.block)
	out := <-done
	assert.True(t, out.Committed)
	assert.Equal(t, "Femi", *out.Assignment.FreelancerName)

	_, pending = s.Overlay(cur)
	assert.False(t, pending)
}

func TestStaffing_RollbackOnFailure(t *testing.T) {
	mp := &fakeMarketplace{rec: record(), updateErr: &marketplace.APIError{Status: 422, Message: "Freelancer is not available"}}
	s := NewStaffing(mp, nil)

	out, err := s.Assign(context.Background(), "tok", "a-1", marketplace.StaffUpdate{FreelancerName: ptr("Femi")})
	require.NoError(t, err)
	assert.False(t, out.Committed)
	assert.Equal(t, "Fiona", *out.Assignment.FreelancerName)
	assert.EqualError(t, out.Err, "Freelancer is not available")

	_, pending := s.Overlay(record())
	assert.False(t, pending)
}

func TestStaffing_MissingRecord(t *testing.T) {
	s := NewStaffing(&fakeMarketplace{rec: record()}, nil)
	_, err := s.Assign(context.Background(), "tok", "nope", marketplace.StaffUpdate{PMName: ptr("P")})
	var apiErr *marketplace.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
}

/* ============================================================================
   HTTP
   ============================================================================ */

func newTestApp(h *Handler, role models.Role) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	g := app.Group("/api/assignments", func(c *fiber.Ctx) error {
		c.Locals("userID", "u-1")
		c.Locals("role", string(role))
		c.Locals("token", "tok")
		return c.Next()
	})
	g.Get("/", h.List)
	g.Get("/:id", h.Get)
	g.Patch("/:id/staff", auth.RequireRole(models.RoleAdmin), h.UpdateStaff)
	return app
}

func call(t *testing.T, app *fiber.App, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHTTP_Get(t *testing.T) {
	app := newTestApp(NewHandler(&fakeMarketplace{rec: record()}, nil, nil), models.RoleStudent)

	code, body := call(t, app, fiber.MethodGet, "/api/assignments/a-1", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "Contract law essay", body["title"])
	assert.NotContains(t, body, "freelancer_amount")
	assert.Equal(t, true, body["history_available"])

	code, body = call(t, app, fiber.MethodGet, "/api/assignments/a-2", nil)
	assert.Equal(t, fiber.StatusNotFound, code)
	assert.Equal(t, "Assignment not found", body["message"])
}

func TestHTTP_ListRemembersQuery(t *testing.T) {
	mp := &fakeMarketplace{rec: record()}
	queries := query.NewMemoryStore()
	app := newTestApp(NewHandler(mp, queries, nil), models.RoleAdmin)

	code, body := call(t, app, fiber.MethodGet, "/api/assignments?stage=in_progress&pageSize=20", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Len(t, body["items"], 1)

	code, body = call(t, app, fiber.MethodGet, "/api/assignments", nil)
	require.Equal(t, fiber.StatusOK, code)
	q := body["query"].(map[string]any)
	assert.Equal(t, "in_progress", q["stage"])
	assert.Equal(t, 20.0, q["pageSize"])

	require.Len(t, mp.lists, 2)
	assert.Equal(t, mp.lists[0], mp.lists[1])
	assert.Equal(t, models.StageInProgress, mp.lists[1].Stage)
}

func TestHTTP_ListFiltersNotOverwrittenByLaterRequests(t *testing.T) {
	mp := &fakeMarketplace{rec: record()}
	app := newTestApp(NewHandler(mp, query.NewMemoryStore(), nil), models.RoleAdmin)

	code, _ := call(t, app, fiber.MethodGet, "/api/assignments?search=alphabeta", nil)
	require.Equal(t, fiber.StatusOK, code)
	for i := 0; i < 3; i++ {
		code, _ = call(t, app, fiber.MethodGet, "/api/assignments/a-1?xx=QQQQQQQQQQQQQQQQQQQQ", nil)
		require.Equal(t, fiber.StatusOK, code)
	}

	code, body := call(t, app, fiber.MethodGet, "/api/assignments", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "alphabeta", body["query"].(map[string]any)["search"])
	require.Len(t, mp.lists, 2)
	assert.Equal(t, "alphabeta", mp.lists[0].Search)
	assert.Equal(t, "alphabeta", mp.lists[1].Search)
}

func TestHTTP_UpdateStaff(t *testing.T) {
	mp := &fakeMarketplace{rec: record()}
	app := newTestApp(NewHandler(mp, nil, nil), models.RoleAdmin)

	code, body := call(t, app, fiber.MethodPatch, "/api/assignments/a-1/staff", map[string]string{"pm_name": " Paul "})
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "committed", body["status"])
	a := body["assignment"].(map[string]any)
	assert.Equal(t, "Paul", a["pm"].(map[string]any)["name"])

	code, _ = call(t, app, fiber.MethodPatch, "/api/assignments/a-1/staff", map[string]string{})
	assert.Equal(t, fiber.StatusUnprocessableEntity, code)
}

func TestHTTP_UpdateStaffRollback(t *testing.T) {
	mp := &fakeMarketplace{rec: record(), updateErr: marketplace.ErrTransport}
	app := newTestApp(NewHandler(mp, nil, nil), models.RoleAdmin)

	code, body := call(t, app, fiber.MethodPatch, "/api/assignments/a-1/staff", map[string]string{"freelancer_name": "Femi"})
	assert.Equal(t, fiber.StatusBadGateway, code)
	assert.Equal(t, "rolled_back", body["status"])
	assert.NotEmpty(t, body["message"])
	a := body["assignment"].(map[string]any)
	assert.Equal(t, "Fiona", a["freelancer"].(map[string]any)["name"])
}

func TestHTTP_UpdateStaffWhilePending(t *testing.T) {
	mp := &fakeMarketplace{rec: record(), block: make(chan struct{}), entered: make(chan struct{})}
	app := newTestApp(NewHandler(mp, nil, nil), models.RoleAdmin)

	first := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(fiber.MethodPatch, "/api/assignments/a-1/staff", strings.NewReader(`{"pm_name":"Paul"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		if !assert.NoError(t, err) {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()
	<-mp.entered

	code, body := call(t, app, fiber.MethodPatch, "/api/assignments/a-1/staff", map[string]string{"pm_name": "Other"})
	assert.Equal(t, fiber.StatusConflict, code)
	assert.Equal(t, "A staff change is already pending for this assignment", body["message"])

	close(mp.block)
	assert.Equal(t, fiber.StatusOK, <-first)
}

func TestHTTP_UpdateStaffAdminOnly(t *testing.T) {
	app := newTestApp(NewHandler(&fakeMarketplace{rec: record()}, nil, nil), models.RoleStudent)
	code, _ := call(t, app, fiber.MethodPatch, "/api/assignments/a-1/staff", map[string]string{"pm_name": "P"})
	assert.Equal(t, fiber.StatusForbidden, code)
}
