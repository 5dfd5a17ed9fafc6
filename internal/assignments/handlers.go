package assignments

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"github.com/aldoetobex/assignment-portal/internal/auth"
	"github.com/aldoetobex/assignment-portal/internal/marketplace"
	"github.com/aldoetobex/assignment-portal/internal/query"
	"github.com/aldoetobex/assignment-portal/pkg/models"
	"github.com/aldoetobex/assignment-portal/pkg/sanitize"
	"github.com/aldoetobex/assignment-portal/pkg/validation"
)

const (
	// listView is the query-state key of the assignment list.
	listView   = "assignments"
	summaryLen = 160
)

type Handler struct {
	mp      Marketplace
	queries query.Store
	staff   *Staffing
	proj    Projector
	log     *zap.Logger
}

func NewHandler(mp Marketplace, queries query.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if queries == nil {
		queries = query.NewMemoryStore()
	}
	return &Handler{
		mp:      mp,
		queries: queries,
		staff:   NewStaffing(mp, log),
		proj:    NewProjector(log),
		log:     log,
	}
}

// ===== DTOs =====

type ListResponse struct {
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
	Total    int64       `json:"total"`
	Pages    int         `json:"pages"`
	Items    []View      `json:"items"`
	Query    query.State `json:"query"`
}

type StaffRequest struct {
	PMName          *string `json:"pm_name" validate:"omitempty,notblank,max=120"`
	PMPhone         *string `json:"pm_phone" validate:"omitempty,max=32"`
	FreelancerName  *string `json:"freelancer_name" validate:"omitempty,notblank,max=120"`
	FreelancerPhone *string `json:"freelancer_phone" validate:"omitempty,max=32"`
}

func (r StaffRequest) empty() bool {
	return r.PMName == nil && r.PMPhone == nil && r.FreelancerName == nil && r.FreelancerPhone == nil
}

type StaffResponse struct {
	Status     string `json:"status"` // committed | rolled_back
	Message    string `json:"message,omitempty"`
	Assignment View   `json:"assignment"`
}

// List godoc
// @Summary      List assignments
// @Description  Paginated list; filters not given in the query string come from the caller's last visit
// @Tags         assignments
// @Security     BearerAuth
// @Produce      json
// @Param        page      query  int     false  "Page (>=1)"
// @Param        pageSize  query  int     false  "Page size (1..50)"
// @Param        stage     query  string  false  "Stage filter"
// @Param        search    query  string  false  "Search"
// @Success      200  {object}  ListResponse
// @Failure      502  {object}  models.ErrorResponse
// @Router       /assignments [get]
func (h *Handler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := auth.MustUserID(c)
	role := auth.MustRole(c)

	st := query.FromRequest(c, h.queries.Load(ctx, userID, listView))
	if err := h.queries.Save(ctx, userID, listView, st); err != nil {
		h.log.Warn("query state not saved", zap.String("user", userID), zap.Error(err))
	}

	page, err := h.mp.ListAssignments(ctx, auth.Token(c), marketplace.ListParams{
		Page:     st.Page,
		PageSize: st.PageSize,
		Stage:    st.Stage,
		Search:   st.Search,
	})
	if err != nil {
		return marketplace.HTTPError(err, "Could not load assignments. Please try again.")
	}

	items := make([]View, 0, len(page.Items))
	for i := range page.Items {
		v := h.view(&page.Items[i], role)
		v.Instructions = sanitize.Summary(v.Instructions, summaryLen)
		items = append(items, v)
	}
	return c.JSON(ListResponse{
		Page:     page.Page,
		PageSize: page.PageSize,
		Total:    page.Total,
		Pages:    page.Pages,
		Items:    items,
		Query:    st,
	})
}

// Get godoc
// @Summary      Assignment detail
// @Tags         assignments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  string  true  "Assignment ID"
// @Success      200  {object}  View
// @Failure      404  {object}  models.ErrorResponse
// @Failure      502  {object}  models.ErrorResponse
// @Router       /assignments/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	a, err := h.mp.GetAssignment(c.UserContext(), auth.Token(c), c.Params("id"))
	if err != nil {
		return marketplace.HTTPError(err, "Could not load the assignment. Please try again.")
	}
	return c.JSON(h.view(a, auth.MustRole(c)))
}

// UpdateStaff godoc
// @Summary      Assign PM / freelancer (admin)
// @Description  Shown as pending until the marketplace confirms; rolled back on failure
// @Tags         assignments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string        true  "Assignment ID"
// @Param        payload  body  StaffRequest  true  "Staff"
// @Success      200  {object}  StaffResponse
// @Failure      409  {object}  models.ErrorResponse
// @Failure      422  {object}  models.ValidationErrorResponse
// @Failure      502  {object}  StaffResponse
// @Router       /assignments/{id}/staff [patch]
func (h *Handler) UpdateStaff(c *fiber.Ctx) error {
	var in StaffRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	if in.empty() {
		return validation.Respond(c, map[string][]string{"pm_name": {"Choose a project manager or a freelancer"}})
	}

	u := marketplace.StaffUpdate{
		PMName:          trimmed(in.PMName),
		PMPhone:         trimmed(in.PMPhone),
		FreelancerName:  trimmed(in.FreelancerName),
		FreelancerPhone: trimmed(in.FreelancerPhone),
	}
	out, err := h.staff.Assign(c.UserContext(), auth.Token(c), utils.CopyString(c.Params("id")), u)
	if errors.Is(err, ErrStaffPending) {
		return fiber.NewError(fiber.StatusConflict, "A staff change is already pending for this assignment")
	}
	if err != nil {
		return marketplace.HTTPError(err, "Could not load the assignment. Please try again.")
	}

	role := auth.MustRole(c)
	if out.Committed {
		return c.JSON(StaffResponse{Status: "committed", Assignment: h.proj.Project(out.Assignment, role)})
	}

	status, msg := fiber.StatusBadGateway, "Could not save the change. Please try again."
	var apiErr *marketplace.APIError
	if errors.As(out.Err, &apiErr) {
		msg = apiErr.Message
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			status = apiErr.Status
		}
	}
	return c.Status(status).JSON(StaffResponse{
		Status:     "rolled_back",
		Message:    msg,
		Assignment: h.proj.Project(out.Assignment, role),
	})
}

func (h *Handler) view(a *models.Assignment, role models.Role) View {
	a, pending := h.staff.Overlay(a)
	v := h.proj.Project(a, role)
	v.StaffPending = pending
	return v
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
