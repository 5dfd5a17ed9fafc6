package wizard

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"github.com/aldoetobex/assignment-portal/internal/auth"
	"github.com/aldoetobex/assignment-portal/internal/marketplace"
	"github.com/aldoetobex/assignment-portal/internal/stage"
	"github.com/aldoetobex/assignment-portal/pkg/models"
	"github.com/aldoetobex/assignment-portal/pkg/validation"
)

// Creator is the part of the marketplace client the wizard needs.
type Creator interface {
	CreateAssignment(ctx context.Context, token, idempotencyKey string, in *marketplace.CreateAssignmentRequest) (*marketplace.CreatedAssignment, error)
}

type Handler struct {
	store *Store
	mp    Creator
	audit SubmissionLog
	log   *zap.Logger
}

func NewHandler(store *Store, mp Creator, audit SubmissionLog, log *zap.Logger) *Handler {
	if audit == nil {
		audit = NopLog{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{store: store, mp: mp, audit: audit, log: log}
}

// ===== DTOs =====

type SelectCategoryRequest struct {
	Type string `json:"type" validate:"required,assignment_type"`
}

type FilesResponse struct {
	Selection FileSelection `json:"selection"`
	Wizard    Snapshot      `json:"wizard"`
}

type CatalogResponse struct {
	Types             []models.CatalogType      `json:"types"`
	AcademicLevels    []models.AcademicLevel    `json:"academic_levels"`
	ReferencingStyles []models.ReferencingStyle `json:"referencing_styles"`
	MaxFiles          int                       `json:"max_files"`
	MaxFileSize       int64                     `json:"max_file_size"`
}

// Catalog godoc
// @Summary      Wizard catalog
// @Description  Categories, subtypes, academic levels and referencing styles offered by the wizard
// @Tags         wizard
// @Produce      json
// @Success      200  {object}  CatalogResponse
// @Router       /catalog [get]
func Catalog(c *fiber.Ctx) error {
	return c.JSON(CatalogResponse{
		Types:             models.Catalog,
		AcademicLevels:    models.AcademicLevels,
		ReferencingStyles: models.ReferencingStyles,
		MaxFiles:          MaxFiles,
		MaxFileSize:       MaxFileSize,
	})
}

// Start godoc
// @Summary      Start a submission
// @Tags         wizard
// @Security     BearerAuth
// @Produce      json
// @Success      201  {object}  Snapshot
// @Router       /wizard [post]
func (h *Handler) Start(c *fiber.Ctx) error {
	w := h.store.Create(auth.MustUserID(c))
	return c.Status(fiber.StatusCreated).JSON(w.Snapshot())
}

func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(w.Snapshot())
}

func (h *Handler) SelectCategory(c *fiber.Ctx) error {
	w, err := h.session(c)
	if err != nil {
		return err
	}
	var in SelectCategoryRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.Type = strings.TrimSpace(in.Type)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	snap, err := w.SelectType(models.AssignmentType(in.Type))
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(snap)
}

func (h *Handler) UpdateDetails(c *fiber.Ctx) error {
	w, err := h.session(c)
	if err != nil {
		return err
	}
	var in DetailsPatch
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	snap, err := w.UpdateDetails(in)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(snap)
}

// AttachFiles godoc
// @Summary      Attach files to the draft
// @Description  Multipart field "files". Each refused file gets its own message; nothing is uploaded before submission.
// @Tags         wizard
// @Security     BearerAuth
// @Accept       mpfd
// @Produce      json
// @Success      200  {object}  FilesResponse
// @Router       /wizard/{id}/files [post]
func (h *Handler) AttachFiles(c *fiber.Ctx) error {
	w, err := h.session(c)
	if err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form required")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no files in request")
	}

	cands := make([]FileCandidate, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		cands = append(cands, FileCandidate{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Load: func() ([]byte, error) {
				f, err := fh.Open()
				if err != nil {
					return nil, err
				}
				defer f.Close()
				return io.ReadAll(io.LimitReader(f, MaxFileSize+1))
			},
		})
	}

	sel, snap, err := w.SelectFiles(cands)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(FilesResponse{Selection: sel, Wizard: snap})
}

func (h *Handler) RemoveFile(c *fiber.Ctx) error {
	w, err := h.session(c)
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid file index")
	}
	snap, err := w.RemoveFile(idx)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(snap)
}

// Next godoc
// @Summary      Go to the next step
// @Description  Blocked moves answer 422 with per-field errors and the unchanged session.
// @Tags         wizard
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Snapshot
// @Failure      422  {object}  models.ValidationErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /wizard/{id}/next [post]
func (h *Handler) Next(c *fiber.Ctx) error {
	w, err := h.session(c)
	if err != nil {
		return err
	}
	snap, err := w.Next()
	if err != nil {
		return sessionError(err)
	}
	return respondSnapshot(c, snap)
}

func (h *Handler) Back(c *fiber.Ctx) error {
	w, err := h.session(c)
	if err != nil {
		return err
	}
	snap, err := w.Back()
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(snap)
}

// Submit godoc
// @Summary      Submit the draft
// @Description  Sends one multipart create request. Repeating the call after success returns the recorded result.
// @Tags         wizard
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Snapshot
// @Failure      409  {object}  models.ErrorResponse
// @Failure      422  {object}  models.ValidationErrorResponse
// @Failure      502  {object}  models.ErrorResponse
// @Router       /wizard/{id}/submit [post]
func (h *Handler) Submit(c *fiber.Ctx) error {
	owner := auth.MustUserID(c)
	id := utils.CopyString(c.Params("id"))

	w, err := h.store.Get(id, owner)
	if errors.Is(err, ErrSessionNotFound) {
		return h.recordedResult(c, id, owner)
	}
	if err != nil {
		return sessionError(err)
	}

	token := auth.Token(c)
	audit := loggedSubmission{log: h.audit, zl: h.log}
	// Detached from the request: an in-flight create is never cancelled.
	ctx := context.WithoutCancel(c.UserContext())

	snap, err := w.Submit(ctx, func(ctx context.Context, sub Submission) (*marketplace.CreatedAssignment, error) {
		sessionID := sub.SessionID
		audit.begin(ctx, sessionID, owner, sub.Draft)

		created, err := h.mp.CreateAssignment(ctx, token, sessionID, sub.Request)
		if err != nil {
			h.log.Warn("assignment submission failed", zap.String("session", sessionID), zap.Error(err))
			audit.failed(ctx, sessionID, FailureMessage(err))
			return nil, err
		}
		h.log.Info("assignment submitted",
			zap.String("session", sessionID), zap.String("assignment", created.ID))
		audit.succeeded(ctx, sessionID, created.ID)
		return created, nil
	})

	switch {
	case err == nil:
		return respondSnapshot(c, snap)
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrSubmissionInFlight), errors.Is(err, ErrInvalidTransition):
		return sessionError(err)
	}

	status := fiber.StatusBadGateway
	var apiErr *marketplace.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		status = apiErr.Status
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   true,
		"message": snap.Failure,
		"wizard":  snap,
	})
}

// recordedResult answers a submit for a session that is no longer live but
// already reached the marketplace.
func (h *Handler) recordedResult(c *fiber.Ctx, id, owner string) error {
	row, err := h.audit.Find(c.UserContext(), id)
	if err != nil {
		h.log.Warn("submission lookup failed", zap.String("session", id), zap.Error(err))
		return fiber.ErrInternalServerError
	}
	if row == nil || row.StudentID != owner || row.Status != models.SubmissionSubmitted || row.AssignmentID == nil {
		return sessionError(ErrSessionNotFound)
	}
	w := newWizard(id, owner, h.store.now)
	return c.JSON(w.restore(Result{
		AssignmentID: *row.AssignmentID,
		Stage:        models.StageSubmitted,
		SubmittedAt:  row.UpdatedAt,
		Display:      stage.Render(models.StageSubmitted),
	}))
}

func (h *Handler) Discard(c *fiber.Ctx) error {
	if err := h.store.Discard(c.Params("id"), auth.MustUserID(c)); err != nil {
		return sessionError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) session(c *fiber.Ctx) (*Wizard, error) {
	w, err := h.store.Get(c.Params("id"), auth.MustUserID(c))
	if err != nil {
		return nil, sessionError(err)
	}
	return w, nil
}

func respondSnapshot(c *fiber.Ctx, snap Snapshot) error {
	if len(snap.Errors) > 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  snap.Errors,
			"wizard":  snap,
		})
	}
	return c.JSON(snap)
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Wizard session not found")
	case errors.Is(err, ErrNoSuchFile):
		return fiber.NewError(fiber.StatusNotFound, "File not found")
	case errors.Is(err, ErrSessionClosed):
		return fiber.NewError(fiber.StatusGone, "Wizard session was closed")
	case errors.Is(err, ErrSubmissionInFlight):
		return fiber.NewError(fiber.StatusConflict, "A submission is already in progress")
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotEditable):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return err
}
