package storage

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aldoetobex/assignment-portal/internal/auth"
	"github.com/aldoetobex/assignment-portal/internal/marketplace"
	"github.com/aldoetobex/assignment-portal/pkg/models"
	"github.com/aldoetobex/assignment-portal/pkg/validation"
)

// AssignmentReader fetches a record with the caller's token. The marketplace
// answers only for participants, which is what makes a file downloadable.
type AssignmentReader interface {
	GetAssignment(ctx context.Context, token, id string) (*models.Assignment, error)
}

type Handler struct {
	store *Supabase
	mp    AssignmentReader
	log   *zap.Logger
}

func NewHandler(store *Supabase, mp AssignmentReader, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{store: store, mp: mp, log: log}
}

type SignedURLQuery struct {
	AssignmentID string `query:"assignment_id" json:"assignment_id" validate:"notblank"`
	Key          string `query:"key" json:"key" validate:"notblank,max=512"`
}

type SignedURLResponse struct {
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SignedURL godoc
// @Summary      Signed download URL
// @Description  Short-lived URL for a file attached to an assignment the caller takes part in
// @Tags         files
// @Security     BearerAuth
// @Produce      json
// @Param        assignment_id  query  string  true  "Assignment ID"
// @Param        key            query  string  true  "File key"
// @Success      200  {object}  SignedURLResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      422  {object}  models.ValidationErrorResponse
// @Failure      503  {object}  models.ErrorResponse
// @Router       /files/signed-url [get]
func (h *Handler) SignedURL(c *fiber.Ctx) error {
	var in SignedURLQuery
	if err := c.QueryParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	if !h.store.Configured() {
		return fiber.NewError(fiber.StatusServiceUnavailable, "File downloads are not available right now")
	}

	a, err := h.mp.GetAssignment(c.UserContext(), auth.Token(c), in.AssignmentID)
	if err != nil {
		var apiErr *marketplace.APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			return fiber.NewError(fiber.StatusNotFound, "File not found")
		}
		return fiber.NewError(fiber.StatusBadGateway, "Could not reach the marketplace. Please try again.")
	}

	var file *models.FileRef
	for i := range a.Files {
		if a.Files[i].Key == in.Key {
			file = &a.Files[i]
			break
		}
	}
	if file == nil {
		return fiber.NewError(fiber.StatusNotFound, "File not found")
	}

	u, err := h.store.SignedURL(c.UserContext(), file.Key)
	if err != nil {
		h.log.Error("sign file url", zap.String("assignment", a.ID), zap.String("key", file.Key), zap.Error(err))
		return fiber.NewError(fiber.StatusBadGateway, "Could not prepare the download. Please try again.")
	}
	return c.JSON(SignedURLResponse{
		URL:       u,
		Name:      file.Name,
		ExpiresAt: time.Now().UTC().Add(h.store.TTL()),
	})
}
