package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/aldoetobex/assignment-portal/pkg/models"
	"github.com/aldoetobex/assignment-portal/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /dev/login
type DevLoginRequest struct {
	UserID   string `json:"user_id" validate:"required,max=64"`
	Role     string `json:"role" validate:"required,oneof=student admin freelancer"`
	Email    string `json:"email" validate:"omitempty,email,max=120"`
	Name     string `json:"name" validate:"omitempty,max=80"`
	Password string `json:"password" validate:"required,max=72"`
}

// Standard auth response
type AuthResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Profile response for /me, read straight from the verified token.
type ProfileResponse struct {
	ID    string      `json:"id"`
	Role  models.Role `json:"role"`
	Email string      `json:"email,omitempty"`
	Name  string      `json:"name,omitempty"`
}

/* ============================== Handler ================================= */

// Handler serves the identity endpoints. Real sign-in belongs to the
// marketplace; the dev login only exists to drive a local portal.
type Handler struct {
	secret  string
	devHash []byte
	ttl     time.Duration
}

func NewHandler(secret, devPasswordHash string) *Handler {
	return &Handler{secret: secret, devHash: []byte(devPasswordHash), ttl: 24 * time.Hour}
}

// DevLoginEnabled reports whether a dev password hash is configured.
func (h *Handler) DevLoginEnabled() bool { return len(h.devHash) > 0 }

/* ============================== Dev login =============================== */

// @Summary      Dev login
// @Description  Issue a portal token for any identity. Mounted only in dev with a configured password hash.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  DevLoginRequest  true  "Identity"
// @Success      200      {object}  AuthResponse
// @Failure      422      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /dev/login [post]
func (h *Handler) DevLogin(c *fiber.Ctx) error {
	var in DevLoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	if !h.DevLoginEnabled() || bcrypt.CompareHashAndPassword(h.devHash, []byte(in.Password)) != nil {
		return fiber.ErrUnauthorized
	}

	token, err := IssueToken(h.secret, in.UserID, models.Role(in.Role), in.Email, in.Name, h.ttl)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(AuthResponse{Token: token, Role: in.Role})
}

/* ================================= Me =================================== */

// @Summary      Current user
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  ProfileResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	return c.JSON(ProfileResponse{
		ID:    MustUserID(c),
		Role:  MustRole(c),
		Email: Email(c),
		Name:  Name(c),
	})
}
