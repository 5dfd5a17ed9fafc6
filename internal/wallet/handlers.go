package wallet

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/aldoetobex/assignment-portal/internal/auth"
	"github.com/aldoetobex/assignment-portal/internal/marketplace"
	"github.com/aldoetobex/assignment-portal/internal/payments"
	"github.com/aldoetobex/assignment-portal/pkg/models"
	"github.com/aldoetobex/assignment-portal/pkg/validation"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// ===== DTOs =====

type TopUpRequest struct {
	Amount        models.Money `json:"amount"`
	PaymentMethod string       `json:"payment_method" validate:"max=100"`
}

// Wallet godoc
// @Summary      Wallet ledger
// @Description  Balance and transactions, newest first
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Ledger
// @Failure      502  {object}  models.ErrorResponse
// @Router       /wallet [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	ledger, err := h.svc.LoadHistory(c.UserContext(), auth.Token(c))
	if err != nil {
		return marketplace.HTTPError(err, "Could not load your wallet. Please try again.")
	}
	return c.JSON(ledger)
}

// TopUp godoc
// @Summary      Top up wallet
// @Description  Charges the payment collaborator; cancellation answers status "idle"
// @Tags         wallet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  TopUpRequest  true  "Amount"
// @Success      200  {object}  TopUpOutcome
// @Failure      402  {object}  TopUpOutcome
// @Failure      422  {object}  models.ValidationErrorResponse
// @Router       /wallet/topup [post]
func (h *Handler) TopUp(c *fiber.Ctx) error {
	var in TopUpRequest
	if err := c.BodyParser(&in); err != nil {
		return validation.Respond(c, map[string][]string{"amount": {"Enter a valid amount"}})
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	payer := payments.Payer{ID: auth.MustUserID(c), Email: auth.Email(c), Name: auth.Name(c)}
	out, err := h.svc.RequestTopUp(c.UserContext(), auth.Token(c), payer, in.Amount, in.PaymentMethod)
	if errors.Is(err, ErrAmountOutOfRange) {
		return validation.Respond(c, map[string][]string{"amount": {"Amount must be between 1 and 100000"}})
	}
	if err != nil {
		return err
	}
	if out.Status == TopUpFailed {
		return c.Status(fiber.StatusPaymentRequired).JSON(out)
	}
	return c.JSON(out)
}
