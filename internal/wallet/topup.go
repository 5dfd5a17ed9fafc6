package wallet

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/aldoetobex/assignment-portal/internal/marketplace"
	"github.com/aldoetobex/assignment-portal/internal/payments"
	"github.com/aldoetobex/assignment-portal/pkg/models"
)

var (
	MinTopUp = models.Major(1)
	MaxTopUp = models.Major(100000)

	ErrAmountOutOfRange = errors.New("top-up amount out of range")
)

type TopUpStatus string

const (
	TopUpSucceeded TopUpStatus = "succeeded"
	// TopUpIdle means the payer cancelled; nothing to report.
	TopUpIdle   TopUpStatus = "idle"
	TopUpFailed TopUpStatus = "failed"
	// TopUpPending means the charge went through but the marketplace has not
	// credited it yet.
	TopUpPending TopUpStatus = "pending"
)

// TopUpOutcome drives the top-up modal.
type TopUpOutcome struct {
	Status    TopUpStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	Reference string      `json:"reference,omitempty"`
	ModalOpen bool        `json:"modal_open"`
	Ledger    *Ledger     `json:"ledger,omitempty"`
}

func ValidateAmount(a models.Money) error {
	if a < MinTopUp || a > MaxTopUp {
		return ErrAmountOutOfRange
	}
	return nil
}

// RequestTopUp charges the payer and asks the marketplace to credit the
// wallet. The only returned error is ErrAmountOutOfRange, checked before the
// collaborator is contacted; every other result is an outcome.
func (s *Service) RequestTopUp(ctx context.Context, token string, payer payments.Payer, amount models.Money, method string) (*TopUpOutcome, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}

	rec, err := s.payer.Charge(ctx, payments.Charge{
		Payer:    payer,
		Amount:   amount,
		Currency: s.currency,
		Method:   method,
	})
	switch {
	case errors.Is(err, payments.ErrPaymentCancelled):
		return &TopUpOutcome{Status: TopUpIdle}, nil
	case err != nil:
		s.log.Info("top-up failed", zap.String("student", payer.ID), zap.Error(err))
		return &TopUpOutcome{Status: TopUpFailed, Message: payments.Reason(err), ModalOpen: true}, nil
	}

	out := &TopUpOutcome{
		Status:    TopUpSucceeded,
		Message:   "Top-up successful",
		Reference: rec.Reference,
	}
	if err := s.mp.VerifyTopUp(ctx, token, marketplace.TopUpVerification{
		PaymentReference: rec.Reference,
		Provider:         rec.Provider,
		Amount:           amount,
	}); err != nil {
		s.log.Error("top-up captured but not credited",
			zap.String("student", payer.ID), zap.String("reference", rec.Reference), zap.Error(err))
		out.Status = TopUpPending
		out.Message = "Payment received. Your balance will update shortly."
	}

	ledger, err := s.LoadHistory(ctx, token)
	if err != nil {
		s.log.Warn("wallet reload after top-up failed", zap.Error(err))
		return out, nil
	}
	out.Ledger = ledger
	return out, nil
}
