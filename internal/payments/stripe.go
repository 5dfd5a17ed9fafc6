package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"go.uber.org/zap"
)

// Stripe charges through a confirmed PaymentIntent. Redirect-based methods
// are disabled so the outcome is known when Charge returns.
type Stripe struct {
	pi       paymentintent.Client
	currency string
	log      *zap.Logger
}

// NewStripe builds the collaborator. backend may be nil to use the live API.
func NewStripe(secretKey, currency string, backend stripe.Backend, log *zap.Logger) *Stripe {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Stripe{
		pi:       paymentintent.Client{B: backend, Key: secretKey},
		currency: strings.ToLower(currency),
		log:      log,
	}
}

func (*Stripe) Name() string { return "stripe" }

func (s *Stripe) Charge(ctx context.Context, ch Charge) (*Receipt, error) {
	currency := s.currency
	if ch.Currency != "" {
		currency = strings.ToLower(ch.Currency)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(ch.Amount)),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(ch.Method),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String("Wallet top-up"),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if ch.Payer.Email != "" {
		params.ReceiptEmail = stripe.String(ch.Payer.Email)
	}
	params.Context = ctx
	params.AddMetadata("student_id", ch.Payer.ID)
	if ch.Payer.Name != "" {
		params.AddMetadata("student_name", ch.Payer.Name)
	}

	pi, err := s.pi.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Msg != "" {
			s.log.Info("stripe charge declined", zap.String("code", string(se.Code)), zap.String("student", ch.Payer.ID))
			return nil, &DeclineError{Reason: se.Msg}
		}
		return nil, fmt.Errorf("stripe: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return &Receipt{Provider: "stripe", Reference: pi.ID}, nil
	case stripe.PaymentIntentStatusCanceled:
		return nil, ErrPaymentCancelled
	}

	s.log.Warn("stripe payment not settled",
		zap.String("payment_intent", pi.ID), zap.String("status", string(pi.Status)))
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		return nil, &DeclineError{Reason: pi.LastPaymentError.Msg}
	}
	return nil, fmt.Errorf("stripe: payment intent %s is %s", pi.ID, pi.Status)
}
