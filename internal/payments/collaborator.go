package payments

import (
	"context"
	"errors"

	"github.com/aldoetobex/assignment-portal/pkg/models"
)

// ErrPaymentCancelled is returned when the payer backs out. It is not a
// failure and callers return to idle without showing an error.
var ErrPaymentCancelled = errors.New("Payment cancelled")

// DeclineError is a charge the provider refused. Reason is the provider's
// explanation, worded for the payer.
type DeclineError struct {
	Reason string
}

func (e *DeclineError) Error() string { return "payment declined: " + e.Reason }

// Reason returns the text shown to the payer for a failed charge.
func Reason(err error) string {
	var de *DeclineError
	if errors.As(err, &de) && de.Reason != "" {
		return de.Reason
	}
	return "Payment could not be completed"
}

// Payer identifies who is paying, as the collaborator knows them.
type Payer struct {
	ID    string
	Email string
	Name  string
}

// Charge is one top-up attempt.
type Charge struct {
	Payer    Payer
	Amount   models.Money
	Currency string
	// Method is a provider payment method id, e.g. "pm_card_visa".
	Method string
}

// Receipt proves a captured payment to the marketplace.
type Receipt struct {
	Provider  string
	Reference string
}

// Collaborator takes money from a payer. It returns a receipt on success,
// ErrPaymentCancelled on cancellation, a *DeclineError when the provider
// refuses, or any other error for failures it cannot explain.
type Collaborator interface {
	Charge(ctx context.Context, ch Charge) (*Receipt, error)
	Name() string
}
