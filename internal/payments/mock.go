package payments

import (
	"context"

	"github.com/google/uuid"
)

// Mock settles every charge locally. The payment method drives the outcome:
// "pm_cancel" cancels, "pm_fail" declines, anything else succeeds.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (*Mock) Name() string { return "mock" }

func (*Mock) Charge(ctx context.Context, ch Charge) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch ch.Method {
	case "pm_cancel":
		return nil, ErrPaymentCancelled
	case "pm_fail":
		return nil, &DeclineError{Reason: "Your card was declined."}
	}
	return &Receipt{Provider: "mock", Reference: "mock_" + uuid.NewString()}, nil
}
