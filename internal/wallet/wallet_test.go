package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/assignment-portal/internal/auth"
	"github.com/aldoetobex/assignment-portal/internal/marketplace"
	"github.com/aldoetobex/assignment-portal/internal/payments"
	"github.com/aldoetobex/assignment-portal/pkg/models"
)

/* ============================================================================
   Fakes
   ============================================================================ */

type fakeMarketplace struct {
	wallet    *models.Wallet
	walletErr error
	verifyErr error
	verified  []marketplace.TopUpVerification
}

func (f *fakeMarketplace) GetWallet(context.Context, string) (*models.Wallet, error) {
	if f.walletErr != nil {
		return nil, f.walletErr
	}
	return f.wallet, nil
}

func (f *fakeMarketplace) VerifyTopUp(_ context.Context, _ string, in marketplace.TopUpVerification) error {
	f.verified = append(f.verified, in)
	return f.verifyErr
}

type countingPayer struct {
	calls int
	err   error
}

func (p *countingPayer) Name() string { return "test" }

func (p *countingPayer) Charge(context.Context, payments.Charge) (*payments.Receipt, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &payments.Receipt{Provider: "test", Reference: "ref-1"}, nil
}

var t0 = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func tx(id string, typ models.TxType, reason models.TxReason, amount, after int64, at time.Time) models.WalletTransaction {
	return models.WalletTransaction{
		ID: id, Type: typ, Reason: reason,
		Amount: models.Major(amount), BalanceAfter: models.Major(after), Timestamp: at,
	}
}

func sampleWallet() *models.Wallet {
	return &models.Wallet{
		Balance: models.Major(700),
		Transactions: []models.WalletTransaction{
			tx("t1", models.TxCredit, models.ReasonWalletTopUp, 1000, 1000, t0.Add(-3*time.Hour)),
			tx("t3", models.TxCredit, models.ReasonRefund, 200, 700, t0.Add(-1*time.Hour)),
			tx("t2", models.TxDebit, models.ReasonPayment, 500, 500, t0.Add(-2*time.Hour)),
		},
	}
}

/* ============================================================================
   Classification
   ============================================================================ */

func TestClassify_EveryKnownPair(t *testing.T) {
	for _, typ := range []models.TxType{models.TxCredit, models.TxDebit} {
		for _, reason := range models.TxReasons {
			c := Classify(models.WalletTransaction{Type: typ, Reason: reason})
			assert.NotEqual(t, CategoryUnknown, c.Key, "%s/%s", typ, reason)
			assert.NotEmpty(t, c.Label)
			assert.NotEmpty(t, c.Icon)
			if typ == models.TxDebit {
				assert.Equal(t, CategoryOutgoing, c.Key)
			}
		}
	}
	assert.Equal(t, CategoryTopUp, Classify(models.WalletTransaction{Type: models.TxCredit, Reason: models.ReasonWalletTopUp}).Key)
}

func TestClassify_UnknownFallsBack(t *testing.T) {
	for _, in := range []models.WalletTransaction{
		{Type: models.TxCredit, Reason: "cashback"},
		{Type: "transfer", Reason: models.ReasonPayment},
		{},
	} {
		c := Classify(in)
		assert.Equal(t, CategoryUnknown, c.Key)
		assert.Equal(t, "Other transaction", c.Label)
	}
}

func TestSigned(t *testing.T) {
	assert.Equal(t, models.Major(5), Signed(models.WalletTransaction{Type: models.TxCredit, Amount: models.Major(5)}))
	assert.Equal(t, models.Major(-5), Signed(models.WalletTransaction{Type: models.TxDebit, Amount: models.Major(5)}))
	assert.Equal(t, models.Money(0), Signed(models.WalletTransaction{Type: "x", Amount: models.Major(5)}))
}

/* ============================================================================
   Ledger
   ============================================================================ */

func TestLoadHistory_NewestFirst(t *testing.T) {
	svc := NewService(&fakeMarketplace{wallet: sampleWallet()}, &countingPayer{}, "INR", nil)

	l, err := svc.LoadHistory(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, models.Major(700), l.Balance)
	require.Len(t, l.Transactions, 3)
	assert.Equal(t, "t3", l.Transactions[0].ID)
	assert.Equal(t, "t2", l.Transactions[1].ID)
	assert.Equal(t, "t1", l.Transactions[2].ID)
	assert.Equal(t, models.Major(-500), l.Transactions[1].SignedAmount)
	assert.Equal(t, CategoryOutgoing, l.Transactions[1].Category.Key)
}

func TestLoadHistory_TiesBreakOnID(t *testing.T) {
	w := &models.Wallet{Transactions: []models.WalletTransaction{
		tx("a", models.TxCredit, models.ReasonRefund, 1, 1, t0),
		tx("c", models.TxCredit, models.ReasonRefund, 1, 3, t0),
		tx("b", models.TxCredit, models.ReasonRefund, 1, 2, t0),
	}}
	svc := NewService(&fakeMarketplace{wallet: w}, &countingPayer{}, "INR", nil)
	l, err := svc.LoadHistory(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "c", l.Transactions[0].ID)
	assert.Equal(t, "b", l.Transactions[1].ID)
	assert.Equal(t, "a", l.Transactions[2].ID)
}

func TestLoadHistory_ErrorHasNoLedger(t *testing.T) {
	svc := NewService(&fakeMarketplace{walletErr: marketplace.ErrTransport}, &countingPayer{}, "INR", nil)
	l, err := svc.LoadHistory(context.Background(), "tok")
	assert.Nil(t, l)
	assert.ErrorIs(t, err, marketplace.ErrTransport)
}

func TestReconcile(t *testing.T) {
	assert.Empty(t, Reconcile(sampleWallet().Transactions))

	broken := sampleWallet().Transactions
	broken[1].BalanceAfter = models.Major(650)
	got := Reconcile(broken)
	require.Len(t, got, 1)
	assert.Equal(t, "t3", got[0].ID)
	assert.Equal(t, models.Major(700), got[0].Expected)
	assert.Equal(t, models.Major(650), got[0].Reported)

	assert.Nil(t, Reconcile(broken[:1]))
}

/* ============================================================================
   Top-up
   ============================================================================ */

func TestRequestTopUp_OutOfRangeNeverCharges(t *testing.T) {
	for _, amt := range []models.Money{0, models.Major(100001), -models.Major(5), models.Money(99)} {
		payer := &countingPayer{}
		svc := NewService(&fakeMarketplace{wallet: sampleWallet()}, payer, "INR", nil)
		out, err := svc.RequestTopUp(context.Background(), "tok", payments.Payer{ID: "s-1"}, amt, "")
		assert.ErrorIs(t, err, ErrAmountOutOfRange, amt.String())
		assert.Nil(t, out)
		assert.Zero(t, payer.calls, amt.String())
	}
}

func TestRequestTopUp_Bounds(t *testing.T) {
	assert.NoError(t, ValidateAmount(models.Major(1)))
	assert.NoError(t, ValidateAmount(models.Major(100000)))
	assert.NoError(t, ValidateAmount(models.Money(150)))
}

func TestRequestTopUp_Success(t *testing.T) {
	mp := &fakeMarketplace{wallet: sampleWallet()}
	payer := &countingPayer{}
	svc := NewService(mp, payer, "INR", nil)

	out, err := svc.RequestTopUp(context.Background(), "tok", payments.Payer{ID: "s-1"}, models.Major(500), "pm_card")
	require.NoError(t, err)
	assert.Equal(t, 1, payer.calls)
	assert.Equal(t, TopUpSucceeded, out.Status)
	assert.False(t, out.ModalOpen)
	require.NotNil(t, out.Ledger)
	assert.Len(t, out.Ledger.Transactions, 3)

	require.Len(t, mp.verified, 1)
	assert.Equal(t, "ref-1", mp.verified[0].PaymentReference)
	assert.Equal(t, models.Major(500), mp.verified[0].Amount)
}

func TestRequestTopUp_CancelledIsIdle(t *testing.T) {
	mp := &fakeMarketplace{wallet: sampleWallet()}
	svc := NewService(mp, &countingPayer{err: payments.ErrPaymentCancelled}, "INR", nil)

	out, err := svc.RequestTopUp(context.Background(), "tok", payments.Payer{ID: "s-1"}, models.Major(10), "")
	require.NoError(t, err)
	assert.Equal(t, TopUpIdle, out.Status)
	assert.Empty(t, out.Message)
	assert.Empty(t, mp.verified)
}

func TestRequestTopUp_FailureKeepsModalOpen(t *testing.T) {
	mp := &fakeMarketplace{wallet: sampleWallet()}
	svc := NewService(mp, &countingPayer{err: &payments.DeclineError{Reason: "Your card was declined."}}, "INR", nil)

	out, err := svc.RequestTopUp(context.Background(), "tok", payments.Payer{ID: "s-1"}, models.Major(10), "")
	require.NoError(t, err)
	assert.Equal(t, TopUpFailed, out.Status)
	assert.Equal(t, "Your card was declined.", out.Message)
	assert.True(t, out.ModalOpen)
	assert.Nil(t, out.Ledger)
	assert.Empty(t, mp.verified)
}

func TestRequestTopUp_CreditFailureIsPending(t *testing.T) {
	mp := &fakeMarketplace{wallet: sampleWallet(), verifyErr: &marketplace.APIError{Status: 500, Message: "boom"}}
	payer := &countingPayer{}
	svc := NewService(mp, payer, "INR", nil)

	out, err := svc.RequestTopUp(context.Background(), "tok", payments.Payer{ID: "s-1"}, models.Major(10), "")
	require.NoError(t, err)
	assert.Equal(t, TopUpPending, out.Status)
	assert.Equal(t, 1, payer.calls)
	assert.Equal(t, "ref-1", out.Reference)
}

/* ============================================================================
   HTTP
   ============================================================================ */

func newTestApp(svc *Service) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	g := app.Group("/api/wallet", func(c *fiber.Ctx) error {
		c.Locals("userID", "s-1")
		c.Locals("role", string(models.RoleStudent))
		c.Locals("token", "tok")
		return c.Next()
	})
	h := NewHandler(svc)
	g.Get("/", h.Get)
	g.Post("/topup", h.TopUp)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHTTP_GetWallet(t *testing.T) {
	app := newTestApp(NewService(&fakeMarketplace{wallet: sampleWallet()}, &countingPayer{}, "INR", nil))

	code, body := do(t, app, fiber.MethodGet, "/api/wallet", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 700.0, body["balance"])
	txs := body["transactions"].([]any)
	require.Len(t, txs, 3)
	first := txs[0].(map[string]any)
	assert.Equal(t, "t3", first["id"])
	assert.Equal(t, "Refund", first["category"].(map[string]any)["label"])
}

func TestHTTP_GetWalletUpstreamDown(t *testing.T) {
	app := newTestApp(NewService(&fakeMarketplace{walletErr: marketplace.ErrTransport}, &countingPayer{}, "INR", nil))

	code, body := do(t, app, fiber.MethodGet, "/api/wallet", "")
	assert.Equal(t, fiber.StatusBadGateway, code)
	assert.Equal(t, "Could not load your wallet. Please try again.", body["message"])
}

func TestHTTP_TopUp(t *testing.T) {
	payer := &countingPayer{}
	app := newTestApp(NewService(&fakeMarketplace{wallet: sampleWallet()}, payer, "INR", nil))

	code, body := do(t, app, fiber.MethodPost, "/api/wallet/topup", `{"amount":0}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, code)
	assert.Contains(t, body["errors"], "amount")

	code, body = do(t, app, fiber.MethodPost, "/api/wallet/topup", `{"amount":100001}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, code)
	assert.Equal(t, []any{"Amount must be between 1 and 100000"}, body["errors"].(map[string]any)["amount"])

	code, _ = do(t, app, fiber.MethodPost, "/api/wallet/topup", `{"amount":"abc"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, code)
	assert.Zero(t, payer.calls)

	code, body = do(t, app, fiber.MethodPost, "/api/wallet/topup", `{"amount":500,"payment_method":"pm_card"}`)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "succeeded", body["status"])
	assert.Equal(t, 1, payer.calls)
}

func TestHTTP_TopUpHugeAmountNeverCharges(t *testing.T) {
	payer := &countingPayer{}
	app := newTestApp(NewService(&fakeMarketplace{wallet: sampleWallet()}, payer, "INR", nil))

	// Both would wrap to a small in-range value if the minor-unit product overflowed.
	for _, body := range []string{`{"amount":184467440737095518}`, `{"amount":1.8446744073709552e17}`, `{"amount":"92233720368547758.08"}`} {
		code, _ := do(t, app, fiber.MethodPost, "/api/wallet/topup", body)
		assert.Equal(t, fiber.StatusUnprocessableEntity, code, body)
	}
	assert.Zero(t, payer.calls)
}

func TestHTTP_TopUpDeclined(t *testing.T) {
	app := newTestApp(NewService(&fakeMarketplace{wallet: sampleWallet()},
		&countingPayer{err: &payments.DeclineError{Reason: "Your card was declined."}}, "INR", nil))

	code, body := do(t, app, fiber.MethodPost, "/api/wallet/topup", `{"amount":50}`)
	assert.Equal(t, fiber.StatusPaymentRequired, code)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, true, body["modal_open"])
	assert.Equal(t, "Your card was declined.", body["message"])
}

func TestRequestTopUp_UnexplainedFailureHasGenericMessage(t *testing.T) {
	svc := NewService(&fakeMarketplace{wallet: sampleWallet()},
		&countingPayer{err: errors.New("stripe: connection reset")}, "INR", nil)

	out, err := svc.RequestTopUp(context.Background(), "tok", payments.Payer{ID: "s-1"}, models.Major(10), "")
	require.NoError(t, err)
	assert.Equal(t, TopUpFailed, out.Status)
	assert.Equal(t, "Payment could not be completed", out.Message)
}
