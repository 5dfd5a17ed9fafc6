package wallet

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/aldoetobex/assignment-portal/internal/marketplace"
	"github.com/aldoetobex/assignment-portal/internal/payments"
	"github.com/aldoetobex/assignment-portal/pkg/models"
)

// Marketplace is what the wallet reads and asks the server to credit.
type Marketplace interface {
	GetWallet(ctx context.Context, token string) (*models.Wallet, error)
	VerifyTopUp(ctx context.Context, token string, in marketplace.TopUpVerification) error
}

// Entry is a ledger row ready for display.
type Entry struct {
	models.WalletTransaction
	Category     Category     `json:"category"`
	SignedAmount models.Money `json:"signed_amount"`
}

// Ledger is the wallet as shown: newest transaction first.
type Ledger struct {
	Balance      models.Money `json:"balance"`
	Transactions []Entry      `json:"transactions"`
}

// Service backs the wallet page.
type Service struct {
	mp       Marketplace
	payer    payments.Collaborator
	currency string
	log      *zap.Logger
}

func NewService(mp Marketplace, payer payments.Collaborator, currency string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{mp: mp, payer: payer, currency: currency, log: log}
}

// LoadHistory fetches the wallet. On error the caller must show an error
// state; there is no partial or cached ledger.
func (s *Service) LoadHistory(ctx context.Context, token string) (*Ledger, error) {
	w, err := s.mp.GetWallet(ctx, token)
	if err != nil {
		return nil, err
	}

	for _, m := range Reconcile(w.Transactions) {
		s.log.Warn("wallet balance does not replay",
			zap.String("transaction", m.ID),
			zap.String("expected", m.Expected.String()),
			zap.String("reported", m.Reported.String()))
	}

	entries := make([]Entry, 0, len(w.Transactions))
	for _, tx := range w.Transactions {
		entries = append(entries, Entry{
			WalletTransaction: tx,
			Category:          Classify(tx),
			SignedAmount:      Signed(tx),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID > b.ID
	})
	return &Ledger{Balance: w.Balance, Transactions: entries}, nil
}

// Mismatch is a transaction whose reported balance disagrees with replay.
type Mismatch struct {
	ID       string
	Expected models.Money
	Reported models.Money
}

// Reconcile replays transactions oldest first and reports every entry whose
// BalanceAfter is not the previous BalanceAfter plus its signed amount. The
// first entry anchors the replay. The server value is always what is shown.
func Reconcile(txs []models.WalletTransaction) []Mismatch {
	if len(txs) < 2 {
		return nil
	}
	ordered := append([]models.WalletTransaction(nil), txs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		return ordered[i].ID < ordered[j].ID
	})

	var out []Mismatch
	running := ordered[0].BalanceAfter
	for _, tx := range ordered[1:] {
		expected := running + Signed(tx)
		if expected != tx.BalanceAfter {
			out = append(out, Mismatch{ID: tx.ID, Expected: expected, Reported: tx.BalanceAfter})
		}
		running = tx.BalanceAfter
	}
	return out
}
