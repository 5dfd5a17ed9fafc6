package wallet

import "github.com/aldoetobex/assignment-portal/pkg/models"

type CategoryKey string

const (
	CategoryTopUp    CategoryKey = "top_up"
	CategoryIncoming CategoryKey = "incoming"
	CategoryOutgoing CategoryKey = "outgoing"
	CategoryUnknown  CategoryKey = "unknown"
)

// Category is how a ledger row is presented.
type Category struct {
	Key   CategoryKey `json:"key"`
	Label string      `json:"label"`
	Icon  string      `json:"icon"`
}

type txKey struct {
	typ    models.TxType
	reason models.TxReason
}

var categories = map[txKey]Category{
	{models.TxCredit, models.ReasonWalletTopUp}:     {CategoryTopUp, "Wallet top-up", "wallet"},
	{models.TxCredit, models.ReasonRefund}:          {CategoryIncoming, "Refund", "rotate-ccw"},
	{models.TxCredit, models.ReasonReferralBonus}:   {CategoryIncoming, "Referral bonus", "gift"},
	{models.TxCredit, models.ReasonCouponDiscount}:  {CategoryIncoming, "Coupon discount", "ticket"},
	{models.TxCredit, models.ReasonAdminAdjustment}: {CategoryIncoming, "Balance adjustment", "sliders"},
	{models.TxCredit, models.ReasonPayment}:         {CategoryIncoming, "Payment received", "arrow-down-left"},

	{models.TxDebit, models.ReasonPayment}:         {CategoryOutgoing, "Assignment payment", "arrow-up-right"},
	{models.TxDebit, models.ReasonAdminAdjustment}: {CategoryOutgoing, "Balance adjustment", "sliders"},
	{models.TxDebit, models.ReasonRefund}:          {CategoryOutgoing, "Refund reversed", "rotate-cw"},
	{models.TxDebit, models.ReasonReferralBonus}:   {CategoryOutgoing, "Referral bonus reversed", "gift"},
	{models.TxDebit, models.ReasonCouponDiscount}:  {CategoryOutgoing, "Coupon reversed", "ticket"},
	{models.TxDebit, models.ReasonWalletTopUp}:     {CategoryOutgoing, "Top-up reversed", "wallet"},
}

var fallback = Category{Key: CategoryUnknown, Label: "Other transaction", Icon: "circle-help"}

// Classify maps a transaction to its display category. It never fails:
// anything outside the known (type, reason) pairs gets the fallback.
func Classify(tx models.WalletTransaction) Category {
	if c, ok := categories[txKey{tx.Type, tx.Reason}]; ok {
		return c
	}
	return fallback
}

// Signed returns the amount as it moves the balance.
func Signed(tx models.WalletTransaction) models.Money {
	switch tx.Type {
	case models.TxCredit:
		return tx.Amount
	case models.TxDebit:
		return -tx.Amount
	}
	return 0
}
