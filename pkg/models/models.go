package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

/* =============================== Enums ================================== */

// Role defines the type of user signed in to the portal.
type Role string

const (
	RoleStudent    Role = "student"
	RoleAdmin      Role = "admin"
	RoleFreelancer Role = "freelancer"
)

// Stage is the lifecycle key of an assignment as sent by the marketplace.
// Display metadata and progress live in internal/stage.
type Stage string

const (
	StageSubmitted   Stage = "submitted"
	StageAssigned    Stage = "assigned"
	StageInProgress  Stage = "in_progress"
	StageUnderReview Stage = "under_review"
	StageCompleted   Stage = "completed"
	StageRevision    Stage = "revision"
	StageCancelled   Stage = "cancelled"
)

// TxType is the accounting side of a wallet transaction.
type TxType string

const (
	TxCredit TxType = "credit"
	TxDebit  TxType = "debit"
)

// TxReason is the business reason of a wallet transaction.
type TxReason string

const (
	ReasonPayment         TxReason = "payment"
	ReasonRefund          TxReason = "refund"
	ReasonReferralBonus   TxReason = "referral_bonus"
	ReasonCouponDiscount  TxReason = "coupon_discount"
	ReasonWalletTopUp     TxReason = "wallet_topup"
	ReasonAdminAdjustment TxReason = "admin_adjustment"
)

// TxReasons lists every reason the ledger knows how to present.
var TxReasons = []TxReason{
	ReasonPayment, ReasonRefund, ReasonReferralBonus,
	ReasonCouponDiscount, ReasonWalletTopUp, ReasonAdminAdjustment,
}

// SubmissionStatus tracks a wizard session that reached the marketplace.
type SubmissionStatus string

const (
	SubmissionSubmitting SubmissionStatus = "submitting"
	SubmissionSubmitted  SubmissionStatus = "submitted"
	SubmissionFailed     SubmissionStatus = "failed"
)

// TopUpStatus defines lifecycle states for a wallet top-up attempt.
type TopUpStatus string

const (
	TopUpInitiated TopUpStatus = "initiated"
	TopUpPaid      TopUpStatus = "paid"
	TopUpCancelled TopUpStatus = "cancelled"
	TopUpFailed    TopUpStatus = "failed"
)

/* ============================ Wire shapes =============================== */

// FileRef is an attached file as stored by the marketplace.
type FileRef struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// HistoryEvent is one entry of the server-produced stage log.
type HistoryEvent struct {
	Stage     Stage     `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// Assignment is the central marketplace record.
// History is nil for records whose log is unavailable.
type Assignment struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Type             AssignmentType `json:"type"`
	Subtype          string         `json:"subtype"`
	Subject          string         `json:"subject,omitempty"`
	AcademicLevel    AcademicLevel  `json:"academic_level"`
	WordCount        string         `json:"word_count,omitempty"`
	ReferencingStyle string         `json:"referencing_style,omitempty"`
	Instructions     string         `json:"instructions,omitempty"`
	Files            []FileRef      `json:"files"`

	FreelancerAmount Money `json:"freelancer_amount"`
	TotalAmount      Money `json:"total_amount"`
	MarksObtained    *int  `json:"marks_obtained"`

	SubmittedAt time.Time `json:"submitted_at"`
	Deadline    time.Time `json:"deadline"`

	StudentName     string  `json:"student_name"`
	StudentEmail    string  `json:"student_email"`
	StudentPhone    string  `json:"student_phone"`
	PMName          *string `json:"pm_name"`
	PMPhone         *string `json:"pm_phone"`
	FreelancerName  *string `json:"freelancer_name"`
	FreelancerPhone *string `json:"freelancer_phone"`

	Stage   Stage          `json:"stage"`
	History []HistoryEvent `json:"history,omitempty"`
}

// WalletTransaction is one ledger entry. BalanceAfter is the server's
// running balance immediately after this entry.
type WalletTransaction struct {
	ID           string    `json:"id"`
	Type         TxType    `json:"type"`
	Reason       TxReason  `json:"reason"`
	Amount       Money     `json:"amount"`
	BalanceAfter Money     `json:"balance_after"`
	AssignmentID string    `json:"assignment_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Wallet is the marketplace response for the signed-in student.
type Wallet struct {
	Balance      Money               `json:"balance"`
	Transactions []WalletTransaction `json:"transactions"`
}

/* =============================== Entities =============================== */

// Submission is the portal's audit row for a wizard session that reached the
// marketplace. SessionID is unique so a session maps to at most one assignment.
type Submission struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID    string           `gorm:"type:varchar(64);uniqueIndex;not null"`
	StudentID    string           `gorm:"type:varchar(64);not null;index"`
	AssignmentID *string          `gorm:"type:varchar(64)"`
	Status       SubmissionStatus `gorm:"type:varchar(20);default:'submitting'"`
	LastError    string           `gorm:"type:text"`
	Attempts     int              `gorm:"not null;default:0"`
	Draft        datatypes.JSON   `gorm:"type:jsonb"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TopUp represents a wallet top-up attempt through a payment collaborator.
type TopUp struct {
	ID          uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	StudentID   string      `gorm:"type:varchar(64);not null;index"`
	AmountMinor int64       `gorm:"not null"` // minor units, like the ledger
	Provider    string      `gorm:"type:varchar(20);not null"`
	Reference   *string     `gorm:"uniqueIndex:ux_topup_reference_filled"`
	Status      TopUpStatus `gorm:"type:varchar(20);default:'initiated'"`
	Message     string      `gorm:"type:text"`
	CreatedAt   time.Time   `gorm:"not null;default:now()"`
	UpdatedAt   time.Time   `gorm:"not null;default:now()"`
}
