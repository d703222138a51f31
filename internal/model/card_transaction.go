package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionStatus represents the state of a tap-to-pay transaction.
type TransactionStatus string

const (
	TransactionStatusInitiated             TransactionStatus = "INITIATED"
	TransactionStatusApproved              TransactionStatus = "APPROVED"
	TransactionStatusDeclined              TransactionStatus = "DECLINED"
	TransactionStatusPendingReconciliation TransactionStatus = "PENDING_RECONCILIATION"
	TransactionStatusReconciled            TransactionStatus = "RECONCILED"
	TransactionStatusReversed              TransactionStatus = "REVERSED"
)

// DeclineCode is an enumerated business reason a transaction was not
// approved. Declines are expected outcomes, not transport errors.
type DeclineCode string

const (
	DeclineCardNotActivated       DeclineCode = "CARD_NOT_ACTIVATED"
	DeclineCardFrozen             DeclineCode = "CARD_FROZEN"
	DeclineCardBlocked            DeclineCode = "CARD_BLOCKED"
	DeclineInvalidResponse        DeclineCode = "INVALID_RESPONSE"
	DeclineChallengeExpired       DeclineCode = "CHALLENGE_EXPIRED"
	DeclinePINNotSet              DeclineCode = "PIN_NOT_SET"
	DeclinePINInvalid             DeclineCode = "PIN_INVALID"
	DeclinePINLocked              DeclineCode = "PIN_LOCKED"
	DeclineLimitExceeded          DeclineCode = "LIMIT_EXCEEDED"
	DeclineInsufficientFunds      DeclineCode = "INSUFFICIENT_FUNDS"
	DeclineOfflineCeilingExceeded DeclineCode = "OFFLINE_CEILING_EXCEEDED"
	DeclineTimeout                DeclineCode = "TIMEOUT"
	DeclineProcessingError        DeclineCode = "PROCESSING_ERROR"
)

// CardTransaction is one tap-to-pay attempt against a card. Offline
// transactions pass through PENDING_RECONCILIATION before settling.
type CardTransaction struct {
	ID             uuid.UUID         `json:"id" gorm:"type:char(36);primaryKey"`
	CardID         uuid.UUID         `json:"card_id" gorm:"type:char(36);not null;index"`
	TerminalID     uuid.UUID         `json:"terminal_id" gorm:"type:char(36);not null;index"`
	MerchantRef    string            `json:"merchant_ref" gorm:"size:64;not null;index"`
	Amount         decimal.Decimal   `json:"amount" gorm:"type:decimal(20,2);not null"`
	Currency       string            `json:"currency" gorm:"size:3;not null"`
	Status         TransactionStatus `json:"status" gorm:"type:varchar(30);not null;default:'INITIATED';index"`
	DeclineCode    DeclineCode       `json:"decline_code,omitempty" gorm:"type:varchar(30);index"`
	DeclineReason  string            `json:"decline_reason,omitempty" gorm:"size:255"`
	IdempotencyKey string            `json:"idempotency_key" gorm:"uniqueIndex;size:64;not null"`
	IsOffline      bool              `json:"is_offline" gorm:"default:false;index"`
	BalanceAfter   decimal.Decimal   `json:"balance_after" gorm:"type:decimal(20,2);not null;default:0"`
	ReconciledAt   *time.Time        `json:"reconciled_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	DeletedAt      gorm.DeletedAt    `json:"-" gorm:"index"`

	// Relations
	Card     PrepaidCard `json:"-" gorm:"foreignKey:CardID"`
	Terminal Terminal    `json:"-" gorm:"foreignKey:TerminalID"`
}

// BeforeCreate sets UUID before creating the record.
func (t *CardTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Settled reports whether the transaction reached a final status.
func (t *CardTransaction) Settled() bool {
	switch t.Status {
	case TransactionStatusApproved, TransactionStatusDeclined,
		TransactionStatusReconciled, TransactionStatusReversed:
		return true
	}
	return false
}
