package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerEntryType classifies a ledger entry.
type LedgerEntryType string

const (
	LedgerEntryDebit          LedgerEntryType = "DEBIT"
	LedgerEntryCredit         LedgerEntryType = "CREDIT"
	LedgerEntryReversal       LedgerEntryType = "REVERSAL" // trace for reversed offline txns, no balance effect
	LedgerEntryReplacementOut LedgerEntryType = "REPLACEMENT_OUT"
	LedgerEntryReplacementIn  LedgerEntryType = "REPLACEMENT_IN"
)

// LedgerEntry is an append-only record of a balance movement. Entries are
// never edited or deleted; amendments are new offsetting entries, and the
// current balance is always reconstructable as the sum of entries.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	CardID        uuid.UUID       `json:"card_id" gorm:"type:char(36);not null;index"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty" gorm:"type:char(36);index"`
	EntryType     LedgerEntryType `json:"entry_type" gorm:"type:varchar(20);not null;index"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	BalanceBefore decimal.Decimal `json:"balance_before" gorm:"type:decimal(20,2);not null"`
	BalanceAfter  decimal.Decimal `json:"balance_after" gorm:"type:decimal(20,2);not null"`
	Signature     string          `json:"signature" gorm:"size:64;not null"`
	CreatedAt     time.Time       `json:"created_at"`
}

// BeforeCreate sets UUID before creating the record.
func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
