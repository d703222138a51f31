package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CardState represents the lifecycle state of a prepaid card.
type CardState string

const (
	CardStateIssued               CardState = "ISSUED"
	CardStateActivated            CardState = "ACTIVATED"
	CardStateFrozen               CardState = "FROZEN"
	CardStateReplacementRequested CardState = "REPLACEMENT_REQUESTED"
	CardStateBlocked              CardState = "BLOCKED"
)

// cardTransitions is the closed set of allowed lifecycle edges. BLOCKED is
// terminal. The registry service is the only mutator of card state.
var cardTransitions = map[CardState][]CardState{
	CardStateIssued:               {CardStateActivated, CardStateBlocked},
	CardStateActivated:            {CardStateFrozen, CardStateBlocked, CardStateReplacementRequested},
	CardStateFrozen:               {CardStateActivated, CardStateBlocked, CardStateReplacementRequested},
	CardStateReplacementRequested: {CardStateBlocked},
	CardStateBlocked:              {},
}

// CanTransitionTo reports whether moving to next is an allowed edge.
func (s CardState) CanTransitionTo(next CardState) bool {
	for _, allowed := range cardTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state admits no further transitions.
func (s CardState) IsTerminal() bool {
	return len(cardTransitions[s]) == 0
}

// PrepaidCard is a single physical card. The raw chip UID is never
// persisted; only its SHA-256 hash is retained, bound at activation.
// Invariant at every mutation: balance >= 0, held >= 0, held <= balance.
type PrepaidCard struct {
	ID             uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	ProgramID      uuid.UUID       `json:"program_id" gorm:"type:char(36);not null;index"`
	BatchID        uuid.UUID       `json:"batch_id" gorm:"type:char(36);not null;index"`
	SerialNumber   string          `json:"serial_number" gorm:"uniqueIndex;size:32;not null"`
	SequenceNumber int64           `json:"sequence_number" gorm:"not null;index"`
	ActivationCode string          `json:"-" gorm:"uniqueIndex;size:64;not null"`
	UIDHash        *string         `json:"-" gorm:"uniqueIndex;size:64"`
	PINHash        string          `json:"-" gorm:"size:255"`
	PINAttempts    int             `json:"-" gorm:"default:0"`
	PINLockedUntil *time.Time      `json:"-"`
	Balance        decimal.Decimal `json:"balance" gorm:"type:decimal(20,2);not null;default:0"`
	Held           decimal.Decimal `json:"held" gorm:"type:decimal(20,2);not null;default:0"`
	State          CardState       `json:"state" gorm:"type:varchar(30);not null;default:'ISSUED';index"`
	VendorID       *uuid.UUID      `json:"vendor_id,omitempty" gorm:"type:char(36);index"`
	UserID         *uuid.UUID      `json:"user_id,omitempty" gorm:"type:char(36);index"`
	ActivatedAt    *time.Time      `json:"activated_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `json:"-" gorm:"index"`

	// Relations
	Program CardProgram `json:"-" gorm:"foreignKey:ProgramID"`
	Batch   CardBatch   `json:"-" gorm:"foreignKey:BatchID"`
}

// BeforeCreate sets UUID before creating the record.
func (c *PrepaidCard) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Available returns balance minus held.
func (c *PrepaidCard) Available() decimal.Decimal {
	return c.Balance.Sub(c.Held)
}

// PINLocked reports whether the card's PIN is currently locked.
func (c *PrepaidCard) PINLocked(now time.Time) bool {
	return c.PINLockedUntil != nil && now.Before(*c.PINLockedUntil)
}
