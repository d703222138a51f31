package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReplacementReason is the customer-stated reason for reissuing a card.
type ReplacementReason string

const (
	ReplacementReasonLost    ReplacementReason = "lost"
	ReplacementReasonStolen  ReplacementReason = "stolen"
	ReplacementReasonDamaged ReplacementReason = "damaged"
	ReplacementReasonExpired ReplacementReason = "expired"
)

// ValidReplacementReason reports whether r is a known reason.
func ValidReplacementReason(r ReplacementReason) bool {
	switch r {
	case ReplacementReasonLost, ReplacementReasonStolen,
		ReplacementReasonDamaged, ReplacementReasonExpired:
		return true
	}
	return false
}

// ReplacementStatus tracks a replacement request's fulfilment.
type ReplacementStatus string

const (
	ReplacementStatusPending   ReplacementStatus = "PENDING"
	ReplacementStatusCompleted ReplacementStatus = "COMPLETED"
)

// ReplacementRequest links a blocked card to its reissued successor. The
// old card is blocked the moment the request is accepted.
type ReplacementRequest struct {
	ID              uuid.UUID         `json:"id" gorm:"type:char(36);primaryKey"`
	OldCardID       uuid.UUID         `json:"old_card_id" gorm:"type:char(36);not null;index"`
	NewCardID       *uuid.UUID        `json:"new_card_id,omitempty" gorm:"type:char(36);index"`
	UserID          uuid.UUID         `json:"user_id" gorm:"type:char(36);not null;index"`
	Reason          ReplacementReason `json:"reason" gorm:"type:varchar(20);not null"`
	DeliveryAddress string            `json:"delivery_address" gorm:"size:512;not null"`
	Status          ReplacementStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	DeletedAt       gorm.DeletedAt    `json:"-" gorm:"index"`

	// Relations
	OldCard PrepaidCard  `json:"-" gorm:"foreignKey:OldCardID"`
	NewCard *PrepaidCard `json:"-" gorm:"foreignKey:NewCardID"`
}

// BeforeCreate sets UUID before creating the record.
func (r *ReplacementRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
