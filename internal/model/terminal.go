package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Terminal is a POS device authorized to originate tap-to-pay requests.
// It authenticates with a static API key; only the key's SHA-256 hash is
// stored. A terminal belongs to exactly one merchant.
type Terminal struct {
	ID           uuid.UUID      `json:"id" gorm:"type:char(36);primaryKey"`
	TerminalCode string         `json:"terminal_code" gorm:"uniqueIndex;size:32;not null"`
	MerchantCode string         `json:"merchant_code" gorm:"size:32;not null;index"`
	MerchantName string         `json:"merchant_name" gorm:"size:255;not null"`
	APIKeyHash   string         `json:"-" gorm:"uniqueIndex;size:64;not null"`
	Active       bool           `json:"active" gorm:"default:true;index"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate sets UUID before creating the record.
func (t *Terminal) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
