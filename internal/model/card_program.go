package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProgramStatus represents the lifecycle status of a card program.
type ProgramStatus string

const (
	ProgramStatusActive    ProgramStatus = "ACTIVE"
	ProgramStatusSuspended ProgramStatus = "SUSPENDED"
	ProgramStatusRetired   ProgramStatus = "RETIRED"
)

// CardProgram defines the commercial terms shared by every card issued
// under it: pricing, limits and validity.
type CardProgram struct {
	ID                  uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	Code                string          `json:"code" gorm:"uniqueIndex;size:32;not null"`
	Name                string          `json:"name" gorm:"size:255;not null"`
	Category            string          `json:"category" gorm:"size:64;not null;index"`
	IsReloadable        bool            `json:"is_reloadable" gorm:"default:false"`
	RequiresKYC         bool            `json:"requires_kyc" gorm:"default:false"`
	IssuancePrice       decimal.Decimal `json:"issuance_price" gorm:"type:decimal(20,2);not null"`
	InitialBalance      decimal.Decimal `json:"initial_balance" gorm:"type:decimal(20,2);not null"`
	PerTransactionLimit decimal.Decimal `json:"per_transaction_limit" gorm:"type:decimal(20,2);not null"`
	DailyLimit          decimal.Decimal `json:"daily_limit" gorm:"type:decimal(20,2);not null"`
	ValidFrom           time.Time       `json:"valid_from"`
	ValidUntil          time.Time       `json:"valid_until"`
	Status              ProgramStatus   `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	DeletedAt           gorm.DeletedAt  `json:"-" gorm:"index"`

	// Relations
	Batches []CardBatch `json:"batches,omitempty" gorm:"foreignKey:ProgramID"`
}

// BeforeCreate sets UUID before creating the record.
func (p *CardProgram) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
