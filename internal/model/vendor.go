package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VendorStatus represents the approval status of a vendor.
type VendorStatus string

const (
	VendorStatusPending   VendorStatus = "PENDING"
	VendorStatusApproved  VendorStatus = "APPROVED"
	VendorStatusSuspended VendorStatus = "SUSPENDED"
)

// CommissionType selects how a vendor's commission is computed.
type CommissionType string

const (
	CommissionTypePercent CommissionType = "PERCENT" // rate is a percentage of sale price
	CommissionTypeFlat    CommissionType = "FLAT"    // rate is a fixed amount per card
)

// Vendor is a reseller that distributes physical card inventory.
type Vendor struct {
	ID                uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	BusinessName      string          `json:"business_name" gorm:"size:255;not null"`
	ContactEmail      string          `json:"contact_email" gorm:"uniqueIndex;size:255;not null"`
	Status            VendorStatus    `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	CommissionType    CommissionType  `json:"commission_type" gorm:"type:varchar(20);not null;default:'PERCENT'"`
	CommissionRate    decimal.Decimal `json:"commission_rate" gorm:"type:decimal(20,2);not null;default:0"`
	MaxInventoryValue decimal.Decimal `json:"max_inventory_value" gorm:"type:decimal(20,2);not null;default:0"`
	UserID            *uuid.UUID      `json:"user_id,omitempty" gorm:"type:char(36);uniqueIndex"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `json:"-" gorm:"index"`

	// Relations
	Assignments []VendorInventoryAssignment `json:"assignments,omitempty" gorm:"foreignKey:VendorID"`
}

// BeforeCreate sets UUID before creating the record.
func (v *Vendor) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// Commission computes the commission owed for one card sold at salePrice.
func (v *Vendor) Commission(salePrice decimal.Decimal) decimal.Decimal {
	if v.CommissionType == CommissionTypeFlat {
		return v.CommissionRate
	}
	return salePrice.Mul(v.CommissionRate).Div(decimal.NewFromInt(100)).Round(2)
}

// VendorInventoryAssignment delegates a contiguous sub-range of a batch's
// sequence space to one vendor. Ranges are half-open: [SequenceStart,
// SequenceEnd). Assignments for the same batch never overlap.
type VendorInventoryAssignment struct {
	ID            uuid.UUID      `json:"id" gorm:"type:char(36);primaryKey"`
	VendorID      uuid.UUID      `json:"vendor_id" gorm:"type:char(36);not null;index"`
	BatchID       uuid.UUID      `json:"batch_id" gorm:"type:char(36);not null;index"`
	SequenceStart int64          `json:"sequence_start" gorm:"not null"`
	SequenceEnd   int64          `json:"sequence_end" gorm:"not null"` // exclusive
	SoldCount     int64          `json:"sold_count" gorm:"not null;default:0"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Vendor Vendor    `json:"-" gorm:"foreignKey:VendorID"`
	Batch  CardBatch `json:"-" gorm:"foreignKey:BatchID"`
}

// BeforeCreate sets UUID before creating the record.
func (a *VendorInventoryAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Count returns the number of cards in the assigned range.
func (a *VendorInventoryAssignment) Count() int64 {
	return a.SequenceEnd - a.SequenceStart
}

// Overlaps reports whether two half-open ranges on the same batch intersect.
func (a *VendorInventoryAssignment) Overlaps(start, end int64) bool {
	return start < a.SequenceEnd && a.SequenceStart < end
}

// VendorSale records a vendor selling one physical card to a customer,
// together with the commission owed under the vendor's terms.
type VendorSale struct {
	ID            uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	VendorID      uuid.UUID       `json:"vendor_id" gorm:"type:char(36);not null;index"`
	CardID        uuid.UUID       `json:"card_id" gorm:"type:char(36);not null;uniqueIndex"`
	SalePrice     decimal.Decimal `json:"sale_price" gorm:"type:decimal(20,2);not null"`
	PaymentMethod string          `json:"payment_method" gorm:"size:32;not null"`
	Commission    decimal.Decimal `json:"commission" gorm:"type:decimal(20,2);not null"`
	CreatedAt     time.Time       `json:"created_at"`

	// Relations
	Vendor Vendor      `json:"-" gorm:"foreignKey:VendorID"`
	Card   PrepaidCard `json:"-" gorm:"foreignKey:CardID"`
}

// BeforeCreate sets UUID before creating the record.
func (s *VendorSale) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
