package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BatchStatus represents the manufacturing/distribution status of a batch.
type BatchStatus string

const (
	BatchStatusDraft       BatchStatus = "DRAFT"
	BatchStatusPrinting    BatchStatus = "PRINTING"
	BatchStatusShipped     BatchStatus = "SHIPPED"
	BatchStatusActivatable BatchStatus = "ACTIVATABLE"
	BatchStatusRetired     BatchStatus = "RETIRED"
)

// batchTransitions is the closed set of allowed batch status edges.
// RETIRED is reachable from every non-terminal status.
var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusDraft:       {BatchStatusPrinting, BatchStatusRetired},
	BatchStatusPrinting:    {BatchStatusShipped, BatchStatusRetired},
	BatchStatusShipped:     {BatchStatusActivatable, BatchStatusRetired},
	BatchStatusActivatable: {BatchStatusRetired},
	BatchStatusRetired:     {},
}

// CanTransitionTo reports whether moving to next is an allowed edge.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	for _, allowed := range batchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CardBatch is a manufactured lot of physical cards under one program,
// identified by a serial (BIN) prefix and a sequence range.
type CardBatch struct {
	ID            uuid.UUID      `json:"id" gorm:"type:char(36);primaryKey"`
	ProgramID     uuid.UUID      `json:"program_id" gorm:"type:char(36);not null;index"`
	BatchNo       string         `json:"batch_no" gorm:"uniqueIndex;size:48;not null"`
	Manufacturer  string         `json:"manufacturer" gorm:"size:255;not null"`
	SerialPrefix  string         `json:"serial_prefix" gorm:"size:16;not null;index"`
	SequenceStart int64          `json:"sequence_start" gorm:"not null"`
	SequenceEnd   int64          `json:"sequence_end" gorm:"not null"` // inclusive
	Status        BatchStatus    `json:"status" gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Program CardProgram `json:"-" gorm:"foreignKey:ProgramID"`
}

// BeforeCreate sets UUID before creating the record.
func (b *CardBatch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// CardCount returns the number of cards covered by the sequence range.
func (b *CardBatch) CardCount() int64 {
	return b.SequenceEnd - b.SequenceStart + 1
}
