package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditEvent is an immutable record of a state-changing action (or a
// rejected attempt at one). Events are append-only; there is no update or
// delete path anywhere in the codebase.
type AuditEvent struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	EntityType  string    `json:"entity_type" gorm:"size:40;not null;index:idx_audit_entity"`
	EntityID    string    `json:"entity_id" gorm:"size:64;not null;index:idx_audit_entity"`
	EventType   string    `json:"event_type" gorm:"size:64;not null;index"`
	ActorID     string    `json:"actor_id" gorm:"size:64;not null;index"`
	ActorRole   string    `json:"actor_role" gorm:"size:20;not null"`
	BeforeState string    `json:"before_state,omitempty" gorm:"size:40"`
	AfterState  string    `json:"after_state,omitempty" gorm:"size:40"`
	Detail      string    `json:"detail,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

// BeforeCreate sets UUID before creating the record.
func (e *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
