package repository

import (
	"context"

	"gorm.io/gorm"

	"nfcpay/internal/model"
)

// AuditRepository defines audit event persistence. Append-only.
type AuditRepository interface {
	Create(ctx context.Context, event *model.AuditEvent) error
	CreateBatch(ctx context.Context, events []model.AuditEvent) error
	List(ctx context.Context, entityType, entityID string, limit int) ([]model.AuditEvent, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Create writes a single audit event.
func (r *auditRepository) Create(ctx context.Context, event *model.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// CreateBatch writes multiple audit events in chunks.
func (r *auditRepository) CreateBatch(ctx context.Context, events []model.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(events, 100).Error
}

// List returns audit events, newest first, optionally filtered by entity.
func (r *auditRepository) List(ctx context.Context, entityType, entityID string, limit int) ([]model.AuditEvent, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	if entityID != "" {
		q = q.Where("entity_id = ?", entityID)
	}
	var events []model.AuditEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
