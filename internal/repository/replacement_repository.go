package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"nfcpay/internal/model"
)

// ReplacementRepository defines replacement request persistence operations.
type ReplacementRepository interface {
	Create(ctx context.Context, req *model.ReplacementRequest) error
	Update(ctx context.Context, req *model.ReplacementRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ReplacementRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.ReplacementRequest, error)
}

type replacementRepository struct {
	db *gorm.DB
}

// NewReplacementRepository creates a new replacement repository.
func NewReplacementRepository(db *gorm.DB) ReplacementRepository {
	return &replacementRepository{db: db}
}

// Create creates a new replacement request.
func (r *replacementRepository) Create(ctx context.Context, req *model.ReplacementRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// Update updates an existing replacement request.
func (r *replacementRepository) Update(ctx context.Context, req *model.ReplacementRequest) error {
	return r.db.WithContext(ctx).Save(req).Error
}

// FindByID finds a replacement request by ID.
func (r *replacementRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ReplacementRequest, error) {
	var req model.ReplacementRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// ListByUser returns a user's replacement requests, newest first.
func (r *replacementRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.ReplacementRequest, error) {
	var reqs []model.ReplacementRequest
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}
