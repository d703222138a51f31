package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"nfcpay/internal/model"
)

// ProgramRepository defines card program persistence operations.
type ProgramRepository interface {
	Create(ctx context.Context, program *model.CardProgram) error
	Update(ctx context.Context, program *model.CardProgram) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.CardProgram, error)
	FindByCode(ctx context.Context, code string) (*model.CardProgram, error)
	List(ctx context.Context) ([]model.CardProgram, error)
}

type programRepository struct {
	db *gorm.DB
}

// NewProgramRepository creates a new program repository.
func NewProgramRepository(db *gorm.DB) ProgramRepository {
	return &programRepository{db: db}
}

// Create creates a new card program.
func (r *programRepository) Create(ctx context.Context, program *model.CardProgram) error {
	return r.db.WithContext(ctx).Create(program).Error
}

// Update updates an existing card program.
func (r *programRepository) Update(ctx context.Context, program *model.CardProgram) error {
	return r.db.WithContext(ctx).Save(program).Error
}

// FindByID finds a program by ID.
func (r *programRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.CardProgram, error) {
	var program model.CardProgram
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&program).Error; err != nil {
		return nil, err
	}
	return &program, nil
}

// FindByCode finds a program by its unique code.
func (r *programRepository) FindByCode(ctx context.Context, code string) (*model.CardProgram, error) {
	var program model.CardProgram
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&program).Error; err != nil {
		return nil, err
	}
	return &program, nil
}

// List returns all programs, newest first.
func (r *programRepository) List(ctx context.Context) ([]model.CardProgram, error) {
	var programs []model.CardProgram
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&programs).Error; err != nil {
		return nil, err
	}
	return programs, nil
}

// BatchRepository defines card batch persistence operations.
type BatchRepository interface {
	Create(ctx context.Context, batch *model.CardBatch) error
	Update(ctx context.Context, batch *model.CardBatch) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.CardBatch, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.CardBatch, error)
	List(ctx context.Context) ([]model.CardBatch, error)
	ListByProgram(ctx context.Context, programID uuid.UUID) ([]model.CardBatch, error)
}

type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

// Create creates a new batch.
func (r *batchRepository) Create(ctx context.Context, batch *model.CardBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

// Update updates an existing batch.
func (r *batchRepository) Update(ctx context.Context, batch *model.CardBatch) error {
	return r.db.WithContext(ctx).Save(batch).Error
}

// FindByID finds a batch by ID.
func (r *batchRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.CardBatch, error) {
	var batch model.CardBatch
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindByIDForUpdate finds a batch with a row-level lock. Inventory
// assignment serializes on the batch row to make the overlap check safe.
func (r *batchRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.CardBatch, error) {
	var batch model.CardBatch
	if err := r.db.WithContext(ctx).Set("gorm:query_option", "FOR UPDATE").
		Where("id = ?", id).First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// List returns all batches, newest first.
func (r *batchRepository) List(ctx context.Context) ([]model.CardBatch, error) {
	var batches []model.CardBatch
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// ListByProgram returns all batches under one program.
func (r *batchRepository) ListByProgram(ctx context.Context, programID uuid.UUID) ([]model.CardBatch, error) {
	var batches []model.CardBatch
	if err := r.db.WithContext(ctx).Where("program_id = ?", programID).
		Order("created_at DESC").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}
