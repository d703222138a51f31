package repository

import (
	"context"

	"gorm.io/gorm"

	"nfcpay/internal/model"
)

// TerminalRepository defines terminal persistence operations.
type TerminalRepository interface {
	Create(ctx context.Context, terminal *model.Terminal) error
	FindByAPIKeyHash(ctx context.Context, keyHash string) (*model.Terminal, error)
	FindByCode(ctx context.Context, code string) (*model.Terminal, error)
}

type terminalRepository struct {
	db *gorm.DB
}

// NewTerminalRepository creates a new terminal repository.
func NewTerminalRepository(db *gorm.DB) TerminalRepository {
	return &terminalRepository{db: db}
}

// Create creates a new terminal.
func (r *terminalRepository) Create(ctx context.Context, terminal *model.Terminal) error {
	return r.db.WithContext(ctx).Create(terminal).Error
}

// FindByAPIKeyHash finds an active terminal by the SHA-256 hash of its key.
func (r *terminalRepository) FindByAPIKeyHash(ctx context.Context, keyHash string) (*model.Terminal, error) {
	var terminal model.Terminal
	if err := r.db.WithContext(ctx).
		Where("api_key_hash = ? AND active = ?", keyHash, true).
		First(&terminal).Error; err != nil {
		return nil, err
	}
	return &terminal, nil
}

// FindByCode finds a terminal by its code.
func (r *terminalRepository) FindByCode(ctx context.Context, code string) (*model.Terminal, error) {
	var terminal model.Terminal
	if err := r.db.WithContext(ctx).Where("terminal_code = ?", code).First(&terminal).Error; err != nil {
		return nil, err
	}
	return &terminal, nil
}
