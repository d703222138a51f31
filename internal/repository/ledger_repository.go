package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"nfcpay/internal/model"
)

// LedgerRepository defines ledger entry persistence. Deliberately
// append-only: there is no update or delete operation.
type LedgerRepository interface {
	Append(ctx context.Context, entry *model.LedgerEntry) error
	ListByCard(ctx context.Context, cardID uuid.UUID, limit int) ([]model.LedgerEntry, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new ledger repository.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

// Append writes a new ledger entry.
func (r *ledgerRepository) Append(ctx context.Context, entry *model.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByCard returns a card's most recent ledger entries.
func (r *ledgerRepository) ListByCard(ctx context.Context, cardID uuid.UUID, limit int) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	if err := r.db.WithContext(ctx).Where("card_id = ?", cardID).
		Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
