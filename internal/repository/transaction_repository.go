package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"nfcpay/internal/model"
)

// TransactionStatusCount is an aggregate row for the admin dashboard.
type TransactionStatusCount struct {
	Status model.TransactionStatus `json:"status"`
	Count  int64                   `json:"count"`
}

// TransactionRepository defines card transaction persistence operations.
type TransactionRepository interface {
	Create(ctx context.Context, txn *model.CardTransaction) error
	Update(ctx context.Context, txn *model.CardTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.CardTransaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.CardTransaction, error)
	ListByCard(ctx context.Context, cardID uuid.UUID, limit int) ([]model.CardTransaction, error)
	ListPendingReconciliation(ctx context.Context, limit int) ([]model.CardTransaction, error)
	SumApprovedSince(ctx context.Context, cardID uuid.UUID, since time.Time) (decimal.Decimal, error)
	List(ctx context.Context, limit, offset int) ([]model.CardTransaction, error)
	CountByStatus(ctx context.Context) ([]TransactionStatusCount, error)
}

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

// Create creates a new transaction record.
func (r *transactionRepository) Create(ctx context.Context, txn *model.CardTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// Update updates an existing transaction record.
func (r *transactionRepository) Update(ctx context.Context, txn *model.CardTransaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}

// FindByID finds a transaction by ID.
func (r *transactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.CardTransaction, error) {
	var txn model.CardTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindByIdempotencyKey finds a transaction by its idempotency key.
func (r *transactionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*model.CardTransaction, error) {
	var txn model.CardTransaction
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// ListByCard returns a card's most recent transactions.
func (r *transactionRepository) ListByCard(ctx context.Context, cardID uuid.UUID, limit int) ([]model.CardTransaction, error) {
	var txns []model.CardTransaction
	if err := r.db.WithContext(ctx).Where("card_id = ?", cardID).
		Order("created_at DESC").Limit(limit).Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ListPendingReconciliation returns offline transactions awaiting
// reconciliation, oldest first.
func (r *transactionRepository) ListPendingReconciliation(ctx context.Context, limit int) ([]model.CardTransaction, error) {
	var txns []model.CardTransaction
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.TransactionStatusPendingReconciliation).
		Order("created_at ASC").Limit(limit).Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// SumApprovedSince sums amounts the card has committed to since the given
// instant. Offline acceptances count toward limits before they settle.
func (r *transactionRepository) SumApprovedSince(ctx context.Context, cardID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	statuses := []model.TransactionStatus{
		model.TransactionStatusApproved,
		model.TransactionStatusPendingReconciliation,
		model.TransactionStatusReconciled,
	}
	if err := r.db.WithContext(ctx).Model(&model.CardTransaction{}).
		Where("card_id = ? AND status IN ? AND created_at >= ?", cardID, statuses, since).
		Select("COALESCE(SUM(amount), 0) AS total").Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

// List returns transactions ordered by creation time, newest first.
func (r *transactionRepository) List(ctx context.Context, limit, offset int) ([]model.CardTransaction, error) {
	var txns []model.CardTransaction
	if err := r.db.WithContext(ctx).Order("created_at DESC").
		Limit(limit).Offset(offset).Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// CountByStatus returns transaction counts grouped by status.
func (r *transactionRepository) CountByStatus(ctx context.Context) ([]TransactionStatusCount, error) {
	var counts []TransactionStatusCount
	if err := r.db.WithContext(ctx).Model(&model.CardTransaction{}).
		Select("status, COUNT(*) AS count").Group("status").Scan(&counts).Error; err != nil {
		return nil, err
	}
	return counts, nil
}
