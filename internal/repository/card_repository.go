package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"nfcpay/internal/model"
)

// CardStateCount is an aggregate row for the admin dashboard.
type CardStateCount struct {
	State model.CardState `json:"state"`
	Count int64           `json:"count"`
}

// CardRepository defines prepaid card persistence operations.
type CardRepository interface {
	Create(ctx context.Context, card *model.PrepaidCard) error
	CreateInBatches(ctx context.Context, cards []model.PrepaidCard) error
	Update(ctx context.Context, card *model.PrepaidCard) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PrepaidCard, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PrepaidCard, error)
	FindByUIDHash(ctx context.Context, uidHash string) (*model.PrepaidCard, error)
	FindByActivationCode(ctx context.Context, code string) (*model.PrepaidCard, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]model.PrepaidCard, error)
	AssignVendorToRange(ctx context.Context, batchID uuid.UUID, vendorID uuid.UUID, seqStart, seqEnd int64) error
	List(ctx context.Context, limit, offset int) ([]model.PrepaidCard, error)
	CountByState(ctx context.Context) ([]CardStateCount, error)
	TotalBalance(ctx context.Context) (decimal.Decimal, error)
}

type cardRepository struct {
	db *gorm.DB
}

// NewCardRepository creates a new card repository.
func NewCardRepository(db *gorm.DB) CardRepository {
	return &cardRepository{db: db}
}

// Create creates a new card.
func (r *cardRepository) Create(ctx context.Context, card *model.PrepaidCard) error {
	return r.db.WithContext(ctx).Create(card).Error
}

// CreateInBatches pre-creates a batch's cards in chunks.
func (r *cardRepository) CreateInBatches(ctx context.Context, cards []model.PrepaidCard) error {
	if len(cards) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(cards, 100).Error
}

// Update updates an existing card.
func (r *cardRepository) Update(ctx context.Context, card *model.PrepaidCard) error {
	return r.db.WithContext(ctx).Save(card).Error
}

// FindByID finds a card by ID.
func (r *cardRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PrepaidCard, error) {
	var card model.PrepaidCard
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

// FindByIDForUpdate finds a card by ID with a row-level lock. This is the
// serialization point for all balance and state mutations on a card; it
// only takes effect inside Repos.WithTransaction.
func (r *cardRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PrepaidCard, error) {
	var card model.PrepaidCard
	if err := r.db.WithContext(ctx).Set("gorm:query_option", "FOR UPDATE").
		Where("id = ?", id).First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

// FindByUIDHash finds a card by the SHA-256 hash of its chip UID.
func (r *cardRepository) FindByUIDHash(ctx context.Context, uidHash string) (*model.PrepaidCard, error) {
	var card model.PrepaidCard
	if err := r.db.WithContext(ctx).Where("uid_hash = ?", uidHash).First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

// FindByActivationCode finds a card by its activation code.
func (r *cardRepository) FindByActivationCode(ctx context.Context, code string) (*model.PrepaidCard, error) {
	var card model.PrepaidCard
	if err := r.db.WithContext(ctx).Where("activation_code = ?", code).First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

// FindByUserID finds all cards owned by a user.
func (r *cardRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]model.PrepaidCard, error) {
	var cards []model.PrepaidCard
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

// AssignVendorToRange marks every unassigned card in the half-open sequence
// range [seqStart, seqEnd) of a batch as belonging to the vendor.
func (r *cardRepository) AssignVendorToRange(ctx context.Context, batchID uuid.UUID, vendorID uuid.UUID, seqStart, seqEnd int64) error {
	return r.db.WithContext(ctx).Model(&model.PrepaidCard{}).
		Where("batch_id = ? AND sequence_number >= ? AND sequence_number < ? AND vendor_id IS NULL",
			batchID, seqStart, seqEnd).
		Update("vendor_id", vendorID).Error
}

// List returns cards ordered by creation time, newest first.
func (r *cardRepository) List(ctx context.Context, limit, offset int) ([]model.PrepaidCard, error) {
	var cards []model.PrepaidCard
	if err := r.db.WithContext(ctx).Order("created_at DESC").
		Limit(limit).Offset(offset).Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

// CountByState returns card counts grouped by lifecycle state.
func (r *cardRepository) CountByState(ctx context.Context) ([]CardStateCount, error) {
	var counts []CardStateCount
	if err := r.db.WithContext(ctx).Model(&model.PrepaidCard{}).
		Select("state, COUNT(*) AS count").Group("state").Scan(&counts).Error; err != nil {
		return nil, err
	}
	return counts, nil
}

// TotalBalance returns the sum of balances across all cards.
func (r *cardRepository) TotalBalance(ctx context.Context) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).Model(&model.PrepaidCard{}).
		Select("COALESCE(SUM(balance), 0) AS total").Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}
