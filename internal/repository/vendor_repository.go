package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"nfcpay/internal/model"
)

// VendorRepository defines vendor, inventory assignment and sale
// persistence operations.
type VendorRepository interface {
	Create(ctx context.Context, vendor *model.Vendor) error
	Update(ctx context.Context, vendor *model.Vendor) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Vendor, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Vendor, error)
	List(ctx context.Context) ([]model.Vendor, error)

	CreateAssignment(ctx context.Context, a *model.VendorInventoryAssignment) error
	UpdateAssignment(ctx context.Context, a *model.VendorInventoryAssignment) error
	ListAssignmentsByBatch(ctx context.Context, batchID uuid.UUID) ([]model.VendorInventoryAssignment, error)
	ListAssignmentsByVendor(ctx context.Context, vendorID uuid.UUID) ([]model.VendorInventoryAssignment, error)
	FindAssignmentForCard(ctx context.Context, vendorID, batchID uuid.UUID, sequence int64) (*model.VendorInventoryAssignment, error)

	CreateSale(ctx context.Context, sale *model.VendorSale) error
	ListSalesByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]model.VendorSale, error)
	SumCommissionByVendor(ctx context.Context, vendorID uuid.UUID) (decimal.Decimal, error)
}

type vendorRepository struct {
	db *gorm.DB
}

// NewVendorRepository creates a new vendor repository.
func NewVendorRepository(db *gorm.DB) VendorRepository {
	return &vendorRepository{db: db}
}

// Create creates a new vendor.
func (r *vendorRepository) Create(ctx context.Context, vendor *model.Vendor) error {
	return r.db.WithContext(ctx).Create(vendor).Error
}

// Update updates an existing vendor.
func (r *vendorRepository) Update(ctx context.Context, vendor *model.Vendor) error {
	return r.db.WithContext(ctx).Save(vendor).Error
}

// FindByID finds a vendor by ID.
func (r *vendorRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Vendor, error) {
	var vendor model.Vendor
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

// FindByUserID finds the vendor bound to a user principal.
func (r *vendorRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Vendor, error) {
	var vendor model.Vendor
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

// List returns all vendors, newest first.
func (r *vendorRepository) List(ctx context.Context) ([]model.Vendor, error) {
	var vendors []model.Vendor
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&vendors).Error; err != nil {
		return nil, err
	}
	return vendors, nil
}

// CreateAssignment creates a new inventory assignment.
func (r *vendorRepository) CreateAssignment(ctx context.Context, a *model.VendorInventoryAssignment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// UpdateAssignment updates an existing inventory assignment.
func (r *vendorRepository) UpdateAssignment(ctx context.Context, a *model.VendorInventoryAssignment) error {
	return r.db.WithContext(ctx).Save(a).Error
}

// ListAssignmentsByBatch returns every assignment carved out of a batch.
func (r *vendorRepository) ListAssignmentsByBatch(ctx context.Context, batchID uuid.UUID) ([]model.VendorInventoryAssignment, error) {
	var assignments []model.VendorInventoryAssignment
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).
		Order("sequence_start ASC").Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

// ListAssignmentsByVendor returns every assignment held by a vendor.
func (r *vendorRepository) ListAssignmentsByVendor(ctx context.Context, vendorID uuid.UUID) ([]model.VendorInventoryAssignment, error) {
	var assignments []model.VendorInventoryAssignment
	if err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).
		Order("created_at DESC").Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

// FindAssignmentForCard finds the vendor's assignment covering a card's
// sequence number within a batch, if any.
func (r *vendorRepository) FindAssignmentForCard(ctx context.Context, vendorID, batchID uuid.UUID, sequence int64) (*model.VendorInventoryAssignment, error) {
	var assignment model.VendorInventoryAssignment
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND batch_id = ? AND sequence_start <= ? AND sequence_end > ?",
			vendorID, batchID, sequence, sequence).
		First(&assignment).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

// CreateSale records a vendor sale.
func (r *vendorRepository) CreateSale(ctx context.Context, sale *model.VendorSale) error {
	return r.db.WithContext(ctx).Create(sale).Error
}

// ListSalesByVendor returns a vendor's most recent sales.
func (r *vendorRepository) ListSalesByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]model.VendorSale, error) {
	var sales []model.VendorSale
	if err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).
		Order("created_at DESC").Limit(limit).Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}

// SumCommissionByVendor returns the total commission owed to a vendor.
func (r *vendorRepository) SumCommissionByVendor(ctx context.Context, vendorID uuid.UUID) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).Model(&model.VendorSale{}).
		Where("vendor_id = ?", vendorID).
		Select("COALESCE(SUM(commission), 0) AS total").Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}
