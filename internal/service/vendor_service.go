package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"nfcpay/internal/audit"
	"nfcpay/internal/errors"
	"nfcpay/internal/model"
	"nfcpay/internal/repository"
)

// RegisterVendorInput carries a vendor registration.
type RegisterVendorInput struct {
	BusinessName      string
	ContactEmail      string
	CommissionType    model.CommissionType
	CommissionRate    decimal.Decimal
	MaxInventoryValue decimal.Decimal
	UserID            *uuid.UUID
}

// AssignInventoryInput carves a sequence range out of a batch for one
// vendor. The range is half-open: [SequenceStart, SequenceEnd).
type AssignInventoryInput struct {
	VendorID      uuid.UUID
	BatchID       uuid.UUID
	SequenceStart int64
	SequenceEnd   int64
}

// RecordSaleInput records one over-the-counter card sale by a vendor.
type RecordSaleInput struct {
	VendorID      uuid.UUID
	CardID        uuid.UUID
	SalePrice     decimal.Decimal
	PaymentMethod string
}

// VendorDashboard aggregates a vendor's inventory and sales position.
type VendorDashboard struct {
	Vendor          *model.Vendor                     `json:"vendor"`
	AssignedCards   int64                             `json:"assigned_cards"`
	SoldCards       int64                             `json:"sold_cards"`
	RemainingCards  int64                             `json:"remaining_cards"`
	TotalCommission decimal.Decimal                   `json:"total_commission"`
	Assignments     []model.VendorInventoryAssignment `json:"assignments"`
	RecentSales     []model.VendorSale                `json:"recent_sales"`
}

// VendorService manages vendor onboarding, inventory delegation and
// point-of-sale card sales.
type VendorService interface {
	RegisterVendor(ctx context.Context, input RegisterVendorInput) (*model.Vendor, error)
	ApproveVendor(ctx context.Context, vendorID, actorID uuid.UUID) (*model.Vendor, error)
	SuspendVendor(ctx context.Context, vendorID, actorID uuid.UUID) (*model.Vendor, error)
	ListVendors(ctx context.Context) ([]model.Vendor, error)
	AssignInventory(ctx context.Context, input AssignInventoryInput, actorID uuid.UUID) (*model.VendorInventoryAssignment, error)
	RecordSale(ctx context.Context, input RecordSaleInput) (*model.VendorSale, error)
	Dashboard(ctx context.Context, vendorID uuid.UUID) (*VendorDashboard, error)
	VendorForUser(ctx context.Context, userID uuid.UUID) (*model.Vendor, error)
}

type vendorService struct {
	repos    *repository.Repos
	auditLog audit.Logger
}

// NewVendorService creates a new vendor service.
func NewVendorService(repos *repository.Repos, auditLog audit.Logger) VendorService {
	return &vendorService{repos: repos, auditLog: auditLog}
}

// RegisterVendor creates a vendor in PENDING status.
func (s *vendorService) RegisterVendor(ctx context.Context, input RegisterVendorInput) (*model.Vendor, error) {
	if input.CommissionRate.IsNegative() || input.MaxInventoryValue.IsNegative() {
		return nil, errors.ErrInvalidAmount
	}
	vendor := &model.Vendor{
		BusinessName:      input.BusinessName,
		ContactEmail:      input.ContactEmail,
		Status:            model.VendorStatusPending,
		CommissionType:    input.CommissionType,
		CommissionRate:    input.CommissionRate,
		MaxInventoryValue: input.MaxInventoryValue,
		UserID:            input.UserID,
	}
	if err := s.repos.Vendors.Create(ctx, vendor); err != nil {
		return nil, fmt.Errorf("create vendor: %w", err)
	}
	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType: "vendor",
		EntityID:   vendor.ID.String(),
		EventType:  "VENDOR_REGISTERED",
		ActorRole:  "ADMIN",
		Detail:     fmt.Sprintf(`{"business_name":"%s"}`, vendor.BusinessName),
	})
	return vendor, nil
}

// ApproveVendor moves a vendor to APPROVED. Only approved vendors may
// receive inventory or record sales.
func (s *vendorService) ApproveVendor(ctx context.Context, vendorID, actorID uuid.UUID) (*model.Vendor, error) {
	return s.setVendorStatus(ctx, vendorID, actorID, model.VendorStatusApproved, "VENDOR_APPROVED")
}

// SuspendVendor moves a vendor to SUSPENDED.
func (s *vendorService) SuspendVendor(ctx context.Context, vendorID, actorID uuid.UUID) (*model.Vendor, error) {
	return s.setVendorStatus(ctx, vendorID, actorID, model.VendorStatusSuspended, "VENDOR_SUSPENDED")
}

func (s *vendorService) setVendorStatus(ctx context.Context, vendorID, actorID uuid.UUID, status model.VendorStatus, eventType string) (*model.Vendor, error) {
	vendor, err := s.repos.Vendors.FindByID(ctx, vendorID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrVendorNotFound
		}
		return nil, fmt.Errorf("find vendor: %w", err)
	}
	before := vendor.Status
	vendor.Status = status
	if err := s.repos.Vendors.Update(ctx, vendor); err != nil {
		return nil, fmt.Errorf("update vendor: %w", err)
	}
	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType:  "vendor",
		EntityID:    vendor.ID.String(),
		EventType:   eventType,
		ActorID:     actorID.String(),
		ActorRole:   "ADMIN",
		BeforeState: string(before),
		AfterState:  string(status),
	})
	return vendor, nil
}

// ListVendors returns all vendors.
func (s *vendorService) ListVendors(ctx context.Context) ([]model.Vendor, error) {
	return s.repos.Vendors.List(ctx)
}

// AssignInventory delegates a card sequence range to an approved vendor.
// The whole check-then-assign runs in one transaction under the batch's
// row lock so two concurrent assignments cannot both pass the overlap
// check.
func (s *vendorService) AssignInventory(ctx context.Context, input AssignInventoryInput, actorID uuid.UUID) (*model.VendorInventoryAssignment, error) {
	if input.SequenceStart >= input.SequenceEnd {
		return nil, errors.ErrRangeOutOfBatch
	}

	var assignment *model.VendorInventoryAssignment
	err := s.repos.WithTransaction(ctx, func(ctx context.Context, tx *repository.Repos) error {
		vendor, err := tx.Vendors.FindByID(ctx, input.VendorID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return errors.ErrVendorNotFound
			}
			return fmt.Errorf("find vendor: %w", err)
		}
		if vendor.Status != model.VendorStatusApproved {
			return errors.ErrVendorNotApproved
		}

		batch, err := tx.Batches.FindByIDForUpdate(ctx, input.BatchID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return errors.ErrBatchNotFound
			}
			return fmt.Errorf("lock batch: %w", err)
		}
		if batch.Status != model.BatchStatusShipped && batch.Status != model.BatchStatusActivatable {
			return errors.ErrInvalidBatchStatus
		}
		// Batch range is inclusive; assignment ranges are half-open.
		if input.SequenceStart < batch.SequenceStart || input.SequenceEnd > batch.SequenceEnd+1 {
			return errors.ErrRangeOutOfBatch
		}

		existing, err := tx.Vendors.ListAssignmentsByBatch(ctx, input.BatchID)
		if err != nil {
			return fmt.Errorf("list assignments: %w", err)
		}
		for i := range existing {
			if existing[i].Overlaps(input.SequenceStart, input.SequenceEnd) {
				return errors.ErrRangeOverlap
			}
		}

		if err := s.checkInventoryCap(ctx, tx, vendor, existing, input); err != nil {
			return err
		}

		assignment = &model.VendorInventoryAssignment{
			VendorID:      input.VendorID,
			BatchID:       input.BatchID,
			SequenceStart: input.SequenceStart,
			SequenceEnd:   input.SequenceEnd,
		}
		if err := tx.Vendors.CreateAssignment(ctx, assignment); err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}
		if err := tx.Cards.AssignVendorToRange(ctx, input.BatchID, input.VendorID, input.SequenceStart, input.SequenceEnd); err != nil {
			return fmt.Errorf("stamp cards: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType: "vendor_inventory_assignment",
		EntityID:   assignment.ID.String(),
		EventType:  "INVENTORY_ASSIGNED",
		ActorID:    actorID.String(),
		ActorRole:  "ADMIN",
		Detail: fmt.Sprintf(`{"vendor":"%s","batch":"%s","start":%d,"end":%d}`,
			input.VendorID, input.BatchID, input.SequenceStart, input.SequenceEnd),
	})
	return assignment, nil
}

// checkInventoryCap rejects the assignment when the vendor's holdings,
// valued at each batch's program issuance price, would exceed its cap. A
// zero cap means no cap.
func (s *vendorService) checkInventoryCap(ctx context.Context, tx *repository.Repos, vendor *model.Vendor, sameBatch []model.VendorInventoryAssignment, input AssignInventoryInput) error {
	if vendor.MaxInventoryValue.IsZero() {
		return nil
	}
	held, err := tx.Vendors.ListAssignmentsByVendor(ctx, vendor.ID)
	if err != nil {
		return fmt.Errorf("list vendor assignments: %w", err)
	}

	priceByBatch := map[uuid.UUID]decimal.Decimal{}
	priceFor := func(batchID uuid.UUID) (decimal.Decimal, error) {
		if price, ok := priceByBatch[batchID]; ok {
			return price, nil
		}
		batch, err := tx.Batches.FindByID(ctx, batchID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("find batch: %w", err)
		}
		program, err := tx.Programs.FindByID(ctx, batch.ProgramID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("find program: %w", err)
		}
		priceByBatch[batchID] = program.IssuancePrice
		return program.IssuancePrice, nil
	}

	total := decimal.Zero
	for i := range held {
		price, err := priceFor(held[i].BatchID)
		if err != nil {
			return err
		}
		unsold := held[i].Count() - held[i].SoldCount
		total = total.Add(price.Mul(decimal.NewFromInt(unsold)))
	}
	price, err := priceFor(input.BatchID)
	if err != nil {
		return err
	}
	total = total.Add(price.Mul(decimal.NewFromInt(input.SequenceEnd - input.SequenceStart)))

	if total.GreaterThan(vendor.MaxInventoryValue) {
		return errors.ErrInventoryValueExceeded
	}
	return nil
}

// RecordSale records one card sale at the vendor's counter. The card must
// be unactivated stock inside one of the vendor's assigned ranges; the
// sale itself does not activate the card.
func (s *vendorService) RecordSale(ctx context.Context, input RecordSaleInput) (*model.VendorSale, error) {
	if input.SalePrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}

	var sale *model.VendorSale
	err := s.repos.WithTransaction(ctx, func(ctx context.Context, tx *repository.Repos) error {
		vendor, err := tx.Vendors.FindByID(ctx, input.VendorID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return errors.ErrVendorNotFound
			}
			return fmt.Errorf("find vendor: %w", err)
		}
		if vendor.Status != model.VendorStatusApproved {
			return errors.ErrVendorNotApproved
		}

		card, err := tx.Cards.FindByIDForUpdate(ctx, input.CardID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return errors.ErrCardNotFound
			}
			return fmt.Errorf("lock card: %w", err)
		}
		if card.State != model.CardStateIssued {
			return errors.ErrInvalidState
		}
		if card.VendorID == nil || *card.VendorID != input.VendorID {
			return errors.ErrCardNotInVendorInventory
		}

		assignment, err := tx.Vendors.FindAssignmentForCard(ctx, input.VendorID, card.BatchID, card.SequenceNumber)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return errors.ErrCardNotInVendorInventory
			}
			return fmt.Errorf("find assignment: %w", err)
		}

		sale = &model.VendorSale{
			VendorID:      input.VendorID,
			CardID:        input.CardID,
			SalePrice:     input.SalePrice,
			PaymentMethod: input.PaymentMethod,
			Commission:    vendor.Commission(input.SalePrice),
		}
		if err := tx.Vendors.CreateSale(ctx, sale); err != nil {
			return fmt.Errorf("create sale: %w", err)
		}
		assignment.SoldCount++
		if err := tx.Vendors.UpdateAssignment(ctx, assignment); err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType: "vendor_sale",
		EntityID:   sale.ID.String(),
		EventType:  "CARD_SOLD",
		ActorID:    input.VendorID.String(),
		ActorRole:  "VENDOR",
		Detail: fmt.Sprintf(`{"card":"%s","price":"%s","commission":"%s"}`,
			input.CardID, input.SalePrice, sale.Commission),
	})
	return sale, nil
}

// Dashboard aggregates a vendor's inventory counts, sales and commission.
func (s *vendorService) Dashboard(ctx context.Context, vendorID uuid.UUID) (*VendorDashboard, error) {
	vendor, err := s.repos.Vendors.FindByID(ctx, vendorID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrVendorNotFound
		}
		return nil, fmt.Errorf("find vendor: %w", err)
	}
	assignments, err := s.repos.Vendors.ListAssignmentsByVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	var assigned, sold int64
	for i := range assignments {
		assigned += assignments[i].Count()
		sold += assignments[i].SoldCount
	}
	sales, err := s.repos.Vendors.ListSalesByVendor(ctx, vendorID, 20)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	commission, err := s.repos.Vendors.SumCommissionByVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("sum commission: %w", err)
	}
	return &VendorDashboard{
		Vendor:          vendor,
		AssignedCards:   assigned,
		SoldCards:       sold,
		RemainingCards:  assigned - sold,
		TotalCommission: commission,
		Assignments:     assignments,
		RecentSales:     sales,
	}, nil
}

// VendorForUser resolves the vendor record bound to a user principal.
func (s *vendorService) VendorForUser(ctx context.Context, userID uuid.UUID) (*model.Vendor, error) {
	vendor, err := s.repos.Vendors.FindByUserID(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrVendorNotFound
		}
		return nil, fmt.Errorf("find vendor: %w", err)
	}
	return vendor, nil
}
