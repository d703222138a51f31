package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"nfcpay/internal/auth"
	"nfcpay/internal/errors"
	"nfcpay/internal/model"
	"nfcpay/internal/service"
)

// VendorHandler handles vendor onboarding, inventory delegation and
// point-of-sale card sales.
type VendorHandler struct {
	vendorService service.VendorService
}

// NewVendorHandler creates a new vendor handler.
func NewVendorHandler(vendorService service.VendorService) *VendorHandler {
	return &VendorHandler{vendorService: vendorService}
}

// RegisterVendorRequest represents a vendor registration.
type RegisterVendorRequest struct {
	BusinessName      string `json:"business_name" validate:"required,max=255"`
	ContactEmail      string `json:"contact_email" validate:"required,email"`
	CommissionType    string `json:"commission_type" validate:"required,oneof=PERCENT FLAT"`
	CommissionRate    string `json:"commission_rate" validate:"required"`
	MaxInventoryValue string `json:"max_inventory_value" validate:"required"`
	UserID            string `json:"user_id" validate:"omitempty,uuid"`
}

// AssignInventoryRequest represents an inventory range delegation.
type AssignInventoryRequest struct {
	VendorID      string `json:"vendor_id" validate:"required,uuid"`
	BatchID       string `json:"batch_id" validate:"required,uuid"`
	SequenceStart int64  `json:"sequence_start" validate:"required,gt=0"`
	SequenceEnd   int64  `json:"sequence_end" validate:"required,gt=0"`
}

// RecordSaleRequest represents one over-the-counter card sale.
type RecordSaleRequest struct {
	CardID        string `json:"card_id" validate:"required,uuid"`
	SalePrice     string `json:"sale_price" validate:"required"`
	PaymentMethod string `json:"payment_method" validate:"required,max=32"`
}

// RegisterVendor godoc
// @Summary Register a vendor
// @Tags vendors
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RegisterVendorRequest true "Vendor data"
// @Success 201 {object} model.Vendor
// @Failure 400 {object} errors.ErrorResponse
// @Router /nfc-cards/vendors [post]
func (h *VendorHandler) RegisterVendor(c echo.Context) error {
	var req RegisterVendorRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	rate, err := decimal.NewFromString(req.CommissionRate)
	if err != nil {
		return invalidAmount()
	}
	maxValue, err := decimal.NewFromString(req.MaxInventoryValue)
	if err != nil {
		return invalidAmount()
	}
	var userID *uuid.UUID
	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			return invalidUUID("user_id")
		}
		userID = &id
	}
	vendor, err := h.vendorService.RegisterVendor(c.Request().Context(), service.RegisterVendorInput{
		BusinessName:      req.BusinessName,
		ContactEmail:      req.ContactEmail,
		CommissionType:    model.CommissionType(req.CommissionType),
		CommissionRate:    rate,
		MaxInventoryValue: maxValue,
		UserID:            userID,
	})
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusCreated, vendor)
}

// ApproveVendor godoc
// @Summary Approve a vendor
// @Tags vendors
// @Produce json
// @Security BearerAuth
// @Param id path string true "Vendor ID"
// @Success 200 {object} model.Vendor
// @Failure 404 {object} errors.ErrorResponse
// @Router /nfc-cards/vendors/{id}/approve [post]
func (h *VendorHandler) ApproveVendor(c echo.Context) error {
	return h.vendorStatusAction(c, h.vendorService.ApproveVendor)
}

// SuspendVendor godoc
// @Summary Suspend a vendor
// @Tags vendors
// @Produce json
// @Security BearerAuth
// @Param id path string true "Vendor ID"
// @Success 200 {object} model.Vendor
// @Failure 404 {object} errors.ErrorResponse
// @Router /nfc-cards/vendors/{id}/suspend [post]
func (h *VendorHandler) SuspendVendor(c echo.Context) error {
	return h.vendorStatusAction(c, h.vendorService.SuspendVendor)
}

func (h *VendorHandler) vendorStatusAction(c echo.Context, action func(ctx context.Context, vendorID, actorID uuid.UUID) (*model.Vendor, error)) error {
	vendorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return invalidUUID("vendor id")
	}
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return unauthorized()
	}
	vendor, err := action(c.Request().Context(), vendorID, principal.UserID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, vendor)
}

// ListVendors godoc
// @Summary List vendors
// @Tags vendors
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.Vendor
// @Router /nfc-cards/vendors [get]
func (h *VendorHandler) ListVendors(c echo.Context) error {
	vendors, err := h.vendorService.ListVendors(c.Request().Context())
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, vendors)
}

// AssignInventory godoc
// @Summary Delegate a card sequence range to a vendor
// @Tags vendors
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AssignInventoryRequest true "Assignment data"
// @Success 201 {object} model.VendorInventoryAssignment
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /nfc-cards/vendors/inventory [post]
func (h *VendorHandler) AssignInventory(c echo.Context) error {
	var req AssignInventoryRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	vendorID, err := uuid.Parse(req.VendorID)
	if err != nil {
		return invalidUUID("vendor_id")
	}
	batchID, err := uuid.Parse(req.BatchID)
	if err != nil {
		return invalidUUID("batch_id")
	}
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return unauthorized()
	}
	assignment, err := h.vendorService.AssignInventory(c.Request().Context(), service.AssignInventoryInput{
		VendorID:      vendorID,
		BatchID:       batchID,
		SequenceStart: req.SequenceStart,
		SequenceEnd:   req.SequenceEnd,
	}, principal.UserID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusCreated, assignment)
}

// RecordSale godoc
// @Summary Record a card sale at the vendor's counter
// @Tags vendors
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RecordSaleRequest true "Sale data"
// @Success 201 {object} model.VendorSale
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /nfc-cards/vendor/sales [post]
func (h *VendorHandler) RecordSale(c echo.Context) error {
	var req RecordSaleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	cardID, err := uuid.Parse(req.CardID)
	if err != nil {
		return invalidUUID("card_id")
	}
	price, err := decimal.NewFromString(req.SalePrice)
	if err != nil {
		return invalidAmount()
	}
	vendor, err := h.callerVendor(c)
	if err != nil {
		return err
	}
	sale, err := h.vendorService.RecordSale(c.Request().Context(), service.RecordSaleInput{
		VendorID:      vendor.ID,
		CardID:        cardID,
		SalePrice:     price,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusCreated, sale)
}

// Dashboard godoc
// @Summary Get the caller's vendor dashboard
// @Tags vendors
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.VendorDashboard
// @Failure 404 {object} errors.ErrorResponse
// @Router /nfc-cards/vendor/dashboard [get]
func (h *VendorHandler) Dashboard(c echo.Context) error {
	vendor, err := h.callerVendor(c)
	if err != nil {
		return err
	}
	dashboard, err := h.vendorService.Dashboard(c.Request().Context(), vendor.ID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, dashboard)
}

// callerVendor resolves the vendor record bound to the JWT principal.
func (h *VendorHandler) callerVendor(c echo.Context) (*model.Vendor, error) {
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return nil, unauthorized()
	}
	vendor, err := h.vendorService.VendorForUser(c.Request().Context(), principal.UserID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return nil, echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return vendor, nil
}

func invalidAmount() error {
	return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
		Error: "invalid amount",
		Code:  "INVALID_AMOUNT",
	})
}
