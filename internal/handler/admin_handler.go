package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"nfcpay/internal/errors"
	"nfcpay/internal/service"
)

// AdminHandler handles back-office endpoints.
type AdminHandler struct {
	adminService service.AdminService
	tapService   service.TapService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(adminService service.AdminService, tapService service.TapService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		tapService:   tapService,
	}
}

// Dashboard godoc
// @Summary Get the operational dashboard
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.AdminDashboard
// @Router /nfc-cards/admin/dashboard [get]
func (h *AdminHandler) Dashboard(c echo.Context) error {
	dashboard, err := h.adminService.Dashboard(c.Request().Context())
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, dashboard)
}

// ListCards godoc
// @Summary Page through the card population
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max results"
// @Param offset query int false "Offset"
// @Success 200 {array} model.PrepaidCard
// @Router /nfc-cards/admin/cards [get]
func (h *AdminHandler) ListCards(c echo.Context) error {
	cards, err := h.adminService.ListCards(c.Request().Context(), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, cards)
}

// ListTransactions godoc
// @Summary Page through all transactions
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max results"
// @Param offset query int false "Offset"
// @Success 200 {array} model.CardTransaction
// @Router /nfc-cards/admin/transactions [get]
func (h *AdminHandler) ListTransactions(c echo.Context) error {
	txns, err := h.adminService.ListTransactions(c.Request().Context(), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, txns)
}

// AuditTrail godoc
// @Summary List audit events, optionally filtered by entity
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param entity_type query string false "Entity type"
// @Param entity_id query string false "Entity ID"
// @Param limit query int false "Max results"
// @Success 200 {array} model.AuditEvent
// @Router /nfc-cards/admin/audit [get]
func (h *AdminHandler) AuditTrail(c echo.Context) error {
	events, err := h.adminService.AuditTrail(
		c.Request().Context(),
		c.QueryParam("entity_type"),
		c.QueryParam("entity_id"),
		queryInt(c, "limit", 100),
	)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, events)
}

// Reconcile godoc
// @Summary Run an offline-transaction reconciliation pass now
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.ReconcileStats
// @Router /nfc-cards/admin/reconcile [post]
func (h *AdminHandler) Reconcile(c echo.Context) error {
	stats, err := h.tapService.Reconcile(c.Request().Context())
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, stats)
}
