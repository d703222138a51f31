package handler

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"nfcpay/internal/auth"
	"nfcpay/internal/errors"
	"nfcpay/internal/model"
	"nfcpay/internal/service"
)

// CardHandler handles cardholder-facing card endpoints.
type CardHandler struct {
	registryService service.RegistryService
	ledgerService   service.LedgerService
}

// NewCardHandler creates a new card handler.
func NewCardHandler(registryService service.RegistryService, ledgerService service.LedgerService) *CardHandler {
	return &CardHandler{
		registryService: registryService,
		ledgerService:   ledgerService,
	}
}

// ActivateCardRequest represents a card activation request.
type ActivateCardRequest struct {
	CardUID         string `json:"card_uid" validate:"required"`
	ActivationCode  string `json:"activation_code" validate:"required"`
	CryptoChallenge string `json:"crypto_challenge" validate:"required"`
	CryptoResponse  string `json:"crypto_response" validate:"required"`
}

// SetPINRequest represents a PIN set request.
type SetPINRequest struct {
	PIN string `json:"pin" validate:"required,min=4,max=8"`
}

// CardActionRequest carries an optional reason for freeze/block actions.
type CardActionRequest struct {
	Reason string `json:"reason"`
}

// ReplacementRequestBody represents a card replacement request.
type ReplacementRequestBody struct {
	Reason          string `json:"reason" validate:"required"`
	DeliveryAddress string `json:"delivery_address" validate:"required"`
}

// ReloadRequest represents a balance reload request.
type ReloadRequest struct {
	Amount         string `json:"amount" validate:"required"`
	SourceWalletID string `json:"source_wallet_id" validate:"required"`
}

// Activate godoc
// @Summary Activate a card by binding its chip UID to the caller
// @Tags cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ActivateCardRequest true "Activation data"
// @Success 200 {object} model.PrepaidCard
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /nfc-cards/activate [post]
func (h *CardHandler) Activate(c echo.Context) error {
	var req ActivateCardRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return unauthorized()
	}

	card, err := h.registryService.Activate(
		c.Request().Context(),
		req.CardUID,
		req.ActivationCode,
		req.CryptoChallenge,
		req.CryptoResponse,
		principal.UserID,
	)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, card)
}

// SetPIN godoc
// @Summary Set the card's payment PIN
// @Tags cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param request body SetPINRequest true "PIN data"
// @Success 204
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /nfc-cards/{id}/pin [post]
func (h *CardHandler) SetPIN(c echo.Context) error {
	var req SetPINRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	cardID, principal, err := cardAndPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.registryService.SetPIN(c.Request().Context(), cardID, principal.UserID, req.PIN); err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.NoContent(http.StatusNoContent)
}

// MyCards godoc
// @Summary List the caller's cards
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.PrepaidCard
// @Router /nfc-cards/my-cards [get]
func (h *CardHandler) MyCards(c echo.Context) error {
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return unauthorized()
	}
	cards, err := h.registryService.MyCards(c.Request().Context(), principal.UserID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, cards)
}

// GetBalance godoc
// @Summary Get a card's balance breakdown
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Success 200 {object} service.Balance
// @Failure 404 {object} errors.ErrorResponse
// @Router /nfc-cards/{id}/balance [get]
func (h *CardHandler) GetBalance(c echo.Context) error {
	cardID, principal, err := cardAndPrincipal(c)
	if err != nil {
		return err
	}
	if _, err := h.registryService.GetCard(c.Request().Context(), cardID, principal.UserID); err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	balance, err := h.ledgerService.GetBalance(c.Request().Context(), cardID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, balance)
}

// Reload godoc
// @Summary Reload a card's balance from a funding wallet
// @Tags cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param request body ReloadRequest true "Reload data"
// @Success 200 {object} service.Balance
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /nfc-cards/{id}/reload [post]
func (h *CardHandler) Reload(c echo.Context) error {
	var req ReloadRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	cardID, principal, err := cardAndPrincipal(c)
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid amount",
			Code:  "INVALID_AMOUNT",
		})
	}
	balance, err := h.ledgerService.Reload(c.Request().Context(), cardID, principal.UserID, amount, req.SourceWalletID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, balance)
}

// Freeze godoc
// @Summary Freeze a card
// @Tags cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param request body CardActionRequest false "Reason"
// @Success 204
// @Failure 403 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /nfc-cards/{id}/freeze [post]
func (h *CardHandler) Freeze(c echo.Context) error {
	var req CardActionRequest
	_ = c.Bind(&req)
	cardID, principal, err := cardAndPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.registryService.Freeze(c.Request().Context(), cardID, principal.UserID, req.Reason); err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.NoContent(http.StatusNoContent)
}

// Unfreeze godoc
// @Summary Unfreeze a card
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Success 204
// @Failure 403 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /nfc-cards/{id}/unfreeze [post]
func (h *CardHandler) Unfreeze(c echo.Context) error {
	cardID, principal, err := cardAndPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.registryService.Unfreeze(c.Request().Context(), cardID, principal.UserID); err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.NoContent(http.StatusNoContent)
}

// Block godoc
// @Summary Block a card permanently
// @Tags cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param request body CardActionRequest false "Reason"
// @Success 204
// @Failure 403 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /nfc-cards/{id}/block [post]
func (h *CardHandler) Block(c echo.Context) error {
	var req CardActionRequest
	_ = c.Bind(&req)
	cardID, principal, err := cardAndPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.registryService.Block(c.Request().Context(), cardID, principal.UserID, string(principal.Role), req.Reason); err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.NoContent(http.StatusNoContent)
}

// RequestReplacement godoc
// @Summary Request a replacement for a lost, stolen, damaged or expired card
// @Tags cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param request body ReplacementRequestBody true "Replacement data"
// @Success 200 {object} model.ReplacementRequest
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /nfc-cards/{id}/replacement [post]
func (h *CardHandler) RequestReplacement(c echo.Context) error {
	var req ReplacementRequestBody
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	cardID, principal, err := cardAndPrincipal(c)
	if err != nil {
		return err
	}
	request, err := h.registryService.RequestReplacement(
		c.Request().Context(),
		cardID,
		principal.UserID,
		model.ReplacementReason(req.Reason),
		req.DeliveryAddress,
	)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, request)
}

// Transactions godoc
// @Summary List a card's transactions
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param limit query int false "Max results"
// @Success 200 {array} model.CardTransaction
// @Failure 403 {object} errors.ErrorResponse
// @Router /nfc-cards/{id}/transactions [get]
func (h *CardHandler) Transactions(c echo.Context) error {
	cardID, principal, err := cardAndPrincipal(c)
	if err != nil {
		return err
	}
	limit := queryInt(c, "limit", 50)
	txns, err := h.registryService.CardTransactions(c.Request().Context(), cardID, principal.UserID, limit)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, txns)
}

// LedgerEntries godoc
// @Summary List a card's signed ledger entries
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param limit query int false "Max results"
// @Success 200 {array} model.LedgerEntry
// @Failure 403 {object} errors.ErrorResponse
// @Router /nfc-cards/{id}/ledger [get]
func (h *CardHandler) LedgerEntries(c echo.Context) error {
	cardID, principal, err := cardAndPrincipal(c)
	if err != nil {
		return err
	}
	if _, err := h.registryService.GetCard(c.Request().Context(), cardID, principal.UserID); err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	limit := queryInt(c, "limit", 50)
	entries, err := h.ledgerService.Entries(c.Request().Context(), cardID, limit)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, entries)
}

// cardAndPrincipal extracts the path card ID and the JWT principal.
func cardAndPrincipal(c echo.Context) (uuid.UUID, auth.Principal, error) {
	cardID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, auth.Principal{}, echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid card id",
			Code:  "INVALID_UUID",
		})
	}
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return uuid.Nil, auth.Principal{}, unauthorized()
	}
	return cardID, principal, nil
}

// bindAndValidate binds the JSON body and runs struct validation.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		})
	}
	return nil
}

func unauthorized() error {
	return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrorResponse{
		Error: errors.ErrUnauthorized.Error(),
		Code:  "UNAUTHORIZED",
	})
}

// queryInt parses an int query parameter with a default.
func queryInt(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
