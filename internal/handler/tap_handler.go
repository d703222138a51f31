package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"nfcpay/internal/auth"
	"nfcpay/internal/challenge"
	"nfcpay/internal/errors"
	"nfcpay/internal/service"
)

// TapHandler handles terminal-facing endpoints: challenge issuance and
// tap-to-pay.
type TapHandler struct {
	challengeService *challenge.Service
	tapService       service.TapService
}

// NewTapHandler creates a new tap handler.
func NewTapHandler(challengeService *challenge.Service, tapService service.TapService) *TapHandler {
	return &TapHandler{
		challengeService: challengeService,
		tapService:       tapService,
	}
}

// ChallengeRequest represents a challenge issuance request.
type ChallengeRequest struct {
	CardUID string `json:"card_uid" validate:"required"`
}

// ChallengeResponse represents an issued challenge.
type ChallengeResponse struct {
	Challenge string `json:"challenge"`
	TTLMillis int64  `json:"ttl_ms"`
}

// TapToPayRequest represents a terminal purchase request.
type TapToPayRequest struct {
	CardUID         string `json:"card_uid" validate:"required"`
	MerchantRef     string `json:"merchant_ref" validate:"required"`
	Amount          string `json:"amount" validate:"required"`
	Currency        string `json:"currency" validate:"required,len=3"`
	CryptoChallenge string `json:"crypto_challenge" validate:"required"`
	CryptoResponse  string `json:"crypto_response" validate:"required"`
	PIN             string `json:"pin"`
	IsOffline       bool   `json:"is_offline"`
	IdempotencyKey  string `json:"idempotency_key" validate:"required"`
}

// TapToPayResponse wraps the business outcome. Declines come back with
// success=false on a 200; HTTP errors are reserved for malformed requests
// and infrastructure failures.
type TapToPayResponse struct {
	Success bool               `json:"success"`
	Result  *service.TapResult `json:"result"`
}

// IssueChallenge godoc
// @Summary Issue a single-use crypto challenge for a card UID
// @Tags tap
// @Accept json
// @Produce json
// @Param request body ChallengeRequest true "Card UID"
// @Success 200 {object} ChallengeResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Router /nfc-cards/challenge [post]
func (h *TapHandler) IssueChallenge(c echo.Context) error {
	var req ChallengeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	issued, err := h.challengeService.Issue(c.Request().Context(), req.CardUID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, ChallengeResponse{
		Challenge: issued,
		TTLMillis: h.challengeService.TTL().Milliseconds(),
	})
}

// TapToPay godoc
// @Summary Process a tap-to-pay purchase
// @Tags tap
// @Accept json
// @Produce json
// @Param X-Terminal-Key header string true "Terminal API key"
// @Param request body TapToPayRequest true "Purchase data"
// @Success 200 {object} TapToPayResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /nfc-cards/tap-to-pay [post]
func (h *TapHandler) TapToPay(c echo.Context) error {
	var req TapToPayRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	terminal, err := auth.TerminalFromContext(c)
	if err != nil {
		return unauthorized()
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid amount",
			Code:  "INVALID_AMOUNT",
		})
	}

	result, err := h.tapService.ProcessTapToPay(c.Request().Context(), service.TapRequest{
		CardUID:         req.CardUID,
		TerminalID:      terminal.ID,
		MerchantRef:     req.MerchantRef,
		Amount:          amount,
		Currency:        req.Currency,
		CryptoChallenge: req.CryptoChallenge,
		CryptoResponse:  req.CryptoResponse,
		PIN:             req.PIN,
		IsOffline:       req.IsOffline,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, TapToPayResponse{
		Success: result.Approved,
		Result:  result,
	})
}
