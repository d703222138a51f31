package errors

import (
	"errors"
	"net/http"
)

// Domain sentinel errors. Business-rule violations map to structured
// payloads rather than 5xx responses; infrastructure failures fail closed.
var (
	// ErrCardNotFound is returned when a card cannot be resolved.
	ErrCardNotFound = errors.New("card not found")
	// ErrProgramNotFound is returned when a card program cannot be resolved.
	ErrProgramNotFound = errors.New("card program not found")
	// ErrBatchNotFound is returned when a card batch cannot be resolved.
	ErrBatchNotFound = errors.New("card batch not found")
	// ErrVendorNotFound is returned when a vendor cannot be resolved.
	ErrVendorNotFound = errors.New("vendor not found")
	// ErrTransactionNotFound is returned when a transaction cannot be resolved.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidState is returned when a lifecycle transition is not an allowed edge.
	ErrInvalidState = errors.New("invalid card state for this operation")
	// ErrInvalidBatchStatus is returned when a batch status transition is not allowed.
	ErrInvalidBatchStatus = errors.New("invalid batch status transition")
	// ErrAlreadyBound is returned when a card UID has already been claimed.
	ErrAlreadyBound = errors.New("card uid already bound")
	// ErrNotOwner is returned when a user acts on a card they do not own.
	ErrNotOwner = errors.New("card does not belong to this user")

	// ErrCryptoValidationFailed is returned when a challenge response does not match.
	ErrCryptoValidationFailed = errors.New("crypto response validation failed")
	// ErrChallengeNotFound is returned when no challenge exists for the card uid.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeExpired is returned when the challenge is past its TTL.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrChallengeAlreadyUsed is returned when the challenge was already consumed.
	ErrChallengeAlreadyUsed = errors.New("challenge already used")

	// ErrInsufficientFunds is returned when available balance cannot cover a hold.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotReloadable is returned when reloading a card of a non-reloadable program.
	ErrNotReloadable = errors.New("card program is not reloadable")
	// ErrInvalidAmount is returned when an amount is zero, negative, or malformed.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrLedgerInvariant is returned when a mutation would break balance >= held >= 0.
	ErrLedgerInvariant = errors.New("ledger invariant violation")
	// ErrInvalidPIN is returned when a PIN does not meet format requirements.
	ErrInvalidPIN = errors.New("pin must be 4-8 digits")
	// ErrInvalidReason is returned when a replacement reason is unknown.
	ErrInvalidReason = errors.New("invalid replacement reason")

	// ErrRangeOverlap is returned when an inventory range overlaps an existing assignment.
	ErrRangeOverlap = errors.New("inventory range overlaps an existing assignment")
	// ErrRangeOutOfBatch is returned when an inventory range exceeds the batch sequence space.
	ErrRangeOutOfBatch = errors.New("inventory range outside batch sequence space")
	// ErrCardNotInVendorInventory is returned when a sale references a card outside the vendor's ranges.
	ErrCardNotInVendorInventory = errors.New("card not in vendor inventory")
	// ErrVendorNotApproved is returned when an unapproved vendor attempts a gated operation.
	ErrVendorNotApproved = errors.New("vendor not approved")
	// ErrInventoryValueExceeded is returned when an assignment would exceed the vendor's cap.
	ErrInventoryValueExceeded = errors.New("vendor max inventory value exceeded")

	// ErrUnauthorized is returned when no valid principal accompanies the request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the principal's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors. Business-rule
// violations come back as 400/409 with a stable code; anything unknown is
// an opaque 500 so infrastructure failures never leak approval semantics.
func MapErrorToHTTP(err error) *HTTPError {
	switch {
	case errors.Is(err, ErrCardNotFound),
		errors.Is(err, ErrProgramNotFound),
		errors.Is(err, ErrBatchNotFound),
		errors.Is(err, ErrVendorNotFound),
		errors.Is(err, ErrTransactionNotFound):
		return NewHTTPError(http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, ErrUnauthorized):
		return NewHTTPError(http.StatusUnauthorized, err.Error(), "UNAUTHORIZED")
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotOwner):
		return NewHTTPError(http.StatusForbidden, err.Error(), "FORBIDDEN")
	case errors.Is(err, ErrInvalidState):
		return NewHTTPError(http.StatusConflict, err.Error(), "INVALID_STATE")
	case errors.Is(err, ErrInvalidBatchStatus):
		return NewHTTPError(http.StatusConflict, err.Error(), "INVALID_BATCH_STATUS")
	case errors.Is(err, ErrAlreadyBound):
		return NewHTTPError(http.StatusConflict, err.Error(), "ALREADY_BOUND")
	case errors.Is(err, ErrCryptoValidationFailed):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "CRYPTO_VALIDATION_FAILED")
	case errors.Is(err, ErrChallengeNotFound):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "CHALLENGE_NOT_FOUND")
	case errors.Is(err, ErrChallengeExpired):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "CHALLENGE_EXPIRED")
	case errors.Is(err, ErrChallengeAlreadyUsed):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "CHALLENGE_ALREADY_USED")
	case errors.Is(err, ErrInsufficientFunds):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "INSUFFICIENT_FUNDS")
	case errors.Is(err, ErrNotReloadable):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "NOT_RELOADABLE")
	case errors.Is(err, ErrInvalidAmount):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "INVALID_AMOUNT")
	case errors.Is(err, ErrInvalidPIN):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "INVALID_PIN")
	case errors.Is(err, ErrInvalidReason):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "INVALID_REASON")
	case errors.Is(err, ErrRangeOverlap):
		return NewHTTPError(http.StatusConflict, err.Error(), "RANGE_OVERLAP")
	case errors.Is(err, ErrRangeOutOfBatch):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "RANGE_OUT_OF_BATCH")
	case errors.Is(err, ErrCardNotInVendorInventory):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "CARD_NOT_IN_VENDOR_INVENTORY")
	case errors.Is(err, ErrVendorNotApproved):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "VENDOR_NOT_APPROVED")
	case errors.Is(err, ErrInventoryValueExceeded):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "INVENTORY_VALUE_EXCEEDED")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
