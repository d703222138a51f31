package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"nfcpay/internal/auth"
	"nfcpay/internal/errors"
	"nfcpay/internal/model"
	"nfcpay/internal/service"
)

// ProgramHandler handles card program and batch administration.
type ProgramHandler struct {
	programService service.ProgramService
}

// NewProgramHandler creates a new program handler.
func NewProgramHandler(programService service.ProgramService) *ProgramHandler {
	return &ProgramHandler{programService: programService}
}

// CreateProgramRequest represents a new card program.
type CreateProgramRequest struct {
	Code                string `json:"code" validate:"required,max=32"`
	Name                string `json:"name" validate:"required,max=255"`
	Category            string `json:"category" validate:"required,max=64"`
	IsReloadable        bool   `json:"is_reloadable"`
	RequiresKYC         bool   `json:"requires_kyc"`
	IssuancePrice       string `json:"issuance_price" validate:"required"`
	InitialBalance      string `json:"initial_balance" validate:"required"`
	PerTransactionLimit string `json:"per_transaction_limit" validate:"required"`
	DailyLimit          string `json:"daily_limit" validate:"required"`
	ValidFrom           string `json:"valid_from" validate:"required"`
	ValidUntil          string `json:"valid_until" validate:"required"`
}

// UpdateStatusRequest represents a status change request.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// CreateBatchRequest represents a new manufactured batch.
type CreateBatchRequest struct {
	ProgramID     string `json:"program_id" validate:"required,uuid"`
	BatchNo       string `json:"batch_no" validate:"required,max=48"`
	Manufacturer  string `json:"manufacturer" validate:"required,max=255"`
	SerialPrefix  string `json:"serial_prefix" validate:"required,max=16"`
	SequenceStart int64  `json:"sequence_start" validate:"required,gt=0"`
	SequenceEnd   int64  `json:"sequence_end" validate:"required,gt=0"`
}

// CreateProgram godoc
// @Summary Create a card program
// @Tags programs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateProgramRequest true "Program data"
// @Success 201 {object} model.CardProgram
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /nfc-cards/programs [post]
func (h *ProgramHandler) CreateProgram(c echo.Context) error {
	var req CreateProgramRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return unauthorized()
	}

	input := service.CreateProgramInput{
		Code:         req.Code,
		Name:         req.Name,
		Category:     req.Category,
		IsReloadable: req.IsReloadable,
		RequiresKYC:  req.RequiresKYC,
	}
	fields := []struct {
		raw  string
		dest *decimal.Decimal
	}{
		{req.IssuancePrice, &input.IssuancePrice},
		{req.InitialBalance, &input.InitialBalance},
		{req.PerTransactionLimit, &input.PerTransactionLimit},
		{req.DailyLimit, &input.DailyLimit},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
				Error: "invalid amount",
				Code:  "INVALID_AMOUNT",
			})
		}
		*f.dest = v
	}
	for _, span := range []struct {
		raw  string
		dest *time.Time
	}{
		{req.ValidFrom, &input.ValidFrom},
		{req.ValidUntil, &input.ValidUntil},
	} {
		t, err := time.Parse(time.RFC3339, span.raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
				Error: "invalid timestamp, expected RFC3339",
				Code:  "INVALID_TIMESTAMP",
			})
		}
		*span.dest = t
	}

	program, err := h.programService.CreateProgram(c.Request().Context(), input, principal.UserID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusCreated, program)
}

// ListPrograms godoc
// @Summary List card programs
// @Tags programs
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.CardProgram
// @Router /nfc-cards/programs [get]
func (h *ProgramHandler) ListPrograms(c echo.Context) error {
	programs, err := h.programService.ListPrograms(c.Request().Context())
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, programs)
}

// GetProgram godoc
// @Summary Get one card program
// @Tags programs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Program ID"
// @Success 200 {object} model.CardProgram
// @Failure 404 {object} errors.ErrorResponse
// @Router /nfc-cards/programs/{id} [get]
func (h *ProgramHandler) GetProgram(c echo.Context) error {
	programID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return invalidUUID("program id")
	}
	program, err := h.programService.GetProgram(c.Request().Context(), programID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, program)
}

// UpdateProgramStatus godoc
// @Summary Change a program's status
// @Tags programs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Program ID"
// @Param request body UpdateStatusRequest true "New status"
// @Success 200 {object} model.CardProgram
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /nfc-cards/programs/{id}/status [patch]
func (h *ProgramHandler) UpdateProgramStatus(c echo.Context) error {
	var req UpdateStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	programID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return invalidUUID("program id")
	}
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return unauthorized()
	}
	program, err := h.programService.UpdateProgramStatus(
		c.Request().Context(), programID, model.ProgramStatus(req.Status), principal.UserID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, program)
}

// CreateBatch godoc
// @Summary Register a manufactured card batch and pre-create its cards
// @Tags programs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateBatchRequest true "Batch data"
// @Success 201 {object} model.CardBatch
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /nfc-cards/batches [post]
func (h *ProgramHandler) CreateBatch(c echo.Context) error {
	var req CreateBatchRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	programID, err := uuid.Parse(req.ProgramID)
	if err != nil {
		return invalidUUID("program_id")
	}
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return unauthorized()
	}
	batch, err := h.programService.CreateBatch(c.Request().Context(), service.CreateBatchInput{
		ProgramID:     programID,
		BatchNo:       req.BatchNo,
		Manufacturer:  req.Manufacturer,
		SerialPrefix:  req.SerialPrefix,
		SequenceStart: req.SequenceStart,
		SequenceEnd:   req.SequenceEnd,
	}, principal.UserID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusCreated, batch)
}

// UpdateBatchStatus godoc
// @Summary Advance a batch through its distribution lifecycle
// @Tags programs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Param request body UpdateStatusRequest true "New status"
// @Success 200 {object} model.CardBatch
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /nfc-cards/batches/{id}/status [patch]
func (h *ProgramHandler) UpdateBatchStatus(c echo.Context) error {
	var req UpdateStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return invalidUUID("batch id")
	}
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return unauthorized()
	}
	batch, err := h.programService.UpdateBatchStatus(
		c.Request().Context(), batchID, model.BatchStatus(req.Status), principal.UserID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, batch)
}

// ListBatches godoc
// @Summary List batches, optionally by program
// @Tags programs
// @Produce json
// @Security BearerAuth
// @Param program_id query string false "Program ID"
// @Success 200 {array} model.CardBatch
// @Router /nfc-cards/batches [get]
func (h *ProgramHandler) ListBatches(c echo.Context) error {
	var programID *uuid.UUID
	if raw := c.QueryParam("program_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return invalidUUID("program_id")
		}
		programID = &id
	}
	batches, err := h.programService.ListBatches(c.Request().Context(), programID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, batches)
}

func invalidUUID(field string) error {
	return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
		Error: "invalid " + field,
		Code:  "INVALID_UUID",
	})
}
