package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"nfcpay/internal/audit"
	"nfcpay/internal/errors"
	"nfcpay/internal/model"
	"nfcpay/internal/repository"
)

// cardInsertChunk is the per-INSERT chunk size used when pre-creating a
// batch's card records.
const cardInsertChunk = 500

// CreateProgramInput carries a new card program definition.
type CreateProgramInput struct {
	Code                string
	Name                string
	Category            string
	IsReloadable        bool
	RequiresKYC         bool
	IssuancePrice       decimal.Decimal
	InitialBalance      decimal.Decimal
	PerTransactionLimit decimal.Decimal
	DailyLimit          decimal.Decimal
	ValidFrom           time.Time
	ValidUntil          time.Time
}

// CreateBatchInput orders a manufactured lot of cards under a program.
type CreateBatchInput struct {
	ProgramID     uuid.UUID
	BatchNo       string
	Manufacturer  string
	SerialPrefix  string
	SequenceStart int64
	SequenceEnd   int64 // inclusive
}

// ProgramService manages card programs, batches and the pre-created card
// stock that activation later claims.
type ProgramService interface {
	CreateProgram(ctx context.Context, input CreateProgramInput, actorID uuid.UUID) (*model.CardProgram, error)
	UpdateProgramStatus(ctx context.Context, programID uuid.UUID, status model.ProgramStatus, actorID uuid.UUID) (*model.CardProgram, error)
	ListPrograms(ctx context.Context) ([]model.CardProgram, error)
	GetProgram(ctx context.Context, programID uuid.UUID) (*model.CardProgram, error)
	CreateBatch(ctx context.Context, input CreateBatchInput, actorID uuid.UUID) (*model.CardBatch, error)
	UpdateBatchStatus(ctx context.Context, batchID uuid.UUID, status model.BatchStatus, actorID uuid.UUID) (*model.CardBatch, error)
	ListBatches(ctx context.Context, programID *uuid.UUID) ([]model.CardBatch, error)
}

type programService struct {
	repos    *repository.Repos
	auditLog audit.Logger
}

// NewProgramService creates a new program service.
func NewProgramService(repos *repository.Repos, auditLog audit.Logger) ProgramService {
	return &programService{repos: repos, auditLog: auditLog}
}

// CreateProgram defines a new card program in ACTIVE status.
func (s *programService) CreateProgram(ctx context.Context, input CreateProgramInput, actorID uuid.UUID) (*model.CardProgram, error) {
	if input.IssuancePrice.IsNegative() || input.InitialBalance.IsNegative() ||
		input.PerTransactionLimit.LessThanOrEqual(decimal.Zero) || input.DailyLimit.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}
	program := &model.CardProgram{
		Code:                input.Code,
		Name:                input.Name,
		Category:            input.Category,
		IsReloadable:        input.IsReloadable,
		RequiresKYC:         input.RequiresKYC,
		IssuancePrice:       input.IssuancePrice,
		InitialBalance:      input.InitialBalance,
		PerTransactionLimit: input.PerTransactionLimit,
		DailyLimit:          input.DailyLimit,
		ValidFrom:           input.ValidFrom,
		ValidUntil:          input.ValidUntil,
		Status:              model.ProgramStatusActive,
	}
	if err := s.repos.Programs.Create(ctx, program); err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}
	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType: "card_program",
		EntityID:   program.ID.String(),
		EventType:  "PROGRAM_CREATED",
		ActorID:    actorID.String(),
		ActorRole:  "SUPERADMIN",
		Detail:     fmt.Sprintf(`{"code":"%s"}`, program.Code),
	})
	return program, nil
}

// UpdateProgramStatus moves a program between ACTIVE, SUSPENDED and
// RETIRED. RETIRED is terminal.
func (s *programService) UpdateProgramStatus(ctx context.Context, programID uuid.UUID, status model.ProgramStatus, actorID uuid.UUID) (*model.CardProgram, error) {
	program, err := s.repos.Programs.FindByID(ctx, programID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrProgramNotFound
		}
		return nil, fmt.Errorf("find program: %w", err)
	}
	if program.Status == model.ProgramStatusRetired {
		return nil, errors.ErrInvalidState
	}
	before := program.Status
	program.Status = status
	if err := s.repos.Programs.Update(ctx, program); err != nil {
		return nil, fmt.Errorf("update program: %w", err)
	}
	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType:  "card_program",
		EntityID:    program.ID.String(),
		EventType:   "PROGRAM_STATUS_CHANGED",
		ActorID:     actorID.String(),
		ActorRole:   "SUPERADMIN",
		BeforeState: string(before),
		AfterState:  string(status),
	})
	return program, nil
}

// ListPrograms returns all programs.
func (s *programService) ListPrograms(ctx context.Context) ([]model.CardProgram, error) {
	return s.repos.Programs.List(ctx)
}

// GetProgram resolves one program.
func (s *programService) GetProgram(ctx context.Context, programID uuid.UUID) (*model.CardProgram, error) {
	program, err := s.repos.Programs.FindByID(ctx, programID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrProgramNotFound
		}
		return nil, fmt.Errorf("find program: %w", err)
	}
	return program, nil
}

// CreateBatch registers a manufactured lot and pre-creates one ISSUED card
// record per sequence number, each seeded with the program's initial
// balance and a fresh activation code. The batch starts in DRAFT; cards
// only become activatable when the batch does.
func (s *programService) CreateBatch(ctx context.Context, input CreateBatchInput, actorID uuid.UUID) (*model.CardBatch, error) {
	if input.SequenceStart <= 0 || input.SequenceEnd < input.SequenceStart {
		return nil, errors.ErrRangeOutOfBatch
	}
	program, err := s.repos.Programs.FindByID(ctx, input.ProgramID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrProgramNotFound
		}
		return nil, fmt.Errorf("find program: %w", err)
	}
	if program.Status != model.ProgramStatusActive {
		return nil, errors.ErrInvalidState
	}

	batch := &model.CardBatch{
		ProgramID:     input.ProgramID,
		BatchNo:       input.BatchNo,
		Manufacturer:  input.Manufacturer,
		SerialPrefix:  input.SerialPrefix,
		SequenceStart: input.SequenceStart,
		SequenceEnd:   input.SequenceEnd,
		Status:        model.BatchStatusDraft,
	}

	err = s.repos.WithTransaction(ctx, func(ctx context.Context, tx *repository.Repos) error {
		if err := tx.Batches.Create(ctx, batch); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		cards := make([]model.PrepaidCard, 0, cardInsertChunk)
		for seq := input.SequenceStart; seq <= input.SequenceEnd; seq++ {
			code, err := newActivationCode()
			if err != nil {
				return fmt.Errorf("activation code: %w", err)
			}
			cards = append(cards, model.PrepaidCard{
				ProgramID:      program.ID,
				BatchID:        batch.ID,
				SerialNumber:   SerialNumber(input.SerialPrefix, seq),
				SequenceNumber: seq,
				ActivationCode: code,
				Balance:        program.InitialBalance,
				Held:           decimal.Zero,
				State:          model.CardStateIssued,
			})
			if len(cards) == cardInsertChunk {
				if err := tx.Cards.CreateInBatches(ctx, cards); err != nil {
					return fmt.Errorf("create cards: %w", err)
				}
				cards = cards[:0]
			}
		}
		if len(cards) > 0 {
			if err := tx.Cards.CreateInBatches(ctx, cards); err != nil {
				return fmt.Errorf("create cards: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType: "card_batch",
		EntityID:   batch.ID.String(),
		EventType:  "BATCH_CREATED",
		ActorID:    actorID.String(),
		ActorRole:  "ADMIN",
		Detail: fmt.Sprintf(`{"batch_no":"%s","cards":%d}`,
			batch.BatchNo, batch.CardCount()),
	})
	return batch, nil
}

// UpdateBatchStatus advances the batch through its distribution lifecycle.
func (s *programService) UpdateBatchStatus(ctx context.Context, batchID uuid.UUID, status model.BatchStatus, actorID uuid.UUID) (*model.CardBatch, error) {
	batch, err := s.repos.Batches.FindByID(ctx, batchID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrBatchNotFound
		}
		return nil, fmt.Errorf("find batch: %w", err)
	}
	if !batch.Status.CanTransitionTo(status) {
		return nil, errors.ErrInvalidBatchStatus
	}
	before := batch.Status
	batch.Status = status
	if err := s.repos.Batches.Update(ctx, batch); err != nil {
		return nil, fmt.Errorf("update batch: %w", err)
	}
	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType:  "card_batch",
		EntityID:    batch.ID.String(),
		EventType:   "BATCH_STATUS_CHANGED",
		ActorID:     actorID.String(),
		ActorRole:   "ADMIN",
		BeforeState: string(before),
		AfterState:  string(status),
	})
	return batch, nil
}

// ListBatches returns batches, optionally filtered by program.
func (s *programService) ListBatches(ctx context.Context, programID *uuid.UUID) ([]model.CardBatch, error) {
	if programID != nil {
		return s.repos.Batches.ListByProgram(ctx, *programID)
	}
	return s.repos.Batches.List(ctx)
}

// SerialNumber builds the printed serial for a sequence number under a
// batch prefix: prefix plus the zero-padded sequence.
func SerialNumber(prefix string, sequence int64) string {
	return fmt.Sprintf("%s%010d", prefix, sequence)
}

// newActivationCode returns a random activation code printed under the
// card's scratch panel.
func newActivationCode() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
