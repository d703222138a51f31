package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"nfcpay/internal/audit"
	"nfcpay/internal/challenge"
	"nfcpay/internal/errors"
	"nfcpay/internal/model"
	"nfcpay/internal/repository"
)

// RegistryService owns the card lifecycle state machine. It is the only
// mutator of card state; every transition (and every rejected attempt) is
// written to the audit log.
type RegistryService interface {
	Activate(ctx context.Context, cardUID, activationCode, cryptoChallenge, cryptoResponse string, userID uuid.UUID) (*model.PrepaidCard, error)
	SetPIN(ctx context.Context, cardID, userID uuid.UUID, pin string) error
	Freeze(ctx context.Context, cardID, userID uuid.UUID, reason string) error
	Unfreeze(ctx context.Context, cardID, userID uuid.UUID) error
	Block(ctx context.Context, cardID, actorID uuid.UUID, actorRole, reason string) error
	RequestReplacement(ctx context.Context, cardID, userID uuid.UUID, reason model.ReplacementReason, deliveryAddress string) (*model.ReplacementRequest, error)
	MyCards(ctx context.Context, userID uuid.UUID) ([]model.PrepaidCard, error)
	GetCard(ctx context.Context, cardID, userID uuid.UUID) (*model.PrepaidCard, error)
	CardTransactions(ctx context.Context, cardID, userID uuid.UUID, limit int) ([]model.CardTransaction, error)
}

type registryService struct {
	repos      *repository.Repos
	challenges challenge.Validator
	auditLog   audit.Logger
	signingKey []byte
}

// NewRegistryService creates a new registry service.
func NewRegistryService(repos *repository.Repos, challenges challenge.Validator, auditLog audit.Logger, ledgerSigningKey string) RegistryService {
	return &registryService{
		repos:      repos,
		challenges: challenges,
		auditLog:   auditLog,
		signingKey: []byte(ledgerSigningKey),
	}
}

// Activate binds a physical card to a user after a successful
// challenge-response handshake. Requires state ISSUED and an ACTIVATABLE
// batch; the UID hash must not already be claimed.
func (s *registryService) Activate(ctx context.Context, cardUID, activationCode, cryptoChallenge, cryptoResponse string, userID uuid.UUID) (*model.PrepaidCard, error) {
	card, err := s.repos.Cards.FindByActivationCode(ctx, activationCode)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrCardNotFound
		}
		return nil, fmt.Errorf("find card: %w", err)
	}

	uidHash := challenge.HashUID(cardUID)
	if existing, err := s.repos.Cards.FindByUIDHash(ctx, uidHash); err == nil && existing.ID != card.ID {
		s.recordRejected(ctx, card, "ACTIVATE", userID.String(), "USER", "uid already bound")
		return nil, errors.ErrAlreadyBound
	} else if err != nil && err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("check uid binding: %w", err)
	}

	if err := s.challenges.Validate(ctx, cardUID, cryptoChallenge, cryptoResponse); err != nil {
		s.recordRejected(ctx, card, "ACTIVATE", userID.String(), "USER", err.Error())
		switch err {
		case errors.ErrChallengeNotFound, errors.ErrChallengeExpired,
			errors.ErrChallengeAlreadyUsed, errors.ErrCryptoValidationFailed:
			return nil, errors.ErrCryptoValidationFailed
		}
		return nil, err
	}

	var activated *model.PrepaidCard
	err = withCardLock(ctx, s.repos, card.ID, func(tx *repository.Repos, locked *model.PrepaidCard) error {
		if locked.State != model.CardStateIssued {
			s.recordRejected(ctx, locked, "ACTIVATE", userID.String(), "USER", "not in ISSUED state")
			return errors.ErrInvalidState
		}
		batch, err := tx.Batches.FindByID(ctx, locked.BatchID)
		if err != nil {
			return fmt.Errorf("find batch: %w", err)
		}
		if batch.Status != model.BatchStatusActivatable {
			s.recordRejected(ctx, locked, "ACTIVATE", userID.String(), "USER", "batch not activatable")
			return errors.ErrInvalidState
		}
		now := time.Now()
		before := locked.State
		locked.State = model.CardStateActivated
		locked.UIDHash = &uidHash
		locked.UserID = &userID
		locked.ActivatedAt = &now
		if err := tx.Cards.Update(ctx, locked); err != nil {
			return err
		}
		s.recordTransition(ctx, locked, "ACTIVATE", userID.String(), "USER", before, locked.State, "")
		activated = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activated, nil
}

// SetPIN hashes and stores the owner's PIN, clearing any PIN lock. A card
// must have a PIN before its first spend.
func (s *registryService) SetPIN(ctx context.Context, cardID, userID uuid.UUID, pin string) error {
	pin = strings.TrimSpace(pin)
	if len(pin) < 4 || len(pin) > 8 {
		return errors.ErrInvalidPIN
	}
	return withCardLock(ctx, s.repos, cardID, func(tx *repository.Repos, card *model.PrepaidCard) error {
		if card.UserID == nil || *card.UserID != userID {
			return errors.ErrNotOwner
		}
		if card.State != model.CardStateActivated {
			return errors.ErrInvalidState
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash pin: %w", err)
		}
		card.PINHash = string(hash)
		card.PINAttempts = 0
		card.PINLockedUntil = nil
		if err := tx.Cards.Update(ctx, card); err != nil {
			return err
		}
		s.auditLog.Record(ctx, model.AuditEvent{
			EntityType: "prepaid_card",
			EntityID:   card.ID.String(),
			EventType:  "PIN_SET",
			ActorID:    userID.String(),
			ActorRole:  "USER",
		})
		return nil
	})
}

// Freeze moves an ACTIVATED card to FROZEN. Owner-only.
func (s *registryService) Freeze(ctx context.Context, cardID, userID uuid.UUID, reason string) error {
	return s.transition(ctx, cardID, model.CardStateFrozen, "FREEZE", userID.String(), "USER", reason, &userID)
}

// Unfreeze moves a FROZEN card back to ACTIVATED. Owner-only.
func (s *registryService) Unfreeze(ctx context.Context, cardID, userID uuid.UUID) error {
	return s.transition(ctx, cardID, model.CardStateActivated, "UNFREEZE", userID.String(), "USER", "", &userID)
}

// Block irreversibly blocks a card. Owners block their own cards; admin
// actors may block any card.
func (s *registryService) Block(ctx context.Context, cardID, actorID uuid.UUID, actorRole, reason string) error {
	var owner *uuid.UUID
	if actorRole == "USER" {
		owner = &actorID
	}
	return s.transition(ctx, cardID, model.CardStateBlocked, "BLOCK", actorID.String(), actorRole, reason, owner)
}

// transition applies a single state-machine edge under the card's row
// lock. Invalid edges change nothing and leave a rejected-attempt audit
// record. When owner is non-nil the card must belong to that user.
func (s *registryService) transition(ctx context.Context, cardID uuid.UUID, next model.CardState, eventType, actorID, actorRole, reason string, owner *uuid.UUID) error {
	return withCardLock(ctx, s.repos, cardID, func(tx *repository.Repos, card *model.PrepaidCard) error {
		if owner != nil && (card.UserID == nil || *card.UserID != *owner) {
			return errors.ErrNotOwner
		}
		if !card.State.CanTransitionTo(next) {
			s.recordRejected(ctx, card, eventType, actorID, actorRole, fmt.Sprintf("%s -> %s not allowed", card.State, next))
			return errors.ErrInvalidState
		}
		before := card.State
		card.State = next
		if err := tx.Cards.Update(ctx, card); err != nil {
			return err
		}
		s.recordTransition(ctx, card, eventType, actorID, actorRole, before, next, reason)
		return nil
	})
}

// RequestReplacement moves the old card through REPLACEMENT_REQUESTED to
// BLOCKED, issues a successor under the same program/batch, and moves the
// remaining available balance across with paired ledger entries. Blocked
// cards qualify only when the card was lost or stolen.
func (s *registryService) RequestReplacement(ctx context.Context, cardID, userID uuid.UUID, reason model.ReplacementReason, deliveryAddress string) (*model.ReplacementRequest, error) {
	if !model.ValidReplacementReason(reason) {
		return nil, errors.ErrInvalidReason
	}

	var request *model.ReplacementRequest
	err := withCardLock(ctx, s.repos, cardID, func(tx *repository.Repos, card *model.PrepaidCard) error {
		if card.UserID == nil || *card.UserID != userID {
			return errors.ErrNotOwner
		}
		switch card.State {
		case model.CardStateActivated, model.CardStateFrozen:
			// always eligible
		case model.CardStateBlocked:
			if reason != model.ReplacementReasonLost && reason != model.ReplacementReasonStolen {
				s.recordRejected(ctx, card, "REQUEST_REPLACEMENT", userID.String(), "USER", "blocked card: reason not lost/stolen")
				return errors.ErrInvalidState
			}
		default:
			s.recordRejected(ctx, card, "REQUEST_REPLACEMENT", userID.String(), "USER", fmt.Sprintf("state %s not eligible", card.State))
			return errors.ErrInvalidState
		}

		// Nothing can commit a hold once the card is blocked.
		if card.Held.GreaterThan(decimal.Zero) {
			card.Held = decimal.Zero
		}
		carried := card.Balance

		before := card.State
		if before != model.CardStateBlocked {
			card.State = model.CardStateReplacementRequested
		}
		outBefore := card.Balance
		card.Balance = decimal.Zero
		if err := tx.Cards.Update(ctx, card); err != nil {
			return err
		}

		newCard := &model.PrepaidCard{
			ProgramID:      card.ProgramID,
			BatchID:        card.BatchID,
			SerialNumber:   card.SerialNumber + "R",
			SequenceNumber: card.SequenceNumber,
			ActivationCode: uuid.NewString(),
			Balance:        carried,
			Held:           decimal.Zero,
			State:          model.CardStateIssued,
			UserID:         &userID,
		}
		if err := tx.Cards.Create(ctx, newCard); err != nil {
			return fmt.Errorf("create replacement card: %w", err)
		}

		if carried.GreaterThan(decimal.Zero) {
			out := &model.LedgerEntry{
				CardID:        card.ID,
				EntryType:     model.LedgerEntryReplacementOut,
				Amount:        carried,
				BalanceBefore: outBefore,
				BalanceAfter:  card.Balance,
			}
			out.Signature = signLedgerEntry(s.signingKey, out)
			if err := tx.Ledger.Append(ctx, out); err != nil {
				return fmt.Errorf("append replacement-out entry: %w", err)
			}
			in := &model.LedgerEntry{
				CardID:        newCard.ID,
				EntryType:     model.LedgerEntryReplacementIn,
				Amount:        carried,
				BalanceBefore: decimal.Zero,
				BalanceAfter:  carried,
			}
			in.Signature = signLedgerEntry(s.signingKey, in)
			if err := tx.Ledger.Append(ctx, in); err != nil {
				return fmt.Errorf("append replacement-in entry: %w", err)
			}
		}

		request = &model.ReplacementRequest{
			OldCardID:       card.ID,
			NewCardID:       &newCard.ID,
			UserID:          userID,
			Reason:          reason,
			DeliveryAddress: deliveryAddress,
			Status:          model.ReplacementStatusCompleted,
		}
		if err := tx.Replacements.Create(ctx, request); err != nil {
			return fmt.Errorf("create replacement request: %w", err)
		}

		// Once the successor exists the old card is retired for good:
		// REPLACEMENT_REQUESTED resolves to BLOCKED in the same unit of work.
		if before != model.CardStateBlocked {
			s.recordTransition(ctx, card, "REQUEST_REPLACEMENT", userID.String(), "USER", before, model.CardStateReplacementRequested, string(reason))
			card.State = model.CardStateBlocked
			if err := tx.Cards.Update(ctx, card); err != nil {
				return err
			}
			s.recordTransition(ctx, card, "BLOCK", userID.String(), "USER", model.CardStateReplacementRequested, model.CardStateBlocked, "replacement issued")
		}
		s.auditLog.Record(ctx, model.AuditEvent{
			EntityType: "replacement_request",
			EntityID:   request.ID.String(),
			EventType:  "REPLACEMENT_ISSUED",
			ActorID:    userID.String(),
			ActorRole:  "USER",
			Detail:     fmt.Sprintf(`{"old_card":"%s","new_card":"%s","carried_balance":"%s"}`, card.ID, newCard.ID, carried),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// MyCards returns the cards owned by a user.
func (s *registryService) MyCards(ctx context.Context, userID uuid.UUID) ([]model.PrepaidCard, error) {
	return s.repos.Cards.FindByUserID(ctx, userID)
}

// GetCard resolves one card, owner-only.
func (s *registryService) GetCard(ctx context.Context, cardID, userID uuid.UUID) (*model.PrepaidCard, error) {
	card, err := s.repos.Cards.FindByID(ctx, cardID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrCardNotFound
		}
		return nil, fmt.Errorf("find card: %w", err)
	}
	if card.UserID == nil || *card.UserID != userID {
		return nil, errors.ErrNotOwner
	}
	return card, nil
}

// CardTransactions returns a card's transaction history, owner-only.
func (s *registryService) CardTransactions(ctx context.Context, cardID, userID uuid.UUID, limit int) ([]model.CardTransaction, error) {
	if _, err := s.GetCard(ctx, cardID, userID); err != nil {
		return nil, err
	}
	return s.repos.Transactions.ListByCard(ctx, cardID, limit)
}

func (s *registryService) recordTransition(ctx context.Context, card *model.PrepaidCard, eventType, actorID, actorRole string, before, after model.CardState, detail string) {
	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType:  "prepaid_card",
		EntityID:    card.ID.String(),
		EventType:   eventType,
		ActorID:     actorID,
		ActorRole:   actorRole,
		BeforeState: string(before),
		AfterState:  string(after),
		Detail:      detail,
	})
}

func (s *registryService) recordRejected(ctx context.Context, card *model.PrepaidCard, eventType, actorID, actorRole, reason string) {
	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType:  "prepaid_card",
		EntityID:    card.ID.String(),
		EventType:   eventType + "_REJECTED",
		ActorID:     actorID,
		ActorRole:   actorRole,
		BeforeState: string(card.State),
		AfterState:  string(card.State),
		Detail:      reason,
	})
}
