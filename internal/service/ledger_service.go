package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
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

// lockRetries bounds retry attempts on per-card lock contention before the
// failure surfaces to the caller.
const lockRetries = 3

// Balance is the three-part view of a card's funds.
type Balance struct {
	Balance   decimal.Decimal `json:"balance"`
	Held      decimal.Decimal `json:"held"`
	Available decimal.Decimal `json:"available"`
}

// LedgerService is the authoritative balance engine. Every mutation runs
// inside a transaction holding the card's row lock, keeps the invariant
// balance >= 0, held >= 0, held <= balance, and appends a signed ledger
// entry for each balance movement.
type LedgerService interface {
	GetBalance(ctx context.Context, cardID uuid.UUID) (*Balance, error)
	PlaceHold(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal) error
	Commit(ctx context.Context, cardID, transactionID uuid.UUID, amount decimal.Decimal) error
	Release(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal) error
	Reload(ctx context.Context, cardID, userID uuid.UUID, amount decimal.Decimal, sourceWalletID string) (*Balance, error)
	Entries(ctx context.Context, cardID uuid.UUID, limit int) ([]model.LedgerEntry, error)
}

type ledgerService struct {
	repos      *repository.Repos
	auditLog   audit.Logger
	signingKey []byte
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(repos *repository.Repos, auditLog audit.Logger, signingKey string) LedgerService {
	return &ledgerService{
		repos:      repos,
		auditLog:   auditLog,
		signingKey: []byte(signingKey),
	}
}

// GetBalance returns {balance, held, available} for a card.
func (s *ledgerService) GetBalance(ctx context.Context, cardID uuid.UUID) (*Balance, error) {
	card, err := s.repos.Cards.FindByID(ctx, cardID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrCardNotFound
		}
		return nil, fmt.Errorf("find card: %w", err)
	}
	return &Balance{
		Balance:   card.Balance,
		Held:      card.Held,
		Available: card.Available(),
	}, nil
}

// PlaceHold reserves amount against the card's available balance. The
// check and increment happen under the card's row lock; this is the
// critical section that stops two simultaneous taps from both passing a
// stale balance check.
func (s *ledgerService) PlaceHold(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.ErrInvalidAmount
	}
	return withCardLock(ctx, s.repos, cardID, func(tx *repository.Repos, card *model.PrepaidCard) error {
		if card.Available().LessThan(amount) {
			return errors.ErrInsufficientFunds
		}
		card.Held = card.Held.Add(amount)
		if err := checkBalanceInvariant(card); err != nil {
			return err
		}
		return tx.Cards.Update(ctx, card)
	})
}

// Commit settles a held amount: balance and held both decrease and a
// signed DEBIT entry is appended.
func (s *ledgerService) Commit(ctx context.Context, cardID, transactionID uuid.UUID, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.ErrInvalidAmount
	}
	err := withCardLock(ctx, s.repos, cardID, func(tx *repository.Repos, card *model.PrepaidCard) error {
		if card.Held.LessThan(amount) {
			return errors.ErrLedgerInvariant
		}
		before := card.Balance
		card.Balance = card.Balance.Sub(amount)
		card.Held = card.Held.Sub(amount)
		if err := checkBalanceInvariant(card); err != nil {
			return err
		}
		entry := &model.LedgerEntry{
			CardID:        card.ID,
			TransactionID: &transactionID,
			EntryType:     model.LedgerEntryDebit,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  card.Balance,
		}
		entry.Signature = signLedgerEntry(s.signingKey, entry)
		if err := tx.Ledger.Append(ctx, entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		return tx.Cards.Update(ctx, card)
	})
	if err != nil {
		return err
	}
	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType: "prepaid_card",
		EntityID:   cardID.String(),
		EventType:  "LEDGER_COMMIT",
		ActorID:    transactionID.String(),
		ActorRole:  "SYSTEM",
		Detail:     fmt.Sprintf(`{"amount":"%s"}`, amount.String()),
	})
	return nil
}

// Release voids a hold without settling it.
func (s *ledgerService) Release(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.ErrInvalidAmount
	}
	return withCardLock(ctx, s.repos, cardID, func(tx *repository.Repos, card *model.PrepaidCard) error {
		if card.Held.LessThan(amount) {
			return errors.ErrLedgerInvariant
		}
		card.Held = card.Held.Sub(amount)
		if err := checkBalanceInvariant(card); err != nil {
			return err
		}
		return tx.Cards.Update(ctx, card)
	})
}

// Reload credits the card's balance. Owner-only, and only for cards whose
// program is reloadable.
func (s *ledgerService) Reload(ctx context.Context, cardID, userID uuid.UUID, amount decimal.Decimal, sourceWalletID string) (*Balance, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}
	var result Balance
	err := withCardLock(ctx, s.repos, cardID, func(tx *repository.Repos, card *model.PrepaidCard) error {
		if card.UserID == nil || *card.UserID != userID {
			return errors.ErrNotOwner
		}
		if card.State != model.CardStateActivated {
			return errors.ErrInvalidState
		}
		program, err := tx.Programs.FindByID(ctx, card.ProgramID)
		if err != nil {
			return fmt.Errorf("find program: %w", err)
		}
		if !program.IsReloadable {
			return errors.ErrNotReloadable
		}
		before := card.Balance
		card.Balance = card.Balance.Add(amount)
		if err := checkBalanceInvariant(card); err != nil {
			return err
		}
		entry := &model.LedgerEntry{
			CardID:        card.ID,
			EntryType:     model.LedgerEntryCredit,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  card.Balance,
		}
		entry.Signature = signLedgerEntry(s.signingKey, entry)
		if err := tx.Ledger.Append(ctx, entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		if err := tx.Cards.Update(ctx, card); err != nil {
			return err
		}
		result = Balance{Balance: card.Balance, Held: card.Held, Available: card.Available()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType: "prepaid_card",
		EntityID:   cardID.String(),
		EventType:  "RELOAD",
		ActorID:    userID.String(),
		ActorRole:  "USER",
		Detail:     fmt.Sprintf(`{"amount":"%s","source_wallet":"%s"}`, amount.String(), sourceWalletID),
	})
	return &result, nil
}

// Entries returns a card's most recent ledger entries.
func (s *ledgerService) Entries(ctx context.Context, cardID uuid.UUID, limit int) ([]model.LedgerEntry, error) {
	return s.repos.Ledger.ListByCard(ctx, cardID, limit)
}

// withCardLock runs fn inside a transaction holding the card's row lock,
// retrying bounded times on contention. Domain errors are never retried.
// Both balance mutation and state transitions serialize through here.
func withCardLock(ctx context.Context, repos *repository.Repos, cardID uuid.UUID, fn func(tx *repository.Repos, card *model.PrepaidCard) error) error {
	var lastErr error
	for attempt := 0; attempt < lockRetries; attempt++ {
		err := repos.WithTransaction(ctx, func(ctx context.Context, tx *repository.Repos) error {
			card, err := tx.Cards.FindByIDForUpdate(ctx, cardID)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return errors.ErrCardNotFound
				}
				return fmt.Errorf("lock card: %w", err)
			}
			return fn(tx, card)
		})
		if err == nil {
			return nil
		}
		if isDomainError(err) {
			return err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return lastErr
}

// isDomainError reports whether err is an expected business outcome that
// retrying cannot change.
func isDomainError(err error) bool {
	for _, domain := range []error{
		errors.ErrCardNotFound,
		errors.ErrInsufficientFunds,
		errors.ErrNotReloadable,
		errors.ErrInvalidAmount,
		errors.ErrInvalidState,
		errors.ErrNotOwner,
		errors.ErrLedgerInvariant,
		errors.ErrAlreadyBound,
		errors.ErrInvalidPIN,
		errors.ErrInvalidReason,
	} {
		if err == domain {
			return true
		}
	}
	return false
}

// checkBalanceInvariant rejects any card mutation that would break
// balance >= 0, held >= 0, held <= balance.
func checkBalanceInvariant(card *model.PrepaidCard) error {
	if card.Balance.IsNegative() || card.Held.IsNegative() || card.Held.GreaterThan(card.Balance) {
		return errors.ErrLedgerInvariant
	}
	return nil
}

// signLedgerEntry computes the entry's HMAC-SHA-256 signature.
func signLedgerEntry(key []byte, e *model.LedgerEntry) string {
	txID := ""
	if e.TransactionID != nil {
		txID = e.TransactionID.String()
	}
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		e.CardID, txID, e.EntryType, e.Amount, e.BalanceBefore, e.BalanceAfter)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
