package service

import (
	"context"
	"fmt"
	"log"
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

// dailyLimitWindow is the rolling window for the program daily limit.
const dailyLimitWindow = 24 * time.Hour

const reconcileBatchLimit = 100

// TapConfig carries the processor's tunable policy. All of it is
// configuration, not constants: offline risk ceiling, PIN lockout and the
// terminal-side deadline vary per deployment.
type TapConfig struct {
	PINMaxAttempts  int
	PINLockCooldown time.Duration
	TapTimeout      time.Duration
	OfflineCeiling  decimal.Decimal
}

// TapRequest is a terminal-initiated purchase.
type TapRequest struct {
	CardUID         string
	TerminalID      uuid.UUID
	MerchantRef     string
	Amount          decimal.Decimal
	Currency        string
	CryptoChallenge string
	CryptoResponse  string
	PIN             string
	IsOffline       bool
	IdempotencyKey  string
}

// TapResult is the business outcome of a tap. A decline is a successful
// HTTP response with Approved=false, never a transport error.
type TapResult struct {
	Approved         bool                    `json:"approved"`
	TransactionID    uuid.UUID               `json:"transaction_id"`
	Status           model.TransactionStatus `json:"status"`
	DeclineCode      model.DeclineCode       `json:"decline_code,omitempty"`
	DeclineReason    string                  `json:"decline_reason,omitempty"`
	AvailableBalance decimal.Decimal         `json:"available_balance"`
}

// ReconcileStats summarizes one reconciliation pass.
type ReconcileStats struct {
	Processed  int `json:"processed"`
	Reconciled int `json:"reconciled"`
	Reversed   int `json:"reversed"`
}

// TapService orchestrates challenge validation, PIN check, limit checks
// and the ledger debit for terminal-initiated purchases, plus offline
// reconciliation.
type TapService interface {
	ProcessTapToPay(ctx context.Context, req TapRequest) (*TapResult, error)
	Reconcile(ctx context.Context) (*ReconcileStats, error)
	StartReconciler(ctx context.Context, interval time.Duration)
}

type tapService struct {
	repos      *repository.Repos
	ledger     LedgerService
	challenges challenge.Validator
	auditLog   audit.Logger
	signingKey []byte
	cfg        TapConfig
}

// NewTapService creates a new tap-to-pay processor.
func NewTapService(repos *repository.Repos, ledger LedgerService, challenges challenge.Validator, auditLog audit.Logger, ledgerSigningKey string, cfg TapConfig) TapService {
	return &tapService{
		repos:      repos,
		ledger:     ledger,
		challenges: challenges,
		auditLog:   auditLog,
		signingKey: []byte(ledgerSigningKey),
		cfg:        cfg,
	}
}

// ProcessTapToPay runs the authorization pipeline. Any unexpected
// downstream failure fails closed: the transaction declines, it is never
// approved on uncertainty.
func (s *tapService) ProcessTapToPay(ctx context.Context, req TapRequest) (*TapResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TapTimeout)
	defer cancel()

	// Idempotent replay returns the recorded outcome without a second debit.
	if existing, err := s.repos.Transactions.FindByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		return resultFromTransaction(existing), nil
	} else if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	card, err := s.repos.Cards.FindByUIDHash(ctx, challenge.HashUID(req.CardUID))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrCardNotFound
		}
		return nil, fmt.Errorf("resolve card: %w", err)
	}

	txn := &model.CardTransaction{
		CardID:         card.ID,
		TerminalID:     req.TerminalID,
		MerchantRef:    req.MerchantRef,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Status:         model.TransactionStatusInitiated,
		IdempotencyKey: req.IdempotencyKey,
		IsOffline:      req.IsOffline,
	}
	if err := s.repos.Transactions.Create(ctx, txn); err != nil {
		// A concurrent duplicate hit the unique idempotency index first.
		if existing, lookupErr := s.repos.Transactions.FindByIdempotencyKey(ctx, req.IdempotencyKey); lookupErr == nil {
			return resultFromTransaction(existing), nil
		}
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	// Step 2: card must be ACTIVATED; anything else declines.
	if card.State != model.CardStateActivated {
		return s.decline(ctx, txn, card, stateDeclineCode(card.State), fmt.Sprintf("card state %s", card.State))
	}

	// Step 3: proof of possession. Failures here never touch ledger state.
	if err := s.challenges.Validate(ctx, req.CardUID, req.CryptoChallenge, req.CryptoResponse); err != nil {
		switch err {
		case errors.ErrChallengeExpired:
			return s.decline(ctx, txn, card, model.DeclineChallengeExpired, err.Error())
		case errors.ErrChallengeNotFound, errors.ErrChallengeAlreadyUsed, errors.ErrCryptoValidationFailed:
			return s.decline(ctx, txn, card, model.DeclineInvalidResponse, err.Error())
		default:
			// Challenge store unreachable: fail closed.
			return s.decline(ctx, txn, card, model.DeclineProcessingError, "challenge validation unavailable")
		}
	}

	// Step 4: PIN.
	if code, reason := s.checkPIN(ctx, card.ID, req.PIN); code != "" {
		return s.decline(ctx, txn, card, code, reason)
	}

	// Step 5: program limits.
	program, err := s.repos.Programs.FindByID(ctx, card.ProgramID)
	if err != nil {
		return s.decline(ctx, txn, card, model.DeclineProcessingError, "program lookup failed")
	}
	if req.Amount.GreaterThan(program.PerTransactionLimit) {
		return s.decline(ctx, txn, card, model.DeclineLimitExceeded, "per-transaction limit exceeded")
	}
	spent, err := s.repos.Transactions.SumApprovedSince(ctx, card.ID, time.Now().Add(-dailyLimitWindow))
	if err != nil {
		return s.decline(ctx, txn, card, model.DeclineProcessingError, "daily spend lookup failed")
	}
	if spent.Add(req.Amount).GreaterThan(program.DailyLimit) {
		return s.decline(ctx, txn, card, model.DeclineLimitExceeded, "daily limit exceeded")
	}

	if req.IsOffline {
		return s.acceptOffline(ctx, txn, card)
	}

	// Steps 6-7: hold, then commit.
	if err := s.ledger.PlaceHold(ctx, card.ID, req.Amount); err != nil {
		switch err {
		case errors.ErrInsufficientFunds:
			return s.decline(ctx, txn, card, model.DeclineInsufficientFunds, err.Error())
		case errors.ErrCardNotFound:
			return nil, err
		default:
			if ctx.Err() != nil {
				return s.decline(ctx, txn, card, model.DeclineTimeout, "authorization deadline exceeded")
			}
			return s.decline(ctx, txn, card, model.DeclineProcessingError, "hold failed")
		}
	}

	if ctx.Err() != nil {
		// Deadline hit after the hold: never leave a dangling hold.
		s.releaseHold(card.ID, req.Amount)
		return s.decline(ctx, txn, card, model.DeclineTimeout, "authorization deadline exceeded")
	}

	if err := s.ledger.Commit(ctx, card.ID, txn.ID, req.Amount); err != nil {
		s.releaseHold(card.ID, req.Amount)
		if ctx.Err() != nil {
			return s.decline(ctx, txn, card, model.DeclineTimeout, "authorization deadline exceeded")
		}
		return s.decline(ctx, txn, card, model.DeclineProcessingError, "commit failed")
	}

	balance, err := s.ledger.GetBalance(ctx, card.ID)
	if err != nil {
		balance = &Balance{}
	}
	txn.Status = model.TransactionStatusApproved
	txn.BalanceAfter = balance.Available
	if err := s.repos.Transactions.Update(ctx, txn); err != nil {
		// Funds moved; the approval stands even if the status write lagged.
		log.Printf("tap: approved txn %s status update failed: %v", txn.ID, err)
	}

	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType: "card_transaction",
		EntityID:   txn.ID.String(),
		EventType:  "TAP_APPROVED",
		ActorID:    req.TerminalID.String(),
		ActorRole:  "TERMINAL",
		Detail:     fmt.Sprintf(`{"card":"%s","amount":"%s","currency":"%s"}`, card.ID, req.Amount, req.Currency),
	})
	return resultFromTransaction(txn), nil
}

// checkPIN verifies the PIN and maintains the per-card failed-attempt
// counter and lockout under the card's row lock. It returns a decline code
// when the spend must not proceed.
func (s *tapService) checkPIN(ctx context.Context, cardID uuid.UUID, pin string) (model.DeclineCode, string) {
	var code model.DeclineCode
	var reason string
	err := withCardLock(ctx, s.repos, cardID, func(tx *repository.Repos, card *model.PrepaidCard) error {
		now := time.Now()
		if card.PINHash == "" {
			code, reason = model.DeclinePINNotSet, "pin not set"
			return nil
		}
		if card.PINLocked(now) {
			code, reason = model.DeclinePINLocked, "pin locked"
			return nil
		}
		if bcrypt.CompareHashAndPassword([]byte(card.PINHash), []byte(pin)) != nil {
			card.PINAttempts++
			if card.PINAttempts >= s.cfg.PINMaxAttempts {
				lockedUntil := now.Add(s.cfg.PINLockCooldown)
				card.PINLockedUntil = &lockedUntil
				card.PINAttempts = 0
			}
			code, reason = model.DeclinePINInvalid, "pin mismatch"
			return tx.Cards.Update(ctx, card)
		}
		if card.PINAttempts != 0 {
			card.PINAttempts = 0
			return tx.Cards.Update(ctx, card)
		}
		return nil
	})
	if err != nil {
		return model.DeclineProcessingError, "pin check failed"
	}
	return code, reason
}

// acceptOffline accepts a transaction against the offline risk budget and
// queues it for reconciliation. No ledger state is touched.
func (s *tapService) acceptOffline(ctx context.Context, txn *model.CardTransaction, card *model.PrepaidCard) (*TapResult, error) {
	if txn.Amount.GreaterThan(s.cfg.OfflineCeiling) {
		return s.decline(ctx, txn, card, model.DeclineOfflineCeilingExceeded, "offline risk ceiling exceeded")
	}
	txn.Status = model.TransactionStatusPendingReconciliation
	if err := s.repos.Transactions.Update(ctx, txn); err != nil {
		return s.decline(ctx, txn, card, model.DeclineProcessingError, "queue for reconciliation failed")
	}
	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType: "card_transaction",
		EntityID:   txn.ID.String(),
		EventType:  "TAP_OFFLINE_ACCEPTED",
		ActorID:    txn.TerminalID.String(),
		ActorRole:  "TERMINAL",
		Detail:     fmt.Sprintf(`{"card":"%s","amount":"%s"}`, card.ID, txn.Amount),
	})
	return resultFromTransaction(txn), nil
}

// Reconcile replays queued offline transactions against the live ledger.
func (s *tapService) Reconcile(ctx context.Context) (*ReconcileStats, error) {
	pending, err := s.repos.Transactions.ListPendingReconciliation(ctx, reconcileBatchLimit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	stats := &ReconcileStats{}
	for i := range pending {
		txn := &pending[i]
		stats.Processed++
		if s.reconcileOne(ctx, txn) {
			stats.Reconciled++
		} else {
			stats.Reversed++
		}
	}
	return stats, nil
}

// reconcileOne settles one offline transaction; returns true when it
// reconciled, false when it was reversed.
func (s *tapService) reconcileOne(ctx context.Context, txn *model.CardTransaction) bool {
	card, err := s.repos.Cards.FindByID(ctx, txn.CardID)
	if err != nil {
		s.reverse(ctx, txn, "card lookup failed")
		return false
	}
	if card.State != model.CardStateActivated {
		s.reverse(ctx, txn, fmt.Sprintf("card state %s", card.State))
		return false
	}

	// Replay the limit checks against the current window. The offline
	// acceptance checked them hours ago; the card may have spent online
	// since, or the pending amount may have aged out of the window.
	program, err := s.repos.Programs.FindByID(ctx, card.ProgramID)
	if err != nil {
		s.reverse(ctx, txn, "program lookup failed")
		return false
	}
	if txn.Amount.GreaterThan(program.PerTransactionLimit) {
		s.reverse(ctx, txn, "per-transaction limit exceeded")
		return false
	}
	since := time.Now().Add(-dailyLimitWindow)
	spent, err := s.repos.Transactions.SumApprovedSince(ctx, txn.CardID, since)
	if err != nil {
		s.reverse(ctx, txn, "daily spend lookup failed")
		return false
	}
	if txn.CreatedAt.After(since) {
		// The pending transaction itself is inside the window; it must
		// not count against its own limit check.
		spent = spent.Sub(txn.Amount)
	}
	if spent.Add(txn.Amount).GreaterThan(program.DailyLimit) {
		s.reverse(ctx, txn, "daily limit exceeded")
		return false
	}

	if err := s.ledger.PlaceHold(ctx, txn.CardID, txn.Amount); err != nil {
		s.reverse(ctx, txn, "insufficient live balance")
		return false
	}
	if err := s.ledger.Commit(ctx, txn.CardID, txn.ID, txn.Amount); err != nil {
		s.releaseHold(txn.CardID, txn.Amount)
		s.reverse(ctx, txn, "commit failed")
		return false
	}

	now := time.Now()
	balance, err := s.ledger.GetBalance(ctx, txn.CardID)
	if err != nil {
		balance = &Balance{}
	}
	txn.Status = model.TransactionStatusReconciled
	txn.ReconciledAt = &now
	txn.BalanceAfter = balance.Available
	if err := s.repos.Transactions.Update(ctx, txn); err != nil {
		log.Printf("reconcile: txn %s status update failed: %v", txn.ID, err)
	}
	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType: "card_transaction",
		EntityID:   txn.ID.String(),
		EventType:  "RECONCILED",
		ActorID:    "reconciler",
		ActorRole:  "SYSTEM",
	})
	return true
}

// reverse marks an offline transaction REVERSED and appends a
// zero-balance-effect REVERSAL entry as the auditable compensating record
// (offline acceptance never debited the ledger).
func (s *tapService) reverse(ctx context.Context, txn *model.CardTransaction, reason string) {
	now := time.Now()
	txn.Status = model.TransactionStatusReversed
	txn.DeclineReason = reason
	txn.ReconciledAt = &now
	if err := s.repos.Transactions.Update(ctx, txn); err != nil {
		log.Printf("reconcile: txn %s reverse update failed: %v", txn.ID, err)
		return
	}

	card, err := s.repos.Cards.FindByID(ctx, txn.CardID)
	if err == nil {
		entry := &model.LedgerEntry{
			CardID:        txn.CardID,
			TransactionID: &txn.ID,
			EntryType:     model.LedgerEntryReversal,
			Amount:        txn.Amount,
			BalanceBefore: card.Balance,
			BalanceAfter:  card.Balance,
		}
		entry.Signature = signLedgerEntry(s.signingKey, entry)
		if err := s.repos.Ledger.Append(ctx, entry); err != nil {
			log.Printf("reconcile: txn %s reversal entry failed: %v", txn.ID, err)
		}
	}

	s.auditLog.Record(ctx, model.AuditEvent{
		EntityType: "card_transaction",
		EntityID:   txn.ID.String(),
		EventType:  "REVERSED",
		ActorID:    "reconciler",
		ActorRole:  "SYSTEM",
		Detail:     reason,
	})
}

// StartReconciler runs reconciliation passes on an interval until ctx is
// cancelled.
func (s *tapService) StartReconciler(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if stats, err := s.Reconcile(ctx); err != nil {
					log.Printf("reconciler: pass failed: %v", err)
				} else if stats.Processed > 0 {
					log.Printf("reconciler: processed=%d reconciled=%d reversed=%d",
						stats.Processed, stats.Reconciled, stats.Reversed)
				}
			}
		}
	}()
}

// decline finalizes a transaction as DECLINED. The request context may
// already be past its deadline, so the write uses a fresh one; a declined
// transaction must still be recorded.
func (s *tapService) decline(ctx context.Context, txn *model.CardTransaction, card *model.PrepaidCard, code model.DeclineCode, reason string) (*TapResult, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	txn.Status = model.TransactionStatusDeclined
	txn.DeclineCode = code
	txn.DeclineReason = reason
	txn.BalanceAfter = card.Available()
	if err := s.repos.Transactions.Update(writeCtx, txn); err != nil {
		log.Printf("tap: declined txn %s update failed: %v", txn.ID, err)
	}
	s.auditLog.Record(writeCtx, model.AuditEvent{
		EntityType: "card_transaction",
		EntityID:   txn.ID.String(),
		EventType:  "TAP_DECLINED",
		ActorID:    txn.TerminalID.String(),
		ActorRole:  "TERMINAL",
		Detail:     fmt.Sprintf(`{"card":"%s","code":"%s","reason":"%s"}`, card.ID, code, reason),
	})
	return resultFromTransaction(txn), nil
}

// releaseHold returns a hold out-of-band; it must succeed even when the
// request context is already dead.
func (s *tapService) releaseHold(cardID uuid.UUID, amount decimal.Decimal) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.ledger.Release(ctx, cardID, amount); err != nil {
		log.Printf("tap: release hold on card %s failed: %v", cardID, err)
	}
}

// stateDeclineCode maps a non-spendable card state to its decline code.
func stateDeclineCode(state model.CardState) model.DeclineCode {
	switch state {
	case model.CardStateFrozen:
		return model.DeclineCardFrozen
	case model.CardStateBlocked, model.CardStateReplacementRequested:
		return model.DeclineCardBlocked
	default:
		return model.DeclineCardNotActivated
	}
}

// resultFromTransaction projects a stored transaction into the terminal
// response contract.
func resultFromTransaction(txn *model.CardTransaction) *TapResult {
	approved := false
	switch txn.Status {
	case model.TransactionStatusApproved,
		model.TransactionStatusPendingReconciliation,
		model.TransactionStatusReconciled:
		approved = true
	}
	return &TapResult{
		Approved:         approved,
		TransactionID:    txn.ID,
		Status:           txn.Status,
		DeclineCode:      txn.DeclineCode,
		DeclineReason:    txn.DeclineReason,
		AvailableBalance: txn.BalanceAfter,
	}
}
