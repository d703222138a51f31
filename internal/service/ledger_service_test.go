package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfcpay/internal/errors"
	"nfcpay/internal/model"
	"nfcpay/internal/repository"
)

const testSigningKey = "test-ledger-signing-key"

func seedProgram(t *testing.T, repos *repository.Repos) *model.CardProgram {
	t.Helper()
	program := &model.CardProgram{
		Code:                "TEST-" + uuid.NewString()[:8],
		Name:                "Test Program",
		Category:            "transit",
		IsReloadable:        true,
		IssuancePrice:       decimal.NewFromInt(5),
		InitialBalance:      decimal.NewFromInt(25),
		PerTransactionLimit: decimal.NewFromInt(100),
		DailyLimit:          decimal.NewFromInt(300),
		Status:              model.ProgramStatusActive,
	}
	require.NoError(t, repos.Programs.Create(context.Background(), program))
	return program
}

func seedCard(t *testing.T, repos *repository.Repos, program *model.CardProgram, state model.CardState, balance int64, userID *uuid.UUID) *model.PrepaidCard {
	t.Helper()
	batch := &model.CardBatch{
		ProgramID:     program.ID,
		BatchNo:       "B-" + uuid.NewString()[:8],
		Manufacturer:  "CardWorks",
		SerialPrefix:  "6037",
		SequenceStart: 1,
		SequenceEnd:   100,
		Status:        model.BatchStatusActivatable,
	}
	require.NoError(t, repos.Batches.Create(context.Background(), batch))
	card := &model.PrepaidCard{
		ProgramID:      program.ID,
		BatchID:        batch.ID,
		SerialNumber:   SerialNumber("6037", 1) + uuid.NewString()[:6],
		SequenceNumber: 1,
		ActivationCode: uuid.NewString(),
		Balance:        decimal.NewFromInt(balance),
		Held:           decimal.Zero,
		State:          state,
		UserID:         userID,
	}
	require.NoError(t, repos.Cards.Create(context.Background(), card))
	return card
}

func newLedgerFixture(t *testing.T) (*repository.Repos, LedgerService, *fakeAuditRepo) {
	t.Helper()
	repos := newTestRepos()
	auditRepo := repos.Audit.(*fakeAuditRepo)
	ledger := NewLedgerService(repos, &syncAuditLogger{repo: auditRepo}, testSigningKey)
	return repos, ledger, auditRepo
}

func TestPlaceHoldAndCommit(t *testing.T) {
	repos, ledger, _ := newLedgerFixture(t)
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 100, nil)
	ctx := context.Background()

	require.NoError(t, ledger.PlaceHold(ctx, card.ID, decimal.NewFromInt(30)))

	balance, err := ledger.GetBalance(ctx, card.ID)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(100)))
	assert.True(t, balance.Held.Equal(decimal.NewFromInt(30)))
	assert.True(t, balance.Available.Equal(decimal.NewFromInt(70)))

	txID := uuid.New()
	require.NoError(t, ledger.Commit(ctx, card.ID, txID, decimal.NewFromInt(30)))

	balance, err = ledger.GetBalance(ctx, card.ID)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(70)))
	assert.True(t, balance.Held.IsZero())

	entries, err := ledger.Entries(ctx, card.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LedgerEntryDebit, entries[0].EntryType)
	assert.Equal(t, txID, *entries[0].TransactionID)
	assert.NotEmpty(t, entries[0].Signature)
	assert.True(t, entries[0].BalanceBefore.Equal(decimal.NewFromInt(100)))
	assert.True(t, entries[0].BalanceAfter.Equal(decimal.NewFromInt(70)))
}

func TestPlaceHoldInsufficientFunds(t *testing.T) {
	repos, ledger, _ := newLedgerFixture(t)
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 20, nil)

	err := ledger.PlaceHold(context.Background(), card.ID, decimal.NewFromInt(21))
	assert.ErrorIs(t, err, errors.ErrInsufficientFunds)

	balance, err := ledger.GetBalance(context.Background(), card.ID)
	require.NoError(t, err)
	assert.True(t, balance.Held.IsZero())
}

func TestPlaceHoldRejectsNonPositiveAmount(t *testing.T) {
	repos, ledger, _ := newLedgerFixture(t)
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 20, nil)

	assert.ErrorIs(t, ledger.PlaceHold(context.Background(), card.ID, decimal.Zero), errors.ErrInvalidAmount)
	assert.ErrorIs(t, ledger.PlaceHold(context.Background(), card.ID, decimal.NewFromInt(-5)), errors.ErrInvalidAmount)
}

func TestReleaseVoidsHold(t *testing.T) {
	repos, ledger, _ := newLedgerFixture(t)
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 50, nil)
	ctx := context.Background()

	require.NoError(t, ledger.PlaceHold(ctx, card.ID, decimal.NewFromInt(50)))
	require.NoError(t, ledger.Release(ctx, card.ID, decimal.NewFromInt(50)))

	balance, err := ledger.GetBalance(ctx, card.ID)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(50)))
	assert.True(t, balance.Held.IsZero())

	entries, err := ledger.Entries(ctx, card.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries, "release of an uncommitted hold moves no funds")
}

func TestConcurrentHoldsNeverOversell(t *testing.T) {
	repos, ledger, _ := newLedgerFixture(t)
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 60, nil)
	ctx := context.Background()

	const attempts = 100
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ledger.PlaceHold(ctx, card.ID, decimal.NewFromInt(1))
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, errors.ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 60, succeeded)

	balance, err := ledger.GetBalance(ctx, card.ID)
	require.NoError(t, err)
	assert.True(t, balance.Held.Equal(decimal.NewFromInt(60)))
	assert.True(t, balance.Available.IsZero())
}

func TestReloadOwnerAndProgramGates(t *testing.T) {
	repos, ledger, _ := newLedgerFixture(t)
	owner := uuid.New()
	stranger := uuid.New()
	ctx := context.Background()

	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 10, &owner)

	_, err := ledger.Reload(ctx, card.ID, stranger, decimal.NewFromInt(5), "wallet-1")
	assert.ErrorIs(t, err, errors.ErrNotOwner)

	balance, err := ledger.Reload(ctx, card.ID, owner, decimal.NewFromInt(5), "wallet-1")
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(15)))

	entries, err := ledger.Entries(ctx, card.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LedgerEntryCredit, entries[0].EntryType)
}

func TestReloadNonReloadableProgram(t *testing.T) {
	repos, ledger, _ := newLedgerFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	program := seedProgram(t, repos)
	program.IsReloadable = false
	require.NoError(t, repos.Programs.Update(ctx, program))
	card := seedCard(t, repos, program, model.CardStateActivated, 10, &owner)

	_, err := ledger.Reload(ctx, card.ID, owner, decimal.NewFromInt(5), "wallet-1")
	assert.ErrorIs(t, err, errors.ErrNotReloadable)
}

func TestReloadRequiresActivatedState(t *testing.T) {
	repos, ledger, _ := newLedgerFixture(t)
	owner := uuid.New()

	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateFrozen, 10, &owner)

	_, err := ledger.Reload(context.Background(), card.ID, owner, decimal.NewFromInt(5), "wallet-1")
	assert.ErrorIs(t, err, errors.ErrInvalidState)
}

func TestLedgerEntrySignatureIsDeterministic(t *testing.T) {
	txID := uuid.New()
	entry := &model.LedgerEntry{
		CardID:        uuid.New(),
		TransactionID: &txID,
		EntryType:     model.LedgerEntryDebit,
		Amount:        decimal.NewFromInt(7),
		BalanceBefore: decimal.NewFromInt(20),
		BalanceAfter:  decimal.NewFromInt(13),
	}
	first := signLedgerEntry([]byte(testSigningKey), entry)
	second := signLedgerEntry([]byte(testSigningKey), entry)
	assert.Equal(t, first, second)

	entry.Amount = decimal.NewFromInt(8)
	assert.NotEqual(t, first, signLedgerEntry([]byte(testSigningKey), entry))
	assert.NotEqual(t, first, signLedgerEntry([]byte("other-key"), entry))
}

func TestCommitMoreThanHeldViolatesInvariant(t *testing.T) {
	repos, ledger, _ := newLedgerFixture(t)
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 100, nil)
	ctx := context.Background()

	require.NoError(t, ledger.PlaceHold(ctx, card.ID, decimal.NewFromInt(10)))
	err := ledger.Commit(ctx, card.ID, uuid.New(), decimal.NewFromInt(11))
	assert.ErrorIs(t, err, errors.ErrLedgerInvariant)
}
