package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"nfcpay/internal/challenge"
	"nfcpay/internal/errors"
	"nfcpay/internal/model"
	"nfcpay/internal/repository"
)

func newRegistryFixture(t *testing.T) (*repository.Repos, RegistryService, *challenge.Service, *fakeAuditRepo) {
	t.Helper()
	repos := newTestRepos()
	auditRepo := repos.Audit.(*fakeAuditRepo)
	challenges := challenge.NewService(challenge.NewMemoryStore(), "test-master-key", 30*time.Second)
	registry := NewRegistryService(repos, challenges, &syncAuditLogger{repo: auditRepo}, testSigningKey)
	return repos, registry, challenges, auditRepo
}

func issueAndAnswer(t *testing.T, challenges *challenge.Service, cardUID string) (string, string) {
	t.Helper()
	issued, err := challenges.Issue(context.Background(), cardUID)
	require.NoError(t, err)
	response, err := challenges.ComputeResponse(cardUID, issued)
	require.NoError(t, err)
	return issued, response
}

func TestActivateHappyPath(t *testing.T) {
	repos, registry, challenges, _ := newRegistryFixture(t)
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateIssued, 25, nil)
	userID := uuid.New()
	cardUID := "04A1B2C3D4E5F6"

	issued, response := issueAndAnswer(t, challenges, cardUID)
	activated, err := registry.Activate(context.Background(), cardUID, card.ActivationCode, issued, response, userID)
	require.NoError(t, err)

	assert.Equal(t, model.CardStateActivated, activated.State)
	assert.Equal(t, userID, *activated.UserID)
	require.NotNil(t, activated.UIDHash)
	assert.Equal(t, challenge.HashUID(cardUID), *activated.UIDHash)
	assert.NotNil(t, activated.ActivatedAt)
}

func TestActivateWrongResponse(t *testing.T) {
	repos, registry, challenges, _ := newRegistryFixture(t)
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateIssued, 25, nil)
	cardUID := "04A1B2C3D4E5F6"

	issued, _ := issueAndAnswer(t, challenges, cardUID)
	_, err := registry.Activate(context.Background(), cardUID, card.ActivationCode,
		issued, "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef", uuid.New())
	assert.ErrorIs(t, err, errors.ErrCryptoValidationFailed)

	stored, err := repos.Cards.FindByID(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CardStateIssued, stored.State)
}

func TestActivateUnknownActivationCode(t *testing.T) {
	_, registry, challenges, _ := newRegistryFixture(t)
	cardUID := "04A1B2C3D4E5F6"
	issued, response := issueAndAnswer(t, challenges, cardUID)

	_, err := registry.Activate(context.Background(), cardUID, "no-such-code", issued, response, uuid.New())
	assert.ErrorIs(t, err, errors.ErrCardNotFound)
}

func TestActivateAlreadyBoundUID(t *testing.T) {
	repos, registry, challenges, _ := newRegistryFixture(t)
	program := seedProgram(t, repos)
	cardUID := "04A1B2C3D4E5F6"

	first := seedCard(t, repos, program, model.CardStateIssued, 25, nil)
	issued, response := issueAndAnswer(t, challenges, cardUID)
	_, err := registry.Activate(context.Background(), cardUID, first.ActivationCode, issued, response, uuid.New())
	require.NoError(t, err)

	second := seedCard(t, repos, program, model.CardStateIssued, 25, nil)
	issued, response = issueAndAnswer(t, challenges, cardUID)
	_, err = registry.Activate(context.Background(), cardUID, second.ActivationCode, issued, response, uuid.New())
	assert.ErrorIs(t, err, errors.ErrAlreadyBound)
}

func TestActivateRequiresActivatableBatch(t *testing.T) {
	repos, registry, challenges, _ := newRegistryFixture(t)
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateIssued, 25, nil)

	batch, err := repos.Batches.FindByID(context.Background(), card.BatchID)
	require.NoError(t, err)
	batch.Status = model.BatchStatusShipped
	require.NoError(t, repos.Batches.Update(context.Background(), batch))

	cardUID := "04A1B2C3D4E5F6"
	issued, response := issueAndAnswer(t, challenges, cardUID)
	_, err = registry.Activate(context.Background(), cardUID, card.ActivationCode, issued, response, uuid.New())
	assert.ErrorIs(t, err, errors.ErrInvalidState)
}

func TestSetPIN(t *testing.T) {
	repos, registry, _, _ := newRegistryFixture(t)
	owner := uuid.New()
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 25, &owner)
	ctx := context.Background()

	assert.ErrorIs(t, registry.SetPIN(ctx, card.ID, owner, "123"), errors.ErrInvalidPIN)
	assert.ErrorIs(t, registry.SetPIN(ctx, card.ID, owner, "123456789"), errors.ErrInvalidPIN)
	assert.ErrorIs(t, registry.SetPIN(ctx, card.ID, uuid.New(), "1234"), errors.ErrNotOwner)

	require.NoError(t, registry.SetPIN(ctx, card.ID, owner, "4711"))
	stored, err := repos.Cards.FindByID(ctx, card.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PINHash), []byte("4711")))
	assert.Zero(t, stored.PINAttempts)
	assert.Nil(t, stored.PINLockedUntil)
}

func TestFreezeUnfreezeCycle(t *testing.T) {
	repos, registry, _, _ := newRegistryFixture(t)
	owner := uuid.New()
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 25, &owner)
	ctx := context.Background()

	require.NoError(t, registry.Freeze(ctx, card.ID, owner, "misplaced"))
	stored, _ := repos.Cards.FindByID(ctx, card.ID)
	assert.Equal(t, model.CardStateFrozen, stored.State)

	require.NoError(t, registry.Unfreeze(ctx, card.ID, owner))
	stored, _ = repos.Cards.FindByID(ctx, card.ID)
	assert.Equal(t, model.CardStateActivated, stored.State)
}

func TestInvalidTransitionsRejectedAndAudited(t *testing.T) {
	repos, registry, _, auditRepo := newRegistryFixture(t)
	owner := uuid.New()
	program := seedProgram(t, repos)
	ctx := context.Background()

	issued := seedCard(t, repos, program, model.CardStateIssued, 25, &owner)
	assert.ErrorIs(t, registry.Freeze(ctx, issued.ID, owner, ""), errors.ErrInvalidState)

	blocked := seedCard(t, repos, program, model.CardStateBlocked, 0, &owner)
	assert.ErrorIs(t, registry.Unfreeze(ctx, blocked.ID, owner), errors.ErrInvalidState)
	assert.ErrorIs(t, registry.Block(ctx, blocked.ID, owner, "USER", "again"), errors.ErrInvalidState)

	rejected, err := auditRepo.List(ctx, "prepaid_card", "", 100)
	require.NoError(t, err)
	var sawRejection bool
	for _, event := range rejected {
		if event.EventType == "FREEZE_REJECTED" || event.EventType == "UNFREEZE_REJECTED" || event.EventType == "BLOCK_REJECTED" {
			sawRejection = true
		}
	}
	assert.True(t, sawRejection, "rejected transitions must leave an audit record")
}

func TestBlockByAdminSkipsOwnerCheck(t *testing.T) {
	repos, registry, _, _ := newRegistryFixture(t)
	owner := uuid.New()
	admin := uuid.New()
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 25, &owner)
	ctx := context.Background()

	require.NoError(t, registry.Block(ctx, card.ID, admin, "ADMIN", "fraud report"))
	stored, _ := repos.Cards.FindByID(ctx, card.ID)
	assert.Equal(t, model.CardStateBlocked, stored.State)
}

func TestRequestReplacementCarriesBalance(t *testing.T) {
	repos, registry, _, _ := newRegistryFixture(t)
	owner := uuid.New()
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 40, &owner)
	ctx := context.Background()

	// An outstanding hold is released, not carried.
	card.Held = decimal.NewFromInt(10)
	require.NoError(t, repos.Cards.Update(ctx, card))

	request, err := registry.RequestReplacement(ctx, card.ID, owner, model.ReplacementReasonLost, "1 Main St")
	require.NoError(t, err)
	assert.Equal(t, model.ReplacementStatusCompleted, request.Status)
	require.NotNil(t, request.NewCardID)

	oldCard, err := repos.Cards.FindByID(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CardStateBlocked, oldCard.State)
	assert.True(t, oldCard.Balance.IsZero())
	assert.True(t, oldCard.Held.IsZero())

	newCard, err := repos.Cards.FindByID(ctx, *request.NewCardID)
	require.NoError(t, err)
	assert.Equal(t, model.CardStateIssued, newCard.State)
	assert.True(t, newCard.Balance.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, owner, *newCard.UserID)
	assert.Equal(t, card.SerialNumber+"R", newCard.SerialNumber)

	outEntries, err := repos.Ledger.ListByCard(ctx, card.ID, 10)
	require.NoError(t, err)
	require.Len(t, outEntries, 1)
	assert.Equal(t, model.LedgerEntryReplacementOut, outEntries[0].EntryType)

	inEntries, err := repos.Ledger.ListByCard(ctx, *request.NewCardID, 10)
	require.NoError(t, err)
	require.Len(t, inEntries, 1)
	assert.Equal(t, model.LedgerEntryReplacementIn, inEntries[0].EntryType)
	assert.True(t, inEntries[0].Amount.Equal(decimal.NewFromInt(40)))
}

func TestRequestReplacementWalksBothLifecycleEdges(t *testing.T) {
	repos, registry, _, auditRepo := newRegistryFixture(t)
	owner := uuid.New()
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 40, &owner)
	ctx := context.Background()

	_, err := registry.RequestReplacement(ctx, card.ID, owner, model.ReplacementReasonDamaged, "1 Main St")
	require.NoError(t, err)

	oldCard, err := repos.Cards.FindByID(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CardStateBlocked, oldCard.State)

	// The old card retires through REPLACEMENT_REQUESTED, not in one jump;
	// the trail records both edges.
	events, err := auditRepo.List(ctx, "prepaid_card", card.ID.String(), 0)
	require.NoError(t, err)
	var sawRequest, sawBlock bool
	for _, event := range events {
		switch event.EventType {
		case "REQUEST_REPLACEMENT":
			sawRequest = true
			assert.Equal(t, string(model.CardStateActivated), event.BeforeState)
			assert.Equal(t, string(model.CardStateReplacementRequested), event.AfterState)
		case "BLOCK":
			sawBlock = true
			assert.Equal(t, string(model.CardStateReplacementRequested), event.BeforeState)
			assert.Equal(t, string(model.CardStateBlocked), event.AfterState)
		}
	}
	assert.True(t, sawRequest)
	assert.True(t, sawBlock)
}

func TestRequestReplacementBlockedCardReasonGate(t *testing.T) {
	repos, registry, _, _ := newRegistryFixture(t)
	owner := uuid.New()
	program := seedProgram(t, repos)
	ctx := context.Background()

	blocked := seedCard(t, repos, program, model.CardStateBlocked, 15, &owner)
	_, err := registry.RequestReplacement(ctx, blocked.ID, owner, model.ReplacementReasonDamaged, "1 Main St")
	assert.ErrorIs(t, err, errors.ErrInvalidState)

	request, err := registry.RequestReplacement(ctx, blocked.ID, owner, model.ReplacementReasonStolen, "1 Main St")
	require.NoError(t, err)
	assert.NotNil(t, request.NewCardID)
}

func TestRequestReplacementInvalidReason(t *testing.T) {
	repos, registry, _, _ := newRegistryFixture(t)
	owner := uuid.New()
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 15, &owner)

	_, err := registry.RequestReplacement(context.Background(), card.ID, owner, "melted", "1 Main St")
	assert.ErrorIs(t, err, errors.ErrInvalidReason)
}

func TestGetCardOwnerOnly(t *testing.T) {
	repos, registry, _, _ := newRegistryFixture(t)
	owner := uuid.New()
	program := seedProgram(t, repos)
	card := seedCard(t, repos, program, model.CardStateActivated, 15, &owner)
	ctx := context.Background()

	got, err := registry.GetCard(ctx, card.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, card.ID, got.ID)

	_, err = registry.GetCard(ctx, card.ID, uuid.New())
	assert.ErrorIs(t, err, errors.ErrNotOwner)

	_, err = registry.GetCard(ctx, uuid.New(), owner)
	assert.ErrorIs(t, err, errors.ErrCardNotFound)
}
