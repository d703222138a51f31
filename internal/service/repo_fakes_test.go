package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"nfcpay/internal/model"
	"nfcpay/internal/repository"
)

// In-memory repository fakes. The Repos bundle built by newTestRepos has
// no database handle, so WithTransaction serializes callbacks through the
// bundle mutex; that gives the services the same exclusion guarantees the
// row-locked paths rely on.

func newTestRepos() *repository.Repos {
	return &repository.Repos{
		Programs:     &fakeProgramRepo{byID: map[uuid.UUID]*model.CardProgram{}},
		Batches:      &fakeBatchRepo{byID: map[uuid.UUID]*model.CardBatch{}},
		Cards:        &fakeCardRepo{byID: map[uuid.UUID]*model.PrepaidCard{}},
		Vendors:      &fakeVendorRepo{byID: map[uuid.UUID]*model.Vendor{}},
		Transactions: &fakeTransactionRepo{byID: map[uuid.UUID]*model.CardTransaction{}},
		Ledger:       &fakeLedgerRepo{},
		Replacements: &fakeReplacementRepo{byID: map[uuid.UUID]*model.ReplacementRequest{}},
		Terminals:    &fakeTerminalRepo{byCode: map[string]*model.Terminal{}},
		Audit:        &fakeAuditRepo{},
	}
}

type fakeCardRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.PrepaidCard
}

func (r *fakeCardRepo) Create(ctx context.Context, card *model.PrepaidCard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	cp := *card
	r.byID[card.ID] = &cp
	return nil
}

func (r *fakeCardRepo) CreateInBatches(ctx context.Context, cards []model.PrepaidCard) error {
	for i := range cards {
		if err := r.Create(ctx, &cards[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeCardRepo) Update(ctx context.Context, card *model.PrepaidCard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[card.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *card
	r.byID[card.ID] = &cp
	return nil
}

func (r *fakeCardRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.PrepaidCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *card
	return &cp, nil
}

func (r *fakeCardRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PrepaidCard, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeCardRepo) FindByUIDHash(ctx context.Context, uidHash string) (*model.PrepaidCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, card := range r.byID {
		if card.UIDHash != nil && *card.UIDHash == uidHash {
			cp := *card
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeCardRepo) FindByActivationCode(ctx context.Context, code string) (*model.PrepaidCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, card := range r.byID {
		if card.ActivationCode == code {
			cp := *card
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeCardRepo) FindByUserID(ctx context.Context, userID uuid.UUID) ([]model.PrepaidCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.PrepaidCard
	for _, card := range r.byID {
		if card.UserID != nil && *card.UserID == userID {
			out = append(out, *card)
		}
	}
	return out, nil
}

func (r *fakeCardRepo) AssignVendorToRange(ctx context.Context, batchID, vendorID uuid.UUID, seqStart, seqEnd int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, card := range r.byID {
		if card.BatchID == batchID && card.VendorID == nil &&
			card.SequenceNumber >= seqStart && card.SequenceNumber < seqEnd {
			v := vendorID
			card.VendorID = &v
		}
	}
	return nil
}

func (r *fakeCardRepo) List(ctx context.Context, limit, offset int) ([]model.PrepaidCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.PrepaidCard
	for _, card := range r.byID {
		out = append(out, *card)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeCardRepo) CountByState(ctx context.Context) ([]repository.CardStateCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[model.CardState]int64{}
	for _, card := range r.byID {
		counts[card.State]++
	}
	var out []repository.CardStateCount
	for state, n := range counts {
		out = append(out, repository.CardStateCount{State: state, Count: n})
	}
	return out, nil
}

func (r *fakeCardRepo) TotalBalance(ctx context.Context) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, card := range r.byID {
		total = total.Add(card.Balance)
	}
	return total, nil
}

type fakeProgramRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.CardProgram
}

func (r *fakeProgramRepo) Create(ctx context.Context, program *model.CardProgram) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if program.ID == uuid.Nil {
		program.ID = uuid.New()
	}
	cp := *program
	r.byID[program.ID] = &cp
	return nil
}

func (r *fakeProgramRepo) Update(ctx context.Context, program *model.CardProgram) error {
	return r.Create(ctx, program)
}

func (r *fakeProgramRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CardProgram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	program, ok := r.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *program
	return &cp, nil
}

func (r *fakeProgramRepo) FindByCode(ctx context.Context, code string) (*model.CardProgram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, program := range r.byID {
		if program.Code == code {
			cp := *program
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeProgramRepo) List(ctx context.Context) ([]model.CardProgram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CardProgram
	for _, program := range r.byID {
		out = append(out, *program)
	}
	return out, nil
}

type fakeBatchRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.CardBatch
}

func (r *fakeBatchRepo) Create(ctx context.Context, batch *model.CardBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	cp := *batch
	r.byID[batch.ID] = &cp
	return nil
}

func (r *fakeBatchRepo) Update(ctx context.Context, batch *model.CardBatch) error {
	return r.Create(ctx, batch)
}

func (r *fakeBatchRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CardBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *batch
	return &cp, nil
}

func (r *fakeBatchRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.CardBatch, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeBatchRepo) List(ctx context.Context) ([]model.CardBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CardBatch
	for _, batch := range r.byID {
		out = append(out, *batch)
	}
	return out, nil
}

func (r *fakeBatchRepo) ListByProgram(ctx context.Context, programID uuid.UUID) ([]model.CardBatch, error) {
	all, _ := r.List(ctx)
	var out []model.CardBatch
	for _, batch := range all {
		if batch.ProgramID == programID {
			out = append(out, batch)
		}
	}
	return out, nil
}

type fakeVendorRepo struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]*model.Vendor
	assignments []model.VendorInventoryAssignment
	sales       []model.VendorSale
}

func (r *fakeVendorRepo) Create(ctx context.Context, vendor *model.Vendor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if vendor.ID == uuid.Nil {
		vendor.ID = uuid.New()
	}
	cp := *vendor
	r.byID[vendor.ID] = &cp
	return nil
}

func (r *fakeVendorRepo) Update(ctx context.Context, vendor *model.Vendor) error {
	return r.Create(ctx, vendor)
}

func (r *fakeVendorRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Vendor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vendor, ok := r.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *vendor
	return &cp, nil
}

func (r *fakeVendorRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Vendor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, vendor := range r.byID {
		if vendor.UserID != nil && *vendor.UserID == userID {
			cp := *vendor
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeVendorRepo) List(ctx context.Context) ([]model.Vendor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Vendor
	for _, vendor := range r.byID {
		out = append(out, *vendor)
	}
	return out, nil
}

func (r *fakeVendorRepo) CreateAssignment(ctx context.Context, a *model.VendorInventoryAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.assignments = append(r.assignments, *a)
	return nil
}

func (r *fakeVendorRepo) UpdateAssignment(ctx context.Context, a *model.VendorInventoryAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.assignments {
		if r.assignments[i].ID == a.ID {
			r.assignments[i] = *a
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeVendorRepo) ListAssignmentsByBatch(ctx context.Context, batchID uuid.UUID) ([]model.VendorInventoryAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.VendorInventoryAssignment
	for _, a := range r.assignments {
		if a.BatchID == batchID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeVendorRepo) ListAssignmentsByVendor(ctx context.Context, vendorID uuid.UUID) ([]model.VendorInventoryAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.VendorInventoryAssignment
	for _, a := range r.assignments {
		if a.VendorID == vendorID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeVendorRepo) FindAssignmentForCard(ctx context.Context, vendorID, batchID uuid.UUID, sequence int64) (*model.VendorInventoryAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assignments {
		if a.VendorID == vendorID && a.BatchID == batchID &&
			a.SequenceStart <= sequence && sequence < a.SequenceEnd {
			cp := a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeVendorRepo) CreateSale(ctx context.Context, sale *model.VendorSale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sale.ID == uuid.Nil {
		sale.ID = uuid.New()
	}
	for _, existing := range r.sales {
		if existing.CardID == sale.CardID {
			return gorm.ErrDuplicatedKey
		}
	}
	r.sales = append(r.sales, *sale)
	return nil
}

func (r *fakeVendorRepo) ListSalesByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]model.VendorSale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.VendorSale
	for _, sale := range r.sales {
		if sale.VendorID == vendorID {
			out = append(out, sale)
		}
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeVendorRepo) SumCommissionByVendor(ctx context.Context, vendorID uuid.UUID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, sale := range r.sales {
		if sale.VendorID == vendorID {
			total = total.Add(sale.Commission)
		}
	}
	return total, nil
}

type fakeTransactionRepo struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*model.CardTransaction
	order []uuid.UUID
}

func (r *fakeTransactionRepo) Create(ctx context.Context, txn *model.CardTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	for _, existing := range r.byID {
		if existing.IdempotencyKey == txn.IdempotencyKey {
			return gorm.ErrDuplicatedKey
		}
	}
	txn.CreatedAt = time.Now()
	cp := *txn
	r.byID[txn.ID] = &cp
	r.order = append(r.order, txn.ID)
	return nil
}

func (r *fakeTransactionRepo) Update(ctx context.Context, txn *model.CardTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[txn.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *txn
	r.byID[txn.ID] = &cp
	return nil
}

func (r *fakeTransactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CardTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *txn
	return &cp, nil
}

func (r *fakeTransactionRepo) FindByIdempotencyKey(ctx context.Context, key string) (*model.CardTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, txn := range r.byID {
		if txn.IdempotencyKey == key {
			cp := *txn
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTransactionRepo) ListByCard(ctx context.Context, cardID uuid.UUID, limit int) ([]model.CardTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CardTransaction
	for _, id := range r.order {
		if txn := r.byID[id]; txn.CardID == cardID {
			out = append(out, *txn)
		}
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeTransactionRepo) ListPendingReconciliation(ctx context.Context, limit int) ([]model.CardTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CardTransaction
	for _, id := range r.order {
		if txn := r.byID[id]; txn.Status == model.TransactionStatusPendingReconciliation {
			out = append(out, *txn)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeTransactionRepo) SumApprovedSince(ctx context.Context, cardID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, txn := range r.byID {
		if txn.CardID != cardID || txn.CreatedAt.Before(since) {
			continue
		}
		switch txn.Status {
		case model.TransactionStatusApproved,
			model.TransactionStatusPendingReconciliation,
			model.TransactionStatusReconciled:
			total = total.Add(txn.Amount)
		}
	}
	return total, nil
}

func (r *fakeTransactionRepo) List(ctx context.Context, limit, offset int) ([]model.CardTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CardTransaction
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeTransactionRepo) CountByStatus(ctx context.Context) ([]repository.TransactionStatusCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[model.TransactionStatus]int64{}
	for _, txn := range r.byID {
		counts[txn.Status]++
	}
	var out []repository.TransactionStatusCount
	for status, n := range counts {
		out = append(out, repository.TransactionStatusCount{Status: status, Count: n})
	}
	return out, nil
}

type fakeLedgerRepo struct {
	mu      sync.Mutex
	entries []model.LedgerEntry
}

func (r *fakeLedgerRepo) Append(ctx context.Context, entry *model.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeLedgerRepo) ListByCard(ctx context.Context, cardID uuid.UUID, limit int) ([]model.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.LedgerEntry
	for _, entry := range r.entries {
		if entry.CardID == cardID {
			out = append(out, entry)
		}
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type fakeReplacementRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.ReplacementRequest
}

func (r *fakeReplacementRepo) Create(ctx context.Context, req *model.ReplacementRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	cp := *req
	r.byID[req.ID] = &cp
	return nil
}

func (r *fakeReplacementRepo) Update(ctx context.Context, req *model.ReplacementRequest) error {
	return r.Create(ctx, req)
}

func (r *fakeReplacementRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.ReplacementRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *fakeReplacementRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.ReplacementRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ReplacementRequest
	for _, req := range r.byID {
		if req.UserID == userID {
			out = append(out, *req)
		}
	}
	return out, nil
}

type fakeTerminalRepo struct {
	mu     sync.Mutex
	byCode map[string]*model.Terminal
}

func (r *fakeTerminalRepo) Create(ctx context.Context, terminal *model.Terminal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if terminal.ID == uuid.Nil {
		terminal.ID = uuid.New()
	}
	cp := *terminal
	r.byCode[terminal.TerminalCode] = &cp
	return nil
}

func (r *fakeTerminalRepo) FindByAPIKeyHash(ctx context.Context, keyHash string) (*model.Terminal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, terminal := range r.byCode {
		if terminal.APIKeyHash == keyHash && terminal.Active {
			cp := *terminal
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTerminalRepo) FindByCode(ctx context.Context, code string) (*model.Terminal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	terminal, ok := r.byCode[code]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *terminal
	return &cp, nil
}

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (r *fakeAuditRepo) Create(ctx context.Context, event *model.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *fakeAuditRepo) CreateBatch(ctx context.Context, events []model.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *fakeAuditRepo) List(ctx context.Context, entityType, entityID string, limit int) ([]model.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AuditEvent
	for _, event := range r.events {
		if entityType != "" && event.EntityType != entityType {
			continue
		}
		if entityID != "" && event.EntityID != entityID {
			continue
		}
		out = append(out, event)
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// syncAuditLogger records audit events synchronously for assertions.
type syncAuditLogger struct {
	repo *fakeAuditRepo
}

func (l *syncAuditLogger) Record(ctx context.Context, event model.AuditEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_ = l.repo.Create(ctx, &event)
}
