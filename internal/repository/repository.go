package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Repos bundles the per-aggregate repositories bound to one *gorm.DB,
// either the root connection or an open transaction. Balance mutations and
// state transitions span aggregates (card row, ledger entry, transaction
// row), so the transaction scope lives here rather than on any single
// repository.
type Repos struct {
	db *gorm.DB
	mu sync.Mutex

	Programs     ProgramRepository
	Batches      BatchRepository
	Cards        CardRepository
	Vendors      VendorRepository
	Transactions TransactionRepository
	Ledger       LedgerRepository
	Replacements ReplacementRepository
	Terminals    TerminalRepository
	Audit        AuditRepository
}

// New creates a Repos bundle on the given database handle.
func New(db *gorm.DB) *Repos {
	return &Repos{
		db:           db,
		Programs:     NewProgramRepository(db),
		Batches:      NewBatchRepository(db),
		Cards:        NewCardRepository(db),
		Vendors:      NewVendorRepository(db),
		Transactions: NewTransactionRepository(db),
		Ledger:       NewLedgerRepository(db),
		Replacements: NewReplacementRepository(db),
		Terminals:    NewTerminalRepository(db),
		Audit:        NewAuditRepository(db),
	}
}

// WithTransaction executes fn within a database transaction. The callback
// receives a Repos bound to the transaction; any error rolls back. A bundle
// built without a database handle serializes callbacks itself so in-memory
// repositories keep the same exclusion guarantees as row locks.
func (r *Repos) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *Repos) error) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		return fn(ctx, r)
	}
	return r.db.WithContext(ctx).Transaction(func(txDB *gorm.DB) error {
		return fn(ctx, New(txDB))
	})
}
