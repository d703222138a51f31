package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"nfcpay/internal/model"
	"nfcpay/internal/repository"
)

// AdminDashboard is the operational overview: card population by state,
// transaction counts by status and total customer funds on cards.
type AdminDashboard struct {
	CardsByState         []repository.CardStateCount         `json:"cards_by_state"`
	TransactionsByStatus []repository.TransactionStatusCount `json:"transactions_by_status"`
	TotalCardBalance     decimal.Decimal                     `json:"total_card_balance"`
}

// AdminService exposes back-office listings and aggregates.
type AdminService interface {
	Dashboard(ctx context.Context) (*AdminDashboard, error)
	ListCards(ctx context.Context, limit, offset int) ([]model.PrepaidCard, error)
	ListTransactions(ctx context.Context, limit, offset int) ([]model.CardTransaction, error)
	AuditTrail(ctx context.Context, entityType, entityID string, limit int) ([]model.AuditEvent, error)
}

type adminService struct {
	repos *repository.Repos
}

// NewAdminService creates a new admin service.
func NewAdminService(repos *repository.Repos) AdminService {
	return &adminService{repos: repos}
}

// Dashboard aggregates card and transaction populations.
func (s *adminService) Dashboard(ctx context.Context) (*AdminDashboard, error) {
	byState, err := s.repos.Cards.CountByState(ctx)
	if err != nil {
		return nil, fmt.Errorf("count cards: %w", err)
	}
	byStatus, err := s.repos.Transactions.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	totalBalance, err := s.repos.Cards.TotalBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("total balance: %w", err)
	}
	return &AdminDashboard{
		CardsByState:         byState,
		TransactionsByStatus: byStatus,
		TotalCardBalance:     totalBalance,
	}, nil
}

// ListCards pages through the card population.
func (s *adminService) ListCards(ctx context.Context, limit, offset int) ([]model.PrepaidCard, error) {
	return s.repos.Cards.List(ctx, limit, offset)
}

// ListTransactions pages through all transactions, newest first.
func (s *adminService) ListTransactions(ctx context.Context, limit, offset int) ([]model.CardTransaction, error) {
	return s.repos.Transactions.List(ctx, limit, offset)
}

// AuditTrail lists audit events, optionally filtered by entity.
func (s *adminService) AuditTrail(ctx context.Context, entityType, entityID string, limit int) ([]model.AuditEvent, error) {
	return s.repos.Audit.List(ctx, entityType, entityID, limit)
}
