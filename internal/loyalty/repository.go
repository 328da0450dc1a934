package loyalty

import (
	"context"

	"github.com/allosh/allosh-market-service/internal/model"
)

type Repository interface {
	GetAccount(ctx context.Context, userID string) (*model.LoyaltyAccount, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]model.LoyaltyTransaction, error)

	// Deduct removes up to txn.Points (positive) from the balance, never going
	// below zero, and records the entry. applied is false when the reference
	// was recorded before; the stored entry is returned in that case.
	Deduct(ctx context.Context, txn *model.LoyaltyTransaction) (stored *model.LoyaltyTransaction, applied bool, err error)
}
