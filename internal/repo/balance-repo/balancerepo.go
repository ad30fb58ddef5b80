package balancerepo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/tradielink/marketplace/internal/domain"
	"github.com/tradielink/marketplace/internal/pg"
	"go.uber.org/zap"
)

type Repository struct {
	db        pg.Database
	txManager pg.TXManager
}

func New(db pg.Database, txManager pg.TXManager) *Repository {
	return &Repository{
		db:        db,
		txManager: txManager,
	}
}

const balanceColumns = `id, user_id, current_balance, total_purchased, total_used, total_refunded, last_purchase_at, last_usage_at`

func (r *Repository) GetUserBalance(ctx context.Context, userID int) (*domain.CreditBalance, error) {
	query := `
        SELECT ` + balanceColumns + `
        FROM credit_balances
        WHERE user_id = $1
    `
	return r.scanBalance(ctx, query, userID)
}

// GetUserBalanceForUpdate locks the balance row for the rest of the enclosing
// transaction. Callers must be inside a TXManager.Begin.
func (r *Repository) GetUserBalanceForUpdate(ctx context.Context, userID int) (*domain.CreditBalance, error) {
	query := `
        SELECT ` + balanceColumns + `
        FROM credit_balances
        WHERE user_id = $1
        FOR UPDATE
    `
	return r.scanBalance(ctx, query, userID)
}

func (r *Repository) scanBalance(ctx context.Context, query string, userID int) (*domain.CreditBalance, error) {
	row := r.db.QueryRow(ctx, query, userID)
	var balance domain.CreditBalance
	err := row.Scan(
		&balance.ID, &balance.UserID, &balance.CurrentBalance,
		&balance.TotalPurchased, &balance.TotalUsed, &balance.TotalRefunded,
		&balance.LastPurchaseAt, &balance.LastUsageAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		zap.L().Error("failed to get user balance", zap.Error(err))
		return nil, err
	}
	return &balance, nil
}

func (r *Repository) CreateUserBalance(ctx context.Context, userID int) (*domain.CreditBalance, error) {
	query := `
        INSERT INTO credit_balances (user_id, current_balance, total_purchased, total_used, total_refunded)
        VALUES ($1, 0, 0, 0, 0)
        RETURNING ` + balanceColumns + `
    `
	row := r.db.QueryRow(ctx, query, userID)
	var balance domain.CreditBalance
	err := row.Scan(
		&balance.ID, &balance.UserID, &balance.CurrentBalance,
		&balance.TotalPurchased, &balance.TotalUsed, &balance.TotalRefunded,
		&balance.LastPurchaseAt, &balance.LastUsageAt,
	)
	if err != nil {
		zap.L().Error("failed to create user balance", zap.Error(err))
		return nil, err
	}
	return &balance, nil
}

func (r *Repository) UpdateUserBalance(ctx context.Context, userID int, balance *domain.CreditBalance) (*domain.CreditBalance, error) {
	var updatedBalance domain.CreditBalance
	query := `
		UPDATE credit_balances
		SET current_balance = $1, total_purchased = $2, total_used = $3, total_refunded = $4,
		    last_purchase_at = $5, last_usage_at = $6
		WHERE user_id = $7
		RETURNING ` + balanceColumns + `
	`
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, query,
			balance.CurrentBalance, balance.TotalPurchased, balance.TotalUsed, balance.TotalRefunded,
			balance.LastPurchaseAt, balance.LastUsageAt, userID,
		)
		err := row.Scan(
			&updatedBalance.ID, &updatedBalance.UserID, &updatedBalance.CurrentBalance,
			&updatedBalance.TotalPurchased, &updatedBalance.TotalUsed, &updatedBalance.TotalRefunded,
			&updatedBalance.LastPurchaseAt, &updatedBalance.LastUsageAt,
		)
		if err != nil {
			zap.L().Error("failed to update user balance", zap.Error(err))
			return err
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &updatedBalance, nil
}
