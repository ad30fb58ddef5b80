package transactionrepo

import (
	"context"
	"time"

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

const transactionColumns = `id, user_id, transaction_type, credits, status, description, reference_id, reference_type, expires_at, created_at`

func (r *Repository) Save(ctx context.Context, txn *domain.CreditTransaction) (*domain.CreditTransaction, error) {
	query := `
        INSERT INTO credit_transactions
            (user_id, transaction_type, credits, status, description, reference_id, reference_type, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at
    `
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, query,
			txn.UserID, txn.Type, txn.Credits, txn.Status,
			txn.Description, txn.ReferenceID, txn.ReferenceType, txn.ExpiresAt,
		)
		if err := row.Scan(&txn.ID, &txn.CreatedAt); err != nil {
			zap.L().Error("failed to save credit transaction", zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// GetHistory returns the user's transactions newest first. A Limit of 0
// falls back to a page of 50.
func (r *Repository) GetHistory(ctx context.Context, userID int, filter domain.TransactionFilter) ([]domain.CreditTransaction, error) {
	query := `
        SELECT ` + transactionColumns + `
        FROM credit_transactions
        WHERE user_id = $1
          AND ($2 = '' OR transaction_type = $2)
          AND ($3 = '' OR status = $3)
          AND ($4::timestamptz IS NULL OR created_at >= $4)
          AND ($5::timestamptz IS NULL OR created_at <= $5)
        ORDER BY created_at DESC
        LIMIT $6 OFFSET $7
    `
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var from, to *time.Time
	if !filter.From.IsZero() {
		from = &filter.From
	}
	if !filter.To.IsZero() {
		to = &filter.To
	}

	rows, err := r.db.Query(ctx, query, userID, filter.Type, filter.Status, from, to, limit, filter.Offset)
	if err != nil {
		zap.L().Error("failed to get transaction history", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.CreditTransaction
	for rows.Next() {
		var txn domain.CreditTransaction
		err := rows.Scan(
			&txn.ID, &txn.UserID, &txn.Type, &txn.Credits, &txn.Status,
			&txn.Description, &txn.ReferenceID, &txn.ReferenceType, &txn.ExpiresAt, &txn.CreatedAt,
		)
		if err != nil {
			zap.L().Error("failed to scan transaction row", zap.Error(err))
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

// FindExpiredPurchases returns completed purchase transactions whose credits
// lapsed before now and that have no offsetting expiry transaction yet.
func (r *Repository) FindExpiredPurchases(ctx context.Context, now time.Time, limit int) ([]domain.CreditTransaction, error) {
	query := `
        SELECT ` + transactionColumns + `
        FROM credit_transactions ct
        WHERE ct.transaction_type = 'purchase'
          AND ct.status = 'completed'
          AND ct.expires_at IS NOT NULL
          AND ct.expires_at <= $1
          AND NOT EXISTS (
              SELECT 1 FROM credit_transactions ex
              WHERE ex.transaction_type = 'expiry'
                AND ex.reference_type = 'credit_transaction'
                AND ex.reference_id = ct.id::text
          )
        ORDER BY ct.expires_at ASC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		zap.L().Error("failed to find expired purchases", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.CreditTransaction
	for rows.Next() {
		var txn domain.CreditTransaction
		err := rows.Scan(
			&txn.ID, &txn.UserID, &txn.Type, &txn.Credits, &txn.Status,
			&txn.Description, &txn.ReferenceID, &txn.ReferenceType, &txn.ExpiresAt, &txn.CreatedAt,
		)
		if err != nil {
			zap.L().Error("failed to scan expired purchase row", zap.Error(err))
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}
