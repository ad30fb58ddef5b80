package topuprepo

import (
	"context"
	"time"

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

const settingsColumns = `user_id, status, trigger_balance, topup_credits, package_type, failure_count, last_topup_at, updated_at`

func (r *Repository) GetSettings(ctx context.Context, userID int) (*domain.AutoTopupSettings, error) {
	query := `
        SELECT ` + settingsColumns + `
        FROM auto_topup_settings
        WHERE user_id = $1
    `
	row := r.db.QueryRow(ctx, query, userID)
	var settings domain.AutoTopupSettings
	err := row.Scan(
		&settings.UserID, &settings.Status, &settings.TriggerBalance, &settings.TopupCredits,
		&settings.PackageType, &settings.FailureCount, &settings.LastTopupAt, &settings.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		zap.L().Error("failed to get auto-topup settings", zap.Error(err))
		return nil, err
	}
	return &settings, nil
}

// FindTriggered returns user IDs with enabled auto-topup whose balance is at
// or below their trigger threshold.
func (r *Repository) FindTriggered(ctx context.Context, limit int) ([]int, error) {
	query := `
        SELECT s.user_id
        FROM auto_topup_settings s
        JOIN credit_balances b ON b.user_id = s.user_id
        WHERE s.status = 'enabled' AND b.current_balance <= s.trigger_balance
        ORDER BY s.user_id
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		zap.L().Error("failed to find triggered auto-topups", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var userIDs []int
	for rows.Next() {
		var userID int
		if err := rows.Scan(&userID); err != nil {
			zap.L().Error("failed to scan triggered user", zap.Error(err))
			return nil, err
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}

// MarkSuccess resets the failure counter and records the topup time.
func (r *Repository) MarkSuccess(ctx context.Context, userID int) error {
	query := `
        UPDATE auto_topup_settings
        SET failure_count = 0, last_topup_at = $1, updated_at = $1
        WHERE user_id = $2
    `
	return r.txManager.Begin(ctx, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query, time.Now(), userID)
		if err != nil {
			zap.L().Error("failed to mark topup success", zap.Error(err))
		}
		return err
	})
}

// MarkFailure increments the failure counter and disables the trigger once it
// reaches maxFailures.
func (r *Repository) MarkFailure(ctx context.Context, userID, maxFailures int) (*domain.AutoTopupSettings, error) {
	query := `
        UPDATE auto_topup_settings
        SET failure_count = failure_count + 1,
            status = CASE WHEN failure_count + 1 >= $1 THEN 'disabled_after_failures' ELSE status END,
            updated_at = $2
        WHERE user_id = $3
        RETURNING ` + settingsColumns + `
    `
	var settings domain.AutoTopupSettings
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, query, maxFailures, time.Now(), userID)
		err := row.Scan(
			&settings.UserID, &settings.Status, &settings.TriggerBalance, &settings.TopupCredits,
			&settings.PackageType, &settings.FailureCount, &settings.LastTopupAt, &settings.UpdatedAt,
		)
		if err != nil {
			zap.L().Error("failed to mark topup failure", zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &settings, nil
}
