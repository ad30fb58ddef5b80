package jobrepo

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

const jobColumns = `id, title, job_type, urgency_level, status, application_count, expires_at, created_at`

func (r *Repository) FindByID(ctx context.Context, id int64) (*domain.MarketplaceJob, error) {
	query := `
        SELECT ` + jobColumns + `
        FROM marketplace_jobs
        WHERE id = $1
    `
	return r.scanJob(ctx, query, id)
}

// FindByIDForUpdate locks the job row for the rest of the enclosing
// transaction.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.MarketplaceJob, error) {
	query := `
        SELECT ` + jobColumns + `
        FROM marketplace_jobs
        WHERE id = $1
        FOR UPDATE
    `
	return r.scanJob(ctx, query, id)
}

func (r *Repository) scanJob(ctx context.Context, query string, id int64) (*domain.MarketplaceJob, error) {
	row := r.db.QueryRow(ctx, query, id)
	var job domain.MarketplaceJob
	err := row.Scan(
		&job.ID, &job.Title, &job.JobType, &job.UrgencyLevel,
		&job.Status, &job.ApplicationCount, &job.ExpiresAt, &job.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		zap.L().Error("failed to get marketplace job", zap.Error(err))
		return nil, err
	}
	return &job, nil
}

func (r *Repository) IncrementApplicationCount(ctx context.Context, id int64) error {
	query := `
        UPDATE marketplace_jobs
        SET application_count = application_count + 1
        WHERE id = $1
    `
	return r.txManager.Begin(ctx, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query, id)
		if err != nil {
			zap.L().Error("failed to increment application count", zap.Error(err))
		}
		return err
	})
}

func (r *Repository) SetStatus(ctx context.Context, id int64, status string) error {
	query := `
        UPDATE marketplace_jobs
        SET status = $1
        WHERE id = $2
    `
	return r.txManager.Begin(ctx, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query, status, id)
		if err != nil {
			zap.L().Error("failed to set job status", zap.Error(err))
		}
		return err
	})
}
