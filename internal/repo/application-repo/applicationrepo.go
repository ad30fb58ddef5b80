package applicationrepo

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

const applicationColumns = `id, marketplace_job_id, tradie_id, custom_quote, proposed_timeline, status, credits_used, applied_at, updated_at`

func (r *Repository) FindByID(ctx context.Context, id int64) (*domain.JobApplication, error) {
	query := `
        SELECT ` + applicationColumns + `
        FROM job_applications
        WHERE id = $1
    `
	return r.scanOne(ctx, query, id)
}

// FindByIDForUpdate locks the application row for the rest of the enclosing
// transaction.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.JobApplication, error) {
	query := `
        SELECT ` + applicationColumns + `
        FROM job_applications
        WHERE id = $1
        FOR UPDATE
    `
	return r.scanOne(ctx, query, id)
}

// FindActive returns the tradie's non-withdrawn, non-rejected application for
// the job, if any.
func (r *Repository) FindActive(ctx context.Context, jobID int64, tradieID int) (*domain.JobApplication, error) {
	query := `
        SELECT ` + applicationColumns + `
        FROM job_applications
        WHERE marketplace_job_id = $1 AND tradie_id = $2
          AND status NOT IN ('withdrawn', 'rejected')
    `
	return r.scanOne(ctx, query, jobID, tradieID)
}

func (r *Repository) scanOne(ctx context.Context, query string, args ...any) (*domain.JobApplication, error) {
	row := r.db.QueryRow(ctx, query, args...)
	var app domain.JobApplication
	err := row.Scan(
		&app.ID, &app.MarketplaceJobID, &app.TradieID, &app.CustomQuote,
		&app.ProposedTimeline, &app.Status, &app.CreditsUsed, &app.AppliedAt, &app.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		zap.L().Error("failed to get job application", zap.Error(err))
		return nil, err
	}
	return &app, nil
}

func (r *Repository) FindByTradie(ctx context.Context, tradieID int) ([]domain.JobApplication, error) {
	query := `
        SELECT ` + applicationColumns + `
        FROM job_applications
        WHERE tradie_id = $1
        ORDER BY applied_at DESC
    `
	rows, err := r.db.Query(ctx, query, tradieID)
	if err != nil {
		zap.L().Error("failed to get tradie applications", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var apps []domain.JobApplication
	for rows.Next() {
		var app domain.JobApplication
		err := rows.Scan(
			&app.ID, &app.MarketplaceJobID, &app.TradieID, &app.CustomQuote,
			&app.ProposedTimeline, &app.Status, &app.CreditsUsed, &app.AppliedAt, &app.UpdatedAt,
		)
		if err != nil {
			zap.L().Error("failed to scan application row", zap.Error(err))
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func (r *Repository) Save(ctx context.Context, app *domain.JobApplication) error {
	query := `
        INSERT INTO job_applications
            (marketplace_job_id, tradie_id, custom_quote, proposed_timeline, status, credits_used)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, applied_at, updated_at
    `
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, query,
			app.MarketplaceJobID, app.TradieID, app.CustomQuote,
			app.ProposedTimeline, app.Status, app.CreditsUsed,
		)
		if err := row.Scan(&app.ID, &app.AppliedAt, &app.UpdatedAt); err != nil {
			if !pg.IsUniqueViolation(err) {
				zap.L().Error("failed to save job application", zap.Error(err))
			}
			return err
		}
		return nil
	})
	return err
}

func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string) (*domain.JobApplication, error) {
	var updated domain.JobApplication
	query := `
        UPDATE job_applications
        SET status = $1, updated_at = $2
        WHERE id = $3
        RETURNING ` + applicationColumns + `
    `
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, query, status, time.Now(), id)
		err := row.Scan(
			&updated.ID, &updated.MarketplaceJobID, &updated.TradieID, &updated.CustomQuote,
			&updated.ProposedTimeline, &updated.Status, &updated.CreditsUsed, &updated.AppliedAt, &updated.UpdatedAt,
		)
		if err != nil {
			zap.L().Error("failed to update application status", zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// RejectOpenByJob rejects every submitted or under_review application on the
// job except the given one. Returns the number of applications rejected.
func (r *Repository) RejectOpenByJob(ctx context.Context, jobID, exceptID int64) (int64, error) {
	query := `
        UPDATE job_applications
        SET status = 'rejected', updated_at = $1
        WHERE marketplace_job_id = $2 AND id <> $3
          AND status IN ('submitted', 'under_review')
    `
	var rejected int64
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query, time.Now(), jobID, exceptID)
		if err != nil {
			zap.L().Error("failed to reject competing applications", zap.Error(err))
			return err
		}
		rejected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rejected, nil
}
