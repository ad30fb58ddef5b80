package activityrepo

import (
	"context"
	"encoding/json"

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

func (r *Repository) Append(ctx context.Context, entry *domain.ActivityEntry) error {
	query := `
        INSERT INTO application_activity_log (application_id, activity_type, metadata)
        VALUES ($1, $2, $3)
        RETURNING id, created_at
    `
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	return r.txManager.Begin(ctx, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, query, entry.ApplicationID, entry.ActivityType, raw)
		if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
			zap.L().Error("failed to append activity entry", zap.Error(err))
			return err
		}
		return nil
	})
}

func (r *Repository) ListByApplication(ctx context.Context, applicationID int64) ([]domain.ActivityEntry, error) {
	query := `
        SELECT id, application_id, activity_type, metadata, created_at
        FROM application_activity_log
        WHERE application_id = $1
        ORDER BY created_at ASC
    `
	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		zap.L().Error("failed to list activity entries", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ActivityEntry
	for rows.Next() {
		var entry domain.ActivityEntry
		var raw []byte
		if err := rows.Scan(&entry.ID, &entry.ApplicationID, &entry.ActivityType, &raw, &entry.CreatedAt); err != nil {
			zap.L().Error("failed to scan activity row", zap.Error(err))
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &entry.Metadata); err != nil {
				zap.L().Error("failed to decode activity metadata", zap.Error(err))
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
