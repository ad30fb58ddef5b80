package jobrepo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/tradielink/marketplace/internal/domain"
	"github.com/tradielink/marketplace/internal/pg"
)

func NewMock(t *testing.T) (*Repository, pgxmock.PgxPoolIface, *pg.MockTXManager) {
	ctrl := gomock.NewController(t)
	mockTxManager := pg.NewMockTXManager(ctrl)

	mockDB, err := pgxmock.NewPool()
	assert.NoError(t, err)
	repo := New(mockDB, mockTxManager)
	defer mockDB.Close()
	defer ctrl.Finish()

	return repo, mockDB, mockTxManager
}

var jobCols = []string{"id", "title", "job_type", "urgency_level", "status", "application_count", "expires_at", "created_at"}

func TestRepository_FindByID(t *testing.T) {
	repo, mock, _ := NewMock(t)

	query := regexp.QuoteMeta(`
        SELECT id, title, job_type, urgency_level, status, application_count, expires_at, created_at
        FROM marketplace_jobs
        WHERE id = $1
    `)

	now := time.Now()

	tests := []struct {
		name      string
		id        int64
		mockSetup func()
		expectErr bool
		result    *domain.MarketplaceJob
	}{
		{
			name: "Existing job",
			id:   42,
			mockSetup: func() {
				rows := pgxmock.NewRows(jobCols).
					AddRow(int64(42), "Rewire kitchen", "electrical", "urgent", domain.JobStatusAvailable, 3, nil, now)
				mock.ExpectQuery(query).WithArgs(int64(42)).WillReturnRows(rows)
			},
			result: &domain.MarketplaceJob{
				ID:               42,
				Title:            "Rewire kitchen",
				JobType:          "electrical",
				UrgencyLevel:     "urgent",
				Status:           domain.JobStatusAvailable,
				ApplicationCount: 3,
				CreatedAt:        now,
			},
		},
		{
			name: "Missing job returns nil",
			id:   999,
			mockSetup: func() {
				mock.ExpectQuery(query).WithArgs(int64(999)).WillReturnError(pgx.ErrNoRows)
			},
			result: nil,
		},
		{
			name: "Database error",
			id:   42,
			mockSetup: func() {
				mock.ExpectQuery(query).WithArgs(int64(42)).WillReturnError(errors.New("database error"))
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			result, err := repo.FindByID(context.Background(), tt.id)

			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.result, result)
		})
	}
}

func TestRepository_FindByIDForUpdate(t *testing.T) {
	repo, mock, _ := NewMock(t)

	query := regexp.QuoteMeta(`
        SELECT id, title, job_type, urgency_level, status, application_count, expires_at, created_at
        FROM marketplace_jobs
        WHERE id = $1
        FOR UPDATE
    `)

	rows := pgxmock.NewRows(jobCols).
		AddRow(int64(42), "Rewire kitchen", "electrical", "urgent", domain.JobStatusAvailable, 3, nil, time.Now())
	mock.ExpectQuery(query).WithArgs(int64(42)).WillReturnRows(rows)

	result, err := repo.FindByIDForUpdate(context.Background(), 42)
	assert.NoError(t, err)
	assert.Equal(t, domain.JobStatusAvailable, result.Status)
}

func TestRepository_IncrementApplicationCount(t *testing.T) {
	repo, mock, tx := NewMock(t)

	query := regexp.QuoteMeta(`
        UPDATE marketplace_jobs
        SET application_count = application_count + 1
        WHERE id = $1
    `)

	t.Run("increments count", func(t *testing.T) {
		tx.EXPECT().Begin(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
				mock.ExpectExec(query).WithArgs(int64(42)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				return fn(ctx)
			})

		assert.NoError(t, repo.IncrementApplicationCount(context.Background(), 42))
	})

	t.Run("database error", func(t *testing.T) {
		tx.EXPECT().Begin(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
				mock.ExpectExec(query).WithArgs(int64(42)).
					WillReturnError(errors.New("database error"))
				return fn(ctx)
			})

		assert.Error(t, repo.IncrementApplicationCount(context.Background(), 42))
	})
}

func TestRepository_SetStatus(t *testing.T) {
	repo, mock, tx := NewMock(t)

	query := regexp.QuoteMeta(`
        UPDATE marketplace_jobs
        SET status = $1
        WHERE id = $2
    `)

	tx.EXPECT().Begin(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			mock.ExpectExec(query).WithArgs(domain.JobStatusAssigned, int64(42)).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			return fn(ctx)
		})

	assert.NoError(t, repo.SetStatus(context.Background(), 42, domain.JobStatusAssigned))
}
