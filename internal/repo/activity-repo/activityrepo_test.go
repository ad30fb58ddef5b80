package activityrepo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

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

func TestRepository_Append(t *testing.T) {
	repo, mock, tx := NewMock(t)

	query := regexp.QuoteMeta(`
        INSERT INTO application_activity_log (application_id, activity_type, metadata)
        VALUES ($1, $2, $3)
        RETURNING id, created_at
    `)

	now := time.Now()

	t.Run("appends entry with metadata", func(t *testing.T) {
		entry := &domain.ActivityEntry{
			ApplicationID: 101,
			ActivityType:  domain.ActivityApplicationCreated,
			Metadata:      map[string]string{"credits_used": "15"},
		}
		tx.EXPECT().Begin(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
				mock.ExpectQuery(query).
					WithArgs(int64(101), domain.ActivityApplicationCreated, []byte(`{"credits_used":"15"}`)).
					WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))
				return fn(ctx)
			})

		err := repo.Append(context.Background(), entry)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), entry.ID)
		assert.Equal(t, now, entry.CreatedAt)
	})

	t.Run("nil metadata stored as empty object", func(t *testing.T) {
		entry := &domain.ActivityEntry{
			ApplicationID: 101,
			ActivityType:  domain.ActivityStatusChanged,
		}
		tx.EXPECT().Begin(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
				mock.ExpectQuery(query).
					WithArgs(int64(101), domain.ActivityStatusChanged, []byte(`{}`)).
					WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(2), now))
				return fn(ctx)
			})

		assert.NoError(t, repo.Append(context.Background(), entry))
	})

	t.Run("database error", func(t *testing.T) {
		entry := &domain.ActivityEntry{
			ApplicationID: 101,
			ActivityType:  domain.ActivityApplicationWithdrawn,
		}
		tx.EXPECT().Begin(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
				mock.ExpectQuery(query).
					WithArgs(int64(101), domain.ActivityApplicationWithdrawn, []byte(`{}`)).
					WillReturnError(errors.New("database error"))
				return fn(ctx)
			})

		assert.Error(t, repo.Append(context.Background(), entry))
	})
}

func TestRepository_ListByApplication(t *testing.T) {
	repo, mock, _ := NewMock(t)

	query := regexp.QuoteMeta(`
        SELECT id, application_id, activity_type, metadata, created_at
        FROM application_activity_log
        WHERE application_id = $1
        ORDER BY created_at ASC
    `)

	now := time.Now()
	cols := []string{"id", "application_id", "activity_type", "metadata", "created_at"}

	t.Run("returns entries oldest first", func(t *testing.T) {
		rows := pgxmock.NewRows(cols).
			AddRow(int64(1), int64(101), domain.ActivityApplicationCreated, []byte(`{"credits_used":"15"}`), now.Add(-time.Hour)).
			AddRow(int64(2), int64(101), domain.ActivityApplicationSelected, []byte(`{"competitors_rejected":"3"}`), now)
		mock.ExpectQuery(query).WithArgs(int64(101)).WillReturnRows(rows)

		result, err := repo.ListByApplication(context.Background(), 101)
		assert.NoError(t, err)
		assert.Len(t, result, 2)
		assert.Equal(t, "15", result[0].Metadata["credits_used"])
		assert.Equal(t, domain.ActivityApplicationSelected, result[1].ActivityType)
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(int64(101)).WillReturnError(errors.New("database error"))

		result, err := repo.ListByApplication(context.Background(), 101)
		assert.Error(t, err)
		assert.Nil(t, result)
	})
}
