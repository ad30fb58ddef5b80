package balancerepo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

var balanceCols = []string{"id", "user_id", "current_balance", "total_purchased", "total_used", "total_refunded", "last_purchase_at", "last_usage_at"}

func TestRepository_GetUserBalance(t *testing.T) {
	repo, mock, _ := NewMock(t)

	query := regexp.QuoteMeta(`
        SELECT id, user_id, current_balance, total_purchased, total_used, total_refunded, last_purchase_at, last_usage_at
        FROM credit_balances
        WHERE user_id = $1
    `)

	tests := []struct {
		name      string
		userID    int
		mockSetup func()
		expectErr bool
		result    *domain.CreditBalance
	}{
		{
			name:   "Valid userID returns balance",
			userID: 1,
			mockSetup: func() {
				rows := pgxmock.NewRows(balanceCols).
					AddRow(1, 1, 85, 100, 30, 15, nil, nil)
				mock.ExpectQuery(query).WithArgs(1).WillReturnRows(rows)
			},
			expectErr: false,
			result: &domain.CreditBalance{
				ID:             1,
				UserID:         1,
				CurrentBalance: 85,
				TotalPurchased: 100,
				TotalUsed:      30,
				TotalRefunded:  15,
			},
		},
		{
			name:   "Non-existing userID returns nil",
			userID: 99,
			mockSetup: func() {
				mock.ExpectQuery(query).WithArgs(99).WillReturnError(pgx.ErrNoRows)
			},
			expectErr: false,
			result:    nil,
		},
		{
			name:   "Database error",
			userID: 1,
			mockSetup: func() {
				mock.ExpectQuery(query).WithArgs(1).WillReturnError(errors.New("database error"))
			},
			expectErr: true,
			result:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			result, err := repo.GetUserBalance(context.Background(), tt.userID)

			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			if tt.result == nil {
				assert.Nil(t, result)
			} else {
				assert.Equal(t, tt.result, result)
			}
		})
	}
}

func TestRepository_GetUserBalanceForUpdate(t *testing.T) {
	repo, mock, _ := NewMock(t)

	query := regexp.QuoteMeta(`
        SELECT id, user_id, current_balance, total_purchased, total_used, total_refunded, last_purchase_at, last_usage_at
        FROM credit_balances
        WHERE user_id = $1
        FOR UPDATE
    `)

	rows := pgxmock.NewRows(balanceCols).
		AddRow(1, 1, 10, 10, 0, 0, nil, nil)
	mock.ExpectQuery(query).WithArgs(1).WillReturnRows(rows)

	result, err := repo.GetUserBalanceForUpdate(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 10, result.CurrentBalance)
}

func TestRepository_CreateUserBalance(t *testing.T) {
	repo, mock, _ := NewMock(t)

	query := regexp.QuoteMeta(`
        INSERT INTO credit_balances (user_id, current_balance, total_purchased, total_used, total_refunded)
        VALUES ($1, 0, 0, 0, 0)
        RETURNING id, user_id, current_balance, total_purchased, total_used, total_refunded, last_purchase_at, last_usage_at
    `)

	tests := []struct {
		name      string
		userID    int
		mockSetup func()
		expectErr bool
		result    *domain.CreditBalance
	}{
		{
			name:   "Successfully creates balance",
			userID: 1,
			mockSetup: func() {
				mock.ExpectQuery(query).WithArgs(1).
					WillReturnRows(pgxmock.NewRows(balanceCols).
						AddRow(1, 1, 0, 0, 0, 0, nil, nil))
			},
			expectErr: false,
			result: &domain.CreditBalance{
				ID:     1,
				UserID: 1,
			},
		},
		{
			name:   "Database error",
			userID: 1,
			mockSetup: func() {
				mock.ExpectQuery(query).WithArgs(1).WillReturnError(errors.New("database error"))
			},
			expectErr: true,
			result:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()

			result, err := repo.CreateUserBalance(context.Background(), tt.userID)

			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.result, result)
			}
		})
	}
}

func TestRepository_UpdateUserBalance(t *testing.T) {
	repo, mock, tx := NewMock(t)

	query := regexp.QuoteMeta(`
		UPDATE credit_balances
		SET current_balance = $1, total_purchased = $2, total_used = $3, total_refunded = $4,
		    last_purchase_at = $5, last_usage_at = $6
		WHERE user_id = $7
		RETURNING id, user_id, current_balance, total_purchased, total_used, total_refunded, last_purchase_at, last_usage_at
	`)

	now := time.Now()

	tests := []struct {
		name         string
		userID       int
		inputBalance *domain.CreditBalance
		mockSetup    func(input *domain.CreditBalance)
		expectErr    bool
	}{
		{
			name:   "Successfully updates balance",
			userID: 1,
			inputBalance: &domain.CreditBalance{
				CurrentBalance: 70,
				TotalPurchased: 100,
				TotalUsed:      45,
				TotalRefunded:  15,
				LastUsageAt:    &now,
			},
			mockSetup: func(input *domain.CreditBalance) {
				tx.EXPECT().Begin(gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
						mock.ExpectQuery(query).
							WithArgs(input.CurrentBalance, input.TotalPurchased, input.TotalUsed,
								input.TotalRefunded, input.LastPurchaseAt, input.LastUsageAt, 1).
							WillReturnRows(pgxmock.NewRows(balanceCols).
								AddRow(1, 1, 70, 100, 45, 15, nil, &now))
						return fn(ctx)
					})
			},
			expectErr: false,
		},
		{
			name:   "Database error",
			userID: 1,
			inputBalance: &domain.CreditBalance{
				CurrentBalance: 70,
			},
			mockSetup: func(input *domain.CreditBalance) {
				tx.EXPECT().Begin(gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
						mock.ExpectQuery(query).
							WithArgs(input.CurrentBalance, input.TotalPurchased, input.TotalUsed,
								input.TotalRefunded, input.LastPurchaseAt, input.LastUsageAt, 1).
							WillReturnError(errors.New("database error"))
						return fn(ctx)
					})
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup(tt.inputBalance)

			result, err := repo.UpdateUserBalance(context.Background(), tt.userID, tt.inputBalance)

			if tt.expectErr {
				assert.Error(t, err)
				assert.Nil(t, result)
			} else {
				require.NoError(t, err)
				require.NotNil(t, result)
				assert.Equal(t, 70, result.CurrentBalance)
				assert.Equal(t, 45, result.TotalUsed)
			}
		})
	}
}
