package ledgerservice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tradielink/marketplace/internal/domain"
	"github.com/tradielink/marketplace/internal/pg"
	"go.uber.org/zap"
)

type BalanceRepo interface {
	GetUserBalance(ctx context.Context, userID int) (*domain.CreditBalance, error)
	GetUserBalanceForUpdate(ctx context.Context, userID int) (*domain.CreditBalance, error)
	CreateUserBalance(ctx context.Context, userID int) (*domain.CreditBalance, error)
	UpdateUserBalance(ctx context.Context, userID int, balance *domain.CreditBalance) (*domain.CreditBalance, error)
}

type TransactionRepo interface {
	Save(ctx context.Context, txn *domain.CreditTransaction) (*domain.CreditTransaction, error)
	GetHistory(ctx context.Context, userID int, filter domain.TransactionFilter) ([]domain.CreditTransaction, error)
	FindExpiredPurchases(ctx context.Context, now time.Time, limit int) ([]domain.CreditTransaction, error)
}

// Service owns every mutation of credit_balances and credit_transactions.
// Each balance change happens under a row lock and is paired with exactly one
// transaction row.
type Service struct {
	balanceRepo     BalanceRepo
	transactionRepo TransactionRepo
	txManager       pg.TXManager
}

func New(balanceRepo BalanceRepo, transactionRepo TransactionRepo, txManager pg.TXManager) *Service {
	return &Service{
		balanceRepo:     balanceRepo,
		transactionRepo: transactionRepo,
		txManager:       txManager,
	}
}

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrBalanceNotFound     = errors.New("credit balance not found")
	ErrInvalidAmount       = errors.New("credit amount must be positive")
	ErrInvalidCreditType   = errors.New("invalid credit transaction type")
)

func (s *Service) GetBalance(ctx context.Context, userID int) (*domain.CreditBalance, error) {
	balance, err := s.balanceRepo.GetUserBalance(ctx, userID)
	if err != nil {
		zap.L().Error("failed to get balance", zap.Error(err))
		return nil, err
	}
	if balance == nil {
		return nil, ErrBalanceNotFound
	}
	return balance, nil
}

// Debit charges amount credits from the user, writing a completed usage
// transaction. The balance row stays locked until the enclosing transaction
// commits, so two concurrent debits cannot both pass the balance check.
func (s *Service) Debit(ctx context.Context, userID, amount int, ref domain.Reference, description string) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var txn *domain.CreditTransaction
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		balance, err := s.balanceRepo.GetUserBalanceForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if balance == nil {
			return ErrBalanceNotFound
		}
		if balance.CurrentBalance < amount {
			return ErrInsufficientCredits
		}

		now := time.Now()
		balance.CurrentBalance -= amount
		balance.TotalUsed += amount
		balance.LastUsageAt = &now
		if _, err := s.balanceRepo.UpdateUserBalance(ctx, userID, balance); err != nil {
			return err
		}

		txn, err = s.transactionRepo.Save(ctx, &domain.CreditTransaction{
			UserID:        userID,
			Type:          domain.TransactionTypeUsage,
			Credits:       amount,
			Status:        domain.TransactionStatusCompleted,
			Description:   description,
			ReferenceID:   ref.ID,
			ReferenceType: ref.Type,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Credit adds amount credits of the given type to the user's balance,
// creating the balance row on first purchase. Purchase-like types count into
// total_purchased, refunds into total_refunded.
func (s *Service) Credit(ctx context.Context, userID, amount int, txnType string, ref domain.Reference, description string, expiresAt *time.Time) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var txn *domain.CreditTransaction
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		balance, err := s.balanceRepo.GetUserBalanceForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if balance == nil {
			balance, err = s.balanceRepo.CreateUserBalance(ctx, userID)
			if err != nil {
				return err
			}
		}

		now := time.Now()
		balance.CurrentBalance += amount
		switch txnType {
		case domain.TransactionTypePurchase, domain.TransactionTypeBonus,
			domain.TransactionTypeTrial, domain.TransactionTypeSubscription:
			balance.TotalPurchased += amount
			balance.LastPurchaseAt = &now
		case domain.TransactionTypeRefund:
			balance.TotalRefunded += amount
		default:
			return ErrInvalidCreditType
		}
		if _, err := s.balanceRepo.UpdateUserBalance(ctx, userID, balance); err != nil {
			return err
		}

		txn, err = s.transactionRepo.Save(ctx, &domain.CreditTransaction{
			UserID:        userID,
			Type:          txnType,
			Credits:       amount,
			Status:        domain.TransactionStatusCompleted,
			Description:   description,
			ReferenceID:   ref.ID,
			ReferenceType: ref.Type,
			ExpiresAt:     expiresAt,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *Service) GetTransactionHistory(ctx context.Context, userID int, filter domain.TransactionFilter) ([]domain.CreditTransaction, error) {
	transactions, err := s.transactionRepo.GetHistory(ctx, userID, filter)
	if err != nil {
		zap.L().Error("failed to get transaction history", zap.Error(err))
		return nil, err
	}
	return transactions, nil
}

func (s *Service) GetUsageHistory(ctx context.Context, userID int, filter domain.TransactionFilter) ([]domain.CreditTransaction, error) {
	filter.Type = domain.TransactionTypeUsage
	return s.GetTransactionHistory(ctx, userID, filter)
}

const expiryBatchLimit = 100

// ExpireCredits writes offsetting expiry transactions for purchases whose
// credits lapsed. The expired amount is capped at the user's current balance;
// a purchase with nothing left to expire gets a failed expiry marker so it is
// not rescanned.
func (s *Service) ExpireCredits(ctx context.Context, now time.Time) error {
	purchases, err := s.transactionRepo.FindExpiredPurchases(ctx, now, expiryBatchLimit)
	if err != nil {
		return err
	}

	for _, purchase := range purchases {
		purchase := purchase
		err := s.txManager.Begin(ctx, func(ctx context.Context) error {
			balance, err := s.balanceRepo.GetUserBalanceForUpdate(ctx, purchase.UserID)
			if err != nil {
				return err
			}
			if balance == nil {
				return ErrBalanceNotFound
			}

			ref := domain.Reference{
				ID:   strconv.FormatInt(purchase.ID, 10),
				Type: domain.ReferenceTypeTransaction,
			}
			amount := purchase.Credits
			if balance.CurrentBalance < amount {
				amount = balance.CurrentBalance
			}
			if amount == 0 {
				_, err := s.transactionRepo.Save(ctx, &domain.CreditTransaction{
					UserID:        purchase.UserID,
					Type:          domain.TransactionTypeExpiry,
					Credits:       purchase.Credits,
					Status:        domain.TransactionStatusFailed,
					Description:   "no remaining balance to expire",
					ReferenceID:   ref.ID,
					ReferenceType: ref.Type,
				})
				return err
			}

			balance.CurrentBalance -= amount
			balance.TotalUsed += amount
			if _, err := s.balanceRepo.UpdateUserBalance(ctx, purchase.UserID, balance); err != nil {
				return err
			}
			_, err = s.transactionRepo.Save(ctx, &domain.CreditTransaction{
				UserID:        purchase.UserID,
				Type:          domain.TransactionTypeExpiry,
				Credits:       amount,
				Status:        domain.TransactionStatusCompleted,
				Description:   fmt.Sprintf("credits from purchase %d expired", purchase.ID),
				ReferenceID:   ref.ID,
				ReferenceType: ref.Type,
			})
			return err
		})
		if err != nil {
			// The partial unique index on expiry rows means a concurrent
			// sweeper already expired this purchase; its transaction rolled
			// our balance change back with it.
			if pg.IsUniqueViolation(err) {
				continue
			}
			zap.L().Error("failed to expire purchase credits",
				zap.Int64("purchaseID", purchase.ID), zap.Error(err))
		}
	}
	return nil
}

// RunExpiry periodically expires lapsed credits until the context is done.
func (s *Service) RunExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("credit expiry worker stopped")
			return
		case <-ticker.C:
			if err := s.ExpireCredits(ctx, time.Now()); err != nil {
				zap.L().Error("credit expiry sweep failed", zap.Error(err))
			}
		}
	}
}
