package autotopup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tradielink/marketplace/internal/config"
	"github.com/tradielink/marketplace/internal/domain"
	"github.com/tradielink/marketplace/internal/service/ledgerservice"
)

const (
	chargeMaxRetries = 2
	chargeBackoff    = time.Second * 1
)

var processingUsers sync.Map

type SettingsRepo interface {
	GetSettings(ctx context.Context, userID int) (*domain.AutoTopupSettings, error)
	FindTriggered(ctx context.Context, limit int) ([]int, error)
	MarkSuccess(ctx context.Context, userID int) error
	MarkFailure(ctx context.Context, userID, maxFailures int) (*domain.AutoTopupSettings, error)
}

type Ledger interface {
	GetBalance(ctx context.Context, userID int) (*domain.CreditBalance, error)
	Credit(ctx context.Context, userID, amount int, txnType string, ref domain.Reference, description string, expiresAt *time.Time) (*domain.CreditTransaction, error)
}

// Service watches balances after debits and buys credits through the payment
// gateway when a tradie's balance falls to their configured trigger. It runs
// strictly outside the transactions that trip it: a gateway failure can never
// roll back the debit that caused the check.
type Service struct {
	settingsRepo   SettingsRepo
	ledger         Ledger
	client         PaymentClientI
	maxFailures    int
	limit          int
	workerPool     WorkerPoolI
	updateInterval time.Duration

	mu      sync.Mutex
	baseCtx context.Context
}

func New(cfg *config.Config, settingsRepo SettingsRepo, ledger Ledger, client PaymentClientI) *Service {
	return &Service{
		settingsRepo:   settingsRepo,
		ledger:         ledger,
		client:         client,
		maxFailures:    cfg.TopupMaxFailures,
		limit:          1000,
		workerPool:     NewWorkerPool(10),
		updateInterval: cfg.TopupInterval,
		baseCtx:        context.Background(),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	zap.L().Info("Auto-topup service started")
	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Context canceled, stopping auto-topup service")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Notify enqueues a balance check for the user. Called by the application
// flow after its transaction commits; never blocks the caller on the gateway.
func (s *Service) Notify(userID int) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	s.enqueue(ctx, userID)
}

// sweep catches users whose balance dropped below their trigger without a
// notify, e.g. across restarts.
func (s *Service) sweep(ctx context.Context) {
	userIDs, err := s.settingsRepo.FindTriggered(ctx, s.limit)
	if err != nil {
		zap.L().Error("Failed to find triggered auto-topups", zap.Error(err))
		return
	}

	var g errgroup.Group
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			s.enqueue(ctx, userID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		zap.L().Error("Error dispatching auto-topups", zap.Error(err))
	}
}

func (s *Service) enqueue(ctx context.Context, userID int) {
	if _, loaded := processingUsers.LoadOrStore(userID, struct{}{}); loaded {
		return
	}

	err := s.workerPool.AddTask(ctx, func() error {
		defer processingUsers.Delete(userID)
		return s.processUser(ctx, userID)
	})
	if err != nil {
		processingUsers.Delete(userID)
		zap.L().Warn("Failed to enqueue auto-topup check", zap.Int("userID", userID), zap.Error(err))
	}
}

func (s *Service) processUser(ctx context.Context, userID int) error {
	settings, err := s.settingsRepo.GetSettings(ctx, userID)
	if err != nil {
		return err
	}
	if settings == nil || settings.Status != domain.TopupStatusEnabled {
		return nil
	}

	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, ledgerservice.ErrBalanceNotFound) {
			return nil
		}
		return err
	}
	if balance.CurrentBalance > settings.TriggerBalance {
		return nil
	}

	result, err := s.charge(ctx, userID, settings.PackageType)
	if err != nil {
		zap.L().Warn("Auto-topup charge failed",
			zap.Int("userID", userID), zap.Error(err))
		updated, markErr := s.settingsRepo.MarkFailure(ctx, userID, s.maxFailures)
		if markErr != nil {
			return markErr
		}
		if updated.Status == domain.TopupStatusDisabledByFailures {
			zap.L().Warn("Auto-topup disabled after repeated failures",
				zap.Int("userID", userID), zap.Int("failureCount", updated.FailureCount))
		}
		// Gateway failures stay inside the trigger; the debit that tripped
		// the check already committed.
		return nil
	}

	credits := result.Credits
	if credits <= 0 {
		credits = settings.TopupCredits
	}

	ref := domain.Reference{ID: result.TransactionID, Type: domain.ReferenceTypePayment}
	if _, err := s.ledger.Credit(ctx, userID, credits, domain.TransactionTypePurchase,
		ref, "auto-topup purchase", nil); err != nil {
		return err
	}
	if err := s.settingsRepo.MarkSuccess(ctx, userID); err != nil {
		return err
	}

	zap.L().Info("Auto-topup completed",
		zap.Int("userID", userID),
		zap.Int("credits", credits),
		zap.String("paymentTransactionID", result.TransactionID),
	)
	return nil
}

func (s *Service) charge(ctx context.Context, userID int, packageType string) (*ChargeResult, error) {
	var result *ChargeResult
	// One key per logical charge: a retry after a lost response must present
	// the same key or the gateway sees a brand-new charge.
	idempotencyKey := uuid.NewString()
	backoff := retry.WithMaxRetries(chargeMaxRetries, retry.NewExponential(chargeBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		result, err = s.client.ChargeForCredits(ctx, userID, packageType, idempotencyKey)
		if err != nil && !errors.Is(err, ErrPaymentDeclined) {
			// Declines are terminal; transport errors are worth a retry.
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
