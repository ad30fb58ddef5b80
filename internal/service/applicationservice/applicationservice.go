package applicationservice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tradielink/marketplace/internal/domain"
	"github.com/tradielink/marketplace/internal/pg"
	"github.com/tradielink/marketplace/internal/pricing"
	"go.uber.org/zap"
)

type ApplicationRepo interface {
	FindByID(ctx context.Context, id int64) (*domain.JobApplication, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*domain.JobApplication, error)
	FindActive(ctx context.Context, jobID int64, tradieID int) (*domain.JobApplication, error)
	FindByTradie(ctx context.Context, tradieID int) ([]domain.JobApplication, error)
	Save(ctx context.Context, app *domain.JobApplication) error
	UpdateStatus(ctx context.Context, id int64, status string) (*domain.JobApplication, error)
	RejectOpenByJob(ctx context.Context, jobID, exceptID int64) (int64, error)
}

type JobRepo interface {
	FindByID(ctx context.Context, id int64) (*domain.MarketplaceJob, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*domain.MarketplaceJob, error)
	IncrementApplicationCount(ctx context.Context, id int64) error
	SetStatus(ctx context.Context, id int64, status string) error
}

type ActivityRepo interface {
	Append(ctx context.Context, entry *domain.ActivityEntry) error
	ListByApplication(ctx context.Context, applicationID int64) ([]domain.ActivityEntry, error)
}

type Ledger interface {
	Debit(ctx context.Context, userID, amount int, ref domain.Reference, description string) (*domain.CreditTransaction, error)
	Credit(ctx context.Context, userID, amount int, txnType string, ref domain.Reference, description string, expiresAt *time.Time) (*domain.CreditTransaction, error)
}

// TopupNotifier is poked after a debit commits so the auto-topup trigger can
// re-check the tradie's balance outside the transaction.
type TopupNotifier interface {
	Notify(userID int)
}

type Service struct {
	applicationRepo  ApplicationRepo
	jobRepo          JobRepo
	activityRepo     ActivityRepo
	ledger           Ledger
	notifier         TopupNotifier
	txManager        pg.TXManager
	withdrawalWindow time.Duration
}

func New(
	applicationRepo ApplicationRepo,
	jobRepo JobRepo,
	activityRepo ActivityRepo,
	ledger Ledger,
	notifier TopupNotifier,
	txManager pg.TXManager,
	withdrawalWindow time.Duration,
) *Service {
	return &Service{
		applicationRepo:  applicationRepo,
		jobRepo:          jobRepo,
		activityRepo:     activityRepo,
		ledger:           ledger,
		notifier:         notifier,
		txManager:        txManager,
		withdrawalWindow: withdrawalWindow,
	}
}

var (
	ErrDuplicateApplication    = errors.New("active application already exists for this job")
	ErrJobNotFound             = errors.New("marketplace job not found")
	ErrJobUnavailable          = errors.New("marketplace job is not accepting applications")
	ErrApplicationNotFound     = errors.New("job application not found")
	ErrInvalidStatusTransition = errors.New("invalid application status transition")
	ErrWithdrawalNotAllowed    = errors.New("application can no longer be withdrawn")
	ErrUnauthorized            = errors.New("application belongs to another tradie")
)

var allowedTransitions = map[string][]string{
	domain.ApplicationStatusSubmitted: {
		domain.ApplicationStatusUnderReview,
		domain.ApplicationStatusSelected,
		domain.ApplicationStatusRejected,
		domain.ApplicationStatusWithdrawn,
	},
	domain.ApplicationStatusUnderReview: {
		domain.ApplicationStatusSelected,
		domain.ApplicationStatusRejected,
	},
}

func canTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type CreateApplicationData struct {
	MarketplaceJobID int64
	CustomQuote      int
	ProposedTimeline string
}

type WithdrawOptions struct {
	Reason        string
	RefundCredits bool
}

// CreateApplication runs the whole application flow in one transaction:
// duplicate check, job availability, cost, application row, credit debit,
// job counter and audit entry. A failure at any step rolls everything back,
// so the tradie is never charged for an application that was not created.
func (s *Service) CreateApplication(ctx context.Context, tradieID int, data CreateApplicationData) (*domain.JobApplication, error) {
	var app *domain.JobApplication
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		// Early exit; the partial unique index on job_applications is what
		// actually wins the concurrent-submit race.
		existing, err := s.applicationRepo.FindActive(ctx, data.MarketplaceJobID, tradieID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateApplication
		}

		job, err := s.jobRepo.FindByIDForUpdate(ctx, data.MarketplaceJobID)
		if err != nil {
			return err
		}
		if job == nil {
			return ErrJobNotFound
		}
		if job.Status != domain.JobStatusAvailable {
			return ErrJobUnavailable
		}
		if job.ExpiresAt != nil && job.ExpiresAt.Before(time.Now()) {
			return ErrJobUnavailable
		}

		creditCost := pricing.Cost(job.JobType, job.UrgencyLevel)

		app = &domain.JobApplication{
			MarketplaceJobID: data.MarketplaceJobID,
			TradieID:         tradieID,
			CustomQuote:      data.CustomQuote,
			ProposedTimeline: data.ProposedTimeline,
			Status:           domain.ApplicationStatusSubmitted,
			CreditsUsed:      creditCost,
		}
		if err := s.applicationRepo.Save(ctx, app); err != nil {
			if pg.IsUniqueViolation(err) {
				return ErrDuplicateApplication
			}
			return err
		}

		ref := domain.Reference{
			ID:   strconv.FormatInt(app.ID, 10),
			Type: domain.ReferenceTypeApplication,
		}
		if _, err := s.ledger.Debit(ctx, tradieID, creditCost, ref,
			fmt.Sprintf("application to job %d", job.ID)); err != nil {
			return err
		}

		if err := s.jobRepo.IncrementApplicationCount(ctx, job.ID); err != nil {
			return err
		}

		return s.activityRepo.Append(ctx, &domain.ActivityEntry{
			ApplicationID: app.ID,
			ActivityType:  domain.ActivityApplicationCreated,
			Metadata: map[string]string{
				"job_id":       strconv.FormatInt(job.ID, 10),
				"credits_used": strconv.Itoa(creditCost),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	// Outside the transaction: the payment gateway must never hold a
	// database transaction open.
	if s.notifier != nil {
		s.notifier.Notify(tradieID)
	}

	zap.L().Info("application created",
		zap.Int64("applicationID", app.ID),
		zap.Int64("jobID", app.MarketplaceJobID),
		zap.Int("tradieID", tradieID),
		zap.Int("creditsUsed", app.CreditsUsed),
	)
	return app, nil
}

// UpdateStatus moves an application through its state machine. Selecting an
// application also rejects every open competitor and assigns the job, all in
// the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, id int64, newStatus, reason string) (*domain.JobApplication, error) {
	var updated *domain.JobApplication
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		app, err := s.applicationRepo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if app == nil {
			return ErrApplicationNotFound
		}
		if !canTransition(app.Status, newStatus) {
			return ErrInvalidStatusTransition
		}

		updated, err = s.applicationRepo.UpdateStatus(ctx, id, newStatus)
		if err != nil {
			return err
		}

		if newStatus == domain.ApplicationStatusSelected {
			return s.cascadeSelection(ctx, updated, reason)
		}

		return s.activityRepo.Append(ctx, &domain.ActivityEntry{
			ApplicationID: id,
			ActivityType:  domain.ActivityStatusChanged,
			Metadata: map[string]string{
				"from":   app.Status,
				"to":     newStatus,
				"reason": reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// cascadeSelection rejects every other open application on the job and marks
// the job assigned. Rejected competitors keep their spent credits: the charge
// buys the right to apply, not a guarantee of selection.
func (s *Service) cascadeSelection(ctx context.Context, selected *domain.JobApplication, reason string) error {
	rejected, err := s.applicationRepo.RejectOpenByJob(ctx, selected.MarketplaceJobID, selected.ID)
	if err != nil {
		return err
	}
	if err := s.jobRepo.SetStatus(ctx, selected.MarketplaceJobID, domain.JobStatusAssigned); err != nil {
		return err
	}

	zap.L().Info("application selected",
		zap.Int64("applicationID", selected.ID),
		zap.Int64("jobID", selected.MarketplaceJobID),
		zap.Int64("competitorsRejected", rejected),
	)
	return s.activityRepo.Append(ctx, &domain.ActivityEntry{
		ApplicationID: selected.ID,
		ActivityType:  domain.ActivityApplicationSelected,
		Metadata: map[string]string{
			"competitors_rejected": strconv.FormatInt(rejected, 10),
			"reason":               reason,
		},
	})
}

// Withdraw moves the tradie's own submitted application to withdrawn within
// the withdrawal window, refunding the original charge at most once.
func (s *Service) Withdraw(ctx context.Context, id int64, tradieID int, opts WithdrawOptions) (*domain.JobApplication, error) {
	var updated *domain.JobApplication
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		app, err := s.applicationRepo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if app == nil {
			return ErrApplicationNotFound
		}
		if app.TradieID != tradieID {
			return ErrUnauthorized
		}
		// A second withdrawal lands here: withdrawn is terminal.
		if !canTransition(app.Status, domain.ApplicationStatusWithdrawn) {
			return ErrInvalidStatusTransition
		}
		if time.Since(app.AppliedAt) > s.withdrawalWindow {
			return ErrWithdrawalNotAllowed
		}

		updated, err = s.applicationRepo.UpdateStatus(ctx, id, domain.ApplicationStatusWithdrawn)
		if err != nil {
			return err
		}

		refunded := 0
		if opts.RefundCredits && app.CreditsUsed > 0 {
			ref := domain.Reference{
				ID:   strconv.FormatInt(app.ID, 10),
				Type: domain.ReferenceTypeApplication,
			}
			if _, err := s.ledger.Credit(ctx, tradieID, app.CreditsUsed, domain.TransactionTypeRefund,
				ref, fmt.Sprintf("refund for withdrawn application %d", app.ID), nil); err != nil {
				return err
			}
			refunded = app.CreditsUsed
		}

		return s.activityRepo.Append(ctx, &domain.ActivityEntry{
			ApplicationID: id,
			ActivityType:  domain.ActivityApplicationWithdrawn,
			Metadata: map[string]string{
				"reason":           opts.Reason,
				"credits_refunded": strconv.Itoa(refunded),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) GetApplication(ctx context.Context, id int64) (*domain.JobApplication, error) {
	app, err := s.applicationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, ErrApplicationNotFound
	}
	return app, nil
}

func (s *Service) ListApplications(ctx context.Context, tradieID int) ([]domain.JobApplication, error) {
	apps, err := s.applicationRepo.FindByTradie(ctx, tradieID)
	if err != nil {
		zap.L().Error("failed to list applications", zap.Error(err))
		return nil, err
	}
	return apps, nil
}

func (s *Service) ListActivity(ctx context.Context, applicationID int64) ([]domain.ActivityEntry, error) {
	return s.activityRepo.ListByApplication(ctx, applicationID)
}

// EstimateCost is the quote-time twin of the debit-time cost computation.
// Both go through pricing.Cost with the job's own type and urgency, so the
// displayed estimate always matches the eventual charge.
func (s *Service) EstimateCost(ctx context.Context, jobID int64) (int, error) {
	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if job == nil {
		return 0, ErrJobNotFound
	}
	return pricing.Cost(job.JobType, job.UrgencyLevel), nil
}
