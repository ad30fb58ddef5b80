package service

import (
	"github.com/tradielink/marketplace/internal/autotopup"
	"github.com/tradielink/marketplace/internal/config"
	"github.com/tradielink/marketplace/internal/handlers/applications"
	"github.com/tradielink/marketplace/internal/handlers/balance"
	"github.com/tradielink/marketplace/internal/pg"
	"github.com/tradielink/marketplace/internal/repo"
	applicationservice "github.com/tradielink/marketplace/internal/service/applicationservice"
	ledgerservice "github.com/tradielink/marketplace/internal/service/ledgerservice"
	"github.com/tradielink/marketplace/pkg/clients"
)

type Services struct {
	ApplicationService applications.Service
	LedgerService      balance.Service
	Ledger             *ledgerservice.Service
	AutoTopup          *autotopup.Service
}

func New(cfg *config.Config, repo *repo.Repositories, txManager pg.TXManager, client clients.HTTPClientI) *Services {
	ledgerService := ledgerservice.New(repo.BalanceRepo, repo.TransactionRepo, txManager)
	paymentClient := autotopup.NewPaymentClient(cfg.PaymentAddress, client)
	autoTopup := autotopup.New(cfg, repo.TopupRepo, ledgerService, paymentClient)
	applicationService := applicationservice.New(
		repo.ApplicationRepo,
		repo.JobRepo,
		repo.ActivityRepo,
		ledgerService,
		autoTopup,
		txManager,
		cfg.WithdrawalWindow,
	)

	return &Services{
		ApplicationService: applicationService,
		LedgerService:      ledgerService,
		Ledger:             ledgerService,
		AutoTopup:          autoTopup,
	}
}
