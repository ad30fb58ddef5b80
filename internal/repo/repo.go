package repo

import (
	"github.com/tradielink/marketplace/internal/autotopup"
	"github.com/tradielink/marketplace/internal/pg"
	activityrepo "github.com/tradielink/marketplace/internal/repo/activity-repo"
	applicationrepo "github.com/tradielink/marketplace/internal/repo/application-repo"
	balancerepo "github.com/tradielink/marketplace/internal/repo/balance-repo"
	jobrepo "github.com/tradielink/marketplace/internal/repo/job-repo"
	topuprepo "github.com/tradielink/marketplace/internal/repo/topup-repo"
	transactionrepo "github.com/tradielink/marketplace/internal/repo/transaction-repo"
	"github.com/tradielink/marketplace/internal/service/applicationservice"
	"github.com/tradielink/marketplace/internal/service/ledgerservice"
)

type Repositories struct {
	BalanceRepo     ledgerservice.BalanceRepo
	TransactionRepo ledgerservice.TransactionRepo
	ApplicationRepo applicationservice.ApplicationRepo
	JobRepo         applicationservice.JobRepo
	ActivityRepo    applicationservice.ActivityRepo
	TopupRepo       autotopup.SettingsRepo
}

func New(conn pg.Database, txManager pg.TXManager) *Repositories {
	balanceRepo := balancerepo.New(conn, txManager)
	transactionRepo := transactionrepo.New(conn, txManager)
	applicationRepo := applicationrepo.New(conn, txManager)
	jobRepo := jobrepo.New(conn, txManager)
	activityRepo := activityrepo.New(conn, txManager)
	topupRepo := topuprepo.New(conn, txManager)

	return &Repositories{
		BalanceRepo:     balanceRepo,
		TransactionRepo: transactionRepo,
		ApplicationRepo: applicationRepo,
		JobRepo:         jobRepo,
		ActivityRepo:    activityRepo,
		TopupRepo:       topupRepo,
	}
}
