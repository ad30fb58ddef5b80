package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/tradielink/marketplace/docs"
	applicationhandlers "github.com/tradielink/marketplace/internal/handlers/applications"
	balancehandlers "github.com/tradielink/marketplace/internal/handlers/balance"
	"github.com/tradielink/marketplace/internal/service"
	"github.com/tradielink/marketplace/pkg/auth"
)

type ApplicationHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	UpdateStatus(w http.ResponseWriter, r *http.Request)
	Withdraw(w http.ResponseWriter, r *http.Request)
	Activity(w http.ResponseWriter, r *http.Request)
	EstimateCost(w http.ResponseWriter, r *http.Request)
}

type BalanceHandler interface {
	GetBalance(w http.ResponseWriter, r *http.Request)
	GetTransactions(w http.ResponseWriter, r *http.Request)
	GetUsage(w http.ResponseWriter, r *http.Request)
}

type Handlers struct {
	ApplicationHandler ApplicationHandler
	BalanceHandler     BalanceHandler
}

func New(s *service.Services) *Handlers {
	return &Handlers{
		ApplicationHandler: applicationhandlers.New(s.ApplicationService),
		BalanceHandler:     balancehandlers.New(s.LedgerService),
	}
}

func (h *Handlers) InitRoutes(r chi.Router) chi.Router {
	r.Use(
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("doc.json"),
	))
	r.Route("/api/marketplace", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.AuthMiddleware)
			r.Route("/applications", func(r chi.Router) {
				r.Post("/", h.ApplicationHandler.Create)
				r.Get("/", h.ApplicationHandler.List)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.ApplicationHandler.Get)
					r.Patch("/status", h.ApplicationHandler.UpdateStatus)
					r.Post("/withdraw", h.ApplicationHandler.Withdraw)
					r.Get("/activity", h.ApplicationHandler.Activity)
				})
			})
			r.Route("/balance", func(r chi.Router) {
				r.Get("/", h.BalanceHandler.GetBalance)
				r.Get("/transactions", h.BalanceHandler.GetTransactions)
				r.Get("/usage", h.BalanceHandler.GetUsage)
			})
			r.Get("/jobs/{id}/cost", h.ApplicationHandler.EstimateCost)
		})
	})

	return r
}
