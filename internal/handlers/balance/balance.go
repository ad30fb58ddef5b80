package balance

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tradielink/marketplace/internal/domain"
	"github.com/tradielink/marketplace/internal/dto"
	ledgerservice "github.com/tradielink/marketplace/internal/service/ledgerservice"
	"github.com/tradielink/marketplace/pkg/auth"
	"github.com/tradielink/marketplace/pkg/utils"
)

type Service interface {
	GetBalance(ctx context.Context, userID int) (*domain.CreditBalance, error)
	GetTransactionHistory(ctx context.Context, userID int, filter domain.TransactionFilter) ([]domain.CreditTransaction, error)
	GetUsageHistory(ctx context.Context, userID int, filter domain.TransactionFilter) ([]domain.CreditTransaction, error)
}

type BalanceHandler struct {
	ledgerService Service
}

func New(ledgerService Service) *BalanceHandler {
	return &BalanceHandler{
		ledgerService: ledgerService,
	}
}

// GetBalance godoc
//
//	@Summary		Get current credit balance
//	@Description	Retrieve the authenticated tradie's credit balance and lifetime totals. A tradie who has never bought credits gets a zero balance.
//	@Tags			Balance
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	dto.BalanceResponseDTO	"Current balance"
//	@Failure		401	{object}	utils.Response			"User not authorized"
//	@Failure		500	{object}	utils.Response			"Internal server error"
//	@Router			/api/marketplace/balance [get]
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int)

	balance, err := h.ledgerService.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ledgerservice.ErrBalanceNotFound) {
			utils.RespondWithJSON(w, http.StatusOK, dto.BalanceResponseDTO{})
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.BalanceResponseDTO{
		Current:        balance.CurrentBalance,
		TotalPurchased: balance.TotalPurchased,
		TotalUsed:      balance.TotalUsed,
		TotalRefunded:  balance.TotalRefunded,
		LastPurchaseAt: balance.LastPurchaseAt,
		LastUsageAt:    balance.LastUsageAt,
	})
}

// GetTransactions godoc
//
//	@Summary		Get transaction history
//	@Description	Get the tradie's credit transactions newest first. Supports type, status, date range and paging filters.
//	@Tags			Balance
//	@Security		BearerAuth
//	@Produce		json
//	@Param			type	query		string	false	"Transaction type"
//	@Param			status	query		string	false	"Transaction status"
//	@Param			from	query		string	false	"RFC3339 start of range"
//	@Param			to		query		string	false	"RFC3339 end of range"
//	@Param			limit	query		int		false	"Page size (default 50)"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{array}		dto.TransactionResponseDTO	"Transactions"
//	@Success		204		{object}	utils.Response				"No transactions"
//	@Failure		400		{object}	utils.Response				"Invalid filter"
//	@Failure		401		{object}	utils.Response				"User not authorized"
//	@Failure		500		{object}	utils.Response				"Internal server error"
//	@Router			/api/marketplace/balance/transactions [get]
func (h *BalanceHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int)

	filter, err := parseFilter(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	transactions, err := h.ledgerService.GetTransactionHistory(r.Context(), userID, filter)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}
	respondTransactions(w, transactions)
}

// GetUsage godoc
//
//	@Summary		Get credit usage history
//	@Description	Get only the tradie's usage transactions, i.e. credits spent on job applications, newest first.
//	@Tags			Balance
//	@Security		BearerAuth
//	@Produce		json
//	@Param			from	query		string	false	"RFC3339 start of range"
//	@Param			to		query		string	false	"RFC3339 end of range"
//	@Param			limit	query		int		false	"Page size (default 50)"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{array}		dto.TransactionResponseDTO	"Usage transactions"
//	@Success		204		{object}	utils.Response				"No usage"
//	@Failure		400		{object}	utils.Response				"Invalid filter"
//	@Failure		401		{object}	utils.Response				"User not authorized"
//	@Failure		500		{object}	utils.Response				"Internal server error"
//	@Router			/api/marketplace/balance/usage [get]
func (h *BalanceHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int)

	filter, err := parseFilter(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	transactions, err := h.ledgerService.GetUsageHistory(r.Context(), userID, filter)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch usage history")
		return
	}
	respondTransactions(w, transactions)
}

func parseFilter(r *http.Request) (domain.TransactionFilter, error) {
	q := r.URL.Query()
	filter := domain.TransactionFilter{
		Type:   q.Get("type"),
		Status: q.Get("status"),
	}

	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid from date")
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid to date")
		}
		filter.To = to
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = offset
	}
	return filter, nil
}

func respondTransactions(w http.ResponseWriter, transactions []domain.CreditTransaction) {
	if len(transactions) == 0 {
		utils.RespondWithError(w, http.StatusNoContent, "No transactions found")
		return
	}

	response := make([]dto.TransactionResponseDTO, len(transactions))
	for i, txn := range transactions {
		response[i] = dto.TransactionResponseDTO{
			ID:            txn.ID,
			Type:          txn.Type,
			Credits:       txn.Credits,
			Status:        txn.Status,
			Description:   txn.Description,
			ReferenceID:   txn.ReferenceID,
			ReferenceType: txn.ReferenceType,
			ExpiresAt:     txn.ExpiresAt,
			CreatedAt:     txn.CreatedAt,
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}
