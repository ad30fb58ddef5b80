package applications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tradielink/marketplace/internal/domain"
	"github.com/tradielink/marketplace/internal/dto"
	"github.com/tradielink/marketplace/internal/pg"
	applicationservice "github.com/tradielink/marketplace/internal/service/applicationservice"
	ledgerservice "github.com/tradielink/marketplace/internal/service/ledgerservice"
	"github.com/tradielink/marketplace/pkg/auth"
	"github.com/tradielink/marketplace/pkg/utils"
)

type Service interface {
	CreateApplication(ctx context.Context, tradieID int, data applicationservice.CreateApplicationData) (*domain.JobApplication, error)
	GetApplication(ctx context.Context, id int64) (*domain.JobApplication, error)
	ListApplications(ctx context.Context, tradieID int) ([]domain.JobApplication, error)
	UpdateStatus(ctx context.Context, id int64, newStatus, reason string) (*domain.JobApplication, error)
	Withdraw(ctx context.Context, id int64, tradieID int, opts applicationservice.WithdrawOptions) (*domain.JobApplication, error)
	ListActivity(ctx context.Context, applicationID int64) ([]domain.ActivityEntry, error)
	EstimateCost(ctx context.Context, jobID int64) (int, error)
}

type ApplicationHandler struct {
	applicationService Service
}

func New(applicationService Service) *ApplicationHandler {
	return &ApplicationHandler{
		applicationService: applicationService,
	}
}

var patchableStatuses = map[string]bool{
	domain.ApplicationStatusUnderReview: true,
	domain.ApplicationStatusSelected:    true,
	domain.ApplicationStatusRejected:    true,
}

// Create godoc
//
//	@Summary		Apply to a marketplace job
//	@Description	Submit an application for an open job. Credits for the application fee are debited atomically with the application itself.
//	@Tags			Applications
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.CreateApplicationRequestDTO	true	"Application payload"
//	@Success		201		{object}	dto.ApplicationResponseDTO		"Created application"
//	@Failure		400		{object}	utils.Response					"Invalid request body"
//	@Failure		401		{object}	utils.Response					"User not authorized"
//	@Failure		402		{object}	utils.Response					"Insufficient credits"
//	@Failure		404		{object}	utils.Response					"Job not found"
//	@Failure		409		{object}	utils.Response					"Duplicate application or job unavailable"
//	@Failure		500		{object}	utils.Response					"Internal server error"
//	@Failure		503		{object}	utils.Response					"Temporary failure"
//	@Router			/api/marketplace/applications [post]
func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	tradieID := r.Context().Value(auth.UserIDKey).(int)

	var req dto.CreateApplicationRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.JobID <= 0 {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "job_id is required")
		return
	}

	app, err := h.applicationService.CreateApplication(r.Context(), tradieID, applicationservice.CreateApplicationData{
		MarketplaceJobID: req.JobID,
		CustomQuote:      req.CustomQuote,
		ProposedTimeline: req.ProposedTimeline,
	})
	if err != nil {
		switch {
		case errors.Is(err, applicationservice.ErrJobNotFound):
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, applicationservice.ErrDuplicateApplication):
			utils.RespondWithError(w, http.StatusConflict, err.Error())
		case errors.Is(err, applicationservice.ErrJobUnavailable):
			utils.RespondWithError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ledgerservice.ErrInsufficientCredits):
			utils.RespondWithError(w, http.StatusPaymentRequired, err.Error())
		case pg.IsRetryable(err):
			utils.RespondWithError(w, http.StatusServiceUnavailable, "Temporary failure, retry the request")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, toApplicationDTO(app))
}

// List godoc
//
//	@Summary		List own applications
//	@Description	Get every application the authenticated tradie has submitted, newest first.
//	@Tags			Applications
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{array}		dto.ApplicationResponseDTO	"Applications"
//	@Success		204	{object}	utils.Response				"No applications"
//	@Failure		401	{object}	utils.Response				"User not authorized"
//	@Failure		500	{object}	utils.Response				"Internal server error"
//	@Router			/api/marketplace/applications [get]
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	tradieID := r.Context().Value(auth.UserIDKey).(int)

	apps, err := h.applicationService.ListApplications(r.Context(), tradieID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch applications")
		return
	}
	if len(apps) == 0 {
		utils.RespondWithError(w, http.StatusNoContent, "No applications found")
		return
	}

	response := make([]dto.ApplicationResponseDTO, len(apps))
	for i, app := range apps {
		response[i] = toApplicationDTO(&app)
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

// Get godoc
//
//	@Summary		Get an application
//	@Description	Retrieve a single job application by ID.
//	@Tags			Applications
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		int							true	"Application ID"
//	@Success		200	{object}	dto.ApplicationResponseDTO	"Application"
//	@Failure		400	{object}	utils.Response				"Invalid application ID"
//	@Failure		401	{object}	utils.Response				"User not authorized"
//	@Failure		404	{object}	utils.Response				"Application not found"
//	@Failure		500	{object}	utils.Response				"Internal server error"
//	@Router			/api/marketplace/applications/{id} [get]
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	app, err := h.applicationService.GetApplication(r.Context(), id)
	if err != nil {
		if errors.Is(err, applicationservice.ErrApplicationNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toApplicationDTO(app))
}

// UpdateStatus godoc
//
//	@Summary		Change application status
//	@Description	Move an application to under_review, selected or rejected. Selecting an application rejects every competing open application on the job and assigns the job.
//	@Tags			Applications
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int							true	"Application ID"
//	@Param			request	body		dto.UpdateStatusRequestDTO	true	"New status"
//	@Success		200		{object}	dto.ApplicationResponseDTO	"Updated application"
//	@Failure		400		{object}	utils.Response				"Invalid request"
//	@Failure		401		{object}	utils.Response				"User not authorized"
//	@Failure		404		{object}	utils.Response				"Application not found"
//	@Failure		409		{object}	utils.Response				"Invalid status transition"
//	@Failure		422		{object}	utils.Response				"Unknown status"
//	@Failure		500		{object}	utils.Response				"Internal server error"
//	@Failure		503		{object}	utils.Response				"Temporary failure"
//	@Router			/api/marketplace/applications/{id}/status [patch]
func (h *ApplicationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req dto.UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !patchableStatuses[req.Status] {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "unknown status")
		return
	}

	app, err := h.applicationService.UpdateStatus(r.Context(), id, req.Status, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, applicationservice.ErrApplicationNotFound):
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, applicationservice.ErrInvalidStatusTransition):
			utils.RespondWithError(w, http.StatusConflict, err.Error())
		case pg.IsRetryable(err):
			utils.RespondWithError(w, http.StatusServiceUnavailable, "Temporary failure, retry the request")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toApplicationDTO(app))
}

// Withdraw godoc
//
//	@Summary		Withdraw an application
//	@Description	Withdraw the tradie's own application. Credits are refunded when the withdrawal happens inside the refund window.
//	@Tags			Applications
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int						true	"Application ID"
//	@Param			request	body		dto.WithdrawRequestDTO	false	"Withdrawal reason"
//	@Success		200		{object}	dto.WithdrawResponseDTO	"Withdrawn application"
//	@Failure		400		{object}	utils.Response			"Invalid application ID"
//	@Failure		401		{object}	utils.Response			"User not authorized"
//	@Failure		403		{object}	utils.Response			"Not the owner or window expired"
//	@Failure		404		{object}	utils.Response			"Application not found"
//	@Failure		409		{object}	utils.Response			"Application already terminal"
//	@Failure		500		{object}	utils.Response			"Internal server error"
//	@Failure		503		{object}	utils.Response			"Temporary failure"
//	@Router			/api/marketplace/applications/{id}/withdraw [post]
func (h *ApplicationHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	tradieID := r.Context().Value(auth.UserIDKey).(int)

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req dto.WithdrawRequestDTO
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	refund := req.RefundCredits == nil || *req.RefundCredits

	app, err := h.applicationService.Withdraw(r.Context(), id, tradieID, applicationservice.WithdrawOptions{
		Reason:        req.Reason,
		RefundCredits: refund,
	})
	if err != nil {
		switch {
		case errors.Is(err, applicationservice.ErrApplicationNotFound):
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, applicationservice.ErrUnauthorized):
			utils.RespondWithError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, applicationservice.ErrWithdrawalNotAllowed):
			utils.RespondWithError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, applicationservice.ErrInvalidStatusTransition):
			utils.RespondWithError(w, http.StatusConflict, err.Error())
		case pg.IsRetryable(err):
			utils.RespondWithError(w, http.StatusServiceUnavailable, "Temporary failure, retry the request")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	creditsRefunded := 0
	if refund {
		creditsRefunded = app.CreditsUsed
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.WithdrawResponseDTO{
		ID:              app.ID,
		Status:          app.Status,
		CreditsRefunded: creditsRefunded,
	})
}

// Activity godoc
//
//	@Summary		Get application activity log
//	@Description	Get the audit trail of an application, oldest entry first.
//	@Tags			Applications
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		int								true	"Application ID"
//	@Success		200	{array}		dto.ActivityEntryResponseDTO	"Activity entries"
//	@Success		204	{object}	utils.Response					"No activity"
//	@Failure		400	{object}	utils.Response					"Invalid application ID"
//	@Failure		401	{object}	utils.Response					"User not authorized"
//	@Failure		500	{object}	utils.Response					"Internal server error"
//	@Router			/api/marketplace/applications/{id}/activity [get]
func (h *ApplicationHandler) Activity(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	entries, err := h.applicationService.ListActivity(r.Context(), id)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch activity")
		return
	}
	if len(entries) == 0 {
		utils.RespondWithError(w, http.StatusNoContent, "No activity found")
		return
	}

	response := make([]dto.ActivityEntryResponseDTO, len(entries))
	for i, entry := range entries {
		response[i] = dto.ActivityEntryResponseDTO{
			ID:           entry.ID,
			ActivityType: entry.ActivityType,
			Metadata:     entry.Metadata,
			CreatedAt:    entry.CreatedAt,
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

// EstimateCost godoc
//
//	@Summary		Quote the application fee for a job
//	@Description	Calculate how many credits an application to the job would cost, without applying.
//	@Tags			Applications
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		int						true	"Job ID"
//	@Success		200	{object}	dto.CostResponseDTO		"Application fee in credits"
//	@Failure		400	{object}	utils.Response			"Invalid job ID"
//	@Failure		401	{object}	utils.Response			"User not authorized"
//	@Failure		404	{object}	utils.Response			"Job not found"
//	@Failure		500	{object}	utils.Response			"Internal server error"
//	@Router			/api/marketplace/jobs/{id}/cost [get]
func (h *ApplicationHandler) EstimateCost(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	credits, err := h.applicationService.EstimateCost(r.Context(), id)
	if err != nil {
		if errors.Is(err, applicationservice.ErrJobNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.CostResponseDTO{JobID: id, Credits: credits})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func toApplicationDTO(app *domain.JobApplication) dto.ApplicationResponseDTO {
	return dto.ApplicationResponseDTO{
		ID:               app.ID,
		JobID:            app.MarketplaceJobID,
		TradieID:         app.TradieID,
		CustomQuote:      app.CustomQuote,
		ProposedTimeline: app.ProposedTimeline,
		Status:           app.Status,
		CreditsUsed:      app.CreditsUsed,
		AppliedAt:        app.AppliedAt,
		UpdatedAt:        app.UpdatedAt,
	}
}
