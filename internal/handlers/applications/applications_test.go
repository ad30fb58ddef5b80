package applications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"

	"github.com/tradielink/marketplace/internal/domain"
	"github.com/tradielink/marketplace/internal/dto"
	applicationservice "github.com/tradielink/marketplace/internal/service/applicationservice"
	ledgerservice "github.com/tradielink/marketplace/internal/service/ledgerservice"
	"github.com/tradielink/marketplace/pkg/auth"
)

func NewMock(t *testing.T) (*ApplicationHandler, *MockService) {
	ctrl := gomock.NewController(t)
	service := NewMockService(ctrl)
	handler := New(service)
	defer ctrl.Finish()
	return handler, service
}

func authedRequest(method, target, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, bytes.NewBufferString(body))
	}
	return r.WithContext(context.WithValue(r.Context(), auth.UserIDKey, 1))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateHandler(t *testing.T) {
	handler, service := NewMock(t)

	now := time.Now().Truncate(time.Second)
	created := &domain.JobApplication{
		ID:               101,
		MarketplaceJobID: 42,
		TradieID:         1,
		CustomQuote:      500,
		ProposedTimeline: "2 days",
		Status:           domain.ApplicationStatusSubmitted,
		CreditsUsed:      15,
		AppliedAt:        now,
		UpdatedAt:        now,
	}

	tests := []struct {
		name         string
		body         string
		prepareMock  func()
		expectedCode int
	}{
		{
			name: "Successful application",
			body: `{"job_id":42,"custom_quote":500,"proposed_timeline":"2 days"}`,
			prepareMock: func() {
				service.EXPECT().
					CreateApplication(gomock.Any(), 1, applicationservice.CreateApplicationData{
						MarketplaceJobID: 42,
						CustomQuote:      500,
						ProposedTimeline: "2 days",
					}).
					Return(created, nil)
			},
			expectedCode: http.StatusCreated,
		},
		{
			name:         "Invalid request body",
			body:         `{"job_id":invalid}`,
			prepareMock:  func() {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "Missing job_id",
			body:         `{"custom_quote":500}`,
			prepareMock:  func() {},
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name: "Job not found",
			body: `{"job_id":999}`,
			prepareMock: func() {
				service.EXPECT().
					CreateApplication(gomock.Any(), 1, gomock.Any()).
					Return(nil, applicationservice.ErrJobNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
		{
			name: "Duplicate application",
			body: `{"job_id":42}`,
			prepareMock: func() {
				service.EXPECT().
					CreateApplication(gomock.Any(), 1, gomock.Any()).
					Return(nil, applicationservice.ErrDuplicateApplication)
			},
			expectedCode: http.StatusConflict,
		},
		{
			name: "Job no longer available",
			body: `{"job_id":42}`,
			prepareMock: func() {
				service.EXPECT().
					CreateApplication(gomock.Any(), 1, gomock.Any()).
					Return(nil, applicationservice.ErrJobUnavailable)
			},
			expectedCode: http.StatusConflict,
		},
		{
			name: "Insufficient credits",
			body: `{"job_id":42}`,
			prepareMock: func() {
				service.EXPECT().
					CreateApplication(gomock.Any(), 1, gomock.Any()).
					Return(nil, ledgerservice.ErrInsufficientCredits)
			},
			expectedCode: http.StatusPaymentRequired,
		},
		{
			name: "Internal server error",
			body: `{"job_id":42}`,
			prepareMock: func() {
				service.EXPECT().
					CreateApplication(gomock.Any(), 1, gomock.Any()).
					Return(nil, errors.New("error"))
			},
			expectedCode: http.StatusInternalServerError,
		},
		{
			name: "Transient store failure",
			body: `{"job_id":42}`,
			prepareMock: func() {
				service.EXPECT().
					CreateApplication(gomock.Any(), 1, gomock.Any()).
					Return(nil, fmt.Errorf("create application: %w", &pgconn.PgError{Code: "40001"}))
			},
			expectedCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			r := authedRequest(http.MethodPost, "/applications", tt.body)
			w := httptest.NewRecorder()
			handler.Create(w, r)
			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode == http.StatusCreated {
				var body dto.ApplicationResponseDTO
				_ = json.NewDecoder(w.Body).Decode(&body)
				assert.Equal(t, int64(101), body.ID)
				assert.Equal(t, 15, body.CreditsUsed)
				assert.Equal(t, domain.ApplicationStatusSubmitted, body.Status)
			}
		})
	}
}

func TestListHandler(t *testing.T) {
	handler, service := NewMock(t)

	t.Run("Returns applications", func(t *testing.T) {
		service.EXPECT().
			ListApplications(gomock.Any(), 1).
			Return([]domain.JobApplication{
				{ID: 102, MarketplaceJobID: 43, TradieID: 1, Status: domain.ApplicationStatusSubmitted},
				{ID: 101, MarketplaceJobID: 42, TradieID: 1, Status: domain.ApplicationStatusWithdrawn},
			}, nil)

		r := authedRequest(http.MethodGet, "/applications", "")
		w := httptest.NewRecorder()
		handler.List(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var body []dto.ApplicationResponseDTO
		_ = json.NewDecoder(w.Body).Decode(&body)
		assert.Len(t, body, 2)
	})

	t.Run("No applications", func(t *testing.T) {
		service.EXPECT().ListApplications(gomock.Any(), 1).Return(nil, nil)

		r := authedRequest(http.MethodGet, "/applications", "")
		w := httptest.NewRecorder()
		handler.List(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestGetHandler(t *testing.T) {
	handler, service := NewMock(t)

	tests := []struct {
		name         string
		id           string
		prepareMock  func()
		expectedCode int
	}{
		{
			name: "Existing application",
			id:   "101",
			prepareMock: func() {
				service.EXPECT().
					GetApplication(gomock.Any(), int64(101)).
					Return(&domain.JobApplication{ID: 101, Status: domain.ApplicationStatusSubmitted}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "Application not found",
			id:   "999",
			prepareMock: func() {
				service.EXPECT().
					GetApplication(gomock.Any(), int64(999)).
					Return(nil, applicationservice.ErrApplicationNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "Invalid ID",
			id:           "abc",
			prepareMock:  func() {},
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			r := withURLParam(authedRequest(http.MethodGet, "/applications/"+tt.id, ""), "id", tt.id)
			w := httptest.NewRecorder()
			handler.Get(w, r)
			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestUpdateStatusHandler(t *testing.T) {
	handler, service := NewMock(t)

	tests := []struct {
		name         string
		body         string
		prepareMock  func()
		expectedCode int
	}{
		{
			name: "Select application",
			body: `{"status":"selected","reason":"best quote"}`,
			prepareMock: func() {
				service.EXPECT().
					UpdateStatus(gomock.Any(), int64(101), domain.ApplicationStatusSelected, "best quote").
					Return(&domain.JobApplication{ID: 101, Status: domain.ApplicationStatusSelected}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:         "Invalid request body",
			body:         `{"status":}`,
			prepareMock:  func() {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "Unknown status",
			body:         `{"status":"finished"}`,
			prepareMock:  func() {},
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name:         "Withdrawn not patchable",
			body:         `{"status":"withdrawn"}`,
			prepareMock:  func() {},
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name: "Invalid transition",
			body: `{"status":"under_review"}`,
			prepareMock: func() {
				service.EXPECT().
					UpdateStatus(gomock.Any(), int64(101), domain.ApplicationStatusUnderReview, "").
					Return(nil, applicationservice.ErrInvalidStatusTransition)
			},
			expectedCode: http.StatusConflict,
		},
		{
			name: "Application not found",
			body: `{"status":"rejected"}`,
			prepareMock: func() {
				service.EXPECT().
					UpdateStatus(gomock.Any(), int64(101), domain.ApplicationStatusRejected, "").
					Return(nil, applicationservice.ErrApplicationNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			r := withURLParam(authedRequest(http.MethodPatch, "/applications/101/status", tt.body), "id", "101")
			w := httptest.NewRecorder()
			handler.UpdateStatus(w, r)
			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestWithdrawHandler(t *testing.T) {
	handler, service := NewMock(t)

	tests := []struct {
		name           string
		body           string
		prepareMock    func()
		expectedCode   int
		expectedRefund int
	}{
		{
			name: "Successful withdrawal with refund",
			body: `{"reason":"no longer available"}`,
			prepareMock: func() {
				service.EXPECT().
					Withdraw(gomock.Any(), int64(101), 1, applicationservice.WithdrawOptions{
						Reason:        "no longer available",
						RefundCredits: true,
					}).
					Return(&domain.JobApplication{
						ID:          101,
						Status:      domain.ApplicationStatusWithdrawn,
						CreditsUsed: 15,
					}, nil)
			},
			expectedCode:   http.StatusOK,
			expectedRefund: 15,
		},
		{
			name: "Withdrawal declining the refund",
			body: `{"reason":"keeping my spot elsewhere","refund_credits":false}`,
			prepareMock: func() {
				service.EXPECT().
					Withdraw(gomock.Any(), int64(101), 1, applicationservice.WithdrawOptions{
						Reason:        "keeping my spot elsewhere",
						RefundCredits: false,
					}).
					Return(&domain.JobApplication{
						ID:          101,
						Status:      domain.ApplicationStatusWithdrawn,
						CreditsUsed: 15,
					}, nil)
			},
			expectedCode:   http.StatusOK,
			expectedRefund: 0,
		},
		{
			name: "Not the owner",
			prepareMock: func() {
				service.EXPECT().
					Withdraw(gomock.Any(), int64(101), 1, gomock.Any()).
					Return(nil, applicationservice.ErrUnauthorized)
			},
			expectedCode: http.StatusForbidden,
		},
		{
			name: "Withdrawal window expired",
			prepareMock: func() {
				service.EXPECT().
					Withdraw(gomock.Any(), int64(101), 1, gomock.Any()).
					Return(nil, applicationservice.ErrWithdrawalNotAllowed)
			},
			expectedCode: http.StatusForbidden,
		},
		{
			name: "Already withdrawn",
			prepareMock: func() {
				service.EXPECT().
					Withdraw(gomock.Any(), int64(101), 1, gomock.Any()).
					Return(nil, applicationservice.ErrInvalidStatusTransition)
			},
			expectedCode: http.StatusConflict,
		},
		{
			name: "Application not found",
			prepareMock: func() {
				service.EXPECT().
					Withdraw(gomock.Any(), int64(101), 1, gomock.Any()).
					Return(nil, applicationservice.ErrApplicationNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			r := withURLParam(authedRequest(http.MethodPost, "/applications/101/withdraw", tt.body), "id", "101")
			w := httptest.NewRecorder()
			handler.Withdraw(w, r)
			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode == http.StatusOK {
				var body dto.WithdrawResponseDTO
				_ = json.NewDecoder(w.Body).Decode(&body)
				assert.Equal(t, tt.expectedRefund, body.CreditsRefunded)
				assert.Equal(t, domain.ApplicationStatusWithdrawn, body.Status)
			}
		})
	}
}

func TestActivityHandler(t *testing.T) {
	handler, service := NewMock(t)

	t.Run("Returns activity entries", func(t *testing.T) {
		service.EXPECT().
			ListActivity(gomock.Any(), int64(101)).
			Return([]domain.ActivityEntry{
				{ID: 1, ApplicationID: 101, ActivityType: domain.ActivityApplicationCreated, Metadata: map[string]string{"credits_used": "15"}},
				{ID: 2, ApplicationID: 101, ActivityType: domain.ActivityApplicationSelected},
			}, nil)

		r := withURLParam(authedRequest(http.MethodGet, "/applications/101/activity", ""), "id", "101")
		w := httptest.NewRecorder()
		handler.Activity(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var body []dto.ActivityEntryResponseDTO
		_ = json.NewDecoder(w.Body).Decode(&body)
		assert.Len(t, body, 2)
		assert.Equal(t, "15", body[0].Metadata["credits_used"])
	})

	t.Run("No activity", func(t *testing.T) {
		service.EXPECT().ListActivity(gomock.Any(), int64(101)).Return(nil, nil)

		r := withURLParam(authedRequest(http.MethodGet, "/applications/101/activity", ""), "id", "101")
		w := httptest.NewRecorder()
		handler.Activity(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestEstimateCostHandler(t *testing.T) {
	handler, service := NewMock(t)

	tests := []struct {
		name         string
		id           string
		prepareMock  func()
		expectedCode int
		expectedBody dto.CostResponseDTO
	}{
		{
			name: "Urgent electrical job costs 15",
			id:   "42",
			prepareMock: func() {
				service.EXPECT().EstimateCost(gomock.Any(), int64(42)).Return(15, nil)
			},
			expectedCode: http.StatusOK,
			expectedBody: dto.CostResponseDTO{JobID: 42, Credits: 15},
		},
		{
			name: "Job not found",
			id:   "999",
			prepareMock: func() {
				service.EXPECT().EstimateCost(gomock.Any(), int64(999)).Return(0, applicationservice.ErrJobNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "Invalid job ID",
			id:           "abc",
			prepareMock:  func() {},
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			r := withURLParam(authedRequest(http.MethodGet, "/jobs/"+tt.id+"/cost", ""), "id", tt.id)
			w := httptest.NewRecorder()
			handler.EstimateCost(w, r)
			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode == http.StatusOK {
				var body dto.CostResponseDTO
				_ = json.NewDecoder(w.Body).Decode(&body)
				assert.Equal(t, tt.expectedBody, body)
			}
		})
	}
}
