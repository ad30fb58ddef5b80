package dto

import "time"

type CreateApplicationRequestDTO struct {
	JobID            int64  `json:"job_id" example:"42" validate:"required"`
	CustomQuote      int    `json:"custom_quote,omitempty" example:"500"`
	ProposedTimeline string `json:"proposed_timeline,omitempty" example:"2 days"`
}

type ApplicationResponseDTO struct {
	ID               int64     `json:"id" example:"101"`
	JobID            int64     `json:"job_id" example:"42"`
	TradieID         int       `json:"tradie_id" example:"1"`
	CustomQuote      int       `json:"custom_quote,omitempty" example:"500"`
	ProposedTimeline string    `json:"proposed_timeline,omitempty" example:"2 days"`
	Status           string    `json:"status" example:"submitted"`
	CreditsUsed      int       `json:"credits_used" example:"15"`
	AppliedAt        time.Time `json:"applied_at" example:"2024-11-02T09:30:00+10:00"`
	UpdatedAt        time.Time `json:"updated_at" example:"2024-11-02T09:30:00+10:00"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status" example:"selected" validate:"required"`
	Reason string `json:"reason,omitempty" example:"best quote"`
}

type WithdrawRequestDTO struct {
	Reason string `json:"reason,omitempty" example:"no longer available"`
	// RefundCredits defaults to true when omitted.
	RefundCredits *bool `json:"refund_credits,omitempty" example:"true"`
}

type WithdrawResponseDTO struct {
	ID              int64  `json:"id" example:"101"`
	Status          string `json:"status" example:"withdrawn"`
	CreditsRefunded int    `json:"credits_refunded" example:"15"`
}

type ActivityEntryResponseDTO struct {
	ID           int64             `json:"id" example:"7"`
	ActivityType string            `json:"activity_type" example:"APPLICATION_CREATED"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at" example:"2024-11-02T09:30:00+10:00"`
}

type CostResponseDTO struct {
	JobID   int64 `json:"job_id" example:"42"`
	Credits int   `json:"credits" example:"15"`
}
