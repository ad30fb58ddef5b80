package dto

import "time"

type BalanceResponseDTO struct {
	Current        int        `json:"current" example:"85"`
	TotalPurchased int        `json:"total_purchased" example:"100"`
	TotalUsed      int        `json:"total_used" example:"30"`
	TotalRefunded  int        `json:"total_refunded" example:"15"`
	LastPurchaseAt *time.Time `json:"last_purchase_at,omitempty" example:"2024-11-02T09:30:00+10:00"`
	LastUsageAt    *time.Time `json:"last_usage_at,omitempty" example:"2024-11-02T09:30:00+10:00"`
}

type TransactionResponseDTO struct {
	ID            int64      `json:"id" example:"9001"`
	Type          string     `json:"type" example:"usage"`
	Credits       int        `json:"credits" example:"15"`
	Status        string     `json:"status" example:"completed"`
	Description   string     `json:"description,omitempty" example:"application to job 42"`
	ReferenceID   string     `json:"reference_id,omitempty" example:"101"`
	ReferenceType string     `json:"reference_type,omitempty" example:"job_application"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty" example:"2025-11-02T09:30:00+10:00"`
	CreatedAt     time.Time  `json:"created_at" example:"2024-11-02T09:30:00+10:00"`
}
