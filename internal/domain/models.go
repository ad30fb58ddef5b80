package domain

import "time"

// Credit transaction types. The sign of a transaction is implied by its
// type: usage and expiry reduce the balance, everything else increases it.
const (
	TransactionTypePurchase     string = "purchase"
	TransactionTypeUsage        string = "usage"
	TransactionTypeRefund       string = "refund"
	TransactionTypeBonus        string = "bonus"
	TransactionTypeTrial        string = "trial"
	TransactionTypeSubscription string = "subscription"
	TransactionTypeExpiry       string = "expiry"
)

const (
	TransactionStatusPending   string = "pending"
	TransactionStatusCompleted string = "completed"
	TransactionStatusFailed    string = "failed"
)

const (
	ApplicationStatusSubmitted   string = "submitted"
	ApplicationStatusUnderReview string = "under_review"
	ApplicationStatusSelected    string = "selected"
	ApplicationStatusRejected    string = "rejected"
	ApplicationStatusWithdrawn   string = "withdrawn"
)

const (
	JobStatusAvailable string = "available"
	JobStatusAssigned  string = "assigned"
	JobStatusExpired   string = "expired"
)

const (
	ActivityApplicationCreated   string = "APPLICATION_CREATED"
	ActivityApplicationSelected  string = "APPLICATION_SELECTED"
	ActivityApplicationRejected  string = "APPLICATION_REJECTED"
	ActivityApplicationWithdrawn string = "APPLICATION_WITHDRAWN"
	ActivityStatusChanged        string = "STATUS_CHANGED"
)

const (
	TopupStatusEnabled            string = "enabled"
	TopupStatusDisabled           string = "disabled"
	TopupStatusDisabledByFailures string = "disabled_after_failures"
)

const (
	ReferenceTypeApplication string = "application"
	ReferenceTypeJob         string = "job"
	ReferenceTypePayment     string = "payment"
	ReferenceTypeTransaction string = "credit_transaction"
)

type CreditBalance struct {
	ID             int        `db:"id"`
	UserID         int        `db:"user_id"`
	CurrentBalance int        `db:"current_balance"`
	TotalPurchased int        `db:"total_purchased"`
	TotalUsed      int        `db:"total_used"`
	TotalRefunded  int        `db:"total_refunded"`
	LastPurchaseAt *time.Time `db:"last_purchase_at"`
	LastUsageAt    *time.Time `db:"last_usage_at"`
}

type CreditTransaction struct {
	ID            int64      `db:"id"`
	UserID        int        `db:"user_id"`
	Type          string     `db:"transaction_type"`
	Credits       int        `db:"credits"`
	Status        string     `db:"status"`
	Description   string     `db:"description"`
	ReferenceID   string     `db:"reference_id"`
	ReferenceType string     `db:"reference_type"`
	ExpiresAt     *time.Time `db:"expires_at"`
	CreatedAt     time.Time  `db:"created_at"`
}

type JobApplication struct {
	ID               int64     `db:"id"`
	MarketplaceJobID int64     `db:"marketplace_job_id"`
	TradieID         int       `db:"tradie_id"`
	CustomQuote      int       `db:"custom_quote"`
	ProposedTimeline string    `db:"proposed_timeline"`
	Status           string    `db:"status"`
	CreditsUsed      int       `db:"credits_used"`
	AppliedAt        time.Time `db:"applied_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

type MarketplaceJob struct {
	ID               int64      `db:"id"`
	Title            string     `db:"title"`
	JobType          string     `db:"job_type"`
	UrgencyLevel     string     `db:"urgency_level"`
	Status           string     `db:"status"`
	ApplicationCount int        `db:"application_count"`
	ExpiresAt        *time.Time `db:"expires_at"`
	CreatedAt        time.Time  `db:"created_at"`
}

type ActivityEntry struct {
	ID            int64             `db:"id"`
	ApplicationID int64             `db:"application_id"`
	ActivityType  string            `db:"activity_type"`
	Metadata      map[string]string `db:"metadata"`
	CreatedAt     time.Time         `db:"created_at"`
}

type AutoTopupSettings struct {
	UserID         int        `db:"user_id"`
	Status         string     `db:"status"`
	TriggerBalance int        `db:"trigger_balance"`
	TopupCredits   int        `db:"topup_credits"`
	PackageType    string     `db:"package_type"`
	FailureCount   int        `db:"failure_count"`
	LastTopupAt    *time.Time `db:"last_topup_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// Reference links a credit transaction to the entity that caused it.
type Reference struct {
	ID   string
	Type string
}

// TransactionFilter narrows transaction history reads. Zero values mean "no
// filter".
type TransactionFilter struct {
	Type   string
	Status string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// TerminalApplicationStatus reports whether a status admits no further transitions.
func TerminalApplicationStatus(status string) bool {
	switch status {
	case ApplicationStatusSelected, ApplicationStatusRejected, ApplicationStatusWithdrawn:
		return true
	}
	return false
}
