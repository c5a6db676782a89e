package domain

import (
	"errors"
	"time"

	creditdomain "github.com/flowforge/flowforge/internal/credit/domain"
)

type EventKind string

const (
	EventKindCheckoutCompleted       EventKind = "checkout_completed"
	EventKindSubscriptionUpdated     EventKind = "subscription_updated"
	EventKindSubscriptionDeleted     EventKind = "subscription_deleted"
	EventKindInvoicePaymentSucceeded EventKind = "invoice_payment_succeeded"
	EventKindInvoicePaymentFailed    EventKind = "invoice_payment_failed"
)

type CheckoutMode string

const (
	CheckoutModeSubscription CheckoutMode = "subscription"
	CheckoutModePayment      CheckoutMode = "payment"
)

// BillingEvent is the canonical provider event parsed by adapters.
type BillingEvent struct {
	Provider           string
	EventID            string
	Kind               EventKind
	Mode               CheckoutMode
	UserID             string
	Plan               creditdomain.Plan
	Credits            int64
	CustomerRef        string
	SubscriptionStatus string
	OccurredAt         time.Time
	RawPayload         []byte
}

// ProcessedEvent gates reconciliation side effects: one row per distinct
// provider event id, inserted in the same transaction as the mutation.
type ProcessedEvent struct {
	EventID     string    `json:"event_id" gorm:"primaryKey;type:text"`
	Provider    string    `json:"provider" gorm:"type:text;not null"`
	Outcome     string    `json:"outcome" gorm:"type:text;not null"`
	ProcessedAt time.Time `json:"processed_at" gorm:"not null"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidUser           = errors.New("invalid_user")
	ErrInvalidConfig         = errors.New("invalid_config")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)

// PlanSpec describes a purchasable plan and its monthly credit allowance.
type PlanSpec struct {
	Plan           creditdomain.Plan
	MonthlyCredits int64
	PriceCents     int64
}

var planCatalog = map[creditdomain.Plan]PlanSpec{
	creditdomain.PlanStarter: {Plan: creditdomain.PlanStarter, MonthlyCredits: 100, PriceCents: 900},
	creditdomain.PlanPro:     {Plan: creditdomain.PlanPro, MonthlyCredits: 500, PriceCents: 2100},
}

func PlanSpecFor(plan creditdomain.Plan) (PlanSpec, bool) {
	spec, ok := planCatalog[plan]
	return spec, ok
}
