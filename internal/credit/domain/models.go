package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Plan string

const (
	PlanTrial   Plan = "trial"
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
	PlanPayg    Plan = "payg"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanTrial, PlanStarter, PlanPro, PlanPayg:
		return true
	default:
		return false
	}
}

// Subscription reports whether the plan renews through a payment provider
// subscription. Pay-as-you-go purchases are one-time grants and never count.
func (p Plan) Subscription() bool {
	switch p {
	case PlanStarter, PlanPro:
		return true
	default:
		return false
	}
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
)

type EntitlementStatus string

const (
	StatusActive    EntitlementStatus = "active"
	StatusGrace     EntitlementStatus = "grace"
	StatusExhausted EntitlementStatus = "exhausted"
	StatusExpired   EntitlementStatus = "expired"
)

// AllowsSpend reports whether a generation may proceed in this status.
func (s EntitlementStatus) AllowsSpend() bool {
	return s == StatusActive || s == StatusGrace
}

type HistoryKind string

const (
	KindUsage      HistoryKind = "usage"
	KindPurchase   HistoryKind = "purchase"
	KindRefund     HistoryKind = "refund"
	KindExpiration HistoryKind = "expiration"
	KindAdjustment HistoryKind = "adjustment"
)

// Entitlement is the authoritative per-user credit state. Mutated only
// through the ledger service operations.
type Entitlement struct {
	UserID             string             `json:"user_id" gorm:"primaryKey;type:text"`
	Plan               Plan               `json:"plan" gorm:"type:text;not null"`
	Credits            int64              `json:"credits" gorm:"not null"`
	TrialEndsAt        time.Time          `json:"trial_ends_at" gorm:"not null"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" gorm:"type:text;not null"`
	PaymentCustomerRef string             `json:"payment_customer_ref" gorm:"type:text"`
	CreatedAt          time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"not null"`
}

func (Entitlement) TableName() string { return "entitlements" }

// CreditHistoryEntry is an append-only balance change fact.
// Invariant: CreditsAfter = CreditsBefore + Amount.
type CreditHistoryEntry struct {
	ID                  snowflake.ID  `json:"id" gorm:"primaryKey"`
	UserID              string        `json:"user_id" gorm:"type:text;not null;index"`
	Kind                HistoryKind   `json:"kind" gorm:"type:text;not null"`
	Amount              int64         `json:"amount" gorm:"not null"`
	CreditsBefore       int64         `json:"credits_before" gorm:"not null"`
	CreditsAfter        int64         `json:"credits_after" gorm:"not null"`
	RelatedGenerationID *snowflake.ID `json:"related_generation_id"`
	RelatedEventID      *string       `json:"related_event_id" gorm:"type:text"`
	ExpiredAt           *time.Time    `json:"expired_at"`
	CreatedAt           time.Time     `json:"created_at" gorm:"not null"`
}

func (CreditHistoryEntry) TableName() string { return "credit_history" }

const (
	TrialCredits = 100
	TrialDays    = 7
	GraceCredits = 10
	PurchaseLife = 30 * 24 * time.Hour
	SpendPerRun  = 1
)

// ComputeStatus derives the entitlement status at `now`.
//
// Precedence: a subscription plan with an active subscription is active
// regardless of trial fields. Payg accounts get no such shortcut; their
// balance is the only gate, and the trial window never expires them since
// purchased packs are aged out by the expiry job instead.
func ComputeStatus(e *Entitlement, now time.Time) EntitlementStatus {
	if e == nil {
		return StatusExpired
	}
	if e.Plan.Subscription() && e.SubscriptionStatus == SubscriptionStatusActive {
		return StatusActive
	}

	trialOver := e.Plan != PlanPayg && !e.TrialEndsAt.IsZero() && now.After(e.TrialEndsAt)
	switch {
	case e.Credits <= 0 && trialOver:
		return StatusExpired
	case e.Credits <= 0:
		return StatusExhausted
	case trialOver:
		return StatusExpired
	}

	if e.Credits <= GraceCredits {
		return StatusGrace
	}
	if e.Plan != PlanPayg && !e.TrialEndsAt.IsZero() && e.TrialEndsAt.Sub(now) <= 24*time.Hour {
		return StatusGrace
	}
	return StatusActive
}
