package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidPlan         = errors.New("invalid_plan")
	ErrEntitlementNotFound = errors.New("entitlement_not_found")
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrDuplicateSpend      = errors.New("duplicate_spend")
)

// Service is the sole authority over entitlement balances and plan state.
type Service interface {
	// ProvisionTrial creates the entitlement with trial defaults. Calling it
	// again for an existing user is a no-op returning the current row.
	ProvisionTrial(ctx context.Context, userID string) (*Entitlement, error)

	// GetEntitlement returns the entitlement, or ErrEntitlementNotFound.
	GetEntitlement(ctx context.Context, userID string) (*Entitlement, error)

	// CheckEntitlement computes the advisory status. It never mutates state;
	// the true spend gate is TrySpend.
	CheckEntitlement(ctx context.Context, userID string) (EntitlementStatus, *Entitlement, error)

	// TrySpend atomically decrements credits where credits >= amount and
	// appends a usage history entry in the same transaction. Returns the new
	// balance, or ErrInsufficientCredits when the predicate fails.
	TrySpend(ctx context.Context, userID string, amount int64, relatedGenerationID snowflake.ID) (int64, error)

	// Grant atomically increases credits and appends a history entry.
	Grant(ctx context.Context, userID string, amount int64, kind HistoryKind, relatedEventID *string) (int64, error)

	// SetPlan updates plan and subscription status without touching credits.
	SetPlan(ctx context.Context, userID string, plan Plan, status SubscriptionStatus) error

	// History returns the most recent history entries, newest first.
	History(ctx context.Context, userID string, limit int) ([]CreditHistoryEntry, error)

	// ExpireAgedPurchasedCredits ages out purchase entries older than the
	// purchase lifetime: deducts min(amount, balance), appends an expiration
	// entry and marks the source entry consumed. Returns entries processed.
	ExpireAgedPurchasedCredits(ctx context.Context, now time.Time, batchSize int) (int, error)

	// Tx variants used by the billing reconciler so the ProcessedEvent row
	// commits atomically with the ledger mutation.
	ApplyGrant(ctx context.Context, tx *gorm.DB, userID string, amount int64, kind HistoryKind, relatedEventID *string) (int64, error)
	ApplySetPlan(ctx context.Context, tx *gorm.DB, userID string, plan Plan, status SubscriptionStatus) error
	ApplySubscriptionStatus(ctx context.Context, tx *gorm.DB, userID string, status SubscriptionStatus) error
	ApplyRenewal(ctx context.Context, tx *gorm.DB, userID string, ceiling int64, relatedEventID *string) (int64, error)
	ApplyPaymentCustomerRef(ctx context.Context, tx *gorm.DB, userID string, ref string) error
}
