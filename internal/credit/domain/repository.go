package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, e *Entitlement) (bool, error)
	Find(ctx context.Context, db *gorm.DB, userID string) (*Entitlement, error)

	// ConditionalDecrement is the single-statement spend gate:
	// UPDATE ... SET credits = credits - ? WHERE user_id = ? AND credits >= ?.
	ConditionalDecrement(ctx context.Context, db *gorm.DB, userID string, amount int64) (bool, error)
	Increment(ctx context.Context, db *gorm.DB, userID string, amount int64) error
	SetCredits(ctx context.Context, db *gorm.DB, userID string, credits int64) error
	UpdatePlan(ctx context.Context, db *gorm.DB, userID string, plan Plan, status SubscriptionStatus) error
	UpdateSubscriptionStatus(ctx context.Context, db *gorm.DB, userID string, status SubscriptionStatus) error
	UpdatePaymentCustomerRef(ctx context.Context, db *gorm.DB, userID string, ref string) error

	InsertHistory(ctx context.Context, db *gorm.DB, entry *CreditHistoryEntry) error
	ListHistory(ctx context.Context, db *gorm.DB, userID string, limit int) ([]CreditHistoryEntry, error)
	FindExpirablePurchases(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]CreditHistoryEntry, error)
	MarkPurchaseExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
}
