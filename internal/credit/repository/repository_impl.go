package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowforge/flowforge/internal/credit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, e *domain.Entitlement) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO entitlements (
			user_id, plan, credits, trial_ends_at, subscription_status,
			payment_customer_ref, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		e.UserID,
		e.Plan,
		e.Credits,
		e.TrialEndsAt,
		e.SubscriptionStatus,
		e.PaymentCustomerRef,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, userID string) (*domain.Entitlement, error) {
	var item domain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, plan, credits, trial_ends_at, subscription_status,
			payment_customer_ref, created_at, updated_at
		 FROM entitlements
		 WHERE user_id = ?
		 LIMIT 1`,
		userID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.UserID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ConditionalDecrement(ctx context.Context, db *gorm.DB, userID string, amount int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET credits = credits - ?, updated_at = ?
		 WHERE user_id = ? AND credits >= ?`,
		amount,
		time.Now().UTC(),
		userID,
		amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, userID string, amount int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET credits = credits + ?, updated_at = ?
		 WHERE user_id = ?`,
		amount,
		time.Now().UTC(),
		userID,
	).Error
}

func (r *repo) SetCredits(ctx context.Context, db *gorm.DB, userID string, credits int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET credits = ?, updated_at = ?
		 WHERE user_id = ?`,
		credits,
		time.Now().UTC(),
		userID,
	).Error
}

func (r *repo) UpdatePlan(ctx context.Context, db *gorm.DB, userID string, plan domain.Plan, status domain.SubscriptionStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET plan = ?, subscription_status = ?, updated_at = ?
		 WHERE user_id = ?`,
		plan,
		status,
		time.Now().UTC(),
		userID,
	).Error
}

func (r *repo) UpdateSubscriptionStatus(ctx context.Context, db *gorm.DB, userID string, status domain.SubscriptionStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET subscription_status = ?, updated_at = ?
		 WHERE user_id = ?`,
		status,
		time.Now().UTC(),
		userID,
	).Error
}

func (r *repo) UpdatePaymentCustomerRef(ctx context.Context, db *gorm.DB, userID string, ref string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET payment_customer_ref = ?, updated_at = ?
		 WHERE user_id = ?`,
		ref,
		time.Now().UTC(),
		userID,
	).Error
}

func (r *repo) InsertHistory(ctx context.Context, db *gorm.DB, entry *domain.CreditHistoryEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_history (
			id, user_id, kind, amount, credits_before, credits_after,
			related_generation_id, related_event_id, expired_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		entry.Kind,
		entry.Amount,
		entry.CreditsBefore,
		entry.CreditsAfter,
		entry.RelatedGenerationID,
		entry.RelatedEventID,
		entry.ExpiredAt,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListHistory(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.CreditHistoryEntry, error) {
	var items []domain.CreditHistoryEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, kind, amount, credits_before, credits_after,
			related_generation_id, related_event_id, expired_at, created_at
		 FROM credit_history
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		userID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindExpirablePurchases(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.CreditHistoryEntry, error) {
	var items []domain.CreditHistoryEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, kind, amount, credits_before, credits_after,
			related_generation_id, related_event_id, expired_at, created_at
		 FROM credit_history
		 WHERE kind = ? AND expired_at IS NULL AND amount > 0 AND created_at <= ?
		 ORDER BY created_at ASC
		 LIMIT ?`,
		domain.KindPurchase,
		cutoff,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkPurchaseExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE credit_history
		 SET expired_at = ?
		 WHERE id = ? AND expired_at IS NULL`,
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
