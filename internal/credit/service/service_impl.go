package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowforge/flowforge/internal/clock"
	creditdomain "github.com/flowforge/flowforge/internal/credit/domain"
	"github.com/flowforge/flowforge/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  creditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  creditdomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) creditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("credit.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) ProvisionTrial(ctx context.Context, userID string) (*creditdomain.Entitlement, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, creditdomain.ErrInvalidUser
	}

	now := s.clock.Now()
	entitlement := &creditdomain.Entitlement{
		UserID:             userID,
		Plan:               creditdomain.PlanTrial,
		Credits:            creditdomain.TrialCredits,
		TrialEndsAt:        now.Add(creditdomain.TrialDays * 24 * time.Hour),
		SubscriptionStatus: creditdomain.SubscriptionStatusInactive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.repo.Insert(ctx, tx, entitlement)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		return s.repo.InsertHistory(ctx, tx, &creditdomain.CreditHistoryEntry{
			ID:            s.genID.Generate(),
			UserID:        userID,
			Kind:          creditdomain.KindAdjustment,
			Amount:        creditdomain.TrialCredits,
			CreditsBefore: 0,
			CreditsAfter:  creditdomain.TrialCredits,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.repo.Find(ctx, s.db, userID)
}

func (s *Service) GetEntitlement(ctx context.Context, userID string) (*creditdomain.Entitlement, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, creditdomain.ErrInvalidUser
	}
	entitlement, err := s.repo.Find(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if entitlement == nil {
		return nil, creditdomain.ErrEntitlementNotFound
	}
	return entitlement, nil
}

func (s *Service) CheckEntitlement(ctx context.Context, userID string) (creditdomain.EntitlementStatus, *creditdomain.Entitlement, error) {
	entitlement, err := s.GetEntitlement(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	return creditdomain.ComputeStatus(entitlement, s.clock.Now()), entitlement, nil
}

func (s *Service) TrySpend(ctx context.Context, userID string, amount int64, relatedGenerationID snowflake.ID) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, creditdomain.ErrInvalidUser
	}
	if amount <= 0 {
		return 0, creditdomain.ErrInvalidAmount
	}

	var newBalance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := s.repo.ConditionalDecrement(ctx, tx, userID, amount)
		if err != nil {
			return err
		}
		if !updated {
			return creditdomain.ErrInsufficientCredits
		}

		entitlement, err := s.repo.Find(ctx, tx, userID)
		if err != nil {
			return err
		}
		if entitlement == nil {
			return creditdomain.ErrEntitlementNotFound
		}
		newBalance = entitlement.Credits

		generationID := relatedGenerationID
		return s.repo.InsertHistory(ctx, tx, &creditdomain.CreditHistoryEntry{
			ID:                  s.genID.Generate(),
			UserID:              userID,
			Kind:                creditdomain.KindUsage,
			Amount:              -amount,
			CreditsBefore:       newBalance + amount,
			CreditsAfter:        newBalance,
			RelatedGenerationID: &generationID,
			CreatedAt:           s.clock.Now(),
		})
	})
	if err != nil {
		// The unique usage index rejects a second spend for the same
		// generation; the rollback keeps the balance untouched.
		if db.IsDuplicateKeyErr(err) {
			return 0, creditdomain.ErrDuplicateSpend
		}
		return 0, err
	}
	return newBalance, nil
}

func (s *Service) Grant(ctx context.Context, userID string, amount int64, kind creditdomain.HistoryKind, relatedEventID *string) (int64, error) {
	var newBalance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := s.ApplyGrant(ctx, tx, userID, amount, kind, relatedEventID)
		if err != nil {
			return err
		}
		newBalance = balance
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (s *Service) ApplyGrant(ctx context.Context, tx *gorm.DB, userID string, amount int64, kind creditdomain.HistoryKind, relatedEventID *string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, creditdomain.ErrInvalidUser
	}
	if amount <= 0 {
		return 0, creditdomain.ErrInvalidAmount
	}

	entitlement, err := s.repo.Find(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if entitlement == nil {
		return 0, creditdomain.ErrEntitlementNotFound
	}

	if err := s.repo.Increment(ctx, tx, userID, amount); err != nil {
		return 0, err
	}

	before := entitlement.Credits
	after := before + amount
	if err := s.repo.InsertHistory(ctx, tx, &creditdomain.CreditHistoryEntry{
		ID:             s.genID.Generate(),
		UserID:         userID,
		Kind:           kind,
		Amount:         amount,
		CreditsBefore:  before,
		CreditsAfter:   after,
		RelatedEventID: relatedEventID,
		CreatedAt:      s.clock.Now(),
	}); err != nil {
		return 0, err
	}
	return after, nil
}

func (s *Service) SetPlan(ctx context.Context, userID string, plan creditdomain.Plan, status creditdomain.SubscriptionStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.ApplySetPlan(ctx, tx, userID, plan, status)
	})
}

func (s *Service) ApplySetPlan(ctx context.Context, tx *gorm.DB, userID string, plan creditdomain.Plan, status creditdomain.SubscriptionStatus) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return creditdomain.ErrInvalidUser
	}
	if !plan.Valid() {
		return creditdomain.ErrInvalidPlan
	}
	return s.repo.UpdatePlan(ctx, tx, userID, plan, status)
}

func (s *Service) ApplySubscriptionStatus(ctx context.Context, tx *gorm.DB, userID string, status creditdomain.SubscriptionStatus) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return creditdomain.ErrInvalidUser
	}
	return s.repo.UpdateSubscriptionStatus(ctx, tx, userID, status)
}

func (s *Service) ApplyPaymentCustomerRef(ctx context.Context, tx *gorm.DB, userID string, ref string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return creditdomain.ErrInvalidUser
	}
	return s.repo.UpdatePaymentCustomerRef(ctx, tx, userID, strings.TrimSpace(ref))
}

// ApplyRenewal resets the balance to the plan ceiling. The history entry
// carries the actual delta so replaying history still reproduces the balance.
func (s *Service) ApplyRenewal(ctx context.Context, tx *gorm.DB, userID string, ceiling int64, relatedEventID *string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, creditdomain.ErrInvalidUser
	}
	if ceiling < 0 {
		return 0, creditdomain.ErrInvalidAmount
	}

	entitlement, err := s.repo.Find(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if entitlement == nil {
		return 0, creditdomain.ErrEntitlementNotFound
	}

	before := entitlement.Credits
	delta := ceiling - before
	if delta == 0 {
		return ceiling, nil
	}

	if err := s.repo.SetCredits(ctx, tx, userID, ceiling); err != nil {
		return 0, err
	}

	kind := creditdomain.KindPurchase
	if delta < 0 {
		kind = creditdomain.KindAdjustment
	}
	if err := s.repo.InsertHistory(ctx, tx, &creditdomain.CreditHistoryEntry{
		ID:             s.genID.Generate(),
		UserID:         userID,
		Kind:           kind,
		Amount:         delta,
		CreditsBefore:  before,
		CreditsAfter:   ceiling,
		RelatedEventID: relatedEventID,
		CreatedAt:      s.clock.Now(),
	}); err != nil {
		return 0, err
	}
	return ceiling, nil
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]creditdomain.CreditHistoryEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, creditdomain.ErrInvalidUser
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListHistory(ctx, s.db, userID, limit)
}

func (s *Service) ExpireAgedPurchasedCredits(ctx context.Context, now time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	cutoff := now.Add(-creditdomain.PurchaseLife)

	entries, err := s.repo.FindExpirablePurchases(ctx, s.db, cutoff, batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	var jobErr error
	for i := range entries {
		entry := entries[i]
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			claimed, err := s.repo.MarkPurchaseExpired(ctx, tx, entry.ID, now)
			if err != nil {
				return err
			}
			if !claimed {
				return nil
			}

			entitlement, err := s.repo.Find(ctx, tx, entry.UserID)
			if err != nil {
				return err
			}
			if entitlement == nil {
				return creditdomain.ErrEntitlementNotFound
			}

			deduct := entry.Amount
			if entitlement.Credits < deduct {
				deduct = entitlement.Credits
			}
			if deduct > 0 {
				updated, err := s.repo.ConditionalDecrement(ctx, tx, entry.UserID, deduct)
				if err != nil {
					return err
				}
				if !updated {
					// A concurrent spend moved the balance under the deduction.
					// Roll back the claim; the next run recomputes the min.
					return creditdomain.ErrInsufficientCredits
				}
			}

			return s.repo.InsertHistory(ctx, tx, &creditdomain.CreditHistoryEntry{
				ID:            s.genID.Generate(),
				UserID:        entry.UserID,
				Kind:          creditdomain.KindExpiration,
				Amount:        -deduct,
				CreditsBefore: entitlement.Credits,
				CreditsAfter:  entitlement.Credits - deduct,
				CreatedAt:     now,
			})
		})
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		processed++
	}

	if jobErr != nil {
		s.log.Warn("credit expiry batch finished with errors",
			zap.Int("processed", processed),
			zap.Error(jobErr),
		)
	}
	return processed, jobErr
}
