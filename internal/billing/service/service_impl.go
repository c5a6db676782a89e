package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/flowforge/flowforge/internal/billing/adapters"
	billingdomain "github.com/flowforge/flowforge/internal/billing/domain"
	"github.com/flowforge/flowforge/internal/clock"
	"github.com/flowforge/flowforge/internal/config"
	creditdomain "github.com/flowforge/flowforge/internal/credit/domain"
	obsmetrics "github.com/flowforge/flowforge/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Clock      clock.Clock
	Registry   *adapters.Registry
	Repo       billingdomain.Repository
	CreditSvc  creditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        config.Config
	clock      clock.Clock
	registry   *adapters.Registry
	repo       billingdomain.Repository
	creditSvc  creditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) billingdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.service"),
		cfg:        p.Config,
		clock:      p.Clock,
		registry:   p.Registry,
		repo:       p.Repo,
		creditSvc:  p.CreditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Handle(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return billingdomain.ErrInvalidProvider
	}
	if !s.registry.ProviderExists(provider) {
		return billingdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return billingdomain.ErrInvalidPayload
	}

	adapter, err := s.registry.NewAdapter(provider, billingdomain.AdapterConfig{
		WebhookSecret: s.cfg.Billing.WebhookSecret,
	})
	if err != nil {
		return err
	}

	// Signature failures reject the delivery without recording anything, so
	// a forged event id can never block the real one.
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, billingdomain.ErrEventIgnored) {
			s.log.Info("ignoring unhandled event type", zap.String("provider", provider))
			return nil
		}
		// Authenticated but malformed. Acknowledge so the provider stops
		// redelivering a payload that will never become valid.
		s.log.Warn("dropping malformed billing event",
			zap.String("provider", provider),
			zap.Error(err),
		)
		return nil
	}

	if err := s.reconcile(ctx, event); err != nil {
		return err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordBillingEvent(ctx, provider, string(event.Kind))
	}
	s.log.Info("billing event applied",
		zap.String("provider", provider),
		zap.String("event_id", event.EventID),
		zap.String("kind", string(event.Kind)),
	)
	return nil
}

// reconcile claims the event id and applies the ledger mutation in one
// transaction, so a crash between the two can never double-apply.
func (s *Service) reconcile(ctx context.Context, event *billingdomain.BillingEvent) error {
	// Cheap read before opening the transaction. Redeliveries are common
	// with webhook providers; the insert claim below stays the real gate.
	seen, err := s.repo.FindProcessedEvent(ctx, s.db, event.EventID)
	if err != nil {
		return err
	}
	if seen != nil {
		return billingdomain.ErrEventAlreadyProcessed
	}

	now := s.clock.Now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertProcessedEvent(ctx, tx, &billingdomain.ProcessedEvent{
			EventID:     event.EventID,
			Provider:    event.Provider,
			Outcome:     string(event.Kind),
			ProcessedAt: now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return billingdomain.ErrEventAlreadyProcessed
		}
		return s.apply(ctx, tx, event)
	})
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, event *billingdomain.BillingEvent) error {
	eventID := event.EventID

	switch event.Kind {
	case billingdomain.EventKindCheckoutCompleted:
		if event.CustomerRef != "" {
			if err := s.creditSvc.ApplyPaymentCustomerRef(ctx, tx, event.UserID, event.CustomerRef); err != nil {
				return err
			}
		}
		if event.Mode == billingdomain.CheckoutModeSubscription {
			spec, ok := billingdomain.PlanSpecFor(event.Plan)
			if !ok {
				return billingdomain.ErrInvalidEvent
			}
			if err := s.creditSvc.ApplySetPlan(ctx, tx, event.UserID, spec.Plan, creditdomain.SubscriptionStatusActive); err != nil {
				return err
			}
			_, err := s.creditSvc.ApplyGrant(ctx, tx, event.UserID, spec.MonthlyCredits, creditdomain.KindPurchase, &eventID)
			return err
		}
		// A one-time payment is not a subscription. The payg balance is the
		// only thing that entitles further generations.
		if err := s.creditSvc.ApplySetPlan(ctx, tx, event.UserID, creditdomain.PlanPayg, creditdomain.SubscriptionStatusInactive); err != nil {
			return err
		}
		_, err := s.creditSvc.ApplyGrant(ctx, tx, event.UserID, event.Credits, creditdomain.KindPurchase, &eventID)
		return err

	case billingdomain.EventKindSubscriptionUpdated:
		return s.creditSvc.ApplySubscriptionStatus(ctx, tx, event.UserID, mapSubscriptionStatus(event.SubscriptionStatus))

	case billingdomain.EventKindSubscriptionDeleted:
		// Cancellation drops the account back to the trial plan so the paid
		// precedence can never resurrect it.
		return s.creditSvc.ApplySetPlan(ctx, tx, event.UserID, creditdomain.PlanTrial, creditdomain.SubscriptionStatusInactive)

	case billingdomain.EventKindInvoicePaymentSucceeded:
		spec, ok := billingdomain.PlanSpecFor(event.Plan)
		if !ok {
			return billingdomain.ErrInvalidEvent
		}
		if err := s.creditSvc.ApplySubscriptionStatus(ctx, tx, event.UserID, creditdomain.SubscriptionStatusActive); err != nil {
			return err
		}
		// Renewal resets the balance to the plan ceiling instead of stacking
		// allowances across billing periods.
		_, err := s.creditSvc.ApplyRenewal(ctx, tx, event.UserID, spec.MonthlyCredits, &eventID)
		return err

	case billingdomain.EventKindInvoicePaymentFailed:
		return s.creditSvc.ApplySubscriptionStatus(ctx, tx, event.UserID, creditdomain.SubscriptionStatusPastDue)
	}

	return billingdomain.ErrInvalidEvent
}

func mapSubscriptionStatus(status string) creditdomain.SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing":
		return creditdomain.SubscriptionStatusActive
	case "past_due", "unpaid", "incomplete":
		return creditdomain.SubscriptionStatusPastDue
	default:
		return creditdomain.SubscriptionStatusInactive
	}
}
