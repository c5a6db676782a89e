package service_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowforge/flowforge/internal/billing/adapters"
	"github.com/flowforge/flowforge/internal/billing/adapters/stripeadapter"
	billingdomain "github.com/flowforge/flowforge/internal/billing/domain"
	billingrepo "github.com/flowforge/flowforge/internal/billing/repository"
	billingservice "github.com/flowforge/flowforge/internal/billing/service"
	"github.com/flowforge/flowforge/internal/config"
	creditdomain "github.com/flowforge/flowforge/internal/credit/domain"
	creditrepo "github.com/flowforge/flowforge/internal/credit/repository"
	creditservice "github.com/flowforge/flowforge/internal/credit/service"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fixture struct {
	db        *gorm.DB
	clk       *fakeClock
	creditSvc creditdomain.Service
	svc       billingdomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&creditdomain.Entitlement{},
		&creditdomain.CreditHistoryEntry{},
		&billingdomain.ProcessedEvent{},
	))

	node, err := snowflake.NewNode(11)
	require.NoError(t, err)

	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	creditSvc := creditservice.New(creditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  creditrepo.Provide(),
	})

	svc := billingservice.New(billingservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Config:    config.Config{Billing: config.BillingConfig{WebhookSecret: webhookSecret}},
		Clock:     clk,
		Registry:  adapters.NewRegistry(stripeadapter.NewFactory()),
		Repo:      billingrepo.Provide(),
		CreditSvc: creditSvc,
	})

	return &fixture{db: db, clk: clk, creditSvc: creditSvc, svc: svc}
}

func signedHeader(payload []byte, ts int64) http.Header {
	signedPayload := fmt.Sprintf("%d.%s", ts, string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))

	header := http.Header{}
	header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, signature))
	return header
}

func checkoutSubscriptionPayload(eventID, userID string, plan creditdomain.Plan) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"%s","type":"checkout.session.completed","created":1748800000,"data":{"object":{"id":"cs_1","mode":"subscription","customer":"cus_1","metadata":{"user_id":"%s","plan":"%s"}}}}`,
		eventID, userID, plan,
	))
}

func TestHandleCheckoutSubscriptionGrantsPlanCredits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.creditSvc.ProvisionTrial(ctx, "user-1")
	require.NoError(t, err)

	payload := checkoutSubscriptionPayload("evt_1", "user-1", creditdomain.PlanStarter)
	require.NoError(t, f.svc.Handle(ctx, "stripe", payload, signedHeader(payload, f.clk.now.Unix())))

	entitlement, err := f.creditSvc.GetEntitlement(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, creditdomain.PlanStarter, entitlement.Plan)
	assert.Equal(t, creditdomain.SubscriptionStatusActive, entitlement.SubscriptionStatus)
	assert.Equal(t, "cus_1", entitlement.PaymentCustomerRef)

	spec, ok := billingdomain.PlanSpecFor(creditdomain.PlanStarter)
	require.True(t, ok)
	assert.Equal(t, int64(creditdomain.TrialCredits)+spec.MonthlyCredits, entitlement.Credits)
}

func TestHandleDuplicateEventAppliesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.creditSvc.ProvisionTrial(ctx, "user-1")
	require.NoError(t, err)

	payload := checkoutSubscriptionPayload("evt_1", "user-1", creditdomain.PlanStarter)
	header := signedHeader(payload, f.clk.now.Unix())

	require.NoError(t, f.svc.Handle(ctx, "stripe", payload, header))
	err = f.svc.Handle(ctx, "stripe", payload, header)
	assert.ErrorIs(t, err, billingdomain.ErrEventAlreadyProcessed)

	entitlement, err := f.creditSvc.GetEntitlement(ctx, "user-1")
	require.NoError(t, err)

	spec, _ := billingdomain.PlanSpecFor(creditdomain.PlanStarter)
	assert.Equal(t, int64(creditdomain.TrialCredits)+spec.MonthlyCredits, entitlement.Credits)
}

func TestHandleRejectsBadSignatureWithoutRecording(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.creditSvc.ProvisionTrial(ctx, "user-1")
	require.NoError(t, err)

	payload := checkoutSubscriptionPayload("evt_1", "user-1", creditdomain.PlanStarter)
	header := http.Header{}
	header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=deadbeef", f.clk.now.Unix()))

	err = f.svc.Handle(ctx, "stripe", payload, header)
	assert.ErrorIs(t, err, billingdomain.ErrInvalidSignature)

	var count int64
	require.NoError(t, f.db.Raw("SELECT COUNT(*) FROM processed_events").Scan(&count).Error)
	assert.Equal(t, int64(0), count)

	// The real delivery must still go through after the forged one.
	require.NoError(t, f.svc.Handle(ctx, "stripe", payload, signedHeader(payload, f.clk.now.Unix())))
}

func TestHandleAcknowledgesUnknownEventKind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	payload := []byte(`{"id":"evt_9","type":"charge.refunded","created":1748800000,"data":{"object":{}}}`)
	require.NoError(t, f.svc.Handle(ctx, "stripe", payload, signedHeader(payload, f.clk.now.Unix())))

	var count int64
	require.NoError(t, f.db.Raw("SELECT COUNT(*) FROM processed_events").Scan(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestHandleAcknowledgesMalformedAuthenticatedEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Valid signature, known type, but no user metadata.
	payload := []byte(`{"id":"evt_10","type":"checkout.session.completed","created":1748800000,"data":{"object":{"id":"cs_1","mode":"subscription","metadata":{}}}}`)
	require.NoError(t, f.svc.Handle(ctx, "stripe", payload, signedHeader(payload, f.clk.now.Unix())))

	var count int64
	require.NoError(t, f.db.Raw("SELECT COUNT(*) FROM processed_events").Scan(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestHandlePaygCheckoutGrantsMetadataCredits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.creditSvc.ProvisionTrial(ctx, "user-1")
	require.NoError(t, err)

	payload := []byte(`{"id":"evt_11","type":"checkout.session.completed","created":1748800000,"data":{"object":{"id":"cs_2","mode":"payment","customer":"cus_2","metadata":{"user_id":"user-1","credits":"250"}}}}`)
	require.NoError(t, f.svc.Handle(ctx, "stripe", payload, signedHeader(payload, f.clk.now.Unix())))

	entitlement, err := f.creditSvc.GetEntitlement(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, creditdomain.PlanPayg, entitlement.Plan)
	assert.Equal(t, creditdomain.SubscriptionStatusInactive, entitlement.SubscriptionStatus)
	assert.Equal(t, int64(creditdomain.TrialCredits+250), entitlement.Credits)
}

func TestDrainedPaygAccountCannotSpend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.creditSvc.ProvisionTrial(ctx, "user-1")
	require.NoError(t, err)

	payload := []byte(`{"id":"evt_12","type":"checkout.session.completed","created":1748800000,"data":{"object":{"id":"cs_3","mode":"payment","customer":"cus_3","metadata":{"user_id":"user-1","credits":"2"}}}}`)
	require.NoError(t, f.svc.Handle(ctx, "stripe", payload, signedHeader(payload, f.clk.now.Unix())))

	entitlement, err := f.creditSvc.GetEntitlement(ctx, "user-1")
	require.NoError(t, err)

	node, err := snowflake.NewNode(12)
	require.NoError(t, err)
	for i := int64(0); i < entitlement.Credits; i++ {
		_, err := f.creditSvc.TrySpend(ctx, "user-1", 1, node.Generate())
		require.NoError(t, err)
	}

	status, _, err := f.creditSvc.CheckEntitlement(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, creditdomain.StatusExhausted, status)
	assert.False(t, status.AllowsSpend())

	_, err = f.creditSvc.TrySpend(ctx, "user-1", 1, node.Generate())
	assert.ErrorIs(t, err, creditdomain.ErrInsufficientCredits)
}

func TestHandleRenewalResetsBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.creditSvc.ProvisionTrial(ctx, "user-1")
	require.NoError(t, err)

	payload := checkoutSubscriptionPayload("evt_1", "user-1", creditdomain.PlanPro)
	require.NoError(t, f.svc.Handle(ctx, "stripe", payload, signedHeader(payload, f.clk.now.Unix())))

	renewal := []byte(`{"id":"evt_2","type":"invoice.payment_succeeded","created":1748800000,"data":{"object":{"id":"in_1","customer":"cus_1","metadata":{"user_id":"user-1","plan":"pro"}}}}`)
	require.NoError(t, f.svc.Handle(ctx, "stripe", renewal, signedHeader(renewal, f.clk.now.Unix())))

	entitlement, err := f.creditSvc.GetEntitlement(ctx, "user-1")
	require.NoError(t, err)

	spec, _ := billingdomain.PlanSpecFor(creditdomain.PlanPro)
	assert.Equal(t, spec.MonthlyCredits, entitlement.Credits)
	assert.Equal(t, creditdomain.SubscriptionStatusActive, entitlement.SubscriptionStatus)
}

func TestHandleSubscriptionLifecycleStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.creditSvc.ProvisionTrial(ctx, "user-1")
	require.NoError(t, err)

	payload := checkoutSubscriptionPayload("evt_1", "user-1", creditdomain.PlanStarter)
	require.NoError(t, f.svc.Handle(ctx, "stripe", payload, signedHeader(payload, f.clk.now.Unix())))

	failed := []byte(`{"id":"evt_3","type":"invoice.payment_failed","created":1748800000,"data":{"object":{"id":"in_2","customer":"cus_1","metadata":{"user_id":"user-1"}}}}`)
	require.NoError(t, f.svc.Handle(ctx, "stripe", failed, signedHeader(failed, f.clk.now.Unix())))

	entitlement, err := f.creditSvc.GetEntitlement(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, creditdomain.SubscriptionStatusPastDue, entitlement.SubscriptionStatus)

	deleted := []byte(`{"id":"evt_4","type":"customer.subscription.deleted","created":1748800000,"data":{"object":{"id":"sub_1","status":"canceled","customer":"cus_1","metadata":{"user_id":"user-1"}}}}`)
	require.NoError(t, f.svc.Handle(ctx, "stripe", deleted, signedHeader(deleted, f.clk.now.Unix())))

	entitlement, err = f.creditSvc.GetEntitlement(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, creditdomain.SubscriptionStatusInactive, entitlement.SubscriptionStatus)
	assert.Equal(t, creditdomain.PlanTrial, entitlement.Plan)
}

func TestHandleUnknownProvider(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.svc.Handle(ctx, "paypal", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, billingdomain.ErrProviderNotFound)
}
