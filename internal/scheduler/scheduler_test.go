package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	creditdomain "github.com/flowforge/flowforge/internal/credit/domain"
	creditrepo "github.com/flowforge/flowforge/internal/credit/repository"
	creditservice "github.com/flowforge/flowforge/internal/credit/service"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func setup(t *testing.T, cfg Config) (*Scheduler, creditdomain.Service, *fakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&creditdomain.Entitlement{},
		&creditdomain.CreditHistoryEntry{},
	))

	node, err := snowflake.NewNode(25)
	require.NoError(t, err)

	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	creditSvc := creditservice.New(creditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  creditrepo.Provide(),
	})

	sched, err := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		CreditSvc: creditSvc,
		GenID:     node,
		Clock:     clk,
		Config:    cfg,
	})
	require.NoError(t, err)
	return sched, creditSvc, clk
}

func TestRunOnceExpiresAgedPurchases(t *testing.T) {
	ctx := context.Background()
	sched, creditSvc, clk := setup(t, Config{BatchSize: 2})

	now := clk.now
	clk.now = now.Add(-creditdomain.PurchaseLife - 24*time.Hour)
	for i := 0; i < 5; i++ {
		user := fmt.Sprintf("user-%d", i)
		_, err := creditSvc.ProvisionTrial(ctx, user)
		require.NoError(t, err)
		_, err = creditSvc.Grant(ctx, user, 50, creditdomain.KindPurchase, nil)
		require.NoError(t, err)
	}

	// The batch size is smaller than the backlog; one run must still drain it.
	clk.now = now
	require.NoError(t, sched.RunOnce(ctx))

	for i := 0; i < 5; i++ {
		entitlement, err := creditSvc.GetEntitlement(ctx, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		assert.Equal(t, int64(creditdomain.TrialCredits), entitlement.Credits)
	}

	require.NoError(t, sched.RunOnce(ctx))
	entitlement, err := creditSvc.GetEntitlement(ctx, "user-0")
	require.NoError(t, err)
	assert.Equal(t, int64(creditdomain.TrialCredits), entitlement.Credits)
}

func TestRunOnceSkipsDisabledJobs(t *testing.T) {
	ctx := context.Background()
	sched, creditSvc, clk := setup(t, Config{EnabledJobs: []string{"some_other_job"}})

	now := clk.now
	clk.now = now.Add(-creditdomain.PurchaseLife - 24*time.Hour)
	_, err := creditSvc.ProvisionTrial(ctx, "user-1")
	require.NoError(t, err)
	_, err = creditSvc.Grant(ctx, "user-1", 50, creditdomain.KindPurchase, nil)
	require.NoError(t, err)

	clk.now = now
	require.NoError(t, sched.RunOnce(ctx))

	entitlement, err := creditSvc.GetEntitlement(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(creditdomain.TrialCredits+50), entitlement.Credits)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Hour, cfg.RunInterval)
	assert.Equal(t, 100, cfg.BatchSize)

	cfg = Config{RunInterval: time.Minute, BatchSize: 7}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 7, cfg.BatchSize)
}
