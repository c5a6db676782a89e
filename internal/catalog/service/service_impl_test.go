package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	catalogdomain "github.com/flowforge/flowforge/internal/catalog/domain"
	catalogrepo "github.com/flowforge/flowforge/internal/catalog/repository"
	catalogservice "github.com/flowforge/flowforge/internal/catalog/service"
	"github.com/flowforge/flowforge/internal/seed"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (catalogdomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&catalogdomain.ExemplarPattern{},
		&catalogdomain.Tip{},
		&catalogdomain.TemplateSkeleton{},
	))
	require.NoError(t, seed.EnsureCatalog(db))

	svc := catalogservice.New(catalogservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: catalogrepo.Provide(),
	})
	return svc, db
}

func TestMatchReturnsRowsInPositionOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	selection, err := svc.Match(ctx, []string{"webhook", "slack"})
	require.NoError(t, err)

	require.Len(t, selection.Patterns, 2)
	assert.Equal(t, "webhook-to-slack", selection.Patterns[0].Name)
	assert.Equal(t, "form-to-crm", selection.Patterns[1].Name)

	require.Len(t, selection.Tips, 2)
	require.Len(t, selection.Templates, 1)
	assert.Equal(t, "blank-webhook", selection.Templates[0].Name)
}

func TestMatchIsDeterministic(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	first, err := svc.Match(ctx, []string{"schedule", "report"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := svc.Match(ctx, []string{"schedule", "report"})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMatchNormalizesHints(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	selection, err := svc.Match(ctx, []string{"  Webhook ", "SLACK"})
	require.NoError(t, err)
	require.NotEmpty(t, selection.Patterns)
	assert.Equal(t, "webhook-to-slack", selection.Patterns[0].Name)
}

func TestMatchEmptyHints(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	selection, err := svc.Match(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, selection.Patterns)
	assert.Empty(t, selection.Tips)
	assert.Empty(t, selection.Templates)

	selection, err = svc.Match(ctx, []string{"  ", ""})
	require.NoError(t, err)
	assert.Empty(t, selection.Patterns)
}

func TestMatchUnknownHint(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	selection, err := svc.Match(ctx, []string{"blockchain"})
	require.NoError(t, err)
	assert.Empty(t, selection.Patterns)
	assert.Empty(t, selection.Tips)
	assert.Empty(t, selection.Templates)
}

func TestEnsureCatalogIdempotent(t *testing.T) {
	_, db := setup(t)

	var before int64
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM exemplar_patterns").Scan(&before).Error)

	require.NoError(t, seed.EnsureCatalog(db))

	var after int64
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM exemplar_patterns").Scan(&after).Error)
	assert.Equal(t, before, after)
}
