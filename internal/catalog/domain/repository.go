package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// List methods return every row ordered by position ascending. The
	// catalog is small and curated, so matching happens in memory.
	ListPatterns(ctx context.Context, db *gorm.DB) ([]ExemplarPattern, error)
	ListTips(ctx context.Context, db *gorm.DB) ([]Tip, error)
	ListTemplates(ctx context.Context, db *gorm.DB) ([]TemplateSkeleton, error)

	InsertPattern(ctx context.Context, db *gorm.DB, pattern *ExemplarPattern) error
	InsertTip(ctx context.Context, db *gorm.DB, tip *Tip) error
	InsertTemplate(ctx context.Context, db *gorm.DB, template *TemplateSkeleton) error

	CountPatterns(ctx context.Context, db *gorm.DB) (int64, error)
}
