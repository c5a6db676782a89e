package repository

import (
	"context"

	"github.com/flowforge/flowforge/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListPatterns(ctx context.Context, db *gorm.DB) ([]domain.ExemplarPattern, error) {
	var items []domain.ExemplarPattern
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, position, hints, summary, document, created_at, updated_at
		 FROM exemplar_patterns
		 ORDER BY position ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListTips(ctx context.Context, db *gorm.DB) ([]domain.Tip, error) {
	var items []domain.Tip
	err := db.WithContext(ctx).Raw(
		`SELECT id, position, hints, text, created_at, updated_at
		 FROM authoring_tips
		 ORDER BY position ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListTemplates(ctx context.Context, db *gorm.DB) ([]domain.TemplateSkeleton, error) {
	var items []domain.TemplateSkeleton
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, position, hints, document, created_at, updated_at
		 FROM template_skeletons
		 ORDER BY position ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertPattern(ctx context.Context, db *gorm.DB, pattern *domain.ExemplarPattern) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO exemplar_patterns (id, name, position, hints, summary, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pattern.ID,
		pattern.Name,
		pattern.Position,
		pattern.Hints,
		pattern.Summary,
		pattern.Document,
		pattern.CreatedAt,
		pattern.UpdatedAt,
	).Error
}

func (r *repo) InsertTip(ctx context.Context, db *gorm.DB, tip *domain.Tip) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO authoring_tips (id, position, hints, text, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tip.ID,
		tip.Position,
		tip.Hints,
		tip.Text,
		tip.CreatedAt,
		tip.UpdatedAt,
	).Error
}

func (r *repo) InsertTemplate(ctx context.Context, db *gorm.DB, template *domain.TemplateSkeleton) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO template_skeletons (id, name, position, hints, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		template.ID,
		template.Name,
		template.Position,
		template.Hints,
		template.Document,
		template.CreatedAt,
		template.UpdatedAt,
	).Error
}

func (r *repo) CountPatterns(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM exemplar_patterns`,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
