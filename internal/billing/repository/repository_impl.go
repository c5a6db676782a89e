package repository

import (
	"context"

	"github.com/flowforge/flowforge/internal/billing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertProcessedEvent(ctx context.Context, db *gorm.DB, event *domain.ProcessedEvent) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO processed_events (event_id, provider, outcome, processed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`,
		event.EventID,
		event.Provider,
		event.Outcome,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindProcessedEvent(ctx context.Context, db *gorm.DB, eventID string) (*domain.ProcessedEvent, error) {
	var item domain.ProcessedEvent
	err := db.WithContext(ctx).Raw(
		`SELECT event_id, provider, outcome, processed_at
		 FROM processed_events
		 WHERE event_id = ?
		 LIMIT 1`,
		eventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.EventID == "" {
		return nil, nil
	}
	return &item, nil
}
