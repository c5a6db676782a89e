package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertProcessedEvent claims the event id. Returns false when a row for
	// the id already exists.
	InsertProcessedEvent(ctx context.Context, db *gorm.DB, event *ProcessedEvent) (bool, error)

	// FindProcessedEvent returns the processed record, or (nil, nil) when the
	// event has not been seen.
	FindProcessedEvent(ctx context.Context, db *gorm.DB, eventID string) (*ProcessedEvent, error)
}
