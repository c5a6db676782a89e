package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertConversation(ctx context.Context, db *gorm.DB, conversation *Conversation) error

	// FindConversation scopes by owner and returns (nil, nil) when missing.
	FindConversation(ctx context.Context, db *gorm.DB, userID string, id snowflake.ID) (*Conversation, error)

	// ListConversations returns up to limit+1 rows newest first, starting
	// after the cursor id when nonzero. The extra row signals another page.
	ListConversations(ctx context.Context, db *gorm.DB, userID string, afterID snowflake.ID, limit int) ([]*Conversation, error)

	TouchConversation(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error

	DeleteConversation(ctx context.Context, db *gorm.DB, userID string, id snowflake.ID) (bool, error)
	DeleteMessages(ctx context.Context, db *gorm.DB, conversationID snowflake.ID) error

	InsertMessage(ctx context.Context, db *gorm.DB, message *Message) error
	ListMessages(ctx context.Context, db *gorm.DB, conversationID snowflake.ID) ([]Message, error)

	InsertGenerationRecord(ctx context.Context, db *gorm.DB, record *GenerationRecord) error
}
