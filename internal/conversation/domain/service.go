package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/flowforge/flowforge/pkg/db/pagination"
	"gorm.io/datatypes"
)

type ListResult struct {
	Conversations []*Conversation
	PageInfo      *pagination.PageInfo
}

// Exchange is one user prompt and its assistant reply, persisted together.
// Intent and Confidence label the user message when classification produced
// anything.
type Exchange struct {
	Prompt     string
	Intent     *string
	Confidence *float64
	Document   datatypes.JSON
	Metadata   datatypes.JSON
}

type Service interface {
	// Get returns the conversation with its messages oldest first, scoped to
	// the owner. Missing or foreign conversations yield
	// ErrConversationNotFound.
	Get(ctx context.Context, userID string, id snowflake.ID) (*Conversation, []Message, error)

	List(ctx context.Context, userID string, page pagination.Pagination) (*ListResult, error)

	// Delete removes the conversation and its messages in one transaction.
	Delete(ctx context.Context, userID string, id snowflake.ID) error

	// AppendExchange persists one exchange. A zero conversation id starts a
	// new conversation titled from the prompt.
	AppendExchange(ctx context.Context, userID string, conversationID snowflake.ID, exchange Exchange) (*Conversation, *Message, error)

	// RecordGeneration appends the audit row for a generation attempt.
	RecordGeneration(ctx context.Context, record *GenerationRecord) error
}
