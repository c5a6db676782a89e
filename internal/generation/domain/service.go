package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Client calls the model provider and returns the parsed document together
// with its raw JSON form. Implementations never retry; the caller decides
// what a failure costs.
type Client interface {
	GenerateDocument(ctx context.Context, prompt string, genCtx *GenerationContext) (*WorkflowDocument, []byte, error)
}

// ContextBuilder derives hint labels from a prompt and assembles the catalog
// selection for them. The same prompt always produces the same context.
type ContextBuilder interface {
	Build(ctx context.Context, prompt string) (*GenerationContext, error)
}

// Service runs the full generation pipeline: entitlement gate, context
// assembly, model call, spend and persistence.
type Service interface {
	// Generate produces a workflow document for the prompt. A zero
	// conversation id starts a new conversation. Credits are charged only
	// after the model produced a valid document.
	Generate(ctx context.Context, userID string, conversationID snowflake.ID, prompt string, attachments []Attachment) (*Outcome, error)
}
