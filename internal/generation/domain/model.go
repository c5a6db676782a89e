package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/flowforge/flowforge/internal/catalog/domain"
	"gorm.io/datatypes"
)

// WorkflowDocument is the structured representation returned to the caller.
// Nodes reference each other through Connections by node id.
type WorkflowDocument struct {
	Name        string         `json:"name"`
	Nodes       []WorkflowNode `json:"nodes"`
	Connections []Connection   `json:"connections"`
	Settings    map[string]any `json:"settings"`
}

type WorkflowNode struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters"`
}

type Connection struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Branch string `json:"branch,omitempty"`
}

// Validate checks structural integrity: at least one node, unique node ids,
// and connections that reference declared nodes only.
func (d *WorkflowDocument) Validate() error {
	if d == nil {
		return ErrInvalidDocument
	}
	if len(d.Nodes) == 0 {
		return ErrInvalidDocument
	}
	ids := map[string]struct{}{}
	for _, node := range d.Nodes {
		id := strings.TrimSpace(node.ID)
		if id == "" || strings.TrimSpace(node.Type) == "" {
			return ErrInvalidDocument
		}
		if _, dup := ids[id]; dup {
			return ErrInvalidDocument
		}
		ids[id] = struct{}{}
	}
	for _, connection := range d.Connections {
		if _, ok := ids[connection.From]; !ok {
			return ErrInvalidDocument
		}
		if _, ok := ids[connection.To]; !ok {
			return ErrInvalidDocument
		}
	}
	return nil
}

// GenerationContext is the assembled grounding material sent alongside the
// prompt: derived hint labels plus the catalog rows they matched. Intent is
// empty when classification found nothing.
type GenerationContext struct {
	Hints      []string
	Intent     string
	Confidence float64
	Selection  *catalogdomain.Selection
}

// Attachment is an inbound file reference submitted with a prompt. It is
// stored with the prompt message, never forwarded to the model.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Outcome is the result of a completed generation. Unbilled marks the rare
// case where the document was produced but the spend lost a concurrent race.
type Outcome struct {
	GenerationID     snowflake.ID
	ConversationID   snowflake.ID
	Document         *WorkflowDocument
	RawDocument      datatypes.JSON
	CreditsRemaining int64
	Unbilled         bool
}

// Outcome labels shared by metrics and generation audit rows.
const (
	OutcomeSucceeded           = "succeeded"
	OutcomeTimeout             = "timeout"
	OutcomeUpstreamError       = "upstream_error"
	OutcomeUnparsable          = "unparsable_output"
	OutcomeInsufficientCredits = "insufficient_credits"
	OutcomeTrialExpired        = "trial_expired"
)

var (
	ErrInvalidPrompt    = errors.New("invalid_prompt")
	ErrInvalidDocument  = errors.New("invalid_document")
	ErrTimeout          = errors.New("generation_timeout")
	ErrUnparsableOutput = errors.New("unparsable_output")
	ErrTrialExpired     = errors.New("trial_expired")
)

// UpstreamError carries the provider status for non-2xx completions. The
// body is truncated before it gets here.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream_error: status %d", e.Status)
}
