package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Conversation struct {
	ID        snowflake.ID `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	UserID    string       `json:"user_id" gorm:"type:text;not null;index"`
	Title     string       `json:"title" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

type Message struct {
	ID             snowflake.ID   `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	ConversationID snowflake.ID   `json:"conversation_id,string" gorm:"not null;index"`
	Role           Role           `json:"role" gorm:"type:text;not null"`
	Content        string         `json:"content" gorm:"type:text;not null"`
	Intent         *string        `json:"intent,omitempty" gorm:"type:text"`
	Confidence     *float64       `json:"confidence,omitempty"`
	Document       datatypes.JSON `json:"document,omitempty"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (Message) TableName() string { return "conversation_messages" }

// GenerationRecord is the audit row for one generation attempt, whatever its
// outcome. Its id is the generation id the usage CreditHistoryEntry points
// at, so a spend joins back to its attempt. CreditsCharged stays zero on
// paths that never reach the spend.
type GenerationRecord struct {
	ID             snowflake.ID   `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	UserID         string         `json:"user_id" gorm:"type:text;not null;index"`
	ConversationID *snowflake.ID  `json:"conversation_id,string,omitempty"`
	Model          string         `json:"model" gorm:"type:text;not null"`
	Prompt         string         `json:"prompt" gorm:"type:text;not null"`
	Document       datatypes.JSON `json:"document,omitempty"`
	Outcome        string         `json:"outcome" gorm:"type:text;not null"`
	CreditsCharged int64          `json:"credits_charged" gorm:"not null;default:0"`
	Unbilled       bool           `json:"unbilled" gorm:"not null;default:false"`
	LatencyMS      int64          `json:"latency_ms" gorm:"not null;default:0"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (GenerationRecord) TableName() string { return "generation_records" }

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidConversation  = errors.New("invalid_conversation")
	ErrConversationNotFound = errors.New("conversation_not_found")
	ErrInvalidMessage       = errors.New("invalid_message")
)
