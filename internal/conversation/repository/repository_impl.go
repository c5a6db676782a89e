package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowforge/flowforge/internal/conversation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertConversation(ctx context.Context, db *gorm.DB, conversation *domain.Conversation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conversation.ID,
		conversation.UserID,
		conversation.Title,
		conversation.CreatedAt,
		conversation.UpdatedAt,
	).Error
}

func (r *repo) FindConversation(ctx context.Context, db *gorm.DB, userID string, id snowflake.ID) (*domain.Conversation, error) {
	var item domain.Conversation
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations
		 WHERE user_id = ? AND id = ?
		 LIMIT 1`,
		userID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListConversations(ctx context.Context, db *gorm.DB, userID string, afterID snowflake.ID, limit int) ([]*domain.Conversation, error) {
	var items []*domain.Conversation
	query := `SELECT id, user_id, title, created_at, updated_at
		 FROM conversations
		 WHERE user_id = ?`
	args := []any{userID}
	if afterID != 0 {
		query += ` AND id < ?`
		args = append(args, afterID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit+1)

	err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) TouchConversation(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		at,
		id,
	).Error
}

func (r *repo) DeleteConversation(ctx context.Context, db *gorm.DB, userID string, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM conversations WHERE user_id = ? AND id = ?`,
		userID,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) DeleteMessages(ctx context.Context, db *gorm.DB, conversationID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM conversation_messages WHERE conversation_id = ?`,
		conversationID,
	).Error
}

func (r *repo) InsertMessage(ctx context.Context, db *gorm.DB, message *domain.Message) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO conversation_messages (id, conversation_id, role, content, intent, confidence, document, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		message.ID,
		message.ConversationID,
		message.Role,
		message.Content,
		message.Intent,
		message.Confidence,
		message.Document,
		message.Metadata,
		message.CreatedAt,
	).Error
}

func (r *repo) ListMessages(ctx context.Context, db *gorm.DB, conversationID snowflake.ID) ([]domain.Message, error) {
	var items []domain.Message
	err := db.WithContext(ctx).Raw(
		`SELECT id, conversation_id, role, content, intent, confidence, document, metadata, created_at
		 FROM conversation_messages
		 WHERE conversation_id = ?
		 ORDER BY id ASC`,
		conversationID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertGenerationRecord(ctx context.Context, db *gorm.DB, record *domain.GenerationRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO generation_records (id, user_id, conversation_id, model, prompt, document, outcome, credits_charged, unbilled, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.ConversationID,
		record.Model,
		record.Prompt,
		record.Document,
		record.Outcome,
		record.CreditsCharged,
		record.Unbilled,
		record.LatencyMS,
		record.CreatedAt,
	).Error
}
