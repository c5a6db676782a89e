package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/flowforge/flowforge/internal/clock"
	conversationdomain "github.com/flowforge/flowforge/internal/conversation/domain"
	"github.com/flowforge/flowforge/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxTitleRunes   = 80
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  conversationdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  conversationdomain.Repository
}

func New(p Params) conversationdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("conversation.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, userID string, id snowflake.ID) (*conversationdomain.Conversation, []conversationdomain.Message, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, conversationdomain.ErrInvalidUser
	}
	conversation, err := s.repo.FindConversation(ctx, s.db, userID, id)
	if err != nil {
		return nil, nil, err
	}
	if conversation == nil {
		return nil, nil, conversationdomain.ErrConversationNotFound
	}
	messages, err := s.repo.ListMessages(ctx, s.db, conversation.ID)
	if err != nil {
		return nil, nil, err
	}
	return conversation, messages, nil
}

func (s *Service) List(ctx context.Context, userID string, page pagination.Pagination) (*conversationdomain.ListResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, conversationdomain.ErrInvalidUser
	}

	limit := page.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var afterID snowflake.ID
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, conversationdomain.ErrInvalidConversation
		}
		parsed, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, conversationdomain.ErrInvalidConversation
		}
		afterID = parsed
	}

	items, err := s.repo.ListConversations(ctx, s.db, userID, afterID, limit)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(limit), func(c *conversationdomain.Conversation) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: c.ID.String()})
		return token
	})
	if len(items) > limit {
		items = items[:limit]
	}

	return &conversationdomain.ListResult{
		Conversations: items,
		PageInfo:      pageInfo,
	}, nil
}

func (s *Service) Delete(ctx context.Context, userID string, id snowflake.ID) error {
	if strings.TrimSpace(userID) == "" {
		return conversationdomain.ErrInvalidUser
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		deleted, err := s.repo.DeleteConversation(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if !deleted {
			return conversationdomain.ErrConversationNotFound
		}
		return s.repo.DeleteMessages(ctx, tx, id)
	})
}

func (s *Service) AppendExchange(ctx context.Context, userID string, conversationID snowflake.ID, exchange conversationdomain.Exchange) (*conversationdomain.Conversation, *conversationdomain.Message, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, conversationdomain.ErrInvalidUser
	}
	prompt := strings.TrimSpace(exchange.Prompt)
	if prompt == "" {
		return nil, nil, conversationdomain.ErrInvalidMessage
	}

	now := s.clock.Now()
	var conversation *conversationdomain.Conversation
	var reply *conversationdomain.Message

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if conversationID == 0 {
			conversation = &conversationdomain.Conversation{
				ID:        s.genID.Generate(),
				UserID:    userID,
				Title:     titleFromPrompt(prompt),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.repo.InsertConversation(ctx, tx, conversation); err != nil {
				return err
			}
		} else {
			existing, err := s.repo.FindConversation(ctx, tx, userID, conversationID)
			if err != nil {
				return err
			}
			if existing == nil {
				return conversationdomain.ErrConversationNotFound
			}
			conversation = existing
			if err := s.repo.TouchConversation(ctx, tx, conversation.ID, now); err != nil {
				return err
			}
		}

		userMessage := &conversationdomain.Message{
			ID:             s.genID.Generate(),
			ConversationID: conversation.ID,
			Role:           conversationdomain.RoleUser,
			Content:        prompt,
			Intent:         exchange.Intent,
			Confidence:     exchange.Confidence,
			CreatedAt:      now,
		}
		if err := s.repo.InsertMessage(ctx, tx, userMessage); err != nil {
			return err
		}

		reply = &conversationdomain.Message{
			ID:             s.genID.Generate(),
			ConversationID: conversation.ID,
			Role:           conversationdomain.RoleAssistant,
			Content:        "",
			Document:       exchange.Document,
			Metadata:       exchange.Metadata,
			CreatedAt:      now,
		}
		return s.repo.InsertMessage(ctx, tx, reply)
	})
	if err != nil {
		return nil, nil, err
	}

	return conversation, reply, nil
}

func (s *Service) RecordGeneration(ctx context.Context, record *conversationdomain.GenerationRecord) error {
	if record == nil {
		return conversationdomain.ErrInvalidMessage
	}
	if record.ID == 0 {
		record.ID = s.genID.Generate()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.clock.Now()
	}
	return s.repo.InsertGenerationRecord(ctx, s.db, record)
}

func titleFromPrompt(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	runes := []rune(title)
	if len(runes) > maxTitleRunes {
		title = string(runes[:maxTitleRunes])
	}
	return title
}
