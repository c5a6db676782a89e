package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	conversationdomain "github.com/flowforge/flowforge/internal/conversation/domain"
	conversationrepo "github.com/flowforge/flowforge/internal/conversation/repository"
	conversationservice "github.com/flowforge/flowforge/internal/conversation/service"
	"github.com/flowforge/flowforge/pkg/db/pagination"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func setup(t *testing.T) (conversationdomain.Service, *gorm.DB, *fakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&conversationdomain.Conversation{},
		&conversationdomain.Message{},
		&conversationdomain.GenerationRecord{},
	))

	node, err := snowflake.NewNode(15)
	require.NoError(t, err)

	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := conversationservice.New(conversationservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  conversationrepo.Provide(),
	})
	return svc, db, clk
}

func exchangeOf(prompt string, document datatypes.JSON) conversationdomain.Exchange {
	return conversationdomain.Exchange{Prompt: prompt, Document: document}
}

func TestAppendExchangeStartsConversation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	document := datatypes.JSON(`{"name":"wf","nodes":[{"id":"a","type":"webhook"}]}`)
	conversation, reply, err := svc.AppendExchange(ctx, "user-1", 0, exchangeOf("  post   webhook payloads to slack  ", document))
	require.NoError(t, err)

	assert.Equal(t, "post webhook payloads to slack", conversation.Title)
	assert.Equal(t, conversationdomain.RoleAssistant, reply.Role)
	assert.Equal(t, string(document), string(reply.Document))

	got, messages, err := svc.Get(ctx, "user-1", conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, conversation.ID, got.ID)
	require.Len(t, messages, 2)
	assert.Equal(t, conversationdomain.RoleUser, messages[0].Role)
	// The title collapses whitespace; the stored prompt keeps it as typed.
	assert.Equal(t, "post   webhook payloads to slack", messages[0].Content)
	assert.Equal(t, conversationdomain.RoleAssistant, messages[1].Role)
}

func TestAppendExchangeStoresIntentOnUserMessage(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	intent := "slack"
	confidence := 0.9
	exchange := conversationdomain.Exchange{
		Prompt:     "post to slack",
		Intent:     &intent,
		Confidence: &confidence,
	}
	conversation, _, err := svc.AppendExchange(ctx, "user-1", 0, exchange)
	require.NoError(t, err)

	_, messages, err := svc.Get(ctx, "user-1", conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.NotNil(t, messages[0].Intent)
	assert.Equal(t, "slack", *messages[0].Intent)
	require.NotNil(t, messages[0].Confidence)
	assert.Equal(t, 0.9, *messages[0].Confidence)
	assert.Nil(t, messages[1].Intent)
}

func TestAppendExchangeTruncatesLongTitle(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	prompt := strings.Repeat("workflow ", 30)
	conversation, _, err := svc.AppendExchange(ctx, "user-1", 0, exchangeOf(prompt, nil))
	require.NoError(t, err)
	assert.Equal(t, 80, len([]rune(conversation.Title)))
}

func TestAppendExchangeContinuesConversation(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := setup(t)

	conversation, _, err := svc.AppendExchange(ctx, "user-1", 0, exchangeOf("first prompt", nil))
	require.NoError(t, err)

	clk.now = clk.now.Add(time.Minute)
	same, _, err := svc.AppendExchange(ctx, "user-1", conversation.ID, exchangeOf("second prompt", nil))
	require.NoError(t, err)
	assert.Equal(t, conversation.ID, same.ID)

	got, messages, err := svc.Get(ctx, "user-1", conversation.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 4)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestAppendExchangeOwnerScoped(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	conversation, _, err := svc.AppendExchange(ctx, "user-1", 0, exchangeOf("first prompt", nil))
	require.NoError(t, err)

	_, _, err = svc.AppendExchange(ctx, "user-2", conversation.ID, exchangeOf("hijack attempt", nil))
	assert.ErrorIs(t, err, conversationdomain.ErrConversationNotFound)
}

func TestDeleteRemovesConversationAndMessages(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := setup(t)

	conversation, _, err := svc.AppendExchange(ctx, "user-1", 0, exchangeOf("first prompt", nil))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "user-1", conversation.ID))

	_, _, err = svc.Get(ctx, "user-1", conversation.ID)
	assert.ErrorIs(t, err, conversationdomain.ErrConversationNotFound)

	var count int64
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM conversation_messages WHERE conversation_id = ?", conversation.ID).Scan(&count).Error)
	assert.Equal(t, int64(0), count)

	assert.ErrorIs(t, svc.Delete(ctx, "user-1", conversation.ID), conversationdomain.ErrConversationNotFound)
}

func TestDeleteOwnerScoped(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	conversation, _, err := svc.AppendExchange(ctx, "user-1", 0, exchangeOf("first prompt", nil))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, "user-2", conversation.ID), conversationdomain.ErrConversationNotFound)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := setup(t)

	var ids []snowflake.ID
	for i := 0; i < 5; i++ {
		clk.now = clk.now.Add(time.Minute)
		conversation, _, err := svc.AppendExchange(ctx, "user-1", 0, exchangeOf(fmt.Sprintf("prompt %d", i), nil))
		require.NoError(t, err)
		ids = append(ids, conversation.ID)
	}

	first, err := svc.List(ctx, "user-1", pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Conversations, 2)
	assert.Equal(t, ids[4], first.Conversations[0].ID)
	assert.Equal(t, ids[3], first.Conversations[1].ID)
	require.NotNil(t, first.PageInfo)
	assert.True(t, first.PageInfo.HasMore)

	second, err := svc.List(ctx, "user-1", pagination.Pagination{PageSize: 2, PageToken: first.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Conversations, 2)
	assert.Equal(t, ids[2], second.Conversations[0].ID)
	assert.Equal(t, ids[1], second.Conversations[1].ID)

	third, err := svc.List(ctx, "user-1", pagination.Pagination{PageSize: 2, PageToken: second.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, third.Conversations, 1)
	assert.Equal(t, ids[0], third.Conversations[0].ID)
	assert.False(t, third.PageInfo.HasMore)
}

func TestListRejectsGarbageToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	_, err := svc.List(ctx, "user-1", pagination.Pagination{PageToken: "not-a-cursor"})
	assert.ErrorIs(t, err, conversationdomain.ErrInvalidConversation)
}

func TestRecordGenerationFillsDefaults(t *testing.T) {
	ctx := context.Background()
	svc, db, clk := setup(t)

	record := &conversationdomain.GenerationRecord{
		UserID:  "user-1",
		Model:   "wf-builder-1",
		Outcome: "succeeded",
	}
	require.NoError(t, svc.RecordGeneration(ctx, record))
	assert.NotZero(t, record.ID)
	assert.Equal(t, clk.now, record.CreatedAt)

	var count int64
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM generation_records WHERE user_id = ?", "user-1").Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}
