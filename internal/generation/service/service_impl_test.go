package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowforge/flowforge/internal/config"
	conversationdomain "github.com/flowforge/flowforge/internal/conversation/domain"
	creditdomain "github.com/flowforge/flowforge/internal/credit/domain"
	generationdomain "github.com/flowforge/flowforge/internal/generation/domain"
	generationservice "github.com/flowforge/flowforge/internal/generation/service"
	"github.com/flowforge/flowforge/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeCreditService struct {
	creditdomain.Service

	status     creditdomain.EntitlementStatus
	checkErr   error
	spendErr   error
	balance    int64
	spendCalls int
	onSpend    func(relatedGenerationID snowflake.ID)
}

func (f *fakeCreditService) CheckEntitlement(ctx context.Context, userID string) (creditdomain.EntitlementStatus, *creditdomain.Entitlement, error) {
	if f.checkErr != nil {
		return "", nil, f.checkErr
	}
	return f.status, &creditdomain.Entitlement{UserID: userID}, nil
}

func (f *fakeCreditService) TrySpend(ctx context.Context, userID string, amount int64, relatedGenerationID snowflake.ID) (int64, error) {
	f.spendCalls++
	if f.onSpend != nil {
		f.onSpend(relatedGenerationID)
	}
	if f.spendErr != nil {
		return 0, f.spendErr
	}
	f.balance -= amount
	return f.balance, nil
}

type fakeConversationService struct {
	appendErr    error
	conversation *conversationdomain.Conversation
	records      []*conversationdomain.GenerationRecord
	appended     int
	lastExchange conversationdomain.Exchange
}

func (f *fakeConversationService) Get(ctx context.Context, userID string, id snowflake.ID) (*conversationdomain.Conversation, []conversationdomain.Message, error) {
	return nil, nil, conversationdomain.ErrConversationNotFound
}

func (f *fakeConversationService) List(ctx context.Context, userID string, page pagination.Pagination) (*conversationdomain.ListResult, error) {
	return &conversationdomain.ListResult{}, nil
}

func (f *fakeConversationService) Delete(ctx context.Context, userID string, id snowflake.ID) error {
	return nil
}

func (f *fakeConversationService) AppendExchange(ctx context.Context, userID string, conversationID snowflake.ID, exchange conversationdomain.Exchange) (*conversationdomain.Conversation, *conversationdomain.Message, error) {
	if f.appendErr != nil {
		return nil, nil, f.appendErr
	}
	f.appended++
	f.lastExchange = exchange
	return f.conversation, &conversationdomain.Message{}, nil
}

func (f *fakeConversationService) RecordGeneration(ctx context.Context, record *conversationdomain.GenerationRecord) error {
	f.records = append(f.records, record)
	return nil
}

type fakeClient struct {
	document *generationdomain.WorkflowDocument
	raw      []byte
	err      error
	calls    int
}

func (f *fakeClient) GenerateDocument(ctx context.Context, prompt string, genCtx *generationdomain.GenerationContext) (*generationdomain.WorkflowDocument, []byte, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.document, f.raw, nil
}

type fakeContextBuilder struct{}

func (fakeContextBuilder) Build(ctx context.Context, prompt string) (*generationdomain.GenerationContext, error) {
	return &generationdomain.GenerationContext{
		Hints:      []string{"webhook"},
		Intent:     "webhook",
		Confidence: 0.6,
	}, nil
}

type harness struct {
	svc          generationdomain.Service
	credit       *fakeCreditService
	conversation *fakeConversationService
	client       *fakeClient
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	node, err := snowflake.NewNode(21)
	require.NoError(t, err)

	credit := &fakeCreditService{status: creditdomain.StatusActive, balance: 50}
	conversation := &fakeConversationService{
		conversation: &conversationdomain.Conversation{ID: node.Generate(), Title: "webhook to slack"},
	}
	client := &fakeClient{
		document: &generationdomain.WorkflowDocument{
			Name: "webhook to slack",
			Nodes: []generationdomain.WorkflowNode{
				{ID: "trigger", Type: "webhook"},
			},
		},
		raw: []byte(`{"name":"webhook to slack","nodes":[{"id":"trigger","type":"webhook"}]}`),
	}

	svc := generationservice.New(generationservice.Params{
		Log:             zap.NewNop(),
		Config:          config.Config{Generation: config.GenerationConfig{Model: "wf-builder-1"}},
		GenID:           node,
		Clock:           &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		CreditSvc:       credit,
		ConversationSvc: conversation,
		ContextBuilder:  fakeContextBuilder{},
		Client:          client,
	})

	return &harness{svc: svc, credit: credit, conversation: conversation, client: client}
}

func TestGenerateHappyPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	outcome, err := h.svc.Generate(ctx, "user-1", 0, "post webhook payloads to slack", nil)
	require.NoError(t, err)

	assert.NotZero(t, outcome.GenerationID)
	assert.Equal(t, h.conversation.conversation.ID, outcome.ConversationID)
	assert.Equal(t, int64(49), outcome.CreditsRemaining)
	assert.False(t, outcome.Unbilled)
	assert.Equal(t, 1, h.credit.spendCalls)
	assert.Equal(t, 1, h.conversation.appended)

	require.Len(t, h.conversation.records, 1)
	record := h.conversation.records[0]
	assert.Equal(t, outcome.GenerationID, record.ID)
	assert.Equal(t, generationdomain.OutcomeSucceeded, record.Outcome)
	assert.Equal(t, int64(creditdomain.SpendPerRun), record.CreditsCharged)
	assert.Equal(t, "post webhook payloads to slack", record.Prompt)
	assert.Equal(t, string(h.client.raw), string(record.Document))

	require.NotNil(t, h.conversation.lastExchange.Intent)
	assert.Equal(t, "webhook", *h.conversation.lastExchange.Intent)
	require.NotNil(t, h.conversation.lastExchange.Confidence)
	assert.Equal(t, 0.6, *h.conversation.lastExchange.Confidence)
}

func TestGenerateRecordIDMatchesSpendReference(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var spentAgainst snowflake.ID
	h.credit.onSpend = func(relatedGenerationID snowflake.ID) {
		spentAgainst = relatedGenerationID
	}

	outcome, err := h.svc.Generate(ctx, "user-1", 0, "post webhook payloads to slack", nil)
	require.NoError(t, err)

	require.Len(t, h.conversation.records, 1)
	assert.Equal(t, spentAgainst, h.conversation.records[0].ID)
	assert.Equal(t, outcome.GenerationID, spentAgainst)
}

func TestGenerateStoresAttachmentsInMetadata(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	attachments := []generationdomain.Attachment{
		{Name: "orders.csv", MimeType: "text/csv", Data: "aGVsbG8="},
	}
	_, err := h.svc.Generate(ctx, "user-1", 0, "post webhook payloads to slack", attachments)
	require.NoError(t, err)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(h.conversation.lastExchange.Metadata, &meta))
	stored, ok := meta["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, stored, 1)
	first := stored[0].(map[string]any)
	assert.Equal(t, "orders.csv", first["name"])
	assert.Equal(t, "text/csv", first["mime_type"])
}

func TestGenerateDeniedEntitlementNeverCallsModel(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		status      creditdomain.EntitlementStatus
		wantErr     error
		wantOutcome string
	}{
		{
			name:        "exhausted",
			status:      creditdomain.StatusExhausted,
			wantErr:     creditdomain.ErrInsufficientCredits,
			wantOutcome: generationdomain.OutcomeInsufficientCredits,
		},
		{
			name:        "expired",
			status:      creditdomain.StatusExpired,
			wantErr:     generationdomain.ErrTrialExpired,
			wantOutcome: generationdomain.OutcomeTrialExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.credit.status = tt.status

			_, err := h.svc.Generate(ctx, "user-1", 0, "post webhook payloads to slack", nil)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, h.client.calls)
			assert.Equal(t, 0, h.credit.spendCalls)

			require.Len(t, h.conversation.records, 1)
			assert.Equal(t, tt.wantOutcome, h.conversation.records[0].Outcome)
			assert.Equal(t, int64(0), h.conversation.records[0].CreditsCharged)
		})
	}
}

func TestGenerateFailureChargesNothing(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		clientErr   error
		wantOutcome string
	}{
		{
			name:        "timeout",
			clientErr:   generationdomain.ErrTimeout,
			wantOutcome: generationdomain.OutcomeTimeout,
		},
		{
			name:        "unparsable output",
			clientErr:   generationdomain.ErrUnparsableOutput,
			wantOutcome: generationdomain.OutcomeUnparsable,
		},
		{
			name:        "upstream error",
			clientErr:   &generationdomain.UpstreamError{Status: 503},
			wantOutcome: generationdomain.OutcomeUpstreamError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.client.err = tt.clientErr

			_, err := h.svc.Generate(ctx, "user-1", 0, "post webhook payloads to slack", nil)
			require.Error(t, err)
			assert.Equal(t, 0, h.credit.spendCalls)
			assert.Equal(t, 0, h.conversation.appended)

			require.Len(t, h.conversation.records, 1)
			assert.Equal(t, tt.wantOutcome, h.conversation.records[0].Outcome)
		})
	}
}

func TestGenerateSpendRaceReturnsUnbilledDocument(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.credit.spendErr = creditdomain.ErrInsufficientCredits

	outcome, err := h.svc.Generate(ctx, "user-1", 0, "post webhook payloads to slack", nil)
	require.NoError(t, err)

	assert.True(t, outcome.Unbilled)
	assert.Equal(t, int64(0), outcome.CreditsRemaining)
	assert.NotNil(t, outcome.Document)
	assert.Equal(t, 1, h.conversation.appended)

	require.Len(t, h.conversation.records, 1)
	record := h.conversation.records[0]
	assert.True(t, record.Unbilled)
	assert.Equal(t, int64(0), record.CreditsCharged)
	assert.Equal(t, generationdomain.OutcomeSucceeded, record.Outcome)
}

func TestGeneratePersistenceGapStillReturnsDocument(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.conversation.appendErr = gorm.ErrInvalidTransaction

	outcome, err := h.svc.Generate(ctx, "user-1", 0, "post webhook payloads to slack", nil)
	require.NoError(t, err)

	assert.NotNil(t, outcome.Document)
	assert.Zero(t, outcome.ConversationID)
	assert.Equal(t, 1, h.credit.spendCalls)

	require.Len(t, h.conversation.records, 1)
	assert.Equal(t, generationdomain.OutcomeSucceeded, h.conversation.records[0].Outcome)
	assert.Equal(t, int64(creditdomain.SpendPerRun), h.conversation.records[0].CreditsCharged)
}

func TestGenerateRejectsBadPrompts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.Generate(ctx, "user-1", 0, "   ", nil)
	assert.ErrorIs(t, err, generationdomain.ErrInvalidPrompt)

	long := make([]rune, 4001)
	for i := range long {
		long[i] = 'a'
	}
	_, err = h.svc.Generate(ctx, "user-1", 0, string(long), nil)
	assert.ErrorIs(t, err, generationdomain.ErrInvalidPrompt)

	_, err = h.svc.Generate(ctx, "", 0, "post webhook payloads to slack", nil)
	assert.ErrorIs(t, err, creditdomain.ErrInvalidUser)

	assert.Equal(t, 0, h.client.calls)
}

func TestGenerateEntitlementLookupFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.credit.checkErr = errors.New("db down")

	_, err := h.svc.Generate(ctx, "user-1", 0, "post webhook payloads to slack", nil)
	require.Error(t, err)
	assert.Equal(t, 0, h.client.calls)
	assert.Empty(t, h.conversation.records)
}
