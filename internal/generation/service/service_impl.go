package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowforge/flowforge/internal/clock"
	"github.com/flowforge/flowforge/internal/config"
	conversationdomain "github.com/flowforge/flowforge/internal/conversation/domain"
	creditdomain "github.com/flowforge/flowforge/internal/credit/domain"
	generationdomain "github.com/flowforge/flowforge/internal/generation/domain"
	obsmetrics "github.com/flowforge/flowforge/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const maxPromptRunes = 4000

type Params struct {
	fx.In

	Log             *zap.Logger
	Config          config.Config
	GenID           *snowflake.Node
	Clock           clock.Clock
	CreditSvc       creditdomain.Service
	ConversationSvc conversationdomain.Service
	ContextBuilder  generationdomain.ContextBuilder
	Client          generationdomain.Client
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log             *zap.Logger
	cfg             config.Config
	genID           *snowflake.Node
	clock           clock.Clock
	creditSvc       creditdomain.Service
	conversationSvc conversationdomain.Service
	contextBuilder  generationdomain.ContextBuilder
	client          generationdomain.Client
	obsMetrics      *obsmetrics.Metrics
}

func New(p Params) generationdomain.Service {
	return &Service{
		log:             p.Log.Named("generation.service"),
		cfg:             p.Config,
		genID:           p.GenID,
		clock:           p.Clock,
		creditSvc:       p.CreditSvc,
		conversationSvc: p.ConversationSvc,
		contextBuilder:  p.ContextBuilder,
		client:          p.Client,
		obsMetrics:      p.ObsMetrics,
	}
}

func (s *Service) Generate(ctx context.Context, userID string, conversationID snowflake.ID, prompt string, attachments []generationdomain.Attachment) (*generationdomain.Outcome, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, creditdomain.ErrInvalidUser
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" || len([]rune(prompt)) > maxPromptRunes {
		return nil, generationdomain.ErrInvalidPrompt
	}

	// One id per attempt. The audit row and the usage history entry both
	// carry it, so a spend joins back to the attempt that caused it.
	generationID := s.genID.Generate()
	run := attempt{generationID: generationID, userID: userID, prompt: prompt}

	// Entitlement gate. An account that cannot spend never reaches the
	// model, so a denied request costs nothing on either side.
	status, _, err := s.creditSvc.CheckEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !status.AllowsSpend() {
		switch status {
		case creditdomain.StatusExpired:
			s.finishAttempt(ctx, run, conversationID, generationdomain.OutcomeTrialExpired, 0, false, 0)
			return nil, generationdomain.ErrTrialExpired
		default:
			s.finishAttempt(ctx, run, conversationID, generationdomain.OutcomeInsufficientCredits, 0, false, 0)
			return nil, creditdomain.ErrInsufficientCredits
		}
	}

	genCtx, err := s.contextBuilder.Build(ctx, prompt)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	document, raw, err := s.client.GenerateDocument(ctx, prompt, genCtx)
	latency := time.Since(started).Milliseconds()
	if err != nil {
		s.finishAttempt(ctx, run, conversationID, classifyFailure(err), 0, false, latency)
		return nil, err
	}

	outcome := &generationdomain.Outcome{
		GenerationID: generationID,
		Document:     document,
		RawDocument:  datatypes.JSON(raw),
	}
	run.document = outcome.RawDocument

	// Spend after success. Losing a concurrent race here does not retract
	// the document; the unbilled flag surfaces the gap instead.
	charged := int64(creditdomain.SpendPerRun)
	remaining, err := s.creditSvc.TrySpend(ctx, userID, charged, generationID)
	if err != nil {
		charged = 0
		outcome.Unbilled = true
		if errors.Is(err, creditdomain.ErrInsufficientCredits) {
			s.log.Warn("generation unbilled after spend race",
				zap.String("user_id", userID),
				zap.String("generation_id", generationID.String()),
			)
		} else {
			s.log.Error("generation unbilled after spend failure",
				zap.String("user_id", userID),
				zap.String("generation_id", generationID.String()),
				zap.Error(err),
			)
		}
		if s.obsMetrics != nil {
			s.obsMetrics.RecordUnbilledGeneration(ctx)
		}
	} else {
		outcome.CreditsRemaining = remaining
	}

	meta := map[string]any{
		"generation_id": generationID.String(),
		"model":         s.cfg.Generation.Model,
		"hints":         genCtx.Hints,
		"unbilled":      outcome.Unbilled,
	}
	if len(attachments) > 0 {
		meta["attachments"] = attachments
	}
	metadata, _ := json.Marshal(meta)

	exchange := conversationdomain.Exchange{
		Prompt:   prompt,
		Document: outcome.RawDocument,
		Metadata: datatypes.JSON(metadata),
	}
	if genCtx.Intent != "" {
		intent := genCtx.Intent
		confidence := genCtx.Confidence
		exchange.Intent = &intent
		exchange.Confidence = &confidence
	}

	conversation, _, err := s.conversationSvc.AppendExchange(ctx, userID, conversationID, exchange)
	if err != nil {
		// The credit is already gone. The document still goes back to the
		// caller; the gap is logged for reconciliation.
		s.log.Error("persistence gap after spend",
			zap.String("user_id", userID),
			zap.String("generation_id", generationID.String()),
			zap.Int64("credits_charged", charged),
			zap.Error(err),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordPersistenceGap(ctx)
		}
		s.finishAttempt(ctx, run, conversationID, generationdomain.OutcomeSucceeded, charged, outcome.Unbilled, latency)
		return outcome, nil
	}
	outcome.ConversationID = conversation.ID

	s.finishAttempt(ctx, run, outcome.ConversationID, generationdomain.OutcomeSucceeded, charged, outcome.Unbilled, latency)
	return outcome, nil
}

// attempt carries the per-run constants every audit row needs.
type attempt struct {
	generationID snowflake.ID
	userID       string
	prompt       string
	document     datatypes.JSON
}

// finishAttempt records the audit row and metrics. Both are best effort and
// never change the caller's result.
func (s *Service) finishAttempt(ctx context.Context, run attempt, conversationID snowflake.ID, outcome string, charged int64, unbilled bool, latencyMS int64) {
	record := &conversationdomain.GenerationRecord{
		ID:             run.generationID,
		UserID:         run.userID,
		Model:          s.cfg.Generation.Model,
		Prompt:         run.prompt,
		Document:       run.document,
		Outcome:        outcome,
		CreditsCharged: charged,
		Unbilled:       unbilled,
		LatencyMS:      latencyMS,
		CreatedAt:      s.clock.Now(),
	}
	if conversationID != 0 {
		record.ConversationID = &conversationID
	}
	if err := s.conversationSvc.RecordGeneration(ctx, record); err != nil {
		s.log.Warn("failed to record generation attempt",
			zap.String("user_id", run.userID),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordGeneration(ctx, outcome)
	}
}

func classifyFailure(err error) string {
	switch {
	case errors.Is(err, generationdomain.ErrTimeout):
		return generationdomain.OutcomeTimeout
	case errors.Is(err, generationdomain.ErrUnparsableOutput), errors.Is(err, generationdomain.ErrInvalidDocument):
		return generationdomain.OutcomeUnparsable
	default:
		return generationdomain.OutcomeUpstreamError
	}
}
