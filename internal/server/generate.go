package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	generationdomain "github.com/flowforge/flowforge/internal/generation/domain"
	"github.com/gin-gonic/gin"
)

type generateRequest struct {
	Prompt         string                        `json:"prompt"`
	ConversationID string                        `json:"conversation_id"`
	Attachments    []generationdomain.Attachment `json:"attachments"`
}

type generateResponse struct {
	GenerationID     string          `json:"generation_id"`
	ConversationID   string          `json:"conversation_id,omitempty"`
	Document         json.RawMessage `json:"document"`
	CreditsRemaining int64           `json:"credits_remaining"`
	Unbilled         bool            `json:"unbilled,omitempty"`
}

func (s *Server) GenerateWorkflow(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var conversationID snowflake.ID
	if trimmed := strings.TrimSpace(req.ConversationID); trimmed != "" {
		parsed, err := snowflake.ParseString(trimmed)
		if err != nil {
			AbortWithError(c, newValidationError("conversation_id", "invalid_conversation", "invalid conversation id"))
			return
		}
		conversationID = parsed
	}

	outcome, err := s.generationSvc.Generate(c.Request.Context(), s.currentUserID(c), conversationID, req.Prompt, req.Attachments)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := generateResponse{
		GenerationID:     outcome.GenerationID.String(),
		Document:         json.RawMessage(outcome.RawDocument),
		CreditsRemaining: outcome.CreditsRemaining,
		Unbilled:         outcome.Unbilled,
	}
	if outcome.ConversationID != 0 {
		resp.ConversationID = outcome.ConversationID.String()
	}

	c.JSON(http.StatusOK, resp)
}
