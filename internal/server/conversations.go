package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	conversationdomain "github.com/flowforge/flowforge/internal/conversation/domain"
	"github.com/flowforge/flowforge/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListConversations(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.conversationSvc.List(c.Request.Context(), s.currentUserID(c), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	conversations := result.Conversations
	if conversations == nil {
		conversations = []*conversationdomain.Conversation{}
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": conversations,
		"page_info":     result.PageInfo,
	})
}

func (s *Server) GetConversation(c *gin.Context) {
	id, err := parseConversationID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	conversation, messages, err := s.conversationSvc.Get(c.Request.Context(), s.currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if messages == nil {
		messages = []conversationdomain.Message{}
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation": conversation,
		"messages":     messages,
	})
}

func (s *Server) DeleteConversation(c *gin.Context) {
	id, err := parseConversationID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.conversationSvc.Delete(c.Request.Context(), s.currentUserID(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func parseConversationID(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param("id"))
	if raw == "" {
		return 0, newValidationError("id", "invalid_conversation", "invalid conversation id")
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, newValidationError("id", "invalid_conversation", "invalid conversation id")
	}
	return id, nil
}
