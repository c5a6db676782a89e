package server

import (
	"net/http"
	"strconv"
	"time"

	creditdomain "github.com/flowforge/flowforge/internal/credit/domain"
	"github.com/gin-gonic/gin"
)

type creditsResponse struct {
	Plan               string     `json:"plan"`
	Credits            int64      `json:"credits"`
	Status             string     `json:"status"`
	SubscriptionStatus string     `json:"subscription_status"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
}

func (s *Server) GetCredits(c *gin.Context) {
	ctx := c.Request.Context()
	status, entitlement, err := s.creditSvc.CheckEntitlement(ctx, s.currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := creditsResponse{
		Plan:               string(entitlement.Plan),
		Credits:            entitlement.Credits,
		Status:             string(status),
		SubscriptionStatus: string(entitlement.SubscriptionStatus),
	}
	if !entitlement.TrialEndsAt.IsZero() {
		trialEndsAt := entitlement.TrialEndsAt
		resp.TrialEndsAt = &trialEndsAt
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListCreditHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	entries, err := s.creditSvc.History(c.Request.Context(), s.currentUserID(c), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if entries == nil {
		entries = []creditdomain.CreditHistoryEntry{}
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
