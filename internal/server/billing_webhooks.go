package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	billingdomain "github.com/flowforge/flowforge/internal/billing/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) HandleBillingWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.billingSvc.Handle(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		// Redelivery of a processed event is acknowledged so the provider
		// stops retrying.
		if errors.Is(err, billingdomain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
