package domain

import (
	"context"
	"net/http"
)

// Service reconciles provider webhook deliveries against the credit ledger.
type Service interface {
	// Handle verifies, parses and applies one webhook delivery. Redelivery of
	// an already processed event returns ErrEventAlreadyProcessed so the
	// transport can acknowledge without reapplying.
	Handle(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
