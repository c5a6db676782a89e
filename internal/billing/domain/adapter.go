package domain

import (
	"context"
	"net/http"
)

type AdapterConfig struct {
	WebhookSecret string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

// Adapter translates a provider webhook into a canonical BillingEvent.
// Verify must reject before Parse runs; unrecognized event types return
// ErrEventIgnored so the reconciler can acknowledge without side effects.
type Adapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*BillingEvent, error)
}
