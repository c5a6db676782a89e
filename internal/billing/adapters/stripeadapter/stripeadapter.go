package stripeadapter

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	billingdomain "github.com/flowforge/flowforge/internal/billing/domain"
	creditdomain "github.com/flowforge/flowforge/internal/credit/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg billingdomain.AdapterConfig) (billingdomain.Adapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, billingdomain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return billingdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return billingdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return billingdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*billingdomain.BillingEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, billingdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return a.parseCheckoutSession(event, payload)
	case "customer.subscription.updated":
		return a.parseSubscription(event, payload, billingdomain.EventKindSubscriptionUpdated)
	case "customer.subscription.deleted":
		return a.parseSubscription(event, payload, billingdomain.EventKindSubscriptionDeleted)
	case "invoice.payment_succeeded":
		return a.parseInvoice(event, payload, billingdomain.EventKindInvoicePaymentSucceeded)
	case "invoice.payment_failed":
		return a.parseInvoice(event, payload, billingdomain.EventKindInvoicePaymentFailed)
	default:
		return nil, billingdomain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID       string         `json:"id"`
	Mode     string         `json:"mode"`
	Customer string         `json:"customer"`
	Created  int64          `json:"created"`
	Metadata map[string]any `json:"metadata"`
}

type stripeSubscription struct {
	ID       string         `json:"id"`
	Status   string         `json:"status"`
	Customer string         `json:"customer"`
	Created  int64          `json:"created"`
	Metadata map[string]any `json:"metadata"`
}

type stripeInvoice struct {
	ID       string         `json:"id"`
	Customer string         `json:"customer"`
	Created  int64          `json:"created"`
	Metadata map[string]any `json:"metadata"`
}

func (a *Adapter) parseCheckoutSession(event stripeEvent, payload []byte) (*billingdomain.BillingEvent, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}

	userID := readMetadataValue(session.Metadata, "user_id")
	if userID == "" {
		return nil, billingdomain.ErrInvalidUser
	}

	mode := billingdomain.CheckoutMode(strings.TrimSpace(session.Mode))
	switch mode {
	case billingdomain.CheckoutModeSubscription, billingdomain.CheckoutModePayment:
	default:
		return nil, billingdomain.ErrInvalidEvent
	}

	result := &billingdomain.BillingEvent{
		Provider:    "stripe",
		EventID:     event.ID,
		Kind:        billingdomain.EventKindCheckoutCompleted,
		Mode:        mode,
		UserID:      userID,
		CustomerRef: strings.TrimSpace(session.Customer),
		OccurredAt:  timestamp(session.Created, event.Created),
		RawPayload:  payload,
	}

	if mode == billingdomain.CheckoutModeSubscription {
		plan := creditdomain.Plan(readMetadataValue(session.Metadata, "plan"))
		if _, ok := billingdomain.PlanSpecFor(plan); !ok {
			return nil, billingdomain.ErrInvalidEvent
		}
		result.Plan = plan
		return result, nil
	}

	credits, err := strconv.ParseInt(readMetadataValue(session.Metadata, "credits"), 10, 64)
	if err != nil || credits <= 0 {
		return nil, billingdomain.ErrInvalidEvent
	}
	result.Plan = creditdomain.PlanPayg
	result.Credits = credits
	return result, nil
}

func (a *Adapter) parseSubscription(event stripeEvent, payload []byte, kind billingdomain.EventKind) (*billingdomain.BillingEvent, error) {
	var subscription stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &subscription); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}

	userID := readMetadataValue(subscription.Metadata, "user_id")
	if userID == "" {
		return nil, billingdomain.ErrInvalidUser
	}

	return &billingdomain.BillingEvent{
		Provider:           "stripe",
		EventID:            event.ID,
		Kind:               kind,
		UserID:             userID,
		CustomerRef:        strings.TrimSpace(subscription.Customer),
		SubscriptionStatus: strings.TrimSpace(subscription.Status),
		OccurredAt:         timestamp(subscription.Created, event.Created),
		RawPayload:         payload,
	}, nil
}

func (a *Adapter) parseInvoice(event stripeEvent, payload []byte, kind billingdomain.EventKind) (*billingdomain.BillingEvent, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}

	userID := readMetadataValue(invoice.Metadata, "user_id")
	if userID == "" {
		return nil, billingdomain.ErrInvalidUser
	}

	result := &billingdomain.BillingEvent{
		Provider:    "stripe",
		EventID:     event.ID,
		Kind:        kind,
		UserID:      userID,
		CustomerRef: strings.TrimSpace(invoice.Customer),
		OccurredAt:  timestamp(invoice.Created, event.Created),
		RawPayload:  payload,
	}

	if kind == billingdomain.EventKindInvoicePaymentSucceeded {
		plan := creditdomain.Plan(readMetadataValue(invoice.Metadata, "plan"))
		if _, ok := billingdomain.PlanSpecFor(plan); !ok {
			return nil, billingdomain.ErrInvalidEvent
		}
		result.Plan = plan
	}

	return result, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	}
	return ""
}
