package contextbuilder

import (
	"context"
	"testing"

	catalogdomain "github.com/flowforge/flowforge/internal/catalog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDeriveHints(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   []string
	}{
		{
			name:   "slack notification",
			prompt: "A webhook fires, post the payload to our Slack channel",
			want:   []string{"slack", "notification", "webhook"},
		},
		{
			name:   "baseline follows matched hints",
			prompt: "post a message to a slack channel",
			want:   []string{"slack", "notification", "webhook"},
		},
		{
			name:   "scheduled report",
			prompt: "Email me a daily report of new sales every morning",
			want:   []string{"email", "notification", "schedule", "report", "webhook"},
		},
		{
			name:   "branching",
			prompt: "If the amount is above 100, alert finance, otherwise archive it",
			want:   []string{"condition", "branch", "webhook"},
		},
		{
			name:   "no keyword still yields baseline",
			prompt: "do the thing",
			want:   []string{"webhook"},
		},
		{
			name:   "duplicate hints collapse",
			prompt: "transform and convert and reshape the record",
			want:   []string{"transform", "mapping", "webhook"},
		},
		{
			name:   "punctuation does not split keywords",
			prompt: "Fetch https://api.example.com/users, then email the result.",
			want:   []string{"email", "notification", "http", "webhook"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveHints(tt.prompt))
		})
	}
}

func TestDeriveHintsDeterministic(t *testing.T) {
	prompt := "sync contacts from the CRM into a spreadsheet on a schedule"
	first := DeriveHints(prompt)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DeriveHints(prompt))
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name           string
		prompt         string
		wantIntent     string
		wantConfidence float64
	}{
		{
			name:           "two keyword hits make the label firm",
			prompt:         "post to the slack channel when something happens",
			wantIntent:     "slack",
			wantConfidence: 0.9,
		},
		{
			name:           "single hit stays tentative",
			prompt:         "send me an email about it",
			wantIntent:     "email",
			wantConfidence: 0.6,
		},
		{
			name:           "earlier rule wins over later matches",
			prompt:         "slack me the daily report",
			wantIntent:     "slack",
			wantConfidence: 0.6,
		},
		{
			name:           "no keywords means no label",
			prompt:         "do the thing",
			wantIntent:     "",
			wantConfidence: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, confidence := ClassifyIntent(tt.prompt)
			assert.Equal(t, tt.wantIntent, intent)
			assert.Equal(t, tt.wantConfidence, confidence)
		})
	}
}

type stubCatalog struct {
	gotHints []string
}

func (s *stubCatalog) Match(ctx context.Context, hints []string) (*catalogdomain.Selection, error) {
	s.gotHints = hints
	return &catalogdomain.Selection{}, nil
}

func TestBuildPassesDerivedHintsToCatalog(t *testing.T) {
	catalog := &stubCatalog{}
	builder := New(Params{Log: zap.NewNop(), Catalog: catalog})

	genCtx, err := builder.Build(context.Background(), "post webhook payloads to slack")
	require.NoError(t, err)

	assert.Equal(t, []string{"slack", "notification", "webhook"}, catalog.gotHints)
	assert.Equal(t, catalog.gotHints, genCtx.Hints)
	assert.NotNil(t, genCtx.Selection)
}
