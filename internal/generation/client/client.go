package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/flowforge/flowforge/internal/config"
	generationdomain "github.com/flowforge/flowforge/internal/generation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

type Params struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
}

type HTTPClient struct {
	log    *zap.Logger
	cfg    config.GenerationConfig
	client *http.Client
}

func New(p Params) generationdomain.Client {
	return &HTTPClient{
		log: p.Log.Named("generation.client"),
		cfg: p.Config.Generation,
		client: &http.Client{
			Timeout: p.Config.Generation.Timeout,
		},
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *HTTPClient) GenerateDocument(ctx context.Context, prompt string, genCtx *generationdomain.GenerationContext) (*generationdomain.WorkflowDocument, []byte, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: renderSystemPrompt(genCtx)},
			{Role: "user", Content: prompt},
		},
		MaxTokens:      c.cfg.MaxOutputTokens,
		Temperature:    c.cfg.Temperature,
		ResponseFormat: &formatSpec{Type: "json_object"},
	})
	if err != nil {
		return nil, nil, err
	}

	// Template-seeded generations only fill in a skeleton, so they run
	// under the shorter fast-path bound.
	if c.cfg.FastTimeout > 0 && genCtx != nil && genCtx.Selection != nil && len(genCtx.Selection.Templates) > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.FastTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.log.Warn("generation timed out",
				zap.Duration("elapsed", time.Since(started)),
			)
			return nil, nil, generationdomain.ErrTimeout
		}
		return nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, nil, &generationdomain.UpstreamError{
			Status: resp.StatusCode,
			Body:   truncate(string(raw), 2048),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, nil, generationdomain.ErrUnparsableOutput
	}
	if len(parsed.Choices) == 0 {
		return nil, nil, generationdomain.ErrUnparsableOutput
	}

	return ParseWorkflowDocument(parsed.Choices[0].Message.Content)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func renderSystemPrompt(genCtx *generationdomain.GenerationContext) string {
	var b bytes.Buffer
	b.WriteString("You design workflow automation documents. Respond with a single JSON object ")
	b.WriteString(`containing "name", "nodes", "connections" and "settings". `)
	b.WriteString("Every connection must reference declared node ids.\n")

	if genCtx == nil || genCtx.Selection == nil {
		return b.String()
	}

	if len(genCtx.Selection.Patterns) > 0 {
		b.WriteString("\nReference patterns:\n")
		for _, pattern := range genCtx.Selection.Patterns {
			fmt.Fprintf(&b, "- %s: %s\n%s\n", pattern.Name, pattern.Summary, string(pattern.Document))
		}
	}
	if len(genCtx.Selection.Tips) > 0 {
		b.WriteString("\nAuthoring rules:\n")
		for _, tip := range genCtx.Selection.Tips {
			fmt.Fprintf(&b, "- %s\n", tip.Text)
		}
	}
	if len(genCtx.Selection.Templates) > 0 {
		b.WriteString("\nStarting skeletons:\n")
		for _, template := range genCtx.Selection.Templates {
			fmt.Fprintf(&b, "- %s: %s\n", template.Name, string(template.Document))
		}
	}
	return b.String()
}
