package contextbuilder

import (
	"context"
	"strings"
	"unicode"

	catalogdomain "github.com/flowforge/flowforge/internal/catalog/domain"
	generationdomain "github.com/flowforge/flowforge/internal/generation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// hintRules map prompt keywords to catalog hint labels. Order matters: the
// derived hint list follows rule order, so selection stays deterministic.
type hintRule struct {
	keywords []string
	hints    []string
}

var hintRules = []hintRule{
	{keywords: []string{"slack", "channel"}, hints: []string{"slack", "notification"}},
	{keywords: []string{"email", "mail", "inbox"}, hints: []string{"email", "notification"}},
	{keywords: []string{"webhook", "callback", "incoming"}, hints: []string{"webhook"}},
	{keywords: []string{"schedule", "cron", "daily", "hourly", "weekly", "every", "morning"}, hints: []string{"schedule"}},
	{keywords: []string{"report", "digest", "summary"}, hints: []string{"report"}},
	{keywords: []string{"if", "when", "unless", "condition", "otherwise", "branch"}, hints: []string{"condition", "branch"}},
	{keywords: []string{"api", "http", "fetch", "request", "endpoint"}, hints: []string{"http"}},
	{keywords: []string{"sync", "import", "export", "mirror"}, hints: []string{"sync"}},
	{keywords: []string{"loop", "each", "batch", "iterate"}, hints: []string{"loop"}},
	{keywords: []string{"form", "signup", "submission", "survey"}, hints: []string{"form"}},
	{keywords: []string{"crm", "contact", "lead", "customer"}, hints: []string{"crm"}},
	{keywords: []string{"transform", "map", "convert", "reshape", "format"}, hints: []string{"transform", "mapping"}},
}

// baselineHints are appended to every derived set, so the model always
// receives the utility exemplars on top of whatever the rules matched.
var baselineHints = []string{"webhook"}

type Params struct {
	fx.In

	Log     *zap.Logger
	Catalog catalogdomain.Service
}

type Builder struct {
	log     *zap.Logger
	catalog catalogdomain.Service
}

func New(p Params) generationdomain.ContextBuilder {
	return &Builder{
		log:     p.Log.Named("generation.context"),
		catalog: p.Catalog,
	}
}

func (b *Builder) Build(ctx context.Context, prompt string) (*generationdomain.GenerationContext, error) {
	hints := DeriveHints(prompt)
	selection, err := b.catalog.Match(ctx, hints)
	if err != nil {
		return nil, err
	}
	intent, confidence := ClassifyIntent(prompt)
	return &generationdomain.GenerationContext{
		Hints:      hints,
		Intent:     intent,
		Confidence: confidence,
		Selection:  selection,
	}, nil
}

// DeriveHints tokenizes the prompt and walks the rule table in order,
// collecting hints first seen wins. The baseline hints land at the end of
// every result, deduped against the matched ones.
func DeriveHints(prompt string) []string {
	words := tokenize(prompt)

	var hints []string
	seen := map[string]struct{}{}
	for _, rule := range hintRules {
		matched := false
		for _, keyword := range rule.keywords {
			if _, ok := words[keyword]; ok {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for _, hint := range rule.hints {
			if _, dup := seen[hint]; dup {
				continue
			}
			seen[hint] = struct{}{}
			hints = append(hints, hint)
		}
	}

	for _, hint := range baselineHints {
		if _, dup := seen[hint]; dup {
			continue
		}
		seen[hint] = struct{}{}
		hints = append(hints, hint)
	}
	return hints
}

// ClassifyIntent labels the prompt with the first matched rule's leading
// hint. The confidence is crude: several keyword hits inside one rule make
// the label firm, a single hit stays tentative. An empty label means no
// rule matched at all.
func ClassifyIntent(prompt string) (string, float64) {
	words := tokenize(prompt)
	for _, rule := range hintRules {
		hits := 0
		for _, keyword := range rule.keywords {
			if _, ok := words[keyword]; ok {
				hits++
			}
		}
		switch {
		case hits >= 2:
			return rule.hints[0], 0.9
		case hits == 1:
			return rule.hints[0], 0.6
		}
	}
	return "", 0
}

func tokenize(prompt string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, field := range strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		words[field] = struct{}{}
	}
	return words
}
