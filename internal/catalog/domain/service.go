package domain

import "context"

// Service selects catalog material for a hint set.
type Service interface {
	// Match returns patterns, tips and templates whose hint labels intersect
	// the given hints, in catalog position order, capped at MaxPatterns,
	// MaxTips and MaxTemplates. The same hint set always yields the same
	// selection.
	Match(ctx context.Context, hints []string) (*Selection, error)
}
