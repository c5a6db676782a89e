package service

import (
	"context"
	"strings"

	catalogdomain "github.com/flowforge/flowforge/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo catalogdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo catalogdomain.Repository
}

func New(p Params) catalogdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("catalog.service"),
		repo: p.Repo,
	}
}

func (s *Service) Match(ctx context.Context, hints []string) (*catalogdomain.Selection, error) {
	wanted := map[string]struct{}{}
	for _, hint := range hints {
		hint = strings.ToLower(strings.TrimSpace(hint))
		if hint == "" {
			continue
		}
		wanted[hint] = struct{}{}
	}

	selection := &catalogdomain.Selection{}
	if len(wanted) == 0 {
		return selection, nil
	}

	patterns, err := s.repo.ListPatterns(ctx, s.db)
	if err != nil {
		return nil, err
	}
	for _, pattern := range patterns {
		if len(selection.Patterns) >= catalogdomain.MaxPatterns {
			break
		}
		if catalogdomain.MatchesAny(pattern.Hints, wanted) {
			selection.Patterns = append(selection.Patterns, pattern)
		}
	}

	tips, err := s.repo.ListTips(ctx, s.db)
	if err != nil {
		return nil, err
	}
	for _, tip := range tips {
		if len(selection.Tips) >= catalogdomain.MaxTips {
			break
		}
		if catalogdomain.MatchesAny(tip.Hints, wanted) {
			selection.Tips = append(selection.Tips, tip)
		}
	}

	templates, err := s.repo.ListTemplates(ctx, s.db)
	if err != nil {
		return nil, err
	}
	for _, template := range templates {
		if len(selection.Templates) >= catalogdomain.MaxTemplates {
			break
		}
		if catalogdomain.MatchesAny(template.Hints, wanted) {
			selection.Templates = append(selection.Templates, template)
		}
	}

	return selection, nil
}
