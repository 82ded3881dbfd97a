package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/beacon/internal/cache"
	"github.com/smallbiznis/beacon/internal/project/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Cache cache.ProjectResolverCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	cache cache.ProjectResolverCache
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("project.service"),
		repo:  p.Repo,
		cache: p.Cache,
	}
}

// ResolveByKey maps a raw API key to its project. Inactive projects and
// unknown keys are indistinguishable to the caller.
func (s *Service) ResolveByKey(ctx context.Context, rawKey string) (*domain.Project, error) {
	key := strings.TrimSpace(rawKey)
	if key == "" {
		return nil, domain.ErrProjectNotFound
	}

	hash := domain.HashAPIKey(key)

	if s.cache != nil {
		if s.cache.GetMiss(hash) {
			return nil, domain.ErrProjectNotFound
		}
		if project, ok := s.cache.GetProject(hash); ok {
			if !project.IsActive {
				return nil, domain.ErrProjectNotFound
			}
			return project, nil
		}
	}

	project, err := s.repo.FindByKeyHash(ctx, s.db, hash)
	if err != nil {
		return nil, err
	}
	if project == nil || !project.IsActive {
		if s.cache != nil {
			s.cache.SetMiss(hash)
		}
		return nil, domain.ErrProjectNotFound
	}

	if s.cache != nil {
		s.cache.SetProject(hash, project)
	}
	return project, nil
}
