package domain

import (
	"context"
	"errors"
)

// Service resolves project API keys on the collect path. Admin-facing
// project operations live on the tenant gateway.
type Service interface {
	ResolveByKey(ctx context.Context, rawKey string) (*Project, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidID           = errors.New("invalid_id")
	ErrProjectNotFound     = errors.New("project_not_found")
	ErrDuplicateCredential = errors.New("duplicate_credential")
	ErrPlanLimitReached    = errors.New("plan_limit_reached")
)
