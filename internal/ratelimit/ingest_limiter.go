package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/beacon/internal/config"
)

const (
	keyIngestOrg      = "ingest:org:%s"
	keyIngestEndpoint = "ingest:endpoint:%s"
)

// IngestLimiter applies two buckets to the collect path: one per org so a
// single tenant cannot starve the rest, one per endpoint as a global guard.
type IngestLimiter struct {
	enabled bool

	bucket *TokenBucket

	orgRate       float64
	orgBurst      int
	endpointRate  float64
	endpointBurst int
}

func NewIngestLimiter(cfg config.Config, client *redis.Client) *IngestLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		return nil
	}
	if limitCfg.IngestOrgRate <= 0 || limitCfg.IngestOrgBurst <= 0 {
		return nil
	}
	if limitCfg.IngestEndpointRate <= 0 || limitCfg.IngestEndpointBurst <= 0 {
		return nil
	}

	return &IngestLimiter{
		enabled:       true,
		bucket:        NewTokenBucket(client),
		orgRate:       limitCfg.IngestOrgRate,
		orgBurst:      limitCfg.IngestOrgBurst,
		endpointRate:  limitCfg.IngestEndpointRate,
		endpointBurst: limitCfg.IngestEndpointBurst,
	}
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *IngestLimiter) AllowOrg(ctx context.Context, orgID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyIngestOrg, strings.TrimSpace(orgID)), l.orgRate, l.orgBurst)
}

func (l *IngestLimiter) AllowEndpoint(ctx context.Context, endpoint string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyIngestEndpoint, strings.TrimSpace(endpoint)), l.endpointRate, l.endpointBurst)
}
