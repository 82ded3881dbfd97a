package cache

import (
	"strings"
	"time"

	projectdomain "github.com/smallbiznis/beacon/internal/project/domain"
)

const (
	defaultProjectTTL = 5 * time.Minute
	defaultMissTTL    = 30 * time.Second
)

// ProjectResolverCache stores hot-path key-hash lookups for event collection.
// Misses are cached briefly so a flood of bad keys cannot hammer the store.
type ProjectResolverCache interface {
	GetProject(keyHash string) (*projectdomain.Project, bool)
	SetProject(keyHash string, project *projectdomain.Project)
	GetMiss(keyHash string) bool
	SetMiss(keyHash string)
	Invalidate(keyHash string)
}

type projectResolverCache struct {
	projects   Cache[string, *projectdomain.Project]
	misses     Cache[string, struct{}]
	projectTTL time.Duration
	missTTL    time.Duration
}

// NewProjectResolverCache returns an in-memory cache tuned for ingest.
func NewProjectResolverCache() ProjectResolverCache {
	return &projectResolverCache{
		projects:   NewTTLCache[string, *projectdomain.Project](),
		misses:     NewTTLCache[string, struct{}](),
		projectTTL: defaultProjectTTL,
		missTTL:    defaultMissTTL,
	}
}

func (c *projectResolverCache) GetProject(keyHash string) (*projectdomain.Project, bool) {
	return c.projects.Get(cacheKey(keyHash))
}

func (c *projectResolverCache) SetProject(keyHash string, project *projectdomain.Project) {
	if project == nil || project.ID == 0 {
		return
	}
	c.projects.Set(cacheKey(keyHash), project, c.projectTTL)
}

func (c *projectResolverCache) GetMiss(keyHash string) bool {
	_, ok := c.misses.Get(cacheKey(keyHash))
	return ok
}

func (c *projectResolverCache) SetMiss(keyHash string) {
	c.misses.Set(cacheKey(keyHash), struct{}{}, c.missTTL)
}

func (c *projectResolverCache) Invalidate(keyHash string) {
	key := cacheKey(keyHash)
	c.projects.Delete(key)
	c.misses.Delete(key)
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
