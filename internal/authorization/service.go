package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
	organizationdomain "github.com/smallbiznis/beacon/internal/organization/domain"
)

// Guard answers the membership question: is this caller a member of this
// organization, and does their role rank high enough? Every tenant-scoped
// request passes through it before any data is touched.
type Guard interface {
	// Authorize verifies the caller's membership in the organization and,
	// when required roles are given, that the caller's role satisfies at
	// least one of them. An empty required set means any membership. On
	// success the caller's role is returned; every failure is typed and
	// the check fails closed.
	Authorize(ctx context.Context, callerID snowflake.ID, orgID snowflake.ID, required ...organizationdomain.Role) (organizationdomain.Role, error)
}

// Service enforces object/action policies on top of the role guard. Admin
// routes use it for fine-grained capability checks backed by casbin.
type Service interface {
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
}
