package authorization

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	organizationdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	"github.com/smallbiznis/beacon/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type GuardParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *telemetry.Metrics `optional:"true"`
}

type guard struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *telemetry.Metrics
}

func NewGuard(p GuardParams) Guard {
	return &guard{
		db:      p.DB,
		log:     p.Log.Named("authorization.guard"),
		metrics: p.Metrics,
	}
}

func (g *guard) Authorize(ctx context.Context, callerID snowflake.ID, orgID snowflake.ID, required ...organizationdomain.Role) (organizationdomain.Role, error) {
	if callerID == 0 {
		g.record("unauthenticated")
		return "", ErrUnauthenticated
	}
	if orgID <= 0 {
		g.record("invalid_organization")
		return "", ErrInvalidOrganization
	}

	raw, err := g.memberRole(ctx, orgID, callerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			g.record("not_a_member")
			return "", ErrNotAMember
		}
		// Storage failures are never a membership verdict.
		g.record("error")
		g.log.Warn("membership lookup failed",
			zap.String("org_id", orgID.String()),
			zap.String("caller_id", callerID.String()),
			zap.Error(err),
		)
		return "", err
	}

	role, _ := organizationdomain.ParseRole(raw)

	// An empty required set still demands a recognizable membership role.
	if len(required) == 0 {
		required = []organizationdomain.Role{organizationdomain.RoleMember}
	}
	for _, want := range required {
		if role.Satisfies(want) {
			g.record("granted")
			return role, nil
		}
	}

	g.record("insufficient_role")
	return "", ErrInsufficientRole
}

func (g *guard) memberRole(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := g.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM organization_members
		 WHERE org_id = ? AND user_id = ?
		 LIMIT 1`,
		orgID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", gorm.ErrRecordNotFound
	}
	return role, nil
}

func (g *guard) record(outcome string) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordAuthzDecision(outcome)
}
