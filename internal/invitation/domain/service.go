package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/smallbiznis/beacon/internal/organization/domain"
)

type InviteRequest struct {
	OrgID     snowflake.ID
	InviterID snowflake.ID
	Email     string
	Role      string
}

type AcceptRequest struct {
	Code   string
	UserID snowflake.ID
}

// AcceptResult reports which workspace the accepted invitation joined.
type AcceptResult struct {
	OrgID snowflake.ID   `json:"org_id"`
	Role  orgdomain.Role `json:"role"`
}

type Service interface {
	Invite(ctx context.Context, req InviteRequest) (*Invitation, error)
	List(ctx context.Context, orgID snowflake.ID) ([]Invitation, error)
	Accept(ctx context.Context, req AcceptRequest) (*AcceptResult, error)
}

var (
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrInvitationNotFound = errors.New("invitation_not_found")
	ErrMemberLimitReached = errors.New("plan_limit_reached")
)
