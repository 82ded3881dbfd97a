package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*OrganizationResponse, error)
	GetByID(ctx context.Context, id string) (*OrganizationResponse, error)
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListResponseItem, error)
	EnsurePersonalOrg(ctx context.Context, userID snowflake.ID, displayName string) (*Organization, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]MemberResponse, error)
	UpdateMemberRole(ctx context.Context, orgID snowflake.ID, userID snowflake.ID, role Role) error
	RemoveMember(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) error
}

type CreateOrganizationRequest struct {
	Name string
	Plan string
}

type OrganizationResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Plan       string `json:"plan"`
	IsPersonal bool   `json:"is_personal"`
}

type OrganizationListResponseItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type MemberResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidPlan         = errors.New("invalid_plan")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrNotAMember          = errors.New("not_a_member")
	ErrLastOwner           = errors.New("last_owner")
	ErrOrganizationExists  = errors.New("organization_exists")
)
