package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type OrganizationListItem struct {
	ID        snowflake.ID
	Name      string
	Slug      string
	Role      string
	CreatedAt time.Time
}

type MemberListItem struct {
	UserID    snowflake.ID
	Email     string
	Role      string
	CreatedAt time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, orgID snowflake.ID) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	AddMember(ctx context.Context, member OrganizationMember) error
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)
	PersonalOrgByUser(ctx context.Context, userID snowflake.ID) (*Organization, error)
	IsMember(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (bool, error)
	MemberRole(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (string, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]MemberListItem, error)
	CountMembers(ctx context.Context, orgID snowflake.ID) (int64, error)
	CountOwners(ctx context.Context, orgID snowflake.ID) (int64, error)
	UpdateMemberRole(ctx context.Context, orgID snowflake.ID, userID snowflake.ID, role string) error
	RemoveMember(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) error
}
