// Package domain contains the invitation model and service contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type InvitationStatus string

const (
	StatusPending  InvitationStatus = "pending"
	StatusAccepted InvitationStatus = "accepted"
)

// Invitation is a pending or redeemed offer to join an organization. The
// code is the bearer secret mailed to the invitee and never appears in API
// responses.
type Invitation struct {
	ID         snowflake.ID     `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID     `gorm:"not null;index:ix_invitations_org_email,priority:1" json:"org_id"`
	Email      string           `gorm:"type:text;not null;index:ix_invitations_org_email,priority:2" json:"email"`
	Role       string           `gorm:"type:text;not null" json:"role"`
	Code       string           `gorm:"type:text;not null;uniqueIndex:ux_invitations_code" json:"-"`
	Status     InvitationStatus `gorm:"type:text;not null;default:pending" json:"status"`
	InvitedBy  snowflake.ID     `gorm:"column:invited_by;not null" json:"invited_by"`
	AcceptedAt *time.Time       `gorm:"column:accepted_at" json:"accepted_at,omitempty"`
	CreatedAt  time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invitation) TableName() string { return "invitations" }
