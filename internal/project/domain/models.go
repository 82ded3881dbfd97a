package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Project is a tenant-owned event source. The API key is never stored in the
// clear; only its hash and a short display prefix survive creation.
type Project struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID          snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index"`
	Name           string            `json:"name" gorm:"type:text;not null"`
	Description    *string           `json:"description,omitempty" gorm:"type:text"`
	Domain         *string           `json:"domain,omitempty" gorm:"type:text"`
	KeyHash        string            `json:"-" gorm:"column:key_hash;type:text;not null;uniqueIndex:ux_projects_key_hash"`
	KeyPrefix      string            `json:"key_prefix" gorm:"column:key_prefix;type:text;not null"`
	AllowedOrigins pq.StringArray    `json:"allowed_origins,omitempty" gorm:"column:allowed_origins;type:text[]"`
	IsActive       bool              `json:"is_active" gorm:"column:is_active;not null;default:true"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Project) TableName() string { return "projects" }
