// Package seed bootstraps the rows a fresh install needs before the first
// request: the default organization, the local admin account, and optionally
// a demo workspace with a sample project for development setups.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/beacon/internal/auth/domain"
	"github.com/smallbiznis/beacon/internal/auth/password"
	organizationdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	projectdomain "github.com/smallbiznis/beacon/internal/project/domain"
	"gorm.io/gorm"
)

const (
	defaultOrgName       = "Main"
	defaultOrgSlug       = "main"
	defaultAdminEmail    = "admin@beacon.local"
	defaultAdminPassword = "admin"
	defaultAdminDisplay  = "Beacon Admin"

	demoProjectName   = "Demo Website"
	demoProjectDomain = "demo.beacon.local"

	// Fixed so local collect calls work out of the box. The demo seed is
	// never enabled in production configurations.
	demoProjectKey = "BeaconDemoKey000BeaconDemoKey000"
)

// EnsureDefaultOrg seeds the default organization for startup bootstrap.
func EnsureDefaultOrg(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := ensureDefaultOrgTx(ctx, tx, node, 0)
		return err
	})
}

// EnsureDefaultOrgWithID seeds the default organization under a pinned id so
// single-tenant installs keep a stable org id across wipes.
func EnsureDefaultOrgWithID(db *gorm.DB, orgID int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := ensureDefaultOrgTx(ctx, tx, node, snowflake.ID(orgID))
		return err
	})
}

// EnsureDefaultOrgAndAdmin seeds the default organization and admin user for
// OSS mode. The admin keeps the well-known default password until the first
// change; login reports it so operators are nudged to rotate it.
func EnsureDefaultOrgAndAdmin(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := ensureDefaultOrgTx(ctx, tx, node, 0)
		if err != nil {
			return err
		}
		_, err = ensureAdminTx(ctx, tx, node, org.ID)
		return err
	})
}

// EnsureDemoWorkspace seeds the default organization, the admin user, and a
// sample project so a development install can ingest and chart events without
// any manual setup.
func EnsureDemoWorkspace(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := ensureDefaultOrgTx(ctx, tx, node, 0)
		if err != nil {
			return err
		}
		if _, err := ensureAdminTx(ctx, tx, node, org.ID); err != nil {
			return err
		}
		return ensureDemoProjectTx(ctx, tx, node, org.ID)
	})
}

func ensureDefaultOrgTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, pinnedID snowflake.ID) (organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := tx.WithContext(ctx).Where("slug = ?", defaultOrgSlug).First(&org).Error
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return org, err
	}
	id := pinnedID
	if id == 0 {
		id = node.Generate()
	}
	now := time.Now().UTC()
	org = organizationdomain.Organization{
		ID:        id,
		Name:      defaultOrgName,
		Slug:      defaultOrgSlug,
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return org, err
	}
	return org, nil
}

func ensureAdminTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID) (authdomain.User, error) {
	var user authdomain.User
	err := tx.WithContext(ctx).
		Where("email = ?", strings.ToLower(defaultAdminEmail)).
		First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return user, err
		}
		hashed, err := password.Hash(defaultAdminPassword)
		if err != nil {
			return user, err
		}
		now := time.Now().UTC()
		user = authdomain.User{
			ID:                  node.Generate(),
			Email:               strings.ToLower(defaultAdminEmail),
			DisplayName:         defaultAdminDisplay,
			PasswordHash:        &hashed,
			LastPasswordChanged: nil,
			IsDefault:           true,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
			return user, err
		}
	}

	var member organizationdomain.OrganizationMember
	err = tx.WithContext(ctx).
		Where("org_id = ? AND user_id = ?", orgID, user.ID).
		First(&member).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return user, err
		}
		member = organizationdomain.OrganizationMember{
			ID:        node.Generate(),
			OrgID:     orgID,
			UserID:    user.ID,
			Role:      string(organizationdomain.RoleOwner),
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.WithContext(ctx).Create(&member).Error; err != nil {
			return user, err
		}
	}

	return user, nil
}

func ensureDemoProjectTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID) error {
	keyHash := projectdomain.HashAPIKey(demoProjectKey)

	var project projectdomain.Project
	err := tx.WithContext(ctx).Where("key_hash = ?", keyHash).First(&project).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	domain := demoProjectDomain
	now := time.Now().UTC()
	project = projectdomain.Project{
		ID:        node.Generate(),
		OrgID:     orgID,
		Name:      demoProjectName,
		Domain:    &domain,
		KeyHash:   keyHash,
		KeyPrefix: projectdomain.KeyPrefix(demoProjectKey),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return tx.WithContext(ctx).Create(&project).Error
}
