package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/beacon/internal/audit/domain"
	auditrepository "github.com/smallbiznis/beacon/internal/audit/repository"
	auditcontext "github.com/smallbiznis/beacon/internal/auditcontext"
	"github.com/smallbiznis/beacon/internal/orgcontext"
	"github.com/smallbiznis/beacon/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newAuditTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:audit_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&auditdomain.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newAuditTestService(t *testing.T) (auditdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db := newAuditTestDB(t)
	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
	})
	return svc, db, node
}

func TestAuditLogResolvesOrgAndActorFromContext(t *testing.T) {
	svc, db, node := newAuditTestService(t)
	orgID := node.Generate()

	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))
	ctx = auditcontext.WithActor(ctx, "user", "42")
	ctx = auditcontext.WithRequestID(ctx, "req-123")
	ctx = auditcontext.WithProjectID(ctx, "555")
	ctx = auditcontext.WithIPAddress(ctx, "203.0.113.9")
	ctx = auditcontext.WithUserAgent(ctx, "curl/8.0")

	targetID := "999"
	err := svc.AuditLog(ctx, nil, "", nil, "project.created", "project", &targetID, map[string]any{"name": "Website"})
	assert.NoError(t, err)

	var rows []auditdomain.AuditLog
	assert.NoError(t, db.Find(&rows).Error)
	if assert.Len(t, rows, 1) {
		entry := rows[0]
		if assert.NotNil(t, entry.OrgID) {
			assert.Equal(t, orgID, *entry.OrgID)
		}
		assert.Equal(t, "user", entry.ActorType)
		if assert.NotNil(t, entry.ActorID) {
			assert.Equal(t, "42", *entry.ActorID)
		}
		assert.Equal(t, "project.created", entry.Action)
		assert.Equal(t, "project", entry.TargetType)
		assert.Equal(t, "Website", entry.Metadata["name"])
		assert.Equal(t, "req-123", entry.Metadata["request_id"])
		assert.Equal(t, "555", entry.Metadata["project_id"])
		if assert.NotNil(t, entry.IPAddress) {
			assert.Equal(t, "203.0.113.9", *entry.IPAddress)
		}
		if assert.NotNil(t, entry.UserAgent) {
			assert.Equal(t, "curl/8.0", *entry.UserAgent)
		}
	}
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _, _ := newAuditTestService(t)

	err := svc.AuditLog(context.Background(), nil, "", nil, "  ", "project", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc, db, _ := newAuditTestService(t)

	err := svc.AuditLog(context.Background(), nil, "", nil, "workspace.provisioned", "organization", nil, nil)
	assert.NoError(t, err)

	var rows []auditdomain.AuditLog
	assert.NoError(t, db.Find(&rows).Error)
	if assert.Len(t, rows, 1) {
		assert.Equal(t, string(auditdomain.ActorTypeSystem), rows[0].ActorType)
		assert.Nil(t, rows[0].OrgID)
		assert.Nil(t, rows[0].ActorID)
	}
}

func TestListAuditLogsRequiresOrgScope(t *testing.T) {
	svc, _, _ := newAuditTestService(t)

	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}

func TestListAuditLogsRejectsBadPageToken(t *testing.T) {
	svc, _, node := newAuditTestService(t)
	ctx := orgcontext.WithOrgID(context.Background(), int64(node.Generate()))

	_, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "not-base64!"},
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}

func TestListAuditLogsRejectsInvertedTimeRange(t *testing.T) {
	svc, _, node := newAuditTestService(t)
	ctx := orgcontext.WithOrgID(context.Background(), int64(node.Generate()))

	start := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err := svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}

func TestListAuditLogsPagesNewestFirst(t *testing.T) {
	svc, db, node := newAuditTestService(t)
	repo := auditrepository.Provide()
	orgID := node.Generate()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ids := make([]snowflake.ID, 3)
	for i := range ids {
		ids[i] = node.Generate()
		entry := &auditdomain.AuditLog{
			ID:         ids[i],
			OrgID:      &orgID,
			ActorType:  "user",
			Action:     "project.created",
			TargetType: "project",
			CreatedAt:  base.Add(-time.Duration(i) * time.Minute),
		}
		if err := repo.Insert(context.Background(), db, entry); err != nil {
			t.Fatalf("insert entry %d: %v", i, err)
		}
	}

	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	assert.NoError(t, err)
	if assert.Len(t, first.AuditLogs, 2) {
		assert.Equal(t, ids[0], first.AuditLogs[0].ID)
		assert.Equal(t, ids[1], first.AuditLogs[1].ID)
	}
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.NextPageToken)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	assert.NoError(t, err)
	if assert.Len(t, second.AuditLogs, 1) {
		assert.Equal(t, ids[2], second.AuditLogs[0].ID)
	}
	assert.False(t, second.HasMore)
}

func TestListAuditLogsFiltersByAction(t *testing.T) {
	svc, db, node := newAuditTestService(t)
	repo := auditrepository.Provide()
	orgID := node.Generate()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	actions := []string{"project.created", "member.removed"}
	for i, action := range actions {
		entry := &auditdomain.AuditLog{
			ID:         node.Generate(),
			OrgID:      &orgID,
			ActorType:  "user",
			Action:     action,
			TargetType: "project",
			CreatedAt:  base.Add(-time.Duration(i) * time.Minute),
		}
		if err := repo.Insert(context.Background(), db, entry); err != nil {
			t.Fatalf("insert %s: %v", action, err)
		}
	}

	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))
	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "member.removed"})
	assert.NoError(t, err)
	if assert.Len(t, resp.AuditLogs, 1) {
		assert.Equal(t, "member.removed", resp.AuditLogs[0].Action)
	}
	assert.False(t, resp.HasMore)
}
