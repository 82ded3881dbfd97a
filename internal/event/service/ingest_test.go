package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	eventrepository "github.com/smallbiznis/beacon/internal/event/repository"
	"github.com/smallbiznis/beacon/internal/orgcontext"
	"github.com/smallbiznis/beacon/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newIngestTestService(t *testing.T) (eventdomain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:ingest_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&eventdomain.Event{}); err != nil {
		t.Fatal(err)
	}

	node, _ := snowflake.NewNode(1)
	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  eventrepository.Provide(),
	})
	return svc, node
}

// Helper for context
func WithTestIngestContext(ctx context.Context, orgID, projectID snowflake.ID) context.Context {
	ctx = orgcontext.WithOrgID(ctx, int64(orgID))
	return tenantctx.WithProjectID(ctx, int64(projectID))
}

func TestIngest_Validation(t *testing.T) {
	svc, node := newIngestTestService(t)

	orgID := node.Generate()
	projectID := node.Generate()
	farFuture := time.Now().UTC().Add(48 * time.Hour)

	tests := []struct {
		name        string
		ctx         context.Context
		req         eventdomain.CreateIngestRequest
		expectedErr error
	}{
		{
			name:        "missing org context",
			ctx:         tenantctx.WithProjectID(context.Background(), int64(projectID)),
			req:         eventdomain.CreateIngestRequest{Name: "page_view"},
			expectedErr: eventdomain.ErrInvalidOrganization,
		},
		{
			name:        "missing project context",
			ctx:         orgcontext.WithOrgID(context.Background(), int64(orgID)),
			req:         eventdomain.CreateIngestRequest{Name: "page_view"},
			expectedErr: eventdomain.ErrInvalidProject,
		},
		{
			name:        "blank event name",
			ctx:         WithTestIngestContext(context.Background(), orgID, projectID),
			req:         eventdomain.CreateIngestRequest{Name: "   "},
			expectedErr: eventdomain.ErrInvalidEventName,
		},
		{
			name: "occurred_at too far ahead",
			ctx:  WithTestIngestContext(context.Background(), orgID, projectID),
			req: eventdomain.CreateIngestRequest{
				Name:       "page_view",
				OccurredAt: &farFuture,
			},
			expectedErr: eventdomain.ErrInvalidOccurredAt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Ingest(tt.ctx, tt.req)
			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Nil(t, res)
		})
	}
}

func TestIngest_Dedupe_Strict(t *testing.T) {
	svc, node := newIngestTestService(t)

	orgID := node.Generate()
	projectID := node.Generate()
	ctx := WithTestIngestContext(context.Background(), orgID, projectID)

	key := "order_1234_paid"
	req := eventdomain.CreateIngestRequest{
		Name:      "order_paid",
		Metadata:  map[string]any{"amount": 4200},
		DedupeKey: key,
	}

	// 1. First call: accepted
	res1, err := svc.Ingest(ctx, req)
	assert.NoError(t, err)
	assert.NotNil(t, res1)
	assert.False(t, res1.Deduplicated)

	// 2. Second call: same key, same event back
	res2, err := svc.Ingest(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, res1.EventID, res2.EventID, "must return the stored event")
	assert.True(t, res2.Deduplicated)

	// 3. Fresh key: new event
	req.DedupeKey = "order_1235_paid"
	res3, err := svc.Ingest(ctx, req)
	assert.NoError(t, err)
	assert.NotEqual(t, res1.EventID, res3.EventID)
	assert.False(t, res3.Deduplicated)
}

func TestIngest_NoDedupeKey(t *testing.T) {
	svc, node := newIngestTestService(t)

	orgID := node.Generate()
	projectID := node.Generate()
	ctx := WithTestIngestContext(context.Background(), orgID, projectID)

	req := eventdomain.CreateIngestRequest{Name: "page_view"}

	// Without a dedupe key every call is a new fact.
	res1, err := svc.Ingest(ctx, req)
	assert.NoError(t, err)
	res2, err := svc.Ingest(ctx, req)
	assert.NoError(t, err)
	assert.NotEqual(t, res1.EventID, res2.EventID)
}

func TestIngest_DefaultsOccurredAt(t *testing.T) {
	svc, node := newIngestTestService(t)

	orgID := node.Generate()
	projectID := node.Generate()
	ctx := WithTestIngestContext(context.Background(), orgID, projectID)

	before := time.Now().UTC()
	res, err := svc.Ingest(ctx, eventdomain.CreateIngestRequest{Name: "signup"})
	assert.NoError(t, err)
	assert.False(t, res.OccurredAt.Before(before))
	assert.False(t, res.OccurredAt.After(time.Now().UTC()))
}
