package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/beacon/internal/authorization"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	eventrepository "github.com/smallbiznis/beacon/internal/event/repository"
	kpidomain "github.com/smallbiznis/beacon/internal/kpi/domain"
	kpirepository "github.com/smallbiznis/beacon/internal/kpi/repository"
	organizationdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	organizationrepository "github.com/smallbiznis/beacon/internal/organization/repository"
	projectdomain "github.com/smallbiznis/beacon/internal/project/domain"
	projectrepository "github.com/smallbiznis/beacon/internal/project/repository"
	"github.com/smallbiznis/beacon/internal/tenant"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type projectFixture struct {
	srv     *Server
	db      *gorm.DB
	node    *snowflake.Node
	orgID   snowflake.ID
	userID  snowflake.ID
	session func(router *gin.Engine)
}

func newProjectFixture(t *testing.T) *projectFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:projects_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&organizationdomain.Organization{},
		&organizationdomain.OrganizationMember{},
		&projectdomain.Project{},
		&eventdomain.Event{},
		&kpidomain.KPISnapshot{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(6)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	log := zap.NewNop()
	factory := tenant.NewFactory(tenant.FactoryParams{
		DB:          db,
		Log:         log,
		GenID:       node,
		Guard:       authorization.NewGuard(authorization.GuardParams{DB: db, Log: log}),
		OrgRepo:     organizationrepository.NewRepository(db),
		ProjectRepo: projectrepository.Provide(),
		EventRepo:   eventrepository.Provide(),
		KPIRepo:     kpirepository.Provide(),
	})

	orgID := node.Generate()
	userID := node.Generate()
	now := time.Now().UTC()
	if err := db.Create(&organizationdomain.Organization{
		ID:        orgID,
		Name:      "Acme",
		Slug:      fmt.Sprintf("acme-%d", orgID),
		Plan:      "free",
		CreatedAt: now,
	}).Error; err != nil {
		t.Fatalf("seed org: %v", err)
	}
	if err := db.Create(&organizationdomain.OrganizationMember{
		ID:        node.Generate(),
		OrgID:     orgID,
		UserID:    userID,
		Role:      "owner",
		CreatedAt: now,
	}).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}

	srv := &Server{tenants: factory}
	fixture := &projectFixture{srv: srv, db: db, node: node, orgID: orgID, userID: userID}
	fixture.session = func(router *gin.Engine) {
		sess := testSession(userID, nil)
		router.Use(func(c *gin.Context) {
			c.Set(contextUserIDKey, sess.UserID.String())
			c.Set(contextSessionKey, sess)
			c.Next()
		})
	}
	return fixture
}

func (f *projectFixture) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	f.session(router)
	router.Use(f.srv.OrgContext())
	router.GET("/admin/projects", f.srv.ListProjects)
	router.POST("/admin/projects", f.srv.CreateProject)
	router.GET("/admin/projects/:id", f.srv.GetProject)
	router.POST("/admin/projects/:id/deactivate", f.srv.DeactivateProject)
	return router
}

func TestCreateProjectReturnsRawKeyOnce(t *testing.T) {
	fixture := newProjectFixture(t)
	router := fixture.router()

	req := httptest.NewRequest(http.MethodPost, "/admin/projects", strings.NewReader(`{"name":"web","description":"marketing site"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderOrg, fixture.orgID.String())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var created struct {
		Project projectdomain.Project `json:"project"`
		APIKey  string                `json:"api_key"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(created.APIKey) != 32 {
		t.Fatalf("expected 32-char raw key, got %q", created.APIKey)
	}
	if created.Project.KeyPrefix != created.APIKey[:8] {
		t.Fatalf("prefix %q does not match key %q", created.Project.KeyPrefix, created.APIKey)
	}

	// Only the hash is stored; the raw key must not be recoverable later.
	var stored projectdomain.Project
	if err := fixture.db.First(&stored, "id = ?", created.Project.ID).Error; err != nil {
		t.Fatalf("load stored project: %v", err)
	}
	if stored.KeyHash == created.APIKey {
		t.Fatal("raw key must not be persisted")
	}
	if stored.KeyHash != projectdomain.HashAPIKey(created.APIKey) {
		t.Fatal("stored hash does not match the issued key")
	}

	// The list response carries the prefix but never the key or hash.
	listReq := httptest.NewRequest(http.MethodGet, "/admin/projects", nil)
	listReq.Header.Set(HeaderOrg, fixture.orgID.String())
	listResp := httptest.NewRecorder()
	router.ServeHTTP(listResp, listReq)

	if listResp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listResp.Code)
	}
	if strings.Contains(listResp.Body.String(), created.APIKey) {
		t.Fatal("list response leaked the raw key")
	}
	if strings.Contains(listResp.Body.String(), stored.KeyHash) {
		t.Fatal("list response leaked the key hash")
	}
}

func TestGetProjectOutsideOrgIsNotFound(t *testing.T) {
	fixture := newProjectFixture(t)
	router := fixture.router()

	// A second workspace with its own project.
	otherOrg := fixture.node.Generate()
	now := time.Now().UTC()
	if err := fixture.db.Create(&organizationdomain.Organization{
		ID:        otherOrg,
		Name:      "Rival",
		Slug:      fmt.Sprintf("rival-%d", otherOrg),
		Plan:      "free",
		CreatedAt: now,
	}).Error; err != nil {
		t.Fatalf("seed rival org: %v", err)
	}
	foreignProject := fixture.node.Generate()
	if err := fixture.db.Create(&projectdomain.Project{
		ID:        foreignProject,
		OrgID:     otherOrg,
		Name:      "secret",
		KeyHash:   fmt.Sprintf("hash-%d", foreignProject),
		KeyPrefix: "zzzzzzzz",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error; err != nil {
		t.Fatalf("seed foreign project: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/projects/"+foreignProject.String(), nil)
	req.Header.Set(HeaderOrg, fixture.orgID.String())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another org's project, got %d", resp.Code)
	}
}

func TestDeactivateProject(t *testing.T) {
	fixture := newProjectFixture(t)
	router := fixture.router()

	projectID := fixture.node.Generate()
	now := time.Now().UTC()
	if err := fixture.db.Create(&projectdomain.Project{
		ID:        projectID,
		OrgID:     fixture.orgID,
		Name:      "web",
		KeyHash:   fmt.Sprintf("hash-%d", projectID),
		KeyPrefix: "aaaaaaaa",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/projects/"+projectID.String()+"/deactivate", nil)
	req.Header.Set(HeaderOrg, fixture.orgID.String())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var updated projectdomain.Project
	if err := fixture.db.First(&updated, "id = ?", projectID).Error; err != nil {
		t.Fatalf("load project: %v", err)
	}
	if updated.IsActive {
		t.Fatal("expected project to be inactive")
	}
}

func TestBindGatewayRejectsNonMember(t *testing.T) {
	fixture := newProjectFixture(t)

	// Replace the session with a user who belongs to no workspace.
	stranger := fixture.node.Generate()
	fixture.session = func(router *gin.Engine) {
		sess := testSession(stranger, nil)
		router.Use(func(c *gin.Context) {
			c.Set(contextUserIDKey, sess.UserID.String())
			c.Set(contextSessionKey, sess)
			c.Next()
		})
	}
	router := fixture.router()

	req := httptest.NewRequest(http.MethodGet, "/admin/projects", nil)
	req.Header.Set(HeaderOrg, fixture.orgID.String())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got %d", resp.Code)
	}
}
