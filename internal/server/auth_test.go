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
	authdomain "github.com/smallbiznis/beacon/internal/auth/domain"
	"github.com/smallbiznis/beacon/internal/auth/password"
	"github.com/smallbiznis/beacon/internal/auth/session"
	"github.com/smallbiznis/beacon/internal/config"
	"gorm.io/gorm"
)

func authRouter(srv *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/auth/login", srv.Login)
	router.POST("/auth/logout", srv.Logout)
	router.GET("/auth/me", srv.Me)
	return router
}

func TestLoginSetsSessionCookie(t *testing.T) {
	expiresAt := time.Now().Add(7 * 24 * time.Hour)
	authSvc := &fakeAuthService{
		login: &authdomain.LoginResult{
			Session: &authdomain.SessionView{
				Metadata: map[string]any{"user_id": "200"},
			},
			RawToken:  "opaque-token",
			ExpiresAt: expiresAt,
			SessionID: snowflake.ID(300),
			UserID:    snowflake.ID(200),
		},
	}
	audit := &fakeAuditService{}
	srv := &Server{
		authsvc:  authSvc,
		sessions: session.NewManager(config.Config{}),
		auditSvc: audit,
	}
	router := authRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"alice@example.com","password":"secret"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	cookie := resp.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, session.DefaultCookieName+"=opaque-token") {
		t.Fatalf("expected session cookie, got %q", cookie)
	}
	if !strings.Contains(cookie, "HttpOnly") {
		t.Fatalf("session cookie must be HttpOnly, got %q", cookie)
	}

	var view authdomain.SessionView
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Metadata["user_id"] != "200" {
		t.Fatalf("unexpected session view: %+v", view)
	}
	if !audit.has("user.login") {
		t.Fatal("expected user.login audit entry")
	}
}

func TestLoginFailureIsUnauthorizedAndAudited(t *testing.T) {
	authSvc := &fakeAuthService{loginErr: authdomain.ErrInvalidCredentials}
	audit := &fakeAuditService{}
	srv := &Server{
		authsvc:  authSvc,
		sessions: session.NewManager(config.Config{}),
		auditSvc: audit,
	}
	router := authRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if strings.Contains(resp.Header().Get("Set-Cookie"), session.DefaultCookieName+"=") {
		t.Fatal("no session cookie may be set on failed login")
	}
	if !audit.has("user.login_failed") {
		t.Fatal("expected user.login_failed audit entry")
	}
}

func TestMeReportsPasswordState(t *testing.T) {
	rotatedAt := time.Now().Add(-time.Hour)
	activeOrg := snowflake.ID(42)
	authSvc := &fakeAuthService{
		session: testSession(snowflake.ID(200), &activeOrg),
		user: &authdomain.User{
			ID:                  snowflake.ID(200),
			Email:               "alice@example.com",
			DisplayName:         "Alice",
			LastPasswordChanged: &rotatedAt,
		},
	}
	srv := &Server{
		authsvc:  authSvc,
		sessions: session.NewManager(config.Config{}),
	}
	router := authRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "opaque-token"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var view authdomain.SessionView
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Metadata["password_state"] != "rotated" {
		t.Fatalf("expected rotated password state, got %v", view.Metadata["password_state"])
	}
	if view.Metadata["active_org_id"] != "42" {
		t.Fatalf("expected active org 42, got %v", view.Metadata["active_org_id"])
	}
}

func TestMeDefaultPasswordState(t *testing.T) {
	authSvc := &fakeAuthService{
		session: testSession(snowflake.ID(200), nil),
		user: &authdomain.User{
			ID:          snowflake.ID(200),
			Email:       "admin@example.com",
			DisplayName: "Admin",
			IsDefault:   true,
		},
	}
	srv := &Server{
		authsvc:  authSvc,
		sessions: session.NewManager(config.Config{}),
	}
	router := authRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "opaque-token"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var view authdomain.SessionView
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Metadata["password_state"] != "default" {
		t.Fatalf("expected default password state, got %v", view.Metadata["password_state"])
	}
	if _, present := view.Metadata["active_org_id"]; present {
		t.Fatal("active_org_id must be omitted without an active org")
	}
}

func TestMeWithoutCookieIsUnauthorized(t *testing.T) {
	srv := &Server{
		authsvc:  &fakeAuthService{},
		sessions: session.NewManager(config.Config{}),
	}
	router := authRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestLogoutRevokesAndClearsCookie(t *testing.T) {
	authSvc := &fakeAuthService{}
	srv := &Server{
		authsvc:  authSvc,
		sessions: session.NewManager(config.Config{}),
	}
	router := authRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "opaque-token"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if authSvc.logoutCalls != 1 {
		t.Fatalf("expected one logout call, got %d", authSvc.logoutCalls)
	}
	cookie := resp.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, session.DefaultCookieName+"=") || !strings.Contains(cookie, "Max-Age=0") {
		t.Fatalf("expected cleared session cookie, got %q", cookie)
	}
}

func changePasswordFixture(t *testing.T) (*Server, *fakeAuthService, snowflake.ID) {
	t.Helper()

	dsn := fmt.Sprintf("file:chpw_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&authdomain.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	hash, err := password.Hash("current-secret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	userID := snowflake.ID(200)
	if err := db.Create(&authdomain.User{
		ID:           userID,
		Email:        "alice@example.com",
		DisplayName:  "Alice",
		PasswordHash: &hash,
	}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	authSvc := &fakeAuthService{}
	srv := &Server{db: db, authsvc: authSvc}
	return srv, authSvc, userID
}

func changePasswordRouter(srv *Server, userID snowflake.ID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	sess := testSession(userID, nil)
	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.Use(func(c *gin.Context) {
		c.Set(contextUserIDKey, sess.UserID.String())
		c.Set(contextSessionKey, sess)
		c.Next()
	})
	router.POST("/auth/change-password", srv.ChangePassword)
	return router
}

func TestChangePasswordHappyPath(t *testing.T) {
	srv, authSvc, userID := changePasswordFixture(t)
	router := changePasswordRouter(srv, userID)

	req := httptest.NewRequest(http.MethodPost, "/auth/change-password", strings.NewReader(`{"current_password":"current-secret","new_password":"brand-new-secret"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", resp.Code, resp.Body.String())
	}
	if authSvc.changePassCalls != 1 {
		t.Fatalf("expected one change call, got %d", authSvc.changePassCalls)
	}
	if authSvc.lastNewPassword != "brand-new-secret" {
		t.Fatalf("unexpected forwarded password %q", authSvc.lastNewPassword)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	srv, authSvc, userID := changePasswordFixture(t)
	router := changePasswordRouter(srv, userID)

	req := httptest.NewRequest(http.MethodPost, "/auth/change-password", strings.NewReader(`{"current_password":"guess","new_password":"brand-new-secret"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong current password, got %d", resp.Code)
	}
	if authSvc.changePassCalls != 0 {
		t.Fatal("service must not be called with a wrong current password")
	}
}

func TestChangePasswordValidation(t *testing.T) {
	srv, _, userID := changePasswordFixture(t)
	router := changePasswordRouter(srv, userID)

	cases := []struct {
		name string
		body string
	}{
		{"missing current", `{"new_password":"brand-new-secret"}`},
		{"missing new", `{"current_password":"current-secret"}`},
		{"same password", `{"current_password":"current-secret","new_password":"current-secret"}`},
		{"too short", `{"current_password":"current-secret","new_password":"short"}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/auth/change-password", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, resp.Code)
		}
	}
}
