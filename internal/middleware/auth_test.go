package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"puzzle_arena_backend/internal/config"
	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/util"

	"github.com/gin-gonic/gin"
)

const testSecret = "auth-middleware-test-secret"

func newAuthRouter(t *testing.T, roles ...model.TeamRole) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.JWT.Secret = testSecret

	router := gin.New()
	handlers := []gin.HandlerFunc{AuthMiddleware(cfg)}
	if len(roles) > 0 {
		handlers = append(handlers, RoleMiddleware(roles...))
	}
	group := router.Group("/", handlers...)
	group.GET("/whoami", func(c *gin.Context) {
		caller := util.GetCallerFromContext(c)
		c.JSON(http.StatusOK, gin.H{"teamId": caller.TeamID, "role": caller.Role})
	})
	return router
}

func doAuthRequest(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareAcceptsIssuedToken(t *testing.T) {
	router := newAuthRouter(t)

	token, err := util.GenerateJWT(7, model.TeamActor, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if w := doAuthRequest(router, token); w.Code != http.StatusOK {
		t.Fatalf("valid token rejected: %d %s", w.Code, w.Body.String())
	}
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	router := newAuthRouter(t)

	if w := doAuthRequest(router, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: got %d, want 401", w.Code)
	}

	forged, err := util.GenerateJWT(7, model.TeamActor, "some-other-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if w := doAuthRequest(router, forged); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong-secret token: got %d, want 401", w.Code)
	}

	expired, err := util.GenerateJWT(7, model.TeamActor, testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if w := doAuthRequest(router, expired); w.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: got %d, want 401", w.Code)
	}
}

func TestRoleMiddlewareGatesAdminRoutes(t *testing.T) {
	router := newAuthRouter(t, model.AdminActor)

	teamToken, err := util.GenerateJWT(7, model.TeamActor, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if w := doAuthRequest(router, teamToken); w.Code != http.StatusForbidden {
		t.Fatalf("team token on admin route: got %d, want 403", w.Code)
	}

	adminToken, err := util.GenerateJWT(1, model.AdminActor, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if w := doAuthRequest(router, adminToken); w.Code != http.StatusOK {
		t.Fatalf("admin token rejected: %d %s", w.Code, w.Body.String())
	}
}
