package middleware

import (
	"engz_backend/internal/config"
	"engz_backend/internal/model"
	"engz_backend/internal/util"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type stubChecker struct {
	entitled map[uint]bool
	err      error
}

func (s stubChecker) IsEntitled(userID uint) (bool, error) {
	return s.entitled[userID], s.err
}

func testConfig() *config.Config {
	return &config.Config{JWT: config.JWTConfig{Secret: "middleware-test-secret", ExpireTime: time.Hour}}
}

func token(t *testing.T, cfg *config.Config, id uint, role model.UserRole) string {
	t.Helper()
	user := &model.User{Email: "u@example.com", Role: role}
	user.ID = id
	tok, err := util.GenerateJWT(user, cfg.JWT.Secret, cfg.JWT.ExpireTime)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		id := uint(0)
		if claims := util.GetUserFromContext(c); claims != nil {
			id = claims.UserID
		}
		c.JSON(http.StatusOK, gin.H{"user": id})
	})
	r.GET("/x", handlers...)
	return r
}

func do(r *gin.Engine, tok string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	r := newRouter(AuthMiddleware(cfg))

	if w := do(r, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: got %d", w.Code)
	}
	if w := do(r, "garbage"); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: got %d", w.Code)
	}
	other := &config.Config{JWT: config.JWTConfig{Secret: "another-secret", ExpireTime: time.Hour}}
	if w := do(r, token(t, other, 1, model.Learner)); w.Code != http.StatusUnauthorized {
		t.Fatalf("foreign signature: got %d", w.Code)
	}
	if w := do(r, token(t, cfg, 1, model.Learner)); w.Code != http.StatusOK {
		t.Fatalf("valid token: got %d", w.Code)
	}
}

func TestTryAuthMiddlewareAllowsAnonymous(t *testing.T) {
	cfg := testConfig()
	r := newRouter(TryAuthMiddleware(cfg))

	if w := do(r, ""); w.Code != http.StatusOK || w.Body.String() != `{"user":0}` {
		t.Fatalf("anonymous: %d %s", w.Code, w.Body.String())
	}
	if w := do(r, token(t, cfg, 5, model.Learner)); w.Code != http.StatusOK || w.Body.String() != `{"user":5}` {
		t.Fatalf("authenticated: %d %s", w.Code, w.Body.String())
	}
	if w := do(r, "garbage"); w.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token: got %d", w.Code)
	}
}

func TestRoleMiddleware(t *testing.T) {
	cfg := testConfig()
	r := newRouter(AuthMiddleware(cfg), RoleMiddleware(model.Admin))

	if w := do(r, token(t, cfg, 1, model.Learner)); w.Code != http.StatusForbidden {
		t.Fatalf("learner: got %d", w.Code)
	}
	if w := do(r, token(t, cfg, 2, model.Admin)); w.Code != http.StatusOK {
		t.Fatalf("admin: got %d", w.Code)
	}
}

func TestEntitlementMiddleware(t *testing.T) {
	cfg := testConfig()
	checker := stubChecker{entitled: map[uint]bool{1: true}}
	r := newRouter(AuthMiddleware(cfg), EntitlementMiddleware(checker))

	if w := do(r, token(t, cfg, 1, model.Learner)); w.Code != http.StatusOK {
		t.Fatalf("entitled: got %d", w.Code)
	}
	if w := do(r, token(t, cfg, 2, model.Learner)); w.Code != http.StatusForbidden {
		t.Fatalf("not entitled: got %d", w.Code)
	}
	if w := do(r, token(t, cfg, 3, model.Admin)); w.Code != http.StatusOK {
		t.Fatalf("admin bypass: got %d", w.Code)
	}

	failing := newRouter(AuthMiddleware(cfg), EntitlementMiddleware(stubChecker{err: errors.New("db down")}))
	if w := do(failing, token(t, cfg, 1, model.Learner)); w.Code != http.StatusInternalServerError {
		t.Fatalf("checker error: got %d", w.Code)
	}
}
