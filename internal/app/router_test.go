package app

import (
	"bytes"
	"encoding/json"
	"engz_backend/internal/config"
	"engz_backend/internal/model"
	"engz_backend/internal/util"
	"engz_backend/pkg/database"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	app    *App
	router *gin.Engine
	cfg    *config.Config
	svc    *services
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		Server:  config.ServerConfig{Mode: "debug"},
		JWT:     config.JWTConfig{Secret: "router-test-secret", ExpireTime: time.Hour},
		Storage: config.StorageConfig{Type: util.StorageLocal, LocalPath: t.TempDir()},
		AI:      config.AIConfig{GradingTimeoutSeconds: 1, FallbackScore: 50},
		Routine: config.RoutineConfig{CompletionThreshold: 90},
	}

	a := &App{Config: cfg, DB: db}
	repos := a.initRepositories(db)
	svc := a.initServices(repos, cfg, nil)
	ctrls := a.initControllers(svc, db, nil)

	router := gin.New()
	a.setupMiddlewares(router, cfg)
	a.registerRoutes(router, ctrls, svc, cfg)

	return &testServer{t: t, app: a, router: router, cfg: cfg, svc: svc}
}

func (s *testServer) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			s.t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return w.Code, env
}

func (s *testServer) adminToken() string {
	s.t.Helper()
	admin := &model.User{Name: "admin", Email: "admin@example.com", Password: "x", Role: model.Admin}
	if err := s.svc.auth.UserRepo.Create(admin); err != nil {
		s.t.Fatalf("create admin: %v", err)
	}
	tok, err := util.GenerateJWT(admin, s.cfg.JWT.Secret, s.cfg.JWT.ExpireTime)
	if err != nil {
		s.t.Fatalf("admin token: %v", err)
	}
	return tok
}

func TestHealthAndPublicLevelTest(t *testing.T) {
	s := newTestServer(t)

	if code, _ := s.do(http.MethodGet, "/api/health", "", nil); code != http.StatusOK {
		t.Fatalf("health: got=%d", code)
	}

	code, env := s.do(http.MethodGet, "/api/level-test/questions", "", nil)
	if code != http.StatusOK {
		t.Fatalf("questions: got=%d", code)
	}
	var questions []map[string]any
	if err := json.Unmarshal(env.Data, &questions); err != nil {
		t.Fatalf("decode questions: %v", err)
	}
	if len(questions) == 0 {
		t.Fatalf("expected seeded questions")
	}

	if code, _ := s.do(http.MethodGet, "/api/level-test/results", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("history without token: got=%d want=401", code)
	}

	if code, env := s.do(http.MethodGet, "/api/unknown", "", nil); code != http.StatusNotFound || env.Code != http.StatusNotFound {
		t.Fatalf("unknown route: got=%d envelope=%d", code, env.Code)
	}
}

func TestRoutineRequiresEntitlement(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodPost, "/api/register", "", gin.H{
		"name": "Learner", "email": "Learner@Example.com", "password": "password123",
	})
	if code != http.StatusCreated {
		t.Fatalf("register: got=%d msg=%s", code, env.Message)
	}
	var created struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode register: %v", err)
	}

	code, env = s.do(http.MethodPost, "/api/login", "", gin.H{
		"email": "learner@example.com", "password": "password123",
	})
	if code != http.StatusOK {
		t.Fatalf("login: got=%d msg=%s", code, env.Message)
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &login); err != nil || login.Token == "" {
		t.Fatalf("decode login: %v", err)
	}

	if code, _ := s.do(http.MethodPost, "/api/routines", login.Token, gin.H{"theme": "Grammar"}); code != http.StatusForbidden {
		t.Fatalf("routine without entitlement: got=%d want=403", code)
	}

	entitlementPath := fmt.Sprintf("/api/admin/users/%d/entitlement", created.ID)
	if code, _ := s.do(http.MethodPut, entitlementPath, login.Token, gin.H{"entitled": true}); code != http.StatusForbidden {
		t.Fatalf("learner calling admin route: got=%d want=403", code)
	}
	if code, _ := s.do(http.MethodPut, entitlementPath, s.adminToken(), gin.H{"entitled": true}); code != http.StatusOK {
		t.Fatalf("set entitlement: got=%d", code)
	}

	if code, env := s.do(http.MethodPost, "/api/routines", login.Token, gin.H{"theme": "Grammar"}); code != http.StatusCreated {
		t.Fatalf("create routine: got=%d msg=%s", code, env.Message)
	}
	if code, _ := s.do(http.MethodPost, "/api/routines", login.Token, gin.H{"theme": "Travel"}); code != http.StatusConflict {
		t.Fatalf("second routine: got=%d want=409", code)
	}

	code, env = s.do(http.MethodGet, "/api/routines/current", login.Token, nil)
	if code != http.StatusOK {
		t.Fatalf("current: got=%d", code)
	}
	var snapshot struct {
		HasRoutine    bool `json:"hasRoutine"`
		TotalMissions int  `json:"totalMissions"`
	}
	if err := json.Unmarshal(env.Data, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if !snapshot.HasRoutine || snapshot.TotalMissions != 20 {
		t.Fatalf("snapshot: %+v", snapshot)
	}
}

func TestAudioRouteUnavailableWithoutTranscriber(t *testing.T) {
	s := newTestServer(t)
	if s.svc.audio != nil {
		t.Fatalf("audio service should be disabled when speech is off")
	}
	if code, _ := s.do(http.MethodPost, "/api/missions/1/audio", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("audio without token: got=%d want=401", code)
	}
}

func TestConfigReloadReachesServices(t *testing.T) {
	s := newTestServer(t)

	reloaded := *s.cfg
	reloaded.Routine.CompletionThreshold = 75
	s.app.applyConfig(&reloaded)

	if got := s.svc.mission.Threshold(); got != 75 {
		t.Fatalf("threshold after reload: got=%d want=75", got)
	}
}
