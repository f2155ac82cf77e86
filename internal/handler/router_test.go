package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/task"
	"github.com/hitoshi/taskman/internal/token"
)

const routerTestSecret = "router-test-secret-0123456789abc"

// newTestRouter はミドルウェアチェーン込みの完全なルーターを組み立てる。
func newTestRouter(t *testing.T, taskSvc TaskServiceInterface, userSvc UserServiceInterface) (http.Handler, func()) {
	t.Helper()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(100),
		GeneralBurst:    100,
		TaskCreateRate:  rate.Limit(100),
		TaskCreateBurst: 100,
		CleanupInterval: time.Hour,
	})

	router := NewRouter(&RouterDeps{
		Verifier: token.NewVerifier(token.VerifierConfig{Secret: routerTestSecret}),
		Resolver: &mockResolver{
			resolveFunc: func(_ context.Context, authCtx *model.AuthContext) (*model.User, error) {
				return &model.User{ID: authCtx.SubjectID, Email: authCtx.Email}, nil
			},
		},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Collector:         collector,
		Gatherer:          registry,
		TaskService:       taskSvc,
		UserService:       userSvc,
		HealthChecker:     &fakePinger{},
	})

	return router, rl.Stop
}

// mockResolver はクロージャで振る舞いを差し替えられるIdentityResolverモック。
type mockResolver struct {
	resolveFunc func(ctx context.Context, authCtx *model.AuthContext) (*model.User, error)
}

func (m *mockResolver) Resolve(ctx context.Context, authCtx *model.AuthContext) (*model.User, error) {
	return m.resolveFunc(ctx, authCtx)
}

func mintRouterToken(t *testing.T, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(routerTestSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

// TestRouter_HealthUnauthenticated は/healthが認証なしで到達できることを検証する。
func TestRouter_HealthUnauthenticated(t *testing.T) {
	router, stop := newTestRouter(t, &mockTaskService{}, &mockUserService{})
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

// TestRouter_MetricsUnauthenticated は/metricsが認証なしで到達でき、
// Prometheusエクスポジション形式を返すことを検証する。
func TestRouter_MetricsUnauthenticated(t *testing.T) {
	router, stop := newTestRouter(t, &mockTaskService{}, &mockUserService{})
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

// TestRouter_TasksRequireAuth はタスクAPIが認証なしで401になることを検証する。
func TestRouter_TasksRequireAuth(t *testing.T) {
	router, stop := newTestRouter(t, &mockTaskService{
		listFunc: func(_ context.Context, _ string) ([]*model.Task, error) {
			t.Error("service should not be reached without auth")
			return nil, nil
		},
	}, &mockUserService{})
	defer stop()

	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/tasks"},
		{http.MethodPost, "/api/tasks"},
		{http.MethodGet, "/api/tasks/task-1"},
		{http.MethodPut, "/api/tasks/task-1"},
		{http.MethodPatch, "/api/tasks/task-1"},
		{http.MethodDelete, "/api/tasks/task-1"},
		{http.MethodPatch, "/api/tasks/task-1/complete"},
		{http.MethodGet, "/api/users/me"},
		{http.MethodDelete, "/api/users/me"},
	}

	for _, ep := range endpoints {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(ep.method, ep.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want %d", ep.method, ep.path, rec.Code, http.StatusUnauthorized)
		}
	}
}

// TestRouter_AuthenticatedFlow はトークン付きリクエストがハンドラーまで
// 到達し、subjectのユーザーIDでスコープされることを検証する。
func TestRouter_AuthenticatedFlow(t *testing.T) {
	var gotCaller string
	router, stop := newTestRouter(t, &mockTaskService{
		listFunc: func(_ context.Context, callerID string) ([]*model.Task, error) {
			gotCaller = callerID
			return []*model.Task{}, nil
		},
	}, &mockUserService{})
	defer stop()

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+mintRouterToken(t, "user-42"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotCaller != "user-42" {
		t.Errorf("callerID = %q, want %q", gotCaller, "user-42")
	}
}

// TestRouter_CreateTaskFlow は作成リクエストがルーター経由で201になることを検証する。
func TestRouter_CreateTaskFlow(t *testing.T) {
	router, stop := newTestRouter(t, &mockTaskService{
		createFunc: func(_ context.Context, callerID string, in task.CreateInput) (*model.Task, error) {
			return &model.Task{
				ID:       "task-new",
				UserID:   callerID,
				Title:    in.Title,
				Priority: model.PriorityMedium,
			}, nil
		},
	}, &mockUserService{})
	defer stop()

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"title":"買い物"}`))
	req.Header.Set("Authorization", "Bearer "+mintRouterToken(t, "user-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var resp taskResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", resp.UserID, "user-1")
	}
}

// TestRouter_InvalidTokenRejected は無効なトークンが401 INVALID_TOKENで
// 拒否されることを検証する。
func TestRouter_InvalidTokenRejected(t *testing.T) {
	router, stop := newTestRouter(t, &mockTaskService{}, &mockUserService{})
	defer stop()

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeInvalidToken {
		t.Errorf("Code = %q, want %q", body.Code, model.ErrCodeInvalidToken)
	}
}

// TestRouter_SecurityHeaders は全レスポンスにセキュリティヘッダーが
// 付与されることを検証する。
func TestRouter_SecurityHeaders(t *testing.T) {
	router, stop := newTestRouter(t, &mockTaskService{}, &mockUserService{})
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

// TestRouter_CORSPreflight はプリフライトが認証なしで204になることを検証する。
func TestRouter_CORSPreflight(t *testing.T) {
	router, stop := newTestRouter(t, &mockTaskService{}, &mockUserService{})
	defer stop()

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:3000")
	}
}
