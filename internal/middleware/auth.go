// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/token"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// TokenVerifier はベアラートークンの検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(raw string) (*model.AuthContext, error)
}

// IdentityResolver は検証済みsubjectからユーザーを解決するインターフェース。
// identity.Serviceの部分集合として定義する。
type IdentityResolver interface {
	Resolve(ctx context.Context, authCtx *model.AuthContext) (*model.User, error)
}

// AuthMetrics は認証結果のメトリクス記録インターフェース。
type AuthMetrics interface {
	RecordAuthSuccess()
	RecordAuthFailure(reason string)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// subjectに対応するユーザーを解決（未登録なら遅延作成）するミドルウェアを返す。
// 解決したユーザーIDをリクエストコンテキストに注入する。
// トークン未提示には401 AUTH_REQUIREDを、検証失敗には一律401 INVALID_TOKENを返す。
// 失敗の内訳（署名・期限等）はログにのみ記録し、レスポンスには含めない。
func NewBearerAuthMiddleware(verifier TokenVerifier, resolver IdentityResolver, metrics AuthMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからトークンを抽出
			raw, err := extractBearerToken(r)
			if err != nil {
				metrics.RecordAuthFailure("missing_credential")
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
				return
			}

			// 2. 署名と有効期間を検証
			authCtx, err := verifier.Verify(raw)
			if err != nil {
				if errors.Is(err, token.ErrMissingCredential) {
					metrics.RecordAuthFailure("missing_credential")
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
					return
				}
				metrics.RecordAuthFailure(authFailureReason(err))
				slog.Warn("token verification failed",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
				return
			}

			// 3. subjectに対応するユーザーを解決（初回は遅延作成）
			user, err := resolver.Resolve(r.Context(), authCtx)
			if err != nil {
				metrics.RecordAuthFailure("store_unavailable")
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					WriteErrorResponse(w, http.StatusServiceUnavailable, apiErr)
					return
				}
				slog.Error("failed to resolve identity",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			metrics.RecordAuthSuccess()

			// 4. 認証済みユーザーIDをコンテキストに注入
			ctx := context.WithValue(r.Context(), userIDContextKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", token.ErrMissingCredential
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", token.ErrMissingCredential
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if raw == "" {
		return "", token.ErrMissingCredential
	}
	return raw, nil
}

// authFailureReason は検証エラーをメトリクス用のラベル値に変換する。
func authFailureReason(err error) string {
	switch {
	case errors.Is(err, token.ErrMalformedToken):
		return "malformed"
	case errors.Is(err, token.ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrMissingSubject):
		return "missing_subject"
	default:
		return "unknown"
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ベアラー認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
