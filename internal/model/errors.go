// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// GatewayがエラーコードのみでHTTPステータスに変換できるよう、
// 失敗種別はメッセージ本文ではなくCodeで判別する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, task, validation, system
	Action   string // ユーザー向け対処方法
	Field    string // バリデーション失敗時の対象フィールド名
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthRequired     = "AUTH_REQUIRED"
	ErrCodeInvalidToken     = "INVALID_TOKEN"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeTaskNotFound     = "TASK_NOT_FOUND"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
)

// NewAuthRequiredError は認証情報が提示されていない場合のエラーを生成する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "Authorizationヘッダーにベアラートークンを指定してください。",
	}
}

// NewInvalidTokenError は無効なトークンのエラーを生成する。
// 署名不一致・期限切れ等の内訳は呼び出し元に開示しない。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "トークンが無効です。",
		Category: "auth",
		Action:   "再度ログインしてトークンを取得し直してください。",
	}
}

// NewForbiddenError は他ユーザーのリソースへのアクセスエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "このタスクへのアクセス権がありません。",
		Category: "auth",
		Action:   "自分が所有するタスクのみ操作できます。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "task",
		Action:   "タスクIDを確認してください。",
	}
}

// NewValidationError はフィールド値のバリデーションエラーを生成する。
// 対象フィールド名をFieldに保持する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: "validation",
		Action:   "入力値を修正して再度お試しください。",
		Field:    field,
	}
}

// NewStoreUnavailableError はデータストアへの接続失敗エラーを生成する。
// 一時的な障害として扱い、リトライは呼び出し側の責務とする。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データストアに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}
