// Package identity は検証済みsubjectからユーザーを解決する遅延プロビジョニングを提供する。
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// Metrics はユーザー作成のメトリクス記録インターフェース。
type Metrics interface {
	RecordUserCreated()
}

// Service はユーザーの解決と遅延作成に関するビジネスロジックを提供する。
type Service struct {
	users   repository.UserRepository
	metrics Metrics
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, metrics Metrics) *Service {
	return &Service{users: users, metrics: metrics}
}

// Resolve は検証済みAuthContextに対応するユーザーを返す。
// 未登録のsubjectの場合はusersレコードをその場で作成する（遅延プロビジョニング）。
// 同一subjectの初回リクエストが並行した場合、INSERTの一意性制約違反を
// 「別リクエストが先に作成した」とみなして再取得するため、
// どの呼び出し元にもエラーは見えず、レコードは常に1行に収束する。
func (s *Service) Resolve(ctx context.Context, authCtx *model.AuthContext) (*model.User, error) {
	user, err := s.users.FindByID(ctx, authCtx.SubjectID)
	if err != nil {
		return nil, storeUnavailable("find user", err)
	}
	if user != nil {
		return user, nil
	}

	newUser := &model.User{
		ID:        authCtx.SubjectID,
		Email:     authCtx.Email,
		CreatedAt: time.Now(),
	}

	if err := s.users.Create(ctx, newUser); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			// 並行する初回リクエストが先に作成済み。作成された行を再取得する。
			existing, ferr := s.users.FindByID(ctx, authCtx.SubjectID)
			if ferr != nil {
				return nil, storeUnavailable("refetch user after duplicate insert", ferr)
			}
			if existing == nil {
				return nil, storeUnavailable("refetch user after duplicate insert",
					fmt.Errorf("user %s vanished after duplicate key error", authCtx.SubjectID))
			}
			return existing, nil
		}
		return nil, storeUnavailable("create user", err)
	}

	s.metrics.RecordUserCreated()
	slog.Info("new user provisioned",
		slog.String("user_id", newUser.ID),
		slog.String("email", newUser.Email),
	)

	return newUser, nil
}

// Get は指定IDのユーザーを返す。存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, storeUnavailable("find user", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Withdraw はユーザーを削除する。所有するタスクはストアのCASCADE制約で削除される。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return storeUnavailable("find user", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.users.DeleteByID(ctx, userID); err != nil {
		return storeUnavailable("delete user", err)
	}

	slog.Info("user withdrawn", slog.String("user_id", userID))
	return nil
}

// storeUnavailable はストア操作の失敗を詳細ログに記録し、
// 呼び出し元にはSTORE_UNAVAILABLEのタグ付きエラーのみを返す。
func storeUnavailable(op string, err error) error {
	slog.Error("store operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return model.NewStoreUnavailableError()
}
