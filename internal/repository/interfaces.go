// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/taskman/internal/model"
)

// ErrDuplicateUser はユーザーIDの一意性制約違反を示す。
// 同一subjectの初回リクエストが並行した場合に発生し、
// 呼び出し側は既存レコードの再取得で回復する。
var ErrDuplicateUser = errors.New("repository: duplicate user id")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create はユーザーを作成する。
	// IDが既に存在する場合はErrDuplicateUserを返す。
	Create(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 所有するタスクはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// TaskRepository はタスクデータの永続化インターフェース。
// 読み書きはすべて単一行のアトミックな操作であり、
// 所有者スコープ付きのクエリで分離を保証する。
type TaskRepository interface {
	// FindByIDAndOwner はIDと所有者IDの両方で絞り込んでタスクを取得する。
	// 見つからない場合（他ユーザー所有を含む）はnilを返す。
	FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Task, error)

	// ExistsByID は所有者を問わずタスクが存在するかを返す。
	// NotFoundとForbiddenの判別のため、所有者スコープ付き検索が
	// 空だった場合にのみ呼び出す。
	ExistsByID(ctx context.Context, id string) (bool, error)

	// ListByOwner は指定所有者のタスク一覧を返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Task, error)

	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// Update はタスクを所有者スコープ付きで上書き更新する。
	// 更新された場合はtrueを、対象行が存在しない場合はfalseを返す。
	Update(ctx context.Context, task *model.Task) (bool, error)

	// Delete はタスクを所有者スコープ付きで削除する。
	// 削除された場合はtrueを、対象行が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id, ownerID string) (bool, error)
}
