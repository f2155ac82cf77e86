// Package task はタスクのCRUDと所有権による分離を提供する。
package task

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// Metrics はタスク操作のメトリクス記録インターフェース。
type Metrics interface {
	RecordTaskCreated()
	RecordTaskDeleted()
}

// Service はタスク操作のビジネスロジックを提供する。
// リクエストをまたぐ状態を持たないステートレスな仲介層であり、
// すべての操作は呼び出し元ユーザーIDでスコープされる。
type Service struct {
	tasks   repository.TaskRepository
	metrics Metrics
}

// NewService はServiceを生成する。
func NewService(tasks repository.TaskRepository, metrics Metrics) *Service {
	return &Service{tasks: tasks, metrics: metrics}
}

// CreateInput はタスク作成の入力。
type CreateInput struct {
	Title       string
	Description string
	Priority    model.Priority // 空の場合はMEDIUM
	DueDate     *time.Time
}

// UpdateInput はタスク更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Title       *string
	Description *string
	Completed   *bool
	Priority    *model.Priority
	DueDate     *time.Time
}

// List は呼び出し元が所有するタスク一覧を返す。0件の場合も成功として空リストを返す。
func (s *Service) List(ctx context.Context, callerID string) ([]*model.Task, error) {
	tasks, err := s.tasks.ListByOwner(ctx, callerID)
	if err != nil {
		return nil, storeUnavailable("list tasks", err)
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	return tasks, nil
}

// Create は呼び出し元を所有者とする新規タスクを作成する。
func (s *Service) Create(ctx context.Context, callerID string, in CreateInput) (*model.Task, error) {
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if err := validateDescription(in.Description); err != nil {
		return nil, err
	}

	priority := in.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !priority.Valid() {
		return nil, model.NewValidationError("priority", "LOW、MEDIUM、HIGHのいずれかを指定してください")
	}

	now := time.Now()
	task := &model.Task{
		ID:          uuid.New().String(),
		UserID:      callerID,
		Title:       in.Title,
		Description: in.Description,
		Completed:   false,
		Priority:    priority,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, storeUnavailable("create task", err)
	}

	s.metrics.RecordTaskCreated()
	slog.Info("task created",
		slog.String("task_id", task.ID),
		slog.String("user_id", callerID),
	)

	return task, nil
}

// Get は呼び出し元が所有するタスクを返す。
// タスクが存在しない場合はTASK_NOT_FOUND、
// 存在するが他ユーザー所有の場合はFORBIDDENを返す。
func (s *Service) Get(ctx context.Context, callerID, taskID string) (*model.Task, error) {
	return s.findOwned(ctx, callerID, taskID)
}

// Update はタスクの指定フィールドを更新し、updated_atを書き換える。
// 所有権チェックはバリデーションより先に評価する。他ユーザーのタスクに対する
// リクエストがバリデーションエラーの内容を観測できてはならない。
// バリデーション失敗時はタスクを一切変更しない。
func (s *Service) Update(ctx context.Context, callerID, taskID string, in UpdateInput) (*model.Task, error) {
	task, err := s.findOwned(ctx, callerID, taskID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		if err := validateTitle(*in.Title); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		if err := validateDescription(*in.Description); err != nil {
			return nil, err
		}
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return nil, model.NewValidationError("priority", "LOW、MEDIUM、HIGHのいずれかを指定してください")
	}

	if in.Title != nil {
		task.Title = *in.Title
	}
	if in.Description != nil {
		task.Description = *in.Description
	}
	if in.Completed != nil {
		task.Completed = *in.Completed
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}
	if in.DueDate != nil {
		task.DueDate = in.DueDate
	}
	task.UpdatedAt = time.Now()

	updated, err := s.tasks.Update(ctx, task)
	if err != nil {
		return nil, storeUnavailable("update task", err)
	}
	if !updated {
		// 取得後に別リクエストが削除した場合
		return nil, model.NewTaskNotFoundError(taskID)
	}

	return task, nil
}

// ToggleComplete はタスクの完了状態を設定し、updated_atを書き換える。
func (s *Service) ToggleComplete(ctx context.Context, callerID, taskID string, completed bool) (*model.Task, error) {
	task, err := s.findOwned(ctx, callerID, taskID)
	if err != nil {
		return nil, err
	}

	task.Completed = completed
	task.UpdatedAt = time.Now()

	updated, err := s.tasks.Update(ctx, task)
	if err != nil {
		return nil, storeUnavailable("toggle task completion", err)
	}
	if !updated {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	return task, nil
}

// Delete は呼び出し元が所有するタスクを完全に削除する。
// 所有者スコープ付きの単一DELETEを先に発行し、対象がなかった場合にのみ
// 所有者を問わない存在確認でNotFoundとForbiddenを判別する。
func (s *Service) Delete(ctx context.Context, callerID, taskID string) error {
	deleted, err := s.tasks.Delete(ctx, taskID, callerID)
	if err != nil {
		return storeUnavailable("delete task", err)
	}
	if deleted {
		s.metrics.RecordTaskDeleted()
		slog.Info("task deleted",
			slog.String("task_id", taskID),
			slog.String("user_id", callerID),
		)
		return nil
	}

	exists, err := s.tasks.ExistsByID(ctx, taskID)
	if err != nil {
		return storeUnavailable("check task existence", err)
	}
	if exists {
		return model.NewForbiddenError()
	}
	return model.NewTaskNotFoundError(taskID)
}

// findOwned は所有者スコープ付きでタスクを取得する。
// 空だった場合にのみ所有者を問わない存在確認を行い、
// NotFound（どこにも存在しない）とForbidden（他ユーザー所有）を判別する。
func (s *Service) findOwned(ctx context.Context, callerID, taskID string) (*model.Task, error) {
	task, err := s.tasks.FindByIDAndOwner(ctx, taskID, callerID)
	if err != nil {
		return nil, storeUnavailable("find task", err)
	}
	if task != nil {
		return task, nil
	}

	exists, err := s.tasks.ExistsByID(ctx, taskID)
	if err != nil {
		return nil, storeUnavailable("check task existence", err)
	}
	if exists {
		return nil, model.NewForbiddenError()
	}
	return nil, model.NewTaskNotFoundError(taskID)
}

// validateTitle はタイトルの文字数制限（1〜200文字）を検証する。
func validateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if n < 1 {
		return model.NewValidationError("title", "タイトルは必須です")
	}
	if n > model.TitleMaxLength {
		return model.NewValidationError("title", "タイトルは200文字以内で入力してください")
	}
	return nil
}

// validateDescription は説明の文字数制限（1000文字以内）を検証する。
func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > model.DescriptionMaxLength {
		return model.NewValidationError("description", "説明は1000文字以内で入力してください")
	}
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
