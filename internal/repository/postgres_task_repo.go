package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
// 変更系のクエリはすべて id AND user_id で絞り込み、
// アプリケーション側の比較に頼らず所有権をストアレベルで強制する。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// taskColumns はtasksテーブルのSELECT対象カラム。
const taskColumns = `id, user_id, title, description, completed, priority, due_date, created_at, updated_at`

// scanTask は1行分のタスクをスキャンする。
func scanTask(row *sql.Row) (*model.Task, error) {
	task := &model.Task{}
	var dueDate sql.NullTime
	err := row.Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description,
		&task.Completed, &task.Priority, &dueDate,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	return task, nil
}

// FindByIDAndOwner はIDと所有者IDの両方で絞り込んでタスクを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task by ID and owner: %w", err)
	}
	return task, nil
}

// ExistsByID は所有者を問わずタスクが存在するかを返す。
func (r *PostgresTaskRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check task existence: %w", err)
	}
	return exists, nil
}

// ListByOwner は指定所有者のタスク一覧を作成日時順で返す。
func (r *PostgresTaskRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 ORDER BY created_at`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by owner: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task := &model.Task{}
		var dueDate sql.NullTime
		if err := rows.Scan(
			&task.ID, &task.UserID, &task.Title, &task.Description,
			&task.Completed, &task.Priority, &dueDate,
			&task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if dueDate.Valid {
			task.DueDate = &dueDate.Time
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, completed, priority, due_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.UserID, task.Title, task.Description,
		task.Completed, task.Priority, nullableTime(task.DueDate),
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Update はタスクを所有者スコープ付きで単一のUPDATE文で上書き更新する。
// 並行更新はlast-write-winsで解決され、バージョン管理は行わない。
func (r *PostgresTaskRepo) Update(ctx context.Context, task *model.Task) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks
		 SET title = $1, description = $2, completed = $3, priority = $4, due_date = $5, updated_at = $6
		 WHERE id = $7 AND user_id = $8`,
		task.Title, task.Description, task.Completed, task.Priority,
		nullableTime(task.DueDate), task.UpdatedAt,
		task.ID, task.UserID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete はタスクを所有者スコープ付きで削除する。
func (r *PostgresTaskRepo) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// nullableTime は*time.TimeをNULL許容のDB値に変換する。
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
