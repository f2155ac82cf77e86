// Package model はドメインモデルを定義する。
package model

import "time"

// タイトル・説明の文字数制限。文字数はruneで数える。
const (
	TitleMaxLength       = 200
	DescriptionMaxLength = 1000
)

// Priority はタスクの優先度を表す。
type Priority string

const (
	// PriorityLow は低優先度。
	PriorityLow Priority = "LOW"
	// PriorityMedium は中優先度。未指定時のデフォルト。
	PriorityMedium Priority = "MEDIUM"
	// PriorityHigh は高優先度。
	PriorityHigh Priority = "HIGH"
)

// Valid は優先度が定義済みの値かどうかを返す。
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task はユーザーが所有するタスクを表す。
// UserIDは作成後に変更されない。すべての読み書きは
// task.UserID == 呼び出し元ユーザーID の所有権チェックを経る。
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Completed   bool
	Priority    Priority
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
