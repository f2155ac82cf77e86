// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// IDは外部IdPが発行したトークンのsubjectクレームと同一の値であり、
// このシステム側では生成しない。初回アクセス時に遅延作成される。
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// AuthContext は検証済みトークンから抽出したリクエストスコープの認証情報を表す。
// リクエストごとにTokenVerifierが生成し、リクエスト終了とともに破棄される。
// 永続化やリクエスト間の共有は行わない。
type AuthContext struct {
	SubjectID string
	Email     string
}
