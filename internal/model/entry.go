// Package model はドメインモデルを定義する。
package model

import "time"

// Entry はユーザーが記録した日記の1件（moment）を表す。
// 所有者のアカウントからのみ参照できる。
type Entry struct {
	ID        string
	UserID    string
	Content   string
	Category  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntryPatch は日記の部分更新内容を表す。nilのフィールドは変更しない。
type EntryPatch struct {
	Content  *string
	Category *string
}

// EntryFilter は日記一覧の絞り込み条件を表す。
type EntryFilter struct {
	Category string // 空の場合は絞り込まない
}
