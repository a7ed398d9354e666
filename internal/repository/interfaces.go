// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/joysparks/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindBySubjectID は外部IdPのsubject IDでアカウントを検索する。見つからない場合はnilを返す。
	FindBySubjectID(ctx context.Context, subjectID string) (*model.Account, error)

	// FindByUsername はユーザー名（メールアドレス）でアカウントを検索する。見つからない場合はnilを返す。
	// 大文字小文字を区別する。
	FindByUsername(ctx context.Context, username string) (*model.Account, error)

	// Insert はアカウントを作成する。
	// usernameまたはsubject IDの一意制約に違反した場合はErrConflictをラップしたエラーを返す。
	Insert(ctx context.Context, account *model.Account) error

	// LinkSubject はsubject ID未設定のアカウントに外部IdPのsubject IDを設定し、updated_atを更新する。
	// 対象が既に別のsubjectと紐付いている、またはsubject IDが他のアカウントで使用済みの場合は
	// ErrConflictをラップしたエラーを返す。
	LinkSubject(ctx context.Context, id, subjectID string, updatedAt time.Time) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired はnow時点で期限切れのセッションを削除し、削除件数を返す。
	// ストア側で有効期限が管理される実装は0を返してよい。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// EntryRepository は日記データの永続化インターフェース。
// 参照・更新・削除はすべて日記IDと所有者IDの両方で絞り込む。
type EntryRepository interface {
	// Create は日記を作成する。
	Create(ctx context.Context, entry *model.Entry) error

	// ListByUser はユーザーの日記をcreated_at降順で取得する。
	ListByUser(ctx context.Context, userID string, filter model.EntryFilter, limit, offset int) ([]*model.Entry, error)

	// FindByIDAndUser は指定IDかつ指定ユーザー所有の日記を取得する。見つからない場合はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Entry, error)

	// UpdateByIDAndUser は指定IDかつ指定ユーザー所有の日記を部分更新し、更新後の日記を返す。
	// 見つからない場合はnilを返す。
	UpdateByIDAndUser(ctx context.Context, id, userID string, patch model.EntryPatch, updatedAt time.Time) (*model.Entry, error)

	// DeleteByIDAndUser は指定IDかつ指定ユーザー所有の日記を削除する。
	// 削除した場合はtrue、対象がない場合はfalseを返す。
	DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error)
}
