package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/joysparks/internal/model"
)

// PostgresEntryRepo はPostgreSQLを使用した日記リポジトリ。
// すべての参照・更新・削除はid と user_id の両方で絞り込む。
type PostgresEntryRepo struct {
	db *sql.DB
}

// NewPostgresEntryRepo はPostgresEntryRepoを生成する。
func NewPostgresEntryRepo(db *sql.DB) *PostgresEntryRepo {
	return &PostgresEntryRepo{db: db}
}

// Create は日記を作成する。
func (r *PostgresEntryRepo) Create(ctx context.Context, entry *model.Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (id, user_id, content, category, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.UserID, entry.Content, nullString(entry.Category),
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("日記の作成に失敗しました: %w", err)
	}
	return nil
}

// ListByUser はユーザーの日記をcreated_at降順で取得する。
// filter.Categoryが空でない場合はカテゴリの完全一致で絞り込む。
func (r *PostgresEntryRepo) ListByUser(ctx context.Context, userID string, filter model.EntryFilter, limit, offset int) ([]*model.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, content, category, created_at, updated_at
		 FROM entries
		 WHERE user_id = $1 AND ($2 = '' OR category = $2)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3 OFFSET $4`,
		userID, filter.Category, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("日記一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	entries := make([]*model.Entry, 0, limit)
	for rows.Next() {
		entry := &model.Entry{}
		var category sql.NullString
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.Content, &category,
			&entry.CreatedAt, &entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("日記の読み取りに失敗しました: %w", err)
		}
		entry.Category = category.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("日記一覧の走査に失敗しました: %w", err)
	}

	return entries, nil
}

// FindByIDAndUser は指定IDかつ指定ユーザー所有の日記を取得する。見つからない場合はnilを返す。
func (r *PostgresEntryRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, content, category, created_at, updated_at
		 FROM entries WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("日記の取得に失敗しました: %w", err)
	}
	return entry, nil
}

// UpdateByIDAndUser は日記を部分更新し、更新後の日記を返す。
// nilのフィールドは既存の値を維持する。見つからない場合はnilを返す。
func (r *PostgresEntryRepo) UpdateByIDAndUser(ctx context.Context, id, userID string, patch model.EntryPatch, updatedAt time.Time) (*model.Entry, error) {
	var content, category sql.NullString
	if patch.Content != nil {
		content = sql.NullString{String: *patch.Content, Valid: true}
	}
	if patch.Category != nil {
		category = sql.NullString{String: *patch.Category, Valid: true}
	}

	row := r.db.QueryRowContext(ctx,
		`UPDATE entries
		 SET content = COALESCE($3, content),
		     category = CASE WHEN $4::boolean THEN NULLIF($5, '') ELSE category END,
		     updated_at = $6
		 WHERE id = $1 AND user_id = $2
		 RETURNING id, user_id, content, category, created_at, updated_at`,
		id, userID, content, category.Valid, category.String, updatedAt,
	)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("日記の更新に失敗しました: %w", err)
	}
	return entry, nil
}

// DeleteByIDAndUser は指定IDかつ指定ユーザー所有の日記を削除する。
func (r *PostgresEntryRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM entries WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("日記の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// scanEntry は1行をmodel.Entryに変換する。行がない場合はnilを返す。
func scanEntry(row *sql.Row) (*model.Entry, error) {
	entry := &model.Entry{}
	var category sql.NullString
	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.Content, &category,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry.Category = category.String
	return entry, nil
}

// compile-time interface check
var _ EntryRepository = (*PostgresEntryRepo)(nil)
