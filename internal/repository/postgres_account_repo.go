package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/joysparks/internal/model"
)

// accountColumns はusersテーブルから読み出すカラム。scanAccountの順序と一致させる。
const accountColumns = `id, username, password, google_uid, first_name, last_name, created_at, updated_at`

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM users WHERE id = $1`,
		id,
	)
	account, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

// FindBySubjectID は外部IdPのsubject IDでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindBySubjectID(ctx context.Context, subjectID string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM users WHERE google_uid = $1`,
		subjectID,
	)
	account, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by subject: %w", err)
	}
	return account, nil
}

// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM users WHERE username = $1`,
		username,
	)
	account, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by username: %w", err)
	}
	return account, nil
}

// Insert はアカウントを作成する。
// 一意制約違反の場合はErrConflictをラップしたエラーを返す。
func (r *PostgresAccountRepo) Insert(ctx context.Context, account *model.Account) error {
	if !account.Credentials.Valid() {
		return fmt.Errorf("failed to insert account: %w", model.ErrNoAuthMethod)
	}

	passwordHash, _ := account.Credentials.PasswordHash()
	subjectID, _ := account.Credentials.SubjectID()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password, google_uid, first_name, last_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.Username,
		nullString(passwordHash), nullString(subjectID),
		nullString(account.FirstName), nullString(account.LastName),
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert account: %w", ErrConflict)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// LinkSubject はsubject ID未設定のアカウントに外部IdPのsubject IDを設定する。
// google_uid IS NULL を条件とした更新のため、同時に紐付けが走っても上書きは起きない。
func (r *PostgresAccountRepo) LinkSubject(ctx context.Context, id, subjectID string, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET google_uid = $2, updated_at = $3
		 WHERE id = $1 AND google_uid IS NULL`,
		id, subjectID, updatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to link subject: %w", ErrConflict)
		}
		return fmt.Errorf("failed to link subject: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %s is no longer linkable: %w", id, ErrConflict)
	}
	return nil
}

// scanAccount は1行をmodel.Accountに変換する。行がない場合はnilを返す。
func scanAccount(row *sql.Row) (*model.Account, error) {
	var (
		account             model.Account
		password, subject   sql.NullString
		firstName, lastName sql.NullString
	)
	err := row.Scan(
		&account.ID, &account.Username, &password, &subject,
		&firstName, &lastName, &account.CreatedAt, &account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	creds, err := model.NewCredentials(password.String, subject.String)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", account.ID, err)
	}
	account.Credentials = creds
	account.FirstName = firstName.String
	account.LastName = lastName.String

	return &account, nil
}

// nullString は空文字列をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
