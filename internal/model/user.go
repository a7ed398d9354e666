// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"strings"
	"time"
)

// ErrNoAuthMethod はパスワードも外部IdPのsubjectも持たない認証情報を構築しようとした場合のエラー。
var ErrNoAuthMethod = errors.New("credentials require a password hash or a federated subject")

// Credentials はアカウントの認証手段を表す。
// パスワードハッシュと外部IdPのsubject IDの少なくとも一方を必ず持つ。
// フィールドは非公開とし、コンストラクタ経由でのみ生成できる。
type Credentials struct {
	passwordHash string
	subjectID    string
}

// PasswordCredentials はパスワード認証のみのCredentialsを生成する。
func PasswordCredentials(passwordHash string) Credentials {
	return Credentials{passwordHash: passwordHash}
}

// FederatedCredentials は外部IdP認証のみのCredentialsを生成する。
func FederatedCredentials(subjectID string) Credentials {
	return Credentials{subjectID: subjectID}
}

// NewCredentials は永続化層から読み出した値でCredentialsを復元する。
// 両方が空の場合はErrNoAuthMethodを返す。
func NewCredentials(passwordHash, subjectID string) (Credentials, error) {
	c := Credentials{passwordHash: passwordHash, subjectID: subjectID}
	if !c.Valid() {
		return Credentials{}, ErrNoAuthMethod
	}
	return c, nil
}

// WithSubject は外部IdPのsubjectを紐付けたCredentialsを返す。
// パスワードハッシュはそのまま維持される。
func (c Credentials) WithSubject(subjectID string) Credentials {
	c.subjectID = subjectID
	return c
}

// PasswordHash は保存済みパスワードハッシュを返す。未設定の場合はfalseを返す。
func (c Credentials) PasswordHash() (string, bool) {
	return c.passwordHash, c.passwordHash != ""
}

// SubjectID は紐付け済みの外部IdP subject IDを返す。未設定の場合はfalseを返す。
func (c Credentials) SubjectID() (string, bool) {
	return c.subjectID, c.subjectID != ""
}

// Valid は少なくとも1つの認証手段を持つかどうかを返す。
func (c Credentials) Valid() bool {
	return c.passwordHash != "" || c.subjectID != ""
}

// Account はサービス利用ユーザーのアカウントを表す。
// Usernameは慣例としてメールアドレスを格納する。
type Account struct {
	ID          string
	Username    string
	Credentials Credentials
	FirstName   string
	LastName    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FederatedClaim は検証済みの外部IdPトークンから取り出したユーザー情報。
type FederatedClaim struct {
	SubjectID   string
	Email       string
	DisplayName string
}

// SplitDisplayName は表示名を空白で分割し、先頭を名、残りを姓として返す。
// 空白を含まない場合は全体が名となり、姓は空になる。
func SplitDisplayName(name string) (first, last string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
