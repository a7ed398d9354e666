// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, entry, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is はエラーコードが一致する場合にtrueを返す。
// errors.Is(err, model.ErrInvalidClaim) のような比較に使用する。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// 定義済みエラーコード
const (
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeInvalidClaim         = "INVALID_CLAIM"
	ErrCodeResolutionConflict   = "RESOLUTION_CONFLICT"
	ErrCodeUsernameTaken        = "USERNAME_TAKEN"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeInvalidEntry         = "INVALID_ENTRY"
	ErrCodeInvalidPagination    = "INVALID_PAGINATION"
	ErrCodeEntryNotFound        = "ENTRY_NOT_FOUND"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeRateLimited          = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// 比較用のセンチネル。errors.Isはコードのみで判定する。
var (
	ErrAuthenticationFailed = &APIError{Code: ErrCodeAuthenticationFailed}
	ErrInvalidClaim         = &APIError{Code: ErrCodeInvalidClaim}
	ErrResolutionConflict   = &APIError{Code: ErrCodeResolutionConflict}
	ErrUsernameTaken        = &APIError{Code: ErrCodeUsernameTaken}
	ErrEntryNotFound        = &APIError{Code: ErrCodeEntryNotFound}
)

// NewAuthenticationFailedError は認証失敗エラーを生成する。
// パスワード誤り、トークン不正、保存済みハッシュ破損のいずれでも同一の内容を返し、原因を区別しない。
func NewAuthenticationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationFailed,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "ユーザー名とパスワードを確認して、再度ログインしてください。",
	}
}

// NewInvalidClaimError は外部IdPのクレームに必須項目が欠けている場合のエラーを生成する。
func NewInvalidClaimError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidClaim,
		Message:  fmt.Sprintf("外部認証プロバイダーの情報に必須項目がありません: %s", field),
		Category: "auth",
		Action:   "メールアドレスの提供を許可したうえで、再度サインインしてください。",
	}
}

// NewResolutionConflictError は同時サインインの競合を解消できなかった場合のエラーを生成する。
func NewResolutionConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeResolutionConflict,
		Message:  "アカウントの処理が競合しました。",
		Category: "system",
		Action:   "しばらく待ってから再度サインインしてください。",
	}
}

// NewUsernameTakenError はユーザー名が登録済みの場合のエラーを生成する。
func NewUsernameTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  "このユーザー名は既に使用されています。",
		Category: "validation",
		Action:   "別のユーザー名で登録するか、ログインしてください。",
	}
}

// NewInvalidRequestError はリクエスト内容が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidEntryError は日記の内容が不正な場合のエラーを生成する。
func NewInvalidEntryError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEntry,
		Message:  fmt.Sprintf("日記の内容が不正です: %s", reason),
		Category: "validation",
		Action:   "1文字以上280文字以内で入力してください。",
	}
}

// NewInvalidPaginationError はページング指定が不正な場合のエラーを生成する。
func NewInvalidPaginationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPagination,
		Message:  fmt.Sprintf("無効なページング指定です: %s", reason),
		Category: "validation",
		Action:   "limitとoffsetには0以上の整数を指定してください。",
	}
}

// NewEntryNotFoundError は日記未検出エラーを生成する。
// 他ユーザーの日記IDを指定した場合も同じエラーを返す。
func NewEntryNotFoundError(entryID string) *APIError {
	return &APIError{
		Code:     ErrCodeEntryNotFound,
		Message:  fmt.Sprintf("指定された日記が見つかりません: %s", entryID),
		Category: "entry",
		Action:   "日記IDを確認してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
