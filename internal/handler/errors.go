package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/joysparks/internal/middleware"
	"github.com/hitoshi/joysparks/internal/model"
)

const (
	// maxRequestBodyBytes はJSONリクエストボディの上限。
	maxRequestBodyBytes = 64 << 10

	// conflictRetryAfterSeconds は解決競合時にクライアントへ示す再試行までの秒数。
	conflictRetryAfterSeconds = 1
)

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		switch {
		case apiErr.Code == model.ErrCodeAuthenticationFailed:
			// 原因を区別しない
			apiErr = model.NewAuthenticationFailedError()
		case apiErr.Code == model.ErrCodeResolutionConflict:
			middleware.WriteRetryableErrorResponse(w, statusCode, apiErr, conflictRetryAfterSeconds)
			return
		case statusCode == http.StatusInternalServerError:
			logInternalError(r, err)
			apiErr = model.NewInternalError()
		}
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	logInternalError(r, err)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeAuthenticationFailed, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidClaim,
		model.ErrCodeUsernameTaken,
		model.ErrCodeInvalidRequest,
		model.ErrCodeInvalidEntry,
		model.ErrCodeInvalidPagination:
		return http.StatusBadRequest
	case model.ErrCodeResolutionConflict:
		return http.StatusServiceUnavailable
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeEntryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func logInternalError(r *http.Request, err error) {
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}

// decodeJSONBody はリクエストボディをJSONとしてdstに読み込む。
// 失敗した場合はINVALID_REQUESTを書き込み、falseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		reason := "リクエストボディの解析に失敗しました"
		if errors.Is(err, io.EOF) {
			reason = "リクエストボディが空です"
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(reason))
		return false
	}
	return true
}

// writeJSON はステータスコードとともにJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// requireUserID はコンテキストからユーザーIDを取り出す。
// 取得できない場合は401を書き込み、falseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}
