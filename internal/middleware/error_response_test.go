package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/joysparks/internal/model"
)

func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		apiErr     *model.APIError
	}{
		{"Unauthorized", http.StatusUnauthorized, model.NewUnauthorizedError()},
		{"AuthenticationFailed", http.StatusUnauthorized, model.NewAuthenticationFailedError()},
		{"InvalidEntry", http.StatusBadRequest, model.NewInvalidEntryError("本文は必須です")},
		{"EntryNotFound", http.StatusNotFound, model.NewEntryNotFoundError("e-1")},
		{"ResolutionConflict", http.StatusServiceUnavailable, model.NewResolutionConflictError()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.statusCode, tt.apiErr)

			resp := w.Result()
			if resp.StatusCode != tt.statusCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.statusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			want := ErrorResponseBody{
				Code:     tt.apiErr.Code,
				Message:  tt.apiErr.Message,
				Category: tt.apiErr.Category,
				Action:   tt.apiErr.Action,
			}
			if body != want {
				t.Errorf("body = %+v, want %+v", body, want)
			}
		})
	}
}

// 内部エラーの詳細はレスポンスに含めない。
func TestWriteInternalServerError_IsOpaque(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if raw["code"] != model.ErrCodeInternal || raw["category"] != "system" {
		t.Errorf("body = %v", raw)
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
	if len(raw) != 4 {
		t.Errorf("unexpected fields in body: %v", raw)
	}
}

func TestWriteRetryableErrorResponse_SetsRetryAfter(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{6, "6"},
		{1, "1"},
		{0, "1"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		WriteRetryableErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError(), tt.seconds)

		if got := w.Header().Get("Retry-After"); got != tt.want {
			t.Errorf("Retry-After(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
		if w.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
		}
	}
}
