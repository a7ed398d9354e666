package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/joysparks/internal/entry"
	"github.com/hitoshi/joysparks/internal/model"
)

// EntryServiceInterface は日記ハンドラーが必要とするサービスインターフェース。
type EntryServiceInterface interface {
	Create(ctx context.Context, userID string, input entry.CreateInput) (*model.Entry, error)
	List(ctx context.Context, userID string, input entry.ListInput) ([]*model.Entry, error)
	Get(ctx context.Context, userID, entryID string) (*model.Entry, error)
	Update(ctx context.Context, userID, entryID string, patch model.EntryPatch) (*model.Entry, error)
	Delete(ctx context.Context, userID, entryID string) error
}

// EntryHandler は日記のHTTPハンドラー。
type EntryHandler struct {
	service EntryServiceInterface
}

// NewEntryHandler はEntryHandlerを生成する。
func NewEntryHandler(service EntryServiceInterface) *EntryHandler {
	return &EntryHandler{service: service}
}

type createEntryRequest struct {
	Content  string  `json:"content"`
	Category *string `json:"category"`
}

// updateEntryRequest は部分更新のボディ。省略したフィールドは変更せず、categoryのnullは未分類に戻す。
type updateEntryRequest struct {
	Content  *string        `json:"content"`
	Category optionalString `json:"category"`
}

// optionalString はJSONでフィールドが存在したかどうかを保持する文字列。
type optionalString struct {
	Set   bool
	Value string
}

// UnmarshalJSON はnullを空文字列として受け付ける。
func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Value = ""
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// entryResponse は日記のAPIレスポンス。未分類のcategoryはnullで返す。
type entryResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	Category  *string   `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Create は日記を作成する。
// POST /api/entries
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createEntryRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	input := entry.CreateInput{Content: req.Content}
	if req.Category != nil {
		input.Category = *req.Category
	}

	created, err := h.service.Create(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryResponse(created))
}

// List は日記一覧を新しい順に返す。
// GET /api/entries?limit=10&offset=0&category=xxx
func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	limit, err := parseQueryInt(query.Get("limit"))
	if err != nil {
		handleServiceError(w, r, model.NewInvalidPaginationError("limitが整数ではありません"))
		return
	}
	offset, err := parseQueryInt(query.Get("offset"))
	if err != nil {
		handleServiceError(w, r, model.NewInvalidPaginationError("offsetが整数ではありません"))
		return
	}

	entries, err := h.service.List(r.Context(), userID, entry.ListInput{
		Limit:    limit,
		Offset:   offset,
		Category: query.Get("category"),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get は日記を1件返す。
// GET /api/entries/{id}
func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	found, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(found))
}

// Update は日記を部分更新する。
// PUT /api/entries/{id}
func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateEntryRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	patch := model.EntryPatch{Content: req.Content}
	if req.Category.Set {
		category := req.Category.Value
		patch.Category = &category
	}

	updated, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), patch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(updated))
}

// Delete は日記を削除する。
// DELETE /api/entries/{id}
func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseQueryInt は空文字列を0として整数に変換する。
func parseQueryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// toEntryResponse はmodel.EntryからAPIレスポンスに変換する。
func toEntryResponse(e *model.Entry) entryResponse {
	resp := entryResponse{
		ID:        e.ID,
		UserID:    e.UserID,
		Content:   e.Content,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.Category != "" {
		category := e.Category
		resp.Category = &category
	}
	return resp
}

// compile-time interface check
var _ EntryServiceInterface = (*entry.Service)(nil)
