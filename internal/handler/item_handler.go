package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/hedge/internal/item"
	"github.com/hitoshi/hedge/internal/model"
)

// ItemServiceInterface はアイテムハンドラーが必要とするサービスインターフェース。
type ItemServiceInterface interface {
	// Create は新しいアイテムを作成する。
	Create(ctx context.Context, input item.CreateInput) (*model.Item, error)
	// Get はアイテムを取得し、閲覧カウンタを加算する。
	Get(ctx context.Context, id string) (*model.Item, error)
	// List はアイテム一覧をカーソルページネーション付きで返す。
	List(ctx context.Context, cursor string, limit int) (*item.ListResult, error)
	// Update はアイテムの内容を部分更新する。
	Update(ctx context.Context, id string, input item.UpdateInput) (*model.Item, error)
	// SoftDelete はアイテムを論理削除する。
	SoftDelete(ctx context.Context, id string) error
	// Restore は論理削除されたアイテムを復元する。
	Restore(ctx context.Context, id string) error
}

// ItemHandler はアイテム管理のHTTPハンドラー。
type ItemHandler struct {
	service ItemServiceInterface
}

// NewItemHandler はItemHandlerを生成する。
func NewItemHandler(service ItemServiceInterface) *ItemHandler {
	return &ItemHandler{service: service}
}

// --- リクエスト/レスポンス型 ---

// createItemRequest はアイテム作成リクエストのボディ。
type createItemRequest struct {
	Title        string `json:"title"`
	Link         string `json:"link"`
	Image        string `json:"image"`
	Extract      string `json:"extract"`
	OwnerComment string `json:"owner_comment"`
}

// updateItemRequest はアイテム部分更新リクエストのボディ。nilフィールドは変更しない。
type updateItemRequest struct {
	Title        *string `json:"title,omitempty"`
	Link         *string `json:"link,omitempty"`
	Image        *string `json:"image,omitempty"`
	Extract      *string `json:"extract,omitempty"`
	OwnerComment *string `json:"owner_comment,omitempty"`
}

// itemResponse はアイテムのレスポンス。
type itemResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Link         string `json:"link"`
	Image        string `json:"image"`
	Extract      string `json:"extract"`
	OwnerComment string `json:"owner_comment"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    *int64 `json:"updated_at,omitempty"`
	ViewCount    int    `json:"view_count"`
}

// itemListResponse はアイテム一覧のレスポンス。
type itemListResponse struct {
	Items      []itemResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

// toItemResponse はドメインのItemをレスポンス型に変換する。
func toItemResponse(it *model.Item) itemResponse {
	resp := itemResponse{
		ID:           it.ID,
		Title:        it.Title,
		Link:         it.Link,
		Image:        it.Image,
		Extract:      it.Extract,
		OwnerComment: it.OwnerComment,
		CreatedAt:    it.CreatedAt.Unix(),
		ViewCount:    it.ViewCount,
	}
	if it.UpdatedAt != nil {
		epoch := it.UpdatedAt.Unix()
		resp.UpdatedAt = &epoch
	}
	return resp
}

// ListItems はアイテム一覧を取得する。
// GET /api/items?cursor=xxx&limit=20
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, _ = strconv.Atoi(limitStr)
	}

	result, err := h.service.List(r.Context(), cursor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]itemResponse, len(result.Items))
	for i, it := range result.Items {
		items[i] = toItemResponse(it)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(itemListResponse{
		Items:      items,
		NextCursor: result.NextCursor,
		HasMore:    result.HasMore,
	})
}

// CreateItem は新しいアイテムを作成する。
// POST /api/items
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	created, err := h.service.Create(r.Context(), item.CreateInput{
		Title:        req.Title,
		Link:         req.Link,
		Image:        req.Image,
		Extract:      req.Extract,
		OwnerComment: req.OwnerComment,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toItemResponse(created))
}

// GetItem はアイテム詳細を取得する。
// GET /api/items/:id
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	it, err := h.service.Get(r.Context(), itemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toItemResponse(it))
}

// UpdateItem はアイテムの内容を部分更新する。
// PATCH /api/items/:id
func (h *ItemHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	updated, err := h.service.Update(r.Context(), itemID, item.UpdateInput{
		Title:        req.Title,
		Link:         req.Link,
		Image:        req.Image,
		Extract:      req.Extract,
		OwnerComment: req.OwnerComment,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toItemResponse(updated))
}

// DeleteItem はアイテムを論理削除する。
// DELETE /api/items/:id
func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	if err := h.service.SoftDelete(r.Context(), itemID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RestoreItem は論理削除されたアイテムを復元する。
// POST /api/items/:id/restore
func (h *ItemHandler) RestoreItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	if err := h.service.Restore(r.Context(), itemID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
