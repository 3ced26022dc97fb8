package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/hedge/internal/model"
	"github.com/hitoshi/hedge/internal/tag"
)

// TagServiceInterface はタグハンドラーが必要とするサービスインターフェース。
type TagServiceInterface interface {
	// Create は新しいタグを作成する。
	Create(ctx context.Context, name string) (*model.Tag, error)
	// List は論理削除されていないタグをname昇順で返す。
	List(ctx context.Context) ([]*model.Tag, error)
	// SoftDelete はタグを論理削除する。
	SoftDelete(ctx context.Context, id string) error
	// Attach はアイテムにタグを付与する。
	Attach(ctx context.Context, itemID, tagID string) error
	// Detach はアイテムからタグを外す。
	Detach(ctx context.Context, itemID, tagID string) error
	// ListTagsForItem はアイテムに付与されたタグを解決して返す。
	ListTagsForItem(ctx context.Context, itemID string) ([]*tag.ItemTagView, error)
	// ListItemsForTag はタグが付与されたアイテムを返す。
	ListItemsForTag(ctx context.Context, tagID string) ([]*model.Item, error)
}

// TagHandler はタグ管理のHTTPハンドラー。
type TagHandler struct {
	service TagServiceInterface
}

// NewTagHandler はTagHandlerを生成する。
func NewTagHandler(service TagServiceInterface) *TagHandler {
	return &TagHandler{service: service}
}

// --- リクエスト/レスポンス型 ---

// createTagRequest はタグ作成リクエストのボディ。
type createTagRequest struct {
	Name string `json:"name"`
}

// tagResponse はタグのレスポンス。
type tagResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt *int64 `json:"created_at,omitempty"`
}

// itemTagResponse はアイテムに付与されたタグの解決結果レスポンス。
// danglingはタグ本体が物理削除され参照が解決できないことを示す。
type itemTagResponse struct {
	TagID    string `json:"tag_id"`
	Name     string `json:"name,omitempty"`
	Dangling bool   `json:"dangling,omitempty"`
}

// toTagResponse はドメインのTagをレスポンス型に変換する。
func toTagResponse(t *model.Tag) tagResponse {
	resp := tagResponse{
		ID:   t.ID,
		Name: t.Name,
	}
	if t.CreatedAt != nil {
		epoch := t.CreatedAt.Unix()
		resp.CreatedAt = &epoch
	}
	return resp
}

// ListTags はタグ一覧を取得する。
// GET /api/tags
func (h *TagHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]tagResponse, len(tags))
	for i, t := range tags {
		resp[i] = toTagResponse(t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]tagResponse{"tags": resp})
}

// CreateTag は新しいタグを作成する。
// POST /api/tags
func (h *TagHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req createTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	created, err := h.service.Create(r.Context(), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toTagResponse(created))
}

// DeleteTag はタグを論理削除する。
// DELETE /api/tags/:id
func (h *TagHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	tagID := chi.URLParam(r, "id")

	if err := h.service.SoftDelete(r.Context(), tagID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AttachTag はアイテムにタグを付与する。既存の関連に対しては冪等。
// PUT /api/items/:id/tags/:tagID
func (h *TagHandler) AttachTag(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	tagID := chi.URLParam(r, "tagID")

	if err := h.service.Attach(r.Context(), itemID, tagID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DetachTag はアイテムからタグを外す。存在しない関連に対しては冪等。
// DELETE /api/items/:id/tags/:tagID
func (h *TagHandler) DetachTag(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	tagID := chi.URLParam(r, "tagID")

	if err := h.service.Detach(r.Context(), itemID, tagID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTagsForItem はアイテムに付与されたタグ一覧を取得する。
// GET /api/items/:id/tags
func (h *TagHandler) ListTagsForItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	views, err := h.service.ListTagsForItem(r.Context(), itemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]itemTagResponse, len(views))
	for i, v := range views {
		resp[i] = itemTagResponse{TagID: v.TagID, Dangling: v.Dangling}
		if v.Tag != nil {
			resp[i].Name = v.Tag.Name
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]itemTagResponse{"tags": resp})
}

// ListItemsForTag はタグが付与されたアイテム一覧を取得する。
// GET /api/tags/:id/items
func (h *TagHandler) ListItemsForTag(w http.ResponseWriter, r *http.Request) {
	tagID := chi.URLParam(r, "id")

	items, err := h.service.ListItemsForTag(r.Context(), tagID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]itemResponse, len(items))
	for i, it := range items {
		resp[i] = toItemResponse(it)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]itemResponse{"items": resp})
}
