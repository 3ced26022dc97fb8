package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/hedge/internal/comment"
	"github.com/hitoshi/hedge/internal/middleware"
	"github.com/hitoshi/hedge/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	// Create は新しいコメントを作成する。
	Create(ctx context.Context, input comment.CreateInput) (*model.Comment, error)
	// ListThread はアイテムのコメントをスレッドツリーとして取得する。
	ListThread(ctx context.Context, itemID string) ([]*comment.ThreadNode, error)
	// Remove はコメント本文を非表示化する。
	Remove(ctx context.Context, id string) error
	// SoftDelete はコメントを論理削除する。
	SoftDelete(ctx context.Context, id string) error
}

// CommentHandler はコメント管理のHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{service: service}
}

// --- リクエスト/レスポンス型 ---

// createCommentRequest はコメント作成リクエストのボディ。
type createCommentRequest struct {
	ParentID *string `json:"parent_id,omitempty"`
	Content  string  `json:"content"`
}

// commentResponse はコメント1件のレスポンス。
// removedの場合は本文を隠し、スレッド構造のみ保持する。
type commentResponse struct {
	ID        string             `json:"id"`
	ItemID    string             `json:"item_id"`
	ParentID  *string            `json:"parent_id,omitempty"`
	Author    string             `json:"author"`
	Content   string             `json:"content"`
	CreatedAt int64              `json:"created_at"`
	Removed   bool               `json:"removed"`
	Dangling  bool               `json:"dangling,omitempty"`
	Replies   []*commentResponse `json:"replies,omitempty"`
}

// commentListResponse はスレッド一覧のレスポンス。
type commentListResponse struct {
	Comments []*commentResponse `json:"comments"`
}

// toCommentResponse はスレッドノードをレスポンス型に変換する。
// removedコメントの本文はレスポンスから除去する。
func toCommentResponse(node *comment.ThreadNode) *commentResponse {
	c := node.Comment
	resp := &commentResponse{
		ID:        c.ID,
		ItemID:    c.ItemID,
		ParentID:  c.ParentID,
		Author:    c.Author,
		Content:   c.Content,
		CreatedAt: c.CreatedAt.Unix(),
		Removed:   c.Removed,
		Dangling:  node.Dangling,
	}
	if c.IsRemoved() {
		resp.Content = ""
		resp.Author = ""
	}
	for _, reply := range node.Replies {
		resp.Replies = append(resp.Replies, toCommentResponse(reply))
	}
	return resp
}

// ListComments はアイテムのコメントスレッドを取得する。
// GET /api/items/:id/comments
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	roots, err := h.service.ListThread(r.Context(), itemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	comments := make([]*commentResponse, len(roots))
	for i, root := range roots {
		comments[i] = toCommentResponse(root)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(commentListResponse{Comments: comments})
}

// CreateComment はアイテムにコメントを投稿する。
// 投稿者名はゲストセッションの表示名を使用する。
// POST /api/items/:id/comments
func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.GuestSessionFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewGuestNotFoundError())
		return
	}

	itemID := chi.URLParam(r, "id")

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	created, err := h.service.Create(r.Context(), comment.CreateInput{
		ItemID:   itemID,
		ParentID: req.ParentID,
		Author:   session.DisplayName,
		Content:  req.Content,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toCommentResponse(&comment.ThreadNode{Comment: created}))
}

// RemoveComment はコメント本文を非表示化する。スレッド構造は保持される。
// POST /api/comments/:id/remove
func (h *CommentHandler) RemoveComment(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "id")

	if err := h.service.Remove(r.Context(), commentID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteComment はコメントを論理削除し、一覧から完全に除外する。
// DELETE /api/comments/:id
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "id")

	if err := h.service.SoftDelete(r.Context(), commentID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
