package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/hedge/internal/middleware"
	"github.com/hitoshi/hedge/internal/model"
)

// GuestServiceInterface はゲストハンドラーが必要とするサービスインターフェース。
type GuestServiceInterface interface {
	// CreateSession は新しいゲストセッションを作成する。
	CreateSession(ctx context.Context, displayName string) (*model.GuestSession, error)
	// GetSession は指定guest_idのセッションを取得する。
	GetSession(ctx context.Context, guestID string) (*model.GuestSession, error)
}

// GuestHandlerConfig はゲストハンドラーの設定。
type GuestHandlerConfig struct {
	// CookieSecure はCookieのSecure属性。本番環境ではtrueにする。
	CookieSecure bool
	// SessionTTL はCookieの有効期間。サーバー側のTTLスイープと揃える。
	SessionTTL time.Duration
}

// GuestHandler はゲストセッション管理のHTTPハンドラー。
type GuestHandler struct {
	service GuestServiceInterface
	config  GuestHandlerConfig
}

// NewGuestHandler はGuestHandlerを生成する。
func NewGuestHandler(service GuestServiceInterface, config GuestHandlerConfig) *GuestHandler {
	return &GuestHandler{
		service: service,
		config:  config,
	}
}

// --- リクエスト/レスポンス型 ---

// createGuestRequest はゲストセッション作成リクエストのボディ。
type createGuestRequest struct {
	DisplayName string `json:"display_name"`
}

// guestResponse はゲストセッションのレスポンス。
type guestResponse struct {
	GuestID     string `json:"guest_id"`
	DisplayName string `json:"display_name"`
	CreatedAt   int64  `json:"created_at"`
}

// CreateSession は新しいゲストセッションを作成し、HTTP Only Cookieを発行する。
// POST /api/guests
func (h *GuestHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createGuestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	session, err := h.service.CreateSession(r.Context(), req.DisplayName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.GuestCookieName(),
		Value:    session.GuestID,
		Path:     "/",
		MaxAge:   int(h.config.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toGuestResponse(session))
}

// Me は現在のゲストセッションを返す。
// GET /api/guests/me
func (h *GuestHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.GuestCookieName())
	if err != nil || cookie.Value == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewGuestNotFoundError())
		return
	}

	session, err := h.service.GetSession(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toGuestResponse(session))
}

// toGuestResponse はドメインのGuestSessionをレスポンス型に変換する。
func toGuestResponse(session *model.GuestSession) guestResponse {
	return guestResponse{
		GuestID:     session.GuestID,
		DisplayName: session.DisplayName,
		CreatedAt:   session.CreatedAt.Unix(),
	}
}
