// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/hedge/internal/model"
)

const guestCookieName = "guest_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// guestContextKey はリクエストコンテキストにゲストセッションを格納するためのキー。
var guestContextKey = contextKey("guest_session")

// GuestSessionFinder はゲストセッションの検索に必要なインターフェース。
// repository.GuestSessionRepositoryの部分集合として定義する。
type GuestSessionFinder interface {
	FindByGuestID(ctx context.Context, guestID string) (*model.GuestSession, error)
}

// NewGuestSessionMiddleware はHTTP Only Cookieからゲストセッションを読み取り、
// 有効性を検証するミドルウェアを返す。
// 検証済みセッションをリクエストコンテキストに注入する。
// セッションのないリクエストには401 Unauthorizedを返す。
func NewGuestSessionMiddleware(finder GuestSessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからゲストIDを取得
			cookie, err := r.Cookie(guestCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewGuestNotFoundError())
				return
			}

			// 2. セッションの有効性を検証（TTLスイープで削除済みの場合はnil）
			session, err := finder.FindByGuestID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("ゲストセッションの取得に失敗しました",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewGuestNotFoundError())
				return
			}
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewGuestNotFoundError())
				return
			}

			// 3. 検証済みセッションをコンテキストに注入
			ctx := ContextWithGuestSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GuestSessionFromContext はリクエストコンテキストからゲストセッションを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func GuestSessionFromContext(ctx context.Context) (*model.GuestSession, error) {
	session, ok := ctx.Value(guestContextKey).(*model.GuestSession)
	if !ok || session == nil {
		return nil, fmt.Errorf("guest session not found in context")
	}
	return session, nil
}

// ContextWithGuestSession はコンテキストにゲストセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithGuestSession(ctx context.Context, session *model.GuestSession) context.Context {
	return context.WithValue(ctx, guestContextKey, session)
}

// GuestCookieName はゲストセッションCookieの名前を返す。
// ハンドラーがCookieを発行する際に使用する。
func GuestCookieName() string {
	return guestCookieName
}
