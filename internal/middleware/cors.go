package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// プリフライト結果をブラウザにキャッシュさせる期間。
const corsMaxAge = 24 * time.Hour

// NewCORSMiddleware は単一の許可オリジンに対するCORSミドルウェアを返す。
// ゲストセッションCookieを伴うリクエストを受け付けるため、
// Allow-Originにはワイルドカードではなく設定されたオリジンをそのまま返す。
// プリフライトはここで完結させ、後続のハンドラーには渡さない。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	maxAge := strconv.Itoa(int(corsMaxAge / time.Second))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Max-Age", maxAge)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
