package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/hedge/internal/metrics"
	"github.com/hitoshi/hedge/internal/middleware"
)

// Pinger はヘルスチェックに必要なデータベース接続確認のインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	GuestSessionFinder middleware.GuestSessionFinder
	CORSAllowedOrigin  string
	RateLimiter        *middleware.RateLimiter
	Logger             *slog.Logger
	Collector          metrics.MetricsCollector

	// サービス
	GuestService   GuestServiceInterface
	GuestConfig    GuestHandlerConfig
	ItemService    ItemServiceInterface
	CommentService CommentServiceInterface
	TagService     TagServiceInterface

	// 運用
	DB       Pinger
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → (GuestSession) → Logging → Recovery → RateLimit
//
// セッション作成（POST /api/guests）とヘルスチェックはセッション検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORSとセキュリティヘッダーは全ルートに効く
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	guestHandler := NewGuestHandler(deps.GuestService, deps.GuestConfig)
	itemHandler := NewItemHandler(deps.ItemService)
	commentHandler := NewCommentHandler(deps.CommentService)
	tagHandler := NewTagHandler(deps.TagService)

	// --- セッション不要のルート ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))
		r.Use(middleware.NewRecoveryMiddleware())

		// ゲストセッション
		r.Post("/api/guests", guestHandler.CreateSession)
		r.Get("/api/guests/me", guestHandler.Me)

		// ヘルスチェック
		r.Get("/health", healthHandler(deps.DB))
	})

	// Prometheusスクレイプ（ロギング対象外）
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- セッションが必要なルート ---
	// ミドルウェアスタック: GuestSession → Logging → Recovery → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewGuestSessionMiddleware(deps.GuestSessionFinder))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))
		r.Use(middleware.NewRecoveryMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// アイテム管理
		r.Route("/api/items", func(r chi.Router) {
			r.Get("/", itemHandler.ListItems)
			r.Post("/", itemHandler.CreateItem)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", itemHandler.GetItem)
				r.Patch("/", itemHandler.UpdateItem)
				r.Delete("/", itemHandler.DeleteItem)
				r.Post("/restore", itemHandler.RestoreItem)

				// コメント
				r.Get("/comments", commentHandler.ListComments)
				// POST はコメント投稿専用レート制限を追加
				r.With(deps.RateLimiter.CommentMiddleware()).Post("/comments", commentHandler.CreateComment)

				// タグ関連
				r.Get("/tags", tagHandler.ListTagsForItem)
				r.Put("/tags/{tagID}", tagHandler.AttachTag)
				r.Delete("/tags/{tagID}", tagHandler.DetachTag)
			})
		})

		// コメント管理
		r.Route("/api/comments/{id}", func(r chi.Router) {
			r.Post("/remove", commentHandler.RemoveComment)
			r.Delete("/", commentHandler.DeleteComment)
		})

		// タグ管理
		r.Route("/api/tags", func(r chi.Router) {
			r.Get("/", tagHandler.ListTags)
			r.Post("/", tagHandler.CreateTag)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", tagHandler.DeleteTag)
				r.Get("/items", tagHandler.ListItemsForTag)
			})
		})
	})

	return r
}

// healthHandler はデータベース接続を確認するヘルスチェックハンドラーを返す。
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				slog.Error("ヘルスチェックに失敗しました",
					slog.String("error", err.Error()),
				)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
