package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/hedge/internal/comment"
	"github.com/hitoshi/hedge/internal/config"
	"github.com/hitoshi/hedge/internal/database"
	"github.com/hitoshi/hedge/internal/guest"
	"github.com/hitoshi/hedge/internal/handler"
	"github.com/hitoshi/hedge/internal/item"
	"github.com/hitoshi/hedge/internal/logger"
	"github.com/hitoshi/hedge/internal/metrics"
	"github.com/hitoshi/hedge/internal/middleware"
	"github.com/hitoshi/hedge/internal/preview"
	"github.com/hitoshi/hedge/internal/repository"
	"github.com/hitoshi/hedge/internal/richtext"
	"github.com/hitoshi/hedge/internal/security"
	"github.com/hitoshi/hedge/internal/tag"
	"github.com/hitoshi/hedge/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envファイル（存在する場合）と環境変数からConfigを読み込み、
// JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// .envは開発環境用。存在しなくてもエラーにしない
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	itemRepo := repository.NewPostgresItemRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	tagRepo := repository.NewPostgresTagRepo(db)
	itemTagRepo := repository.NewPostgresItemTagRepo(db)
	guestRepo := repository.NewPostgresGuestSessionRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	normalizer := richtext.NewNormalizer()
	fetchGuard := security.NewFetchGuard()
	previewFetcher := preview.NewFetcher(fetchGuard, cfg.PreviewTimeout, cfg.PreviewMaxSize)

	guestService := guest.NewService(guestRepo)
	itemService := item.NewService(itemRepo, normalizer, previewFetcher, collector)
	commentService := comment.NewService(commentRepo, itemRepo, normalizer, collector)
	tagService := tag.NewService(tagRepo, itemRepo, itemTagRepo, collector)

	// 5. レート制限の構成（configはreq/min単位、limiterはreq/sec単位）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = rateLimit(cfg.RateLimitGeneral)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitComment > 0 {
		rateLimiterCfg.CommentRate = rateLimit(cfg.RateLimitComment)
		rateLimiterCfg.CommentBurst = cfg.RateLimitComment
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		GuestSessionFinder: guestRepo,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		RateLimiter:        rateLimiter,
		Logger:             slog.Default(),
		Collector:          collector,

		GuestService: guestService,
		GuestConfig: handler.GuestHandlerConfig{
			CookieSecure: cfg.CookieSecure,
			SessionTTL:   cfg.GuestSessionTTL,
		},

		ItemService:    itemService,
		CommentService: commentService,
		TagService:     tagService,

		DB:       db,
		Gatherer: registry,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はクリーンアップワーカーモードで起動する。
// セッションTTLスイープと論理削除済みアイテム・タグのパージを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	itemRepo := repository.NewPostgresItemRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	tagRepo := repository.NewPostgresTagRepo(db)
	itemTagRepo := repository.NewPostgresItemTagRepo(db)
	guestRepo := repository.NewPostgresGuestSessionRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ジョブの初期化
	sweepJob := cleanup.NewSessionSweepJob(guestRepo, slog.Default(), collector)
	sweepJob.SessionTTL = cfg.GuestSessionTTL

	purgeJob := cleanup.NewPurgeJob(itemRepo, tagRepo, commentRepo, itemTagRepo, slog.Default(), collector)
	purgeJob.RetentionDays = cfg.PurgeRetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("purge_retention_days", cfg.PurgeRetentionDays),
	)

	runJobs := func() {
		if err := sweepJob.Run(ctx); err != nil {
			slog.Error("session sweep job failed", slog.String("error", err.Error()))
		}
		if err := purgeJob.Run(ctx); err != nil {
			slog.Error("purge job failed", slog.String("error", err.Error()))
		}
	}

	// 起動直後に1回実行し、以降は定期実行する
	runJobs()

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped gracefully")
			return nil
		case <-ticker.C:
			runJobs()
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

// rateLimit はreq/min単位の設定値をreq/sec単位のrate.Limitに変換する。
func rateLimit(perMinute int) rate.Limit {
	return rate.Limit(float64(perMinute) / 60.0)
}
