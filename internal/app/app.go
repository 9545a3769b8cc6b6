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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/takumi/voltmap/internal/accessory"
	"github.com/takumi/voltmap/internal/admin"
	"github.com/takumi/voltmap/internal/auth"
	"github.com/takumi/voltmap/internal/chat"
	"github.com/takumi/voltmap/internal/config"
	"github.com/takumi/voltmap/internal/database"
	"github.com/takumi/voltmap/internal/handler"
	"github.com/takumi/voltmap/internal/logger"
	"github.com/takumi/voltmap/internal/metrics"
	"github.com/takumi/voltmap/internal/middleware"
	"github.com/takumi/voltmap/internal/presence"
	"github.com/takumi/voltmap/internal/profile"
	"github.com/takumi/voltmap/internal/realtime"
	"github.com/takumi/voltmap/internal/repository"
	"github.com/takumi/voltmap/internal/security"
	"github.com/takumi/voltmap/internal/station"
	"github.com/takumi/voltmap/internal/storage"
	"github.com/takumi/voltmap/internal/typing"
	"github.com/takumi/voltmap/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

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
// DBとRedisへの接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
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

	// 2. Redis接続（リアルタイム配信・プレゼンス用）
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("redis connection established")

	// 3. リポジトリの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	roleRepo := repository.NewPostgresRoleRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)
	typingRepo := repository.NewPostgresTypingRepo(db)
	accessoryRepo := repository.NewPostgresAccessoryRepo(db)

	// 4. セキュリティ・ストレージの初期化
	sanitizer := security.NewTextSanitizer()
	imageFetcher := security.NewSafeClient(10 * time.Second)

	objectStore, err := storage.NewMinioStore(
		cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey,
		cfg.MinioBucket, cfg.MinioPublicURL, cfg.MinioUseSSL,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	// 5. リアルタイム配信とプレゼンス
	broker := realtime.NewRedisBroker(redisClient)
	tracker := presence.NewTracker(redisClient, cfg.PresenceTTL, cfg.PresencePollInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go tracker.Run(ctx)

	// 6. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, profileRepo, identRepo, sessionRepo, roleRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	typingService := typing.NewService(typingRepo, broker)
	chatService := chat.NewService(messageRepo, broker, sanitizer, typingService)
	profileService := profile.NewService(profileRepo, roleRepo, sanitizer, objectStore)
	accessoryService := accessory.NewService(accessoryRepo, sanitizer, imageFetcher, objectStore)
	adminService := admin.NewService(profileRepo, roleRepo, sessionRepo, messageRepo, broker)

	stationClient := station.NewClient(
		&http.Client{Timeout: cfg.OCMTimeout},
		slog.Default(), cfg.OCMAPIKey, cfg.OCMMaxResults,
	)
	if !stationClient.Enabled() {
		slog.Warn("OCM_API_KEY is not set, charging station lookup is disabled")
	}

	// 7. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// オンラインユーザー数のゲージをプレゼンスのポーリング結果に追従させる
	go func() {
		updates, unsubscribe := tracker.Subscribe()
		defer unsubscribe()
		for {
			select {
			case online, ok := <-updates:
				if !ok {
					return
				}
				collector.SetOnlineUsers(len(online))
			case <-ctx.Done():
				return
			}
		}
	}()

	// 8. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのレート値はreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.ChatSendRate = rate.Limit(float64(cfg.RateLimitChat) / 60.0)
	rateLimiterCfg.ChatSendBurst = cfg.RateLimitChat

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		RoleFinder:        roleRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		Logger:      slog.Default(),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ProfileService: profileService,

		ChatService:   chatService,
		TypingService: typingService,

		PresenceTracker: tracker,

		StationService: stationClient,

		AccessoryService: accessoryService,

		AdminService: adminService,

		Subscriber: broker,
		WSConfig: handler.WSHandlerConfig{
			AllowedOrigin:  cfg.CORSAllowedOrigin,
			TypingDebounce: cfg.TypingDebounce,
			PresenceTTL:    cfg.PresenceTTL,
		},

		Metrics:         collector,
		MetricsGatherer: registry,
	}

	router := handler.NewRouter(deps)

	// 9. HTTPサーバーの起動
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はクリーンアップワーカーモードで起動する。
// 期限切れセッションと古い入力中行を定期的に削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	sessionRepo := repository.NewPostgresSessionRepo(db)
	typingRepo := repository.NewPostgresTypingRepo(db)

	cleanupJob := cleanup.NewCleanupJob(sessionRepo, typingRepo, slog.Default())
	cleanupJob.TypingRowTTL = cfg.TypingRowTTL

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
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
		slog.Duration("typing_row_ttl", cfg.TypingRowTTL),
	)

	// 起動直後に1回実行し、その後は定期実行する
	if err := cleanupJob.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(cfg.SessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped gracefully")
			return nil
		case <-ticker.C:
			if err := cleanupJob.Run(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
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
// シェルを持たないコンテナイメージからHEALTHCHECKとして呼ぶためのサブコマンド。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
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
