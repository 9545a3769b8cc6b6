package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/takumi/voltmap/internal/metrics"
	"github.com/takumi/voltmap/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	RoleFinder        middleware.RoleFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// プロフィール
	ProfileService ProfileServiceInterface

	// チャット
	ChatService   ChatServiceInterface
	TypingService TypingServiceInterface

	// プレゼンス
	PresenceTracker PresenceTrackerInterface

	// 充電ステーション
	StationService StationServiceInterface

	// アクセサリー
	AccessoryService AccessoryServiceInterface

	// 管理パネル
	AdminService AdminServiceInterface

	// WebSocket
	Subscriber ConversationSubscriber
	WSConfig   WSHandlerConfig

	// メトリクス
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → CSRF → Session → RateLimit(General)
//
// 認証ルート（/auth/*）・/healthz・/metricsはセッション検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService)
	chatHandler := NewChatHandler(deps.ChatService, deps.TypingService, deps.Metrics)
	presenceHandler := NewPresenceHandler(deps.PresenceTracker)
	stationHandler := NewStationHandler(deps.StationService, deps.Metrics)
	accessoryHandler := NewAccessoryHandler(deps.AccessoryService, deps.Metrics)
	adminHandler := NewAdminHandler(deps.AdminService)
	wsHandler := NewWSHandler(deps.Subscriber, deps.ChatService, deps.PresenceTracker, deps.TypingService, deps.Metrics, deps.WSConfig)

	// --- 認証不要のルート ---

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// プロフィール
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Put("/", profileHandler.UpdateProfile)
			r.Post("/avatar", profileHandler.UploadAvatar)
		})
		r.Get("/api/profiles/search", profileHandler.SearchProfiles)

		// チャット
		r.Route("/api/chat", func(r chi.Router) {
			// サイドバー用の会話一覧
			r.Get("/conversations", chatHandler.ListConversations)

			// POST /api/chat/messages - メッセージ送信（送信専用レート制限を追加）
			r.With(deps.RateLimiter.ChatSendMiddleware()).Post("/messages", chatHandler.SendMessage)

			r.Route("/messages/{id}", func(r chi.Router) {
				r.Patch("/", chatHandler.EditMessage)
				r.Delete("/", chatHandler.DeleteMessage)
			})

			r.Route("/{otherID}", func(r chi.Router) {
				r.Get("/messages", chatHandler.ListMessages)
				r.Get("/typing", chatHandler.GetTyping)
				r.Put("/typing", chatHandler.UpdateTyping)
			})
		})

		// プレゼンス
		r.Route("/api/presence", func(r chi.Router) {
			r.Get("/", presenceHandler.ListOnline)
			r.Post("/heartbeat", presenceHandler.Heartbeat)
			r.Post("/leave", presenceHandler.Leave)
		})

		// 充電ステーション検索
		r.Get("/api/stations", stationHandler.SearchStations)

		// アクセサリーカタログ
		r.Route("/api/accessories", func(r chi.Router) {
			r.Get("/", accessoryHandler.ListAccessories)
			r.Put("/{id}/rating", accessoryHandler.RateAccessory)
		})

		// WebSocket（会話のリアルタイム配信）
		r.Get("/ws/chat/{otherID}", wsHandler.ServeConversation)

		// 管理パネル（管理者ロール必須）
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewAdminMiddleware(deps.RoleFinder))

			r.Get("/users", adminHandler.ListUsers)
			r.Put("/users/{id}/role", adminHandler.SetUserRole)
			r.Delete("/users/{id}", adminHandler.DeleteUser)

			r.Get("/conversations", adminHandler.ListConversations)
			r.Get("/conversations/{userA}/{userB}", adminHandler.GetConversation)
			r.Delete("/messages/{id}", adminHandler.DeleteMessage)

			r.Post("/accessories", accessoryHandler.CreateAccessory)
			r.Put("/accessories/{id}", accessoryHandler.UpdateAccessory)
			r.Delete("/accessories/{id}", accessoryHandler.DeleteAccessory)
		})
	})

	return r
}
