package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/takumi/voltmap/internal/chat"
	"github.com/takumi/voltmap/internal/middleware"
	"github.com/takumi/voltmap/internal/model"
	"github.com/takumi/voltmap/internal/realtime"
	"github.com/takumi/voltmap/internal/typing"
)

const (
	// writeWait は1フレームの書き込みタイムアウト。
	writeWait = 10 * time.Second
	// pongWait はクライアントからのPong応答の待機時間。
	pongWait = 60 * time.Second
	// pingPeriod はPing送信間隔。pongWaitより短くする。
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize はクライアントから受け付けるフレームの最大サイズ。
	maxMessageSize = 1024
)

// ConversationSubscriber は会話チャンネルの購読インターフェース。
// realtime.Brokerの部分集合として定義する。
type ConversationSubscriber interface {
	SubscribeConversation(ctx context.Context, userA, userB string) (*realtime.Subscription, error)
}

// WSMetricsRecorder はWebSocket接続のメトリクス記録インターフェース。
type WSMetricsRecorder interface {
	WebsocketOpened()
	WebsocketClosed()
}

// WSHandlerConfig はWebSocketハンドラーの設定。
type WSHandlerConfig struct {
	AllowedOrigin  string
	TypingDebounce time.Duration
	PresenceTTL    time.Duration
}

// WSHandler は会話のリアルタイム配信を行うWebSocketハンドラー。
//
// クライアントは /ws/chat/{otherID} に接続すると、まず会話履歴の
// スナップショットを受信し、以降はその会話ペアのメッセージイベントと
// 入力中イベントを受信する。メッセージイベントはサーバー側のReducerで
// 重複・順序入れ替わりを吸収してから転送される。クライアントからは
// キーストローク通知フレームを送信でき、サーバー側のデバウンスを経て
// 入力中ステータスとして相手に配信される。
// 接続中はプレゼンスのオンライン集合に参加する。
type WSHandler struct {
	subscriber ConversationSubscriber
	chatSvc    ChatServiceInterface
	tracker    PresenceTrackerInterface
	typingSvc  TypingServiceInterface
	metrics    WSMetricsRecorder
	config     WSHandlerConfig
	upgrader   websocket.Upgrader
}

// NewWSHandler はWSHandlerを生成する。
func NewWSHandler(
	subscriber ConversationSubscriber,
	chatSvc ChatServiceInterface,
	tracker PresenceTrackerInterface,
	typingSvc TypingServiceInterface,
	metrics WSMetricsRecorder,
	config WSHandlerConfig,
) *WSHandler {
	return &WSHandler{
		subscriber: subscriber,
		chatSvc:    chatSvc,
		tracker:    tracker,
		typingSvc:  typingSvc,
		metrics:    metrics,
		config:     config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// 同一オリジン（Originヘッダー無し）または許可オリジンのみ
				return origin == "" || origin == config.AllowedOrigin
			},
		},
	}
}

// wsInbound はクライアントから受信するフレーム。
type wsInbound struct {
	Type string `json:"type"` // "keystroke" | "typing_stop"
}

// wsOutbound はクライアントへ送信するフレーム。
// Channelでメッセージイベントと入力中イベントを区別する。
type wsOutbound struct {
	Channel string          `json:"channel"`
	Event   json.RawMessage `json:"event"`
}

// wsSnapshot は接続直後に1回送信する会話履歴のスナップショット。
type wsSnapshot struct {
	Type     string              `json:"type"` // 常に"snapshot"
	Messages []model.ChatMessage `json:"messages"`
}

// ServeConversation は会話のWebSocket接続を処理する。
// GET /ws/chat/{otherID}
func (h *WSHandler) ServeConversation(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	otherID := chi.URLParam(r, "otherID")
	if otherID == "" || otherID == userID {
		http.Error(w, "invalid conversation partner", http.StatusBadRequest)
		return
	}

	// 購読の確立と履歴の取得はアップグレード前に行う。失敗時はHTTPエラーで応答できる。
	// 順序は購読が先。履歴読み取りと同時に挿入されたメッセージは履歴とイベントの
	// 両方に現れうるが、購読前に配信されたイベントは二度と届かない。
	// 重複はReducerが吸収する。
	sub, err := h.subscriber.SubscribeConversation(r.Context(), userID, otherID)
	if err != nil {
		slog.Error("failed to subscribe conversation",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "subscription failed", http.StatusInternalServerError)
		return
	}

	history, err := h.chatSvc.FetchConversation(r.Context(), userID, otherID)
	if err != nil {
		sub.Close()
		handleServiceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	if h.metrics != nil {
		h.metrics.WebsocketOpened()
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := h.tracker.Join(ctx, userID); err != nil {
		slog.Warn("failed to join presence",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	// キーストロークのデバウンス。静止期間が過ぎると自動でfalseを配信する。
	debouncer := typing.NewDebouncer(h.config.TypingDebounce, func(isTyping bool) {
		if err := h.typingSvc.Update(ctx, userID, otherID, isTyping); err != nil {
			slog.Warn("failed to update typing status",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	})

	cleanup := func() {
		// 切断時は入力中ステータスを即時クリアする。ctxのキャンセル前に行う。
		debouncer.Flush()
		cancel()
		debouncer.Stop()
		sub.Close()
		if err := h.tracker.Leave(context.Background(), userID); err != nil {
			slog.Warn("failed to leave presence",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		conn.Close()
		if h.metrics != nil {
			h.metrics.WebsocketClosed()
		}
	}

	// イベントの重複・順序入れ替わりは接続ごとのReducerで吸収する
	reducer := chat.NewReducer(history)

	go h.writePump(ctx, conn, sub, reducer, userID, otherID, history, cleanup)
	go h.readPump(ctx, conn, debouncer, userID, cancel)
}

// readPump はクライアントからのフレームを読み取り、デバウンサーに渡す。
// 接続エラーで終了し、cancelを呼んでwritePumpも停止させる。
func (h *WSHandler) readPump(ctx context.Context, conn *websocket.Conn, debouncer *typing.Debouncer, userID string, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var in wsInbound
		if err := json.Unmarshal(message, &in); err != nil {
			// 不正なフレームは無視する
			continue
		}

		switch in.Type {
		case "keystroke":
			debouncer.Keystroke()
		case "typing_stop":
			debouncer.Flush()
		}
	}
}

// writePump は購読イベントをWebSocketへ転送し、定期的にPingを送信する。
// 接続直後に会話履歴のスナップショットを送信し、以降のメッセージイベントは
// Reducerを通して重複・古いリビジョンを落としてから転送する。
// 接続中はプレゼンスのハートビートも維持する。
func (h *WSHandler) writePump(ctx context.Context, conn *websocket.Conn, sub *realtime.Subscription, reducer *chat.Reducer, userID, otherID string, history []model.ChatMessage, cleanup func()) {
	pingTicker := time.NewTicker(pingPeriod)
	heartbeatTicker := time.NewTicker(h.config.PresenceTTL / 2)

	defer func() {
		pingTicker.Stop()
		heartbeatTicker.Stop()
		cleanup()
	}()

	if err := h.writeSnapshot(conn, userID, otherID, history); err != nil {
		return
	}

	chatChannel := realtime.ChatChannel(userID, otherID)

	for {
		select {
		case env, ok := <-sub.Events():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if env.Channel == chatChannel {
				var event model.ChatEvent
				if err := json.Unmarshal(env.Payload, &event); err != nil {
					slog.Warn("failed to decode chat event", slog.String("error", err.Error()))
					continue
				}
				// 重複配信・古いリビジョンは状態を変えないため転送しない
				if !reducer.Apply(&event) {
					continue
				}
			}

			out, err := json.Marshal(wsOutbound{
				Channel: env.Channel,
				Event:   env.Payload,
			})
			if err != nil {
				slog.Error("failed to encode ws event", slog.String("error", err.Error()))
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-heartbeatTicker.C:
			if err := h.tracker.Heartbeat(ctx, userID); err != nil {
				slog.Warn("presence heartbeat failed",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
			}

		case <-ctx.Done():
			return
		}
	}
}

// writeSnapshot は会話履歴のスナップショットフレームを送信する。
func (h *WSHandler) writeSnapshot(conn *websocket.Conn, userID, otherID string, history []model.ChatMessage) error {
	if history == nil {
		history = []model.ChatMessage{}
	}

	event, err := json.Marshal(wsSnapshot{Type: "snapshot", Messages: history})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	out, err := json.Marshal(wsOutbound{
		Channel: realtime.ChatChannel(userID, otherID),
		Event:   event,
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot frame: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, out)
}
