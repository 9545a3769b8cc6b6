// Package realtime はRedis Pub/Subによるリアルタイムイベント配信を提供する。
//
// イベントは会話ペアごとのチャンネルに配信される。チャンネル名は
// 2ユーザーIDを辞書順にソートしたペアから決定的に導出されるため、
// どちらのユーザーから見ても同じチャンネルを購読・配信できる。
// メッセージイベントと入力中イベントの両方がペアスコープのチャンネルを使う。
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/takumi/voltmap/internal/model"
)

// ChatChannel は会話ペアのメッセージイベント用チャンネル名を返す。
// ユーザーIDの順序に依存しない。
func ChatChannel(userA, userB string) string {
	lo, hi := sortPair(userA, userB)
	return fmt.Sprintf("chat:%s:%s", lo, hi)
}

// TypingChannel は会話ペアの入力中イベント用チャンネル名を返す。
func TypingChannel(userA, userB string) string {
	lo, hi := sortPair(userA, userB)
	return fmt.Sprintf("typing:%s:%s", lo, hi)
}

// sortPair は2つのユーザーIDを辞書順に並べて返す。
func sortPair(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// Broker はリアルタイムイベントの配信・購読インターフェース。
type Broker interface {
	// PublishChat はメッセージイベントを会話ペアのチャンネルに配信する。
	PublishChat(ctx context.Context, userA, userB string, event *model.ChatEvent) error

	// PublishTyping は入力中イベントを会話ペアのチャンネルに配信する。
	PublishTyping(ctx context.Context, userA, userB string, event *model.TypingEvent) error

	// SubscribeConversation は会話ペアのメッセージ・入力中両チャンネルを購読する。
	SubscribeConversation(ctx context.Context, userA, userB string) (*Subscription, error)
}

// Envelope は購読チャンネルから受信した1件のイベント。
// Channelで種別（chat / typing）を判別し、Payloadをデコードする。
type Envelope struct {
	Channel string
	Payload []byte
}

// Subscription は会話ペアのチャンネル購読を表す。
// 使用後は必ずCloseを呼ぶこと。
type Subscription struct {
	pubsub *redis.PubSub
	events chan Envelope
	done   chan struct{}
}

// Events は受信イベントのチャンネルを返す。
// Subscriptionがクローズされるとチャンネルもクローズされる。
func (s *Subscription) Events() <-chan Envelope {
	return s.events
}

// Close は購読を解除し、受信ループを停止する。
func (s *Subscription) Close() error {
	close(s.done)
	return s.pubsub.Close()
}

// RedisBroker はRedis Pub/SubによるBrokerの実装。
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker はRedisBrokerを生成する。
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// PublishChat はメッセージイベントをJSONにシリアライズして配信する。
func (b *RedisBroker) PublishChat(ctx context.Context, userA, userB string, event *model.ChatEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal chat event: %w", err)
	}

	channel := ChatChannel(userA, userB)
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish chat event: %w", err)
	}

	slog.Debug("chat event published",
		slog.String("channel", channel),
		slog.String("type", string(event.Type)),
		slog.String("message_id", event.MessageID),
	)
	return nil
}

// PublishTyping は入力中イベントをJSONにシリアライズして配信する。
func (b *RedisBroker) PublishTyping(ctx context.Context, userA, userB string, event *model.TypingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal typing event: %w", err)
	}

	channel := TypingChannel(userA, userB)
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish typing event: %w", err)
	}
	return nil
}

// SubscribeConversation は会話ペアの両チャンネルを購読し、
// 受信イベントをSubscription経由で中継する。
func (b *RedisBroker) SubscribeConversation(ctx context.Context, userA, userB string) (*Subscription, error) {
	channels := []string{ChatChannel(userA, userB), TypingChannel(userA, userB)}

	pubsub := b.client.Subscribe(ctx, channels...)

	// 購読の確立を確認する。Redis接続が無い場合はここで失敗する。
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe channels: %w", err)
	}

	sub := &Subscription{
		pubsub: pubsub,
		events: make(chan Envelope, 16),
		done:   make(chan struct{}),
	}

	go sub.relay(pubsub.Channel())

	return sub, nil
}

// relay はRedisからの受信メッセージをEnvelopeに変換して転送する。
func (s *Subscription) relay(ch <-chan *redis.Message) {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.events <- Envelope{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-s.done:
				return
			}
		}
	}
}

var _ Broker = (*RedisBroker)(nil)
