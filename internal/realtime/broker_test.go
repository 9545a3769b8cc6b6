package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/takumi/voltmap/internal/model"
)

func newTestBroker(t *testing.T) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBroker(client)
}

func TestChatChannel_OrderIndependent(t *testing.T) {
	tests := []struct {
		name  string
		userA string
		userB string
		want  string
	}{
		{
			name:  "昇順の入力",
			userA: "alice",
			userB: "bob",
			want:  "chat:alice:bob",
		},
		{
			name:  "降順の入力でも同じチャンネル",
			userA: "bob",
			userB: "alice",
			want:  "chat:alice:bob",
		},
		{
			name:  "同一ユーザー",
			userA: "carol",
			userB: "carol",
			want:  "chat:carol:carol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChatChannel(tt.userA, tt.userB); got != tt.want {
				t.Errorf("ChatChannel(%q, %q) = %q, want %q", tt.userA, tt.userB, got, tt.want)
			}
		})
	}
}

func TestTypingChannel_OrderIndependent(t *testing.T) {
	if TypingChannel("bob", "alice") != TypingChannel("alice", "bob") {
		t.Error("TypingChannelはユーザーIDの順序に依存してはならない")
	}
	if got, want := TypingChannel("alice", "bob"), "typing:alice:bob"; got != want {
		t.Errorf("TypingChannel() = %q, want %q", got, want)
	}
}

func TestPublishChat_SubscriberReceivesEvent(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()

	sub, err := broker.SubscribeConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("SubscribeConversation() error = %v", err)
	}
	defer sub.Close()

	event := &model.ChatEvent{
		Type:      model.ChatEventInsert,
		MessageID: "msg-1",
		Message: &model.ChatMessage{
			ID:         "msg-1",
			SenderID:   "alice",
			ReceiverID: "bob",
			Body:       "充電スポット見つけた！",
			Revision:   1,
		},
		Revision: 1,
	}

	// 購読者と逆順のユーザーIDで配信しても届くこと
	if err := broker.PublishChat(ctx, "bob", "alice", event); err != nil {
		t.Fatalf("PublishChat() error = %v", err)
	}

	select {
	case env := <-sub.Events():
		if env.Channel != ChatChannel("alice", "bob") {
			t.Errorf("channel = %q, want %q", env.Channel, ChatChannel("alice", "bob"))
		}

		var got model.ChatEvent
		if err := json.Unmarshal(env.Payload, &got); err != nil {
			t.Fatalf("イベントのデコードに失敗: %v", err)
		}
		if got.Type != model.ChatEventInsert {
			t.Errorf("event type = %q, want %q", got.Type, model.ChatEventInsert)
		}
		if got.MessageID != "msg-1" {
			t.Errorf("message ID = %q, want %q", got.MessageID, "msg-1")
		}
		if got.Message == nil || got.Message.Body != "充電スポット見つけた！" {
			t.Errorf("message body が一致しない: %+v", got.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("イベント受信がタイムアウトした")
	}
}

func TestPublishTyping_SubscriberReceivesEvent(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()

	sub, err := broker.SubscribeConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("SubscribeConversation() error = %v", err)
	}
	defer sub.Close()

	event := &model.TypingEvent{UserID: "alice", ChatWith: "bob", IsTyping: true}
	if err := broker.PublishTyping(ctx, "alice", "bob", event); err != nil {
		t.Fatalf("PublishTyping() error = %v", err)
	}

	select {
	case env := <-sub.Events():
		if env.Channel != TypingChannel("alice", "bob") {
			t.Errorf("channel = %q, want %q", env.Channel, TypingChannel("alice", "bob"))
		}

		var got model.TypingEvent
		if err := json.Unmarshal(env.Payload, &got); err != nil {
			t.Fatalf("イベントのデコードに失敗: %v", err)
		}
		if !got.IsTyping {
			t.Error("IsTyping = false, want true")
		}
		if got.UserID != "alice" {
			t.Errorf("user ID = %q, want %q", got.UserID, "alice")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("イベント受信がタイムアウトした")
	}
}

func TestSubscription_OtherPairEventNotReceived(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()

	sub, err := broker.SubscribeConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("SubscribeConversation() error = %v", err)
	}
	defer sub.Close()

	// 別ペアのイベントは届かないこと
	event := &model.ChatEvent{Type: model.ChatEventInsert, MessageID: "msg-x", Revision: 1}
	if err := broker.PublishChat(ctx, "carol", "dave", event); err != nil {
		t.Fatalf("PublishChat() error = %v", err)
	}

	select {
	case env := <-sub.Events():
		t.Errorf("別ペアのイベントを受信した: channel=%q", env.Channel)
	case <-time.After(200 * time.Millisecond):
		// 期待どおり何も届かない
	}
}

func TestSubscription_CloseStopsEvents(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()

	sub, err := broker.SubscribeConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("SubscribeConversation() error = %v", err)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("クローズ後にイベントを受信した")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("イベントチャンネルのクローズがタイムアウトした")
	}
}
