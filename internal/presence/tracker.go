// Package presence はオンラインユーザーの在席管理を提供する。
//
// 各ユーザーの在席はTTL付きRedisキー `presence:online:<id>` で表現する。
// クライアントからのハートビートでTTLを更新し、切断後はRedisの
// 期限切れにより自動的にオフライン扱いになる。TrackerはRedisを
// 定期的にポーリングし、導出したオンライン集合を不変スナップショット
// として購読者に配信する。
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:online:"

// Tracker はオンラインユーザー集合の管理を行う。
type Tracker struct {
	client       *redis.Client
	ttl          time.Duration
	pollInterval time.Duration

	mu       sync.RWMutex
	snapshot []string
	subs     map[chan []string]struct{}
}

// NewTracker はTrackerを生成する。
// ttlは在席キーの有効期間、pollIntervalはスナップショット更新間隔。
func NewTracker(client *redis.Client, ttl, pollInterval time.Duration) *Tracker {
	return &Tracker{
		client:       client,
		ttl:          ttl,
		pollInterval: pollInterval,
		snapshot:     []string{},
		subs:         make(map[chan []string]struct{}),
	}
}

// Join はユーザーをオンライン集合に参加させる。
// キーの値には参加時刻（RFC3339）を格納する。
func (t *Tracker) Join(ctx context.Context, userID string) error {
	key := keyPrefix + userID
	since := time.Now().Format(time.RFC3339)
	if err := t.client.Set(ctx, key, since, t.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set presence key: %w", err)
	}
	return nil
}

// Heartbeat は在席キーのTTLを更新する。
// キーが既に期限切れの場合は再参加として扱う。
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	key := keyPrefix + userID
	ok, err := t.client.Expire(ctx, key, t.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to refresh presence key: %w", err)
	}
	if !ok {
		return t.Join(ctx, userID)
	}
	return nil
}

// Leave はユーザーをオンライン集合から離脱させる。
func (t *Tracker) Leave(ctx context.Context, userID string) error {
	key := keyPrefix + userID
	if err := t.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete presence key: %w", err)
	}
	return nil
}

// Online はRedisを直接走査して現在のオンラインユーザーID一覧を返す。
// 結果は辞書順にソートされる。
func (t *Tracker) Online(ctx context.Context) ([]string, error) {
	var users []string

	iter := t.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		users = append(users, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan presence keys: %w", err)
	}

	sort.Strings(users)
	return users, nil
}

// Snapshot は最後のポーリングで導出したオンライン集合を返す。
// 返り値は呼び出しごとのコピーであり、変更しても安全。
func (t *Tracker) Snapshot() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, len(t.snapshot))
	copy(out, t.snapshot)
	return out
}

// Subscribe はスナップショット変化の購読を開始する。
// 返されたチャンネルには集合が変化したときのみ新しいスナップショットが
// 送信される。購読解除には返り値のcancelを呼ぶ。
func (t *Tracker) Subscribe() (<-chan []string, func()) {
	ch := make(chan []string, 1)

	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		if _, ok := t.subs[ch]; ok {
			delete(t.subs, ch)
			close(ch)
		}
		t.mu.Unlock()
	}
	return ch, cancel
}

// Run はポーリングループを開始する。ctxのキャンセルで停止する。
// サーバー起動時にgoroutineとして呼ばれる想定。
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	slog.Info("presence tracker started",
		slog.Duration("poll_interval", t.pollInterval),
		slog.Duration("ttl", t.ttl),
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("presence tracker stopped")
			return
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

// poll はオンライン集合を再導出し、変化があれば購読者に配信する。
func (t *Tracker) poll(ctx context.Context) {
	users, err := t.Online(ctx)
	if err != nil {
		slog.Warn("presence poll failed", slog.String("error", err.Error()))
		return
	}

	t.mu.Lock()
	if equalSets(t.snapshot, users) {
		t.mu.Unlock()
		return
	}
	t.snapshot = users

	for ch := range t.subs {
		snapshot := make([]string, len(users))
		copy(snapshot, users)
		select {
		case ch <- snapshot:
		default:
			// 購読者が追いついていない場合は古いスナップショットを捨てる
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
	t.mu.Unlock()
}

// equalSets はソート済みスライス同士の等価判定を行う。
func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
