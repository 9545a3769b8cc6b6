package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestTracker(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTracker(client, 30*time.Second, 10*time.Millisecond), mr
}

func TestJoin_UserAppearsInOnlineSet(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.Join(ctx, "alice"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := tracker.Join(ctx, "bob"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	online, err := tracker.Online(ctx)
	if err != nil {
		t.Fatalf("Online() error = %v", err)
	}

	want := []string{"alice", "bob"}
	if len(online) != len(want) {
		t.Fatalf("online = %v, want %v", online, want)
	}
	for i := range want {
		if online[i] != want[i] {
			t.Errorf("online[%d] = %q, want %q", i, online[i], want[i])
		}
	}
}

func TestLeave_UserRemovedFromOnlineSet(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	_ = tracker.Join(ctx, "alice")
	_ = tracker.Join(ctx, "bob")

	if err := tracker.Leave(ctx, "alice"); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}

	online, err := tracker.Online(ctx)
	if err != nil {
		t.Fatalf("Online() error = %v", err)
	}
	if len(online) != 1 || online[0] != "bob" {
		t.Errorf("online = %v, want [bob]", online)
	}
}

func TestTTLExpiry_UserGoesOffline(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	_ = tracker.Join(ctx, "alice")

	// TTL経過をシミュレート
	mr.FastForward(31 * time.Second)

	online, err := tracker.Online(ctx)
	if err != nil {
		t.Fatalf("Online() error = %v", err)
	}
	if len(online) != 0 {
		t.Errorf("TTL経過後もオンライン扱い: %v", online)
	}
}

func TestHeartbeat_RefreshesTTL(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	_ = tracker.Join(ctx, "alice")

	// TTLの途中でハートビート
	mr.FastForward(20 * time.Second)
	if err := tracker.Heartbeat(ctx, "alice"); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}

	// 最初のTTLを超えてもハートビートにより在席が維持されること
	mr.FastForward(20 * time.Second)

	online, err := tracker.Online(ctx)
	if err != nil {
		t.Fatalf("Online() error = %v", err)
	}
	if len(online) != 1 || online[0] != "alice" {
		t.Errorf("online = %v, want [alice]", online)
	}
}

func TestHeartbeat_ExpiredKey_Rejoins(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	_ = tracker.Join(ctx, "alice")
	mr.FastForward(31 * time.Second)

	// 期限切れ後のハートビートは再参加として扱う
	if err := tracker.Heartbeat(ctx, "alice"); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}

	online, err := tracker.Online(ctx)
	if err != nil {
		t.Fatalf("Online() error = %v", err)
	}
	if len(online) != 1 || online[0] != "alice" {
		t.Errorf("online = %v, want [alice]", online)
	}
}

func TestRun_PublishesSnapshotOnChange(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := tracker.Subscribe()
	defer unsubscribe()

	go tracker.Run(ctx)

	if err := tracker.Join(ctx, "alice"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	select {
	case snapshot := <-events:
		if len(snapshot) != 1 || snapshot[0] != "alice" {
			t.Errorf("snapshot = %v, want [alice]", snapshot)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("スナップショット配信がタイムアウトした")
	}

	// Snapshot()も更新されていること
	got := tracker.Snapshot()
	if len(got) != 1 || got[0] != "alice" {
		t.Errorf("Snapshot() = %v, want [alice]", got)
	}
}

func TestSnapshot_ReturnsImmutableCopy(t *testing.T) {
	tracker, _ := newTestTracker(t)

	tracker.mu.Lock()
	tracker.snapshot = []string{"alice", "bob"}
	tracker.mu.Unlock()

	snap := tracker.Snapshot()
	snap[0] = "mallory"

	if got := tracker.Snapshot()[0]; got != "alice" {
		t.Errorf("スナップショットのコピーが共有されている: %q", got)
	}
}

func TestSubscribe_UnsubscribeClosesChannel(t *testing.T) {
	tracker, _ := newTestTracker(t)

	events, unsubscribe := tracker.Subscribe()
	unsubscribe()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("購読解除後にイベントを受信した")
		}
	default:
		t.Error("購読解除後のチャンネルがクローズされていない")
	}
}
