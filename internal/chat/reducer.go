package chat

import (
	"sort"

	"github.com/takumi/voltmap/internal/model"
)

// Reducer はリアルタイムイベントを会話の状態に還元する。
// イベントは重複・順序入れ替わりで届く可能性があるため、
// メッセージIDごとのリビジョン比較（last-writer-wins）で冪等に適用する。
//
//   - insert: 既に同IDのメッセージがあれば何もしない（冪等）
//   - update: 保持中のリビジョンより新しい場合のみ上書き
//   - delete: 墓標（tombstone）を記録し、以降の古いinsert/updateを抑止する
type Reducer struct {
	messages   map[string]*model.ChatMessage
	tombstones map[string]int64 // メッセージID -> 削除イベントの最大リビジョン
}

// NewReducer は初期スナップショットからReducerを生成する。
// スナップショットはFetchConversationの結果を渡す。
func NewReducer(initial []model.ChatMessage) *Reducer {
	r := &Reducer{
		messages:   make(map[string]*model.ChatMessage, len(initial)),
		tombstones: make(map[string]int64),
	}
	for i := range initial {
		msg := initial[i]
		r.messages[msg.ID] = &msg
	}
	return r
}

// Apply はイベントを1件適用する。適用により状態が変化した場合はtrueを返す。
func (r *Reducer) Apply(event *model.ChatEvent) bool {
	switch event.Type {
	case model.ChatEventInsert, model.ChatEventUpdate:
		return r.applyUpsert(event)
	case model.ChatEventDelete:
		return r.applyDelete(event)
	default:
		return false
	}
}

// applyUpsert はinsert/updateイベントを適用する。
// insertとupdateは同じ規則で処理できる。順序が入れ替わって
// updateが先に届いた場合もupsertとして取り込まれる。
func (r *Reducer) applyUpsert(event *model.ChatEvent) bool {
	if event.Message == nil {
		return false
	}

	// 墓標のリビジョン以下のイベントは削除済みとして無視する
	if tomb, ok := r.tombstones[event.MessageID]; ok && tomb >= event.Revision {
		return false
	}

	existing, ok := r.messages[event.MessageID]
	if ok && existing.Revision >= event.Revision {
		// 重複または古いイベント
		return false
	}

	msg := *event.Message
	r.messages[event.MessageID] = &msg
	return true
}

// applyDelete はdeleteイベントを適用する。
func (r *Reducer) applyDelete(event *model.ChatEvent) bool {
	changed := false

	if tomb, ok := r.tombstones[event.MessageID]; !ok || event.Revision > tomb {
		r.tombstones[event.MessageID] = event.Revision
		changed = true
	}

	if existing, ok := r.messages[event.MessageID]; ok && event.Revision >= existing.Revision {
		delete(r.messages, event.MessageID)
		changed = true
	}

	return changed
}

// Messages は現在の会話状態をcreated_at昇順で返す。
// 同時刻のメッセージはIDの辞書順で安定させる。
func (r *Reducer) Messages() []model.ChatMessage {
	out := make([]model.ChatMessage, 0, len(r.messages))
	for _, msg := range r.messages {
		out = append(out, *msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
