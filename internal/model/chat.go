// Package model はドメインモデルを定義する。
package model

import "time"

// ChatMessage はユーザー間のダイレクトメッセージを表す。
// 本文の編集・削除は送信者のみ可能。会話内ではcreated_at昇順で並ぶ。
// Revisionは編集のたびに単調増加し、リアルタイムイベントの
// last-writer-wins判定に使用する。
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Body       string    `json:"body"`
	Revision   int64     `json:"revision"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// InConversation はメッセージが指定の2ユーザー間の会話に属するかを返す。
func (m *ChatMessage) InConversation(userA, userB string) bool {
	return (m.SenderID == userA && m.ReceiverID == userB) ||
		(m.SenderID == userB && m.ReceiverID == userA)
}

// TypingStatus は「入力中」のエフェメラルな行を表す。
// (UserID, ChatWith)の順序付きペアごとに最大1行。
// 行の存在（IsTyping=true）のみが入力中のシグナルとなる。
type TypingStatus struct {
	UserID    string
	ChatWith  string
	IsTyping  bool
	UpdatedAt time.Time
}

// ChatEventType はリアルタイムイベントの種別を表す。
type ChatEventType string

const (
	// ChatEventInsert はメッセージ挿入イベント。
	ChatEventInsert ChatEventType = "insert"
	// ChatEventUpdate はメッセージ編集イベント。
	ChatEventUpdate ChatEventType = "update"
	// ChatEventDelete はメッセージ削除イベント。
	ChatEventDelete ChatEventType = "delete"
)

// ChatEvent は会話ペアのチャンネルに配信されるリアルタイムイベント。
// Deleteイベントでは削除対象のIDとRevisionのみ意味を持つ。
type ChatEvent struct {
	Type      ChatEventType `json:"type"`
	MessageID string        `json:"message_id"`
	Message   *ChatMessage  `json:"message,omitempty"`
	Revision  int64         `json:"revision"`
}

// TypingEvent は入力中ステータスの変化イベント。
type TypingEvent struct {
	UserID   string `json:"user_id"`
	ChatWith string `json:"chat_with"`
	IsTyping bool   `json:"is_typing"`
}

// ConversationSummary は管理パネル向けの会話ペアの要約。
type ConversationSummary struct {
	UserAID       string
	UserBID       string
	MessageCount  int
	LastMessageAt time.Time
}

// RecentConversation はチャットサイドバー向けの会話相手ごとの要約。
// 相手のプロフィール抜粋と最終メッセージを持つ。
type RecentConversation struct {
	PartnerID           string
	PartnerPlateNumber  string
	PartnerVehicleModel string
	LastMessageBody     string
	LastMessageAt       time.Time
}
