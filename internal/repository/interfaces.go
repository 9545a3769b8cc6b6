// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/takumi/voltmap/internal/model"
)

// ProfileRepository はプロフィールデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// CreateWithIdentity はプロフィール・identity・デフォルトロールを
	// 同一トランザクションで作成する。初回サインイン時のプロビジョニングに使う。
	CreateWithIdentity(ctx context.Context, profile *model.Profile, identity *model.Identity) error

	// Update はプロフィールの編集可能フィールドを更新する。
	Update(ctx context.Context, profile *model.Profile) error

	// UpdateAvatarURL はアバターURLのみを更新する。
	UpdateAvatarURL(ctx context.Context, userID, avatarURL string) error

	// EmailInUse は指定メールアドレスが他ユーザーに使用されているかを返す。
	EmailInUse(ctx context.Context, email, excludeUserID string) (bool, error)

	// PlateNumberInUse は指定ナンバープレートが他ユーザーに使用されているかを返す。
	PlateNumberInUse(ctx context.Context, plateNumber, excludeUserID string) (bool, error)

	// List は全プロフィールをロール付きで返す。管理パネル用。
	List(ctx context.Context) ([]model.ProfileWithRole, error)

	// Search は氏名・メールの部分一致でプロフィールを検索する。チャット相手の検索用。
	Search(ctx context.Context, query string, excludeUserID string, limit int) ([]model.Profile, error)

	// DeleteByID は指定IDのプロフィールを削除する。
	// identities、sessions、user_roles、chat_messages等はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。クリーンアップワーカー用。
	DeleteExpired(ctx context.Context) (int64, error)
}

// RoleRepository はユーザーロールの永続化インターフェース。
type RoleRepository interface {
	// FindRole は指定ユーザーのロールを返す。行が無い場合は空文字列を返す。
	FindRole(ctx context.Context, userID string) (model.Role, error)

	// EnsureDefault はロール行が無い場合にデフォルトの'user'ロールを永続化する。
	// 既に行がある場合は何もしない。初回アクセス時に呼ばれる。
	EnsureDefault(ctx context.Context, userID string) error

	// SetAdmin は管理者フラグを切り替える。
	// 付与時はロール行を'admin'でUPSERTし、剥奪時はロール行を削除する
	// （デフォルトの'user'扱いに戻る）。
	SetAdmin(ctx context.Context, userID string, makeAdmin bool) error
}

// MessageRepository はチャットメッセージの永続化インターフェース。
type MessageRepository interface {
	// ListConversation は2ユーザー間の全メッセージをcreated_at昇順で返す。
	ListConversation(ctx context.Context, userA, userB string) ([]model.ChatMessage, error)

	// FindByID は指定IDのメッセージを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ChatMessage, error)

	// Insert はメッセージを挿入する。
	Insert(ctx context.Context, msg *model.ChatMessage) error

	// UpdateBody は送信者が一致する場合のみ本文を更新し、revisionをインクリメントする。
	// 更新後のメッセージを返す。送信者不一致または行が無い場合はnilを返す。
	UpdateBody(ctx context.Context, messageID, newBody, senderID string) (*model.ChatMessage, error)

	// DeleteBySender は送信者が一致する場合のみメッセージを削除し、
	// 削除できたかどうかを返す。
	DeleteBySender(ctx context.Context, messageID, senderID string) (bool, error)

	// DeleteByID は送信者チェックなしでメッセージを削除する。管理パネル用。
	DeleteByID(ctx context.Context, messageID string) error

	// ListConversationSummaries は全会話ペアの要約を返す。管理パネル用。
	ListConversationSummaries(ctx context.Context) ([]model.ConversationSummary, error)

	// ListRecentConversations は指定ユーザーの会話相手ごとの最新メッセージを
	// last_message_at降順で返す。チャットサイドバー用。
	ListRecentConversations(ctx context.Context, userID string) ([]model.RecentConversation, error)
}

// TypingRepository は入力中ステータスの永続化インターフェース。
type TypingRepository interface {
	// Replace は順序付きペア(userID, chatWith)の既存行を常に削除し、
	// isTypingがtrueの場合のみ新しい行を挿入する。
	// この delete-then-insert によりペアごとに最大1行が保証される。
	Replace(ctx context.Context, userID, chatWith string, isTyping bool) error

	// Find は順序付きペアの入力中ステータスを返す。行が無い場合はnilを返す。
	Find(ctx context.Context, userID, chatWith string) (*model.TypingStatus, error)

	// DeleteStale はupdated_atがttlより古い行を削除し、削除件数を返す。
	// 切断時にクリアされなかった行の回収用。
	DeleteStale(ctx context.Context, ttl time.Duration) (int64, error)
}

// AccessoryRepository はアクセサリーと評価の永続化インターフェース。
type AccessoryRepository interface {
	// ListWithRatings は全アクセサリーを評価集計付きでcreated_at降順で返す。
	// userIDはリクエストユーザー自身の評価の解決に使う。
	ListWithRatings(ctx context.Context, userID string) ([]model.AccessoryWithRating, error)

	// FindByID は指定IDのアクセサリーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Accessory, error)

	// Create はアクセサリーを作成する。
	Create(ctx context.Context, accessory *model.Accessory) error

	// Update はアクセサリーを更新する。
	Update(ctx context.Context, accessory *model.Accessory) error

	// Delete は指定IDのアクセサリーを削除する。評価はCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// UpsertRating は評価を(accessory_id, user_id)でUPSERTする。
	// 同一ユーザーの再評価は最新値で上書きされ、行は1つのまま。
	UpsertRating(ctx context.Context, rating *model.AccessoryRating) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
