package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/takumi/voltmap/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したチャットメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// ListConversation は2ユーザー間の全メッセージをcreated_at昇順で返す。
// ページネーションは行わない。
func (r *PostgresMessageRepo) ListConversation(ctx context.Context, userA, userB string) ([]model.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sender_id, receiver_id, body, revision, created_at, updated_at
		 FROM chat_messages
		 WHERE (sender_id = $1 AND receiver_id = $2)
		    OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY created_at ASC`,
		userA, userB,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	defer rows.Close()

	var messages []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.Revision, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}

	return messages, nil
}

// FindByID は指定IDのメッセージを取得する。見つからない場合はnilを返す。
func (r *PostgresMessageRepo) FindByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	m := &model.ChatMessage{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, sender_id, receiver_id, body, revision, created_at, updated_at
		 FROM chat_messages WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.Revision, &m.CreatedAt, &m.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message by ID: %w", err)
	}

	return m, nil
}

// Insert はメッセージを挿入する。
func (r *PostgresMessageRepo) Insert(ctx context.Context, msg *model.ChatMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, sender_id, receiver_id, body, revision, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Body, msg.Revision, msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// UpdateBody は送信者が一致する場合のみ本文を更新し、revisionをインクリメントする。
// 更新できた場合は更新後のメッセージを返し、送信者不一致または行が無い場合はnilを返す。
// WHERE句のsender_idフィルタにより認可をサーバー側で強制する。
func (r *PostgresMessageRepo) UpdateBody(ctx context.Context, messageID, newBody, senderID string) (*model.ChatMessage, error) {
	m := &model.ChatMessage{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE chat_messages
		 SET body = $2, revision = revision + 1, updated_at = now()
		 WHERE id = $1 AND sender_id = $3
		 RETURNING id, sender_id, receiver_id, body, revision, created_at, updated_at`,
		messageID, newBody, senderID,
	).Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.Revision, &m.CreatedAt, &m.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update message body: %w", err)
	}

	return m, nil
}

// DeleteBySender は送信者が一致する場合のみメッセージを削除し、削除できたかどうかを返す。
func (r *PostgresMessageRepo) DeleteBySender(ctx context.Context, messageID, senderID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE id = $1 AND sender_id = $2`,
		messageID, senderID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete message: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteByID は送信者チェックなしでメッセージを削除する。管理パネル用。
func (r *PostgresMessageRepo) DeleteByID(ctx context.Context, messageID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE id = $1`,
		messageID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("message not found: %s", messageID)
	}
	return nil
}

// ListConversationSummaries は全会話ペアの要約をlast_message_at降順で返す。
// ペアは(least, greatest)の正規化で無順序化する。
func (r *PostgresMessageRepo) ListConversationSummaries(ctx context.Context) ([]model.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT LEAST(sender_id::text, receiver_id::text) AS user_a,
		        GREATEST(sender_id::text, receiver_id::text) AS user_b,
		        COUNT(*) AS message_count,
		        MAX(created_at) AS last_message_at
		 FROM chat_messages
		 GROUP BY user_a, user_b
		 ORDER BY last_message_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation summaries: %w", err)
	}
	defer rows.Close()

	var summaries []model.ConversationSummary
	for rows.Next() {
		var s model.ConversationSummary
		if err := rows.Scan(&s.UserAID, &s.UserBID, &s.MessageCount, &s.LastMessageAt); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summary rows: %w", err)
	}

	return summaries, nil
}

// ListRecentConversations は指定ユーザーの会話相手ごとの最新メッセージを
// last_message_at降順で返す。相手のナンバープレートと車種をプロフィールから結合する。
// DISTINCT ONで相手ごとに最新の1行だけを残す。
func (r *PostgresMessageRepo) ListRecentConversations(ctx context.Context, userID string) ([]model.RecentConversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT partner_id, plate_number, vehicle_model, body, created_at
		 FROM (
		     SELECT DISTINCT ON (partner_id)
		            CASE WHEN m.sender_id::text = $1 THEN m.receiver_id::text ELSE m.sender_id::text END AS partner_id,
		            p.plate_number,
		            p.vehicle_model,
		            m.body,
		            m.created_at
		     FROM chat_messages m
		     JOIN profiles p
		       ON p.id::text = CASE WHEN m.sender_id::text = $1 THEN m.receiver_id::text ELSE m.sender_id::text END
		     WHERE m.sender_id::text = $1 OR m.receiver_id::text = $1
		     ORDER BY partner_id, m.created_at DESC
		 ) latest
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent conversations: %w", err)
	}
	defer rows.Close()

	var recent []model.RecentConversation
	for rows.Next() {
		var c model.RecentConversation
		if err := rows.Scan(&c.PartnerID, &c.PartnerPlateNumber, &c.PartnerVehicleModel, &c.LastMessageBody, &c.LastMessageAt); err != nil {
			return nil, fmt.Errorf("failed to scan recent conversation row: %w", err)
		}
		recent = append(recent, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent conversation rows: %w", err)
	}

	return recent, nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
