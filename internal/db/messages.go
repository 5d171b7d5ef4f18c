package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/4xmen/wasteless/internal/models"
	"github.com/4xmen/wasteless/internal/store"
)

const messageColumns = "id, sender_id, receiver_id, food_post_id, message, message_type, is_read, created_at, updated_at"

func scanMessage(s scanner) (*models.Message, error) {
	m := &models.Message{}
	err := s.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.FoodPostID, &m.Body, &m.MessageType, &m.IsRead, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (db *DB) CreateMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.MessageType == "" {
		m.MessageType = models.MessageTypeText
	}
	ts := now()
	m.CreatedAt, m.UpdatedAt = ts, ts

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.SenderID, m.ReceiverID, m.FoodPostID, m.Body, m.MessageType, m.IsRead, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return translateError(err)
	}
	return nil
}

func (db *DB) MessageByID(ctx context.Context, id string) (*models.Message, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = ?", id)
	m, err := scanMessage(row)
	if err != nil {
		return nil, translateError(err)
	}
	return m, nil
}

func (db *DB) DeleteMessage(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return requireAffected(result)
}

const threadFilter = `
	WHERE food_post_id = ?
	  AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))`

func (db *DB) ThreadMessages(ctx context.Context, q store.ThreadQuery) ([]*models.Message, int, error) {
	args := []any{q.FoodPostID, q.UserID, q.OtherID, q.OtherID, q.UserID}

	var total int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages"+threadFilter, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	query := "SELECT " + messageColumns + " FROM messages" + threadFilter + " ORDER BY created_at DESC, rowid DESC"
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch messages: %w", err)
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (db *DB) MarkRead(ctx context.Context, foodPostID, senderID, receiverID string) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `
		UPDATE messages SET is_read = 1, updated_at = ?
		WHERE food_post_id = ? AND sender_id = ? AND receiver_id = ? AND is_read = 0
	`, now(), foodPostID, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return result.RowsAffected()
}

func (db *DB) UnreadCount(ctx context.Context, receiverID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0", receiverID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

func (db *DB) Conversations(ctx context.Context, userID string) ([]models.ConversationGroup, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE sender_id = ? OR receiver_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	return store.GroupConversations(userID, messages), nil
}
