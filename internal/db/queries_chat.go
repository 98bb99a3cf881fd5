package db

import (
	"context"
	"fmt"
	"time"
)

// SaveChatMessage persists one side of a chat exchange.
func (s *Session) SaveChatMessage(ctx context.Context, userID int64, conversationID, content string, isBot bool) (int64, error) {
	id, err := s.insert(ctx,
		"INSERT INTO chat_messages (user_id, conversation_id, content, is_bot) VALUES (?, ?, ?, ?)",
		userID, conversationID, content, isBot,
	)
	if err != nil {
		return 0, fmt.Errorf("saving chat message: %w", err)
	}
	return id, nil
}

// ChatHistory returns the user's most recent limit messages in chronological order.
func (s *Session) ChatHistory(ctx context.Context, userID int64, limit int) ([]ChatMessage, error) {
	rows, err := s.query(ctx,
		`SELECT id, user_id, conversation_id, content, is_bot, created_at FROM chat_messages
			WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying chat history: %w", err)
	}
	defer rows.Close()
	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.ConversationID, &m.Content, &m.IsBot, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// PruneChatMessages deletes messages created before the cutoff.
func (s *Session) PruneChatMessages(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.exec(ctx,
		"DELETE FROM chat_messages WHERE created_at < ?",
		before.UTC().Format(time.DateTime))
	if err != nil {
		return 0, fmt.Errorf("pruning chat messages: %w", err)
	}
	return res.RowsAffected()
}
