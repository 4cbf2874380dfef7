package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"go-chat-client/internal/models"
)

var ErrNoSuchContact = errors.New("no user with that phone number")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveMessage persists a message and returns it in wire shape, sender name
// included.
func (r *Repository) SaveMessage(ctx context.Context, chatID, senderID, text, voice string) (*models.Message, error) {
	msg := &models.Message{
		ID:           uuid.NewString(),
		ChatID:       chatID,
		SenderID:     senderID,
		MessageText:  text,
		VoiceMessage: voice,
	}

	query := `INSERT INTO messages (id, chat_id, sender_id, message_text, voice_message)
	          VALUES ($1, $2, $3, $4, $5) RETURNING timestamp`
	if err := r.db.QueryRowContext(ctx, query, msg.ID, chatID, senderID, text, voice).
		Scan(&msg.Timestamp); err != nil {
		return nil, err
	}

	if err := r.db.QueryRowContext(ctx, `SELECT name FROM users WHERE id = $1`, senderID).
		Scan(&msg.SenderName); err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *Repository) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	return err
}

// MarkRead flags everything the reader received in chatID as read and
// clears the reader's unread counter.
func (r *Repository) MarkRead(ctx context.Context, chatID, readerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE
		 WHERE chat_id = $1 AND sender_id <> $2 AND is_read = FALSE`,
		chatID, readerID)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE chat_members SET unread_count = 0 WHERE chat_id = $1 AND user_id = $2`,
		chatID, readerID)
	return err
}

// IncrementUnread bumps the recipient's unread counter and returns the new
// count for the contactsUpdate event.
func (r *Repository) IncrementUnread(ctx context.Context, chatID, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`UPDATE chat_members SET unread_count = unread_count + 1
		 WHERE chat_id = $1 AND user_id = $2 RETURNING unread_count`,
		chatID, userID).Scan(&count)
	return count, err
}

func (r *Repository) Participants(ctx context.Context, chatID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM chat_members WHERE chat_id = $1`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// History returns the chat's messages in arrival order. Ordering is by
// insertion sequence, never by timestamp.
func (r *Repository) History(ctx context.Context, chatID string) ([]models.Message, error) {
	query := `
		SELECT m.id, m.chat_id, m.sender_id, u.name, m.message_text,
		       m.voice_message, m.timestamp, m.is_read
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.chat_id = $1
		ORDER BY m.seq
	`
	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.SenderName,
			&msg.MessageText, &msg.VoiceMessage, &msg.Timestamp, &msg.IsRead); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ChatContacts builds the chat list with partner info, last message and
// the caller's unread count.
func (r *Repository) ChatContacts(ctx context.Context, userID string) ([]models.ChatContact, error) {
	query := `
		SELECT cm.chat_id, pu.id, pu.name, pu.phone_no, cm.unread_count,
		       COALESCE(lm.message_text, ''), COALESCE(lm.voice_message, ''), lm.timestamp
		FROM chat_members cm
		JOIN chat_members pm ON pm.chat_id = cm.chat_id AND pm.user_id <> cm.user_id
		JOIN users pu ON pu.id = pm.user_id
		LEFT JOIN LATERAL (
			SELECT message_text, voice_message, timestamp
			FROM messages m WHERE m.chat_id = cm.chat_id
			ORDER BY m.seq DESC LIMIT 1
		) lm ON TRUE
		WHERE cm.user_id = $1
		ORDER BY lm.timestamp DESC NULLS LAST
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []models.ChatContact{}
	for rows.Next() {
		var (
			cc        models.ChatContact
			partnerID string
			text      string
			voice     string
			lastAt    sql.NullTime
		)
		if err := rows.Scan(&cc.ChatID, &partnerID, &cc.Name, &cc.PhoneNo,
			&cc.UnreadMessages, &text, &voice, &lastAt); err != nil {
			return nil, err
		}
		cc.UserID = models.FlexID(partnerID)
		cc.LastMessage = text
		if text == "" && voice != "" {
			cc.LastMessage = "Voice message"
		}
		if lastAt.Valid {
			cc.LastMessageTime = lastAt.Time
		}
		chats = append(chats, cc)
	}
	return chats, rows.Err()
}

// FindOrCreateChat resolves phoneNo to the 1:1 chat between userID and
// that contact, creating it when none exists.
func (r *Repository) FindOrCreateChat(ctx context.Context, userID, phoneNo string) (string, error) {
	var partnerID string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE phone_no = $1`, phoneNo).Scan(&partnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSuchContact
	}
	if err != nil {
		return "", err
	}

	var chatID string
	err = r.db.QueryRowContext(ctx,
		`SELECT cm1.chat_id
		 FROM chat_members cm1
		 JOIN chat_members cm2 ON cm2.chat_id = cm1.chat_id
		 WHERE cm1.user_id = $1 AND cm2.user_id = $2`,
		userID, partnerID).Scan(&chatID)
	if err == nil {
		return chatID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	chatID = uuid.NewString()
	if _, err := tx.ExecContext(ctx, `INSERT INTO chats (id) VALUES ($1)`, chatID); err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}
	for _, member := range []string{userID, partnerID} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chatID, member); err != nil {
			return "", fmt.Errorf("add member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return chatID, nil
}
