package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"go-chat-client/internal/channel"
	"go-chat-client/internal/models"
)

var (
	ErrNoConversation = errors.New("store: no conversation loaded")
	ErrEmptyMessage   = errors.New("store: empty message")
)

// HistoryFetcher is the slice of the api client the store needs.
type HistoryFetcher interface {
	ChatHistory(ctx context.Context, chatID string) ([]models.Message, error)
}

// ConfirmFunc asks the user to confirm a destructive action.
type ConfirmFunc func(title, text string) bool

// Partner is the other participant of the loaded conversation.
type Partner struct {
	UserID string
	Name   string
}

// Store is the per-conversation message log. It holds exactly one loaded
// conversation at a time and mutates only from inbound channel events:
// sends are fire-and-forget and the echoed event is what lands in the log,
// so the channel stays the single source of truth. Ordering is arrival
// order on the channel, never timestamp order.
type Store struct {
	ch      channel.Channel
	history HistoryFetcher
	selfID  string
	confirm ConfirmFunc

	mu            sync.Mutex
	chatID        string
	partner       Partner
	partnerOnline bool
	msgs          []models.Message
	subs          []channel.Subscription
}

func New(ch channel.Channel, history HistoryFetcher, selfID string, confirm ConfirmFunc) *Store {
	return &Store{ch: ch, history: history, selfID: selfID, confirm: confirm}
}

// LoadConversation fetches the history of chatID, derives the conversation
// partner, subscribes the store's event handlers, requests the partner's
// presence and tells the backend the conversation has been read. Loading a
// new conversation tears the previous one down first.
func (s *Store) LoadConversation(ctx context.Context, chatID string) error {
	msgs, err := s.history.ChatHistory(ctx, chatID)
	if err != nil {
		return err
	}

	s.Close()

	partner := derivePartner(msgs, s.selfID)

	s.mu.Lock()
	s.chatID = chatID
	s.partner = partner
	s.partnerOnline = false
	s.msgs = msgs
	s.subs = []channel.Subscription{
		s.ch.Subscribe(channel.EventNewMessage, s.handleNewMessage),
		s.ch.Subscribe(channel.EventNewVoiceMessage, s.handleNewMessage),
		s.ch.Subscribe(channel.EventMessageDeleted, s.handleDeleted),
		s.ch.Subscribe(channel.EventMessagesRead, s.handleMessagesRead),
		s.ch.Subscribe(channel.EventStatusUpdate, s.handleStatusUpdate),
	}
	s.mu.Unlock()

	if partner.UserID != "" {
		s.ch.Publish(channel.EventRequestStatus, map[string]string{"userId": partner.UserID})
	}
	s.ch.Publish(channel.EventMarkMessagesRead, map[string]string{
		"chatId": chatID,
		"userId": s.selfID,
	})
	return nil
}

// derivePartner picks the first sender that is not the local identity, and
// falls back to the first message's sender when the local identity sent
// everything so far.
func derivePartner(msgs []models.Message, selfID string) Partner {
	for _, m := range msgs {
		if m.SenderID != selfID {
			return Partner{UserID: m.SenderID, Name: m.SenderName}
		}
	}
	if len(msgs) > 0 {
		return Partner{UserID: msgs[0].SenderID, Name: msgs[0].SenderName}
	}
	return Partner{}
}

func (s *Store) handleNewMessage(data json.RawMessage) {
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	s.applyInbound(msg)
}

// applyInbound appends a message in arrival order, but only for the loaded
// conversation. Messages for other chats are dropped, never buffered.
func (s *Store) applyInbound(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatID == "" || msg.ChatID != s.chatID {
		return
	}
	s.msgs = append(s.msgs, msg)
}

func (s *Store) handleDeleted(data json.RawMessage) {
	var ev struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	s.applyDeletion(ev.MessageID)
}

// applyDeletion removes the message outright; deletion affects every
// holder of the chat, not just the initiator. Absent ids are a no-op, so
// a second delete of the same message changes nothing.
func (s *Store) applyDeletion(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.msgs {
		if m.ID == messageID {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return
		}
	}
}

func (s *Store) handleMessagesRead(data json.RawMessage) {
	var ev struct {
		ChatID string `json:"chatId"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	s.applyReadReceipt(ev.ChatID)
}

// applyReadReceipt marks the local identity's own sent messages as read:
// the peer has acknowledged the conversation. IsRead only ever moves
// false to true.
func (s *Store) applyReadReceipt(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatID == "" || chatID != s.chatID {
		return
	}
	for i := range s.msgs {
		if s.msgs[i].SenderID == s.selfID {
			s.msgs[i].IsRead = true
		}
	}
}

func (s *Store) handleStatusUpdate(data json.RawMessage) {
	var ev models.StatusUpdate
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partner.UserID == "" || string(ev.UserID) != s.partner.UserID {
		return
	}
	s.partnerOnline = ev.Status == models.StatusOnline
}

// SendText publishes a text message. The store is not touched: the message
// appears when the backend echoes it back as a newMessage event.
func (s *Store) SendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	s.mu.Lock()
	chatID := s.chatID
	s.mu.Unlock()
	if chatID == "" {
		return ErrNoConversation
	}
	s.ch.Publish(channel.EventSendMessage, map[string]string{
		"chatId":      chatID,
		"messageText": text,
		"senderId":    s.selfID,
	})
	return nil
}

// SendVoice publishes a voice message, transporting the binary audio as
// base64. Same non-optimistic contract as SendText.
func (s *Store) SendVoice(audio []byte) error {
	if len(audio) == 0 {
		return ErrEmptyMessage
	}
	s.mu.Lock()
	chatID := s.chatID
	s.mu.Unlock()
	if chatID == "" {
		return ErrNoConversation
	}
	s.ch.Publish(channel.EventSendVoiceMessage, map[string]string{
		"chatId":       chatID,
		"senderId":     s.selfID,
		"voiceMessage": base64.StdEncoding.EncodeToString(audio),
	})
	return nil
}

// DeleteMessage asks for confirmation, then publishes the delete. Removal
// happens when the messageDeleted event comes back, for every participant.
func (s *Store) DeleteMessage(messageID string) error {
	s.mu.Lock()
	chatID := s.chatID
	s.mu.Unlock()
	if chatID == "" {
		return ErrNoConversation
	}
	if s.confirm == nil || !s.confirm("Delete Message?", "This will delete your message for everyone!") {
		return nil
	}
	s.ch.Publish(channel.EventDeleteMessage, map[string]string{
		"messageId": messageID,
		"chatId":    chatID,
	})
	return nil
}

// Messages returns a snapshot of the loaded conversation in arrival order.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// ChatID reports the loaded conversation id, empty when none is loaded.
func (s *Store) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

func (s *Store) Partner() Partner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partner
}

func (s *Store) PartnerOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partnerOnline
}

// Close cancels every handler this conversation registered and clears the
// log. Nothing may fire after teardown; loading again starts clean.
func (s *Store) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.chatID = ""
	s.partner = Partner{}
	s.partnerOnline = false
	s.msgs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}
