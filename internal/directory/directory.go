package directory

import (
	"context"
	"encoding/json"
	"sync"

	"go-chat-client/internal/channel"
	"go-chat-client/internal/models"
	"go-chat-client/internal/presence"
)

// API is the slice of the api client the directory needs.
type API interface {
	Contacts(ctx context.Context, userID string) ([]models.Contact, error)
	ChatContacts(ctx context.Context, userID string) ([]models.ChatContact, error)
	FindOrCreateChat(ctx context.Context, userID, phoneNo string) (string, error)
}

// ChatEntry is one row of the browsable chat list: a chat merged with its
// partner's identity and live metadata. PartnerID is always the normalized
// scalar id, whatever shape the feed delivered it in.
type ChatEntry struct {
	ChatID          string
	PartnerID       string
	Name            string
	PhoneNo         string
	LastMessage     string
	LastMessageTime string
	UnreadMessages  int
	Status          string
}

// Directory merges the statically fetched contact list with the live chat
// list. Both are fetched once per identity; after that the chat list is
// kept current purely by events, and presence is merged in at read time so
// updates never reorder the collection.
type Directory struct {
	ch      channel.Channel
	api     API
	tracker *presence.Tracker

	mu     sync.Mutex
	userID string
	all    []models.Contact
	chats  []ChatEntry
	sub    channel.Subscription
}

func New(ch channel.Channel, api API, tracker *presence.Tracker) *Directory {
	return &Directory{ch: ch, api: api, tracker: tracker}
}

// Load fetches the full contact directory and the chat list for userID,
// normalizes partner ids, starts tracking each partner's presence and
// subscribes to unread-count updates.
func (d *Directory) Load(ctx context.Context, userID string) error {
	contacts, err := d.api.Contacts(ctx, userID)
	if err != nil {
		return err
	}
	chatContacts, err := d.api.ChatContacts(ctx, userID)
	if err != nil {
		return err
	}

	entries := make([]ChatEntry, 0, len(chatContacts))
	for _, cc := range chatContacts {
		entry := ChatEntry{
			ChatID:         cc.ChatID,
			PartnerID:      cc.PartnerID(),
			Name:           cc.Name,
			PhoneNo:        cc.PhoneNo,
			LastMessage:    cc.LastMessage,
			UnreadMessages: cc.UnreadMessages,
		}
		if !cc.LastMessageTime.IsZero() {
			entry.LastMessageTime = cc.LastMessageTime.Local().Format("15:04")
		}
		entries = append(entries, entry)
	}

	d.mu.Lock()
	d.userID = userID
	d.all = contacts
	d.chats = entries
	if d.sub == nil {
		d.sub = d.ch.Subscribe(channel.EventContactsUpdate, d.handleContactsUpdate)
	}
	d.mu.Unlock()

	for _, entry := range entries {
		d.tracker.Track(entry.PartnerID)
	}
	return nil
}

func (d *Directory) handleContactsUpdate(data json.RawMessage) {
	var ev struct {
		ChatID         string `json:"chatId"`
		UnreadMessages int    `json:"unreadMessages"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	d.ApplyUnreadUpdate(ev.ChatID, ev.UnreadMessages)
}

// ApplyUnreadUpdate replaces the unread count of the matching chat entry.
// Unknown chats are a no-op; the next full Load picks them up.
func (d *Directory) ApplyUnreadUpdate(chatID string, unread int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.chats {
		if d.chats[i].ChatID == chatID {
			d.chats[i].UnreadMessages = unread
			return
		}
	}
}

// Chats returns the chat list in fetch order with presence merged in.
func (d *Directory) Chats() []ChatEntry {
	d.mu.Lock()
	out := make([]ChatEntry, len(d.chats))
	copy(out, d.chats)
	d.mu.Unlock()
	for i := range out {
		out[i].Status = d.tracker.Status(out[i].PartnerID)
	}
	return out
}

// Contacts returns the full directory snapshot.
func (d *Directory) Contacts() []models.Contact {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Contact, len(d.all))
	copy(out, d.all)
	return out
}

// FindOrCreateChat resolves phoneNo to a chat id for navigation. The
// directory itself is not mutated; the caller reloads when it returns to
// the dashboard.
func (d *Directory) FindOrCreateChat(ctx context.Context, phoneNo string) (string, error) {
	d.mu.Lock()
	userID := d.userID
	d.mu.Unlock()
	return d.api.FindOrCreateChat(ctx, userID, phoneNo)
}

// Close unsubscribes the directory's handler. Idempotent.
func (d *Directory) Close() {
	d.mu.Lock()
	sub := d.sub
	d.sub = nil
	d.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}
