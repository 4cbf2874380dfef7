package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-chat-client/internal/channel"
	"go-chat-client/internal/models"
	"go-chat-client/internal/presence"
)

type fakeAPI struct {
	contacts     []models.Contact
	chatContacts []models.ChatContact
	err          error

	findCalls []string
	chatID    string
}

func (f *fakeAPI) Contacts(context.Context, string) ([]models.Contact, error) {
	return f.contacts, f.err
}

func (f *fakeAPI) ChatContacts(context.Context, string) ([]models.ChatContact, error) {
	return f.chatContacts, f.err
}

func (f *fakeAPI) FindOrCreateChat(_ context.Context, userID, phoneNo string) (string, error) {
	f.findCalls = append(f.findCalls, userID+"/"+phoneNo)
	if f.chatID == "" {
		return "", errors.New("no such contact")
	}
	return f.chatID, nil
}

func loaded(t *testing.T, ch *channel.Fake, api *fakeAPI) (*Directory, *presence.Tracker) {
	t.Helper()
	tracker := presence.NewTracker(ch)
	tracker.Start()
	d := New(ch, api, tracker)
	if err := d.Load(context.Background(), "self"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return d, tracker
}

func TestLoadNormalizesPartnerIDs(t *testing.T) {
	// The partner id arrives under different keys depending on which side
	// of the chat built the feed; all shapes collapse to one scalar.
	api := &fakeAPI{chatContacts: []models.ChatContact{
		{ChatID: "c1", UserID: "alice", Name: "Alice"},
		{ChatID: "c2", SenderID: "bob", Name: "Bob"},
		{ChatID: "c3", ReceiverID: "carol", Name: "Carol"},
	}}
	d, _ := loaded(t, channel.NewFake(), api)

	chats := d.Chats()
	if len(chats) != 3 {
		t.Fatalf("got %d chats, want 3", len(chats))
	}
	for i, want := range []string{"alice", "bob", "carol"} {
		if chats[i].PartnerID != want {
			t.Errorf("chats[%d].PartnerID = %q, want %q", i, chats[i].PartnerID, want)
		}
	}
}

func TestLoadTracksPartners(t *testing.T) {
	ch := channel.NewFake()
	api := &fakeAPI{chatContacts: []models.ChatContact{
		{ChatID: "c1", UserID: "alice"},
	}}
	d, tracker := loaded(t, ch, api)

	ch.Deliver(channel.EventStatusUpdate, models.StatusUpdate{UserID: "alice", Status: models.StatusOnline})

	if !tracker.Online("alice") {
		t.Fatal("partner not tracked after Load")
	}
	if got := d.Chats()[0].Status; got != models.StatusOnline {
		t.Errorf("merged status = %q, want online", got)
	}
}

func TestLoadFormatsLastMessageTime(t *testing.T) {
	at := time.Date(2026, 8, 28, 9, 30, 0, 0, time.Local)
	api := &fakeAPI{chatContacts: []models.ChatContact{
		{ChatID: "c1", UserID: "alice", LastMessageTime: at},
		{ChatID: "c2", UserID: "bob"},
	}}
	d, _ := loaded(t, channel.NewFake(), api)

	chats := d.Chats()
	if got := chats[0].LastMessageTime; got != "09:30" {
		t.Errorf("LastMessageTime = %q, want 09:30", got)
	}
	if got := chats[1].LastMessageTime; got != "" {
		t.Errorf("zero time rendered as %q, want empty", got)
	}
}

func TestUnreadUpdateByEvent(t *testing.T) {
	ch := channel.NewFake()
	api := &fakeAPI{chatContacts: []models.ChatContact{
		{ChatID: "c1", UserID: "alice", UnreadMessages: 1},
		{ChatID: "c2", UserID: "bob", UnreadMessages: 5},
	}}
	d, _ := loaded(t, ch, api)

	ch.Deliver(channel.EventContactsUpdate, map[string]any{"chatId": "c1", "unreadMessages": 3})
	ch.Deliver(channel.EventContactsUpdate, map[string]any{"chatId": "unknown", "unreadMessages": 7})

	chats := d.Chats()
	if chats[0].UnreadMessages != 3 {
		t.Errorf("c1 unread = %d, want 3", chats[0].UnreadMessages)
	}
	if chats[1].UnreadMessages != 5 {
		t.Errorf("c2 unread changed to %d", chats[1].UnreadMessages)
	}
	// Updates patch entries in place; the list order never changes.
	if chats[0].ChatID != "c1" || chats[1].ChatID != "c2" {
		t.Error("update reordered the chat list")
	}
}

func TestFindOrCreateDoesNotMutate(t *testing.T) {
	api := &fakeAPI{
		chatContacts: []models.ChatContact{{ChatID: "c1", UserID: "alice"}},
		chatID:       "c-new",
	}
	d, _ := loaded(t, channel.NewFake(), api)

	chatID, err := d.FindOrCreateChat(context.Background(), "5551234")
	if err != nil {
		t.Fatalf("FindOrCreateChat: %v", err)
	}
	if chatID != "c-new" {
		t.Errorf("chatID = %q, want c-new", chatID)
	}
	if len(api.findCalls) != 1 || api.findCalls[0] != "self/5551234" {
		t.Errorf("api called with %v", api.findCalls)
	}
	if got := d.Chats(); len(got) != 1 || got[0].ChatID != "c1" {
		t.Errorf("navigation mutated the chat list: %+v", got)
	}
}

func TestLoadErrorPropagates(t *testing.T) {
	d := New(channel.NewFake(), &fakeAPI{err: errors.New("api down")}, presence.NewTracker(channel.NewFake()))
	if err := d.Load(context.Background(), "self"); err == nil {
		t.Fatal("expected error")
	}
}

func TestReloadKeepsSingleSubscription(t *testing.T) {
	ch := channel.NewFake()
	api := &fakeAPI{chatContacts: []models.ChatContact{{ChatID: "c1", UserID: "alice"}}}
	d, _ := loaded(t, ch, api)

	if err := d.Load(context.Background(), "self"); err != nil {
		t.Fatal(err)
	}
	if n := ch.HandlerCount(channel.EventContactsUpdate); n != 1 {
		t.Fatalf("%d contactsUpdate handlers after reload, want 1", n)
	}

	d.Close()
	if n := ch.HandlerCount(channel.EventContactsUpdate); n != 0 {
		t.Fatalf("%d handlers left after Close", n)
	}
}
