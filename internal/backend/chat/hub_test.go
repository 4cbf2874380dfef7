package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"go-chat-client/internal/models"
)

// memRepo is an in-memory Repo for hub tests.
type memRepo struct {
	mu           sync.Mutex
	participants map[string][]string
	saved        []models.Message
	deleted      []string
	readCalls    []string
	unread       map[string]int // chatID+userID
}

func newMemRepo(participants map[string][]string) *memRepo {
	return &memRepo{participants: participants, unread: make(map[string]int)}
}

func (r *memRepo) SaveMessage(_ context.Context, chatID, senderID, text, voice string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := models.Message{
		ID:           fmt.Sprintf("m%d", len(r.saved)+1),
		ChatID:       chatID,
		SenderID:     senderID,
		SenderName:   "name-" + senderID,
		MessageText:  text,
		VoiceMessage: voice,
		Timestamp:    time.Now(),
	}
	r.saved = append(r.saved, msg)
	return &msg, nil
}

func (r *memRepo) DeleteMessage(_ context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, messageID)
	return nil
}

func (r *memRepo) MarkRead(_ context.Context, chatID, readerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readCalls = append(r.readCalls, chatID+"/"+readerID)
	r.unread[chatID+"/"+readerID] = 0
	return nil
}

func (r *memRepo) IncrementUnread(_ context.Context, chatID, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unread[chatID+"/"+userID]++
	return r.unread[chatID+"/"+userID], nil
}

func (r *memRepo) Participants(_ context.Context, chatID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participants[chatID], nil
}

// testClient registers a hub client that is not backed by a socket; frames
// land in its send channel.
func testClient(t *testing.T, h *Hub, userID, name string) *Client {
	t.Helper()
	c := &Client{hub: h, send: make(chan []byte, 32), UserID: userID, Name: name, ConnID: "conn-" + userID}
	select {
	case h.Register <- c:
	case <-time.After(time.Second):
		t.Fatal("hub did not accept registration")
	}
	return c
}

func nextFrame(t *testing.T, c *Client) (string, json.RawMessage) {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed while expecting a frame")
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return env.Event, env.Data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return "", nil
	}
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected frame: %s", raw)
		}
	case <-time.After(150 * time.Millisecond):
	}
}

func startHub(t *testing.T, repo Repo) *Hub {
	t.Helper()
	h := NewHub(NewLocalBroker(), repo)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func send(t *testing.T, h *Hub, c *Client, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case h.Inbound <- Inbound{Client: c, Event: event, Data: raw}:
	case <-time.After(time.Second):
		t.Fatal("hub did not accept the event")
	}
}

func TestUserJoinedFansOutStatusAndBroadcast(t *testing.T) {
	h := startHub(t, newMemRepo(nil))
	alice := testClient(t, h, "a", "Alice")
	bob := testClient(t, h, "b", "Bob")

	send(t, h, alice, "userJoined", map[string]string{"userId": "a"})

	// Everyone, the joiner included, sees the status flip.
	for _, c := range []*Client{alice, bob} {
		event, data := nextFrame(t, c)
		if event != "userStatusUpdate" {
			t.Fatalf("%s got %q, want userStatusUpdate", c.UserID, event)
		}
		var st models.StatusUpdate
		json.Unmarshal(data, &st)
		if string(st.UserID) != "a" || st.Status != models.StatusOnline {
			t.Errorf("status update = %+v", st)
		}
	}

	// The join broadcast excludes the joiner.
	event, data := nextFrame(t, bob)
	if event != "broadcast" {
		t.Fatalf("bob got %q, want broadcast", event)
	}
	var b struct {
		Message string `json:"message"`
	}
	json.Unmarshal(data, &b)
	if b.Message != "Alice joined the chat" {
		t.Errorf("broadcast = %q", b.Message)
	}
	expectNoFrame(t, alice)
}

func TestSendMessageEchoesToSender(t *testing.T) {
	repo := newMemRepo(map[string][]string{"c1": {"a", "b"}})
	h := startHub(t, repo)
	alice := testClient(t, h, "a", "Alice")
	bob := testClient(t, h, "b", "Bob")

	send(t, h, alice, "sendMessage", map[string]string{"chatId": "c1", "messageText": "hi"})

	for _, c := range []*Client{alice, bob} {
		event, data := nextFrame(t, c)
		if event != "newMessage" {
			t.Fatalf("%s got %q, want newMessage", c.UserID, event)
		}
		var msg models.Message
		json.Unmarshal(data, &msg)
		if msg.ChatID != "c1" || msg.SenderID != "a" || msg.MessageText != "hi" {
			t.Errorf("message = %+v", msg)
		}
		if msg.ID == "" || msg.SenderName == "" {
			t.Errorf("persisted fields missing: %+v", msg)
		}
	}

	// Only the recipient's unread count moves.
	event, data := nextFrame(t, bob)
	if event != "contactsUpdate" {
		t.Fatalf("bob got %q, want contactsUpdate", event)
	}
	var cu struct {
		ChatID string `json:"chatId"`
		Unread int    `json:"unreadMessages"`
	}
	json.Unmarshal(data, &cu)
	if cu.ChatID != "c1" || cu.Unread != 1 {
		t.Errorf("contactsUpdate = %+v", cu)
	}
	expectNoFrame(t, alice)
}

func TestSendVoiceMessageUsesVoiceEvent(t *testing.T) {
	repo := newMemRepo(map[string][]string{"c1": {"a", "b"}})
	h := startHub(t, repo)
	alice := testClient(t, h, "a", "Alice")
	testClient(t, h, "b", "Bob")

	send(t, h, alice, "sendVoiceMessage", map[string]string{"chatId": "c1", "voiceMessage": "YWJj"})

	event, data := nextFrame(t, alice)
	if event != "newVoiceMessage" {
		t.Fatalf("got %q, want newVoiceMessage", event)
	}
	var msg models.Message
	json.Unmarshal(data, &msg)
	if msg.VoiceMessage != "YWJj" {
		t.Errorf("voice payload = %q", msg.VoiceMessage)
	}
}

func TestDeleteMessageReachesAllParticipants(t *testing.T) {
	repo := newMemRepo(map[string][]string{"c1": {"a", "b"}})
	h := startHub(t, repo)
	alice := testClient(t, h, "a", "Alice")
	bob := testClient(t, h, "b", "Bob")

	send(t, h, alice, "deleteMessage", map[string]string{"messageId": "m1", "chatId": "c1"})

	for _, c := range []*Client{alice, bob} {
		event, data := nextFrame(t, c)
		if event != "messageDeleted" {
			t.Fatalf("%s got %q, want messageDeleted", c.UserID, event)
		}
		var del struct {
			MessageID string `json:"messageId"`
		}
		json.Unmarshal(data, &del)
		if del.MessageID != "m1" {
			t.Errorf("payload = %+v", del)
		}
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.deleted) != 1 || repo.deleted[0] != "m1" {
		t.Errorf("repo deletions = %v", repo.deleted)
	}
}

func TestMarkMessagesRead(t *testing.T) {
	repo := newMemRepo(map[string][]string{"c1": {"a", "b"}})
	h := startHub(t, repo)
	alice := testClient(t, h, "a", "Alice")
	bob := testClient(t, h, "b", "Bob")

	// Bob opens the conversation and marks it read.
	send(t, h, bob, "markMessagesRead", map[string]string{"chatId": "c1", "userId": "b"})

	// The reader's own chat list resets to zero.
	event, data := nextFrame(t, bob)
	if event != "contactsUpdate" {
		t.Fatalf("bob got %q, want contactsUpdate", event)
	}
	var cu struct {
		ChatID string `json:"chatId"`
		Unread int    `json:"unreadMessages"`
	}
	json.Unmarshal(data, &cu)
	if cu.ChatID != "c1" || cu.Unread != 0 {
		t.Errorf("contactsUpdate = %+v", cu)
	}

	// The peer learns its messages were read.
	event, data = nextFrame(t, alice)
	if event != "messagesRead" {
		t.Fatalf("alice got %q, want messagesRead", event)
	}
	var mr struct {
		ChatID string `json:"chatId"`
	}
	json.Unmarshal(data, &mr)
	if mr.ChatID != "c1" {
		t.Errorf("payload = %+v", mr)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.readCalls) != 1 || repo.readCalls[0] != "c1/b" {
		t.Errorf("readCalls = %v", repo.readCalls)
	}
}

func TestStatusRequestsAnswerDirectly(t *testing.T) {
	h := startHub(t, newMemRepo(nil))
	alice := testClient(t, h, "a", "Alice")
	bob := testClient(t, h, "b", "Bob")

	send(t, h, alice, "userJoined", nil)
	nextFrame(t, alice) // own status update
	nextFrame(t, bob)   // status update
	nextFrame(t, bob)   // broadcast

	// Bob asks for Alice specifically; only Bob gets the reply.
	send(t, h, bob, "requestUserStatus", map[string]string{"userId": "a"})
	event, data := nextFrame(t, bob)
	if event != "userStatusUpdate" {
		t.Fatalf("got %q", event)
	}
	var st models.StatusUpdate
	json.Unmarshal(data, &st)
	if string(st.UserID) != "a" || st.Status != models.StatusOnline {
		t.Errorf("reply = %+v", st)
	}
	expectNoFrame(t, alice)

	// The snapshot request replays every online user.
	send(t, h, bob, "requestAllUserStatuses", nil)
	event, data = nextFrame(t, bob)
	if event != "userStatusUpdate" {
		t.Fatalf("snapshot got %q", event)
	}
	json.Unmarshal(data, &st)
	if string(st.UserID) != "a" {
		t.Errorf("snapshot entry = %+v", st)
	}
}

func TestUnknownUserReadsOffline(t *testing.T) {
	h := startHub(t, newMemRepo(nil))
	bob := testClient(t, h, "b", "Bob")

	send(t, h, bob, "requestUserStatus", map[string]string{"userId": "ghost"})

	event, data := nextFrame(t, bob)
	if event != "userStatusUpdate" {
		t.Fatalf("got %q", event)
	}
	var st models.StatusUpdate
	json.Unmarshal(data, &st)
	if st.Status != models.StatusOffline {
		t.Errorf("status = %q, want offline", st.Status)
	}
}

func TestUnregisterBroadcastsOffline(t *testing.T) {
	h := startHub(t, newMemRepo(nil))
	alice := testClient(t, h, "a", "Alice")
	bob := testClient(t, h, "b", "Bob")

	send(t, h, alice, "userJoined", nil)
	nextFrame(t, alice)
	nextFrame(t, bob)
	nextFrame(t, bob)

	select {
	case h.Unregister <- alice:
	case <-time.After(time.Second):
		t.Fatal("hub did not accept unregister")
	}

	event, data := nextFrame(t, bob)
	if event != "userStatusUpdate" {
		t.Fatalf("got %q", event)
	}
	var st models.StatusUpdate
	json.Unmarshal(data, &st)
	if string(st.UserID) != "a" || st.Status != models.StatusOffline {
		t.Errorf("offline update = %+v", st)
	}
}

func TestSupersededConnectionFramesAreDropped(t *testing.T) {
	h := startHub(t, newMemRepo(map[string][]string{"c1": {"a", "b"}}))
	stale := testClient(t, h, "a", "Alice")
	fresh := testClient(t, h, "a", "Alice")
	bob := testClient(t, h, "b", "Bob")

	select {
	case <-stale.send:
	case <-time.After(time.Second):
		t.Fatal("stale connection never closed")
	}

	// Frames the stale connection queued before it was replaced must not
	// crash the run loop, even ones that reply directly to the sender.
	send(t, h, stale, "userJoined", nil)
	send(t, h, stale, "requestAllUserStatuses", nil)
	send(t, h, stale, "requestUserStatus", map[string]string{"userId": "b"})
	send(t, h, stale, "sendMessage", map[string]string{"chatId": "c1", "messageText": "ghost"})

	// Routing still works for everyone else.
	send(t, h, bob, "sendMessage", map[string]string{"chatId": "c1", "messageText": "hi"})
	for _, c := range []*Client{fresh, bob} {
		event, data := nextFrame(t, c)
		if event != "newMessage" {
			t.Fatalf("%s got %q, want newMessage", c.UserID, event)
		}
		var msg models.Message
		json.Unmarshal(data, &msg)
		if msg.MessageText != "hi" {
			t.Errorf("message = %+v, stale frame leaked through", msg)
		}
	}
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	h := startHub(t, newMemRepo(map[string][]string{"c1": {"a", "b"}}))
	first := testClient(t, h, "a", "Alice")
	second := testClient(t, h, "a", "Alice")
	bob := testClient(t, h, "b", "Bob")

	// The first connection's send channel is closed by the replacement.
	select {
	case _, ok := <-first.send:
		if ok {
			t.Fatal("expected the first connection to be closed, got a frame")
		}
	case <-time.After(time.Second):
		t.Fatal("first connection never closed")
	}

	// Traffic flows to the replacement only.
	send(t, h, bob, "sendMessage", map[string]string{"chatId": "c1", "messageText": "hi"})
	if event, _ := nextFrame(t, second); event != "newMessage" {
		t.Fatalf("replacement got %q", event)
	}
}
