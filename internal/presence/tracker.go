package presence

import (
	"encoding/json"
	"sync"

	"go-chat-client/internal/channel"
	"go-chat-client/internal/models"
)

// Tracker maintains online/offline status for the contacts it was told to
// track. Status always reflects the most recently received update for an
// id; updates for untracked ids are dropped without error. Applying the
// same value twice, or a stale snapshot after a newer live event, cannot
// regress state because every update arrives through the same ordered
// stream and the merge is last-write-wins by receipt order.
type Tracker struct {
	ch channel.Channel

	mu       sync.Mutex
	statuses map[string]string
	sub      channel.Subscription
}

func NewTracker(ch channel.Channel) *Tracker {
	return &Tracker{ch: ch, statuses: make(map[string]string)}
}

// Start subscribes to live status updates and requests a one-time snapshot
// of every status the backend knows about.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.sub == nil {
		t.sub = t.ch.Subscribe(channel.EventStatusUpdate, t.handleUpdate)
	}
	t.mu.Unlock()
	t.ch.Publish(channel.EventRequestAllStatuses, nil)
}

// Track begins following userID, defaulting it to offline until an update
// arrives, and asks the backend for its current status. Tracking an
// already-tracked id is a no-op.
func (t *Tracker) Track(userID string) {
	if userID == "" {
		return
	}
	t.mu.Lock()
	_, known := t.statuses[userID]
	if !known {
		t.statuses[userID] = models.StatusOffline
	}
	t.mu.Unlock()
	if !known {
		t.ch.Publish(channel.EventRequestStatus, map[string]string{"userId": userID})
	}
}

func (t *Tracker) handleUpdate(data json.RawMessage) {
	var ev models.StatusUpdate
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	t.Apply(ev)
}

// Apply merges one status event. Only the matching contact's status
// changes; the tracked set itself never grows from an event.
func (t *Tracker) Apply(ev models.StatusUpdate) {
	id := string(ev.UserID)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.statuses[id]; !ok {
		return
	}
	t.statuses[id] = ev.Status
}

// Status reports the tracked status for userID. Untracked ids read as
// offline.
func (t *Tracker) Status(userID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.statuses[userID]; ok {
		return s
	}
	return models.StatusOffline
}

// Online is a convenience for Status == online.
func (t *Tracker) Online(userID string) bool {
	return t.Status(userID) == models.StatusOnline
}

// Close unsubscribes the tracker's handler. Idempotent.
func (t *Tracker) Close() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}
