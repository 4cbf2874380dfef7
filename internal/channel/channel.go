package channel

import "encoding/json"

// Event names on the live channel. Direction is relative to the engine.
const (
	// Outbound
	EventUserJoined         = "userJoined"
	EventRequestAllStatuses = "requestAllUserStatuses"
	EventRequestStatus      = "requestUserStatus"
	EventSendMessage        = "sendMessage"
	EventSendVoiceMessage   = "sendVoiceMessage"
	EventDeleteMessage      = "deleteMessage"
	EventMarkMessagesRead   = "markMessagesRead"

	// Inbound
	EventBroadcast       = "broadcast"
	EventStatusUpdate    = "userStatusUpdate"
	EventNewMessage      = "newMessage"
	EventNewVoiceMessage = "newVoiceMessage"
	EventMessageDeleted  = "messageDeleted"
	EventMessagesRead    = "messagesRead"
	EventContactsUpdate  = "contactsUpdate"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler consumes the payload of one inbound event. Handlers for a single
// event name run in subscription order, all of them on the connection's
// dispatch goroutine, so a handler never races another handler.
type Handler func(data json.RawMessage)

// Subscription is the ticket returned by Subscribe. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// State of the live connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Channel is the capability handed to engine components. It is always an
// explicitly injected object, never ambient state, so tests substitute a
// Fake and components stay oblivious.
type Channel interface {
	// Publish sends fire-and-forget. No per-call error: a dead connection
	// silently drops, per the channel contract.
	Publish(event string, data any)
	// Subscribe registers a handler; multiple handlers per event are
	// independent and run in registration order.
	Subscribe(event string, fn Handler) Subscription
	// State reports the connection state.
	State() State
}
