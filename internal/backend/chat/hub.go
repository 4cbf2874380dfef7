package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"go-chat-client/internal/models"
)

// Repo is the slice of the repository the hub needs.
type Repo interface {
	SaveMessage(ctx context.Context, chatID, senderID, text, voice string) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	MarkRead(ctx context.Context, chatID, readerID string) error
	IncrementUnread(ctx context.Context, chatID, userID string) (int, error)
	Participants(ctx context.Context, chatID string) ([]string, error)
}

// Inbound is one event read off a client's websocket.
type Inbound struct {
	Client *Client
	Event  string
	Data   json.RawMessage
}

// Hub is the central router. Its run loop is the only goroutine touching
// the client map, so the map needs no lock. All fan-out, including the
// echo of a sender's own action, rides through the broker, which gives
// every instance one ordered stream.
type Hub struct {
	clients map[string]*Client // by user id; one live connection per identity

	Register   chan *Client
	Unregister chan *Client
	Inbound    chan Inbound

	broker Broker
	repo   Repo
}

func NewHub(broker Broker, repo Repo) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan Inbound, 64),
		broker:     broker,
		repo:       repo,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			// A reconnect for the same identity supersedes the old
			// connection.
			if prev, ok := h.clients[client.UserID]; ok {
				close(prev.send)
			}
			h.clients[client.UserID] = client

		case client := <-h.Unregister:
			if cur, ok := h.clients[client.UserID]; ok && cur == client {
				delete(h.clients, client.UserID)
				close(client.send)
				h.setOffline(ctx, client.UserID)
			}

		case in := <-h.Inbound:
			h.handleInbound(ctx, in)

		case ev, ok := <-h.broker.Events():
			if !ok {
				return
			}
			h.route(ev)

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleInbound(ctx context.Context, in Inbound) {
	// A superseded or unregistered connection may still have frames queued;
	// its send channel is already closed, so serving them would crash the
	// run loop on a direct reply.
	if cur, ok := h.clients[in.Client.UserID]; !ok || cur != in.Client {
		return
	}

	switch in.Event {
	case "userJoined":
		h.handleUserJoined(ctx, in.Client)
	case "requestAllUserStatuses":
		h.handleAllStatuses(ctx, in.Client)
	case "requestUserStatus":
		h.handleStatusRequest(ctx, in.Client, in.Data)
	case "sendMessage":
		h.handleSend(ctx, in, "newMessage")
	case "sendVoiceMessage":
		h.handleSend(ctx, in, "newVoiceMessage")
	case "deleteMessage":
		h.handleDelete(ctx, in)
	case "markMessagesRead":
		h.handleMarkRead(ctx, in)
	default:
		log.Printf("hub: unknown event %q from %s", in.Event, in.Client.UserID)
	}
}

func (h *Hub) handleUserJoined(ctx context.Context, c *Client) {
	if err := h.broker.SetOnline(ctx, c.UserID); err != nil {
		log.Printf("hub: presence: %v", err)
	}
	h.fanout(ctx, RoutedEvent{
		Event: "userStatusUpdate",
		Data:  marshal(models.StatusUpdate{UserID: models.FlexID(c.UserID), Status: models.StatusOnline}),
	})
	h.fanout(ctx, RoutedEvent{
		Exclude: c.UserID,
		Event:   "broadcast",
		Data:    marshal(map[string]string{"message": fmt.Sprintf("%s joined the chat", c.Name)}),
	})
}

func (h *Hub) setOffline(ctx context.Context, userID string) {
	if err := h.broker.SetOffline(ctx, userID); err != nil {
		log.Printf("hub: presence: %v", err)
	}
	h.fanout(ctx, RoutedEvent{
		Event: "userStatusUpdate",
		Data:  marshal(models.StatusUpdate{UserID: models.FlexID(userID), Status: models.StatusOffline}),
	})
}

// handleAllStatuses answers the snapshot request directly to the asking
// client; the reply does not cross instances.
func (h *Hub) handleAllStatuses(ctx context.Context, c *Client) {
	online, err := h.broker.Online(ctx)
	if err != nil {
		log.Printf("hub: presence: %v", err)
		return
	}
	for _, id := range online {
		c.sendEvent("userStatusUpdate",
			models.StatusUpdate{UserID: models.FlexID(id), Status: models.StatusOnline})
	}
}

func (h *Hub) handleStatusRequest(ctx context.Context, c *Client, data json.RawMessage) {
	var req struct {
		UserID models.FlexID `json:"userId"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.UserID == "" {
		return
	}
	status := models.StatusOffline
	if online, err := h.broker.IsOnline(ctx, string(req.UserID)); err == nil && online {
		status = models.StatusOnline
	}
	c.sendEvent("userStatusUpdate", models.StatusUpdate{UserID: req.UserID, Status: status})
}

func (h *Hub) handleSend(ctx context.Context, in Inbound, outEvent string) {
	var req struct {
		ChatID       string `json:"chatId"`
		MessageText  string `json:"messageText"`
		VoiceMessage string `json:"voiceMessage"`
	}
	if err := json.Unmarshal(in.Data, &req); err != nil || req.ChatID == "" {
		return
	}

	msg, err := h.repo.SaveMessage(ctx, req.ChatID, in.Client.UserID, req.MessageText, req.VoiceMessage)
	if err != nil {
		log.Printf("hub: save message: %v", err)
		return
	}

	participants, err := h.repo.Participants(ctx, req.ChatID)
	if err != nil {
		log.Printf("hub: participants: %v", err)
		return
	}

	h.fanout(ctx, RoutedEvent{Targets: participants, Event: outEvent, Data: marshal(msg)})

	for _, p := range participants {
		if p == in.Client.UserID {
			continue
		}
		count, err := h.repo.IncrementUnread(ctx, req.ChatID, p)
		if err != nil {
			log.Printf("hub: unread: %v", err)
			continue
		}
		h.fanout(ctx, RoutedEvent{
			Targets: []string{p},
			Event:   "contactsUpdate",
			Data:    marshal(map[string]any{"chatId": req.ChatID, "unreadMessages": count}),
		})
	}
}

func (h *Hub) handleDelete(ctx context.Context, in Inbound) {
	var req struct {
		MessageID string `json:"messageId"`
		ChatID    string `json:"chatId"`
	}
	if err := json.Unmarshal(in.Data, &req); err != nil || req.MessageID == "" || req.ChatID == "" {
		return
	}
	if err := h.repo.DeleteMessage(ctx, req.MessageID); err != nil {
		log.Printf("hub: delete message: %v", err)
		return
	}
	participants, err := h.repo.Participants(ctx, req.ChatID)
	if err != nil {
		log.Printf("hub: participants: %v", err)
		return
	}
	// Removal reaches every holder of the chat, not just the initiator.
	h.fanout(ctx, RoutedEvent{
		Targets: participants,
		Event:   "messageDeleted",
		Data:    marshal(map[string]string{"messageId": req.MessageID}),
	})
}

func (h *Hub) handleMarkRead(ctx context.Context, in Inbound) {
	var req struct {
		ChatID string `json:"chatId"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(in.Data, &req); err != nil || req.ChatID == "" {
		return
	}
	reader := in.Client.UserID
	if err := h.repo.MarkRead(ctx, req.ChatID, reader); err != nil {
		log.Printf("hub: mark read: %v", err)
		return
	}
	participants, err := h.repo.Participants(ctx, req.ChatID)
	if err != nil {
		log.Printf("hub: participants: %v", err)
		return
	}
	for _, p := range participants {
		if p == reader {
			// The reader's own chat list drops to zero unread.
			h.fanout(ctx, RoutedEvent{
				Targets: []string{p},
				Event:   "contactsUpdate",
				Data:    marshal(map[string]any{"chatId": req.ChatID, "unreadMessages": 0}),
			})
			continue
		}
		// The peer learns its sent messages were read.
		h.fanout(ctx, RoutedEvent{
			Targets: []string{p},
			Event:   "messagesRead",
			Data:    marshal(map[string]string{"chatId": req.ChatID}),
		})
	}
}

func (h *Hub) fanout(ctx context.Context, ev RoutedEvent) {
	if err := h.broker.Publish(ctx, ev); err != nil {
		log.Printf("hub: broker publish: %v", err)
	}
}

// route delivers a broker event to the locally connected targets.
func (h *Hub) route(ev RoutedEvent) {
	frame, err := json.Marshal(envelope{Event: ev.Event, Data: ev.Data})
	if err != nil {
		return
	}

	deliverTo := func(c *Client) {
		select {
		case c.send <- frame:
		default:
			// Slow consumer: drop the connection rather than the stream.
			close(c.send)
			delete(h.clients, c.UserID)
		}
	}

	if ev.Targets == nil {
		for id, c := range h.clients {
			if id == ev.Exclude {
				continue
			}
			deliverTo(c)
		}
		return
	}
	for _, id := range ev.Targets {
		if id == ev.Exclude {
			continue
		}
		if c, ok := h.clients[id]; ok {
			deliverTo(c)
		}
	}
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func marshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("hub: marshal: %v", err)
		return json.RawMessage("{}")
	}
	return raw
}
