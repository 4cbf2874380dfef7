package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// ---------------------------------------------
// Wire Models (shared by engine and backend)
// ---------------------------------------------

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Message is one entry in a conversation. Exactly one of MessageText /
// VoiceMessage is populated; VoiceMessage carries base64 audio.
type Message struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chatId"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	MessageText  string    `json:"messageText,omitempty"`
	VoiceMessage string    `json:"voiceMessage,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	IsRead       bool      `json:"isRead"`
}

// Contact is a directory entry. ChatID is empty until the contact has been
// promoted to a conversation.
type Contact struct {
	UserID  string `json:"userId"`
	PhoneNo string `json:"phoneNo"`
	Name    string `json:"name"`
	About   string `json:"about,omitempty"`
	ChatID  string `json:"chatId,omitempty"`
}

// ChatContact is one entry of the live chat list: a chat plus partner info.
// The partner id may arrive under any of three keys, as a scalar or as an
// object wrapping an _id field, depending on which side of the chat the
// feed was built from.
type ChatContact struct {
	ChatID          string    `json:"chatId"`
	UserID          FlexID    `json:"userId,omitempty"`
	SenderID        FlexID    `json:"senderId,omitempty"`
	ReceiverID      FlexID    `json:"receiverId,omitempty"`
	Name            string    `json:"name,omitempty"`
	PhoneNo         string    `json:"phoneNo,omitempty"`
	LastMessage     string    `json:"lastMessage,omitempty"`
	LastMessageTime time.Time `json:"lastMessageTime,omitempty"`
	UnreadMessages  int       `json:"unreadMessages"`
}

// PartnerID collapses the three possible id keys into one scalar id.
func (c ChatContact) PartnerID() string {
	for _, id := range []FlexID{c.UserID, c.SenderID, c.ReceiverID} {
		if id != "" {
			return string(id)
		}
	}
	return ""
}

// StatusUpdate is the payload of a userStatusUpdate event.
type StatusUpdate struct {
	UserID FlexID `json:"userId"`
	Status string `json:"status"`
}

// FlexID decodes an id that is either a bare string or an object carrying
// an _id field. All ids are normalized to the scalar form at ingestion so
// nothing past the decode layer branches on shape.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '{' {
		var wrapped struct {
			ID string `json:"_id"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		*f = FlexID(wrapped.ID)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = FlexID(s)
	return nil
}

func (f FlexID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}
