package models

import (
	"encoding/json"
	"testing"
)

func TestFlexIDAcceptsBothShapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want FlexID
	}{
		{"bare string", `"u1"`, "u1"},
		{"object with _id", `{"_id":"u1"}`, "u1"},
		{"object with extra fields", `{"_id":"u1","name":"Alice"}`, "u1"},
		{"null", `null`, ""},
		{"empty object", `{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FlexID
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlexIDMarshalsAsScalar(t *testing.T) {
	raw, err := json.Marshal(StatusUpdate{UserID: "u1", Status: StatusOnline})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"userId":"u1","status":"online"}` {
		t.Errorf("marshaled as %s", raw)
	}
}

func TestChatContactPartnerID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"userId key", `{"chatId":"c1","userId":"u1"}`, "u1"},
		{"senderId key", `{"chatId":"c1","senderId":"u2"}`, "u2"},
		{"receiverId key", `{"chatId":"c1","receiverId":{"_id":"u3"}}`, "u3"},
		{"userId wins over the rest", `{"chatId":"c1","userId":"u1","senderId":"u2"}`, "u1"},
		{"none present", `{"chatId":"c1"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cc ChatContact
			if err := json.Unmarshal([]byte(tt.in), &cc); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := cc.PartnerID(); got != tt.want {
				t.Errorf("PartnerID() = %q, want %q", got, tt.want)
			}
		})
	}
}
