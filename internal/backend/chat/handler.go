package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"go-chat-client/internal/backend/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The terminal client dials from arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Handler struct {
	hub  *Hub
	repo *Repository
}

func NewHandler(hub *Hub, repo *Repository) *Handler {
	return &Handler{hub: hub, repo: repo}
}

// ServeWs upgrades the request and hands the connection to the hub. The
// auth middleware has already stashed identity in the context.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(middleware.UserKey).(string)
	name, _ := r.Context().Value(middleware.NameKey).(string)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}

	client := NewClient(h.hub, conn, userID, name)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// ChatHistory serves a conversation's messages in arrival order.
// GET /api/messages/chat-by-chatid?chatId=...
func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chatId")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "chatId is required")
		return
	}

	messages, err := h.repo.History(r.Context(), chatID)
	if err != nil {
		log.Printf("chat history: %v", err)
		writeError(w, http.StatusInternalServerError, "could not load messages")
		return
	}
	json.NewEncoder(w).Encode(messages)
}

// ChatContacts serves the caller's chat list.
// GET /api/chats/contacts/{userId}
func (h *Handler) ChatContacts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	chats, err := h.repo.ChatContacts(r.Context(), userID)
	if err != nil {
		log.Printf("chat contacts: %v", err)
		writeError(w, http.StatusInternalServerError, "could not load chats")
		return
	}
	json.NewEncoder(w).Encode(chats)
}

// FindOrCreate resolves a phone number to a chat id, creating the chat on
// first contact. POST /api/chats/find-or-create
func (h *Handler) FindOrCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"userId"`
		PhoneNo string `json:"phoneNo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhoneNo == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		req.UserID, _ = r.Context().Value(middleware.UserKey).(string)
	}

	chatID, err := h.repo.FindOrCreateChat(r.Context(), req.UserID, req.PhoneNo)
	if errors.Is(err, ErrNoSuchContact) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		log.Printf("find-or-create: %v", err)
		writeError(w, http.StatusInternalServerError, "could not resolve chat")
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"chatId": chatID})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
