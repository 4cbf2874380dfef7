package user

import (
	"encoding/json"
	"net/http"

	"go-chat-client/internal/models"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Service.Register(r.Context(), &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"message": "registered"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	json.NewEncoder(w).Encode(res)
}

// Contacts serves the full contact directory for a user.
func (h *Handler) Contacts(w http.ResponseWriter, r *http.Request, userID string) {
	users, err := h.Service.repo.ListContacts(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load contacts")
		return
	}

	contacts := make([]models.Contact, 0, len(users))
	for _, u := range users {
		contacts = append(contacts, models.Contact{
			UserID:  u.ID,
			PhoneNo: u.PhoneNo,
			Name:    u.Name,
			About:   u.About,
		})
	}
	json.NewEncoder(w).Encode(contacts)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
