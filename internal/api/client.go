package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go-chat-client/internal/models"
)

// Client speaks the backend's request/response surface. Failures are
// returned to the caller and surfaced as a generic message there; the
// client never retries on its own.
type Client struct {
	BaseURL string
	http    *http.Client

	mu    sync.Mutex
	token string
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken installs the session token sent as a bearer credential on
// every subsequent request. Clear it with "" on logout.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	PhoneNo  string `json:"phoneNo"`
	About    string `json:"about,omitempty"`
}

// Login authenticates with a username or phone number. The returned token
// is installed on the client so subsequent calls reach the protected
// routes.
func (c *Client) Login(ctx context.Context, identifier, password string) (*LoginResponse, error) {
	var res LoginResponse
	err := c.post(ctx, "/api/login", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, &res)
	if err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return &res, nil
}

func (c *Client) Register(ctx context.Context, req *RegisterRequest) error {
	return c.post(ctx, "/api/register", req, nil)
}

// ChatHistory fetches the ordered message log of one chat.
func (c *Client) ChatHistory(ctx context.Context, chatID string) ([]models.Message, error) {
	var msgs []models.Message
	path := "/api/messages/chat-by-chatid?chatId=" + url.QueryEscape(chatID)
	if err := c.get(ctx, path, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Contacts fetches the full contact directory for userID.
func (c *Client) Contacts(ctx context.Context, userID string) ([]models.Contact, error) {
	var contacts []models.Contact
	if err := c.get(ctx, "/api/contacts/"+url.PathEscape(userID), &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// ChatContacts fetches the chat list with partner info and unread counts.
func (c *Client) ChatContacts(ctx context.Context, userID string) ([]models.ChatContact, error) {
	var chats []models.ChatContact
	if err := c.get(ctx, "/api/chats/contacts/"+url.PathEscape(userID), &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// FindOrCreateChat resolves a phone number to a chat id, creating the chat
// on the backend when none exists yet.
func (c *Client) FindOrCreateChat(ctx context.Context, userID, phoneNo string) (string, error) {
	var res struct {
		ChatID string `json:"chatId"`
	}
	err := c.post(ctx, "/api/chats/find-or-create", map[string]string{
		"userId":  userID,
		"phoneNo": phoneNo,
	}, &res)
	if err != nil {
		return "", err
	}
	return res.ChatID, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return fmt.Errorf("api: %s %s: %s", req.Method, req.URL.Path, apiErr.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
