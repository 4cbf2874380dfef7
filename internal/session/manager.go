package session

import (
	"context"
	"log"
	"sync"
	"time"

	"go-chat-client/internal/api"
	"go-chat-client/internal/channel"
)

// Authenticator is the slice of the api client the manager needs.
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (*api.LoginResponse, error)
}

// Dialer opens the live channel for a session. Injected so tests can
// substitute a fake transport.
type Dialer func(token, userID string, onDisconnect func()) (*channel.Conn, error)

// Manager drives the session state machine: login creates the session and
// exactly one channel connection; logout or expiry destroys both. There is
// never more than one live connection per identity, and the expired notice
// fires at most once per session.
type Manager struct {
	auth Authenticator
	dial Dialer

	// OnExpired is invoked once when the current session times out.
	OnExpired func()
	// OnConnectionLost is invoked once when the live channel closes
	// mid-session for any reason other than logout or expiry.
	OnConnectionLost func()

	mu    sync.Mutex
	sess  *Session
	conn  *channel.Conn
	timer *time.Timer
	gen   int // session generation; stale expiry timers compare against it
}

func NewManager(auth Authenticator, dial Dialer) *Manager {
	return &Manager{auth: auth, dial: dial}
}

// Login authenticates, builds the session and opens its channel. Any
// previous session is torn down first. A failed connect is terminal: the
// session is discarded and the caller decides whether to log in again.
func (m *Manager) Login(ctx context.Context, identifier, password string) (*channel.Conn, Session, error) {
	m.Logout()

	res, err := m.auth.Login(ctx, identifier, password)
	if err != nil {
		return nil, Session{}, err
	}
	sess, err := FromLogin(res.Token, res.UserID)
	if err != nil {
		return nil, Session{}, err
	}
	if sess.Expired(time.Now()) {
		return nil, Session{}, ErrExpired
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	conn, err := m.dial(sess.Token, sess.UserID, func() { m.disconnected(gen) })
	if err != nil {
		return nil, Session{}, err
	}

	m.mu.Lock()
	m.sess = &sess
	m.conn = conn
	m.timer = time.AfterFunc(time.Until(sess.ExpiresAt), func() { m.expire(gen) })
	m.mu.Unlock()

	// The channel may have died before the session was installed, in which
	// case its callback found nothing to tear down.
	select {
	case <-conn.Done():
		m.disconnected(gen)
	default:
	}

	log.Printf("session: %s logged in, expires %s", sess.UserID, sess.ExpiresAt.Format(time.RFC3339))
	return conn, sess, nil
}

// Logout destroys the current session, cancels its expiry timer and closes
// the channel. Idempotent; safe with no session at all.
func (m *Manager) Logout() {
	m.mu.Lock()
	conn := m.teardownLocked()
	m.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (m *Manager) expire(gen int) {
	m.mu.Lock()
	if m.gen != gen || m.sess == nil {
		// A logout or a newer login already superseded this timer.
		m.mu.Unlock()
		return
	}
	userID := m.sess.UserID
	conn := m.teardownLocked()
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	log.Printf("session: %s expired, forcing logout", userID)
	if m.OnExpired != nil {
		m.OnExpired()
	}
}

// disconnected handles the channel closing underneath a live session. Own
// teardown paths (logout, expiry, a newer login) have already bumped gen by
// the time their close triggers this callback, so only an unexpected loss
// gets this far. The connection is already closing; it must not be closed
// again from here.
func (m *Manager) disconnected(gen int) {
	m.mu.Lock()
	if m.gen != gen || m.sess == nil {
		m.mu.Unlock()
		return
	}
	userID := m.sess.UserID
	m.teardownLocked()
	m.mu.Unlock()

	log.Printf("session: %s channel closed, forcing logout", userID)
	if m.OnConnectionLost != nil {
		m.OnConnectionLost()
	}
}

// teardownLocked clears session state and returns the connection to close
// outside the lock. Bumping gen disarms any in-flight expiry callback.
func (m *Manager) teardownLocked() *channel.Conn {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.sess = nil
	return conn
}

// Current returns the active session, if any.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return Session{}, false
	}
	return *m.sess, true
}

// Conn returns the live connection, or nil when logged out.
func (m *Manager) Conn() *channel.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}
