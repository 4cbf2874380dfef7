package notify

import (
	"encoding/json"
	"sync"

	"go-chat-client/internal/channel"
)

// Permission mirrors the three-state local alert permission.
type Permission int

const (
	PermissionDefault Permission = iota // never asked
	PermissionGranted
	PermissionDenied
)

// Notifier raises a local user-facing alert.
type Notifier interface {
	Notify(title, body string)
}

// Prompter owns the alert permission state and the one-time request flow.
type Prompter interface {
	Permission() Permission
	// Request asks the user and returns the resulting permission. Called
	// only when Permission is PermissionDefault.
	Request() Permission
}

// Dispatcher raises at most one alert per login session: the first
// peer-joined broadcast after a fresh login consumes a one-shot latch that
// only a new login re-arms. Denied permission consumes the latch silently.
type Dispatcher struct {
	ch       channel.Channel
	notifier Notifier
	prompter Prompter

	mu    sync.Mutex
	armed bool
	sub   channel.Subscription
}

func NewDispatcher(ch channel.Channel, notifier Notifier, prompter Prompter) *Dispatcher {
	return &Dispatcher{ch: ch, notifier: notifier, prompter: prompter}
}

// Start subscribes to peer-joined broadcasts.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sub == nil {
		d.sub = d.ch.Subscribe(channel.EventBroadcast, d.handleBroadcast)
	}
}

// Arm resets the one-shot latch. Called on every fresh login.
func (d *Dispatcher) Arm() {
	d.mu.Lock()
	d.armed = true
	d.mu.Unlock()
}

func (d *Dispatcher) handleBroadcast(data json.RawMessage) {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return
	}
	// Consumed by the first matching signal, whatever the permission
	// outcome below.
	d.armed = false
	d.mu.Unlock()

	var ev struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}

	perm := d.prompter.Permission()
	if perm == PermissionDefault {
		perm = d.prompter.Request()
	}
	if perm != PermissionGranted {
		// Denied: no alert, no error.
		return
	}
	d.notifier.Notify("User Joined", ev.Message)
}

// Close unsubscribes the dispatcher. Idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	sub := d.sub
	d.sub = nil
	d.armed = false
	d.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}
