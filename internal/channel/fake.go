package channel

import (
	"encoding/json"
	"sync"
)

// Fake is an in-memory Channel for tests. Published events are recorded,
// and Deliver runs subscribed handlers synchronously in subscription
// order, which mirrors the single dispatch goroutine of a real Conn.
type Fake struct {
	mu     sync.Mutex
	state  State
	nextID int
	subs   map[string][]*fakeSub
	sent   []Envelope
}

type fakeSub struct {
	id    int
	event string
	fn    Handler
	fake  *Fake
}

func (s *fakeSub) Cancel() {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	list := s.fake.subs[s.event]
	for i, cand := range list {
		if cand.id == s.id {
			s.fake.subs[s.event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func NewFake() *Fake {
	return &Fake{state: Connected, subs: make(map[string][]*fakeSub)}
}

func (f *Fake) Publish(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.sent = append(f.sent, Envelope{Event: event, Data: raw})
	f.mu.Unlock()
}

func (f *Fake) Subscribe(event string, fn Handler) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sub := &fakeSub{id: f.nextID, event: event, fn: fn, fake: f}
	f.subs[event] = append(f.subs[event], sub)
	return sub
}

func (f *Fake) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Fake) SetState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// Deliver injects an inbound event, marshaling data and running handlers
// synchronously in subscription order.
func (f *Fake) Deliver(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	list := f.subs[event]
	handlers := make([]Handler, len(list))
	for i, s := range list {
		handlers[i] = s.fn
	}
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(json.RawMessage(raw))
	}
}

// Sent returns a copy of everything published so far.
func (f *Fake) Sent() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentNamed returns published envelopes matching event.
func (f *Fake) SentNamed(event string) []Envelope {
	var out []Envelope
	for _, env := range f.Sent() {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

// HandlerCount reports how many handlers are registered for event. Used to
// assert that teardown leaves nothing dangling.
func (f *Fake) HandlerCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[event])
}
