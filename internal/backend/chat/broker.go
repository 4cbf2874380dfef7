package chat

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RoutedEvent is the frame hubs exchange through the broker. Every
// delivery, including to clients on the publishing instance, goes through
// the broker so each instance sees one globally ordered stream and the
// sender always receives the echo of its own action.
type RoutedEvent struct {
	// Targets restricts delivery to these user ids; nil means everyone.
	Targets []string `json:"targets,omitempty"`
	// Exclude drops one user id from delivery (the originator of a
	// hub-wide broadcast).
	Exclude string          `json:"exclude,omitempty"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Broker fans events out across hub instances and keeps the shared
// presence registry.
type Broker interface {
	Publish(ctx context.Context, ev RoutedEvent) error
	Events() <-chan RoutedEvent

	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	Online(ctx context.Context) ([]string, error)
}

const (
	eventsChannel = "chat-events"
	onlineSetKey  = "online_users"
)

// RedisBroker backs the hub with Redis pub/sub and a Redis set for
// presence, so multiple server instances share one event stream.
type RedisBroker struct {
	redis *redis.Client
	out   chan RoutedEvent
}

func NewRedisBroker(ctx context.Context, client *redis.Client) *RedisBroker {
	b := &RedisBroker{redis: client, out: make(chan RoutedEvent, 256)}
	go b.subscribe(ctx)
	return b
}

func (b *RedisBroker) subscribe(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()
	defer close(b.out)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev RoutedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("broker: bad payload: %v", err)
				continue
			}
			b.out <- ev
		case <-ctx.Done():
			return
		}
	}
}

func (b *RedisBroker) Publish(ctx context.Context, ev RoutedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, eventsChannel, payload).Err()
}

func (b *RedisBroker) Events() <-chan RoutedEvent { return b.out }

func (b *RedisBroker) SetOnline(ctx context.Context, userID string) error {
	return b.redis.SAdd(ctx, onlineSetKey, userID).Err()
}

func (b *RedisBroker) SetOffline(ctx context.Context, userID string) error {
	return b.redis.SRem(ctx, onlineSetKey, userID).Err()
}

func (b *RedisBroker) IsOnline(ctx context.Context, userID string) (bool, error) {
	return b.redis.SIsMember(ctx, onlineSetKey, userID).Result()
}

func (b *RedisBroker) Online(ctx context.Context) ([]string, error) {
	return b.redis.SMembers(ctx, onlineSetKey).Result()
}

// LocalBroker is the single-instance loopback used when no Redis address
// is configured, and by the tests.
type LocalBroker struct {
	out chan RoutedEvent

	mu     sync.Mutex
	online map[string]bool
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{out: make(chan RoutedEvent, 256), online: make(map[string]bool)}
}

func (b *LocalBroker) Publish(_ context.Context, ev RoutedEvent) error {
	b.out <- ev
	return nil
}

func (b *LocalBroker) Events() <-chan RoutedEvent { return b.out }

func (b *LocalBroker) SetOnline(_ context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.online[userID] = true
	return nil
}

func (b *LocalBroker) SetOffline(_ context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.online, userID)
	return nil
}

func (b *LocalBroker) IsOnline(_ context.Context, userID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online[userID], nil
}

func (b *LocalBroker) Online(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.online))
	for id := range b.online {
		out = append(out, id)
	}
	return out, nil
}
