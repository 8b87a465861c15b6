// Package pubsub bridges room events between server instances over Redis.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const channelPrefix = "watchparty:room:"

// Deliverer receives events that originated on another instance.
type Deliverer interface {
	Deliver(roomID, event string, msg []byte)
}

type envelope struct {
	Origin  string          `json:"origin"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBridge publishes local room events and replays foreign ones into the
// local hub. Messages published by this instance are ignored on receipt.
type RedisBridge struct {
	rdb      *redis.Client
	instance string
	target   Deliverer

	mu     sync.Mutex
	sub    *redis.PubSub
	done   chan struct{}
	closed bool
}

func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, MaxRetries: 2})
}

func NewRedisBridge(rdb *redis.Client, target Deliverer) *RedisBridge {
	return &RedisBridge{rdb: rdb, instance: uuid.NewString(), target: target}
}

func (b *RedisBridge) InstanceID() string { return b.instance }

func Channel(roomID string) string { return channelPrefix + roomID }

func (b *RedisBridge) Forward(ctx context.Context, roomID, event string, msg []byte) error {
	data, err := json.Marshal(envelope{Origin: b.instance, Event: event, Payload: msg})
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, Channel(roomID), data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", roomID, err)
	}
	return nil
}

// Start subscribes to every room channel and delivers foreign events until
// Stop is called. It returns once the subscription is confirmed.
func (b *RedisBridge) Start(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	b.mu.Lock()
	b.sub = sub
	b.done = make(chan struct{})
	b.mu.Unlock()

	go func() {
		defer close(b.done)
		for m := range sub.Channel() {
			b.handle(m.Channel, m.Payload)
		}
	}()
	log.Info().Str("instance", b.instance).Msg("redis room bridge started")
	return nil
}

func (b *RedisBridge) handle(channel, payload string) {
	roomID := strings.TrimPrefix(channel, channelPrefix)
	if roomID == channel || roomID == "" {
		return
	}
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("redis bridge: bad envelope")
		return
	}
	if env.Origin == b.instance || len(env.Payload) == 0 {
		return
	}
	b.target.Deliver(roomID, env.Event, env.Payload)
}

func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	if b.closed || b.sub == nil {
		b.closed = true
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	sub, done := b.sub, b.done
	b.mu.Unlock()

	err := sub.Close()
	<-done
	return err
}
