package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	pkglog "github.com/weiawesome/wes-io-stage/pkg/log"
)

const redisChannelSize = 100

type redisSubscription struct {
	key    string
	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// RedisPubSub implements PubSub on Redis pub/sub. A window that misses a
// delta while disconnected recovers from the snapshot cache, not from here.
type RedisPubSub struct {
	client *redis.Client

	mu            sync.Mutex
	subscriptions map[string][]*redisSubscription
	closed        bool
}

// NewRedisPubSub connects to Redis and verifies the connection.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPubSub{
		client:        client,
		subscriptions: make(map[string][]*redisSubscription),
	}, nil
}

// Publish sends the event. Redis reports no error when nobody listens.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so an event
// published after it returns is delivered.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return r.subscribe(ctx, channel, r.client.Subscribe(ctx, channel))
}

// SubscribePattern follows every channel matching a glob pattern.
func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.subscribe(ctx, pattern, r.client.PSubscribe(ctx, pattern))
}

func (r *RedisPubSub) subscribe(ctx context.Context, key string, ps *redis.PubSub) (<-chan *Event, error) {
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", key, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		ps.Close()
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{key: key, ps: ps, cancel: cancel, done: make(chan struct{})}
	r.subscriptions[key] = append(r.subscriptions[key], sub)

	out := make(chan *Event, redisChannelSize)
	go r.forward(subCtx, sub, out)
	return out, nil
}

func (r *RedisPubSub) forward(ctx context.Context, sub *redisSubscription, out chan<- *Event) {
	l := pkglog.L()
	defer func() {
		sub.ps.Close()
		close(out)
		r.forget(sub)
		close(sub.done)
	}()

	msgs := sub.ps.Channel(redis.WithChannelSize(redisChannelSize))
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				l.Warn().Err(err).Str("channel", msg.Channel).Msg("redis pubsub: dropping undecodable event")
				continue
			}
			select {
			case out <- &event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *RedisPubSub) forget(sub *redisSubscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.subscriptions[sub.key]
	for i, s := range subs {
		if s == sub {
			r.subscriptions[sub.key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(r.subscriptions[sub.key]) == 0 {
		delete(r.subscriptions, sub.key)
	}
}

// Unsubscribe ends every subscription registered under channel.
func (r *RedisPubSub) Unsubscribe(_ context.Context, channel string) error {
	r.mu.Lock()
	subs := append([]*redisSubscription(nil), r.subscriptions[channel]...)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
	return nil
}

// Close ends all subscriptions and closes the client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	var all []*redisSubscription
	for _, subs := range r.subscriptions {
		all = append(all, subs...)
	}
	r.mu.Unlock()

	for _, sub := range all {
		sub.cancel()
		<-sub.done
	}
	return r.client.Close()
}
