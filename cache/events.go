package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moltasthornblom/beam/logger"
	"github.com/moltasthornblom/beam/model"

	"github.com/go-redis/redis/v8"
)

const (
	subscriberBuffer = 32
	terminalTTL      = 24 * time.Hour
)

// EventBus fans asset events out to websocket subscribers.
type EventBus interface {
	Publish(ctx context.Context, ev model.AssetEvent) error
	// Subscribe delivers events of assetID until cancel is called or ctx ends.
	Subscribe(ctx context.Context, assetID string) (events <-chan model.AssetEvent, cancel func(), err error)
	// Terminal returns the ready or stalled event already published for
	// assetID, for subscribers that arrive after the pipeline ended.
	Terminal(ctx context.Context, assetID string) (model.AssetEvent, bool)
}

// LocalEvents is an in-process EventBus. Slow subscribers lose events
// rather than block the publisher.
type LocalEvents struct {
	mu       sync.Mutex
	subs     map[string]map[chan model.AssetEvent]struct{}
	terminal map[string]model.AssetEvent
}

func NewLocalEvents() *LocalEvents {
	return &LocalEvents{
		subs:     make(map[string]map[chan model.AssetEvent]struct{}),
		terminal: make(map[string]model.AssetEvent),
	}
}

func (b *LocalEvents) Publish(_ context.Context, ev model.AssetEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev.Type.Terminal() {
		b.terminal[ev.AssetID] = ev
	}
	for ch := range b.subs[ev.AssetID] {
		select {
		case ch <- ev:
		default:
			logger.Debug("Dropping event for slow subscriber", logger.String("assetId", ev.AssetID), logger.String("type", string(ev.Type)))
		}
	}
	return nil
}

func (b *LocalEvents) Subscribe(ctx context.Context, assetID string) (<-chan model.AssetEvent, func(), error) {
	ch := make(chan model.AssetEvent, subscriberBuffer)

	b.mu.Lock()
	if b.subs[assetID] == nil {
		b.subs[assetID] = make(map[chan model.AssetEvent]struct{})
	}
	b.subs[assetID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[assetID], ch)
			if len(b.subs[assetID]) == 0 {
				delete(b.subs, assetID)
			}
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

func (b *LocalEvents) Terminal(_ context.Context, assetID string) (model.AssetEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev, ok := b.terminal[assetID]
	return ev, ok
}

// Subscribers returns the number of live subscriptions for assetID.
func (b *LocalEvents) Subscribers(assetID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[assetID])
}

// RedisEvents is an EventBus on Redis pub/sub, so every server process sees
// the events of every worker.
type RedisEvents struct {
	client *redis.Client
}

func NewRedisEvents(client *redis.Client) *RedisEvents {
	return &RedisEvents{client: client}
}

// EventChannel is the pub/sub channel of assetID.
func EventChannel(assetID string) string {
	return fmt.Sprintf("beam:events:%s", assetID)
}

// TerminalKey holds the last ready or stalled event of assetID.
func TerminalKey(assetID string) string {
	return EventChannel(assetID) + ":terminal"
}

func (b *RedisEvents) Publish(ctx context.Context, ev model.AssetEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if ev.Type.Terminal() {
			pipe.Set(ctx, TerminalKey(ev.AssetID), data, terminalTTL)
		}
		pipe.Publish(ctx, EventChannel(ev.AssetID), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *RedisEvents) Terminal(ctx context.Context, assetID string) (model.AssetEvent, bool) {
	var ev model.AssetEvent
	data, err := b.client.Get(ctx, TerminalKey(assetID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("Failed to read terminal event", logger.String("assetId", assetID), logger.ErrorField(err))
		}
		return ev, false
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		logger.Warn("Ignoring malformed terminal event", logger.String("assetId", assetID), logger.ErrorField(err))
		return ev, false
	}
	return ev, true
}

func (b *RedisEvents) Subscribe(ctx context.Context, assetID string) (<-chan model.AssetEvent, func(), error) {
	ps := b.client.Subscribe(ctx, EventChannel(assetID))
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", assetID, err)
	}

	out := make(chan model.AssetEvent, subscriberBuffer)
	var once sync.Once
	cancel := func() { once.Do(func() { _ = ps.Close() }) }

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev model.AssetEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn("Ignoring malformed event", logger.String("channel", msg.Channel), logger.ErrorField(err))
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()
	return out, cancel, nil
}
