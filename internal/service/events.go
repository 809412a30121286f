package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/model"
)

// SessionEventType names a committed session transition.
type SessionEventType string

const (
	EventSessionStarted   SessionEventType = "session.started"
	EventSessionSubmitted SessionEventType = "session.submitted"
	EventSessionExpired   SessionEventType = "session.expired"
	EventSessionMarked    SessionEventType = "session.marked"
	EventSessionReleased  SessionEventType = "session.released"
)

// SessionEvent is published after a transition commits.
type SessionEvent struct {
	Type      SessionEventType    `json:"type"`
	SessionID uuid.UUID           `json:"session_id"`
	StudentID string              `json:"student_id"`
	Status    model.SessionStatus `json:"status"`
	At        time.Time           `json:"at"`
}

// EventBus fans session events out to stream subscribers. Delivery is best
// effort; the session row stays the source of truth.
type EventBus interface {
	Publish(ctx context.Context, ev SessionEvent) error
	// Subscribe returns a channel of events for one session and a cancel
	// func that must be called to release the subscription.
	Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan SessionEvent, func(), error)
}

const subscriberBuffer = 16

// LocalEventBus delivers events within one process.
type LocalEventBus struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan SessionEvent]struct{}
}

// NewLocalEventBus creates a new LocalEventBus.
func NewLocalEventBus() *LocalEventBus {
	return &LocalEventBus{subs: map[uuid.UUID]map[chan SessionEvent]struct{}{}}
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (b *LocalEventBus) Publish(_ context.Context, ev SessionEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *LocalEventBus) Subscribe(_ context.Context, sessionID uuid.UUID) (<-chan SessionEvent, func(), error) {
	ch := make(chan SessionEvent, subscriberBuffer)
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = map[chan SessionEvent]struct{}{}
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[sessionID], ch)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

// RedisEventBus publishes events on a per-session Redis Pub/Sub channel so
// every replica's stream subscribers see them.
type RedisEventBus struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisEventBus creates a new RedisEventBus.
func NewRedisEventBus(rdb *redis.Client, log zerolog.Logger) *RedisEventBus {
	return &RedisEventBus{rdb: rdb, log: log.With().Str("component", "event_bus").Logger()}
}

func (b *RedisEventBus) Publish(ctx context.Context, ev SessionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	channel := config.CacheKey.SessionEventsChannel(ev.SessionID.String())
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

func (b *RedisEventBus) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan SessionEvent, func(), error) {
	channel := config.CacheKey.SessionEventsChannel(sessionID.String())
	ps := b.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan SessionEvent, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn().Err(err).Str("channel", channel).Msg("Dropping malformed session event")
				continue
			}
			select {
			case out <- ev:
			default:
			}
		}
	}()

	var once sync.Once
	cancel := func() { once.Do(func() { _ = ps.Close() }) }
	return out, cancel, nil
}
