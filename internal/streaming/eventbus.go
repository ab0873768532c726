package streaming

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

const subscriberBuffer = 100

type subscriber struct {
	ch  chan *models.ServerEvent
	sub *Subscription
}

// EventBus distributes server events to in-process subscribers and, when
// connected, to NATS
type EventBus struct {
	nats   *NATSPublisher
	logger *logger.Logger

	mu          sync.RWMutex
	subscribers map[string]*subscriber
}

// NewEventBus creates a new event bus. nats may be nil.
func NewEventBus(nats *NATSPublisher, log *logger.Logger) *EventBus {
	return &EventBus{
		nats:        nats,
		logger:      log.WithComponent("event-bus"),
		subscribers: make(map[string]*subscriber),
	}
}

// Publish publishes an event to NATS and all matching local subscribers.
// Slow subscribers drop events rather than block the pipeline.
func (eb *EventBus) Publish(ctx context.Context, event *models.ServerEvent) error {
	if eb.nats != nil && eb.nats.IsConnected() {
		if err := eb.nats.PublishEvent(ctx, event); err != nil {
			eb.logger.Warn().Err(err).Msg("failed to publish to NATS, using local broadcast only")
		}
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for id, s := range eb.subscribers {
		if !s.sub.Matches(event) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			eb.logger.Debug().Str("subscriber", id).Uint64("seq", event.Seq).Msg("subscriber channel full, dropping event")
		}
	}

	return nil
}

// Subscribe creates a new subscription and returns a channel for events plus
// the function that cancels it
func (eb *EventBus) Subscribe(sub *Subscription) (<-chan *models.ServerEvent, func()) {
	id := uuid.NewString()
	ch := make(chan *models.ServerEvent, subscriberBuffer)

	eb.mu.Lock()
	eb.subscribers[id] = &subscriber{ch: ch, sub: sub}
	eb.mu.Unlock()

	eb.logger.Debug().Str("subscriber_id", id).Msg("new subscriber")

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			if _, ok := eb.subscribers[id]; ok {
				close(ch)
				delete(eb.subscribers, id)
				eb.logger.Debug().Str("subscriber_id", id).Msg("subscriber removed")
			}
		})
	}

	return ch, unsubscribe
}

// SubscriberCount returns the number of active subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Close closes every subscription and the NATS connection
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for id, s := range eb.subscribers {
		close(s.ch)
		delete(eb.subscribers, id)
	}

	if eb.nats != nil {
		eb.nats.Close()
	}
}
