package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

// DefaultEventLogCapacity is the number of events retained
const DefaultEventLogCapacity = 500

// EventPublisher fans appended events out to live consumers
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *models.ServerEvent) error
}

// EventLog is the append-only, capped console timeline. Emission order is
// the canonical order; Seq increases by one per appended event.
//
// Appended events wait in an outbox until Flush hands them to the publisher.
type EventLog struct {
	mu        sync.RWMutex
	events    []models.ServerEvent
	capacity  int
	seq       uint64
	dropped   uint64
	outbox    []models.ServerEvent
	pubMu     sync.Mutex
	publisher EventPublisher
	clock     Clock
	logger    *logger.Logger
}

// NewEventLog creates an event log. publisher may be nil.
func NewEventLog(capacity int, publisher EventPublisher, clock Clock, log *logger.Logger) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventLogCapacity
	}
	return &EventLog{
		events:    make([]models.ServerEvent, 0, capacity),
		capacity:  capacity,
		publisher: publisher,
		clock:     clock,
		logger:    log.WithComponent("event-log"),
	}
}

// Append stamps and stores a payload, evicting the oldest event when full,
// and queues it for the next Flush. It never blocks on the publisher.
func (l *EventLog) Append(payload models.EventPayload) models.ServerEvent {
	l.mu.Lock()
	l.seq++
	event := models.ServerEvent{
		ID:        uuid.NewString(),
		Seq:       l.seq,
		Timestamp: l.clock.now(),
		Type:      payload.EventType(),
		Payload:   payload,
	}
	l.events = append(l.events, event)
	if over := len(l.events) - l.capacity; over > 0 {
		l.events = append(l.events[:0:0], l.events[over:]...)
		l.dropped += uint64(over)
	}
	if l.publisher != nil {
		l.outbox = append(l.outbox, event)
	}
	l.mu.Unlock()

	l.logger.Debug().
		Uint64("seq", event.Seq).
		Str("type", string(event.Type)).
		Msg("event appended")

	return event
}

// Flush publishes queued events in Seq order and returns how many it sent.
// Concurrent flushes are serialized, so a later batch never overtakes an
// earlier one. Publisher failures are logged and the event is not retried.
func (l *EventLog) Flush(ctx context.Context) int {
	if l.publisher == nil {
		return 0
	}

	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	l.mu.Lock()
	batch := l.outbox
	l.outbox = nil
	l.mu.Unlock()

	for i := range batch {
		if err := l.publisher.PublishEvent(ctx, &batch[i]); err != nil {
			l.logger.Warn().Err(err).Str("event_id", batch[i].ID).Msg("failed to publish event")
		}
	}
	return len(batch)
}

// Pending returns how many events are waiting to be published
func (l *EventLog) Pending() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.outbox)
}

// Events returns the retained events in emission order
func (l *EventLog) Events() []models.ServerEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.ServerEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Recent returns up to limit of the newest events, newest first, restricted
// to the given types when any are passed
func (l *EventLog) Recent(limit int, types ...models.EventType) []models.ServerEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	want := make(map[models.EventType]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}

	var out []models.ServerEvent
	for i := len(l.events) - 1; i >= 0; i-- {
		e := l.events[i]
		if len(want) > 0 {
			if _, ok := want[e.Type]; !ok {
				continue
			}
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Since returns retained events with Seq greater than seq, in emission order
func (l *EventLog) Since(seq uint64) []models.ServerEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.ServerEvent
	for _, e := range l.events {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained events
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// LastSeq returns the sequence number of the newest event
func (l *EventLog) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// CountByType counts retained events per type
func (l *EventLog) CountByType() map[models.EventType]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[models.EventType]int)
	for _, e := range l.events {
		counts[e.Type]++
	}
	return counts
}
