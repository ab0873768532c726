package streaming

import (
	"context"
	"errors"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/internal/domain/services"
)

// EventBusPublisher implements services.EventPublisher by fanning events out
// to the event bus, the WebSocket hub and any archives
type EventBusPublisher struct {
	eventBus *EventBus
	wsHub    *WebSocketHub
	archives []services.EventPublisher
}

// NewEventBusPublisher creates a new publisher adapter. Any argument may be
// nil.
func NewEventBusPublisher(eventBus *EventBus, wsHub *WebSocketHub, archives ...services.EventPublisher) *EventBusPublisher {
	return &EventBusPublisher{
		eventBus: eventBus,
		wsHub:    wsHub,
		archives: archives,
	}
}

// PublishEvent delivers one appended event. Every sink is attempted; the
// returned error joins the failures.
func (p *EventBusPublisher) PublishEvent(ctx context.Context, event *models.ServerEvent) error {
	var errs []error

	// Publish to event bus (NATS + local subscribers including gRPC streams)
	if p.eventBus != nil {
		if err := p.eventBus.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	// Broadcast to WebSocket clients
	if p.wsHub != nil {
		p.wsHub.BroadcastEvent(event)
	}

	for _, a := range p.archives {
		if a == nil {
			continue
		}
		if err := a.PublishEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
