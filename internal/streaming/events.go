package streaming

import (
	"encoding/json"
	"fmt"
	"strings"

	"openprotect-lab/internal/domain/models"
)

// DefaultSubjectPrefix is the NATS subject root for console events
const DefaultSubjectPrefix = "console.events"

// SubjectFor returns the NATS subject for an event type, e.g.
// console.events.playbook_triggered
func SubjectFor(prefix string, t models.EventType) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return fmt.Sprintf("%s.%s", prefix, strings.ToLower(string(t)))
}

// Subscription represents a client's subscription preferences
type Subscription struct {
	// Filter by event type (empty = all)
	Types []models.EventType `json:"types,omitempty"`

	// Minimum severity for AGGREGATED_EVENT payloads. Other event types
	// carry no severity and always pass.
	MinSeverity models.Severity `json:"min_severity,omitempty"`

	// Filter by correlation context "industry|region" (empty = all)
	Contexts []string `json:"contexts,omitempty"`
}

// Matches checks if an event matches the subscription filters
func (s *Subscription) Matches(event *models.ServerEvent) bool {
	if s == nil {
		return true
	}

	if len(s.Types) > 0 {
		found := false
		for _, t := range s.Types {
			if t == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	agg, ok := event.Payload.(models.AggregatedEvent)
	if !ok {
		return true
	}

	if s.MinSeverity != "" && !agg.Severity.AtLeast(s.MinSeverity) {
		return false
	}

	if len(s.Contexts) > 0 {
		if agg.Context == nil {
			return false
		}
		key := agg.Context.Key()
		found := false
		for _, c := range s.Contexts {
			if c == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// Validate rejects unknown event types and severities
func (s *Subscription) Validate() error {
	for _, t := range s.Types {
		if !t.IsValid() {
			return models.NewValidationError("subscribe", fmt.Sprintf("unknown event type %q", t))
		}
	}
	if s.MinSeverity != "" && !s.MinSeverity.IsValid() {
		return models.NewValidationError("subscribe", fmt.Sprintf("unknown severity %q", s.MinSeverity))
	}
	return nil
}

// WebSocket message types
const (
	MessageTypeEvent      = "event"
	MessageTypeSubscribed = "subscribed"
	MessageTypeError      = "error"
)

// WebSocketMessage is a message sent to WebSocket clients
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newMessage(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebSocketMessage{Type: msgType, Payload: raw})
}
