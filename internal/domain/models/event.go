package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType tags a ServerEvent payload
type EventType string

const (
	EventAggregated           EventType = "AGGREGATED_EVENT"
	EventLearningUpdate       EventType = "LEARNING_UPDATE"
	EventDirectivePush        EventType = "DIRECTIVE_PUSH"
	EventKnowledgeSync        EventType = "KNOWLEDGE_SYNC"
	EventProactiveAlertPush   EventType = "PROACTIVE_ALERT_PUSH"
	EventAutomatedRemediation EventType = "AUTOMATED_REMEDIATION"
	EventPlaybookTriggered    EventType = "PLAYBOOK_TRIGGERED"
	EventOutboundNotification EventType = "OUTBOUND_NOTIFICATION"
)

// AllEventTypes lists every event type in declaration order
var AllEventTypes = []EventType{
	EventAggregated,
	EventLearningUpdate,
	EventDirectivePush,
	EventKnowledgeSync,
	EventProactiveAlertPush,
	EventAutomatedRemediation,
	EventPlaybookTriggered,
	EventOutboundNotification,
}

// IsValid reports whether t is a known event type
func (t EventType) IsValid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// EventPayload is implemented by every event payload variant
type EventPayload interface {
	EventType() EventType
}

// ServerEvent is one entry of the console timeline
type ServerEvent struct {
	ID        string       `json:"id"`
	Seq       uint64       `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
	Type      EventType    `json:"type"`
	Payload   EventPayload `json:"payload"`
}

type serverEventWire struct {
	ID        string          `json:"id"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// UnmarshalJSON decodes the payload according to the type tag
func (e *ServerEvent) UnmarshalJSON(data []byte) error {
	var w serverEventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	payload, err := newPayload(w.Type)
	if err != nil {
		return err
	}
	if len(w.Payload) > 0 && string(w.Payload) != "null" {
		if err := json.Unmarshal(w.Payload, payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", w.Type, err)
		}
	}

	*e = ServerEvent{
		ID:        w.ID,
		Seq:       w.Seq,
		Timestamp: w.Timestamp,
		Type:      w.Type,
		Payload:   derefPayload(payload),
	}
	return nil
}

func newPayload(t EventType) (any, error) {
	switch t {
	case EventAggregated:
		return &AggregatedEvent{}, nil
	case EventLearningUpdate:
		return &LearningUpdate{}, nil
	case EventDirectivePush:
		return &Directive{}, nil
	case EventKnowledgeSync:
		return &KnowledgeSync{}, nil
	case EventProactiveAlertPush:
		return &ProactiveAlert{}, nil
	case EventAutomatedRemediation:
		return &AutomatedRemediation{}, nil
	case EventPlaybookTriggered:
		return &PlaybookTriggered{}, nil
	case EventOutboundNotification:
		return &OutboundNotification{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

func derefPayload(p any) EventPayload {
	switch v := p.(type) {
	case *AggregatedEvent:
		return *v
	case *LearningUpdate:
		return *v
	case *Directive:
		return *v
	case *KnowledgeSync:
		return *v
	case *ProactiveAlert:
		return *v
	case *AutomatedRemediation:
		return *v
	case *PlaybookTriggered:
		return *v
	case *OutboundNotification:
		return *v
	}
	return nil
}

// AggregatedEvent is the sanitized form of a single ingested alert
type AggregatedEvent struct {
	AlertID          string         `json:"alert_id"`
	Title            string         `json:"title"`
	Severity         Severity       `json:"severity"`
	Count            int            `json:"count"`
	FirstSeen        time.Time      `json:"first_seen"`
	LastSeen         time.Time      `json:"last_seen"`
	SanitizedPayload map[string]any `json:"sanitized_payload"`
	Context          *AlertContext  `json:"context,omitempty"`
	Device           *Device        `json:"device,omitempty"`
	MitreMapping     *MitreMapping  `json:"mitre_mapping,omitempty"`
}

func (AggregatedEvent) EventType() EventType { return EventAggregated }

// KnowledgeSync reports that agent knowledge was pulled toward the server
type KnowledgeSync struct {
	Description     string  `json:"description"`
	Version         string  `json:"version"`
	ServerKnowledge float64 `json:"server_knowledge"`
	AgentKnowledge  float64 `json:"agent_knowledge"`
}

func (KnowledgeSync) EventType() EventType { return EventKnowledgeSync }

// ProactiveAlert is pushed when several threats share an industry and region
type ProactiveAlert struct {
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	TargetContext string   `json:"target_context"`
	Industry      string   `json:"industry"`
	Region        string   `json:"region"`
	ThreatTitles  []string `json:"threat_titles"`
}

func (ProactiveAlert) EventType() EventType { return EventProactiveAlertPush }

// AutomatedRemediation records the built-in response to a Critical alert
type AutomatedRemediation struct {
	AlertID      string   `json:"alert_id"`
	ThreatName   string   `json:"threat_name"`
	ActionsTaken []string `json:"actions_taken"`
	TargetHost   string   `json:"target_host"`
}

func (AutomatedRemediation) EventType() EventType { return EventAutomatedRemediation }

// PlaybookTriggered records one playbook execution
type PlaybookTriggered struct {
	PlaybookID            string   `json:"playbook_id"`
	PlaybookName          string   `json:"playbook_name"`
	VersionID             string   `json:"version_id"`
	TriggeredByAlertID    string   `json:"triggered_by_alert_id"`
	TriggeredByAlertTitle string   `json:"triggered_by_alert_title"`
	TargetHost            string   `json:"target_host,omitempty"`
	CaseID                string   `json:"case_id,omitempty"`
	ActionsTaken          []string `json:"actions_taken"`
	FailedActions         []string `json:"failed_actions,omitempty"`
}

func (PlaybookTriggered) EventType() EventType { return EventPlaybookTriggered }

// NotificationChannel is the destination kind of an outbound notification
type NotificationChannel string

const (
	ChannelSlack NotificationChannel = "Slack"
	ChannelTeams NotificationChannel = "MS Teams"
	ChannelEmail NotificationChannel = "Email"
)

// OutboundNotification is a simulated message to an external channel
type OutboundNotification struct {
	Channel      NotificationChannel `json:"channel"`
	Destination  string              `json:"destination"`
	Subject      string              `json:"subject,omitempty"`
	Message      string              `json:"message"`
	PlaybookName string              `json:"playbook_name"`
	AlertID      string              `json:"alert_id"`
}

func (OutboundNotification) EventType() EventType { return EventOutboundNotification }
