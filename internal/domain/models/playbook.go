package models

import (
	"fmt"
	"strings"
	"time"
)

// Playbook is a named, versioned automated response
type Playbook struct {
	ID              string            `json:"id" yaml:"id"`
	Name            string            `json:"name" yaml:"name"`
	Description     string            `json:"description,omitempty" yaml:"description"`
	IsActive        bool              `json:"is_active" yaml:"is_active"`
	Versions        []PlaybookVersion `json:"versions" yaml:"-"`
	ActiveVersionID string            `json:"active_version_id" yaml:"-"`
	CreatedAt       time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time         `json:"updated_at" yaml:"-"`
}

// ActiveVersion returns the version the playbook currently points at
func (p *Playbook) ActiveVersion() (*PlaybookVersion, bool) {
	return p.Version(p.ActiveVersionID)
}

// Version looks up a version by id
func (p *Playbook) Version(versionID string) (*PlaybookVersion, bool) {
	for i := range p.Versions {
		if p.Versions[i].VersionID == versionID {
			return &p.Versions[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of p
func (p *Playbook) Clone() *Playbook {
	out := *p
	out.Versions = make([]PlaybookVersion, len(p.Versions))
	for i, v := range p.Versions {
		out.Versions[i] = v.Clone()
	}
	return &out
}

// PlaybookVersion is an immutable snapshot of a playbook's trigger and actions
type PlaybookVersion struct {
	VersionID string           `json:"version_id"`
	Number    int              `json:"number"`
	CreatedAt time.Time        `json:"created_at"`
	Author    string           `json:"author"`
	Notes     string           `json:"notes,omitempty"`
	Trigger   PlaybookTrigger  `json:"trigger"`
	Actions   []PlaybookAction `json:"actions"`
}

// Clone returns a deep copy of v
func (v PlaybookVersion) Clone() PlaybookVersion {
	out := v
	out.Trigger.Conditions = append([]PlaybookCondition(nil), v.Trigger.Conditions...)
	out.Actions = append([]PlaybookAction(nil), v.Actions...)
	return out
}

// LogicalOperator combines trigger conditions
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// PlaybookTrigger decides whether a playbook fires for an alert
type PlaybookTrigger struct {
	LogicalOperator LogicalOperator     `json:"logical_operator" yaml:"logical_operator"`
	Conditions      []PlaybookCondition `json:"conditions" yaml:"conditions"`
}

// ConditionField is an alert attribute a condition can test
type ConditionField string

const (
	FieldTitle    ConditionField = "title"
	FieldSeverity ConditionField = "severity"
	FieldDeviceOS ConditionField = "device.os"
	FieldMitreID  ConditionField = "mitre_mapping.id"
)

// ConditionOperator compares an alert attribute with a condition value
type ConditionOperator string

const (
	OperatorIs    ConditionOperator = "is"
	OperatorIsNot ConditionOperator = "is_not"
)

// PlaybookCondition is a single field comparison
type PlaybookCondition struct {
	Field    ConditionField    `json:"field" yaml:"field"`
	Operator ConditionOperator `json:"operator" yaml:"operator"`
	Value    string            `json:"value" yaml:"value"`
}

// ActionType identifies a playbook action
type ActionType string

const (
	ActionCreateCase       ActionType = "CREATE_CASE"
	ActionAssignCase       ActionType = "ASSIGN_CASE"
	ActionIsolateHost      ActionType = "ISOLATE_HOST"
	ActionSendSlackMessage ActionType = "SEND_SLACK_MESSAGE"
	ActionSendTeamsMessage ActionType = "SEND_TEAMS_MESSAGE"
	ActionSendEmail        ActionType = "SEND_EMAIL"
)

// ActionParams carries the per-type parameters of an action
type ActionParams struct {
	Assignee   string `json:"assignee,omitempty" yaml:"assignee"`
	WebhookURL string `json:"webhook_url,omitempty" yaml:"webhook_url"`
	Channel    string `json:"channel,omitempty" yaml:"channel"`
	Recipient  string `json:"recipient,omitempty" yaml:"recipient"`
	Subject    string `json:"subject,omitempty" yaml:"subject"`
}

// PlaybookAction is one step executed when a playbook fires
type PlaybookAction struct {
	Type   ActionType   `json:"type" yaml:"type"`
	Params ActionParams `json:"params,omitempty" yaml:"params"`
}

// Validate checks the parameters required by the action type
func (a PlaybookAction) Validate() error {
	switch a.Type {
	case ActionCreateCase, ActionIsolateHost:
		return nil
	case ActionAssignCase:
		if strings.TrimSpace(a.Params.Assignee) == "" {
			return fmt.Errorf("%s requires an assignee", a.Type)
		}
	case ActionSendSlackMessage:
		if strings.TrimSpace(a.Params.WebhookURL) == "" && strings.TrimSpace(a.Params.Channel) == "" {
			return fmt.Errorf("%s requires a webhook url or channel", a.Type)
		}
	case ActionSendTeamsMessage:
		if strings.TrimSpace(a.Params.WebhookURL) == "" {
			return fmt.Errorf("%s requires a webhook url", a.Type)
		}
	case ActionSendEmail:
		if strings.TrimSpace(a.Params.Recipient) == "" {
			return fmt.Errorf("%s requires a recipient", a.Type)
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// PlaybookDraft is the editable form submitted when saving a playbook. An
// empty ID creates a new playbook; otherwise a new version is appended.
type PlaybookDraft struct {
	ID          string           `json:"id,omitempty" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description"`
	IsActive    *bool            `json:"is_active,omitempty" yaml:"is_active"`
	Author      string           `json:"author,omitempty" yaml:"author"`
	Notes       string           `json:"notes,omitempty" yaml:"notes"`
	Trigger     PlaybookTrigger  `json:"trigger" yaml:"trigger"`
	Actions     []PlaybookAction `json:"actions" yaml:"actions"`
}
