package models

import "strings"

// DirectiveType identifies what a pushed directive asks agents to do
type DirectiveType string

const (
	DirectiveAgentUpgrade   DirectiveType = "AGENT_UPGRADE"
	DirectiveYaraRuleUpdate DirectiveType = "YARA_RULE_UPDATE"
)

// Directive is an instruction pushed from the server to the agent fleet
type Directive struct {
	Type        DirectiveType `json:"type"`
	Version     string        `json:"version,omitempty"`
	TargetOS    string        `json:"target_os,omitempty"`
	RuleName    string        `json:"rule_name,omitempty"`
	RuleContent string        `json:"rule_content,omitempty"`
	Issuer      string        `json:"issuer,omitempty"`
}

func (Directive) EventType() EventType { return EventDirectivePush }

// Validate checks the fields required by the directive type
func (d Directive) Validate() error {
	switch d.Type {
	case DirectiveAgentUpgrade:
		if strings.TrimSpace(d.Version) == "" {
			return NewValidationError("push directive", "agent upgrade requires a version")
		}
		if strings.TrimSpace(d.TargetOS) == "" {
			return NewValidationError("push directive", "agent upgrade requires a target os")
		}
	case DirectiveYaraRuleUpdate:
		if strings.TrimSpace(d.RuleName) == "" || strings.TrimSpace(d.RuleContent) == "" {
			return NewValidationError("push directive", "yara rule update requires rule name and content")
		}
	default:
		return NewValidationError("push directive", "unknown directive type "+string(d.Type))
	}
	return nil
}
