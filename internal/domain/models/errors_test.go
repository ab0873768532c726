package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Is(t *testing.T) {
	v := NewValidationError("save playbook", "name is required")
	wrapped := fmt.Errorf("handler: %w", v)
	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.False(t, errors.Is(wrapped, ErrInvalidTransition))
	assert.Equal(t, "save playbook: name is required", v.Error())

	tr := NewTransitionError("resolve case", "case is already resolved")
	assert.True(t, errors.Is(tr, ErrValidation))
	assert.True(t, errors.Is(tr, ErrInvalidTransition))
	assert.True(t, IsValidation(tr))
	assert.False(t, IsNotFound(tr))
}

func TestNotFoundError(t *testing.T) {
	err := fmt.Errorf("get: %w", &NotFoundError{Kind: "case", ID: "CASE-1"})
	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Contains(t, err.Error(), `case "CASE-1" not found`)
}

func TestDirective_Validate(t *testing.T) {
	assert.NoError(t, Directive{Type: DirectiveAgentUpgrade, Version: "2.1.0", TargetOS: "Windows"}.Validate())
	assert.Error(t, Directive{Type: DirectiveAgentUpgrade, TargetOS: "Windows"}.Validate())
	assert.NoError(t, Directive{Type: DirectiveYaraRuleUpdate, RuleName: "r", RuleContent: "rule r { condition: true }"}.Validate())
	assert.Error(t, Directive{Type: DirectiveYaraRuleUpdate, RuleName: "r"}.Validate())
	assert.True(t, IsValidation(Directive{Type: "REBOOT"}.Validate()))
}
